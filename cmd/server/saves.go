package main

import (
	"context"
	"encoding/json"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"heroranker.app/internal/persistence/snapshot"
	"heroranker.app/internal/sim/world"
	"heroranker.app/internal/sim/world/kernel/model"
)

// saveStore is the remote side of save sync.
type saveStore interface {
	PutSave(ctx context.Context, h snapshot.Header, body []byte) error
	LatestSave(ctx context.Context, playerID string) (snapshot.Header, []byte, bool, error)
	PruneSaves(ctx context.Context, playerID string, keep int) (int64, error)
}

type loadedSave struct {
	Source string
	Header snapshot.Header
	Body   []byte
}

// loadNewest picks the newer of the newest readable local save and the remote save.
// Saves of another player are ignored. ok is false when neither side has one.
func loadNewest(ctx context.Context, saveDir string, store saveStore, playerID string, log logrus.FieldLogger) (loadedSave, bool) {
	var best loadedSave
	found := false

	paths, err := snapshot.List(saveDir)
	if err != nil {
		log.WithError(err).Warn("list local saves")
	}
	for i := len(paths) - 1; i >= 0; i-- {
		h, body, err := snapshot.ReadSave(paths[i])
		if err != nil {
			log.WithError(err).WithField("path", paths[i]).Warn("unreadable save skipped")
			continue
		}
		if h.PlayerID != "" && h.PlayerID != playerID {
			log.WithField("path", paths[i]).Warn("save belongs to another player")
			continue
		}
		best, found = loadedSave{Source: filepath.Base(paths[i]), Header: h, Body: body}, true
		break
	}

	if store != nil {
		h, body, ok, err := store.LatestSave(ctx, playerID)
		switch {
		case err != nil:
			log.WithError(err).Warn("read remote save")
		case ok && (!found || h.SavedAt > best.Header.SavedAt):
			best, found = loadedSave{Source: "remote", Header: h, Body: body}, true
		}
	}
	return best, found
}

// snapshotWriter persists saves from the world's snapshot sink until ch is closed or ctx ends.
func snapshotWriter(ctx context.Context, ch <-chan snapshot.Save, saveDir string, keep int, log logrus.FieldLogger) {
	for {
		select {
		case <-ctx.Done():
			return
		case save, ok := <-ch:
			if !ok {
				return
			}
			if err := writeLocal(saveDir, keep, save); err != nil {
				log.WithError(err).WithField("tick", save.Header.Tick).Warn("snapshot write failed")
			}
		}
	}
}

func writeLocal(saveDir string, keep int, save snapshot.Save) error {
	path := filepath.Join(saveDir, snapshot.FileName(save.Header.SavedAt))
	if err := snapshot.WriteSave(path, save); err != nil {
		return err
	}
	if keep > 0 {
		if _, err := snapshot.Prune(saveDir, keep); err != nil {
			return err
		}
	}
	return nil
}

func pushRemote(ctx context.Context, store saveStore, keep int, save snapshot.Save) error {
	body, err := json.Marshal(save.State)
	if err != nil {
		return err
	}
	if err := store.PutSave(ctx, save.Header, body); err != nil {
		return err
	}
	if keep > 0 {
		if _, err := store.PruneSaves(ctx, save.Header.PlayerID, keep); err != nil {
			return err
		}
	}
	return nil
}

// syncLoop pushes the committed state to the remote store every interval.
func syncLoop(ctx context.Context, w *world.World, store saveStore, interval time.Duration, keep int, log logrus.FieldLogger) {
	if store == nil || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	var lastDigest string
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			save := w.ExportSave()
			if save.Header.Digest == lastDigest {
				continue
			}
			sctx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err := pushRemote(sctx, store, keep, save)
			cancel()
			if err != nil {
				log.WithError(err).Warn("remote sync failed")
				continue
			}
			lastDigest = save.Header.Digest
			log.WithField("tick", save.Header.Tick).Debug("remote sync")
		}
	}
}

func logCatchUp(log logrus.FieldLogger, lastSaveMs, nowMs int64, seconds float64, delta model.ResourceSet) {
	if seconds == 0 || delta.IsZero() {
		log.WithField("away", humanize.RelTime(time.UnixMilli(lastSaveMs), time.UnixMilli(nowMs), "", "")).Info("no offline production")
		return
	}
	fields := logrus.Fields{
		"away":     humanize.RelTime(time.UnixMilli(lastSaveMs), time.UnixMilli(nowMs), "", ""),
		"credited": humanize.FormatFloat("#,###.#", seconds) + "s",
	}
	for _, k := range model.AllResources() {
		if v := delta.Get(k); v != 0 {
			fields[string(k)] = humanize.Commaf(v)
		}
	}
	log.WithFields(fields).Info("offline production applied")
}
