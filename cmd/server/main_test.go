package main

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"heroranker.app/internal/logging"
	"heroranker.app/internal/persistence/indexdb"
	"heroranker.app/internal/persistence/snapshot"
	"heroranker.app/internal/sim/world"
	"heroranker.app/internal/sim/world/kernel/model"
)

type fakeStore struct {
	header snapshot.Header
	body   []byte
	has    bool
	err    error

	puts   int
	pruned int
}

func (f *fakeStore) PutSave(ctx context.Context, h snapshot.Header, body []byte) error {
	f.puts++
	f.header, f.body, f.has = h, body, true
	return nil
}

func (f *fakeStore) LatestSave(ctx context.Context, playerID string) (snapshot.Header, []byte, bool, error) {
	return f.header, f.body, f.has, f.err
}

func (f *fakeStore) PruneSaves(ctx context.Context, playerID string, keep int) (int64, error) {
	f.pruned++
	return 0, nil
}

func writeSave(t *testing.T, dir, player string, savedAt int64) {
	t.Helper()
	s := snapshot.Save{
		Header: snapshot.Header{Version: snapshot.Version, PlayerID: player, SavedAt: savedAt, Tick: uint64(savedAt / 1000)},
		State:  model.GameState{SchemaVersion: model.SchemaVersion, LastSaveTime: savedAt},
	}
	if err := snapshot.WriteSave(filepath.Join(dir, snapshot.FileName(savedAt)), s); err != nil {
		t.Fatalf("write save: %v", err)
	}
}

func TestLoadNewestPrefersNewerSide(t *testing.T) {
	dir := t.TempDir()
	writeSave(t, dir, "p1", 5000)
	writeSave(t, dir, "p1", 7000)
	ctx := context.Background()
	log := logging.Discard()

	got, ok := loadNewest(ctx, dir, nil, "p1", log)
	if !ok || got.Header.SavedAt != 7000 || got.Source != snapshot.FileName(7000) {
		t.Fatalf("local only: %+v ok=%v", got.Header, ok)
	}

	remote := &fakeStore{header: snapshot.Header{PlayerID: "p1", SavedAt: 9000}, body: []byte(`{}`), has: true}
	got, _ = loadNewest(ctx, dir, remote, "p1", log)
	if got.Source != "remote" || got.Header.SavedAt != 9000 {
		t.Fatalf("newer remote not chosen: %+v", got)
	}

	remote.header.SavedAt = 7000
	got, _ = loadNewest(ctx, dir, remote, "p1", log)
	if got.Source == "remote" {
		t.Fatalf("tie should keep the local save")
	}

	remote.err = errors.New("db down")
	got, ok = loadNewest(ctx, dir, remote, "p1", log)
	if !ok || got.Header.SavedAt != 7000 {
		t.Fatalf("remote error should fall back to local: %+v", got)
	}
}

func TestLoadNewestSkipsOtherPlayersAndEmpty(t *testing.T) {
	dir := t.TempDir()
	log := logging.Discard()
	if _, ok := loadNewest(context.Background(), dir, &fakeStore{}, "p1", log); ok {
		t.Fatalf("nothing to load")
	}
	writeSave(t, dir, "p1", 1000)
	writeSave(t, dir, "p2", 2000)
	got, ok := loadNewest(context.Background(), dir, nil, "p1", log)
	if !ok || got.Header.SavedAt != 1000 {
		t.Fatalf("other player's save chosen: %+v", got.Header)
	}
}

func TestWriteLocalAndPushRemote(t *testing.T) {
	dir := t.TempDir()
	for i := int64(1); i <= 3; i++ {
		save := snapshot.Save{Header: snapshot.Header{PlayerID: "p1", SavedAt: i * 1000}, State: model.GameState{LastSaveTime: i * 1000}}
		if err := writeLocal(dir, 2, save); err != nil {
			t.Fatalf("write local: %v", err)
		}
	}
	paths, _ := snapshot.List(dir)
	if len(paths) != 2 || snapshot.Latest(dir) != filepath.Join(dir, snapshot.FileName(3000)) {
		t.Fatalf("pruned saves: %v", paths)
	}

	store := &fakeStore{}
	save := snapshot.Save{Header: snapshot.Header{PlayerID: "p1", SavedAt: 3000}, State: model.GameState{LastSaveTime: 3000}}
	if err := pushRemote(context.Background(), store, 2, save); err != nil {
		t.Fatalf("push: %v", err)
	}
	if store.puts != 1 || store.pruned != 1 || !bytes.Contains(store.body, []byte(`"lastSaveTime":3000`)) {
		t.Fatalf("store: %+v body=%s", store, store.body)
	}
}

func TestWriteMetrics(t *testing.T) {
	var buf bytes.Buffer
	m := world.Metrics{
		Tick:      7,
		Buildings: 3,
		Upgrading: 1,
		Resources: model.ResourceSet{Credits: 12.5},
		Caps:      model.Caps{Credits: 10000, Biomass: 5000, Nanosteel: 5000},
	}
	writeMetrics(&buf, "p1", m, &indexdb.Stats{DropTickTotal: 2})
	out := buf.String()
	for _, want := range []string{
		`heroranker_world_tick{player="p1"} 7`,
		`heroranker_resource_amount{player="p1",resource="credits"} 12.500`,
		`heroranker_resource_cap{player="p1",resource="credits"} 10000`,
		`heroranker_buildings{player="p1",status="idle"} 2`,
		`heroranker_index_dropped_total{kind="tick"} 2`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("metrics missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, `resource_cap{player="p1",resource="gems"}`) {
		t.Fatalf("gems are uncapped")
	}
}

func TestIsLoopbackRemote(t *testing.T) {
	cases := map[string]bool{
		"127.0.0.1:5000": true,
		"[::1]:80":       true,
		"10.0.0.2:80":    false,
		"garbage":        false,
	}
	for addr, want := range cases {
		if got := isLoopbackRemote(addr); got != want {
			t.Fatalf("%s: got %v want %v", addr, got, want)
		}
	}
}

func TestMultiLoggersTolerateNil(t *testing.T) {
	m := multiTickLogger{a: nil, b: indexOrNil(nil)}
	if err := m.WriteTick(world.TickLogEntry{}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if auditOrNil(nil) != nil {
		t.Fatalf("nil index must map to a nil interface")
	}
}

func TestLogCatchUp(t *testing.T) {
	var buf bytes.Buffer
	log := logrus.New()
	log.SetOutput(&buf)

	logCatchUp(log, 0, 3_600_000, 3600, model.ResourceSet{})
	if !strings.Contains(buf.String(), "no offline production") {
		t.Fatalf("empty delta: %s", buf.String())
	}

	buf.Reset()
	logCatchUp(log, 0, 10_500, 10.5, model.ResourceSet{Credits: 1050})
	out := buf.String()
	if !strings.Contains(out, "offline production applied") || !strings.Contains(out, "credited=10.5s") || !strings.Contains(out, "1,050") {
		t.Fatalf("applied: %s", out)
	}
}
