package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"heroranker.app/internal/clock"
	"heroranker.app/internal/logging"
	"heroranker.app/internal/persistence/indexdb"
	persistlog "heroranker.app/internal/persistence/log"
	"heroranker.app/internal/persistence/snapshot"
	"heroranker.app/internal/sim/catalogs"
	"heroranker.app/internal/sim/tuning"
	"heroranker.app/internal/sim/world"
	"heroranker.app/internal/sim/world/feature/persistence/reconcile"
	"heroranker.app/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		playerID   = flag.String("player", "player_1", "player id")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite index and remote save sync")
		savePath   = flag.String("save", "", "path to a save file to load (default: newest local or remote save)")
		actsPerSec = flag.Float64("acts_per_sec", 10, "per-connection ACT rate limit")
		actBurst   = flag.Int("act_burst", 20, "per-connection ACT burst")
	)
	flag.Parse()

	log := logging.New("server")

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		log.WithError(err).Fatal("load catalogs")
	}
	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			log.WithError(err).Fatal("load tuning")
		}
		log.WithField("path", tp).Warn("tuning not found; using defaults")
		tune = tuning.Defaults()
	}

	playerDir := filepath.Join(*dataDir, "players", *playerID)
	saveDir := filepath.Join(playerDir, "saves")
	if err := os.MkdirAll(saveDir, 0o755); err != nil {
		log.WithError(err).Fatal("create data dir")
	}

	// Optional: sqlite index and remote save store (does not affect sim determinism).
	var idx *indexdb.SQLiteIndex
	var store saveStore
	if !*disableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(playerDir, "index", "world.sqlite"))
		if err != nil {
			log.WithError(err).Fatal("open index")
		}
		defer idx.Close()
		store = idx
		if err := idx.UpsertCatalogs(*configDir, cats, tune); err != nil {
			log.WithError(err).Warn("index: upsert catalogs")
		}
	}

	ctx, cancel := signalContext()
	defer cancel()

	// Load: newest save, reconcile, then offline catch-up.
	rec := reconcile.New(cats, tune)
	var loaded loadedSave
	var haveSave bool
	if p := strings.TrimSpace(*savePath); p != "" {
		h, body, err := snapshot.ReadSave(p)
		if err != nil {
			log.WithError(err).WithField("path", p).Fatal("read save")
		}
		loaded, haveSave = loadedSave{Source: filepath.Base(p), Header: h, Body: body}, true
	} else {
		loaded, haveSave = loadNewest(ctx, saveDir, store, *playerID, log)
	}

	var startTick uint64
	state := rec.Default()
	if haveSave {
		var rep reconcile.Report
		state, rep = rec.Load(loaded.Body)
		entry := log.WithFields(logrus.Fields{"source": loaded.Source, "tick": loaded.Header.Tick, "from_version": rep.FromVersion})
		if rep.Fresh {
			entry.WithField("parse_error", rep.ParseError).Warn("save unusable; starting fresh")
		} else {
			startTick = loaded.Header.Tick + 1
			entry.WithField("repairs", len(rep.Notes)).Info("save loaded")
		}
		for _, n := range rep.Notes {
			log.WithField("step", n.Step).Debug(n.Detail)
		}
	} else {
		log.Info("no save found; starting a new game")
	}

	w, err := world.New(world.Config{
		PlayerID:  *playerID,
		Tuning:    tune,
		StartTick: startTick,
		Clock:     clock.RealClock{},
		Logger:    log,
	}, cats, state)
	if err != nil {
		log.WithError(err).Fatal("world")
	}

	tickLog := persistlog.NewTickLogger(playerDir, nil)
	auditLog := persistlog.NewAuditLogger(playerDir, nil)
	defer tickLog.Close()
	defer auditLog.Close()
	w.SetTickLogger(multiTickLogger{a: tickLog, b: indexOrNil(idx)})
	w.SetAuditLogger(multiAuditLogger{a: auditLog, b: auditOrNil(idx)})

	lastSave := state.LastSaveTime
	now := clock.NowMs(clock.RealClock{})
	off := w.CatchUp(now)
	logCatchUp(log, lastSave, now, off.Seconds, off.Delta)

	snapCh := make(chan snapshot.Save, 4)
	w.SetSnapshotSink(snapCh)
	go snapshotWriter(ctx, snapCh, saveDir, tune.KeepSaveFiles, log)
	go syncLoop(ctx, w, store, time.Duration(tune.SyncEveryMs)*time.Millisecond, tune.KeepSaveFiles, log)

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.WithError(err).Error("world stopped")
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		var st *indexdb.Stats
		if idx != nil {
			s := idx.Stats()
			st = &s
		}
		writeMetrics(rw, *playerID, w.Metrics(), st)
	})

	if envBool("HR_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP()) {
		// Local-only admin endpoints (do not affect simulation determinism).
		mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			resp := struct {
				PlayerID string        `json:"player_id"`
				Tick     uint64        `json:"tick"`
				Metrics  world.Metrics `json:"metrics"`
				State    any           `json:"state"`
			}{
				PlayerID: *playerID,
				Tick:     w.CurrentTick(),
				Metrics:  w.Metrics(),
				State:    w.State(),
			}
			_ = json.NewEncoder(rw).Encode(resp)
		})
		mux.HandleFunc("/admin/v1/snapshot", func(rw http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				rw.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			ctx2, cancel2 := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel2()
			tick, err := w.RequestSnapshot(ctx2)
			rw.Header().Set("Content-Type", "application/json")
			if err != nil {
				rw.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "tick": tick, "error": err.Error()})
				return
			}
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "tick": tick})
		})
	} else {
		log.Info("admin endpoints disabled (HR_ENABLE_ADMIN_HTTP=false)")
	}
	wsCfg := ws.Config{ActsPerSecond: *actsPerSec, ActBurst: *actBurst}
	mux.HandleFunc("/v1/ws", ws.NewServer(w, wsCfg, log.WithField("component", "ws")).Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	log.WithField("addr", *addr).Info("listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.WithError(err).Error("ListenAndServe")
		cancel()
	}

	<-runDone
	finalSave(w, saveDir, store, tune.KeepSaveFiles, log)
}

// finalSave writes the committed state locally and remotely after the world loop has stopped.
func finalSave(w *world.World, saveDir string, store saveStore, keep int, log logrus.FieldLogger) {
	save := w.ExportSave()
	if err := writeLocal(saveDir, keep, save); err != nil {
		log.WithError(err).Error("final save")
	}
	if store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := pushRemote(ctx, store, keep, save); err != nil {
			log.WithError(err).Error("final remote sync")
		}
	}
	log.WithFields(logrus.Fields{"tick": save.Header.Tick, "digest": save.Header.Digest}).Info("final save written")
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// The index is optional; a nil *SQLiteIndex must not be stored in the interface.
func indexOrNil(idx *indexdb.SQLiteIndex) world.TickLogger {
	if idx == nil {
		return nil
	}
	return idx
}

func auditOrNil(idx *indexdb.SQLiteIndex) world.AuditLogger {
	if idx == nil {
		return nil
	}
	return idx
}

type multiTickLogger struct {
	a world.TickLogger
	b world.TickLogger
}

func (m multiTickLogger) WriteTick(entry world.TickLogEntry) error {
	if m.a != nil {
		_ = m.a.WriteTick(entry)
	}
	if m.b != nil {
		_ = m.b.WriteTick(entry)
	}
	return nil
}

type multiAuditLogger struct {
	a world.AuditLogger
	b world.AuditLogger
}

func (m multiAuditLogger) WriteAudit(entry world.AuditEntry) error {
	if m.a != nil {
		_ = m.a.WriteAudit(entry)
	}
	if m.b != nil {
		_ = m.b.WriteAudit(entry)
	}
	return nil
}
