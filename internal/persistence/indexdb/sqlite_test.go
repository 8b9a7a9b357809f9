package indexdb

import (
	"context"
	"path/filepath"
	"testing"

	"heroranker.app/internal/persistence/snapshot"
	"heroranker.app/internal/sim/catalogs"
	"heroranker.app/internal/sim/tuning"
	"heroranker.app/internal/sim/world"
	"heroranker.app/internal/sim/world/feature/actions"
)

func openTemp(t *testing.T) (*SQLiteIndex, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index", "world.sqlite")
	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return s, path
}

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqTick, tick: world.TickLogEntry{Tick: 1}}

	_ = s.WriteTick(world.TickLogEntry{Tick: 2})
	_ = s.WriteAudit(world.AuditEntry{Tick: 2})

	st := s.Stats()
	if st.DropTickTotal != 1 || st.DropAuditTotal != 1 {
		t.Fatalf("drops: %+v", st)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}

func TestSaves(t *testing.T) {
	s, _ := openTemp(t)
	defer s.Close()
	ctx := context.Background()

	if _, _, ok, err := s.LatestSave(ctx, "p1"); ok || err != nil {
		t.Fatalf("empty store: ok=%v err=%v", ok, err)
	}
	for i, at := range []int64{3000, 1000, 2000} {
		h := snapshot.Header{Version: snapshot.Version, PlayerID: "p1", Tick: uint64(i), SavedAt: at, Digest: "d"}
		if err := s.PutSave(ctx, h, []byte(`{"lastSaveTime":1}`)); err != nil {
			t.Fatalf("put: %v", err)
		}
	}
	if err := s.PutSave(ctx, snapshot.Header{PlayerID: "p2", SavedAt: 9000}, []byte(`{}`)); err != nil {
		t.Fatalf("put p2: %v", err)
	}
	if err := s.PutSave(ctx, snapshot.Header{PlayerID: "p1", SavedAt: 1}, []byte(`not json`)); err == nil {
		t.Fatalf("expected invalid body error")
	}

	h, body, ok, err := s.LatestSave(ctx, "p1")
	if err != nil || !ok || h.SavedAt != 3000 || h.PlayerID != "p1" || string(body) != `{"lastSaveTime":1}` {
		t.Fatalf("latest: %+v %q ok=%v err=%v", h, body, ok, err)
	}

	removed, err := s.PruneSaves(ctx, "p1", 2)
	if err != nil || removed != 1 {
		t.Fatalf("prune: removed=%d err=%v", removed, err)
	}
	list, err := s.ListSaves(ctx, "p1")
	if err != nil || len(list) != 2 || list[0].SavedAt != 3000 || list[1].SavedAt != 2000 {
		t.Fatalf("list: %+v err=%v", list, err)
	}
	if other, _ := s.ListSaves(ctx, "p2"); len(other) != 1 {
		t.Fatalf("prune touched another player: %+v", other)
	}
}

func TestTicksAndAuditsIndexed(t *testing.T) {
	s, path := openTemp(t)
	_ = s.WriteTick(world.TickLogEntry{Tick: 0, Kind: world.EntryCatchUp, NowMs: 10, Digest: "a"})
	_ = s.WriteTick(world.TickLogEntry{Tick: 0, Kind: world.EntryTick, NowMs: 10, Digest: "b",
		Actions: []world.RecordedAction{{Action: actions.Action{Kind: actions.KindUpgrade, BuildingID: "hq"}}}})
	_ = s.WriteTick(world.TickLogEntry{Tick: 1, Kind: world.EntryTick, NowMs: 1010, Digest: "c"})
	_ = s.WriteAudit(world.AuditEntry{Tick: 0, PlayerID: "p1", Action: actions.KindUpgrade, OK: true, BuildingID: "hq"})
	_ = s.WriteAudit(world.AuditEntry{Tick: 0, PlayerID: "p1", Action: actions.KindUpgrade, Code: "E_CONFLICT"})
	_ = s.WriteAudit(world.AuditEntry{Tick: 1, PlayerID: "p1", Action: actions.KindSpend, OK: true})
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	ticks, err := s.RecentTicks(ctx, 10)
	if err != nil || len(ticks) != 3 {
		t.Fatalf("ticks: %+v err=%v", ticks, err)
	}
	if ticks[0].Tick != 1 || ticks[1].Kind != string(world.EntryTick) || ticks[1].Actions != 1 || ticks[2].Kind != string(world.EntryCatchUp) {
		t.Fatalf("tick order: %+v", ticks)
	}

	stats, err := s.ActionStats(ctx, "p1")
	if err != nil || len(stats) != 2 {
		t.Fatalf("stats: %+v err=%v", stats, err)
	}
	if stats[0].Action != "SPEND" || stats[0].Total != 1 || stats[1].Action != "UPGRADE" || stats[1].Total != 2 || stats[1].Rejected != 1 {
		t.Fatalf("stats: %+v", stats)
	}
}

func TestUpsertCatalogs(t *testing.T) {
	cats, err := catalogs.Load("../../../configs")
	if err != nil {
		t.Fatalf("catalogs: %v", err)
	}
	s, _ := openTemp(t)
	defer s.Close()
	if err := s.UpsertCatalogs("../../../configs", cats, tuning.Defaults()); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	ctx := context.Background()
	if d, err := s.CatalogDigest(ctx, "buildings"); err != nil || d != cats.Buildings.Digest {
		t.Fatalf("buildings digest %q err=%v", d, err)
	}
	if d, _ := s.CatalogDigest(ctx, "tuning"); d == "" {
		t.Fatalf("tuning digest missing")
	}
	if d, _ := s.CatalogDigest(ctx, "nope"); d != "" {
		t.Fatalf("unknown catalog: %q", d)
	}
}
