package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"heroranker.app/internal/clock"
	"heroranker.app/internal/persistence/indexdb"
	"heroranker.app/internal/persistence/snapshot"
	"heroranker.app/internal/sim/catalogs"
	"heroranker.app/internal/sim/tuning"
	"heroranker.app/internal/sim/world"
	"heroranker.app/internal/sim/world/feature/actions"
	"heroranker.app/internal/sim/world/feature/persistence/digest"
	"heroranker.app/internal/sim/world/feature/persistence/reconcile"
	"heroranker.app/internal/sim/world/kernel/model"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testReconciler(t *testing.T) *reconcile.Reconciler {
	t.Helper()
	cats, err := catalogs.Load("../../configs")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	rec := reconcile.New(cats, tuning.Defaults())
	rec.Clock = clock.NewFakeClock(epoch)
	return rec
}

func sampleState() model.GameState {
	at := "b_hq"
	return model.GameState{
		SchemaVersion: model.SchemaVersion,
		Resources:     model.ResourceSet{Credits: 1234.5, Gems: 7},
		Buildings: []model.Building{
			{ID: "b_hq", Type: "command_center", Level: 2, Status: model.StatusIdle, SlotID: "hq"},
			{ID: "b_farm", Type: "bio_farm", Level: 1, Status: model.StatusUpgrading, FinishTime: epoch.Add(time.Minute).UnixMilli(), SlotID: "s1"},
		},
		Heroes: []model.Hero{
			{ID: "h_1", Name: "Nova", Level: 3, Specialty: model.SpecialtyProd, AssignedBuildingID: &at},
		},
		BuilderDroids: 2,
		TotalHeroes:   1,
		LastSaveTime:  epoch.UnixMilli(),
	}
}

func TestListSavesNewestFirst(t *testing.T) {
	dir := t.TempDir()
	for _, at := range []int64{1000, 3000, 2000} {
		s := snapshot.Save{Header: snapshot.Header{PlayerID: "p1", SavedAt: at, Tick: uint64(at), Digest: "abcdef0123456789"}}
		if err := snapshot.WriteSave(filepath.Join(dir, snapshot.FileName(at)), s); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	var buf bytes.Buffer
	if err := listSaves(&buf, dir, 5000); err != nil {
		t.Fatalf("list: %v", err)
	}
	out := buf.String()
	i3, i1 := strings.Index(out, "3000.save.zst"), strings.Index(out, "1000.save.zst")
	if i3 < 0 || i1 < 0 || i3 > i1 {
		t.Fatalf("expected newest first:\n%s", out)
	}
	if !strings.Contains(out, "abcdef012345") || strings.Contains(out, "abcdef0123456789") {
		t.Fatalf("digest should be shortened:\n%s", out)
	}
}

func TestRenderState(t *testing.T) {
	caps := model.Caps{Credits: 10000, Biomass: 5000, Nanosteel: 5000}
	out := renderState(sampleState(), &caps, epoch.UnixMilli())
	for _, want := range []string{"1,234.5", "10,000", "b_farm", "UPGRADING", "h_1", "Nova", "b_hq", "builders 1/2 free"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
}

func TestPrintAdminState(t *testing.T) {
	st := adminState{
		PlayerID: "p1",
		Tick:     12345,
		Metrics:  world.Metrics{ActionsTotal: 3, ProductionPerHour: model.ResourceSet{Credits: 3600}},
		State:    sampleState(),
	}
	b, _ := json.Marshal(st)
	var decoded adminState
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	var buf bytes.Buffer
	printAdminState(&buf, decoded, epoch.UnixMilli())
	out := buf.String()
	if !strings.Contains(out, "tick=12,345") || !strings.Contains(out, "credits=3,600/h") {
		t.Fatalf("header line:\n%s", out)
	}
}

func TestReconcileFileRepairsLegacyJSON(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "legacy.json")
	if err := os.WriteFile(in, []byte(`{"credits": 50, "gems": "x", "buildings": []}`), 0o644); err != nil {
		t.Fatal(err)
	}
	save, rep, err := reconcileFile(testReconciler(t), in, "p9")
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if !rep.Changed() || rep.Fresh {
		t.Fatalf("report: %+v", rep)
	}
	if save.State.Resources.Credits != 50 || save.Header.PlayerID != "p9" {
		t.Fatalf("state: %+v header: %+v", save.State.Resources, save.Header)
	}
	if save.Header.Digest != digest.StateDigest(save.State) {
		t.Fatalf("header digest does not match state")
	}
	hasHQ := false
	for _, b := range save.State.Buildings {
		hasHQ = hasHQ || b.Type == "command_center"
	}
	if !hasHQ {
		t.Fatalf("headquarters not restored: %+v", save.State.Buildings)
	}

	var buf bytes.Buffer
	printReport(&buf, rep)
	if !strings.Contains(buf.String(), "flat-resources") {
		t.Fatalf("report output:\n%s", buf.String())
	}
}

func TestReconcileFileFromSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, snapshot.FileName(epoch.UnixMilli()))
	s := sampleState()
	if err := snapshot.WriteSave(path, snapshot.Save{Header: snapshot.Header{PlayerID: "p1", Tick: 40, SavedAt: s.LastSaveTime}, State: s}); err != nil {
		t.Fatal(err)
	}
	save, _, err := reconcileFile(testReconciler(t), path, "")
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if save.Header.PlayerID != "p1" || save.Header.Tick != 40 {
		t.Fatalf("header not carried over: %+v", save.Header)
	}
}

func TestQueryIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "world.sqlite")
	idx, err := indexdb.OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	ctx := context.Background()
	if err := idx.PutSave(ctx, snapshot.Header{Version: 1, PlayerID: "p1", Tick: 9, SavedAt: 4000, Digest: "d1"}, []byte(`{}`)); err != nil {
		t.Fatalf("put: %v", err)
	}
	_ = idx.WriteTick(world.TickLogEntry{Tick: 9, Kind: world.EntryTick, NowMs: 4000, Digest: "d1"})
	_ = idx.WriteAudit(world.AuditEntry{Tick: 9, PlayerID: "p1", Action: actions.KindUpgrade, OK: false, Code: "E_NO_RESOURCE"})
	_ = idx.WriteAudit(world.AuditEntry{Tick: 9, PlayerID: "p1", Action: actions.KindUpgrade, OK: true})
	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	idx, err = indexdb.OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer idx.Close()

	var buf bytes.Buffer
	if err := queryIndex(ctx, idx, 5000, "saves", "p1", 0, &buf); err != nil || !strings.Contains(buf.String(), "4000.save.zst") {
		t.Fatalf("saves: %v\n%s", err, buf.String())
	}
	buf.Reset()
	if err := queryIndex(ctx, idx, 5000, "ticks", "p1", 5, &buf); err != nil || !strings.Contains(buf.String(), "d1") {
		t.Fatalf("ticks: %v\n%s", err, buf.String())
	}
	buf.Reset()
	if err := queryIndex(ctx, idx, 5000, "actions", "p1", 0, &buf); err != nil || !strings.Contains(buf.String(), "50.0%") {
		t.Fatalf("actions: %v\n%s", err, buf.String())
	}
	if err := queryIndex(ctx, idx, 5000, "bogus", "p1", 0, &buf); err == nil {
		t.Fatalf("expected error for unknown query")
	}
}
