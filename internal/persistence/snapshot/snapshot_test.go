package snapshot

import (
	"bytes"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"

	"heroranker.app/internal/sim/world/kernel/model"
)

func sampleSave(savedAt int64) Save {
	return Save{
		Header: Header{PlayerID: "p1", Tick: 42, SavedAt: savedAt, Digest: "abc"},
		State: model.GameState{
			SchemaVersion: model.SchemaVersion,
			Resources:     model.ResourceSet{Credits: 1234.5, Gems: 7},
			Buildings:     []model.Building{{ID: "hq", Type: "command_center", Level: 3, Status: model.StatusIdle, SlotID: "core"}},
			Heroes:        []model.Hero{},
			BuilderDroids: 2,
			UnlockedSkins: []string{"default"},
			LastSaveTime:  savedAt,
		},
	}
}

func TestWriteReadSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName(1000))
	if err := WriteSave(path, sampleSave(1000)); err != nil {
		t.Fatalf("write: %v", err)
	}
	h, body, err := ReadSave(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if h.Version != Version || h.PlayerID != "p1" || h.Tick != 42 || h.SavedAt != 1000 {
		t.Fatalf("header: %+v", h)
	}
	var got model.GameState
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("body: %v", err)
	}
	if got.Resources.Credits != 1234.5 || got.Buildings[0].Level != 3 || got.LastSaveTime != 1000 {
		t.Fatalf("state: %+v", got)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file left behind: %v", err)
	}
}

func writeRaw(t *testing.T, path string, content []byte) {
	t.Helper()
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf)
	if err != nil {
		t.Fatalf("zstd: %v", err)
	}
	_, _ = enc.Write(content)
	_ = enc.Close()
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestReadSaveKeepsLegacyBodyRaw(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName(5))
	legacy := `{"resources":{"credits":"lots"},"buildings":[{"type":"trade_hub","x":2,"y":0}]}`
	writeRaw(t, path, []byte(`{"version":1,"saved_at":5}`+"\n"+legacy))
	_, body, err := ReadSave(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(body) != legacy {
		t.Fatalf("body changed: %s", body)
	}
}

func TestReadSaveRejectsBadHeader(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"garbage": "not json\n{}",
		"future":  `{"version":99}` + "\n{}",
		"no line": `{"version":1}`,
	}
	for name, content := range cases {
		path := filepath.Join(dir, name+Ext)
		writeRaw(t, path, []byte(content))
		if _, _, err := ReadSave(path); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestLatestAndPrune(t *testing.T) {
	dir := t.TempDir()
	if Latest(dir) != "" {
		t.Fatalf("empty dir has a latest save")
	}
	for _, ms := range []int64{300, 1000, 20, 999} {
		if err := WriteSave(filepath.Join(dir, FileName(ms)), sampleSave(ms)); err != nil {
			t.Fatalf("write %d: %v", ms, err)
		}
	}
	_ = os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644)

	if got := filepath.Base(Latest(dir)); got != FileName(1000) {
		t.Fatalf("latest: %s", got)
	}
	removed, err := Prune(dir, 2)
	if err != nil || removed != 2 {
		t.Fatalf("prune: removed=%d err=%v", removed, err)
	}
	left, _ := List(dir)
	if len(left) != 2 || filepath.Base(left[0]) != FileName(999) || filepath.Base(left[1]) != FileName(1000) {
		t.Fatalf("left: %v", left)
	}
	if _, err := os.Stat(filepath.Join(dir, "notes.txt")); err != nil {
		t.Fatalf("prune removed an unrelated file")
	}
}

func TestListMissingDir(t *testing.T) {
	all, err := List(filepath.Join(t.TempDir(), "nope"))
	if err != nil || len(all) != 0 {
		t.Fatalf("list missing dir: %v %v", all, err)
	}
}

func TestWriteSaveFailureLeavesNoFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName(1000))
	s := sampleSave(1000)
	s.State.Resources.Credits = math.NaN()
	if err := WriteSave(path, s); err == nil {
		t.Fatalf("expected an encode error for NaN credits")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("left files behind: %v", entries)
	}

	// The same path still takes a good save afterwards.
	if err := WriteSave(path, sampleSave(1000)); err != nil {
		t.Fatalf("write after failure: %v", err)
	}
	if _, _, err := ReadSave(path); err != nil {
		t.Fatalf("read: %v", err)
	}
}
