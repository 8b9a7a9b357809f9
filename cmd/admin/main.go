package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"heroranker.app/internal/persistence/snapshot"
	"heroranker.app/internal/sim/catalogs"
	"heroranker.app/internal/sim/tuning"
	"heroranker.app/internal/sim/world/feature/persistence/digest"
	"heroranker.app/internal/sim/world/feature/persistence/reconcile"
	"heroranker.app/internal/sim/world/kernel/model"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "show":
			showCmd(os.Args[2:])
			return
		case "reconcile":
			reconcileCmd(os.Args[2:])
			return
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "snapshot":
			snapshotCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func fail(code int, args ...any) {
	fmt.Fprintln(os.Stderr, args...)
	os.Exit(code)
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	playerID := fs.String("player", "", "player id (optional; lists players when empty)")
	_ = fs.Parse(args)

	if strings.TrimSpace(*playerID) == "" {
		entries, err := os.ReadDir(filepath.Join(*dataDir, "players"))
		if err != nil {
			fail(1, "read:", err)
		}
		for _, e := range entries {
			if e.IsDir() {
				fmt.Println(e.Name())
			}
		}
		return
	}
	if err := listSaves(os.Stdout, saveDir(*dataDir, *playerID), nowMs()); err != nil {
		fail(1, "list saves:", err)
	}
}

func saveDir(dataDir, playerID string) string {
	return filepath.Join(dataDir, "players", playerID, "saves")
}

// listSaves prints the save files in dir, newest first.
func listSaves(out io.Writer, dir string, now int64) error {
	paths, err := snapshot.List(dir)
	if err != nil {
		return err
	}
	rows := make([][]string, 0, len(paths))
	for i := len(paths) - 1; i >= 0; i-- {
		h, _, err := snapshot.ReadSave(paths[i])
		if err != nil {
			rows = append(rows, []string{filepath.Base(paths[i]), "-", "-", "unreadable: " + err.Error()})
			continue
		}
		rows = append(rows, saveRow(h, now))
	}
	fmt.Fprintln(out, renderSaves(rows))
	return nil
}

func showCmd(args []string) {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	playerID := fs.String("player", "player_1", "player id")
	savePath := fs.String("save", "", "save file (default: newest save of -player)")
	_ = fs.Parse(args)

	path := strings.TrimSpace(*savePath)
	if path == "" {
		path = snapshot.Latest(saveDir(*dataDir, *playerID))
		if path == "" {
			fail(1, "no saves for", *playerID)
		}
	}
	h, body, err := snapshot.ReadSave(path)
	if err != nil {
		fail(1, "read save:", err)
	}
	var s model.GameState
	if err := json.Unmarshal(body, &s); err != nil {
		fail(1, "decode state (try the reconcile command):", err)
	}
	fmt.Printf("save %s player=%s tick=%d digest=%s\n", filepath.Base(path), h.PlayerID, h.Tick, short(h.Digest))
	if d := digest.StateDigest(s); d != h.Digest {
		fmt.Printf("warning: state digest %s does not match header\n", short(d))
	}
	fmt.Println(renderState(s, nil, nowMs()))
}

func reconcileCmd(args []string) {
	fs := flag.NewFlagSet("reconcile", flag.ExitOnError)
	configDir := fs.String("configs", "./configs", "config directory")
	in := fs.String("in", "", "save file (.save.zst) or raw JSON state to repair (required)")
	outPath := fs.String("out", "", "output save path (optional; prints the report only when empty)")
	playerID := fs.String("player", "", "player id for the output header (default: from the input save)")
	_ = fs.Parse(args)

	if strings.TrimSpace(*in) == "" {
		fail(2, "missing -in")
	}
	cats, err := catalogs.Load(*configDir)
	if err != nil {
		fail(1, "load catalogs:", err)
	}
	tune, err := tuning.Load(filepath.Join(*configDir, "tuning.yaml"))
	if err != nil {
		tune = tuning.Defaults()
	}
	save, rep, err := reconcileFile(reconcile.New(cats, tune), *in, *playerID)
	if err != nil {
		fail(1, "reconcile:", err)
	}
	printReport(os.Stdout, rep)
	if strings.TrimSpace(*outPath) == "" {
		return
	}
	if err := snapshot.WriteSave(*outPath, save); err != nil {
		fail(1, "write:", err)
	}
	fmt.Printf("wrote %s digest=%s\n", *outPath, short(save.Header.Digest))
}

// reconcileFile repairs a save file or a bare JSON document and packages the result as a save.
func reconcileFile(rec *reconcile.Reconciler, path, playerID string) (snapshot.Save, reconcile.Report, error) {
	var h snapshot.Header
	var body []byte
	if strings.HasSuffix(path, snapshot.Ext) {
		var err error
		h, body, err = snapshot.ReadSave(path)
		if err != nil {
			return snapshot.Save{}, reconcile.Report{}, err
		}
	} else {
		b, err := os.ReadFile(path)
		if err != nil {
			return snapshot.Save{}, reconcile.Report{}, err
		}
		body = b
	}
	state, rep := rec.Load(body)
	if playerID != "" {
		h.PlayerID = playerID
	}
	h.Version = snapshot.Version
	h.SavedAt = state.LastSaveTime
	h.Digest = digest.StateDigest(state)
	return snapshot.Save{Header: h, State: state}, rep, nil
}

func printReport(out io.Writer, rep reconcile.Report) {
	switch {
	case rep.Fresh:
		fmt.Fprintf(out, "unparsable input (%s); default state produced\n", rep.ParseError)
	case !rep.Changed():
		fmt.Fprintf(out, "schema v%d: no repairs needed\n", rep.FromVersion)
	default:
		fmt.Fprintf(out, "schema v%d: %d repairs\n", rep.FromVersion, len(rep.Notes))
	}
	for _, n := range rep.Notes {
		fmt.Fprintf(out, "  %-22s %s\n", n.Step, n.Detail)
	}
}

func short(d string) string {
	if len(d) > 12 {
		return d[:12]
	}
	return d
}
