package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"heroranker.app/internal/persistence/indexdb"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	playerID := fs.String("player", "player_1", "player id")
	dbPath := fs.String("db", "", "sqlite path (optional; defaults to <data>/players/<player>/index/world.sqlite)")
	what := fs.String("what", "saves", "saves|ticks|actions")
	limit := fs.Int("n", 20, "rows for -what=ticks")
	_ = fs.Parse(args)

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "players", *playerID, "index", "world.sqlite")
	}
	idx, err := indexdb.OpenSQLite(path)
	if err != nil {
		fail(1, "open db:", err)
	}
	defer idx.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := queryIndex(ctx, idx, nowMs(), *what, *playerID, *limit, os.Stdout); err != nil {
		fail(1, "query:", err)
	}
}

func queryIndex(ctx context.Context, idx *indexdb.SQLiteIndex, now int64, what, playerID string, limit int, out io.Writer) error {
	switch what {
	case "saves":
		hs, err := idx.ListSaves(ctx, playerID)
		if err != nil {
			return err
		}
		rows := make([][]string, 0, len(hs))
		for _, h := range hs {
			rows = append(rows, saveRow(h, now))
		}
		fmt.Fprintln(out, renderSaves(rows))
	case "ticks":
		if limit <= 0 {
			limit = 20
		}
		ticks, err := idx.RecentTicks(ctx, limit)
		if err != nil {
			return err
		}
		t := newTable("Tick", "Kind", "At", "Actions", "Digest")
		for _, r := range ticks {
			t.Row(humanize.Comma(int64(r.Tick)), r.Kind, ago(r.NowMs, now), humanize.Comma(int64(r.Actions)), short(r.Digest))
		}
		fmt.Fprintln(out, t.Render())
	case "actions":
		stats, err := idx.ActionStats(ctx, playerID)
		if err != nil {
			return err
		}
		t := newTable("Action", "Total", "Rejected", "Rejection rate")
		for _, a := range stats {
			rate := "0%"
			if a.Total > 0 {
				rate = humanize.FormatFloat("#.#", 100*float64(a.Rejected)/float64(a.Total)) + "%"
			}
			t.Row(a.Action, humanize.Comma(int64(a.Total)), humanize.Comma(int64(a.Rejected)), rate)
		}
		fmt.Fprintln(out, t.Render())
	default:
		return fmt.Errorf("unknown -what %q", what)
	}
	return nil
}
