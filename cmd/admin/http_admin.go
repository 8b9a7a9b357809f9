package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"heroranker.app/internal/sim/world"
	"heroranker.app/internal/sim/world/kernel/model"
)

// adminState mirrors the server's /admin/v1/state response.
type adminState struct {
	PlayerID string          `json:"player_id"`
	Tick     uint64          `json:"tick"`
	Metrics  world.Metrics   `json:"metrics"`
	State    model.GameState `json:"state"`
}

func stateCmd(args []string) {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	raw := fs.Bool("raw", false, "print the JSON response as is")
	_ = fs.Parse(args)

	u := strings.TrimRight(strings.TrimSpace(*baseURL), "/") + "/admin/v1/state"
	cl := &http.Client{Timeout: 5 * time.Second}
	resp, err := cl.Get(u)
	if err != nil {
		fail(1, "request:", err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 || *raw {
		fmt.Println(string(b))
		if resp.StatusCode/100 != 2 {
			os.Exit(1)
		}
		return
	}
	var st adminState
	if err := json.Unmarshal(b, &st); err != nil {
		fail(1, "decode:", err)
	}
	printAdminState(os.Stdout, st, nowMs())
}

func printAdminState(out io.Writer, st adminState, now int64) {
	m := st.Metrics
	fmt.Fprintf(out, "player=%s tick=%s subscribers=%d step=%.2fms actions=%s rejected=%s\n",
		st.PlayerID, humanize.Comma(int64(st.Tick)), m.Subscribers, m.StepMS,
		humanize.Comma(int64(m.ActionsTotal)), humanize.Comma(int64(m.RejectedTotal)))
	perHour := make([]string, 0, 4)
	for _, k := range model.AllResources() {
		if v := m.ProductionPerHour.Get(k); v != 0 {
			perHour = append(perHour, fmt.Sprintf("%s=%s/h", k, humanize.Commaf(v)))
		}
	}
	if len(perHour) > 0 {
		fmt.Fprintln(out, "production:", strings.Join(perHour, " "))
	}
	caps := m.Caps
	fmt.Fprintln(out, renderState(st.State, &caps, now))
}

func snapshotCmd(args []string) {
	fs := flag.NewFlagSet("snapshot", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	_ = fs.Parse(args)

	u := strings.TrimRight(strings.TrimSpace(*baseURL), "/") + "/admin/v1/snapshot"
	req, _ := http.NewRequest(http.MethodPost, u, nil)
	cl := &http.Client{Timeout: 10 * time.Second}
	resp, err := cl.Do(req)
	if err != nil {
		fail(1, "request:", err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Println(string(b))
	if resp.StatusCode/100 != 2 {
		os.Exit(1)
	}
}
