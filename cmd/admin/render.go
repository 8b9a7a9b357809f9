package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"

	"heroranker.app/internal/clock"
	"heroranker.app/internal/persistence/snapshot"
	"heroranker.app/internal/sim/world/kernel/model"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

func nowMs() int64 { return clock.NowMs(clock.RealClock{}) }

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		BorderHeader(true).
		BorderRow(false).
		Headers(headers...)
}

func ago(atMs, now int64) string {
	if atMs <= 0 {
		return "-"
	}
	return humanize.RelTime(time.UnixMilli(atMs), time.UnixMilli(now), "ago", "from now")
}

func saveRow(h snapshot.Header, now int64) []string {
	return []string{
		snapshot.FileName(h.SavedAt),
		humanize.Comma(int64(h.Tick)),
		ago(h.SavedAt, now),
		short(h.Digest),
	}
}

func renderSaves(rows [][]string) string {
	return newTable("Save", "Tick", "Saved", "Digest").Rows(rows...).Render()
}

// renderState draws resources, buildings and heroes. caps may be nil when unknown.
func renderState(s model.GameState, caps *model.Caps, now int64) string {
	var b strings.Builder

	res := newTable("Resource", "Amount", "Cap")
	for _, k := range model.AllResources() {
		limit := "-"
		if caps != nil {
			if l, ok := caps.Limit(k); ok {
				limit = humanize.Commaf(l)
			}
		}
		res.Row(string(k), humanize.Commaf(s.Resources.Get(k)), limit)
	}
	b.WriteString(titleStyle.Render(fmt.Sprintf("Resources (builders %d/%d free, last save %s)",
		s.FreeBuilders(), s.BuilderDroids, ago(s.LastSaveTime, now))))
	b.WriteString("\n")
	b.WriteString(res.Render())
	b.WriteString("\n")

	blds := newTable("ID", "Type", "Level", "Status", "Slot", "Hero")
	for _, bl := range s.Buildings {
		status := string(bl.Status)
		if bl.Upgrading() {
			status += " (done " + ago(bl.FinishTime, now) + ")"
		}
		hero := "-"
		if h, ok := s.HeroAt(bl.ID); ok {
			hero = h.ID
		}
		blds.Row(bl.ID, bl.Type, strconv.Itoa(bl.Level), status, bl.SlotID, hero)
	}
	b.WriteString(titleStyle.Render(fmt.Sprintf("Buildings (%s)", humanize.Comma(int64(len(s.Buildings))))))
	b.WriteString("\n")
	b.WriteString(blds.Render())
	b.WriteString("\n")

	heroes := newTable("ID", "Name", "Specialty", "Level", "XP", "Rank", "Assigned")
	for _, h := range s.Heroes {
		assigned := "-"
		if id, ok := h.AssignedTo(); ok {
			assigned = id
		}
		heroes.Row(h.ID, h.Name, string(h.Specialty), strconv.Itoa(h.Level),
			fmt.Sprintf("%s/%s", humanize.Commaf(h.CurrentXP), humanize.Commaf(h.XPToNextLevel)),
			strconv.Itoa(h.Rank), assigned)
	}
	b.WriteString(titleStyle.Render(fmt.Sprintf("Heroes (%d on roster, %d recruited)", len(s.Heroes), s.TotalHeroes)))
	b.WriteString("\n")
	b.WriteString(heroes.Render())
	return b.String()
}
