package main

import (
	"fmt"
	"io"

	"heroranker.app/internal/persistence/indexdb"
	"heroranker.app/internal/sim/world"
	"heroranker.app/internal/sim/world/kernel/model"
)

// writeMetrics renders m in the Prometheus text exposition format.
func writeMetrics(out io.Writer, player string, m world.Metrics, idx *indexdb.Stats) {
	gauge := func(name, help string) {
		fmt.Fprintf(out, "# HELP %s %s\n", name, help)
		fmt.Fprintf(out, "# TYPE %s gauge\n", name)
	}
	counter := func(name, help string) {
		fmt.Fprintf(out, "# HELP %s %s\n", name, help)
		fmt.Fprintf(out, "# TYPE %s counter\n", name)
	}

	gauge("heroranker_world_tick", "Next tick to simulate.")
	fmt.Fprintf(out, "heroranker_world_tick{player=%q} %d\n", player, m.Tick)

	gauge("heroranker_world_step_ms", "Last tick step duration in milliseconds.")
	fmt.Fprintf(out, "heroranker_world_step_ms{player=%q} %.3f\n", player, m.StepMS)

	gauge("heroranker_world_subscribers", "Connected state subscribers.")
	fmt.Fprintf(out, "heroranker_world_subscribers{player=%q} %d\n", player, m.Subscribers)

	gauge("heroranker_world_inbox_depth", "Actions waiting for the next tick.")
	fmt.Fprintf(out, "heroranker_world_inbox_depth{player=%q} %d\n", player, m.InboxDepth)

	counter("heroranker_actions_total", "Actions applied, including rejected ones.")
	fmt.Fprintf(out, "heroranker_actions_total{player=%q} %d\n", player, m.ActionsTotal)
	counter("heroranker_actions_rejected_total", "Actions rejected with an error code.")
	fmt.Fprintf(out, "heroranker_actions_rejected_total{player=%q} %d\n", player, m.RejectedTotal)
	counter("heroranker_upgrades_completed_total", "Upgrades completed by the tick loop.")
	fmt.Fprintf(out, "heroranker_upgrades_completed_total{player=%q} %d\n", player, m.CompletedTotal)
	counter("heroranker_hero_level_ups_total", "Hero level ups.")
	fmt.Fprintf(out, "heroranker_hero_level_ups_total{player=%q} %d\n", player, m.LevelUpsTotal)
	counter("heroranker_snapshots_total", "Snapshots handed to the writer.")
	fmt.Fprintf(out, "heroranker_snapshots_total{player=%q} %d\n", player, m.SnapshotsTotal)
	counter("heroranker_snapshots_dropped_total", "Snapshots dropped because the writer was busy.")
	fmt.Fprintf(out, "heroranker_snapshots_dropped_total{player=%q} %d\n", player, m.DroppedTotal)

	gauge("heroranker_resource_amount", "Current resource amount.")
	for _, k := range model.AllResources() {
		fmt.Fprintf(out, "heroranker_resource_amount{player=%q,resource=%q} %.3f\n", player, k, m.Resources.Get(k))
	}
	gauge("heroranker_resource_cap", "Storage capacity per capped resource.")
	for _, k := range model.CappedResources() {
		limit, _ := m.Caps.Limit(k)
		fmt.Fprintf(out, "heroranker_resource_cap{player=%q,resource=%q} %.0f\n", player, k, limit)
	}
	gauge("heroranker_production_per_hour", "Hourly production including hero bonuses.")
	for _, k := range model.AllResources() {
		fmt.Fprintf(out, "heroranker_production_per_hour{player=%q,resource=%q} %.0f\n", player, k, m.ProductionPerHour.Get(k))
	}

	gauge("heroranker_buildings", "Building instances by status.")
	fmt.Fprintf(out, "heroranker_buildings{player=%q,status=%q} %d\n", player, "idle", m.Buildings-m.Upgrading)
	fmt.Fprintf(out, "heroranker_buildings{player=%q,status=%q} %d\n", player, "upgrading", m.Upgrading)
	gauge("heroranker_free_builders", "Builder droids not assigned to an upgrade.")
	fmt.Fprintf(out, "heroranker_free_builders{player=%q} %d\n", player, m.FreeBuilders)
	gauge("heroranker_heroes", "Heroes on the roster.")
	fmt.Fprintf(out, "heroranker_heroes{player=%q} %d\n", player, m.Heroes)

	if idx == nil {
		return
	}
	gauge("heroranker_index_queue_depth", "Index writer backlog.")
	fmt.Fprintf(out, "heroranker_index_queue_depth %d\n", idx.QueueDepth)
	counter("heroranker_index_dropped_total", "Index writes dropped because the queue was full.")
	fmt.Fprintf(out, "heroranker_index_dropped_total{kind=%q} %d\n", "tick", idx.DropTickTotal)
	fmt.Fprintf(out, "heroranker_index_dropped_total{kind=%q} %d\n", "audit", idx.DropAuditTotal)
}
