package world

import (
	"heroranker.app/internal/sim/world/feature/economy/production"
	"heroranker.app/internal/sim/world/kernel/model"
	"heroranker.app/internal/sim/world/logic/growth"
)

// Metrics is a read-only view of the world loop, updated after every tick.
type Metrics struct {
	Tick        uint64 `json:"tick"`
	Subscribers int    `json:"subscribers"`
	InboxDepth  int    `json:"inbox_depth"`

	StepMS float64 `json:"step_ms"`

	ActionsTotal   uint64 `json:"actions_total"`
	RejectedTotal  uint64 `json:"rejected_total"`
	CompletedTotal uint64 `json:"completed_total"`
	LevelUpsTotal  uint64 `json:"level_ups_total"`
	SnapshotsTotal uint64 `json:"snapshots_total"`
	DroppedTotal   uint64 `json:"snapshots_dropped_total"`

	Resources    model.ResourceSet `json:"resources"`
	Caps         model.Caps        `json:"caps"`
	Buildings    int               `json:"buildings"`
	Upgrading    int               `json:"upgrading"`
	Heroes       int               `json:"heroes"`
	FreeBuilders int               `json:"free_builders"`

	// ProductionPerHour includes hero bonuses.
	ProductionPerHour model.ResourceSet `json:"production_per_hour"`
}

func (w *World) Metrics() Metrics {
	if v := w.metrics.Load(); v != nil {
		return v.(Metrics)
	}
	return Metrics{}
}

func (w *World) publishMetrics(stepMS float64) {
	s := w.cur
	w.metrics.Store(Metrics{
		Tick:              w.tick.Load(),
		Subscribers:       w.subscriberCount(),
		InboxDepth:        len(w.inbox),
		StepMS:            stepMS,
		ActionsTotal:      w.counters.actions,
		RejectedTotal:     w.counters.rejected,
		CompletedTotal:    w.counters.completed,
		LevelUpsTotal:     w.counters.levelUps,
		SnapshotsTotal:    w.counters.snapshots,
		DroppedTotal:      w.counters.dropped,
		Resources:         s.Resources,
		Caps:              growth.StorageCapacity(s.Buildings, w.cats, w.cfg.Tuning.BaseCaps),
		Buildings:         len(s.Buildings),
		Upgrading:         s.UpgradingCount(),
		Heroes:            len(s.Heroes),
		FreeBuilders:      s.FreeBuilders(),
		ProductionPerHour: production.Hourly(s.Buildings, s.Heroes, w.cats, true),
	})
}
