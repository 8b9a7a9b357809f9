package world

import (
	"heroranker.app/internal/sim/catalogs"
	"heroranker.app/internal/sim/tuning"
	"heroranker.app/internal/sim/world/feature/economy/production"
	"heroranker.app/internal/sim/world/feature/heroes/progression"
	"heroranker.app/internal/sim/world/kernel/model"
	"heroranker.app/internal/sim/world/logic/growth"
)

// TickReport summarizes one Advance.
type TickReport struct {
	NowMs     int64                 `json:"now_ms"`
	Completed []string              `json:"completed,omitempty"`
	Skipped   []string              `json:"skipped,omitempty"`
	Produced  model.ResourceSet     `json:"produced"`
	Caps      model.Caps            `json:"caps"`
	LevelUps  []progression.LevelUp `json:"level_ups,omitempty"`
}

// CompleteUpgrades finishes every upgrade due by nowMs. Buildings of unknown type are
// returned in skipped and left untouched.
func CompleteUpgrades(s model.GameState, cats *catalogs.Catalogs, nowMs int64) (out model.GameState, completed, skipped []string) {
	out = s.Clone()
	for i, b := range out.Buildings {
		def, ok := cats.Building(b.Type)
		if !ok {
			skipped = append(skipped, b.ID)
			continue
		}
		if b.DueAt(nowMs) {
			out.Buildings[i] = b.Completed(def.MaxLevel)
			completed = append(completed, b.ID)
		}
	}
	return out, completed, skipped
}

// Advance is one tick: complete due upgrades, recompute caps from the result, apply capped
// production, then progress staffed heroes. s is not modified.
func Advance(s model.GameState, cats *catalogs.Catalogs, tune tuning.Tuning, nowMs int64) (model.GameState, TickReport) {
	out, completed, skipped := CompleteUpgrades(s, cats, nowMs)
	rep := TickReport{NowMs: nowMs, Completed: completed, Skipped: skipped}

	rep.Caps = growth.StorageCapacity(out.Buildings, cats, tune.BaseCaps)
	before := out.Resources
	delta := production.PerTick(out.Buildings, out.Heroes, cats, tune.TickSeconds())
	out.Resources = production.ApplyCapped(out.Resources, delta, rep.Caps)
	rep.Produced = diff(out.Resources, before)

	out.Heroes, rep.LevelUps = progression.Advance(out.Heroes, out.Buildings)
	out.LastSaveTime = nowMs
	return out, rep
}

// OfflineWindow is the catch-up window configured in tune.
func OfflineWindow(tune tuning.Tuning) production.Window {
	return production.Window{MinSeconds: tune.OfflineMinSeconds, MaxSeconds: tune.OfflineMaxSeconds}
}

// CatchUp credits production for the time since s.LastSaveTime. The delta is computed on the
// state as saved, then clamped to the capacity after due upgrades complete.
func CatchUp(s model.GameState, cats *catalogs.Catalogs, tune tuning.Tuning, nowMs int64) (model.GameState, production.OfflineResult) {
	off := production.Offline(s, cats, OfflineWindow(tune), nowMs)
	out, _, _ := CompleteUpgrades(s, cats, nowMs)
	caps := growth.StorageCapacity(out.Buildings, cats, tune.BaseCaps)
	out.Resources = production.ApplyCapped(out.Resources, off.Delta, caps)
	if nowMs > out.LastSaveTime {
		out.LastSaveTime = nowMs
	}
	return out, off
}

func diff(a, b model.ResourceSet) model.ResourceSet {
	var d model.ResourceSet
	for _, k := range model.AllResources() {
		d.Set(k, a.Get(k)-b.Get(k))
	}
	return d
}
