package production

import (
	"math"

	"heroranker.app/internal/sim/catalogs"
	"heroranker.app/internal/sim/world/kernel/model"
	"heroranker.app/internal/sim/world/logic/growth"
	"heroranker.app/internal/sim/world/logic/mathx"
)

const secondsPerHour = 3600

// Hourly sums the per-hour output of every idle, built building. Staffing heroes apply their
// bonus when withHeroes is set; unknown building types are skipped.
func Hourly(buildings []model.Building, heroes []model.Hero, cats *catalogs.Catalogs, withHeroes bool) model.ResourceSet {
	staff := map[string]*model.Hero{}
	if withHeroes {
		for i := range heroes {
			if id, ok := heroes[i].AssignedTo(); ok {
				if _, taken := staff[id]; !taken {
					staff[id] = &heroes[i]
				}
			}
		}
	}
	var total model.ResourceSet
	for _, b := range buildings {
		if !b.Built() {
			continue
		}
		def, ok := cats.Building(b.Type)
		if !ok {
			continue
		}
		total = total.Add(growth.ProductionRate(def, b.Level, staff[b.ID]))
	}
	return total
}

// PerTick is the production delta for one tick of tickSeconds, hero bonuses included.
func PerTick(buildings []model.Building, heroes []model.Hero, cats *catalogs.Catalogs, tickSeconds float64) model.ResourceSet {
	return Hourly(buildings, heroes, cats, true).Scale(tickSeconds / secondsPerHour)
}

// ApplyCapped adds delta to resources. Capped kinds end at min(cur+delta, cap), so a
// counter above a shrunken cap is pulled down to it. Negative delta components are ignored.
func ApplyCapped(resources, delta model.ResourceSet, caps model.Caps) model.ResourceSet {
	out := resources
	for _, k := range model.AllResources() {
		d := delta.Get(k)
		if d < 0 || math.IsNaN(d) {
			d = 0
		}
		out.Set(k, resources.Get(k)+d)
	}
	return growth.Clamp(out, caps)
}

// Window bounds offline catch-up in seconds.
type Window struct {
	MinSeconds int
	MaxSeconds int
}

// OfflineResult is a bulk delta and the clamped number of seconds it covers.
type OfflineResult struct {
	Delta   model.ResourceSet `json:"delta"`
	Seconds float64           `json:"seconds"`
}

// ElapsedSeconds applies the window to the time between lastSaveMs and nowMs.
// Below the minimum it returns 0. Sub-second remainders count.
func (w Window) ElapsedSeconds(lastSaveMs, nowMs int64) float64 {
	elapsed := float64(nowMs-lastSaveMs) / 1000
	if elapsed < float64(w.MinSeconds) || elapsed <= 0 {
		return 0
	}
	return math.Min(elapsed, float64(w.MaxSeconds))
}

// Offline computes production for the time since state.LastSaveTime. Buildings count when idle
// or when their upgrade is already due by nowMs. Hero bonuses are not applied, and the delta is
// not clamped: the caller clamps against live capacity when committing it.
func Offline(state model.GameState, cats *catalogs.Catalogs, w Window, nowMs int64) OfflineResult {
	seconds := w.ElapsedSeconds(state.LastSaveTime, nowMs)
	if seconds == 0 {
		return OfflineResult{}
	}
	var hourly model.ResourceSet
	for _, b := range state.Buildings {
		if b.Upgrading() && !b.DueAt(nowMs) {
			continue
		}
		if b.Level <= 0 && !b.Upgrading() {
			continue
		}
		def, ok := cats.Building(b.Type)
		if !ok {
			continue
		}
		hourly = hourly.Add(growth.ProductionRate(def, b.Level, nil))
	}
	delta := hourly.Scale(seconds / secondsPerHour)
	for _, k := range model.AllResources() {
		delta.Set(k, mathx.Floor(delta.Get(k)))
	}
	return OfflineResult{Delta: delta, Seconds: seconds}
}
