// Package growth holds the pure level-scaling formulas for building costs, build times,
// production and storage. Every result is floored to a whole number.
package growth

import (
	"math"

	"heroranker.app/internal/sim/catalogs"
	"heroranker.app/internal/sim/world/kernel/model"
	"heroranker.app/internal/sim/world/logic/mathx"
)

// Cost is the price of leaving level (building at level 0 means constructing it).
func Cost(def catalogs.BuildingDef, level int) model.ResourceSet {
	var out model.ResourceSet
	for _, k := range model.AllResources() {
		base := def.BaseCost.Get(k)
		if base == 0 {
			continue
		}
		out.Set(k, mathx.FloorPow(base, def.CostGrowth, float64(level)))
	}
	return out
}

// BuildTime returns the upgrade duration in seconds when starting from level.
// Levels below 3 ramp linearly (0 at level 0); above that the curve is exponential.
// The two regimes do not meet smoothly at level 3.
func BuildTime(def catalogs.BuildingDef, level int) float64 {
	if level < 3 {
		return def.BaseTime * float64(mathx.MaxInt(level, 0))
	}
	return mathx.FloorPow(def.BaseTime, def.TimeGrowth, float64(level-1))
}

// ProductionRate is the hourly output of one building. hero may be nil.
func ProductionRate(def catalogs.BuildingDef, level int, hero *model.Hero) model.ResourceSet {
	var out model.ResourceSet
	if !def.Produces() {
		return out
	}
	amount := mathx.FloorPow(def.BaseProduction, def.ProdGrowth, float64(mathx.MaxInt(0, level-1)))
	if hero != nil {
		amount = mathx.Floor(amount * HeroBonus(def, *hero))
	}
	out.Set(def.Resource, amount)
	return out
}

// HeroBonus is the production multiplier a hero grants to the building it staffs.
func HeroBonus(def catalogs.BuildingDef, h model.Hero) float64 {
	bonus := 1 + float64(h.Powerstats.Intelligence)/1000
	if def.Category == catalogs.CategoryProduction && h.Specialty == model.SpecialtyProd {
		bonus += 0.2
	}
	return bonus
}

// Capacity is the storage one finished building adds to its resource.
func Capacity(def catalogs.BuildingDef, level int) float64 {
	if !def.Stores() || level <= 0 {
		return 0
	}
	return mathx.FloorPow(def.BaseCapacity, def.CapGrowth, float64(level-1))
}

// StorageCapacity sums base caps and every idle, built storage building.
// Buildings mid-upgrade and unknown types contribute nothing.
func StorageCapacity(buildings []model.Building, cats *catalogs.Catalogs, base model.Caps) model.Caps {
	caps := base
	for _, b := range buildings {
		if !b.Built() {
			continue
		}
		def, ok := cats.Building(b.Type)
		if !ok || !def.Stores() {
			continue
		}
		caps.Raise(def.StorageResource, Capacity(def, b.Level))
	}
	return caps
}

// Clamp limits capped resources to caps. Gems pass through.
func Clamp(r model.ResourceSet, caps model.Caps) model.ResourceSet {
	for _, k := range model.CappedResources() {
		limit, _ := caps.Limit(k)
		r.Set(k, math.Min(r.Get(k), limit))
	}
	return r
}
