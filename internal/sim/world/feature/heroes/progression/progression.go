package progression

import (
	"math"

	"heroranker.app/internal/sim/world/kernel/model"
	"heroranker.app/internal/sim/world/logic/mathx"
)

const (
	MaxRank     = 5
	StatGrowth  = 1.05
	RankEvery   = 10
	xpCurveBase = 500
)

// XPToNext is the experience needed to leave level.
func XPToNext(level int) float64 {
	return mathx.Floor(xpCurveBase * math.Pow(float64(level), 1.5))
}

// XPPerTick is what a hero earns per tick from a building of the given level.
func XPPerTick(buildingLevel int) float64 {
	return float64(mathx.MaxInt(1, buildingLevel))
}

// RankFor is the tier implied by level alone, used when a save lacks a rank.
func RankFor(level int) int {
	return mathx.MinInt(MaxRank, 1+level/RankEvery)
}

// GainXP adds xp and resolves every level-up it pays for.
func GainXP(h model.Hero, xp float64) (model.Hero, int) {
	if xp > 0 {
		h.CurrentXP += xp
	}
	if h.Level < 1 {
		h.Level = 1
	}
	if h.XPToNextLevel <= 0 {
		h.XPToNextLevel = XPToNext(h.Level)
	}
	levels := 0
	for h.CurrentXP >= h.XPToNextLevel {
		h.CurrentXP -= h.XPToNextLevel
		h.Level++
		h.XPToNextLevel = XPToNext(h.Level)
		h.Powerstats = h.Powerstats.Map(scaleStat)
		if h.Level%RankEvery == 0 && h.Rank < MaxRank {
			h.Rank++
		}
		levels++
	}
	return h, levels
}

func scaleStat(v int) int {
	return int(mathx.Ceil(float64(v) * StatGrowth))
}

// LevelUp records one hero crossing a level threshold during a tick.
type LevelUp struct {
	HeroID string `json:"hero_id"`
	Level  int    `json:"level"`
	Rank   int    `json:"rank"`
}

// Advance runs one tick of progression. Heroes whose building no longer exists are unassigned;
// heroes on idle, built buildings earn XP. The input slice is not modified.
func Advance(heroes []model.Hero, buildings []model.Building) ([]model.Hero, []LevelUp) {
	if len(heroes) == 0 {
		return heroes, nil
	}
	byID := make(map[string]model.Building, len(buildings))
	for _, b := range buildings {
		byID[b.ID] = b
	}
	out := make([]model.Hero, len(heroes))
	var ups []LevelUp
	for i, h := range heroes {
		out[i] = h
		id, ok := h.AssignedTo()
		if !ok {
			continue
		}
		b, exists := byID[id]
		if !exists {
			out[i].Unassign()
			continue
		}
		if !b.Built() {
			continue
		}
		next, n := GainXP(h, XPPerTick(b.Level))
		out[i] = next
		if n > 0 {
			ups = append(ups, LevelUp{HeroID: h.ID, Level: next.Level, Rank: next.Rank})
		}
	}
	return out, ups
}
