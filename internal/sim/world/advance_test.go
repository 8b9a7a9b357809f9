package world

import (
	"math"
	"testing"

	"heroranker.app/internal/sim/catalogs"
	"heroranker.app/internal/sim/tuning"
	"heroranker.app/internal/sim/world/kernel/model"
	"heroranker.app/internal/sim/world/logic/growth"
)

const t0 = int64(1_700_000_000_000)

func loadCats(t *testing.T) *catalogs.Catalogs {
	t.Helper()
	cats, err := catalogs.Load("../../../configs")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	return cats
}

func idle(id, typ, slot string, level int) model.Building {
	return model.Building{ID: id, Type: typ, Level: level, Status: model.StatusIdle, ActiveSkin: "default", SlotID: slot}
}

func upgrading(id, typ, slot string, level int, finish int64) model.Building {
	b := idle(id, typ, slot, level)
	b.Status = model.StatusUpgrading
	b.FinishTime = finish
	return b
}

func newState(buildings ...model.Building) model.GameState {
	all := append([]model.Building{idle("hq", "command_center", "core", 1)}, buildings...)
	return model.GameState{
		SchemaVersion: model.SchemaVersion,
		Resources:     model.ResourceSet{Credits: 1000, Biomass: 500, Nanosteel: 500, Gems: 50},
		Buildings:     all,
		Heroes:        []model.Hero{},
		BuilderDroids: 2,
		UnlockedSkins: []string{"default"},
		LastSaveTime:  t0,
	}
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func TestAdvanceCompletesConstructionAndProducesSameTick(t *testing.T) {
	cats := loadCats(t)
	tune := tuning.Defaults()
	s := newState(upgrading("t1", "trade_hub", "east_1", 0, t0))

	out, rep := Advance(s, cats, tune, t0)
	b := out.Buildings[1]
	if b.Level != 1 || b.Upgrading() || b.FinishTime != 0 {
		t.Fatalf("construction not completed: %+v", b)
	}
	if len(rep.Completed) != 1 || rep.Completed[0] != "t1" {
		t.Fatalf("completed: %v", rep.Completed)
	}
	// 360/h from the hub plus 60/h from the HQ.
	if !near(out.Resources.Credits, 1000+420.0/3600) {
		t.Fatalf("credits: %v", out.Resources.Credits)
	}
	if !near(rep.Produced.Credits, 420.0/3600) {
		t.Fatalf("produced: %+v", rep.Produced)
	}
	if out.LastSaveTime != t0 {
		t.Fatalf("lastSaveTime: %d", out.LastSaveTime)
	}
	if s.Buildings[1].Level != 0 || !s.Buildings[1].Upgrading() {
		t.Fatalf("input modified: %+v", s.Buildings[1])
	}
}

func TestAdvanceNotDueKeepsUpgrading(t *testing.T) {
	cats := loadCats(t)
	s := newState(upgrading("t1", "trade_hub", "east_1", 2, t0+1))
	out, rep := Advance(s, cats, tuning.Defaults(), t0)
	if !out.Buildings[1].Upgrading() || out.Buildings[1].Level != 2 || len(rep.Completed) != 0 {
		t.Fatalf("upgrade finished early: %+v", out.Buildings[1])
	}
	// Mid-upgrade buildings do not produce.
	if !near(rep.Produced.Credits, 60.0/3600) {
		t.Fatalf("produced: %+v", rep.Produced)
	}
}

func TestAdvanceCompletionCappedAtMaxLevel(t *testing.T) {
	cats := loadCats(t)
	def, _ := cats.Building("trade_hub")
	s := newState(upgrading("t1", "trade_hub", "east_1", def.MaxLevel, t0))
	out, _ := Advance(s, cats, tuning.Defaults(), t0)
	if out.Buildings[1].Level != def.MaxLevel {
		t.Fatalf("level past max: %d", out.Buildings[1].Level)
	}
}

func TestAdvanceStorageCompletionRaisesCapSameTick(t *testing.T) {
	cats := loadCats(t)
	tune := tuning.Defaults()
	s := newState(idle("t1", "trade_hub", "east_1", 1), upgrading("v1", "credit_vault", "north_1", 0, t0))
	s.Resources.Credits = tune.BaseCaps.Credits

	out, rep := Advance(s, cats, tune, t0)
	vault, _ := cats.Building("credit_vault")
	if rep.Caps.Credits != tune.BaseCaps.Credits+growth.Capacity(vault, 1) {
		t.Fatalf("caps: %+v", rep.Caps)
	}
	if out.Resources.Credits <= tune.BaseCaps.Credits {
		t.Fatalf("new capacity not applied this tick: %v", out.Resources.Credits)
	}
}

func TestAdvanceNeverExceedsCaps(t *testing.T) {
	cats := loadCats(t)
	tune := tuning.Defaults()
	s := newState(
		idle("t1", "trade_hub", "east_1", 30),
		idle("f1", "bio_farm", "east_2", 30),
		idle("n1", "nanoforge", "west_1", 30),
		idle("g1", "gem_extractor", "east_3", 10),
	)
	s.Resources = model.ResourceSet{Credits: 9990, Biomass: 4990, Nanosteel: 4990, Gems: 1e9}
	now := t0
	for i := 0; i < 200; i++ {
		now += 1000
		var rep TickReport
		s, rep = Advance(s, cats, tune, now)
		for _, k := range model.CappedResources() {
			limit, _ := rep.Caps.Limit(k)
			if s.Resources.Get(k) > limit {
				t.Fatalf("tick %d: %s=%v over cap %v", i, k, s.Resources.Get(k), limit)
			}
		}
	}
	if s.Resources.Credits != tune.BaseCaps.Credits {
		t.Fatalf("credits should sit at cap: %v", s.Resources.Credits)
	}
	if s.Resources.Gems <= 1e9 {
		t.Fatalf("gems must not be capped: %v", s.Resources.Gems)
	}
}

func TestAdvanceSkipsUnknownTypes(t *testing.T) {
	cats := loadCats(t)
	s := newState(upgrading("x1", "castle", "legacy-x1", 1, t0), idle("t1", "trade_hub", "east_1", 1))
	out, rep := Advance(s, cats, tuning.Defaults(), t0)
	if len(rep.Skipped) != 1 || rep.Skipped[0] != "x1" {
		t.Fatalf("skipped: %v", rep.Skipped)
	}
	if out.Buildings[1] != s.Buildings[1] {
		t.Fatalf("unknown building touched: %+v", out.Buildings[1])
	}
	if !near(rep.Produced.Credits, 420.0/3600) {
		t.Fatalf("tick aborted: produced %+v", rep.Produced)
	}
}

func TestAdvanceHeroProgression(t *testing.T) {
	cats := loadCats(t)
	s := newState(idle("t1", "trade_hub", "east_1", 1))
	b := "t1"
	gone := "demolished"
	s.Heroes = []model.Hero{
		{ID: "h1", Level: 1, CurrentXP: 499, XPToNextLevel: 500, Rank: 1, Specialty: model.SpecialtyMilitary,
			Powerstats: model.Powerstats{Intelligence: 40, Strength: 40, Speed: 40, Durability: 40, Power: 40, Combat: 40}, AssignedBuildingID: &b},
		{ID: "h2", Level: 1, XPToNextLevel: 500, Rank: 1, Specialty: model.SpecialtyProd, AssignedBuildingID: &gone},
	}

	out, rep := Advance(s, cats, tuning.Defaults(), t0)
	h1 := out.Heroes[0]
	if h1.Level != 2 || h1.CurrentXP != 0 || h1.XPToNextLevel != 1414 || h1.Powerstats.Strength != 42 {
		t.Fatalf("h1: %+v", h1)
	}
	if len(rep.LevelUps) != 1 || rep.LevelUps[0].HeroID != "h1" {
		t.Fatalf("level ups: %+v", rep.LevelUps)
	}
	if out.Heroes[1].AssignedBuildingID != nil {
		t.Fatalf("h2 should be unassigned: %+v", out.Heroes[1])
	}
	if s.Heroes[1].AssignedBuildingID == nil || s.Heroes[0].Level != 1 {
		t.Fatalf("input heroes modified")
	}
	// Intelligence 40 gives a 4% bonus on the staffed hub.
	if !near(rep.Produced.Credits, (60+math.Floor(360*1.04))/3600) {
		t.Fatalf("produced: %+v", rep.Produced)
	}
}

func TestCatchUp(t *testing.T) {
	cats := loadCats(t)
	tune := tuning.Defaults()
	s := newState(idle("t1", "trade_hub", "east_1", 1), upgrading("v1", "credit_vault", "north_1", 0, t0+1000))
	s.Resources.Credits = 9900
	now := t0 + 2*3600*1000

	out, off := CatchUp(s, cats, tune, now)
	if off.Seconds != 7200 || off.Delta.Credits != 840 {
		t.Fatalf("offline: %+v", off)
	}
	// The vault finished while away, so its capacity counts for the clamp.
	if out.Resources.Credits != 9900+840 {
		t.Fatalf("credits: %v", out.Resources.Credits)
	}
	if out.Buildings[2].Level != 1 || out.Buildings[2].Upgrading() {
		t.Fatalf("vault: %+v", out.Buildings[2])
	}
	if out.LastSaveTime != now {
		t.Fatalf("lastSaveTime: %d", out.LastSaveTime)
	}
}

func TestCatchUpClampsToCapacity(t *testing.T) {
	cats := loadCats(t)
	tune := tuning.Defaults()
	s := newState(idle("t1", "trade_hub", "east_1", 10))
	s.Resources.Credits = 9000
	out, off := CatchUp(s, cats, tune, t0+48*3600*1000)
	if off.Seconds != float64(tune.OfflineMaxSeconds) {
		t.Fatalf("window not clamped: %v", off.Seconds)
	}
	if out.Resources.Credits != tune.BaseCaps.Credits {
		t.Fatalf("credits: %v", out.Resources.Credits)
	}
}

func TestCatchUpShortAbsence(t *testing.T) {
	cats := loadCats(t)
	s := newState(idle("t1", "trade_hub", "east_1", 5))
	out, off := CatchUp(s, cats, tuning.Defaults(), t0+9_999)
	if off.Seconds != 0 || !off.Delta.IsZero() || out.Resources != s.Resources {
		t.Fatalf("short absence produced: %+v", off)
	}
}
