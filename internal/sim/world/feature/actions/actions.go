package actions

import (
	"fmt"
	"math"

	"heroranker.app/internal/protocol"
	"heroranker.app/internal/sim/catalogs"
	"heroranker.app/internal/sim/tuning"
	"heroranker.app/internal/sim/world/feature/heroes/progression"
	"heroranker.app/internal/sim/world/kernel/model"
	"heroranker.app/internal/sim/world/logic/growth"
	"heroranker.app/internal/sim/world/logic/ids"
	"heroranker.app/internal/sim/world/logic/mathx"
)

// Apply dispatches a to its handler. A failed action returns s unchanged.
func Apply(s model.GameState, cats *catalogs.Catalogs, tune tuning.Tuning, a Action, nowMs int64) (model.GameState, Result) {
	switch a.Kind {
	case KindConstruct:
		return Construct(s, cats, a.BuildingType, a.SlotID, a.BuildingID, nowMs)
	case KindUpgrade:
		return Upgrade(s, cats, a.BuildingID, nowMs)
	case KindSpeedUp:
		return SpeedUp(s, cats, tune, a.BuildingID, nowMs)
	case KindAssignHero:
		return AssignHero(s, a.HeroID, a.BuildingID)
	case KindUnassignHero:
		return UnassignHero(s, a.HeroID)
	case KindRecruitHero:
		return RecruitHero(s, tune, a.Hero, a.HeroID)
	case KindDismissHero:
		return DismissHero(s, a.HeroID)
	case KindSpend:
		if a.Cost == nil {
			return s, fail(protocol.ErrBadRequest, "missing cost")
		}
		return Spend(s, *a.Cost)
	case KindBuyBuilder:
		return BuyBuilderDroid(s, tune)
	case KindUnlockSkin:
		return UnlockSkin(s, cats, a.SkinID)
	case KindApplySkin:
		return ApplySkin(s, cats, a.BuildingID, a.SkinID)
	default:
		return s, fail(protocol.ErrBadRequest, fmt.Sprintf("unknown action kind %q", a.Kind))
	}
}

// Construct places a new level-0 building in slotID and starts its initial construction.
func Construct(s model.GameState, cats *catalogs.Catalogs, typ, slotID, buildingID string, nowMs int64) (model.GameState, Result) {
	def, ok := cats.Building(typ)
	if !ok {
		return s, fail(protocol.ErrInvalidTarget, "unknown building type")
	}
	slot, ok := cats.Slots.ByID[slotID]
	if !ok {
		return s, fail(protocol.ErrInvalidTarget, "unknown slot")
	}
	if cats.IsHQ(typ) {
		if slotID != cats.Slots.CoreSlot {
			return s, fail(protocol.ErrInvalidTarget, "headquarters must use the core slot")
		}
	} else if !slot.Allows(typ) {
		return s, fail(protocol.ErrInvalidTarget, "slot does not accept this building type")
	}
	if s.SlotOccupied(slotID) {
		return s, fail(protocol.ErrConflict, "slot occupied")
	}
	if def.MaxCount > 0 && s.CountType(typ) >= def.MaxCount {
		return s, fail(protocol.ErrLimit, fmt.Sprintf("at most %d %s", def.MaxCount, typ))
	}
	if s.FreeBuilders() == 0 {
		return s, fail(protocol.ErrNoBuilder, "no free builder droid")
	}
	rest, ok := s.Resources.Sub(growth.Cost(def, 0))
	if !ok {
		return s, fail(protocol.ErrNoResource, "insufficient resources")
	}
	if buildingID == "" {
		buildingID = ids.NewBuildingID()
	}
	if s.BuildingIndex(buildingID) >= 0 {
		return s, fail(protocol.ErrConflict, "duplicate building id")
	}

	out := s.Clone()
	out.Resources = rest
	out.Buildings = append(out.Buildings, model.Building{
		ID:         buildingID,
		Type:       typ,
		Level:      0,
		Status:     model.StatusUpgrading,
		FinishTime: finishAt(nowMs, growth.BuildTime(def, 0)),
		ActiveSkin: catalogs.DefaultSkin,
		SlotID:     slotID,
	})
	return out, Result{OK: true, BuildingID: buildingID}
}

// finishAt never returns 0, since an upgrading building must carry a finish time.
func finishAt(nowMs int64, seconds float64) int64 {
	t := nowMs + int64(seconds*1000)
	if t <= 0 {
		return 1
	}
	return t
}

// Upgrade starts the next level of an idle building, paying Cost(def, current level).
func Upgrade(s model.GameState, cats *catalogs.Catalogs, buildingID string, nowMs int64) (model.GameState, Result) {
	i := s.BuildingIndex(buildingID)
	if i < 0 {
		return s, fail(protocol.ErrInvalidTarget, "building not found")
	}
	b := s.Buildings[i]
	def, ok := cats.Building(b.Type)
	if !ok {
		return s, fail(protocol.ErrInvalidTarget, "unknown building type")
	}
	if b.Upgrading() {
		return s, fail(protocol.ErrConflict, "already upgrading")
	}
	if b.Level >= def.MaxLevel {
		return s, fail(protocol.ErrLimit, "max level reached")
	}
	if s.FreeBuilders() == 0 {
		return s, fail(protocol.ErrNoBuilder, "no free builder droid")
	}
	rest, ok := s.Resources.Sub(growth.Cost(def, b.Level))
	if !ok {
		return s, fail(protocol.ErrNoResource, "insufficient resources")
	}

	out := s.Clone()
	out.Resources = rest
	nb := &out.Buildings[i]
	nb.Status = model.StatusUpgrading
	nb.FinishTime = finishAt(nowMs, growth.BuildTime(def, b.Level))
	return out, Result{OK: true, BuildingID: buildingID}
}

// SpeedUpCost is the gem price to finish an upgrade with remainingMs left.
func SpeedUpCost(tune tuning.Tuning, remainingMs int64) float64 {
	if remainingMs <= 0 {
		return 0
	}
	return math.Ceil(float64(remainingMs) / 1000 / tune.SpeedupSecondsPerGem)
}

// SpeedUp pays gems to complete an upgrade immediately.
func SpeedUp(s model.GameState, cats *catalogs.Catalogs, tune tuning.Tuning, buildingID string, nowMs int64) (model.GameState, Result) {
	i := s.BuildingIndex(buildingID)
	if i < 0 {
		return s, fail(protocol.ErrInvalidTarget, "building not found")
	}
	b := s.Buildings[i]
	if !b.Upgrading() {
		return s, fail(protocol.ErrInvalidTarget, "building is not upgrading")
	}
	def, ok := cats.Building(b.Type)
	if !ok {
		return s, fail(protocol.ErrInvalidTarget, "unknown building type")
	}
	rest, ok := s.Resources.Sub(model.ResourceSet{Gems: SpeedUpCost(tune, b.FinishTime-nowMs)})
	if !ok {
		return s, fail(protocol.ErrNoResource, "insufficient gems")
	}
	out := s.Clone()
	out.Resources = rest
	out.Buildings[i] = b.Completed(def.MaxLevel)
	return out, Result{OK: true, BuildingID: buildingID}
}

// AssignHero staffs buildingID with heroID, moving the hero if it worked elsewhere.
func AssignHero(s model.GameState, heroID, buildingID string) (model.GameState, Result) {
	hi := s.HeroIndex(heroID)
	if hi < 0 {
		return s, fail(protocol.ErrInvalidTarget, "hero not found")
	}
	if s.BuildingIndex(buildingID) < 0 {
		return s, fail(protocol.ErrInvalidTarget, "building not found")
	}
	if cur, ok := s.HeroAt(buildingID); ok {
		if cur.ID == heroID {
			return s, Result{OK: true, HeroID: heroID, BuildingID: buildingID}
		}
		return s, fail(protocol.ErrConflict, "building already staffed")
	}
	out := s.Clone()
	out.Heroes[hi].Assign(buildingID)
	return out, Result{OK: true, HeroID: heroID, BuildingID: buildingID}
}

func UnassignHero(s model.GameState, heroID string) (model.GameState, Result) {
	hi := s.HeroIndex(heroID)
	if hi < 0 {
		return s, fail(protocol.ErrInvalidTarget, "hero not found")
	}
	if _, ok := s.Heroes[hi].AssignedTo(); !ok {
		return s, Result{OK: true, HeroID: heroID}
	}
	out := s.Clone()
	out.Heroes[hi].Unassign()
	return out, Result{OK: true, HeroID: heroID}
}

// RecruitHero pays the recruitment fee and adds a fresh level-1 hero.
func RecruitHero(s model.GameState, tune tuning.Tuning, draft *HeroDraft, heroID string) (model.GameState, Result) {
	if draft == nil {
		return s, fail(protocol.ErrBadRequest, "missing hero")
	}
	if !draft.Specialty.Valid() {
		return s, fail(protocol.ErrBadRequest, "bad specialty")
	}
	neg := false
	draft.Powerstats.Map(func(v int) int {
		if v < 0 {
			neg = true
		}
		return v
	})
	if neg {
		return s, fail(protocol.ErrBadRequest, "negative powerstat")
	}
	rest, ok := s.Resources.Sub(model.ResourceSet{Gems: tune.RecruitGemCost})
	if !ok {
		return s, fail(protocol.ErrNoResource, "insufficient gems")
	}
	if heroID == "" {
		heroID = ids.NewHeroID()
	}
	if s.HeroIndex(heroID) >= 0 {
		return s, fail(protocol.ErrConflict, "duplicate hero id")
	}
	out := s.Clone()
	out.Resources = rest
	out.Heroes = append(out.Heroes, model.Hero{
		ID:            heroID,
		Name:          draft.Name,
		Powerstats:    draft.Powerstats,
		Level:         1,
		XPToNextLevel: progression.XPToNext(1),
		Rank:          1,
		Specialty:     draft.Specialty,
	})
	out.TotalHeroes = mathx.MaxInt(out.TotalHeroes, len(s.Heroes)) + 1
	return out, Result{OK: true, HeroID: heroID}
}

// DismissHero removes a hero. totalHeroes is a lifetime counter and is left as is.
func DismissHero(s model.GameState, heroID string) (model.GameState, Result) {
	hi := s.HeroIndex(heroID)
	if hi < 0 {
		return s, fail(protocol.ErrInvalidTarget, "hero not found")
	}
	out := s.Clone()
	out.Heroes = append(out.Heroes[:hi], out.Heroes[hi+1:]...)
	return out, Result{OK: true, HeroID: heroID}
}

// Spend deducts an arbitrary cost for outer flows such as crafting.
func Spend(s model.GameState, cost model.ResourceSet) (model.GameState, Result) {
	for _, k := range model.AllResources() {
		if v := cost.Get(k); v < 0 || !mathx.Finite(v) {
			return s, fail(protocol.ErrBadRequest, "cost must be finite and non-negative")
		}
	}
	rest, ok := s.Resources.Sub(cost)
	if !ok {
		return s, fail(protocol.ErrNoResource, "insufficient resources")
	}
	out := s.Clone()
	out.Resources = rest
	return out, succeed()
}

func BuyBuilderDroid(s model.GameState, tune tuning.Tuning) (model.GameState, Result) {
	if s.BuilderDroids >= tune.MaxBuilderDroids {
		return s, fail(protocol.ErrLimit, "builder droid limit reached")
	}
	rest, ok := s.Resources.Sub(model.ResourceSet{Gems: tune.BuilderDroidGemCost})
	if !ok {
		return s, fail(protocol.ErrNoResource, "insufficient gems")
	}
	out := s.Clone()
	out.Resources = rest
	out.BuilderDroids++
	return out, succeed()
}

func UnlockSkin(s model.GameState, cats *catalogs.Catalogs, skinID string) (model.GameState, Result) {
	skin, ok := cats.Skins.ByID[skinID]
	if !ok {
		return s, fail(protocol.ErrInvalidTarget, "unknown skin")
	}
	if s.SkinUnlocked(skinID) {
		return s, fail(protocol.ErrConflict, "skin already unlocked")
	}
	rest, ok := s.Resources.Sub(model.ResourceSet{Gems: skin.GemCost})
	if !ok {
		return s, fail(protocol.ErrNoResource, "insufficient gems")
	}
	out := s.Clone()
	out.Resources = rest
	out.UnlockedSkins = append(out.UnlockedSkins, skinID)
	return out, succeed()
}

func ApplySkin(s model.GameState, cats *catalogs.Catalogs, buildingID, skinID string) (model.GameState, Result) {
	i := s.BuildingIndex(buildingID)
	if i < 0 {
		return s, fail(protocol.ErrInvalidTarget, "building not found")
	}
	skin, ok := cats.Skins.ByID[skinID]
	if !ok {
		return s, fail(protocol.ErrInvalidTarget, "unknown skin")
	}
	if !s.SkinUnlocked(skinID) {
		return s, fail(protocol.ErrInvalidTarget, "skin locked")
	}
	if !skin.Fits(s.Buildings[i].Type) {
		return s, fail(protocol.ErrInvalidTarget, "skin does not fit this building")
	}
	out := s.Clone()
	out.Buildings[i].ActiveSkin = skinID
	return out, Result{OK: true, BuildingID: buildingID}
}
