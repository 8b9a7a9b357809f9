package actions

import (
	"heroranker.app/internal/sim/world/kernel/model"
)

type Kind string

const (
	KindConstruct    Kind = "CONSTRUCT"
	KindUpgrade      Kind = "UPGRADE"
	KindSpeedUp      Kind = "SPEED_UP"
	KindAssignHero   Kind = "ASSIGN_HERO"
	KindUnassignHero Kind = "UNASSIGN_HERO"
	KindRecruitHero  Kind = "RECRUIT_HERO"
	KindDismissHero  Kind = "DISMISS_HERO"
	KindSpend        Kind = "SPEND"
	KindBuyBuilder   Kind = "BUY_BUILDER"
	KindUnlockSkin   Kind = "UNLOCK_SKIN"
	KindApplySkin    Kind = "APPLY_SKIN"
)

// Kinds lists every action kind in a stable order.
func Kinds() []Kind {
	return []Kind{
		KindConstruct, KindUpgrade, KindSpeedUp,
		KindAssignHero, KindUnassignHero, KindRecruitHero, KindDismissHero,
		KindSpend, KindBuyBuilder, KindUnlockSkin, KindApplySkin,
	}
}

// Action is one player command. Ids for created entities are carried on the action,
// so replaying a recorded action reproduces the same state.
type Action struct {
	Kind Kind `json:"kind"`

	BuildingID   string `json:"building_id,omitempty"`
	BuildingType string `json:"building_type,omitempty"`
	SlotID       string `json:"slot_id,omitempty"`
	HeroID       string `json:"hero_id,omitempty"`
	SkinID       string `json:"skin_id,omitempty"`

	Hero *HeroDraft         `json:"hero,omitempty"`
	Cost *model.ResourceSet `json:"cost,omitempty"`
}

// HeroDraft is a recruited hero as delivered by the recruitment flow.
type HeroDraft struct {
	Name       string           `json:"name"`
	Powerstats model.Powerstats `json:"powerstats"`
	Specialty  model.Specialty  `json:"specialty"`
}

type Result struct {
	OK      bool   `json:"ok"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`

	// BuildingID/HeroID echo the entity an action created or touched.
	BuildingID string `json:"building_id,omitempty"`
	HeroID     string `json:"hero_id,omitempty"`
}

func succeed() Result { return Result{OK: true} }

func fail(code, msg string) Result {
	return Result{Code: code, Message: msg}
}
