package main

import (
	"encoding/json"
	"testing"

	"golang.org/x/time/rate"

	"heroranker.app/internal/logging"
	"heroranker.app/internal/protocol"
	"heroranker.app/internal/sim/catalogs"
	"heroranker.app/internal/sim/world/feature/actions"
	"heroranker.app/internal/sim/world/kernel/model"
)

func loadCats(t *testing.T) *catalogs.Catalogs {
	t.Helper()
	cats, err := catalogs.Load("../../configs")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	return cats
}

func state(res model.ResourceSet, bs ...model.Building) model.GameState {
	return model.GameState{SchemaVersion: model.SchemaVersion, Resources: res, Buildings: bs, BuilderDroids: 1}
}

func TestPickUpgradeCheapestAffordable(t *testing.T) {
	cats := loadCats(t)
	s := state(model.ResourceSet{Credits: 1000, Nanosteel: 1000},
		model.Building{ID: "hq", Type: "command_center", Level: 1, Status: model.StatusIdle},
		model.Building{ID: "th", Type: "trade_hub", Level: 1, Status: model.StatusIdle},
		model.Building{ID: "bf", Type: "bio_farm", Level: 1, Status: model.StatusIdle},
	)
	a, ok := pickUpgrade(s, cats)
	if !ok || a.Kind != actions.KindUpgrade || a.BuildingID != "bf" {
		t.Fatalf("pick: %+v ok=%v", a, ok)
	}
}

func TestPickUpgradeNothingToDo(t *testing.T) {
	cats := loadCats(t)
	busy := state(model.ResourceSet{Credits: 1e6, Nanosteel: 1e6},
		model.Building{ID: "th", Type: "trade_hub", Level: 1, Status: model.StatusUpgrading, FinishTime: 1},
		model.Building{ID: "bf", Type: "bio_farm", Level: 1, Status: model.StatusIdle},
	)
	if _, ok := pickUpgrade(busy, cats); ok {
		t.Fatalf("no free builder")
	}
	poor := state(model.ResourceSet{Credits: 1},
		model.Building{ID: "th", Type: "trade_hub", Level: 1, Status: model.StatusIdle},
	)
	if _, ok := pickUpgrade(poor, cats); ok {
		t.Fatalf("nothing affordable")
	}
	maxed := state(model.ResourceSet{Credits: 1e12, Nanosteel: 1e12},
		model.Building{ID: "ge", Type: "gem_extractor", Level: 10, Status: model.StatusIdle},
	)
	if _, ok := pickUpgrade(maxed, cats); ok {
		t.Fatalf("max level building picked")
	}
}

func TestBotWaitsForResultBeforeNextAct(t *testing.T) {
	b := &bot{cats: loadCats(t), log: logging.Discard(), limiter: rate.NewLimiter(rate.Inf, 1)}
	frame, _ := json.Marshal(protocol.StateMsg{
		Type:  protocol.TypeState,
		Tick:  3,
		State: state(model.ResourceSet{Credits: 1000}, model.Building{ID: "th", Type: "trade_hub", Level: 1, Status: model.StatusIdle}),
	})

	act, ok := b.handle(frame)
	if !ok || act.Type != protocol.TypeAct || act.ReqID == "" {
		t.Fatalf("first state: %+v ok=%v", act, ok)
	}
	if err := protocol.ValidateAct(mustJSON(t, act)); err != nil {
		t.Fatalf("bot produced an invalid ACT: %v", err)
	}
	if _, ok := b.handle(frame); ok {
		t.Fatalf("sent a second act while one is pending")
	}

	result, _ := json.Marshal(protocol.ActResultMsg{Type: protocol.TypeActResult, ReqID: act.ReqID, OK: true})
	if _, ok := b.handle(result); ok {
		t.Fatalf("ACT_RESULT must not trigger a reply")
	}
	if next, ok := b.handle(frame); !ok || next.ReqID == act.ReqID {
		t.Fatalf("expected a fresh act after the result: %+v ok=%v", next, ok)
	}
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return b
}
