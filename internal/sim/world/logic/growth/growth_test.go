package growth

import (
	"math"
	"testing"

	"heroranker.app/internal/sim/catalogs"
	"heroranker.app/internal/sim/world/kernel/model"
)

func loadCatalogs(t *testing.T) *catalogs.Catalogs {
	t.Helper()
	cats, err := catalogs.Load("../../../../../configs")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	return cats
}

func TestCostConcrete(t *testing.T) {
	def := catalogs.BuildingDef{BaseCost: model.ResourceSet{Credits: 100}, CostGrowth: 1.65}
	want := []float64{100, 165, 272}
	for lvl, w := range want {
		got := Cost(def, lvl)
		if got != (model.ResourceSet{Credits: w}) {
			t.Fatalf("Cost(def,%d)=%+v want credits=%v", lvl, got, w)
		}
	}
}

func TestCostLevelZeroIsBaseAndMonotonic(t *testing.T) {
	cats := loadCatalogs(t)
	for _, typ := range cats.Buildings.Types {
		def := cats.Buildings.ByType[typ]
		if Cost(def, 0) != def.BaseCost {
			t.Fatalf("%s: Cost(0)=%+v want %+v", typ, Cost(def, 0), def.BaseCost)
		}
		if def.CostGrowth < 1 {
			continue
		}
		for n := 0; n < def.MaxLevel; n++ {
			a, b := Cost(def, n), Cost(def, n+1)
			for _, k := range model.AllResources() {
				if b.Get(k) < a.Get(k) {
					t.Fatalf("%s: cost.%s decreased %v -> %v at level %d", typ, k, a.Get(k), b.Get(k), n)
				}
			}
		}
	}
}

func TestBuildTime(t *testing.T) {
	def := catalogs.BuildingDef{BaseTime: 10, TimeGrowth: 1.55}
	cases := map[int]float64{0: 0, 1: 10, 2: 20, 3: 24, 4: 37}
	for lvl, want := range cases {
		if got := BuildTime(def, lvl); got != want {
			t.Fatalf("BuildTime(def,%d)=%v want %v", lvl, got, want)
		}
	}
}

func TestProductionRate(t *testing.T) {
	def := catalogs.BuildingDef{
		Category:       catalogs.CategoryProduction,
		BaseProduction: 360,
		ProdGrowth:     1.2,
		Resource:       model.Credits,
	}
	if got := ProductionRate(def, 1, nil); got.Credits != 360 {
		t.Fatalf("level 1: %+v", got)
	}
	if got := ProductionRate(def, 0, nil); got.Credits != 360 {
		t.Fatalf("level 0 uses exponent 0: %+v", got)
	}
	if got := ProductionRate(def, 3, nil); got.Credits != 518 {
		t.Fatalf("level 3: %+v", got)
	}

	prod := model.Hero{Specialty: model.SpecialtyProd, Powerstats: model.Powerstats{Intelligence: 50}}
	if got := ProductionRate(def, 1, &prod); got.Credits != 450 {
		t.Fatalf("PROD hero: %+v", got)
	}
	mil := model.Hero{Specialty: model.SpecialtyMilitary, Powerstats: model.Powerstats{Intelligence: 100}}
	if got := ProductionRate(def, 1, &mil); got.Credits != 396 {
		t.Fatalf("MILITARY hero: %+v", got)
	}

	hq := def
	hq.Category = catalogs.CategoryHQ
	if got := ProductionRate(hq, 1, &prod); got.Credits != 378 {
		t.Fatalf("PROD bonus must only apply to PRODUCTION buildings: %+v", got)
	}

	none := catalogs.BuildingDef{Category: catalogs.CategoryMilitary}
	if got := ProductionRate(none, 5, &prod); !got.IsZero() {
		t.Fatalf("non-producer: %+v", got)
	}
}

func TestStorageCapacity(t *testing.T) {
	cats := loadCatalogs(t)
	base := model.Caps{Credits: 10000, Biomass: 5000, Nanosteel: 5000}

	if got := StorageCapacity(nil, cats, base); got != base {
		t.Fatalf("empty base: %+v", got)
	}

	vault := model.Building{ID: "v", Type: "credit_vault", Level: 1, Status: model.StatusIdle}
	got := StorageCapacity([]model.Building{vault}, cats, base)
	if got.Credits != 15000 || got.Biomass != 5000 {
		t.Fatalf("vault L1: %+v", got)
	}

	prev := got.Credits
	for lvl := 2; lvl <= 5; lvl++ {
		vault.Level = lvl
		c := StorageCapacity([]model.Building{vault}, cats, base)
		if c.Credits < prev {
			t.Fatalf("cap decreased at level %d: %v < %v", lvl, c.Credits, prev)
		}
		prev = c.Credits
	}

	vault.Status = model.StatusUpgrading
	vault.FinishTime = 1
	if got := StorageCapacity([]model.Building{vault}, cats, base); got != base {
		t.Fatalf("upgrading storage must not contribute: %+v", got)
	}

	site := model.Building{ID: "s", Type: "bio_silo", Level: 0, Status: model.StatusIdle}
	ghost := model.Building{ID: "g", Type: "no_such", Level: 3, Status: model.StatusIdle}
	if got := StorageCapacity([]model.Building{site, ghost}, cats, base); got != base {
		t.Fatalf("level 0 and unknown types must not contribute: %+v", got)
	}
}

func TestClampLeavesGems(t *testing.T) {
	r := model.ResourceSet{Credits: 20000, Biomass: 10, Nanosteel: 6000, Gems: 1e9}
	got := Clamp(r, model.Caps{Credits: 10000, Biomass: 5000, Nanosteel: 5000})
	want := model.ResourceSet{Credits: 10000, Biomass: 10, Nanosteel: 5000, Gems: 1e9}
	if got != want {
		t.Fatalf("Clamp=%+v want %+v", got, want)
	}
	if _, capped := (model.Caps{}).Limit(model.Gems); capped {
		t.Fatalf("gems must be uncapped")
	}
	if l, _ := (model.Caps{}).Limit(model.Gems); !math.IsInf(l, 1) {
		t.Fatalf("gems limit: %v", l)
	}
}
