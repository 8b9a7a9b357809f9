package catalogs

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"heroranker.app/internal/sim/world/kernel/model"
)

type Catalogs struct {
	Buildings BuildingCatalog
	Slots     SlotLayout
	Skins     SkinCatalog
}

type Category string

const (
	CategoryHQ         Category = "HQ"
	CategoryProduction Category = "PRODUCTION"
	CategoryStorage    Category = "STORAGE"
	CategoryMilitary   Category = "MILITARY"
	CategoryDefense    Category = "DEFENSE"
	CategoryUtility    Category = "UTILITY"
	CategoryResearch   Category = "RESEARCH"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryHQ, CategoryProduction, CategoryStorage, CategoryMilitary,
		CategoryDefense, CategoryUtility, CategoryResearch:
		return true
	}
	return false
}

type BuildingCatalog struct {
	ByType map[string]BuildingDef
	Types  []string // sorted
	HQType string
	Digest string
}

// BuildingDef is the static growth description of one building type.
type BuildingDef struct {
	Type     string            `json:"type"`
	Name     string            `json:"name"`
	Category Category          `json:"category"`
	MaxLevel int               `json:"max_level"`
	MaxCount int               `json:"max_count,omitempty"` // 0 = unlimited
	BaseCost model.ResourceSet `json:"base_cost"`

	CostGrowth float64 `json:"cost_growth"`
	BaseTime   float64 `json:"base_time"` // seconds
	TimeGrowth float64 `json:"time_growth"`

	BaseProduction float64            `json:"base_production,omitempty"` // per hour
	ProdGrowth     float64            `json:"prod_growth,omitempty"`
	Resource       model.ResourceKind `json:"resource,omitempty"`

	BaseCapacity    float64            `json:"base_capacity,omitempty"`
	CapGrowth       float64            `json:"cap_growth,omitempty"`
	StorageResource model.ResourceKind `json:"storage_resource,omitempty"`
}

func (d BuildingDef) Produces() bool {
	return d.BaseProduction > 0 && d.Resource != ""
}

func (d BuildingDef) Stores() bool {
	return d.BaseCapacity > 0 && d.CapGrowth > 0 && d.StorageResource != ""
}

type SlotLayout struct {
	CoreSlot string    `json:"core_slot"`
	Slots    []SlotDef `json:"slots"`
	ByID     map[string]SlotDef
	Digest   string
}

type SlotDef struct {
	ID      string   `json:"id"`
	X       int      `json:"x"`
	Y       int      `json:"y"`
	Allowed []string `json:"allowed"`
}

func (s SlotDef) Allows(buildingType string) bool {
	for _, t := range s.Allowed {
		if t == buildingType {
			return true
		}
	}
	return false
}

type SkinCatalog struct {
	ByID   map[string]SkinDef
	Digest string
}

type SkinDef struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	BuildingType string  `json:"building_type,omitempty"` // empty = any type
	GemCost      float64 `json:"gem_cost"`
}

func (s SkinDef) Fits(buildingType string) bool {
	return s.BuildingType == "" || s.BuildingType == buildingType
}

// DefaultSkin is always unlocked and fits every building.
const DefaultSkin = "default"

func Load(configDir string) (*Catalogs, error) {
	var c Catalogs

	if err := loadBuildings(filepath.Join(configDir, "buildings.json"), &c.Buildings); err != nil {
		return nil, err
	}
	if err := loadSlots(filepath.Join(configDir, "slots.json"), &c.Slots, &c.Buildings); err != nil {
		return nil, err
	}
	if err := loadSkins(filepath.Join(configDir, "skins.json"), &c.Skins, &c.Buildings); err != nil {
		return nil, err
	}
	return &c, nil
}

// Building looks up a definition by type.
func (c *Catalogs) Building(typ string) (BuildingDef, bool) {
	if c == nil {
		return BuildingDef{}, false
	}
	d, ok := c.Buildings.ByType[typ]
	return d, ok
}

func (c *Catalogs) IsHQ(typ string) bool {
	return c != nil && typ != "" && typ == c.Buildings.HQType
}

// Digests maps catalog names to content digests, advertised to clients on connect.
func (c *Catalogs) Digests() map[string]string {
	return map[string]string{
		"buildings": c.Buildings.Digest,
		"slots":     c.Slots.Digest,
		"skins":     c.Skins.Digest,
	}
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func loadBuildings(path string, out *BuildingCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	var defs []BuildingDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("buildings.json: %w", err)
	}
	out.ByType = map[string]BuildingDef{}
	for _, d := range defs {
		if err := validateBuilding(d); err != nil {
			return fmt.Errorf("buildings.json: %w", err)
		}
		if _, dup := out.ByType[d.Type]; dup {
			return fmt.Errorf("buildings.json: duplicate type %q", d.Type)
		}
		if d.Category == CategoryHQ {
			if out.HQType != "" {
				return fmt.Errorf("buildings.json: more than one HQ (%s, %s)", out.HQType, d.Type)
			}
			out.HQType = d.Type
		}
		out.ByType[d.Type] = d
	}
	if out.HQType == "" {
		return fmt.Errorf("buildings.json: missing HQ definition")
	}

	out.Types = make([]string, 0, len(out.ByType))
	for t := range out.ByType {
		out.Types = append(out.Types, t)
	}
	sort.Strings(out.Types)
	return nil
}

func validateBuilding(d BuildingDef) error {
	if d.Type == "" {
		return fmt.Errorf("empty type")
	}
	if !d.Category.Valid() {
		return fmt.Errorf("%s: bad category %q", d.Type, d.Category)
	}
	if d.MaxLevel < 1 {
		return fmt.Errorf("%s: max_level must be >= 1", d.Type)
	}
	if d.MaxCount < 0 {
		return fmt.Errorf("%s: negative max_count", d.Type)
	}
	if d.CostGrowth <= 0 || d.TimeGrowth <= 0 || d.BaseTime < 0 {
		return fmt.Errorf("%s: growth factors must be > 0", d.Type)
	}
	for _, k := range model.AllResources() {
		if d.BaseCost.Get(k) < 0 {
			return fmt.Errorf("%s: negative base_cost.%s", d.Type, k)
		}
	}
	if d.Resource != "" {
		if !d.Resource.Valid() {
			return fmt.Errorf("%s: unknown resource %q", d.Type, d.Resource)
		}
		if d.ProdGrowth <= 0 {
			return fmt.Errorf("%s: prod_growth must be > 0", d.Type)
		}
	}
	if d.StorageResource != "" {
		if !d.StorageResource.Valid() || d.StorageResource == model.Gems {
			return fmt.Errorf("%s: storage_resource %q is not a capped resource", d.Type, d.StorageResource)
		}
		if d.CapGrowth <= 0 {
			return fmt.Errorf("%s: cap_growth must be > 0", d.Type)
		}
	}
	return nil
}

func loadSlots(path string, out *SlotLayout, buildings *BuildingCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("slots.json: %w", err)
	}
	out.ByID = map[string]SlotDef{}
	for _, s := range out.Slots {
		if s.ID == "" {
			return fmt.Errorf("slots.json: empty slot id")
		}
		if _, dup := out.ByID[s.ID]; dup {
			return fmt.Errorf("slots.json: duplicate slot %q", s.ID)
		}
		for _, t := range s.Allowed {
			if _, ok := buildings.ByType[t]; !ok {
				return fmt.Errorf("slots.json: slot %s allows unknown type %q", s.ID, t)
			}
		}
		out.ByID[s.ID] = s
	}
	if _, ok := out.ByID[out.CoreSlot]; !ok {
		return fmt.Errorf("slots.json: core slot %q not in layout", out.CoreSlot)
	}
	return nil
}

func loadSkins(path string, out *SkinCatalog, buildings *BuildingCatalog) error {
	out.ByID = map[string]SkinDef{}
	raw, err := os.ReadFile(path)
	if err != nil {
		// Skins are cosmetic; a missing file leaves only the default skin.
		if os.IsNotExist(err) {
			out.Digest = sha256Hex(nil)
			out.ByID[DefaultSkin] = SkinDef{ID: DefaultSkin, Name: "Default"}
			return nil
		}
		return err
	}
	out.Digest = sha256Hex(raw)

	var defs []SkinDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("skins.json: %w", err)
	}
	for _, s := range defs {
		if s.ID == "" {
			return fmt.Errorf("skins.json: empty id")
		}
		if s.BuildingType != "" {
			if _, ok := buildings.ByType[s.BuildingType]; !ok {
				return fmt.Errorf("skins.json: skin %s targets unknown type %q", s.ID, s.BuildingType)
			}
		}
		if s.GemCost < 0 {
			return fmt.Errorf("skins.json: skin %s has negative gem_cost", s.ID)
		}
		out.ByID[s.ID] = s
	}
	if _, ok := out.ByID[DefaultSkin]; !ok {
		out.ByID[DefaultSkin] = SkinDef{ID: DefaultSkin, Name: "Default"}
	}
	return nil
}
