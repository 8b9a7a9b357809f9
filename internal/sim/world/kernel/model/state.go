package model

// SchemaVersion is the save layout produced by this build.
const SchemaVersion = 3

// GameState is the root aggregate persisted as one JSON document.
type GameState struct {
	SchemaVersion int         `json:"schemaVersion"`
	Resources     ResourceSet `json:"resources"`
	Buildings     []Building  `json:"buildings"`
	Heroes        []Hero      `json:"heroes"`
	BuilderDroids int         `json:"builderDroids"`
	UnlockedSkins []string    `json:"unlockedSkins"`
	TotalHeroes   int         `json:"totalHeroes"` // monotonic, never decremented
	LastSaveTime  int64       `json:"lastSaveTime"`
}

// Clone returns a deep copy; ticks and actions never share slices with their input.
func (s GameState) Clone() GameState {
	out := s
	if s.Buildings != nil {
		out.Buildings = append([]Building(nil), s.Buildings...)
	}
	if s.Heroes != nil {
		out.Heroes = make([]Hero, len(s.Heroes))
		for i, h := range s.Heroes {
			if h.AssignedBuildingID != nil {
				id := *h.AssignedBuildingID
				h.AssignedBuildingID = &id
			}
			out.Heroes[i] = h
		}
	}
	if s.UnlockedSkins != nil {
		out.UnlockedSkins = append([]string(nil), s.UnlockedSkins...)
	}
	return out
}

func (s GameState) BuildingIndex(id string) int {
	for i := range s.Buildings {
		if s.Buildings[i].ID == id {
			return i
		}
	}
	return -1
}

func (s GameState) HeroIndex(id string) int {
	for i := range s.Heroes {
		if s.Heroes[i].ID == id {
			return i
		}
	}
	return -1
}

// HeroAt returns the hero assigned to buildingID, if any.
func (s GameState) HeroAt(buildingID string) (Hero, bool) {
	for _, h := range s.Heroes {
		if id, ok := h.AssignedTo(); ok && id == buildingID {
			return h, true
		}
	}
	return Hero{}, false
}

// SlotOccupied reports whether a building already sits in slotID.
func (s GameState) SlotOccupied(slotID string) bool {
	for _, b := range s.Buildings {
		if b.SlotID == slotID {
			return true
		}
	}
	return false
}

func (s GameState) CountType(typ string) int {
	n := 0
	for _, b := range s.Buildings {
		if b.Type == typ {
			n++
		}
	}
	return n
}

func (s GameState) UpgradingCount() int {
	n := 0
	for _, b := range s.Buildings {
		if b.Upgrading() {
			n++
		}
	}
	return n
}

// FreeBuilders is the number of additional upgrades that may start now.
func (s GameState) FreeBuilders() int {
	n := s.BuilderDroids - s.UpgradingCount()
	if n < 0 {
		return 0
	}
	return n
}

func (s GameState) SkinUnlocked(id string) bool {
	for _, v := range s.UnlockedSkins {
		if v == id {
			return true
		}
	}
	return false
}
