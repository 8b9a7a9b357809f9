package model

type Specialty string

const (
	SpecialtyProd     Specialty = "PROD"
	SpecialtyMilitary Specialty = "MILITARY"
	SpecialtyResearch Specialty = "RESEARCH"
)

func (s Specialty) Valid() bool {
	switch s {
	case SpecialtyProd, SpecialtyMilitary, SpecialtyResearch:
		return true
	}
	return false
}

// Powerstats are the six integer hero attributes.
type Powerstats struct {
	Intelligence int `json:"intelligence"`
	Strength     int `json:"strength"`
	Speed        int `json:"speed"`
	Durability   int `json:"durability"`
	Power        int `json:"power"`
	Combat       int `json:"combat"`
}

// Map applies f to every attribute.
func (p Powerstats) Map(f func(int) int) Powerstats {
	return Powerstats{
		Intelligence: f(p.Intelligence),
		Strength:     f(p.Strength),
		Speed:        f(p.Speed),
		Durability:   f(p.Durability),
		Power:        f(p.Power),
		Combat:       f(p.Combat),
	}
}

type Hero struct {
	ID            string     `json:"id"`
	Name          string     `json:"name,omitempty"`
	Powerstats    Powerstats `json:"powerstats"`
	Level         int        `json:"level"`
	CurrentXP     float64    `json:"currentXp"`
	XPToNextLevel float64    `json:"xpToNextLevel"`
	Rank          int        `json:"rank"`
	Specialty     Specialty  `json:"specialty"`

	// AssignedBuildingID is a back-reference, not ownership. nil when unassigned.
	AssignedBuildingID *string `json:"assignedBuildingId"`
}

func (h Hero) AssignedTo() (string, bool) {
	if h.AssignedBuildingID == nil || *h.AssignedBuildingID == "" {
		return "", false
	}
	return *h.AssignedBuildingID, true
}

func (h *Hero) Assign(buildingID string) {
	id := buildingID
	h.AssignedBuildingID = &id
}

func (h *Hero) Unassign() { h.AssignedBuildingID = nil }
