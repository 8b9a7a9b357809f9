package model

type BuildingStatus string

const (
	StatusIdle      BuildingStatus = "IDLE"
	StatusUpgrading BuildingStatus = "UPGRADING"
)

// Building is one placed instance of a catalog building type.
// Level 0 means the initial construction has not finished yet.
type Building struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Level      int            `json:"level"`
	Status     BuildingStatus `json:"status"`
	FinishTime int64          `json:"finishTime,omitempty"` // epoch ms, set iff UPGRADING
	ActiveSkin string         `json:"activeSkin,omitempty"`
	SlotID     string         `json:"slotId"`
}

func (b Building) Upgrading() bool { return b.Status == StatusUpgrading }

// Built reports whether the building is finished (level > 0) and not mid-upgrade.
func (b Building) Built() bool { return b.Status == StatusIdle && b.Level > 0 }

// DueAt reports whether an upgrade in progress has finished by nowMs.
func (b Building) DueAt(nowMs int64) bool {
	return b.Status == StatusUpgrading && b.FinishTime <= nowMs
}

// Completed finishes the upgrade in progress: level 0 becomes 1, any other level goes up by
// one, never past maxLevel.
func (b Building) Completed(maxLevel int) Building {
	b.Level++
	if b.Level < 1 {
		b.Level = 1
	}
	if maxLevel > 0 && b.Level > maxLevel {
		b.Level = maxLevel
	}
	b.Status = StatusIdle
	b.FinishTime = 0
	return b
}
