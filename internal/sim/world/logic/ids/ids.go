package ids

import (
	"strings"

	"github.com/google/uuid"
)

const (
	BuildingPrefix = "bld_"
	HeroPrefix     = "hero_"
	SessionPrefix  = "sess_"
)

// Generator returns a fresh unique id for the given prefix.
type Generator func(prefix string) string

// Random is the production generator backed by random (v4) UUIDs.
func Random(prefix string) string {
	return prefix + uuid.NewString()
}

func NewBuildingID() string { return Random(BuildingPrefix) }

func NewHeroID() string { return Random(HeroPrefix) }

func NewSessionID() string { return Random(SessionPrefix) }

// HasPrefix reports whether id is prefix followed by a well-formed UUID.
func HasPrefix(prefix, id string) bool {
	if !strings.HasPrefix(id, prefix) {
		return false
	}
	_, err := uuid.Parse(id[len(prefix):])
	return err == nil
}
