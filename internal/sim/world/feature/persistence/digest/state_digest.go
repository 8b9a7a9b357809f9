package digest

import (
	"crypto/sha256"
	"encoding/hex"

	"heroranker.app/internal/sim/world/kernel/model"
)

// StateDigest hashes every persisted field of s in slice order. Two states with the same
// digest serialize to the same save.
func StateDigest(s model.GameState) string {
	h := sha256.New()
	var tmp [8]byte

	writeI64(h, &tmp, int64(s.SchemaVersion))
	digestResources(h, &tmp, s.Resources)
	digestBuildings(h, &tmp, s.Buildings)
	digestHeroes(h, &tmp, s.Heroes)
	writeI64(h, &tmp, int64(s.BuilderDroids))
	writeU64(h, &tmp, uint64(len(s.UnlockedSkins)))
	for _, id := range s.UnlockedSkins {
		writeString(h, &tmp, id)
	}
	writeI64(h, &tmp, int64(s.TotalHeroes))
	writeI64(h, &tmp, s.LastSaveTime)

	return hex.EncodeToString(h.Sum(nil))
}

func digestResources(h hashWriter, tmp *[8]byte, r model.ResourceSet) {
	for _, k := range model.AllResources() {
		writeF64(h, tmp, r.Get(k))
	}
}

func digestBuildings(h hashWriter, tmp *[8]byte, buildings []model.Building) {
	writeU64(h, tmp, uint64(len(buildings)))
	for _, b := range buildings {
		writeString(h, tmp, b.ID)
		writeString(h, tmp, b.Type)
		writeI64(h, tmp, int64(b.Level))
		writeString(h, tmp, string(b.Status))
		writeI64(h, tmp, b.FinishTime)
		writeString(h, tmp, b.ActiveSkin)
		writeString(h, tmp, b.SlotID)
	}
}

func digestHeroes(h hashWriter, tmp *[8]byte, heroes []model.Hero) {
	writeU64(h, tmp, uint64(len(heroes)))
	for _, hero := range heroes {
		writeString(h, tmp, hero.ID)
		writeString(h, tmp, hero.Name)
		p := hero.Powerstats
		for _, v := range []int{p.Intelligence, p.Strength, p.Speed, p.Durability, p.Power, p.Combat} {
			writeI64(h, tmp, int64(v))
		}
		writeI64(h, tmp, int64(hero.Level))
		writeF64(h, tmp, hero.CurrentXP)
		writeF64(h, tmp, hero.XPToNextLevel)
		writeI64(h, tmp, int64(hero.Rank))
		writeString(h, tmp, string(hero.Specialty))
		id, assigned := hero.AssignedTo()
		h.Write([]byte{BoolByte(assigned)})
		writeString(h, tmp, id)
	}
}
