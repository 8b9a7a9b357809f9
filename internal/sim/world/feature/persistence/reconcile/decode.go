package reconcile

import (
	"heroranker.app/internal/sim/world/kernel/model"
)

// decode reads a Document whose sections the steps have already normalized.
func decode(doc Document) model.GameState {
	var s model.GameState
	s.SchemaVersion, _ = whole(doc["schemaVersion"])

	res, _ := object(doc["resources"])
	for _, k := range model.AllResources() {
		v, _ := number(res[string(k)])
		s.Resources.Set(k, v)
	}

	s.Buildings = []model.Building{}
	for _, b := range buildingMaps(doc) {
		var out model.Building
		out.ID, _ = text(b["id"])
		out.Type, _ = text(b["type"])
		out.Level, _ = whole(b["level"])
		status, _ := text(b["status"])
		out.Status = model.BuildingStatus(status)
		out.FinishTime, _ = millis(b["finishTime"])
		out.ActiveSkin, _ = text(b["activeSkin"])
		out.SlotID, _ = text(b["slotId"])
		s.Buildings = append(s.Buildings, out)
	}

	s.Heroes = []model.Hero{}
	heroes, _ := list(doc["heroes"])
	for _, e := range heroes {
		h, ok := object(e)
		if !ok {
			continue
		}
		var out model.Hero
		out.ID, _ = text(h["id"])
		out.Name, _ = text(h["name"])
		stats, _ := object(h["powerstats"])
		out.Powerstats.Intelligence, _ = whole(stats["intelligence"])
		out.Powerstats.Strength, _ = whole(stats["strength"])
		out.Powerstats.Speed, _ = whole(stats["speed"])
		out.Powerstats.Durability, _ = whole(stats["durability"])
		out.Powerstats.Power, _ = whole(stats["power"])
		out.Powerstats.Combat, _ = whole(stats["combat"])
		out.Level, _ = whole(h["level"])
		out.CurrentXP, _ = number(h["currentXp"])
		out.XPToNextLevel, _ = number(h["xpToNextLevel"])
		out.Rank, _ = whole(h["rank"])
		spec, _ := text(h["specialty"])
		out.Specialty = model.Specialty(spec)
		if b, ok := text(h["assignedBuildingId"]); ok {
			out.Assign(b)
		}
		s.Heroes = append(s.Heroes, out)
	}

	s.BuilderDroids, _ = whole(doc["builderDroids"])
	s.UnlockedSkins = []string{}
	skins, _ := list(doc["unlockedSkins"])
	for _, v := range skins {
		if id, ok := text(v); ok {
			s.UnlockedSkins = append(s.UnlockedSkins, id)
		}
	}
	s.TotalHeroes, _ = whole(doc["totalHeroes"])
	s.LastSaveTime, _ = millis(doc["lastSaveTime"])
	return s
}
