package reconcile

import (
	"sort"

	"heroranker.app/internal/sim/catalogs"
	"heroranker.app/internal/sim/world/feature/heroes/progression"
	"heroranker.app/internal/sim/world/kernel/model"
	"heroranker.app/internal/sim/world/logic/ids"
	"heroranker.app/internal/sim/world/logic/mathx"
)

// Step is one named transform of a reconcile pass.
type Step struct {
	Name string
	// Since is the schema version whose layout this step migrates to; it is skipped for saves
	// already at or past it. Zero marks a repair that runs on every load.
	Since int
	Apply func(r *Reconciler, p *pass)
}

// Steps is the ordered pipeline. New schema changes append here.
func Steps() []Step {
	return []Step{
		{Name: "flat-resources", Since: 2, Apply: migrateFlatResources},
		{Name: "resources", Apply: repairResources},
		{Name: "scalars", Apply: repairScalars},
		{Name: "buildings", Apply: repairBuildings},
		{Name: "building-positions", Since: 3, Apply: migratePositions},
		{Name: "slots", Apply: assignSlots},
		{Name: "heroes", Apply: repairHeroes},
		{Name: "headquarters", Apply: restoreHeadquarters},
	}
}

// v1 saves kept the resource counters at the top level.
func migrateFlatResources(_ *Reconciler, p *pass) {
	if _, ok := object(p.doc["resources"]); ok {
		return
	}
	res := map[string]any{}
	for _, k := range model.AllResources() {
		if v, ok := p.doc[string(k)]; ok {
			res[string(k)] = v
			delete(p.doc, string(k))
		}
	}
	if len(res) > 0 {
		p.doc["resources"] = res
		p.note("moved %d top-level counters into resources", len(res))
	}
}

func repairResources(r *Reconciler, p *pass) {
	saved, _ := object(p.doc["resources"])
	base := r.Tuning.StartingResources
	out := make(map[string]any, 4)
	for _, k := range model.AllResources() {
		raw, present := saved[string(k)]
		v, ok := number(raw)
		switch {
		case !ok:
			v = base.Get(k)
			if present {
				p.note("%s: unusable value %v, reset to %v", k, raw, v)
			}
		case v < 0:
			p.note("%s: negative value %v clamped to 0", k, v)
			v = 0
		}
		out[string(k)] = v
	}
	p.doc["resources"] = out
}

func repairScalars(r *Reconciler, p *pass) {
	total, ok := whole(p.doc["totalHeroes"])
	if !ok || total < 0 {
		total = 0
	}
	p.doc["totalHeroes"] = float64(total)

	// Counts above max_builder_droids are kept; the limit only gates new purchases.
	droids, ok := whole(p.doc["builderDroids"])
	if !ok || droids < r.Tuning.MinBuilderDroids {
		if ok {
			p.note("builderDroids %d raised to %d", droids, r.Tuning.MinBuilderDroids)
		}
		droids = r.Tuning.MinBuilderDroids
	}
	p.doc["builderDroids"] = float64(droids)

	if skins, ok := list(p.doc["unlockedSkins"]); ok {
		seen := map[string]bool{}
		out := []any{}
		for _, v := range skins {
			s, ok := text(v)
			if !ok || seen[s] {
				continue
			}
			seen[s] = true
			out = append(out, s)
		}
		if !seen[catalogs.DefaultSkin] {
			out = append([]any{catalogs.DefaultSkin}, out...)
		}
		p.doc["unlockedSkins"] = out
	} else {
		p.doc["unlockedSkins"] = []any{catalogs.DefaultSkin}
	}

	if _, ok := list(p.doc["heroes"]); !ok {
		p.doc["heroes"] = []any{}
	}
	if _, ok := list(p.doc["buildings"]); !ok {
		p.doc["buildings"] = []any{}
	}

	last, ok := millis(p.doc["lastSaveTime"])
	if !ok {
		last = p.now
	}
	p.doc["lastSaveTime"] = float64(last)
}

func repairBuildings(r *Reconciler, p *pass) {
	raw, _ := list(p.doc["buildings"])
	seen := map[string]bool{}
	counts := map[string]int{}
	kept := make([]map[string]any, 0, len(raw))

	for i, e := range raw {
		m, ok := object(e)
		if !ok {
			p.note("dropped building #%d: not an object", i)
			continue
		}
		typ, _ := text(m["type"])
		def, ok := r.Catalogs.Building(typ)
		if !ok {
			p.note("dropped building #%d: unknown type %q", i, typ)
			continue
		}
		lvl, ok := whole(m["level"])
		if !ok {
			p.note("dropped building #%d (%s): level %v is not a number", i, typ, m["level"])
			continue
		}

		b := cloneMap(m)
		id, ok := text(m["id"])
		if !ok {
			id = r.newID(ids.BuildingPrefix)
			b["id"] = id
			p.note("building #%d (%s): assigned id %s", i, typ, id)
		}
		if seen[id] {
			p.note("dropped building %s: duplicate id", id)
			continue
		}
		if def.MaxCount > 0 && counts[typ] >= def.MaxCount {
			p.note("dropped building %s: more than %d %s", id, def.MaxCount, typ)
			continue
		}

		if lvl < 0 {
			lvl = 0
		}
		if lvl > def.MaxLevel {
			p.note("building %s: level %d clamped to %d", id, lvl, def.MaxLevel)
			lvl = def.MaxLevel
		}
		status, _ := text(m["status"])
		finish, finOK := millis(m["finishTime"])
		if status == string(model.StatusUpgrading) && finOK && lvl < def.MaxLevel {
			b["status"] = string(model.StatusUpgrading)
			b["finishTime"] = float64(finish)
		} else {
			if lvl == 0 {
				p.note("dropped building %s: level 0 without a construction in progress", id)
				continue
			}
			if status == string(model.StatusUpgrading) {
				p.note("building %s: upgrade without a usable finish time cancelled", id)
			}
			b["status"] = string(model.StatusIdle)
			delete(b, "finishTime")
		}
		b["level"] = float64(lvl)
		if _, ok := text(m["activeSkin"]); !ok {
			b["activeSkin"] = catalogs.DefaultSkin
		}

		seen[id] = true
		counts[typ]++
		kept = append(kept, b)
	}

	kept = limitUpgrades(p, kept)
	setBuildings(p.doc, kept)
}

// limitUpgrades keeps the earliest-finishing upgrades that fit the builder count. The rest
// revert to idle; a cancelled initial construction removes the building.
func limitUpgrades(p *pass, bs []map[string]any) []map[string]any {
	droids, _ := whole(p.doc["builderDroids"])
	var upgrading []int
	for i, b := range bs {
		if b["status"] == string(model.StatusUpgrading) {
			upgrading = append(upgrading, i)
		}
	}
	if len(upgrading) <= droids {
		return bs
	}
	sort.SliceStable(upgrading, func(a, b int) bool {
		fa, _ := number(bs[upgrading[a]]["finishTime"])
		fb, _ := number(bs[upgrading[b]]["finishTime"])
		return fa < fb
	})
	drop := map[int]bool{}
	for _, i := range upgrading[droids:] {
		b := bs[i]
		if lvl, _ := whole(b["level"]); lvl == 0 {
			drop[i] = true
			p.note("dropped building %v: construction exceeds builder capacity", b["id"])
			continue
		}
		b["status"] = string(model.StatusIdle)
		delete(b, "finishTime")
		p.note("building %v: upgrade exceeds builder capacity, reverted", b["id"])
	}
	out := bs[:0:0]
	for i, b := range bs {
		if !drop[i] {
			out = append(out, b)
		}
	}
	return out
}

// v2 saves placed buildings by grid coordinate instead of slot id.
func migratePositions(r *Reconciler, p *pass) {
	bs := buildingMaps(p.doc)
	occupied := occupiedSlots(bs)
	for _, b := range bs {
		x, okX := whole(b["x"])
		y, okY := whole(b["y"])
		delete(b, "x")
		delete(b, "y")
		if _, has := text(b["slotId"]); has || !okX || !okY {
			continue
		}
		typ, _ := text(b["type"])
		for _, s := range r.Catalogs.Slots.Slots {
			if s.X != x || s.Y != y || occupied[s.ID] || !r.slotFits(s, typ) {
				continue
			}
			b["slotId"] = s.ID
			occupied[s.ID] = true
			p.note("building %v: position %d,%d mapped to slot %s", b["id"], x, y, s.ID)
			break
		}
	}
}

func occupiedSlots(bs []map[string]any) map[string]bool {
	occupied := map[string]bool{}
	for _, b := range bs {
		if s, ok := text(b["slotId"]); ok {
			occupied[s] = true
		}
	}
	return occupied
}

func (r *Reconciler) slotFits(s catalogs.SlotDef, typ string) bool {
	if r.Catalogs.IsHQ(typ) {
		return s.ID == r.Catalogs.Slots.CoreSlot
	}
	return s.Allows(typ)
}

// freeSlot returns the first unoccupied layout slot that accepts typ, or a placeholder.
func (r *Reconciler) freeSlot(typ, buildingID string, occupied map[string]bool) string {
	for _, s := range r.Catalogs.Slots.Slots {
		if !occupied[s.ID] && r.slotFits(s, typ) {
			return s.ID
		}
	}
	return PlaceholderSlot(buildingID)
}

// PlaceholderSlot is the synthetic slot given to a building no layout slot can hold.
func PlaceholderSlot(buildingID string) string {
	return "legacy-" + buildingID
}

func assignSlots(r *Reconciler, p *pass) {
	bs := buildingMaps(p.doc)
	occupied := map[string]bool{}
	var pending []map[string]any
	for _, b := range bs {
		s, ok := text(b["slotId"])
		if !ok || occupied[s] {
			pending = append(pending, b)
			continue
		}
		occupied[s] = true
	}
	for _, b := range pending {
		typ, _ := text(b["type"])
		id, _ := text(b["id"])
		prev, _ := text(b["slotId"])
		slot := r.freeSlot(typ, id, occupied)
		occupied[slot] = true
		b["slotId"] = slot
		if prev != "" {
			p.note("building %s: slot %s already taken, moved to %s", id, prev, slot)
		} else {
			p.note("building %s: placed in %s", id, slot)
		}
	}
}

var statKeys = []string{"intelligence", "strength", "speed", "durability", "power", "combat"}

func repairHeroes(r *Reconciler, p *pass) {
	raw, _ := list(p.doc["heroes"])
	buildings := map[string]bool{}
	for _, b := range buildingMaps(p.doc) {
		if id, ok := text(b["id"]); ok {
			buildings[id] = true
		}
	}
	staffed := map[string]bool{}
	seen := map[string]bool{}
	out := make([]any, 0, len(raw))

	for i, e := range raw {
		m, ok := object(e)
		if !ok {
			p.note("dropped hero #%d: not an object", i)
			continue
		}
		id, ok := text(m["id"])
		if !ok {
			id = r.newID(ids.HeroPrefix)
			p.note("hero #%d: assigned id %s", i, id)
		}
		if seen[id] {
			p.note("dropped hero %s: duplicate id", id)
			continue
		}
		seen[id] = true

		h := map[string]any{"id": id}
		if name, ok := text(m["name"]); ok {
			h["name"] = name
		}

		statsIn, _ := object(m["powerstats"])
		stats := make(map[string]any, len(statKeys))
		for _, k := range statKeys {
			v, ok := whole(statsIn[k])
			if !ok || v < 0 {
				v = 0
			}
			stats[k] = float64(v)
		}
		h["powerstats"] = stats

		level, ok := whole(m["level"])
		if !ok || level < 1 {
			level = 1
		}
		h["level"] = float64(level)

		xp, ok := number(m["currentXp"])
		if !ok || xp < 0 {
			xp = 0
		}
		h["currentXp"] = xp

		next, ok := number(m["xpToNextLevel"])
		if !ok || next <= 0 {
			next = progression.XPToNext(level)
		}
		h["xpToNextLevel"] = next

		rank, ok := whole(m["rank"])
		if !ok || rank < 1 {
			rank = progression.RankFor(level)
		}
		h["rank"] = float64(mathx.MinInt(rank, progression.MaxRank))

		spec, _ := text(m["specialty"])
		if !model.Specialty(spec).Valid() {
			inferred := r.inferSpecialty(id, stats)
			p.note("hero %s: specialty inferred as %s", id, inferred)
			spec = string(inferred)
		}
		h["specialty"] = spec

		h["assignedBuildingId"] = nil
		if b, ok := text(m["assignedBuildingId"]); ok {
			switch {
			case !buildings[b]:
				p.note("hero %s: assigned building %s no longer exists", id, b)
			case staffed[b]:
				p.note("hero %s: building %s already staffed, unassigned", id, b)
			default:
				staffed[b] = true
				h["assignedBuildingId"] = b
			}
		}
		out = append(out, h)
	}
	p.doc["heroes"] = out

	if total, _ := whole(p.doc["totalHeroes"]); total < len(out) {
		p.note("totalHeroes %d raised to %d", total, len(out))
		p.doc["totalHeroes"] = float64(len(out))
	}
}

// inferSpecialty never yields RESEARCH; that specialty only arrives through recruitment.
func (r *Reconciler) inferSpecialty(heroID string, stats map[string]any) model.Specialty {
	intel, _ := whole(stats["intelligence"])
	str, _ := whole(stats["strength"])
	switch {
	case intel > 70:
		return model.SpecialtyProd
	case str > 70:
		return model.SpecialtyMilitary
	case r.coin(heroID):
		return model.SpecialtyProd
	default:
		return model.SpecialtyMilitary
	}
}

func restoreHeadquarters(r *Reconciler, p *pass) {
	hq := r.Catalogs.Buildings.HQType
	bs := buildingMaps(p.doc)
	for _, b := range bs {
		if b["type"] == hq {
			return
		}
	}
	core := r.Catalogs.Slots.CoreSlot
	occupied := occupiedSlots(bs)
	for _, b := range bs {
		if b["slotId"] != core {
			continue
		}
		typ, _ := text(b["type"])
		id, _ := text(b["id"])
		slot := r.freeSlot(typ, id, occupied)
		occupied[slot] = true
		b["slotId"] = slot
		p.note("building %s: moved out of the core slot to %s", id, slot)
	}
	id := r.newID(ids.BuildingPrefix)
	bs = append(bs, map[string]any{
		"id":         id,
		"type":       hq,
		"level":      float64(1),
		"status":     string(model.StatusIdle),
		"activeSkin": catalogs.DefaultSkin,
		"slotId":     core,
	})
	setBuildings(p.doc, bs)
	p.note("headquarters %s restored in %s", id, core)
}
