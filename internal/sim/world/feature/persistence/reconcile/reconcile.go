// Package reconcile repairs a deserialized save of any older or damaged shape into a valid
// current-schema GameState. It never fails: corrupt entities are dropped, missing fields are
// filled, and an unparsable save falls back to the default state.
package reconcile

import (
	"encoding/json"
	"fmt"

	"heroranker.app/internal/clock"
	"heroranker.app/internal/sim/catalogs"
	"heroranker.app/internal/sim/tuning"
	"heroranker.app/internal/sim/world/kernel/model"
	"heroranker.app/internal/sim/world/logic/ids"
	"heroranker.app/internal/sim/world/logic/mathx"
)

// Document is a save decoded into generic JSON values.
type Document map[string]any

// Parse decodes raw into a Document. Anything other than a JSON object is an error.
func Parse(raw []byte) (Document, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("parse save: %w", err)
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("parse save: top level is %T, want object", v)
	}
	return Document(m), nil
}

// ToDocument re-encodes a state into generic form, as a persisted save would be read back.
func ToDocument(s model.GameState) Document {
	raw, err := json.Marshal(s)
	if err != nil {
		return Document{}
	}
	doc, err := Parse(raw)
	if err != nil {
		return Document{}
	}
	return doc
}

type Reconciler struct {
	Catalogs *catalogs.Catalogs
	Tuning   tuning.Tuning
	Clock    clock.Clock
	NewID    ids.Generator

	// Coin breaks ties in specialty inference: true means PROD, false MILITARY.
	Coin func(heroID string) bool
}

func New(cats *catalogs.Catalogs, tune tuning.Tuning) *Reconciler {
	return &Reconciler{
		Catalogs: cats,
		Tuning:   tune,
		Clock:    clock.RealClock{},
		NewID:    ids.Random,
		Coin:     HashCoin,
	}
}

// HashCoin is a fair coin keyed on the hero id, so the same save always infers the same specialty.
func HashCoin(heroID string) bool {
	return mathx.HashString(0, heroID)&1 == 0
}

type Note struct {
	Step   string `json:"step"`
	Detail string `json:"detail"`
}

// Report describes what a reconcile pass changed.
type Report struct {
	FromVersion int      `json:"from_version"`
	Applied     []string `json:"applied"`
	Notes       []Note   `json:"notes,omitempty"`

	// Fresh is set when the input could not be used at all and the default state was returned.
	Fresh      bool   `json:"fresh,omitempty"`
	ParseError string `json:"parse_error,omitempty"`
}

// Changed reports whether the pass repaired anything.
func (r Report) Changed() bool { return len(r.Notes) > 0 || r.Fresh }

type pass struct {
	doc  Document
	now  int64
	step string
	rep  *Report
}

func (p *pass) note(format string, args ...any) {
	p.rep.Notes = append(p.rep.Notes, Note{Step: p.step, Detail: fmt.Sprintf(format, args...)})
}

// Reconcile returns the repaired state for doc. doc itself is not modified.
func (r *Reconciler) Reconcile(doc Document) model.GameState {
	s, _ := r.ReconcileReport(doc)
	return s
}

func (r *Reconciler) ReconcileReport(doc Document) (state model.GameState, rep Report) {
	defer func() {
		if v := recover(); v != nil {
			state, rep = r.fallback()
			rep.Notes = append(rep.Notes, Note{Step: "recover", Detail: fmt.Sprint(v)})
		}
	}()
	return r.run(doc)
}

// fallback is the default state, or a bare one if even that cannot be built.
func (r *Reconciler) fallback() (state model.GameState, rep Report) {
	defer func() {
		if v := recover(); v != nil {
			state = model.GameState{
				SchemaVersion: model.SchemaVersion,
				Resources:     r.Tuning.StartingResources,
				Buildings:     []model.Building{},
				Heroes:        []model.Hero{},
				BuilderDroids: r.Tuning.MinBuilderDroids,
				UnlockedSkins: []string{catalogs.DefaultSkin},
				LastSaveTime:  r.nowMs(),
			}
			rep = Report{}
		}
		rep.Fresh = true
	}()
	return r.run(Document{})
}

func (r *Reconciler) run(doc Document) (model.GameState, Report) {
	p := &pass{
		doc: make(Document, len(doc)),
		now: r.nowMs(),
		rep: &Report{},
	}
	for k, v := range doc {
		p.doc[k] = v
	}
	from, ok := whole(p.doc["schemaVersion"])
	if !ok || from < 0 {
		from = 0
	}
	p.rep.FromVersion = from

	for _, st := range Steps() {
		if st.Since > 0 && from >= st.Since {
			continue
		}
		p.step = st.Name
		st.Apply(r, p)
		p.rep.Applied = append(p.rep.Applied, st.Name)
	}
	p.doc["schemaVersion"] = float64(model.SchemaVersion)
	return decode(p.doc), *p.rep
}

func (r *Reconciler) nowMs() int64 {
	if r.Clock == nil {
		return clock.NowMs(clock.RealClock{})
	}
	return clock.NowMs(r.Clock)
}

func (r *Reconciler) newID(prefix string) string {
	if r.NewID == nil {
		return ids.Random(prefix)
	}
	return r.NewID(prefix)
}

func (r *Reconciler) coin(heroID string) bool {
	if r.Coin == nil {
		return HashCoin(heroID)
	}
	return r.Coin(heroID)
}

// Default is the initial state of a new player.
func (r *Reconciler) Default() model.GameState {
	return r.Reconcile(Document{})
}

// Load parses and reconciles raw. Unparsable input yields the default state with Fresh set.
func (r *Reconciler) Load(raw []byte) (model.GameState, Report) {
	doc, err := Parse(raw)
	if err != nil {
		s, rep := r.ReconcileReport(Document{})
		rep.Fresh = true
		rep.ParseError = err.Error()
		return s, rep
	}
	return r.ReconcileReport(doc)
}
