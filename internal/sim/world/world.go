package world

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"heroranker.app/internal/clock"
	"heroranker.app/internal/persistence/snapshot"
	"heroranker.app/internal/protocol"
	"heroranker.app/internal/sim/catalogs"
	"heroranker.app/internal/sim/tuning"
	"heroranker.app/internal/sim/world/feature/actions"
	"heroranker.app/internal/sim/world/feature/economy/production"
	"heroranker.app/internal/sim/world/feature/persistence/digest"
	"heroranker.app/internal/sim/world/kernel/model"
	"heroranker.app/internal/sim/world/logic/ids"
)

var ErrStopped = errors.New("world stopped")

type Config struct {
	PlayerID string
	Tuning   tuning.Tuning

	// StartTick is the number of the first tick Run or StepOnce simulates.
	StartTick uint64

	Clock  clock.Clock
	Logger logrus.FieldLogger
}

// EntryKind tells replay how to re-apply a logged entry.
type EntryKind string

const (
	EntryTick    EntryKind = "tick"
	EntryCatchUp EntryKind = "catchup"
)

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

type AuditLogger interface {
	WriteAudit(entry AuditEntry) error
}

// TickLogEntry is enough to re-run a tick: the actions applied before it, its clock reading and
// the digest of the resulting state.
type TickLogEntry struct {
	Tick    uint64           `json:"tick"`
	Kind    EntryKind        `json:"kind"`
	NowMs   int64            `json:"now_ms"`
	Actions []RecordedAction `json:"actions,omitempty"`
	Digest  string           `json:"digest"`
}

type RecordedAction struct {
	Action actions.Action `json:"action"`
	Code   string         `json:"code,omitempty"`
}

type AuditEntry struct {
	Tick       uint64            `json:"tick"`
	AtMs       int64             `json:"at_ms"`
	PlayerID   string            `json:"player_id"`
	Action     actions.Kind      `json:"action"`
	OK         bool              `json:"ok"`
	Code       string            `json:"code,omitempty"`
	BuildingID string            `json:"building_id,omitempty"`
	HeroID     string            `json:"hero_id,omitempty"`
	Spent      model.ResourceSet `json:"spent"`
}

// Frame is what subscribers see after each tick.
type Frame struct {
	Tick   uint64          `json:"tick"`
	State  model.GameState `json:"state"`
	Report TickReport      `json:"report"`
}

type submission struct {
	action actions.Action
	resp   chan actions.Result
}

type snapshotReq struct {
	resp chan snapshotResp
}

type snapshotResp struct {
	tick uint64
	err  error
}

// World owns one player's GameState. The state is only mutated on the goroutine running Run
// (or by StepOnce/CatchUp when Run is not running); other goroutines read committed copies.
type World struct {
	cfg  Config
	cats *catalogs.Catalogs
	log  logrus.FieldLogger

	cur model.GameState

	tick      atomic.Uint64
	committed atomic.Value // model.GameState
	metrics   atomic.Value // Metrics

	inbox    chan submission
	admin    chan snapshotReq
	stop     chan struct{}
	stopOnce sync.Once

	subsMu  sync.Mutex
	subs    map[uint64]chan Frame
	nextSub uint64

	tickLogger   TickLogger
	auditLogger  AuditLogger
	snapshotSink chan<- snapshot.Save

	counters counters
}

type counters struct {
	actions   uint64
	rejected  uint64
	completed uint64
	levelUps  uint64
	snapshots uint64
	dropped   uint64
}

func New(cfg Config, cats *catalogs.Catalogs, state model.GameState) (*World, error) {
	if cats == nil {
		return nil, errors.New("world: catalogs required")
	}
	if err := cfg.Tuning.Validate(); err != nil {
		return nil, err
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.RealClock{}
	}
	if cfg.Logger == nil {
		l := logrus.New()
		l.SetLevel(logrus.WarnLevel)
		cfg.Logger = l
	}
	w := &World{
		cfg:   cfg,
		cats:  cats,
		log:   cfg.Logger.WithField("player", cfg.PlayerID),
		cur:   state.Clone(),
		inbox: make(chan submission, 256),
		admin: make(chan snapshotReq, 8),
		stop:  make(chan struct{}),
		subs:  map[uint64]chan Frame{},
	}
	w.tick.Store(cfg.StartTick)
	w.committed.Store(w.cur)
	w.publishMetrics(0)
	return w, nil
}

func (w *World) SetTickLogger(l TickLogger)              { w.tickLogger = l }
func (w *World) SetAuditLogger(l AuditLogger)            { w.auditLogger = l }
func (w *World) SetSnapshotSink(ch chan<- snapshot.Save) { w.snapshotSink = ch }
func (w *World) Catalogs() *catalogs.Catalogs            { return w.cats }
func (w *World) Tuning() tuning.Tuning                   { return w.cfg.Tuning }
func (w *World) PlayerID() string                        { return w.cfg.PlayerID }

// CurrentTick is the number of the next tick to simulate.
func (w *World) CurrentTick() uint64 { return w.tick.Load() }

// State returns a copy of the last committed state.
func (w *World) State() model.GameState {
	return w.committed.Load().(model.GameState).Clone()
}

func (w *World) Run(ctx context.Context) error {
	interval := time.Duration(w.cfg.Tuning.TickDurationMs) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer w.Stop()

	var pending []submission
	var snapReqs []snapshotReq
	for {
		select {
		case <-ctx.Done():
			w.reject(pending)
			return ctx.Err()
		case <-w.stop:
			w.reject(pending)
			return nil
		case sub := <-w.inbox:
			pending = append(pending, sub)
		case req := <-w.admin:
			snapReqs = append(snapReqs, req)
		case <-ticker.C:
			w.step(clock.NowMs(w.cfg.Clock), pending)
			pending = pending[:0]
			w.handleSnapshotRequests(snapReqs)
			snapReqs = snapReqs[:0]
		}
	}
}

func (w *World) Stop() { w.stopOnce.Do(func() { close(w.stop) }) }

func (w *World) reject(pending []submission) {
	for _, sub := range pending {
		sub.resp <- actions.Result{Code: protocol.ErrStale, Message: "world stopped"}
	}
}

// Submit queues a for the next tick and waits for its result.
func (w *World) Submit(ctx context.Context, a actions.Action) (actions.Result, error) {
	sub := submission{action: a, resp: make(chan actions.Result, 1)}
	select {
	case w.inbox <- sub:
	case <-w.stop:
		return actions.Result{}, ErrStopped
	case <-ctx.Done():
		return actions.Result{}, ctx.Err()
	}
	select {
	case res := <-sub.resp:
		return res, nil
	case <-w.stop:
		return actions.Result{}, ErrStopped
	case <-ctx.Done():
		return actions.Result{}, ctx.Err()
	}
}

// StepOnce applies acts and runs one tick at nowMs. Not safe to call concurrently with Run.
func (w *World) StepOnce(nowMs int64, acts ...actions.Action) (tick uint64, stateDigest string, results []actions.Result) {
	subs := make([]submission, len(acts))
	for i, a := range acts {
		subs[i] = submission{action: a, resp: make(chan actions.Result, 1)}
	}
	tick = w.tick.Load()
	stateDigest = w.step(nowMs, subs)
	results = make([]actions.Result, len(subs))
	for i, sub := range subs {
		results[i] = <-sub.resp
	}
	return tick, stateDigest, results
}

// CatchUp credits offline production up to nowMs. Call it before Run starts.
func (w *World) CatchUp(nowMs int64) production.OfflineResult {
	next, off := CatchUp(w.cur, w.cats, w.cfg.Tuning, nowMs)
	w.cur = next
	d := digest.StateDigest(w.cur)
	if w.tickLogger != nil {
		if err := w.tickLogger.WriteTick(TickLogEntry{Tick: w.tick.Load(), Kind: EntryCatchUp, NowMs: nowMs, Digest: d}); err != nil {
			w.log.WithError(err).Warn("tick log write failed")
		}
	}
	w.committed.Store(w.cur)
	w.publishMetrics(0)
	return off
}

// withIDs fills in ids for entities the action creates so that the recorded
// action replays to the same state.
func withIDs(a actions.Action) actions.Action {
	switch a.Kind {
	case actions.KindConstruct:
		if a.BuildingID == "" {
			a.BuildingID = ids.NewBuildingID()
		}
	case actions.KindRecruitHero:
		if a.HeroID == "" {
			a.HeroID = ids.NewHeroID()
		}
	}
	return a
}

func (w *World) step(nowMs int64, subs []submission) string {
	start := time.Now()
	tick := w.tick.Load()

	recorded := make([]RecordedAction, 0, len(subs))
	for _, sub := range subs {
		a := withIDs(sub.action)
		before := w.cur.Resources
		next, res := actions.Apply(w.cur, w.cats, w.cfg.Tuning, a, nowMs)
		w.cur = next
		w.counters.actions++
		if !res.OK {
			w.counters.rejected++
		}
		recorded = append(recorded, RecordedAction{Action: a, Code: res.Code})
		w.audit(tick, nowMs, a, res, diff(before, w.cur.Resources))
		sub.resp <- res
	}

	next, rep := Advance(w.cur, w.cats, w.cfg.Tuning, nowMs)
	w.cur = next
	w.counters.completed += uint64(len(rep.Completed))
	w.counters.levelUps += uint64(len(rep.LevelUps))
	for _, up := range rep.LevelUps {
		w.log.WithFields(logrus.Fields{"tick": tick, "hero": up.HeroID, "level": up.Level, "rank": up.Rank}).Debug("hero level up")
	}

	d := digest.StateDigest(w.cur)
	if w.tickLogger != nil {
		if err := w.tickLogger.WriteTick(TickLogEntry{Tick: tick, Kind: EntryTick, NowMs: nowMs, Actions: recorded, Digest: d}); err != nil {
			w.log.WithError(err).Warn("tick log write failed")
		}
	}

	w.committed.Store(w.cur)
	w.broadcast(Frame{Tick: tick, State: w.cur, Report: rep})

	if every := uint64(w.cfg.Tuning.SnapshotEveryTicks); w.snapshotSink != nil && every > 0 && tick != 0 && tick%every == 0 {
		if err := w.sendSnapshot(tick, nowMs, d); err != nil {
			w.log.WithField("tick", tick).Debug("snapshot dropped: sink backed up")
		}
	}

	stepMS := float64(time.Since(start).Microseconds()) / 1000.0
	w.tick.Add(1)
	w.publishMetrics(stepMS)
	return d
}

func (w *World) audit(tick uint64, nowMs int64, a actions.Action, res actions.Result, spent model.ResourceSet) {
	if w.auditLogger == nil {
		return
	}
	entry := AuditEntry{
		Tick:       tick,
		AtMs:       nowMs,
		PlayerID:   w.cfg.PlayerID,
		Action:     a.Kind,
		OK:         res.OK,
		Code:       res.Code,
		BuildingID: firstNonEmpty(res.BuildingID, a.BuildingID),
		HeroID:     firstNonEmpty(res.HeroID, a.HeroID),
		Spent:      spent,
	}
	if err := w.auditLogger.WriteAudit(entry); err != nil {
		w.log.WithError(err).Warn("audit log write failed")
	}
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

// ExportSave packages the committed state as a save of the last simulated tick.
func (w *World) ExportSave() snapshot.Save {
	s := w.State()
	tick := w.tick.Load()
	if tick > 0 {
		tick--
	}
	return snapshot.Save{
		Header: snapshot.Header{
			Version:  snapshot.Version,
			PlayerID: w.cfg.PlayerID,
			Tick:     tick,
			SavedAt:  s.LastSaveTime,
			Digest:   digest.StateDigest(s),
		},
		State: s,
	}
}

func (w *World) sendSnapshot(tick uint64, nowMs int64, d string) error {
	save := snapshot.Save{
		Header: snapshot.Header{Version: snapshot.Version, PlayerID: w.cfg.PlayerID, Tick: tick, SavedAt: nowMs, Digest: d},
		State:  w.cur,
	}
	select {
	case w.snapshotSink <- save:
		w.counters.snapshots++
		return nil
	default:
		w.counters.dropped++
		return errors.New("snapshot sink backpressure")
	}
}

// RequestSnapshot asks the world loop to enqueue a save after the next tick.
func (w *World) RequestSnapshot(ctx context.Context) (uint64, error) {
	resp := make(chan snapshotResp, 1)
	select {
	case w.admin <- snapshotReq{resp: resp}:
	case <-w.stop:
		return 0, ErrStopped
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	select {
	case r := <-resp:
		return r.tick, r.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (w *World) handleSnapshotRequests(reqs []snapshotReq) {
	if len(reqs) == 0 {
		return
	}
	tick := w.tick.Load() - 1
	var err error
	if w.snapshotSink == nil {
		err = errors.New("snapshot sink not configured")
	} else {
		err = w.sendSnapshot(tick, w.cur.LastSaveTime, digest.StateDigest(w.cur))
	}
	for _, r := range reqs {
		r.resp <- snapshotResp{tick: tick, err: err}
	}
}

// Subscribe registers a latest-wins feed of tick frames. The returned func unsubscribes.
func (w *World) Subscribe() (<-chan Frame, func()) {
	ch := make(chan Frame, 1)
	w.subsMu.Lock()
	id := w.nextSub
	w.nextSub++
	w.subs[id] = ch
	w.subsMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			w.subsMu.Lock()
			delete(w.subs, id)
			w.subsMu.Unlock()
		})
	}
}

func (w *World) subscriberCount() int {
	w.subsMu.Lock()
	defer w.subsMu.Unlock()
	return len(w.subs)
}

func (w *World) broadcast(f Frame) {
	w.subsMu.Lock()
	defer w.subsMu.Unlock()
	for _, ch := range w.subs {
		sendLatest(ch, f)
	}
}

func sendLatest(ch chan Frame, f Frame) {
	select {
	case ch <- f:
		return
	default:
	}
	// Drop the stale frame.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- f:
	default:
	}
}
