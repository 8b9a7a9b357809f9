package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"heroranker.app/internal/persistence/snapshot"
	"heroranker.app/internal/sim/catalogs"
	"heroranker.app/internal/sim/tuning"
	"heroranker.app/internal/sim/world"
)

// SQLiteIndex is a queryable secondary index of ticks and audits, and the remote save store
// the server syncs to. Tick and audit writes are queued and never block the world loop.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropTick  atomic.Uint64
	dropAudit atomic.Uint64
}

type reqKind int

const (
	reqTick reqKind = iota + 1
	reqAudit
)

type req struct {
	kind reqKind

	tick  world.TickLogEntry
	audit world.AuditEntry
}

type Stats struct {
	QueueDepth     int    `json:"queue_depth"`
	QueueCapacity  int    `json:"queue_capacity"`
	DropTickTotal  uint64 `json:"drop_tick_total"`
	DropAuditTotal uint64 `json:"drop_audit_total"`
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS saves (
			player_id TEXT NOT NULL,
			saved_at INTEGER NOT NULL,
			tick INTEGER NOT NULL,
			version INTEGER NOT NULL,
			digest TEXT NOT NULL,
			state_json TEXT NOT NULL,
			PRIMARY KEY (player_id, saved_at)
		);`,
		`CREATE TABLE IF NOT EXISTS ticks (
			tick INTEGER NOT NULL,
			kind TEXT NOT NULL,
			now_ms INTEGER NOT NULL,
			digest TEXT NOT NULL,
			actions INTEGER NOT NULL,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (tick, kind)
		);`,
		`CREATE TABLE IF NOT EXISTS audits (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			player_id TEXT NOT NULL,
			action TEXT NOT NULL,
			ok INTEGER NOT NULL,
			code TEXT,
			building_id TEXT,
			hero_id TEXT,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_audits_player_tick ON audits(player_id, tick);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:     len(s.ch),
		QueueCapacity:  cap(s.ch),
		DropTickTotal:  s.dropTick.Load(),
		DropAuditTotal: s.dropAudit.Load(),
	}
}

func (s *SQLiteIndex) WriteTick(entry world.TickLogEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqTick, tick: entry}:
	default:
		// Drop if the indexer falls behind; JSONL logs remain the source of truth.
		s.dropTick.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) WriteAudit(entry world.AuditEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqAudit, audit: entry}:
	default:
		s.dropAudit.Add(1)
	}
	return nil
}

// UpsertCatalogs records the raw catalog files and the applied tuning with their digests.
func (s *SQLiteIndex) UpsertCatalogs(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	type kv struct {
		name   string
		digest string
		json   []byte
	}
	var rows []kv
	digests := cats.Digests()
	for _, name := range []string{"buildings", "slots", "skins"} {
		b, err := os.ReadFile(filepath.Join(configDir, name+".json"))
		if err != nil {
			continue
		}
		rows = append(rows, kv{name: name, digest: digests[name], json: b})
	}
	{
		b, _ := json.Marshal(tune)
		sum := sha256.Sum256(b)
		rows = append(rows, kv{name: "tuning", digest: hex.EncodeToString(sum[:]), json: b})
	}

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if r.name == "" || r.digest == "" || len(r.json) == 0 {
			continue
		}
		if _, err := stmt.Exec(r.name, r.digest, string(r.json), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// CatalogDigest returns the stored digest for a catalog name, or "" if unknown.
func (s *SQLiteIndex) CatalogDigest(ctx context.Context, name string) (string, error) {
	var d string
	err := s.db.QueryRowContext(ctx, `SELECT digest FROM catalogs WHERE name=?`, name).Scan(&d)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return d, err
}

// PutSave stores a save body. Writing the same (player, saved_at) twice replaces the row.
func (s *SQLiteIndex) PutSave(ctx context.Context, h snapshot.Header, body []byte) error {
	if h.PlayerID == "" {
		return fmt.Errorf("save without player id")
	}
	if !json.Valid(body) {
		return fmt.Errorf("save body is not valid json")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO saves(player_id,saved_at,tick,version,digest,state_json) VALUES(?,?,?,?,?,?)`,
		h.PlayerID, h.SavedAt, int64(h.Tick), h.Version, h.Digest, string(body))
	return err
}

// LatestSave returns the newest save for playerID. ok is false when none exists.
func (s *SQLiteIndex) LatestSave(ctx context.Context, playerID string) (h snapshot.Header, body []byte, ok bool, err error) {
	var tick int64
	var raw string
	err = s.db.QueryRowContext(ctx,
		`SELECT saved_at,tick,version,digest,state_json FROM saves WHERE player_id=? ORDER BY saved_at DESC LIMIT 1`,
		playerID).Scan(&h.SavedAt, &tick, &h.Version, &h.Digest, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return snapshot.Header{}, nil, false, nil
	}
	if err != nil {
		return snapshot.Header{}, nil, false, err
	}
	h.PlayerID = playerID
	h.Tick = uint64(tick)
	return h, []byte(raw), true, nil
}

// ListSaves returns save headers for playerID, newest first.
func (s *SQLiteIndex) ListSaves(ctx context.Context, playerID string) ([]snapshot.Header, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT saved_at,tick,version,digest FROM saves WHERE player_id=? ORDER BY saved_at DESC`, playerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []snapshot.Header
	for rows.Next() {
		h := snapshot.Header{PlayerID: playerID}
		var tick int64
		if err := rows.Scan(&h.SavedAt, &tick, &h.Version, &h.Digest); err != nil {
			return nil, err
		}
		h.Tick = uint64(tick)
		out = append(out, h)
	}
	return out, rows.Err()
}

// PruneSaves keeps the newest keep saves for playerID.
func (s *SQLiteIndex) PruneSaves(ctx context.Context, playerID string, keep int) (int64, error) {
	if keep <= 0 {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM saves WHERE player_id=? AND saved_at NOT IN (
			SELECT saved_at FROM saves WHERE player_id=? ORDER BY saved_at DESC LIMIT ?)`,
		playerID, playerID, keep)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// TickRow is one indexed tick log entry.
type TickRow struct {
	Tick    uint64
	Kind    string
	NowMs   int64
	Digest  string
	Actions int
}

// RecentTicks returns the last n indexed ticks, newest first.
func (s *SQLiteIndex) RecentTicks(ctx context.Context, n int) ([]TickRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT tick,kind,now_ms,digest,actions FROM ticks ORDER BY tick DESC, kind DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TickRow
	for rows.Next() {
		var r TickRow
		var tick int64
		if err := rows.Scan(&tick, &r.Kind, &r.NowMs, &r.Digest, &r.Actions); err != nil {
			return nil, err
		}
		r.Tick = uint64(tick)
		out = append(out, r)
	}
	return out, rows.Err()
}

// ActionStat counts audited actions of one kind.
type ActionStat struct {
	Action   string
	Total    int
	Rejected int
}

// ActionStats summarizes audited actions for playerID, ordered by action.
func (s *SQLiteIndex) ActionStats(ctx context.Context, playerID string) ([]ActionStat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT action, COUNT(*), SUM(CASE WHEN ok=0 THEN 1 ELSE 0 END) FROM audits
		 WHERE player_id=? GROUP BY action ORDER BY action`, playerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ActionStat
	for rows.Next() {
		var a ActionStat
		if err := rows.Scan(&a.Action, &a.Total, &a.Rejected); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertTick, _ := s.db.Prepare(`INSERT OR REPLACE INTO ticks(tick,kind,now_ms,digest,actions,raw_json) VALUES(?,?,?,?,?,?)`)
	insertAudit, _ := s.db.Prepare(`INSERT OR REPLACE INTO audits(tick,seq,player_id,action,ok,code,building_id,hero_id,raw_json) VALUES(?,?,?,?,?,?,?,?,?)`)
	defer func() {
		if insertTick != nil {
			_ = insertTick.Close()
		}
		if insertAudit != nil {
			_ = insertAudit.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second

		lastAuditTick uint64
		auditSeq      int
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqTick:
			if insertTick == nil {
				break
			}
			b, _ := json.Marshal(r.tick)
			if _, err := tx.Stmt(insertTick).Exec(
				int64(r.tick.Tick),
				string(r.tick.Kind),
				r.tick.NowMs,
				r.tick.Digest,
				len(r.tick.Actions),
				string(b),
			); err != nil {
				rollback()
				continue
			}
			opCount++

		case reqAudit:
			if insertAudit == nil {
				break
			}
			a := r.audit
			if a.Tick != lastAuditTick {
				lastAuditTick = a.Tick
				auditSeq = 0
			}
			seq := auditSeq
			auditSeq++
			raw, _ := json.Marshal(a)
			ok := 0
			if a.OK {
				ok = 1
			}
			if _, err := tx.Stmt(insertAudit).Exec(
				int64(a.Tick),
				seq,
				a.PlayerID,
				string(a.Action),
				ok,
				a.Code,
				a.BuildingID,
				a.HeroID,
				string(raw),
			); err != nil {
				rollback()
				continue
			}
			opCount++
		}
		// Commit once the queue drains so sync queries on the shared connection are not held up.
		if len(s.ch) == 0 || opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	commit()
}
