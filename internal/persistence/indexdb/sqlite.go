package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"motionsync.ai/internal/protocol"
	"motionsync.ai/internal/sim/tuning"
	"motionsync.ai/internal/sim/world"
)

// SQLiteIndex is a queryable read-model of the tick journal: which curve each
// agent ran when, where halts landed, and every motion event. The journal
// stays the source of truth; the index drops work rather than stall the sim.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropTick atomic.Uint64
	dropRun  atomic.Uint64
}

type reqKind int

const (
	reqTick reqKind = iota + 1
	reqRun
)

type req struct {
	kind reqKind

	tick world.TickLogEntry
	run  runRow
}

type runRow struct {
	RunID      string
	WorldID    string
	TickRateHz int
	StartedAt  string
}

type Stats struct {
	QueueDepth    int
	QueueCapacity int
	DropTickTotal uint64
	DropRunTotal  uint64
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
		// A launch storm (every creature replanning at once) must not stall the sim.
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
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			world_id TEXT NOT NULL,
			tick_rate_hz INTEGER NOT NULL,
			started_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ticks (
			tick INTEGER PRIMARY KEY,
			digest TEXT NOT NULL,
			splines INTEGER NOT NULL,
			stops INTEGER NOT NULL,
			events INTEGER NOT NULL,
			leaves INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS splines (
			agent_id TEXT NOT NULL,
			spline_id INTEGER NOT NULL,
			tick INTEGER NOT NULL,
			mode TEXT NOT NULL,
			cyclic INTEGER NOT NULL,
			velocity REAL NOT NULL,
			transport_id TEXT,
			vertical TEXT,
			points INTEGER NOT NULL,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (agent_id, spline_id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_splines_tick ON splines(tick);`,
		`CREATE TABLE IF NOT EXISTS stops (
			agent_id TEXT NOT NULL,
			spline_id INTEGER NOT NULL,
			tick INTEGER NOT NULL,
			x REAL NOT NULL,
			y REAL NOT NULL,
			z REAL NOT NULL,
			orientation REAL NOT NULL,
			transport_id TEXT,
			PRIMARY KEY (agent_id, spline_id)
		);`,
		`CREATE TABLE IF NOT EXISTS events (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			agent_id TEXT NOT NULL,
			type TEXT NOT NULL,
			kind TEXT,
			ref TEXT,
			code TEXT,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_events_agent_tick ON events(agent_id, tick);`,
		`CREATE TABLE IF NOT EXISTS leaves (
			tick INTEGER NOT NULL,
			agent_id TEXT NOT NULL,
			PRIMARY KEY (tick, agent_id)
		);`,
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
		QueueDepth:    len(s.ch),
		QueueCapacity: cap(s.ch),
		DropTickTotal: s.dropTick.Load(),
		DropRunTotal:  s.dropRun.Load(),
	}
}

func (s *SQLiteIndex) WriteTick(entry world.TickLogEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqTick, tick: entry}:
	default:
		s.dropTick.Add(1)
	}
	return nil
}

// RecordRun notes a journal run so index rows can be tied back to its files.
func (s *SQLiteIndex) RecordRun(runID, worldID string, tickRateHz int) {
	if s == nil || s.closed.Load() || runID == "" {
		return
	}
	r := runRow{
		RunID:      runID,
		WorldID:    worldID,
		TickRateHz: tickRateHz,
		StartedAt:  time.Now().UTC().Format(time.RFC3339Nano),
	}
	select {
	case s.ch <- req{kind: reqRun, run: r}:
	default:
		s.dropRun.Add(1)
	}
}

// UpsertTuning stores the tuning actually applied, as canonical JSON.
func (s *SQLiteIndex) UpsertTuning(tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	b, err := json.Marshal(tune)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(b)

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('tuning_digest',?)`, hex.EncodeToString(sum[:])); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('tuning_json',?)`, string(b)); err != nil {
		return err
	}
	return tx.Commit()
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func eventString(ev protocol.Event, key string) string {
	s, _ := ev[key].(string)
	return s
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertTick, _ := s.db.Prepare(`INSERT OR REPLACE INTO ticks(tick,digest,splines,stops,events,leaves) VALUES(?,?,?,?,?,?)`)
	insertSpline, _ := s.db.Prepare(`INSERT OR REPLACE INTO splines(agent_id,spline_id,tick,mode,cyclic,velocity,transport_id,vertical,points,raw_json) VALUES(?,?,?,?,?,?,?,?,?,?)`)
	insertStop, _ := s.db.Prepare(`INSERT OR REPLACE INTO stops(agent_id,spline_id,tick,x,y,z,orientation,transport_id) VALUES(?,?,?,?,?,?,?,?)`)
	insertEvent, _ := s.db.Prepare(`INSERT OR REPLACE INTO events(tick,seq,agent_id,type,kind,ref,code,raw_json) VALUES(?,?,?,?,?,?,?,?)`)
	insertLeave, _ := s.db.Prepare(`INSERT OR REPLACE INTO leaves(tick,agent_id) VALUES(?,?)`)
	insertRun, _ := s.db.Prepare(`INSERT OR REPLACE INTO runs(run_id,world_id,tick_rate_hz,started_at) VALUES(?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertTick, insertSpline, insertStop, insertEvent, insertLeave, insertRun} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
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
	exec := func(st *sql.Stmt, args ...any) bool {
		if st == nil || tx == nil {
			return false
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return false
		}
		opCount++
		return true
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqRun:
			exec(insertRun, r.run.RunID, r.run.WorldID, r.run.TickRateHz, r.run.StartedAt)

		case reqTick:
			s.indexTick(r.tick, exec, insertTick, insertSpline, insertStop, insertEvent, insertLeave)
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			commit()
		}
	}

	commit()
}

func (s *SQLiteIndex) indexTick(e world.TickLogEntry, exec func(*sql.Stmt, ...any) bool, insertTick, insertSpline, insertStop, insertEvent, insertLeave *sql.Stmt) {
	tick := int64(e.Tick)
	var splines, stops int
	for _, raw := range e.Sync {
		msg, err := protocol.DecodeSync(raw)
		if err != nil {
			continue
		}
		switch m := msg.(type) {
		case protocol.MoveSplineMsg:
			splines++
			vertical := ""
			if m.Vertical != nil {
				vertical = m.Vertical.Kind
			}
			if !exec(insertSpline, m.AgentID, int64(m.SplineID), tick, m.Mode, boolInt(m.Cyclic), m.Velocity, m.TransportID, vertical, len(m.Points), string(raw)) {
				return
			}
		case protocol.MoveStopMsg:
			stops++
			if !exec(insertStop, m.AgentID, int64(m.SplineID), tick, m.Pos[0], m.Pos[1], m.Pos[2], m.Orientation, m.TransportID) {
				return
			}
		}
	}
	for i, ev := range e.Events {
		raw, _ := json.Marshal(ev)
		if !exec(insertEvent, tick, i, eventString(ev, "agent_id"), eventString(ev, "type"), eventString(ev, "kind"), eventString(ev, "ref"), eventString(ev, "code"), string(raw)) {
			return
		}
	}
	for _, id := range e.Leaves {
		if !exec(insertLeave, tick, id) {
			return
		}
	}
	exec(insertTick, tick, e.Digest, splines, stops, len(e.Events), len(e.Leaves))
}
