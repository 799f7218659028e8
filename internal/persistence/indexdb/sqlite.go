package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"chunkfix.dev/internal/repair"
)

// SQLiteIndex is a queryable copy of the repair log. Writes are queued and
// applied by one goroutine in batched transactions.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed  atomic.Bool
	dropped atomic.Uint64
}

type reqKind int

const (
	reqRepair reqKind = iota + 1
	reqRun
)

type req struct {
	kind reqKind

	repair repair.Entry
	run    runRow
}

type runRow struct {
	StartedAt  string
	FinishedAt string
	World      string
	DryRun     bool
	Summary    repair.Summary
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

	return start(db, 16384), nil
}

// start launches the writer goroutine over an already initialised db.
func start(db *sql.DB, queue int) *SQLiteIndex {
	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, queue),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s
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
		`CREATE TABLE IF NOT EXISTS repairs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			recorded_at TEXT NOT NULL,
			world TEXT NOT NULL,
			dimension TEXT NOT NULL,
			region TEXT NOT NULL,
			chunk_x INTEGER NOT NULL,
			chunk_z INTEGER NOT NULL,
			dropped INTEGER NOT NULL,
			digest_before TEXT NOT NULL,
			digest_after TEXT NOT NULL,
			dry_run INTEGER NOT NULL,
			saved INTEGER NOT NULL,
			error TEXT NOT NULL,
			raw_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS repairs_chunk ON repairs(world, dimension, chunk_x, chunk_z);`,
		`CREATE TABLE IF NOT EXISTS runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			started_at TEXT NOT NULL,
			finished_at TEXT NOT NULL,
			world TEXT NOT NULL,
			dry_run INTEGER NOT NULL,
			regions INTEGER NOT NULL,
			chunks INTEGER NOT NULL,
			repaired INTEGER NOT NULL,
			saved INTEGER NOT NULL,
			failed INTEGER NOT NULL
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
	if s == nil {
		return nil
	}
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// Dropped reports how many writes never reached the database: queued while
// the queue was full, failed, or lost with a rolled back or failed batch.
func (s *SQLiteIndex) Dropped() uint64 {
	if s == nil {
		return 0
	}
	return s.dropped.Load()
}

func (s *SQLiteIndex) RecordRepair(e repair.Entry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	s.enqueue(req{kind: reqRepair, repair: e})
	return nil
}

func (s *SQLiteIndex) RecordRun(world string, dryRun bool, started, finished time.Time, sum repair.Summary) {
	if s == nil || s.closed.Load() {
		return
	}
	s.enqueue(req{kind: reqRun, run: runRow{
		StartedAt:  started.UTC().Format(time.RFC3339Nano),
		FinishedAt: finished.UTC().Format(time.RFC3339Nano),
		World:      world,
		DryRun:     dryRun,
		Summary:    sum,
	}})
}

func (s *SQLiteIndex) enqueue(r req) {
	select {
	case s.ch <- r:
	default:
		// The JSONL audit log remains the source of truth.
		s.dropped.Add(1)
	}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertRepair, _ := s.db.Prepare(`INSERT INTO repairs(recorded_at,world,dimension,region,chunk_x,chunk_z,dropped,digest_before,digest_after,dry_run,saved,error,raw_json) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	insertRun, _ := s.db.Prepare(`INSERT INTO runs(started_at,finished_at,world,dry_run,regions,chunks,repaired,saved,failed) VALUES(?,?,?,?,?,?,?,?,?)`)
	defer func() {
		if insertRepair != nil {
			_ = insertRepair.Close()
		}
		if insertRun != nil {
			_ = insertRun.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 500
		commitMaxWait = time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			s.dropped.Add(1)
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
		if err := tx.Commit(); err != nil {
			s.dropped.Add(uint64(opCount))
		}
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	// rollback discards the batch, including the write that failed.
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		s.dropped.Add(uint64(opCount) + 1)
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
		case reqRepair:
			e := r.repair
			raw, _ := json.Marshal(e)
			if insertRepair != nil {
				if _, err := tx.Stmt(insertRepair).Exec(
					e.RecordedAt,
					e.World,
					e.Dimension,
					e.Region,
					e.ChunkX,
					e.ChunkZ,
					len(e.Dropped),
					e.DigestBefore,
					e.DigestAfter,
					boolInt(e.DryRun),
					boolInt(e.Saved),
					e.Error,
					string(raw),
				); err != nil {
					rollback()
					continue
				}
				opCount++
			} else {
				s.dropped.Add(1)
			}

		case reqRun:
			ru := r.run
			if insertRun != nil {
				if _, err := tx.Stmt(insertRun).Exec(
					ru.StartedAt,
					ru.FinishedAt,
					ru.World,
					boolInt(ru.DryRun),
					ru.Summary.Regions,
					ru.Summary.Chunks,
					ru.Summary.Repaired,
					ru.Summary.Saved,
					ru.Summary.Failed,
				); err != nil {
					rollback()
					continue
				}
				opCount++
			} else {
				s.dropped.Add(1)
			}
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	commit()
}
