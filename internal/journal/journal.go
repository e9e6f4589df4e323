// Package journal keeps a sqlite record of completed generation work so
// streaming throughput can be inspected after a run.
package journal

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"voxelstream/internal/generation"
)

const queueSize = 4096

type event struct {
	at         time.Time
	key        generation.Key
	kind       generation.Kind
	generation uint64
	faces      int
	duration   time.Duration
	flushed    chan struct{}
}

// Journal appends one row per completion. Writes happen on a background
// goroutine; completions arriving while the queue is full are dropped.
type Journal struct {
	db     *sql.DB
	logger *log.Logger

	mu      sync.RWMutex
	ch      chan event
	closed  bool
	wg      sync.WaitGroup
	once    sync.Once
	dropped atomic.Uint64
}

func Open(path string, logger *log.Logger) (*Journal, error) {
	if path == "" {
		return nil, fmt.Errorf("empty journal path")
	}
	if logger == nil {
		logger = log.Default()
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

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	j := &Journal{db: db, logger: logger, ch: make(chan event, queueSize)}
	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		j.loop()
	}()
	return j, nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		`CREATE TABLE IF NOT EXISTS chunk_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			at_ms INTEGER NOT NULL,
			chunk_x INTEGER NOT NULL,
			chunk_z INTEGER NOT NULL,
			variant TEXT NOT NULL,
			kind TEXT NOT NULL,
			generation INTEGER NOT NULL,
			faces INTEGER NOT NULL,
			duration_us INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS chunk_events_chunk ON chunk_events(chunk_x, chunk_z, variant);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("init journal schema: %w", err)
		}
	}
	return nil
}

// RecordCompletion queues a row for res. It never blocks.
func (j *Journal) RecordCompletion(res generation.Result) {
	if j == nil {
		return
	}
	ev := event{
		at:         time.Now(),
		key:        res.Key,
		kind:       res.Kind,
		generation: res.Generation,
		duration:   res.Duration,
	}
	if res.Mesh != nil {
		ev.faces = res.Mesh.Faces()
	}
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return
	}
	select {
	case j.ch <- ev:
	default:
		j.dropped.Add(1)
	}
}

// Flush blocks until every queued row has been written.
func (j *Journal) Flush() {
	if j == nil {
		return
	}
	done := make(chan struct{})
	j.mu.RLock()
	if j.closed {
		j.mu.RUnlock()
		return
	}
	j.ch <- event{flushed: done}
	j.mu.RUnlock()
	<-done
}

// Dropped reports completions discarded because the writer fell behind.
func (j *Journal) Dropped() uint64 {
	return j.dropped.Load()
}

func (j *Journal) loop() {
	insert, err := j.db.Prepare(`INSERT INTO chunk_events(at_ms,chunk_x,chunk_z,variant,kind,generation,faces,duration_us) VALUES(?,?,?,?,?,?,?,?)`)
	if err != nil {
		j.logger.Printf("journal: prepare insert: %v", err)
		for ev := range j.ch {
			if ev.flushed != nil {
				close(ev.flushed)
			}
		}
		return
	}
	defer insert.Close()

	for ev := range j.ch {
		if ev.flushed != nil {
			close(ev.flushed)
			continue
		}
		_, err := insert.Exec(
			ev.at.UnixMilli(),
			ev.key.Coord.X,
			ev.key.Coord.Z,
			ev.key.Variant.String(),
			ev.kind.String(),
			ev.generation,
			ev.faces,
			ev.duration.Microseconds(),
		)
		if err != nil {
			j.logger.Printf("journal: insert %v: %v", ev.key, err)
		}
	}
}

// KindSummary aggregates journal rows of one kind.
type KindSummary struct {
	Kind         string
	Count        int
	MeanDuration time.Duration
	Faces        int
}

// Summary returns per-kind counts and mean durations, ordered by kind.
func (j *Journal) Summary() ([]KindSummary, error) {
	rows, err := j.db.Query(`SELECT kind, COUNT(*), AVG(duration_us), SUM(faces) FROM chunk_events GROUP BY kind ORDER BY kind`)
	if err != nil {
		return nil, fmt.Errorf("query summary: %w", err)
	}
	defer rows.Close()

	var out []KindSummary
	for rows.Next() {
		var s KindSummary
		var meanUS float64
		if err := rows.Scan(&s.Kind, &s.Count, &meanUS, &s.Faces); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		s.MeanDuration = time.Duration(meanUS * float64(time.Microsecond))
		out = append(out, s)
	}
	return out, rows.Err()
}

// History returns the recorded generations of one chunk in insertion order.
func (j *Journal) History(key generation.Key, kind generation.Kind) ([]uint64, error) {
	rows, err := j.db.Query(`SELECT generation FROM chunk_events WHERE chunk_x=? AND chunk_z=? AND variant=? AND kind=? ORDER BY id`,
		key.Coord.X, key.Coord.Z, key.Variant.String(), kind.String())
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []uint64
	for rows.Next() {
		var g int64
		if err := rows.Scan(&g); err != nil {
			return nil, err
		}
		out = append(out, uint64(g))
	}
	return out, rows.Err()
}

func (j *Journal) Close() error {
	var err error
	j.once.Do(func() {
		j.mu.Lock()
		j.closed = true
		close(j.ch)
		j.mu.Unlock()
		j.wg.Wait()
		if n := j.dropped.Load(); n > 0 {
			j.logger.Printf("journal: dropped %d completions", n)
		}
		err = j.db.Close()
	})
	return err
}
