// Package trace records what an engine compiles and invalidates into a
// SQLite database, for offline inspection of code cache behaviour.
package trace

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"

	"github.com/chazu/armjit/jit"
	"github.com/chazu/armjit/pkg/interval"
)

const schema = `
CREATE TABLE IF NOT EXISTS blocks (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	engine      TEXT NOT NULL,
	location    TEXT NOT NULL,
	pc          INTEGER NOT NULL,
	entry       INTEGER NOT NULL,
	size        INTEGER NOT NULL,
	guest_insts INTEGER NOT NULL,
	ir_insts    INTEGER NOT NULL,
	generation  INTEGER NOT NULL,
	recorded_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS invalidations (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	engine      TEXT NOT NULL,
	kind        TEXT NOT NULL,
	ranges      JSON NOT NULL,
	evicted     INTEGER NOT NULL,
	generation  INTEGER NOT NULL,
	recorded_at TEXT NOT NULL
);
`

// Recorder is a jit.Observer that writes events to SQLite. One Recorder
// may be shared by several engines.
type Recorder struct {
	db  *sql.DB
	mu  sync.Mutex
	log commonlog.Logger
}

var _ jit.Observer = (*Recorder)(nil)

// Open opens or creates the trace database at path. ":memory:" gives a
// private in-memory database.
func Open(path string) (*Recorder, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening trace database: %w", err)
	}
	// Every connection to ":memory:" is a separate database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating trace tables: %w", err)
	}

	return &Recorder{db: db, log: commonlog.GetLogger("armjit.trace")}, nil
}

// Close closes the database.
func (r *Recorder) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// BlockCompiled implements jit.Observer.
func (r *Recorder) BlockCompiled(ev jit.BlockEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(
		`INSERT INTO blocks (engine, location, pc, entry, size, guest_insts, ir_insts, generation, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.Engine.String(), ev.Location.String(), int64(ev.Location.PC()),
		int64(ev.Block.Entry), ev.Block.Size, ev.GuestInsts, ev.IRInsts,
		int64(ev.Generation), now(),
	)
	if err != nil {
		r.log.Errorf("recording block %s: %s", ev.Location, err)
	}
}

// CacheInvalidated implements jit.Observer.
func (r *Recorder) CacheInvalidated(ev jit.InvalidationEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ranges, err := json.Marshal(rangesToJSON(ev.Ranges))
	if err != nil {
		r.log.Errorf("encoding invalidated ranges: %s", err)
		return
	}
	_, err = r.db.Exec(
		`INSERT INTO invalidations (engine, kind, ranges, evicted, generation, recorded_at)
		 VALUES (?, ?, json(?), ?, ?, ?)`,
		ev.Engine.String(), ev.Kind.String(), string(ranges), ev.Evicted, int64(ev.Generation), now(),
	)
	if err != nil {
		r.log.Errorf("recording %s invalidation: %s", ev.Kind, err)
	}
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func rangesToJSON(ivs []interval.Interval) [][2]uint32 {
	out := make([][2]uint32, 0, len(ivs))
	for _, iv := range ivs {
		out = append(out, [2]uint32{iv.Start, iv.End})
	}
	return out
}

// ---------------------------------------------------------------------------
// Queries
// ---------------------------------------------------------------------------

// Block is one recorded compilation.
type Block struct {
	Engine     string
	Location   string
	PC         uint32
	Entry      uint32
	Size       int
	GuestInsts int
	IRInsts    int
	Generation uint64
}

// Invalidation is one recorded invalidation.
type Invalidation struct {
	Engine     string
	Kind       string
	Ranges     []interval.Interval
	Evicted    int
	Generation uint64
}

// Blocks returns recorded compilations in the order they happened.
func (r *Recorder) Blocks() ([]Block, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.Query(
		`SELECT engine, location, pc, entry, size, guest_insts, ir_insts, generation
		 FROM blocks ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying blocks: %w", err)
	}
	defer rows.Close()

	var out []Block
	for rows.Next() {
		var b Block
		var pc, entry, gen int64
		if err := rows.Scan(&b.Engine, &b.Location, &pc, &entry, &b.Size, &b.GuestInsts, &b.IRInsts, &gen); err != nil {
			return nil, fmt.Errorf("scanning block: %w", err)
		}
		b.PC, b.Entry, b.Generation = uint32(pc), uint32(entry), uint64(gen)
		out = append(out, b)
	}
	return out, rows.Err()
}

// Invalidations returns recorded invalidations in the order they happened.
func (r *Recorder) Invalidations() ([]Invalidation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.Query(
		`SELECT engine, kind, ranges, evicted, generation FROM invalidations ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying invalidations: %w", err)
	}
	defer rows.Close()

	var out []Invalidation
	for rows.Next() {
		var inv Invalidation
		var ranges string
		var gen int64
		if err := rows.Scan(&inv.Engine, &inv.Kind, &ranges, &inv.Evicted, &gen); err != nil {
			return nil, fmt.Errorf("scanning invalidation: %w", err)
		}
		var raw [][2]uint32
		if err := json.Unmarshal([]byte(ranges), &raw); err != nil {
			return nil, fmt.Errorf("parsing invalidation ranges: %w", err)
		}
		for _, iv := range raw {
			inv.Ranges = append(inv.Ranges, interval.Interval{Start: iv[0], End: iv[1]})
		}
		inv.Generation = uint64(gen)
		out = append(out, inv)
	}
	return out, rows.Err()
}

// Summary aggregates a trace per engine.
type Summary struct {
	Blocks        int
	CodeBytes     int
	Invalidations int
	Evicted       int
}

// Summarize returns totals for one engine.
func (r *Recorder) Summarize(engine string) (Summary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var s Summary
	err := r.db.QueryRow(
		`SELECT COUNT(*), COALESCE(SUM(size), 0) FROM blocks WHERE engine = ?`, engine,
	).Scan(&s.Blocks, &s.CodeBytes)
	if err != nil {
		return Summary{}, fmt.Errorf("summarizing blocks: %w", err)
	}
	err = r.db.QueryRow(
		`SELECT COUNT(*), COALESCE(SUM(evicted), 0) FROM invalidations WHERE engine = ?`, engine,
	).Scan(&s.Invalidations, &s.Evicted)
	if err != nil {
		return Summary{}, fmt.Errorf("summarizing invalidations: %w", err)
	}
	return s, nil
}
