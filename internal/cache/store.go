// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package cache persists search results in a TTL'd SQLite store keyed by
// query hash, so repeated research runs are cheap and reproducible.
// Implements: prd001-cache (R1-R5);
//
//	docs/ARCHITECTURE § Cache Store.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/feasibility-engine/pkg/types"
)

const (
	defaultDBFile  = "research-cache.db"
	defaultTTLDays = 30
)

// Store manages the research cache SQLite database. The clock is injected
// so TTL arithmetic is testable without real waiting; reads compute
// staleness against it and never rewrite stored rows.
type Store struct {
	db      *sql.DB
	ttlDays int
	clock   func() time.Time
	log     *slog.Logger
}

// NewStore opens or creates the cache database at cfg.Path (default
// research-cache.db) and creates the schema if it does not exist (R1.1).
// A nil clock uses time.Now in UTC; a nil logger uses slog.Default().
func NewStore(cfg types.CacheConfig, log *slog.Logger, clock func() time.Time) (*Store, error) {
	path := cfg.Path
	if path == "" {
		path = defaultDBFile
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}

	ttl := cfg.TTLDays
	if ttl <= 0 {
		ttl = defaultTTLDays
	}
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	if log == nil {
		log = slog.Default()
	}

	s := &Store{db: db, ttlDays: ttl, clock: clock, log: log}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating cache schema: %w", err)
	}

	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS cache_entries (
			query_hash TEXT PRIMARY KEY,
			category TEXT NOT NULL,
			query_text TEXT NOT NULL,
			cached_at TEXT NOT NULL,
			ttl_days INTEGER NOT NULL,
			results TEXT NOT NULL,
			synthesis TEXT NOT NULL DEFAULT '',
			stale INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cache_entries_category ON cache_entries(category)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}

	return nil
}

// Get returns the entry for hash. The second return is false on a miss and
// on any read or decode failure: cache trouble is logged and reported as a
// miss so the caller falls through to a live fetch (R5.1). Staleness is
// computed here, against the injected clock; stale entries are still
// returned, flagged, and the stored row is left untouched (R2.2, R2.4).
func (s *Store) Get(ctx context.Context, hash string) (types.CacheEntry, bool) {
	var (
		entry       types.CacheEntry
		cachedAt    string
		resultsJSON string
		stale       int
	)

	err := s.db.QueryRowContext(ctx,
		`SELECT query_hash, category, query_text, cached_at, ttl_days, results, synthesis, stale
		 FROM cache_entries WHERE query_hash = ?`, hash,
	).Scan(&entry.QueryHash, &entry.Category, &entry.QueryText, &cachedAt,
		&entry.TTLDays, &resultsJSON, &entry.Synthesis, &stale)
	if err == sql.ErrNoRows {
		return types.CacheEntry{}, false
	}
	if err != nil {
		s.log.Warn("cache read failed, treating as miss", "hash", hash, "err", err)
		return types.CacheEntry{}, false
	}

	entry.CachedAt, err = time.Parse(time.RFC3339Nano, cachedAt)
	if err != nil {
		s.log.Warn("cache entry has unparseable timestamp, treating as miss", "hash", hash, "err", err)
		return types.CacheEntry{}, false
	}

	if err := json.Unmarshal([]byte(resultsJSON), &entry.Results); err != nil {
		s.log.Warn("cache entry has undecodable results, treating as miss", "hash", hash, "err", err)
		return types.CacheEntry{}, false
	}

	entry.Stale = stale != 0 || entry.ExpiredAt(s.clock())
	return entry, true
}

// Put upserts the entry under its QueryHash: a rewrite of an existing hash
// wins wholesale (last writer wins), refreshes cached_at from the clock,
// and clears any persisted stale mark (R3.1-R3.3). A zero TTLDays takes
// the store default. Callers treat Put errors as non-fatal: log and keep
// researching.
func (s *Store) Put(ctx context.Context, entry types.CacheEntry) error {
	if entry.QueryHash == "" {
		return fmt.Errorf("cache put: empty query hash")
	}
	if entry.TTLDays <= 0 {
		entry.TTLDays = s.ttlDays
	}

	resultsJSON, err := json.Marshal(entry.Results)
	if err != nil {
		return fmt.Errorf("encoding results for %s: %w", entry.QueryHash, err)
	}

	cachedAt := s.clock().UTC().Format(time.RFC3339Nano)

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO cache_entries (query_hash, category, query_text, cached_at, ttl_days, results, synthesis, stale)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 0)
		 ON CONFLICT(query_hash) DO UPDATE SET
			category=excluded.category, query_text=excluded.query_text,
			cached_at=excluded.cached_at, ttl_days=excluded.ttl_days,
			results=excluded.results, synthesis=excluded.synthesis, stale=0`,
		entry.QueryHash, entry.Category, entry.QueryText, cachedAt,
		entry.TTLDays, string(resultsJSON), entry.Synthesis,
	)
	if err != nil {
		return fmt.Errorf("upserting cache entry %s: %w", entry.QueryHash, err)
	}

	return nil
}

// MarkStale flags the entry without deleting it; subsequent reads return
// it with Stale set regardless of age (R4.1). Nothing in the store ever
// deletes an entry.
func (s *Store) MarkStale(ctx context.Context, hash string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE cache_entries SET stale = 1 WHERE query_hash = ?`, hash)
	if err != nil {
		return fmt.Errorf("marking %s stale: %w", hash, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("marking %s stale: %w", hash, err)
	}
	if n == 0 {
		return fmt.Errorf("no cache entry for hash %s", hash)
	}
	return nil
}

// SetSynthesis attaches a narrative to an existing entry without touching
// cached_at, so the write-back does not extend the entry's TTL window.
func (s *Store) SetSynthesis(ctx context.Context, hash, synthesis string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE cache_entries SET synthesis = ? WHERE query_hash = ?`, synthesis, hash)
	if err != nil {
		return fmt.Errorf("writing synthesis for %s: %w", hash, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("writing synthesis for %s: %w", hash, err)
	}
	if n == 0 {
		return fmt.Errorf("no cache entry for hash %s", hash)
	}
	return nil
}

// Stats summarizes the store for the cache subcommand.
type Stats struct {
	Total         int
	Stale         int
	WithSynthesis int
	ByCategory    map[string]int
}

// Fresh returns the number of entries not past their TTL or stale mark.
func (st Stats) Fresh() int {
	return st.Total - st.Stale
}

// Stats scans all entries and classifies them against the current clock.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT category, cached_at, ttl_days, synthesis, stale FROM cache_entries`)
	if err != nil {
		return Stats{}, fmt.Errorf("reading cache entries: %w", err)
	}
	defer rows.Close()

	st := Stats{ByCategory: make(map[string]int)}
	now := s.clock()

	for rows.Next() {
		var (
			category  string
			cachedAt  string
			ttlDays   int
			synthesis string
			stale     int
		)
		if err := rows.Scan(&category, &cachedAt, &ttlDays, &synthesis, &stale); err != nil {
			return Stats{}, fmt.Errorf("scanning cache entry: %w", err)
		}

		st.Total++
		st.ByCategory[category]++
		if synthesis != "" {
			st.WithSynthesis++
		}

		entry := types.CacheEntry{TTLDays: ttlDays}
		if t, err := time.Parse(time.RFC3339Nano, cachedAt); err == nil {
			entry.CachedAt = t
		}
		if stale != 0 || entry.ExpiredAt(now) {
			st.Stale++
		}
	}

	return st, rows.Err()
}
