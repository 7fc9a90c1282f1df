/*
Package sqlite provides a SQLite-backed component catalog, rule set and
engine descriptor store.

PURPOSE:
  Persists everything needed to reproduce a payroll calculation: the
  catalog revision the simple calculator classified against, the rule
  sets that were applied, and the engine descriptor the engine was built
  from. In production, the same patterns apply to PostgreSQL - only
  minor SQL dialect differences.

INTERFACES IMPLEMENTED:
  payroll.CatalogSource: Revisioned catalog snapshots

APPEND-ONLY CATALOG:
  Catalog revisions are never updated or deleted. Publishing writes a
  new revision with its full component list; readers pin a revision
  number and always see the same content.

KEY TABLES:
  catalog_revisions:     One row per published revision
  component_definitions: Components of each revision
  rule_sets:             Rule set descriptors (versioned on save)
  engine_descriptors:    Engine descriptors by id (versioned on save)

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. In production with PostgreSQL,
  database-level concurrency control handles this instead.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time

USAGE:
  store, err := sqlite.New("./data/payroll.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  rev, _ := store.PublishCatalog(ctx, defs)
  mapper := simple.NewMapper(store, rev, logger)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - payroll/catalog.go: CatalogSource contract
  - payroll/store/memory.go: In-memory implementation for testing
  - factory/: Descriptor formats stored here
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/payroll-engine/factory"
	"github.com/warp/payroll-engine/payroll"
)

// Store implements payroll.CatalogSource and descriptor persistence using SQLite.
type Store struct {
	db  *sql.DB
	mu  sync.RWMutex
	now func() time.Time
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Every pooled connection to ":memory:" would be a separate database.
	db.SetMaxOpenConns(1)

	store := &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Catalog revisions (append-only)
	CREATE TABLE IF NOT EXISTS catalog_revisions (
		revision INTEGER PRIMARY KEY AUTOINCREMENT,
		published_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS component_definitions (
		revision INTEGER NOT NULL REFERENCES catalog_revisions(revision),
		code TEXT NOT NULL,
		name TEXT NOT NULL,
		component_type TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		display_order INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (revision, code)
	);

	CREATE INDEX IF NOT EXISTS idx_component_definitions_type
		ON component_definitions(revision, component_type);

	-- Rule sets
	CREATE TABLE IF NOT EXISTS rule_sets (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		definition_json TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_rule_sets_active
		ON rule_sets(active);

	-- Engine descriptors
	CREATE TABLE IF NOT EXISTS engine_descriptors (
		id TEXT PRIMARY KEY,
		descriptor_json TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// CATALOG STORE (payroll.CatalogSource interface)
// =============================================================================

// RevisionInfo summarizes a published catalog revision.
type RevisionInfo struct {
	Revision    int64
	PublishedAt time.Time
	Components  int
}

// PublishCatalog stores defs as a new immutable revision and returns its
// number. Revisions start at 1. Nothing is written if any definition is
// invalid or two definitions share a code.
func (s *Store) PublishCatalog(ctx context.Context, defs []payroll.ComponentDefinition) (int64, error) {
	for _, d := range defs {
		if err := d.Validate(); err != nil {
			return 0, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	res, err := sqlTx.ExecContext(ctx,
		"INSERT INTO catalog_revisions (published_at) VALUES (?)",
		formatTime(s.now()),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to create catalog revision: %w", err)
	}
	rev, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read catalog revision: %w", err)
	}

	query := `
		INSERT INTO component_definitions
		(revision, code, name, component_type, active, display_order)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	for _, d := range defs {
		if _, err := sqlTx.ExecContext(ctx, query,
			rev, d.Code, d.Name, string(d.Type), d.Active, d.DisplayOrder,
		); err != nil {
			if isUniqueConstraintError(err) {
				return 0, fmt.Errorf("%w: duplicate code %s", payroll.ErrInvalidComponent, d.Code)
			}
			return 0, fmt.Errorf("failed to store component %s: %w", d.Code, err)
		}
	}

	if err := sqlTx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit catalog revision: %w", err)
	}
	return rev, nil
}

// LoadCatalog implements payroll.CatalogSource.
func (s *Store) LoadCatalog(ctx context.Context, revision int64) (*payroll.CatalogSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		rev         int64
		publishedAt string
	)
	var row *sql.Row
	if revision == payroll.LatestRevision {
		row = s.db.QueryRowContext(ctx,
			"SELECT revision, published_at FROM catalog_revisions ORDER BY revision DESC LIMIT 1")
	} else {
		row = s.db.QueryRowContext(ctx,
			"SELECT revision, published_at FROM catalog_revisions WHERE revision = ?", revision)
	}
	err := row.Scan(&rev, &publishedAt)
	if err == sql.ErrNoRows {
		return nil, payroll.ErrCatalogNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog revision: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT code, name, component_type, active, display_order
		FROM component_definitions
		WHERE revision = ?
	`, rev)
	if err != nil {
		return nil, fmt.Errorf("failed to query components: %w", err)
	}
	defer rows.Close()

	var defs []payroll.ComponentDefinition
	for rows.Next() {
		var (
			d        payroll.ComponentDefinition
			compType string
		)
		if err := rows.Scan(&d.Code, &d.Name, &compType, &d.Active, &d.DisplayOrder); err != nil {
			return nil, fmt.Errorf("failed to scan component: %w", err)
		}
		d.Type = payroll.ComponentType(compType)
		defs = append(defs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return payroll.NewCatalogSnapshot(rev, parseTime(publishedAt), defs), nil
}

// ListRevisions returns every published revision, oldest first.
func (s *Store) ListRevisions(ctx context.Context) ([]RevisionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT r.revision, r.published_at, COUNT(c.code)
		FROM catalog_revisions r
		LEFT JOIN component_definitions c ON c.revision = r.revision
		GROUP BY r.revision, r.published_at
		ORDER BY r.revision ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RevisionInfo
	for rows.Next() {
		var (
			info        RevisionInfo
			publishedAt string
		)
		if err := rows.Scan(&info.Revision, &publishedAt, &info.Components); err != nil {
			return nil, err
		}
		info.PublishedAt = parseTime(publishedAt)
		out = append(out, info)
	}
	return out, rows.Err()
}

// =============================================================================
// RULE SET STORE
// =============================================================================

// SaveRuleSet inserts or replaces a rule set. Every save of an existing id
// increments its version. The stored version is returned.
func (s *Store) SaveRuleSet(ctx context.Context, rs payroll.RuleSet) (int, error) {
	if rs.ID == "" {
		return 0, fmt.Errorf("rule set requires an id")
	}
	version := rs.Version
	if version < 1 {
		version = 1
	}
	rs.Version = version

	defJSON, err := json.Marshal(factory.RuleSetToJSON(rs))
	if err != nil {
		return 0, fmt.Errorf("failed to encode rule set %s: %w", rs.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO rule_sets (id, name, active, definition_json, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			active = excluded.active,
			definition_json = excluded.definition_json,
			version = rule_sets.version + 1,
			updated_at = excluded.updated_at
	`
	now := formatTime(s.now())
	if _, err := s.db.ExecContext(ctx, query,
		rs.ID, rs.Name, rs.Active, string(defJSON), version, now, now,
	); err != nil {
		return 0, fmt.Errorf("failed to save rule set %s: %w", rs.ID, err)
	}

	var stored int
	err = s.db.QueryRowContext(ctx, "SELECT version FROM rule_sets WHERE id = ?", rs.ID).Scan(&stored)
	return stored, err
}

// GetRuleSet retrieves a rule set by ID. A missing id returns nil, nil.
func (s *Store) GetRuleSet(ctx context.Context, id string) (*payroll.RuleSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		defJSON string
		version int
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT definition_json, version FROM rule_sets WHERE id = ?", id,
	).Scan(&defJSON, &version)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rs, err := decodeRuleSet(defJSON, version)
	if err != nil {
		return nil, err
	}
	return &rs, nil
}

// ListRuleSets returns rule sets ordered by id. With activeOnly, inactive
// sets are skipped.
func (s *Store) ListRuleSets(ctx context.Context, activeOnly bool) ([]payroll.RuleSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT definition_json, version FROM rule_sets ORDER BY id"
	if activeOnly {
		query = "SELECT definition_json, version FROM rule_sets WHERE active ORDER BY id"
	}
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []payroll.RuleSet
	for rows.Next() {
		var (
			defJSON string
			version int
		)
		if err := rows.Scan(&defJSON, &version); err != nil {
			return nil, err
		}
		rs, err := decodeRuleSet(defJSON, version)
		if err != nil {
			return nil, err
		}
		out = append(out, rs)
	}
	return out, rows.Err()
}

// DeleteRuleSet removes a rule set.
func (s *Store) DeleteRuleSet(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM rule_sets WHERE id = ?", id)
	return err
}

// decodeRuleSet parses a stored definition. The column version wins over
// the one embedded in the JSON.
func decodeRuleSet(defJSON string, version int) (payroll.RuleSet, error) {
	rs, err := factory.ParseRuleSet([]byte(defJSON))
	if err != nil {
		return payroll.RuleSet{}, err
	}
	rs.Version = version
	return rs, nil
}

// =============================================================================
// ENGINE DESCRIPTOR STORE
// =============================================================================

// EngineRecord is a stored engine descriptor.
type EngineRecord struct {
	ID         string
	Descriptor factory.EngineJSON
	Version    int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// SaveEngineDescriptor inserts or replaces a descriptor and returns its
// stored version. The descriptor is validated with the factory first so a
// broken descriptor is never persisted.
func (s *Store) SaveEngineDescriptor(ctx context.Context, id string, ej factory.EngineJSON) (int, error) {
	if id == "" {
		return 0, fmt.Errorf("engine descriptor requires an id")
	}
	if _, err := factory.NewEngineFactory(nil, nil).FromJSON(ej); err != nil {
		return 0, fmt.Errorf("engine descriptor %s: %w", id, err)
	}
	data, err := json.Marshal(ej)
	if err != nil {
		return 0, fmt.Errorf("failed to encode engine descriptor %s: %w", id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO engine_descriptors (id, descriptor_json, version, created_at, updated_at)
		VALUES (?, ?, 1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			descriptor_json = excluded.descriptor_json,
			version = engine_descriptors.version + 1,
			updated_at = excluded.updated_at
	`
	now := formatTime(s.now())
	if _, err := s.db.ExecContext(ctx, query, id, string(data), now, now); err != nil {
		return 0, fmt.Errorf("failed to save engine descriptor %s: %w", id, err)
	}

	var stored int
	err = s.db.QueryRowContext(ctx, "SELECT version FROM engine_descriptors WHERE id = ?", id).Scan(&stored)
	return stored, err
}

// GetEngineDescriptor retrieves a descriptor by ID. A missing id returns nil, nil.
func (s *Store) GetEngineDescriptor(ctx context.Context, id string) (*EngineRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		rec                  EngineRecord
		data                 string
		createdAt, updatedAt string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, descriptor_json, version, created_at, updated_at FROM engine_descriptors WHERE id = ?",
		id,
	).Scan(&rec.ID, &data, &rec.Version, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rec.Descriptor, err = factory.DecodeJSON([]byte(data))
	if err != nil {
		return nil, err
	}
	rec.CreatedAt = parseTime(createdAt)
	rec.UpdatedAt = parseTime(updatedAt)
	return &rec, nil
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears rule sets and engine descriptors (for testing/demo).
// Catalog revisions are append-only and survive a reset.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"rule_sets", "engine_descriptors"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// Helper functions

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "PRIMARY KEY") ||
		strings.Contains(err.Error(), "duplicate key"))
}
