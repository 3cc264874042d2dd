package store

import (
	"context"
	"database/sql"
	"fmt"
)

// SchemaVersion is the current schema version.
const SchemaVersion = 2

// schemaV1 is the initial schema for the SQLite store.
//
// Edge endpoints and zone nodes carry no foreign keys: the graph builder
// reports dangling references itself with the offending ids.
const schemaV1 = `
CREATE TABLE IF NOT EXISTS networks (
    id INTEGER PRIMARY KEY,
    name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS road_types (
    id INTEGER PRIMARY KEY,
    network_id INTEGER NOT NULL REFERENCES networks(id) ON DELETE CASCADE,
    name TEXT NOT NULL,
    congestion TEXT NOT NULL DEFAULT 'FreeFlow',
    default_speed REAL NOT NULL,  -- km/h
    default_lanes INTEGER NOT NULL,
    capacity REAL,                -- veh/h/lane
    param1 REAL,
    param2 REAL
);

CREATE TABLE IF NOT EXISTS nodes (
    id INTEGER PRIMARY KEY,
    network_id INTEGER NOT NULL REFERENCES networks(id) ON DELETE CASCADE,
    name TEXT
);
CREATE INDEX IF NOT EXISTS idx_nodes_network ON nodes(network_id);

CREATE TABLE IF NOT EXISTS edges (
    id INTEGER PRIMARY KEY,
    network_id INTEGER NOT NULL REFERENCES networks(id) ON DELETE CASCADE,
    source INTEGER NOT NULL,
    target INTEGER NOT NULL,
    road_type_id INTEGER NOT NULL,
    name TEXT,
    length REAL NOT NULL,  -- m
    speed REAL,            -- km/h
    lanes INTEGER
);
CREATE INDEX IF NOT EXISTS idx_edges_network ON edges(network_id);

CREATE TABLE IF NOT EXISTS zones (
    id INTEGER PRIMARY KEY,
    network_id INTEGER NOT NULL REFERENCES networks(id) ON DELETE CASCADE,
    name TEXT,
    node_id INTEGER
);

CREATE TABLE IF NOT EXISTS vehicles (
    id INTEGER PRIMARY KEY,
    name TEXT NOT NULL,
    length REAL NOT NULL,
    speed_function TEXT NOT NULL DEFAULT 'Base',
    speed_value REAL NOT NULL DEFAULT 0
);

-- Preferences are stored whole; the distribution descriptors are JSON.
CREATE TABLE IF NOT EXISTS preferences (
    id INTEGER PRIMARY KEY,
    name TEXT NOT NULL,
    profile TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS od_matrices (
    id INTEGER PRIMARY KEY,
    name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS od_pairs (
    id INTEGER PRIMARY KEY,
    matrix_id INTEGER NOT NULL REFERENCES od_matrices(id) ON DELETE CASCADE,
    origin INTEGER NOT NULL,
    destination INTEGER NOT NULL,
    size INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_od_pairs_matrix ON od_pairs(matrix_id);

CREATE TABLE IF NOT EXISTS populations (
    id INTEGER PRIMARY KEY,
    network_id INTEGER NOT NULL,
    name TEXT NOT NULL,
    generated INTEGER NOT NULL DEFAULT 0,
    random_seed INTEGER
);

CREATE TABLE IF NOT EXISTS segments (
    id INTEGER PRIMARY KEY,
    population_id INTEGER NOT NULL REFERENCES populations(id) ON DELETE CASCADE,
    preferences_id INTEGER NOT NULL REFERENCES preferences(id),
    matrix_id INTEGER NOT NULL REFERENCES od_matrices(id)
);

CREATE TABLE IF NOT EXISTS agents (
    population_id INTEGER NOT NULL REFERENCES populations(id) ON DELETE CASCADE,
    id INTEGER NOT NULL,
    origin INTEGER NOT NULL,
    destination INTEGER NOT NULL,
    mode_choice TEXT NOT NULL,     -- JSON tagged record
    t_star REAL NOT NULL,
    delta REAL NOT NULL,
    beta REAL NOT NULL,
    gamma REAL NOT NULL,
    desired_arrival INTEGER NOT NULL DEFAULT 0,
    departure_time TEXT NOT NULL,  -- JSON tagged record
    vehicle_id INTEGER NOT NULL,
    vot REAL NOT NULL,
    PRIMARY KEY (population_id, id)
);

CREATE TABLE IF NOT EXISTS parameter_sets (
    id INTEGER PRIMARY KEY,
    name TEXT NOT NULL,
    period_start REAL NOT NULL,
    period_end REAL NOT NULL,
    period_interval REAL NOT NULL,
    learning_model TEXT NOT NULL,
    learning_alpha REAL NOT NULL DEFAULT 0,
    max_iterations INTEGER NOT NULL,
    update_ratio REAL NOT NULL,
    edge_approx_bound REAL NOT NULL,
    space_approx_bound REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
    id INTEGER PRIMARY KEY,
    project_id INTEGER NOT NULL DEFAULT 0,
    name TEXT NOT NULL,
    population_id INTEGER NOT NULL REFERENCES populations(id),
    network_id INTEGER NOT NULL REFERENCES networks(id),
    parameter_set_id INTEGER NOT NULL REFERENCES parameter_sets(id),
    random_seed INTEGER,
    status TEXT NOT NULL DEFAULT 'created',
    input_path TEXT,
    output_path TEXT
);

CREATE TABLE IF NOT EXISTS agent_results (
    run_id INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    agent_id INTEGER NOT NULL,
    mode TEXT NOT NULL,
    utility REAL NOT NULL,
    departure_time REAL NOT NULL,
    arrival_time REAL NOT NULL,
    travel_time REAL NOT NULL,
    surplus REAL NOT NULL,
    expected_arrival_time REAL,
    PRIMARY KEY (run_id, agent_id)
);

CREATE TABLE IF NOT EXISTS road_path_segments (
    run_id INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    agent_id INTEGER NOT NULL,
    seq INTEGER NOT NULL,
    edge_id INTEGER NOT NULL,
    entry_time REAL NOT NULL,
    travel_time REAL NOT NULL,
    PRIMARY KEY (run_id, agent_id, seq)
);

CREATE TABLE IF NOT EXISTS edge_results (
    run_id INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    seq INTEGER NOT NULL,
    edge_id INTEGER NOT NULL,
    time REAL NOT NULL,
    congestion REAL NOT NULL DEFAULT 0,
    travel_time REAL NOT NULL,
    speed REAL NOT NULL,
    PRIMARY KEY (run_id, seq)
);
CREATE INDEX IF NOT EXISTS idx_edge_results_edge ON edge_results(run_id, edge_id);

-- Schema version
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL
);
`

// migrations[i] upgrades a database from version i+1 to version i+2.
var migrations = []string{
	// v2: the population generation a run's input was assembled from.
	`ALTER TABLE runs ADD COLUMN input_seed INTEGER;
ALTER TABLE runs ADD COLUMN input_agents INTEGER;`,
}

// InitSchema initializes the database schema.
// It creates all tables and applies migrations as needed.
// Runs integrity validation before migrations on existing databases.
func InitSchema(ctx context.Context, db *sql.DB) error {
	currentVersion, err := getSchemaVersion(ctx, db)
	if err != nil {
		// Schema version table doesn't exist yet, create fresh schema
		if err := createSchema(ctx, db); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
		return nil
	}

	if err := ValidateIntegrity(ctx, db); err != nil {
		return fmt.Errorf("database integrity check failed: %w", err)
	}

	if currentVersion > SchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", currentVersion, SchemaVersion)
	}
	if currentVersion < SchemaVersion {
		if err := migrateSchema(ctx, db, currentVersion); err != nil {
			return fmt.Errorf("failed to migrate schema: %w", err)
		}
	}

	return nil
}

// getSchemaVersion returns the current schema version from the database.
// Returns 0 and an error if the schema_version table doesn't exist.
func getSchemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var version int
	err := db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_version`).Scan(&version)
	if err != nil {
		return 0, err
	}
	return version, nil
}

func createSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, schemaV1); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	for i, m := range migrations {
		if _, err := tx.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("failed to apply schema v%d: %w", i+2, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_version (version, applied_at) VALUES (?, datetime('now'))`,
		SchemaVersion); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}

	return tx.Commit()
}

// migrateSchema applies migrations from currentVersion to SchemaVersion,
// one transaction per version.
func migrateSchema(ctx context.Context, db *sql.DB, currentVersion int) error {
	for v := currentVersion; v < SchemaVersion; v++ {
		if err := applyMigration(ctx, db, v+1, migrations[v-1]); err != nil {
			return err
		}
	}
	return nil
}

func applyMigration(ctx context.Context, db *sql.DB, version int, stmt string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to apply schema v%d: %w", version, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_version (version, applied_at) VALUES (?, datetime('now'))`,
		version); err != nil {
		return fmt.Errorf("failed to record schema version %d: %w", version, err)
	}
	return tx.Commit()
}

// ValidateIntegrity runs PRAGMA integrity_check and PRAGMA
// foreign_key_check and returns an error describing any issue found.
func ValidateIntegrity(ctx context.Context, db *sql.DB) error {
	rows, err := db.QueryContext(ctx, `PRAGMA integrity_check`)
	if err != nil {
		return fmt.Errorf("failed to run integrity_check: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var result string
		if err := rows.Scan(&result); err != nil {
			return fmt.Errorf("failed to scan integrity_check result: %w", err)
		}
		if result != "ok" {
			return fmt.Errorf("integrity_check failed: %s", result)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read integrity_check result: %w", err)
	}

	fkRows, err := db.QueryContext(ctx, `PRAGMA foreign_key_check`)
	if err != nil {
		return fmt.Errorf("failed to run foreign_key_check: %w", err)
	}
	defer fkRows.Close()

	var fkErrors []string
	for fkRows.Next() {
		var table, parent string
		var rowid, fkid sql.NullInt64
		if err := fkRows.Scan(&table, &rowid, &parent, &fkid); err != nil {
			return fmt.Errorf("failed to scan foreign_key_check result: %w", err)
		}
		fkErrors = append(fkErrors, fmt.Sprintf("table=%s rowid=%d parent=%s fkid=%d", table, rowid.Int64, parent, fkid.Int64))
	}
	if len(fkErrors) > 0 {
		return fmt.Errorf("foreign_key_check failed: %v", fkErrors)
	}

	return nil
}
