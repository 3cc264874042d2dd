package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/choice"
	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/models"
	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/simerr"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteStore implements Repository on a SQLite database.
// Every bulk write runs in a single transaction.
type SQLiteStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	dbPath string
}

var _ Repository = (*SQLiteStore)(nil)

// NewSQLiteStore opens (creating if needed) the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite works best with a single writer
	db.SetMaxOpenConns(1)

	if err := InitSchema(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db, dbPath: dbPath}, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.dbPath
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// queryAll runs query and scans every row with scan.
func queryAll[T any](ctx context.Context, db *sql.DB, scan func(*sql.Rows) (T, error), query string, args ...any) ([]T, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// --- networks ---

func (s *SQLiteStore) GetNetwork(ctx context.Context, id int64) (*models.Network, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n models.Network
	err := s.db.QueryRowContext(ctx, `SELECT id, name FROM networks WHERE id = ?`, id).Scan(&n.ID, &n.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, simerr.NotFound("network", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get network %d: %w", id, err)
	}
	return &n, nil
}

func (s *SQLiteStore) ListNodes(ctx context.Context, networkID int64) ([]models.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	nodes, err := queryAll(ctx, s.db, func(rows *sql.Rows) (models.Node, error) {
		var n models.Node
		var name sql.NullString
		err := rows.Scan(&n.ID, &n.NetworkID, &name)
		n.Name = name.String
		return n, err
	}, `SELECT id, network_id, name FROM nodes WHERE network_id = ? ORDER BY id`, networkID)
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}
	return nodes, nil
}

func (s *SQLiteStore) ListEdges(ctx context.Context, networkID int64) ([]models.Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	edges, err := queryAll(ctx, s.db, func(rows *sql.Rows) (models.Edge, error) {
		var e models.Edge
		var name sql.NullString
		var speed sql.NullFloat64
		var lanes sql.NullInt64
		err := rows.Scan(&e.ID, &e.NetworkID, &e.Source, &e.Target, &e.RoadTypeID, &name, &e.Length, &speed, &lanes)
		e.Name = name.String
		e.Speed = floatPtr(speed)
		if lanes.Valid {
			l := int(lanes.Int64)
			e.Lanes = &l
		}
		return e, err
	}, `SELECT id, network_id, source, target, road_type_id, name, length, speed, lanes
		FROM edges WHERE network_id = ? ORDER BY id`, networkID)
	if err != nil {
		return nil, fmt.Errorf("failed to list edges: %w", err)
	}
	return edges, nil
}

func (s *SQLiteStore) ListRoadTypes(ctx context.Context, networkID int64) ([]models.RoadType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	types, err := queryAll(ctx, s.db, func(rows *sql.Rows) (models.RoadType, error) {
		var rt models.RoadType
		var congestion string
		var capacity, p1, p2 sql.NullFloat64
		err := rows.Scan(&rt.ID, &rt.NetworkID, &rt.Name, &congestion, &rt.DefaultSpeed, &rt.DefaultLanes, &capacity, &p1, &p2)
		rt.Congestion = models.CongestionKind(congestion)
		rt.Capacity, rt.Param1, rt.Param2 = floatPtr(capacity), floatPtr(p1), floatPtr(p2)
		return rt, err
	}, `SELECT id, network_id, name, congestion, default_speed, default_lanes, capacity, param1, param2
		FROM road_types WHERE network_id = ? ORDER BY id`, networkID)
	if err != nil {
		return nil, fmt.Errorf("failed to list road types: %w", err)
	}
	return types, nil
}

func (s *SQLiteStore) ListZones(ctx context.Context, networkID int64) ([]models.Zone, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	zones, err := queryAll(ctx, s.db, func(rows *sql.Rows) (models.Zone, error) {
		var z models.Zone
		var name sql.NullString
		var node sql.NullInt64
		err := rows.Scan(&z.ID, &z.NetworkID, &name, &node)
		z.Name = name.String
		z.NodeID = int64Ptr(node)
		return z, err
	}, `SELECT id, network_id, name, node_id FROM zones WHERE network_id = ? ORDER BY id`, networkID)
	if err != nil {
		return nil, fmt.Errorf("failed to list zones: %w", err)
	}
	return zones, nil
}

func (s *SQLiteStore) ListVehicles(ctx context.Context) ([]models.Vehicle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	vehicles, err := queryAll(ctx, s.db, func(rows *sql.Rows) (models.Vehicle, error) {
		var v models.Vehicle
		var fn string
		err := rows.Scan(&v.ID, &v.Name, &v.Length, &fn, &v.SpeedValue)
		v.SpeedFunction = models.SpeedFunctionKind(fn)
		return v, err
	}, `SELECT id, name, length, speed_function, speed_value FROM vehicles ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list vehicles: %w", err)
	}
	return vehicles, nil
}

// --- populations ---

func (s *SQLiteStore) GetPopulation(ctx context.Context, id int64) (*models.Population, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var p models.Population
	var seed sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, network_id, name, generated, random_seed FROM populations WHERE id = ?`, id,
	).Scan(&p.ID, &p.NetworkID, &p.Name, &p.Generated, &seed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, simerr.NotFound("population", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get population %d: %w", id, err)
	}
	p.RandomSeed = int64Ptr(seed)
	return &p, nil
}

func (s *SQLiteStore) ListSegments(ctx context.Context, populationID int64) ([]models.Segment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	segs, err := queryAll(ctx, s.db, func(rows *sql.Rows) (models.Segment, error) {
		var seg models.Segment
		err := rows.Scan(&seg.ID, &seg.PopulationID, &seg.PreferencesID, &seg.MatrixID)
		return seg, err
	}, `SELECT id, population_id, preferences_id, matrix_id FROM segments WHERE population_id = ? ORDER BY id`, populationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list segments: %w", err)
	}
	return segs, nil
}

func (s *SQLiteStore) GetPreferences(ctx context.Context, id int64) (*models.Preferences, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var name, profile string
	err := s.db.QueryRowContext(ctx, `SELECT name, profile FROM preferences WHERE id = ?`, id).Scan(&name, &profile)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, simerr.NotFound("preferences", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get preferences %d: %w", id, err)
	}

	var p models.Preferences
	if err := json.Unmarshal([]byte(profile), &p); err != nil {
		return nil, fmt.Errorf("failed to decode preferences %d: %w", id, err)
	}
	p.ID, p.Name = id, name
	return &p, nil
}

func (s *SQLiteStore) ListODPairs(ctx context.Context, matrixID int64) ([]models.ODPair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pairs, err := queryAll(ctx, s.db, func(rows *sql.Rows) (models.ODPair, error) {
		var p models.ODPair
		err := rows.Scan(&p.ID, &p.MatrixID, &p.Origin, &p.Destination, &p.Size)
		return p, err
	}, `SELECT id, matrix_id, origin, destination, size FROM od_pairs WHERE matrix_id = ? ORDER BY id`, matrixID)
	if err != nil {
		return nil, fmt.Errorf("failed to list OD pairs: %w", err)
	}
	return pairs, nil
}

// SaveAgents inserts the agent set of a population in one transaction.
// A cancelled context rolls everything back.
func (s *SQLiteStore) SaveAgents(ctx context.Context, populationID, seed int64, agents []models.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var generated bool
	err = tx.QueryRowContext(ctx, `SELECT generated FROM populations WHERE id = ?`, populationID).Scan(&generated)
	if errors.Is(err, sql.ErrNoRows) {
		return simerr.NotFound("population", populationID)
	}
	if err != nil {
		return fmt.Errorf("failed to read population %d: %w", populationID, err)
	}
	if generated {
		return fmt.Errorf("population %d: %w", populationID, simerr.ErrAlreadyGenerated)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO agents (
		population_id, id, origin, destination, mode_choice, t_star, delta, beta, gamma,
		desired_arrival, departure_time, vehicle_id, vot
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare agent insert: %w", err)
	}
	defer stmt.Close()

	for _, a := range agents {
		if err := ctx.Err(); err != nil {
			return err
		}
		mc, dt, err := encodeAgentChoices(a)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx,
			populationID, a.ID, a.Origin, a.Destination, mc, a.TStar, a.Delta, a.Beta, a.Gamma,
			boolInt(a.DesiredArrival), dt, a.VehicleID, a.VOT,
		); err != nil {
			return fmt.Errorf("failed to insert agent %d: %w", a.ID, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE populations SET generated = 1, random_seed = ? WHERE id = ?`, seed, populationID,
	); err != nil {
		return fmt.Errorf("failed to mark population %d generated: %w", populationID, err)
	}

	return tx.Commit()
}

func encodeAgentChoices(a models.Agent) (string, string, error) {
	if a.ModeChoice == nil || a.DepartureTime == nil {
		return "", "", simerr.Configf("agent %d has no mode-choice or departure-time record", a.ID)
	}
	mc, err := json.Marshal(a.ModeChoice)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode mode choice of agent %d: %w", a.ID, err)
	}
	dt, err := json.Marshal(a.DepartureTime)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode departure time of agent %d: %w", a.ID, err)
	}
	return string(mc), string(dt), nil
}

func (s *SQLiteStore) DeleteAgents(ctx context.Context, populationID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE populations SET generated = 0 WHERE id = ?`, populationID)
	if err != nil {
		return 0, fmt.Errorf("failed to reset population %d: %w", populationID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, simerr.NotFound("population", populationID)
	}

	res, err = tx.ExecContext(ctx, `DELETE FROM agents WHERE population_id = ?`, populationID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete agents: %w", err)
	}
	deleted, _ := res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit: %w", err)
	}
	return int(deleted), nil
}

func (s *SQLiteStore) ListAgents(ctx context.Context, populationID int64) ([]models.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	agents, err := queryAll(ctx, s.db, func(rows *sql.Rows) (models.Agent, error) {
		var a models.Agent
		var mc, dt string
		if err := rows.Scan(&a.PopulationID, &a.ID, &a.Origin, &a.Destination, &mc, &a.TStar, &a.Delta,
			&a.Beta, &a.Gamma, &a.DesiredArrival, &dt, &a.VehicleID, &a.VOT); err != nil {
			return a, err
		}
		var err error
		if a.ModeChoice, err = choice.DecodeModeChoice([]byte(mc)); err != nil {
			return a, fmt.Errorf("agent %d: %w", a.ID, err)
		}
		if a.DepartureTime, err = choice.DecodeDepartureTime([]byte(dt)); err != nil {
			return a, fmt.Errorf("agent %d: %w", a.ID, err)
		}
		return a, nil
	}, `SELECT population_id, id, origin, destination, mode_choice, t_star, delta, beta, gamma,
		desired_arrival, departure_time, vehicle_id, vot
		FROM agents WHERE population_id = ? ORDER BY id`, populationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	return agents, nil
}

func (s *SQLiteStore) CountAgents(ctx context.Context, populationID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM agents WHERE population_id = ?`, populationID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count agents: %w", err)
	}
	return n, nil
}

// --- runs ---

func (s *SQLiteStore) GetRun(ctx context.Context, id int64) (*models.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var r models.Run
	var seed, inputSeed, inputAgents sql.NullInt64
	var status string
	var input, output sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT id, project_id, name, population_id, network_id, parameter_set_id,
		random_seed, status, input_path, output_path, input_seed, input_agents FROM runs WHERE id = ?`, id,
	).Scan(&r.ID, &r.ProjectID, &r.Name, &r.PopulationID, &r.NetworkID, &r.ParameterSetID,
		&seed, &status, &input, &output, &inputSeed, &inputAgents)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, simerr.NotFound("run", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run %d: %w", id, err)
	}
	r.RandomSeed = int64Ptr(seed)
	r.Status = models.RunStatus(status)
	r.InputPath, r.OutputPath = input.String, output.String
	if inputSeed.Valid && inputAgents.Valid {
		r.InputGeneration = &models.Generation{Seed: inputSeed.Int64, Agents: int(inputAgents.Int64)}
	}
	return &r, nil
}

func (s *SQLiteStore) GetParameterSet(ctx context.Context, id int64) (*models.ParameterSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var p models.ParameterSet
	var learning string
	err := s.db.QueryRowContext(ctx, `SELECT id, name, period_start, period_end, period_interval,
		learning_model, learning_alpha, max_iterations, update_ratio, edge_approx_bound, space_approx_bound
		FROM parameter_sets WHERE id = ?`, id,
	).Scan(&p.ID, &p.Name, &p.PeriodStart, &p.PeriodEnd, &p.PeriodInterval,
		&learning, &p.LearningAlpha, &p.MaxIterations, &p.UpdateRatio, &p.EdgeApproxBound, &p.SpaceApproxBound)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, simerr.NotFound("parameter set", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get parameter set %d: %w", id, err)
	}
	p.LearningModel = models.LearningModelKind(learning)
	return &p, nil
}

func (s *SQLiteStore) SetRunInput(ctx context.Context, runID int64, path string, gen models.Generation) error {
	return s.updateRun(ctx, runID,
		`UPDATE runs SET input_path = ?, input_seed = ?, input_agents = ?, status = ? WHERE id = ?`,
		path, gen.Seed, gen.Agents, string(models.RunInputWritten), runID)
}

func (s *SQLiteStore) SetRunStatus(ctx context.Context, runID int64, status models.RunStatus) error {
	return s.updateRun(ctx, runID, `UPDATE runs SET status = ? WHERE id = ?`, string(status), runID)
}

func (s *SQLiteStore) updateRun(ctx context.Context, runID int64, query string, args ...any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update run %d: %w", runID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return simerr.NotFound("run", runID)
	}
	return nil
}

// SaveRunResults replaces the results of a run in one transaction.
func (s *SQLiteStore) SaveRunResults(ctx context.Context, runID int64, outputPath string, res *models.RunResults) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	upd, err := tx.ExecContext(ctx, `UPDATE runs SET output_path = ?, status = ? WHERE id = ?`,
		outputPath, string(models.RunIngested), runID)
	if err != nil {
		return fmt.Errorf("failed to update run %d: %w", runID, err)
	}
	if n, _ := upd.RowsAffected(); n == 0 {
		return simerr.NotFound("run", runID)
	}

	for _, table := range []string{"agent_results", "road_path_segments", "edge_results"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE run_id = ?", runID); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	if err := execEach(ctx, tx, `INSERT INTO agent_results (run_id, agent_id, mode, utility, departure_time,
		arrival_time, travel_time, surplus, expected_arrival_time) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		len(res.AgentResults), func(i int) []any {
			r := res.AgentResults[i]
			return []any{runID, r.AgentID, r.Mode, r.Utility, r.DepartureTime, r.ArrivalTime,
				r.TravelTime, r.Surplus, nullFloat(r.ExpectedArrivalTime)}
		}); err != nil {
		return fmt.Errorf("failed to insert agent results: %w", err)
	}

	type segRow struct {
		agentID int64
		seq     int
		seg     models.PathSegment
	}
	var segs []segRow
	for _, p := range res.RoadPaths {
		for i, seg := range p.Segments {
			segs = append(segs, segRow{p.AgentID, i, seg})
		}
	}
	if err := execEach(ctx, tx, `INSERT INTO road_path_segments (run_id, agent_id, seq, edge_id, entry_time,
		travel_time) VALUES (?, ?, ?, ?, ?, ?)`, len(segs), func(i int) []any {
		r := segs[i]
		return []any{runID, r.agentID, r.seq, r.seg.EdgeID, r.seg.EntryTime, r.seg.TravelTime}
	}); err != nil {
		return fmt.Errorf("failed to insert road paths: %w", err)
	}

	if err := execEach(ctx, tx, `INSERT INTO edge_results (run_id, seq, edge_id, time, congestion,
		travel_time, speed) VALUES (?, ?, ?, ?, ?, ?, ?)`, len(res.EdgeResults), func(i int) []any {
		r := res.EdgeResults[i]
		return []any{runID, i, r.EdgeID, r.Time, r.Congestion, r.TravelTime, r.Speed}
	}); err != nil {
		return fmt.Errorf("failed to insert edge results: %w", err)
	}

	return tx.Commit()
}

func (s *SQLiteStore) ListAgentResults(ctx context.Context, runID int64) ([]models.AgentResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results, err := queryAll(ctx, s.db, func(rows *sql.Rows) (models.AgentResult, error) {
		var r models.AgentResult
		var expected sql.NullFloat64
		err := rows.Scan(&r.RunID, &r.AgentID, &r.Mode, &r.Utility, &r.DepartureTime, &r.ArrivalTime,
			&r.TravelTime, &r.Surplus, &expected)
		r.ExpectedArrivalTime = floatPtr(expected)
		return r, err
	}, `SELECT run_id, agent_id, mode, utility, departure_time, arrival_time, travel_time, surplus,
		expected_arrival_time FROM agent_results WHERE run_id = ? ORDER BY agent_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list agent results: %w", err)
	}
	return results, nil
}

func (s *SQLiteStore) ListRoadPaths(ctx context.Context, runID int64) ([]models.AgentRoadPath, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type row struct {
		agentID int64
		seg     models.PathSegment
	}
	rows, err := queryAll(ctx, s.db, func(rows *sql.Rows) (row, error) {
		var r row
		err := rows.Scan(&r.agentID, &r.seg.EdgeID, &r.seg.EntryTime, &r.seg.TravelTime)
		return r, err
	}, `SELECT agent_id, edge_id, entry_time, travel_time FROM road_path_segments
		WHERE run_id = ? ORDER BY agent_id, seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list road paths: %w", err)
	}

	var paths []models.AgentRoadPath
	for _, r := range rows {
		if len(paths) == 0 || paths[len(paths)-1].AgentID != r.agentID {
			paths = append(paths, models.AgentRoadPath{RunID: runID, AgentID: r.agentID})
		}
		last := &paths[len(paths)-1]
		last.Segments = append(last.Segments, r.seg)
	}
	return paths, nil
}

func (s *SQLiteStore) ListEdgeResults(ctx context.Context, runID int64) ([]models.EdgeResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results, err := queryAll(ctx, s.db, func(rows *sql.Rows) (models.EdgeResult, error) {
		var r models.EdgeResult
		err := rows.Scan(&r.RunID, &r.EdgeID, &r.Time, &r.Congestion, &r.TravelTime, &r.Speed)
		return r, err
	}, `SELECT run_id, edge_id, time, congestion, travel_time, speed FROM edge_results
		WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list edge results: %w", err)
	}
	return results, nil
}

// --- import ---

// Import upserts every record of ds in dependency order.
func (s *SQLiteStore) Import(ctx context.Context, ds *models.Dataset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	profiles := make([]string, len(ds.Preferences))
	for i, p := range ds.Preferences {
		b, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("failed to encode preferences %d: %w", p.ID, err)
		}
		profiles[i] = string(b)
	}

	steps := []struct {
		table string
		cols  []string
		n     int
		args  func(i int) []any
	}{
		{"networks", []string{"id", "name"}, len(ds.Networks), func(i int) []any {
			n := ds.Networks[i]
			return []any{n.ID, n.Name}
		}},
		{"road_types", []string{"id", "network_id", "name", "congestion", "default_speed", "default_lanes",
			"capacity", "param1", "param2"}, len(ds.RoadTypes), func(i int) []any {
			rt := ds.RoadTypes[i]
			congestion := rt.Congestion
			if congestion == "" {
				congestion = models.CongestionFreeFlow
			}
			return []any{rt.ID, rt.NetworkID, rt.Name, string(congestion), rt.DefaultSpeed, rt.DefaultLanes,
				nullFloat(rt.Capacity), nullFloat(rt.Param1), nullFloat(rt.Param2)}
		}},
		{"nodes", []string{"id", "network_id", "name"}, len(ds.Nodes), func(i int) []any {
			n := ds.Nodes[i]
			return []any{n.ID, n.NetworkID, n.Name}
		}},
		{"edges", []string{"id", "network_id", "source", "target", "road_type_id", "name", "length",
			"speed", "lanes"}, len(ds.Edges), func(i int) []any {
			e := ds.Edges[i]
			var lanes any
			if e.Lanes != nil {
				lanes = *e.Lanes
			}
			return []any{e.ID, e.NetworkID, e.Source, e.Target, e.RoadTypeID, e.Name, e.Length,
				nullFloat(e.Speed), lanes}
		}},
		{"zones", []string{"id", "network_id", "name", "node_id"}, len(ds.Zones), func(i int) []any {
			z := ds.Zones[i]
			var node any
			if z.NodeID != nil {
				node = *z.NodeID
			}
			return []any{z.ID, z.NetworkID, z.Name, node}
		}},
		{"vehicles", []string{"id", "name", "length", "speed_function", "speed_value"}, len(ds.Vehicles), func(i int) []any {
			v := ds.Vehicles[i]
			fn := v.SpeedFunction
			if fn == "" {
				fn = models.SpeedBase
			}
			return []any{v.ID, v.Name, v.Length, string(fn), v.SpeedValue}
		}},
		{"preferences", []string{"id", "name", "profile"}, len(ds.Preferences), func(i int) []any {
			return []any{ds.Preferences[i].ID, ds.Preferences[i].Name, profiles[i]}
		}},
		{"od_matrices", []string{"id", "name"}, len(ds.ODMatrices), func(i int) []any {
			return []any{ds.ODMatrices[i].ID, ds.ODMatrices[i].Name}
		}},
		{"od_pairs", []string{"id", "matrix_id", "origin", "destination", "size"}, len(ds.ODPairs), func(i int) []any {
			p := ds.ODPairs[i]
			return []any{p.ID, p.MatrixID, p.Origin, p.Destination, p.Size}
		}},
		// generated is owned by SaveAgents and DeleteAgents.
		{"populations", []string{"id", "network_id", "name", "random_seed"}, len(ds.Populations), func(i int) []any {
			p := ds.Populations[i]
			var seed any
			if p.RandomSeed != nil {
				seed = *p.RandomSeed
			}
			return []any{p.ID, p.NetworkID, p.Name, seed}
		}},
		{"segments", []string{"id", "population_id", "preferences_id", "matrix_id"}, len(ds.Segments), func(i int) []any {
			seg := ds.Segments[i]
			return []any{seg.ID, seg.PopulationID, seg.PreferencesID, seg.MatrixID}
		}},
		{"parameter_sets", []string{"id", "name", "period_start", "period_end", "period_interval",
			"learning_model", "learning_alpha", "max_iterations", "update_ratio", "edge_approx_bound",
			"space_approx_bound"}, len(ds.ParameterSets), func(i int) []any {
			p := ds.ParameterSets[i]
			return []any{p.ID, p.Name, p.PeriodStart, p.PeriodEnd, p.PeriodInterval, string(p.LearningModel),
				p.LearningAlpha, p.MaxIterations, p.UpdateRatio, p.EdgeApproxBound, p.SpaceApproxBound}
		}},
		// status and document paths are owned by the workflow.
		{"runs", []string{"id", "project_id", "name", "population_id", "network_id", "parameter_set_id",
			"random_seed"}, len(ds.Runs), func(i int) []any {
			r := ds.Runs[i]
			var seed any
			if r.RandomSeed != nil {
				seed = *r.RandomSeed
			}
			return []any{r.ID, r.ProjectID, r.Name, r.PopulationID, r.NetworkID, r.ParameterSetID, seed}
		}},
	}

	for _, st := range steps {
		if err := execEach(ctx, tx, upsertSQL(st.table, st.cols...), st.n, st.args); err != nil {
			return fmt.Errorf("failed to import %s: %w", st.table, err)
		}
	}

	return tx.Commit()
}

// upsertSQL builds an insert keyed on cols[0] that updates the remaining
// columns of an existing row in place.
func upsertSQL(table string, cols ...string) string {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	sets := make([]string, 0, len(cols)-1)
	for _, c := range cols[1:] {
		sets = append(sets, c+" = excluded."+c)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(%s) DO UPDATE SET %s",
		table, strings.Join(cols, ", "), placeholders, cols[0], strings.Join(sets, ", "))
}

// execEach runs query once per row inside tx.
func execEach(ctx context.Context, tx *sql.Tx, query string, n int, args func(i int) []any) error {
	if n == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := 0; i < n; i++ {
		if _, err := stmt.ExecContext(ctx, args(i)...); err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
	}
	return nil
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	i := v.Int64
	return &i
}

func nullFloat(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// --- export ---

// Export returns every curated record. Agents and run results are left out.
func (s *SQLiteStore) Export(ctx context.Context) (*models.Dataset, error) {
	ds := &models.Dataset{}

	networkIDs, err := s.ids(ctx, "networks")
	if err != nil {
		return nil, err
	}
	for _, id := range networkIDs {
		n, err := s.GetNetwork(ctx, id)
		if err != nil {
			return nil, err
		}
		ds.Networks = append(ds.Networks, *n)

		roadTypes, err := s.ListRoadTypes(ctx, id)
		if err != nil {
			return nil, err
		}
		nodes, err := s.ListNodes(ctx, id)
		if err != nil {
			return nil, err
		}
		edges, err := s.ListEdges(ctx, id)
		if err != nil {
			return nil, err
		}
		zones, err := s.ListZones(ctx, id)
		if err != nil {
			return nil, err
		}
		ds.RoadTypes = append(ds.RoadTypes, roadTypes...)
		ds.Nodes = append(ds.Nodes, nodes...)
		ds.Edges = append(ds.Edges, edges...)
		ds.Zones = append(ds.Zones, zones...)
	}

	if ds.Vehicles, err = s.ListVehicles(ctx); err != nil {
		return nil, err
	}

	prefIDs, err := s.ids(ctx, "preferences")
	if err != nil {
		return nil, err
	}
	for _, id := range prefIDs {
		p, err := s.GetPreferences(ctx, id)
		if err != nil {
			return nil, err
		}
		ds.Preferences = append(ds.Preferences, *p)
	}

	s.mu.RLock()
	ds.ODMatrices, err = queryAll(ctx, s.db, func(rows *sql.Rows) (models.ODMatrix, error) {
		var m models.ODMatrix
		err := rows.Scan(&m.ID, &m.Name)
		return m, err
	}, `SELECT id, name FROM od_matrices ORDER BY id`)
	s.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("failed to list od matrices: %w", err)
	}
	for _, m := range ds.ODMatrices {
		pairs, err := s.ListODPairs(ctx, m.ID)
		if err != nil {
			return nil, err
		}
		ds.ODPairs = append(ds.ODPairs, pairs...)
	}

	popIDs, err := s.ids(ctx, "populations")
	if err != nil {
		return nil, err
	}
	for _, id := range popIDs {
		p, err := s.GetPopulation(ctx, id)
		if err != nil {
			return nil, err
		}
		segments, err := s.ListSegments(ctx, id)
		if err != nil {
			return nil, err
		}
		ds.Populations = append(ds.Populations, *p)
		ds.Segments = append(ds.Segments, segments...)
	}

	paramIDs, err := s.ids(ctx, "parameter_sets")
	if err != nil {
		return nil, err
	}
	for _, id := range paramIDs {
		p, err := s.GetParameterSet(ctx, id)
		if err != nil {
			return nil, err
		}
		ds.ParameterSets = append(ds.ParameterSets, *p)
	}

	runIDs, err := s.ids(ctx, "runs")
	if err != nil {
		return nil, err
	}
	for _, id := range runIDs {
		r, err := s.GetRun(ctx, id)
		if err != nil {
			return nil, err
		}
		ds.Runs = append(ds.Runs, *r)
	}

	return ds, nil
}

// ids lists the primary keys of a table in order. table is never user input.
func (s *SQLiteStore) ids(ctx context.Context, table string) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids, err := queryAll(ctx, s.db, func(rows *sql.Rows) (int64, error) {
		var id int64
		err := rows.Scan(&id)
		return id, err
	}, `SELECT id FROM `+table+` ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", table, err)
	}
	return ids, nil
}
