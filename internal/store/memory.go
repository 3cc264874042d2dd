package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/models"
	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/simerr"
	"github.com/tidwall/btree"
)

// key orders rows by owner, then by id.
type key struct {
	owner int64
	id    int64
}

type row[T any] struct {
	key   key
	value T
}

// table is an ordered set of rows. Rows of one owner are contiguous.
type table[T any] struct {
	tree *btree.BTreeG[row[T]]
}

func newTable[T any]() table[T] {
	return table[T]{tree: btree.NewBTreeG(func(a, b row[T]) bool {
		if a.key.owner != b.key.owner {
			return a.key.owner < b.key.owner
		}
		return a.key.id < b.key.id
	})}
}

func (t table[T]) set(owner, id int64, v T) {
	t.tree.Set(row[T]{key: key{owner, id}, value: v})
}

func (t table[T]) get(owner, id int64) (T, bool) {
	r, ok := t.tree.Get(row[T]{key: key{owner, id}})
	return r.value, ok
}

// owned returns the rows of owner in id order.
func (t table[T]) owned(owner int64) []T {
	var out []T
	t.tree.Ascend(row[T]{key: key{owner, minID}}, func(r row[T]) bool {
		if r.key.owner != owner {
			return false
		}
		out = append(out, r.value)
		return true
	})
	return out
}

// all returns every row in owner then id order.
func (t table[T]) all() []T {
	out := make([]T, 0, t.tree.Len())
	t.tree.Scan(func(r row[T]) bool {
		out = append(out, r.value)
		return true
	})
	return out
}

// deleteOwned removes the rows of owner and returns how many there were.
func (t table[T]) deleteOwned(owner int64) int {
	var keys []row[T]
	t.tree.Ascend(row[T]{key: key{owner, minID}}, func(r row[T]) bool {
		if r.key.owner != owner {
			return false
		}
		keys = append(keys, r)
		return true
	})
	for _, k := range keys {
		t.tree.Delete(k)
	}
	return len(keys)
}

const minID = -1 << 63

// Unowned records use owner 0.
const noOwner = 0

// MemoryStore implements Repository in memory. It is used by tests and by
// commands that run against an imported dataset without a database.
type MemoryStore struct {
	mu sync.RWMutex

	networks    table[models.Network]
	roadTypes   table[models.RoadType]
	nodes       table[models.Node]
	edges       table[models.Edge]
	zones       table[models.Zone]
	vehicles    table[models.Vehicle]
	preferences table[models.Preferences]
	odMatrices  table[models.ODMatrix]
	odPairs     table[models.ODPair]
	populations table[models.Population]
	segments    table[models.Segment]
	agents      table[models.Agent]
	paramSets   table[models.ParameterSet]
	runs        table[models.Run]

	agentResults table[models.AgentResult]
	roadPaths    table[models.AgentRoadPath]
	edgeResults  table[models.EdgeResult]
}

var _ Repository = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		networks:     newTable[models.Network](),
		roadTypes:    newTable[models.RoadType](),
		nodes:        newTable[models.Node](),
		edges:        newTable[models.Edge](),
		zones:        newTable[models.Zone](),
		vehicles:     newTable[models.Vehicle](),
		preferences:  newTable[models.Preferences](),
		odMatrices:   newTable[models.ODMatrix](),
		odPairs:      newTable[models.ODPair](),
		populations:  newTable[models.Population](),
		segments:     newTable[models.Segment](),
		agents:       newTable[models.Agent](),
		paramSets:    newTable[models.ParameterSet](),
		runs:         newTable[models.Run](),
		agentResults: newTable[models.AgentResult](),
		roadPaths:    newTable[models.AgentRoadPath](),
		edgeResults:  newTable[models.EdgeResult](),
	}
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) GetNetwork(ctx context.Context, id int64) (*models.Network, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.networks.get(noOwner, id)
	if !ok {
		return nil, simerr.NotFound("network", id)
	}
	return &n, nil
}

func (s *MemoryStore) ListNodes(ctx context.Context, networkID int64) ([]models.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nodes.owned(networkID), nil
}

func (s *MemoryStore) ListEdges(ctx context.Context, networkID int64) ([]models.Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.edges.owned(networkID), nil
}

func (s *MemoryStore) ListRoadTypes(ctx context.Context, networkID int64) ([]models.RoadType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.roadTypes.owned(networkID), nil
}

func (s *MemoryStore) ListZones(ctx context.Context, networkID int64) ([]models.Zone, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.zones.owned(networkID), nil
}

func (s *MemoryStore) ListVehicles(ctx context.Context) ([]models.Vehicle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.vehicles.owned(noOwner), nil
}

func (s *MemoryStore) GetPopulation(ctx context.Context, id int64) (*models.Population, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.populations.get(noOwner, id)
	if !ok {
		return nil, simerr.NotFound("population", id)
	}
	return &p, nil
}

func (s *MemoryStore) ListSegments(ctx context.Context, populationID int64) ([]models.Segment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.segments.owned(populationID), nil
}

func (s *MemoryStore) GetPreferences(ctx context.Context, id int64) (*models.Preferences, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.preferences.get(noOwner, id)
	if !ok {
		return nil, simerr.NotFound("preferences", id)
	}
	return &p, nil
}

func (s *MemoryStore) ListODPairs(ctx context.Context, matrixID int64) ([]models.ODPair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.odPairs.owned(matrixID), nil
}

// SaveAgents validates everything before touching the tables, so a failure
// or a cancelled context leaves the store unchanged.
func (s *MemoryStore) SaveAgents(ctx context.Context, populationID, seed int64, agents []models.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.populations.get(noOwner, populationID)
	if !ok {
		return simerr.NotFound("population", populationID)
	}
	if p.Generated {
		return fmt.Errorf("population %d: %w", populationID, simerr.ErrAlreadyGenerated)
	}
	for _, a := range agents {
		if a.ModeChoice == nil || a.DepartureTime == nil {
			return simerr.Configf("agent %d has no mode-choice or departure-time record", a.ID)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	for _, a := range agents {
		a.PopulationID = populationID
		s.agents.set(populationID, a.ID, a)
	}
	p.Generated = true
	p.RandomSeed = &seed
	s.populations.set(noOwner, populationID, p)
	return nil
}

func (s *MemoryStore) DeleteAgents(ctx context.Context, populationID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.populations.get(noOwner, populationID)
	if !ok {
		return 0, simerr.NotFound("population", populationID)
	}
	n := s.agents.deleteOwned(populationID)
	p.Generated = false
	s.populations.set(noOwner, populationID, p)
	return n, nil
}

func (s *MemoryStore) ListAgents(ctx context.Context, populationID int64) ([]models.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.agents.owned(populationID), nil
}

func (s *MemoryStore) CountAgents(ctx context.Context, populationID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.agents.owned(populationID)), nil
}

func (s *MemoryStore) GetRun(ctx context.Context, id int64) (*models.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runs.get(noOwner, id)
	if !ok {
		return nil, simerr.NotFound("run", id)
	}
	return &r, nil
}

func (s *MemoryStore) GetParameterSet(ctx context.Context, id int64) (*models.ParameterSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.paramSets.get(noOwner, id)
	if !ok {
		return nil, simerr.NotFound("parameter set", id)
	}
	return &p, nil
}

func (s *MemoryStore) SetRunInput(ctx context.Context, runID int64, path string, gen models.Generation) error {
	return s.updateRun(runID, func(r *models.Run) {
		r.InputPath = path
		r.InputGeneration = &gen
		r.Status = models.RunInputWritten
	})
}

func (s *MemoryStore) SetRunStatus(ctx context.Context, runID int64, status models.RunStatus) error {
	return s.updateRun(runID, func(r *models.Run) { r.Status = status })
}

func (s *MemoryStore) updateRun(runID int64, fn func(*models.Run)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs.get(noOwner, runID)
	if !ok {
		return simerr.NotFound("run", runID)
	}
	fn(&r)
	s.runs.set(noOwner, runID, r)
	return nil
}

func (s *MemoryStore) SaveRunResults(ctx context.Context, runID int64, outputPath string, res *models.RunResults) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.runs.get(noOwner, runID)
	if !ok {
		return simerr.NotFound("run", runID)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.agentResults.deleteOwned(runID)
	s.roadPaths.deleteOwned(runID)
	s.edgeResults.deleteOwned(runID)

	for _, ar := range res.AgentResults {
		ar.RunID = runID
		s.agentResults.set(runID, ar.AgentID, ar)
	}
	for _, p := range res.RoadPaths {
		if len(p.Segments) == 0 {
			continue
		}
		p.RunID = runID
		p.Segments = append([]models.PathSegment(nil), p.Segments...)
		s.roadPaths.set(runID, p.AgentID, p)
	}
	for i, er := range res.EdgeResults {
		er.RunID = runID
		s.edgeResults.set(runID, int64(i), er)
	}

	r.OutputPath = outputPath
	r.Status = models.RunIngested
	s.runs.set(noOwner, runID, r)
	return nil
}

func (s *MemoryStore) ListAgentResults(ctx context.Context, runID int64) ([]models.AgentResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.agentResults.owned(runID), nil
}

func (s *MemoryStore) ListRoadPaths(ctx context.Context, runID int64) ([]models.AgentRoadPath, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.roadPaths.owned(runID), nil
}

func (s *MemoryStore) ListEdgeResults(ctx context.Context, runID int64) ([]models.EdgeResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.edgeResults.owned(runID), nil
}

// Import upserts every record of ds. Generation state and run progress are
// kept for records that already exist.
func (s *MemoryStore) Import(ctx context.Context, ds *models.Dataset) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, n := range ds.Networks {
		s.networks.set(noOwner, n.ID, n)
	}
	for _, rt := range ds.RoadTypes {
		if rt.Congestion == "" {
			rt.Congestion = models.CongestionFreeFlow
		}
		s.roadTypes.set(rt.NetworkID, rt.ID, rt)
	}
	for _, n := range ds.Nodes {
		s.nodes.set(n.NetworkID, n.ID, n)
	}
	for _, e := range ds.Edges {
		s.edges.set(e.NetworkID, e.ID, e)
	}
	for _, z := range ds.Zones {
		s.zones.set(z.NetworkID, z.ID, z)
	}
	for _, v := range ds.Vehicles {
		if v.SpeedFunction == "" {
			v.SpeedFunction = models.SpeedBase
		}
		s.vehicles.set(noOwner, v.ID, v)
	}
	for _, p := range ds.Preferences {
		s.preferences.set(noOwner, p.ID, p)
	}
	for _, m := range ds.ODMatrices {
		s.odMatrices.set(noOwner, m.ID, m)
	}
	for _, p := range ds.ODPairs {
		s.odPairs.set(p.MatrixID, p.ID, p)
	}
	for _, p := range ds.Populations {
		if old, ok := s.populations.get(noOwner, p.ID); ok {
			p.Generated = old.Generated
		} else {
			p.Generated = false
		}
		s.populations.set(noOwner, p.ID, p)
	}
	for _, seg := range ds.Segments {
		s.segments.set(seg.PopulationID, seg.ID, seg)
	}
	for _, p := range ds.ParameterSets {
		s.paramSets.set(noOwner, p.ID, p)
	}
	for _, r := range ds.Runs {
		if old, ok := s.runs.get(noOwner, r.ID); ok {
			r.Status, r.InputPath, r.OutputPath = old.Status, old.InputPath, old.OutputPath
			r.InputGeneration = old.InputGeneration
		} else {
			r.Status, r.InputPath, r.OutputPath = models.RunCreated, "", ""
			r.InputGeneration = nil
		}
		s.runs.set(noOwner, r.ID, r)
	}
	return nil
}

// Export returns every curated record. Agents and run results are left out.
func (s *MemoryStore) Export(ctx context.Context) (*models.Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	return &models.Dataset{
		Networks:      s.networks.all(),
		RoadTypes:     s.roadTypes.all(),
		Nodes:         s.nodes.all(),
		Edges:         s.edges.all(),
		Zones:         s.zones.all(),
		Vehicles:      s.vehicles.all(),
		Preferences:   s.preferences.all(),
		ODMatrices:    s.odMatrices.all(),
		ODPairs:       s.odPairs.all(),
		Populations:   s.populations.all(),
		Segments:      s.segments.all(),
		ParameterSets: s.paramSets.all(),
		Runs:          s.runs.all(),
	}, nil
}
