package graph

import (
	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/simerr"
)

// IndexMap is a bijection between relational ids and 0-based simulator
// indices. Index order is the order of the ids it was built from.
type IndexMap struct {
	ids   []int64
	index map[int64]int
}

// NewIndexMap builds an IndexMap over ids. A repeated id would break the
// bijection and is a configuration error.
func NewIndexMap(ids []int64) (*IndexMap, error) {
	m := &IndexMap{
		ids:   make([]int64, len(ids)),
		index: make(map[int64]int, len(ids)),
	}
	copy(m.ids, ids)
	for i, id := range ids {
		if _, dup := m.index[id]; dup {
			return nil, simerr.Configf("duplicate id %d in index map", id)
		}
		m.index[id] = i
	}
	return m, nil
}

// Index returns the simulator index of a relational id.
func (m *IndexMap) Index(id int64) (int, bool) {
	i, ok := m.index[id]
	return i, ok
}

// ID returns the relational id at a simulator index.
func (m *IndexMap) ID(idx int) (int64, bool) {
	if idx < 0 || idx >= len(m.ids) {
		return 0, false
	}
	return m.ids[idx], true
}

// Len returns the number of mapped ids.
func (m *IndexMap) Len() int {
	return len(m.ids)
}

// IDs returns the mapped ids in index order.
func (m *IndexMap) IDs() []int64 {
	out := make([]int64, len(m.ids))
	copy(out, m.ids)
	return out
}
