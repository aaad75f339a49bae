package sync

import (
	"roundabout-sync/internal/inventory"
)

type Outcome int

const (
	// Unchanged means the reference points at a record the home base already knows by the same id.
	Unchanged Outcome = iota
	// Remapped means the record was created remotely under a new id.
	Remapped
	// Missing means the record was due to be created in this run but no new id was recorded.
	Missing
)

func (o Outcome) String() string {
	switch o {
	case Unchanged:
		return "unchanged"
	case Remapped:
		return "remapped"
	case Missing:
		return "missing"
	default:
		return "unknown"
	}
}

type Resolution struct {
	ID      int64
	Outcome Outcome
}

// Pair is one old -> new identifier correspondence.
type Pair struct {
	Old int64
	New int64
}

type refKey struct {
	kind inventory.Kind
	id   int64
}

// Remapper tracks identifiers of records created fresh on the home base.
// It is not safe for concurrent use; a run owns its remapper.
type Remapper struct {
	mappings map[refKey]int64
	expected map[refKey]struct{}
}

func NewRemapper() *Remapper {
	return &Remapper{
		mappings: make(map[refKey]int64),
		expected: make(map[refKey]struct{}),
	}
}

// Expect marks oldID as a record that will be created in this run, so that
// references to it can no longer fall back to the original value.
func (m *Remapper) Expect(kind inventory.Kind, oldID int64) {
	m.expected[refKey{kind, oldID}] = struct{}{}
}

func (m *Remapper) Record(kind inventory.Kind, oldID, newID int64) {
	m.mappings[refKey{kind, oldID}] = newID
}

func (m *Remapper) Lookup(kind inventory.Kind, oldID int64) (int64, bool) {
	id, ok := m.mappings[refKey{kind, oldID}]
	return id, ok
}

func (m *Remapper) Resolve(kind inventory.Kind, localID int64) Resolution {
	k := refKey{kind, localID}
	if id, ok := m.mappings[k]; ok {
		return Resolution{ID: id, Outcome: Remapped}
	}
	if _, ok := m.expected[k]; ok {
		return Resolution{ID: localID, Outcome: Missing}
	}
	return Resolution{ID: localID, Outcome: Unchanged}
}

func (m *Remapper) Len() int {
	return len(m.mappings)
}
