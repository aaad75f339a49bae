package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roundabout-sync/internal/inventory"
)

func TestRemapperOutcomes(t *testing.T) {
	m := NewRemapper()
	m.Expect(inventory.KindInventory, 20)
	m.Expect(inventory.KindInventory, 21)
	m.Record(inventory.KindInventory, 20, 1020)

	res := m.Resolve(inventory.KindInventory, 20)
	assert.Equal(t, Remapped, res.Outcome)
	assert.Equal(t, int64(1020), res.ID)

	res = m.Resolve(inventory.KindInventory, 21)
	assert.Equal(t, Missing, res.Outcome)

	res = m.Resolve(inventory.KindInventory, 5)
	assert.Equal(t, Unchanged, res.Outcome)
	assert.Equal(t, int64(5), res.ID)

	// Same local id, different kind.
	assert.Equal(t, Unchanged, m.Resolve(inventory.KindLocation, 20).Outcome)
}

func TestRemapperRecordOverwrites(t *testing.T) {
	m := NewRemapper()
	m.Record(inventory.KindLocation, 3, 103)
	m.Record(inventory.KindLocation, 1, 101)
	m.Record(inventory.KindLocation, 3, 203)

	assert.Equal(t, 2, m.Len())

	id, ok := m.Lookup(inventory.KindLocation, 3)
	require.True(t, ok)
	assert.Equal(t, int64(203), id)
}

func TestRewriteRefs(t *testing.T) {
	m := NewRemapper()
	m.Expect(inventory.KindLocation, 10)
	m.Record(inventory.KindLocation, 10, 1010)
	m.Expect(inventory.KindInventory, 20)

	spec := syncOrder[2]
	require.Equal(t, inventory.KindInventory, spec.kind)

	rec := Record{"location": int64(10), "parent": nil, "assigned_destination_root": int64(7)}
	require.NoError(t, rewriteRefs(rec, spec, m))
	assert.Equal(t, int64(1010), rec["location"])
	assert.Nil(t, rec["parent"])
	assert.Equal(t, int64(7), rec["assigned_destination_root"])

	rec = Record{"location": nil, "parent": int64(20)}
	err := rewriteRefs(rec, spec, m)
	assert.ErrorIs(t, err, ErrMappingMissing)
}

func TestDependenciesFirst(t *testing.T) {
	mk := func(id int64, parent any) pending {
		return pending{entity: &inventory.Location{ID: id}, record: Record{"id": id, "parent": parent}}
	}
	items := []pending{mk(3, int64(2)), mk(2, int64(1)), mk(1, nil), mk(4, int64(99))}

	var got []int64
	for _, it := range dependenciesFirst(items, []string{"parent"}) {
		got = append(got, it.entity.LocalID())
	}
	assert.Equal(t, []int64{1, 2, 3, 4}, got)

	// A cycle must not loop forever.
	cyclic := []pending{mk(5, int64(6)), mk(6, int64(5))}
	assert.Len(t, dependenciesFirst(cyclic, []string{"parent"}), 2)
}

func TestDependenciesFirstFollowsEverySelfReference(t *testing.T) {
	spec := syncOrder[2]
	require.Equal(t, inventory.KindInventory, spec.kind)
	assert.ElementsMatch(t, []string{"parent", "assigned_destination_root"}, spec.selfRefs())
	assert.Empty(t, syncOrder[3].selfRefs())

	mk := func(id int64, parent, root any) pending {
		return pending{
			entity: &inventory.Inventory{ID: id},
			record: Record{"id": id, "parent": parent, "assigned_destination_root": root},
		}
	}
	items := []pending{mk(20, nil, int64(21)), mk(21, int64(22), nil), mk(22, nil, nil)}

	var got []int64
	for _, it := range dependenciesFirst(items, spec.selfRefs()) {
		got = append(got, it.entity.LocalID())
	}
	assert.Equal(t, []int64{22, 21, 20}, got)
}
