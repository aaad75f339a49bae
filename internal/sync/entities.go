package sync

import (
	"roundabout-sync/internal/inventory"
)

type reference struct {
	field string
	kind  inventory.Kind
}

// entitySpec describes how one kind travels to the home base.
type entitySpec struct {
	kind     inventory.Kind
	endpoint string
	fields   []string
	refs     []reference
}

// selfRefs names the fields that point at another record of the same kind.
// Creates within the kind are ordered along them.
func (s entitySpec) selfRefs() []string {
	var out []string
	for _, ref := range s.refs {
		if ref.kind == s.kind {
			out = append(out, ref.field)
		}
	}
	return out
}

// syncOrder lists the kinds in dependency order; later kinds reference earlier ones.
var syncOrder = []entitySpec{
	{
		kind:     inventory.KindLocation,
		endpoint: "locations/",
		fields:   []string{"id", "name", "parent", "location_code", "weight", "root_type", "created_at", "updated_at"},
		refs:     []reference{{"parent", inventory.KindLocation}},
	},
	{
		kind:     inventory.KindField,
		endpoint: "user-defined-fields/fields/",
		fields: []string{"id", "field_name", "field_description", "field_type", "field_default_value",
			"choice_field_options", "created_at", "updated_at"},
	},
	{
		kind:     inventory.KindInventory,
		endpoint: "inventory/",
		fields: []string{"id", "serial_number", "old_serial_number", "part", "revision", "location", "parent", "build",
			"assembly_part", "assigned_destination_root", "detail", "test_result", "test_type", "flag",
			"created_at", "updated_at"},
		refs: []reference{
			{"location", inventory.KindLocation},
			{"parent", inventory.KindInventory},
			{"assigned_destination_root", inventory.KindInventory},
		},
	},
	{
		kind:     inventory.KindAction,
		endpoint: "actions/",
		fields: []string{"id", "action_type", "object_type", "detail", "inventory", "location", "parent", "build",
			"deployment", "user", "created_at"},
		refs: []reference{
			{"inventory", inventory.KindInventory},
			{"location", inventory.KindLocation},
			{"parent", inventory.KindInventory},
		},
	},
	{
		kind:     inventory.KindFieldValue,
		endpoint: "user-defined-fields/field-values/",
		fields: []string{"id", "field_value", "field", "inventory", "part", "user", "is_current", "is_default_value",
			"created_at", "updated_at"},
		refs: []reference{
			{"field", inventory.KindField},
			{"inventory", inventory.KindInventory},
		},
	},
}

const photoEndpoint = "photos/"

// Kinds returns every synchronized kind in run order, photos last.
func Kinds() []inventory.Kind {
	out := make([]inventory.Kind, 0, len(syncOrder)+1)
	for _, s := range syncOrder {
		out = append(out, s.kind)
	}
	return append(out, inventory.KindPhoto)
}
