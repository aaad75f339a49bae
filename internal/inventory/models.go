package inventory

import (
	"encoding/json"
	"time"
)

// Kind names a synchronizable entity type.
type Kind string

const (
	KindLocation   Kind = "location"
	KindField      Kind = "field"
	KindInventory  Kind = "inventory"
	KindAction     Kind = "action"
	KindFieldValue Kind = "fieldvalue"
	KindPhoto      Kind = "photo"
)

// Entity is any record the field instance can push to the home base.
type Entity interface {
	Kind() Kind
	LocalID() int64
	Created() time.Time
	Updated() time.Time
}

type Location struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Parent       *int64    `json:"parent"`
	LocationCode string    `json:"location_code"`
	Weight       *int64    `json:"weight"`
	RootType     string    `json:"root_type"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (l *Location) Kind() Kind         { return KindLocation }
func (l *Location) LocalID() int64     { return l.ID }
func (l *Location) Created() time.Time { return l.CreatedAt }
func (l *Location) Updated() time.Time { return l.UpdatedAt }

// Field is a user-defined field definition.
type Field struct {
	ID                 int64           `json:"id"`
	FieldName          string          `json:"field_name"`
	FieldDescription   string          `json:"field_description"`
	FieldType          string          `json:"field_type"`
	FieldDefaultValue  string          `json:"field_default_value"`
	ChoiceFieldOptions json.RawMessage `json:"choice_field_options"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

func (f *Field) Kind() Kind         { return KindField }
func (f *Field) LocalID() int64     { return f.ID }
func (f *Field) Created() time.Time { return f.CreatedAt }
func (f *Field) Updated() time.Time { return f.UpdatedAt }

type Inventory struct {
	ID                      int64     `json:"id"`
	SerialNumber            string    `json:"serial_number"`
	OldSerialNumber         string    `json:"old_serial_number"`
	Part                    *int64    `json:"part"`
	Revision                *int64    `json:"revision"`
	Location                *int64    `json:"location"`
	Parent                  *int64    `json:"parent"`
	Build                   *int64    `json:"build"`
	AssemblyPart            *int64    `json:"assembly_part"`
	AssignedDestinationRoot *int64    `json:"assigned_destination_root"`
	Detail                  string    `json:"detail"`
	TestResult              *bool     `json:"test_result"`
	TestType                *string   `json:"test_type"`
	Flag                    bool      `json:"flag"`
	CreatedAt               time.Time `json:"created_at"`
	UpdatedAt               time.Time `json:"updated_at"`
}

func (i *Inventory) Kind() Kind         { return KindInventory }
func (i *Inventory) LocalID() int64     { return i.ID }
func (i *Inventory) Created() time.Time { return i.CreatedAt }
func (i *Inventory) Updated() time.Time { return i.UpdatedAt }

// Action types recorded in the history log.
const (
	ActionAdd             = "add"
	ActionUpdate          = "update"
	ActionLocationChange  = "locationchange"
	ActionSubChange       = "subchange"
	ActionAddToBuild      = "addtobuild"
	ActionRemoveFromBuild = "removefrombuild"
	ActionNote            = "note"
	ActionFieldChange     = "fieldchange"
	ActionFlag            = "flag"
	ActionMoveToTrash     = "movetotrash"
)

// Action is an append-only history entry; it is never updated.
type Action struct {
	ID         int64     `json:"id"`
	ActionType string    `json:"action_type"`
	ObjectType string    `json:"object_type"`
	Detail     string    `json:"detail"`
	Inventory  *int64    `json:"inventory"`
	Location   *int64    `json:"location"`
	Parent     *int64    `json:"parent"`
	Build      *int64    `json:"build"`
	Deployment *int64    `json:"deployment"`
	User       *int64    `json:"user"`
	CreatedAt  time.Time `json:"created_at"`
}

func (a *Action) Kind() Kind         { return KindAction }
func (a *Action) LocalID() int64     { return a.ID }
func (a *Action) Created() time.Time { return a.CreatedAt }
func (a *Action) Updated() time.Time { return a.CreatedAt }

type FieldValue struct {
	ID             int64     `json:"id"`
	FieldValue     string    `json:"field_value"`
	Field          *int64    `json:"field"`
	Inventory      *int64    `json:"inventory"`
	Part           *int64    `json:"part"`
	User           *int64    `json:"user"`
	IsCurrent      bool      `json:"is_current"`
	IsDefaultValue bool      `json:"is_default_value"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (v *FieldValue) Kind() Kind         { return KindFieldValue }
func (v *FieldValue) LocalID() int64     { return v.ID }
func (v *FieldValue) Created() time.Time { return v.CreatedAt }
func (v *FieldValue) Updated() time.Time { return v.UpdatedAt }

// Photo is a file attached to an action note. Path is relative to the media root.
type Photo struct {
	ID        int64
	Path      string
	Inventory *int64
	Action    *int64
	User      *int64
}

// FieldInstance registers an RDB deployment that runs disconnected in the field.
type FieldInstance struct {
	ID             int64      `json:"id"`
	Name           string     `json:"name"`
	StartDate      *time.Time `json:"start_date"`
	EndDate        *time.Time `json:"end_date"`
	Notes          string     `json:"notes"`
	IsThisInstance bool       `json:"is_this_instance"`
}
