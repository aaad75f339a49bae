package inventory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"roundabout-sync/internal/database"
)

var (
	ErrNotFieldInstance = errors.New("this is not a field instance of RDB")
	ErrNotFound         = errors.New("record not found")
)

type scanner interface {
	Scan(dest ...any) error
}

// table describes how one entity kind is stored in the RDB schema.
type table struct {
	name       string
	columns    string
	appendOnly bool
	scan       func(scanner) (Entity, error)
}

var tables = map[Kind]table{
	KindLocation: {
		name:    "locations_location",
		columns: "id, name, parent_id, location_code, weight, root_type, created_at, updated_at",
		scan: func(s scanner) (Entity, error) {
			var l Location
			err := s.Scan(&l.ID, &l.Name, &l.Parent, &l.LocationCode, &l.Weight, &l.RootType, &l.CreatedAt, &l.UpdatedAt)
			return &l, err
		},
	},
	KindField: {
		name:    "userdefinedfields_field",
		columns: "id, field_name, field_description, field_type, field_default_value, choice_field_options, created_at, updated_at",
		scan: func(s scanner) (Entity, error) {
			var (
				f       Field
				options sql.NullString
			)
			err := s.Scan(&f.ID, &f.FieldName, &f.FieldDescription, &f.FieldType, &f.FieldDefaultValue, &options, &f.CreatedAt, &f.UpdatedAt)
			if options.Valid && options.String != "" {
				f.ChoiceFieldOptions = json.RawMessage(options.String)
			}
			return &f, err
		},
	},
	KindInventory: {
		name: "inventory_inventory",
		columns: "id, serial_number, old_serial_number, part_id, revision_id, location_id, parent_id, build_id, " +
			"assembly_part_id, assigned_destination_root_id, detail, test_result, test_type, flag, created_at, updated_at",
		scan: func(s scanner) (Entity, error) {
			var i Inventory
			err := s.Scan(&i.ID, &i.SerialNumber, &i.OldSerialNumber, &i.Part, &i.Revision, &i.Location, &i.Parent, &i.Build,
				&i.AssemblyPart, &i.AssignedDestinationRoot, &i.Detail, &i.TestResult, &i.TestType, &i.Flag, &i.CreatedAt, &i.UpdatedAt)
			return &i, err
		},
	},
	KindAction: {
		name:       "inventory_action",
		columns:    "id, action_type, object_type, detail, inventory_id, location_id, parent_id, build_id, deployment_id, user_id, created_at",
		appendOnly: true,
		scan: func(s scanner) (Entity, error) {
			var a Action
			err := s.Scan(&a.ID, &a.ActionType, &a.ObjectType, &a.Detail, &a.Inventory, &a.Location, &a.Parent, &a.Build,
				&a.Deployment, &a.User, &a.CreatedAt)
			return &a, err
		},
	},
	KindFieldValue: {
		name:    "userdefinedfields_fieldvalue",
		columns: "id, field_value, field_id, inventory_id, part_id, user_id, is_current, is_default_value, created_at, updated_at",
		scan: func(s scanner) (Entity, error) {
			var v FieldValue
			err := s.Scan(&v.ID, &v.FieldValue, &v.Field, &v.Inventory, &v.Part, &v.User, &v.IsCurrent, &v.IsDefaultValue,
				&v.CreatedAt, &v.UpdatedAt)
			return &v, err
		},
	},
}

// Repository reads RDB records from the local database.
type Repository struct {
	db *database.Database
}

func NewRepository(db *database.Database) *Repository {
	return &Repository{db: db}
}

func lookup(kind Kind) (table, error) {
	t, ok := tables[kind]
	if !ok {
		return table{}, fmt.Errorf("no table for kind %q", kind)
	}
	return t, nil
}

// CreatedSince returns records of kind created at or after since, oldest first.
func (r *Repository) CreatedSince(ctx context.Context, kind Kind, since time.Time) ([]Entity, error) {
	t, err := lookup(kind)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE created_at >= ? ORDER BY created_at, id", t.columns, t.name)
	return r.query(ctx, t, query, since.UTC())
}

// UpdatedSince returns records updated at or after since that were created
// before it. Append-only kinds never have any.
func (r *Repository) UpdatedSince(ctx context.Context, kind Kind, since time.Time) ([]Entity, error) {
	t, err := lookup(kind)
	if err != nil {
		return nil, err
	}
	if t.appendOnly {
		return nil, nil
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE updated_at >= ? AND created_at < ? ORDER BY updated_at, id", t.columns, t.name)
	return r.query(ctx, t, query, since.UTC(), since.UTC())
}

func (r *Repository) query(ctx context.Context, t table, query string, args ...any) ([]Entity, error) {
	rows, err := r.db.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", t.name, err)
	}
	defer rows.Close()

	var out []Entity
	for rows.Next() {
		e, err := t.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", t.name, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *Repository) PhotosForAction(ctx context.Context, actionID int64) ([]Photo, error) {
	rows, err := r.db.DB.QueryContext(ctx,
		`SELECT id, photo, inventory_id, action_id, user_id FROM inventory_photonote WHERE action_id = ? ORDER BY id`, actionID)
	if err != nil {
		return nil, fmt.Errorf("query photos: %w", err)
	}
	defer rows.Close()

	var photos []Photo
	for rows.Next() {
		var p Photo
		if err := rows.Scan(&p.ID, &p.Path, &p.Inventory, &p.Action, &p.User); err != nil {
			return nil, err
		}
		photos = append(photos, p)
	}
	return photos, rows.Err()
}

const fieldInstanceColumns = "id, name, start_date, end_date, notes, is_this_instance"

func scanFieldInstance(s scanner) (*FieldInstance, error) {
	var fi FieldInstance
	if err := s.Scan(&fi.ID, &fi.Name, &fi.StartDate, &fi.EndDate, &fi.Notes, &fi.IsThisInstance); err != nil {
		return nil, err
	}
	return &fi, nil
}

// CurrentFieldInstance returns the registration flagged as this instance.
func (r *Repository) CurrentFieldInstance(ctx context.Context) (*FieldInstance, error) {
	row := r.db.DB.QueryRowContext(ctx,
		"SELECT "+fieldInstanceColumns+" FROM field_instances_fieldinstance WHERE is_this_instance = ? ORDER BY start_date DESC LIMIT 1", true)
	fi, err := scanFieldInstance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFieldInstance
	}
	if err != nil {
		return nil, err
	}
	if fi.StartDate == nil {
		return nil, fmt.Errorf("field instance %q has no start date", fi.Name)
	}
	return fi, nil
}

func (r *Repository) ListFieldInstances(ctx context.Context) ([]*FieldInstance, error) {
	rows, err := r.db.DB.QueryContext(ctx,
		"SELECT "+fieldInstanceColumns+" FROM field_instances_fieldinstance ORDER BY start_date DESC, id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*FieldInstance
	for rows.Next() {
		fi, err := scanFieldInstance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, fi)
	}
	return out, rows.Err()
}

func (r *Repository) GetFieldInstance(ctx context.Context, id int64) (*FieldInstance, error) {
	row := r.db.DB.QueryRowContext(ctx,
		"SELECT "+fieldInstanceColumns+" FROM field_instances_fieldinstance WHERE id = ?", id)
	fi, err := scanFieldInstance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return fi, err
}

// SaveFieldInstance inserts fi when its ID is zero and updates it otherwise.
// Flagging a row as this instance clears the flag on every other row.
func (r *Repository) SaveFieldInstance(ctx context.Context, fi *FieldInstance) error {
	if fi.StartDate == nil {
		now := time.Now().UTC()
		fi.StartDate = &now
	}
	return r.db.ExecTx(ctx, func(tx *sql.Tx) error {
		if fi.IsThisInstance {
			if _, err := tx.ExecContext(ctx,
				"UPDATE field_instances_fieldinstance SET is_this_instance = ? WHERE id <> ?", false, fi.ID); err != nil {
				return err
			}
		}
		if fi.ID == 0 {
			res, err := tx.ExecContext(ctx,
				"INSERT INTO field_instances_fieldinstance (name, start_date, end_date, notes, is_this_instance) VALUES (?, ?, ?, ?, ?)",
				fi.Name, fi.StartDate.UTC(), utcOrNil(fi.EndDate), fi.Notes, fi.IsThisInstance)
			if err != nil {
				return err
			}
			fi.ID, err = res.LastInsertId()
			return err
		}
		res, err := tx.ExecContext(ctx,
			"UPDATE field_instances_fieldinstance SET name = ?, start_date = ?, end_date = ?, notes = ?, is_this_instance = ? WHERE id = ?",
			fi.Name, fi.StartDate.UTC(), utcOrNil(fi.EndDate), fi.Notes, fi.IsThisInstance, fi.ID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (r *Repository) DeleteFieldInstance(ctx context.Context, id int64) error {
	res, err := r.db.DB.ExecContext(ctx, "DELETE FROM field_instances_fieldinstance WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func utcOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
