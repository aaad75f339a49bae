package inventory

import (
	"context"
	"database/sql"
	"fmt"
)

// sqliteSchema is the subset of the RDB schema read by the sync service,
// for sqlite-backed development instances.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS locations_location (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		parent_id INTEGER NULL,
		location_code TEXT NOT NULL DEFAULT '',
		weight INTEGER NULL,
		root_type TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS userdefinedfields_field (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		field_name TEXT NOT NULL UNIQUE,
		field_description TEXT NOT NULL DEFAULT '',
		field_type TEXT NOT NULL,
		field_default_value TEXT NOT NULL DEFAULT '',
		choice_field_options TEXT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS inventory_inventory (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		serial_number TEXT NOT NULL UNIQUE,
		old_serial_number TEXT NOT NULL DEFAULT '',
		part_id INTEGER NULL,
		revision_id INTEGER NULL,
		location_id INTEGER NULL,
		parent_id INTEGER NULL,
		build_id INTEGER NULL,
		assembly_part_id INTEGER NULL,
		assigned_destination_root_id INTEGER NULL,
		detail TEXT NOT NULL DEFAULT '',
		test_result BOOLEAN NULL,
		test_type TEXT NULL,
		flag BOOLEAN NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS inventory_action (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		action_type TEXT NOT NULL,
		object_type TEXT NOT NULL DEFAULT '',
		detail TEXT NOT NULL DEFAULT '',
		inventory_id INTEGER NULL,
		location_id INTEGER NULL,
		parent_id INTEGER NULL,
		build_id INTEGER NULL,
		deployment_id INTEGER NULL,
		user_id INTEGER NULL,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS userdefinedfields_fieldvalue (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		field_value TEXT NOT NULL DEFAULT '',
		field_id INTEGER NULL,
		inventory_id INTEGER NULL,
		part_id INTEGER NULL,
		user_id INTEGER NULL,
		is_current BOOLEAN NOT NULL DEFAULT 0,
		is_default_value BOOLEAN NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS inventory_photonote (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		photo TEXT NOT NULL,
		inventory_id INTEGER NULL,
		action_id INTEGER NULL,
		user_id INTEGER NULL
	)`,
	`CREATE TABLE IF NOT EXISTS field_instances_fieldinstance (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL DEFAULT '',
		start_date DATETIME NULL,
		end_date DATETIME NULL,
		notes TEXT NOT NULL DEFAULT '',
		is_this_instance BOOLEAN NOT NULL DEFAULT 0
	)`,
}

func CreateSQLiteSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range sqliteSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}
