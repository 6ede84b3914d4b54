// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package sql is a SQLite-backed saga.Persistence implementation for
// single-node deployments, following the reference relational layout: one
// table per workflow definition with columns id, version, data (JSON), and
// a generated column per declared mapsTo field for indexing.
package sql

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"regexp"
	"time"

	_ "modernc.org/sqlite"

	"github.com/riverrun/msgbus/pkg/bus"
	"github.com/riverrun/msgbus/pkg/buserrors"
	"github.com/riverrun/msgbus/pkg/saga"
)

// Config contains SQLite connection configuration.
type Config struct {
	// Path is the database file path. ":memory:" opens a private,
	// in-process database.
	Path string

	// WAL enables Write-Ahead Logging mode for concurrent reads.
	WAL bool
}

// Backend is a SQLite saga.Persistence implementation. One table is
// created per workflow definition the first time InitializeWorkflow sees
// it.
type Backend struct {
	db         *sql.DB
	serializer bus.Serializer

	tablesInitialized map[string]bool
}

var tableNamePattern = regexp.MustCompile(`[^a-z0-9_]+`)

// New opens (creating if necessary) a SQLite database at cfg.Path and
// configures it for single-writer saga persistence.
func New(cfg Config, serializer bus.Serializer) (*Backend, error) {
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("saga/sql: open database: %w", err)
	}

	// SQLite serializes writes; one connection avoids SQLITE_BUSY under
	// concurrent saves from parallel onWhen dispatch.
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("saga/sql: connect: %w", err)
	}

	b := &Backend{db: db, serializer: serializer, tablesInitialized: make(map[string]bool)}
	if err := b.configurePragmas(ctx, cfg.WAL); err != nil {
		db.Close()
		return nil, fmt.Errorf("saga/sql: configure pragmas: %w", err)
	}

	return b, nil
}

func (b *Backend) configurePragmas(ctx context.Context, enableWAL bool) error {
	pragmas := []string{
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	if enableWAL {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL")
	}

	for _, pragma := range pragmas {
		if _, err := b.db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("exec %s: %w", pragma, err)
		}
	}
	return nil
}

// tableName derives a safe SQL identifier from a workflow definition name.
func tableName(defName string) string {
	return "saga_" + tableNamePattern.ReplaceAllString(defName, "_")
}

// InitializeWorkflow creates def's table (id, version, data) and a
// secondary index on every mapsTo field it declares, generated from the
// JSON column via SQLite's json_extract.
func (b *Backend) InitializeWorkflow(ctx context.Context, def *saga.Definition) error {
	table := tableName(def.Name)

	createTable := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id TEXT PRIMARY KEY,
		version INTEGER NOT NULL,
		status TEXT NOT NULL,
		data TEXT NOT NULL
	)`, table)
	if _, err := b.db.ExecContext(ctx, createTable); err != nil {
		return &buserrors.PersistenceError{Operation: "initializeWorkflow", Cause: err}
	}

	for _, mapsTo := range def.MapsToFields() {
		column := "mapsto_" + tableNamePattern.ReplaceAllString(mapsTo, "_")
		addColumn := fmt.Sprintf(
			`ALTER TABLE %s ADD COLUMN %s TEXT GENERATED ALWAYS AS (json_extract(data, '$.%s')) VIRTUAL`,
			table, column, mapsTo,
		)
		// SQLite has no "ADD COLUMN IF NOT EXISTS"; a duplicate-column
		// error means a prior InitializeWorkflow call already added it.
		if _, err := b.db.ExecContext(ctx, addColumn); err != nil && !isDuplicateColumn(err) {
			return &buserrors.PersistenceError{Operation: "initializeWorkflow", Cause: err}
		}

		index := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_%s ON %s(%s)`, table, column, table, column)
		if _, err := b.db.ExecContext(ctx, index); err != nil {
			return &buserrors.PersistenceError{Operation: "initializeWorkflow", Cause: err}
		}
	}

	return nil
}

func isDuplicateColumn(err error) bool {
	return err != nil && regexp.MustCompile(`duplicate column name`).MatchString(err.Error())
}

// GetWorkflowState returns running instances of def whose mapsTo field
// equals key, using the generated column's index.
func (b *Backend) GetWorkflowState(ctx context.Context, def *saga.Definition, mapsTo string, key any, includeCompleted bool) ([]saga.State, error) {
	if key == nil || reflect.ValueOf(key).IsZero() {
		return nil, nil
	}

	table := tableName(def.Name)
	column := "mapsto_" + tableNamePattern.ReplaceAllString(mapsTo, "_")

	query := fmt.Sprintf(`SELECT data FROM %s WHERE %s = ?`, table, column)
	args := []any{fmt.Sprintf("%v", key)}
	if !includeCompleted {
		query += " AND status = ?"
		args = append(args, string(saga.StatusRunning))
	}

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &buserrors.PersistenceError{Operation: "getWorkflowState", Cause: err}
	}
	defer rows.Close()

	var out []saga.State
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, &buserrors.PersistenceError{Operation: "getWorkflowState", Cause: err}
		}

		ctor := func() any { return def.NewState() }
		restored, err := b.serializer.Deserialize(data, ctor)
		if err != nil {
			return nil, &buserrors.PersistenceError{Operation: "getWorkflowState", Cause: err}
		}
		out = append(out, restored.(saga.State))
	}

	return out, rows.Err()
}

// SaveWorkflowState upserts state per the version-CAS rule described on
// saga.Persistence.
func (b *Backend) SaveWorkflowState(ctx context.Context, def *saga.Definition, state saga.State) error {
	table := tableName(def.Name)
	meta := state.WorkflowMeta()

	data, err := b.serializer.Serialize(state)
	if err != nil {
		return &buserrors.PersistenceError{Operation: "saveWorkflowState", Cause: err}
	}

	if meta.Version == 1 {
		insert := fmt.Sprintf(`INSERT INTO %s (id, version, status, data) VALUES (?, 1, ?, ?)`, table)
		if _, err := b.db.ExecContext(ctx, insert, meta.WorkflowID, string(meta.Status), data); err != nil {
			return &buserrors.PersistenceError{Operation: "saveWorkflowState", Cause: err}
		}
		return nil
	}

	oldVersion := meta.Version - 1
	update := fmt.Sprintf(`UPDATE %s SET version = ?, status = ?, data = ? WHERE id = ? AND version = ?`, table)
	result, err := b.db.ExecContext(ctx, update, meta.Version, string(meta.Status), data, meta.WorkflowID, oldVersion)
	if err != nil {
		return &buserrors.PersistenceError{Operation: "saveWorkflowState", Cause: err}
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return &buserrors.PersistenceError{Operation: "saveWorkflowState", Cause: err}
	}
	if affected == 0 {
		return &buserrors.WorkflowStateNotFoundError{WorkflowID: meta.WorkflowID}
	}

	return nil
}

// Close closes the underlying database connection.
func (b *Backend) Close() error {
	return b.db.Close()
}
