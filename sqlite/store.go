// Package sqlite keeps the field-type catalogs of document collections in a
// SQLite database. The catalog describes its own records with the same
// definition format and registers that definition on first use.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/asaidimu/go-docstore/core/persistence"
	"github.com/asaidimu/go-docstore/core/schema"
	"github.com/hashicorp/go-version"
	"go.uber.org/zap"
)

// dbRunner abstracts the methods shared by *sql.DB and *sql.Tx so the same
// code runs inside and outside a transaction.
type dbRunner interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// recordKey is the column pair identifying one stored definition.
var recordKey = []string{"name", "version"}

// SchemaStore is a persistence.SchemaCatalog backed by a SQLite table named
// persistence.SchemaCollectionName.
type SchemaStore struct {
	db     *sql.DB
	query  *recordQuery
	logger *zap.Logger
}

var _ persistence.SchemaCatalog = (*SchemaStore)(nil)

// NewSchemaStore creates the catalog table and its indexes if needed and
// registers the catalog's own definition. The caller owns db.
func NewSchemaStore(ctx context.Context, db *sql.DB, logger *zap.Logger) (*SchemaStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	def, err := persistence.CatalogSchema()
	if err != nil {
		return nil, err
	}
	q, err := newRecordQuery(persistence.SchemaCollectionName, def)
	if err != nil {
		return nil, err
	}
	s := &SchemaStore{db: db, query: q, logger: logger}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := s.createCollection(ctx, tx, def); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := s.put(ctx, tx, def); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit catalog setup: %w", err)
	}

	logger.Debug("Schema catalog ready", zap.String("table", persistence.SchemaCollectionName))
	return s, nil
}

// createCollection runs the table and index DDL of def.
func (s *SchemaStore) createCollection(ctx context.Context, r dbRunner, def *schema.SchemaDefinition) error {
	ddl, err := createTableSQL(s.query.table, def)
	if err != nil {
		return fmt.Errorf("failed to generate SQL for table %s: %w", s.query.table, err)
	}
	statements := []string{ddl}
	for _, index := range def.Indexes {
		if stmt := createIndexSQL(s.query.table, index); stmt != "" {
			statements = append(statements, stmt)
		}
	}
	for _, stmt := range statements {
		s.logger.Debug("Executing catalog DDL", zap.String("sql", stmt))
		if _, err := r.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute SQL statement '%s': %w", stmt, err)
		}
	}
	return nil
}

// Put stores def, replacing a stored definition with the same name and
// version.
func (s *SchemaStore) Put(ctx context.Context, def *schema.SchemaDefinition) error {
	return s.put(ctx, s.db, def)
}

func (s *SchemaStore) put(ctx context.Context, r dbRunner, def *schema.SchemaDefinition) error {
	record, err := persistence.NewSchemaRecord(def)
	if err != nil {
		return err
	}
	if _, err := version.NewVersion(record.Version); err != nil {
		return fmt.Errorf("schema %q has an invalid version %q: %w", record.Name, record.Version, err)
	}
	doc, err := record.Document()
	if err != nil {
		return err
	}
	stmt, params, err := s.query.upsertSQL(doc, recordKey)
	if err != nil {
		return fmt.Errorf("failed to generate INSERT SQL: %w", err)
	}

	s.logger.Debug("Storing schema", zap.String("name", record.Name), zap.String("version", record.Version))
	if _, err := r.ExecContext(ctx, stmt, params...); err != nil {
		s.logger.Error("Failed to store schema", zap.String("name", record.Name), zap.Error(err))
		return fmt.Errorf("failed to store schema %q: %w", record.Name, err)
	}
	return nil
}

// Schema implements persistence.SchemaCatalog with the newest stored
// version of name.
func (s *SchemaStore) Schema(ctx context.Context, name string) (*schema.SchemaDefinition, error) {
	records, err := s.records(ctx, schema.D{{Key: "name", Value: name}})
	if err != nil || len(records) == 0 {
		return nil, err
	}
	return records[len(records)-1].Definition()
}

// Version returns one stored version of name, or nil when it is absent.
func (s *SchemaStore) Version(ctx context.Context, name, version string) (*schema.SchemaDefinition, error) {
	records, err := s.records(ctx, schema.D{{Key: "name", Value: name}, {Key: "version", Value: version}})
	if err != nil || len(records) == 0 {
		return nil, err
	}
	return records[0].Definition()
}

// List returns every stored record ordered by name, then version.
func (s *SchemaStore) List(ctx context.Context) ([]*persistence.SchemaRecord, error) {
	return s.records(ctx, nil)
}

// Delete removes every version of name and returns how many were removed.
func (s *SchemaStore) Delete(ctx context.Context, name string) (int64, error) {
	if name == persistence.SchemaCollectionName {
		return 0, fmt.Errorf("cannot delete the catalog's own schema")
	}
	stmt, params, err := s.query.deleteSQL(schema.D{{Key: "name", Value: name}})
	if err != nil {
		return 0, err
	}
	s.logger.Debug("Executing SQL DELETE", zap.String("sql", stmt))
	result, err := s.db.ExecContext(ctx, stmt, params...)
	if err != nil {
		s.logger.Error("Failed to delete schema", zap.String("name", name), zap.Error(err))
		return 0, fmt.Errorf("failed to delete schema %q: %w", name, err)
	}
	return result.RowsAffected()
}

func (s *SchemaStore) records(ctx context.Context, where schema.D) ([]*persistence.SchemaRecord, error) {
	stmt, params, err := s.query.selectSQL(where, "name")
	if err != nil {
		return nil, err
	}
	s.logger.Debug("Executing SQL SELECT", zap.String("sql", stmt), zap.Any("params", params))

	rows, err := s.db.QueryContext(ctx, stmt, params...)
	if err != nil {
		s.logger.Error("Failed to execute SELECT query", zap.Error(err), zap.String("sql", stmt))
		return nil, fmt.Errorf("failed to execute SELECT query: %w", err)
	}
	defer rows.Close()

	docs, err := readRows(s.logger, s.query.schema, rows)
	if err != nil {
		return nil, err
	}
	records := make([]*persistence.SchemaRecord, 0, len(docs))
	for _, doc := range docs {
		record, err := persistence.SchemaRecordFromDocument(doc)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	slices.SortStableFunc(records, func(a, b *persistence.SchemaRecord) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return compareVersions(a.Version, b.Version)
	})
	return records, nil
}

// readRows converts rows into documents, restoring each column to the type
// its field declares.
func readRows(logger *zap.Logger, sc *schema.SchemaDefinition, rows *sql.Rows) ([]schema.Document, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}

	var results []schema.Document
	for rows.Next() {
		row := make(schema.Document, len(columns))
		values := make([]any, len(columns))
		scanArgs := make([]any, len(columns))
		for i := range values {
			scanArgs[i] = &values[i]
		}

		if err := rows.Scan(scanArgs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		for i, col := range columns {
			val := values[i]
			if val == nil {
				row[col] = nil
				continue
			}

			fieldDef, ok := sc.Fields[col]
			if !ok {
				logger.Warn("Column not found in schema, using raw value", zap.String("column", col))
				row[col] = val
				continue
			}

			switch fieldDef.Type {
			case schema.FieldTypeBoolean:
				if intVal, isInt := val.(int64); isInt {
					row[col] = intVal != 0
				} else {
					row[col] = val
				}
			case schema.FieldTypeString, schema.FieldTypeEnum, schema.FieldTypeDate, schema.FieldTypeObjectID:
				if byteVal, isByte := val.([]byte); isByte {
					row[col] = string(byteVal)
				} else {
					row[col] = val
				}
			case schema.FieldTypeObject, schema.FieldTypeArray, schema.FieldTypeSet, schema.FieldTypeRecord:
				var byteVal []byte
				switch v := val.(type) {
				case []byte:
					byteVal = v
				case string:
					byteVal = []byte(v)
				}
				var decoded any
				if byteVal != nil && json.Unmarshal(byteVal, &decoded) == nil {
					row[col] = decoded
				} else {
					row[col] = val
				}
			default:
				row[col] = val
			}
		}
		results = append(results, row)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error after scanning rows: %w", err)
	}
	return results, nil
}

// compareVersions orders versions by their numeric segments, so "1.0" and
// "1.0.0" are equal. Versions that do not parse sort before every valid one.
func compareVersions(a, b string) int {
	va, errA := version.NewVersion(a)
	vb, errB := version.NewVersion(b)
	switch {
	case errA != nil && errB != nil:
		return strings.Compare(a, b)
	case errA != nil:
		return -1
	case errB != nil:
		return 1
	}
	return va.Compare(vb)
}
