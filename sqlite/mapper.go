package sqlite

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/asaidimu/go-docstore/core/schema"
)

// quoteIdentifier safely quotes an identifier, such as a table or column name.
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// createTableSQL generates the DDL for a table holding the records a
// definition describes. Columns follow the sorted field names.
func createTableSQL(table string, sc *schema.SchemaDefinition) (string, error) {
	if len(sc.Fields) == 0 {
		return "", fmt.Errorf("schema %q declares no fields", sc.Name)
	}

	var sb strings.Builder
	sb.WriteString("CREATE TABLE IF NOT EXISTS ")
	sb.WriteString(quoteIdentifier(table))
	sb.WriteString(" (\n")

	var columns []string
	for _, name := range schema.SortedFieldNames(sc.Fields) {
		columnDef, err := columnDefinition(name, sc.Fields[name])
		if err != nil {
			return "", fmt.Errorf("error on field '%s': %w", name, err)
		}
		columns = append(columns, "    "+columnDef)
	}
	sb.WriteString(strings.Join(columns, ",\n"))

	for _, index := range sc.Indexes {
		if index.Type == schema.IndexTypePrimary && len(index.Fields) > 0 {
			quoted := make([]string, len(index.Fields))
			for i, f := range index.Fields {
				quoted[i] = quoteIdentifier(f)
			}
			sb.WriteString(",\n    PRIMARY KEY (" + strings.Join(quoted, ", ") + ")")
			break
		}
	}

	sb.WriteString("\n);")
	return sb.String(), nil
}

// columnDefinition constructs the DDL for a single column, including its
// constraints.
func columnDefinition(fieldName string, field *schema.FieldDefinition) (string, error) {
	parts := []string{quoteIdentifier(fieldName), columnType(field.Type)}

	if field.Required != nil && *field.Required {
		parts = append(parts, "NOT NULL")
	}
	if field.Default != nil {
		defVal, err := formatDefaultValue(field.Default, field.Type)
		if err != nil {
			return "", err
		}
		parts = append(parts, "DEFAULT "+defVal)
	}
	if field.Type == schema.FieldTypeEnum && len(field.Values) > 0 {
		var checkValues []string
		for _, v := range field.Values {
			valStr, _ := formatDefaultValue(v, schema.FieldTypeString)
			checkValues = append(checkValues, valStr)
		}
		parts = append(parts, fmt.Sprintf("CHECK(%s IN (%s))", quoteIdentifier(fieldName), strings.Join(checkValues, ", ")))
	}
	return strings.Join(parts, " "), nil
}

// columnType maps a field type to its SQLite storage class.
func columnType(fieldType schema.FieldType) string {
	switch fieldType {
	case schema.FieldTypeString, schema.FieldTypeEnum, schema.FieldTypeDate, schema.FieldTypeObjectID:
		return "TEXT"
	case schema.FieldTypeNumber, schema.FieldTypeDecimal:
		return "REAL"
	case schema.FieldTypeInteger, schema.FieldTypeBoolean:
		return "INTEGER"
	case schema.FieldTypeObject, schema.FieldTypeArray, schema.FieldTypeSet, schema.FieldTypeRecord:
		return "TEXT"
	default:
		return "BLOB"
	}
}

// formatDefaultValue renders a default value as a DDL literal.
func formatDefaultValue(value any, fieldType schema.FieldType) (string, error) {
	if value == nil {
		return "NULL", nil
	}
	switch fieldType {
	case schema.FieldTypeString, schema.FieldTypeEnum, schema.FieldTypeDate:
		return "'" + strings.ReplaceAll(fmt.Sprintf("%v", value), "'", "''") + "'", nil
	case schema.FieldTypeNumber, schema.FieldTypeInteger, schema.FieldTypeDecimal:
		return fmt.Sprintf("%v", value), nil
	case schema.FieldTypeBoolean:
		if b, ok := value.(bool); ok && b {
			return "1", nil
		}
		return "0", nil
	case schema.FieldTypeObject, schema.FieldTypeArray, schema.FieldTypeSet, schema.FieldTypeRecord:
		jsonBytes, err := json.Marshal(value)
		if err != nil {
			return "", fmt.Errorf("failed to marshal default value to JSON: %w", err)
		}
		return "'" + strings.ReplaceAll(string(jsonBytes), "'", "''") + "'", nil
	default:
		return "", fmt.Errorf("unsupported type for default value: %s", fieldType)
	}
}

// createIndexSQL generates the DDL for a secondary index. Primary indexes are
// part of the table definition and yield "".
func createIndexSQL(table string, index schema.IndexDefinition) string {
	if index.Type == schema.IndexTypePrimary {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("CREATE ")
	if (index.Unique != nil && *index.Unique) || index.Type == schema.IndexTypeUnique {
		sb.WriteString("UNIQUE ")
	}
	sb.WriteString("INDEX IF NOT EXISTS ")
	indexName := index.Name
	if indexName == "" {
		indexName = fmt.Sprintf("idx_%s_%s", table, strings.Join(index.Fields, "_"))
	}
	sb.WriteString(quoteIdentifier(indexName))
	sb.WriteString(" ON ")
	sb.WriteString(quoteIdentifier(table))
	sb.WriteString(" (")

	fieldParts := make([]string, 0, len(index.Fields))
	for _, field := range index.Fields {
		part := quoteIdentifier(field)
		if dot := strings.Index(field, "."); dot > 0 {
			part = fmt.Sprintf("json_extract(%s, '$.%s')", quoteIdentifier(field[:dot]), field[dot+1:])
		}
		if index.Order != nil && strings.EqualFold(*index.Order, "desc") {
			part += " DESC"
		}
		fieldParts = append(fieldParts, part)
	}
	sb.WriteString(strings.Join(fieldParts, ", "))
	sb.WriteString(");")
	return sb.String()
}
