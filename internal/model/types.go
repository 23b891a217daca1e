package model

import (
	"fmt"
	"strings"
)

// SQLType is the declared SQL type of a column.
type SQLType string

const (
	TypeVarchar   SQLType = "VARCHAR"
	TypeBoolean   SQLType = "BOOLEAN"
	TypeTinyInt   SQLType = "TINYINT"
	TypeSmallInt  SQLType = "SMALLINT"
	TypeInteger   SQLType = "INTEGER"
	TypeBigInt    SQLType = "BIGINT"
	TypeFloat     SQLType = "FLOAT"
	TypeDouble    SQLType = "DOUBLE"
	TypeDate      SQLType = "DATE"
	TypeTimestamp SQLType = "TIMESTAMP"
	TypeObject    SQLType = "OBJECT"
	TypeArray     SQLType = "ARRAY"
	TypeOther     SQLType = "OTHER"
)

var sqlTypeAliases = map[string]SQLType{
	"VARCHAR":   TypeVarchar,
	"STRING":    TypeVarchar,
	"TEXT":      TypeVarchar,
	"KEYWORD":   TypeVarchar,
	"CHAR":      TypeVarchar,
	"BOOLEAN":   TypeBoolean,
	"BOOL":      TypeBoolean,
	"TINYINT":   TypeTinyInt,
	"BYTE":      TypeTinyInt,
	"SMALLINT":  TypeSmallInt,
	"SHORT":     TypeSmallInt,
	"INTEGER":   TypeInteger,
	"INT":       TypeInteger,
	"BIGINT":    TypeBigInt,
	"LONG":      TypeBigInt,
	"FLOAT":     TypeFloat,
	"REAL":      TypeFloat,
	"DOUBLE":    TypeDouble,
	"DATE":      TypeDate,
	"TIMESTAMP": TypeTimestamp,
	"OBJECT":    TypeObject,
	"NESTED":    TypeObject,
	"ARRAY":     TypeArray,
	"OTHER":     TypeOther,
}

// ParseSQLType resolves a type name (case-insensitive, common aliases
// accepted) to a SQLType.
func ParseSQLType(name string) (SQLType, error) {
	t, ok := sqlTypeAliases[strings.ToUpper(strings.TrimSpace(name))]
	if !ok {
		return "", fmt.Errorf("unknown SQL type %q", name)
	}
	return t, nil
}

// Numeric reports whether values of this type are numbers.
func (t SQLType) Numeric() bool {
	switch t {
	case TypeTinyInt, TypeSmallInt, TypeInteger, TypeBigInt, TypeFloat, TypeDouble:
		return true
	}
	return false
}

// ColumnTypes maps a column name to its declared type for one table.
type ColumnTypes map[string]SQLType

// TableTypes maps a table (index) name to its column types.
type TableTypes map[string]ColumnTypes

// Operation tags the role a Column plays in the projection.
type Operation int

const (
	OpNone Operation = iota
	OpCount
	OpCountDistinct
	OpSum
	OpAvg
	OpMin
	OpMax
	OpHighlight
	OpComputed
)

var operationNames = [...]string{
	OpNone:          "",
	OpCount:         "count",
	OpCountDistinct: "count_distinct",
	OpSum:           "sum",
	OpAvg:           "avg",
	OpMin:           "min",
	OpMax:           "max",
	OpHighlight:     "highlight",
	OpComputed:      "computed",
}

func (o Operation) String() string {
	if int(o) < len(operationNames) {
		return operationNames[o]
	}
	return fmt.Sprintf("operation(%d)", int(o))
}

// Aggregate reports whether the operation is evaluated by the backend as a
// metric aggregation.
func (o Operation) Aggregate() bool {
	switch o {
	case OpCount, OpCountDistinct, OpSum, OpAvg, OpMin, OpMax:
		return true
	}
	return false
}

// AggregateFunc maps a SQL function name to its Operation.
// The boolean is false for functions that are not aggregates.
func AggregateFunc(name string, distinct bool) (Operation, bool) {
	switch strings.ToLower(name) {
	case "count":
		if distinct {
			return OpCountDistinct, true
		}
		return OpCount, true
	case "sum":
		return OpSum, true
	case "avg":
		return OpAvg, true
	case "min":
		return OpMin, true
	case "max":
		return OpMax, true
	}
	return OpNone, false
}
