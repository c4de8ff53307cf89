package schema

import (
	"slices"

	"github.com/syssam/strata/dialect"
)

// Capabilities is the static fact table of one dialect: which column types
// it accepts, which of those carry length/precision/scale, how defaults are
// spelled, and which engine features exist. Consumed by the query runner,
// the diff engine and the DDL renderers.
type Capabilities struct {
	Dialect          string
	MaxIdentifierLen int
	// ColumnTypes is the set of supported base types.
	ColumnTypes []string
	// LengthTypes accept a single length argument, e.g. varchar(255).
	LengthTypes []string
	// PrecisionTypes accept a precision argument, e.g. timestamp(6).
	PrecisionTypes []string
	// ScaleTypes accept precision and scale, e.g. numeric(10,2).
	ScaleTypes []string
	// DefaultLengths holds the implicit length the engine applies when a
	// declared column omits one, keyed by type. Diffing consults it so an
	// introspected default length is not re-flagged as a change.
	DefaultLengths map[string]string
	// DefaultPrecisions mirrors DefaultLengths for precision-bearing types.
	DefaultPrecisions map[string]int
	// NowFunc is the idiomatic current-timestamp spelling.
	NowFunc string
	// SpatialTypes is the set of supported spatial feature types.
	SpatialTypes     []string
	NativeEnum       bool
	TransactionalDDL bool
	Upsert           bool
	Returning        bool
}

// SupportsType reports whether the base type is known to the dialect.
func (c Capabilities) SupportsType(t string) bool {
	return slices.Contains(c.ColumnTypes, t)
}

// WithLength reports whether the type accepts a length argument.
func (c Capabilities) WithLength(t string) bool {
	return slices.Contains(c.LengthTypes, t)
}

// WithPrecision reports whether the type accepts a precision argument.
func (c Capabilities) WithPrecision(t string) bool {
	return slices.Contains(c.PrecisionTypes, t) || c.WithScale(t)
}

// WithScale reports whether the type accepts precision and scale.
func (c Capabilities) WithScale(t string) bool {
	return slices.Contains(c.ScaleTypes, t)
}

// DefaultLength returns the implicit length of the type, if any.
func (c Capabilities) DefaultLength(t string) (string, bool) {
	l, ok := c.DefaultLengths[t]
	return l, ok
}

// Spatial reports whether the type is a spatial feature type.
func (c Capabilities) Spatial(t string) bool {
	return slices.Contains(c.SpatialTypes, t)
}

// ByDialect returns the capability table of the named dialect.
func ByDialect(name string) (Capabilities, bool) {
	switch name {
	case dialect.Postgres:
		return postgresCaps, true
	case dialect.MySQL:
		return mysqlCaps, true
	case dialect.SQLite:
		return sqliteCaps, true
	}
	return Capabilities{}, false
}

var postgresCaps = Capabilities{
	Dialect:          dialect.Postgres,
	MaxIdentifierLen: 63,
	ColumnTypes: []string{
		"smallint", "integer", "bigint", "smallserial", "serial", "bigserial",
		"numeric", "decimal", "real", "double precision", "money",
		"character varying", "varchar", "character", "char", "text", "citext",
		"bytea", "bit", "bit varying", "varbit",
		"timestamp", "timestamp without time zone", "timestamp with time zone",
		"timestamptz", "date", "time", "time without time zone",
		"time with time zone", "timetz", "interval",
		"boolean", "bool", "enum", "point", "line", "lseg", "box", "path",
		"polygon", "circle", "cidr", "inet", "macaddr", "macaddr8",
		"tsvector", "tsquery", "uuid", "xml", "json", "jsonb", "int4range",
		"int8range", "numrange", "tsrange", "tstzrange", "daterange",
		"geometry", "geography", "cube", "ltree", "hstore",
	},
	LengthTypes: []string{
		"character varying", "varchar", "character", "char", "bit",
		"bit varying", "varbit",
	},
	PrecisionTypes: []string{
		"timestamp", "timestamp without time zone", "timestamp with time zone",
		"timestamptz", "time", "time without time zone", "time with time zone",
		"timetz", "interval",
	},
	ScaleTypes:        []string{"numeric", "decimal"},
	DefaultLengths:    map[string]string{},
	DefaultPrecisions: map[string]int{"timestamp": 6, "timestamptz": 6, "time": 6},
	NowFunc:           "now()",
	SpatialTypes:      []string{"geometry", "geography"},
	NativeEnum:        true,
	TransactionalDDL:  true,
	Upsert:            true,
	Returning:         true,
}

var mysqlCaps = Capabilities{
	Dialect:          dialect.MySQL,
	MaxIdentifierLen: 64,
	ColumnTypes: []string{
		"tinyint", "smallint", "mediumint", "int", "integer", "bigint",
		"decimal", "numeric", "float", "double", "real", "bit", "bool",
		"boolean", "date", "datetime", "timestamp", "time", "year",
		"char", "varchar", "binary", "varbinary", "tinyblob", "blob",
		"mediumblob", "longblob", "tinytext", "text", "mediumtext",
		"longtext", "enum", "set", "json",
		"geometry", "point", "linestring", "polygon", "multipoint",
		"multilinestring", "multipolygon", "geometrycollection",
	},
	LengthTypes: []string{
		"char", "varchar", "binary", "varbinary", "bit",
		"tinyint", "smallint", "mediumint", "int", "integer", "bigint",
	},
	PrecisionTypes: []string{"datetime", "timestamp", "time"},
	ScaleTypes:     []string{"decimal", "numeric", "float", "double"},
	DefaultLengths: map[string]string{
		"varchar":   "255",
		"char":      "1",
		"binary":    "1",
		"varbinary": "255",
		"int":       "11",
		"integer":   "11",
		"tinyint":   "4",
		"smallint":  "6",
		"mediumint": "9",
		"bigint":    "20",
	},
	DefaultPrecisions: map[string]int{},
	NowFunc:           "CURRENT_TIMESTAMP",
	SpatialTypes: []string{
		"geometry", "point", "linestring", "polygon", "multipoint",
		"multilinestring", "multipolygon", "geometrycollection",
	},
	NativeEnum:       false,
	TransactionalDDL: false,
	Upsert:           true,
	Returning:        false,
}

var sqliteCaps = Capabilities{
	Dialect: dialect.SQLite,
	// SQLite has no meaningful identifier limit; keep the derived-name
	// budget aligned with the largest SQL dialect instead.
	MaxIdentifierLen: 64,
	ColumnTypes: []string{
		"integer", "int", "bigint", "real", "double", "float", "numeric",
		"decimal", "text", "varchar", "char", "clob", "blob", "boolean",
		"date", "datetime", "json", "uuid",
	},
	LengthTypes:       []string{"varchar", "char"},
	PrecisionTypes:    []string{},
	ScaleTypes:        []string{"numeric", "decimal"},
	DefaultLengths:    map[string]string{},
	DefaultPrecisions: map[string]int{},
	NowFunc:           "CURRENT_TIMESTAMP",
	SpatialTypes:      []string{},
	NativeEnum:        false,
	TransactionalDDL:  true,
	Upsert:            true,
	Returning:         true,
}
