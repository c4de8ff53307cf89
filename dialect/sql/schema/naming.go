package schema

import (
	"crypto/md5"
	"fmt"
	"strings"

	"github.com/go-openapi/inflect"
)

// DefaultMaxIdentifierLen is used when the dialect does not report one.
const DefaultMaxIdentifierLen = 63

var rules = ruleset()

func ruleset() *inflect.Ruleset {
	rules := inflect.NewDefaultRuleset()
	for _, w := range []string{"ID", "UUID", "SQL", "JSON", "URL"} {
		rules.AddAcronym(w)
	}
	return rules
}

// Naming derives deterministic constraint and index names from table and
// column identifiers. Both introspection and rename cascades recompute these
// names and compare by value: a dependent object is "default-named" exactly
// when its stored name equals the strategy's output for its identifiers.
type Naming struct {
	// MaxLen is the dialect's maximum identifier length. Names exceeding it
	// are truncated and suffixed with a hash of the full name.
	MaxLen int
}

// NewNaming returns a naming strategy honoring the given identifier limit.
func NewNaming(maxLen int) Naming {
	if maxLen <= 0 {
		maxLen = DefaultMaxIdentifierLen
	}
	return Naming{MaxLen: maxLen}
}

// PrimaryKeyName returns the default primary-key constraint name,
// e.g. PK_user_id for table "user" over column "id".
func (n Naming) PrimaryKeyName(table string, columns ...string) string {
	return n.fit(join("PK", table, columns...))
}

// UniqueName returns the default unique-constraint name (UQ_ prefix).
func (n Naming) UniqueName(table string, columns ...string) string {
	return n.fit(join("UQ", table, columns...))
}

// IndexName returns the default index name (IDX_ prefix).
func (n Naming) IndexName(table string, columns ...string) string {
	return n.fit(join("IDX", table, columns...))
}

// ForeignKeyName returns the default foreign-key constraint name (FK_ prefix).
func (n Naming) ForeignKeyName(table string, columns ...string) string {
	return n.fit(join("FK", table, columns...))
}

// CheckName returns the default check-constraint name. Expressions are not
// identifiers, so the expression contributes a short hash instead.
func (n Naming) CheckName(table, expression string) string {
	return n.fit(fmt.Sprintf("CHK_%s_%s", table, hash(expression)[:8]))
}

// ExclusionName returns the default exclusion-constraint name.
func (n Naming) ExclusionName(table, expression string) string {
	return n.fit(fmt.Sprintf("XCL_%s_%s", table, hash(expression)[:8]))
}

// SequenceName returns the name Postgres gives a serial column's sequence.
func (n Naming) SequenceName(table, column string) string {
	return n.fit(fmt.Sprintf("%s_%s_seq", table, column))
}

// EnumName returns the default enum type name for a column.
func (n Naming) EnumName(table, column string) string {
	return n.fit(fmt.Sprintf("%s_%s_enum", table, column))
}

// fit truncates names exceeding MaxLen, suffixing an md5 of the full name so
// distinct long names stay distinct.
func (n Naming) fit(name string) string {
	max := n.MaxLen
	if max <= 0 {
		max = DefaultMaxIdentifierLen
	}
	if len(name) <= max {
		return name
	}
	return fmt.Sprintf("%s_%s", name[:max-33], hash(name))
}

// Underscore converts a declared source name to snake_case.
func Underscore(s string) string {
	return rules.Underscore(s)
}

// Tableize converts an entity name to its default table name,
// e.g. "OrderItem" becomes "order_items".
func Tableize(s string) string {
	return rules.Tableize(s)
}

func join(prefix, table string, columns ...string) string {
	parts := append([]string{prefix, table}, columns...)
	return strings.Join(parts, "_")
}

func hash(s string) string {
	return fmt.Sprintf("%x", md5.Sum([]byte(s)))
}
