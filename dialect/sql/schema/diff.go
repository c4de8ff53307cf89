package schema

import (
	"strings"
)

// A ChangeKind is a bit set describing how an inspected column deviates
// from its declared state.
type ChangeKind uint

const (
	// NoChange holds when a column matches its declared state.
	NoChange ChangeKind = 0
	// ChangeType covers the base type together with length, precision
	// and scale.
	ChangeType ChangeKind = 1 << iota
	// ChangeNullability covers NULL/NOT NULL transitions.
	ChangeNullability
	// ChangeDefault covers adding, dropping or replacing a default.
	ChangeDefault
	// ChangeUnique covers single-column unique constraints.
	ChangeUnique
	// ChangeGenerated covers generated-column expressions.
	ChangeGenerated
	// ChangeEnum covers the member set of an enum column.
	ChangeEnum
	// ChangeCharset covers the column character set.
	ChangeCharset
	// ChangeCollation covers the column collation.
	ChangeCollation
	// ChangeComment covers the column comment.
	ChangeComment
)

// Is reports whether k holds the given kind.
func (k ChangeKind) Is(kind ChangeKind) bool {
	return k == kind || k&kind != 0
}

// columnChange pairs the inspected column with its declared replacement.
type columnChange struct {
	kind ChangeKind
	from *Column // inspected state
	to   *Column // declared state
}

// tableDiff is the full deviation of one inspected table from its declared
// state. Constraint sets are compared by identity, not by position.
type tableDiff struct {
	addColumns    []*Column
	modifyColumns []columnChange
	dropColumns   []*Column

	addIndexes  []*Index
	dropIndexes []*Index

	addUniques  []*Unique
	dropUniques []*Unique

	addChecks  []*Check
	dropChecks []*Check

	addExclusions  []*Exclusion
	dropExclusions []*Exclusion

	addForeignKeys  []*ForeignKey
	dropForeignKeys []*ForeignKey

	comment bool
}

// empty reports whether the diff carries no work.
func (d *tableDiff) empty() bool {
	return len(d.addColumns) == 0 && len(d.modifyColumns) == 0 && len(d.dropColumns) == 0 &&
		len(d.addIndexes) == 0 && len(d.dropIndexes) == 0 &&
		len(d.addUniques) == 0 && len(d.dropUniques) == 0 &&
		len(d.addChecks) == 0 && len(d.dropChecks) == 0 &&
		len(d.addExclusions) == 0 && len(d.dropExclusions) == 0 &&
		len(d.addForeignKeys) == 0 && len(d.dropForeignKeys) == 0 &&
		!d.comment
}

// diffTables computes the deviation of the inspected table from the declared
// one. Column drops are reported unconditionally; the builder decides whether
// they are acted on.
func diffTables(d sqlDialect, want, have *Table) (*tableDiff, error) {
	diff := &tableDiff{}
	for _, wc := range want.Columns {
		hc, ok := have.Column(wc.Name)
		if !ok {
			diff.addColumns = append(diff.addColumns, wc)
			continue
		}
		kind, err := columnChanged(d, wc, hc)
		if err != nil {
			return nil, err
		}
		if kind != NoChange {
			diff.modifyColumns = append(diff.modifyColumns, columnChange{kind: kind, from: hc, to: wc})
		}
	}
	for _, hc := range have.Columns {
		if !want.HasColumn(hc.Name) {
			diff.dropColumns = append(diff.dropColumns, hc)
		}
	}
	diffIndexes(diff, want, have)
	diffConstraints(diff, want, have)
	if want.Comment != "" && want.Comment != have.Comment {
		diff.comment = true
	}
	return diff, nil
}

// columnChanged reports how the inspected column deviates from the declared
// one. Type and default comparison is delegated to the dialect, which knows
// how the server normalizes both.
func columnChanged(d sqlDialect, want, have *Column) (ChangeKind, error) {
	kind := NoChange
	wt, err := d.typeSQL(want)
	if err != nil {
		return NoChange, err
	}
	ht, err := d.typeSQL(have)
	if err != nil {
		return NoChange, err
	}
	if !strings.EqualFold(wt, ht) {
		kind |= ChangeType
	}
	// Primary-key columns are implicitly NOT NULL on every dialect.
	if !want.Primary && !have.Primary && want.Nullable != have.Nullable {
		kind |= ChangeNullability
	}
	if !d.defaultEqual(want, have) {
		kind |= ChangeDefault
	}
	if want.Unique != have.Unique {
		kind |= ChangeUnique
	}
	if want.Computed() != have.Computed() || want.GeneratedAs != have.GeneratedAs {
		kind |= ChangeGenerated
	}
	if len(want.Enums) > 0 && !equalStrings(want.Enums, have.Enums) {
		kind |= ChangeEnum
	}
	if want.Charset != "" && want.Charset != have.Charset {
		kind |= ChangeCharset
	}
	if want.Collation != "" && want.Collation != have.Collation {
		kind |= ChangeCollation
	}
	if want.Comment != "" && want.Comment != have.Comment {
		kind |= ChangeComment
	}
	return kind, nil
}

func diffIndexes(diff *tableDiff, want, have *Table) {
	hx := make(map[string]*Index, len(have.Indexes))
	for _, idx := range have.Indexes {
		hx[idx.Name] = idx
	}
	for _, idx := range want.Indexes {
		h, ok := hx[idx.Name]
		switch {
		case !ok:
			diff.addIndexes = append(diff.addIndexes, idx)
		case !indexEqual(idx, h):
			diff.dropIndexes = append(diff.dropIndexes, h)
			diff.addIndexes = append(diff.addIndexes, idx)
		}
	}
	for _, idx := range have.Indexes {
		if _, ok := want.Index(idx.Name); !ok {
			diff.dropIndexes = append(diff.dropIndexes, idx)
		}
	}
}

func indexEqual(a, b *Index) bool {
	return a.Unique == b.Unique && a.Where == b.Where && equalStrings(a.Columns, b.Columns)
}

// diffConstraints compares uniques, checks, exclusions and foreign keys.
// Uniques and foreign keys are identified by their column shape so that a
// renamed constraint with identical shape is not churned; checks and
// exclusions are identified by expression.
func diffConstraints(diff *tableDiff, want, have *Table) {
	hu := make(map[string]*Unique, len(have.Uniques))
	for _, u := range have.Uniques {
		hu[uniqueKey(u)] = u
	}
	for _, u := range want.Uniques {
		if _, ok := hu[uniqueKey(u)]; !ok {
			diff.addUniques = append(diff.addUniques, u)
		}
	}
	wu := make(map[string]*Unique, len(want.Uniques))
	for _, u := range want.Uniques {
		wu[uniqueKey(u)] = u
	}
	for _, u := range have.Uniques {
		if _, ok := wu[uniqueKey(u)]; !ok {
			diff.dropUniques = append(diff.dropUniques, u)
		}
	}

	hc := make(map[string]*Check, len(have.Checks))
	for _, c := range have.Checks {
		hc[normalizeExpr(c.Expression)] = c
	}
	for _, c := range want.Checks {
		if _, ok := hc[normalizeExpr(c.Expression)]; !ok {
			diff.addChecks = append(diff.addChecks, c)
		}
	}
	wc := make(map[string]*Check, len(want.Checks))
	for _, c := range want.Checks {
		wc[normalizeExpr(c.Expression)] = c
	}
	for _, c := range have.Checks {
		if _, ok := wc[normalizeExpr(c.Expression)]; !ok {
			diff.dropChecks = append(diff.dropChecks, c)
		}
	}

	hx := make(map[string]*Exclusion, len(have.Exclusions))
	for _, e := range have.Exclusions {
		hx[normalizeExpr(e.Expression)] = e
	}
	for _, e := range want.Exclusions {
		if _, ok := hx[normalizeExpr(e.Expression)]; !ok {
			diff.addExclusions = append(diff.addExclusions, e)
		}
	}
	wx := make(map[string]*Exclusion, len(want.Exclusions))
	for _, e := range want.Exclusions {
		wx[normalizeExpr(e.Expression)] = e
	}
	for _, e := range have.Exclusions {
		if _, ok := wx[normalizeExpr(e.Expression)]; !ok {
			diff.dropExclusions = append(diff.dropExclusions, e)
		}
	}

	hf := make(map[string]*ForeignKey, len(have.ForeignKeys))
	for _, fk := range have.ForeignKeys {
		hf[fkKey(fk)] = fk
	}
	for _, fk := range want.ForeignKeys {
		h, ok := hf[fkKey(fk)]
		switch {
		case !ok:
			diff.addForeignKeys = append(diff.addForeignKeys, fk)
		case !fkActionsEqual(fk, h):
			diff.dropForeignKeys = append(diff.dropForeignKeys, h)
			diff.addForeignKeys = append(diff.addForeignKeys, fk)
		}
	}
	wf := make(map[string]*ForeignKey, len(want.ForeignKeys))
	for _, fk := range want.ForeignKeys {
		wf[fkKey(fk)] = fk
	}
	for _, fk := range have.ForeignKeys {
		if _, ok := wf[fkKey(fk)]; !ok {
			diff.dropForeignKeys = append(diff.dropForeignKeys, fk)
		}
	}
}

func uniqueKey(u *Unique) string {
	return strings.Join(u.Columns, ",")
}

func fkKey(fk *ForeignKey) string {
	var b strings.Builder
	b.WriteString(strings.Join(fk.Columns, ","))
	b.WriteString("->")
	if fk.RefSchema != "" {
		b.WriteString(fk.RefSchema)
		b.WriteByte('.')
	}
	b.WriteString(fk.RefTable)
	b.WriteByte('(')
	b.WriteString(strings.Join(fk.RefColumns, ","))
	b.WriteByte(')')
	return b.String()
}

func fkActionsEqual(a, b *ForeignKey) bool {
	return refActionEqual(a.OnDelete, b.OnDelete) && refActionEqual(a.OnUpdate, b.OnUpdate) && a.Deferrable == b.Deferrable
}

// NO ACTION is the server default; an empty declared action matches it.
func refActionEqual(a, b ReferenceOption) bool {
	if a == "" {
		a = NoAction
	}
	if b == "" {
		b = NoAction
	}
	return a == b
}

// normalizeExpr strips the cosmetic whitespace and outer parentheses the
// server adds when it stores a check expression.
func normalizeExpr(expr string) string {
	s := strings.Join(strings.Fields(expr), " ")
	for strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") && balanced(s[1:len(s)-1]) {
		s = s[1 : len(s)-1]
	}
	return strings.ToLower(s)
}

func balanced(s string) bool {
	depth := 0
	for _, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return false
			}
		}
	}
	return depth == 0
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
