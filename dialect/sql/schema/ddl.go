package schema

import (
	"fmt"
	"strings"
)

// renderType renders a base type with its length/precision/scale modifiers
// according to the dialect's capability table. Types the table knows to
// carry an implicit length get it filled in, so a declared column without
// one compares equal to its introspected form.
func renderType(caps Capabilities, c *Column) (string, error) {
	t := strings.ToLower(c.Type)
	if t == "" {
		return "", fmt.Errorf("schema: column %q has no type", c.Name)
	}
	switch {
	case caps.WithScale(t) && c.Precision != nil && c.Scale != nil:
		return fmt.Sprintf("%s(%s,%s)", t, formatInt(c.Precision), formatInt(c.Scale)), nil
	case caps.WithPrecision(t) && c.Precision != nil:
		return fmt.Sprintf("%s(%s)", t, formatInt(c.Precision)), nil
	case caps.WithLength(t):
		l := c.Length
		if l == "" {
			l, _ = caps.DefaultLength(t)
		}
		if l != "" {
			return fmt.Sprintf("%s(%s)", t, l), nil
		}
	}
	return t, nil
}

// fkActions renders the ON DELETE / ON UPDATE / DEFERRABLE tail of a
// foreign-key clause.
func fkActions(fk *ForeignKey) string {
	var b strings.Builder
	if fk.OnDelete != "" && fk.OnDelete != NoAction {
		b.WriteString(" ON DELETE ")
		b.WriteString(string(fk.OnDelete))
	}
	if fk.OnUpdate != "" && fk.OnUpdate != NoAction {
		b.WriteString(" ON UPDATE ")
		b.WriteString(string(fk.OnUpdate))
	}
	if fk.Deferrable != "" {
		b.WriteString(" DEFERRABLE ")
		b.WriteString(fk.Deferrable)
	}
	return b.String()
}

// intValue converts a scanned catalog value to an int.
func intValue(v any) (int, bool) {
	switch v := v.(type) {
	case int64:
		return int(v), true
	case int:
		return v, true
	case []byte:
		var n int
		if _, err := fmt.Sscanf(string(v), "%d", &n); err == nil {
			return n, true
		}
	case string:
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			return n, true
		}
	}
	return 0, false
}

// boolValue converts a scanned catalog value to a bool. Catalogs report
// booleans as native bools, "YES"/"NO", "t"/"f" or 0/1 depending on the
// dialect and driver.
func boolValue(v any) bool {
	switch v := v.(type) {
	case bool:
		return v
	case int64:
		return v != 0
	case []byte:
		return truthy(string(v))
	case string:
		return truthy(v)
	}
	return false
}

func truthy(s string) bool {
	switch strings.ToLower(s) {
	case "yes", "true", "t", "1", "on", "always":
		return true
	}
	return false
}
