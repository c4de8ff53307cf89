package schema

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNaming_DerivedNames(t *testing.T) {
	n := NewNaming(63)
	require.Equal(t, "PK_users_id", n.PrimaryKeyName("users", "id"))
	require.Equal(t, "UQ_users_email", n.UniqueName("users", "email"))
	require.Equal(t, "UQ_users_first_name_last_name", n.UniqueName("users", "first_name", "last_name"))
	require.Equal(t, "IDX_posts_author_id", n.IndexName("posts", "author_id"))
	require.Equal(t, "FK_posts_author_id", n.ForeignKeyName("posts", "author_id"))
	require.Equal(t, "users_id_seq", n.SequenceName("users", "id"))
	require.Equal(t, "users_status_enum", n.EnumName("users", "status"))
}

func TestNaming_CheckNameHashesExpression(t *testing.T) {
	n := NewNaming(63)
	a := n.CheckName("products", "price > 0")
	b := n.CheckName("products", "price >= 0")
	require.True(t, strings.HasPrefix(a, "CHK_products_"))
	require.NotEqual(t, a, b)
	// Deterministic over the same expression.
	require.Equal(t, a, n.CheckName("products", "price > 0"))
}

func TestNaming_LongNamesTruncated(t *testing.T) {
	n := NewNaming(63)
	long := strings.Repeat("customer_order_line_item_", 4)
	name := n.IndexName(long, "created_at", "updated_at", "deleted_at")
	require.LessOrEqual(t, len(name), 63)
	// Distinct long names must not collide after truncation.
	other := n.IndexName(long, "created_at", "updated_at", "archived_at")
	require.LessOrEqual(t, len(other), 63)
	require.NotEqual(t, name, other)
}

func TestNaming_ZeroMaxFallsBack(t *testing.T) {
	n := NewNaming(0)
	require.Equal(t, DefaultMaxIdentifierLen, n.MaxLen)
}

func TestTableize(t *testing.T) {
	require.Equal(t, "order_items", Tableize("OrderItem"))
	require.Equal(t, "users", Tableize("User"))
	require.Equal(t, "people", Tableize("Person"))
}

func TestUnderscore(t *testing.T) {
	require.Equal(t, "created_at", Underscore("CreatedAt"))
	require.Equal(t, "http_status", Underscore("HTTPStatus"))
}
