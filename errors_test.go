package strata

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNotFoundError(t *testing.T) {
	err := NewNotFoundErrorInTable("column", "body", "post")
	require.EqualError(t, err, `strata: column "body" not found in table "post"`)
	require.True(t, IsNotFound(err))
	require.ErrorIs(t, err, ErrNotFound)
	require.Equal(t, "column", err.Kind())
	require.Equal(t, "post", err.Table())

	err = NewNotFoundError("table", "users")
	require.EqualError(t, err, `strata: table "users" not found`)
	require.True(t, IsNotFound(fmt.Errorf("load: %w", err)))
	require.False(t, IsNotFound(errors.New("boom")))
	require.False(t, IsNotFound(nil))
}

func TestReleasedError(t *testing.T) {
	err := NewReleasedError("query")
	require.EqualError(t, err, "strata: query on released query runner")
	require.True(t, IsReleased(err))
	require.ErrorIs(t, err, ErrReleased)
	require.False(t, IsReleased(ErrNotFound))
}

func TestTxStateError(t *testing.T) {
	err := NewTxStateError("commit")
	require.EqualError(t, err, "strata: commit without an active transaction")
	require.True(t, IsTxState(err))
	require.ErrorIs(t, err, ErrTxNotStarted)
}

func TestQueryFailedError(t *testing.T) {
	cause := errors.New("duplicate key")
	err := NewQueryFailedError(`ALTER TABLE "post" ADD "body" text`, []any{1, "a"}, cause)
	require.True(t, IsQueryFailed(err))
	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), `ALTER TABLE "post" ADD "body" text`)
	require.Contains(t, err.Error(), "duplicate key")
	require.Contains(t, err.Error(), "args: [1 a]")

	// Statement without parameters omits the args suffix.
	err = NewQueryFailedError("SELECT 1", nil, cause)
	require.NotContains(t, err.Error(), "args")
}

func TestUnsupportedError(t *testing.T) {
	err := NewUnsupportedError("sqlite", "dropping a constraint")
	require.EqualError(t, err, `strata: dropping a constraint is not supported by dialect "sqlite"`)
	require.True(t, IsUnsupported(err))
	require.ErrorIs(t, err, ErrUnsupported)
}
