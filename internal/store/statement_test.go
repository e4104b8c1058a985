package store

import (
	"context"
	"errors"
	"testing"

	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatement_BindStepReset(t *testing.T) {
	h := newTestHandle(t)
	seedPairs(t, h)
	ctx := context.Background()

	stmt, err := h.Prepare(ctx, `SELECT name FROM items WHERE id = ?`)
	require.NoError(t, err)
	defer stmt.Finalize()

	require.NoError(t, stmt.Bind(1, 2))
	ok, err := stmt.Step(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "two", stmt.Text(0))
	assert.Equal(t, 1, stmt.ColumnCount())
	assert.Equal(t, "name", stmt.ColumnName(0))

	ok, err = stmt.Step(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	// Completed statements stay completed until Reset.
	ok, err = stmt.Step(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, stmt.Reset())
	require.NoError(t, stmt.Bind(1, 1))
	ok, err = stmt.Step(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "one", stmt.Text(0))
}

func TestStatement_BindingsSurviveReset(t *testing.T) {
	h := newTestHandle(t)
	seedPairs(t, h)
	ctx := context.Background()

	stmt, err := h.Prepare(ctx, `SELECT name FROM items WHERE id = ?`)
	require.NoError(t, err)
	defer stmt.Finalize()
	require.NoError(t, stmt.Bind(1, 1))

	for i := 0; i < 2; i++ {
		ok, err := stmt.Step(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "one", stmt.Text(0))
		require.NoError(t, stmt.Reset())
	}
}

func TestStatement_NamedParameters(t *testing.T) {
	h := newTestHandle(t)
	seedPairs(t, h)
	ctx := context.Background()

	insert, err := h.Prepare(ctx, `INSERT INTO items (id, name) VALUES (:id, :name)`)
	require.NoError(t, err)
	defer insert.Finalize()

	require.NoError(t, insert.BindNamed(":id", 3))
	require.NoError(t, insert.BindNamed("name", "three"))
	ok, err := insert.Step(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "INSERT produces no rows")

	assert.Equal(t, []pair{{1, "one"}, {2, "two"}, {3, "three"}}, readPairs(t, h))
}

func TestStatement_StepInsertRunsOnce(t *testing.T) {
	h := newTestHandle(t)
	seedPairs(t, h)
	ctx := context.Background()

	insert, err := h.Prepare(ctx, `INSERT INTO items (name) VALUES (?)`)
	require.NoError(t, err)
	defer insert.Finalize()

	for _, name := range []string{"a", "b", "c"} {
		require.NoError(t, insert.Bind(1, name))
		_, err := insert.Step(ctx)
		require.NoError(t, err)
		_, err = insert.Step(ctx)
		require.NoError(t, err)
		require.NoError(t, insert.Reset())
	}

	assert.Len(t, readPairs(t, h), 5)
}

func TestStatement_ClearBindings(t *testing.T) {
	h := newTestHandle(t)
	seedPairs(t, h)
	ctx := context.Background()

	stmt, err := h.Prepare(ctx, `SELECT name FROM items WHERE id = ?`)
	require.NoError(t, err)
	defer stmt.Finalize()
	require.NoError(t, stmt.Bind(1, 1))
	stmt.ClearBindings()

	_, err = stmt.Step(ctx)
	require.Error(t, err, "unbound parameter")
	assert.ErrorIs(t, err, ErrEngineCall)
}

func TestStatement_BindIndexOutOfRange(t *testing.T) {
	h := newTestHandle(t)
	stmt, err := h.Prepare(context.Background(), `SELECT ?`)
	require.NoError(t, err)
	defer stmt.Finalize()

	err = stmt.Bind(0, "x")
	var ee *EngineError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, int(sqlite3.ErrRange), ee.Code)
}

func TestStatement_TypedColumns(t *testing.T) {
	h := newTestHandle(t)
	ctx := context.Background()

	stmt, err := h.Prepare(ctx, `SELECT 42, 2.5, 'text', x'0102', NULL`)
	require.NoError(t, err)
	defer stmt.Finalize()

	ok, err := stmt.Step(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	i, err := stmt.ColumnInt64(0)
	require.NoError(t, err)
	assert.Equal(t, int64(42), i)

	f, err := stmt.ColumnFloat64(1)
	require.NoError(t, err)
	assert.Equal(t, 2.5, f)

	// Integers widen to float.
	f, err = stmt.ColumnFloat64(0)
	require.NoError(t, err)
	assert.Equal(t, 42.0, f)

	s, err := stmt.ColumnText(2)
	require.NoError(t, err)
	assert.Equal(t, "text", s)

	b, err := stmt.ColumnBlob(3)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2}, b)

	assert.True(t, stmt.IsNull(4))
	assert.False(t, stmt.IsNull(0))
}

func TestStatement_CheckedColumnErrors(t *testing.T) {
	h := newTestHandle(t)
	ctx := context.Background()

	stmt, err := h.Prepare(ctx, `SELECT 'text' AS label, NULL AS missing`)
	require.NoError(t, err)
	defer stmt.Finalize()

	_, err = stmt.ColumnInt64(0)
	assert.ErrorIs(t, err, ErrNoRow, "before first Step")

	ok, err := stmt.Step(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = stmt.ColumnInt64(0)
	assert.ErrorIs(t, err, ErrColumnType)
	assert.Contains(t, err.Error(), `"label"`)

	_, err = stmt.ColumnText(1)
	assert.ErrorIs(t, err, ErrColumnType)
	assert.Contains(t, err.Error(), "NULL")

	_, err = stmt.ColumnText(5)
	assert.ErrorIs(t, err, ErrColumnRange)

	// Unchecked readers fall back to zero values.
	assert.Equal(t, int64(0), stmt.Int64(0))
	assert.Equal(t, "", stmt.Text(5))
	assert.Nil(t, stmt.Blob(1))
	assert.Equal(t, 0.0, stmt.Float64(1))
	assert.True(t, stmt.IsNull(9))
}

func TestStatement_Finalize(t *testing.T) {
	h := newTestHandle(t)
	ctx := context.Background()

	stmt, err := h.Prepare(ctx, `SELECT 1`)
	require.NoError(t, err)
	require.NoError(t, stmt.Finalize())
	require.NoError(t, stmt.Finalize(), "second Finalize is a no-op")

	_, err = stmt.Step(ctx)
	assert.ErrorIs(t, err, ErrFinalized)
	assert.ErrorIs(t, stmt.Reset(), ErrFinalized)
	assert.ErrorIs(t, stmt.Bind(1, 1), ErrFinalized)
	assert.ErrorIs(t, stmt.BindNamed("x", 1), ErrFinalized)
	_, err = stmt.ColumnValue(0)
	assert.ErrorIs(t, err, ErrFinalized)
}

func TestPrepare_SyntaxError(t *testing.T) {
	h := newTestHandle(t)

	_, err := h.Prepare(context.Background(), `SELEC 1`)
	var ee *EngineError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, "prepare", ee.Op)
	assert.Equal(t, int(sqlite3.ErrError), ee.Code)
}

func TestPrepare_ConnectionError(t *testing.T) {
	h := New("/nonexistent/dir/test.db")

	_, err := h.Prepare(context.Background(), `SELECT 1`)
	var connErr *ConnectionError
	assert.True(t, errors.As(err, &connErr))
	assert.NotErrorIs(t, err, ErrEngineCall)
}
