package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"
)

// Statement is a prepared statement with SQLite-style lifecycle: bind
// parameters, Step through result rows, Reset to run again, Finalize to
// release it.
//
// Every parameter of the statement must be bound before the first Step.
// Bindings survive Reset and are cleared only by ClearBindings. A Statement
// belongs to the Handle that prepared it and is not safe for concurrent use.
type Statement struct {
	h     *Handle
	query string
	stmt  *sql.Stmt

	positional []any // positional[0] binds parameter 1
	named      map[string]any

	rows      *sql.Rows
	columns   []string
	row       []any
	hasRow    bool
	done      bool
	finalized bool
}

// Prepare compiles query on the handle's connection, opening it if needed.
func (h *Handle) Prepare(ctx context.Context, query string) (*Statement, error) {
	conn, err := h.connection(ctx)
	if err != nil {
		return nil, err
	}
	stmt, err := conn.PrepareContext(ctx, query)
	if err != nil {
		return nil, engineError("prepare", err)
	}
	s := &Statement{h: h, query: query, stmt: stmt}
	h.track(s)
	return s, nil
}

// SQL returns the statement text.
func (s *Statement) SQL() string {
	return s.query
}

// Bind sets parameter index (1-based) to v. The new value takes effect on the
// first Step after the statement is prepared or Reset.
func (s *Statement) Bind(index int, v any) error {
	if s.finalized {
		return ErrFinalized
	}
	if index < 1 {
		return &EngineError{
			Op:      "bind",
			Code:    int(sqlite3.ErrRange),
			Message: fmt.Sprintf("bind index %d out of range", index),
		}
	}
	for len(s.positional) < index {
		s.positional = append(s.positional, nil)
	}
	s.positional[index-1] = v
	return nil
}

// BindNamed sets the named parameter to v. The name may be given with or
// without its ':', '@' or '$' prefix.
func (s *Statement) BindNamed(name string, v any) error {
	if s.finalized {
		return ErrFinalized
	}
	name = strings.TrimLeft(name, ":@$")
	if name == "" {
		return &EngineError{Op: "bind", Code: int(sqlite3.ErrRange), Message: "empty parameter name"}
	}
	if s.named == nil {
		s.named = make(map[string]any)
	}
	s.named[name] = v
	return nil
}

// ClearBindings drops all bound values.
func (s *Statement) ClearBindings() {
	s.positional = nil
	s.named = nil
}

func (s *Statement) args() []any {
	args := make([]any, 0, len(s.positional)+len(s.named))
	args = append(args, s.positional...)
	for name, v := range s.named {
		args = append(args, sql.Named(name, v))
	}
	return args
}

// Step advances to the next result row. It returns true when a row is
// available and false once the statement has run to completion; statements
// that produce no rows complete on their first Step. After completion Step
// keeps returning false until Reset.
func (s *Statement) Step(ctx context.Context) (bool, error) {
	if s.finalized {
		return false, ErrFinalized
	}
	if s.done {
		return false, nil
	}

	if s.rows == nil {
		rows, err := s.stmt.QueryContext(ctx, s.args()...)
		if err != nil {
			s.done = true
			return false, engineError("step", err)
		}
		cols, err := rows.Columns()
		if err != nil {
			rows.Close()
			s.done = true
			return false, engineError("step", err)
		}
		s.rows = rows
		s.columns = cols
	}

	if !s.rows.Next() {
		err := s.rows.Err()
		closeErr := s.rows.Close()
		s.rows = nil
		s.row = nil
		s.hasRow = false
		s.done = true
		if err != nil {
			return false, engineError("step", err)
		}
		return false, engineError("step", closeErr)
	}

	row := make([]any, len(s.columns))
	dest := make([]any, len(s.columns))
	for i := range row {
		dest[i] = &row[i]
	}
	if err := s.rows.Scan(dest...); err != nil {
		return false, engineError("step", err)
	}
	s.row = row
	s.hasRow = true
	return true, nil
}

// Reset rewinds the statement so the next Step runs it again with the
// current bindings.
func (s *Statement) Reset() error {
	if s.finalized {
		return ErrFinalized
	}
	var err error
	if s.rows != nil {
		err = s.rows.Close()
		s.rows = nil
	}
	s.row = nil
	s.hasRow = false
	s.done = false
	return engineError("reset", err)
}

// Finalize releases the statement. Further calls fail with ErrFinalized;
// finalizing twice is a no-op.
func (s *Statement) Finalize() error {
	if s.finalized {
		return nil
	}
	err := s.release()
	s.h.untrack(s)
	return err
}

// release closes the driver resources without touching the handle.
func (s *Statement) release() error {
	if s.finalized {
		return nil
	}
	s.finalized = true
	var errs []error
	if s.rows != nil {
		errs = append(errs, s.rows.Close())
		s.rows = nil
	}
	errs = append(errs, s.stmt.Close())
	s.row = nil
	s.hasRow = false
	return engineError("finalize", errors.Join(errs...))
}

// ColumnCount returns the number of result columns, known after the first Step.
func (s *Statement) ColumnCount() int {
	return len(s.columns)
}

// ColumnName returns the name of result column i, or "" if out of range.
func (s *Statement) ColumnName(i int) string {
	if i < 0 || i >= len(s.columns) {
		return ""
	}
	return s.columns[i]
}

// ColumnValue returns column i of the current row as scanned by the driver:
// int64, float64, string, []byte, bool, time.Time or nil.
func (s *Statement) ColumnValue(i int) (any, error) {
	if s.finalized {
		return nil, ErrFinalized
	}
	if !s.hasRow {
		return nil, ErrNoRow
	}
	if i < 0 || i >= len(s.row) {
		return nil, fmt.Errorf("%w: %d (columns: %d)", ErrColumnRange, i, len(s.row))
	}
	return s.row[i], nil
}

// ColumnInt64 returns column i as an integer.
func (s *Statement) ColumnInt64(i int) (int64, error) {
	v, err := s.ColumnValue(i)
	if err != nil {
		return 0, err
	}
	switch x := v.(type) {
	case int64:
		return x, nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, columnTypeError(s.ColumnName(i), "integer", v)
	}
}

// ColumnFloat64 returns column i as a float. Integers are converted.
func (s *Statement) ColumnFloat64(i int) (float64, error) {
	v, err := s.ColumnValue(i)
	if err != nil {
		return 0, err
	}
	switch x := v.(type) {
	case float64:
		return x, nil
	case int64:
		return float64(x), nil
	default:
		return 0, columnTypeError(s.ColumnName(i), "real", v)
	}
}

// ColumnText returns column i as a string. Blobs are converted.
func (s *Statement) ColumnText(i int) (string, error) {
	v, err := s.ColumnValue(i)
	if err != nil {
		return "", err
	}
	switch x := v.(type) {
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	default:
		return "", columnTypeError(s.ColumnName(i), "text", v)
	}
}

// ColumnBlob returns column i as bytes. Text is converted.
func (s *Statement) ColumnBlob(i int) ([]byte, error) {
	v, err := s.ColumnValue(i)
	if err != nil {
		return nil, err
	}
	switch x := v.(type) {
	case []byte:
		return x, nil
	case string:
		return []byte(x), nil
	default:
		return nil, columnTypeError(s.ColumnName(i), "blob", v)
	}
}

// IsNull reports whether column i of the current row is NULL. Out of range
// columns and missing rows read as NULL.
func (s *Statement) IsNull(i int) bool {
	v, err := s.ColumnValue(i)
	return err != nil || v == nil
}

// Int64 is the unchecked form of ColumnInt64: failures read as 0.
func (s *Statement) Int64(i int) int64 {
	v, _ := s.ColumnInt64(i)
	return v
}

// Float64 is the unchecked form of ColumnFloat64.
func (s *Statement) Float64(i int) float64 {
	v, _ := s.ColumnFloat64(i)
	return v
}

// Text is the unchecked form of ColumnText.
func (s *Statement) Text(i int) string {
	v, _ := s.ColumnText(i)
	return v
}

// Blob is the unchecked form of ColumnBlob.
func (s *Statement) Blob(i int) []byte {
	v, _ := s.ColumnBlob(i)
	return v
}

func columnTypeError(column, want string, got any) error {
	if got == nil {
		return fmt.Errorf("%w: column %q is NULL, want %s", ErrColumnType, column, want)
	}
	return fmt.Errorf("%w: column %q is %T, want %s", ErrColumnType, column, got, want)
}
