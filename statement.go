package httpvfs

import (
	"context"
	"database/sql"

	"github.com/xet7/httpvfs/domain/model"
)

// Statement is a prepared statement. DB is the database that prepared it.
type Statement struct {
	DB *Database

	stmt  *sql.Stmt
	query string
}

// HandleKind marks Statement as a proxy handle.
func (s *Statement) HandleKind() string {
	return "statement"
}

// SQL returns the statement text.
func (s *Statement) SQL() string {
	return s.query
}

// Exec runs the statement with args and returns its rows in columnar form.
func (s *Statement) Exec(ctx context.Context, args ...any) (model.ResultSet, error) {
	rows, err := s.stmt.QueryContext(ctx, args...)
	if err != nil {
		return model.ResultSet{}, s.DB.wrapErr(err)
	}
	rs, err := collect(rows)
	if err != nil {
		return model.ResultSet{}, s.DB.wrapErr(err)
	}
	return rs, nil
}

// Query runs the statement with args and returns one mapping per row.
func (s *Statement) Query(ctx context.Context, args ...any) ([]model.Object, error) {
	rs, err := s.Exec(ctx, args...)
	if err != nil {
		return nil, err
	}
	return rs.Objects(), nil
}

// Get runs the statement with args and returns the first row, or nil.
func (s *Statement) Get(ctx context.Context, args ...any) (model.Object, error) {
	objects, err := s.Query(ctx, args...)
	if err != nil || len(objects) == 0 {
		return nil, err
	}
	return objects[0], nil
}

// Close frees the statement.
func (s *Statement) Close() error {
	return s.stmt.Close()
}

// Columns runs the statement with args and returns its column names.
func (s *Statement) Columns(ctx context.Context, args ...any) (model.Header, error) {
	rs, err := s.Exec(ctx, args...)
	if err != nil {
		return nil, err
	}
	return rs.Columns, nil
}
