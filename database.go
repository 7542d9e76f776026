package httpvfs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/xet7/httpvfs/domain/model"
	"github.com/xet7/httpvfs/mount"
)

// Database is an open session on a remote database. The engine is single
// threaded, so a Database holds one connection and runs one statement at a
// time.
//
// Database and the statements it prepares are handles: when they cross a
// proxy boundary they are bound to a channel instead of being copied.
type Database struct {
	db     *sql.DB
	file   *LazyFile
	table  *mount.Table
	name   string
	cancel context.CancelFunc

	closeOnce sync.Once
	closeErr  error
}

// HandleKind marks Database as a proxy handle.
func (d *Database) HandleKind() string {
	return "database"
}

// Filename returns the name the remote file is mounted under.
func (d *Database) Filename() string {
	return d.name
}

// File returns the remote file backing the database.
func (d *Database) File() *LazyFile {
	return d.file
}

// SQL returns the underlying database/sql handle.
func (d *Database) SQL() *sql.DB {
	return d.db
}

// Stats returns the fetch counters of the remote file.
func (d *Database) Stats() model.Stats {
	return d.file.Stats()
}

// Exec runs a SQL script and returns one result set per statement that
// produced rows, in columnar form. args are bound to the first statement.
func (d *Database) Exec(ctx context.Context, script string, args ...any) ([]model.ResultSet, error) {
	stmts := splitStatements(script)

	conn, err := d.db.Conn(ctx)
	if err != nil {
		return nil, d.wrapErr(err)
	}
	defer conn.Close()

	var sets []model.ResultSet
	for i, stmt := range stmts {
		var stmtArgs []any
		if i == 0 {
			stmtArgs = args
		}
		rows, err := conn.QueryContext(ctx, stmt, stmtArgs...)
		if err != nil {
			return nil, d.wrapErr(err)
		}
		rs, err := collect(rows)
		if err != nil {
			return nil, d.wrapErr(err)
		}
		if rs.Len() > 0 {
			sets = append(sets, rs)
		}
	}
	return sets, nil
}

// Query runs a SQL script and returns the rows of the first result set as
// one mapping per row, or an empty slice when nothing was returned.
func (d *Database) Query(ctx context.Context, script string, args ...any) ([]model.Object, error) {
	sets, err := d.Exec(ctx, script, args...)
	if err != nil {
		return nil, err
	}
	return model.ToObjects(sets), nil
}

// Prepare compiles a single statement.
func (d *Database) Prepare(ctx context.Context, query string) (*Statement, error) {
	stmt, err := d.db.PrepareContext(ctx, query)
	if err != nil {
		return nil, d.wrapErr(err)
	}
	return &Statement{DB: d, stmt: stmt, query: query}, nil
}

// Close releases the connection and unmounts the remote file. Calling Close
// more than once returns the first result.
func (d *Database) Close() error {
	d.closeOnce.Do(func() {
		var errs error
		if err := d.db.Close(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("failed to close database: %w", err))
		}
		d.table.Unmount(d.name)
		if d.cancel != nil {
			d.cancel()
		}
		d.closeErr = errs
		logger.WithField("file", d.name).Debug("database closed")
	})
	return d.closeErr
}

// wrapErr re-attaches the fetch failure hidden behind an engine I/O error
func (d *Database) wrapErr(err error) error {
	if err == nil {
		return nil
	}
	if fetchErr := d.file.TakeError(); fetchErr != nil && !errors.Is(err, fetchErr) {
		return fmt.Errorf("%w: %w", fetchErr, err)
	}
	return err
}

// collect reads all rows into a result set and closes rows
func collect(rows *sql.Rows) (model.ResultSet, error) {
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return model.ResultSet{}, err
	}
	rs := model.ResultSet{Columns: model.NewHeader(cols)}
	for rows.Next() {
		row := make(model.Row, len(cols))
		dest := make([]any, len(cols))
		for i := range row {
			dest[i] = &row[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return model.ResultSet{}, err
		}
		rs.Values = append(rs.Values, row)
	}
	return rs, rows.Err()
}
