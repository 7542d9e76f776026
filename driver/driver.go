// Package driver provides the httpvfs SQL driver implementation for database/sql.
//
// The driver opens a remote database that has been mounted in a mount.Table.
// Every connection reads the mounted file through the table's VFS, read-only,
// and gets a generate_series virtual table in its temp schema.
//
// Usage:
//
//	import _ "github.com/xet7/httpvfs/driver"
//	db, err := sql.Open("httpvfs", "https:__example.com_db.sqlite3.?seriesMaxRows=5000")
//
// The DSN is the mounted filename, optionally followed by a query string.
// Names are looked up in mount.Default(); use NewConnector for another table.
package driver

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"modernc.org/sqlite"

	"github.com/xet7/httpvfs/mount"
	"github.com/xet7/httpvfs/series"
)

// DriverName is the name the driver is registered under in database/sql.
const DriverName = "httpvfs"

func init() {
	sql.Register(DriverName, NewDriver())
}

// Driver implements database/sql/driver.Driver interface for mounted remote databases.
// It serves as the entry point for creating connections.
type Driver struct{}

// Connector implements database/sql/driver.Connector interface.
// It holds connection parameters and manages the creation of database connections.
type Connector struct {
	driver        *Driver
	table         *mount.Table
	name          string // mounted filename
	seriesMaxRows int64
}

// Connection implements database/sql/driver.Conn interface.
// It wraps an underlying SQLite connection opened on the mounted file.
type Connection struct {
	conn driver.Conn // Underlying SQLite connection
}

// Transaction implements database/sql/driver.Tx interface.
// It wraps an underlying SQLite transaction.
type Transaction struct {
	tx driver.Tx // Underlying SQLite transaction
}

// ConnectorOption configures a Connector
type ConnectorOption func(*Connector)

// WithSeriesMaxRows bounds generate_series scans without a stop constraint.
func WithSeriesMaxRows(n int64) ConnectorOption {
	return func(c *Connector) {
		c.seriesMaxRows = n
	}
}

// NewDriver creates a new httpvfs driver
func NewDriver() *Driver {
	return &Driver{}
}

// NewConnector returns a connector for the file mounted in table under name.
func NewConnector(table *mount.Table, name string, opts ...ConnectorOption) *Connector {
	c := &Connector{
		driver: NewDriver(),
		table:  table,
		name:   name,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Open implements driver.Driver interface
func (d *Driver) Open(dsn string) (driver.Conn, error) {
	connector, err := d.OpenConnector(dsn)
	if err != nil {
		return nil, err
	}
	return connector.Connect(context.Background())
}

// OpenConnector implements driver.DriverContext interface
func (d *Driver) OpenConnector(dsn string) (driver.Connector, error) {
	name, opts, err := parseDSN(dsn)
	if err != nil {
		return nil, err
	}
	c := NewConnector(mount.Default(), name, opts...)
	c.driver = d
	return c, nil
}

// parseDSN splits a DSN into the mounted name and connector options
func parseDSN(dsn string) (string, []ConnectorOption, error) {
	name, query := dsn, ""
	if i := strings.LastIndex(dsn, "?"); i >= 0 {
		name, query = dsn[:i], dsn[i+1:]
	}
	if strings.TrimSpace(name) == "" || strings.Contains(name, "\x00") {
		return "", nil, ErrNoNameProvided
	}

	values, err := url.ParseQuery(query)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %w", ErrInvalidDSN, err)
	}
	var opts []ConnectorOption
	for key, vals := range values {
		switch key {
		case "seriesMaxRows":
			n, err := strconv.ParseInt(vals[len(vals)-1], 10, 64)
			if err != nil || n <= 0 {
				return "", nil, fmt.Errorf("%w: seriesMaxRows must be a positive integer", ErrInvalidDSN)
			}
			opts = append(opts, WithSeriesMaxRows(n))
		default:
			return "", nil, fmt.Errorf("%w: unknown option %q", ErrInvalidDSN, key)
		}
	}
	return name, opts, nil
}

// Connect implements driver.Connector interface
func (c *Connector) Connect(ctx context.Context) (driver.Conn, error) {
	if _, ok := c.table.Lookup(c.name); !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotMounted, c.name)
	}
	if err := series.Register(); err != nil {
		return nil, fmt.Errorf("failed to register series module: %w", err)
	}
	dsn, err := c.table.DSN(c.name)
	if err != nil {
		return nil, err
	}

	// Get SQLite driver and create connection
	sqliteDriver := &sqlite.Driver{}
	conn, err := sqliteDriver.Open(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open remote database %s: %w", c.name, err)
	}

	if err := c.setupConnection(ctx, conn); err != nil {
		_ = conn.Close() // Ignore close error since we're already returning an error
		return nil, fmt.Errorf("failed to set up connection: %w", err)
	}

	return &Connection{conn: conn}, nil
}

// Driver implements driver.Connector interface
func (c *Connector) Driver() driver.Driver {
	return c.driver
}

// setupConnection prepares a fresh connection: scratch data stays in memory
// and generate_series is available in the temp schema.
func (c *Connector) setupConnection(ctx context.Context, conn driver.Conn) error {
	using := series.ModuleName
	if c.seriesMaxRows > 0 {
		using = fmt.Sprintf("%s(%d)", series.ModuleName, c.seriesMaxRows)
	}
	for _, query := range []string{
		"PRAGMA temp_store = memory",
		"CREATE VIRTUAL TABLE IF NOT EXISTS temp.generate_series USING " + using,
	} {
		if err := c.executeStatement(ctx, conn, query); err != nil {
			return fmt.Errorf("%s: %w", query, err)
		}
	}
	return nil
}

// executeStatement executes a statement using the appropriate interface
func (c *Connector) executeStatement(ctx context.Context, conn driver.Conn, query string) error {
	if execer, ok := conn.(driver.ExecerContext); ok {
		_, err := execer.ExecContext(ctx, query, nil)
		return err
	}

	stmt, err := conn.Prepare(query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	stmtExecCtx, ok := stmt.(driver.StmtExecContext)
	if !ok {
		return ErrStmtExecContextNotSupported
	}
	_, err = stmtExecCtx.ExecContext(ctx, nil)
	return err
}

// Close implements driver.Conn interface
func (conn *Connection) Close() error {
	if conn.conn != nil {
		return conn.conn.Close()
	}
	return nil
}

// Begin implements driver.Conn interface (deprecated, use BeginTx instead)
func (conn *Connection) Begin() (driver.Tx, error) {
	return conn.BeginTx(context.Background(), driver.TxOptions{})
}

// BeginTx implements driver.ConnBeginTx interface
func (conn *Connection) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	if connBeginTx, ok := conn.conn.(driver.ConnBeginTx); ok {
		tx, err := connBeginTx.BeginTx(ctx, opts)
		if err != nil {
			return nil, err
		}
		return &Transaction{tx: tx}, nil
	}
	return nil, ErrBeginTxNotSupported
}

// Commit implements driver.Tx interface
func (t *Transaction) Commit() error {
	return t.tx.Commit()
}

// Rollback implements driver.Tx interface
func (t *Transaction) Rollback() error {
	return t.tx.Rollback()
}

// Prepare implements driver.Conn interface
func (conn *Connection) Prepare(query string) (driver.Stmt, error) {
	return conn.PrepareContext(context.Background(), query)
}

// PrepareContext implements driver.ConnPrepareContext interface
func (conn *Connection) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	if connPrepareCtx, ok := conn.conn.(driver.ConnPrepareContext); ok {
		return connPrepareCtx.PrepareContext(ctx, query)
	}
	return nil, ErrPrepareContextNotSupported
}

// ExecContext implements driver.ExecerContext interface
func (conn *Connection) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	if execer, ok := conn.conn.(driver.ExecerContext); ok {
		return execer.ExecContext(ctx, query, args)
	}
	return nil, driver.ErrSkip
}

// QueryContext implements driver.QueryerContext interface
func (conn *Connection) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	if queryer, ok := conn.conn.(driver.QueryerContext); ok {
		return queryer.QueryContext(ctx, query, args)
	}
	return nil, driver.ErrSkip
}
