// Package worker holds one remote database session and exposes it across a
// proxy channel.
//
// A Worker owns at most one Database at a time. Callers on the other side of
// the channel talk to it through a Client, which returns RemoteDatabase and
// RemoteStatement proxies whose calls run against the single real instance.
package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/xet7/httpvfs"
	"github.com/xet7/httpvfs/domain/model"
	"github.com/xet7/httpvfs/internal/logging"
	"github.com/xet7/httpvfs/mount"
)

var logger = logging.GetLogger("worker")

// Option configures a Worker.
type Option func(*Worker)

// WithMountTable mounts databases in table instead of the default table.
func WithMountTable(table *mount.Table) Option {
	return func(w *Worker) {
		w.table = table
	}
}

// WithEvaluator replaces the evaluator used by UnsafeEvalCode.
func WithEvaluator(e Evaluator) Option {
	return func(w *Worker) {
		w.eval = e
	}
}

// WithBuilder lets fn adjust every builder before a database is opened, for
// example to set a download limit or an HTTP client.
func WithBuilder(fn func(*httpvfs.DBBuilder) *httpvfs.DBBuilder) Option {
	return func(w *Worker) {
		w.configure = fn
	}
}

// Worker is a session holding at most one remote database. Its methods are
// safe for concurrent use.
type Worker struct {
	table     *mount.Table
	eval      Evaluator
	configure func(*httpvfs.DBBuilder) *httpvfs.DBBuilder

	mu sync.Mutex
	db *httpvfs.Database
}

// New returns a Worker with no database.
func New(opts ...Option) *Worker {
	w := &Worker{
		table: mount.Default(),
		eval:  SQLEvaluator{},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// SplitFileHTTPDatabase opens the database described by cfg and makes it the
// worker's database. A database opened earlier is closed first. The database
// is mounted under cfg.Filename().
func (w *Worker) SplitFileHTTPDatabase(ctx context.Context, cfg model.SplitFileConfig) (*httpvfs.Database, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	logger.Info("constructing url database")
	if w.db != nil {
		if err := w.db.Close(); err != nil {
			logger.WithError(err).Warn("failed to close previous database")
		}
		w.db = nil
	}

	filename := cfg.Filename()
	logger.WithField("filename", filename).Info("filename")

	builder := httpvfs.NewBuilder().WithConfig(cfg).WithMountTable(w.table)
	if w.configure != nil {
		builder = w.configure(builder)
	}
	db, err := builder.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to construct database: %w", err)
	}
	w.db = db
	return db, nil
}

// Database returns the current database, or nil.
func (w *Worker) Database() *httpvfs.Database {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.db
}

// GetStats returns the fetch counters of the current database, or nil when
// no database has been constructed.
func (w *Worker) GetStats(_ context.Context) (*model.Stats, error) {
	db := w.Database()
	if db == nil {
		return nil, nil //nolint:nilnil // no database means no stats
	}
	stats := db.Stats()
	return &stats, nil
}

// UnsafeEvalCode runs code against the current database with the worker's
// Evaluator and returns whatever it produces. The code has full access to
// the database.
func (w *Worker) UnsafeEvalCode(ctx context.Context, code string) (any, error) {
	db := w.Database()
	if db == nil {
		return nil, model.ErrNoDatabase
	}
	return w.eval.Eval(ctx, db, code)
}

// Close closes the current database, if any.
func (w *Worker) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.db == nil {
		return nil
	}
	err := w.db.Close()
	w.db = nil
	return err
}
