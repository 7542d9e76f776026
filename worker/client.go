package worker

import (
	"context"

	"github.com/xet7/httpvfs/domain/model"
	"github.com/xet7/httpvfs/proxy"
)

// Client talks to a Worker across a proxy channel.
type Client struct {
	root *proxy.Proxy
}

// Spawn starts a new Worker behind a proxy channel and returns a Client for
// it. The worker is served until the client is closed or ctx is done.
func Spawn(ctx context.Context, opts ...Option) (*Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return NewClient(ctx, New(opts...)), nil
}

// NewClient exposes w on a new channel and returns a Client for it. The
// worker's database is closed when the channel goes away.
func NewClient(ctx context.Context, w *Worker) *Client {
	local, remote := proxy.NewMessageChannel()
	proxy.Expose(ctx, w, local, proxy.WithReleaseHook(func() {
		if err := w.Close(); err != nil {
			logger.WithError(err).Warn("failed to close worker")
		}
	}))
	return &Client{root: proxy.Wrap(remote)}
}

// SplitFileHTTPDatabase asks the worker to open the database described by cfg.
func (c *Client) SplitFileHTTPDatabase(ctx context.Context, cfg model.SplitFileConfig) (*RemoteDatabase, error) {
	reply, err := c.root.Call(ctx, "SplitFileHTTPDatabase", cfg)
	if err != nil {
		return nil, err
	}
	p, err := reply.Proxy()
	if err != nil {
		return nil, err
	}
	return &RemoteDatabase{proxy: p}, nil
}

// GetStats returns the worker's fetch counters, or nil without a database.
func (c *Client) GetStats(ctx context.Context) (*model.Stats, error) {
	return call[*model.Stats](ctx, c.root, "GetStats")
}

// UnsafeEvalCode runs code in the worker. The reply holds whatever the
// worker's evaluator returned, including any handles.
func (c *Client) UnsafeEvalCode(ctx context.Context, code string) (*proxy.Reply, error) {
	return c.root.Call(ctx, "UnsafeEvalCode", code)
}

// Close closes the worker's database and the channel.
func (c *Client) Close(ctx context.Context) error {
	defer c.root.Release()
	_, err := c.root.Call(ctx, "Close")
	return err
}

// RemoteDatabase is a Database living in a worker.
type RemoteDatabase struct {
	proxy *proxy.Proxy
}

// Proxy returns the underlying proxy.
func (d *RemoteDatabase) Proxy() *proxy.Proxy {
	return d.proxy
}

// Exec runs a SQL script and returns one result set per statement that
// produced rows.
func (d *RemoteDatabase) Exec(ctx context.Context, script string, args ...any) ([]model.ResultSet, error) {
	return call[[]model.ResultSet](ctx, d.proxy, "Exec", append([]any{script}, args...)...)
}

// Query runs a SQL script and returns the rows of the first result set.
func (d *RemoteDatabase) Query(ctx context.Context, script string, args ...any) ([]model.Object, error) {
	return call[[]model.Object](ctx, d.proxy, "Query", append([]any{script}, args...)...)
}

// Prepare compiles a single statement in the worker.
func (d *RemoteDatabase) Prepare(ctx context.Context, query string) (*RemoteStatement, error) {
	reply, err := d.proxy.Call(ctx, "Prepare", query)
	if err != nil {
		return nil, err
	}
	p, err := reply.Proxy()
	if err != nil {
		return nil, err
	}
	return &RemoteStatement{proxy: p}, nil
}

// Stats returns the fetch counters of the database.
func (d *RemoteDatabase) Stats(ctx context.Context) (model.Stats, error) {
	return call[model.Stats](ctx, d.proxy, "Stats")
}

// Filename returns the name the database is mounted under.
func (d *RemoteDatabase) Filename(ctx context.Context) (string, error) {
	return call[string](ctx, d.proxy, "Filename")
}

// Close closes the database in the worker and releases the proxy.
func (d *RemoteDatabase) Close(ctx context.Context) error {
	defer d.proxy.Release()
	_, err := d.proxy.Call(ctx, "Close")
	return err
}

// RemoteStatement is a prepared statement living in a worker.
type RemoteStatement struct {
	proxy *proxy.Proxy
}

// SQL returns the statement text.
func (s *RemoteStatement) SQL(ctx context.Context) (string, error) {
	return call[string](ctx, s.proxy, "SQL")
}

// Exec runs the statement and returns its rows in columnar form.
func (s *RemoteStatement) Exec(ctx context.Context, args ...any) (model.ResultSet, error) {
	return call[model.ResultSet](ctx, s.proxy, "Exec", args...)
}

// Query runs the statement and returns one object per row.
func (s *RemoteStatement) Query(ctx context.Context, args ...any) ([]model.Object, error) {
	return call[[]model.Object](ctx, s.proxy, "Query", args...)
}

// Get runs the statement and returns the first row, or nil.
func (s *RemoteStatement) Get(ctx context.Context, args ...any) (model.Object, error) {
	return call[model.Object](ctx, s.proxy, "Get", args...)
}

// Columns runs the statement and returns its column names.
func (s *RemoteStatement) Columns(ctx context.Context, args ...any) (model.Header, error) {
	return call[model.Header](ctx, s.proxy, "Columns", args...)
}

// Close frees the statement in the worker and releases the proxy.
func (s *RemoteStatement) Close(ctx context.Context) error {
	defer s.proxy.Release()
	_, err := s.proxy.Call(ctx, "Close")
	return err
}

func call[T any](ctx context.Context, p *proxy.Proxy, method string, args ...any) (T, error) {
	var out T
	reply, err := p.Call(ctx, method, args...)
	if err != nil {
		return out, err
	}
	err = reply.Decode(&out)
	return out, err
}
