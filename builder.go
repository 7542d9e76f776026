package httpvfs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/xet7/httpvfs/domain/model"
	"github.com/xet7/httpvfs/driver"
	"github.com/xet7/httpvfs/mount"
)

// defaultPrefetchConcurrency is how many warm-up segments are fetched at once
const defaultPrefetchConcurrency = 4

// DBBuilder is a builder for opening remote databases.
// It provides a flexible way to configure the chunk layout, the transport and
// the engine before the first byte is fetched.
// Use NewBuilder to create a new instance, then chain method calls to configure it.
//
// The typical usage pattern is:
//
//	builder := httpvfs.NewBuilder().WithConfigFile("https://example.com/db/config.json")
//	validatedBuilder, err := builder.Build(ctx)
//	if err != nil {
//		return err
//	}
//	db, err := validatedBuilder.Open(ctx)
//	if err != nil {
//		return err
//	}
//	defer db.Close()
type DBBuilder struct {
	// config is the chunk layout, set directly or loaded by Build
	config *model.SplitFileConfig
	// configLocation is a local path or URL of a config file
	configLocation string
	// filename overrides the mounted filename derived from the config
	filename string
	// fetcher replaces the default HTTP/S3 fetcher
	fetcher Fetcher
	// client is the HTTP client used by the default fetcher
	client *http.Client
	// downloadLimit is the bandwidth limit in bytes per second, 0 for none
	downloadLimit int64
	// compression of the chunk objects on the server
	compression model.CompressionType
	// seriesMaxRows bounds generate_series scans without a stop
	seriesMaxRows int64
	// prefetch holds the offsets fetched before the engine opens the file
	prefetch []int64
	// prefetchConcurrency is the number of parallel warm-up fetches
	prefetchConcurrency int
	// table is the mount table the file is mounted in
	table *mount.Table
	// built is set by a successful Build
	built bool
}

// NewBuilder creates a new database builder.
// The returned builder must be given a configuration with WithConfig or
// WithConfigFile before Build is called.
//
// Example:
//
//	db, err := httpvfs.NewBuilder().
//		WithConfig(cfg).
//		WithDownloadLimit(1 << 20).
//		Open(ctx)
func NewBuilder() *DBBuilder {
	return &DBBuilder{
		prefetchConcurrency: defaultPrefetchConcurrency,
	}
}

// WithConfig sets the chunk layout of the remote database.
func (b *DBBuilder) WithConfig(cfg model.SplitFileConfig) *DBBuilder {
	b.config = &cfg
	b.built = false
	return b
}

// WithConfigFile makes Build load the chunk layout from a local file or an
// http(s) URL. The format is chosen by extension: .json, .yaml/.yml or .toml.
func (b *DBBuilder) WithConfigFile(location string) *DBBuilder {
	b.configLocation = location
	b.built = false
	return b
}

// WithFilename mounts the database under name instead of the name derived
// from the URL prefix.
func (b *DBBuilder) WithFilename(name string) *DBBuilder {
	b.filename = name
	return b
}

// WithFetcher replaces the default fetcher. Chunk compression and the
// download limit still apply on top of it.
func (b *DBBuilder) WithFetcher(f Fetcher) *DBBuilder {
	b.fetcher = f
	return b
}

// WithHTTPClient sets the HTTP client of the default fetcher.
func (b *DBBuilder) WithHTTPClient(client *http.Client) *DBBuilder {
	b.client = client
	return b
}

// WithDownloadLimit throttles downloads to bytesPerSecond. Zero disables the limit.
func (b *DBBuilder) WithDownloadLimit(bytesPerSecond int64) *DBBuilder {
	b.downloadLimit = bytesPerSecond
	return b
}

// WithChunkCompression declares that every chunk object is stored compressed,
// at its URL plus the compression extension (db.sqlite3.000.zst).
func (b *DBBuilder) WithChunkCompression(c model.CompressionType) *DBBuilder {
	b.compression = c
	return b
}

// WithSeriesMaxRows bounds generate_series scans that have no stop value.
func (b *DBBuilder) WithSeriesMaxRows(n int64) *DBBuilder {
	b.seriesMaxRows = n
	return b
}

// WithPrefetch sets the offsets fetched before the engine opens the file. A
// failure fetching any of them fails Open. The default warms the header page
// at offset 0; an empty call disables warm-up.
func (b *DBBuilder) WithPrefetch(offsets ...int64) *DBBuilder {
	b.prefetch = append([]int64{}, offsets...)
	return b
}

// WithPrefetchConcurrency sets how many warm-up segments are fetched at once.
func (b *DBBuilder) WithPrefetchConcurrency(n int) *DBBuilder {
	b.prefetchConcurrency = n
	return b
}

// WithMountTable mounts the database in table instead of mount.Default().
func (b *DBBuilder) WithMountTable(table *mount.Table) *DBBuilder {
	b.table = table
	return b
}

// Build validates the builder configuration. It performs the following:
// 1. Loads the config file when one was given with WithConfigFile
// 2. Validates the chunk layout (lengths, chunk sizes, URL prefix)
// 3. Checks the remaining options for consistency
//
// Build fetches nothing from the database itself; network failures during
// warm-up are reported by Open.
//
// Returns the same builder instance for method chaining, or an error if validation fails.
func (b *DBBuilder) Build(ctx context.Context) (*DBBuilder, error) {
	if b.configLocation != "" {
		cfg, err := LoadConfig(ctx, b.configLocation)
		if err != nil {
			return nil, err
		}
		b.config = &cfg
	}
	if b.config == nil {
		return nil, fmt.Errorf("%w: a configuration must be provided", model.ErrConfig)
	}
	if err := b.config.Validate(); err != nil {
		return nil, err
	}
	if b.downloadLimit < 0 {
		return nil, fmt.Errorf("%w: download limit must not be negative, got %d", model.ErrConfig, b.downloadLimit)
	}
	if b.seriesMaxRows < 0 {
		return nil, fmt.Errorf("%w: series max rows must not be negative, got %d", model.ErrConfig, b.seriesMaxRows)
	}
	if b.prefetchConcurrency <= 0 {
		return nil, fmt.Errorf("%w: prefetch concurrency must be positive, got %d", model.ErrConfig, b.prefetchConcurrency)
	}
	b.built = true
	return b, nil
}

// Open mounts the remote database and returns an open session on it. Build is
// called first when it has not been.
//
// The file is mounted under the configured filename, the warm-up offsets are
// fetched, and the engine reads the database header. Any failure unmounts the
// file again; a transport failure while warming up is reported as ErrTransport.
//
// The caller is responsible for closing the returned database.
func (b *DBBuilder) Open(ctx context.Context) (*Database, error) {
	if !b.built {
		if _, err := b.Build(ctx); err != nil {
			return nil, err
		}
	}
	cfg := *b.config

	name := b.filename
	if name == "" {
		name = cfg.Filename()
	}
	table := b.table
	if table == nil {
		table = mount.Default()
	}

	fetchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	file := NewLazyFile(name, cfg.DatabaseLengthBytes, cfg.RequestChunkSize, NewRangeMapper(cfg), b.newFetcher(), WithFetchContext(fetchCtx))
	if err := table.Mount(name, file); err != nil {
		cancel()
		return nil, err
	}
	logger.WithField("file", name).Infof("constructing url database from %s", cfg.Location())

	offsets := b.prefetch
	if offsets == nil {
		offsets = []int64{0}
	}
	if err := file.Prefetch(ctx, b.prefetchConcurrency, offsets...); err != nil {
		table.Unmount(name)
		cancel()
		return nil, fmt.Errorf("failed to warm up %s: %w", name, err)
	}

	var opts []driver.ConnectorOption
	if b.seriesMaxRows > 0 {
		opts = append(opts, driver.WithSeriesMaxRows(b.seriesMaxRows))
	}
	db := sql.OpenDB(driver.NewConnector(table, name, opts...))
	// the engine is single threaded
	db.SetMaxOpenConns(1)

	d := &Database{
		db:     db,
		file:   file,
		table:  table,
		name:   name,
		cancel: cancel,
	}

	// Validate connection by reading the schema
	var n int
	if err := db.QueryRowContext(ctx, "SELECT count(*) FROM sqlite_master").Scan(&n); err != nil {
		err = d.wrapErr(err)
		if closeErr := d.Close(); closeErr != nil {
			return nil, errors.Join(err, fmt.Errorf("failed to close database: %w", closeErr))
		}
		return nil, err
	}
	logger.WithField("file", name).Debugf("database opened, %d schema entries", n)
	return d, nil
}

// newFetcher assembles the fetcher chain: transport, download limit, decompression
func (b *DBBuilder) newFetcher() Fetcher {
	var f Fetcher
	if b.fetcher != nil {
		f = NewRateLimitedFetcher(b.fetcher, b.downloadLimit)
	} else {
		f = NewFetcher(b.client, b.downloadLimit)
	}
	return NewDecompressingFetcher(f, b.compression)
}
