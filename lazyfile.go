package httpvfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/go-pkgz/syncs"
	"golang.org/x/sync/singleflight"

	"github.com/xet7/httpvfs/domain/model"
	"github.com/xet7/httpvfs/internal/logging"
)

var logger = logging.GetLogger("httpvfs")

// LazyFile is a fixed length, read-only file whose bytes live on a remote
// server. Reads are expanded to segments aligned to the request chunk size;
// missing segments are fetched on demand, blocking the caller, and cached for
// the lifetime of the file.
//
// The embedded SQL engine issues one read at a time, but LazyFile is safe for
// concurrent use: concurrent reads of the same missing segment share a single
// fetch.
type LazyFile struct {
	name      string
	length    int64
	chunkSize int64

	mapper  RangeMapper
	fetcher Fetcher
	cache   *ChunkCache
	group   singleflight.Group
	ctx     context.Context

	totalFetchedBytes atomic.Int64
	totalRequests     atomic.Int64

	errMu   sync.Mutex
	lastErr error
}

// LazyFileOption configures a LazyFile
type LazyFileOption func(*LazyFile)

// WithFetchContext sets the context every fetch runs under. Fetches are not
// cancelled by the engine; cancelling this context aborts all future reads.
func WithFetchContext(ctx context.Context) LazyFileOption {
	return func(f *LazyFile) {
		f.ctx = ctx
	}
}

// NewLazyFile creates a remote file of length bytes, fetched in segments of
// requestChunkSize bytes through mapper and fetcher.
func NewLazyFile(name string, length, requestChunkSize int64, mapper RangeMapper, fetcher Fetcher, opts ...LazyFileOption) *LazyFile {
	f := &LazyFile{
		name:      name,
		length:    length,
		chunkSize: requestChunkSize,
		mapper:    mapper,
		fetcher:   fetcher,
		cache:     NewChunkCache(),
		ctx:       context.Background(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Name returns the mounted filename.
func (f *LazyFile) Name() string {
	return f.name
}

// Size returns the file length in bytes.
func (f *LazyFile) Size() int64 {
	return f.length
}

// Cache returns the chunk cache backing the file.
func (f *LazyFile) Cache() *ChunkCache {
	return f.cache
}

// Read returns length bytes starting at offset, fetching missing segments.
// The range must lie within the file.
func (f *LazyFile) Read(offset, length int64) ([]byte, error) {
	if offset < 0 || length < 0 || offset+length > f.length {
		return nil, fmt.Errorf("%w: read [%d, %d) outside file %s of %d bytes",
			model.ErrProtocol, offset, offset+length, f.name, f.length)
	}
	out := make([]byte, length)
	if length == 0 {
		return out, nil
	}

	first := offset / f.chunkSize
	last := (offset + length - 1) / f.chunkSize
	for id := first; id <= last; id++ {
		chunk, err := f.segment(id)
		if err != nil {
			return nil, err
		}
		segStart := id * f.chunkSize
		lo := max(offset, segStart)
		hi := min(offset+length, segStart+int64(len(chunk.Data)))
		copy(out[lo-offset:hi-offset], chunk.Data[lo-segStart:hi-segStart])
	}
	return out, nil
}

// ReadAt implements io.ReaderAt.
func (f *LazyFile) ReadAt(p []byte, off int64) (int, error) {
	if off >= f.length {
		return 0, io.EOF
	}
	n := min(int64(len(p)), f.length-off)
	data, err := f.Read(off, n)
	if err != nil {
		return 0, err
	}
	copy(p, data)
	if n < int64(len(p)) {
		return int(n), io.EOF
	}
	return int(n), nil
}

// Prefetch warms the cache with the segments holding offsets, fetching up to
// concurrency segments at once. Any failure is returned.
func (f *LazyFile) Prefetch(ctx context.Context, concurrency int, offsets ...int64) error {
	if concurrency <= 0 {
		concurrency = 1
	}
	var (
		mu   sync.Mutex
		errs []error
	)
	wg := syncs.NewErrSizedGroup(concurrency, syncs.Context(ctx), syncs.Preemptive)
	seen := make(map[int64]struct{}, len(offsets))
	for _, off := range offsets {
		if off < 0 || off >= f.length {
			continue
		}
		id := off / f.chunkSize
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		wg.Go(func() error {
			if _, err := f.segment(id); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				return err
			}
			return nil
		})
	}
	if err := wg.Wait(); err != nil {
		mu.Lock()
		defer mu.Unlock()
		if len(errs) > 0 {
			return errors.Join(errs...)
		}
		return err
	}
	return nil
}

// Stats returns a snapshot of the file counters.
func (f *LazyFile) Stats() model.Stats {
	return model.Stats{
		Filename:          f.name,
		TotalBytes:        f.length,
		TotalFetchedBytes: f.totalFetchedBytes.Load(),
		TotalRequests:     f.totalRequests.Load(),
	}
}

// LastError returns the most recent fetch failure without clearing it.
func (f *LazyFile) LastError() error {
	f.errMu.Lock()
	defer f.errMu.Unlock()
	return f.lastErr
}

// TakeError returns the most recent fetch failure and clears it. The engine
// reports failed reads as generic I/O errors; callers use this to recover the
// transport error behind one.
func (f *LazyFile) TakeError() error {
	f.errMu.Lock()
	defer f.errMu.Unlock()
	err := f.lastErr
	f.lastErr = nil
	return err
}

func (f *LazyFile) recordError(err error) {
	f.errMu.Lock()
	f.lastErr = err
	f.errMu.Unlock()
}

// segment returns the cached aligned segment id, fetching it when missing.
func (f *LazyFile) segment(id int64) (*CachedChunk, error) {
	if chunk, ok := f.cache.Get(id); ok {
		return chunk, nil
	}

	v, err, _ := f.group.Do(strconv.FormatInt(id, 10), func() (any, error) {
		if chunk, ok := f.cache.Get(id); ok {
			return chunk, nil
		}
		data, err := blockOn(f.ctx, func(ctx context.Context) ([]byte, error) {
			return f.fetchSegment(ctx, id)
		})
		if err != nil {
			f.recordError(err)
			return nil, err
		}
		return f.cache.Put(id, data), nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*CachedChunk), nil
}

// fetchSegment downloads segment id, one request per server chunk it spans.
// Fetched bytes are counted once the whole segment arrived.
func (f *LazyFile) fetchSegment(ctx context.Context, id int64) ([]byte, error) {
	start := id * f.chunkSize
	end := min(start+f.chunkSize, f.length)

	data := make([]byte, 0, end-start)
	var transferred int64
	for _, piece := range splitAtBoundaries(start, end, f.mapper.ChunkSize()) {
		r := f.mapper.Map(piece.from, piece.to)
		b, t, err := fetchMetered(ctx, f.fetcher, r)
		f.totalRequests.Add(t.Requests)
		if err != nil {
			logger.WithField("url", r.URL).Warnf("fetch [%d, %d) failed: %v", piece.from, piece.to, err)
			return nil, err
		}
		if int64(len(b)) != piece.to-piece.from {
			return nil, model.NewErrorContext("fetch", f.name).WithURL(r.URL).
				WithDetails(fmt.Sprintf("got %d of %d bytes", len(b), piece.to-piece.from)).
				Error(model.ErrShortRead)
		}
		transferred += t.Bytes
		logger.WithField("url", r.URL).Debugf("fetched [%d, %d) of %s: %d bytes, %d transferred",
			r.FromByte, r.ToByte, f.name, len(b), t.Bytes)
		data = append(data, b...)
	}
	f.totalFetchedBytes.Add(transferred)
	return data, nil
}
