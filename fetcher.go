package httpvfs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/juju/ratelimit"

	"github.com/xet7/httpvfs/domain/model"
)

// Fetcher retrieves a byte range of a remote resource. A range with a
// negative ToByte asks for the whole resource. Implementations must not retry;
// retry policy belongs to the transport they wrap.
type Fetcher interface {
	Fetch(ctx context.Context, r model.ChunkRange) ([]byte, error)
}

// FetcherFunc adapts a function to the Fetcher interface
type FetcherFunc func(ctx context.Context, r model.ChunkRange) ([]byte, error)

// Fetch implements Fetcher
func (f FetcherFunc) Fetch(ctx context.Context, r model.ChunkRange) ([]byte, error) {
	return f(ctx, r)
}

// Transfer is the network traffic behind one fetch.
type Transfer struct {
	Requests int64
	Bytes    int64
}

// MeteredFetcher is implemented by fetchers that may answer a range without
// touching the network, such as fetchers serving decoded objects from memory.
// FetchMetered reports the traffic the call actually caused.
type MeteredFetcher interface {
	Fetcher
	FetchMetered(ctx context.Context, r model.ChunkRange) ([]byte, Transfer, error)
}

// fetchMetered fetches r and reports its traffic. Plain fetchers count as one
// request transferring the returned bytes.
func fetchMetered(ctx context.Context, f Fetcher, r model.ChunkRange) ([]byte, Transfer, error) {
	if m, ok := f.(MeteredFetcher); ok {
		return m.FetchMetered(ctx, r)
	}
	data, err := f.Fetch(ctx, r)
	return data, Transfer{Requests: 1, Bytes: int64(len(data))}, err
}

// blockOn runs fn on a dedicated goroutine and blocks the calling goroutine
// until it completes or ctx is done. It is the only place where a synchronous
// engine read waits for network I/O. When ctx ends first, fn keeps running
// and its result is dropped.
func blockOn[T any](ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)
	go func() {
		val, err := fn(ctx)
		done <- result{val: val, err: err}
	}()
	select {
	case r := <-done:
		return r.val, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// limitedReader throttles reads with a token bucket
type limitedReader struct {
	io.Reader
	r *ratelimit.Bucket
}

func (l *limitedReader) Read(buf []byte) (int, error) {
	n, err := l.Reader.Read(buf)
	if l.r != nil && n > 0 {
		l.r.Wait(int64(n))
	}
	return n, err
}

// newDownloadBucket returns a token bucket for bytesPerSecond, or nil for no limit.
func newDownloadBucket(bytesPerSecond int64) *ratelimit.Bucket {
	if bytesPerSecond <= 0 {
		return nil
	}
	// there are overheads coming from HTTP/TCP/IP
	return ratelimit.NewBucketWithRate(float64(bytesPerSecond)*0.85, bytesPerSecond)
}

// rateLimitedFetcher delays each fetch until the bucket holds the bytes it returned
type rateLimitedFetcher struct {
	next   Fetcher
	bucket *ratelimit.Bucket
}

// NewRateLimitedFetcher throttles any fetcher to bytesPerSecond. A non-positive
// limit returns next unchanged.
func NewRateLimitedFetcher(next Fetcher, bytesPerSecond int64) Fetcher {
	bucket := newDownloadBucket(bytesPerSecond)
	if bucket == nil {
		return next
	}
	return &rateLimitedFetcher{next: next, bucket: bucket}
}

// Fetch implements Fetcher
func (f *rateLimitedFetcher) Fetch(ctx context.Context, r model.ChunkRange) ([]byte, error) {
	data, _, err := f.FetchMetered(ctx, r)
	return data, err
}

// FetchMetered implements MeteredFetcher. Only transferred bytes are throttled.
func (f *rateLimitedFetcher) FetchMetered(ctx context.Context, r model.ChunkRange) ([]byte, Transfer, error) {
	data, t, err := fetchMetered(ctx, f.next, r)
	if err != nil {
		return nil, t, err
	}
	if t.Bytes > 0 {
		f.bucket.Wait(t.Bytes)
	}
	return data, t, nil
}

// HTTPFetcher fetches ranges with HTTP range requests.
type HTTPFetcher struct {
	client *http.Client
	header http.Header
	limit  *ratelimit.Bucket
}

// NewHTTPFetcher creates a fetcher using client, or http.DefaultClient when nil.
func NewHTTPFetcher(client *http.Client) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPFetcher{client: client, header: make(http.Header)}
}

// WithHeader adds a header sent with every request. Returns the fetcher for chaining.
func (f *HTTPFetcher) WithHeader(key, value string) *HTTPFetcher {
	f.header.Add(key, value)
	return f
}

// WithDownloadLimit throttles response bodies to bytesPerSecond. Returns the fetcher for chaining.
func (f *HTTPFetcher) WithDownloadLimit(bytesPerSecond int64) *HTTPFetcher {
	f.limit = newDownloadBucket(bytesPerSecond)
	return f
}

// Fetch implements Fetcher
func (f *HTTPFetcher) Fetch(ctx context.Context, r model.ChunkRange) ([]byte, error) {
	errCtx := model.NewErrorContext("fetch", "").WithURL(r.URL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.URL, nil)
	if err != nil {
		return nil, errCtx.Error(fmt.Errorf("%w: %w", model.ErrTransport, err))
	}
	for k, vals := range f.header {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}
	ranged := r.ToByte >= 0
	if ranged {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", r.FromByte, r.ToByte-1))
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, errCtx.Error(fmt.Errorf("%w: %w", model.ErrTransport, err))
	}
	defer resp.Body.Close()

	body := io.Reader(resp.Body)
	if f.limit != nil {
		body = &limitedReader{Reader: body, r: f.limit}
	}

	switch {
	case resp.StatusCode == http.StatusPartialContent && ranged:
		data, err := io.ReadAll(io.LimitReader(body, r.Len()))
		if err != nil {
			return nil, errCtx.Error(fmt.Errorf("%w: %w", model.ErrTransport, err))
		}
		return checkLength(errCtx, data, r.Len())

	case resp.StatusCode == http.StatusOK:
		// server ignored the range header, cut the range out of the full body
		if !ranged {
			data, err := io.ReadAll(body)
			if err != nil {
				return nil, errCtx.Error(fmt.Errorf("%w: %w", model.ErrTransport, err))
			}
			return data, nil
		}
		if _, err := io.CopyN(io.Discard, body, r.FromByte); err != nil {
			return nil, errCtx.WithDetails("server does not support range requests").
				Error(fmt.Errorf("%w: %w", model.ErrShortRead, err))
		}
		data, err := io.ReadAll(io.LimitReader(body, r.Len()))
		if err != nil {
			return nil, errCtx.Error(fmt.Errorf("%w: %w", model.ErrTransport, err))
		}
		return checkLength(errCtx, data, r.Len())

	default:
		return nil, errCtx.WithDetails(resp.Status).Error(
			fmt.Errorf("%w: unexpected status %d", model.ErrTransport, resp.StatusCode))
	}
}

func checkLength(errCtx *model.ErrorContext, data []byte, want int64) ([]byte, error) {
	if int64(len(data)) != want {
		return nil, errCtx.WithDetails(fmt.Sprintf("got %d of %d bytes", len(data), want)).Error(model.ErrShortRead)
	}
	return data, nil
}

// schemeFetcher routes s3:// URLs to an S3Fetcher created on first use and
// everything else to an HTTPFetcher.
type schemeFetcher struct {
	http          *HTTPFetcher
	downloadLimit int64

	s3Once sync.Once
	s3     *S3Fetcher
	s3Err  error
}

// NewFetcher returns a fetcher that understands http(s):// and s3:// URLs.
func NewFetcher(client *http.Client, downloadLimit int64) Fetcher {
	return &schemeFetcher{
		http:          NewHTTPFetcher(client).WithDownloadLimit(downloadLimit),
		downloadLimit: downloadLimit,
	}
}

// Fetch implements Fetcher
func (f *schemeFetcher) Fetch(ctx context.Context, r model.ChunkRange) ([]byte, error) {
	if !strings.HasPrefix(r.URL, s3Scheme) {
		return f.http.Fetch(ctx, r)
	}
	f.s3Once.Do(func() {
		f.s3, f.s3Err = NewS3Fetcher(ctx)
		if f.s3 != nil {
			f.s3.WithDownloadLimit(f.downloadLimit)
		}
	})
	if f.s3Err != nil {
		return nil, f.s3Err
	}
	return f.s3.Fetch(ctx, r)
}
