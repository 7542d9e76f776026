package httpvfs

import (
	"bytes"
	"compress/bzip2"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
	"golang.org/x/sync/singleflight"

	"github.com/xet7/httpvfs/domain/model"
)

// CompressionHandler defines the interface for handling stream compression/decompression
type CompressionHandler interface {
	// CreateReader wraps an io.Reader with a decompression reader if needed
	CreateReader(reader io.Reader) (io.Reader, func() error, error)
	// CreateWriter wraps an io.Writer with a compression writer if needed
	CreateWriter(writer io.Writer) (io.Writer, func() error, error)
	// Extension returns the file extension for this compression type (e.g., ".gz")
	Extension() string
}

// compressionHandlerImpl implements the CompressionHandler interface
type compressionHandlerImpl struct {
	compressionType model.CompressionType
}

// CreateReader creates a decompression reader based on the compression type
func (h *compressionHandlerImpl) CreateReader(reader io.Reader) (io.Reader, func() error, error) {
	switch h.compressionType {
	case model.CompressionNone:
		return reader, func() error { return nil }, nil

	case model.CompressionGZ:
		gzReader, err := gzip.NewReader(reader)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		return gzReader, gzReader.Close, nil

	case model.CompressionBZ2:
		// bzip2.NewReader doesn't need closing
		return bzip2.NewReader(reader), func() error { return nil }, nil

	case model.CompressionXZ:
		xzReader, err := xz.NewReader(reader)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create xz reader: %w", err)
		}
		return xzReader, func() error { return nil }, nil

	case model.CompressionZSTD:
		decoder, err := zstd.NewReader(reader)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create zstd reader: %w", err)
		}
		return decoder, func() error {
			decoder.Close()
			return nil
		}, nil

	default:
		return nil, nil, fmt.Errorf("unsupported compression type for reading: %v", h.compressionType)
	}
}

// CreateWriter creates a compression writer based on the compression type
func (h *compressionHandlerImpl) CreateWriter(writer io.Writer) (io.Writer, func() error, error) {
	switch h.compressionType {
	case model.CompressionNone:
		return writer, func() error { return nil }, nil

	case model.CompressionGZ:
		gzWriter := gzip.NewWriter(writer)
		return gzWriter, gzWriter.Close, nil

	case model.CompressionBZ2:
		// bzip2 doesn't have a writer in the standard library
		return nil, nil, errors.New("bzip2 compression is not supported for writing")

	case model.CompressionXZ:
		xzWriter, err := xz.NewWriter(writer)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create xz writer: %w", err)
		}
		return xzWriter, xzWriter.Close, nil

	case model.CompressionZSTD:
		zstdWriter, err := zstd.NewWriter(writer)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create zstd writer: %w", err)
		}
		return zstdWriter, zstdWriter.Close, nil

	default:
		return nil, nil, fmt.Errorf("unsupported compression type for writing: %v", h.compressionType)
	}
}

// Extension returns the file extension for this compression type
func (h *compressionHandlerImpl) Extension() string {
	return h.compressionType.Extension()
}

// NewCompressionHandler creates a new compression handler for the given compression type
func NewCompressionHandler(compressionType model.CompressionType) CompressionHandler {
	return &compressionHandlerImpl{
		compressionType: compressionType,
	}
}

// DetectCompressionType detects the compression type from a file path or URL
func DetectCompressionType(path string) model.CompressionType {
	path = strings.ToLower(path)
	for _, c := range []model.CompressionType{model.CompressionGZ, model.CompressionBZ2, model.CompressionXZ, model.CompressionZSTD} {
		if strings.HasSuffix(path, c.Extension()) {
			return c
		}
	}
	return model.CompressionNone
}

// createWriterForFile creates a file and returns a writer that handles compression
func createWriterForFile(path string, compressionType model.CompressionType) (io.Writer, func() error, error) {
	file, err := os.Create(path) //nolint:gosec // User-provided path is necessary for file operations
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create file: %w", err)
	}

	handler := NewCompressionHandler(compressionType)
	writer, cleanup, err := handler.CreateWriter(file)
	if err != nil {
		_ = file.Close()
		return nil, nil, err
	}

	// Create a composite cleanup function
	compositeCleanup := func() error {
		var cleanupErr error
		if cleanup != nil {
			cleanupErr = cleanup()
		}
		if syncErr := file.Sync(); syncErr != nil && cleanupErr == nil {
			cleanupErr = syncErr
		}
		if closeErr := file.Close(); closeErr != nil && cleanupErr == nil {
			cleanupErr = closeErr
		}
		return cleanupErr
	}

	return writer, compositeCleanup, nil
}

// defaultDecodedObjects is how many decompressed chunk objects are kept
const defaultDecodedObjects = 4

// decompressingFetcher serves ranges out of compressed chunk objects. Range
// requests cannot address a compressed stream, so every chunk object is
// fetched whole, decoded once and sliced afterwards.
type decompressingFetcher struct {
	next    Fetcher
	handler CompressionHandler
	buffers sync.Pool
	group   singleflight.Group

	mu      sync.Mutex
	objects map[string][]byte
	order   []string
	limit   int
}

// NewDecompressingFetcher returns a fetcher reading chunk objects stored with
// the given compression at URL + compression extension. CompressionNone
// returns next unchanged.
func NewDecompressingFetcher(next Fetcher, compression model.CompressionType) Fetcher {
	if compression == model.CompressionNone {
		return next
	}
	return &decompressingFetcher{
		next:    next,
		handler: NewCompressionHandler(compression),
		buffers: sync.Pool{New: func() any { return new(bytes.Buffer) }},
		objects: make(map[string][]byte),
		limit:   defaultDecodedObjects,
	}
}

// Fetch implements Fetcher
func (f *decompressingFetcher) Fetch(ctx context.Context, r model.ChunkRange) ([]byte, error) {
	data, _, err := f.FetchMetered(ctx, r)
	return data, err
}

// FetchMetered implements MeteredFetcher. Ranges of a decoded object already
// in memory cost nothing; the call that downloads an object is charged with
// its compressed size.
func (f *decompressingFetcher) FetchMetered(ctx context.Context, r model.ChunkRange) ([]byte, Transfer, error) {
	object, t, err := f.object(ctx, r.URL)
	if err != nil {
		return nil, t, err
	}
	if r.ToByte < 0 {
		return object, t, nil
	}
	if r.ToByte > int64(len(object)) || r.FromByte > r.ToByte {
		return nil, t, model.NewErrorContext("fetch", "").WithURL(r.URL).
			WithDetails(fmt.Sprintf("range [%d, %d) beyond decoded object of %d bytes", r.FromByte, r.ToByte, len(object))).
			Error(model.ErrShortRead)
	}
	out := make([]byte, r.Len())
	copy(out, object[r.FromByte:r.ToByte])
	return out, t, nil
}

// object returns the decoded chunk object, fetching it when not cached.
// Concurrent misses of one object share a single download.
func (f *decompressingFetcher) object(ctx context.Context, url string) ([]byte, Transfer, error) {
	if data, ok := f.cached(url); ok {
		return data, Transfer{}, nil
	}

	// only the goroutine running the download is charged for it
	var t Transfer
	v, err, _ := f.group.Do(url, func() (any, error) {
		if data, ok := f.cached(url); ok {
			return data, nil
		}
		src := url + f.handler.Extension()
		raw, rt, err := fetchMetered(ctx, f.next, model.ChunkRange{URL: src, ToByte: -1})
		t = rt
		if err != nil {
			return nil, err
		}
		data, err := f.decode(src, raw)
		if err != nil {
			return nil, err
		}
		f.store(url, data)
		return data, nil
	})
	if err != nil {
		return nil, t, err
	}
	return v.([]byte), t, nil //nolint:forcetypeassert // group only returns decoded objects
}

func (f *decompressingFetcher) cached(url string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[url]
	return data, ok
}

func (f *decompressingFetcher) decode(src string, raw []byte) ([]byte, error) {
	reader, cleanup, err := f.handler.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return nil, model.NewErrorContext("decompress", "").WithURL(src).Error(fmt.Errorf("%w: %w", model.ErrTransport, err))
	}
	defer func() { _ = cleanup() }()

	buf := f.buffers.Get().(*bytes.Buffer) //nolint:errcheck,forcetypeassert // pool only holds buffers
	buf.Reset()
	defer f.buffers.Put(buf)
	if _, err := io.Copy(buf, reader); err != nil {
		return nil, model.NewErrorContext("decompress", "").WithURL(src).Error(fmt.Errorf("%w: %w", model.ErrTransport, err))
	}
	return bytes.Clone(buf.Bytes()), nil
}

func (f *decompressingFetcher) store(url string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.objects[url]; !ok {
		f.order = append(f.order, url)
	}
	f.objects[url] = data
	for len(f.order) > f.limit {
		delete(f.objects, f.order[0])
		f.order = f.order[1:]
	}
}
