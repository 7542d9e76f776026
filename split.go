package httpvfs

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"

	"github.com/xet7/httpvfs/domain/model"
)

const (
	// ChunkFilePrefix is the name of chunk files before the chunk index
	ChunkFilePrefix = "db.sqlite3."
	// ConfigFileName is the name of the config file written next to the chunks
	ConfigFileName = "config.json"

	// sqliteHeaderMagic starts every SQLite database file
	sqliteHeaderMagic = "SQLite format 3\x00"
	// defaultPageSize is used when the page size cannot be read from the header
	defaultPageSize = 4096
)

// SplitOption configures SplitFile.
type SplitOption func(*splitOptions)

type splitOptions struct {
	progress func(written, total int64)
}

// WithSplitProgress calls fn after every chunk with the number of bytes
// written so far and the database size.
func WithSplitProgress(fn func(written, total int64)) SplitOption {
	return func(o *splitOptions) {
		o.progress = fn
	}
}

// SplitFile splits the SQLite database at src into chunk files of
// serverChunkSize bytes in dstDir, named db.sqlite3.000, db.sqlite3.001, ...,
// and writes config.json describing them.
//
// The request chunk size is the database page size, so every page is fetched
// with a single request. The config's urlPrefix is relative; it resolves
// against the URL the config is loaded from.
//
// Example usage:
//
//	cfg, err := httpvfs.SplitFile("titles.sqlite3", "public/db", 10<<20, 0)
//	if err != nil {
//		return err
//	}
//	fmt.Println(cfg.DatabaseLengthBytes)
func SplitFile(src, dstDir string, serverChunkSize int64, suffixLength int, opts ...SplitOption) (model.SplitFileConfig, error) {
	var o splitOptions
	for _, opt := range opts {
		opt(&o)
	}

	errCtx := model.NewErrorContext("split", src)
	if serverChunkSize <= 0 {
		return model.SplitFileConfig{}, errCtx.Error(fmt.Errorf("%w: chunk size must be positive, got %d", model.ErrConfig, serverChunkSize))
	}

	f, err := os.Open(src) //nolint:gosec // user-provided path is necessary for file operations
	if err != nil {
		return model.SplitFileConfig{}, errCtx.Error(err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return model.SplitFileConfig{}, errCtx.Error(err)
	}
	if info.Size() == 0 {
		return model.SplitFileConfig{}, errCtx.Error(fmt.Errorf("%w: database is empty", model.ErrConfig))
	}

	pageSize, err := readPageSize(f)
	if err != nil {
		return model.SplitFileConfig{}, errCtx.Error(err)
	}

	if err := os.MkdirAll(dstDir, 0o750); err != nil {
		return model.SplitFileConfig{}, errCtx.Error(fmt.Errorf("failed to create output directory: %w", err))
	}

	cfg := model.SplitFileConfig{
		LastUpdated:         info.ModTime().UnixMilli(),
		URLPrefix:           ChunkFilePrefix,
		ServerChunkSize:     serverChunkSize,
		DatabaseLengthBytes: info.Size(),
		RequestChunkSize:    pageSize,
		SuffixLength:        suffixLength,
	}

	mapper := NewSplitRangeMapper(ChunkFilePrefix, serverChunkSize, cfg.Suffix())
	chunks := (info.Size() + serverChunkSize - 1) / serverChunkSize
	for id := range chunks {
		name := mapper.Map(id*serverChunkSize, id*serverChunkSize).URL
		if err := copyChunk(filepath.Join(dstDir, name), f, id*serverChunkSize, serverChunkSize); err != nil {
			return model.SplitFileConfig{}, errCtx.Error(err)
		}
		if o.progress != nil {
			o.progress(min((id+1)*serverChunkSize, info.Size()), info.Size())
		}
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return model.SplitFileConfig{}, errCtx.Error(err)
	}
	if err := os.WriteFile(filepath.Join(dstDir, ConfigFileName), append(data, '\n'), 0o600); err != nil {
		return model.SplitFileConfig{}, errCtx.Error(fmt.Errorf("failed to write config: %w", err))
	}

	logger.WithField("file", src).Infof("split %d bytes into %d chunks of %d bytes", info.Size(), chunks, serverChunkSize)
	return cfg, nil
}

// readPageSize returns the page size from the database header
func readPageSize(r io.ReaderAt) (int64, error) {
	header := make([]byte, 18)
	if _, err := r.ReadAt(header, 0); err != nil {
		if errors.Is(err, io.EOF) {
			return 0, fmt.Errorf("%w: file is too short to be a database", model.ErrConfig)
		}
		return 0, err
	}
	if string(header[:16]) != sqliteHeaderMagic {
		return 0, fmt.Errorf("%w: not a SQLite database", model.ErrConfig)
	}
	switch size := binary.BigEndian.Uint16(header[16:18]); {
	case size == 1:
		return 65536, nil
	case size >= 512:
		return int64(size), nil
	default:
		return defaultPageSize, nil
	}
}

// copyChunk writes up to size bytes of src starting at offset to path
func copyChunk(path string, src io.ReaderAt, offset, size int64) error {
	out, err := os.Create(path) //nolint:gosec // path is built from the output directory
	if err != nil {
		return fmt.Errorf("failed to create chunk: %w", err)
	}
	if _, err := io.Copy(out, io.NewSectionReader(src, offset, size)); err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to write chunk %s: %w", path, err)
	}
	return out.Close()
}
