package httpvfs

import (
	"fmt"

	"github.com/xet7/httpvfs/domain/model"
)

// RangeMapper maps a logical byte range of the database onto the server
// resource holding it. Map must only be called with ranges that do not
// straddle a server chunk boundary; the LazyFile splits reads accordingly.
type RangeMapper interface {
	// Map returns the chunk URL and the sub-range of [from, to) within that chunk.
	Map(from, to int64) model.ChunkRange
	// ChunkSize returns the server chunk size, or 0 when the file is not chunked.
	ChunkSize() int64
}

// splitRangeMapper addresses databases split into fixed size chunk files.
type splitRangeMapper struct {
	prefix       string
	chunkSize    int64
	suffixLength int
}

// NewSplitRangeMapper returns a mapper for chunk files named prefix followed
// by the chunk index zero padded to suffixLength digits.
func NewSplitRangeMapper(prefix string, serverChunkSize int64, suffixLength int) RangeMapper {
	if suffixLength <= 0 {
		suffixLength = model.DefaultSuffixLength
	}
	return &splitRangeMapper{
		prefix:       prefix,
		chunkSize:    serverChunkSize,
		suffixLength: suffixLength,
	}
}

// Map implements RangeMapper
func (m *splitRangeMapper) Map(from, to int64) model.ChunkRange {
	chunkID := from / m.chunkSize
	serverFrom := from % m.chunkSize
	return model.ChunkRange{
		URL:      m.ChunkURL(chunkID),
		ChunkID:  chunkID,
		FromByte: serverFrom,
		ToByte:   serverFrom + (to - from),
	}
}

// ChunkSize implements RangeMapper
func (m *splitRangeMapper) ChunkSize() int64 {
	return m.chunkSize
}

// ChunkURL returns the URL of the chunk with the given index.
func (m *splitRangeMapper) ChunkURL(chunkID int64) string {
	return fmt.Sprintf("%s%0*d", m.prefix, m.suffixLength, chunkID)
}

// fullRangeMapper addresses a database served as one file.
type fullRangeMapper struct {
	url string
}

// NewFullRangeMapper returns a mapper for a database served unsplit at url.
func NewFullRangeMapper(url string) RangeMapper {
	return &fullRangeMapper{url: url}
}

// Map implements RangeMapper
func (m *fullRangeMapper) Map(from, to int64) model.ChunkRange {
	return model.ChunkRange{URL: m.url, FromByte: from, ToByte: to}
}

// ChunkSize implements RangeMapper
func (m *fullRangeMapper) ChunkSize() int64 {
	return 0
}

// NewRangeMapper returns the mapper described by cfg.
func NewRangeMapper(cfg model.SplitFileConfig) RangeMapper {
	if cfg.Mode() == model.ServerModeFull {
		return NewFullRangeMapper(cfg.URL)
	}
	return NewSplitRangeMapper(cfg.URLPrefix, cfg.ServerChunkSize, cfg.Suffix())
}

// byteRange is a half open logical range [from, to).
type byteRange struct {
	from, to int64
}

// splitAtBoundaries cuts [from, to) at every multiple of size. A size of 0
// leaves the range whole.
func splitAtBoundaries(from, to, size int64) []byteRange {
	if from >= to {
		return nil
	}
	if size <= 0 {
		return []byteRange{{from: from, to: to}}
	}
	var pieces []byteRange
	for start := from; start < to; {
		end := (start/size + 1) * size
		if end > to {
			end = to
		}
		pieces = append(pieces, byteRange{from: start, to: end})
		start = end
	}
	return pieces
}
