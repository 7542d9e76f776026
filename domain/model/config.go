package model

import (
	"fmt"
	"strings"
)

// ServerMode describes how the remote database is laid out on the server.
type ServerMode string

const (
	// ServerModeChunked means the database is split into files of ServerChunkSize bytes
	// named URLPrefix + zero padded chunk index.
	ServerModeChunked ServerMode = "chunked"
	// ServerModeFull means the database is a single file served at URL.
	ServerModeFull ServerMode = "full"
)

// DefaultSuffixLength is the width of the zero padded chunk index in chunk URLs.
const DefaultSuffixLength = 3

// SplitFileConfig fully determines chunk addressing of a remote database.
// It is immutable once a database session has been constructed.
type SplitFileConfig struct {
	// LastUpdated is the modification time of the remote database in unix milliseconds
	LastUpdated int64 `json:"lastUpdated" yaml:"lastUpdated" toml:"lastUpdated"`
	// URLPrefix is prepended to the zero padded chunk index to get a chunk URL
	URLPrefix string `json:"urlPrefix" yaml:"urlPrefix" toml:"urlPrefix"`
	// ServerChunkSize is the size of every chunk file except possibly the last
	ServerChunkSize int64 `json:"serverChunkSize" yaml:"serverChunkSize" toml:"serverChunkSize"`
	// DatabaseLengthBytes is the total size of the database file
	DatabaseLengthBytes int64 `json:"databaseLengthBytes" yaml:"databaseLengthBytes" toml:"databaseLengthBytes"`
	// RequestChunkSize is the read granularity; every fetch is aligned to it
	RequestChunkSize int64 `json:"requestChunkSize" yaml:"requestChunkSize" toml:"requestChunkSize"`

	// ServerMode selects chunked (default) or full file layout
	ServerMode ServerMode `json:"serverMode,omitempty" yaml:"serverMode,omitempty" toml:"serverMode,omitempty"`
	// URL is the database location in full server mode
	URL string `json:"url,omitempty" yaml:"url,omitempty" toml:"url,omitempty"`
	// SuffixLength is the zero padding width of chunk indexes, 3 when zero
	SuffixLength int `json:"suffixLength,omitempty" yaml:"suffixLength,omitempty" toml:"suffixLength,omitempty"`
}

// Mode returns the effective server mode.
func (c SplitFileConfig) Mode() ServerMode {
	if c.ServerMode == "" {
		return ServerModeChunked
	}
	return c.ServerMode
}

// Suffix returns the effective suffix length.
func (c SplitFileConfig) Suffix() int {
	if c.SuffixLength == 0 {
		return DefaultSuffixLength
	}
	return c.SuffixLength
}

// Location returns the URL prefix in chunked mode and the URL in full mode.
func (c SplitFileConfig) Location() string {
	if c.Mode() == ServerModeFull {
		return c.URL
	}
	return c.URLPrefix
}

// Filename derives the mounted filename from the remote location. Distinct
// prefixes yield distinct names; avoiding collisions is up to the caller.
func (c SplitFileConfig) Filename() string {
	return strings.ReplaceAll(c.Location(), "/", "_")
}

// Validate reports configuration errors. A configuration that passes Validate
// can be used to construct a session.
func (c SplitFileConfig) Validate() error {
	if c.DatabaseLengthBytes <= 0 {
		return fmt.Errorf("%w: databaseLengthBytes must be positive, got %d", ErrConfig, c.DatabaseLengthBytes)
	}
	if c.RequestChunkSize <= 0 {
		return fmt.Errorf("%w: requestChunkSize must be positive, got %d", ErrConfig, c.RequestChunkSize)
	}
	if c.SuffixLength < 0 {
		return fmt.Errorf("%w: suffixLength must not be negative, got %d", ErrConfig, c.SuffixLength)
	}

	switch c.Mode() {
	case ServerModeChunked:
		if strings.TrimSpace(c.URLPrefix) == "" {
			return fmt.Errorf("%w: urlPrefix must not be empty", ErrConfig)
		}
		if c.ServerChunkSize <= 0 {
			return fmt.Errorf("%w: serverChunkSize must be positive, got %d", ErrConfig, c.ServerChunkSize)
		}
	case ServerModeFull:
		if strings.TrimSpace(c.URL) == "" {
			return fmt.Errorf("%w: url must not be empty in full server mode", ErrConfig)
		}
	default:
		return fmt.Errorf("%w: unknown serverMode %q", ErrConfig, c.ServerMode)
	}
	return nil
}

// ChunkRange is the result of mapping a logical byte range onto a server resource.
type ChunkRange struct {
	// URL of the chunk file holding the range
	URL string
	// ChunkID is floor(from / serverChunkSize), 0 in full mode
	ChunkID int64
	// FromByte is the inclusive start offset inside the chunk file
	FromByte int64
	// ToByte is the exclusive end offset inside the chunk file; negative means the whole resource
	ToByte int64
}

// Len returns the number of bytes covered by the range, or -1 for a whole resource.
func (r ChunkRange) Len() int64 {
	if r.ToByte < 0 {
		return -1
	}
	return r.ToByte - r.FromByte
}

// Stats is a read-only snapshot of a remote file's counters.
type Stats struct {
	Filename          string `json:"filename" yaml:"filename"`
	TotalBytes        int64  `json:"totalBytes" yaml:"totalBytes"`
	TotalFetchedBytes int64  `json:"totalFetchedBytes" yaml:"totalFetchedBytes"`
	TotalRequests     int64  `json:"totalRequests" yaml:"totalRequests"`
}
