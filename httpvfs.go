package httpvfs

import (
	"context"

	"github.com/xet7/httpvfs/domain/model"
	"github.com/xet7/httpvfs/driver"
)

// DriverName is the name the database/sql driver is registered under
const DriverName = driver.DriverName

// Open opens the remote database described by cfg.
//
// The database file is split on the server into chunks of cfg.ServerChunkSize
// bytes named cfg.URLPrefix followed by the zero padded chunk index, as
// written by SplitFile. Nothing but the header page is fetched before the
// first query; every further page is fetched on first access in segments of
// cfg.RequestChunkSize bytes.
//
// A configuration error (zero length, empty prefix) is reported as
// ErrConfig without touching the network. A failure fetching the header is
// reported as ErrTransport.
//
// Example usage:
//
//	cfg := httpvfs.SplitFileConfig{
//		URLPrefix:           "https://example.com/db/db.sqlite3.",
//		ServerChunkSize:     10 << 20,
//		DatabaseLengthBytes: 52428800,
//		RequestChunkSize:    4096,
//	}
//	db, err := httpvfs.Open(ctx, cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer db.Close()
//
//	rows, err := db.Query(ctx, "SELECT name, value FROM settings WHERE name = ?", "theme")
//	if err != nil {
//		log.Fatal(err)
//	}
//	for _, row := range rows {
//		fmt.Println(row["name"], row["value"])
//	}
func Open(ctx context.Context, cfg SplitFileConfig) (*Database, error) {
	return NewBuilder().WithConfig(cfg).Open(ctx)
}

// OpenConfigFile opens the remote database described by the config file at
// location, a local path or an http(s) URL.
func OpenConfigFile(ctx context.Context, location string) (*Database, error) {
	return NewBuilder().WithConfigFile(location).Open(ctx)
}

// Type aliases for the domain model
type (
	// SplitFileConfig describes the chunk layout of a remote database
	SplitFileConfig = model.SplitFileConfig
	// Stats is a snapshot of the fetch counters of a remote database
	Stats = model.Stats
	// ResultSet is the columnar result of one statement
	ResultSet = model.ResultSet
	// Object is one result row keyed by column name
	Object = model.Object
	// ExportOptions represents options for exporting a result set
	ExportOptions = model.ExportOptions
	// OutputFormat represents the output file format
	OutputFormat = model.OutputFormat
	// CompressionType represents the compression type
	CompressionType = model.CompressionType
)

// Re-export constants for easier use
const (
	// ServerModeChunked serves the database as numbered chunk files
	ServerModeChunked = model.ServerModeChunked
	// ServerModeFull serves the database as a single file
	ServerModeFull = model.ServerModeFull

	// OutputFormatCSV represents CSV output format
	OutputFormatCSV = model.OutputFormatCSV
	// OutputFormatTSV represents TSV output format
	OutputFormatTSV = model.OutputFormatTSV
	// OutputFormatLTSV represents LTSV output format
	OutputFormatLTSV = model.OutputFormatLTSV
	// OutputFormatJSON represents JSON output format
	OutputFormatJSON = model.OutputFormatJSON
	// OutputFormatParquet represents Parquet output format
	OutputFormatParquet = model.OutputFormatParquet
	// OutputFormatXLSX represents Excel output format
	OutputFormatXLSX = model.OutputFormatXLSX

	// CompressionNone represents no compression
	CompressionNone = model.CompressionNone
	// CompressionGZ represents gzip compression
	CompressionGZ = model.CompressionGZ
	// CompressionBZ2 represents bzip2 compression
	CompressionBZ2 = model.CompressionBZ2
	// CompressionXZ represents xz compression
	CompressionXZ = model.CompressionXZ
	// CompressionZSTD represents zstd compression
	CompressionZSTD = model.CompressionZSTD
)

// NewExportOptions creates new ExportOptions with default values (CSV format, no compression)
var NewExportOptions = model.NewExportOptions

// ToObjects converts the first result set of a statement batch into one
// mapping per row. An empty batch yields an empty slice.
func ToObjects(sets []ResultSet) []Object {
	return model.ToObjects(sets)
}
