// Package httpvfs queries SQLite databases that live on a static file server,
// without downloading them.
//
// The database file is split into fixed size chunk files (see SplitFile) and
// uploaded next to a small config file. httpvfs mounts the remote file as a
// read-only SQLite file and fetches pages on demand with HTTP range requests.
// Fetched segments are cached for the lifetime of the session, so a query
// touching a few index pages of a multi gigabyte database downloads a few
// kilobytes.
//
// # Features
//
//   - Demand paging over HTTP range requests or S3 GetObject ranges
//   - Chunked (db.sqlite3.000, db.sqlite3.001, ...) and single file layouts
//   - Compressed chunk objects (gzip, bzip2, xz, zstandard)
//   - Download bandwidth limit
//   - A generate_series table valued function in every connection
//   - Fetch statistics (bytes and requests) per database
//   - Export of query results to CSV, TSV, LTSV, JSON, Parquet and Excel (XLSX)
//
// # Basic Usage
//
//	db, err := httpvfs.OpenConfigFile(ctx, "https://example.com/db/config.json")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	rows, err := db.Query(ctx, "SELECT * FROM titles WHERE year > ?", 2000)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(len(rows), db.Stats().TotalFetchedBytes)
//
// # Advanced Usage
//
// For more complex scenarios, use the Builder pattern:
//
//	db, err := httpvfs.NewBuilder().
//	    WithConfig(cfg).
//	    WithChunkCompression(httpvfs.CompressionZSTD).
//	    WithDownloadLimit(512 << 10).
//	    WithPrefetch(0, 4096, 8192).
//	    Open(ctx)
//
// Database.SQL returns the *sql.DB for code that wants database/sql directly.
//
// # Errors
//
// Every error wraps one of ErrTransport, ErrConfig, ErrProtocol or ErrProxy.
// Failed page fetches surface from the engine as I/O errors; Database
// re-attaches the fetch failure so errors.Is(err, ErrTransport) holds.
// Nothing is retried: reopen the database to try again.
//
// # SQL Syntax
//
// httpvfs uses SQLite3 as its engine; all SQL follows SQLite3's dialect. The
// main database is read-only, TEMP tables can be created and written.
//
// For complete SQL syntax documentation, see: https://www.sqlite.org/lang.html
package httpvfs
