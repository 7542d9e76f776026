// Package driver provides the httpvfs driver implementation.
// This package implements database/sql/driver interfaces to query a remote
// SQLite database mounted in a mount.Table through SQLite3.
package driver
