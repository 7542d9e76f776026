package httpvfs

import "github.com/xet7/httpvfs/domain/model"

// Error classes. Every error returned by this package wraps one of them;
// test with errors.Is.
var (
	// ErrTransport indicates a remote fetch failed or returned unusable data
	ErrTransport = model.ErrTransport

	// ErrConfig indicates a malformed or inconsistent configuration
	ErrConfig = model.ErrConfig

	// ErrProtocol indicates a contract mismatch with the SQL engine
	ErrProtocol = model.ErrProtocol

	// ErrProxy indicates a failed call across a proxy boundary
	ErrProxy = model.ErrProxy
)

var (
	// ErrNoDatabase is returned when an operation needs an open database
	ErrNoDatabase = model.ErrNoDatabase

	// ErrAlreadyMounted is returned when a filename is already backed by a remote file
	ErrAlreadyMounted = model.ErrAlreadyMounted

	// ErrShortRead is returned when the server delivers fewer bytes than requested
	ErrShortRead = model.ErrShortRead
)

// ErrorClass returns the class of err: "transport", "config", "protocol",
// "proxy", or "" when err belongs to none.
func ErrorClass(err error) string {
	return model.ClassOf(err)
}
