// Package model provides domain model for httpvfs
package model

import (
	"errors"
	"fmt"
	"strings"
)

// Error classes. Every error produced by httpvfs wraps exactly one of the class
// sentinels below so that callers can decide whether reconstructing a session
// is worthwhile.
var (
	// ErrTransport indicates a remote fetch failed or returned unusable data
	ErrTransport = errors.New("httpvfs: transport error")

	// ErrConfig indicates a malformed or inconsistent SplitFileConfig
	ErrConfig = errors.New("httpvfs: configuration error")

	// ErrProtocol indicates a contract mismatch with the SQL engine (virtual table calls)
	ErrProtocol = errors.New("httpvfs: protocol error")

	// ErrProxy indicates a failed call across the handle proxy boundary
	ErrProxy = errors.New("httpvfs: proxy error")
)

// Specific errors, each belonging to one of the classes above.
var (
	// ErrNoDatabase is returned when an operation needs a constructed database
	ErrNoDatabase = fmt.Errorf("%w: no database constructed", ErrConfig)

	// ErrAlreadyMounted is returned when a filename is already backed by a remote file
	ErrAlreadyMounted = fmt.Errorf("%w: filename already mounted", ErrConfig)

	// ErrChannelClosed is returned for calls against a closed proxy channel
	ErrChannelClosed = fmt.Errorf("%w: channel closed", ErrProxy)

	// ErrUnknownMethod is returned when a proxied call names a method the handle does not have
	ErrUnknownMethod = fmt.Errorf("%w: unknown method", ErrProxy)

	// ErrShortRead is returned when the server delivers fewer bytes than requested
	ErrShortRead = fmt.Errorf("%w: short read", ErrTransport)
)

// Error class names as they travel across the proxy boundary.
const (
	ClassTransport = "transport"
	ClassConfig    = "config"
	ClassProtocol  = "protocol"
	ClassProxy     = "proxy"
)

// ClassOf returns the taxonomy class of err, or "" when err belongs to none.
func ClassOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTransport):
		return ClassTransport
	case errors.Is(err, ErrConfig):
		return ClassConfig
	case errors.Is(err, ErrProtocol):
		return ClassProtocol
	case errors.Is(err, ErrProxy):
		return ClassProxy
	default:
		return ""
	}
}

// ErrorForClass returns the class sentinel for a class name, or nil.
func ErrorForClass(class string) error {
	switch class {
	case ClassTransport:
		return ErrTransport
	case ClassConfig:
		return ErrConfig
	case ClassProtocol:
		return ErrProtocol
	case ClassProxy:
		return ErrProxy
	default:
		return nil
	}
}

// ErrorContext provides context for where an error occurred
type ErrorContext struct {
	Operation string
	Filename  string
	URL       string
	Details   string
}

// NewErrorContext creates a new error context
func NewErrorContext(operation, filename string) *ErrorContext {
	return &ErrorContext{
		Operation: operation,
		Filename:  filename,
	}
}

// WithURL adds the remote location to the error context
func (ec *ErrorContext) WithURL(url string) *ErrorContext {
	ec.URL = url
	return ec
}

// WithDetails adds details to the error context
func (ec *ErrorContext) WithDetails(details string) *ErrorContext {
	ec.Details = details
	return ec
}

// Error creates a formatted error with context
func (ec *ErrorContext) Error(baseErr error) error {
	var parts []string
	parts = append(parts, fmt.Sprintf("httpvfs: %s failed", ec.Operation))

	if ec.Filename != "" {
		parts = append(parts, "file: "+ec.Filename)
	}

	if ec.URL != "" {
		parts = append(parts, "url: "+ec.URL)
	}

	if ec.Details != "" {
		parts = append(parts, "details: "+ec.Details)
	}

	context := strings.Join(parts, ", ")
	if baseErr != nil {
		return fmt.Errorf("%s: %w", context, baseErr)
	}
	return fmt.Errorf("%s", context)
}
