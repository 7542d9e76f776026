package proxy

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/xet7/httpvfs/domain/model"
)

// Request types
const (
	requestCall    = "call"
	requestRelease = "release"
)

// noPort marks a handle whose binding the receiver already holds
const noPort = -1

// Handle is implemented by values that must stay where they live. Returning a
// Handle from an exposed method binds it to a new channel instead of encoding it.
type Handle interface {
	// HandleKind names the kind of handle, such as "database" or "statement".
	HandleKind() string
}

// HandleRef is what a Handle encodes to inside a result. Pass it to
// Reply.Handle to get the Proxy it stands for.
type HandleRef struct {
	ID   string `json:"$handle"`
	Kind string `json:"$kind"`
}

type request struct {
	ID     uint64            `json:"id"`
	Type   string            `json:"type"`
	Method string            `json:"method,omitempty"`
	Args   []json.RawMessage `json:"args,omitempty"`
}

type binding struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
	// Port indexes Message.Transfer, or is noPort for a known binding.
	Port int `json:"port"`
}

type response struct {
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Handles []binding       `json:"handles,omitempty"`
	Error   *wireError      `json:"error,omitempty"`
}

type wireError struct {
	Class   string `json:"class"`
	Message string `json:"message"`
}

// RemoteError is an error returned by a method on the far side of a channel.
// It unwraps to the sentinel of its class, so errors.Is(err, model.ErrTransport)
// holds for a remote transport failure.
type RemoteError struct {
	Class   string
	Message string
}

// Error implements error.
func (e *RemoteError) Error() string {
	return e.Message
}

// Unwrap returns the class sentinel, or nil for an unclassified error.
func (e *RemoteError) Unwrap() error {
	return model.ErrorForClass(e.Class)
}

func newWireError(err error) *wireError {
	var remote *RemoteError
	if errors.As(err, &remote) {
		return &wireError{Class: remote.Class, Message: remote.Message}
	}
	return &wireError{Class: model.ClassOf(err), Message: err.Error()}
}

func (e *wireError) err() error {
	return &RemoteError{Class: e.Class, Message: e.Message}
}

func encodeMessage(v any, transfer []*Port) (Message, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Message{}, fmt.Errorf("%w: failed to encode message: %w", model.ErrProxy, err)
	}
	return Message{Data: data, Transfer: transfer}, nil
}
