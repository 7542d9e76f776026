package proxy

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/xet7/httpvfs/domain/model"
	"github.com/xet7/httpvfs/internal/logging"
)

var logger = logging.GetLogger("proxy")

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// Option configures an exposed object.
type Option func(*server)

// WithReleaseHook calls fn once the exposed object stops being served,
// either because the far side released it or because its channel closed.
func WithReleaseHook(fn func()) Option {
	return func(s *server) {
		s.onRelease = fn
	}
}

// server answers calls for one exposed object on one port
type server struct {
	obj       any
	kind      string
	port      *Port
	onRelease func()

	mu sync.Mutex
	// bindings holds the handles this channel has already sent, by identity
	bindings map[Handle]string
}

// Expose serves obj on port in a new goroutine. See Serve.
func Expose(ctx context.Context, obj any, port *Port, opts ...Option) {
	go func() {
		if err := Serve(ctx, obj, port, opts...); err != nil {
			logger.WithError(err).Debug("serve stopped")
		}
	}()
}

// Serve answers calls arriving on port by invoking the exported methods of
// obj until the far side releases it, the channel closes, or ctx is done.
// Calls are executed one at a time in arrival order. The port is closed on
// return.
//
// A method whose first parameter is a context.Context receives ctx. A final
// error result is sent as a RemoteError. Handles found anywhere in a result
// are bound to new channels and sent as HandleRef values.
func Serve(ctx context.Context, obj any, port *Port, opts ...Option) error {
	s := &server{
		obj:      obj,
		port:     port,
		bindings: make(map[Handle]string),
	}
	if h, ok := obj.(Handle); ok {
		s.kind = h.HandleKind()
	}
	for _, opt := range opts {
		opt(s)
	}
	defer func() {
		port.Close()
		if s.onRelease != nil {
			s.onRelease()
		}
	}()

	for {
		msg, err := port.Receive(ctx)
		if err != nil {
			if errors.Is(err, ErrChannelClosed) {
				return nil
			}
			return err
		}

		var req request
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			logger.WithError(err).Warn("dropping malformed request")
			continue
		}
		if req.Type == requestRelease {
			logger.WithField("kind", s.kind).Debug("handle released")
			return nil
		}

		resp, transfer := s.call(ctx, req)
		out, err := encodeMessage(resp, transfer)
		if err != nil {
			out, _ = encodeMessage(response{ID: req.ID, Error: newWireError(err)}, nil)
		}
		if err := port.Post(out); err != nil {
			return nil
		}
	}
}

// call runs one request against the exposed object
func (s *server) call(ctx context.Context, req request) (resp response, transfer []*Port) {
	resp.ID = req.ID
	defer func() {
		if r := recover(); r != nil {
			logger.WithField("method", req.Method).Errorf("call panicked: %v", r)
			resp = response{ID: req.ID, Error: newWireError(fmt.Errorf("%w: %s panicked: %v", model.ErrProxy, req.Method, r))}
			transfer = nil
		}
	}()

	if req.Type != requestCall {
		resp.Error = newWireError(fmt.Errorf("%w: unknown request type %q", model.ErrProxy, req.Type))
		return resp, nil
	}

	method := reflect.ValueOf(s.obj).MethodByName(req.Method)
	if !method.IsValid() {
		resp.Error = newWireError(fmt.Errorf("%w: %s", model.ErrUnknownMethod, req.Method))
		return resp, nil
	}

	args, err := decodeArgs(ctx, method.Type(), req.Args)
	if err != nil {
		resp.Error = newWireError(fmt.Errorf("%s: %w", req.Method, err))
		return resp, nil
	}

	logger.WithField("kind", s.kind).Debugf("call %s", req.Method)
	out := method.Call(args)
	if n := len(out); n > 0 && method.Type().Out(n-1) == errorType {
		if err, _ := out[n-1].Interface().(error); err != nil {
			resp.Error = newWireError(err)
			return resp, nil
		}
		out = out[:n-1]
	}

	enc := &encoder{server: s, ctx: ctx, seen: make(map[string]bool)}
	var result any
	switch len(out) {
	case 0:
	case 1:
		result, err = enc.encode(out[0])
	default:
		values := make([]any, len(out))
		for i, v := range out {
			if values[i], err = enc.encode(v); err != nil {
				break
			}
		}
		result = values
	}
	if err == nil {
		resp.Result, err = json.Marshal(result)
	}
	if err != nil {
		resp.Error = newWireError(fmt.Errorf("%w: failed to encode %s result: %w", model.ErrProxy, req.Method, err))
		return resp, nil
	}
	resp.Handles = enc.handles
	return resp, enc.transfer
}

// decodeArgs builds the argument list for a method of type t
func decodeArgs(ctx context.Context, t reflect.Type, raw []json.RawMessage) ([]reflect.Value, error) {
	var args []reflect.Value
	first := 0
	if t.NumIn() > 0 && t.In(0) == contextType {
		args = append(args, reflect.ValueOf(ctx))
		first = 1
	}

	fixed := t.NumIn()
	if t.IsVariadic() {
		fixed--
	}
	want := fixed - first
	if len(raw) < want || (!t.IsVariadic() && len(raw) > want) {
		return nil, fmt.Errorf("%w: want %d arguments, got %d", model.ErrProxy, want, len(raw))
	}

	for i, r := range raw {
		var pt reflect.Type
		if first+i < fixed {
			pt = t.In(first + i)
		} else {
			pt = t.In(t.NumIn() - 1).Elem()
		}
		v, err := decodeValue(r, pt)
		if err != nil {
			return nil, fmt.Errorf("%w: argument %d: %w", model.ErrProxy, i, err)
		}
		args = append(args, v)
	}
	return args, nil
}

// bind returns the binding id of h on this channel. The port is nil when
// the far side already holds the binding.
func (s *server) bind(ctx context.Context, h Handle) (string, *Port) {
	// only pointer handles have a stable identity to reuse
	reusable := reflect.TypeOf(h).Kind() == reflect.Pointer

	s.mu.Lock()
	defer s.mu.Unlock()

	if reusable {
		if id, ok := s.bindings[h]; ok {
			return id, nil
		}
	}

	id := uuid.NewString()
	local, remote := NewMessageChannel()
	if reusable {
		s.bindings[h] = id
	}
	Expose(ctx, h, local, WithReleaseHook(func() {
		if reusable {
			s.unbind(h, id)
		}
	}))

	logger.WithField("kind", h.HandleKind()).WithField("id", id).Debug("handle bound")
	return id, remote
}

func (s *server) unbind(h Handle, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bindings[h] == id {
		delete(s.bindings, h)
	}
}
