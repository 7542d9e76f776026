package proxy

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/goccy/go-json"

	"github.com/xet7/httpvfs/domain/model"
)

// Proxy forwards method calls to an object exposed on the other end of a
// channel. It is safe for concurrent use; the far side runs calls in order.
type Proxy struct {
	port *Port
	kind string

	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]chan outcome
	// known holds the handles received on this channel, by binding id
	known map[string]*Proxy
}

type outcome struct {
	reply *Reply
	err   error
}

// Wrap returns a Proxy for the object exposed on the other end of port.
func Wrap(port *Port) *Proxy {
	return wrap(port, "")
}

func wrap(port *Port, kind string) *Proxy {
	p := &Proxy{
		port:    port,
		kind:    kind,
		pending: make(map[uint64]chan outcome),
		known:   make(map[string]*Proxy),
	}
	go p.readLoop()
	return p
}

// Kind returns the handle kind of the remote object, or "" for the root.
func (p *Proxy) Kind() string {
	return p.kind
}

// Call invokes method on the remote object with args and waits for the
// reply. A remote failure is returned as a *RemoteError; a closed channel as
// ErrChannelClosed. Leaving early because ctx is done does not cancel the
// remote call.
func (p *Proxy) Call(ctx context.Context, method string, args ...any) (*Reply, error) {
	raw := make([]json.RawMessage, len(args))
	for i, arg := range args {
		data, err := encodeArg(arg)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: failed to encode argument %d: %w", model.ErrProxy, method, i, err)
		}
		raw[i] = data
	}

	ch := make(chan outcome, 1)
	p.mu.Lock()
	if p.pending == nil {
		p.mu.Unlock()
		return nil, fmt.Errorf("%s: %w", method, ErrChannelClosed)
	}
	p.nextID++
	id := p.nextID
	p.pending[id] = ch
	p.mu.Unlock()

	msg, err := encodeMessage(request{ID: id, Type: requestCall, Method: method, Args: raw}, nil)
	if err == nil {
		err = p.port.Post(msg)
	}
	if err != nil {
		p.forget(id)
		return nil, fmt.Errorf("%s: %w", method, err)
	}

	select {
	case res := <-ch:
		if res.err != nil && errors.Is(res.err, ErrChannelClosed) {
			return nil, fmt.Errorf("%s: %w", method, res.err)
		}
		return res.reply, res.err
	case <-ctx.Done():
		p.forget(id)
		return nil, ctx.Err()
	}
}

// Release tells the far side to stop serving the object and closes the channel.
// Further calls fail with ErrChannelClosed.
func (p *Proxy) Release() {
	if msg, err := encodeMessage(request{Type: requestRelease}, nil); err == nil {
		_ = p.port.Post(msg)
	}
	p.port.Close()
}

func (p *Proxy) forget(id uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.pending, id)
}

// readLoop dispatches responses to waiting calls until the channel closes
func (p *Proxy) readLoop() {
	for {
		msg, err := p.port.Receive(context.Background())
		if err != nil {
			p.fail(err)
			return
		}

		var resp response
		if err := json.Unmarshal(msg.Data, &resp); err != nil {
			logger.WithError(err).Warn("dropping malformed response")
			continue
		}

		// handles are registered here, in arrival order, so a later reply can
		// refer to a binding sent with an earlier one
		res := p.deliver(resp, msg.Transfer)

		p.mu.Lock()
		ch, ok := p.pending[resp.ID]
		delete(p.pending, resp.ID)
		p.mu.Unlock()
		if ok {
			ch <- res
		}
	}
}

func (p *Proxy) deliver(resp response, transfer []*Port) outcome {
	if resp.Error != nil {
		return outcome{err: resp.Error.err()}
	}

	r := &Reply{data: resp.Result, handles: make(map[string]*Proxy, len(resp.Handles))}
	for _, b := range resp.Handles {
		p.mu.Lock()
		child, ok := p.known[b.ID]
		if !ok && b.Port >= 0 && b.Port < len(transfer) {
			child = wrap(transfer[b.Port], b.Kind)
			p.known[b.ID] = child
		}
		p.mu.Unlock()
		if child == nil {
			return outcome{err: fmt.Errorf("%w: unknown handle %s", model.ErrProxy, b.ID)}
		}
		r.handles[b.ID] = child
		r.order = append(r.order, child)
	}
	return outcome{reply: r}
}

func (p *Proxy) fail(err error) {
	p.mu.Lock()
	pending := p.pending
	p.pending = nil
	p.mu.Unlock()

	for _, ch := range pending {
		ch <- outcome{err: err}
	}
}

// Reply is the result of a call.
type Reply struct {
	data    json.RawMessage
	handles map[string]*Proxy
	order   []*Proxy
}

// Raw returns the encoded result.
func (r *Reply) Raw() json.RawMessage {
	return r.data
}

// Decode stores the result in v. Handles decode as HandleRef values.
// Numbers decoded into interfaces are int64 when integral and float64
// otherwise.
func (r *Reply) Decode(v any) error {
	if err := decodeInto(r.data, v); err != nil {
		return fmt.Errorf("%w: failed to decode reply: %w", model.ErrProxy, err)
	}
	return nil
}

// Handle returns the proxy for a handle referenced by this reply.
func (r *Reply) Handle(ref HandleRef) (*Proxy, error) {
	p, ok := r.handles[ref.ID]
	if !ok {
		return nil, fmt.Errorf("%w: handle %q is not part of this reply", model.ErrProxy, ref.ID)
	}
	return p, nil
}

// Proxy returns the proxy for a reply whose result is itself a handle.
func (r *Reply) Proxy() (*Proxy, error) {
	var ref HandleRef
	if err := r.Decode(&ref); err != nil {
		return nil, err
	}
	if ref.ID == "" {
		return nil, fmt.Errorf("%w: result is not a handle", model.ErrProxy)
	}
	return r.Handle(ref)
}

// Handles returns the proxies of all handles in the reply, in the order they
// were found.
func (r *Reply) Handles() []*Proxy {
	return r.order
}
