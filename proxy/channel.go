// Package proxy exposes live objects across a message channel. Values that
// implement Handle are never copied: each one is bound to a private channel
// and the far side receives a Proxy that forwards method calls to it.
package proxy

import (
	"context"
	"sync"

	"github.com/xet7/httpvfs/domain/model"
)

// ErrChannelClosed is returned for calls against a closed channel.
var ErrChannelClosed = model.ErrChannelClosed

// channelBuffer is the number of messages a port accepts before Post blocks
const channelBuffer = 16

// Message is one unit sent over a channel. Transfer carries ports whose
// ownership moves to the receiver.
type Message struct {
	Data     []byte
	Transfer []*Port
}

// pipe is the state shared by both ends of a channel
type pipe struct {
	done      chan struct{}
	closeOnce sync.Once
}

// Port is one end of a bidirectional message channel.
type Port struct {
	in   <-chan Message
	out  chan<- Message
	pipe *pipe
}

// NewMessageChannel returns the two connected ends of a new channel.
func NewMessageChannel() (*Port, *Port) {
	a := make(chan Message, channelBuffer)
	b := make(chan Message, channelBuffer)
	p := &pipe{done: make(chan struct{})}
	return &Port{in: a, out: b, pipe: p}, &Port{in: b, out: a, pipe: p}
}

// Post sends m to the other end. It blocks while the other end's buffer is
// full and fails with ErrChannelClosed once the channel is closed.
func (p *Port) Post(m Message) error {
	select {
	case <-p.pipe.done:
		return ErrChannelClosed
	default:
	}
	select {
	case <-p.pipe.done:
		return ErrChannelClosed
	case p.out <- m:
		return nil
	}
}

// Receive waits for the next message from the other end.
func (p *Port) Receive(ctx context.Context) (Message, error) {
	select {
	case <-p.pipe.done:
		return Message{}, ErrChannelClosed
	default:
	}
	select {
	case <-p.pipe.done:
		return Message{}, ErrChannelClosed
	case <-ctx.Done():
		return Message{}, ctx.Err()
	case m := <-p.in:
		return m, nil
	}
}

// Close closes the channel for both ends. It is safe to call more than once.
func (p *Port) Close() {
	p.pipe.closeOnce.Do(func() { close(p.pipe.done) })
}

// Closed reports whether the channel has been closed.
func (p *Port) Closed() bool {
	select {
	case <-p.pipe.done:
		return true
	default:
		return false
	}
}
