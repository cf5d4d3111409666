// SPDX-FileCopyrightText: © 2025 DSLab - Fondazione Bruno Kessler
//
// SPDX-License-Identifier: Apache-2.0

package driver

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
)

// stream is the Conn shared by the drivers: a bounded event queue fed by one
// producer goroutine. A full queue blocks the producer, so a consumer that
// stops calling Next applies backpressure to the transfer.
type stream struct {
	events    chan Event
	notify    func()
	cancel    context.CancelFunc
	ctx       context.Context
	done      chan struct{}
	started   bool
	closeOnce sync.Once
}

func newStream(ctx context.Context, notify func()) *stream {
	if notify == nil {
		notify = func() {}
	}
	sctx, cancel := context.WithCancel(ctx)
	return &stream{
		events: make(chan Event, eventBacklog),
		notify: notify,
		cancel: cancel,
		ctx:    sctx,
		done:   make(chan struct{}),
	}
}

func (s *stream) run(fn func(ctx context.Context)) {
	s.started = true
	go func() {
		defer close(s.done)
		fn(s.ctx)
	}()
}

// emit queues ev. It returns false when the stream was aborted.
func (s *stream) emit(ev Event) bool {
	select {
	case s.events <- ev:
		s.notify()
		return true
	case <-s.ctx.Done():
		return false
	}
}

func (s *stream) finish(err error) {
	s.emit(Event{Kind: EventDone, Err: err})
}

// pump copies r into data events until EOF.
func (s *stream) pump(r io.Reader, size int) error {
	for {
		buf := make([]byte, size)
		n, err := r.Read(buf)
		if n > 0 {
			if !s.emit(Event{Kind: EventData, Data: buf[:n]}) {
				return s.ctx.Err()
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (s *stream) Ready() bool { return len(s.events) > 0 }

func (s *stream) Next() (Event, bool) {
	select {
	case ev := <-s.events:
		return ev, true
	default:
		return Event{}, false
	}
}

func (s *stream) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		if s.started {
			<-s.done
		}
	})
	return nil
}

// SendGate pauses the sending side of a transfer and counts bytes sent.
type SendGate struct {
	mu     sync.Mutex
	paused bool
	open   chan struct{}
	sent   atomic.Int64
}

func NewSendGate() *SendGate {
	ch := make(chan struct{})
	close(ch)
	return &SendGate{open: ch}
}

func (g *SendGate) Pause() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.paused {
		g.paused = true
		g.open = make(chan struct{})
	}
}

func (g *SendGate) Resume() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.paused {
		g.paused = false
		close(g.open)
	}
}

func (g *SendGate) Paused() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.paused
}

// Sent returns the number of body bytes handed to the transport.
func (g *SendGate) Sent() int64 { return g.sent.Load() }

func (g *SendGate) wait(ctx context.Context) error {
	g.mu.Lock()
	ch := g.open
	g.mu.Unlock()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type gatedReader struct {
	ctx  context.Context
	r    io.Reader
	gate *SendGate
}

func (g *gatedReader) Read(p []byte) (int, error) {
	if err := g.gate.wait(g.ctx); err != nil {
		return 0, err
	}
	n, err := g.r.Read(p)
	g.gate.sent.Add(int64(n))
	return n, err
}

// uploadReader wraps the request upload source with its gate, if any.
func uploadReader(ctx context.Context, req *Request) io.Reader {
	if req.Upload == nil {
		return nil
	}
	if req.SendGate == nil {
		return req.Upload
	}
	return &gatedReader{ctx: ctx, r: req.Upload, gate: req.SendGate}
}
