package event

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Kind names a message type. Static handlers and callbacks are keyed by it.
type Kind string

type Message interface {
	Kind() Kind
}

type Handler func(ctx context.Context, m Message) error

type Predicate func(m Message) bool

// Source fetches the next message. A nil message with a nil error marks the
// end of the stream.
type Source func(ctx context.Context) (Message, error)

var ErrUnhandled = errors.New("no handler for message")

type callback struct {
	match Predicate
	fn    Handler
}

// Pump dispatches messages from a Source one at a time. A static handler for
// the message's kind takes priority; otherwise the first one-shot callback
// of that kind whose predicate accepts the message runs and is removed.
// Handlers may register further callbacks on the same Pump.
type Pump struct {
	next Source

	mu        sync.Mutex
	handlers  map[Kind]Handler
	callbacks map[Kind][]callback
}

func NewPump(next Source) *Pump {
	return &Pump{
		next:      next,
		handlers:  map[Kind]Handler{},
		callbacks: map[Kind][]callback{},
	}
}

// Handle registers the static handler for kind, replacing any previous one.
func (p *Pump) Handle(kind Kind, h Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[kind] = h
}

// HandleFunc registers a static handler that receives the concrete type.
func HandleFunc[M Message](p *Pump, kind Kind, fn func(ctx context.Context, m M) error) {
	p.Handle(kind, func(ctx context.Context, m Message) error {
		t, ok := m.(M)
		if !ok {
			return fmt.Errorf("message of kind %q has type %T", kind, m)
		}
		return fn(ctx, t)
	})
}

// Expect registers a one-shot callback. A nil predicate accepts any message
// of the kind.
func (p *Pump) Expect(kind Kind, match Predicate, fn Handler) {
	if match == nil {
		match = func(Message) bool { return true }
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.callbacks[kind] = append(p.callbacks[kind], callback{match, fn})
}

// Pending returns the number of callbacks still waiting for a message.
func (p *Pump) Pending() (n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, cbs := range p.callbacks {
		n += len(cbs)
	}
	return
}

// RunOnce fetches and dispatches one message. It returns false once the
// source is exhausted. A message nobody handles is an error.
func (p *Pump) RunOnce(ctx context.Context) (bool, error) {
	m, err := p.next(ctx)
	if err != nil {
		return false, err
	}
	if m == nil {
		return false, nil
	}
	h, ok := p.lookup(m)
	if !ok {
		return false, fmt.Errorf("%w: kind %q (%T)", ErrUnhandled, m.Kind(), m)
	}
	return true, h(ctx, m)
}

// Run dispatches messages until the source is exhausted or a handler fails.
func (p *Pump) Run(ctx context.Context) error {
	for {
		more, err := p.RunOnce(ctx)
		if err != nil || !more {
			return err
		}
	}
}

func (p *Pump) lookup(m Message) (Handler, bool) {
	kind := m.Kind()
	p.mu.Lock()
	defer p.mu.Unlock()
	if h, ok := p.handlers[kind]; ok {
		return h, true
	}
	cbs := p.callbacks[kind]
	for i, cb := range cbs {
		if cb.match(m) {
			p.callbacks[kind] = append(cbs[:i:i], cbs[i+1:]...)
			return cb.fn, true
		}
	}
	return nil, false
}
