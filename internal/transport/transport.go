package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

var (
	ErrDuplicateID = errors.New("request id already pending")
	ErrClosed      = errors.New("transport closed")
)

// RequestHandler serves one inbound request. Each request runs on its own
// goroutine; the returned error is only logged.
type RequestHandler func(ctx context.Context, req *Request) error

// Transport carries length-prefixed JSON envelopes over a byte stream.
// Outbound requests are matched to their responses by id; inbound requests
// go to the RequestHandler without holding up the receive loop.
type Transport struct {
	conn      io.ReadWriteCloser
	reader    *bufio.Reader
	logger    zerolog.Logger
	onRequest RequestHandler
	intake    func(*Request)

	wmu sync.Mutex

	mu      sync.Mutex
	pending map[int64]chan *Response
	closed  bool
	done    chan struct{}

	requestID atomic.Int64
}

func New(conn io.ReadWriteCloser, logger zerolog.Logger) *Transport {
	return &Transport{
		conn:    conn,
		reader:  bufio.NewReader(conn),
		logger:  logger,
		pending: make(map[int64]chan *Response),
		done:    make(chan struct{}),
	}
}

// OnRequest sets the handler for inbound requests. Call it before Run.
func (t *Transport) OnRequest(h RequestHandler) {
	t.onRequest = h
}

// QueueRequests hands every inbound request to push on the receive loop
// itself, in the order the requests arrived, instead of to a goroutine per
// request. push must not block. It takes precedence over OnRequest. Call it
// before Run.
func (t *Transport) QueueRequests(push func(*Request)) {
	t.intake = push
}

// NextID returns a fresh request id.
func (t *Transport) NextID() int64 {
	return t.requestID.Add(1)
}

func (t *Transport) Close() error {
	return t.conn.Close()
}

// Done is closed when Run has returned.
func (t *Transport) Done() <-chan struct{} {
	return t.done
}

// Run reads frames until the stream ends or ctx is cancelled, which closes
// the connection. Requests still waiting for a response then fail with
// ErrClosed.
func (t *Transport) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		t.conn.Close()
	})
	defer stop()
	defer t.shutdown()

	for {
		frame, err := readFrame(t.reader)
		if err != nil {
			switch {
			case ctx.Err() != nil:
				return ctx.Err()
			case errors.Is(err, io.EOF):
				return nil
			default:
				return fmt.Errorf("read frame: %w", err)
			}
		}
		t.receive(ctx, frame)
	}
}

func (t *Transport) shutdown() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.closed = true
		close(t.done)
	}
}

func (t *Transport) receive(ctx context.Context, frame []byte) {
	h, err := parseHeader(frame)
	if err != nil {
		t.logger.Warn().Err(err).Int("size", len(frame)).Msg("dropping malformed frame")
		return
	}
	switch h.Type {
	case TypeResponse:
		t.mu.Lock()
		ch, ok := t.pending[h.ID]
		if ok {
			delete(t.pending, h.ID)
		}
		t.mu.Unlock()
		if !ok {
			t.logger.Warn().Int64("id", h.ID).Msg("response for unknown request")
			return
		}
		ch <- &Response{ID: h.ID, Result: h.Result, Body: frame}
	case TypeRequest:
		req := &Request{ID: h.ID, Command: h.Command, Body: frame}
		if t.intake != nil {
			t.intake(req)
			return
		}
		if t.onRequest == nil {
			t.logger.Warn().Int64("id", h.ID).Str("command", h.Command).Msg("no request handler")
			return
		}
		go t.serve(ctx, req)
	default:
		t.logger.Warn().Int64("id", h.ID).Str("type", string(h.Type)).Msg("unknown message type")
	}
}

func (t *Transport) serve(ctx context.Context, req *Request) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error().Int64("id", req.ID).Str("command", req.Command).Interface("panic", r).Msg("request handler panicked")
		}
	}()
	if err := t.onRequest(ctx, req); err != nil {
		t.logger.Error().Err(err).Int64("id", req.ID).Str("command", req.Command).Msg("request failed")
	}
}

// SendRequest sends a request and waits for the response with the same id.
// The id must not belong to a request that is still pending. There is no
// timeout; a deadline on ctx abandons the request.
func (t *Transport) SendRequest(ctx context.Context, id int64, command string, payload any) (*Response, error) {
	frame, err := encodeEnvelope(header{ID: id, Type: TypeRequest, Command: command}, payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	ch := make(chan *Response, 1)
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, ErrClosed
	}
	if _, ok := t.pending[id]; ok {
		t.mu.Unlock()
		return nil, fmt.Errorf("%w: %d", ErrDuplicateID, id)
	}
	t.pending[id] = ch
	t.mu.Unlock()

	if err := t.write(frame); err != nil {
		t.forget(id)
		return nil, fmt.Errorf("write request: %w", err)
	}

	select {
	case resp := <-ch:
		return resp, nil
	case <-ctx.Done():
		t.forget(id)
		return nil, ctx.Err()
	case <-t.done:
		select {
		case resp := <-ch:
			return resp, nil
		default:
			return nil, ErrClosed
		}
	}
}

// Call sends a request and decodes the response into a T.
func Call[T any](ctx context.Context, t *Transport, id int64, command string, payload any) (result T, err error) {
	resp, err := t.SendRequest(ctx, id, command, payload)
	if err != nil {
		return result, err
	}
	if err = json.Unmarshal(resp.Body, &result); err != nil {
		return result, fmt.Errorf("decode %s response: %w", command, err)
	}
	return result, nil
}

// SendResponse answers the request with the given id.
func (t *Transport) SendResponse(id int64, result string, payload any) error {
	frame, err := encodeEnvelope(header{ID: id, Type: TypeResponse, Result: result}, payload)
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	return t.write(frame)
}

func (t *Transport) forget(id int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.pending, id)
}

func (t *Transport) write(frame []byte) error {
	t.wmu.Lock()
	defer t.wmu.Unlock()
	return writeFrame(t.conn, frame)
}
