package main

import (
	"context"
	"net"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stesla/tether/internal/event"
	"github.com/stesla/tether/internal/transport"
)

// rpcServer answers framed JSON requests. The receive loop queues requests
// in wire order and a Pump serves them one at a time, so responses leave in
// the order their requests arrived.
type rpcServer struct {
	logger   zerolog.Logger
	registry *registry
}

// rpcConn is one client connection. Its handlers all run on the Pump, so
// peer needs no lock.
type rpcConn struct {
	*rpcServer
	logger zerolog.Logger
	tr     *transport.Transport
	queue  *event.Queue[event.Message]
	pump   *event.Pump
	peer   string
}

func (s *rpcServer) serve(ctx context.Context, conn net.Conn) {
	logger := s.logger.With().Str("rpc", uuid.NewString()).Str("client", conn.RemoteAddr().String()).Logger()
	logger.Debug().Msg("connected")
	defer logger.Debug().Msg("disconnected")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c := &rpcConn{
		rpcServer: s,
		logger:    logger,
		tr:        transport.New(conn, logger),
		queue:     event.NewQueue[event.Message](),
	}
	c.tr.QueueRequests(func(req *transport.Request) { c.queue.Push(req) })
	c.pump = event.NewPump(c.queue.Source())
	c.register()

	go func() {
		if err := c.tr.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error().Err(err).Msg("receive loop failed")
		}
		c.queue.Close()
	}()
	go c.greet(ctx)

	if err := c.pump.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error().Err(err).Msg("dispatch stopped")
	}
	c.tr.Close()
}

func (c *rpcConn) register() {
	event.HandleFunc(c.pump, "ping", func(_ context.Context, req *transport.Request) error {
		var payload struct {
			Peer string `json:"peer,omitempty"`
		}
		payload.Peer = c.peer
		return c.tr.SendResponse(req.ID, "ok", payload)
	})
	event.HandleFunc(c.pump, "echo", func(_ context.Context, req *transport.Request) error {
		var payload struct {
			Text string `json:"text"`
		}
		if err := req.Decode(&payload); err != nil {
			return c.tr.SendResponse(req.ID, "error", map[string]string{"error": err.Error()})
		}
		return c.tr.SendResponse(req.ID, "ok", payload)
	})
	event.HandleFunc(c.pump, "sessions", func(_ context.Context, req *transport.Request) error {
		return c.tr.SendResponse(req.ID, "ok", map[string]any{"sessions": c.registry.list()})
	})
}

// greet sends the peer a hello request. The reply is queued behind the
// requests already received and handled by a one-shot callback on the Pump.
func (c *rpcConn) greet(ctx context.Context) {
	id := c.tr.NextID()
	c.pump.Expect(transport.KindResponse, func(m event.Message) bool {
		resp, ok := m.(*transport.Response)
		return ok && resp.ID == id
	}, c.handleHello)

	resp, err := c.tr.SendRequest(ctx, id, "hello", map[string]any{
		"server":   "tether",
		"sessions": len(c.registry.list()),
	})
	if err != nil {
		if ctx.Err() == nil {
			c.logger.Debug().Err(err).Msg("hello not answered")
		}
		return
	}
	c.queue.Push(resp)
}

func (c *rpcConn) handleHello(_ context.Context, m event.Message) error {
	resp := m.(*transport.Response)
	var payload struct {
		Name string `json:"name"`
	}
	if err := resp.Decode(&payload); err != nil {
		c.logger.Warn().Err(err).Msg("bad hello response")
		return nil
	}
	c.peer = payload.Name
	c.logger.Debug().Str("peer", c.peer).Str("result", resp.Result).Msg("peer introduced")
	return nil
}
