package main

import (
	"context"
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stesla/tether/internal/telnet"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
)

var palette = []telnet.Color{
	{R: 255, G: 95, B: 95},
	{R: 95, G: 215, B: 95},
	{R: 95, G: 135, B: 255},
	{R: 255, G: 215, B: 95},
}

type session struct {
	*telnet.Session
	id     string
	logger zerolog.Logger

	mu         sync.Mutex
	cols, rows int
	x, y       int
	color      int
}

type sessionInfo struct {
	ID   string `json:"id"`
	Peer string `json:"peer"`
	Cols int    `json:"cols"`
	Rows int    `json:"rows"`
}

func newSession(conn net.Conn, logger zerolog.Logger, enc encoding.Encoding) *session {
	id := uuid.NewString()
	logger = logger.With().Str("session", id).Str("client", conn.RemoteAddr().String()).Logger()
	s := &session{
		Session: telnet.Wrap(conn, logger),
		id:      id,
		logger:  logger,
		cols:    80,
		rows:    24,
		x:       1,
		y:       1,
	}
	if enc != nil {
		s.SetEncoding(enc)
	}
	return s
}

func (s *session) info() sessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sessionInfo{ID: s.id, Peer: s.RemoteAddr().String(), Cols: s.cols, Rows: s.rows}
}

func (s *session) negotiateOptions() {
	s.Option(telnet.Echo).AllowUs(true).EnableUs()
	s.Option(telnet.SuppressGoAhead).Allow(true, true).EnableBoth()
	s.Option(telnet.NAWS).AllowThem(true).EnableThem()
	s.Option(telnet.Charset).AllowUs(true).EnableUs()
}

func (s *session) runForever(ctx context.Context) {
	s.logger.Debug().Msg("connected")
	defer s.logger.Debug().Msg("disconnected")

	s.negotiateOptions()
	s.check("clear screen", s.ClearScreen())
	s.check("hide cursor", s.HideCursor())
	s.check("enable mouse", s.EnableMouse())
	s.check("move cursor", s.MoveCursor(1, 1))
	_, err := s.WriteString("click to draw, right click to clear\n")
	s.check("write", err)
	defer func() {
		s.check("disable mouse", s.DisableMouse())
		s.check("reset attributes", s.ResetAttributes())
		s.check("show cursor", s.ShowCursor())
	}()

	for {
		ev, err := s.Read(ctx)
		if err != nil {
			return
		}
		switch t := ev.(type) {
		case telnet.CloseEvent:
			return
		case telnet.CommandEvent:
			s.handleNegotiation(t)
		case telnet.SubNegotiationEvent:
			s.handleSubnegotiation(t)
		case telnet.MouseEvent:
			s.handleMouse(t)
		case telnet.CsiEvent:
			s.handleKey(t.Suffix, t.Altered)
		case telnet.Ss3Event:
			s.handleKey(t.Suffix, t.Altered)
		case telnet.StringEvent:
			s.logger.Trace().Str("text", t.Text).Msg("input")
			s.draw(t.Text)
		}
	}
}

func (s *session) handleNegotiation(ev telnet.CommandEvent) {
	opt, ok := s.Negotiate(ev)
	if !ok {
		return
	}
	if opt.Option() == telnet.Charset && opt.ChangedUs && opt.EnabledForUs() {
		if err := s.RequestCharset(unicode.UTF8); err != nil {
			s.logger.Error().Err(err).Msg("error requesting charset")
		}
	}
}

func (s *session) handleSubnegotiation(ev telnet.SubNegotiationEvent) {
	switch ev.Option {
	case telnet.NAWS:
		if cols, rows, ok := telnet.ParseWindowSize(ev.Data); ok {
			s.mu.Lock()
			s.cols, s.rows = cols, rows
			s.mu.Unlock()
			s.logger.Debug().Int("cols", cols).Int("rows", rows).Msg("window size")
		}
	case telnet.Charset:
		enc, changed, err := s.HandleCharset(ev)
		if err != nil {
			s.logger.Error().Err(err).Msg("charset negotiation failed")
		} else if changed {
			s.logger.Debug().Bool("utf8", enc == nil).Msg("charset changed")
		}
	default:
		s.logger.Trace().Uint8("option", ev.Option).Bytes("data", ev.Data).Msg("subnegotiation")
	}
}

func (s *session) handleMouse(ev telnet.MouseEvent) {
	s.logger.Trace().Stringer("button", ev.Button).Stringer("type", ev.EventType).
		Int("x", ev.X).Int("y", ev.Y).Msg("mouse")
	switch {
	case ev.Button == telnet.ButtonRight && ev.EventType == telnet.MouseDown:
		s.check("clear screen", s.ClearScreen())
	case ev.Button == telnet.ButtonScrollUp || ev.Button == telnet.ButtonScrollDown:
		s.mu.Lock()
		s.color = (s.color + 1) % len(palette)
		s.mu.Unlock()
	case ev.Button == telnet.ButtonLeft && ev.EventType != telnet.MouseUnknown:
		s.moveTo(ev.X+1, ev.Y+1)
		s.draw("*")
	}
}

func (s *session) handleKey(suffix byte, altered bool) {
	step := 1
	if altered {
		step = 5
	}
	s.mu.Lock()
	x, y := s.x, s.y
	s.mu.Unlock()
	switch suffix {
	case 'A':
		y -= step
	case 'B':
		y += step
	case 'C':
		x += step
	case 'D':
		x -= step
	default:
		return
	}
	s.moveTo(x, y)
}

func (s *session) moveTo(x, y int) {
	s.mu.Lock()
	s.x = min(max(x, 1), s.cols)
	s.y = min(max(y, 1), s.rows)
	x, y = s.x, s.y
	s.mu.Unlock()
	s.check("move cursor", s.MoveCursor(x, y))
}

func (s *session) draw(text string) {
	s.mu.Lock()
	color := palette[s.color]
	x, y := s.x, s.y
	s.mu.Unlock()
	s.check("move cursor", s.MoveCursor(x, y))
	s.check("set foreground", s.SetForeground(color))
	_, err := s.WriteString(text)
	s.check("write", err)
	s.check("reset attributes", s.ResetAttributes())
}

// check logs a failed write. A dead connection also ends the read loop, so
// the error needs no further handling here.
func (s *session) check(what string, err error) {
	if err != nil {
		s.logger.Error().Err(err).Str("op", what).Msg("error writing to client")
	}
}

type registry struct {
	mu       sync.Mutex
	sessions map[string]*session
}

func newRegistry() *registry {
	return &registry{sessions: map[string]*session{}}
}

func (r *registry) add(s *session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.id] = s
}

func (r *registry) remove(s *session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, s.id)
}

func (r *registry) list() []sessionInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]sessionInfo, 0, len(r.sessions))
	for _, s := range r.sessions {
		result = append(result, s.info())
	}
	return result
}
