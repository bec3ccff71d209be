package telnet

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/text/encoding"
)

const readBufferSize = 4096

// Color is a 24-bit terminal color.
type Color struct {
	R, G, B uint8
}

// Session drives one telnet client. Input is decoded into a queue of Events
// that a single consumer drains with Peek and Read. Output methods render
// ANSI and Telnet commands and write them straight to the connection.
type Session struct {
	conn   net.Conn
	logger zerolog.Logger

	sem     chan struct{}
	decoder Decoder
	queue   []Event
	readBuf []byte
	closed  bool

	wmu sync.Mutex
	enc encoding.Encoding

	options *optionMap
}

func Wrap(conn net.Conn, logger zerolog.Logger) *Session {
	s := &Session{
		conn:    conn,
		logger:  logger,
		sem:     make(chan struct{}, 1),
		readBuf: make([]byte, readBufferSize),
	}
	s.options = newOptionMap(s)
	return s
}

func (s *Session) Close() error {
	return s.conn.Close()
}

func (s *Session) RemoteAddr() net.Addr {
	return s.conn.RemoteAddr()
}

// Peek returns the next event without consuming it.
func (s *Session) Peek(ctx context.Context) (Event, error) {
	if err := s.lock(ctx); err != nil {
		return nil, err
	}
	defer s.unlock()
	s.fill(ctx)
	return s.queue[0], nil
}

// Read returns and consumes the next event. Once the connection has ended
// every call returns a CloseEvent. Cancelling ctx while a socket read is in
// flight ends the session the same way.
func (s *Session) Read(ctx context.Context) (Event, error) {
	if err := s.lock(ctx); err != nil {
		return nil, err
	}
	defer s.unlock()
	s.fill(ctx)
	ev := s.queue[0]
	s.queue[0] = nil
	s.queue = s.queue[1:]
	return ev, nil
}

// SetEncoding sets the charset for text in both directions. nil means UTF-8.
func (s *Session) SetEncoding(enc encoding.Encoding) {
	s.sem <- struct{}{}
	s.decoder.SetEncoding(enc)
	s.unlock()

	s.wmu.Lock()
	defer s.wmu.Unlock()
	s.enc = enc
}

func (s *Session) lock(ctx context.Context) error {
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) unlock() {
	<-s.sem
}

func (s *Session) fill(ctx context.Context) {
	for len(s.queue) == 0 {
		if s.closed || ctx.Err() != nil {
			s.closed = true
			s.queue = append(s.queue, CloseEvent{})
			return
		}
		n, err := s.readConn(ctx)
		if n > 0 {
			s.queue = s.decoder.Decode(s.readBuf[:n], s.queue)
			s.logger.Trace().Int("bytes", n).Int("queued", len(s.queue)).Msg("read")
		}
		if n == 0 || err != nil {
			s.logger.Debug().AnErr("reason", err).Msg("connection closed")
			s.closed = true
			s.queue = append(s.queue, CloseEvent{})
		}
	}
}

func (s *Session) readConn(ctx context.Context) (int, error) {
	s.conn.SetReadDeadline(time.Time{})
	stop := context.AfterFunc(ctx, func() {
		s.conn.SetReadDeadline(time.Now())
	})
	defer stop()
	return s.conn.Read(s.readBuf)
}

// Option returns the negotiation state for opt.
func (s *Session) Option(opt byte) OptionState {
	return s.options.get(opt)
}

// Negotiate applies a CommandEvent from the client to the option table,
// answering it when the Q method requires. ok reports whether the option
// changed state.
func (s *Session) Negotiate(ev CommandEvent) (data OptionData, ok bool) {
	data, ok = s.options.receive(ev.Command, ev.Option)
	if ok {
		them, us := data.Enabled()
		s.logger.Trace().Uint8("option", ev.Option).
			Bool("changedThem", data.ChangedThem).
			Bool("changedUs", data.ChangedUs).
			Bool("enabledThem", them).
			Bool("enabledUs", us).
			Msg("option")
	}
	return
}

func (s *Session) sendCommand(cmd, opt byte) {
	if err := s.SendCommand(cmd, opt); err != nil {
		s.logger.Error().Err(err).Uint8("command", cmd).Uint8("option", opt).Msg("error sending command")
	}
}

func (s *Session) SendCommand(cmd, opt byte) error {
	_, err := s.WriteRaw([]byte{IAC, cmd, opt})
	return err
}

func (s *Session) SendSubnegotiation(opt byte, data []byte) error {
	buf := make([]byte, 0, len(data)+5)
	buf = append(buf, IAC, SB, opt)
	for _, b := range data {
		if b == IAC {
			buf = append(buf, IAC)
		}
		buf = append(buf, b)
	}
	buf = append(buf, IAC, SE)
	_, err := s.WriteRaw(buf)
	return err
}

// MoveCursor positions the cursor. Coordinates are passed through as given,
// so callers use the terminal's 1-based cells.
func (s *Session) MoveCursor(x, y int) error {
	return s.writef("\x1b[%d;%dH", y, x)
}

func (s *Session) SetForeground(c Color) error {
	return s.writef("\x1b[38;2;%d;%d;%dm", c.R, c.G, c.B)
}

func (s *Session) SetBackground(c Color) error {
	return s.writef("\x1b[48;2;%d;%d;%dm", c.R, c.G, c.B)
}

func (s *Session) ResetAttributes() error { return s.writef("\x1b[0m") }
func (s *Session) HideCursor() error      { return s.writef("\x1b[?25l") }
func (s *Session) ShowCursor() error      { return s.writef("\x1b[?25h") }
func (s *Session) ClearScreen() error     { return s.writef("\x1b[2J") }

// EnableMouse turns on X10 mouse reporting, which arrives as MouseEvents.
func (s *Session) EnableMouse() error  { return s.writef("\x1b[?9h") }
func (s *Session) DisableMouse() error { return s.writef("\x1b[?9l") }

// Resize asks the terminal to change its window size.
func (s *Session) Resize(rows, cols int) error {
	return s.writef("\x1b[8;%d;%dt", rows, cols)
}

func (s *Session) writef(format string, args ...any) error {
	_, err := s.WriteRaw(fmt.Appendf(nil, format, args...))
	return err
}

// Write sends text, escaping IAC and translating line endings to the
// network virtual terminal's CR LF and CR NUL.
func (s *Session) Write(p []byte) (n int, err error) {
	s.wmu.Lock()
	enc := s.enc
	s.wmu.Unlock()

	src := p
	if enc != nil {
		if src, err = encoding.ReplaceUnsupported(enc.NewEncoder()).Bytes(p); err != nil {
			return 0, err
		}
	}
	buf := make([]byte, 0, 2*len(src))
	for _, c := range src {
		switch c {
		case IAC:
			buf = append(buf, IAC, IAC)
		case '\n':
			buf = append(buf, '\r', '\n')
		case '\r':
			buf = append(buf, '\r', '\x00')
		default:
			buf = append(buf, c)
		}
	}
	if _, err = s.WriteRaw(buf); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (s *Session) WriteString(text string) (int, error) {
	return s.Write([]byte(text))
}

// WriteRaw writes p to the connection unmodified.
func (s *Session) WriteRaw(p []byte) (int, error) {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return s.conn.Write(p)
}
