package event

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type ping struct{ id int }
type pong struct{ id int }

func (ping) Kind() Kind { return "ping" }
func (pong) Kind() Kind { return "pong" }

func sliceSource(msgs ...Message) Source {
	return func(context.Context) (Message, error) {
		if len(msgs) == 0 {
			return nil, nil
		}
		m := msgs[0]
		msgs = msgs[1:]
		return m, nil
	}
}

func TestPumpStaticHandler(t *testing.T) {
	var seen []int
	p := NewPump(sliceSource(ping{1}, ping{2}))
	HandleFunc(p, "ping", func(_ context.Context, m ping) error {
		seen = append(seen, m.id)
		return nil
	})
	require.NoError(t, p.Run(context.Background()))
	require.Equal(t, []int{1, 2}, seen)
}

func TestPumpEndOfStream(t *testing.T) {
	p := NewPump(sliceSource())
	more, err := p.RunOnce(context.Background())
	require.NoError(t, err)
	require.False(t, more)
}

func TestPumpUnhandled(t *testing.T) {
	var handled bool
	p := NewPump(sliceSource(pong{1}, ping{2}))
	p.Handle("ping", func(context.Context, Message) error {
		handled = true
		return nil
	})
	err := p.Run(context.Background())
	require.ErrorIs(t, err, ErrUnhandled)
	require.False(t, handled)
}

func TestPumpCallbackIsOneShot(t *testing.T) {
	var got []Message
	p := NewPump(sliceSource(pong{7}, pong{3}, pong{7}))
	p.Expect("pong", func(m Message) bool { return m.(pong).id == 3 }, func(_ context.Context, m Message) error {
		got = append(got, m)
		return nil
	})
	p.Expect("pong", func(m Message) bool { return m.(pong).id == 7 }, func(_ context.Context, m Message) error {
		got = append(got, m)
		return nil
	})
	ctx := context.Background()

	more, err := p.RunOnce(ctx)
	require.NoError(t, err)
	require.True(t, more)
	require.Equal(t, []Message{pong{7}}, got)
	require.Equal(t, 1, p.Pending())

	more, err = p.RunOnce(ctx)
	require.NoError(t, err)
	require.True(t, more)
	require.Equal(t, []Message{pong{7}, pong{3}}, got)
	require.Equal(t, 0, p.Pending())

	_, err = p.RunOnce(ctx)
	require.ErrorIs(t, err, ErrUnhandled)
}

func TestPumpCallbacksInRegistrationOrder(t *testing.T) {
	var order []string
	p := NewPump(sliceSource(pong{1}, pong{1}))
	p.Expect("pong", nil, func(context.Context, Message) error {
		order = append(order, "first")
		return nil
	})
	p.Expect("pong", nil, func(context.Context, Message) error {
		order = append(order, "second")
		return nil
	})
	require.NoError(t, p.Run(context.Background()))
	require.Equal(t, []string{"first", "second"}, order)
}

func TestPumpStaticHandlerWins(t *testing.T) {
	var static, callback bool
	p := NewPump(sliceSource(ping{1}))
	p.Expect("ping", nil, func(context.Context, Message) error {
		callback = true
		return nil
	})
	p.Handle("ping", func(context.Context, Message) error {
		static = true
		return nil
	})
	require.NoError(t, p.Run(context.Background()))
	require.True(t, static)
	require.False(t, callback)
	require.Equal(t, 1, p.Pending())
}

func TestPumpReentrantRegistration(t *testing.T) {
	var done bool
	p := NewPump(sliceSource(ping{1}, pong{1}))
	p.Handle("ping", func(_ context.Context, m Message) error {
		id := m.(ping).id
		p.Expect("pong", func(m Message) bool { return m.(pong).id == id }, func(context.Context, Message) error {
			done = true
			return nil
		})
		return nil
	})
	require.NoError(t, p.Run(context.Background()))
	require.True(t, done)
}

func TestPumpHandlerError(t *testing.T) {
	boom := errors.New("boom")
	p := NewPump(sliceSource(ping{1}, ping{2}))
	var calls int
	p.Handle("ping", func(context.Context, Message) error {
		calls++
		return boom
	})
	require.ErrorIs(t, p.Run(context.Background()), boom)
	require.Equal(t, 1, calls)
}

func TestPumpSourceError(t *testing.T) {
	boom := errors.New("boom")
	p := NewPump(func(context.Context) (Message, error) { return nil, boom })
	more, err := p.RunOnce(context.Background())
	require.ErrorIs(t, err, boom)
	require.False(t, more)
}
