package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stesla/tether/internal/telnet"
	"github.com/stesla/tether/internal/transport"
	"github.com/stretchr/testify/require"
)

func TestRPCServer(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()

	sessions := newRegistry()
	tcpServer, tcpClient := net.Pipe()
	defer tcpClient.Close()
	go io.Copy(io.Discard, tcpClient)
	sessions.add(newSession(tcpServer, zerolog.Nop(), nil))

	srv := &rpcServer{logger: zerolog.Nop(), registry: sessions}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	served := make(chan struct{})
	go func() {
		srv.serve(ctx, serverConn)
		close(served)
	}()

	client := transport.New(clientConn, zerolog.Nop())
	go client.Run(ctx)

	resp, err := client.SendRequest(ctx, client.NextID(), "ping", nil)
	require.NoError(t, err)
	require.Equal(t, "ok", resp.Result)

	echo, err := transport.Call[struct {
		Result string `json:"result"`
		Text   string `json:"text"`
	}](ctx, client, client.NextID(), "echo", map[string]string{"text": "hello"})
	require.NoError(t, err)
	require.Equal(t, "ok", echo.Result)
	require.Equal(t, "hello", echo.Text)

	list, err := transport.Call[struct {
		Sessions []sessionInfo `json:"sessions"`
	}](ctx, client, client.NextID(), "sessions", nil)
	require.NoError(t, err)
	require.Len(t, list.Sessions, 1)
	require.Equal(t, 80, list.Sessions[0].Cols)

	// an unknown command stops the dispatcher and drops the connection
	_, err = client.SendRequest(ctx, client.NextID(), "bogus", nil)
	require.ErrorIs(t, err, transport.ErrClosed)
	select {
	case <-served:
	case <-ctx.Done():
		t.Fatal("server did not stop")
	}
}

func writeRawFrame(w io.Writer, body string) error {
	frame := binary.LittleEndian.AppendUint32(nil, uint32(len(body)))
	_, err := w.Write(append(frame, body...))
	return err
}

func readRawFrame(r io.Reader) ([]byte, error) {
	var size [4]byte
	if _, err := io.ReadFull(r, size[:]); err != nil {
		return nil, err
	}
	frame := make([]byte, binary.LittleEndian.Uint32(size[:]))
	_, err := io.ReadFull(r, frame)
	return frame, err
}

func TestRPCServerAnswersInWireOrder(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()
	srv := &rpcServer{logger: zerolog.Nop(), registry: newRegistry()}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go srv.serve(ctx, serverConn)

	const n = 300
	go func() {
		for id := 1; id <= n; id++ {
			body := fmt.Sprintf(`{"id":%d,"type":"request","command":"ping"}`, id)
			if err := writeRawFrame(clientConn, body); err != nil {
				return
			}
		}
	}()

	clientConn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var ids []int64
	for len(ids) < n {
		frame, err := readRawFrame(clientConn)
		require.NoError(t, err)
		var h struct {
			ID   int64  `json:"id"`
			Type string `json:"type"`
		}
		require.NoError(t, json.Unmarshal(frame, &h))
		// the server's own hello request can arrive anywhere in the stream
		if h.Type == "response" {
			ids = append(ids, h.ID)
		}
	}
	for i, id := range ids {
		require.Equal(t, int64(i+1), id, "response %d", i)
	}
}

func TestRPCServerGreetsPeer(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()
	srv := &rpcServer{logger: zerolog.Nop(), registry: newRegistry()}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go srv.serve(ctx, serverConn)

	client := transport.New(clientConn, zerolog.Nop())
	greeted := make(chan string, 1)
	client.OnRequest(func(_ context.Context, req *transport.Request) error {
		var hello struct {
			Server string `json:"server"`
		}
		if err := req.Decode(&hello); err != nil {
			return err
		}
		greeted <- req.Command + " from " + hello.Server
		return client.SendResponse(req.ID, "ok", map[string]string{"name": "tester"})
	})
	go client.Run(ctx)

	select {
	case got := <-greeted:
		require.Equal(t, "hello from tether", got)
	case <-ctx.Done():
		t.Fatal("server did not send hello")
	}

	type pingResult struct {
		Result string `json:"result"`
		Peer   string `json:"peer"`
	}
	require.Eventually(t, func() bool {
		r, err := transport.Call[pingResult](ctx, client, client.NextID(), "ping", nil)
		return err == nil && r.Peer == "tester"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSessionState(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()
	go io.Copy(io.Discard, client)
	s := newSession(server, zerolog.Nop(), nil)

	s.handleSubnegotiation(telnet.SubNegotiationEvent{Option: telnet.NAWS, Data: []byte{0, 100, 0, 40}})
	info := s.info()
	require.Equal(t, 100, info.Cols)
	require.Equal(t, 40, info.Rows)

	s.handleKey('B', false)
	s.handleKey('C', true)
	require.Equal(t, 6, s.x)
	require.Equal(t, 2, s.y)

	s.handleKey('A', true)
	require.Equal(t, 1, s.y)

	s.handleMouse(telnet.MouseEvent{Button: telnet.ButtonLeft, EventType: telnet.MouseDown, X: 500, Y: 9})
	require.Equal(t, 100, s.x)
	require.Equal(t, 10, s.y)

	s.handleMouse(telnet.MouseEvent{Button: telnet.ButtonScrollUp, EventType: telnet.MouseDown})
	require.Equal(t, 1, s.color)
}

func TestSessionLogsWriteErrors(t *testing.T) {
	server, client := net.Pipe()
	client.Close()
	var logs bytes.Buffer
	s := newSession(server, zerolog.New(&logs), nil)

	s.draw("x")
	require.Contains(t, logs.String(), `"op":"move cursor"`)
	require.Contains(t, logs.String(), `"op":"set foreground"`)
	require.Contains(t, logs.String(), `"op":"write"`)
	require.Contains(t, logs.String(), "error writing to client")
}

func TestRegistry(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()
	r := newRegistry()
	s := newSession(server, zerolog.Nop(), nil)
	r.add(s)
	require.Len(t, r.list(), 1)
	require.Equal(t, s.id, r.list()[0].ID)
	r.remove(s)
	require.Empty(t, r.list())
}
