package main

import (
	"context"
	"errors"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/stesla/tether/internal/telnet"
	"golang.org/x/text/encoding"
)

func main() {
	cfg, err := loadConfig(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	bootLogger := zerolog.New(os.Stderr)
	if err != nil {
		bootLogger.Fatal().Err(err).Msg("invalid configuration")
	}
	logger, err := newLogger(os.Stdout, cfg.LogLevel)
	if err != nil {
		bootLogger.Fatal().Err(err).Msg("invalid log level")
	}
	enc, err := telnet.LookupEncoding(cfg.Charset)
	if err != nil {
		logger.Fatal().Err(err).Str("charset", cfg.Charset).Msg("unknown charset")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	telnetListener, err := net.Listen("tcp", cfg.TelnetAddr)
	if err != nil {
		logger.Fatal().Err(err).Send()
	}
	rpcListener, err := net.Listen("tcp", cfg.RPCAddr)
	if err != nil {
		logger.Fatal().Err(err).Send()
	}
	context.AfterFunc(ctx, func() {
		telnetListener.Close()
		rpcListener.Close()
	})

	logger.Info().Str("telnet", cfg.TelnetAddr).Str("rpc", cfg.RPCAddr).Msg("started")

	sessions := newRegistry()
	rpc := &rpcServer{logger: logger, registry: sessions}
	go acceptLoop(ctx, rpcListener, logger, rpc.serve)

	acceptLoop(ctx, telnetListener, logger, func(ctx context.Context, conn net.Conn) {
		serveTelnet(ctx, conn, logger, enc, sessions)
	})
	logger.Info().Msg("stopped")
}

func serveTelnet(ctx context.Context, conn net.Conn, logger zerolog.Logger, enc encoding.Encoding, sessions *registry) {
	s := newSession(conn, logger, enc)
	defer s.Close()
	sessions.add(s)
	defer sessions.remove(s)
	s.runForever(ctx)
}

func acceptLoop(ctx context.Context, l net.Listener, logger zerolog.Logger, serve func(context.Context, net.Conn)) {
	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			logger.Error().Err(err).Msg("error accepting connection")
			continue
		}
		go func() {
			defer conn.Close()
			serve(ctx, conn)
		}()
	}
}
