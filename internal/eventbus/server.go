package eventbus

import (
	"errors"
	"fmt"
	"time"

	server "github.com/nats-io/nats-server/v2/server"
	nats "github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

const (
	maxFrameBytes = 8 << 20
	readyTimeout  = 5 * time.Second
	drainTimeout  = 5 * time.Second
)

// Start runs an in-process NATS server and returns a Bus connected to it.
// The server never listens on a port and keeps nothing on disk; view frames
// only live as long as the process.
func Start() (*Bus, error) {
	ns, err := server.NewServer(&server.Options{
		ServerName: "promptopt-bus",
		DontListen: true,
		NoSigs:     true,
		MaxPayload: maxFrameBytes,
	})
	if err != nil {
		return nil, fmt.Errorf("create event bus server: %w", err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(readyTimeout) {
		ns.Shutdown()
		return nil, errors.New("event bus server not ready")
	}

	closed := make(chan struct{})
	nc, err := nats.Connect(ns.ClientURL(),
		nats.InProcessServer(ns),
		nats.Name("promptopt"),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			ev := log.Warn().Err(err)
			if sub != nil {
				ev = ev.Str("subject", sub.Subject)
			}
			ev.Msg("event bus error")
		}),
		nats.ClosedHandler(func(*nats.Conn) { close(closed) }),
	)
	if err != nil {
		ns.Shutdown()
		return nil, fmt.Errorf("connect event bus: %w", err)
	}

	log.Debug().Str("server", ns.Name()).Msg("event bus started")
	return &Bus{ns: ns, nc: nc, closed: closed}, nil
}

// Close drains pending frames, then stops the server.
func (b *Bus) Close() {
	if err := b.nc.Drain(); err != nil {
		log.Warn().Err(err).Msg("event bus drain failed")
		b.nc.Close()
	}
	select {
	case <-b.closed:
	case <-time.After(drainTimeout):
		log.Warn().Msg("event bus drain timed out")
		b.nc.Close()
	}
	b.ns.Shutdown()
	b.ns.WaitForShutdown()
}
