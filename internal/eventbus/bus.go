package eventbus

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/namikmesic/promptopt/internal/stream"
	server "github.com/nats-io/nats-server/v2/server"
	nats "github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

const SubjectPrefix = "promptopt.session."

func ViewSubject(sessionID uuid.UUID) string {
	return SubjectPrefix + sessionID.String() + ".view"
}

// Bus fans rendered view frames out to every listener of a session.
type Bus struct {
	ns     *server.Server
	nc     *nats.Conn
	closed chan struct{}
}

func (b *Bus) Publish(sessionID uuid.UUID, f stream.Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	if err := b.nc.Publish(ViewSubject(sessionID), data); err != nil {
		return fmt.Errorf("publish frame: %w", err)
	}
	return nil
}

// Subscription delivers frames published for one session.
type Subscription struct {
	sub    *nats.Subscription
	frames chan stream.Frame
	lost   chan struct{}
	once   sync.Once
}

func (s *Subscription) Frames() <-chan stream.Frame {
	return s.frames
}

// Lost is closed once a frame could not be delivered because the listener
// fell behind. Later frames are discarded; the listener must rebuild its
// view from session state.
func (s *Subscription) Lost() <-chan struct{} {
	return s.lost
}

func (s *Subscription) Close() error {
	return s.sub.Unsubscribe()
}

func (s *Subscription) deliver(f stream.Frame, subject string) {
	select {
	case <-s.lost:
		return
	default:
	}
	select {
	case s.frames <- f:
	default:
		s.once.Do(func() {
			log.Warn().Str("subject", subject).Int("buffer", cap(s.frames)).Msg("listener fell behind, marking subscription lost")
			close(s.lost)
		})
	}
}

// Subscribe starts listening on the session's subject with room for buffer
// undelivered frames.
func (b *Bus) Subscribe(sessionID uuid.UUID, buffer int) (*Subscription, error) {
	s := &Subscription{
		frames: make(chan stream.Frame, buffer),
		lost:   make(chan struct{}),
	}

	sub, err := b.nc.Subscribe(ViewSubject(sessionID), func(msg *nats.Msg) {
		var f stream.Frame
		if err := json.Unmarshal(msg.Data, &f); err != nil {
			log.Warn().Err(err).Str("subject", msg.Subject).Msg("dropping malformed frame")
			return
		}
		s.deliver(f, msg.Subject)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	if err := b.nc.Flush(); err != nil {
		sub.Unsubscribe()
		return nil, fmt.Errorf("flush subscription: %w", err)
	}

	s.sub = sub
	return s, nil
}
