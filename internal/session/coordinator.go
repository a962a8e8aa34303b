// Package session coordinates the signaling channel and the negotiation
// engine of the single active media session.
package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"camfeed/native/internal/domain"
	"camfeed/native/internal/media"
)

var (
	errMalformed  = errors.New("malformed message")
	errUnexpected = errors.New("unexpected message type")
	errICEFailed  = errors.New("ICE connection failed")
	errPeerFailed = errors.New("peer connection failed")
)

// ChannelFactory creates an unopened signaling channel to endpoint.
type ChannelFactory func(endpoint string) domain.Channel

// EngineFactory creates a fresh negotiation engine.
type EngineFactory func() (domain.Engine, error)

// Renderer displays the track set of the session.
type Renderer interface {
	Attach(s *media.Stream)
	Detach()
}

// Discard records an inbound message that was not applied.
type Discard struct {
	SessionID string
	Type      domain.MessageType
	Reason    error
}

// Info describes the active session.
type Info struct {
	ID     string
	Source string
	State  domain.NegotiationState
}

// Options configures a Coordinator. NewChannel and NewEngine are required.
type Options struct {
	Endpoint   string
	NewChannel ChannelFactory
	NewEngine  EngineFactory
	Renderer   Renderer

	OnDiscard     func(Discard)
	OnError       func(sessionID string, err error)
	OnStateChange func(sessionID string, st domain.NegotiationState)
}

// Coordinator owns at most one session. All transitions and callbacks run
// on a single event loop.
type Coordinator struct {
	opts   Options
	loop   *eventLoop
	ctx    context.Context
	cancel context.CancelFunc

	// current is only touched on the loop.
	current *session
}

type session struct {
	id     string
	source string
	log    zerolog.Logger

	channel   domain.Channel
	engine    domain.Engine
	stream    *media.Stream
	rendering bool
}

// New creates a Coordinator with no active session.
func New(opts Options) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		opts:   opts,
		loop:   newEventLoop(),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start tears down the current session, if any, and starts a new one for
// source. The start message is sent once the channel opens.
func (c *Coordinator) Start(source string) {
	if !c.loop.do(func() { c.start(source) }) {
		log.Warn().Str("module", "session").Msg("start after close ignored")
	}
}

// Stop tears down the current session. Safe without an active session.
func (c *Coordinator) Stop() {
	c.loop.do(func() { c.teardown("stopped") })
}

// Close stops the current session and the event loop.
func (c *Coordinator) Close() {
	c.Stop()
	c.cancel()
	c.loop.stop()
}

// Current reports the active session.
func (c *Coordinator) Current() (Info, bool) {
	var (
		info Info
		ok   bool
	)
	c.loop.do(func() {
		if s := c.current; s != nil {
			info = Info{ID: s.id, Source: s.source, State: s.engine.State()}
			ok = true
		}
	})
	return info, ok
}

// Stream returns the track set of the active session, or nil.
func (c *Coordinator) Stream() *media.Stream {
	var s *media.Stream
	c.loop.do(func() {
		if c.current != nil {
			s = c.current.stream
		}
	})
	return s
}

func (c *Coordinator) start(source string) {
	c.teardown("replaced")

	id := uuid.NewString()
	l := log.With().Str("module", "session").Str("sid", id).Logger()

	engine, err := c.opts.NewEngine()
	if err != nil {
		l.Error().Err(err).Msg("create negotiation engine")
		c.notifyError(id, fmt.Errorf("create engine: %w", err))
		return
	}

	s := &session{
		id:      id,
		source:  source,
		log:     l,
		channel: c.opts.NewChannel(c.opts.Endpoint),
		engine:  engine,
		stream:  media.NewStream(id),
	}
	c.current = s
	c.wire(s)

	l.Info().Str("source", source).Str("endpoint", c.opts.Endpoint).Msg("starting session")
	s.channel.Open(c.ctx)
}

// post runs fn on the loop if s is still the current session. Events of a
// torn down session are swallowed.
func (c *Coordinator) post(s *session, event string, fn func()) {
	c.loop.post(func() {
		if c.current != s {
			s.log.Debug().Str("event", event).Msg("event for closed session swallowed")
			return
		}
		fn()
	})
}

func (c *Coordinator) wire(s *session) {
	s.channel.OnOpen(func() {
		c.post(s, "open", func() {
			s.log.Info().Msg("signaling channel open, requesting stream")
			s.channel.Send(domain.StartMessage(s.source))
		})
	})
	s.channel.OnMessage(func(m domain.Message) {
		c.post(s, "message", func() { c.route(s, m) })
	})
	s.channel.OnError(func(err error) {
		c.post(s, "channel error", func() {
			s.log.Error().Err(err).Msg("signaling channel error")
			c.notifyError(s.id, err)
		})
	})
	s.channel.OnClose(func() {
		c.post(s, "channel close", func() {
			s.log.Info().Msg("signaling channel closed")
		})
	})

	s.engine.OnLocalCandidate(func(cand domain.ICECandidatePayload) {
		c.post(s, "local candidate", func() {
			s.channel.Send(domain.CandidateMessage(cand))
		})
	})
	s.engine.OnGatheringComplete(func() {
		c.post(s, "gathering complete", func() {
			s.log.Info().Msg("all ICE candidates have been gathered")
		})
	})
	s.engine.OnTrack(func(t domain.Track) {
		posted := c.loop.post(func() {
			if c.current != s {
				_ = t.Stop()
				return
			}
			c.attachTrack(s, t)
		})
		if !posted {
			_ = t.Stop()
		}
	})
	s.engine.OnConnectionStateChange(func(st domain.ConnectionState) {
		c.post(s, "connection state", func() {
			s.log.Info().Str("state", string(st)).Msg("connection state change")
			if st == domain.ConnectionFailed {
				c.notifyError(s.id, errPeerFailed)
			}
			c.notifyState(s)
		})
	})
	s.engine.OnICEStateChange(func(st domain.ICEConnectionState) {
		c.post(s, "ice state", func() {
			s.log.Info().Str("state", string(st)).Msg("ICE connection state change")
			if st == domain.ICEFailed {
				s.log.Error().Msg("ICE connection failed")
				c.notifyError(s.id, errICEFailed)
			}
			c.notifyState(s)
		})
	})
	s.engine.OnSignalingStateChange(func(st domain.SignalingState) {
		c.post(s, "signaling state", func() {
			s.log.Debug().Str("state", string(st)).Msg("signaling state change")
			c.notifyState(s)
		})
	})
}

func (c *Coordinator) route(s *session, m domain.Message) {
	switch m.Type {
	case domain.MessageOffer:
		if m.SDP == "" {
			c.discard(s, m.Type, fmt.Errorf("%w: offer without sdp", errMalformed))
			return
		}
		if s.engine.State().Signaling == domain.SignalingClosed {
			c.discard(s, m.Type, domain.ErrInvalidState)
			return
		}
		s.log.Info().Msg("received offer")
		answer, err := s.engine.CreateAnswerFor(m.Offer())
		if errors.Is(err, domain.ErrInvalidState) {
			c.discard(s, m.Type, err)
			return
		}
		if err != nil {
			s.log.Error().Err(err).Msg("answer offer")
			c.notifyError(s.id, err)
			return
		}
		s.log.Info().Msg("sending answer")
		s.channel.Send(domain.AnswerMessage(answer.SDP))

	case domain.MessageCandidate:
		if m.Candidate == nil {
			c.discard(s, m.Type, fmt.Errorf("%w: candidate without payload", errMalformed))
			return
		}
		if s.engine.State().Signaling == domain.SignalingClosed {
			c.discard(s, m.Type, domain.ErrInvalidState)
			return
		}
		err := s.engine.AddRemoteCandidate(*m.Candidate)
		if errors.Is(err, domain.ErrInvalidState) {
			c.discard(s, m.Type, err)
			return
		}
		if err != nil {
			s.log.Error().Err(err).Msg("add remote ICE candidate")
			c.notifyError(s.id, err)
			return
		}
		s.log.Debug().Msg("applied remote ICE candidate")

	default:
		c.discard(s, m.Type, fmt.Errorf("%w: %q", errUnexpected, m.Type))
	}
}

func (c *Coordinator) attachTrack(s *session, t domain.Track) {
	s.log.Info().Str("kind", t.Kind()).Str("track_id", t.ID()).Msg("track received")
	s.stream.Add(t)
	if t.Kind() != "video" || s.rendering || c.opts.Renderer == nil {
		return
	}
	c.opts.Renderer.Attach(s.stream)
	s.rendering = true
}

// teardown releases every resource of the current session. Errors are
// swallowed.
func (c *Coordinator) teardown(reason string) {
	s := c.current
	if s == nil {
		return
	}
	c.current = nil

	s.channel.Close()
	if err := s.engine.Close(); err != nil {
		s.log.Debug().Err(err).Msg("close engine")
	}
	s.stream.Stop()
	if s.rendering {
		c.opts.Renderer.Detach()
		s.rendering = false
	}
	s.log.Info().Str("reason", reason).Msg("session torn down")
}

func (c *Coordinator) discard(s *session, typ domain.MessageType, reason error) {
	s.log.Warn().Err(reason).Str("type", string(typ)).Msg("inbound message discarded")
	if c.opts.OnDiscard != nil {
		c.opts.OnDiscard(Discard{SessionID: s.id, Type: typ, Reason: reason})
	}
}

func (c *Coordinator) notifyError(sessionID string, err error) {
	if c.opts.OnError != nil {
		c.opts.OnError(sessionID, err)
	}
}

func (c *Coordinator) notifyState(s *session) {
	if c.opts.OnStateChange != nil {
		c.opts.OnStateChange(s.id, s.engine.State())
	}
}
