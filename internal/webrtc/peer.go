package webrtc

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pion/interceptor"
	"github.com/pion/interceptor/pkg/nack"
	"github.com/pion/logging"
	"github.com/pion/transport/v3"
	pion "github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"camfeed/native/internal/domain"
)

// Option configures a Peer.
type Option func(*options)

type options struct {
	filterLoopback bool
	loggerFactory  logging.LoggerFactory
	net            transport.Net
}

// WithLoopbackFilter drops loopback candidates before they are signaled.
func WithLoopbackFilter(enabled bool) Option {
	return func(o *options) { o.filterLoopback = enabled }
}

// WithLoggerFactory routes pion's internal logging.
func WithLoggerFactory(f logging.LoggerFactory) Option {
	return func(o *options) { o.loggerFactory = f }
}

// WithNet replaces the network stack used for ICE.
func WithNet(n transport.Net) Option {
	return func(o *options) { o.net = n }
}

// Peer wraps a Pion PeerConnection in the answering role. It implements
// domain.Engine.
type Peer struct {
	pc             *pion.PeerConnection
	filterLoopback bool

	mu        sync.Mutex
	closed    bool
	remoteSet bool
	pending   []pion.ICECandidateInit

	// cbMu is separate from mu so pion callbacks never wait on a
	// negotiation step in progress.
	cbMu sync.Mutex
	cb   callbacks
}

type callbacks struct {
	onLocalCandidate    func(domain.ICECandidatePayload)
	onGatheringComplete func()
	onTrack             func(domain.Track)
	onConnectionState   func(domain.ConnectionState)
	onICEState          func(domain.ICEConnectionState)
	onSignalingState    func(domain.SignalingState)
}

// NewPeer creates a PeerConnection using the given discovery servers.
func NewPeer(iceServers []domain.ICEServer, opts ...Option) (*Peer, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	m, err := newMediaEngine()
	if err != nil {
		return nil, err
	}

	i := &interceptor.Registry{}
	generatorFactory, err := nack.NewGeneratorInterceptor()
	if err != nil {
		return nil, fmt.Errorf("create nack generator: %w", err)
	}
	i.Add(generatorFactory)
	responderFactory, err := nack.NewResponderInterceptor()
	if err != nil {
		return nil, fmt.Errorf("create nack responder: %w", err)
	}
	i.Add(responderFactory)

	se := pion.SettingEngine{}
	if o.loggerFactory != nil {
		se.LoggerFactory = o.loggerFactory
	}
	if o.net != nil {
		se.SetNet(o.net)
	}

	api := pion.NewAPI(
		pion.WithMediaEngine(m),
		pion.WithInterceptorRegistry(i),
		pion.WithSettingEngine(se),
	)

	var servers []pion.ICEServer
	for _, s := range iceServers {
		servers = append(servers, pion.ICEServer{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}

	pc, err := api.NewPeerConnection(pion.Configuration{
		ICEServers:   servers,
		BundlePolicy: pion.BundlePolicyMaxBundle,
	})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	p := &Peer{
		pc:             pc,
		filterLoopback: o.filterLoopback,
	}
	p.wire()
	return p, nil
}

// h264Profiles are the profile-level-ids answered with packetization-mode=1
// (constrained baseline, baseline, high). H264 is the only video codec
// the media consumers can depacketize.
var h264Profiles = []struct {
	pt      pion.PayloadType
	profile string
}{
	{102, "42e01f"},
	{104, "42001f"},
	{106, "640032"},
}

// newMediaEngine registers H264 for video and Opus/PCMU for audio.
func newMediaEngine() (*pion.MediaEngine, error) {
	m := &pion.MediaEngine{}

	feedback := []pion.RTCPFeedback{
		{Type: "nack"},
		{Type: "nack", Parameter: "pli"},
		{Type: "goog-remb"},
	}
	for _, p := range h264Profiles {
		codec := pion.RTPCodecParameters{
			RTPCodecCapability: pion.RTPCodecCapability{
				MimeType:     pion.MimeTypeH264,
				ClockRate:    90000,
				SDPFmtpLine:  "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=" + p.profile,
				RTCPFeedback: feedback,
			},
			PayloadType: p.pt,
		}
		if err := m.RegisterCodec(codec, pion.RTPCodecTypeVideo); err != nil {
			return nil, fmt.Errorf("register H264 %s: %w", p.profile, err)
		}
	}

	opusCodec := pion.RTPCodecParameters{
		RTPCodecCapability: pion.RTPCodecCapability{
			MimeType:    pion.MimeTypeOpus,
			ClockRate:   48000,
			Channels:    2,
			SDPFmtpLine: "minptime=10;useinbandfec=1",
		},
		PayloadType: 111,
	}
	if err := m.RegisterCodec(opusCodec, pion.RTPCodecTypeAudio); err != nil {
		return nil, fmt.Errorf("register Opus: %w", err)
	}

	pcmuCodec := pion.RTPCodecParameters{
		RTPCodecCapability: pion.RTPCodecCapability{
			MimeType:  pion.MimeTypePCMU,
			ClockRate: 8000,
			Channels:  1,
		},
		PayloadType: 0,
	}
	if err := m.RegisterCodec(pcmuCodec, pion.RTPCodecTypeAudio); err != nil {
		return nil, fmt.Errorf("register PCMU: %w", err)
	}
	return m, nil
}

func (p *Peer) wire() {
	p.pc.OnICEConnectionStateChange(func(state pion.ICEConnectionState) {
		log.Info().Str("module", "webrtc").Str("ice_state", state.String()).Msg("ICE connection state")
		if fn := p.handlers().onICEState; fn != nil {
			fn(domain.ICEConnectionState(state.String()))
		}
	})
	p.pc.OnConnectionStateChange(func(state pion.PeerConnectionState) {
		log.Info().Str("module", "webrtc").Str("peer_connection_state", state.String()).Msg("peer connection state")
		if fn := p.handlers().onConnectionState; fn != nil {
			fn(domain.ConnectionState(state.String()))
		}
	})
	p.pc.OnSignalingStateChange(func(state pion.SignalingState) {
		log.Debug().Str("module", "webrtc").Str("signaling_state", state.String()).Msg("signaling state")
		if fn := p.handlers().onSignalingState; fn != nil {
			fn(domain.SignalingState(state.String()))
		}
	})
	p.pc.OnICECandidate(func(c *pion.ICECandidate) {
		h := p.handlers()
		if c == nil {
			log.Info().Str("module", "webrtc").Msg("ICE gathering complete")
			if h.onGatheringComplete != nil {
				h.onGatheringComplete()
			}
			return
		}

		init := c.ToJSON()
		if p.filterLoopback && isLoopback(init.Candidate) {
			log.Debug().Str("module", "webrtc").Msg("filtering loopback ICE candidate")
			return
		}

		payload := domain.ICECandidatePayload{Candidate: init.Candidate}
		if init.SDPMid != nil {
			payload.SDPMid = *init.SDPMid
		}
		if init.SDPMLineIndex != nil {
			payload.SDPMLineIndex = int(*init.SDPMLineIndex)
		}
		if init.UsernameFragment != nil {
			payload.UsernameFragment = *init.UsernameFragment
		}

		log.Debug().Str("module", "webrtc").Str("candidate", init.Candidate).Msg("local ICE candidate")
		if h.onLocalCandidate != nil {
			h.onLocalCandidate(payload)
		}
	})
	p.pc.OnTrack(func(track *pion.TrackRemote, receiver *pion.RTPReceiver) {
		codec := track.Codec()
		log.Info().
			Str("module", "webrtc").
			Str("kind", track.Kind().String()).
			Str("codec", codec.MimeType).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("got track")
		if fn := p.handlers().onTrack; fn != nil {
			fn(&remoteTrack{track: track, receiver: receiver})
		}
	})
}

func (p *Peer) handlers() callbacks {
	p.cbMu.Lock()
	defer p.cbMu.Unlock()
	return p.cb
}

func (p *Peer) OnLocalCandidate(fn func(domain.ICECandidatePayload)) {
	p.cbMu.Lock()
	p.cb.onLocalCandidate = fn
	p.cbMu.Unlock()
}

func (p *Peer) OnGatheringComplete(fn func()) {
	p.cbMu.Lock()
	p.cb.onGatheringComplete = fn
	p.cbMu.Unlock()
}

func (p *Peer) OnTrack(fn func(domain.Track)) {
	p.cbMu.Lock()
	p.cb.onTrack = fn
	p.cbMu.Unlock()
}

func (p *Peer) OnConnectionStateChange(fn func(domain.ConnectionState)) {
	p.cbMu.Lock()
	p.cb.onConnectionState = fn
	p.cbMu.Unlock()
}

func (p *Peer) OnICEStateChange(fn func(domain.ICEConnectionState)) {
	p.cbMu.Lock()
	p.cb.onICEState = fn
	p.cbMu.Unlock()
}

func (p *Peer) OnSignalingStateChange(fn func(domain.SignalingState)) {
	p.cbMu.Lock()
	p.cb.onSignalingState = fn
	p.cbMu.Unlock()
}

// CreateAnswerFor applies the remote offer, sets a local answer and returns it.
// Candidates received before the offer are applied afterwards.
func (p *Peer) CreateAnswerFor(offer domain.SDPPayload) (domain.SDPPayload, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.isClosed() {
		return domain.SDPPayload{}, fmt.Errorf("create answer: %w", domain.ErrInvalidState)
	}

	remote := pion.SessionDescription{
		Type: pion.SDPTypeOffer,
		SDP:  offer.SDP,
	}
	if err := p.pc.SetRemoteDescription(remote); err != nil {
		return domain.SDPPayload{}, fmt.Errorf("set remote description: %w", err)
	}
	log.Info().Str("module", "webrtc").Msg("remote SDP offer set")

	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return domain.SDPPayload{}, fmt.Errorf("create answer: %w", err)
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return domain.SDPPayload{}, fmt.Errorf("set local description: %w", err)
	}
	log.Info().Str("module", "webrtc").Msg("local SDP answer set")

	p.remoteSet = true
	for _, c := range p.pending {
		if err := p.pc.AddICECandidate(c); err != nil {
			log.Warn().Err(err).Str("module", "webrtc").Msg("add queued ICE candidate")
		}
	}
	p.pending = nil

	return domain.SDPPayload{Type: answer.Type.String(), SDP: answer.SDP}, nil
}

// AddRemoteCandidate applies the candidate, or queues it until the remote
// description is set.
func (p *Peer) AddRemoteCandidate(candidate domain.ICECandidatePayload) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.isClosed() {
		return fmt.Errorf("add ice candidate: %w", domain.ErrInvalidState)
	}

	sdpMLineIndex := uint16(candidate.SDPMLineIndex)
	init := pion.ICECandidateInit{
		Candidate:     candidate.Candidate,
		SDPMid:        &candidate.SDPMid,
		SDPMLineIndex: &sdpMLineIndex,
	}
	if candidate.UsernameFragment != "" {
		init.UsernameFragment = &candidate.UsernameFragment
	}

	if !p.remoteSet {
		p.pending = append(p.pending, init)
		log.Debug().Str("module", "webrtc").Int("queued", len(p.pending)).Msg("queued remote ICE candidate")
		return nil
	}

	if err := p.pc.AddICECandidate(init); err != nil {
		return fmt.Errorf("add ice candidate: %w", err)
	}
	log.Debug().Str("module", "webrtc").Msg("added remote ICE candidate")
	return nil
}

// State reports the current negotiation sub-states.
func (p *Peer) State() domain.NegotiationState {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()

	st := domain.NegotiationState{
		Signaling:  domain.SignalingState(p.pc.SignalingState().String()),
		ICE:        domain.ICEConnectionState(p.pc.ICEConnectionState().String()),
		Connection: domain.ConnectionState(p.pc.ConnectionState().String()),
	}
	if closed {
		st.Signaling = domain.SignalingClosed
	}
	return st
}

// Close shuts down the PeerConnection. Further negotiation calls fail
// with domain.ErrInvalidState.
func (p *Peer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.pending = nil
	p.mu.Unlock()

	if err := p.pc.Close(); err != nil {
		return fmt.Errorf("close peer connection: %w", err)
	}
	return nil
}

// isClosed must be called with mu held.
func (p *Peer) isClosed() bool {
	return p.closed || p.pc.SignalingState() == pion.SignalingStateClosed
}

func isLoopback(candidate string) bool {
	return strings.Contains(candidate, "127.0.0.1") || strings.Contains(candidate, "::1 ")
}
