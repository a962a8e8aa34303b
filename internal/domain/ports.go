package domain

import (
	"context"

	"github.com/pion/rtp"
)

// Channel is the ordered, duplex side channel to the signaling counterpart.
// Handlers must be registered before Open. Handlers are never invoked
// synchronously from Send or Close.
type Channel interface {
	OnOpen(fn func())
	OnMessage(fn func(Message))
	OnClose(fn func())
	OnError(fn func(error))
	Open(ctx context.Context)
	// Send queues msg for delivery. Failures are reported through OnError.
	Send(msg Message)
	Close()
}

// Engine wraps the peer connection in the answering role.
type Engine interface {
	CreateAnswerFor(offer SDPPayload) (SDPPayload, error)
	AddRemoteCandidate(candidate ICECandidatePayload) error
	OnLocalCandidate(fn func(ICECandidatePayload))
	OnGatheringComplete(fn func())
	OnTrack(fn func(Track))
	OnConnectionStateChange(fn func(ConnectionState))
	OnICEStateChange(fn func(ICEConnectionState))
	OnSignalingStateChange(fn func(SignalingState))
	State() NegotiationState
	Close() error
}

// Track is an inbound media track. ReadRTP supports a single reader.
type Track interface {
	ID() string
	// StreamID is the stream grouping the track belongs to.
	StreamID() string
	// Kind is "audio" or "video".
	Kind() string
	MimeType() string
	ReadRTP() (*rtp.Packet, error)
	Stop() error
}
