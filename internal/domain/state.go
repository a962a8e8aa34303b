package domain

// SignalingState tracks progress of the offer/answer exchange.
type SignalingState string

const (
	SignalingStable          SignalingState = "stable"
	SignalingHaveLocalOffer  SignalingState = "have-local-offer"
	SignalingHaveRemoteOffer SignalingState = "have-remote-offer"
	SignalingClosed          SignalingState = "closed"
)

// ICEConnectionState is the state of network path establishment.
type ICEConnectionState string

const (
	ICENew          ICEConnectionState = "new"
	ICEChecking     ICEConnectionState = "checking"
	ICEConnected    ICEConnectionState = "connected"
	ICECompleted    ICEConnectionState = "completed"
	ICEFailed       ICEConnectionState = "failed"
	ICEDisconnected ICEConnectionState = "disconnected"
	ICEClosed       ICEConnectionState = "closed"
)

// ConnectionState is the overall peer connection state.
type ConnectionState string

const (
	ConnectionNew          ConnectionState = "new"
	ConnectionConnecting   ConnectionState = "connecting"
	ConnectionConnected    ConnectionState = "connected"
	ConnectionDisconnected ConnectionState = "disconnected"
	ConnectionFailed       ConnectionState = "failed"
	ConnectionClosed       ConnectionState = "closed"
)

// NegotiationState is a read-only snapshot of the engine's three
// independent sub-states.
type NegotiationState struct {
	Signaling  SignalingState     `json:"signaling"`
	ICE        ICEConnectionState `json:"ice"`
	Connection ConnectionState    `json:"connection"`
}
