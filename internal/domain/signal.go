package domain

// MessageType discriminates signaling messages on the wire.
type MessageType string

const (
	MessageStart     MessageType = "start"
	MessageOffer     MessageType = "offer"
	MessageAnswer    MessageType = "answer"
	MessageCandidate MessageType = "candidate"
)

// Message is the JSON envelope exchanged with the signaling counterpart.
// Which fields are set depends on Type.
type Message struct {
	Type      MessageType          `json:"type"`
	Source    string               `json:"source,omitempty"`
	SDP       string               `json:"sdp,omitempty"`
	Candidate *ICECandidatePayload `json:"candidate,omitempty"`
}

// SDPPayload is a session description in offer or answer role.
type SDPPayload struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// ICECandidatePayload is the JSON structure for ICE candidate messages.
type ICECandidatePayload struct {
	Candidate        string `json:"candidate"`
	SDPMid           string `json:"sdpMid"`
	SDPMLineIndex    int    `json:"sdpMLineIndex"`
	UsernameFragment string `json:"usernameFragment,omitempty"`
}

// StartMessage selects the media source on the counterpart.
func StartMessage(source string) Message {
	return Message{Type: MessageStart, Source: source}
}

// AnswerMessage carries a locally generated answer.
func AnswerMessage(sdp string) Message {
	return Message{Type: MessageAnswer, SDP: sdp}
}

// CandidateMessage carries a locally gathered ICE candidate.
func CandidateMessage(c ICECandidatePayload) Message {
	return Message{Type: MessageCandidate, Candidate: &c}
}

// Offer returns the SDP payload of an offer message.
func (m Message) Offer() SDPPayload {
	return SDPPayload{Type: string(MessageOffer), SDP: m.SDP}
}
