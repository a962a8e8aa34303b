package webrtc

import (
	"errors"
	"strings"
	"testing"

	pion "github.com/pion/webrtc/v4"

	"camfeed/native/internal/domain"
)

// newOfferer returns a sending peer connection with a local offer set.
func newOfferer(t *testing.T) (*pion.PeerConnection, pion.SessionDescription) {
	t.Helper()

	pc, err := pion.NewPeerConnection(pion.Configuration{})
	if err != nil {
		t.Fatalf("new offerer: %v", err)
	}
	t.Cleanup(func() { _ = pc.Close() })

	track, err := pion.NewTrackLocalStaticSample(
		pion.RTPCodecCapability{MimeType: pion.MimeTypeH264, ClockRate: 90000},
		"video", "camera",
	)
	if err != nil {
		t.Fatalf("new track: %v", err)
	}
	if _, err := pc.AddTrack(track); err != nil {
		t.Fatalf("add track: %v", err)
	}

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		t.Fatalf("create offer: %v", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		t.Fatalf("set local offer: %v", err)
	}
	return pc, offer
}

func newTestPeer(t *testing.T) *Peer {
	t.Helper()
	p, err := NewPeer(nil)
	if err != nil {
		t.Fatalf("new peer: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestPeer_InitialStateIsStable(t *testing.T) {
	p := newTestPeer(t)

	st := p.State()
	if st.Signaling != domain.SignalingStable {
		t.Errorf("expected stable, got %s", st.Signaling)
	}
	if st.ICE != domain.ICENew || st.Connection != domain.ConnectionNew {
		t.Errorf("expected new ICE/connection state, got %+v", st)
	}
}

func TestPeer_CreateAnswerForReturnsToStable(t *testing.T) {
	offerer, offer := newOfferer(t)
	p := newTestPeer(t)

	answer, err := p.CreateAnswerFor(domain.SDPPayload{Type: "offer", SDP: offer.SDP})
	if err != nil {
		t.Fatalf("create answer: %v", err)
	}
	if answer.Type != "answer" {
		t.Errorf("expected answer type, got %q", answer.Type)
	}
	if answer.SDP == "" {
		t.Fatal("expected non-empty answer SDP")
	}
	if got := p.State().Signaling; got != domain.SignalingStable {
		t.Errorf("expected stable after answer, got %s", got)
	}

	if err := offerer.SetRemoteDescription(pion.SessionDescription{
		Type: pion.SDPTypeAnswer,
		SDP:  answer.SDP,
	}); err != nil {
		t.Fatalf("offerer rejected answer: %v", err)
	}
	if offerer.SignalingState() != pion.SignalingStateStable {
		t.Errorf("expected offerer stable, got %s", offerer.SignalingState())
	}
}

func TestPeer_AnswersDefaultCodecOfferWithH264(t *testing.T) {
	// A default media engine offers VP8 ahead of H264, as browsers do.
	offerer, err := pion.NewPeerConnection(pion.Configuration{})
	if err != nil {
		t.Fatalf("new offerer: %v", err)
	}
	t.Cleanup(func() { _ = offerer.Close() })

	tr, err := offerer.AddTransceiverFromKind(pion.RTPCodecTypeVideo,
		pion.RTPTransceiverInit{Direction: pion.RTPTransceiverDirectionSendonly})
	if err != nil {
		t.Fatalf("add transceiver: %v", err)
	}
	offer, err := offerer.CreateOffer(nil)
	if err != nil {
		t.Fatalf("create offer: %v", err)
	}
	if err := offerer.SetLocalDescription(offer); err != nil {
		t.Fatalf("set local offer: %v", err)
	}
	if vp8, h264 := strings.Index(offer.SDP, "VP8"), strings.Index(offer.SDP, "H264"); vp8 < 0 || vp8 > h264 {
		t.Fatalf("expected VP8 offered before H264")
	}

	p := newTestPeer(t)
	answer, err := p.CreateAnswerFor(domain.SDPPayload{Type: "offer", SDP: offer.SDP})
	if err != nil {
		t.Fatalf("create answer: %v", err)
	}
	for _, codec := range []string{"VP8", "VP9", "AV1"} {
		if strings.Contains(answer.SDP, codec) {
			t.Errorf("answer must not accept %s", codec)
		}
	}
	if !strings.Contains(answer.SDP, "H264") {
		t.Fatal("expected H264 in answer")
	}

	if err := offerer.SetRemoteDescription(pion.SessionDescription{
		Type: pion.SDPTypeAnswer,
		SDP:  answer.SDP,
	}); err != nil {
		t.Fatalf("offerer rejected answer: %v", err)
	}
	codecs := tr.Sender().GetParameters().Codecs
	if len(codecs) == 0 || !strings.EqualFold(codecs[0].MimeType, pion.MimeTypeH264) {
		t.Errorf("expected sender to use H264, got %+v", codecs)
	}
}

func TestPeer_RejectsGarbageOffer(t *testing.T) {
	p := newTestPeer(t)

	_, err := p.CreateAnswerFor(domain.SDPPayload{Type: "offer", SDP: "not sdp"})
	if err == nil {
		t.Fatal("expected error for malformed offer")
	}
	if errors.Is(err, domain.ErrInvalidState) {
		t.Errorf("malformed offer is not an invalid-state error: %v", err)
	}
}

func TestPeer_CandidatesQueuedUntilOffer(t *testing.T) {
	_, offer := newOfferer(t)
	p := newTestPeer(t)

	c := domain.ICECandidatePayload{
		Candidate:     "candidate:1 1 udp 2130706431 192.0.2.10 50000 typ host",
		SDPMid:        "0",
		SDPMLineIndex: 0,
	}
	if err := p.AddRemoteCandidate(c); err != nil {
		t.Fatalf("queue candidate: %v", err)
	}
	if len(p.pending) != 1 {
		t.Fatalf("expected 1 queued candidate, got %d", len(p.pending))
	}

	if _, err := p.CreateAnswerFor(domain.SDPPayload{Type: "offer", SDP: offer.SDP}); err != nil {
		t.Fatalf("create answer: %v", err)
	}
	if len(p.pending) != 0 {
		t.Errorf("expected queue flushed, got %d", len(p.pending))
	}
	if err := p.AddRemoteCandidate(c); err != nil {
		t.Errorf("add candidate after answer: %v", err)
	}
}

func TestPeer_CloseIsIdempotentAndGuardsNegotiation(t *testing.T) {
	_, offer := newOfferer(t)
	p := newTestPeer(t)

	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}

	if got := p.State().Signaling; got != domain.SignalingClosed {
		t.Errorf("expected closed, got %s", got)
	}

	_, err := p.CreateAnswerFor(domain.SDPPayload{Type: "offer", SDP: offer.SDP})
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Errorf("expected ErrInvalidState from CreateAnswerFor, got %v", err)
	}
	err = p.AddRemoteCandidate(domain.ICECandidatePayload{Candidate: "candidate:1 1 udp 1 192.0.2.1 1 typ host"})
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Errorf("expected ErrInvalidState from AddRemoteCandidate, got %v", err)
	}
}

func TestPeer_LocalCandidatesAfterAnswer(t *testing.T) {
	_, offer := newOfferer(t)
	p := newTestPeer(t)

	done := make(chan struct{})
	var got []domain.ICECandidatePayload
	p.OnLocalCandidate(func(c domain.ICECandidatePayload) { got = append(got, c) })
	p.OnGatheringComplete(func() { close(done) })

	if _, err := p.CreateAnswerFor(domain.SDPPayload{Type: "offer", SDP: offer.SDP}); err != nil {
		t.Fatalf("create answer: %v", err)
	}

	waitClosed(t, done, "gathering complete")
	for _, c := range got {
		if c.Candidate == "" {
			t.Errorf("empty candidate payload %+v", c)
		}
	}
}

func TestIsLoopback(t *testing.T) {
	cases := map[string]bool{
		"candidate:1 1 udp 2130706431 127.0.0.1 5000 typ host": true,
		"candidate:1 1 udp 2130706431 ::1 5000 typ host":       true,
		"candidate:1 1 udp 2130706431 10.0.0.4 5000 typ host":  false,
	}
	for c, want := range cases {
		if got := isLoopback(c); got != want {
			t.Errorf("isLoopback(%q) = %v, want %v", c, got, want)
		}
	}
}
