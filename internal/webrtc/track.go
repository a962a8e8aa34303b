package webrtc

import (
	"github.com/pion/rtp"
	pion "github.com/pion/webrtc/v4"
)

// remoteTrack adapts a pion remote track to domain.Track.
type remoteTrack struct {
	track    *pion.TrackRemote
	receiver *pion.RTPReceiver
}

func (t *remoteTrack) ID() string       { return t.track.ID() }
func (t *remoteTrack) StreamID() string { return t.track.StreamID() }
func (t *remoteTrack) Kind() string     { return t.track.Kind().String() }
func (t *remoteTrack) MimeType() string { return t.track.Codec().MimeType }

func (t *remoteTrack) ReadRTP() (*rtp.Packet, error) {
	pkt, _, err := t.track.ReadRTP()
	return pkt, err
}

// Stop stops the receiver; pending reads return an error.
func (t *remoteTrack) Stop() error {
	return t.receiver.Stop()
}
