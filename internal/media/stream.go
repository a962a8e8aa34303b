// Package media holds the per-session track set and its consumers: the
// Annex-B renderer and the recording sidecar.
package media

import (
	"sync"

	"github.com/pion/rtp"
	"github.com/rs/zerolog/log"

	"camfeed/native/internal/domain"
)

// Packet is one RTP packet read from a track of the stream.
type Packet struct {
	TrackID  string
	Kind     string
	MimeType string
	RTP      *rtp.Packet
}

// Stream is the set of tracks attached to a session. Each track has a
// single reader pump that fans packets out to every subscriber, so the
// renderer and the recorder can consume the same track.
type Stream struct {
	id string

	mu      sync.Mutex
	tracks  []domain.Track
	subs    map[*Subscription]struct{}
	stopped bool
}

// NewStream creates an empty stream.
func NewStream(id string) *Stream {
	return &Stream{
		id:   id,
		subs: make(map[*Subscription]struct{}),
	}
}

// ID identifies the stream grouping.
func (s *Stream) ID() string { return s.id }

// Add attaches a track and starts pumping it. Tracks added after Stop are
// stopped immediately.
func (s *Stream) Add(t domain.Track) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		if err := t.Stop(); err != nil {
			log.Debug().Err(err).Str("module", "media").Msg("stop late track")
		}
		return
	}
	s.tracks = append(s.tracks, t)
	s.mu.Unlock()

	go s.pump(t)
}

// Tracks returns the attached tracks.
func (s *Stream) Tracks() []domain.Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Track(nil), s.tracks...)
}

// HasKind reports whether a track of the given kind is attached.
func (s *Stream) HasKind(kind string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tracks {
		if t.Kind() == kind {
			return true
		}
	}
	return false
}

// Stopped reports whether Stop was called.
func (s *Stream) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// Subscribe registers a consumer. The returned subscription is already
// closed if the stream has stopped.
func (s *Stream) Subscribe(buffer int) *Subscription {
	sub := &Subscription{
		stream: s,
		ch:     make(chan Packet, buffer),
	}
	sub.C = sub.ch

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		sub.closeLocked()
		return sub
	}
	s.subs[sub] = struct{}{}
	return sub
}

// Stop stops every track and closes every subscription. Idempotent.
func (s *Stream) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	tracks := s.tracks
	for sub := range s.subs {
		sub.closeLocked()
		delete(s.subs, sub)
	}
	s.mu.Unlock()

	for _, t := range tracks {
		if err := t.Stop(); err != nil {
			log.Debug().Err(err).Str("module", "media").Str("track_id", t.ID()).Msg("stop track")
		}
	}
	log.Info().Str("module", "media").Str("stream_id", s.id).Int("tracks", len(tracks)).Msg("stream stopped")
}

func (s *Stream) pump(t domain.Track) {
	kind := t.Kind()
	id := t.ID()
	mime := t.MimeType()
	for {
		pkt, err := t.ReadRTP()
		if err != nil {
			log.Debug().Err(err).Str("module", "media").Str("track_id", id).Msg("track read ended")
			return
		}
		if !s.broadcast(Packet{TrackID: id, Kind: kind, MimeType: mime, RTP: pkt}) {
			return
		}
	}
}

// broadcast delivers p without blocking; slow subscribers lose packets.
// It returns false once the stream is stopped.
func (s *Stream) broadcast(p Packet) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	for sub := range s.subs {
		select {
		case sub.ch <- p:
		default:
			sub.dropped++
		}
	}
	return true
}

// Subscription receives packets from every track of a stream on C.
// C is closed when the stream stops or Cancel is called.
type Subscription struct {
	C <-chan Packet

	stream  *Stream
	ch      chan Packet
	closed  bool
	dropped int
}

// Cancel unsubscribes. Idempotent.
func (sub *Subscription) Cancel() {
	s := sub.stream
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, sub)
	sub.closeLocked()
}

// Dropped reports how many packets were lost to a full buffer.
func (sub *Subscription) Dropped() int {
	sub.stream.mu.Lock()
	defer sub.stream.mu.Unlock()
	return sub.dropped
}

func (sub *Subscription) closeLocked() {
	if !sub.closed {
		sub.closed = true
		close(sub.ch)
	}
}
