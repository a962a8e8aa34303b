package media

import (
	"io"
	"sync"

	"github.com/rs/zerolog/log"
)

const subscriptionBuffer = 512

// Renderer writes the video of an attached stream to an io.Writer as a raw
// H264 Annex-B byte stream. Audio is drained by the stream and ignored, as
// are video tracks in any other codec.
type Renderer struct {
	w io.Writer

	// writeMu serializes writes across attachments.
	writeMu sync.Mutex

	mu  sync.Mutex
	cur *attachment
}

type attachment struct {
	sub  *Subscription
	quit chan struct{}
	done chan struct{}
}

// NewRenderer creates a renderer writing to w.
func NewRenderer(w io.Writer) *Renderer {
	return &Renderer{w: w}
}

// Attach starts rendering s, replacing any previous stream.
func (r *Renderer) Attach(s *Stream) {
	r.Detach()

	a := &attachment{
		sub:  s.Subscribe(subscriptionBuffer),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}

	r.mu.Lock()
	r.cur = a
	r.mu.Unlock()

	log.Info().Str("module", "render").Str("stream_id", s.ID()).Msg("rendering stream")
	go r.render(a)
}

// Detach stops rendering without waiting for a write in progress.
// Idempotent.
func (r *Renderer) Detach() {
	r.mu.Lock()
	a := r.cur
	r.cur = nil
	r.mu.Unlock()

	if a == nil {
		return
	}
	close(a.quit)
	a.sub.Cancel()
	log.Info().Str("module", "render").Int("dropped", a.sub.Dropped()).Msg("renderer detached")
}

// Attached reports whether a stream is being rendered.
func (r *Renderer) Attached() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cur != nil
}

func (r *Renderer) render(a *attachment) {
	defer close(a.done)

	depack := NewH264Depacketizer()
	skipped := make(map[string]bool)
	failed := false
	for p := range a.sub.C {
		select {
		case <-a.quit:
			return
		default:
		}
		if p.Kind != "video" || failed {
			continue
		}
		if !IsH264(p.MimeType) {
			if !skipped[p.TrackID] {
				skipped[p.TrackID] = true
				log.Warn().Str("module", "render").Str("track_id", p.TrackID).Str("codec", p.MimeType).
					Msg("cannot render video codec, track skipped")
			}
			continue
		}
		for _, nalu := range depack.Depacketize(p.RTP.SequenceNumber, p.RTP.Payload) {
			if len(nalu) == 0 {
				continue
			}
			if err := r.write(a, AnnexB(nalu)); err != nil {
				// Keep draining so the stream never backs up.
				log.Error().Err(err).Str("module", "render").Msg("video write failed")
				failed = true
				break
			}
		}
	}
}

// write drops b once the attachment is detached.
func (r *Renderer) write(a *attachment, b []byte) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	select {
	case <-a.quit:
		return nil
	default:
	}
	_, err := r.w.Write(b)
	return err
}
