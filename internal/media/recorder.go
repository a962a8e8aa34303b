package media

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"camfeed/native/internal/domain"
)

// Artifact is a finalized recording.
type Artifact struct {
	Name      string
	MimeType  string
	Data      []byte
	Chunks    int
	StartedAt time.Time
	Duration  time.Duration
}

// ArtifactSink receives finalized recordings.
type ArtifactSink interface {
	Save(a *Artifact) error
}

// Recorder accumulates the video of a stream while recording is active.
// Its lifecycle is independent of the session: a stream that stops while
// recording only ends the input, the recording stays active until
// StopRecording.
type Recorder struct {
	sink ArtifactSink
	now  func() time.Time

	// opMu serializes StartRecording and StopRecording.
	opMu sync.Mutex

	mu        sync.Mutex
	active    bool
	buf       Buffer
	sub       *Subscription
	done      chan struct{}
	startedAt time.Time
}

// NewRecorder creates a recorder handing artifacts to sink.
func NewRecorder(sink ArtifactSink) *Recorder {
	return &Recorder{sink: sink, now: time.Now}
}

// StartRecording begins accumulating chunks from s.
func (r *Recorder) StartRecording(s *Stream) error {
	if s == nil {
		log.Error().Str("module", "record").Msg("no stream available to record")
		return domain.ErrNoStream
	}

	r.opMu.Lock()
	defer r.opMu.Unlock()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active {
		return domain.ErrRecording
	}

	r.active = true
	r.buf.Reset()
	r.startedAt = r.now()
	r.sub = s.Subscribe(subscriptionBuffer)
	r.done = make(chan struct{})
	go r.collect(r.sub, r.done)

	log.Info().Str("module", "record").Str("stream_id", s.ID()).Msg("recording started")
	return nil
}

// Recording reports whether recording is active.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Chunks returns the number of chunks accumulated so far.
func (r *Recorder) Chunks() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buf.Len()
}

// StopRecording finalizes the buffer into an artifact and hands it to the
// sink. It returns nil, nil when no recording is active.
func (r *Recorder) StopRecording() (*Artifact, error) {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	r.mu.Lock()
	if !r.active {
		r.mu.Unlock()
		return nil, nil
	}
	sub, done := r.sub, r.done
	r.mu.Unlock()

	sub.Cancel()
	<-done

	r.mu.Lock()
	stoppedAt := r.now()
	a := &Artifact{
		Name:      "recorded-video-" + r.startedAt.Format("20060102-150405") + ".h264",
		MimeType:  "video/h264",
		Data:      r.buf.Bytes(),
		Chunks:    r.buf.Len(),
		StartedAt: r.startedAt,
		Duration:  stoppedAt.Sub(r.startedAt),
	}
	r.buf.Reset()
	r.active = false
	r.sub, r.done = nil, nil
	r.mu.Unlock()

	log.Info().
		Str("module", "record").
		Int("chunks", a.Chunks).
		Int("bytes", len(a.Data)).
		Dur("duration", a.Duration).
		Msg("recording stopped")

	if r.sink != nil {
		if err := r.sink.Save(a); err != nil {
			return a, fmt.Errorf("save %s: %w", a.Name, err)
		}
	}
	return a, nil
}

func (r *Recorder) collect(sub *Subscription, done chan struct{}) {
	defer close(done)

	depack := NewH264Depacketizer()
	skipped := make(map[string]bool)
	for p := range sub.C {
		if p.Kind != "video" {
			continue
		}
		if !IsH264(p.MimeType) {
			if !skipped[p.TrackID] {
				skipped[p.TrackID] = true
				log.Warn().Str("module", "record").Str("track_id", p.TrackID).Str("codec", p.MimeType).
					Msg("cannot record video codec, track skipped")
			}
			continue
		}
		nalus := depack.Depacketize(p.RTP.SequenceNumber, p.RTP.Payload)
		if len(nalus) == 0 {
			continue
		}
		r.mu.Lock()
		for _, nalu := range nalus {
			r.buf.Append(AnnexB(nalu))
		}
		r.mu.Unlock()
	}
}
