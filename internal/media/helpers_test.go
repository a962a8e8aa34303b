package media

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pion/rtp"
)

var errTrackStopped = errors.New("track stopped")

// fakeTrack feeds packets pushed by the test to ReadRTP.
type fakeTrack struct {
	id      string
	kind    string
	mime    string
	packets chan *rtp.Packet

	stopOnce sync.Once
	stopped  chan struct{}
}

func newFakeTrack(id, kind string) *fakeTrack {
	return &fakeTrack{
		id:      id,
		kind:    kind,
		mime:    MimeTypeH264,
		packets: make(chan *rtp.Packet, 64),
		stopped: make(chan struct{}),
	}
}

func (f *fakeTrack) ID() string       { return f.id }
func (f *fakeTrack) StreamID() string { return "stream" }
func (f *fakeTrack) Kind() string     { return f.kind }
func (f *fakeTrack) MimeType() string { return f.mime }

func (f *fakeTrack) ReadRTP() (*rtp.Packet, error) {
	select {
	case p := <-f.packets:
		return p, nil
	case <-f.stopped:
		return nil, errTrackStopped
	}
}

func (f *fakeTrack) Stop() error {
	f.stopOnce.Do(func() { close(f.stopped) })
	return nil
}

func (f *fakeTrack) isStopped() bool {
	select {
	case <-f.stopped:
		return true
	default:
		return false
	}
}

func (f *fakeTrack) push(seq uint16, payload ...byte) {
	f.packets <- &rtp.Packet{
		Header:  rtp.Header{SequenceNumber: seq},
		Payload: payload,
	}
}

// syncBuffer is a bytes.Buffer safe for the renderer goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.buf.Bytes()...)
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
