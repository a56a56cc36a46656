package segment

import (
	"encoding/binary"
	"errors"
	"time"

	"github.com/tphakala/voicerec/internal/audiocore"
)

// fakeClock returns a settable time.
type fakeClock struct{ now time.Time }

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 17, 9, 30, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// markerDetector treats a frame as voiced when its first byte is 1.
type markerDetector struct{}

func (markerDetector) IsSpeech(frame []byte) (bool, error) {
	return len(frame) > 0 && frame[0] == 1, nil
}

// failingDetector always errors.
type failingDetector struct{}

func (failingDetector) IsSpeech([]byte) (bool, error) {
	return false, errors.New("detector broken")
}

// memorySegments collects written segments.
type memorySegments struct {
	segments []*Segment
	err      error
}

func (m *memorySegments) WriteSegment(seg *Segment) error {
	if m.err != nil {
		return m.err
	}
	m.segments = append(m.segments, seg)
	return nil
}

// streamRecord is one segment seen by memoryStream.
type streamRecord struct {
	start  time.Time
	data   []byte
	closed bool
}

// memoryStream records Open, Write and Close calls.
type memoryStream struct {
	records  []*streamRecord
	current  *streamRecord
	closes   int
	writeErr error
}

func (m *memoryStream) Open(start time.Time) error {
	m.current = &streamRecord{start: start}
	m.records = append(m.records, m.current)
	return nil
}

func (m *memoryStream) Write(pcm []byte) error {
	if m.writeErr != nil {
		m.current = nil
		return m.writeErr
	}
	m.current.data = append(m.current.data, pcm...)
	return nil
}

func (m *memoryStream) Close() error {
	if m.current == nil {
		return nil
	}
	m.closes++
	m.current.closed = true
	m.current = nil
	return nil
}

const testFrameBytes = 960 // 30 ms at 16 kHz mono

// voiceFrame builds a frame carrying a voiced marker and a sequence number.
func voiceFrame(voiced bool, seq int) audiocore.Frame {
	f := make(audiocore.Frame, testFrameBytes)
	if voiced {
		f[0] = 1
	}
	binary.LittleEndian.PutUint32(f[4:], uint32(seq))
	return f
}

func frameSeq(f audiocore.Frame) int {
	return int(binary.LittleEndian.Uint32(f[4:]))
}

// feeder numbers frames as they are fed to a policy.
type feeder struct {
	policy Policy
	clock  *fakeClock
	seq    int
	step   time.Duration
}

func (f *feeder) feed(voiced bool, n int) error {
	for range n {
		f.seq++
		if err := f.policy.Process(voiceFrame(voiced, f.seq)); err != nil {
			return err
		}
		f.clock.Advance(f.step)
	}
	return nil
}
