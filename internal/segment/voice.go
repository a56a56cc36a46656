package segment

import (
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/tphakala/voicerec/internal/audiocore"
	"github.com/tphakala/voicerec/internal/conf"
	"github.com/tphakala/voicerec/internal/logger"
	"github.com/tphakala/voicerec/internal/vad"
)

// CloseReason tells why a voice segment ended.
type CloseReason string

const (
	CloseHangover CloseReason = "hangover"
	CloseMaxLen   CloseReason = "max_length"
	CloseShutdown CloseReason = "shutdown"
)

// VoiceConfig holds the frame-count parameters of the voice policy.
type VoiceConfig struct {
	FrameBytes     int
	FrameDuration  time.Duration
	PreRollFrames  int
	HangoverFrames int
	StartK         int
	StartN         int
	MinFrames      int
	MaxFrames      int
	// Rearm keeps the activity window and pre-roll across segments instead of clearing them
	Rearm bool
}

// VoiceConfigFromSettings converts second-based settings into frame counts.
func VoiceConfigFromSettings(s *conf.Settings) VoiceConfig {
	v := &s.Segment.Voice
	return VoiceConfig{
		FrameBytes:     s.FrameBytes(),
		FrameDuration:  s.FrameDuration(),
		PreRollFrames:  v.Frames(v.PreRoll),
		HangoverFrames: v.Frames(v.Hangover),
		StartK:         v.StartK,
		StartN:         v.StartN,
		MinFrames:      v.Frames(v.MinSeconds),
		MaxFrames:      v.Frames(v.MaxSeconds),
		Rearm:          v.Rearm,
	}
}

// Validate checks the frame counts for consistency.
func (c VoiceConfig) Validate() error {
	switch {
	case c.FrameBytes <= 0 || c.FrameBytes%2 != 0:
		return newConfigError("frame size must be a positive even byte count", map[string]any{"frame_bytes": c.FrameBytes})
	case c.StartN < 1 || c.StartK < 1 || c.StartK > c.StartN:
		return newConfigError("start threshold requires 1 <= K <= N", map[string]any{"k": c.StartK, "n": c.StartN})
	case c.PreRollFrames < 0 || c.MinFrames < 0:
		return newConfigError("frame counts must be non-negative", map[string]any{
			"pre_roll": c.PreRollFrames, "min": c.MinFrames,
		})
	case c.HangoverFrames < 1:
		// a segment needs at least one silent frame to end on its own
		return newConfigError("hangover must be at least one frame", map[string]any{"hangover": c.HangoverFrames})
	case c.MaxFrames < 1 || c.MinFrames >= c.MaxFrames:
		return newConfigError("segment length requires 0 <= min < max", map[string]any{"min": c.MinFrames, "max": c.MaxFrames})
	case c.PreRollFrames >= c.MaxFrames:
		return newConfigError("pre-roll must be shorter than max segment length", map[string]any{
			"pre_roll": c.PreRollFrames, "max": c.MaxFrames,
		})
	}
	return nil
}

// voiceState is either idleState or collectingState.
type voiceState interface {
	String() string
}

// idleState waits for the activity window to reach the start threshold.
type idleState struct {
	window  *ActivityWindow
	preroll *PreRollBuffer
}

func (idleState) String() string { return "idle" }

// collectingState accumulates an open segment.
type collectingState struct {
	window     *ActivityWindow
	preroll    *PreRollBuffer
	segment    *Segment
	silenceRun int
}

func (collectingState) String() string { return "collecting" }

// transition is the outcome of feeding one frame to step.
type transition struct {
	next   voiceState
	opened bool
	closed *Segment
	keep   bool
	reason CloseReason
}

// step advances the state machine by one classified frame.
func step(cfg VoiceConfig, st voiceState, frame audiocore.Frame, voiced bool, now time.Time) (transition, error) {
	switch s := st.(type) {
	case idleState:
		s.window.Push(voiced)
		if err := s.preroll.Push(frame); err != nil {
			return transition{next: s}, err
		}
		if s.window.Voiced() < cfg.StartK {
			return transition{next: s}, nil
		}
		seg := &Segment{Start: now, Frames: s.preroll.Snapshot()}
		return transition{
			next:   collectingState{window: s.window, preroll: s.preroll, segment: seg},
			opened: true,
		}, nil

	case collectingState:
		s.window.Push(voiced)
		if cfg.Rearm {
			if err := s.preroll.Push(frame); err != nil {
				return transition{next: s}, err
			}
		}
		s.segment.Frames = append(s.segment.Frames, frame)
		if voiced {
			s.silenceRun = 0
		} else {
			s.silenceRun++
		}

		switch {
		case s.segment.Len() >= cfg.MaxFrames:
			return closeTransition(cfg, s, true, CloseMaxLen), nil
		case s.silenceRun >= cfg.HangoverFrames:
			return closeTransition(cfg, s, s.segment.Len() >= cfg.MinFrames, CloseHangover), nil
		}
		return transition{next: s}, nil
	}
	return transition{next: st}, nil
}

func closeTransition(cfg VoiceConfig, s collectingState, keep bool, reason CloseReason) transition {
	return transition{
		next:   enterIdle(cfg, s.window, s.preroll),
		closed: s.segment,
		keep:   keep,
		reason: reason,
	}
}

func enterIdle(cfg VoiceConfig, window *ActivityWindow, preroll *PreRollBuffer) idleState {
	if !cfg.Rearm {
		window.Reset()
		preroll.Reset()
	}
	return idleState{window: window, preroll: preroll}
}

// VoiceStats counts voice policy outcomes.
type VoiceStats struct {
	Opened         uint64
	Kept           uint64
	Discarded      uint64
	DetectorErrors uint64
}

// VoicePolicy buffers speech segments detected by a voice detector and hands complete
// segments to a SegmentWriter.
type VoicePolicy struct {
	cfg      VoiceConfig
	detector vad.Detector
	writer   SegmentWriter
	clock    Clock
	state    voiceState
	log      logger.Logger

	detectorLogLimiter *rate.Limiter

	opened         atomic.Uint64
	kept           atomic.Uint64
	discarded      atomic.Uint64
	detectorErrors atomic.Uint64
}

// NewVoicePolicy creates a voice-activity policy in the idle state.
func NewVoicePolicy(cfg VoiceConfig, detector vad.Detector, writer SegmentWriter, clock Clock) (*VoicePolicy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if detector == nil || writer == nil {
		return nil, newConfigError("voice policy needs a detector and a writer", nil)
	}
	if clock == nil {
		clock = SystemClock{}
	}

	// the trigger frame always lands in the pre-roll, so keep room for it
	preroll, err := NewPreRollBuffer(max(cfg.PreRollFrames, 1), cfg.FrameBytes)
	if err != nil {
		return nil, err
	}

	return &VoicePolicy{
		cfg:                cfg,
		detector:           detector,
		writer:             writer,
		clock:              clock,
		state:              idleState{window: NewActivityWindow(cfg.StartN), preroll: preroll},
		log:                GetLogger().With(logger.String("policy", "voice")),
		detectorLogLimiter: rate.NewLimiter(rate.Every(10*time.Second), 1),
	}, nil
}

// Process classifies the frame and advances the segmentation state.
func (p *VoicePolicy) Process(frame audiocore.Frame) error {
	voiced, err := p.detector.IsSpeech(frame)
	if err != nil {
		p.detectorErrors.Add(1)
		if p.detectorLogLimiter.Allow() {
			p.log.Warn("voice detector failed, treating frame as silence",
				logger.Error(err),
				logger.Uint64("detector_errors", p.detectorErrors.Load()))
		}
		voiced = false
	}

	t, err := step(p.cfg, p.state, frame, voiced, p.clock.Now())
	p.state = t.next
	if err != nil {
		return err
	}

	if t.opened {
		p.opened.Add(1)
		p.log.Debug("segment opened",
			logger.Int("pre_roll_frames", p.state.(collectingState).segment.Len()))
	}
	if t.closed != nil {
		return p.finish(t.closed, t.keep, t.reason)
	}
	return nil
}

// Close finalizes an open segment at shutdown. The minimum length still applies.
func (p *VoicePolicy) Close() error {
	s, ok := p.state.(collectingState)
	if !ok {
		return nil
	}
	p.state = enterIdle(p.cfg, s.window, s.preroll)
	return p.finish(s.segment, s.segment.Len() >= p.cfg.MinFrames, CloseShutdown)
}

func (p *VoicePolicy) finish(seg *Segment, keep bool, reason CloseReason) error {
	duration := time.Duration(seg.Len()) * p.cfg.FrameDuration
	if !keep {
		p.discarded.Add(1)
		p.log.Debug("segment discarded, shorter than minimum",
			logger.Int("frames", seg.Len()),
			logger.Duration("duration", duration),
			logger.String("reason", string(reason)))
		return nil
	}

	p.kept.Add(1)
	p.log.Debug("segment closed",
		logger.Int("frames", seg.Len()),
		logger.Duration("duration", duration),
		logger.String("reason", string(reason)))
	return p.writer.WriteSegment(seg)
}

// Collecting reports whether a segment is open.
func (p *VoicePolicy) Collecting() bool {
	_, ok := p.state.(collectingState)
	return ok
}

// State returns the current state name.
func (p *VoicePolicy) State() string {
	return p.state.String()
}

// Stats returns a snapshot of the policy counters. Safe to call from any goroutine.
func (p *VoicePolicy) Stats() VoiceStats {
	return VoiceStats{
		Opened:         p.opened.Load(),
		Kept:           p.kept.Load(),
		Discarded:      p.discarded.Load(),
		DetectorErrors: p.detectorErrors.Load(),
	}
}
