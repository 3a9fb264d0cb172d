package coordinator

import (
	"fmt"
	"sync"

	"github.com/velesar/aiwisper-engine/internal/capture"
	"github.com/velesar/aiwisper-engine/internal/denoise"
	"github.com/velesar/aiwisper-engine/internal/diarize"
	"github.com/velesar/aiwisper-engine/internal/dispatch"
	"github.com/velesar/aiwisper-engine/internal/segment"
	"github.com/velesar/aiwisper-engine/internal/transcribe"
	"github.com/velesar/aiwisper-engine/internal/vad"
	"github.com/velesar/aiwisper-engine/internal/voiceprint"
)

const sampleRate = 16000

// Config is the subset of the configuration surface (§6) that shapes
// coordinator strategy selection.
type Config struct {
	Language            string
	ContinuousMode      bool // segmented dictation vs single-shot
	UseVAD              bool
	SegmentIntervalSecs float64
	MaxSegmentSecs      int
	DiarizationMethod   string // "channel" or "neural"
}

// DefaultConfig returns the recognized default recording settings.
func DefaultConfig() Config {
	return Config{
		Language:            "auto",
		ContinuousMode:      false,
		UseVAD:              true,
		SegmentIntervalSecs: 10,
		MaxSegmentSecs:      segment.DefaultMaxSegmentSecs,
		DiarizationMethod:   "channel",
	}
}

// Normalize clamps out-of-range numeric fields and reverts unrecognized
// enum-like strings to their default.
func (c Config) Normalize() Config {
	if c.SegmentIntervalSecs < 1 {
		c.SegmentIntervalSecs = 1
	}
	if c.SegmentIntervalSecs > 300 {
		c.SegmentIntervalSecs = 300
	}
	if c.MaxSegmentSecs < 1 {
		c.MaxSegmentSecs = segment.DefaultMaxSegmentSecs
	}
	if c.MaxSegmentSecs > 300 {
		c.MaxSegmentSecs = 300
	}
	switch c.DiarizationMethod {
	case "channel", "neural":
	default:
		c.DiarizationMethod = "channel"
	}
	if c.Language == "" {
		c.Language = "auto"
	}
	return c
}

// MicFactory constructs a fresh microphone capturer. Exists as a seam
// so tests can inject an in-memory fake rather than opening real
// hardware.
type MicFactory func() (capture.Capturer, error)

// LoopbackFactory constructs a fresh loopback capturer.
type LoopbackFactory func() capture.Capturer

// Coordinator is the top-level façade: it owns the recording state
// machine and dispatches to one of four strategies depending on Config
// and the call made (dictation vs conference). Adapted from
// ai.AudioPipeline.Process/ProcessHighQuality orchestration of
// transcription + diarization behind one entry point.
type Coordinator struct {
	cfg      Config
	sm       stateMachine
	backend  transcribe.Backend
	diarizer diarize.Backend // nil disables neural-diarized conference
	denoiser denoise.Denoiser // nil disables denoising
	detector vad.Detector     // required only when cfg.UseVAD

	newMic      MicFactory
	newLoopback LoopbackFactory

	mu      sync.Mutex
	onText  func(string) // optional UI callback for incremental segmented output

	mic        capture.Capturer
	conference *capture.Conference

	monitor       *segment.Monitor
	dispatcher    *dispatch.Dispatcher
	segCh         chan segment.Audio
	ordered       <-chan string
	forwardDone   chan struct{} // closed once every segment has been handed to the dispatcher
	forwarderDone chan struct{} // closed once every ordered result has been forwarded to emitText
	accum         []string

	voiceExtractor voiceprint.Extractor // optional: enables stable speaker names
	voiceMatcher   *voiceprint.Matcher

	tracker *Tracker
}

// Progress returns a snapshot of every segment's status in the current
// (or most recent) segmented-dictation recording, ordered by
// segment_id (§4.12). Empty outside segmented-dictation mode.
func (c *Coordinator) Progress() []Progress {
	c.mu.Lock()
	t := c.tracker
	c.mu.Unlock()
	if t == nil {
		return nil
	}
	return t.Snapshot()
}

// WithVoicePrints enables persistent speaker recognition for the
// neural-diarized conference strategy: each diarized slice's embedding
// is matched against store, and any match at or above
// voiceprint.ThresholdMin replaces the numeric "[Speaker N]"
// label with the stored name. Passing a nil extractor or store
// disables the feature (the default).
func (c *Coordinator) WithVoicePrints(extractor voiceprint.Extractor, store *voiceprint.Store) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.voiceExtractor = extractor
	if store != nil {
		c.voiceMatcher = voiceprint.NewMatcher(store)
	} else {
		c.voiceMatcher = nil
	}
}

// New constructs a coordinator. diarizer and denoiser may be nil to
// disable neural-diarized conference mode and denoising respectively.
func New(
	cfg Config,
	backend transcribe.Backend,
	diarizer diarize.Backend,
	denoiser denoise.Denoiser,
	detector vad.Detector,
	newMic MicFactory,
	newLoopback LoopbackFactory,
) *Coordinator {
	return &Coordinator{
		cfg:         cfg.Normalize(),
		backend:     backend,
		diarizer:    diarizer,
		denoiser:    denoiser,
		detector:    detector,
		newMic:      newMic,
		newLoopback: newLoopback,
	}
}

// State reports the current recording-state-machine position.
func (c *Coordinator) State() State { return c.sm.current() }

// Amplitude reports the active microphone capturer's current input
// level, for an external collaborator pushing a live level meter
// (§6 "external sink"). Returns 0 outside Recording.
func (c *Coordinator) Amplitude() float32 {
	c.mu.Lock()
	mic := c.mic
	c.mu.Unlock()
	if mic == nil {
		return 0
	}
	return mic.Amplitude()
}

// OnText registers a callback invoked with each incremental segment's
// text as segmented dictation produces it. Not used by single-shot or
// conference strategies, which only return a final string.
func (c *Coordinator) OnText(fn func(string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onText = fn
}

func (c *Coordinator) emitText(text string) {
	c.mu.Lock()
	c.accum = append(c.accum, text)
	cb := c.onText
	c.mu.Unlock()
	if cb != nil {
		cb(text)
	}
}

// errDeviceUnavailable wraps a capturer start failure as the
// DeviceUnavailable error category (§7): recording never enters
// Recording.
func errDeviceUnavailable(err error) error {
	return fmt.Errorf("coordinator: device unavailable: %w", err)
}
