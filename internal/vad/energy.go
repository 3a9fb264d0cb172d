package vad

import "math"

// EnergyFrameSamples is the fixed 30 ms frame size at 16 kHz (§4.2).
const EnergyFrameSamples = 480

// Aggressiveness mirrors the 0-3 "aggressive mode" dial common to
// energy/GMM voice activity detectors (webrtcvad-style): higher values
// raise the classification threshold, trading recall for fewer false
// speech triggers on noisy input.
type Aggressiveness int

const (
	AggressivenessLow Aggressiveness = iota
	AggressivenessModerate
	AggressivenessHigh
	AggressivenessVeryHigh
)

func (a Aggressiveness) multiplier() float64 {
	switch a {
	case AggressivenessModerate:
		return 1.5
	case AggressivenessHigh:
		return 2.25
	case AggressivenessVeryHigh:
		return 3.0
	default:
		return 1.0
	}
}

// EnergyConfig configures the energy-based detector.
type EnergyConfig struct {
	SampleRate        int
	Aggressiveness    Aggressiveness
	BaseThreshold     float64 // RMS floor below which a frame is never speech
	SilenceThresholdMs int    // used by DetectSpeechEnd, default 1000
}

// DefaultEnergyConfig returns the spec defaults (§4.2, §4.7).
func DefaultEnergyConfig() EnergyConfig {
	return EnergyConfig{
		SampleRate:         16000,
		Aggressiveness:     AggressivenessModerate,
		BaseThreshold:      0.005,
		SilenceThresholdMs: 1000,
	}
}

// EnergyDetector classifies 30 ms frames by RMS energy against an adaptive
// threshold, the way session.DetectSpeechRegions does, with
// an aggressiveness dial standing in for "an externally provided
// energy/classification model in aggressive mode" (§4.2).
//
// Not safe for concurrent use — see package doc.
type EnergyDetector struct {
	cfg EnergyConfig
	// runningAvg tracks a slow-moving estimate of ambient energy so the
	// adaptive threshold follows the room rather than a fixed constant.
	runningAvg float64
	seen       bool
}

// NewEnergyDetector constructs an energy-based detector.
func NewEnergyDetector(cfg EnergyConfig) *EnergyDetector {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.BaseThreshold <= 0 {
		cfg.BaseThreshold = 0.005
	}
	if cfg.SilenceThresholdMs <= 0 {
		cfg.SilenceThresholdMs = 1000
	}
	return &EnergyDetector{cfg: cfg}
}

// IsSpeech classifies a single 30 ms (480-sample) frame. Any other length
// returns false — the only failure mode this detector has (§4.2).
func (d *EnergyDetector) IsSpeech(frame []float32) bool {
	if len(frame) != EnergyFrameSamples {
		return false
	}
	return d.classify(frame)
}

func (d *EnergyDetector) classify(frame []float32) bool {
	energy := rms(frame)

	if !d.seen {
		d.runningAvg = energy
		d.seen = true
	} else {
		// Exponential moving average, slow enough to track room noise but
		// not individual frames.
		d.runningAvg = d.runningAvg*0.95 + energy*0.05
	}

	threshold := d.cfg.BaseThreshold * d.cfg.Aggressiveness.multiplier()
	if adaptive := d.runningAvg * 0.2 * d.cfg.Aggressiveness.multiplier(); adaptive > threshold {
		threshold = adaptive
	}
	return energy >= threshold
}

// DetectSpeechEnd implements the shared newest-to-oldest scan over 30 ms
// frames (§4.2, §4.7).
func (d *EnergyDetector) DetectSpeechEnd(recent []float32) bool {
	frames := classifyFrames(recent, EnergyFrameSamples, d.classify)
	silenceFrames := d.cfg.SilenceThresholdMs / 30
	return speechEndFromFrames(frames, silenceFrames)
}

// Reset discards the adaptive energy baseline.
func (d *EnergyDetector) Reset() {
	d.runningAvg = 0
	d.seen = false
}

func rms(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}
