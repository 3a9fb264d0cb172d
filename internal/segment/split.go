// Package segment implements the split-finding cascade (C7), the
// segmentation monitor (C8), and the audio chunker (C9). Grounded on
// the teacher's session.ChunkBuffer silence-gap search and forced
// chunk splitting (session/chunk_buffer.go), generalized into the
// three-tier semantic/VAD/forced cascade.
package segment

import "github.com/velesar/aiwisper-engine/internal/vad"

const (
	frameMs          = 30
	minSilenceMs     = 100
	DefaultSemanticSilenceMs = 2000
	DefaultVadSilenceMs      = 500
	DefaultOverlapSecs       = 2
	DefaultMinSegmentSecs    = 1
	DefaultMaxSegmentSecs    = 300
)

// SilenceRegion is a run of consecutive silent frames within a sample
// buffer, in sample-index units.
type SilenceRegion struct {
	Start int
	End   int
}

// DurationMs returns the region's length in milliseconds at sampleRate.
func (s SilenceRegion) DurationMs(sampleRate int) int64 {
	return int64(s.End-s.Start) * 1000 / int64(sampleRate)
}

func (s SilenceRegion) midpoint() int {
	return s.Start + (s.End-s.Start)/2
}

// Config holds the cascade's tunable thresholds (§4.7, §6).
type Config struct {
	SampleRate       int
	SemanticSilenceMs int
	VadSilenceMs      int
	OverlapSecs       float64
	MinSegmentSecs    float64
	MaxSegmentSecs    int
}

// DefaultConfig returns spec defaults at the given sample rate.
func DefaultConfig(sampleRate int) Config {
	return Config{
		SampleRate:        sampleRate,
		SemanticSilenceMs: DefaultSemanticSilenceMs,
		VadSilenceMs:      DefaultVadSilenceMs,
		OverlapSecs:       DefaultOverlapSecs,
		MinSegmentSecs:    DefaultMinSegmentSecs,
		MaxSegmentSecs:    DefaultMaxSegmentSecs,
	}
}

func (c Config) minSegmentSamples() int {
	return int(c.MinSegmentSecs * float64(c.SampleRate))
}

func (c Config) overlapSamples() int {
	return int(c.OverlapSecs * float64(c.SampleRate))
}

// ScanSilences steps through samples in 30 ms frames, tracking
// speech<->silence transitions, and returns every silence run of at
// least 100 ms. A trailing silence run extends to len(samples) (§4.7).
func ScanSilences(samples []float32, detector vad.Detector, sampleRate int) []SilenceRegion {
	frameSize := sampleRate * frameMs / 1000
	if frameSize <= 0 {
		frameSize = 1
	}

	var regions []SilenceRegion
	silenceStart := -1

	pos := 0
	for pos < len(samples) {
		end := pos + frameSize
		var frame []float32
		if end > len(samples) {
			frame = make([]float32, frameSize)
			copy(frame, samples[pos:])
			end = len(samples)
		} else {
			frame = samples[pos:end]
		}

		isSpeech := detector.IsSpeech(frame)

		if isSpeech {
			if silenceStart >= 0 {
				regions = append(regions, SilenceRegion{Start: silenceStart, End: pos})
				silenceStart = -1
			}
		} else if silenceStart < 0 {
			silenceStart = pos
		}

		pos = end
	}

	if silenceStart >= 0 {
		regions = append(regions, SilenceRegion{Start: silenceStart, End: len(samples)})
	}

	minSilenceSamples := sampleRate * minSilenceMs / 1000
	kept := regions[:0]
	for _, r := range regions {
		if r.End-r.Start >= minSilenceSamples {
			kept = append(kept, r)
		}
	}
	return kept
}

// SplitKind distinguishes the cascade tier a SplitDecision came from.
type SplitKind int

const (
	SplitNone SplitKind = iota
	SplitSemantic
	SplitVad
	SplitForced
)

// SplitDecision is find_best_split's result.
type SplitDecision struct {
	Kind           SplitKind
	Sample         int
	OverlapSamples int // only meaningful when Kind == SplitForced
}

// FindBestSplit applies the three-tier cascade within [windowStart,
// windowEnd) (§4.7).
func FindBestSplit(silences []SilenceRegion, windowStart, windowEnd int, cfg Config) SplitDecision {
	if windowEnd-windowStart < cfg.minSegmentSamples() {
		return SplitDecision{Kind: SplitNone}
	}

	exclusionEnd := windowStart + cfg.minSegmentSamples()

	var candidates []SilenceRegion
	for _, s := range silences {
		mid := s.midpoint()
		if mid < exclusionEnd || mid >= windowEnd {
			continue
		}
		candidates = append(candidates, s)
	}

	if best, ok := bestByDuration(candidates, cfg.SampleRate, int64(cfg.SemanticSilenceMs)); ok {
		return SplitDecision{Kind: SplitSemantic, Sample: best.midpoint()}
	}
	if best, ok := bestByDuration(candidates, cfg.SampleRate, int64(cfg.VadSilenceMs)); ok {
		return SplitDecision{Kind: SplitVad, Sample: best.midpoint()}
	}

	return SplitDecision{
		Kind:           SplitForced,
		Sample:         windowEnd,
		OverlapSamples: cfg.overlapSamples(),
	}
}

// bestByDuration picks the candidate with the largest (duration_ms,
// midpoint) among those meeting minDurationMs, lexicographically:
// longest wins, ties broken by the later midpoint (§4.7).
func bestByDuration(candidates []SilenceRegion, sampleRate int, minDurationMs int64) (SilenceRegion, bool) {
	var best SilenceRegion
	var bestDuration int64 = -1
	found := false

	for _, c := range candidates {
		d := c.DurationMs(sampleRate)
		if d < minDurationMs {
			continue
		}
		if !found || d > bestDuration || (d == bestDuration && c.midpoint() > best.midpoint()) {
			best = c
			bestDuration = d
			found = true
		}
	}
	return best, found
}

// ShouldSplitStreaming returns true if elapsedSecs has reached the
// forced cap, or the detector reports a speech end within recent, which
// must cover at least one second of audio (§4.7).
func ShouldSplitStreaming(recent []float32, detector vad.Detector, elapsedSecs float64, cfg Config) bool {
	if elapsedSecs >= float64(cfg.MaxSegmentSecs) {
		return true
	}
	if len(recent) < cfg.SampleRate {
		return false
	}
	return detector.DetectSpeechEnd(recent)
}
