// Package pcm holds the shared sample representation used across the
// capture, segmentation, and transcription packages: mono float32 PCM at
// 16 kHz unless a component explicitly documents a different internal rate.
package pcm

import "math"

// SampleRate is the canonical rate every inter-component interface uses.
const SampleRate = 16000

// Frame is an ordered sequence of samples in [-1, 1], mono, at SampleRate.
type Frame []float32

// DurationMs returns how long the frame plays for, in milliseconds, at the
// given sample rate.
func (f Frame) DurationMs(sampleRate int) int64 {
	if sampleRate <= 0 {
		return 0
	}
	return int64(len(f)) * 1000 / int64(sampleRate)
}

// Clone returns an independent copy of the frame.
func (f Frame) Clone() Frame {
	out := make(Frame, len(f))
	copy(out, f)
	return out
}

// RMS computes the root-mean-square amplitude of samples, used as a live
// volume indicator by the capturers (§3, §4.4).
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}
