package vad

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func silence(n int) []float32 { return make([]float32, n) }

func tone(n int, amplitude float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		if i%2 == 0 {
			out[i] = amplitude
		} else {
			out[i] = -amplitude
		}
	}
	return out
}

func TestEnergyDetectorRejectsWrongFrameLength(t *testing.T) {
	d := NewEnergyDetector(DefaultEnergyConfig())
	assert.False(t, d.IsSpeech(make([]float32, 100)))
}

func TestEnergyDetectorClassifiesLoudAsSpeech(t *testing.T) {
	d := NewEnergyDetector(DefaultEnergyConfig())
	// Warm up the adaptive baseline on silence first.
	for i := 0; i < 5; i++ {
		d.IsSpeech(silence(EnergyFrameSamples))
	}
	require.True(t, d.IsSpeech(tone(EnergyFrameSamples, 0.8)))
}

func TestEnergyDetectorDetectSpeechEndRequiresTrailingSilence(t *testing.T) {
	d := NewEnergyDetector(EnergyConfig{SampleRate: 16000, BaseThreshold: 0.005, Aggressiveness: AggressivenessModerate, SilenceThresholdMs: 300})

	// 10 speech frames then 20 silence frames (20*30ms = 600ms >= 300ms).
	var recent []float32
	for i := 0; i < 10; i++ {
		recent = append(recent, tone(EnergyFrameSamples, 0.8)...)
	}
	for i := 0; i < 20; i++ {
		recent = append(recent, silence(EnergyFrameSamples)...)
	}
	assert.True(t, d.DetectSpeechEnd(recent))
}

func TestEnergyDetectorDetectSpeechEndFalseWithoutSpeech(t *testing.T) {
	d := NewEnergyDetector(DefaultEnergyConfig())
	recent := silence(EnergyFrameSamples * 50)
	assert.False(t, d.DetectSpeechEnd(recent))
}

func TestEnergyDetectorReset(t *testing.T) {
	d := NewEnergyDetector(DefaultEnergyConfig())
	d.IsSpeech(tone(EnergyFrameSamples, 0.9))
	d.Reset()
	assert.False(t, d.seen)
}

// fakeSileroSession classifies a chunk as speech purely from its energy,
// letting neural-detector tests run without a real ONNX model file.
type fakeSileroSession struct {
	threshold float32
}

func (f *fakeSileroSession) runSilero(input []float32, state []float32, sampleRate int) (float32, []float32, error) {
	var sum float32
	for _, s := range input {
		sum += s * s
	}
	var prob float32
	if sum > 0 {
		prob = 0.9
	} else {
		prob = 0.05
	}
	return prob, state, nil
}

func (f *fakeSileroSession) destroy() {}

func TestNeuralDetectorIsSpeechAnyChunkOverThreshold(t *testing.T) {
	d := newNeuralDetector(DefaultNeuralConfig(), &fakeSileroSession{threshold: 0.5})

	frame := append(silence(NeuralChunkSamples), tone(NeuralChunkSamples, 0.5)...)
	assert.True(t, d.IsSpeech(frame))
}

func TestNeuralDetectorIsSpeechFalseForSilence(t *testing.T) {
	d := newNeuralDetector(DefaultNeuralConfig(), &fakeSileroSession{threshold: 0.5})
	assert.False(t, d.IsSpeech(silence(NeuralChunkSamples*3)))
}

func TestNeuralDetectorDetectSpeechEnd(t *testing.T) {
	cfg := DefaultNeuralConfig()
	cfg.SilenceThresholdMs = 500
	d := newNeuralDetector(cfg, &fakeSileroSession{threshold: 0.5})

	var recent []float32
	recent = append(recent, tone(NeuralChunkSamples*3, 0.5)...)
	// 500ms / (512/16000*1000 = 32ms) = 15.6, truncated to 15 chunks of silence required.
	recent = append(recent, silence(NeuralChunkSamples*20)...)

	assert.True(t, d.DetectSpeechEnd(recent))
}

func TestNeuralDetectorReset(t *testing.T) {
	d := newNeuralDetector(DefaultNeuralConfig(), &fakeSileroSession{})
	d.IsSpeech(tone(NeuralChunkSamples, 0.5))
	d.Reset()
	for _, v := range d.state {
		assert.Zero(t, v)
	}
	for _, v := range d.context {
		assert.Zero(t, v)
	}
}

func TestNewNeuralDetectorRejectsBadSampleRate(t *testing.T) {
	_, err := NewNeuralDetector(NeuralConfig{SampleRate: 44100, ModelPath: "x"})
	require.Error(t, err)
}
