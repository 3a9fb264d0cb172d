package coordinator

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velesar/aiwisper-engine/internal/capture"
	"github.com/velesar/aiwisper-engine/internal/diarize"
	"github.com/velesar/aiwisper-engine/internal/voiceprint"
)

// fakeExtractor maps a slice to one of two orthogonal embeddings based
// on its leading sample, so tests can deterministically control which
// diarized slice matches a stored voiceprint.
type fakeExtractor struct{}

func (fakeExtractor) Extract(samples []float32) ([]float32, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("empty")
	}
	if samples[0] > 0.5 {
		return []float32{1, 0}, nil
	}
	return []float32{0, 1}, nil
}

// fakeCapturer is an in-memory Capturer mirroring internal/capture's
// test fake, reused here so the coordinator can be exercised without
// real hardware or subprocesses.
type fakeCapturer struct {
	mu      sync.Mutex
	running bool
	buf     *capture.SharedBuffer
	startErr error
}

func newFakeCapturer(samples []float32) *fakeCapturer {
	buf := capture.NewSharedBuffer()
	buf.Append(samples)
	return &fakeCapturer{buf: buf}
}

func (f *fakeCapturer) Start() error {
	if f.startErr != nil {
		return f.startErr
	}
	f.mu.Lock()
	f.running = true
	f.mu.Unlock()
	return nil
}

func (f *fakeCapturer) Stop() (<-chan capture.CompletionSignal, error) {
	f.mu.Lock()
	f.running = false
	f.mu.Unlock()
	ch := make(chan capture.CompletionSignal, 1)
	ch <- capture.CompletionSignal{Samples: f.buf.All()}
	return ch, nil
}

func (f *fakeCapturer) Amplitude() float32 { return 0 }

func (f *fakeCapturer) IsRecording() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *fakeCapturer) SharedBuffer() *capture.SharedBuffer { return f.buf }

type fakeBackend struct {
	mu    sync.Mutex
	calls int
	fail  bool
}

func (f *fakeBackend) Transcribe(samples []float32, languageHint string) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.fail {
		return "", fmt.Errorf("boom")
	}
	return fmt.Sprintf("text(%d,%s)", len(samples), languageHint), nil
}
func (f *fakeBackend) IsLoaded() bool            { return true }
func (f *fakeBackend) ModelName() (string, bool) { return "fake", true }
func (f *fakeBackend) LoadModel(string) error    { return nil }

type fakeDiarizer struct {
	available bool
	segments  []diarize.Segment
	err       error
}

func (f *fakeDiarizer) IsAvailable() bool      { return f.available }
func (f *fakeDiarizer) LoadModel() error       { return nil }
func (f *fakeDiarizer) Diarize(samples []float32) ([]diarize.Segment, error) {
	return f.segments, f.err
}

func micFactory(samples []float32) MicFactory {
	return func() (capture.Capturer, error) { return newFakeCapturer(samples), nil }
}

func loopbackFactory(samples []float32) LoopbackFactory {
	return func() capture.Capturer { return newFakeCapturer(samples) }
}

func TestStateMachineRejectsIllegalTransitions(t *testing.T) {
	var sm stateMachine
	assert.Equal(t, Idle, sm.current())
	require.Error(t, sm.toProcessing())
	require.NoError(t, sm.toRecording())
	require.Error(t, sm.toRecording())
	require.NoError(t, sm.toProcessing())
	sm.toIdle()
	assert.Equal(t, Idle, sm.current())
}

func TestSingleShotDictationHappyPath(t *testing.T) {
	samples := make([]float32, sampleRate*2)
	c := New(Config{Language: "en"}, &fakeBackend{}, nil, nil, nil, micFactory(samples), loopbackFactory(nil))

	require.NoError(t, c.StartDictation())
	assert.Equal(t, Recording, c.State())

	text, err := c.StopDictation()
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("text(%d,en)", len(samples)), text)
	assert.Equal(t, Idle, c.State())
}

func TestSingleShotDictationTooShort(t *testing.T) {
	samples := make([]float32, sampleRate/2)
	c := New(Config{Language: "en"}, &fakeBackend{}, nil, nil, nil, micFactory(samples), loopbackFactory(nil))

	require.NoError(t, c.StartDictation())
	_, err := c.StopDictation()
	assert.ErrorIs(t, err, ErrTooShort)
	assert.Equal(t, Idle, c.State())
}

func TestStartDictationDeviceUnavailableStaysIdle(t *testing.T) {
	badMic := func() (capture.Capturer, error) { return nil, fmt.Errorf("no input device") }
	c := New(Config{}, &fakeBackend{}, nil, nil, nil, badMic, loopbackFactory(nil))

	err := c.StartDictation()
	require.Error(t, err)
	assert.Equal(t, Idle, c.State())
}

func TestConferenceChannelBased(t *testing.T) {
	micSamples := make([]float32, sampleRate*2)
	loopSamples := make([]float32, sampleRate*3)
	backend := &fakeBackend{}
	c := New(Config{DiarizationMethod: "channel"}, backend, nil, nil, nil, micFactory(micSamples), loopbackFactory(loopSamples))

	require.NoError(t, c.StartConference())
	text, err := c.StopConference()
	require.NoError(t, err)
	assert.Contains(t, text, "[Mic]")
	assert.Contains(t, text, "[Loopback]")
	assert.Equal(t, Idle, c.State())
}

func TestConferenceNeuralDiarizedFallsBackWhenNoSegments(t *testing.T) {
	micSamples := make([]float32, sampleRate*2)
	loopSamples := make([]float32, sampleRate*2)
	backend := &fakeBackend{}
	diarizer := &fakeDiarizer{available: true, segments: nil}
	c := New(Config{DiarizationMethod: "neural"}, backend, diarizer, nil, nil, micFactory(micSamples), loopbackFactory(loopSamples))

	require.NoError(t, c.StartConference())
	text, err := c.StopConference()
	require.NoError(t, err)
	assert.Contains(t, text, "[Mic]")
	assert.Contains(t, text, "[Loopback]")
}

func TestConferenceNeuralDiarizedLabelsSpeakers(t *testing.T) {
	micSamples := make([]float32, sampleRate*2)
	loopSamples := make([]float32, sampleRate*2)
	backend := &fakeBackend{}
	diarizer := &fakeDiarizer{
		available: true,
		segments: []diarize.Segment{
			{StartSec: 0, EndSec: 1, Speaker: 0},
			{StartSec: 1, EndSec: 2, Speaker: 1},
		},
	}
	c := New(Config{DiarizationMethod: "neural"}, backend, diarizer, nil, nil, micFactory(micSamples), loopbackFactory(loopSamples))

	require.NoError(t, c.StartConference())
	text, err := c.StopConference()
	require.NoError(t, err)
	assert.Contains(t, text, "[Speaker 1]")
	assert.Contains(t, text, "[Speaker 2]")
}

func TestConferenceNeuralDiarizedUsesVoicePrintName(t *testing.T) {
	micSamples := make([]float32, sampleRate*2)
	loopSamples := make([]float32, sampleRate*2)
	for i := 0; i < sampleRate; i++ {
		micSamples[i] = 0.9 // first second: speaker whose embedding we'll register
		loopSamples[i] = 0.9 // same level on both channels, so the mean mix stays 0.9
	}
	backend := &fakeBackend{}
	diarizer := &fakeDiarizer{
		available: true,
		segments: []diarize.Segment{
			{StartSec: 0, EndSec: 1, Speaker: 0},
			{StartSec: 1, EndSec: 2, Speaker: 1},
		},
	}
	c := New(Config{DiarizationMethod: "neural"}, backend, diarizer, nil, nil, micFactory(micSamples), loopbackFactory(loopSamples))

	store, err := voiceprint.NewStore(t.TempDir())
	require.NoError(t, err)
	_, err = store.Add("Alice", []float32{1, 0}, "mic")
	require.NoError(t, err)
	c.WithVoicePrints(fakeExtractor{}, store)

	require.NoError(t, c.StartConference())
	text, err := c.StopConference()
	require.NoError(t, err)
	assert.Contains(t, text, "[Alice]")
	assert.Contains(t, text, "[Speaker 2]")
}

func TestSegmentedDictationEmitsAndDrains(t *testing.T) {
	samples := make([]float32, sampleRate*3)
	for i := range samples {
		samples[i] = 0.5
	}
	backend := &fakeBackend{}
	cfg := Config{ContinuousMode: true, UseVAD: false, SegmentIntervalSecs: 1}
	c := New(cfg, backend, nil, nil, nil, micFactory(samples), loopbackFactory(nil))

	require.NoError(t, c.StartDictation())
	time.Sleep(1200 * time.Millisecond)

	text, err := c.StopDictation()
	require.NoError(t, err)
	assert.NotEmpty(t, text)
	assert.Equal(t, Idle, c.State())

	progress := c.Progress()
	require.NotEmpty(t, progress)
	for _, p := range progress {
		assert.Equal(t, SegmentCompleted, p.Status)
	}
}

func TestConfigNormalizeClampsAndResetsEnum(t *testing.T) {
	cfg := Config{SegmentIntervalSecs: 0, MaxSegmentSecs: 10000, DiarizationMethod: "bogus"}.Normalize()
	assert.Equal(t, 1.0, cfg.SegmentIntervalSecs)
	assert.Equal(t, 300, cfg.MaxSegmentSecs)
	assert.Equal(t, "channel", cfg.DiarizationMethod)
	assert.Equal(t, "auto", cfg.Language)
}
