package capture

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSharedBufferAppendAndSince(t *testing.T) {
	b := newSharedBuffer()
	b.append([]float32{1, 2, 3})
	b.append([]float32{4, 5})

	got, mark := b.Since(0)
	assert.Equal(t, []float32{1, 2, 3, 4, 5}, got)
	assert.Equal(t, 5, mark)

	got, mark = b.Since(3)
	assert.Equal(t, []float32{4, 5}, got)
	assert.Equal(t, 5, mark)

	got, _ = b.Since(5)
	assert.Empty(t, got)
}

func TestSharedBufferAllIsACopy(t *testing.T) {
	b := newSharedBuffer()
	b.append([]float32{1, 2, 3})
	all := b.All()
	all[0] = 99
	again := b.All()
	assert.Equal(t, float32(1), again[0])
}

func TestAtomicAmplitudeRoundTrip(t *testing.T) {
	var a atomicAmplitude
	a.store(0.42)
	assert.InDelta(t, 0.42, a.load(), 1e-6)
}

// fakeCapturer is a minimal in-memory Capturer used to test Conference's
// start/stop orchestration without real audio hardware or subprocesses.
type fakeCapturer struct {
	mu      sync.Mutex
	running bool
	samples []float32
	startErr error
}

func newFakeCapturer(samples []float32) *fakeCapturer {
	return &fakeCapturer{samples: samples}
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

func (f *fakeCapturer) Stop() (<-chan CompletionSignal, error) {
	f.mu.Lock()
	f.running = false
	f.mu.Unlock()
	ch := make(chan CompletionSignal, 1)
	ch <- CompletionSignal{Samples: f.samples}
	return ch, nil
}

func (f *fakeCapturer) Amplitude() float32 { return 0 }

func (f *fakeCapturer) IsRecording() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *fakeCapturer) SharedBuffer() *SharedBuffer {
	b := newSharedBuffer()
	b.append(f.samples)
	return b
}

func TestConferenceStartStop(t *testing.T) {
	mic := newFakeCapturer([]float32{1, 2, 3})
	loop := newFakeCapturer([]float32{4, 5})
	conf := NewConference(mic, loop)

	require.NoError(t, conf.StartConference())
	assert.True(t, mic.IsRecording())
	assert.True(t, loop.IsRecording())

	result, err := conf.StopConference()
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3}, result.MicSamples)
	assert.Equal(t, []float32{4, 5}, result.LoopbackSamples)
	assert.False(t, mic.IsRecording())
	assert.False(t, loop.IsRecording())
}

func TestS16leToFloat32(t *testing.T) {
	// 0x0000 -> 0, 0x7FFF -> near 1, 0x8000 (-32768) -> -1
	raw := []byte{0x00, 0x00, 0xFF, 0x7F, 0x00, 0x80}
	out := s16leToFloat32(raw)
	require.Len(t, out, 3)
	assert.InDelta(t, 0, out[0], 1e-6)
	assert.InDelta(t, 1, out[1], 1e-3)
	assert.InDelta(t, -1, out[2], 1e-6)
}

func TestDownmixStereoToMono(t *testing.T) {
	stereo := []float32{1, 3, 2, 4} // two frames, L/R
	mono := downmix(stereo, 2)
	assert.Equal(t, []float32{2, 3}, mono)
}

func TestDownmixMonoPassthrough(t *testing.T) {
	mono := []float32{1, 2, 3}
	out := downmix(mono, 1)
	assert.Equal(t, mono, out)
}
