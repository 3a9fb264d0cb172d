package capture

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"

	"github.com/velesar/aiwisper-engine/pkg/resample"
)

// Microphone captures the host's default input device, downmixes to
// mono, and resamples to 16 kHz via a windowed-sinc resampler (§4.4).
// Adapted from startMicrophoneCapture device callback.
type Microphone struct {
	ctx *malgo.AllocatedContext

	mu      sync.Mutex
	device  *malgo.Device
	running atomic.Bool

	buffer    *SharedBuffer
	amplitude atomicAmplitude
	resampler *resample.Sinc

	completionCh chan CompletionSignal
	stopCh       chan struct{}
}

// NewMicrophone opens a malgo context. The context is shared for the
// lifetime of the capturer; call Close when done.
func NewMicrophone() (*Microphone, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("capture: init audio context: %w", err)
	}
	return &Microphone{
		ctx:    ctx,
		buffer: newSharedBuffer(),
	}, nil
}

// Start opens the default input device and begins streaming (§4.4).
func (m *Microphone) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running.Load() {
		return fmt.Errorf("capture: microphone already running")
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = 0 // host default channel count
	deviceConfig.SampleRate = 0       // host default sample rate

	var nativeRate int
	var channels int
	var resamplerOnce sync.Once

	onRecvFrames := func(pOutputSample, pInputSamples []byte, framecount uint32) {
		if !m.running.Load() {
			return
		}

		resamplerOnce.Do(func() {
			nativeRate = int(deviceConfig.SampleRate)
			if nativeRate == 0 {
				nativeRate = 48000
			}
			channels = int(deviceConfig.Capture.Channels)
			if channels == 0 {
				channels = 1
			}
			m.resampler, _ = resample.NewSinc(nativeRate, 16000, 256, 0.95)
		})

		sampleCount := int(framecount) * channels
		if len(pInputSamples) != sampleCount*4 {
			return
		}

		raw := bytesToFloat32(pInputSamples, sampleCount)
		mono := downmix(raw, channels)

		rms := float64(0)
		for _, s := range mono {
			rms += float64(s) * float64(s)
		}
		if len(mono) > 0 {
			rms = math.Sqrt(rms / float64(len(mono)))
		}
		m.amplitude.store(amplitudeFromRMS(rms))

		resampled := mono
		if m.resampler != nil {
			resampled = m.resampler.Resample(mono)
		}
		m.buffer.append(resampled)
	}

	var err error
	m.device, err = malgo.InitDevice(m.ctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: onRecvFrames,
	})
	if err != nil {
		return fmt.Errorf("capture: init microphone device: %w", err)
	}
	if err := m.device.Start(); err != nil {
		return fmt.Errorf("capture: start microphone device: %w", err)
	}

	m.buffer = newSharedBuffer()
	m.completionCh = make(chan CompletionSignal, 1)
	m.stopCh = make(chan struct{})
	m.running.Store(true)
	return nil
}

// Stop clears the recording flag and returns a channel that receives a
// single completion signal once the device callback has drained (§4.4).
func (m *Microphone) Stop() (<-chan CompletionSignal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running.Load() {
		return nil, fmt.Errorf("capture: microphone not running")
	}
	m.running.Store(false)
	m.amplitude.store(0)

	if m.device != nil {
		m.device.Uninit()
		m.device = nil
	}

	ch := m.completionCh
	samples := m.buffer.All()
	go func() {
		ch <- CompletionSignal{Samples: samples}
	}()
	return ch, nil
}

// Amplitude returns the last computed RMS-based amplitude, wait-free.
func (m *Microphone) Amplitude() float32 { return m.amplitude.load() }

// IsRecording reports whether the capturer is actively streaming.
func (m *Microphone) IsRecording() bool { return m.running.Load() }

// SharedBuffer returns the append-only buffer the Segmentation Monitor
// reads from.
func (m *Microphone) SharedBuffer() *SharedBuffer { return m.buffer }

// Close releases the underlying audio context. Per §4.4, the recording
// flag is cleared unconditionally on drop so any background readers
// terminate even if Stop was never called.
func (m *Microphone) Close() {
	m.running.Store(false)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.device != nil {
		m.device.Uninit()
		m.device = nil
	}
	if m.ctx != nil {
		m.ctx.Uninit()
		m.ctx.Free()
		m.ctx = nil
	}
}

func downmix(samples []float32, channels int) []float32 {
	if channels <= 1 {
		return samples
	}
	frames := len(samples) / channels
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for ch := 0; ch < channels; ch++ {
			sum += samples[i*channels+ch]
		}
		out[i] = sum / float32(channels)
	}
	return out
}

func bytesToFloat32(b []byte, count int) []float32 {
	out := make([]float32, count)
	for i := 0; i < count; i++ {
		bits := uint32(b[i*4]) | uint32(b[i*4+1])<<8 | uint32(b[i*4+2])<<16 | uint32(b[i*4+3])<<24
		out[i] = float32frombits(bits)
	}
	return out
}
