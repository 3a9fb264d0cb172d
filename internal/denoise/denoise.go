// Package denoise implements the optional noise-suppression stage (C3):
// a neural denoiser running at a fixed 48 kHz internal rate with
// resampling in and out of the engine's 16 kHz canonical rate, and a
// pass-through variant for when denoising is disabled or unavailable.
package denoise

import (
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

const (
	internalRate = 48000
	frameSamples = 480 // 10ms at 48kHz
)

// Denoiser suppresses background noise in 16 kHz mono audio.
type Denoiser interface {
	Denoise(samples []float32) ([]float32, error)
	Reset()
}

// PassThrough returns a clone of its input unchanged; used when denoising
// is disabled, and as the safe fallback when a neural denoiser's
// resampler fails to construct (§4.3: "silent fallback to the original
// samples recommended in callers when construction fails").
type PassThrough struct{}

func (PassThrough) Denoise(samples []float32) ([]float32, error) {
	out := make([]float32, len(samples))
	copy(out, samples)
	return out, nil
}

func (PassThrough) Reset() {}

// onnxSession is the seam between Neural and the ONNX runtime.
type onnxSession interface {
	runFrame(frame []float32) ([]float32, error)
}

var (
	onnxInitOnce sync.Once
	onnxInitErr  error
)

func ensureONNXRuntime() error {
	onnxInitOnce.Do(func() {
		if libPath := os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH"); libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		onnxInitErr = ort.InitializeEnvironment()
	})
	return onnxInitErr
}

type ortDenoiseSession struct {
	session *ort.DynamicAdvancedSession
	state   []float32
}

func newOrtDenoiseSession(modelPath string, stateSize int) (*ortDenoiseSession, error) {
	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("denoise: model not found: %s", modelPath)
	}
	if err := ensureONNXRuntime(); err != nil {
		return nil, fmt.Errorf("denoise: failed to initialize onnxruntime: %w", err)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("denoise: session options: %w", err)
	}
	defer options.Destroy()

	session, err := ort.NewDynamicAdvancedSession(
		modelPath,
		[]string{"input_frame", "state"},
		[]string{"output_frame", "stateN"},
		options,
	)
	if err != nil {
		return nil, fmt.Errorf("denoise: onnx session: %w", err)
	}

	return &ortDenoiseSession{session: session, state: make([]float32, stateSize)}, nil
}

func (s *ortDenoiseSession) runFrame(frame []float32) ([]float32, error) {
	inTensor, err := ort.NewTensor(ort.NewShape(1, int64(len(frame))), frame)
	if err != nil {
		return nil, fmt.Errorf("denoise: input tensor: %w", err)
	}
	defer inTensor.Destroy()

	stateTensor, err := ort.NewTensor(ort.NewShape(int64(len(s.state))), s.state)
	if err != nil {
		return nil, fmt.Errorf("denoise: state tensor: %w", err)
	}
	defer stateTensor.Destroy()

	outputs := []ort.Value{nil, nil}
	if err := s.session.Run([]ort.Value{inTensor, stateTensor}, outputs); err != nil {
		return nil, fmt.Errorf("denoise: inference: %w", err)
	}
	defer func() {
		for _, o := range outputs {
			if o != nil {
				o.Destroy()
			}
		}
	}()

	outFrame := outputs[0].(*ort.Tensor[float32]).GetData()
	nextState := outputs[1].(*ort.Tensor[float32]).GetData()
	copy(s.state, nextState)

	result := make([]float32, len(outFrame))
	copy(result, outFrame)
	return result, nil
}

func (s *ortDenoiseSession) destroy() {
	if s.session != nil {
		s.session.Destroy()
		s.session = nil
	}
}

// Neural denoises at a fixed internal 48 kHz rate on 10 ms (480-sample)
// frames, resampling 16 kHz <-> 48 kHz around the inference loop (§4.3).
type Neural struct {
	session onnxSession
}

// NewNeural constructs a neural denoiser from an ONNX model. Resampler
// construction here cannot itself fail (resampleFFT has no fallible
// construction step, unlike a windowed-sinc table build); model loading
// is the only fallible part, matching §4.3's failure mode.
func NewNeural(modelPath string, stateSize int) (*Neural, error) {
	session, err := newOrtDenoiseSession(modelPath, stateSize)
	if err != nil {
		return nil, err
	}
	return &Neural{session: session}, nil
}

func newNeuralWithSession(session onnxSession) *Neural {
	return &Neural{session: session}
}

// Denoise resamples samples (16kHz) to 48kHz, runs the model frame by
// frame, and resamples the result back to 16kHz. The result is then
// truncated or zero-padded to exactly the input length (§8 "Denoiser
// length").
func (n *Neural) Denoise(samples []float32) ([]float32, error) {
	if len(samples) == 0 {
		return nil, nil
	}

	up := toFloat32(resampleFFT(toFloat64(samples), 16000, internalRate))

	denoisedUp := make([]float32, 0, len(up))
	for pos := 0; pos < len(up); pos += frameSamples {
		end := pos + frameSamples
		var frame []float32
		if end > len(up) {
			frame = make([]float32, frameSamples)
			copy(frame, up[pos:])
		} else {
			frame = up[pos:end]
		}

		out, err := n.session.runFrame(frame)
		if err != nil {
			return nil, fmt.Errorf("denoise: %w", err)
		}
		if end > len(up) {
			out = out[:len(up)-pos]
		}
		denoisedUp = append(denoisedUp, out...)
	}

	down := toFloat32(resampleFFT(toFloat64(denoisedUp), internalRate, 16000))

	if len(down) > len(samples) {
		down = down[:len(samples)]
	} else if len(down) < len(samples) {
		padded := make([]float32, len(samples))
		copy(padded, down)
		down = padded
	}
	return down, nil
}

// Reset clears the inference state, if the backing session supports it.
func (n *Neural) Reset() {
	if s, ok := n.session.(*ortDenoiseSession); ok {
		for i := range s.state {
			s.state[i] = 0
		}
	}
}

// Close releases the underlying ONNX session.
func (n *Neural) Close() {
	if s, ok := n.session.(*ortDenoiseSession); ok {
		s.destroy()
	}
}
