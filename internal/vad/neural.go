package vad

import (
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// NeuralChunkSamples is the Silero ONNX graph's native window at 16 kHz
// (§4.2).
const NeuralChunkSamples = 512

const (
	lstmStateSize = 2 * 1 * 128
	contextSize16k = 64
)

// inferenceSession is the seam between NeuralDetector and the ONNX
// runtime, so tests can substitute a fake without a model file on disk.
// runSilero mirrors SileroVAD.ProcessChunk exactly: input is
// context+chunk samples, state is the LSTM hidden/cell state, sr is the
// sample rate; it returns the speech probability and the updated state.
type inferenceSession interface {
	runSilero(input []float32, state []float32, sampleRate int) (prob float32, nextState []float32, err error)
	destroy()
}

var (
	onnxInitOnce sync.Once
	onnxInitErr  error
)

// ensureONNXRuntime initializes the shared ONNX runtime exactly once per
// process, honoring ONNXRUNTIME_SHARED_LIBRARY_PATH the way the teacher's
// ai.initONNXRuntime does for its GigaAM/Silero engines.
func ensureONNXRuntime() error {
	onnxInitOnce.Do(func() {
		if libPath := os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH"); libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		onnxInitErr = ort.InitializeEnvironment()
	})
	return onnxInitErr
}

type ortSileroSession struct {
	session *ort.DynamicAdvancedSession
}

func newOrtSileroSession(modelPath string) (*ortSileroSession, error) {
	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("vad: silero model not found: %s", modelPath)
	}
	if err := ensureONNXRuntime(); err != nil {
		return nil, fmt.Errorf("vad: failed to initialize onnxruntime: %w", err)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("vad: failed to create session options: %w", err)
	}
	defer options.Destroy()

	session, err := ort.NewDynamicAdvancedSession(
		modelPath,
		[]string{"input", "state", "sr"},
		[]string{"output", "stateN"},
		options,
	)
	if err != nil {
		return nil, fmt.Errorf("vad: failed to create onnx session: %w", err)
	}
	return &ortSileroSession{session: session}, nil
}

func (s *ortSileroSession) runSilero(input []float32, state []float32, sampleRate int) (float32, []float32, error) {
	batch := int64(1)
	inputTensor, err := ort.NewTensor(ort.NewShape(batch, int64(len(input))), input)
	if err != nil {
		return 0, nil, fmt.Errorf("vad: input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	stateTensor, err := ort.NewTensor(ort.NewShape(2, batch, 128), state)
	if err != nil {
		return 0, nil, fmt.Errorf("vad: state tensor: %w", err)
	}
	defer stateTensor.Destroy()

	srTensor, err := ort.NewTensor(ort.NewShape(1), []int64{int64(sampleRate)})
	if err != nil {
		return 0, nil, fmt.Errorf("vad: sr tensor: %w", err)
	}
	defer srTensor.Destroy()

	outputs := []ort.Value{nil, nil}
	if err := s.session.Run([]ort.Value{inputTensor, stateTensor, srTensor}, outputs); err != nil {
		return 0, nil, fmt.Errorf("vad: inference failed: %w", err)
	}
	defer func() {
		for _, o := range outputs {
			if o != nil {
				o.Destroy()
			}
		}
	}()

	prob := outputs[0].(*ort.Tensor[float32]).GetData()
	nextState := outputs[1].(*ort.Tensor[float32]).GetData()

	out := make([]float32, len(nextState))
	copy(out, nextState)

	if len(prob) == 0 {
		return 0, out, nil
	}
	return prob[0], out, nil
}

func (s *ortSileroSession) destroy() {
	if s.session != nil {
		s.session.Destroy()
		s.session = nil
	}
}

// NeuralConfig configures the neural (Silero) detector.
type NeuralConfig struct {
	ModelPath          string
	SampleRate         int     // 8000 or 16000
	Threshold          float32 // default 0.5 (§6)
	SilenceThresholdMs int     // default 1000
}

// DefaultNeuralConfig returns spec defaults.
func DefaultNeuralConfig() NeuralConfig {
	return NeuralConfig{
		SampleRate:         16000,
		Threshold:          0.5,
		SilenceThresholdMs: 1000,
	}
}

// NeuralDetector wraps a Silero-style ONNX VAD graph: 512-sample chunks at
// 16 kHz, LSTM hidden state carried between calls for streaming use
// (§4.2). Not safe for concurrent use.
type NeuralDetector struct {
	cfg     NeuralConfig
	session inferenceSession
	state   []float32
	context []float32
}

// NewNeuralDetector loads the ONNX model at cfg.ModelPath and constructs a
// detector. Construct it on the goroutine that will use it.
func NewNeuralDetector(cfg NeuralConfig) (*NeuralDetector, error) {
	if cfg.SampleRate != 8000 && cfg.SampleRate != 16000 {
		return nil, fmt.Errorf("vad: sample rate must be 8000 or 16000, got %d", cfg.SampleRate)
	}
	session, err := newOrtSileroSession(cfg.ModelPath)
	if err != nil {
		return nil, err
	}
	return newNeuralDetector(cfg, session), nil
}

func newNeuralDetector(cfg NeuralConfig, session inferenceSession) *NeuralDetector {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 0.5
	}
	if cfg.SilenceThresholdMs <= 0 {
		cfg.SilenceThresholdMs = 1000
	}
	ctxSize := contextSize16k
	if cfg.SampleRate == 8000 {
		ctxSize = 32
	}
	return &NeuralDetector{
		cfg:     cfg,
		session: session,
		state:   make([]float32, lstmStateSize),
		context: make([]float32, ctxSize),
	}
}

// probChunk runs inference on exactly one NeuralChunkSamples-sized chunk,
// carrying context and LSTM state forward.
func (d *NeuralDetector) probChunk(chunk []float32) float32 {
	ctxSize := len(d.context)
	input := make([]float32, ctxSize+len(chunk))
	copy(input[:ctxSize], d.context)
	copy(input[ctxSize:], chunk)

	if len(chunk) >= ctxSize {
		copy(d.context, chunk[len(chunk)-ctxSize:])
	} else {
		copy(d.context, d.context[len(chunk):])
		copy(d.context[ctxSize-len(chunk):], chunk)
	}

	prob, nextState, err := d.session.runSilero(input, d.state, d.cfg.SampleRate)
	if err != nil {
		// The neural variant cannot fail on legal input (§4.2); a runtime
		// error here means the session itself is broken, which we treat
		// as silence rather than panicking the caller.
		return 0
	}
	d.state = nextState
	return prob
}

// IsSpeech returns true if any NeuralChunkSamples window within frame
// exceeds the configured threshold (§4.2). A short trailing chunk is
// zero-padded.
func (d *NeuralDetector) IsSpeech(frame []float32) bool {
	any := false
	classifyFrames(frame, NeuralChunkSamples, func(chunk []float32) bool {
		speech := d.probChunk(chunk) >= d.cfg.Threshold
		any = any || speech
		return speech
	})
	return any
}

// DetectSpeechEnd implements the shared newest-to-oldest scan over
// 512-sample chunks.
func (d *NeuralDetector) DetectSpeechEnd(recent []float32) bool {
	chunkMs := float64(NeuralChunkSamples) * 1000 / float64(d.cfg.SampleRate)
	silenceChunks := int(float64(d.cfg.SilenceThresholdMs) / chunkMs)

	frames := classifyFrames(recent, NeuralChunkSamples, func(chunk []float32) bool {
		return d.probChunk(chunk) >= d.cfg.Threshold
	})
	return speechEndFromFrames(frames, silenceChunks)
}

// Reset discards the LSTM hidden state and context window.
func (d *NeuralDetector) Reset() {
	for i := range d.state {
		d.state[i] = 0
	}
	for i := range d.context {
		d.context[i] = 0
	}
}

// Close releases the underlying ONNX session.
func (d *NeuralDetector) Close() {
	if d.session != nil {
		d.session.destroy()
	}
}
