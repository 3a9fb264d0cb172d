package transcribe

import (
	"fmt"
	"strings"
	"sync"

	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"
)

// TDTConfig configures the TDT-like offline recognizer backend.
type TDTConfig struct {
	Encoder    string
	Decoder    string
	Joiner     string
	Tokens     string
	NumThreads int
	Provider   string
	SampleRate int
}

// TDT is a TDT-style offline recognizer backend: it auto-detects
// language (any hint is ignored) and produces punctuated, capitalized
// text. Not re-loadable at runtime — loading a new model means
// constructing a new TDT instance (§4.10). Internal inference requires
// exclusive access since the underlying sherpa-onnx recognizer is not
// safe for concurrent stream decoding. Grounded on the sherpa-onnx
// OfflineRecognizer/OfflineStream usage pattern shared across the
// pack's sherpa-based examples.
type TDT struct {
	mu         sync.Mutex
	recognizer *sherpa.OfflineRecognizer
	sampleRate int
	modelName  string
}

// NewTDT constructs and loads a TDT recognizer from cfg. There is no
// separate LoadModel step by design — a new model requires a new TDT.
func NewTDT(cfg TDTConfig) (*TDT, error) {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}

	recognizerConfig := &sherpa.OfflineRecognizerConfig{}
	recognizerConfig.ModelConfig.Transducer.Encoder = cfg.Encoder
	recognizerConfig.ModelConfig.Transducer.Decoder = cfg.Decoder
	recognizerConfig.ModelConfig.Transducer.Joiner = cfg.Joiner
	recognizerConfig.ModelConfig.Tokens = cfg.Tokens
	recognizerConfig.ModelConfig.NumThreads = cfg.NumThreads
	recognizerConfig.ModelConfig.Provider = cfg.Provider
	recognizerConfig.ModelConfig.ModelType = "nemo_transducer"
	recognizerConfig.DecodingMethod = "greedy_search"

	recognizer := sherpa.NewOfflineRecognizer(recognizerConfig)
	if recognizer == nil {
		return nil, fmt.Errorf("transcribe: failed to create TDT offline recognizer")
	}

	return &TDT{
		recognizer: recognizer,
		sampleRate: cfg.SampleRate,
		modelName:  cfg.Encoder,
	}, nil
}

// Transcribe decodes samples through the TDT recognizer. languageHint
// is ignored: the model auto-detects language (§4.10).
func (t *TDT) Transcribe(samples []float32, languageHint string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.recognizer == nil {
		return "", ErrBackendNotLoaded
	}
	if len(samples) == 0 {
		return "", nil
	}

	stream := sherpa.NewOfflineStream(t.recognizer)
	if stream == nil {
		return "", fmt.Errorf("transcribe: failed to create offline stream")
	}
	defer sherpa.DeleteOfflineStream(stream)

	stream.AcceptWaveform(t.sampleRate, samples)
	t.recognizer.Decode(stream)

	result := stream.GetResult()
	return strings.TrimSpace(result.Text), nil
}

// IsLoaded reports whether a recognizer is held: true for a successfully
// constructed TDT, false for a zero TDT or one whose recognizer is gone.
func (t *TDT) IsLoaded() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.recognizer != nil
}

// ModelName returns the encoder path used to build this instance.
func (t *TDT) ModelName() (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.recognizer == nil {
		return "", false
	}
	return t.modelName, true
}

// LoadModel always fails: TDT backends are not re-loadable at runtime
// (§4.10). Construct a new TDT instance for a different model.
func (t *TDT) LoadModel(path string) error {
	return fmt.Errorf("transcribe: TDT backend does not support reloading; construct a new instance")
}

// Close releases the underlying recognizer.
func (t *TDT) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.recognizer != nil {
		sherpa.DeleteOfflineRecognizer(t.recognizer)
		t.recognizer = nil
	}
}
