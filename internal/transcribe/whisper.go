package transcribe

import (
	"fmt"
	"strings"
	"sync"

	whisper "github.com/ggerganov/whisper.cpp/bindings/go"
)

// Whisper wraps a whisper.cpp model: a language hint is honored,
// output is the concatenation of segment texts with no punctuation
// guarantee, and a new context is built per call (§4.10). Grounded on
// the teacher's ai.Engine.TranscribeWithSegments.
type Whisper struct {
	mu        sync.Mutex
	model     whisper.Model
	modelPath string
	language  string
}

// NewWhisper constructs an unloaded backend; call LoadModel before use.
func NewWhisper() *Whisper {
	return &Whisper{language: "auto"}
}

// LoadModel loads a ggml/gguf whisper model from path.
func (w *Whisper) LoadModel(path string) error {
	if err := validateModelPath(path); err != nil {
		return err
	}
	model, err := whisper.New(path)
	if err != nil {
		return fmt.Errorf("transcribe: whisper load: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.model != nil {
		w.model.Close()
	}
	w.model = model
	w.modelPath = path
	return nil
}

// IsLoaded reports whether a model is currently loaded.
func (w *Whisper) IsLoaded() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.model != nil
}

// ModelName returns the loaded model's path, if any.
func (w *Whisper) ModelName() (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.model == nil {
		return "", false
	}
	return w.modelPath, true
}

// Transcribe runs whisper.cpp over samples (16 kHz mono f32), honoring
// languageHint, and returns the concatenation of segment texts.
func (w *Whisper) Transcribe(samples []float32, languageHint string) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.model == nil {
		return "", ErrBackendNotLoaded
	}

	ctx, err := w.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("transcribe: whisper context: %w", err)
	}

	lang := strings.TrimSpace(languageHint)
	if lang == "" {
		lang = w.language
	}
	if err := ctx.SetLanguage(lang); err != nil {
		_ = ctx.SetLanguage("auto")
	} else {
		ctx.SetTranslate(false)
	}

	ctx.SetBeamSize(5)
	ctx.SetTemperature(0.0)
	ctx.SetTemperatureFallback(0.2)
	ctx.SetMaxTokensPerSegment(128)
	ctx.SetSplitOnWord(true)
	ctx.SetEntropyThold(2.4)
	ctx.SetMaxContext(-1)

	if err := ctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("transcribe: whisper process: %w", err)
	}

	var texts []string
	for {
		seg, err := ctx.NextSegment()
		if err != nil {
			break
		}
		text := strings.TrimSpace(seg.Text)
		if text != "" {
			texts = append(texts, text)
		}
	}
	return strings.Join(texts, " "), nil
}

// Close releases the underlying model.
func (w *Whisper) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.model != nil {
		w.model.Close()
		w.model = nil
	}
}
