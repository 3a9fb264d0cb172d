package voiceprint

import (
	"fmt"
	"sync"

	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"
)

// Extractor turns a slice of 16 kHz mono samples into a fixed-size
// speaker embedding. Kept as a small interface, mirroring the
// diarizationEngine seam in internal/diarize, so the coordinator's
// speaker-labeling path is testable without a real model file.
type Extractor interface {
	Extract(samples []float32) ([]float32, error)
}

// SherpaExtractor wraps sherpa-onnx's speaker embedding extractor —
// the same embedding model internal/diarize's clustering step uses
// internally, exposed here so the coordinator can compute one
// embedding per already-diarized speaker slice for voiceprint
// matching. Adapted from ai.SpeakerEncoder, generalized
// from the teacher's hand-rolled WeSpeaker ONNX graph to the sherpa-onnx
// embedding-extractor API internal/diarize already depends on.
type SherpaExtractor struct {
	mu         sync.Mutex
	extractor  *sherpa.SpeakerEmbeddingExtractor
	sampleRate int
}

// NewSherpaExtractor loads a speaker embedding model from modelPath.
func NewSherpaExtractor(modelPath string, numThreads int, provider string) (*SherpaExtractor, error) {
	cfg := &sherpa.SpeakerEmbeddingExtractorConfig{
		Model:      modelPath,
		NumThreads: numThreads,
		Provider:   provider,
	}
	extractor := sherpa.NewSpeakerEmbeddingExtractor(cfg)
	if extractor == nil {
		return nil, fmt.Errorf("voiceprint: failed to create speaker embedding extractor")
	}
	return &SherpaExtractor{extractor: extractor, sampleRate: 16000}, nil
}

// Extract computes a single embedding for samples.
func (e *SherpaExtractor) Extract(samples []float32) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.extractor == nil {
		return nil, fmt.Errorf("voiceprint: extractor not loaded")
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("voiceprint: empty sample slice")
	}

	stream := sherpa.NewSpeakerEmbeddingExtractorStream(e.extractor)
	if stream == nil {
		return nil, fmt.Errorf("voiceprint: failed to create embedding stream")
	}
	defer sherpa.DeleteSpeakerEmbeddingExtractorStream(stream)

	stream.AcceptWaveform(e.sampleRate, samples)
	stream.InputFinished()

	if !e.extractor.IsReady(stream) {
		return nil, fmt.Errorf("voiceprint: embedding stream not ready")
	}
	embedding := e.extractor.Compute(stream)
	normalize(embedding)
	return embedding, nil
}

// Close releases the underlying extractor.
func (e *SherpaExtractor) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.extractor != nil {
		sherpa.DeleteSpeakerEmbeddingExtractor(e.extractor)
		e.extractor = nil
	}
}
