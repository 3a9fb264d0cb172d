// Package diarize implements the diarization backend (C11): speaker
// segmentation over 16 kHz mono audio via sherpa-onnx's offline
// speaker diarization pipeline (pyannote segmentation + a speaker
// embedding extractor). Grounded on the teacher's
// ai.SherpaDiarizer.
package diarize

import (
	"fmt"
	"sync"

	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"
)

// Segment is one speaker-attributed span. Speaker is an opaque small
// integer; the model does not guarantee stable identity across
// sessions (§4.11).
type Segment struct {
	StartSec float32
	EndSec   float32
	Speaker  int
}

// Backend is the C11 contract.
type Backend interface {
	IsAvailable() bool
	LoadModel() error
	Diarize(samples []float32) ([]Segment, error)
}

// Config configures the sherpa-onnx diarization pipeline.
type Config struct {
	SegmentationModelPath string
	EmbeddingModelPath     string
	NumThreads             int
	ClusteringThreshold    float32
	MinDurationOnSec       float32
	MinDurationOffSec      float32
	Provider               string
}

// DefaultConfig returns reasonable defaults, grounded on the teacher's
// DefaultSherpaDiarizerConfig.
func DefaultConfig(segmentationPath, embeddingPath string) Config {
	return Config{
		SegmentationModelPath: segmentationPath,
		EmbeddingModelPath:    embeddingPath,
		NumThreads:            4,
		ClusteringThreshold:   0.5,
		MinDurationOnSec:      0.3,
		MinDurationOffSec:     0.5,
		Provider:              "cpu",
	}
}

// diarizationEngine is the seam between Sherpa and the native
// sherpa-onnx diarizer, so tests can inject a fake without real model
// files.
type diarizationEngine interface {
	Process(samples []float32) []sherpa.SpeakerSegment
}

// Sherpa is the sherpa-onnx-backed diarization backend.
type Sherpa struct {
	cfg      Config
	mu       sync.Mutex
	diarizer diarizationEngine
}

// NewSherpa constructs an unloaded backend; call LoadModel before use.
func NewSherpa(cfg Config) *Sherpa {
	return &Sherpa{cfg: cfg}
}

// IsAvailable reports whether the backend has been successfully loaded.
func (s *Sherpa) IsAvailable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.diarizer != nil
}

// LoadModel constructs the sherpa-onnx diarizer from the configured
// segmentation and embedding models.
func (s *Sherpa) LoadModel() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sherpaConfig := &sherpa.OfflineSpeakerDiarizationConfig{
		Segmentation: sherpa.OfflineSpeakerSegmentationModelConfig{
			Pyannote: sherpa.OfflineSpeakerSegmentationPyannoteModelConfig{
				Model: s.cfg.SegmentationModelPath,
			},
			NumThreads: s.cfg.NumThreads,
			Provider:   s.cfg.Provider,
		},
		Embedding: sherpa.SpeakerEmbeddingExtractorConfig{
			Model:      s.cfg.EmbeddingModelPath,
			NumThreads: s.cfg.NumThreads,
			Provider:   s.cfg.Provider,
		},
		Clustering: sherpa.FastClusteringConfig{
			NumClusters: -1,
			Threshold:   s.cfg.ClusteringThreshold,
		},
		MinDurationOn:  s.cfg.MinDurationOnSec,
		MinDurationOff: s.cfg.MinDurationOffSec,
	}

	diarizer := sherpa.NewOfflineSpeakerDiarization(sherpaConfig)
	if diarizer == nil {
		return fmt.Errorf("diarize: failed to create sherpa-onnx diarizer")
	}
	s.diarizer = diarizer
	return nil
}

// maxDiarizationSamples bounds a single native call to avoid the
// sherpa-onnx native code hanging on pathological long inputs (~15s at
// 16kHz), mirroring chunked fallback.
const maxDiarizationSamples = 240000
const diarizationOverlapSamples = 16000
const diarizationSampleRate = 16000

// Diarize runs the diarization pipeline over samples, splitting into
// overlapping chunks if the input exceeds maxDiarizationSamples (§4.11).
func (s *Sherpa) Diarize(samples []float32) ([]Segment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.diarizer == nil {
		return nil, fmt.Errorf("diarize: backend not loaded")
	}
	if len(samples) == 0 {
		return nil, nil
	}
	if len(samples) > maxDiarizationSamples {
		return s.diarizeInChunks(samples), nil
	}
	return s.diarizeSingle(samples), nil
}

func (s *Sherpa) diarizeSingle(samples []float32) []Segment {
	raw := s.diarizer.Process(samples)
	out := make([]Segment, len(raw))
	for i, seg := range raw {
		out[i] = Segment{StartSec: seg.Start, EndSec: seg.End, Speaker: seg.Speaker}
	}
	return out
}

func (s *Sherpa) diarizeInChunks(samples []float32) []Segment {
	var all []Segment
	offset := 0
	for offset < len(samples) {
		end := offset + maxDiarizationSamples
		if end > len(samples) {
			end = len(samples)
		}
		chunkOffsetSec := float32(offset) / float32(diarizationSampleRate)

		raw := s.diarizer.Process(samples[offset:end])
		for _, seg := range raw {
			all = append(all, Segment{
				StartSec: seg.Start + chunkOffsetSec,
				EndSec:   seg.End + chunkOffsetSec,
				Speaker:  seg.Speaker,
			})
		}

		if end == len(samples) {
			break
		}
		offset = end - diarizationOverlapSamples
		if offset < 0 {
			offset = 0
		}
	}
	return all
}
