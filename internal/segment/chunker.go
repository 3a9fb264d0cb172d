package segment

import (
	"strings"

	"github.com/velesar/aiwisper-engine/internal/vad"
)

// Chunk is one piece of a segmented batch buffer (C9), with overlap
// bookkeeping for downstream dedup (§4.9).
type Chunk struct {
	Samples               []float32
	HasOverlap            bool
	LeadingOverlapSamples int
}

// Backend is the minimal contract the chunker needs from a
// transcription backend (C10): transcribe one chunk of 16 kHz mono
// samples to text.
type Backend interface {
	Transcribe(samples []float32, languageHint string) (string, error)
}

// Segment splits samples into chunks no longer than
// maxSegmentSamples, using the three-tier split cascade to prefer
// natural silence boundaries over forced cuts (§4.9).
func Segment(samples []float32, detector vad.Detector, cfg Config, maxSegmentSamples int) []Chunk {
	if len(samples) <= maxSegmentSamples {
		return []Chunk{{Samples: samples}}
	}

	silences := ScanSilences(samples, detector, cfg.SampleRate)

	var chunks []Chunk
	pos := 0

	for pos < len(samples) {
		remaining := len(samples) - pos
		if remaining <= maxSegmentSamples {
			chunks = append(chunks, Chunk{Samples: samples[pos:]})
			break
		}

		decision := FindBestSplit(silences, pos, pos+maxSegmentSamples, cfg)
		switch decision.Kind {
		case SplitSemantic, SplitVad:
			chunks = append(chunks, Chunk{Samples: samples[pos:decision.Sample]})
			pos = decision.Sample
		case SplitForced:
			chunks = append(chunks, Chunk{Samples: samples[pos:decision.Sample], HasOverlap: true})
			next := decision.Sample - decision.OverlapSamples
			if next <= pos {
				// An overlap at least as long as the chunk would not
				// advance; resume at the split point instead.
				next = decision.Sample
			}
			pos = next
		default: // SplitNone
			chunks = append(chunks, Chunk{Samples: samples[pos:]})
			pos = len(samples)
		}
	}

	// Post-pass: fill in the overlap sample count for chunks following a
	// forced predecessor (§4.9).
	for i := 1; i < len(chunks); i++ {
		if chunks[i-1].HasOverlap {
			chunks[i].LeadingOverlapSamples = cfg.overlapSamples()
		}
	}

	return chunks
}

// TranscribeChunked segments samples, transcribes each chunk in order,
// and concatenates non-empty trimmed results with a single space
// (§4.9). A single-chunk input incurs no segmentation overhead.
func TranscribeChunked(samples []float32, languageHint string, detector vad.Detector, cfg Config, maxSegmentSamples int, backend Backend) (string, error) {
	if len(samples) <= maxSegmentSamples {
		text, err := backend.Transcribe(samples, languageHint)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(text), nil
	}

	chunks := Segment(samples, detector, cfg, maxSegmentSamples)

	var parts []string
	for _, c := range chunks {
		text, err := backend.Transcribe(c.Samples, languageHint)
		if err != nil {
			return "", err
		}
		text = strings.TrimSpace(text)
		if text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}
