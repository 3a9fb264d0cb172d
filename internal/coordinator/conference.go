package coordinator

import (
	"fmt"

	"github.com/velesar/aiwisper-engine/internal/capture"
)

// minSpeakerSliceSamples is the 500 ms floor below which a
// neural-diarized slice is skipped (§4.13).
const minSpeakerSliceSamples = sampleRate / 2

// StartConference begins conference capture (mic + loopback),
// transitioning Idle -> Recording (§4.13). A DeviceUnavailable failure
// leaves the state machine in Idle.
func (c *Coordinator) StartConference() error {
	mic, err := c.newMic()
	if err != nil {
		return errDeviceUnavailable(err)
	}
	loopback := c.newLoopback()

	conf := capture.NewConference(mic, loopback)
	if err := conf.StartConference(); err != nil {
		return errDeviceUnavailable(err)
	}

	if err := c.sm.toRecording(); err != nil {
		_, _ = conf.StopConference()
		return err
	}

	c.mu.Lock()
	c.conference = conf
	c.mu.Unlock()
	return nil
}

// StopConference ends conference capture and transcribes it with
// whichever strategy Config.DiarizationMethod selects, falling back
// from neural to channel-based if diarization yields nothing (§4.13,
// §7 "DiarizationUnavailable").
func (c *Coordinator) StopConference() (string, error) {
	if err := c.sm.toProcessing(); err != nil {
		c.sm.toIdle()
		return "", err
	}
	defer c.sm.toIdle()

	c.mu.Lock()
	conf := c.conference
	c.conference = nil
	c.mu.Unlock()

	result, err := conf.StopConference()
	if err != nil {
		return "", err
	}

	if c.cfg.DiarizationMethod == "neural" && c.diarizer != nil && c.diarizer.IsAvailable() {
		text, ok, err := c.transcribeNeuralDiarized(result)
		if err != nil {
			return "", err
		}
		if ok {
			return text, nil
		}
		// DiarizationUnavailable (zero segments): fall back to channel-based.
	}

	return c.transcribeChannelBased(result)
}

// transcribeChannelBased transcribes the mic and loopback buffers
// independently and labels each (§4.13 "Conference (channel-based)").
func (c *Coordinator) transcribeChannelBased(result capture.ConferenceResult) (string, error) {
	var out string

	if len(result.MicSamples) >= minDictationSamples {
		text, err := c.backend.Transcribe(c.maybeDenoise(result.MicSamples), c.cfg.Language)
		if err != nil {
			return "", fmt.Errorf("coordinator: mic transcription failed: %w", err)
		}
		if text != "" {
			out += "[Mic] " + text
		}
	}

	if len(result.LoopbackSamples) >= minDictationSamples {
		text, err := c.backend.Transcribe(c.maybeDenoise(result.LoopbackSamples), c.cfg.Language)
		if err != nil {
			return "", fmt.Errorf("coordinator: loopback transcription failed: %w", err)
		}
		if text != "" {
			if out != "" {
				out += "\n"
			}
			out += "[Loopback] " + text
		}
	}

	return out, nil
}

// transcribeNeuralDiarized mixes the two channels by arithmetic mean,
// runs diarization on the mix, and transcribes each speaker slice
// (§4.13 "Conference (neural-diarized)"). The bool return is false
// when diarization produced zero segments, signaling the caller to
// fall back to channel-based.
func (c *Coordinator) transcribeNeuralDiarized(result capture.ConferenceResult) (string, bool, error) {
	mix := mixChannels(result.MicSamples, result.LoopbackSamples)

	segments, err := c.diarizer.Diarize(mix)
	if err != nil {
		return "", false, nil // DiarizationUnavailable: fall back (§7).
	}
	if len(segments) == 0 {
		return "", false, nil
	}

	var out string
	for _, seg := range segments {
		start := int(seg.StartSec * sampleRate)
		end := int(seg.EndSec * sampleRate)
		if start < 0 {
			start = 0
		}
		if end > len(mix) {
			end = len(mix)
		}
		if end-start < minSpeakerSliceSamples {
			continue
		}

		slice := c.maybeDenoise(mix[start:end])
		text, err := c.backend.Transcribe(slice, c.cfg.Language)
		if err != nil {
			return "", false, fmt.Errorf("coordinator: speaker %d transcription failed: %w", seg.Speaker, err)
		}
		if text == "" {
			continue
		}
		if out != "" {
			out += "\n"
		}
		out += fmt.Sprintf("[%s] %s", c.speakerLabel(seg.Speaker, slice), text)
	}

	return out, true, nil
}

// speakerLabel returns the stored voiceprint name for slice when a
// voiceprint extractor/matcher is configured and a confident match is
// found; otherwise it falls back to the numeric "Speaker N" label
// (§4.13, 1-indexed). This never touches the diarizer's own
// speaker-index assignment — it only relabels it for display.
func (c *Coordinator) speakerLabel(speaker int, slice []float32) string {
	c.mu.Lock()
	extractor := c.voiceExtractor
	matcher := c.voiceMatcher
	c.mu.Unlock()

	if extractor == nil || matcher == nil {
		return fmt.Sprintf("Speaker %d", speaker+1)
	}
	embedding, err := extractor.Extract(slice)
	if err != nil {
		return fmt.Sprintf("Speaker %d", speaker+1)
	}
	match := matcher.FindBestMatch(embedding)
	if match == nil {
		return fmt.Sprintf("Speaker %d", speaker+1)
	}
	return match.Print.Name
}

// mixChannels averages two channels sample-by-sample, zero-padding the
// shorter to the longer's length (§6 "Stereo conference WAV").
func mixChannels(a, b []float32) []float32 {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		var av, bv float32
		if i < len(a) {
			av = a[i]
		}
		if i < len(b) {
			bv = b[i]
		}
		out[i] = (av + bv) / 2
	}
	return out
}
