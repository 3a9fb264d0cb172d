// Package wavio implements the §6 "WAV I/O" and "Stereo conference WAV"
// external interfaces: reading an arbitrary RIFF WAV into 16 kHz mono
// f32 for the batch chunker (C9), and writing the two-channel f32
// conference recording the coordinator's channel-based strategy
// produces. Grounded on the pack's mmp-vice/autowhisper WAV reader
// (go-audio/wav decode + channel/rate normalization) and the teacher's
// session.WAVWriter (hand-rolled RIFF header) generalized from mono
// 16-bit PCM to stereo 32-bit float.
package wavio

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/velesar/aiwisper-engine/pkg/resample"
)

// TargetSampleRate is the rate every reader normalizes to (§3 "PCM Frame").
const TargetSampleRate = 16000

// ReadMono16k reads path as a RIFF WAV (8/16/24/32-bit PCM or 32-bit
// float, any sample rate and channel count per §6) and returns 16 kHz
// mono f32 samples in [-1, 1].
func ReadMono16k(path string) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("wavio: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("wavio: decode %s: %w", path, err)
	}
	if buf == nil || len(buf.Data) == 0 {
		return nil, fmt.Errorf("wavio: %s has no audio data", path)
	}
	if dec.SampleRate == 0 {
		return nil, fmt.Errorf("wavio: %s has invalid sample rate", path)
	}
	chans := int(dec.NumChans)
	if chans < 1 {
		return nil, fmt.Errorf("wavio: %s has invalid channel count", path)
	}

	mono := downmix(buf, chans)

	if int(dec.SampleRate) != TargetSampleRate {
		mono, err = resampleTo16k(mono, int(dec.SampleRate))
		if err != nil {
			return nil, fmt.Errorf("wavio: resample %s: %w", path, err)
		}
	}
	return mono, nil
}

// downmix converts an IntBuffer at its native bit depth to mono f32 in
// [-1, 1], averaging channels arithmetically as §4.4 specifies for the
// capturers' downmix (the same convention applies to file input).
func downmix(buf *audio.IntBuffer, chans int) []float32 {
	depth := buf.SourceBitDepth
	if depth <= 0 {
		depth = 16
	}
	scale := float32(int64(1) << uint(depth-1))

	frames := len(buf.Data) / chans
	mono := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for c := 0; c < chans; c++ {
			sum += float32(buf.Data[i*chans+c]) / scale
		}
		v := sum / float32(chans)
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		mono[i] = v
	}
	return mono
}

// resampleTo16k reuses the capturer's windowed-sinc resampler (§4.4) so
// batch WAV input is converted with the same quality as live capture.
func resampleTo16k(samples []float32, inRate int) ([]float32, error) {
	r, err := resample.NewSinc(inRate, TargetSampleRate, 256, 0.95)
	if err != nil {
		return nil, err
	}
	return r.Resample(samples), nil
}

// StereoWriter writes the §6 "Stereo conference WAV": two f32 channels
// at 16 kHz, left = mic, right = loopback, interleaved. Grounded on the
// teacher's session.WAVWriter hand-rolled RIFF header, generalized from
// mono 16-bit PCM to stereo 32-bit IEEE float (audio format 3) since
// go-audio/wav's public Encoder targets integer PCM only.
type StereoWriter struct {
	file *os.File
}

const (
	wavFormatIEEEFloat = 3
	bitsPerSampleFloat = 32
)

// CreateStereoWriter opens path and writes a placeholder header, to be
// finalized by Close.
func CreateStereoWriter(path string) (*StereoWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("wavio: %w", err)
	}
	w := &StereoWriter{file: f}
	if err := w.writeHeader(0); err != nil {
		f.Close()
		return nil, err
	}
	return w, nil
}

func (w *StereoWriter) writeHeader(frameCount int64) error {
	if _, err := w.file.Seek(0, 0); err != nil {
		return err
	}
	const channels = 2
	byteRate := TargetSampleRate * channels * bitsPerSampleFloat / 8
	blockAlign := channels * bitsPerSampleFloat / 8
	dataSize := uint32(frameCount * int64(blockAlign))

	w.file.WriteString("RIFF")
	binary.Write(w.file, binary.LittleEndian, uint32(36+dataSize))
	w.file.WriteString("WAVE")

	w.file.WriteString("fmt ")
	binary.Write(w.file, binary.LittleEndian, uint32(16))
	binary.Write(w.file, binary.LittleEndian, uint16(wavFormatIEEEFloat))
	binary.Write(w.file, binary.LittleEndian, uint16(channels))
	binary.Write(w.file, binary.LittleEndian, uint32(TargetSampleRate))
	binary.Write(w.file, binary.LittleEndian, uint32(byteRate))
	binary.Write(w.file, binary.LittleEndian, uint16(blockAlign))
	binary.Write(w.file, binary.LittleEndian, uint16(bitsPerSampleFloat))

	w.file.WriteString("data")
	return binary.Write(w.file, binary.LittleEndian, dataSize)
}

// WriteChannels interleaves mic and loopback (zero-padding the shorter
// to the longer's length, per §6) and writes the resulting frames.
func (w *StereoWriter) WriteChannels(mic, loopback []float32) error {
	n := len(mic)
	if len(loopback) > n {
		n = len(loopback)
	}
	for i := 0; i < n; i++ {
		var l, r float32
		if i < len(mic) {
			l = mic[i]
		}
		if i < len(loopback) {
			r = loopback[i]
		}
		if err := binary.Write(w.file, binary.LittleEndian, l); err != nil {
			return err
		}
		if err := binary.Write(w.file, binary.LittleEndian, r); err != nil {
			return err
		}
	}
	return nil
}

// Close finalizes the RIFF header with the true data size and closes
// the file.
func (w *StereoWriter) Close() error {
	pos, err := w.file.Seek(0, 1)
	if err != nil {
		w.file.Close()
		return err
	}
	frameCount := (pos - 44) / (2 * bitsPerSampleFloat / 8)
	if err := w.writeHeader(frameCount); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}
