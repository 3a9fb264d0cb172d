// Package archive provides optional MP3 session-archival writers/readers
// for whatever external collaborator wants to persist a recording
// alongside the engine's transcript output. It is not exercised by the
// coordinator itself (session persistence is out of scope), but kept as
// a small standalone helper so the pack's pure-Go MP3 stack stays wired.
// Adapted from session.ShineMP3Writer/MP3Reader, trimmed of
// the FFmpeg fallback path (shine-mp3 needs no external binary).
package archive

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/braheezy/shine-mp3/pkg/mp3"
	gomp3 "github.com/hajimehoshi/go-mp3"
)

// MP3Writer streams float32 PCM to a pure-Go MP3 encoder; construct one
// per archived recording.
type MP3Writer struct {
	file       *os.File
	encoder    *mp3.Encoder
	filePath   string
	sampleRate int
	channels   int

	// shine encodes in blocks of 1152 samples per channel (MP3 Layer III).
	buffer []int16

	samplesWritten int64
	startTime      time.Time
	mu             sync.Mutex
	closed         bool
}

// NewMP3Writer creates filePath and starts a streaming MP3 encoder over it.
func NewMP3Writer(filePath string, sampleRate, channels int) (*MP3Writer, error) {
	file, err := os.Create(filePath)
	if err != nil {
		return nil, fmt.Errorf("archive: create %s: %w", filePath, err)
	}

	return &MP3Writer{
		file:       file,
		encoder:    mp3.NewEncoder(sampleRate, channels),
		filePath:   filePath,
		sampleRate: sampleRate,
		channels:   channels,
		buffer:     make([]int16, 0, 8192),
		startTime:  time.Now(),
	}, nil
}

// Write appends float32 samples in [-1, 1], clamping out-of-range values.
func (w *MP3Writer) Write(samples []float32) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("archive: writer is closed")
	}

	for _, s := range samples {
		if s > 1.0 {
			s = 1.0
		} else if s < -1.0 {
			s = -1.0
		}
		w.buffer = append(w.buffer, int16(s*32767))
	}
	w.samplesWritten += int64(len(samples))

	minBufferSize := 1152 * w.channels * 4
	if len(w.buffer) >= minBufferSize {
		w.encoder.Write(w.file, w.buffer)
		w.buffer = w.buffer[:0]
	}
	return nil
}

// WriteStereoInterleaved interleaves two equal-length channels before
// writing (L0, R0, L1, R1, ...).
func (w *MP3Writer) WriteStereoInterleaved(left, right []float32) error {
	if len(left) != len(right) {
		return fmt.Errorf("archive: channel length mismatch (%d vs %d)", len(left), len(right))
	}
	interleaved := make([]float32, len(left)*2)
	for i := range left {
		interleaved[i*2] = left[i]
		interleaved[i*2+1] = right[i]
	}
	return w.Write(interleaved)
}

// SamplesWritten reports the total sample count written so far.
func (w *MP3Writer) SamplesWritten() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.samplesWritten
}

// Duration reports the encoded recording length.
func (w *MP3Writer) Duration() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	frames := w.samplesWritten / int64(w.channels)
	return time.Duration(frames) * time.Second / time.Duration(w.sampleRate)
}

// Close flushes any buffered samples (zero-padded to a full block) and
// closes the underlying file.
func (w *MP3Writer) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	if len(w.buffer) > 0 {
		blockSize := 1152 * w.channels
		for len(w.buffer)%blockSize != 0 {
			w.buffer = append(w.buffer, 0)
		}
		w.encoder.Write(w.file, w.buffer)
	}

	if err := w.file.Close(); err != nil {
		return fmt.Errorf("archive: close %s: %w", w.filePath, err)
	}
	return nil
}

// FilePath returns the destination path passed to NewMP3Writer.
func (w *MP3Writer) FilePath() string { return w.filePath }

// MP3Reader decodes a pure-Go MP3 file back into stereo float32 PCM,
// used to verify archived recordings in tests without shelling out to
// ffprobe/ffmpeg.
type MP3Reader struct {
	decoder    *gomp3.Decoder
	file       *os.File
	sampleRate int
	length     int64
}

// NewMP3Reader opens filePath for reading.
func NewMP3Reader(filePath string) (*MP3Reader, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("archive: open %s: %w", filePath, err)
	}
	decoder, err := gomp3.NewDecoder(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("archive: decode %s: %w", filePath, err)
	}
	return &MP3Reader{
		decoder:    decoder,
		file:       file,
		sampleRate: decoder.SampleRate(),
		length:     decoder.Length(),
	}, nil
}

// SampleRate returns the decoded stream's sample rate.
func (r *MP3Reader) SampleRate() int { return r.sampleRate }

// Duration returns the decoded stream's length in seconds (go-mp3
// always decodes to 16-bit stereo, 4 bytes per sample-pair).
func (r *MP3Reader) Duration() float64 {
	samples := r.length / 4
	return float64(samples) / float64(r.sampleRate)
}

// ReadAllStereo decodes the entire file into separate left/right
// float32 channels.
func (r *MP3Reader) ReadAllStereo() ([]float32, []float32, error) {
	pcmData := make([]byte, r.length)
	n, err := io.ReadFull(r.decoder, pcmData)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, nil, fmt.Errorf("archive: read pcm: %w", err)
	}
	pcmData = pcmData[:n]

	numSamples := n / 4
	left := make([]float32, numSamples)
	right := make([]float32, numSamples)
	for i := 0; i < numSamples; i++ {
		l := int16(binary.LittleEndian.Uint16(pcmData[i*4:]))
		r := int16(binary.LittleEndian.Uint16(pcmData[i*4+2:]))
		left[i] = float32(l) / 32768.0
		right[i] = float32(r) / 32768.0
	}
	return left, right, nil
}

// Close releases the underlying file handle.
func (r *MP3Reader) Close() error {
	return r.file.Close()
}
