// Package resample provides the windowed-sinc resampler shared by the
// microphone and loopback capturers (§4.4, §4.5) to convert a device's
// native sample rate to the engine's canonical 16 kHz.
package resample

import "math"

// Sinc is a windowed-sinc interpolating resampler. It processes samples in
// fixed-size chunks: a short trailing chunk is zero-padded, and only the
// proportional head of that chunk's output is kept, matching the
// capturer's resampling contract (§4.4).
type Sinc struct {
	fromRate   int
	toRate     int
	oversample int
	cutoff     float64
	chunkIn    int

	kernel     []float64
	kernelHalf int

	// history carries the tail of the previous chunk so the interpolation
	// kernel has context across chunk boundaries.
	history []float64
}

// NewSinc constructs a resampler from fromRate to toRate. oversample must
// be >= 256 and cutoff in (0, 1) relative to Nyquist, per §4.4's
// "windowed (sinc interpolation), oversampling >= 256, cutoff ~= 0.95".
func NewSinc(fromRate, toRate, oversample int, cutoff float64) (*Sinc, error) {
	if fromRate <= 0 || toRate <= 0 {
		return nil, errInvalidRate
	}
	if oversample < 256 {
		oversample = 256
	}
	if cutoff <= 0 || cutoff >= 1 {
		cutoff = 0.95
	}

	const taps = 32 // half-width of the kernel in source samples
	kernelHalf := taps
	kernel := buildSincTable(oversample, kernelHalf, cutoff)

	chunkIn := fromRate / 10 // 100ms chunks, a practical fixed block size
	if chunkIn <= 0 {
		chunkIn = fromRate
	}

	return &Sinc{
		fromRate:   fromRate,
		toRate:     toRate,
		oversample: oversample,
		cutoff:     cutoff,
		chunkIn:    chunkIn,
		kernel:     kernel,
		kernelHalf: kernelHalf,
		history:    make([]float64, kernelHalf*2),
	}, nil
}

var errInvalidRate = errorString("resample: rates must be positive")

type errorString string

func (e errorString) Error() string { return string(e) }

// buildSincTable precomputes a Hann-windowed sinc lookup table with
// `oversample` fractional positions per source sample, spanning
// [-kernelHalf, kernelHalf].
func buildSincTable(oversample, kernelHalf int, cutoff float64) []float64 {
	size := (2*kernelHalf + 1) * oversample
	table := make([]float64, size)
	for i := 0; i < size; i++ {
		// x in source-sample units, centered at 0.
		x := float64(i)/float64(oversample) - float64(kernelHalf)
		table[i] = sincWindowed(x, cutoff)
	}
	return table
}

func sincWindowed(x, cutoff float64) float64 {
	if x == 0 {
		return cutoff
	}
	px := math.Pi * x
	s := math.Sin(px*cutoff) / px
	// Hann window over the kernel support.
	w := 0.5 + 0.5*math.Cos(px/32)
	return s * w
}

// Resample converts samples at fromRate to toRate. Input is processed in
// chunkIn-sized blocks; a short final block is zero-padded, and only the
// proportional head of its output is retained.
func (r *Sinc) Resample(samples []float32) []float32 {
	if r.fromRate == r.toRate {
		out := make([]float32, len(samples))
		copy(out, samples)
		return out
	}

	var out []float32
	for pos := 0; pos < len(samples); pos += r.chunkIn {
		end := pos + r.chunkIn
		var chunk []float32
		proportion := 1.0
		if end > len(samples) {
			chunk = make([]float32, r.chunkIn)
			copy(chunk, samples[pos:])
			proportion = float64(len(samples)-pos) / float64(r.chunkIn)
			end = len(samples)
		} else {
			chunk = samples[pos:end]
		}

		resampled := r.resampleChunk(chunk)
		keep := int(float64(len(resampled)) * proportion)
		if keep > len(resampled) {
			keep = len(resampled)
		}
		out = append(out, resampled[:keep]...)
	}
	return out
}

// resampleChunk interpolates one fixed-size chunk using the windowed-sinc
// table, drawing context from the previous chunk's tail so the kernel
// doesn't need to look past chunk boundaries.
func (r *Sinc) resampleChunk(chunk []float32) []float32 {
	extended := make([]float64, len(r.history)+len(chunk))
	copy(extended, r.history)
	for i, s := range chunk {
		extended[len(r.history)+i] = float64(s)
	}

	ratio := float64(r.fromRate) / float64(r.toRate)
	outLen := int(float64(len(chunk)) * float64(r.toRate) / float64(r.fromRate))
	out := make([]float32, outLen)

	// Output time 0 sits kernelHalf samples into the history (the chunk
	// itself starts at len(r.history)), so output lags input by kernelHalf
	// source samples and the kernel never reads past the chunk's end.
	base := r.kernelHalf
	for i := 0; i < outLen; i++ {
		srcPos := float64(i) * ratio
		center := base + int(srcPos)
		frac := srcPos - math.Floor(srcPos)

		var acc float64
		for k := -r.kernelHalf; k <= r.kernelHalf; k++ {
			idx := center + k
			if idx < 0 || idx >= len(extended) {
				continue
			}
			x := float64(k) - frac
			acc += extended[idx] * r.sincAt(x)
		}
		out[i] = float32(acc)
	}

	if len(chunk) >= len(r.history) {
		for i, s := range chunk[len(chunk)-len(r.history):] {
			r.history[i] = float64(s)
		}
	} else {
		copy(r.history, r.history[len(chunk):])
		for i, s := range chunk {
			r.history[len(r.history)-len(chunk)+i] = float64(s)
		}
	}

	return out
}

func (r *Sinc) sincAt(x float64) float64 {
	idx := (x + float64(r.kernelHalf)) * float64(r.oversample)
	i := int(math.Round(idx))
	if i < 0 {
		i = 0
	}
	if i >= len(r.kernel) {
		i = len(r.kernel) - 1
	}
	return r.kernel[i]
}

// Reset clears the cross-chunk history, as if the resampler were freshly
// constructed.
func (r *Sinc) Reset() {
	for i := range r.history {
		r.history[i] = 0
	}
}
