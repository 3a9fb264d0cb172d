package denoise

import "gonum.org/v1/gonum/dsp/fourier"

// resampleFFT performs whole-buffer Fourier resampling between two rates,
// the "high-quality polyphase/FFT-based resampler" §4.3 requires in front
// of the neural denoiser. It forward-transforms the block, truncates or
// zero-pads the half-spectrum to the target length's bin count, then
// inverse-transforms — exact for the 16 kHz <-> 48 kHz (1:3) ratio this
// package uses, and reasonable for any rational ratio.
func resampleFFT(samples []float64, fromRate, toRate int) []float64 {
	if fromRate == toRate || len(samples) == 0 {
		out := make([]float64, len(samples))
		copy(out, samples)
		return out
	}

	n := len(samples)
	outN := n * toRate / fromRate
	if outN <= 0 {
		outN = 1
	}

	fwd := fourier.NewFFT(n)
	coeffs := fwd.Coefficients(nil, samples)

	outHalf := outN/2 + 1
	reshaped := make([]complex128, outHalf)
	copyLen := len(coeffs)
	if copyLen > outHalf {
		copyLen = outHalf
	}
	copy(reshaped, coeffs[:copyLen])

	inv := fourier.NewFFT(outN)
	seq := inv.Sequence(nil, reshaped)

	scale := float64(outN) / float64(n)
	for i := range seq {
		seq[i] *= scale
	}
	return seq
}

func toFloat64(samples []float32) []float64 {
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = float64(s)
	}
	return out
}

func toFloat32(samples []float64) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s)
	}
	return out
}
