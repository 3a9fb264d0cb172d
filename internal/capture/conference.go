package capture

import "fmt"

// ConferenceResult is returned by StopConference: the two channels are
// not sample-aligned, treated by the caller as two logical streams of
// the same recording (§4.6).
type ConferenceResult struct {
	MicSamples      []float32
	LoopbackSamples []float32
}

// Conference owns one microphone and one loopback capturer and starts
// or stops them together (§4.6).
type Conference struct {
	mic      Capturer
	loopback Capturer
}

// NewConference composes an already-constructed microphone and
// loopback capturer.
func NewConference(mic, loopback Capturer) *Conference {
	return &Conference{mic: mic, loopback: loopback}
}

// StartConference starts both capturers. If the loopback fails to
// start, the microphone is stopped so the caller isn't left with one
// half of the pair running.
func (c *Conference) StartConference() error {
	if err := c.mic.Start(); err != nil {
		return fmt.Errorf("capture: conference mic start: %w", err)
	}
	if err := c.loopback.Start(); err != nil {
		_, _ = c.mic.Stop()
		return fmt.Errorf("capture: conference loopback start: %w", err)
	}
	return nil
}

// StopConference stops both capturers and returns both completion
// signals plus each channel's final samples.
func (c *Conference) StopConference() (ConferenceResult, error) {
	micCh, micErr := c.mic.Stop()
	loopCh, loopErr := c.loopback.Stop()
	if micErr != nil {
		return ConferenceResult{}, micErr
	}
	if loopErr != nil {
		return ConferenceResult{}, loopErr
	}

	micSignal := <-micCh
	loopSignal := <-loopCh

	return ConferenceResult{
		MicSamples:      micSignal.Samples,
		LoopbackSamples: loopSignal.Samples,
	}, nil
}

// MicBuffer exposes the microphone's shared buffer, e.g. for a
// Segmentation Monitor watching the conference's mic channel live.
func (c *Conference) MicBuffer() *SharedBuffer { return c.mic.SharedBuffer() }

// LoopbackBuffer exposes the loopback's shared buffer.
func (c *Conference) LoopbackBuffer() *SharedBuffer { return c.loopback.SharedBuffer() }
