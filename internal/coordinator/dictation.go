package coordinator

import (
	"fmt"
	"time"

	"github.com/velesar/aiwisper-engine/internal/capture"
	"github.com/velesar/aiwisper-engine/internal/dispatch"
	"github.com/velesar/aiwisper-engine/internal/segment"
)

// minDictationSamples is the 1 s TooShort floor (§4.13, §7).
const minDictationSamples = sampleRate

// ErrTooShort is returned by StopDictation when the recording is under
// one second.
var ErrTooShort = fmt.Errorf("coordinator: recording too short")

// segmentSinkCapacity bounds the segment channel so a slow sender
// never blocks the monitor indefinitely.
const segmentSinkCapacity = 64

// StartDictation begins either single-shot or segmented dictation
// depending on Config.ContinuousMode, transitioning Idle -> Recording
// (§4.13). A DeviceUnavailable failure leaves the state machine in
// Idle.
func (c *Coordinator) StartDictation() error {
	mic, err := c.newMic()
	if err != nil {
		return errDeviceUnavailable(err)
	}
	if err := mic.Start(); err != nil {
		return errDeviceUnavailable(err)
	}

	if err := c.sm.toRecording(); err != nil {
		_, _ = mic.Stop()
		return err
	}

	c.mu.Lock()
	c.mic = mic
	c.accum = nil
	c.mu.Unlock()

	if c.cfg.ContinuousMode {
		c.startSegmented(mic)
	}
	return nil
}

// startSegmented wires the Segmentation Monitor (C8) to the Segment
// Dispatcher (C12): the monitor emits Audio onto segCh, the dispatcher
// consumes it and emits ordered text onto the channel this coordinator
// forwards to any registered OnText callback (§4.13 "Segmented
// dictation").
func (c *Coordinator) startSegmented(mic capture.Capturer) {
	segCfg := segment.DefaultConfig(sampleRate)
	segCfg.MaxSegmentSecs = c.cfg.MaxSegmentSecs

	monitor := segment.NewMonitor(segCfg, c.cfg.UseVAD, time.Duration(c.cfg.SegmentIntervalSecs*float64(time.Second)), c.detector)
	segCh := make(chan segment.Audio, segmentSinkCapacity)
	monitor.Start(mic.SharedBuffer(), segCh)

	tracker := NewTracker()
	dispatchCh := make(chan segment.Audio, segmentSinkCapacity)
	forwardDone := make(chan struct{})
	go func() {
		defer close(dispatchCh)
		defer close(forwardDone)
		for seg := range segCh {
			tracker.MarkPending(seg.ID)
			dispatchCh <- seg
		}
	}()

	dispatcher := dispatch.New(c.backend, c.denoiser, c.cfg.Language)
	dispatcher.OnSegmentDone = tracker.Done
	ordered := dispatcher.Run(dispatchCh)
	forwarderDone := make(chan struct{})

	c.mu.Lock()
	c.monitor = monitor
	c.dispatcher = dispatcher
	c.segCh = segCh
	c.ordered = ordered
	c.forwardDone = forwardDone
	c.forwarderDone = forwarderDone
	c.tracker = tracker
	c.mu.Unlock()

	go func() {
		defer close(forwarderDone)
		for text := range ordered {
			c.emitText(text)
		}
	}()
}

// StopDictation ends the current dictation recording and returns the
// final transcribed text. Stop-time errors always leave the state
// machine in Idle (§7 "Propagation policy").
func (c *Coordinator) StopDictation() (string, error) {
	if c.cfg.ContinuousMode {
		return c.stopSegmentedDictation()
	}
	return c.stopSingleShotDictation()
}

func (c *Coordinator) stopSingleShotDictation() (string, error) {
	if err := c.sm.toProcessing(); err != nil {
		c.sm.toIdle()
		return "", err
	}
	defer c.sm.toIdle()

	c.mu.Lock()
	mic := c.mic
	c.mic = nil
	c.mu.Unlock()

	completionCh, err := mic.Stop()
	if err != nil {
		return "", err
	}
	signal := <-completionCh
	samples := signal.Samples

	if len(samples) < minDictationSamples {
		return "", ErrTooShort
	}

	samples = c.maybeDenoise(samples)

	text, err := c.backend.Transcribe(samples, c.cfg.Language)
	if err != nil {
		return "", fmt.Errorf("coordinator: transcription failed: %w", err)
	}
	return text, nil
}

// stopSegmentedDictation implements the critical ordering from §4.13:
// stop the monitor (which emits a final residue segment onto segCh and
// closes it) *then* the mic, then wait for the dispatcher to fully
// drain before returning the accumulated text.
func (c *Coordinator) stopSegmentedDictation() (string, error) {
	if err := c.sm.toProcessing(); err != nil {
		c.sm.toIdle()
		return "", err
	}
	defer c.sm.toIdle()

	c.mu.Lock()
	mic := c.mic
	monitor := c.monitor
	dispatcher := c.dispatcher
	segCh := c.segCh
	forwardDone := c.forwardDone
	forwarderDone := c.forwarderDone
	c.mic = nil
	c.monitor = nil
	c.dispatcher = nil
	c.mu.Unlock()

	monitor.Stop(mic.SharedBuffer(), segCh)
	_, stopErr := mic.Stop()

	// Wait for every segment monitor.Stop() pushed (including its final
	// residue segment) to have reached the dispatcher before checking
	// completed >= sent — otherwise `sent` can still read its pre-final
	// value and WaitDrain returns immediately, before the last segment
	// has even been submitted for transcription.
	<-forwardDone

	drainErr := dispatcher.WaitDrain()
	if drainErr != nil {
		// §4.12 "on timeout, partial output is surfaced": don't block
		// further on the forwarder, which may never observe `ordered`
		// closing if a worker is genuinely stuck.
		return c.finalText(), fmt.Errorf("coordinator: %w (timed out)", drainErr)
	}
	// Wait for the forwarding goroutine to observe `ordered` closing, so
	// every already-flushed result has reached emitText before finalText
	// is computed.
	<-forwarderDone

	if stopErr != nil {
		return c.finalText(), stopErr
	}
	return c.finalText(), nil
}

func (c *Coordinator) finalText() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := ""
	for _, t := range c.accum {
		if out != "" {
			out += " "
		}
		out += t
	}
	return out
}

// maybeDenoise runs the configured denoiser, falling back to the
// original samples on failure (§7 "ResampleFailed / DenoiseFailed").
func (c *Coordinator) maybeDenoise(samples []float32) []float32 {
	if c.denoiser == nil {
		return samples
	}
	denoised, err := c.denoiser.Denoise(samples)
	if err != nil {
		return samples
	}
	return denoised
}
