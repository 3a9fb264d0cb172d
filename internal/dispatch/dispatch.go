// Package dispatch implements the Segment Dispatcher (C12): it takes
// an unbounded channel of audio segments, runs transcription workers
// in parallel, and serializes completions back into strict segment-ID
// order. Adapted from per-chunk goroutine dispatch in
// internal/service/transcription.go (HandleChunk) and the
// channel+timeout pattern in ai/pipeline.go.
package dispatch

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/velesar/aiwisper-engine/internal/denoise"
	"github.com/velesar/aiwisper-engine/internal/segment"
	"github.com/velesar/aiwisper-engine/internal/transcribe"
)

// Progress reports the dispatcher's live counters for the UI (§4.12).
type Progress struct {
	Completed int64
	Sent      int64
}

type completion struct {
	id   int64
	text string
	err  error
}

// Dispatcher consumes audio segments and emits ordered transcribed
// text. Construct one per session.
type Dispatcher struct {
	backend  transcribe.Backend
	denoiser denoise.Denoiser // nil disables denoising
	language string

	completed atomic.Int64
	sent      atomic.Int64
	canceled  atomic.Bool

	// OnSegmentDone, if set before Run is called, is invoked once per
	// segment as soon as its worker finishes (err non-nil on
	// TranscriptionFailed, §7). Used by internal/coordinator's progress
	// tracker to back the per-segment "done or error" indicator §4.12
	// calls for; left nil by default so it costs nothing when unused.
	OnSegmentDone func(id int64, err error)

	wg sync.WaitGroup
}

// New constructs a dispatcher. denoiser may be nil to skip denoising.
func New(backend transcribe.Backend, denoiser denoise.Denoiser, language string) *Dispatcher {
	return &Dispatcher{backend: backend, denoiser: denoiser, language: language}
}

// Progress returns the current (completed, sent) counters.
func (d *Dispatcher) Progress() Progress {
	return Progress{Completed: d.completed.Load(), Sent: d.sent.Load()}
}

// Cancel requests cooperative cancellation: no new work is submitted
// after the current call to Run observes it (§4.12).
func (d *Dispatcher) Cancel() { d.canceled.Store(true) }

// stopTimeout is the safety cap the enclosing stop path waits for
// completed >= sent before giving up and surfacing a partial result
// (§4.12).
const stopTimeout = 5 * time.Minute

// Run spawns one worker per incoming segment (up to the runtime's
// scheduling limits), and serializes completions in strict segment-ID
// order onto the returned ordered channel. The ordered channel is
// closed once segments is closed/drained and every worker has reported.
func (d *Dispatcher) Run(segments <-chan segment.Audio) <-chan string {
	ordered := make(chan string, 16)
	completions := make(chan completion, 16)

	go func() {
		for seg := range segments {
			if d.canceled.Load() {
				continue
			}
			d.sent.Add(1)
			d.wg.Add(1)
			go d.work(seg, completions)
		}
		go func() {
			d.wg.Wait()
			close(completions)
		}()
	}()

	go d.serialize(completions, ordered)
	return ordered
}

func (d *Dispatcher) work(seg segment.Audio, completions chan<- completion) {
	defer d.wg.Done()

	samples := seg.Samples
	if d.denoiser != nil {
		if denoised, err := d.denoiser.Denoise(samples); err == nil {
			samples = denoised
		}
		// ResampleFailed/DenoiseFailed: fall back to original samples (§7).
	}

	text, err := d.backend.Transcribe(samples, d.language)
	d.completed.Add(1)
	if d.OnSegmentDone != nil {
		d.OnSegmentDone(seg.ID, err)
	}
	completions <- completion{id: seg.ID, text: text, err: err}
}

// serialize buffers out-of-order completions and flushes consecutive
// runs starting at nextExpected (§4.12).
func (d *Dispatcher) serialize(completions <-chan completion, ordered chan<- string) {
	defer close(ordered)

	nextExpected := int64(1)
	pending := make(map[int64]string)

	flush := func() {
		for {
			text, ok := pending[nextExpected]
			if !ok {
				return
			}
			delete(pending, nextExpected)
			if text != "" {
				ordered <- text
			}
			nextExpected++
		}
	}

	for c := range completions {
		text := c.text
		if c.err != nil {
			// TranscriptionFailed: treated as empty text for this segment,
			// ordering continues (§7).
			text = ""
		}
		pending[c.id] = text
		flush()
	}

	// Cancellation: drain whatever completed work remains into output,
	// even if it leaves gaps (§4.12).
	if len(pending) > 0 {
		ids := make([]int64, 0, len(pending))
		for id := range pending {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		for _, id := range ids {
			if text := pending[id]; text != "" {
				ordered <- text
			}
		}
	}
}

// WaitDrain blocks until completed >= sent or stopTimeout elapses,
// returning an error on timeout so the caller can surface partial
// output with a "timed out" status (§4.12).
func (d *Dispatcher) WaitDrain() error {
	deadline := time.Now().Add(stopTimeout)
	for time.Now().Before(deadline) {
		if d.completed.Load() >= d.sent.Load() {
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	return fmt.Errorf("dispatch: timed out waiting for drain (completed=%d, sent=%d)", d.completed.Load(), d.sent.Load())
}
