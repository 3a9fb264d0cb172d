package segment

import (
	"log"
	"sync/atomic"
	"time"

	"github.com/velesar/aiwisper-engine/internal/capture"
	"github.com/velesar/aiwisper-engine/internal/ringbuffer"
	"github.com/velesar/aiwisper-engine/internal/vad"
)

// Audio is one segment handed from the monitor to the dispatcher (C8 ->
// C12), carrying an ordering key and the raw 16 kHz mono samples.
type Audio struct {
	ID        int64
	Samples   []float32
	StartedAt time.Time
	Duration  time.Duration
}

const (
	pollInterval   = 500 * time.Millisecond
	peekSplitSecs  = 5
	peekSpeechSecs = 1
	minResidueMs   = 500
	ringCapacitySecs = 600
)

// Monitor is the Segmentation Monitor (C8): a dedicated-goroutine
// consumer of a capturer's shared buffer that emits Audio segments on
// a sink channel using the split cascade (C7) and a VAD (C2). Grounded
// on the teacher's session.ChunkBuffer accumulate-then-emit loop.
type Monitor struct {
	cfg       Config
	useVAD    bool
	segmentInterval time.Duration

	detector vad.Detector // supplied by the caller, not built on the monitor goroutine; not thread-safe
	ring     *ringbuffer.RingBuffer

	running   atomic.Bool
	speechNow atomic.Bool
	counter   atomic.Int64

	watermark int
	lastSplit time.Time

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewMonitor constructs a monitor. If useVAD is false, splitting falls
// back to a fixed segmentInterval (§4.8). detector may be nil when
// useVAD is false.
func NewMonitor(cfg Config, useVAD bool, segmentInterval time.Duration, detector vad.Detector) *Monitor {
	return &Monitor{
		cfg:             cfg,
		useVAD:          useVAD,
		segmentInterval: segmentInterval,
		detector:        detector,
		ring:            ringbuffer.New(cfg.SampleRate * ringCapacitySecs),
	}
}

// Start begins the monitor loop against buf, pushing segments to sink.
// On push failure (sink full), the segment is logged and dropped
// (§4.8).
func (m *Monitor) Start(buf *capture.SharedBuffer, sink chan<- Audio) {
	m.lastSplit = time.Now()
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	m.running.Store(true)

	go m.loop(buf, sink)
}

func (m *Monitor) loop(buf *capture.SharedBuffer, sink chan<- Audio) {
	defer close(m.doneCh)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.tick(buf, sink)
		}
	}
}

func (m *Monitor) tick(buf *capture.SharedBuffer, sink chan<- Audio) {
	fresh, newMark := buf.Since(m.watermark)
	m.watermark = newMark
	if len(fresh) > 0 {
		m.ring.Write(fresh)
	}

	elapsed := time.Since(m.lastSplit).Seconds()

	var shouldSplit bool
	if m.useVAD && m.detector != nil {
		peekSplit := m.ring.PeekLast(m.cfg.SampleRate * peekSplitSecs)
		shouldSplit = ShouldSplitStreaming(peekSplit, m.detector, elapsed, m.cfg)

		peekSpeech := m.ring.PeekLast(m.cfg.SampleRate * peekSpeechSecs)
		m.speechNow.Store(m.detector.IsSpeech(peekSpeech))
	} else {
		m.speechNow.Store(false)
		shouldSplit = elapsed >= m.segmentInterval.Seconds()
	}

	if !shouldSplit {
		return
	}
	if m.ring.Len() < m.cfg.SampleRate*minResidueMs/1000 {
		return
	}

	samples := m.ring.ReadAll()
	m.emit(samples, sink)
	m.lastSplit = time.Now()
}

func (m *Monitor) emit(samples []float32, sink chan<- Audio) {
	id := m.counter.Add(1)
	audio := Audio{
		ID:        id,
		Samples:   samples,
		StartedAt: m.lastSplit,
		Duration:  time.Duration(len(samples)) * time.Second / time.Duration(m.cfg.SampleRate),
	}
	select {
	case sink <- audio:
	default:
		log.Printf("segment: sink full, dropping segment %d", id)
	}
}

// IsSpeechDetected reports the live VAD hint for the UI (§4.8).
func (m *Monitor) IsSpeechDetected() bool { return m.speechNow.Load() }

// Stop implements the critical stop ordering from §4.8: clear the
// running flag, let the in-flight tick settle, drain the ring buffer
// (falling back to the capturer's tail if the ring was just drained),
// emit one final segment if enough residue remains, then close sink.
// Must be called before the capturer's own Stop.
func (m *Monitor) Stop(buf *capture.SharedBuffer, sink chan Audio) {
	if !m.running.CompareAndSwap(true, false) {
		return
	}
	close(m.stopCh)
	<-m.doneCh

	time.Sleep(100 * time.Millisecond)

	residue := m.ring.ReadAll()
	if len(residue) == 0 {
		residue = buf.PeekLastFallback(m.cfg.SampleRate * peekSplitSecs)
	}

	if len(residue) >= m.cfg.SampleRate*minResidueMs/1000 {
		id := m.counter.Add(1)
		sink <- Audio{
			ID:        id,
			Samples:   residue,
			StartedAt: m.lastSplit,
			Duration:  time.Duration(len(residue)) * time.Second / time.Duration(m.cfg.SampleRate),
		}
	}
	close(sink)
}
