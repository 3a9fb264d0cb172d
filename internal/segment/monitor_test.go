package segment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velesar/aiwisper-engine/internal/capture"
)

func TestMonitorNoVADSplitsOnInterval(t *testing.T) {
	cfg := DefaultConfig(16000)
	mon := NewMonitor(cfg, false, 50*time.Millisecond, nil)

	buf := capture.NewSharedBuffer()
	buf.Append(make([]float32, cfg.SampleRate)) // 1s of audio, above minResidueMs

	sink := make(chan Audio, 4)
	mon.Start(buf, sink)

	select {
	case seg := <-sink:
		assert.Equal(t, int64(1), seg.ID)
		assert.False(t, mon.IsSpeechDetected())
	case <-time.After(2 * time.Second):
		t.Fatal("expected a segment to be emitted via the interval fallback")
	}

	mon.Stop(buf, sink)
}

func TestMonitorStopDrainsResidueAsFinalSegment(t *testing.T) {
	cfg := DefaultConfig(16000)
	// Long interval so the interval path never fires during the test.
	mon := NewMonitor(cfg, false, time.Hour, nil)

	buf := capture.NewSharedBuffer()
	buf.Append(make([]float32, cfg.SampleRate))

	sink := make(chan Audio, 4)
	mon.Start(buf, sink)
	time.Sleep(50 * time.Millisecond)

	mon.Stop(buf, sink)

	var segments []Audio
	for seg := range sink {
		segments = append(segments, seg)
	}
	require.Len(t, segments, 1)
	assert.Equal(t, cfg.SampleRate, len(segments[0].Samples))
}

func TestMonitorStopIsIdempotent(t *testing.T) {
	cfg := DefaultConfig(16000)
	mon := NewMonitor(cfg, false, time.Hour, nil)
	buf := capture.NewSharedBuffer()
	sink := make(chan Audio, 1)
	mon.Start(buf, sink)
	mon.Stop(buf, sink)
	assert.NotPanics(t, func() { mon.Stop(buf, sink) })
}
