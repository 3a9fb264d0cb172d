package ringbuffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplesOf(n int, start float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = start + float32(i)
	}
	return out
}

func TestWriteReadAllWithinCapacity(t *testing.T) {
	rb := New(10)
	rb.Write(samplesOf(3, 0))
	rb.Write(samplesOf(4, 100))

	got := rb.ReadAll()
	want := append(samplesOf(3, 0), samplesOf(4, 100)...)
	assert.Equal(t, want, got)
	assert.Equal(t, 0, rb.Len())
}

func TestWriteOverflowKeepsNewestCapacitySamples(t *testing.T) {
	rb := New(5)
	rb.Write(samplesOf(3, 0))  // [0,1,2]
	rb.Write(samplesOf(4, 10)) // total logical 7, capacity 5 -> keep last 5: [2,10,11,12,13]

	got := rb.ReadAll()
	require.Len(t, got, 5)
	want := append(samplesOf(3, 0), samplesOf(4, 10)...)
	want = want[len(want)-5:]
	assert.Equal(t, want, got)
}

func TestPeekLastDoesNotMutate(t *testing.T) {
	rb := New(5)
	rb.Write(samplesOf(5, 0))

	peek1 := rb.PeekLast(3)
	peek2 := rb.PeekLast(3)
	assert.Equal(t, peek1, peek2)
	assert.Equal(t, samplesOf(3, 0), peek1)
	assert.Equal(t, 5, rb.Len())

	all := rb.ReadAll()
	assert.Equal(t, samplesOf(5, 0), all)
}

func TestPeekLastReturnsOldestAfterWrap(t *testing.T) {
	rb := New(5)
	rb.Write(samplesOf(5, 1)) // [1,2,3,4,5]
	rb.Write(samplesOf(2, 6)) // overwrites oldest two -> [3,4,5,6,7]

	got := rb.PeekLast(2)
	assert.Equal(t, []float32{3, 4}, got)
}

func TestPeekLastMoreThanSizeReturnsAll(t *testing.T) {
	rb := New(10)
	rb.Write(samplesOf(4, 0))
	got := rb.PeekLast(100)
	assert.Equal(t, samplesOf(4, 0), got)
}

func TestClearEmptiesBuffer(t *testing.T) {
	rb := New(5)
	rb.Write(samplesOf(5, 0))
	rb.Clear()
	assert.Equal(t, 0, rb.Len())
	assert.Empty(t, rb.ReadAll())
}

func TestWriteSingleBatchLargerThanCapacity(t *testing.T) {
	rb := New(4)
	rb.Write(samplesOf(10, 0)) // overflows in a single call
	got := rb.ReadAll()
	assert.Equal(t, samplesOf(4, 6), got)
}

func TestManySmallWritesWrapCorrectly(t *testing.T) {
	rb := New(6)
	for i := 0; i < 20; i++ {
		rb.Write([]float32{float32(i)})
	}
	got := rb.ReadAll()
	want := []float32{14, 15, 16, 17, 18, 19}
	assert.Equal(t, want, got)
}
