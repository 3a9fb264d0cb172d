package transcribe

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateModelPathRejectsTraversal(t *testing.T) {
	assert.Error(t, validateModelPath("../etc/passwd"))
	assert.Error(t, validateModelPath("models/../../secret"))
}

func TestValidateModelPathRejectsSeparators(t *testing.T) {
	assert.Error(t, validateModelPath("models/whisper.bin"))
	assert.Error(t, validateModelPath(`models\whisper.bin`))
}

func TestValidateModelPathRejectsNUL(t *testing.T) {
	assert.Error(t, validateModelPath("model\x00.bin"))
}

func TestValidateModelPathAcceptsBareFilename(t *testing.T) {
	assert.NoError(t, validateModelPath("whisper-small.bin"))
}

func TestWhisperNotLoadedReturnsBackendNotLoaded(t *testing.T) {
	w := NewWhisper()
	assert.False(t, w.IsLoaded())
	_, ok := w.ModelName()
	assert.False(t, ok)

	_, err := w.Transcribe(make([]float32, 16000), "en")
	assert.ErrorIs(t, err, ErrBackendNotLoaded)
}

func TestWhisperLoadModelRejectsInvalidPath(t *testing.T) {
	w := NewWhisper()
	err := w.LoadModel("../outside.bin")
	assert.ErrorIs(t, err, ErrInvalidModelPath)
}

func TestTDTLoadModelAlwaysFails(t *testing.T) {
	tdt := &TDT{}
	assert.Error(t, tdt.LoadModel("anything.bin"))
}

func TestTDTNotLoadedReturnsBackendNotLoaded(t *testing.T) {
	tdt := &TDT{}
	assert.False(t, tdt.IsLoaded())
	_, err := tdt.Transcribe(make([]float32, 16000), "")
	assert.ErrorIs(t, err, ErrBackendNotLoaded)
}
