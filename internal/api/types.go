package api

// Message is the wire payload shared by the WebSocket and gRPC control
// transports. It is a deliberately small subset of the original GUI
// backend's equivalent Message type (which also carried
// session/model-management, waveform, import/export and speaker-rename
// fields out of scope here): this façade only needs to push live
// capture state and segmented output, and accept the handful of
// commands that drive the coordinator.
type Message struct {
	Type string `json:"type"`

	// Command fields, set by a client request.
	Language          string `json:"language,omitempty"`
	DiarizationMethod string `json:"diarization_method,omitempty"`

	// Push fields, set on messages the server emits.
	Text              string  `json:"text,omitempty"`
	SegmentID         int64   `json:"segment_id,omitempty"`
	Status            string  `json:"status,omitempty"`
	MicAmplitude      float32 `json:"mic_amplitude,omitempty"`
	LoopbackAmplitude float32 `json:"loopback_amplitude,omitempty"`
	Error             string  `json:"error,omitempty"`
}
