package chat

// PendingID identifies a pending indicator. The zero value is never issued.
type PendingID uint64

// Transcript is the rendering target the workflows write to. Implementations
// must be safe to call from any goroutine.
type Transcript interface {
	Append(Message)
	ShowPending() PendingID
	ClearPending(PendingID)
}

// RecordingIndicator is implemented by views that can show a recording state
// on their trigger control.
type RecordingIndicator interface {
	SetRecording(bool)
}

func setRecording(view Transcript, on bool) {
	if ri, ok := view.(RecordingIndicator); ok {
		ri.SetRecording(on)
	}
}
