package chat

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"vox/log"
)

type Microphone interface {
	Open(ctx context.Context) (CaptureSession, error)
}

// CaptureSession is an open microphone stream. Fragments is closed once a
// requested stop has completed; Err reports why capture ended early, if it
// did. Stop may be called more than once and does not block.
type CaptureSession interface {
	Fragments() <-chan []byte
	MediaType() string
	Stop()
	Live() bool
	Err() error
}

type Blob struct {
	MediaType string
	Data      []byte
}

func (b Blob) Base64() string {
	return base64.StdEncoding.EncodeToString(b.Data)
}

// RecordingSession collects the fragments of one recording in arrival order.
type RecordingSession struct {
	capture   CaptureSession
	fragments [][]byte
	started   time.Time
	stopped   time.Time
}

func newRecordingSession(capture CaptureSession) *RecordingSession {
	return &RecordingSession{capture: capture, started: time.Now()}
}

func (s *RecordingSession) Blob() Blob {
	return Blob{
		MediaType: s.capture.MediaType(),
		Data:      bytes.Join(s.fragments, nil),
	}
}

func (s *RecordingSession) Duration() time.Duration {
	return s.stopped.Sub(s.started)
}

// AudioFlow records from a Microphone and sends the result as one audio
// request. Only one recording is in progress at a time: from the moment the
// device is requested until the recording has been encoded.
type AudioFlow struct {
	mic     Microphone
	backend Backend
	view    Transcript

	mu      sync.Mutex
	busy    bool
	session *RecordingSession
	done    chan struct{}
}

func NewAudioFlow(mic Microphone, b Backend, view Transcript) *AudioFlow {
	return &AudioFlow{mic: mic, backend: b, view: view, done: closedChan()}
}

func closedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// Recording reports whether a capture is live.
func (f *AudioFlow) Recording() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session != nil && f.session.capture.Live()
}

// Busy reports whether a recording is being acquired, captured or encoded.
func (f *AudioFlow) Busy() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.busy
}

// Done returns a channel closed when the latest recording has been fully
// handled, reply included.
func (f *AudioFlow) Done() <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.done
}

func (f *AudioFlow) StartRecording(ctx context.Context) error {
	f.mu.Lock()
	if f.busy {
		f.mu.Unlock()
		return ErrRecordingActive
	}
	f.busy = true
	f.mu.Unlock()

	capture, err := f.mic.Open(ctx)
	if err != nil {
		f.mu.Lock()
		f.busy = false
		f.mu.Unlock()
		log.Errorf("microphone open failed: %v", err)
		f.view.Append(BotMessage(MicrophoneApology))
		if !errors.Is(err, ErrDeviceUnavailable) {
			err = fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
		}
		return err
	}

	session := newRecordingSession(capture)
	done := make(chan struct{})
	f.mu.Lock()
	f.session = session
	f.done = done
	f.mu.Unlock()

	f.view.Append(UserMessage(RecordingNotice))
	setRecording(f.view, true)

	captured := make(chan *RecordingSession, 1)
	go runCapture(session, captured)
	go f.finalize(ctx, captured, done)
	return nil
}

// StopRecording asks the live capture to stop and returns a channel that is
// closed once the recording has been sent and answered. Without a live
// capture it does nothing and the channel is already closed.
func (f *AudioFlow) StopRecording() <-chan struct{} {
	f.mu.Lock()
	session, done := f.session, f.done
	f.mu.Unlock()

	if session == nil || !session.capture.Live() {
		return closedChan()
	}
	session.capture.Stop()
	return done
}

// Toggle starts a recording when none is live and stops it otherwise.
func (f *AudioFlow) Toggle(ctx context.Context) error {
	if f.Recording() {
		f.StopRecording()
		return nil
	}
	return f.StartRecording(ctx)
}

func runCapture(s *RecordingSession, out chan<- *RecordingSession) {
	for frag := range s.capture.Fragments() {
		s.fragments = append(s.fragments, frag)
	}
	s.stopped = time.Now()
	out <- s
}

func (f *AudioFlow) finalize(ctx context.Context, in <-chan *RecordingSession, done chan struct{}) {
	defer close(done)

	s := <-in
	if err := s.capture.Err(); err != nil {
		f.release()
		log.Errorf("recording discarded: %v", err)
		f.view.Append(BotMessage(MicrophoneApology))
		return
	}

	blob := s.Blob()
	encoded := blob.Base64()
	log.Infof("recording finalized: %s, %d fragments, %d bytes, %s",
		blob.MediaType, len(s.fragments), len(blob.Data), s.Duration().Round(time.Millisecond))
	f.release()

	id := f.view.ShowPending()
	resp, err := f.backend.SendAudio(ctx, encoded)
	_ = deliver(f.view, id, resp, err, AudioApology)
}

func (f *AudioFlow) release() {
	f.mu.Lock()
	f.busy = false
	f.session = nil
	f.mu.Unlock()
	setRecording(f.view, false)
}
