package audio

import (
	"fmt"
	"os"
	"sync"
	"time"

	"vox/encoder"
)

const (
	fakeFrameSize     = 1024
	fakeBytesPerFrame = 2 // 16-bit mono
)

// FakeContext replays PCM through its captures. With realtime false the clip
// is fed as fast as the callback accepts it, otherwise at device pace. Silence
// follows at device pace until Stop.
type FakeContext struct {
	pcm      []byte
	realtime bool
	devices  []DeviceInfo
	startErr error

	mu   sync.Mutex
	last *FakeCapture
}

func NewFakeContext(wavPath string, realtime bool) (*FakeContext, error) {
	data, err := os.ReadFile(wavPath)
	if err != nil {
		return nil, err
	}
	if len(data) > WAVHeaderSize {
		data = data[WAVHeaderSize:]
	}
	return NewFakeContextPCM(data, realtime), nil
}

func NewFakeContextPCM(pcm []byte, realtime bool) *FakeContext {
	return &FakeContext{pcm: pcm, realtime: realtime}
}

// FailStart makes every capture created afterwards refuse to start, the way a
// denied microphone permission does.
func (f *FakeContext) FailStart(err error) { f.startErr = err }

func (f *FakeContext) Devices() ([]DeviceInfo, error) { return f.devices, nil }
func (f *FakeContext) Close()                         {}

func (f *FakeContext) NewCapture(_ *DeviceInfo, _ CaptureConfig) (CaptureDevice, error) {
	c := &FakeCapture{
		pcm:       f.pcm,
		realtime:  f.realtime,
		startErr:  f.startErr,
		audioDone: make(chan struct{}),
	}
	f.mu.Lock()
	f.last = c
	f.mu.Unlock()
	return c, nil
}

// LastCapture returns the most recently created capture, or nil.
func (f *FakeContext) LastCapture() *FakeCapture {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

type FakeCapture struct {
	pcm       []byte
	realtime  bool
	startErr  error
	audioDone chan struct{}

	mu       sync.Mutex
	cb       DataCallback
	started  bool
	stopCh   chan struct{}
	feedDone chan struct{}
}

// AudioDone is closed once the whole clip has been delivered.
func (f *FakeCapture) AudioDone() <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.audioDone
}

func (f *FakeCapture) SetCallback(cb DataCallback) {
	f.mu.Lock()
	f.cb = cb
	f.mu.Unlock()
}

func (f *FakeCapture) ClearCallback() {
	f.mu.Lock()
	f.cb = nil
	f.mu.Unlock()
}

func (f *FakeCapture) callback() DataCallback {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cb
}

func (f *FakeCapture) DeviceName() string { return "fake" }

func (f *FakeCapture) feedChunk(cb DataCallback, pos, chunkBytes int) int {
	end := min(pos+chunkBytes, len(f.pcm))
	chunk := make([]byte, end-pos)
	copy(chunk, f.pcm[pos:end])
	cb(chunk, uint32(len(chunk)/fakeBytesPerFrame))
	return end
}

func (f *FakeCapture) Start() error {
	if f.startErr != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, f.startErr)
	}
	f.mu.Lock()
	if f.started {
		f.mu.Unlock()
		return fmt.Errorf("fake capture already started")
	}
	if f.stopCh != nil {
		f.audioDone = make(chan struct{}) // replay
	}
	f.started = true
	f.stopCh = make(chan struct{})
	f.feedDone = make(chan struct{})
	stopCh, feedDone, audioDone := f.stopCh, f.feedDone, f.audioDone
	f.mu.Unlock()

	chunkBytes := fakeFrameSize * fakeBytesPerFrame
	// silence after the clip always arrives at device pace
	interval := time.Duration(fakeFrameSize) * time.Second / time.Duration(encoder.SampleRate)

	if len(f.pcm) == 0 {
		close(audioDone)
	}

	go func() {
		defer close(feedDone)
		pos := 0
		silence := make([]byte, chunkBytes)
		for {
			cb := f.callback()
			if f.realtime || pos >= len(f.pcm) || cb == nil {
				select {
				case <-stopCh:
					return
				case <-time.After(interval):
				}
				if cb = f.callback(); cb == nil {
					continue
				}
			} else {
				select {
				case <-stopCh:
					return
				default:
				}
			}
			if pos < len(f.pcm) {
				pos = f.feedChunk(cb, pos, chunkBytes)
				if pos >= len(f.pcm) {
					close(audioDone)
				}
				continue
			}
			cb(silence, fakeFrameSize)
		}
	}()

	return nil
}

func (f *FakeCapture) Stop() {
	f.mu.Lock()
	if !f.started {
		f.mu.Unlock()
		return
	}
	f.started = false
	stopCh, feedDone := f.stopCh, f.feedDone
	f.mu.Unlock()

	close(stopCh)
	<-feedDone
}

func (f *FakeCapture) Close() { f.Stop() }
