// Package recorder turns a capture device into a stream of encoded audio
// fragments for the chat audio workflow.
package recorder

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"vox/audio"
	"vox/chat"
	"vox/encoder"
	"vox/log"
)

// DefaultSpeechThreshold is the RMS level above which a tick counts as voice.
const DefaultSpeechThreshold = 0.02

type Config struct {
	Device          *audio.DeviceInfo // nil selects the system default
	Format          string            // encoder format, "" for flac
	AutoStop        bool
	SpeechThreshold float64

	OnLevel   func(rms float64)
	OnSilence func(SilenceEvent)
}

type Recorder struct {
	actx audio.Context
	cfg  Config
}

func New(actx audio.Context, cfg Config) *Recorder {
	if cfg.SpeechThreshold == 0 {
		cfg.SpeechThreshold = DefaultSpeechThreshold
	}
	return &Recorder{actx: actx, cfg: cfg}
}

// Open starts capturing. The session stops when ctx is cancelled.
func (r *Recorder) Open(ctx context.Context) (chat.CaptureSession, error) {
	enc, err := encoder.New(r.cfg.Format)
	if err != nil {
		return nil, err
	}

	capture, err := r.actx.NewCapture(r.cfg.Device, audio.CaptureConfig{
		SampleRate: encoder.SampleRate,
		Channels:   encoder.Channels,
	})
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("%w: %v", chat.ErrDeviceUnavailable, err)
	}

	s := newSession(capture, enc, r.cfg)
	capture.SetCallback(s.feed)
	go s.encodeLoop()

	if err := capture.Start(); err != nil {
		s.abort()
		return nil, fmt.Errorf("%w: %v", chat.ErrDeviceUnavailable, err)
	}
	s.live.Store(true)
	go s.monitor()
	release := context.AfterFunc(ctx, s.Stop)
	s.hookMu.Lock()
	s.release = release
	s.hookMu.Unlock()

	log.Infof("recording started on %s", capture.DeviceName())
	return s, nil
}

type Session struct {
	capture audio.CaptureDevice
	enc     encoder.Encoder
	cfg     Config
	started time.Time

	fragments chan []byte
	blockChan chan []int16
	sampleBuf []int16
	bufMu     sync.Mutex
	closed    bool

	live        atomic.Bool
	heardSpeech atomic.Bool
	nFragments  atomic.Int64
	stopOnce    sync.Once
	stopMonitor chan struct{}

	// release drops the stop hook registered on the Open context.
	hookMu  sync.Mutex
	release func() bool

	errMu sync.Mutex
	err   error
}

func newSession(capture audio.CaptureDevice, enc encoder.Encoder, cfg Config) *Session {
	return &Session{
		capture:     capture,
		enc:         enc,
		cfg:         cfg,
		started:     time.Now(),
		fragments:   make(chan []byte, 16),
		blockChan:   make(chan []int16, 64),
		stopMonitor: make(chan struct{}),
	}
}

func (s *Session) Fragments() <-chan []byte { return s.fragments }
func (s *Session) MediaType() string        { return s.enc.MediaType() }
func (s *Session) Live() bool               { return s.live.Load() }

func (s *Session) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// Stop ends the capture. The fragments channel closes once the last samples
// have been encoded.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		s.live.Store(false)
		go s.finish()
	})
}

func (s *Session) fail(err error) {
	s.errMu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.errMu.Unlock()
	s.Stop()
}

// feed runs on the audio thread. It never waits on the network, only on the
// encoder when the block buffer is full.
func (s *Session) feed(data []byte, _ uint32) {
	rms := audio.RMS(data)
	if s.cfg.OnLevel != nil {
		s.cfg.OnLevel(rms)
	}
	if rms >= s.cfg.SpeechThreshold {
		s.heardSpeech.Store(true)
	}

	s.bufMu.Lock()
	defer s.bufMu.Unlock()
	if s.closed {
		return
	}
	for i := 0; i+1 < len(data); i += 2 {
		s.sampleBuf = append(s.sampleBuf, int16(binary.LittleEndian.Uint16(data[i:])))
	}
	for len(s.sampleBuf) >= encoder.BlockSize {
		block := make([]int16, encoder.BlockSize)
		copy(block, s.sampleBuf[:encoder.BlockSize])
		s.sampleBuf = s.sampleBuf[encoder.BlockSize:]
		s.blockChan <- block
	}
}

func (s *Session) encodeLoop() {
	defer close(s.fragments)
	for block := range s.blockChan {
		start := time.Now()
		if err := s.enc.EncodeBlock(block); err != nil {
			s.fail(fmt.Errorf("encode: %w", err))
			continue
		}
		s.enc.AddEncodeTime(time.Since(start))
		s.emit(s.enc.Flush())
	}
	if err := s.enc.Close(); err != nil {
		s.fail(fmt.Errorf("encoder close: %w", err))
	}
	s.emit(s.enc.Flush())
	s.logMetrics()
}

func (s *Session) emit(b []byte) {
	if len(b) == 0 {
		return
	}
	s.nFragments.Add(1)
	s.fragments <- b
}

func (s *Session) finish() {
	s.hookMu.Lock()
	if s.release != nil {
		s.release()
	}
	s.hookMu.Unlock()

	close(s.stopMonitor)
	s.capture.Stop()
	s.capture.ClearCallback()

	s.bufMu.Lock()
	if len(s.sampleBuf) > 0 {
		partial := make([]int16, len(s.sampleBuf))
		copy(partial, s.sampleBuf)
		s.sampleBuf = nil
		s.blockChan <- partial
	}
	s.closed = true
	close(s.blockChan)
	s.bufMu.Unlock()

	s.capture.Close()
}

// abort tears down a session whose device never started.
func (s *Session) abort() {
	s.stopOnce.Do(func() {
		s.capture.ClearCallback()
		s.bufMu.Lock()
		s.closed = true
		close(s.blockChan)
		s.bufMu.Unlock()
		for range s.fragments {
		}
		s.capture.Close()
	})
}

func (s *Session) monitor() {
	mon := newSilenceMonitor(s.cfg.AutoStop)
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopMonitor:
			return
		case <-ticker.C:
		}
		ev := mon.Tick(s.heardSpeech.Swap(false))
		if ev == SilenceNone {
			continue
		}
		log.Infof("silence event: %s", ev)
		if s.cfg.OnSilence != nil {
			s.cfg.OnSilence(ev)
		}
		if ev == SilenceAutoStop {
			s.Stop()
			return
		}
	}
}

func (s *Session) logMetrics() {
	enc := s.enc
	rawSize := enc.TotalFrames() * 2
	encodedSize := enc.EncodedBytes()
	compressionPct := 0.0
	if rawSize > 0 {
		compressionPct = (1.0 - float64(encodedSize)/float64(rawSize)) * 100
	}
	log.Recording(log.RecordingMetrics{
		Device:           s.capture.DeviceName(),
		AudioLengthS:     float64(enc.TotalFrames()) / float64(encoder.SampleRate),
		Fragments:        int(s.nFragments.Load()),
		RawSizeKB:        float64(rawSize) / 1024,
		CompressedSizeKB: float64(encodedSize) / 1024,
		CompressionPct:   math.Round(compressionPct*10) / 10,
		EncodeTimeMs:     float64(enc.EncodeTime().Milliseconds()),
	})
}
