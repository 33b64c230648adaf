//go:build !linux

package beep

import (
	"encoding/binary"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
)

var (
	malgoCtx  *malgo.AllocatedContext
	device    *malgo.Device
	soundOnce sync.Once
	playMu    sync.Mutex

	// read from the device callback
	current atomic.Pointer[[]byte]
	playPos atomic.Uint32
)

func initDevice() error {
	config := malgo.DefaultDeviceConfig(malgo.Playback)
	config.Playback.Format = malgo.FormatS16
	config.Playback.Channels = 1
	config.SampleRate = sampleRate

	var err error
	device, err = malgo.InitDevice(malgoCtx.Context, config, malgo.DeviceCallbacks{Data: dataCallback})
	return err
}

func initSound() {
	var err error
	malgoCtx, err = malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return
	}
	if err := initDevice(); err != nil {
		_ = malgoCtx.Uninit()
		malgoCtx = nil
	}
}

func dataCallback(pOutput, _ []byte, frameCount uint32) {
	clear(pOutput)
	samples := current.Load()
	if samples == nil {
		return
	}
	pos := playPos.Load()
	remaining := uint32(len(*samples)) - pos
	if remaining == 0 {
		current.Store(nil)
		return
	}
	n := min(frameCount*2, remaining)
	copy(pOutput[:n], (*samples)[pos:pos+n])
	playPos.Store(pos + n)
}

func toBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

func playSamples(samples []int16) {
	soundOnce.Do(initSound)
	if malgoCtx == nil {
		return
	}

	playMu.Lock()
	defer playMu.Unlock()
	if device == nil {
		return
	}

	_ = device.Stop()
	buf := toBytes(samples)
	playPos.Store(0)
	current.Store(&buf)

	if err := device.Start(); err != nil {
		// device can go stale after sleep/wake; recreate once
		device.Uninit()
		if err := initDevice(); err != nil {
			current.Store(nil)
			return
		}
		if err := device.Start(); err != nil {
			current.Store(nil)
		}
	}
}
