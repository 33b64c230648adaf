// Package beep plays short audible cues for recording start, stop and
// problems. Playback is best effort: any device error is swallowed.
package beep

import (
	"math"
	"sync/atomic"
)

var disabled atomic.Bool

func Disable() { disabled.Store(true) }

const (
	sampleRate = 44100

	// Start beep: high pitch, short
	startFreq   = 1200
	startVolume = 0.5
	startDecay  = 60

	// End beep: medium pitch, slightly longer
	endFreq   = 900
	endVolume = 0.5
	endDecay  = 40

	// Error beep: low pitch double-beep
	errorFreq   = 350
	errorVolume = 0.6
	errorDecay  = 30
)

// pulse buffers ~100ms before playing, so cues carry a silent-ish tail
const cueDuration = 0.2

var (
	startCue = generateTick(startFreq, cueDuration, startVolume, startDecay)
	endCue   = generateTick(endFreq, cueDuration, endVolume, endDecay)
	errorCue = generateDoubleBeep(errorFreq, 0.08, 0.05, errorVolume, errorDecay)
)

// generateTick returns mono s16 samples of a decaying sine.
func generateTick(freq, duration, volume, decay float64) []int16 {
	n := int(float64(sampleRate) * duration)
	samples := make([]int16, n)
	for i := range samples {
		t := float64(i) / float64(sampleRate)
		envelope := math.Exp(-t * decay)
		samples[i] = int16(math.Sin(2*math.Pi*freq*t) * 32767 * volume * envelope)
	}
	return samples
}

func generateDoubleBeep(freq, beepDur, gapDur, volume, decay float64) []int16 {
	beep := generateTick(freq, beepDur, volume, decay)
	gap := make([]int16, int(float64(sampleRate)*gapDur))
	result := make([]int16, 0, len(beep)*2+len(gap))
	result = append(result, beep...)
	result = append(result, gap...)
	result = append(result, beep...)
	return result
}

func play(samples []int16) {
	if disabled.Load() || len(samples) == 0 {
		return
	}
	go playSamples(samples)
}

func PlayStart() { play(startCue) }
func PlayEnd()   { play(endCue) }
func PlayError() { play(errorCue) }
