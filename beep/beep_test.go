package beep

import "testing"

func TestGenerateTickDecays(t *testing.T) {
	s := generateTick(1000, 0.1, 0.5, 40)
	if len(s) != sampleRate/10 {
		t.Fatalf("len = %d, want %d", len(s), sampleRate/10)
	}
	peak := func(xs []int16) int16 {
		var p int16
		for _, x := range xs {
			if x < 0 {
				x = -x
			}
			p = max(p, x)
		}
		return p
	}
	head, tail := peak(s[:len(s)/4]), peak(s[3*len(s)/4:])
	if head <= tail {
		t.Errorf("head peak %d should exceed tail peak %d", head, tail)
	}
	if head > 32767/2+1 {
		t.Errorf("peak %d exceeds volume", head)
	}
}

func TestDoubleBeepLayout(t *testing.T) {
	one := generateTick(errorFreq, 0.08, errorVolume, errorDecay)
	two := generateDoubleBeep(errorFreq, 0.08, 0.05, errorVolume, errorDecay)
	gap := int(float64(sampleRate) * 0.05)
	if len(two) != 2*len(one)+gap {
		t.Fatalf("len = %d, want %d", len(two), 2*len(one)+gap)
	}
	for i := range gap {
		if two[len(one)+i] != 0 {
			t.Fatalf("gap sample %d = %d, want silence", i, two[len(one)+i])
		}
	}
}

func TestDisabledIsSilent(t *testing.T) {
	Disable()
	// must return without touching a device
	PlayStart()
	PlayEnd()
	PlayError()
}
