package audio

import (
	"encoding/binary"
	"math"
	"testing"
)

func TestIsBluetooth(t *testing.T) {
	for _, tt := range []struct {
		name string
		want bool
	}{
		{"AirPods Pro", true},
		{"Jabra Evolve2", true},
		{"Headset (BT)", false},
		{"Headset BT mic", true},
		{"Built-in Microphone", false},
		{"alsa_input.usb-Blue_Yeti", false},
		{"WH-1000XM4 Hands-Free", true},
	} {
		if got := IsBluetooth(tt.name); got != tt.want {
			t.Errorf("IsBluetooth(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestRMS(t *testing.T) {
	if got := RMS(nil); got != 0 {
		t.Errorf("RMS(nil) = %v, want 0", got)
	}

	silence := make([]byte, 640)
	if got := RMS(silence); got != 0 {
		t.Errorf("RMS(silence) = %v, want 0", got)
	}

	full := make([]byte, 640)
	for i := 0; i < len(full); i += 2 {
		v := int16(math.MaxInt16)
		if (i/2)%2 == 1 {
			v = math.MinInt16 + 1
		}
		binary.LittleEndian.PutUint16(full[i:], uint16(v))
	}
	if got := RMS(full); got < 0.99 || got > 1.0 {
		t.Errorf("RMS(full scale) = %v, want ~1.0", got)
	}
}

func TestFindDevice(t *testing.T) {
	ctx := NewFakeContextPCM(nil, false)
	ctx.devices = []DeviceInfo{{ID: "1", Name: "USB Mic"}, {ID: "2", Name: "Built-in"}}

	dev, err := FindDevice(ctx, "Built-in")
	if err != nil {
		t.Fatal(err)
	}
	if dev == nil || dev.ID != "2" {
		t.Fatalf("FindDevice = %+v, want ID 2", dev)
	}

	dev, err = FindDevice(ctx, "missing")
	if err != nil || dev != nil {
		t.Errorf("FindDevice(missing) = %+v, %v; want nil, nil", dev, err)
	}

	dev, err = FindDevice(ctx, "")
	if err != nil || dev != nil {
		t.Errorf("FindDevice(\"\") = %+v, %v; want nil, nil", dev, err)
	}
}
