package main

import (
	"errors"
	"strings"
	"testing"
	"time"

	"vox/backend"
	"vox/nettrace"
)

func TestPercentiles(t *testing.T) {
	tests := []struct {
		name string
		in   []float64
		want [5]float64
	}{
		{"single", []float64{7}, [5]float64{7, 7, 7, 7, 7}},
		{"two", []float64{1, 9}, [5]float64{1, 1, 1, 1, 9}},
		{"ten", []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, [5]float64{1, 5, 9, 9, 10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := percentiles(tt.in); got != tt.want {
				t.Errorf("percentiles(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestSessionStatsObserve(t *testing.T) {
	var s sessionStats
	if s.Table() != "" {
		t.Error("expected empty table before any exchange")
	}

	for _, total := range []time.Duration{300, 100, 200} {
		s.observe(backend.Exchange{
			Kind:   backend.KindText,
			Status: 200,
			Metrics: &nettrace.Metrics{
				Total: total * time.Millisecond,
				TTFB:  total / 2 * time.Millisecond,
			},
		})
	}
	s.observe(backend.Exchange{Kind: backend.KindAudio, Err: errors.New("boom")})

	if s.Sent() != 3 {
		t.Errorf("Sent = %d, want 3", s.Sent())
	}
	if s.Failed() != 1 {
		t.Errorf("Failed = %d, want 1", s.Failed())
	}

	st := s.Snapshot()
	if st.TotalMs[0] != 100 || st.TotalMs[4] != 300 {
		t.Errorf("TotalMs = %v, want min 100 max 300", st.TotalMs)
	}
	if st.TTFBMs[1] != 100 {
		t.Errorf("TTFBMs p50 = %v, want 100", st.TTFBMs[1])
	}

	table := s.Table()
	for _, row := range []string{"total", "ttfb", "tls", "p95"} {
		if !strings.Contains(table, row) {
			t.Errorf("table missing %q:\n%s", row, table)
		}
	}
}
