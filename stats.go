package main

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"vox/backend"
	"vox/log"
)

type ExchangeRecord struct {
	Kind        backend.Kind
	TotalTimeMs float64
	TTFBMs      float64
	TLSTimeMs   float64
	Failed      bool
}

type PercentileStats struct {
	TotalMs [5]float64 // min, p50, p90, p95, max
	TTFBMs  [5]float64
	TLSMs   [5]float64
}

// sessionStats collects one record per backend exchange for the latency
// table and the session_end log line.
type sessionStats struct {
	mu      sync.Mutex
	records []ExchangeRecord
	stats   PercentileStats
	failed  int
}

func ms(d time.Duration) float64 { return float64(d.Microseconds()) / 1000 }

// observe is the backend.Observer for the session.
func (s *sessionStats) observe(ex backend.Exchange) {
	m := log.ExchangeMetrics{
		Kind:         string(ex.Kind),
		RequestID:    ex.RequestID,
		Status:       ex.Status,
		RequestBytes: ex.RequestBytes,
		Err:          ex.Err,
	}
	rec := ExchangeRecord{Kind: ex.Kind, Failed: ex.Err != nil}
	if t := ex.Metrics; t != nil {
		m.DNSTimeMs = ms(t.DNS)
		m.TCPTimeMs = ms(t.TCP)
		m.TLSTimeMs = ms(t.TLS)
		m.TTFBMs = ms(t.TTFB)
		m.TotalTimeMs = ms(t.Total)
		m.ConnReused = t.ConnReused
		rec.TotalTimeMs = m.TotalTimeMs
		rec.TTFBMs = m.TTFBMs
		rec.TLSTimeMs = m.TLSTimeMs
	}
	log.Exchange(m)
	s.add(rec)
}

func (s *sessionStats) add(r ExchangeRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.Failed {
		s.failed++
		return
	}
	s.records = append(s.records, r)
	s.update()
}

// Sent is the number of successful exchanges.
func (s *sessionStats) Sent() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *sessionStats) Failed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failed
}

func (s *sessionStats) Snapshot() PercentileStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// update must be called with mu held.
func (s *sessionStats) update() {
	n := len(s.records)
	if n == 0 {
		return
	}

	extract := func(fn func(ExchangeRecord) float64) []float64 {
		vals := make([]float64, n)
		for i, r := range s.records {
			vals[i] = fn(r)
		}
		sort.Float64s(vals)
		return vals
	}

	s.stats.TotalMs = percentiles(extract(func(r ExchangeRecord) float64 { return r.TotalTimeMs }))
	s.stats.TTFBMs = percentiles(extract(func(r ExchangeRecord) float64 { return r.TTFBMs }))
	s.stats.TLSMs = percentiles(extract(func(r ExchangeRecord) float64 { return r.TLSTimeMs }))
}

// percentiles expects sorted, non-empty input.
func percentiles(sorted []float64) [5]float64 {
	at := func(p float64) float64 {
		return sorted[int(float64(len(sorted)-1)*p)]
	}
	return [5]float64{
		sorted[0],
		at(0.50),
		at(0.90),
		at(0.95),
		sorted[len(sorted)-1],
	}
}

func (s *sessionStats) Table() string {
	if s.Sent() == 0 {
		return ""
	}
	st := s.Snapshot()
	ts, fb, tls := st.TotalMs, st.TTFBMs, st.TLSMs

	return fmt.Sprintf(
		"        %5s %5s %5s %5s %5s\n"+
			"total   %5.0f %5.0f %5.0f %5.0f %5.0f\n"+
			"ttfb    %5.0f %5.0f %5.0f %5.0f %5.0f\n"+
			"tls     %5.0f %5.0f %5.0f %5.0f %5.0f",
		"min", "p50", "p90", "p95", "max",
		ts[0], ts[1], ts[2], ts[3], ts[4],
		fb[0], fb[1], fb[2], fb[3], fb[4],
		tls[0], tls[1], tls[2], tls[3], tls[4],
	)
}
