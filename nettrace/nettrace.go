// Package nettrace wraps an http.Client with httptrace timing so callers can
// report where the time of each request went.
package nettrace

import (
	"crypto/tls"
	"io"
	"net/http"
	"net/http/httptrace"
	"sync"
	"time"
)

type Metrics struct {
	DNS         time.Duration
	ConnWait    time.Duration
	TCP         time.Duration
	TLS         time.Duration
	ReqHeaders  time.Duration
	ReqBody     time.Duration
	TTFB        time.Duration
	Download    time.Duration
	Total       time.Duration
	ConnReused  bool
	TLSProtocol string
}

func (m *Metrics) Sum() time.Duration {
	return m.ConnWait + m.DNS + m.TCP + m.TLS + m.ReqHeaders + m.ReqBody + m.TTFB + m.Download
}

type Client struct {
	client *http.Client
}

func NewClient() *Client {
	return &Client{
		client: &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        4,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
				ForceAttemptHTTP2:   true,
			},
		},
	}
}

type Response struct {
	Body       []byte
	StatusCode int
	Header     http.Header
	Metrics    *Metrics
}

// timer collects httptrace callbacks. net/http runs them on its own read and
// write goroutines, so every field is guarded by mu.
type timer struct {
	mu sync.Mutex
	m  Metrics

	getConnStart, dnsStart, tcpStart, tlsStart time.Time
	gotConn, wroteHeaders, wroteRequest        time.Time
	firstByte                                  time.Time
}

func (t *timer) trace() *httptrace.ClientTrace {
	return &httptrace.ClientTrace{
		GetConn: func(_ string) { t.mark(&t.getConnStart) },
		GotConn: func(info httptrace.GotConnInfo) {
			t.mu.Lock()
			defer t.mu.Unlock()
			t.gotConn = time.Now()
			t.m.ConnWait = t.gotConn.Sub(t.getConnStart)
			t.m.ConnReused = info.Reused
		},
		DNSStart: func(_ httptrace.DNSStartInfo) { t.mark(&t.dnsStart) },
		DNSDone: func(_ httptrace.DNSDoneInfo) {
			t.mu.Lock()
			t.m.DNS = time.Since(t.dnsStart)
			t.mu.Unlock()
		},
		ConnectStart: func(_, _ string) { t.mark(&t.tcpStart) },
		ConnectDone: func(_, _ string, _ error) {
			t.mu.Lock()
			t.m.TCP = time.Since(t.tcpStart)
			t.mu.Unlock()
		},
		TLSHandshakeStart: func() { t.mark(&t.tlsStart) },
		TLSHandshakeDone: func(state tls.ConnectionState, _ error) {
			t.mu.Lock()
			t.m.TLS = time.Since(t.tlsStart)
			t.m.TLSProtocol = tls.VersionName(state.Version)
			t.mu.Unlock()
		},
		WroteHeaders: func() {
			t.mu.Lock()
			t.wroteHeaders = time.Now()
			t.m.ReqHeaders = t.wroteHeaders.Sub(t.gotConn)
			t.mu.Unlock()
		},
		WroteRequest: func(_ httptrace.WroteRequestInfo) {
			t.mu.Lock()
			t.wroteRequest = time.Now()
			t.m.ReqBody = t.wroteRequest.Sub(t.wroteHeaders)
			t.mu.Unlock()
		},
		GotFirstResponseByte: func() {
			t.mu.Lock()
			t.firstByte = time.Now()
			t.m.TTFB = t.firstByte.Sub(t.wroteRequest)
			t.mu.Unlock()
		},
	}
}

func (t *timer) mark(at *time.Time) {
	t.mu.Lock()
	*at = time.Now()
	t.mu.Unlock()
}

// finish stamps download and total time and returns a copy of the metrics.
func (t *timer) finish(reqStart time.Time) *Metrics {
	t.mu.Lock()
	defer t.mu.Unlock()
	m := t.m
	if !t.firstByte.IsZero() {
		m.Download = time.Since(t.firstByte)
	}
	m.Total = time.Since(reqStart)
	return &m
}

// Do sends req and reads the whole body. Metrics are filled even when the
// status is not 2xx.
func (c *Client) Do(req *http.Request) (*Response, error) {
	t := &timer{}
	req = req.WithContext(httptrace.WithClientTrace(req.Context(), t.trace()))
	reqStart := time.Now()

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	return &Response{
		Body:       body,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Metrics:    t.finish(reqStart),
	}, nil
}

// Warm sends req, usually a HEAD, to open a pooled connection and returns how
// long the TLS handshake took. Errors are ignored; the next real request will surface
// them.
func (c *Client) Warm(req *http.Request) time.Duration {
	t := &timer{}
	req = req.WithContext(httptrace.WithClientTrace(req.Context(), t.trace()))
	resp, err := c.client.Do(req)
	if err != nil {
		return 0
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return t.finish(time.Now()).TLS
}
