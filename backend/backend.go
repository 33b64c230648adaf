// Package backend talks to the chat endpoint. A request carries either a
// text message or a base64 recording, never both.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"vox/nettrace"
)

const DefaultEndpoint = "http://localhost:5000/api/chat"

const requestIDHeader = "X-Request-ID"

type Request struct {
	Message *string `json:"message,omitempty"`
	Audio   *string `json:"audio,omitempty"`
}

type Response struct {
	Message     string
	InputMethod string
	RequestID   string
	Metrics     *nettrace.Metrics
}

type wireResponse struct {
	Message     *string `json:"message"`
	InputMethod string  `json:"input_method"`
}

// Exchange is what an Observer learns about each request.
type Exchange struct {
	Kind         Kind
	RequestID    string
	Status       int
	RequestBytes int
	Metrics      *nettrace.Metrics
	Err          error
}

type Observer func(Exchange)

type Option func(*Client)

func WithObserver(fn Observer) Option {
	return func(c *Client) { c.observer = fn }
}

type Client struct {
	endpoint string
	http     *nettrace.Client
	observer Observer
}

func New(endpoint string, opts ...Option) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	c := &Client{endpoint: endpoint}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = nettrace.NewClient()
	}
	return c
}

func (c *Client) Endpoint() string { return c.endpoint }

func (c *Client) SendText(ctx context.Context, message string) (*Response, error) {
	return c.send(ctx, KindText, Request{Message: &message})
}

// SendAudio posts an already base64-encoded recording.
func (c *Client) SendAudio(ctx context.Context, audio string) (*Response, error) {
	return c.send(ctx, KindAudio, Request{Audio: &audio})
}

// Warm opens the connection ahead of the first send.
func (c *Client) Warm(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.endpoint, nil)
	if err != nil {
		return
	}
	c.http.Warm(req)
}

func (c *Client) send(ctx context.Context, kind Kind, body Request) (*Response, error) {
	id := uuid.NewString()
	ex := Exchange{Kind: kind, RequestID: id}
	resp, err := c.do(ctx, body, &ex)
	if err != nil {
		ex.Err = err
	}
	if c.observer != nil {
		c.observer(ex)
	}
	return resp, err
}

func (c *Client) do(ctx context.Context, body Request, ex *Exchange) (*Response, error) {
	fail := func(status int, respBody []byte, err error) error {
		return &RequestError{Kind: ex.Kind, RequestID: ex.RequestID, Status: status, Body: truncate(respBody), Err: err}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fail(0, nil, fmt.Errorf("encode request: %w", err))
	}
	ex.RequestBytes = len(payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fail(0, nil, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(requestIDHeader, ex.RequestID)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fail(0, nil, err)
	}
	ex.Status = resp.StatusCode
	ex.Metrics = resp.Metrics

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fail(resp.StatusCode, resp.Body, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	var wr wireResponse
	if err := json.Unmarshal(resp.Body, &wr); err != nil {
		return nil, fail(resp.StatusCode, resp.Body, fmt.Errorf("decode response: %w", err))
	}
	if wr.Message == nil {
		return nil, fail(resp.StatusCode, resp.Body, ErrMissingMessage)
	}

	return &Response{
		Message:     *wr.Message,
		InputMethod: wr.InputMethod,
		RequestID:   ex.RequestID,
		Metrics:     resp.Metrics,
	}, nil
}
