package backend

import (
	"context"
	"sync"
)

// Fake records requests and answers them with Reply. A nil Reply echoes the
// text back.
type Fake struct {
	Reply func(Request) (*Response, error)

	mu       sync.Mutex
	requests []Request
}

func (f *Fake) SendText(_ context.Context, message string) (*Response, error) {
	return f.handle(Request{Message: &message})
}

func (f *Fake) SendAudio(_ context.Context, audio string) (*Response, error) {
	return f.handle(Request{Audio: &audio})
}

func (f *Fake) handle(req Request) (*Response, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	reply := f.Reply
	f.mu.Unlock()

	if reply != nil {
		return reply(req)
	}
	if req.Message != nil {
		return &Response{Message: "echo: " + *req.Message, InputMethod: "text"}, nil
	}
	return &Response{Message: "got audio", InputMethod: "audio"}, nil
}

func (f *Fake) Requests() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Request, len(f.requests))
	copy(out, f.requests)
	return out
}
