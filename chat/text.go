package chat

import (
	"context"
	"strings"

	"vox/backend"
	"vox/log"
)

// Backend is the subset of backend.Client the workflows use.
type Backend interface {
	SendText(ctx context.Context, message string) (*backend.Response, error)
	SendAudio(ctx context.Context, audio string) (*backend.Response, error)
}

type TextFlow struct {
	backend Backend
	view    Transcript
}

func NewTextFlow(b Backend, view Transcript) *TextFlow {
	return &TextFlow{backend: b, view: view}
}

// Send posts the trimmed input. Blank input is ignored. On failure the
// apology is shown and the error returned.
func (f *TextFlow) Send(ctx context.Context, input string) error {
	text := strings.TrimSpace(input)
	if text == "" {
		return nil
	}

	f.view.Append(UserMessage(text))
	id := f.view.ShowPending()
	resp, err := f.backend.SendText(ctx, text)
	return deliver(f.view, id, resp, err, TextApology)
}

// deliver clears the pending indicator and appends either the reply or the
// apology.
func deliver(view Transcript, id PendingID, resp *backend.Response, err error, apology string) error {
	view.ClearPending(id)
	if err != nil {
		log.Errorf("chat send failed: %v", err)
		view.Append(BotMessage(apology))
		return err
	}
	view.Append(BotMessage(resp.Message))
	return nil
}
