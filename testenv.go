package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"vox/audio"
	"vox/backend"
	"vox/beep"
	"vox/chat"
	"vox/log"
	"vox/recorder"
)

// lineTranscript prints each message as a "sender: text" line.
type lineTranscript struct {
	mu     sync.Mutex
	out    io.Writer
	nextID atomic.Uint64
}

func (t *lineTranscript) Append(m chat.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, "%s: %s\n", m.Sender, m.Text)
}

func (t *lineTranscript) ShowPending() chat.PendingID {
	return chat.PendingID(t.nextID.Add(1))
}

func (t *lineTranscript) ClearPending(chat.PendingID) {}

type scriptOptions struct {
	WavPath  string
	Realtime bool
	Endpoint string
	AutoStop bool
}

// runScript drives the chat workflows from stdin commands, one per line:
//
//	SAY <text>        send a text message and wait for the reply
//	REC               start recording from the WAV file
//	STOP              stop recording and wait for the reply
//	WAIT              wait for the last recording to be answered
//	WAIT_AUDIO_DONE   wait until the whole WAV has been captured
//	SLEEP <ms>
//	QUIT
func runScript(ctx context.Context, opts scriptOptions, in io.Reader, out io.Writer) error {
	beep.Disable()

	var fake *audio.FakeContext
	if opts.WavPath != "" {
		var err error
		fake, err = audio.NewFakeContext(opts.WavPath, opts.Realtime)
		if err != nil {
			return fmt.Errorf("loading WAV: %w", err)
		}
	} else {
		fake = audio.NewFakeContextPCM(nil, false)
	}

	stats := &sessionStats{}
	client := backend.New(opts.Endpoint, backend.WithObserver(stats.observe))
	log.SessionStart(client.Endpoint(), "fake")
	defer func() { log.SessionEnd(stats.Sent()) }()

	view := &lineTranscript{out: out}
	text := chat.NewTextFlow(client, view)
	mic := recorder.New(fake, recorder.Config{AutoStop: opts.AutoStop})
	flow := chat.NewAudioFlow(mic, client, view)

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			break
		}
		cmd, arg, _ := strings.Cut(strings.TrimSpace(scanner.Text()), " ")
		switch cmd {
		case "":
		case "SAY":
			_ = text.Send(ctx, arg)
		case "REC":
			if err := flow.StartRecording(ctx); err != nil {
				log.Warnf("script: REC: %v", err)
			}
		case "STOP":
			flow.StopRecording()
			<-flow.Done()
		case "WAIT":
			<-flow.Done()
		case "WAIT_AUDIO_DONE":
			if c := fake.LastCapture(); c != nil {
				<-c.AudioDone()
			}
		case "SLEEP":
			if ms, err := strconv.Atoi(arg); err == nil {
				time.Sleep(time.Duration(ms) * time.Millisecond)
			}
		case "QUIT":
			flow.StopRecording()
			<-flow.Done()
			return nil
		default:
			log.Warnf("script: unknown command %q", cmd)
		}
	}
	flow.StopRecording()
	<-flow.Done()
	return scanner.Err()
}
