// Package doctor runs the `vox doctor` checks: microphone capture, the chat
// endpoint and the clipboard.
package doctor

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"vox/audio"
	"vox/backend"
	"vox/clipboard"
	"vox/recorder"
)

const defaultRecordFor = 2 * time.Second

type TextSender interface {
	SendText(ctx context.Context, message string) (*backend.Response, error)
}

type Options struct {
	Out       io.Writer
	Audio     audio.Context
	Device    *audio.DeviceInfo
	Backend   TextSender
	RecordFor time.Duration
}

// Run executes the checks and returns an exit code (0=all pass, 1=any fail).
// The clipboard check only warns.
func Run(ctx context.Context, opts Options) int {
	if opts.RecordFor == 0 {
		opts.RecordFor = defaultRecordFor
	}
	out := opts.Out

	fmt.Fprintln(out, "vox doctor - system diagnostics")
	fmt.Fprintln(out, "===============================")

	allPass := true
	if !checkMicrophone(ctx, opts) {
		allPass = false
	}
	if !checkBackend(ctx, opts) {
		allPass = false
	}
	checkClipboard(out)

	fmt.Fprintln(out)
	if allPass {
		fmt.Fprintln(out, "All checks passed!")
		return 0
	}
	fmt.Fprintln(out, "Some checks failed. See details above.")
	return 1
}

func checkMicrophone(ctx context.Context, opts Options) bool {
	out := opts.Out
	fmt.Fprintln(out)
	fmt.Fprintln(out, "[1/3] Microphone")

	if opts.Audio == nil {
		fmt.Fprintln(out, "  FAIL: cannot connect to audio")
		return false
	}
	name := "system default"
	if opts.Device != nil {
		name = opts.Device.Name
		if audio.IsBluetooth(name) {
			fmt.Fprintln(out, "  Warning: Bluetooth microphones record at reduced quality")
		}
	}
	fmt.Fprintf(out, "  Device: %s\n", name)

	var mu sync.Mutex
	var peak float64
	rec := recorder.New(opts.Audio, recorder.Config{
		Device: opts.Device,
		OnLevel: func(rms float64) {
			mu.Lock()
			peak = max(peak, rms)
			mu.Unlock()
		},
	})

	session, err := rec.Open(ctx)
	if err != nil {
		fmt.Fprintf(out, "  FAIL: %v\n", err)
		return false
	}
	fmt.Fprintf(out, "  Recording for %s, speak now...\n", opts.RecordFor)
	time.AfterFunc(opts.RecordFor, session.Stop)

	var fragments, size int
	for frag := range session.Fragments() {
		fragments++
		size += len(frag)
	}
	if err := session.Err(); err != nil {
		fmt.Fprintf(out, "  FAIL: capture error: %v\n", err)
		return false
	}
	if fragments == 0 {
		fmt.Fprintln(out, "  FAIL: no audio captured")
		return false
	}

	mu.Lock()
	level := peak
	mu.Unlock()
	fmt.Fprintf(out, "  Captured %d fragments, %.1f KB %s, peak level %.3f\n",
		fragments, float64(size)/1024, session.MediaType(), level)
	if level < recorder.DefaultSpeechThreshold {
		fmt.Fprintln(out, "  Warning: no voice detected, check the input level")
	}
	fmt.Fprintln(out, "  PASS: microphone captured audio")
	return true
}

func checkBackend(ctx context.Context, opts Options) bool {
	out := opts.Out
	fmt.Fprintln(out)
	fmt.Fprintln(out, "[2/3] Chat endpoint")

	if opts.Backend == nil {
		fmt.Fprintln(out, "  FAIL: no endpoint configured")
		return false
	}
	start := time.Now()
	resp, err := opts.Backend.SendText(ctx, "ping")
	if err != nil {
		fmt.Fprintf(out, "  FAIL: %v\n", err)
		return false
	}
	fmt.Fprintf(out, "  Reply in %dms: %q\n", time.Since(start).Milliseconds(), truncate(resp.Message, 60))
	fmt.Fprintln(out, "  PASS: endpoint answered")
	return true
}

func checkClipboard(out io.Writer) {
	fmt.Fprintln(out)
	fmt.Fprintln(out, "[3/3] Clipboard")

	previous, _ := clipboard.Read()
	const probe = "vox-doctor-test"
	if err := clipboard.Copy(probe); err != nil {
		fmt.Fprintf(out, "  Warning: copy unavailable (%v), ctrl+y will not work\n", err)
		return
	}
	got, err := clipboard.Read()
	if previous != "" {
		clipboard.Copy(previous)
	}
	if err != nil || got != probe {
		fmt.Fprintf(out, "  Warning: clipboard read back %q, %v\n", got, err)
		return
	}
	fmt.Fprintln(out, "  PASS: clipboard works")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
