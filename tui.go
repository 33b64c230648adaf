package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"
	"github.com/muesli/reflow/wrap"

	"vox/beep"
	"vox/chat"
	"vox/clipboard"
	"vox/log"
	"vox/recorder"
)

// TUI message types
type appendMsg struct{ Message chat.Message }
type pendingMsg struct {
	ID   chat.PendingID
	Show bool
}
type recordingMsg struct{ On bool }
type levelMsg struct{ Level float64 }
type silenceMsg struct{ Event recorder.SilenceEvent }
type statusMsg struct{ Text string }

// tuiTranscript forwards transcript updates into the bubbletea program. The
// program must be set before it starts running.
type tuiTranscript struct {
	program *tea.Program
	nextID  atomic.Uint64
}

func (t *tuiTranscript) Append(m chat.Message) {
	t.program.Send(appendMsg{Message: m})
}

func (t *tuiTranscript) ShowPending() chat.PendingID {
	id := chat.PendingID(t.nextID.Add(1))
	t.program.Send(pendingMsg{ID: id, Show: true})
	return id
}

func (t *tuiTranscript) ClearPending(id chat.PendingID) {
	t.program.Send(pendingMsg{ID: id, Show: false})
}

func (t *tuiTranscript) SetRecording(on bool) {
	if on {
		beep.PlayStart()
	} else {
		beep.PlayEnd()
	}
	t.program.Send(recordingMsg{On: on})
}

func (t *tuiTranscript) level(rms float64) {
	t.program.Send(levelMsg{Level: rms})
}

func (t *tuiTranscript) silence(ev recorder.SilenceEvent) {
	t.program.Send(silenceMsg{Event: ev})
}

const (
	sideWidth     = 36
	minSideLayout = 80
	inputHeight   = 2 // rule + input line
)

var (
	userLabel    = lipgloss.NewStyle().Foreground(lipgloss.Color("4")).Bold(true)
	botLabel     = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	timeStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	recStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	ruleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("236"))
	helpKeyStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("239")).Bold(true)
)

type entry struct {
	msg      chat.Message
	rendered string // cached, cleared on resize
}

type tuiModel struct {
	ctx   context.Context
	text  *chat.TextFlow
	audio *chat.AudioFlow
	stats *sessionStats

	endpointLine string
	deviceLine   string

	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	renderer *glamour.TermRenderer

	entries   []entry
	pending   map[chat.PendingID]bool
	lastReply string

	recording  bool
	recStart   time.Time
	audioLevel float64
	peakLevel  float64
	silent     bool
	status     string

	width, height int
	ready         bool
}

func newTUIModel(ctx context.Context, text *chat.TextFlow, audio *chat.AudioFlow, stats *sessionStats, endpoint, device string) tuiModel {
	ti := textinput.New()
	ti.Placeholder = "Type a message, ctrl+r to record"
	ti.Prompt = "> "
	ti.CharLimit = 4000
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = dimStyle

	return tuiModel{
		ctx:          ctx,
		text:         text,
		audio:        audio,
		stats:        stats,
		endpointLine: endpoint,
		deviceLine:   device,
		input:        ti,
		spinner:      sp,
		pending:      make(map[chat.PendingID]bool),
	}
}

func (m tuiModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layout()

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "enter":
			text := m.input.Value()
			m.input.Reset()
			if strings.TrimSpace(text) == "" {
				return m, nil
			}
			return m, m.sendText(text)
		case "ctrl+r":
			return m, m.toggleRecording()
		case "ctrl+y":
			return m, copyReply(m.lastReply)
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
		if len(m.pending) > 0 {
			m.refresh(false)
		}

	case appendMsg:
		m.entries = append(m.entries, entry{msg: msg.Message})
		if msg.Message.Sender == chat.Bot {
			m.lastReply = msg.Message.Text
		}
		m.refresh(true)

	case pendingMsg:
		if msg.Show {
			m.pending[msg.ID] = true
		} else {
			delete(m.pending, msg.ID)
		}
		m.refresh(true)

	case recordingMsg:
		m.recording = msg.On
		m.audioLevel = 0
		if msg.On {
			m.recStart = time.Now()
			m.peakLevel = 0
			m.silent = false
			m.status = ""
		}

	case levelMsg:
		if m.recording {
			m.audioLevel = m.audioLevel*0.6 + msg.Level*0.4
			if msg.Level > m.peakLevel {
				m.peakLevel = msg.Level
			}
		}

	case silenceMsg:
		switch msg.Event {
		case recorder.SilenceWarn, recorder.SilenceRepeat:
			m.silent = true
		case recorder.SilenceWarnClear:
			m.silent = false
		case recorder.SilenceAutoStop:
			m.silent = false
			m.status = "stopped after 30s of silence"
		}

	case statusMsg:
		m.status = msg.Text

	default:
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m tuiModel) sendText(text string) tea.Cmd {
	ctx, flow := m.ctx, m.text
	return func() tea.Msg {
		_ = flow.Send(ctx, text) // failures are already in the transcript
		return nil
	}
}

func (m tuiModel) toggleRecording() tea.Cmd {
	ctx, flow := m.ctx, m.audio
	return func() tea.Msg {
		err := flow.Toggle(ctx)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, chat.ErrRecordingActive):
			return statusMsg{Text: "still sending the last recording"}
		default:
			beep.PlayError()
			return statusMsg{Text: err.Error()}
		}
	}
}

func copyReply(text string) tea.Cmd {
	return func() tea.Msg {
		if err := clipboard.Copy(text); err != nil {
			if errors.Is(err, clipboard.ErrEmpty) {
				return statusMsg{Text: "nothing to copy yet"}
			}
			log.Warnf("clipboard copy failed: %v", err)
			return statusMsg{Text: "copy failed: " + err.Error()}
		}
		return statusMsg{Text: "copied last reply"}
	}
}

func (m *tuiModel) chatWidth() int {
	if m.width >= minSideLayout {
		return m.width - sideWidth
	}
	return m.width
}

func (m *tuiModel) layout() {
	w := max(m.chatWidth()-1, 10)
	h := max(m.height-inputHeight, 1)
	if !m.ready {
		m.viewport = viewport.New(w, h)
		m.ready = true
	} else {
		m.viewport.Width = w
		m.viewport.Height = h
	}
	m.input.Width = w - len(m.input.Prompt) - 1

	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(w-2),
	)
	if err != nil {
		log.Warnf("markdown renderer: %v", err)
		r = nil
	}
	m.renderer = r
	for i := range m.entries {
		m.entries[i].rendered = ""
	}
	m.refresh(true)
}

func (m *tuiModel) refresh(follow bool) {
	if !m.ready {
		return
	}
	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(m.renderTranscript())
	if follow || atBottom {
		m.viewport.GotoBottom()
	}
}

func (m *tuiModel) renderTranscript() string {
	if len(m.entries) == 0 && len(m.pending) == 0 {
		return dimStyle.Render("No messages yet")
	}
	var b strings.Builder
	for i := range m.entries {
		e := &m.entries[i]
		if e.rendered == "" {
			e.rendered = m.renderEntry(e.msg)
		}
		b.WriteString(e.rendered)
	}
	for range m.pending {
		b.WriteString(botLabel.Render("bot") + " " + m.spinner.View() + dimStyle.Render(chat.PendingText) + "\n")
	}
	return b.String()
}

func (m *tuiModel) renderEntry(msg chat.Message) string {
	stamp := timeStyle.Render(msg.Time.Format("15:04"))
	width := max(m.viewport.Width-2, 10)

	if msg.Sender == chat.User {
		var b strings.Builder
		b.WriteString(userLabel.Render("you") + " " + stamp + "\n")
		for _, line := range wrapText(msg.Text, width) {
			b.WriteString(line + "\n")
		}
		b.WriteString("\n")
		return b.String()
	}

	body := ""
	if m.renderer != nil {
		if out, err := m.renderer.Render(msg.Text); err == nil {
			body = strings.Trim(out, "\n") + "\n"
		}
	}
	if body == "" {
		body = strings.Join(wrapText(msg.Text, width), "\n") + "\n"
	}
	return botLabel.Render("bot") + " " + stamp + "\n" + body + "\n"
}

func (m tuiModel) View() string {
	if !m.ready {
		return "Loading..."
	}

	rule := ruleStyle.Render(strings.Repeat("─", max(m.chatWidth()-1, 1)))
	chatPanel := lipgloss.JoinVertical(lipgloss.Left,
		m.viewport.View(),
		rule,
		m.input.View(),
	)
	if m.width < minSideLayout {
		return chatPanel
	}

	side := lipgloss.NewStyle().
		Width(sideWidth - 1).
		Height(m.height).
		PaddingLeft(1).
		BorderStyle(lipgloss.NormalBorder()).
		BorderLeft(true).
		BorderForeground(lipgloss.Color("236")).
		Render(strings.Join(m.infoLines(), "\n"))

	return lipgloss.JoinHorizontal(lipgloss.Top, chatPanel, side)
}

func (m tuiModel) infoLines() []string {
	var lines []string

	if m.recording {
		elapsed := time.Since(m.recStart).Seconds()
		lines = append(lines, recStyle.Render(fmt.Sprintf("● REC %.1fs", elapsed))+" "+levelMeter(m.audioLevel))
		if m.silent || (elapsed > 1.0 && m.peakLevel < recorder.DefaultSpeechThreshold) {
			lines = append(lines, warnStyle.Render("  ⚠ no voice detected"))
		}
	} else {
		lines = append(lines, dimStyle.Render("○ ready"))
	}

	lines = append(lines, dimStyle.Render("mic: "+m.deviceLine))
	lines = append(lines, dimStyle.Render(m.endpointLine))

	if m.status != "" {
		lines = append(lines, "", okStyle.Render(m.status))
	}

	if table := m.stats.Table(); table != "" {
		lines = append(lines, "")
		for _, line := range strings.Split(table, "\n") {
			lines = append(lines, dimStyle.Render(line))
		}
		if failed := m.stats.Failed(); failed > 0 {
			lines = append(lines, warnStyle.Render(fmt.Sprintf("%d failed", failed)))
		}
	}

	lines = append(lines, "")
	for _, h := range [][2]string{
		{"enter", "send"},
		{"ctrl+r", "record / stop"},
		{"ctrl+y", "copy last reply"},
		{"ctrl+c", "quit"},
	} {
		lines = append(lines, helpKeyStyle.Render(h[0])+timeStyle.Render(" "+h[1]))
	}
	lines = append(lines, timeStyle.Render("vox "+version))
	return lines
}

const meterWidth = 10

// levelMeter draws RMS on a scale where 0.2 fills the bar.
func levelMeter(level float64) string {
	n := min(int(level/0.2*meterWidth), meterWidth)
	return recStyle.Render(strings.Repeat("▮", n)) + ruleStyle.Render(strings.Repeat("▯", meterWidth-n))
}

// wrapText wraps on word boundaries by display width and hard-breaks words
// longer than a line.
func wrapText(text string, width int) []string {
	if width <= 0 {
		width = 1
	}
	return strings.Split(wrap.String(wordwrap.String(text, width), width), "\n")
}
