package main

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	orchestration "github.com/duologue-ai/duologue-core/core"
	"github.com/duologue-ai/duologue-core/core/synthesis"
	"github.com/duologue-ai/duologue-core/internal/config"
)

// stateChangedMsg tells the model to re-snapshot every feed.
type stateChangedMsg struct{}

type statusMsg string

type actionFailedMsg struct{ err error }

type conversationStartedMsg struct{ conversation *orchestration.Conversation }

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	readyStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	notReadyStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	userStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	assistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("213"))
	captionStyle   = lipgloss.NewStyle().Italic(true).Faint(true)
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	helpStyle      = lipgloss.NewStyle().Faint(true)
)

type model struct {
	orch    *orchestration.Orchestrator
	cfg     config.Config
	respond func(orchestration.RecognitionResult) (string, error)

	spinner spinner.Model
	width   int
	status  string
	// handle of the conversation this TUI started, kept so it can be
	// stopped again
	conversationHandle *orchestration.Conversation

	readiness    orchestration.ReadinessSnapshot
	recognition  orchestration.RecognitionSnapshot
	synthesis    orchestration.SynthesisSnapshot
	conversation orchestration.ConversationSnapshot
	transcript   orchestration.TranscriptSnapshot
}

func newModel(orch *orchestration.Orchestrator, cfg config.Config, respond func(orchestration.RecognitionResult) (string, error)) model {
	s := spinner.New()
	s.Spinner = spinner.Dot

	m := model{
		orch:    orch,
		cfg:     cfg,
		respond: respond,
		spinner: s,
		width:   80,
	}
	m.refresh()
	return m
}

// wireFeeds forwards every feed notification into the running program so
// the view re-snapshots. The returned func detaches all subscriptions.
func wireFeeds(p *tea.Program, orch *orchestration.Orchestrator) func() {
	notify := func() { p.Send(stateChangedMsg{}) }
	unsubscribes := []func(){
		orch.Readiness().Subscribe(notify),
		orch.RecognitionState().Subscribe(notify),
		orch.SynthesisState().Subscribe(notify),
		orch.ConversationState().Subscribe(notify),
		orch.Transcript().Subscribe(notify),
	}
	return func() {
		for _, unsubscribe := range unsubscribes {
			unsubscribe()
		}
	}
}

func (m *model) refresh() {
	m.readiness = m.orch.Readiness().Snapshot()
	m.recognition = m.orch.RecognitionState().Snapshot()
	m.synthesis = m.orch.SynthesisState().Snapshot()
	m.conversation = m.orch.ConversationState().Snapshot()
	m.transcript = m.orch.Transcript().Snapshot()
}

func (m model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case stateChangedMsg:
		m.refresh()
		return m, nil

	case statusMsg:
		m.status = string(msg)
		return m, nil

	case actionFailedMsg:
		m.status = msg.err.Error()
		return m, nil

	case conversationStartedMsg:
		m.conversationHandle = msg.conversation
		m.status = "conversation started"
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "l":
			return m, m.toggleListening()
		case "c":
			return m, m.toggleConversation()
		case "p":
			return m, m.togglePause()
		case "s":
			return m, m.stopSpeaking()
		case "x":
			m.orch.ClearTranscript()
			return m, nil
		case "e":
			m.orch.ClearLastError()
			return m, nil
		case "r":
			return m, m.refreshAvailability()
		}
	}
	return m, nil
}

func (m model) toggleListening() tea.Cmd {
	orch := m.orch
	if m.recognition.Active {
		return func() tea.Msg {
			orch.StopListening(context.Background())
			return statusMsg("stopped listening")
		}
	}
	return func() tea.Msg {
		if _, err := orch.Listen(context.Background(), orchestration.WithContinuous()); err != nil {
			return actionFailedMsg{err}
		}
		return statusMsg("listening")
	}
}

func (m model) toggleConversation() tea.Cmd {
	orch := m.orch
	if conversation := m.conversationHandle; conversation != nil && m.conversation.Active {
		return func() tea.Msg {
			conversation.Stop(context.Background())
			return statusMsg("conversation stopped")
		}
	}

	cfg := m.cfg
	respond := m.respond
	return func() tea.Msg {
		opts := []orchestration.ConversationOption{
			orchestration.WithPause(time.Duration(cfg.Conversation.PauseMS) * time.Millisecond),
			orchestration.WithSilenceDelay(time.Duration(cfg.Conversation.SilenceDelayMS) * time.Millisecond),
			orchestration.WithRetryDelay(time.Duration(cfg.Conversation.RetryDelayMS) * time.Millisecond),
			orchestration.WithSpeakOptions(synthesis.WithVoice(cfg.Synthesis.Voice)),
		}
		if cfg.Conversation.Captions {
			opts = append(opts, orchestration.WithCaptions())
		}
		conversation := orch.StartConversation(context.Background(), opts...).OnRecognition(respond)
		return conversationStartedMsg{conversation: conversation}
	}
}

func (m model) togglePause() tea.Cmd {
	orch := m.orch
	if m.synthesis.Paused {
		return func() tea.Msg {
			if err := orch.ResumeSpeaking(context.Background()); err != nil {
				return actionFailedMsg{err}
			}
			return statusMsg("resumed")
		}
	}
	return func() tea.Msg {
		if err := orch.PauseSpeaking(context.Background()); err != nil {
			return actionFailedMsg{err}
		}
		return statusMsg("paused")
	}
}

func (m model) stopSpeaking() tea.Cmd {
	orch := m.orch
	return func() tea.Msg {
		orch.StopSpeaking(context.Background())
		return statusMsg("stopped speaking")
	}
}

func (m model) refreshAvailability() tea.Cmd {
	orch := m.orch
	return func() tea.Msg {
		availability := orch.RefreshAvailability(context.Background())
		if availability.Details != "" {
			return statusMsg("probed: " + availability.Details)
		}
		return statusMsg("engines probed")
	}
}

func (m model) View() string {
	width := m.width
	if width <= 0 {
		width = 80
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("duologue"))
	b.WriteString("  ")
	b.WriteString(m.statusLine())
	b.WriteString("\n\n")

	for _, entry := range m.tailEntries(12) {
		b.WriteString(m.renderEntry(entry, width))
		b.WriteString("\n")
	}

	if m.transcript.HasCaption {
		b.WriteString(captionStyle.Render(wordwrap.String("… "+m.transcript.Caption, width)))
		b.WriteString("\n")
	}

	if m.readiness.LastError != nil {
		b.WriteString(errorStyle.Render(wordwrap.String(m.readiness.LastError.Error(), width)))
		b.WriteString("\n")
	}
	if m.status != "" {
		b.WriteString(helpStyle.Render(m.status))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("l listen • c conversation • p pause/resume • s stop speaking • x clear • e dismiss error • r re-probe • q quit"))
	return b.String()
}

func (m model) statusLine() string {
	parts := []string{
		readinessChip("stt", m.readiness.RecognitionReady),
		readinessChip("tts", m.readiness.SynthesisReady),
	}
	if m.recognition.Active {
		parts = append(parts, m.spinner.View()+"listening ("+string(m.recognition.Kind)+")")
	}
	if m.synthesis.Active {
		if m.synthesis.Paused {
			parts = append(parts, "speaking (paused)")
		} else {
			parts = append(parts, "speaking")
		}
	}
	if m.conversation.Active {
		parts = append(parts, "conversation")
	}
	return strings.Join(parts, "  ")
}

func readinessChip(label string, ready bool) string {
	if ready {
		return readyStyle.Render("● " + label)
	}
	return notReadyStyle.Render("○ " + label)
}

func (m model) renderEntry(entry orchestration.TranscriptEntry, width int) string {
	label := userStyle.Render("you")
	if entry.Role == orchestration.RoleAssistant {
		label = assistantStyle.Render("bot")
	}
	return label + " " + wordwrap.String(entry.Text, max(width-4, 20))
}

func (m model) tailEntries(n int) []orchestration.TranscriptEntry {
	entries := m.transcript.Entries
	if len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	return entries
}
