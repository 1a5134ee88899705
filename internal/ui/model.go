// Package ui renders a conversation in the terminal.
package ui

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/zhouzirui/arwa/internal/conversation"
	"github.com/zhouzirui/arwa/internal/model/chat"
	"github.com/zhouzirui/arwa/internal/model/persona"
)

// Controller is the subset of conversation.Controller the UI drives.
type Controller interface {
	Snapshot() conversation.State
	Send(text string) bool
	SetDraft(text string)
	NewConversation(ctx context.Context)
	ToggleVoice()
	DismissError()
}

// Model is the bubbletea model for one chat window.
type Model struct {
	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model

	ctrl     Controller
	notifier *Notifier
	persona  persona.Persona
	ctx      context.Context

	state  conversation.State
	ready  bool
	width  int
	height int
}

// New builds the model. The notifier must be the observer the controller was
// created with.
func New(ctx context.Context, ctrl Controller, notifier *Notifier, p persona.Persona) Model {
	ti := textinput.New()
	ti.Placeholder = p.Placeholder
	ti.Focus()
	ti.CharLimit = 0
	ti.Prompt = "❯ "
	ti.PromptStyle = lipgloss.NewStyle().Foreground(Accent)

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(Accent)

	return Model{
		input:    ti,
		spinner:  sp,
		ctrl:     ctrl,
		notifier: notifier,
		persona:  p,
		ctx:      ctx,
		state:    ctrl.Snapshot(),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.notifier.wait(), textinput.Blink)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = msg.Width - 4
		m.layout()
		return m, nil

	case stateMsg:
		m.applyState(conversation.State(msg))
		return m, m.notifier.wait()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			return m, tea.Quit
		case tea.KeyEnter:
			if !m.state.CanSend() {
				return m, nil
			}
			if m.ctrl.Send(m.input.Value()) {
				m.input.SetValue("")
			}
			return m, nil
		case tea.KeyCtrlN:
			m.input.SetValue("")
			return m, m.newConversation()
		case tea.KeyCtrlR:
			if !m.state.CanToggleVoice() {
				return m, nil
			}
			return m, m.toggleVoice()
		case tea.KeyEsc:
			m.ctrl.DismissError()
			return m, nil
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	before := m.input.Value()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if after := m.input.Value(); after != before {
		m.ctrl.SetDraft(after)
	}
	return m, cmd
}

// applyState 同步控制器快照。草稿只在语音识别期间（及其结束时）回写输入框，
// 避免覆盖用户正在输入的内容。
func (m *Model) applyState(s conversation.State) {
	prev := m.state
	m.state = s

	if (s.Listening || prev.Listening) && s.Draft != m.input.Value() {
		m.input.SetValue(s.Draft)
		m.input.CursorEnd()
	}

	m.layout()
	if len(s.Messages) != len(prev.Messages) || s.Awaiting != prev.Awaiting {
		m.viewport.GotoBottom()
	}
}

func (m Model) newConversation() tea.Cmd {
	ctrl, ctx := m.ctrl, m.ctx
	return func() tea.Msg {
		ctrl.NewConversation(ctx)
		return nil
	}
}

func (m Model) toggleVoice() tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		ctrl.ToggleVoice()
		return nil
	}
}

func (m Model) bannerVisible() bool {
	return m.state.Error != "" && !m.state.ErrorShownInLog()
}

// layout 计算视口高度并刷新内容
func (m *Model) layout() {
	if m.width == 0 {
		return
	}
	// header + divider + divider + input + footer
	fixed := 5
	if m.bannerVisible() {
		fixed++
	}
	vpHeight := m.height - fixed
	if vpHeight < 1 {
		vpHeight = 1
	}
	if !m.ready {
		m.viewport = viewport.New(m.width, vpHeight)
		m.ready = true
	} else {
		m.viewport.Width = m.width
		m.viewport.Height = vpHeight
	}
	m.viewport.SetContent(m.renderHistory())
}

func (m Model) View() string {
	if !m.ready {
		return "\n  ..."
	}

	divider := DimStyle.Render(strings.Repeat("─", m.width))

	var sb strings.Builder
	sb.WriteString(m.renderHeader() + "\n")
	sb.WriteString(divider + "\n")
	if m.bannerVisible() {
		sb.WriteString(m.renderBanner() + "\n")
	}
	sb.WriteString(m.viewport.View() + "\n")
	sb.WriteString(divider + "\n")
	sb.WriteString(m.renderInput() + "\n")
	sb.WriteString(DimStyle.Render(" " + m.persona.Footer))
	return sb.String()
}

func (m Model) renderHeader() string {
	left := TitleStyle.Render(" " + m.persona.Header)
	right := DimStyle.Render(newHint + " ")
	return left + gap(m.width, left, right) + right
}

func (m Model) renderBanner() string {
	left := BannerStyle.Render(" " + m.state.Error)
	right := DimStyle.Render(dismiss + " ")
	return left + gap(m.width, left, right) + right
}

func (m Model) renderInput() string {
	if m.state.Awaiting {
		return " " + m.spinner.View() + " " + DimStyle.Render(m.persona.TypingLabel)
	}
	left := " " + m.input.View()
	right := micBadge(m.state.Listening, m.state.CanToggleVoice()) + "  " + sendHint + " "
	return left + gap(m.width, left, right) + right
}

func (m Model) renderHistory() string {
	if len(m.state.Messages) == 0 {
		return m.renderWelcome()
	}

	var sb strings.Builder
	for _, msg := range m.state.Messages {
		sb.WriteString("\n")
		label := UserLabel.Render(userLabel)
		if msg.Sender == chat.SenderBot {
			label = BotLabel.Render(m.persona.Name)
		}
		sb.WriteString("  " + label + " " + DimStyle.Render(msg.Timestamp.Format("15:04")) + "\n")
		for _, line := range strings.Split(msg.Text, "\n") {
			sb.WriteString("  " + line + "\n")
		}
	}
	return sb.String()
}

func (m Model) renderWelcome() string {
	var sb strings.Builder
	sb.WriteString("\n")
	for i, line := range m.persona.Welcome {
		if i == 0 {
			sb.WriteString("  " + TitleStyle.Render(line) + "\n")
			continue
		}
		sb.WriteString("  " + DimStyle.Render(line) + "\n")
	}
	return sb.String()
}

func gap(width int, left, right string) string {
	n := width - lipgloss.Width(left) - lipgloss.Width(right)
	if n < 1 {
		n = 1
	}
	return strings.Repeat(" ", n)
}

// Run starts the chat TUI and blocks until the user quits.
func Run(ctx context.Context, ctrl Controller, notifier *Notifier, p persona.Persona) error {
	prog := tea.NewProgram(New(ctx, ctrl, notifier, p), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := prog.Run()
	return err
}
