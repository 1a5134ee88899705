package ui

import "github.com/charmbracelet/lipgloss"

const (
	userLabel = "أنت"
	newHint   = "Ctrl+N محادثة جديدة"
	micHint   = "Ctrl+R 🎤"
	sendHint  = "Enter ➤"
	dismiss   = "إخفاء (Esc)"
)

var (
	Accent = lipgloss.Color("#7C3AED")
	Subtle = lipgloss.Color("#555555")
	Red    = lipgloss.Color("#FF4444")
	Green  = lipgloss.Color("#04B575")

	TitleStyle  = lipgloss.NewStyle().Bold(true).Foreground(Accent)
	BotLabel    = lipgloss.NewStyle().Bold(true).Foreground(Accent)
	UserLabel   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#AAAAAA"))
	BannerStyle = lipgloss.NewStyle().Foreground(Red)
	DimStyle    = lipgloss.NewStyle().Foreground(Subtle)
	LiveStyle   = lipgloss.NewStyle().Foreground(Green).Bold(true)
)

// micBadge 麦克风状态：录音中 / 可用 / 禁用
func micBadge(listening, enabled bool) string {
	switch {
	case listening:
		return LiveStyle.Render("● " + micHint)
	case enabled:
		return micHint
	default:
		return DimStyle.Render(micHint)
	}
}
