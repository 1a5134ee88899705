package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/zhouzirui/arwa/internal/conversation"
)

// Notifier bridges controller snapshots into the bubbletea loop. Only the
// latest snapshot is kept; older ones are replaced before the UI reads them.
type Notifier struct {
	ch chan conversation.State
}

// NewNotifier creates an empty notifier.
func NewNotifier() *Notifier {
	return &Notifier{ch: make(chan conversation.State, 1)}
}

// Observe is a conversation.Observer. It never blocks.
func (n *Notifier) Observe(s conversation.State) {
	for {
		select {
		case n.ch <- s:
			return
		default:
		}
		select {
		case <-n.ch:
		default:
		}
	}
}

type stateMsg conversation.State

func (n *Notifier) wait() tea.Cmd {
	return func() tea.Msg {
		return stateMsg(<-n.ch)
	}
}
