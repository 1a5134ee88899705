package chat

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zhouzirui/arwa/internal/model/chat"
)

var (
	ErrEmptyText     = errors.New("message text is required")
	ErrUnknownSender = errors.New("unknown message sender")
)

// Log is the ordered, append-only conversation log shown to the user.
// It is only ever cleared as a whole.
type Log struct {
	mu       sync.RWMutex
	messages []chat.Message
	now      func() time.Time
}

// NewLog returns an empty log.
func NewLog() *Log {
	return &Log{
		messages: make([]chat.Message, 0, 16),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Append stamps a new message with an id and the current time and adds it to the end.
func (l *Log) Append(sender chat.Sender, text string) (chat.Message, error) {
	if strings.TrimSpace(text) == "" {
		return chat.Message{}, ErrEmptyText
	}
	if sender != chat.SenderUser && sender != chat.SenderBot {
		return chat.Message{}, ErrUnknownSender
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	message := chat.Message{
		ID:        uuid.NewString(),
		Text:      text,
		Sender:    sender,
		Timestamp: l.now(),
	}
	l.messages = append(l.messages, message)
	return message, nil
}

// Messages returns a copy of the log in insertion order.
func (l *Log) Messages() []chat.Message {
	l.mu.RLock()
	defer l.mu.RUnlock()

	copied := make([]chat.Message, len(l.messages))
	copy(copied, l.messages)
	return copied
}

// Len reports the number of messages.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.messages)
}

// Last returns the most recent message.
func (l *Log) Last() (chat.Message, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.messages) == 0 {
		return chat.Message{}, false
	}
	return l.messages[len(l.messages)-1], true
}

// Reset drops every message.
func (l *Log) Reset() {
	l.mu.Lock()
	l.messages = make([]chat.Message, 0, 16)
	l.mu.Unlock()
}
