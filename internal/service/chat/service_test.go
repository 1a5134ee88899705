package chat_test

import (
	"errors"
	"testing"

	model "github.com/zhouzirui/arwa/internal/model/chat"
	chat "github.com/zhouzirui/arwa/internal/service/chat"
)

func TestLogAppendKeepsOrder(t *testing.T) {
	log := chat.NewLog()

	first, err := log.Append(model.SenderUser, "مرحبا")
	if err != nil {
		t.Fatalf("Append err: %v", err)
	}
	second, err := log.Append(model.SenderBot, "أهلاً بيك")
	if err != nil {
		t.Fatalf("Append err: %v", err)
	}

	messages := log.Messages()
	if len(messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(messages))
	}
	if messages[0].ID != first.ID || messages[1].ID != second.ID {
		t.Fatal("messages out of order")
	}
	if first.ID == second.ID || first.ID == "" {
		t.Fatal("expected distinct non-empty ids")
	}
	if messages[0].Sender != model.SenderUser || messages[1].Sender != model.SenderBot {
		t.Fatalf("unexpected senders: %s, %s", messages[0].Sender, messages[1].Sender)
	}
	if first.Timestamp.IsZero() {
		t.Fatal("expected timestamp")
	}
}

func TestLogMessagesReturnsCopy(t *testing.T) {
	log := chat.NewLog()
	if _, err := log.Append(model.SenderUser, "hi"); err != nil {
		t.Fatalf("Append err: %v", err)
	}

	messages := log.Messages()
	messages[0].Text = "mutated"

	if got := log.Messages()[0].Text; got != "hi" {
		t.Fatalf("log was mutated through copy: %q", got)
	}
}

func TestLogAppendRejectsInvalid(t *testing.T) {
	log := chat.NewLog()

	if _, err := log.Append(model.SenderUser, "   "); !errors.Is(err, chat.ErrEmptyText) {
		t.Fatalf("expected ErrEmptyText, got %v", err)
	}
	if _, err := log.Append(model.Sender("system"), "x"); !errors.Is(err, chat.ErrUnknownSender) {
		t.Fatalf("expected ErrUnknownSender, got %v", err)
	}
	if log.Len() != 0 {
		t.Fatalf("expected empty log, got %d", log.Len())
	}
}

func TestLogReset(t *testing.T) {
	log := chat.NewLog()
	_, _ = log.Append(model.SenderUser, "one")
	_, _ = log.Append(model.SenderBot, "two")

	last, ok := log.Last()
	if !ok || last.Text != "two" {
		t.Fatalf("unexpected last message: %+v", last)
	}

	log.Reset()
	if log.Len() != 0 {
		t.Fatalf("expected empty log after reset, got %d", log.Len())
	}
	if _, ok := log.Last(); ok {
		t.Fatal("expected no last message after reset")
	}
}
