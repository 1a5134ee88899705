package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap/zaptest"

	"github.com/zhouzirui/arwa/internal/config"
	"github.com/zhouzirui/arwa/internal/model/persona"
)

type fakeBackend struct {
	reply   string
	err     error
	calls   int
	system  string
	history []Turn
	text    string
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Complete(_ context.Context, system string, history []Turn, text string) (string, error) {
	f.calls++
	f.system = system
	f.history = append([]Turn(nil), history...)
	f.text = text
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func arwa(t *testing.T) persona.Persona {
	t.Helper()
	p, ok := persona.NewMemoryStore(persona.Seed()).FindByID(persona.DefaultID)
	if !ok {
		t.Fatal("default persona missing")
	}
	return p
}

func TestCreateSessionWithoutCredentials(t *testing.T) {
	svc := NewService(context.Background(), config.AIConfig{Provider: config.ProviderOpenAI}, arwa(t), zaptest.NewLogger(t))

	session, err := svc.CreateSession(context.Background())
	if session != nil {
		t.Fatal("expected no session")
	}
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
	if UserMessage(err) != MessageConfiguration {
		t.Fatalf("unexpected message: %q", UserMessage(err))
	}
}

func TestSendTurnCarriesPersonaAndHistory(t *testing.T) {
	backend := &fakeBackend{reply: "أهلاً"}
	svc := NewServiceWithBackend(backend, arwa(t), Options{}, zaptest.NewLogger(t))

	session, err := svc.CreateSession(context.Background())
	if err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}
	if session.PersonaID != persona.DefaultID {
		t.Fatalf("unexpected persona id: %s", session.PersonaID)
	}

	reply, err := svc.SendTurn(context.Background(), session, "ازيك")
	if err != nil {
		t.Fatalf("SendTurn err: %v", err)
	}
	if reply != "أهلاً" {
		t.Fatalf("unexpected reply: %q", reply)
	}
	if !strings.Contains(backend.system, "أرويه") {
		t.Fatalf("system prompt missing persona: %q", backend.system)
	}
	if len(backend.history) != 0 {
		t.Fatalf("expected empty history on first turn, got %d", len(backend.history))
	}

	if _, err := svc.SendTurn(context.Background(), session, "تاني"); err != nil {
		t.Fatalf("SendTurn err: %v", err)
	}
	if len(backend.history) != 2 || backend.history[0].Content != "ازيك" || backend.history[1].Role != RoleAssistant {
		t.Fatalf("unexpected history: %+v", backend.history)
	}
}

func TestSendTurnFailureKeepsHistory(t *testing.T) {
	backend := &fakeBackend{err: errors.New("Quota exceeded for project")}
	svc := NewServiceWithBackend(backend, arwa(t), Options{}, zaptest.NewLogger(t))
	session, _ := svc.CreateSession(context.Background())

	_, err := svc.SendTurn(context.Background(), session, "hi")
	if !errors.Is(err, ErrQuota) {
		t.Fatalf("expected ErrQuota, got %v", err)
	}
	if UserMessage(err) != MessageQuota {
		t.Fatalf("unexpected message: %q", UserMessage(err))
	}
	if len(session.History()) != 0 {
		t.Fatalf("failed turn must not join history, got %d", len(session.History()))
	}
}

func TestSendTurnHistoryLimit(t *testing.T) {
	backend := &fakeBackend{reply: "ok"}
	svc := NewServiceWithBackend(backend, arwa(t), Options{HistoryLimit: 2}, zaptest.NewLogger(t))
	session, _ := svc.CreateSession(context.Background())

	for i := 0; i < 3; i++ {
		if _, err := svc.SendTurn(context.Background(), session, fmt.Sprintf("turn %d", i)); err != nil {
			t.Fatalf("SendTurn err: %v", err)
		}
	}
	if len(backend.history) != 2 || backend.history[0].Content != "turn 1" {
		t.Fatalf("expected last two turns, got %+v", backend.history)
	}
	if len(session.History()) != 6 {
		t.Fatalf("expected full history kept on session, got %d", len(session.History()))
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		kind    error
		message string
	}{
		{name: "api status 401", err: &openai.APIError{HTTPStatusCode: 401, Message: "bad"}, kind: ErrAuth, message: MessageAuth},
		{name: "api status 429", err: &openai.APIError{HTTPStatusCode: 429, Message: "slow down"}, kind: ErrQuota, message: MessageQuota},
		{name: "request status 403", err: &openai.RequestError{HTTPStatusCode: 403, Err: errors.New("forbidden")}, kind: ErrAuth, message: MessageAuth},
		{name: "key marker", err: errors.New("API key not valid. Please pass a valid API key."), kind: ErrAuth, message: MessageAuth},
		{name: "ark auth", err: errors.New("Error code: AuthenticationError"), kind: ErrAuth, message: MessageAuth},
		{name: "quota marker", err: errors.New("You exceeded your current quota"), kind: ErrQuota, message: MessageQuota},
		{name: "ark overdue", err: errors.New("AccountOverdueError: balance"), kind: ErrQuota, message: MessageQuota},
		{name: "other", err: errors.New("connection reset"), kind: ErrUnknownService, message: "connection reset"},
		{name: "canceled", err: fmt.Errorf("run: %w", context.Canceled), kind: ErrUnknownService, message: MessageUnknown},
	}

	for _, tc := range cases {
		got := classify(tc.err)
		if !errors.Is(got, tc.kind) {
			t.Errorf("%s: expected kind %v, got %v", tc.name, tc.kind, got.Kind)
		}
		if got.Message != tc.message {
			t.Errorf("%s: expected message %q, got %q", tc.name, tc.message, got.Message)
		}
		if !errors.Is(got, tc.err) {
			t.Errorf("%s: classified error must wrap the cause", tc.name)
		}
	}
}

func TestUserMessageFallback(t *testing.T) {
	if got := UserMessage(nil); got != MessageUnknown {
		t.Fatalf("unexpected message for nil: %q", got)
	}
	if got := UserMessage(errors.New("boom")); got != "boom" {
		t.Fatalf("unexpected message: %q", got)
	}
}

func TestBuildSystemPromptFallback(t *testing.T) {
	got := buildSystemPrompt(persona.Persona{Name: "سارة", Title: "مساعدة"})
	if !strings.Contains(got, "سارة") || !strings.Contains(got, "مساعدة") {
		t.Fatalf("unexpected fallback prompt: %q", got)
	}
	if buildSystemPrompt(persona.Persona{}) != "" {
		t.Fatal("expected empty prompt for empty persona")
	}
}
