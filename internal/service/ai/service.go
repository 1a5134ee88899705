package ai

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zhouzirui/arwa/internal/config"
	"github.com/zhouzirui/arwa/internal/model/chat"
	"github.com/zhouzirui/arwa/internal/model/persona"
)

// Role tags one turn of the remote conversation.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one exchanged utterance kept for context.
type Turn struct {
	Role    Role
	Content string
}

// Backend performs one completion against a concrete model provider.
type Backend interface {
	Name() string
	Complete(ctx context.Context, system string, history []Turn, text string) (string, error)
}

// Session is an open remote conversation. Callers treat it as opaque.
type Session struct {
	chat.Session

	system string

	mu      sync.Mutex
	history []Turn
}

// History returns a copy of the exchanged turns.
func (s *Session) History() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Turn(nil), s.history...)
}

// Service opens sessions and forwards turns to the configured backend.
type Service struct {
	backend      Backend
	backendErr   error
	persona      persona.Persona
	historyLimit int
	logger       *zap.Logger
}

// Options tunes a Service built around an explicit backend.
type Options struct {
	HistoryLimit int
}

// NewService creates the backend selected by cfg. Missing or unusable
// credentials do not fail here; they surface from CreateSession.
func NewService(ctx context.Context, cfg config.AIConfig, p persona.Persona, logger *zap.Logger) *Service {
	svc := &Service{
		persona:      p,
		historyLimit: cfg.HistoryLimit,
		logger:       logger.Named("ai"),
	}

	if !cfg.HasCredentials() {
		svc.backendErr = fmt.Errorf("%s provider: API key missing", cfg.Provider)
		return svc
	}

	var err error
	switch cfg.Provider {
	case config.ProviderArk:
		svc.backend, err = NewArkBackend(ctx, cfg)
	default:
		svc.backend = NewOpenAIBackend(cfg)
	}
	if err != nil {
		svc.backendErr = err
		svc.logger.Warn("chat backend unavailable", zap.String("provider", cfg.Provider), zap.Error(err))
		return svc
	}

	svc.logger.Info("chat backend ready", zap.String("provider", svc.backend.Name()), zap.String("model", cfg.Model))
	return svc
}

// NewServiceWithBackend wires an explicit backend. A nil backend behaves as unconfigured.
func NewServiceWithBackend(backend Backend, p persona.Persona, opts Options, logger *zap.Logger) *Service {
	svc := &Service{
		backend:      backend,
		persona:      p,
		historyLimit: opts.HistoryLimit,
		logger:       logger.Named("ai"),
	}
	if backend == nil {
		svc.backendErr = errors.New("no chat backend")
	}
	return svc
}

// Persona returns the persona the service speaks as.
func (s *Service) Persona() persona.Persona {
	return s.persona
}

// CreateSession opens a conversation carrying the persona instruction.
// It performs no network call.
func (s *Service) CreateSession(_ context.Context) (*Session, error) {
	if s.backend == nil {
		return nil, configurationError(s.backendErr)
	}

	session := &Session{
		Session: chat.Session{
			ID:        uuid.NewString(),
			PersonaID: s.persona.ID,
			CreatedAt: time.Now().UTC(),
		},
		system: buildSystemPrompt(s.persona),
	}

	s.logger.Debug("session created", zap.String("session", session.ID))
	return session, nil
}

// SendTurn sends one user utterance and returns the assistant reply.
// The turn joins the session history only when it succeeds.
func (s *Service) SendTurn(ctx context.Context, session *Session, text string) (string, error) {
	if session == nil {
		return "", &ServiceError{Kind: ErrUnknownService, Message: MessageUnknown, Err: errors.New("nil session")}
	}
	if s.backend == nil {
		return "", configurationError(s.backendErr)
	}

	session.mu.Lock()
	defer session.mu.Unlock()

	history := session.history
	if s.historyLimit > 0 && len(history) > s.historyLimit {
		history = history[len(history)-s.historyLimit:]
	}

	started := time.Now()
	reply, err := s.backend.Complete(ctx, session.system, history, text)
	if err != nil {
		classified := classify(err)
		s.logger.Warn("turn failed",
			zap.String("session", session.ID),
			zap.String("backend", s.backend.Name()),
			zap.String("kind", classified.Kind.Error()),
			zap.Error(err),
		)
		return "", classified
	}

	session.history = append(session.history,
		Turn{Role: RoleUser, Content: text},
		Turn{Role: RoleAssistant, Content: reply},
	)

	s.logger.Info("turn completed",
		zap.String("session", session.ID),
		zap.Int("length", len(reply)),
		zap.Duration("elapsed", time.Since(started)),
	)
	return reply, nil
}
