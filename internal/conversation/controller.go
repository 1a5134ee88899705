// Package conversation coordinates the message log, the chat session and
// voice input for one running UI.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/zhouzirui/arwa/internal/model/chat"
	speechmodel "github.com/zhouzirui/arwa/internal/model/speech"
	"github.com/zhouzirui/arwa/internal/service/ai"
	chatsvc "github.com/zhouzirui/arwa/internal/service/chat"
	"github.com/zhouzirui/arwa/internal/service/speech"
)

// ChatService opens remote sessions and exchanges turns.
type ChatService interface {
	CreateSession(ctx context.Context) (*ai.Session, error)
	SendTurn(ctx context.Context, session *ai.Session, text string) (string, error)
}

// SpeechAdapter is the recognition/synthesis surface the controller drives.
type SpeechAdapter interface {
	IsRecognitionSupported() bool
	IsSynthesisSupported() bool
	StartListening(ctx context.Context, cb speech.ListenCallbacks) *speech.Handle
	StopListening(h *speech.Handle)
	Speak(text string, onDone func())
	Cancel()
}

// Observer receives a fresh snapshot after every state change. Calls are
// serialized; an observer must not call back into the controller synchronously.
type Observer func(State)

// voiceStream is the per-stream record of one recognition session.
type voiceStream struct {
	id            uint64
	handle        *speech.Handle
	finalConsumed bool
}

// Controller owns the conversation state. All methods are safe for concurrent use.
type Controller struct {
	chat     ChatService
	speech   SpeechAdapter
	observer Observer
	logger   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	turns  sync.WaitGroup

	notifyMu sync.Mutex

	mu         sync.Mutex
	log        *chatsvc.Log
	session    *ai.Session
	generation uint64
	turnCancel context.CancelFunc
	draft      string
	awaiting   bool
	listening  bool
	errText    string
	voice      *voiceStream
	streamSeq  uint64
	closed     bool
}

// New creates a controller with no session. Call Start to open the first one.
func New(chatService ChatService, speechAdapter SpeechAdapter, observer Observer, logger *zap.Logger) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		chat:     chatService,
		speech:   speechAdapter,
		observer: observer,
		logger:   logger.Named("conversation"),
		ctx:      ctx,
		cancel:   cancel,
		log:      chatsvc.NewLog(),
	}
}

// Start opens the first session and flags missing speech capabilities.
func (c *Controller) Start(ctx context.Context) {
	c.NewConversation(ctx)

	if c.speech.IsRecognitionSupported() && c.speech.IsSynthesisSupported() {
		return
	}
	c.mu.Lock()
	// 初始化失败的提示优先
	if c.errText == "" {
		c.errText = MessageUnsupported
	}
	c.mu.Unlock()
	c.notify()
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() State {
	return State{
		Messages:             c.log.Messages(),
		Draft:                c.draft,
		Awaiting:             c.awaiting,
		Listening:            c.listening,
		Error:                c.errText,
		Ready:                c.session != nil,
		RecognitionSupported: c.speech.IsRecognitionSupported(),
		SynthesisSupported:   c.speech.IsSynthesisSupported(),
	}
}

func (c *Controller) notify() {
	if c.observer == nil {
		return
	}
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	c.observer(c.Snapshot())
}

// NewConversation discards the current session and log and opens a new session.
// A turn still in flight for the old session is cancelled and its reply dropped.
func (c *Controller) NewConversation(ctx context.Context) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.generation++
	gen := c.generation
	if c.turnCancel != nil {
		c.turnCancel()
		c.turnCancel = nil
	}
	c.session = nil
	c.log.Reset()
	c.errText = ""
	c.awaiting = false
	c.mu.Unlock()
	c.notify()

	session, err := c.chat.CreateSession(ctx)

	c.mu.Lock()
	if gen != c.generation || c.closed {
		c.mu.Unlock()
		return
	}
	if err != nil {
		c.errText = MessageInitFailed
		c.logger.Warn("failed to create chat session", zap.Error(err))
	} else {
		c.session = session
		c.logger.Info("chat session created", zap.String("session", session.ID))
	}
	c.mu.Unlock()
	c.notify()
}

// Send submits text as a user turn. It returns false when the text is blank,
// no session exists or a reply is still outstanding.
func (c *Controller) Send(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}

	c.mu.Lock()
	if c.closed || c.session == nil || c.awaiting {
		c.mu.Unlock()
		return false
	}
	if _, err := c.log.Append(chat.SenderUser, text); err != nil {
		c.mu.Unlock()
		c.logger.Error("append user message", zap.Error(err))
		return false
	}
	c.draft = ""
	c.awaiting = true
	c.errText = ""

	session := c.session
	gen := c.generation
	turnCtx, cancel := context.WithCancel(c.ctx)
	c.turnCancel = cancel
	c.turns.Add(1)
	c.mu.Unlock()
	c.notify()

	go c.runTurn(turnCtx, cancel, gen, session, text)
	return true
}

func (c *Controller) runTurn(ctx context.Context, cancel context.CancelFunc, gen uint64, session *ai.Session, text string) {
	defer c.turns.Done()
	defer cancel()

	reply, err := c.chat.SendTurn(ctx, session, text)

	c.mu.Lock()
	if gen != c.generation || c.closed {
		c.mu.Unlock()
		c.logger.Debug("dropping reply for discarded session", zap.String("session", session.ID))
		return
	}
	c.awaiting = false
	c.turnCancel = nil

	speak := false
	if err == nil && strings.TrimSpace(reply) == "" {
		// 空回复按失败展示
		c.logger.Warn("empty reply", zap.String("session", session.ID))
		err = errors.New(MessageSendFailed)
	}
	if err != nil {
		errText := sendErrorText(err)
		if _, appendErr := c.log.Append(chat.SenderBot, errText); appendErr != nil {
			c.logger.Error("append error message", zap.Error(appendErr))
		}
		c.errText = errText
	} else if _, appendErr := c.log.Append(chat.SenderBot, reply); appendErr != nil {
		c.logger.Error("append reply", zap.Error(appendErr))
	} else {
		speak = c.speech.IsSynthesisSupported()
	}
	c.mu.Unlock()
	c.notify()

	if speak {
		c.speech.Speak(reply, nil)
	}
}

func sendErrorText(err error) string {
	var svcErr *ai.ServiceError
	if errors.As(err, &svcErr) {
		return ai.UserMessage(svcErr)
	}
	if strings.TrimSpace(err.Error()) != "" {
		return err.Error()
	}
	return MessageSendFailed
}

// SetDraft replaces the pending input text.
func (c *Controller) SetDraft(text string) {
	c.mu.Lock()
	c.draft = text
	c.mu.Unlock()
	c.notify()
}

// DismissError hides the banner.
func (c *Controller) DismissError() {
	c.mu.Lock()
	c.errText = ""
	c.mu.Unlock()
	c.notify()
}

// ToggleVoice starts listening, or stops the active stream.
func (c *Controller) ToggleVoice() {
	if !c.speech.IsRecognitionSupported() {
		c.setError(MessageUnsupported)
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if c.listening {
		c.listening = false
		var handle *speech.Handle
		if c.voice != nil {
			// 记录保留到 End 回调，以便发送未确认的草稿
			handle = c.voice.handle
		}
		c.mu.Unlock()
		c.speech.StopListening(handle)
		c.notify()
		return
	}

	c.streamSeq++
	v := &voiceStream{id: c.streamSeq}
	c.voice = v
	c.listening = true
	c.mu.Unlock()
	c.notify()

	handle := c.speech.StartListening(c.ctx, speech.ListenCallbacks{
		OnResult: func(text string, isFinal bool) { c.onResult(v, text, isFinal) },
		OnEnd:    func() { c.onEnd(v) },
		OnError:  func(err *speechmodel.RecognitionError) { c.onError(v, err) },
	})

	c.mu.Lock()
	if handle == nil {
		// OnError 已同步处理
		if c.voice == v {
			c.voice = nil
			c.listening = false
		}
		c.mu.Unlock()
		c.notify()
		return
	}
	v.handle = handle
	stale := c.voice != v || !c.listening || v.finalConsumed
	c.mu.Unlock()

	if stale {
		// 启动期间已被停止或替换
		c.speech.StopListening(handle)
	}
	c.logger.Debug("listening", zap.Uint64("stream", v.id), zap.String("engine_stream", handle.ID()))
}

func (c *Controller) onResult(v *voiceStream, text string, isFinal bool) {
	c.mu.Lock()
	if c.voice != v || v.finalConsumed {
		c.mu.Unlock()
		return
	}

	if !isFinal {
		c.draft = text
		c.mu.Unlock()
		c.notify()
		return
	}

	if text == "" {
		c.mu.Unlock()
		return
	}
	v.finalConsumed = true
	c.voice = nil
	c.listening = false
	c.draft = text
	handle := v.handle
	c.mu.Unlock()

	c.speech.StopListening(handle)
	if !c.Send(text) {
		c.notify()
	}
}

func (c *Controller) onEnd(v *voiceStream) {
	c.mu.Lock()
	if c.voice != v {
		c.mu.Unlock()
		return
	}
	c.voice = nil
	c.listening = false
	var leftover string
	if !v.finalConsumed {
		leftover = strings.TrimSpace(c.draft)
	}
	c.mu.Unlock()

	if leftover != "" && c.Send(leftover) {
		return
	}
	c.notify()
}

func (c *Controller) onError(v *voiceStream, err *speechmodel.RecognitionError) {
	c.mu.Lock()
	if c.voice != v {
		c.mu.Unlock()
		return
	}
	c.logger.Info("recognition error", zap.String("code", err.Code), zap.String("message", err.Message))
	c.voice = nil
	c.listening = false
	c.errText = fmt.Sprintf(recognitionErrorFormat, err.Message, err.Code)
	c.mu.Unlock()
	c.notify()
}

func (c *Controller) setError(text string) {
	c.mu.Lock()
	c.errText = text
	c.mu.Unlock()
	c.notify()
}

// Close stops recognition and playback and waits for in-flight turns.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	var handle *speech.Handle
	if c.voice != nil {
		handle = c.voice.handle
	}
	c.voice = nil
	c.listening = false
	c.mu.Unlock()

	c.speech.StopListening(handle)
	c.speech.Cancel()
	c.cancel()
	c.turns.Wait()
}
