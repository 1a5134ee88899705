package conversation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/zhouzirui/arwa/internal/model/chat"
	"github.com/zhouzirui/arwa/internal/model/persona"
	speechmodel "github.com/zhouzirui/arwa/internal/model/speech"
	"github.com/zhouzirui/arwa/internal/service/ai"
	"github.com/zhouzirui/arwa/internal/service/speech"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

type fakeChat struct {
	mu        sync.Mutex
	createErr error
	sent      []string
	reply     func(text string) (string, error)
	onSend    func()
	release   chan struct{}
}

func (f *fakeChat) CreateSession(context.Context) (*ai.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &ai.Session{Session: chat.Session{ID: "session"}}, nil
}

func (f *fakeChat) SendTurn(ctx context.Context, _ *ai.Session, text string) (string, error) {
	f.mu.Lock()
	f.sent = append(f.sent, text)
	onSend, release, reply := f.onSend, f.release, f.reply
	f.mu.Unlock()

	if onSend != nil {
		onSend()
	}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if reply != nil {
		return reply(text)
	}
	return "رد: " + text, nil
}

func (f *fakeChat) sentTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

type fakeStream struct {
	events chan speechmodel.TranscriptEvent
	once   sync.Once
}

func (s *fakeStream) ID() string                                 { return "stream" }
func (s *fakeStream) Events() <-chan speechmodel.TranscriptEvent { return s.events }

func (s *fakeStream) Stop() error {
	s.finish(speechmodel.TranscriptEvent{Kind: speechmodel.EventEnd})
	return nil
}

func (s *fakeStream) partial(text string) {
	s.events <- speechmodel.TranscriptEvent{Kind: speechmodel.EventPartial, Text: text}
}

func (s *fakeStream) final(text string) {
	s.events <- speechmodel.TranscriptEvent{Kind: speechmodel.EventFinal, Text: text}
}

func (s *fakeStream) finish(ev speechmodel.TranscriptEvent) {
	s.once.Do(func() {
		s.events <- ev
		close(s.events)
	})
}

type fakePlatform struct {
	recognition bool
	synthesis   bool

	mu      sync.Mutex
	streams []*fakeStream
	spoken  []string
}

func (p *fakePlatform) RecognitionSupported() bool  { return p.recognition }
func (p *fakePlatform) SynthesisSupported() bool    { return p.synthesis }
func (p *fakePlatform) Voices() []speechmodel.Voice { return nil }

func (p *fakePlatform) StartRecognition(context.Context, speechmodel.RecognitionOptions) (speech.RecognitionStream, error) {
	s := &fakeStream{events: make(chan speechmodel.TranscriptEvent, 16)}
	p.mu.Lock()
	p.streams = append(p.streams, s)
	p.mu.Unlock()
	return s, nil
}

func (p *fakePlatform) Speak(_ context.Context, u speechmodel.Utterance) error {
	p.mu.Lock()
	p.spoken = append(p.spoken, u.Text)
	p.mu.Unlock()
	return nil
}

func (p *fakePlatform) stream(t *testing.T, i int) *fakeStream {
	t.Helper()
	require.Eventually(t, func() bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		return len(p.streams) > i
	}, waitFor, tick)
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.streams[i]
}

func (p *fakePlatform) spokenTexts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.spoken...)
}

func newController(t *testing.T, chatService ChatService, platform *fakePlatform) *Controller {
	t.Helper()
	logger := zaptest.NewLogger(t)
	c := New(chatService, speech.NewAdapter(platform, speech.AdapterOptions{}, logger), nil, logger)
	t.Cleanup(c.Close)
	c.Start(context.Background())
	return c
}

func settled(c *Controller, messages int) func() bool {
	return func() bool {
		s := c.Snapshot()
		return len(s.Messages) == messages && !s.Awaiting
	}
}

func TestSendAppendsUserThenBot(t *testing.T) {
	fc := &fakeChat{release: make(chan struct{})}
	c := newController(t, fc, &fakePlatform{recognition: true, synthesis: true})

	var atCall []chat.Message
	fc.onSend = func() { atCall = c.Snapshot().Messages }

	require.True(t, c.Send("  مرحبا  "))

	state := c.Snapshot()
	require.Len(t, state.Messages, 1)
	assert.Equal(t, chat.SenderUser, state.Messages[0].Sender)
	assert.Equal(t, "مرحبا", state.Messages[0].Text)
	assert.True(t, state.Awaiting)
	assert.Empty(t, state.Draft)

	close(fc.release)
	require.Eventually(t, settled(c, 2), waitFor, tick)

	state = c.Snapshot()
	assert.Len(t, atCall, 1, "user message must exist before the network call")
	assert.Equal(t, chat.SenderBot, state.Messages[1].Sender)
	assert.Equal(t, "رد: مرحبا", state.Messages[1].Text)
	assert.Empty(t, state.Error)
}

func TestSendBlankIsNoop(t *testing.T) {
	fc := &fakeChat{}
	c := newController(t, fc, &fakePlatform{recognition: true, synthesis: true})

	assert.False(t, c.Send(""))
	assert.False(t, c.Send("   "))
	assert.Empty(t, c.Snapshot().Messages)
	assert.Empty(t, fc.sentTexts())
}

func TestSendIgnoredWhileAwaiting(t *testing.T) {
	fc := &fakeChat{release: make(chan struct{})}
	c := newController(t, fc, &fakePlatform{recognition: true, synthesis: true})

	require.True(t, c.Send("first"))
	assert.False(t, c.Send("second"))
	assert.Len(t, c.Snapshot().Messages, 1)

	close(fc.release)
	require.Eventually(t, settled(c, 2), waitFor, tick)
	assert.Equal(t, []string{"first"}, fc.sentTexts())

	require.True(t, c.Send("third"))
	require.Eventually(t, settled(c, 4), waitFor, tick)
}

func TestReplyIsSpoken(t *testing.T) {
	platform := &fakePlatform{recognition: true, synthesis: true}
	c := newController(t, &fakeChat{}, platform)

	require.True(t, c.Send("hello"))
	require.Eventually(t, func() bool { return len(platform.spokenTexts()) == 1 }, waitFor, tick)
	assert.Equal(t, []string{"رد: hello"}, platform.spokenTexts())
}

func TestToggleStartStopWithoutFinal(t *testing.T) {
	fc := &fakeChat{}
	platform := &fakePlatform{recognition: true, synthesis: true}
	c := newController(t, fc, platform)

	c.ToggleVoice()
	assert.True(t, c.Snapshot().Listening)
	platform.stream(t, 0)

	c.ToggleVoice()
	assert.False(t, c.Snapshot().Listening)

	time.Sleep(20 * time.Millisecond)
	assert.False(t, c.Snapshot().Listening)
	assert.Empty(t, fc.sentTexts())
	assert.Empty(t, c.Snapshot().Messages)
}

func TestPartialsThenFinalSendOnce(t *testing.T) {
	fc := &fakeChat{}
	platform := &fakePlatform{recognition: true, synthesis: true}
	c := newController(t, fc, platform)

	c.ToggleVoice()
	stream := platform.stream(t, 0)
	stream.partial("hi")
	stream.partial("hi there")
	stream.final("hi there friend")

	require.Eventually(t, settled(c, 2), waitFor, tick)
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, []string{"hi there friend"}, fc.sentTexts())
	state := c.Snapshot()
	assert.False(t, state.Listening)
	assert.Len(t, state.Messages, 2)
}

func TestPartialThenEndSendsLeftover(t *testing.T) {
	fc := &fakeChat{}
	platform := &fakePlatform{recognition: true, synthesis: true}
	c := newController(t, fc, platform)

	c.ToggleVoice()
	stream := platform.stream(t, 0)
	stream.partial("hello")
	require.Eventually(t, func() bool { return c.Snapshot().Draft == "hello" }, waitFor, tick)

	stream.finish(speechmodel.TranscriptEvent{Kind: speechmodel.EventEnd})

	require.Eventually(t, settled(c, 2), waitFor, tick)
	assert.Equal(t, []string{"hello"}, fc.sentTexts())
	assert.False(t, c.Snapshot().Listening)
}

func TestManualStopSendsLeftoverDraft(t *testing.T) {
	fc := &fakeChat{}
	platform := &fakePlatform{recognition: true, synthesis: true}
	c := newController(t, fc, platform)

	c.ToggleVoice()
	stream := platform.stream(t, 0)
	stream.partial("أريد")
	require.Eventually(t, func() bool { return c.Snapshot().Draft == "أريد" }, waitFor, tick)

	c.ToggleVoice()
	require.Eventually(t, settled(c, 2), waitFor, tick)
	assert.Equal(t, []string{"أريد"}, fc.sentTexts())
}

func TestRecognitionErrorSetsBanner(t *testing.T) {
	fc := &fakeChat{}
	platform := &fakePlatform{recognition: true, synthesis: true}
	c := newController(t, fc, platform)

	c.ToggleVoice()
	stream := platform.stream(t, 0)
	stream.partial("مر")
	stream.finish(speechmodel.TranscriptEvent{
		Kind: speechmodel.EventError,
		Err:  &speechmodel.RecognitionError{Code: speechmodel.CodeNoSpeech},
	})

	require.Eventually(t, func() bool { return c.Snapshot().Error != "" }, waitFor, tick)
	state := c.Snapshot()
	assert.Equal(t, "خطأ في التعرف على الصوت: لم يتم اكتشاف أي كلام. حاول التحدث بوضوح. (الكود: no-speech)", state.Error)
	assert.False(t, state.Listening)
	assert.Empty(t, fc.sentTexts())

	c.DismissError()
	assert.Empty(t, c.Snapshot().Error)
}

func TestToggleVoiceUnsupported(t *testing.T) {
	c := newController(t, &fakeChat{}, &fakePlatform{synthesis: true})

	state := c.Snapshot()
	assert.Equal(t, MessageUnsupported, state.Error, "startup banner")
	assert.False(t, state.CanToggleVoice())

	c.DismissError()
	c.ToggleVoice()
	state = c.Snapshot()
	assert.Equal(t, MessageUnsupported, state.Error)
	assert.False(t, state.Listening)
}

func TestMissingCredentialThenRetry(t *testing.T) {
	fc := &fakeChat{createErr: errors.New("no key")}
	c := newController(t, fc, &fakePlatform{recognition: true, synthesis: true})

	state := c.Snapshot()
	assert.Empty(t, state.Messages)
	assert.False(t, state.Ready)
	assert.Equal(t, MessageInitFailed, state.Error)
	assert.False(t, c.Send("hello"))

	fc.mu.Lock()
	fc.createErr = nil
	fc.mu.Unlock()

	c.NewConversation(context.Background())
	state = c.Snapshot()
	assert.True(t, state.Ready)
	assert.Empty(t, state.Error)
}

func TestUnconfiguredServiceFailsSession(t *testing.T) {
	logger := zaptest.NewLogger(t)
	svc := ai.NewServiceWithBackend(nil, persona.Seed()[0], ai.Options{}, logger)
	c := newController(t, svc, &fakePlatform{recognition: true, synthesis: true})

	state := c.Snapshot()
	assert.Empty(t, state.Messages)
	assert.Equal(t, MessageInitFailed, state.Error)
}

type quotaBackend struct{}

func (quotaBackend) Name() string { return "quota" }

func (quotaBackend) Complete(context.Context, string, []ai.Turn, string) (string, error) {
	return "", errors.New("error, status code: 429, message: You exceeded your current quota")
}

func TestQuotaFailureAppendsBotMessage(t *testing.T) {
	logger := zaptest.NewLogger(t)
	svc := ai.NewServiceWithBackend(quotaBackend{}, persona.Seed()[0], ai.Options{}, logger)
	platform := &fakePlatform{recognition: true, synthesis: true}
	c := newController(t, svc, platform)

	require.True(t, c.Send("hello"))
	require.Eventually(t, settled(c, 2), waitFor, tick)

	state := c.Snapshot()
	assert.Equal(t, chat.SenderBot, state.Messages[1].Sender)
	assert.Equal(t, ai.MessageQuota, state.Messages[1].Text)
	assert.Equal(t, ai.MessageQuota, state.Error)
	assert.True(t, state.ErrorShownInLog())
	assert.False(t, state.Awaiting)
	assert.Empty(t, platform.spokenTexts(), "failures are not read aloud")
}

func TestNewConversationDropsLateReply(t *testing.T) {
	fc := &fakeChat{release: make(chan struct{})}
	c := newController(t, fc, &fakePlatform{recognition: true, synthesis: true})

	require.True(t, c.Send("old question"))
	c.NewConversation(context.Background())

	state := c.Snapshot()
	assert.Empty(t, state.Messages)
	assert.False(t, state.Awaiting)
	assert.True(t, state.Ready)

	// 旧回合被取消，回复不进入新日志
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, c.Snapshot().Messages)

	fc.mu.Lock()
	fc.release = nil
	fc.mu.Unlock()
	require.True(t, c.Send("new question"))
	require.Eventually(t, settled(c, 2), waitFor, tick)
}

func TestObserverReceivesSnapshots(t *testing.T) {
	var (
		mu     sync.Mutex
		states []State
	)
	logger := zaptest.NewLogger(t)
	platform := &fakePlatform{recognition: true, synthesis: true}
	c := New(&fakeChat{}, speech.NewAdapter(platform, speech.AdapterOptions{}, logger), func(s State) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	}, logger)
	t.Cleanup(c.Close)

	c.Start(context.Background())
	c.SetDraft("draft")

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, states)
	last := states[len(states)-1]
	assert.Equal(t, "draft", last.Draft)
	assert.True(t, last.Ready)
}

func TestCloseStopsListening(t *testing.T) {
	platform := &fakePlatform{recognition: true, synthesis: true}
	logger := zaptest.NewLogger(t)
	c := New(&fakeChat{}, speech.NewAdapter(platform, speech.AdapterOptions{}, logger), nil, logger)
	c.Start(context.Background())

	c.ToggleVoice()
	stream := platform.stream(t, 0)
	c.Close()

	_, open := <-stream.events
	for open {
		_, open = <-stream.events
	}
	assert.False(t, c.Snapshot().Listening)
	assert.False(t, c.Send("after close"))
}
