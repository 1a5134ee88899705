package speech

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zhouzirui/arwa/internal/model/speech"
)

const (
	DefaultInputLang  = "ar-SA"
	DefaultOutputLang = "ar-EG"
)

// ListenCallbacks 识别回调，均在适配器的事件协程中调用。
// OnEnd 只触发一次；OnError 之后不再有任何回调。
type ListenCallbacks struct {
	OnResult func(text string, isFinal bool)
	OnEnd    func()
	OnError  func(err *speech.RecognitionError)
}

func (cb ListenCallbacks) result(text string, isFinal bool) {
	if cb.OnResult != nil {
		cb.OnResult(text, isFinal)
	}
}

func (cb ListenCallbacks) end() {
	if cb.OnEnd != nil {
		cb.OnEnd()
	}
}

func (cb ListenCallbacks) fail(err *speech.RecognitionError) {
	if cb.OnError != nil {
		cb.OnError(err)
	}
}

// Handle 一次识别会话的句柄
type Handle struct {
	stream   RecognitionStream
	stopOnce sync.Once
}

// ID 返回识别流标识
func (h *Handle) ID() string {
	if h == nil {
		return ""
	}
	return h.stream.ID()
}

// AdapterOptions 固定的识别与合成语言
type AdapterOptions struct {
	InputLang  string
	OutputLang string
}

// Adapter 将 Platform 封装为 开始/停止/朗读 三个操作
type Adapter struct {
	platform Platform
	opts     AdapterOptions
	logger   *zap.Logger

	mu          sync.Mutex
	speakGen    uint64
	cancelSpeak context.CancelFunc
}

// NewAdapter 创建语音适配器
func NewAdapter(platform Platform, opts AdapterOptions, logger *zap.Logger) *Adapter {
	if opts.InputLang == "" {
		opts.InputLang = DefaultInputLang
	}
	if opts.OutputLang == "" {
		opts.OutputLang = DefaultOutputLang
	}
	return &Adapter{
		platform: platform,
		opts:     opts,
		logger:   logger.Named("speech-adapter"),
	}
}

// IsRecognitionSupported 平台是否支持语音识别
func (a *Adapter) IsRecognitionSupported() bool {
	return a.platform != nil && a.platform.RecognitionSupported()
}

// IsSynthesisSupported 平台是否支持语音合成
func (a *Adapter) IsSynthesisSupported() bool {
	return a.platform != nil && a.platform.SynthesisSupported()
}

// StartListening 开始连续识别。不支持或启动失败时同步回调 OnError 并返回 nil。
func (a *Adapter) StartListening(ctx context.Context, cb ListenCallbacks) *Handle {
	if !a.IsRecognitionSupported() {
		cb.fail(LocalizeRecognitionError(&speech.RecognitionError{Code: speech.CodeNotSupported}))
		return nil
	}

	stream, err := a.platform.StartRecognition(ctx, speech.RecognitionOptions{
		SessionID:      uuid.NewString(),
		Language:       a.opts.InputLang,
		InterimResults: true,
		Continuous:     true,
	})
	if err != nil {
		a.logger.Warn("failed to start recognition", zap.Error(err))
		var recErr *speech.RecognitionError
		if errors.As(err, &recErr) {
			cb.fail(LocalizeRecognitionError(recErr))
		} else {
			cb.fail(&speech.RecognitionError{Code: speech.CodeStartFailed, Message: startFailedPrefix + err.Error()})
		}
		return nil
	}

	go a.pump(stream, cb)
	return &Handle{stream: stream}
}

func (a *Adapter) pump(stream RecognitionStream, cb ListenCallbacks) {
	terminated := false
	for ev := range stream.Events() {
		if terminated {
			// 终止事件之后的残留事件丢弃
			continue
		}
		switch ev.Kind {
		case speech.EventPartial:
			cb.result(ev.Text, false)
		case speech.EventFinal:
			cb.result(strings.TrimSpace(ev.Text), true)
		case speech.EventEnd:
			terminated = true
			cb.end()
		case speech.EventError:
			terminated = true
			recErr := ev.Err
			if recErr == nil {
				recErr = &speech.RecognitionError{Code: speech.CodeNetwork}
			}
			cb.fail(LocalizeRecognitionError(recErr))
		}
	}
	if !terminated {
		cb.end()
	}
}

// StopListening 请求结束识别。可重复调用，nil 安全，停止错误只记录日志。
func (a *Adapter) StopListening(h *Handle) {
	if h == nil {
		return
	}
	h.stopOnce.Do(func() {
		if err := h.stream.Stop(); err != nil {
			a.logger.Debug("stop recognition", zap.String("stream", h.stream.ID()), zap.Error(err))
		}
	})
}

// Speak 朗读文本，先取消正在播放的内容。onDone 恰好触发一次；
// 不支持合成时同步触发。
func (a *Adapter) Speak(text string, onDone func()) {
	done := sync.OnceFunc(func() {
		if onDone != nil {
			onDone()
		}
	})

	if !a.IsSynthesisSupported() || strings.TrimSpace(text) == "" {
		done()
		return
	}

	ctx, cancel := context.WithCancel(context.Background())

	a.mu.Lock()
	if a.cancelSpeak != nil {
		a.cancelSpeak()
	}
	a.speakGen++
	gen := a.speakGen
	a.cancelSpeak = cancel
	a.mu.Unlock()

	utterance := speech.Utterance{
		Text:   text,
		Lang:   a.opts.OutputLang,
		Voice:  SelectVoice(a.platform.Voices(), a.opts.OutputLang),
		Pitch:  1,
		Rate:   1,
		Volume: 1,
	}

	go func() {
		defer done()
		defer a.release(gen, cancel)

		if err := a.platform.Speak(ctx, utterance); err != nil && ctx.Err() == nil {
			a.logger.Warn("speech playback failed", zap.Error(err))
		}
	}()
}

// Cancel 停止正在播放的内容
func (a *Adapter) Cancel() {
	a.mu.Lock()
	cancel := a.cancelSpeak
	a.cancelSpeak = nil
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

func (a *Adapter) release(gen uint64, cancel context.CancelFunc) {
	cancel()
	a.mu.Lock()
	if a.speakGen == gen {
		a.cancelSpeak = nil
	}
	a.mu.Unlock()
}
