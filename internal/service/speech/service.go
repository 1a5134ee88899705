package speech

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/zhouzirui/arwa/internal/model/speech"
)

// RecognitionStream 一次进行中的识别。Events 在 End 或 Error 之后关闭。
type RecognitionStream interface {
	ID() string
	Events() <-chan speech.TranscriptEvent
	Stop() error
}

// Platform 语音平台能力。能力在构造时确定，运行期不变。
type Platform interface {
	RecognitionSupported() bool
	SynthesisSupported() bool
	StartRecognition(ctx context.Context, opts speech.RecognitionOptions) (RecognitionStream, error)
	Voices() []speech.Voice
	// Speak 阻塞直到播放结束或 ctx 取消
	Speak(ctx context.Context, u speech.Utterance) error
}

// VolcenginePlatform 以火山引擎 ASR/TTS 配合本地音频输入输出实现 Platform
type VolcenginePlatform struct {
	config *speech.SpeechConfig
	asr    *VolcengineASRClient
	tts    *VolcengineTTSClient
	source AudioSource
	sink   AudioSink
	logger *zap.Logger
}

// NewVolcenginePlatform 创建语音平台。source 或 sink 为 nil 时对应能力不可用。
func NewVolcenginePlatform(config *speech.SpeechConfig, source AudioSource, sink AudioSink, logger *zap.Logger) *VolcenginePlatform {
	return &VolcenginePlatform{
		config: config,
		asr:    NewVolcengineASRClient(config, logger),
		tts:    NewVolcengineTTSClient(config, logger),
		source: source,
		sink:   sink,
		logger: logger.Named("speech"),
	}
}

func (p *VolcenginePlatform) configured() bool {
	_, err := resolveCredentials(p.config)
	return err == nil
}

// RecognitionSupported 需要凭证和可用的音源
func (p *VolcenginePlatform) RecognitionSupported() bool {
	return p.configured() && p.source != nil && p.source.Available()
}

// SynthesisSupported 需要凭证和可用的播放器
func (p *VolcenginePlatform) SynthesisSupported() bool {
	return p.configured() && p.sink != nil && p.sink.Available()
}

// StartRecognition 开始一次流式识别
func (p *VolcenginePlatform) StartRecognition(ctx context.Context, opts speech.RecognitionOptions) (RecognitionStream, error) {
	if !p.RecognitionSupported() {
		return nil, &speech.RecognitionError{Code: speech.CodeNotSupported}
	}
	if opts.Language == "" {
		opts.Language = p.config.ASRLanguage
	}
	return p.asr.Stream(ctx, p.source, opts)
}

// Voices 返回音色目录；默认音色排在额外目录之后
func (p *VolcenginePlatform) Voices() []speech.Voice {
	voices := append([]speech.Voice(nil), p.config.Voices...)
	if id := strings.TrimSpace(p.config.TTSVoice); id != "" {
		for _, v := range voices {
			if v.ID == id {
				return voices
			}
		}
		voices = append(voices, speech.Voice{ID: id, Name: id, Lang: p.config.TTSLanguage})
	}
	return voices
}

// Speak 合成并播放
func (p *VolcenginePlatform) Speak(ctx context.Context, u speech.Utterance) error {
	if !p.SynthesisSupported() {
		return fmt.Errorf("speech synthesis not supported")
	}

	req := &speech.TTSRequest{
		Text:     u.Text,
		Language: u.Lang,
		Speed:    u.Rate,
		Volume:   u.Volume,
		Pitch:    u.Pitch,
	}
	if u.Voice != nil {
		req.Voice = u.Voice.ID
	}

	resp, err := p.tts.Synthesize(ctx, req)
	if err != nil {
		return err
	}

	p.logger.Debug("playing synthesized audio",
		zap.String("request", resp.RequestID),
		zap.Int("bytes", len(resp.AudioData)),
		zap.Int64("duration_ms", resp.Duration),
	)
	return p.sink.Play(ctx, resp.AudioData, resp.Format)
}
