package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/zhouzirui/arwa/internal/config"
	"github.com/zhouzirui/arwa/internal/logging"
	speechmodel "github.com/zhouzirui/arwa/internal/model/speech"
	"github.com/zhouzirui/arwa/internal/service/speech"
)

func main() {
	mode := flag.String("mode", "", "测试模式: asr 或 tts")
	audioPath := flag.String("audio", "", "ASR 输入音频文件路径 (16kHz 16bit 单声道 PCM)")
	text := flag.String("text", "", "TTS 输入文本")
	outputPath := flag.String("out", "", "TTS 输出音频文件路径 (默认根据格式自动生成)")
	format := flag.String("format", "", "TTS 输出格式，默认使用配置")
	language := flag.String("lang", "", "语言代码，默认使用配置中的语言")
	voice := flag.String("voice", "", "TTS 声音 ID，默认使用配置中的 TTSVoice")
	session := flag.String("session", "", "自定义 sessionID，留空则自动生成")
	realtime := flag.Bool("realtime", true, "按实时速率发送音频")
	timeout := flag.Duration("timeout", 45*time.Second, "请求超时时间")

	flag.Parse()

	if err := godotenv.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "[WARN] 无法加载 .env，改用系统环境变量: %v\n", err)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "配置加载失败: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Must(cfg.Logging)
	defer logging.Sync(logger)

	if !cfg.Speech.Enabled() {
		logger.Fatal("语音服务未启用，请先在环境变量中配置 SPEECH_APP_ID 与 SPEECH_ACCESS_TOKEN")
	}
	if *mode != "asr" && *mode != "tts" {
		flag.Usage()
		logger.Fatal("请通过 -mode=asr 或 -mode=tts 指定测试模式")
	}

	sessionID := *session
	if sessionID == "" {
		sessionID = "manual-" + uuid.NewString()
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	speechCfg := cfg.Speech.Model()
	switch *mode {
	case "asr":
		err = runASR(ctx, speechCfg, logger, sessionID, *audioPath, *language, *realtime)
	case "tts":
		err = runTTS(ctx, speechCfg, logger, sessionID, *text, *voice, *format, *language, *outputPath)
	}
	if err != nil {
		logger.Error("测试失败", zap.String("mode", *mode), zap.Error(err))
		logging.Sync(logger)
		os.Exit(1)
	}
}

func runASR(ctx context.Context, cfg *speechmodel.SpeechConfig, logger *zap.Logger, sessionID, audioPath, language string, realtime bool) error {
	if audioPath == "" {
		return fmt.Errorf("ASR 模式需要通过 -audio 指定音频文件路径")
	}

	file, err := os.Open(audioPath)
	if err != nil {
		return fmt.Errorf("打开音频文件失败: %w", err)
	}
	defer file.Close()

	if language == "" {
		language = cfg.ASRLanguage
	}

	source := &speech.ReaderSource{R: file}
	if realtime {
		// 6400 字节约 200ms 音频
		source.ChunkSize = 6400
		source.Pace = 200 * time.Millisecond
	}

	client := speech.NewVolcengineASRClient(cfg, logger)
	stream, err := client.Stream(ctx, source, speechmodel.RecognitionOptions{
		SessionID:      sessionID,
		Language:       language,
		InterimResults: true,
		Continuous:     true,
	})
	if err != nil {
		return fmt.Errorf("ASR 调用失败: %w", err)
	}

	logger.Info("开始进行 ASR 测试", zap.String("session", sessionID), zap.String("stream", stream.ID()), zap.String("language", language))

	var finals []string
	for ev := range stream.Events() {
		switch ev.Kind {
		case speechmodel.EventPartial:
			logger.Info("partial", zap.String("text", ev.Text))
		case speechmodel.EventFinal:
			logger.Info("final", zap.String("text", ev.Text))
			finals = append(finals, ev.Text)
		case speechmodel.EventError:
			return fmt.Errorf("识别出错: %w", ev.Err)
		case speechmodel.EventEnd:
			logger.Info("ASR 识别结束", zap.String("text", strings.Join(finals, " ")))
		}
	}
	return nil
}

func runTTS(ctx context.Context, cfg *speechmodel.SpeechConfig, logger *zap.Logger, sessionID, text, voice, format, language, outputPath string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("TTS 模式需要通过 -text 提供待合成文本")
	}

	if language == "" {
		language = cfg.TTSLanguage
	}

	client := speech.NewVolcengineTTSClient(cfg, logger)
	resp, err := client.Synthesize(ctx, &speechmodel.TTSRequest{
		SessionID: sessionID,
		Text:      text,
		Voice:     voice,
		Format:    format,
		Language:  language,
	})
	if err != nil {
		return fmt.Errorf("TTS 调用失败: %w", err)
	}

	if outputPath == "" {
		outputPath = fmt.Sprintf("tts-output-%d.%s", time.Now().Unix(), resp.Format)
	}
	if err := os.WriteFile(outputPath, resp.AudioData, 0o644); err != nil {
		return fmt.Errorf("写入音频文件失败: %w", err)
	}

	logger.Info("TTS 合成成功", zap.String("file", outputPath), zap.Int64("duration_ms", resp.Duration), zap.String("request_id", resp.RequestID))
	return nil
}
