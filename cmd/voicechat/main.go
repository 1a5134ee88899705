// Command voicechat runs the Arwa chat in the terminal, with microphone input
// and spoken replies when the speech service and local audio tools are present.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/zhouzirui/arwa/internal/config"
	"github.com/zhouzirui/arwa/internal/conversation"
	"github.com/zhouzirui/arwa/internal/logging"
	"github.com/zhouzirui/arwa/internal/model/persona"
	"github.com/zhouzirui/arwa/internal/service/ai"
	"github.com/zhouzirui/arwa/internal/service/speech"
	"github.com/zhouzirui/arwa/internal/ui"
)

const defaultLogFile = "voicechat.log"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// 终端界面占用屏幕，日志写入文件
	if cfg.Logging.File == "" {
		cfg.Logging.File = defaultLogFile
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer logging.Sync(logger)

	if envErr != nil {
		logger.Debug("no .env file loaded", zap.Error(envErr))
	}

	active, _ := persona.Resolve(persona.NewMemoryStore(persona.Seed()), cfg.AI.PersonaID)
	aiService := ai.NewService(ctx, cfg.AI, active, logger)

	var platform speech.Platform
	if cfg.Speech.Enabled() {
		platform = speech.NewVolcenginePlatform(
			cfg.Speech.Model(),
			speech.CommandSource{Command: cfg.Speech.CaptureCommand},
			speech.CommandSink{Command: cfg.Speech.PlayerCommand},
			logger,
		)
	}
	adapter := speech.NewAdapter(platform, speech.AdapterOptions{
		InputLang:  cfg.Speech.ASRLanguage,
		OutputLang: cfg.Speech.TTSLanguage,
	}, logger)

	notifier := ui.NewNotifier()
	ctrl := conversation.New(aiService, adapter, notifier.Observe, logger)
	defer ctrl.Close()

	ctrl.Start(ctx)
	logger.Info("voicechat started",
		zap.String("persona", active.ID),
		zap.Bool("recognition", adapter.IsRecognitionSupported()),
		zap.Bool("synthesis", adapter.IsSynthesisSupported()))

	if err := ui.Run(ctx, ctrl, notifier, active); err != nil && ctx.Err() == nil {
		return fmt.Errorf("terminal ui: %w", err)
	}
	return nil
}
