package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/zhouzirui/arwa/internal/config"
	"github.com/zhouzirui/arwa/internal/handler"
	"github.com/zhouzirui/arwa/internal/handler/voicechat"
	"github.com/zhouzirui/arwa/internal/logging"
	"github.com/zhouzirui/arwa/internal/model/persona"
	"github.com/zhouzirui/arwa/internal/service/ai"
	"github.com/zhouzirui/arwa/internal/service/speech"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Must(cfg.Logging)
	defer logging.Sync(logger)

	if envErr != nil {
		logger.Warn("failed to load .env file, continuing with system environment variables only", zap.Error(envErr))
	}

	personaStore := persona.NewMemoryStore(persona.Seed())
	active, _ := persona.Resolve(personaStore, cfg.AI.PersonaID)

	aiService := ai.NewService(ctx, cfg.AI, active, logger)
	if !cfg.AI.HasCredentials() {
		logger.Warn("chat credentials missing, sessions will report a configuration error")
	}

	var platforms voicechat.PlatformFactory
	if cfg.Speech.Enabled() {
		speechCfg := cfg.Speech.Model()
		platforms = func(source speech.AudioSource, sink speech.AudioSink) speech.Platform {
			return speech.NewVolcenginePlatform(speechCfg, source, sink, logger)
		}
		logger.Info("speech service enabled", zap.String("asr_language", speechCfg.ASRLanguage), zap.String("tts_voice", speechCfg.TTSVoice))
	} else {
		logger.Info("语音服务凭证未配置或已关闭，跳过语音功能初始化")
	}

	conns := voicechat.NewConnectionManager()
	router := handler.NewRouter(handler.Dependencies{
		Personas:  personaStore,
		Persona:   active,
		Chat:      aiService,
		Platforms: platforms,
		Languages: speech.AdapterOptions{
			InputLang:  cfg.Speech.ASRLanguage,
			OutputLang: cfg.Speech.TTSLanguage,
		},
		Connections: conns,
		Logger:      logger,
	})

	startServer(ctx, cfg.Server, router, conns, logger)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, conns *voicechat.ConnectionManager, logger *zap.Logger) {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	// websocket 连接被劫持，Shutdown 不会等待它们
	srv.RegisterOnShutdown(conns.CloseAll)

	logger.Info("Arwa backend listening", zap.String("addr", serverCfg.Addr))
	if err := runServer(ctx, srv); err != nil {
		logger.Error("server error", zap.Error(err))
		logging.Sync(logger)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
