package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	speechmodel "github.com/zhouzirui/arwa/internal/model/speech"
)

// Config 聚合整个应用的配置项。
type Config struct {
	Server  ServerConfig
	AI      AIConfig
	Speech  SpeechConfig
	Logging LoggingConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	speech, err := loadSpeechConfig()
	if err != nil {
		return nil, err
	}

	logging, err := loadLoggingConfig()
	if err != nil {
		return nil, err
	}

	return &Config{Server: server, AI: ai, Speech: speech, Logging: logging}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// 支持的对话后端。
const (
	ProviderOpenAI = "openai"
	ProviderArk    = "ark"
)

// DefaultOpenAIBaseURL 指向 Gemini 的 OpenAI 兼容接口。
const DefaultOpenAIBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	Provider     string
	APIKey       string
	AccessKey    string
	SecretKey    string
	Model        string
	BaseURL      string
	Region       string
	PersonaID    string
	Temperature  *float64
	TopP         *float64
	MaxTokens    *int
	HistoryLimit int
}

// HasCredentials 表示是否提供了调用模型所需的凭证。
func (c AIConfig) HasCredentials() bool {
	if c.Provider == ProviderArk {
		return c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != "")
	}
	return c.APIKey != ""
}

func loadAIConfig() (AIConfig, error) {
	provider := strings.ToLower(getEnvOrDefault("CHAT_PROVIDER", ProviderOpenAI))
	if provider != ProviderOpenAI && provider != ProviderArk {
		return AIConfig{}, fmt.Errorf("invalid CHAT_PROVIDER value %q", provider)
	}

	temperature, err := parseOptionalFloatEnv("CHAT_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("CHAT_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("CHAT_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	historyLimit := 20
	if override, err := parseOptionalIntEnv("CHAT_HISTORY_LIMIT"); err != nil {
		return AIConfig{}, err
	} else if override != nil {
		if *override < 0 {
			historyLimit = 0
		} else {
			historyLimit = *override
		}
	}

	cfg := AIConfig{
		Provider:     provider,
		PersonaID:    getEnvOrDefault("CHAT_PERSONA", "arwa"),
		Temperature:  temperature,
		TopP:         topP,
		MaxTokens:    maxTokens,
		HistoryLimit: historyLimit,
	}

	switch provider {
	case ProviderArk:
		cfg.APIKey = firstEnv("ARK_API_KEY", "API_KEY", "CHAT_API_KEY")
		cfg.AccessKey = strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY"))
		cfg.SecretKey = strings.TrimSpace(os.Getenv("ARK_SECRET_KEY"))
		cfg.Model = firstEnv("CHAT_MODEL", "Model")
		cfg.BaseURL = getEnvOrDefault("CHAT_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3")
		cfg.Region = getEnvOrDefault("ARK_REGION", "cn-beijing")
	default:
		cfg.APIKey = firstEnv("API_KEY", "CHAT_API_KEY", "GEMINI_API_KEY")
		cfg.Model = getEnvOrDefault("CHAT_MODEL", "gemini-2.5-flash")
		cfg.BaseURL = getEnvOrDefault("CHAT_BASE_URL", DefaultOpenAIBaseURL)
	}

	return cfg, nil
}

// SpeechConfig 描述语音服务相关配置
type SpeechConfig struct {
	AppID          string
	AccessToken    string
	BaseURL        string
	ConcurrentMode bool
	ASRLanguage    string
	TTSVoice       string
	TTSLanguage    string
	TTSFormat      string
	Voices         []speechmodel.Voice
	Timeout        time.Duration
	CaptureCommand string
	PlayerCommand  string
	Disabled       bool
}

// Enabled 表示语音凭证齐全且未被关闭。
func (c SpeechConfig) Enabled() bool {
	return !c.Disabled && c.AppID != "" && c.AccessToken != ""
}

// Model 转换为语音服务使用的配置结构。
func (c SpeechConfig) Model() *speechmodel.SpeechConfig {
	return &speechmodel.SpeechConfig{
		AppID:          c.AppID,
		AccessToken:    c.AccessToken,
		BaseURL:        c.BaseURL,
		ConcurrentMode: c.ConcurrentMode,
		ASRLanguage:    c.ASRLanguage,
		TTSVoice:       c.TTSVoice,
		TTSLanguage:    c.TTSLanguage,
		TTSFormat:      c.TTSFormat,
		Voices:         append([]speechmodel.Voice(nil), c.Voices...),
		Timeout:        c.Timeout,
	}
}

func loadSpeechConfig() (SpeechConfig, error) {
	// 解析超时设置
	timeout, err := parseOptionalIntEnv("SPEECH_TIMEOUT")
	if err != nil {
		return SpeechConfig{}, err
	}
	timeoutSeconds := 30 // 默认30秒
	if timeout != nil {
		timeoutSeconds = *timeout
	}

	concurrent, err := parseBoolEnv("SPEECH_CONCURRENT_MODE", false)
	if err != nil {
		return SpeechConfig{}, err
	}

	disabled, err := parseBoolEnv("SPEECH_DISABLED", false)
	if err != nil {
		return SpeechConfig{}, err
	}

	voices, err := parseVoiceCatalogue(os.Getenv("SPEECH_TTS_VOICES"))
	if err != nil {
		return SpeechConfig{}, err
	}

	return SpeechConfig{
		AppID:          strings.TrimSpace(os.Getenv("SPEECH_APP_ID")),
		AccessToken:    firstEnv("SPEECH_ACCESS_TOKEN", "SPEECH_API_KEY"),
		BaseURL:        getEnvOrDefault("SPEECH_BASE_URL", ""),
		ConcurrentMode: concurrent,
		ASRLanguage:    getEnvOrDefault("SPEECH_ASR_LANGUAGE", "ar-SA"),
		TTSVoice:       getEnvOrDefault("SPEECH_TTS_VOICE", ""),
		TTSLanguage:    getEnvOrDefault("SPEECH_TTS_LANGUAGE", "ar-EG"),
		TTSFormat:      getEnvOrDefault("SPEECH_TTS_FORMAT", "mp3"),
		Voices:         voices,
		Timeout:        time.Duration(timeoutSeconds) * time.Second,
		CaptureCommand: getEnvOrDefault("SPEECH_CAPTURE_CMD", "arecord -q -f S16_LE -r 16000 -c 1 -t raw"),
		PlayerCommand:  getEnvOrDefault("SPEECH_PLAYER_CMD", "ffplay -nodisp -autoexit -loglevel quiet -"),
		Disabled:       disabled,
	}, nil
}

// parseVoiceCatalogue 解析 "id|lang|name,id|lang|name" 形式的音色目录。
func parseVoiceCatalogue(raw string) ([]speechmodel.Voice, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	var voices []speechmodel.Voice
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, "|")
		if len(parts) < 2 || strings.TrimSpace(parts[0]) == "" || strings.TrimSpace(parts[1]) == "" {
			return nil, fmt.Errorf("invalid SPEECH_TTS_VOICES entry %q, want id|lang|name", entry)
		}
		voice := speechmodel.Voice{
			ID:   strings.TrimSpace(parts[0]),
			Lang: strings.TrimSpace(parts[1]),
		}
		if len(parts) > 2 {
			voice.Name = strings.TrimSpace(strings.Join(parts[2:], "|"))
		}
		if voice.Name == "" {
			voice.Name = voice.ID
		}
		voices = append(voices, voice)
	}
	return voices, nil
}

// LoggingConfig 描述日志输出。
type LoggingConfig struct {
	Level  string
	File   string
	Format string
}

func loadLoggingConfig() (LoggingConfig, error) {
	format := strings.ToLower(getEnvOrDefault("LOG_FORMAT", "console"))
	if format != "console" && format != "json" {
		return LoggingConfig{}, fmt.Errorf("invalid LOG_FORMAT value %q", format)
	}

	return LoggingConfig{
		Level:  strings.ToLower(getEnvOrDefault("LOG_LEVEL", "info")),
		File:   getEnvOrDefault("LOG_FILE", ""),
		Format: format,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

// firstEnv 返回第一个非空的环境变量。
func firstEnv(keys ...string) string {
	for _, key := range keys {
		if value := strings.TrimSpace(os.Getenv(key)); value != "" {
			return value
		}
	}
	return ""
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
