package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"

	configFileEnv = "FINDOC_CONFIG_FILE"
)

type Config struct {
	APIPort  string `yaml:"api_port"`
	LogLevel string `yaml:"log_level"`

	StoreDriver   string `yaml:"store_driver"`
	PostgresDSN   string `yaml:"postgres_dsn"`
	StoreTimezone string `yaml:"store_timezone"`

	StoragePath       string   `yaml:"storage_path"`
	WorkDir           string   `yaml:"work_dir"`
	MaxUploadBytes    int64    `yaml:"max_upload_bytes"`
	AllowedMediaTypes []string `yaml:"allowed_media_types"`
	DefaultUserID     string   `yaml:"default_user_id"`

	OllamaURL            string  `yaml:"ollama_url"`
	OllamaGenModel       string  `yaml:"ollama_gen_model"`
	OllamaVisionModel    string  `yaml:"ollama_vision_model"`
	LLMTemperature       float64 `yaml:"llm_temperature"`
	LLMChatTemperature   float64 `yaml:"llm_chat_temperature"`
	LLMMaxInputChars     int     `yaml:"llm_max_input_chars"`
	LLMMaxResponseTokens int     `yaml:"llm_max_response_tokens"`

	ExtractTimeoutSeconds  int `yaml:"extract_timeout_seconds"`
	AnalyzeTimeoutSeconds  int `yaml:"analyze_timeout_seconds"`
	ChatTimeoutSeconds     int `yaml:"chat_timeout_seconds"`
	PipelineTimeoutSeconds int `yaml:"pipeline_timeout_seconds"`
	PipelineConcurrency    int `yaml:"pipeline_concurrency"`

	ChatHistoryWindow     int `yaml:"chat_history_window"`
	ChatContextDocuments  int `yaml:"chat_context_documents"`
	ChatSnapshotDocuments int `yaml:"chat_snapshot_documents"`

	NATSURL           string `yaml:"nats_url"`
	NATSStatusSubject string `yaml:"nats_status_subject"`

	APIRateLimitRPS       float64  `yaml:"api_rate_limit_rps"`
	APIRateLimitBurst     int      `yaml:"api_rate_limit_burst"`
	APIMaxInFlight        int      `yaml:"api_max_in_flight"`
	APIBackpressureWaitMS int      `yaml:"api_backpressure_wait_ms"`
	CORSAllowedOrigins    []string `yaml:"cors_allowed_origins"`

	ResilienceRetryMaxAttempts int  `yaml:"resilience_retry_max_attempts"`
	ResilienceBreakerEnabled   bool `yaml:"resilience_breaker_enabled"`
}

func Defaults() Config {
	return Config{
		APIPort:  "8080",
		LogLevel: "info",

		StoreDriver:   StoreMemory,
		StoreTimezone: "UTC",

		StoragePath:       "./data/uploads",
		MaxUploadBytes:    10 << 20,
		AllowedMediaTypes: []string{"application/pdf", "image/jpeg", "image/png"},
		DefaultUserID:     "default-user",

		OllamaGenModel:       "llama3.1:8b",
		LLMTemperature:       0.1,
		LLMChatTemperature:   0.7,
		LLMMaxInputChars:     5000,
		LLMMaxResponseTokens: 1000,

		ExtractTimeoutSeconds:  60,
		AnalyzeTimeoutSeconds:  90,
		ChatTimeoutSeconds:     60,
		PipelineTimeoutSeconds: 300,
		PipelineConcurrency:    4,

		ChatHistoryWindow:     10,
		ChatContextDocuments:  50,
		ChatSnapshotDocuments: 5,

		NATSStatusSubject: "findoc.documents.status",

		APIBackpressureWaitMS: 250,
		CORSAllowedOrigins:    []string{"http://localhost:3000", "http://localhost:5173"},

		ResilienceRetryMaxAttempts: 3,
		ResilienceBreakerEnabled:   true,
	}
}

// Load layers defaults, the optional YAML file named by FINDOC_CONFIG_FILE and the
// environment, in that order, then validates the result.
func Load() (Config, error) {
	cfg := Defaults()

	if path := strings.TrimSpace(os.Getenv(configFileEnv)); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg = applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg Config) Config {
	cfg.APIPort = mustEnv("API_PORT", cfg.APIPort)
	cfg.LogLevel = mustEnv("LOG_LEVEL", cfg.LogLevel)

	cfg.StoreDriver = strings.ToLower(mustEnv("STORE_DRIVER", cfg.StoreDriver))
	cfg.PostgresDSN = mustEnv("POSTGRES_DSN", cfg.PostgresDSN)
	cfg.StoreTimezone = mustEnv("STORE_TIMEZONE", cfg.StoreTimezone)

	cfg.StoragePath = mustEnv("STORAGE_PATH", cfg.StoragePath)
	cfg.WorkDir = mustEnv("WORK_DIR", cfg.WorkDir)
	cfg.MaxUploadBytes = int64(mustEnvInt("MAX_UPLOAD_BYTES", int(cfg.MaxUploadBytes)))
	cfg.AllowedMediaTypes = mustEnvList("ALLOWED_MEDIA_TYPES", cfg.AllowedMediaTypes)
	cfg.DefaultUserID = mustEnv("DEFAULT_USER_ID", cfg.DefaultUserID)

	cfg.OllamaURL = mustEnv("OLLAMA_URL", cfg.OllamaURL)
	cfg.OllamaGenModel = mustEnv("OLLAMA_GEN_MODEL", cfg.OllamaGenModel)
	cfg.OllamaVisionModel = mustEnv("OLLAMA_VISION_MODEL", cfg.OllamaVisionModel)
	cfg.LLMTemperature = mustEnvFloat("LLM_TEMPERATURE", cfg.LLMTemperature)
	cfg.LLMChatTemperature = mustEnvFloat("LLM_CHAT_TEMPERATURE", cfg.LLMChatTemperature)
	cfg.LLMMaxInputChars = mustEnvInt("LLM_MAX_INPUT_CHARS", cfg.LLMMaxInputChars)
	cfg.LLMMaxResponseTokens = mustEnvInt("LLM_MAX_RESPONSE_TOKENS", cfg.LLMMaxResponseTokens)

	cfg.ExtractTimeoutSeconds = mustEnvInt("EXTRACT_TIMEOUT_SECONDS", cfg.ExtractTimeoutSeconds)
	cfg.AnalyzeTimeoutSeconds = mustEnvInt("ANALYZE_TIMEOUT_SECONDS", cfg.AnalyzeTimeoutSeconds)
	cfg.ChatTimeoutSeconds = mustEnvInt("CHAT_TIMEOUT_SECONDS", cfg.ChatTimeoutSeconds)
	cfg.PipelineTimeoutSeconds = mustEnvInt("PIPELINE_TIMEOUT_SECONDS", cfg.PipelineTimeoutSeconds)
	cfg.PipelineConcurrency = mustEnvInt("PIPELINE_CONCURRENCY", cfg.PipelineConcurrency)

	cfg.ChatHistoryWindow = mustEnvInt("CHAT_HISTORY_WINDOW", cfg.ChatHistoryWindow)
	cfg.ChatContextDocuments = mustEnvInt("CHAT_CONTEXT_DOCUMENTS", cfg.ChatContextDocuments)
	cfg.ChatSnapshotDocuments = mustEnvInt("CHAT_SNAPSHOT_DOCUMENTS", cfg.ChatSnapshotDocuments)

	cfg.NATSURL = mustEnv("NATS_URL", cfg.NATSURL)
	cfg.NATSStatusSubject = mustEnv("NATS_STATUS_SUBJECT", cfg.NATSStatusSubject)

	cfg.APIRateLimitRPS = mustEnvFloat("API_RATE_LIMIT_RPS", cfg.APIRateLimitRPS)
	cfg.APIRateLimitBurst = mustEnvInt("API_RATE_LIMIT_BURST", cfg.APIRateLimitBurst)
	cfg.APIMaxInFlight = mustEnvInt("API_MAX_IN_FLIGHT", cfg.APIMaxInFlight)
	cfg.APIBackpressureWaitMS = mustEnvInt("API_BACKPRESSURE_WAIT_MS", cfg.APIBackpressureWaitMS)
	cfg.CORSAllowedOrigins = mustEnvList("CORS_ALLOWED_ORIGINS", cfg.CORSAllowedOrigins)

	cfg.ResilienceRetryMaxAttempts = mustEnvInt("RESILIENCE_RETRY_MAX_ATTEMPTS", cfg.ResilienceRetryMaxAttempts)
	cfg.ResilienceBreakerEnabled = mustEnvBool("RESILIENCE_BREAKER_ENABLED", cfg.ResilienceBreakerEnabled)
	return cfg
}

func (c Config) Validate() error {
	var errs []error

	switch c.StoreDriver {
	case StoreMemory:
	case StorePostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			errs = append(errs, errors.New("POSTGRES_DSN is required for the postgres store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver))
	}
	if _, err := time.LoadLocation(c.StoreTimezone); err != nil {
		errs = append(errs, fmt.Errorf("invalid STORE_TIMEZONE %q: %w", c.StoreTimezone, err))
	}
	if c.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("MAX_UPLOAD_BYTES must be positive"))
	}
	if len(c.AllowedMediaTypes) == 0 {
		errs = append(errs, errors.New("ALLOWED_MEDIA_TYPES must not be empty"))
	}
	if strings.TrimSpace(c.DefaultUserID) == "" {
		errs = append(errs, errors.New("DEFAULT_USER_ID must not be empty"))
	}

	positive := map[string]int{
		"LLM_MAX_INPUT_CHARS":      c.LLMMaxInputChars,
		"EXTRACT_TIMEOUT_SECONDS":  c.ExtractTimeoutSeconds,
		"ANALYZE_TIMEOUT_SECONDS":  c.AnalyzeTimeoutSeconds,
		"CHAT_TIMEOUT_SECONDS":     c.ChatTimeoutSeconds,
		"PIPELINE_TIMEOUT_SECONDS": c.PipelineTimeoutSeconds,
		"PIPELINE_CONCURRENCY":     c.PipelineConcurrency,
		"CHAT_HISTORY_WINDOW":      c.ChatHistoryWindow,
		"CHAT_CONTEXT_DOCUMENTS":   c.ChatContextDocuments,
		"CHAT_SNAPSHOT_DOCUMENTS":  c.ChatSnapshotDocuments,
	}
	for _, key := range sortedKeys(positive) {
		if positive[key] <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", key, positive[key]))
		}
	}
	if c.APIRateLimitRPS < 0 || c.APIRateLimitBurst < 0 || c.APIMaxInFlight < 0 {
		errs = append(errs, errors.New("API traffic limits must not be negative"))
	}

	return errors.Join(errs...)
}

func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.StoreTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c Config) ExtractTimeout() time.Duration  { return seconds(c.ExtractTimeoutSeconds) }
func (c Config) AnalyzeTimeout() time.Duration  { return seconds(c.AnalyzeTimeoutSeconds) }
func (c Config) ChatTimeout() time.Duration     { return seconds(c.ChatTimeoutSeconds) }
func (c Config) PipelineTimeout() time.Duration { return seconds(c.PipelineTimeoutSeconds) }

func (c Config) BackpressureWait() time.Duration {
	return time.Duration(c.APIBackpressureWaitMS) * time.Millisecond
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func mustEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func mustEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func mustEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	out := make([]string, 0)
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
