package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds service configuration derived from environment variables.
type Config struct {
	HTTPPort         string
	DBPath           string
	InboxDir         string
	EnableWatcher    bool
	JobQueueSize     int
	WorkerCount      int
	JobTimeoutSec    int
	HistoryLimit     int
	RetentionMin     int
	NotifyWebhookURL string
	NotifyBotID      string
	RulesPath        string
	LogLevel         string
	LogFormat        string
	ConfigPath       string
	StrictConfig     bool
	Generative       GenerativeConfig
	Debounce         DebounceConfig
	Prompts          PromptConfig
}

// GenerativeConfig controls the optional local language-model backend.
type GenerativeConfig struct {
	Enabled          bool
	BaseURL          string
	Model            string
	TimeoutSec       int
	ProbeIntervalSec int
}

// Timeout is the per-request deadline for the backend.
func (g GenerativeConfig) Timeout() time.Duration {
	return time.Duration(g.TimeoutSec) * time.Second
}

// ProbeInterval is how often availability is re-checked.
func (g GenerativeConfig) ProbeInterval() time.Duration {
	return time.Duration(g.ProbeIntervalSec) * time.Second
}

// DebounceConfig gates enrichment of live transcripts.
type DebounceConfig struct {
	QuietMS   int
	MinChars  int
	MinGrowth int
}

// Quiet is the idle period required before enrichment runs.
func (d DebounceConfig) Quiet() time.Duration {
	return time.Duration(d.QuietMS) * time.Millisecond
}

type fileConfig struct {
	HTTPPort         string               `json:"http_port" yaml:"http_port"`
	DBPath           string               `json:"db_path" yaml:"db_path"`
	InboxDir         string               `json:"inbox_dir" yaml:"inbox_dir"`
	RulesPath        string               `json:"rules_path" yaml:"rules_path"`
	NotifyWebhookURL string               `json:"notify_webhook_url" yaml:"notify_webhook_url"`
	HistoryLimit     *int                 `json:"history_limit" yaml:"history_limit"`
	RetentionMin     *int                 `json:"retention_min" yaml:"retention_min"`
	Generative       generativeFileConfig `json:"generative" yaml:"generative"`
	Debounce         debounceFileConfig   `json:"debounce" yaml:"debounce"`
	Prompts          PromptConfig         `json:"prompts" yaml:"prompts"`
}

type generativeFileConfig struct {
	Enabled          *bool  `json:"enabled" yaml:"enabled"`
	BaseURL          string `json:"base_url" yaml:"base_url"`
	Model            string `json:"model" yaml:"model"`
	TimeoutSec       *int   `json:"timeout_sec" yaml:"timeout_sec"`
	ProbeIntervalSec *int   `json:"probe_interval_sec" yaml:"probe_interval_sec"`
}

type debounceFileConfig struct {
	QuietMS   *int `json:"quiet_ms" yaml:"quiet_ms"`
	MinChars  *int `json:"min_chars" yaml:"min_chars"`
	MinGrowth *int `json:"min_growth" yaml:"min_growth"`
}

const (
	defaultPort              = ":8000"
	defaultInboxDir          = "runtime/inbox"
	defaultDBPath            = "runtime/dispatch.db"
	minQueueSize             = 1
	defaultQueueSize         = 100
	maxQueueSize             = 1024
	defaultWorkerCount       = 4
	defaultJobTimeoutSec     = 30
	defaultHistoryLimit      = 50
	defaultOllamaBaseURL     = "http://localhost:11434/api"
	defaultOllamaModel       = "llama3.2"
	defaultGenerativeTimeout = 10
	defaultProbeIntervalSec  = 30
	defaultQuietMS           = 2000
	defaultMinChars          = 20
	defaultMinGrowth         = 30
)

func defaultGenerativeConfig() GenerativeConfig {
	return GenerativeConfig{
		Enabled:          true,
		BaseURL:          defaultOllamaBaseURL,
		Model:            defaultOllamaModel,
		TimeoutSec:       defaultGenerativeTimeout,
		ProbeIntervalSec: defaultProbeIntervalSec,
	}
}

func defaultDebounceConfig() DebounceConfig {
	return DebounceConfig{QuietMS: defaultQuietMS, MinChars: defaultMinChars, MinGrowth: defaultMinGrowth}
}

// Load reads configuration from environment variables and applies sane defaults.
func Load() (Config, error) {
	cfg := Config{
		JobQueueSize:     defaultQueueSize,
		WorkerCount:      defaultWorkerCount,
		JobTimeoutSec:    defaultJobTimeoutSec,
		EnableWatcher:    parseBoolEnv("ENABLE_WATCHER"),
		NotifyBotID:      os.Getenv("NOTIFY_BOT_ID"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		LogFormat:        getEnv("LOG_FORMAT", "text"),
		StrictConfig:     parseBoolEnv("STRICT_CONFIG"),
		ConfigPath:       getEnv("CONFIG_PATH", filepath.Join("config", "config.yaml")),
		Generative:       defaultGenerativeConfig(),
		Debounce:         defaultDebounceConfig(),
		HistoryLimit:     defaultHistoryLimit,
		Prompts:          DefaultPromptConfig(),
	}

	fileCfg, fileErr := loadFileConfig(cfg.ConfigPath)
	if fileErr != nil {
		if cfg.StrictConfig {
			return cfg, fmt.Errorf("config load failed (%s): %w", cfg.ConfigPath, fileErr)
		}
		slog.Debug("config file not applied, using defaults", "path", cfg.ConfigPath, "err", fileErr)
	}

	cfg.Generative = applyGenerativeOverrides(cfg.Generative, fileCfg.Generative)
	cfg.Debounce = applyDebounceOverrides(cfg.Debounce, fileCfg.Debounce)
	cfg.Prompts = MergePromptConfig(cfg.Prompts, fileCfg.Prompts)
	if fileCfg.HistoryLimit != nil && *fileCfg.HistoryLimit > 0 {
		cfg.HistoryLimit = *fileCfg.HistoryLimit
	}
	if fileCfg.RetentionMin != nil && *fileCfg.RetentionMin >= 0 {
		cfg.RetentionMin = *fileCfg.RetentionMin
	}

	cfg.InboxDir = firstNonEmpty(os.Getenv("INBOX_DIR"), fileCfg.InboxDir, defaultInboxDir)
	cfg.DBPath = firstNonEmpty(os.Getenv("DB_PATH"), fileCfg.DBPath, defaultDBPath)
	cfg.RulesPath = firstNonEmpty(os.Getenv("RULES_PATH"), fileCfg.RulesPath)
	cfg.NotifyWebhookURL = firstNonEmpty(os.Getenv("NOTIFY_WEBHOOK_URL"), fileCfg.NotifyWebhookURL)

	cfg.HTTPPort = firstNonEmpty(os.Getenv("HTTP_PORT"), fileCfg.HTTPPort, defaultPort)
	if legacyPort := os.Getenv("PORT"); legacyPort != "" && cfg.HTTPPort == defaultPort {
		cfg.HTTPPort = legacyPort
	}
	if !strings.HasPrefix(cfg.HTTPPort, ":") {
		cfg.HTTPPort = ":" + cfg.HTTPPort
	}

	if v := os.Getenv("WORKER_COUNT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			slog.Warn("invalid WORKER_COUNT, using default", "value", v, "default", defaultWorkerCount)
			n = defaultWorkerCount
		}
		if n <= 0 {
			slog.Warn("WORKER_COUNT must be positive, using default", "default", defaultWorkerCount)
			n = defaultWorkerCount
		}
		cfg.WorkerCount = n
	}

	if v := os.Getenv("JOB_QUEUE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			slog.Warn("invalid JOB_QUEUE_SIZE, using default", "value", v, "default", defaultQueueSize)
			n = defaultQueueSize
		}
		if n < minQueueSize {
			slog.Warn("JOB_QUEUE_SIZE raised to minimum", "min", minQueueSize, "was", n)
			n = minQueueSize
		}
		if n > maxQueueSize {
			slog.Warn("JOB_QUEUE_SIZE capped", "max", maxQueueSize, "was", n)
			n = maxQueueSize
		}
		cfg.JobQueueSize = n
	}

	if cfg.JobQueueSize < cfg.WorkerCount {
		slog.Warn("JOB_QUEUE_SIZE must be >= WORKER_COUNT, using default", "default", defaultQueueSize)
		cfg.JobQueueSize = max(defaultQueueSize, cfg.WorkerCount)
	}

	if v := os.Getenv("JOB_TIMEOUT_SEC"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid JOB_TIMEOUT_SEC: %w", err)
		}
		if n <= 0 {
			return cfg, fmt.Errorf("JOB_TIMEOUT_SEC must be positive")
		}
		cfg.JobTimeoutSec = n
	}

	ints := []struct {
		key string
		dst *int
		min int
	}{
		{"GENERATIVE_TIMEOUT_SEC", &cfg.Generative.TimeoutSec, 1},
		{"PROBE_INTERVAL_SEC", &cfg.Generative.ProbeIntervalSec, 1},
		{"DEBOUNCE_QUIET_MS", &cfg.Debounce.QuietMS, 0},
		{"DEBOUNCE_MIN_CHARS", &cfg.Debounce.MinChars, 0},
		{"DEBOUNCE_MIN_GROWTH", &cfg.Debounce.MinGrowth, 0},
		{"HISTORY_LIMIT", &cfg.HistoryLimit, 1},
		{"RETENTION_MIN", &cfg.RetentionMin, 0},
	}
	for _, it := range ints {
		v, ok, err := parseIntEnv(it.key)
		if err != nil {
			if cfg.StrictConfig {
				return cfg, fmt.Errorf("invalid %s: %w", it.key, err)
			}
			slog.Warn("invalid integer setting, using default", "key", it.key, "err", err)
			continue
		}
		if ok && v >= it.min {
			*it.dst = v
		}
	}

	if v := os.Getenv("GENERATIVE_ENABLED"); strings.TrimSpace(v) != "" {
		cfg.Generative.Enabled = parseBoolEnv("GENERATIVE_ENABLED")
	}
	if v := strings.TrimSpace(os.Getenv("OLLAMA_MODEL")); v != "" {
		cfg.Generative.Model = v
	}
	cfg.Generative.BaseURL = strings.TrimRight(firstNonEmpty(
		os.Getenv("OLLAMA_BASE_URL"),
		cfg.Generative.BaseURL,
	), "/")

	if err := validateConfig(cfg); err != nil {
		if cfg.StrictConfig {
			return cfg, err
		}
		slog.Warn("config validation failed, continuing", "err", err)
	}

	return cfg, nil
}

func loadFileConfig(path string) (fileConfig, error) {
	var cfg fileConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if len(data) == 0 {
		return cfg, errors.New("empty config file")
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

func validateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.HTTPPort) == "" {
		return errors.New("HTTP_PORT is required")
	}
	if cfg.EnableWatcher && strings.TrimSpace(cfg.InboxDir) == "" {
		return errors.New("INBOX_DIR is required when the watcher is enabled")
	}
	if cfg.Generative.Enabled && strings.TrimSpace(cfg.Generative.BaseURL) == "" {
		return errors.New("OLLAMA_BASE_URL is required when the generative backend is enabled")
	}
	if cfg.Generative.TimeoutSec <= 0 {
		return errors.New("generative timeout must be positive")
	}
	if cfg.HistoryLimit <= 0 {
		return errors.New("history limit must be positive")
	}
	if !strings.Contains(cfg.Prompts.AnalyzePrompt, transcriptPlaceholder) {
		return fmt.Errorf("prompts.analyze_prompt must contain %s", transcriptPlaceholder)
	}
	return nil
}

func applyGenerativeOverrides(base GenerativeConfig, override generativeFileConfig) GenerativeConfig {
	if override.Enabled != nil {
		base.Enabled = *override.Enabled
	}
	if strings.TrimSpace(override.BaseURL) != "" {
		base.BaseURL = strings.TrimSpace(override.BaseURL)
	}
	if strings.TrimSpace(override.Model) != "" {
		base.Model = strings.TrimSpace(override.Model)
	}
	if override.TimeoutSec != nil && *override.TimeoutSec > 0 {
		base.TimeoutSec = *override.TimeoutSec
	}
	if override.ProbeIntervalSec != nil && *override.ProbeIntervalSec > 0 {
		base.ProbeIntervalSec = *override.ProbeIntervalSec
	}
	return base
}

func applyDebounceOverrides(base DebounceConfig, override debounceFileConfig) DebounceConfig {
	if override.QuietMS != nil && *override.QuietMS >= 0 {
		base.QuietMS = *override.QuietMS
	}
	if override.MinChars != nil && *override.MinChars >= 0 {
		base.MinChars = *override.MinChars
	}
	if override.MinGrowth != nil && *override.MinGrowth >= 0 {
		base.MinGrowth = *override.MinGrowth
	}
	return base
}

func firstNonEmpty(values ...string) string {
	for _, val := range values {
		if strings.TrimSpace(val) != "" {
			return val
		}
	}
	return ""
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseBoolEnv(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func parseIntEnv(key string) (int, bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return 0, false, nil
	}
	val, err := strconv.Atoi(raw)
	return val, true, err
}
