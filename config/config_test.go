package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
}

func TestDefaults(t *testing.T) {
	isolate(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Generative.BaseURL != "http://localhost:11434/api" {
		t.Fatalf("expected ollama default, got %q", cfg.Generative.BaseURL)
	}
	if cfg.Generative.Model != "llama3.2" {
		t.Fatalf("expected llama3.2, got %q", cfg.Generative.Model)
	}
	if cfg.Debounce.QuietMS != 2000 || cfg.Debounce.MinChars != 20 || cfg.Debounce.MinGrowth != 30 {
		t.Fatalf("unexpected debounce defaults %+v", cfg.Debounce)
	}
	if cfg.HistoryLimit != 50 {
		t.Fatalf("expected history limit 50, got %d", cfg.HistoryLimit)
	}
	if cfg.Prompts.Temperature != 0.7 || cfg.Prompts.TopP != 0.9 {
		t.Fatalf("unexpected sampling defaults %+v", cfg.Prompts)
	}
}

func TestQueueSizeDefaultsRespectWorkers(t *testing.T) {
	isolate(t)
	t.Setenv("WORKER_COUNT", "8")
	t.Setenv("JOB_QUEUE_SIZE", "4")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.WorkerCount != 8 {
		t.Fatalf("expected worker count 8, got %d", cfg.WorkerCount)
	}
	if cfg.JobQueueSize < cfg.WorkerCount {
		t.Fatalf("queue size should be at least workers, got %d", cfg.JobQueueSize)
	}
}

func TestHTTPPortDefaultFormatting(t *testing.T) {
	isolate(t)
	t.Setenv("HTTP_PORT", "9000")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.HTTPPort != ":9000" {
		t.Fatalf("expected HTTP_PORT to include colon, got %s", cfg.HTTPPort)
	}
}

func TestGenerativeEnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("OLLAMA_BASE_URL", "http://gpu-box:11434/api/")
	t.Setenv("OLLAMA_MODEL", "mistral")
	t.Setenv("GENERATIVE_ENABLED", "false")
	t.Setenv("GENERATIVE_TIMEOUT_SEC", "3")
	t.Setenv("DEBOUNCE_QUIET_MS", "500")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Generative.BaseURL != "http://gpu-box:11434/api" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.Generative.BaseURL)
	}
	if cfg.Generative.Model != "mistral" || cfg.Generative.Enabled {
		t.Fatalf("unexpected generative config %+v", cfg.Generative)
	}
	if cfg.Generative.Timeout().Seconds() != 3 {
		t.Fatalf("expected 3s timeout, got %s", cfg.Generative.Timeout())
	}
	if cfg.Debounce.Quiet().Milliseconds() != 500 {
		t.Fatalf("expected 500ms quiet, got %s", cfg.Debounce.Quiet())
	}
}

func TestFileOverlayAndEnvPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	doc := `
inbox_dir: /srv/inbox
db_path: /srv/calls.db
history_limit: 10
generative:
  model: phi3
  timeout_sec: 4
debounce:
  min_growth: 12
prompts:
  temperature: 0.2
  analyze_prompt: "Classify: {{transcript}}"
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("DB_PATH", "/tmp/env.db")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.InboxDir != "/srv/inbox" {
		t.Fatalf("expected file inbox dir, got %q", cfg.InboxDir)
	}
	if cfg.DBPath != "/tmp/env.db" {
		t.Fatalf("expected env to win for DB_PATH, got %q", cfg.DBPath)
	}
	if cfg.HistoryLimit != 10 || cfg.Generative.Model != "phi3" || cfg.Generative.TimeoutSec != 4 {
		t.Fatalf("file overlay not applied: %+v", cfg)
	}
	if cfg.Debounce.MinGrowth != 12 || cfg.Debounce.MinChars != 20 {
		t.Fatalf("unexpected debounce %+v", cfg.Debounce)
	}
	if cfg.Prompts.Temperature != 0.2 || cfg.Prompts.TopP != 0.9 {
		t.Fatalf("unexpected prompt sampling %+v", cfg.Prompts)
	}
	if got := cfg.Prompts.Render("smoke upstairs", `{"category":"Fire"}`); got != "Classify: smoke upstairs" {
		t.Fatalf("expected rendered prompt, got %q", got)
	}
}

func TestStrictConfigRejectsMissingFile(t *testing.T) {
	isolate(t)
	t.Setenv("STRICT_CONFIG", "true")
	if _, err := Load(); err == nil {
		t.Fatalf("expected strict mode to fail on a missing config file")
	}
}

func TestStrictConfigRejectsPromptWithoutPlaceholder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"prompts":{"analyze_prompt":"no slot here"}}`), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("STRICT_CONFIG", "1")
	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "analyze_prompt") {
		t.Fatalf("expected analyze_prompt validation error, got %v", err)
	}
}

func TestDefaultPromptRendersTranscript(t *testing.T) {
	got := DefaultPromptConfig().Render("caller reports smoke", `{"category":"Fire","priority":"High"}`)
	if !strings.Contains(got, `Transcript: "caller reports smoke"`) {
		t.Fatalf("expected transcript in prompt, got %q", got)
	}
	if !strings.Contains(got, `{"category":"Fire","priority":"High"}`) {
		t.Fatalf("expected engine assessment in prompt, got %q", got)
	}
	if strings.Contains(got, transcriptPlaceholder) || strings.Contains(got, assessmentPlaceholder) {
		t.Fatalf("placeholder left in prompt")
	}
}

func TestLoadDotEnvKeepsExistingValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("OLLAMA_MODEL=from-file\nNOTIFY_BOT_ID=bot-1\n"), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	t.Setenv("OLLAMA_MODEL", "from-env")
	t.Setenv("NOTIFY_BOT_ID", "")
	os.Unsetenv("NOTIFY_BOT_ID")
	LoadDotEnv(path)
	t.Cleanup(func() { os.Unsetenv("NOTIFY_BOT_ID") })
	if got := os.Getenv("OLLAMA_MODEL"); got != "from-env" {
		t.Fatalf("expected %q, got %q", "from-env", got)
	}
	if got := os.Getenv("NOTIFY_BOT_ID"); got != "bot-1" {
		t.Fatalf("expected %q, got %q", "bot-1", got)
	}
	LoadDotEnv(filepath.Join(t.TempDir(), "absent.env"))
}
