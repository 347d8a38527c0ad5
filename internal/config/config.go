package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port string `yaml:"port"`

	// Auth
	APIKey string `yaml:"-"`

	// Persistence
	DatabasePath string `yaml:"database_path"`
	StorageDir   string `yaml:"storage_dir"`

	// Language model
	LLMProvider     string        `yaml:"llm_provider"`
	AnthropicAPIKey string        `yaml:"-"`
	AnthropicModel  string        `yaml:"anthropic_model"`
	OpenAIAPIKey    string        `yaml:"-"`
	OpenAIBaseURL   string        `yaml:"openai_base_url"`
	OpenAIModel     string        `yaml:"openai_model"`
	LLMTimeout      time.Duration `yaml:"llm_timeout"`
	LLMMaxRetries   int           `yaml:"llm_max_retries"`

	// Worker pool
	WorkerCount           int `yaml:"worker_count"`
	MaxQueueSize          int `yaml:"max_queue_size"`
	MaxConcurrentGenerate int `yaml:"max_concurrent_generate"`
	MaxConcurrentLLM      int `yaml:"max_concurrent_llm"`
	MaxSummaryConcurrency int `yaml:"max_summary_concurrency"`

	// Tree generation budgets
	TocWindowPages        int `yaml:"toc_window_pages"`
	SummaryInputChars     int `yaml:"summary_input_chars"`
	DescriptionInputChars int `yaml:"description_input_chars"`

	// Retrieval budgets
	SectionContextChars int `yaml:"section_context_chars"`
	TotalContextChars   int `yaml:"total_context_chars"`
	MaxSelectedNodes    int `yaml:"max_selected_nodes"`

	// Upload limits
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`

	// Job state
	JobTTL               time.Duration `yaml:"job_ttl"`
	StaleProcessingAfter time.Duration `yaml:"stale_processing_after"`

	// PDF
	PDFFallbackPdftotext bool `yaml:"pdf_fallback_pdftotext"`
}

// Load builds the configuration from environment variables. When
// PAGETREE_CONFIG names a YAML file, its values are applied first and the
// environment overrides them.
func Load() (Config, error) {
	base := defaults()
	if path := os.Getenv("PAGETREE_CONFIG"); path != "" {
		if err := loadFile(path, &base); err != nil {
			return Config{}, err
		}
	}

	cfg := Config{
		Port: envOr("PORT", base.Port),

		APIKey: os.Getenv("PAGETREE_API_KEY"),

		DatabasePath: envOr("DATABASE_PATH", base.DatabasePath),
		StorageDir:   envOr("STORAGE_DIR", base.StorageDir),

		LLMProvider:     envOr("LLM_PROVIDER", base.LLMProvider),
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		AnthropicModel:  envOr("ANTHROPIC_MODEL", base.AnthropicModel),
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:   envOr("OPENAI_BASE_URL", base.OpenAIBaseURL),
		OpenAIModel:     envOr("OPENAI_MODEL", base.OpenAIModel),
		LLMTimeout:      envDuration("LLM_TIMEOUT", base.LLMTimeout),
		LLMMaxRetries:   envInt("LLM_MAX_RETRIES", base.LLMMaxRetries),

		WorkerCount:           envInt("WORKER_COUNT", base.WorkerCount),
		MaxQueueSize:          envInt("MAX_QUEUE_SIZE", base.MaxQueueSize),
		MaxConcurrentGenerate: envInt("MAX_CONCURRENT_GENERATE", base.MaxConcurrentGenerate),
		MaxConcurrentLLM:      envInt("MAX_CONCURRENT_LLM", base.MaxConcurrentLLM),
		MaxSummaryConcurrency: envInt("MAX_SUMMARY_CONCURRENCY", base.MaxSummaryConcurrency),

		TocWindowPages:        envInt("TOC_WINDOW_PAGES", base.TocWindowPages),
		SummaryInputChars:     envInt("SUMMARY_INPUT_CHARS", base.SummaryInputChars),
		DescriptionInputChars: envInt("DESCRIPTION_INPUT_CHARS", base.DescriptionInputChars),

		SectionContextChars: envInt("SECTION_CONTEXT_CHARS", base.SectionContextChars),
		TotalContextChars:   envInt("TOTAL_CONTEXT_CHARS", base.TotalContextChars),
		MaxSelectedNodes:    envInt("MAX_SELECTED_NODES", base.MaxSelectedNodes),

		MaxUploadBytes: envInt64("MAX_UPLOAD_BYTES", base.MaxUploadBytes),

		JobTTL:               envDuration("JOB_TTL", base.JobTTL),
		StaleProcessingAfter: envDuration("STALE_PROCESSING_AFTER", base.StaleProcessingAfter),

		PDFFallbackPdftotext: envBool("PDF_FALLBACK_PDFTOTEXT", base.PDFFallbackPdftotext),
	}

	cfg.applyDefaults()
	return cfg, nil
}

func defaults() Config {
	return Config{
		Port: "8090",

		DatabasePath: "pagetree.db",
		StorageDir:   "data/documents",

		LLMProvider:    "anthropic",
		AnthropicModel: "claude-sonnet-4-5-20250929",
		OpenAIBaseURL:  "https://api.openai.com/v1",
		OpenAIModel:    "gpt-4o",
		LLMTimeout:     90 * time.Second,
		LLMMaxRetries:  3,

		WorkerCount:           2,
		MaxQueueSize:          100,
		MaxConcurrentGenerate: 2,
		MaxConcurrentLLM:      4,
		MaxSummaryConcurrency: 8,

		TocWindowPages:        15,
		SummaryInputChars:     6000,
		DescriptionInputChars: 8000,

		SectionContextChars: 8000,
		TotalContextChars:   30000,
		MaxSelectedNodes:    5,

		MaxUploadBytes: 52428800, // 50MB

		JobTTL:               1 * time.Hour,
		StaleProcessingAfter: 30 * time.Minute,

		PDFFallbackPdftotext: true,
	}
}

// maxLLMRetries caps LLM_MAX_RETRIES so retry backoff stays bounded.
const maxLLMRetries = 10

// applyDefaults replaces non-positive values with their defaults.
func (c *Config) applyDefaults() {
	d := defaults()
	if c.WorkerCount <= 0 {
		c.WorkerCount = d.WorkerCount
	}
	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = d.MaxQueueSize
	}
	if c.MaxConcurrentGenerate <= 0 {
		c.MaxConcurrentGenerate = d.MaxConcurrentGenerate
	}
	if c.MaxConcurrentLLM <= 0 {
		c.MaxConcurrentLLM = d.MaxConcurrentLLM
	}
	if c.MaxSummaryConcurrency <= 0 {
		c.MaxSummaryConcurrency = d.MaxSummaryConcurrency
	}
	if c.TocWindowPages <= 0 {
		c.TocWindowPages = d.TocWindowPages
	}
	if c.SummaryInputChars <= 0 {
		c.SummaryInputChars = d.SummaryInputChars
	}
	if c.DescriptionInputChars <= 0 {
		c.DescriptionInputChars = d.DescriptionInputChars
	}
	if c.SectionContextChars <= 0 {
		c.SectionContextChars = d.SectionContextChars
	}
	if c.TotalContextChars <= 0 {
		c.TotalContextChars = d.TotalContextChars
	}
	if c.MaxSelectedNodes <= 0 {
		c.MaxSelectedNodes = d.MaxSelectedNodes
	}
	if c.LLMTimeout <= 0 {
		c.LLMTimeout = d.LLMTimeout
	}
	if c.LLMMaxRetries < 0 {
		c.LLMMaxRetries = d.LLMMaxRetries
	}
	c.LLMMaxRetries = min(c.LLMMaxRetries, maxLLMRetries)
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = d.MaxUploadBytes
	}
	if c.JobTTL <= 0 {
		c.JobTTL = d.JobTTL
	}
	if c.StaleProcessingAfter <= 0 {
		c.StaleProcessingAfter = d.StaleProcessingAfter
	}
}

// Validate checks the settings the HTTP server cannot run without.
func (c Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("PAGETREE_API_KEY is required")
	}
	return c.ValidateLLM()
}

// ValidateLLM checks that the selected language model provider has credentials.
func (c Config) ValidateLLM() error {
	switch c.LLMProvider {
	case "anthropic":
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required")
		}
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required")
		}
	default:
		return fmt.Errorf("unknown LLM_PROVIDER %q", c.LLMProvider)
	}
	return nil
}

func loadFile(path string, into *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, into); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
