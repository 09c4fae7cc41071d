// Package config loads service configuration from YAML, a .env file and the
// environment, in that order of precedence (environment wins).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"transcript-insights-go/internal/events"
	"transcript-insights-go/internal/extractor"
	"transcript-insights-go/internal/quiz"
	"transcript-insights-go/internal/retry"
	"transcript-insights-go/internal/segmenter"
	"transcript-insights-go/internal/store"
)

type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Logging       LoggingConfig       `yaml:"logging"`
	Pipeline      PipelineConfig      `yaml:"pipeline"`
	Segmentation  segmenter.Params    `yaml:"segmentation"`
	Quiz          quiz.Config         `yaml:"quiz"`
	Retry         retry.Policy        `yaml:"retry"`
	LLM           LLMConfig           `yaml:"llm"`
	Search        SearchConfig        `yaml:"search"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Store         store.Config        `yaml:"store"`
	Kafka         events.Config       `yaml:"kafka"`
	Assets        AssetsConfig        `yaml:"assets"`
	Inbox         InboxConfig         `yaml:"inbox"`
}

type ServerConfig struct {
	Port         string        `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type PipelineConfig struct {
	Concurrency        int    `yaml:"concurrency"`
	Persona            string `yaml:"persona"`
	Strategy           string `yaml:"strategy"`
	DirectSynthesisMax int    `yaml:"direct_synthesis_max"`
	MapChunkSize       int    `yaml:"map_chunk_size"`
}

type LLMConfig struct {
	GatewayURL string        `yaml:"gateway_url"`
	APIKey     string        `yaml:"api_key"`
	Model      string        `yaml:"model"`
	Timeout    time.Duration `yaml:"timeout"`
	Mock       bool          `yaml:"mock"`
}

type SearchConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
	Mock    bool          `yaml:"mock"`
}

type TranscriptionConfig struct {
	URL          string        `yaml:"url"`
	PollInterval time.Duration `yaml:"poll_interval"`
	PollTimeout  time.Duration `yaml:"poll_timeout"`
	Mock         bool          `yaml:"mock"`
}

type AssetsConfig struct {
	OutputDir   string `yaml:"output_dir"`
	ArtifactDir string `yaml:"artifact_dir"`
}

type InboxConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Dir           string `yaml:"dir"`
	MaxConcurrent int    `yaml:"max_concurrent"`
}

// Load reads path (optional), overlays .env and the environment, then
// validates. A missing file at path is an error; an empty path is not.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func envString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		*dst = strings.TrimSpace(v)
	}
}

func envBool(dst *bool, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			*dst = b
		}
	}
}

func envInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			*dst = n
		}
	}
}

// ApplyEnv overlays the environment variables the service recognizes.
func (c *Config) ApplyEnv() {
	envString(&c.Server.Port, "PORT")
	envString(&c.Logging.Level, "LOG_LEVEL")
	envInt(&c.Pipeline.Concurrency, "PIPELINE_CONCURRENCY")
	envString(&c.Pipeline.Persona, "PERSONA")
	envString(&c.LLM.GatewayURL, "LLM_GATEWAY_URL")
	envString(&c.LLM.APIKey, "LLM_API_KEY")
	envString(&c.LLM.Model, "LLM_MODEL")
	envBool(&c.LLM.Mock, "USE_MOCK_LLM")
	envString(&c.Search.URL, "SEARCH_API_URL")
	envBool(&c.Search.Mock, "USE_MOCK_SEARCH")
	envString(&c.Transcription.URL, "TRANSCRIBE_URL")
	envBool(&c.Transcription.Mock, "USE_MOCK_TRANSCRIBE")
	envString(&c.Store.Driver, "STORE_DRIVER")
	envString(&c.Store.DSN, "STORE_DSN")
	envString(&c.Store.RedisAddr, "REDIS_ADDR")
	if v := os.Getenv("KAFKA_BROKERS"); strings.TrimSpace(v) != "" {
		c.Kafka.Brokers = nil
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				c.Kafka.Brokers = append(c.Kafka.Brokers, b)
			}
		}
		c.Kafka.Enabled = len(c.Kafka.Brokers) > 0
	}
	envString(&c.Kafka.Topic, "KAFKA_TOPIC")
	envString(&c.Assets.OutputDir, "ASSETS_DIR")
	if v := os.Getenv("INBOX_DIR"); strings.TrimSpace(v) != "" {
		c.Inbox.Dir = strings.TrimSpace(v)
		c.Inbox.Enabled = true
	}
}

// Validate rejects unusable values and fills defaults for the rest.
func (c *Config) Validate() error {
	if c.Pipeline.Concurrency < 0 {
		return fmt.Errorf("pipeline.concurrency must not be negative")
	}
	if _, err := extractor.ParsePersona(c.Pipeline.Persona); err != nil {
		return fmt.Errorf("pipeline.persona: %w", err)
	}
	if _, err := segmenter.ByName(c.Pipeline.Strategy, nil, nil, c.Segmentation); err != nil {
		return fmt.Errorf("pipeline.strategy: %w", err)
	}
	switch strings.ToLower(c.Store.Driver) {
	case "", "memory", "sqlite", "postgres", "redis":
	default:
		return fmt.Errorf("store.driver %q is not one of memory, sqlite, postgres, redis", c.Store.Driver)
	}
	if strings.EqualFold(c.Store.Driver, "postgres") && c.Store.DSN == "" {
		return fmt.Errorf("store.dsn is required for postgres")
	}
	if strings.EqualFold(c.Store.Driver, "redis") && c.Store.RedisAddr == "" {
		return fmt.Errorf("store.redis_addr is required for redis")
	}
	if c.Kafka.Enabled && c.Kafka.Topic == "" {
		return fmt.Errorf("kafka.topic is required when kafka is enabled")
	}
	if c.Inbox.Enabled && c.Inbox.Dir == "" {
		return fmt.Errorf("inbox.dir is required when the inbox is enabled")
	}
	if c.Retry.Jitter < 0 || c.Retry.Jitter > 1 {
		return fmt.Errorf("retry.jitter must be within [0, 1]")
	}

	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 60 * time.Second
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Pipeline.Concurrency == 0 {
		c.Pipeline.Concurrency = 5
	}
	if c.Pipeline.DirectSynthesisMax == 0 {
		c.Pipeline.DirectSynthesisMax = 5
	}
	if c.Pipeline.MapChunkSize == 0 {
		c.Pipeline.MapChunkSize = 5
	}
	c.Segmentation = c.Segmentation.WithDefaults()
	d := retry.DefaultPolicy()
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = d.MaxAttempts
	}
	if c.Retry.BaseDelay == 0 {
		c.Retry.BaseDelay = d.BaseDelay
	}
	if c.Retry.MaxDelay == 0 {
		c.Retry.MaxDelay = d.MaxDelay
	}
	if c.Retry.Jitter == 0 {
		c.Retry.Jitter = d.Jitter
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "gpt-4o-mini"
	}
	if c.LLM.Timeout == 0 {
		c.LLM.Timeout = 25 * time.Second
	}
	if c.Search.Timeout == 0 {
		c.Search.Timeout = 25 * time.Second
	}
	if c.Transcription.PollInterval == 0 {
		c.Transcription.PollInterval = 1500 * time.Millisecond
	}
	if c.Transcription.PollTimeout == 0 {
		c.Transcription.PollTimeout = 10 * time.Minute
	}
	if c.Store.KeyPrefix == "" {
		c.Store.KeyPrefix = "transcripts"
	}
	if c.Assets.OutputDir == "" {
		c.Assets.OutputDir = "data/output"
	}
	if c.Inbox.MaxConcurrent == 0 {
		c.Inbox.MaxConcurrent = 2
	}
	return nil
}

// Persona resolves the configured persona, already checked by Validate.
func (c *Config) Persona() extractor.Persona {
	p, err := extractor.ParsePersona(c.Pipeline.Persona)
	if err != nil {
		return extractor.Lecture{}
	}
	return p
}

// ExtractorOptions maps the llm, search and retry sections onto the
// extractor suite.
func (c *Config) ExtractorOptions() extractor.Options {
	return extractor.Options{
		Gateway: extractor.GatewayConfig{
			URL:     c.LLM.GatewayURL,
			APIKey:  c.LLM.APIKey,
			Model:   c.LLM.Model,
			Timeout: c.LLM.Timeout,
		},
		UseMockLLM:    c.LLM.Mock,
		SearchURL:     c.Search.URL,
		SearchTimeout: c.Search.Timeout,
		UseMockSearch: c.Search.Mock,
		Retry:         c.Retry,
	}
}
