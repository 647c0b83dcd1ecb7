// Package config loads and validates navigator configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// stage of the pipeline and for the optional serve-mode infrastructure.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	apperrors "github.com/tinkerthinkerbytes/ico-guidance-navigator-llm/pkg/errors"
)

// Config is the top-level application configuration.
type Config struct {
	Corpus     CorpusConfig     `yaml:"corpus"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Confidence ConfidenceConfig `yaml:"confidence"`
	LLM        LLMConfig        `yaml:"llm"`
	Server     ServerConfig     `yaml:"server"`
	Redis      RedisConfig      `yaml:"redis"`
	Cache      CacheConfig      `yaml:"cache"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Logging    LoggingConfig    `yaml:"logging"`
	Tracing    TracingConfig    `yaml:"tracing"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// CorpusConfig points at the directory holding the guidance documents.
type CorpusConfig struct {
	Dir string `yaml:"dir"`
}

// RetrievalConfig holds BM25 parameters and the synthesis limits.
type RetrievalConfig struct {
	K1                 float64 `yaml:"k1"`
	B                  float64 `yaml:"b"`
	WeakMatchThreshold float64 `yaml:"weakMatchThreshold"`
	TopN               int     `yaml:"topN"`
	MaxPassageChars    int     `yaml:"maxPassageChars"`
}

// ConfidenceConfig holds the score thresholds of the confidence policy.
type ConfidenceConfig struct {
	ModerateScore float64 `yaml:"moderateScore"`
	StrongScore   float64 `yaml:"strongScore"`
	Corroboration int     `yaml:"corroboration"`
}

// LLMConfig controls the optional summary post-processor.
type LLMConfig struct {
	Enabled           bool                 `yaml:"enabled"`
	APIKey            string               `yaml:"apiKey"`
	BaseURL           string               `yaml:"baseURL"`
	Model             string               `yaml:"model"`
	FallbackModels    []string             `yaml:"fallbackModels"`
	Timeout           time.Duration        `yaml:"timeout"`
	MaxOutputTokens   int                  `yaml:"maxOutputTokens"`
	MaxPassages       int                  `yaml:"maxPassages"`
	RequestsPerSecond float64              `yaml:"requestsPerSecond"`
	MinOverlap        float64              `yaml:"minOverlap"`
	CircuitBreaker    CircuitBreakerConfig `yaml:"circuitBreaker"`
}

// CircuitBreakerConfig mirrors resilience.CircuitBreakerConfig.
type CircuitBreakerConfig struct {
	Enabled             bool          `yaml:"enabled"`
	FailureThreshold    int           `yaml:"failureThreshold"`
	ResetTimeout        time.Duration `yaml:"resetTimeout"`
	HalfOpenMaxRequests int           `yaml:"halfOpenMaxRequests"`
}

// ServerConfig holds HTTP server settings for serve mode.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// RedisConfig holds the Redis connection used by the response cache. An empty
// Addr disables Redis.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// CacheConfig controls the in-process response cache.
type CacheConfig struct {
	Enabled    bool `yaml:"enabled"`
	MaxEntries int  `yaml:"maxEntries"`
}

// KafkaConfig holds the decision-audit topic. No brokers means audit events
// are written to the log instead.
type KafkaConfig struct {
	Brokers    []string `yaml:"brokers"`
	AuditTopic string   `yaml:"auditTopic"`
	BufferSize int      `yaml:"bufferSize"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig toggles per-stage span logging.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Models returns the primary model followed by the fallbacks, de-duplicated.
func (l LLMConfig) Models() []string {
	seen := make(map[string]struct{}, len(l.FallbackModels)+1)
	out := make([]string, 0, len(l.FallbackModels)+1)
	for _, m := range append([]string{l.Model}, l.FallbackModels...) {
		m = strings.TrimSpace(m)
		if m == "" {
			continue
		}
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with defaults for any missing
// values.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Corpus: CorpusConfig{
			Dir: "corpus",
		},
		Retrieval: RetrievalConfig{
			K1:                 1.2,
			B:                  0.75,
			WeakMatchThreshold: 1.0,
			TopN:               3,
			MaxPassageChars:    480,
		},
		Confidence: ConfidenceConfig{
			ModerateScore: 2.0,
			StrongScore:   4.0,
			Corroboration: 3,
		},
		LLM: LLMConfig{
			BaseURL:           "https://api.openai.com/v1",
			Model:             "gpt-5.1-mini",
			FallbackModels:    []string{"gpt-4o-mini"},
			Timeout:           10 * time.Second,
			MaxOutputTokens:   200,
			MaxPassages:       5,
			RequestsPerSecond: 2,
			MinOverlap:        0.6,
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:             true,
				FailureThreshold:    5,
				ResetTimeout:        30 * time.Second,
				HalfOpenMaxRequests: 1,
			},
		},
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			RequestTimeout:  45 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Redis: RedisConfig{
			PoolSize: 10,
			CacheTTL: 10 * time.Minute,
		},
		Cache: CacheConfig{
			Enabled:    true,
			MaxEntries: 1024,
		},
		Kafka: KafkaConfig{
			AuditTopic: "navigator-decisions",
			BufferSize: 256,
		},
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Port: 9090,
		},
	}
}

// Validate rejects values the pipeline cannot honour. Missing LLM credentials
// are not an error; the post-processor reports them as a skip note.
func (c *Config) Validate() error {
	r := c.Retrieval
	switch {
	case c.Corpus.Dir == "":
		return apperrors.New(apperrors.ErrConfig, 0, "corpus.dir must be set")
	case r.K1 < 0:
		return apperrors.Newf(apperrors.ErrConfig, 0, "retrieval.k1 must be >= 0, got %v", r.K1)
	case r.B < 0 || r.B > 1:
		return apperrors.Newf(apperrors.ErrConfig, 0, "retrieval.b must be within [0,1], got %v", r.B)
	case r.WeakMatchThreshold <= 0:
		return apperrors.Newf(apperrors.ErrConfig, 0, "retrieval.weakMatchThreshold must be > 0, got %v", r.WeakMatchThreshold)
	case r.TopN < 1:
		return apperrors.Newf(apperrors.ErrConfig, 0, "retrieval.topN must be >= 1, got %d", r.TopN)
	case r.MaxPassageChars < 40:
		return apperrors.Newf(apperrors.ErrConfig, 0, "retrieval.maxPassageChars must be >= 40, got %d", r.MaxPassageChars)
	}
	cc := c.Confidence
	if cc.ModerateScore <= 0 || cc.StrongScore < cc.ModerateScore {
		return apperrors.Newf(apperrors.ErrConfig, 0,
			"confidence thresholds must satisfy 0 < moderateScore <= strongScore, got %v and %v",
			cc.ModerateScore, cc.StrongScore)
	}
	if cc.Corroboration < 0 {
		return apperrors.Newf(apperrors.ErrConfig, 0, "confidence.corroboration must be >= 0, got %d", cc.Corroboration)
	}
	l := c.LLM
	if l.Timeout <= 0 {
		return apperrors.Newf(apperrors.ErrConfig, 0, "llm.timeout must be > 0, got %s", l.Timeout)
	}
	if l.MaxOutputTokens < 1 {
		return apperrors.Newf(apperrors.ErrConfig, 0, "llm.maxOutputTokens must be >= 1, got %d", l.MaxOutputTokens)
	}
	if l.MinOverlap < 0 || l.MinOverlap > 1 {
		return apperrors.Newf(apperrors.ErrConfig, 0, "llm.minOverlap must be within [0,1], got %v", l.MinOverlap)
	}
	return nil
}

// applyEnvOverrides reads NAV_* and OPENAI_* environment variables and
// overrides the corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("NAV_CORPUS_DIR"); v != "" {
		cfg.Corpus.Dir = v
	}
	if v := os.Getenv("NAV_RETRIEVAL_TOP_N"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Retrieval.TopN = n
		}
	}
	if v := os.Getenv("NAV_RETRIEVAL_WEAK_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Retrieval.WeakMatchThreshold = f
		}
	}
	if v := os.Getenv("NAV_LLM_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.LLM.Enabled = b
		}
	}
	if v := os.Getenv("NAV_LLM_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.LLM.Timeout = d
		}
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("OPENAI_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("OPENAI_FALLBACK_MODELS"); v != "" {
		cfg.LLM.FallbackModels = strings.Split(v, ",")
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = strings.TrimRight(v, "/")
	}
	if v := os.Getenv("NAV_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("NAV_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("NAV_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("NAV_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("NAV_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("NAV_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("NAV_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Metrics.Port = port
			cfg.Metrics.Enabled = true
		}
	}
}
