package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default configuration file location.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML. Every field can be
// overridden with a DOCUCHAT_* environment variable.
type FileConfig struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"logLevel"`

	DatabaseURL string `yaml:"databaseURL"`

	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`

	MinioEndpoint  string `yaml:"minioEndpoint"`
	MinioAccessKey string `yaml:"minioAccessKey"`
	MinioSecretKey string `yaml:"minioSecretKey"`
	MinioBucket    string `yaml:"minioBucket"`
	MinioUseSSL    bool   `yaml:"minioUseSSL"`

	JWTSecret     string `yaml:"jwtSecret"`
	JWTTTLSeconds int    `yaml:"jwtTtlSeconds"`
	JWTIssuer     string `yaml:"jwtIssuer"`
	JWTLeeway     string `yaml:"jwtLeeway"`

	GeminiAPIKey       string `yaml:"geminiApiKey"`
	EmbeddingProvider  string `yaml:"embeddingProvider"`
	EmbeddingBaseURL   string `yaml:"embeddingBaseURL"`
	EmbeddingModel     string `yaml:"embeddingModel"`
	EmbeddingDim       int    `yaml:"embeddingDim"`
	GenerationProvider string `yaml:"generationProvider"`
	GenerationBaseURL  string `yaml:"generationBaseURL"`
	GenerationAPIKey   string `yaml:"generationApiKey"`
	GenerationModel    string `yaml:"generationModel"`
	CaptionModel       string `yaml:"captionModel"`

	ChunkSize         int `yaml:"chunkSize"`
	ChunkOverlap      int `yaml:"chunkOverlap"`
	TopK              int `yaml:"topK"`
	HistoryLimit      int `yaml:"historyLimit"`
	CaptionMaxTokens  int `yaml:"captionMaxTokens"`
	ReplyMaxTokens    int `yaml:"replyMaxTokens"`
	IngestConcurrency int `yaml:"ingestConcurrency"`

	TrustedProxies []string `yaml:"trustedProxies"`

	MaxUploadBytes            int64 `yaml:"maxUploadBytes"`
	AuthRateLimitPerMinute    int   `yaml:"authRateLimitPerMinute"`
	UploadRateLimitPerMinute  int   `yaml:"uploadRateLimitPerMinute"`
	QueryRateLimitPerMinute   int   `yaml:"queryRateLimitPerMinute"`
}

// Load reads config from path (defaults to config.yaml) and applies
// environment overrides.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	applyEnvOverrides(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *FileConfig) {
	overrideString("DOCUCHAT_PORT", &cfg.Port)
	overrideString("DOCUCHAT_LOG_LEVEL", &cfg.LogLevel)
	overrideString("DOCUCHAT_DATABASE_URL", &cfg.DatabaseURL)
	overrideString("REDIS_ADDR", &cfg.RedisAddr)
	overrideString("REDIS_PASSWORD", &cfg.RedisPassword)
	overrideString("DOCUCHAT_MINIO_ENDPOINT", &cfg.MinioEndpoint)
	overrideString("DOCUCHAT_MINIO_ACCESS_KEY", &cfg.MinioAccessKey)
	overrideString("DOCUCHAT_MINIO_SECRET_KEY", &cfg.MinioSecretKey)
	overrideString("DOCUCHAT_MINIO_BUCKET", &cfg.MinioBucket)
	overrideBool("DOCUCHAT_MINIO_USE_SSL", &cfg.MinioUseSSL)
	overrideString("DOCUCHAT_JWT_SECRET", &cfg.JWTSecret)
	overrideInt("DOCUCHAT_JWT_TTL_SECONDS", &cfg.JWTTTLSeconds)
	overrideString("DOCUCHAT_JWT_ISSUER", &cfg.JWTIssuer)
	overrideString("DOCUCHAT_JWT_LEEWAY", &cfg.JWTLeeway)
	overrideString("GEMINI_API_KEY", &cfg.GeminiAPIKey)
	overrideString("DOCUCHAT_EMBEDDING_PROVIDER", &cfg.EmbeddingProvider)
	overrideString("DOCUCHAT_EMBEDDING_BASE_URL", &cfg.EmbeddingBaseURL)
	overrideString("DOCUCHAT_EMBEDDING_MODEL", &cfg.EmbeddingModel)
	overrideInt("DOCUCHAT_EMBEDDING_DIM", &cfg.EmbeddingDim)
	overrideString("DOCUCHAT_GENERATION_PROVIDER", &cfg.GenerationProvider)
	overrideString("DOCUCHAT_GENERATION_BASE_URL", &cfg.GenerationBaseURL)
	overrideString("DOCUCHAT_GENERATION_API_KEY", &cfg.GenerationAPIKey)
	overrideString("DOCUCHAT_GENERATION_MODEL", &cfg.GenerationModel)
	overrideString("DOCUCHAT_CAPTION_MODEL", &cfg.CaptionModel)
	overrideInt("DOCUCHAT_CHUNK_SIZE", &cfg.ChunkSize)
	overrideInt("DOCUCHAT_CHUNK_OVERLAP", &cfg.ChunkOverlap)
	overrideInt("DOCUCHAT_TOP_K", &cfg.TopK)
	overrideInt("DOCUCHAT_HISTORY_LIMIT", &cfg.HistoryLimit)
	overrideInt("DOCUCHAT_CAPTION_MAX_TOKENS", &cfg.CaptionMaxTokens)
	overrideInt("DOCUCHAT_REPLY_MAX_TOKENS", &cfg.ReplyMaxTokens)
	overrideInt("DOCUCHAT_INGEST_CONCURRENCY", &cfg.IngestConcurrency)
	overrideStringSlice("DOCUCHAT_TRUSTED_PROXIES", &cfg.TrustedProxies)
	overrideInt64("DOCUCHAT_MAX_UPLOAD_BYTES", &cfg.MaxUploadBytes)
	overrideInt("DOCUCHAT_AUTH_RATE_LIMIT_PER_MINUTE", &cfg.AuthRateLimitPerMinute)
	overrideInt("DOCUCHAT_UPLOAD_RATE_LIMIT_PER_MINUTE", &cfg.UploadRateLimitPerMinute)
	overrideInt("DOCUCHAT_QUERY_RATE_LIMIT_PER_MINUTE", &cfg.QueryRateLimitPerMinute)
}

func overrideString(env string, target *string) {
	if v := strings.TrimSpace(os.Getenv(env)); v != "" {
		*target = v
	}
}

func overrideStringSlice(env string, target *[]string) {
	if v := strings.TrimSpace(os.Getenv(env)); v != "" {
		var out []string
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		*target = out
	}
}

func overrideBool(env string, target *bool) {
	if v := strings.TrimSpace(os.Getenv(env)); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*target = b
		}
	}
}

func overrideInt(env string, target *int) {
	if v := strings.TrimSpace(os.Getenv(env)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*target = n
		}
	}
}

func overrideInt64(env string, target *int64) {
	if v := strings.TrimSpace(os.Getenv(env)); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*target = n
		}
	}
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if cfg.DatabaseURL == "" {
		return errors.New("config: databaseURL is required (set in config.yaml or DOCUCHAT_DATABASE_URL)")
	}
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		return errors.New("config: redisAddr is required for distributed rate limiting")
	}
	if strings.TrimSpace(cfg.MinioEndpoint) == "" {
		return errors.New("config: minioEndpoint is required")
	}
	if strings.TrimSpace(cfg.MinioBucket) == "" {
		return errors.New("config: minioBucket is required")
	}
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return errors.New("config: jwtSecret is required (set in config.yaml or DOCUCHAT_JWT_SECRET)")
	}
	if cfg.EmbeddingDim <= 0 {
		return errors.New("config: embeddingDim is required")
	}
	if cfg.EmbeddingModel == "" {
		return errors.New("config: embeddingModel is required")
	}
	if cfg.GenerationModel == "" {
		return errors.New("config: generationModel is required")
	}
	if cfg.ChunkSize > 0 && cfg.ChunkOverlap >= cfg.ChunkSize {
		return errors.New("config: chunkOverlap must be smaller than chunkSize")
	}
	if cfg.AuthRateLimitPerMinute < 0 || cfg.UploadRateLimitPerMinute < 0 || cfg.QueryRateLimitPerMinute < 0 {
		return errors.New("config: rate limits must be >= 0")
	}
	return nil
}

// TokenTTL returns the configured JWT lifetime (default 86400 s).
func (c FileConfig) TokenTTL() time.Duration {
	if c.JWTTTLSeconds <= 0 {
		return 86400 * time.Second
	}
	return time.Duration(c.JWTTTLSeconds) * time.Second
}

// ParseJWTLeeway parses the optional JWT leeway duration string.
func ParseJWTLeeway(leewayStr string) (time.Duration, error) {
	if leewayStr == "" {
		return 0, nil
	}
	dur, err := time.ParseDuration(leewayStr)
	if err != nil {
		return 0, fmt.Errorf("invalid jwtLeeway duration: %w", err)
	}
	return dur, nil
}
