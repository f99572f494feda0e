package app

import (
	"fmt"
	"strings"
	"time"

	"docuchat/pkg/ai"
	"docuchat/pkg/storage"
	"docuchat/pkg/store"
	"docuchat/pkg/vector"
)

// Config holds runtime configuration for the core application.
// External collaborators can be pre-wired (tests) or are constructed from
// the connection settings.
type Config struct {
	DatabaseURL string
	Store       store.Store
	Vectors     vector.Store
	Objects     storage.ObjectStore

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	GeminiAPIKey      string
	EmbeddingProvider string
	EmbeddingBaseURL  string
	EmbeddingModel    string
	EmbeddingDim      int
	GenerationProvider string
	GenerationBaseURL  string
	GenerationAPIKey   string
	GenerationModel    string
	CaptionModel       string

	Embedder  ai.Embedder
	Generator ai.TextGenerator
	Captioner ai.ImageCaptioner

	ChunkSize        int
	ChunkOverlap     int
	TopK             int
	HistoryLimit     int
	CaptionMaxTokens int
	ReplyMaxTokens   int
	IngestConcurrency int
}

// App is the core application service wiring storage, the vector database,
// and the model providers behind the ingestion and chat pipelines.
type App struct {
	store     store.Store
	vectors   vector.Store
	objects   storage.ObjectStore
	embedder  ai.Embedder
	generator ai.TextGenerator
	captioner ai.ImageCaptioner

	chunkSize         int
	chunkOverlap      int
	topK              int
	historyLimit      int
	captionMaxTokens  int
	replyMaxTokens    int
	ingestConcurrency int
	presignExpiry     time.Duration
}

// New constructs the application. Every tunable falls back to the documented
// default so a minimal config still yields a working pipeline.
func New(cfg Config) (*App, error) {
	dataStore := cfg.Store
	vectors := cfg.Vectors
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required")
		}
		gormStore, err := store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
		dataStore = gormStore
		if vectors == nil {
			dim := cfg.EmbeddingDim
			if dim <= 0 {
				return nil, fmt.Errorf("embedding dim required")
			}
			vectors, err = vector.NewPgStore(gormStore.DB(), dim)
			if err != nil {
				return nil, fmt.Errorf("init vector store: %w", err)
			}
		}
	}
	if vectors == nil {
		return nil, fmt.Errorf("vector store required")
	}

	objects := cfg.Objects
	if objects == nil {
		var err error
		objects, err = storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			return nil, fmt.Errorf("init object store: %w", err)
		}
	}

	embedder := cfg.Embedder
	generator := cfg.Generator
	captioner := cfg.Captioner
	if embedder == nil || generator == nil || captioner == nil {
		built, err := buildProviders(cfg)
		if err != nil {
			return nil, err
		}
		if embedder == nil {
			embedder = built.embedder
		}
		if generator == nil {
			generator = built.generator
		}
		if captioner == nil {
			captioner = built.captioner
		}
	}

	app := &App{
		store:             dataStore,
		vectors:           vectors,
		objects:           objects,
		embedder:          embedder,
		generator:         generator,
		captioner:         captioner,
		chunkSize:         cfg.ChunkSize,
		chunkOverlap:      cfg.ChunkOverlap,
		topK:              cfg.TopK,
		historyLimit:      cfg.HistoryLimit,
		captionMaxTokens:  cfg.CaptionMaxTokens,
		replyMaxTokens:    cfg.ReplyMaxTokens,
		ingestConcurrency: cfg.IngestConcurrency,
		presignExpiry:     15 * time.Minute,
	}
	app.applyDefaults()
	return app, nil
}

func (a *App) applyDefaults() {
	if a.chunkSize <= 0 {
		a.chunkSize = 1000
	}
	if a.chunkOverlap < 0 || a.chunkOverlap >= a.chunkSize {
		a.chunkOverlap = 150
	}
	if a.topK <= 0 {
		a.topK = 5
	}
	if a.historyLimit < 0 {
		a.historyLimit = 0
	} else if a.historyLimit == 0 {
		a.historyLimit = 10
	}
	if a.captionMaxTokens <= 0 {
		a.captionMaxTokens = 200
	}
	if a.replyMaxTokens <= 0 {
		a.replyMaxTokens = 1000
	}
	if a.ingestConcurrency <= 0 {
		a.ingestConcurrency = 4
	}
}

type providers struct {
	embedder  ai.Embedder
	generator ai.TextGenerator
	captioner ai.ImageCaptioner
}

// buildProviders selects embedding and generation backends from config.
// Captioning always goes through Gemini: it is the only wired provider with
// a vision endpoint.
func buildProviders(cfg Config) (providers, error) {
	var out providers

	var gemini *ai.GeminiClient
	needGemini := strings.EqualFold(cfg.EmbeddingProvider, "gemini") ||
		cfg.EmbeddingProvider == "" ||
		strings.EqualFold(cfg.GenerationProvider, "gemini") ||
		cfg.GenerationProvider == ""
	if needGemini {
		var err error
		gemini, err = ai.NewGeminiClient(cfg.GeminiAPIKey)
		if err != nil {
			return out, err
		}
	}

	if cfg.EmbeddingModel == "" {
		return out, fmt.Errorf("embedding model required")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.EmbeddingProvider)) {
	case "", "gemini":
		out.embedder = ai.NewGeminiEmbedder(gemini, cfg.EmbeddingModel)
	case "ollama":
		if cfg.EmbeddingDim <= 0 {
			return out, fmt.Errorf("embedding dim required for ollama")
		}
		ollama := ai.NewOllamaClient(cfg.EmbeddingBaseURL)
		out.embedder = ai.NewOllamaEmbedder(ollama, cfg.EmbeddingModel, cfg.EmbeddingDim)
	default:
		return out, fmt.Errorf("unknown embedding provider: %s", cfg.EmbeddingProvider)
	}

	if cfg.GenerationModel == "" {
		return out, fmt.Errorf("generation model required")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.GenerationProvider)) {
	case "", "gemini":
		out.generator = ai.NewGeminiGenerator(gemini, cfg.GenerationModel)
	case "ollama":
		ollama := ai.NewOllamaClient(cfg.GenerationBaseURL)
		out.generator = ai.NewOllamaGenerator(ollama, cfg.GenerationModel)
	case "openai", "openai-compat":
		out.generator = ai.NewOpenAICompatGenerator(cfg.GenerationBaseURL, cfg.GenerationAPIKey, cfg.GenerationModel)
	default:
		return out, fmt.Errorf("unknown generation provider: %s", cfg.GenerationProvider)
	}

	captionModel := cfg.CaptionModel
	if captionModel == "" {
		captionModel = cfg.GenerationModel
	}
	if gemini == nil {
		var err error
		gemini, err = ai.NewGeminiClient(cfg.GeminiAPIKey)
		if err != nil {
			return out, fmt.Errorf("captioning requires a gemini api key: %w", err)
		}
	}
	out.captioner = ai.NewGeminiCaptioner(gemini, captionModel)
	return out, nil
}
