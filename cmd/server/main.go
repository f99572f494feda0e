package main

import (
	"log"
	"log/slog"
	"net/http"
	"time"

	"docuchat/internal/app"
	"docuchat/internal/config"
	"docuchat/internal/server"
	"docuchat/internal/util"
	"docuchat/pkg/auth"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	leeway, err := config.ParseJWTLeeway(cfg.JWTLeeway)
	if err != nil {
		log.Fatalf("failed to parse JWT leeway: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	trustedProxies, err := util.NewTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		log.Fatalf("failed to parse trusted proxies: %v", err)
	}

	tokens, err := auth.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL(), auth.TokenOptions{
		Issuer: cfg.JWTIssuer,
		Leeway: leeway,
	})
	if err != nil {
		log.Fatalf("failed to init token issuer: %v", err)
	}

	appCore, err := app.New(app.Config{
		DatabaseURL:        cfg.DatabaseURL,
		MinioEndpoint:      cfg.MinioEndpoint,
		MinioAccessKey:     cfg.MinioAccessKey,
		MinioSecretKey:     cfg.MinioSecretKey,
		MinioBucket:        cfg.MinioBucket,
		MinioUseSSL:        cfg.MinioUseSSL,
		GeminiAPIKey:       cfg.GeminiAPIKey,
		EmbeddingProvider:  cfg.EmbeddingProvider,
		EmbeddingBaseURL:   cfg.EmbeddingBaseURL,
		EmbeddingModel:     cfg.EmbeddingModel,
		EmbeddingDim:       cfg.EmbeddingDim,
		GenerationProvider: cfg.GenerationProvider,
		GenerationBaseURL:  cfg.GenerationBaseURL,
		GenerationAPIKey:   cfg.GenerationAPIKey,
		GenerationModel:    cfg.GenerationModel,
		CaptionModel:       cfg.CaptionModel,
		ChunkSize:          cfg.ChunkSize,
		ChunkOverlap:       cfg.ChunkOverlap,
		TopK:               cfg.TopK,
		HistoryLimit:       cfg.HistoryLimit,
		CaptionMaxTokens:   cfg.CaptionMaxTokens,
		ReplyMaxTokens:     cfg.ReplyMaxTokens,
		IngestConcurrency:  cfg.IngestConcurrency,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	httpServer, err := server.New(server.Config{
		App:                      appCore,
		Tokens:                   tokens,
		TrustedProxies:           trustedProxies,
		RedisAddr:                cfg.RedisAddr,
		RedisPassword:            cfg.RedisPassword,
		AuthRateLimitPerMinute:   cfg.AuthRateLimitPerMinute,
		UploadRateLimitPerMinute: cfg.UploadRateLimitPerMinute,
		QueryRateLimitPerMinute:  cfg.QueryRateLimitPerMinute,
		MaxUploadBytes:           cfg.MaxUploadBytes,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	handler := util.WithRequestID(util.WithRequestLog("docuchat", httpServer.Router()))

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
