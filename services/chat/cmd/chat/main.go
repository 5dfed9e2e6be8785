package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"scripturechat/internal/ratelimit"
	"scripturechat/internal/usertoken"
	"scripturechat/internal/util"
	"scripturechat/pkg/queue"
	"scripturechat/pkg/storage"
	"scripturechat/services/chat/internal/app"
	"scripturechat/services/chat/internal/config"
	"scripturechat/services/chat/internal/server"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, cleanup := util.InitLogger(cfg.LogLevel, "chat", cfg.LogsDir, "../../logs")
	if cleanup != nil {
		defer cleanup()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var tokenVerifier *usertoken.Verifier
	if cfg.AuthJWKSURL != "" {
		jwtLeeway, err := config.ParseJWTLeeway(cfg.JWTLeeway)
		if err != nil {
			util.Fatal("failed to parse jwt leeway", "err", err)
		}
		tokenVerifier, err = usertoken.NewVerifier(usertoken.Config{
			JWKSURL:    cfg.AuthJWKSURL,
			Issuer:     cfg.JWTIssuer,
			Audience:   cfg.JWTAudience,
			Leeway:     jwtLeeway,
			HTTPClient: &http.Client{Timeout: 5 * time.Second},
		})
		if err != nil {
			util.Fatal("failed to init jwks verifier", "err", err)
		}
	} else {
		logger.Warn("no authJwksURL configured, trusting X-User-Id header")
	}

	var archive storage.TranscriptArchive
	if cfg.MinioEndpoint != "" {
		archive, err = storage.NewMinioArchive(context.Background(), storage.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			util.Fatal("failed to init transcript archive", "err", err)
		}
	}

	var historyStream *queue.HistoryStream
	var history app.HistoryRecorder
	if cfg.HistoryQueueStream != "" {
		historyStream, err = queue.NewHistoryStream(queue.HistoryStreamConfig{
			Addr:        cfg.RedisAddr,
			Password:    cfg.RedisPassword,
			Stream:      cfg.HistoryQueueStream,
			Group:       cfg.HistoryQueueGroup,
			MaxAttempts: cfg.HistoryQueueMaxRetries,
		})
		if err != nil {
			util.Fatal("failed to init history stream", "err", err)
		}
		defer historyStream.Close()
		history = historyStream
	}

	appCore, err := app.New(app.Config{
		DatabaseURL:        cfg.DatabaseURL,
		RedisAddr:          cfg.RedisAddr,
		RedisPassword:      cfg.RedisPassword,
		BibleAPIURL:        cfg.BibleAPIURL,
		Translation:        cfg.Translation,
		VerseCacheTTL:      config.Seconds(cfg.VerseCacheTTLSeconds),
		GenerationProvider: cfg.GenerationProvider,
		GenerationBaseURL:  cfg.GenerationBaseURL,
		GenerationAPIKey:   cfg.GenerationAPIKey,
		GenerationModel:    cfg.GenerationModel,
		History:            history,
		Archive:            archive,
		Commentators:       cfg.Commentators,
		CommentatorSplit:   cfg.CommentatorSplit,
		LookupTimeout:      config.Seconds(cfg.LookupTimeoutSeconds),
		GenerationTimeout:  config.Seconds(cfg.GenerationTimeoutSeconds),
		ArchiveURLExpiry:   config.Seconds(cfg.ArchiveURLExpirySeconds),
	})
	if err != nil {
		util.Fatal("failed to init app", "err", err)
	}
	defer appCore.Close()

	var limiter ratelimit.Limiter
	if cfg.MessageRateLimitPerMinute > 0 {
		limiter, err = newLimiter(cfg, "scripturechat:ratelimit:messages", cfg.MessageRateLimitPerMinute)
		if err != nil {
			util.Fatal("failed to init message limiter", "err", err)
		}
	}

	var searchLimiter ratelimit.Limiter
	if cfg.SearchRateLimitPerMinute > 0 {
		searchLimiter, err = newLimiter(cfg, "scripturechat:ratelimit:search", cfg.SearchRateLimitPerMinute)
		if err != nil {
			util.Fatal("failed to init search limiter", "err", err)
		}
	}
	trustedProxies, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		util.Fatal("invalid trustedProxyCidrs", "err", err)
	}

	httpServer := server.New(server.Config{
		App:            appCore,
		TokenVerifier:  tokenVerifier,
		MessageLimiter: limiter,
		SearchLimiter:  searchLimiter,
		TrustedProxies: trustedProxies,
		AllowedOrigins: cfg.CORSOrigins,
	})

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	if historyStream != nil {
		g.Go(func() error {
			slog.Info("history stream consumer started", "stream", cfg.HistoryQueueStream)
			return historyStream.Run(gctx, cfg.HistoryQueueConcurrency, appCore.PersistHistory)
		})
	}
	g.Go(func() error {
		slog.Info("chat server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		logger.Error("server error", "err", err)
	}
}

func newLimiter(cfg config.FileConfig, prefix string, perMinute int) (ratelimit.Limiter, error) {
	if cfg.RedisAddr != "" {
		return ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, prefix, perMinute, time.Minute)
	}
	return ratelimit.NewMemoryFixedWindowLimiter(perMinute, time.Minute)
}
