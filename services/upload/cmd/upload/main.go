package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"papercast/internal/servicetoken"
	"papercast/internal/usertoken"
	"papercast/internal/util"
	"papercast/services/upload/internal/app"
	"papercast/services/upload/internal/config"
	"papercast/services/upload/internal/server"
	"papercast/services/upload/internal/wiring"
)

func main() {
	cfg, err := config.Load(config.Path())
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := util.InitLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := wiring.Open(cfg)
	if err != nil {
		log.Fatalf("failed to init dependencies: %v", err)
	}
	defer func() {
		if err := deps.Close(); err != nil {
			logger.Warn("close dependencies", "err", err)
		}
	}()

	appCore, err := app.New(app.Config{
		Store:    deps.Store,
		Objects:  deps.Objects,
		Notifier: deps.Notifier,
		Retry: app.NewBackoffRetry(app.BackoffRetryConfig{
			MaxRetries: uint64(cfg.CreateRetries),
		}),
		MaxUploadBytes: cfg.MaxUploadBytes,
		PresignExpiry:  cfg.PresignExpiry.Std(),
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	users, err := usertoken.NewVerifier(usertoken.Config{
		JWKSURL:    cfg.AuthJWKSURL,
		Issuer:     cfg.JWTIssuer,
		Audience:   cfg.JWTAudience,
		Leeway:     cfg.JWTLeeway.Std(),
		HTTPClient: &http.Client{Timeout: 5 * time.Second},
	})
	if err != nil {
		log.Fatalf("failed to init jwks verifier: %v", err)
	}
	identity := server.TokenIdentity{Users: users}
	if cfg.WorkerJWTPublicKeyPath != "" {
		workers, err := servicetoken.NewVerifier(servicetoken.VerifierOptions{
			PublicKeyPath:  cfg.WorkerJWTPublicKeyPath,
			AllowedIssuers: cfg.WorkerJWTIssuers,
		})
		if err != nil {
			log.Fatalf("failed to init worker token verifier: %v", err)
		}
		identity.Workers = workers
	} else {
		logger.Warn("worker token key not configured; worker endpoints accept admin tokens only")
	}

	trusted, err := util.NewTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		log.Fatalf("failed to parse trusted proxies: %v", err)
	}

	httpServer, err := server.New(server.Config{
		App:            appCore,
		Identity:       identity,
		UploadLimiter:  deps.Limiter,
		CORSOrigins:    cfg.CORSOrigins,
		TrustedProxies: trusted,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("upload server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		slog.Info("upload server shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		logger.Error("server error", "err", err)
	}
}
