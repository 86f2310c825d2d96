package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/codearena/internal/config"
	"github.com/DoyleJ11/codearena/internal/httpapi"
	"github.com/DoyleJ11/codearena/internal/hub"
	"github.com/DoyleJ11/codearena/internal/logging"
	"github.com/DoyleJ11/codearena/internal/relay"
	"github.com/DoyleJ11/codearena/pkg/types"
)

func main() {
	cfg, err := config.LoadGateway()
	if err != nil {
		log.Fatal(err)
	}
	logger, err := logging.New(cfg.LogLevel, os.Getenv("GATEWAY_DEV") != "")
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	opts := []hub.Option{hub.WithLogger(logger)}
	var rel *relay.Redis
	if cfg.RedisAddr != "" {
		rel, err = relay.Connect(ctx, cfg.RedisAddr, logger)
		if err != nil {
			logger.Fatal("relay unavailable", zap.Error(err))
		}
		defer rel.Close()
		opts = append(opts, hub.WithRelay(rel))
	}

	h := hub.NewHub(ctx, opts...)
	if rel != nil {
		g.Go(func() error {
			return rel.Run(ctx, func(env types.Envelope) {
				h.Send(hub.Broadcast{Env: env, Remote: true})
			})
		})
	}
	serve(ctx, g, cfg, h, logger)

	if err := g.Wait(); err != nil {
		logger.Error("gateway stopped", zap.Error(err))
		os.Exit(1)
	}
}

func serve(ctx context.Context, g *errgroup.Group, cfg config.Gateway, h *hub.Hub, logger *zap.Logger) {
	// Build the router *with* the hub injected
	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: httpapi.SetupRoutes(h, httpapi.Options{
			OriginPatterns: cfg.Origins,
			NotifyToken:    cfg.NotifyToken,
			Log:            logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}
