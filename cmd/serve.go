package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"SponsorPay/internal/config"
	"SponsorPay/internal/db"
	"SponsorPay/internal/handler"
	"SponsorPay/internal/listener"
	"SponsorPay/internal/metrics"
	"SponsorPay/internal/middleware"
	"SponsorPay/internal/services"
	"SponsorPay/utils"
)

func newServeCmd() *cobra.Command {
	var configFile string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the transfer endpoint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), configFile)
		},
	}
	cmd.Flags().StringVarP(&configFile, "config", "c", "", "config file (default ./config.yaml)")
	return cmd
}

func runServe(parent context.Context, configFile string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	utils.InitLogger(cfg.App.LogLevel, cfg.App.LogPretty)
	metrics.Register()

	key, err := loadSponsorKey(cfg.Solana)
	if err != nil {
		return err
	}

	conn, err := db.Open(cfg.Storage)
	if err != nil {
		return fmt.Errorf("数据库初始化失败: %w", err)
	}
	store := db.NewStore(conn)
	log.Info().Str("driver", cfg.Storage.Driver).Msg("Database ready")

	node := services.NewNode(cfg.Solana.RPCURL)
	commitment := rpc.CommitmentType(cfg.Solana.Commitment)
	sponsor := services.NewSponsor(node, key, store, services.Options{
		Commitment:         commitment,
		ConfirmTimeout:     cfg.Solana.ConfirmTimeout,
		PollInterval:       cfg.Solana.PollInterval,
		ExplorerCluster:    cfg.Solana.ExplorerCluster,
		AllowSponsorFunded: cfg.Solana.AllowSponsorFunded,
	})

	var transferMiddleware []gin.HandlerFunc
	if cfg.Redis.URL != "" {
		rdb, err := newRedisClient(parent, cfg.Redis.URL)
		if err != nil {
			return err
		}
		defer rdb.Close()
		transferMiddleware = append(transferMiddleware, middleware.Idempotency(rdb, cfg.Redis.IdempotencyTTL))
		log.Info().Dur("ttl", cfg.Redis.IdempotencyTTL).Msg("Idempotency enabled")
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	reconciler := listener.New(store, node, listener.Options{
		Commitment:  commitment,
		GracePeriod: cfg.Solana.ConfirmTimeout,
		ExpireAfter: cfg.Reconcile.ExpireAfter,
		BatchSize:   cfg.Reconcile.BatchSize,
	})
	go reconciler.Start(ctx, cfg.Reconcile.Interval)

	gin.SetMode(gin.ReleaseMode)
	r := handler.NewRouter(&handler.Handler{
		Sponsor:         sponsor,
		Node:            node,
		Store:           store,
		ExplorerCluster: cfg.Solana.ExplorerCluster,
	}, transferMiddleware...)

	srv := &http.Server{
		Addr:              cfg.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Graceful shutdown failed")
		}
	}()

	log.Info().Str("addr", srv.Addr).Str("rpc", cfg.Solana.RPCURL).Str("sponsor", sponsor.Address()).Msg("Server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: %w", err)
	}
	log.Info().Msg("Server stopped")
	return nil
}

// loadSponsorKey returns a nil key when none is configured: the server still
// starts and the transfer endpoint answers 500 until a key is provided.
func loadSponsorKey(cfg config.Solana) (solana.PrivateKey, error) {
	key, err := services.LoadPrivateKey(cfg.SponsorSecret, cfg.SponsorKeyfile)
	if errors.Is(err, services.ErrSponsorNotConfigured) {
		log.Warn().Msg("solana.sponsor_secret and solana.sponsor_keyfile are empty, transfers will fail")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load sponsor key: %w", err)
	}
	return key, nil
}

func newRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}
