package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"aarath-auction/internal/archive"
	"aarath-auction/internal/auctionapi"
	"aarath-auction/internal/auth"
	bidding "aarath-auction/internal/biddingService"
	"aarath-auction/internal/config"
	"aarath-auction/internal/realtime"
	"aarath-auction/internal/repository"
	"aarath-auction/internal/server"
	"aarath-auction/utils"

	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		utils.Fatal("failed to load configuration", map[string]any{"error": err.Error()})
	}
	if err := utils.SetLevel(cfg.LogLevel); err != nil {
		utils.Warn("unknown log level, keeping default", map[string]any{"level": cfg.LogLevel})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		utils.Fatal("server stopped with error", map[string]any{"error": err.Error()})
	}
	utils.Info("server stopped", nil)
}

func run(ctx context.Context, cfg config.Config) error {
	store, keys, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	opts := bidding.Options{
		MinIncrementPct:   cfg.MinIncrementPct,
		ActivityWindow:    cfg.ActivityWindow,
		ActivityRetention: cfg.ActivityRetention,
		ParticipantScope:  repository.ParticipantScope(cfg.ParticipantScope),
		Keys:              keys,
	}
	if cfg.ArchiveDSN != "" {
		arch, err := archive.Open(cfg.ArchiveDSN)
		if err != nil {
			return err
		}
		defer arch.Close()
		opts.Archive = arch
	}

	biddingSvc := bidding.NewBiddingService(store, opts)

	if cfg.AuctionAPIURL != "" {
		prepopulateAuctions(ctx, biddingSvc, auctionapi.NewClient(cfg.AuctionAPIURL, nil))
	}

	router := server.SetupRouter(biddingSvc, auth.NewVerifier(cfg.JWTSecret), cfg.HeartbeatInterval)
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		utils.Info("starting auction server", map[string]any{
			"addr":    srv.Addr,
			"backend": cfg.StoreBackend,
			"scope":   cfg.ParticipantScope,
			"node_id": keys.NodeID(),
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return biddingSvc.Reconciler(cfg.PresenceTTL).Run(gctx, cfg.ReconcileInterval)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		utils.Info("shutting down auction server", nil)
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// openStore connects the configured realtime backend and the key generator its
// instance draws push and bid keys from
func openStore(ctx context.Context, cfg config.Config) (realtime.Store, *realtime.KeyGenerator, error) {
	switch cfg.StoreBackend {
	case config.BackendRedis:
		client, err := realtime.NewRedisClient(cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		nodeID := cfg.NodeID
		if nodeID == config.AutoNodeID {
			if nodeID, err = realtime.AllocateNodeID(ctx, client); err != nil {
				_ = client.Close()
				return nil, nil, err
			}
		}
		keys, err := realtime.NewKeyGenerator(nodeID)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		store, err := realtime.NewRedisStore(ctx, client, realtime.WithKeyGenerator(keys), realtime.WithMaxRetries(100))
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return store, keys, nil
	default:
		nodeID := cfg.NodeID
		if nodeID == config.AutoNodeID {
			nodeID = 1
		}
		keys, err := realtime.NewKeyGenerator(nodeID)
		if err != nil {
			return nil, nil, err
		}
		return realtime.NewMemoryStore(realtime.WithKeyGenerator(keys), realtime.WithMaxRetries(100)), keys, nil
	}
}

// prepopulateAuctions creates a room for every active auction of the marketplace backend
func prepopulateAuctions(ctx context.Context, svc *bidding.BiddingService, client *auctionapi.Client) {
	auctions, err := client.ListActiveAuctions(ctx)
	if err != nil {
		utils.Warn("could not fetch active auctions", map[string]any{"error": err.Error()})
		return
	}

	seeded := 0
	for _, a := range auctions {
		if _, err := svc.InitializeAuctionRoom(ctx, a); err != nil {
			utils.Warn("skipping auction", map[string]any{"auction_id": a.AuctionKey(), "error": err.Error()})
			continue
		}
		seeded++
	}
	utils.Info("auction rooms prepopulated", map[string]any{"fetched": len(auctions), "seeded": seeded})
}
