package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ryandielhenn/fifocache/internal/config"
	"github.com/ryandielhenn/fifocache/internal/logging"
	"github.com/ryandielhenn/fifocache/internal/telemetry"
	"github.com/ryandielhenn/fifocache/pkg/kv"
	"github.com/ryandielhenn/fifocache/pkg/node"
	"github.com/ryandielhenn/fifocache/pkg/registry"
	"github.com/ryandielhenn/fifocache/pkg/ring"
)

// Set with -ldflags "-X main.version=... -X main.gitSHA=...".
var (
	version = "dev"
	gitSHA  = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	telemetry.SetBuildInfo(version, gitSHA)

	// 1. Store, ring and node
	store := kv.NewStore(kv.Config{
		MaxEntries:      cfg.MaxEntries,
		TTL:             cfg.TTL,
		CleanupInterval: cfg.CleanupInterval,
	}, log)
	defer store.Close()

	n := node.NewNodeRF(store, ring.New(cfg.RingReplicas, ring.FNV32a), cfg.SelfID, cfg.SelfAddr, cfg.ReplicationFactor, log)
	n.SetPeers(nil)

	log.Info("boot",
		zap.String("id", cfg.SelfID),
		zap.String("addr", cfg.SelfAddr),
		zap.Int("max_entries", cfg.MaxEntries),
		zap.Duration("ttl", cfg.TTL),
		zap.Duration("cleanup_interval", cfg.CleanupInterval),
		zap.String("version", version),
	)

	// 2. Cluster membership
	if cfg.DiscoveryEnabled() {
		leave, err := joinCluster(ctx, cfg, n, log)
		if err != nil {
			return err
		}
		defer leave()
	} else {
		log.Info("etcd discovery disabled, running standalone")
	}

	// 3. HTTP
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           n.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("listen", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// joinCluster registers this node in etcd and keeps the ring in sync with
// the registered peers. The returned func deregisters the node.
func joinCluster(ctx context.Context, cfg config.Config, n *node.Node, log *zap.Logger) (func(), error) {
	cli, err := registry.NewClient(cfg.EtcdEndpoints, cfg.EtcdDialTimeout)
	if err != nil {
		return nil, err
	}

	leaseID, cancelKeepAlive, err := registry.RegisterNode(ctx, cli, cfg.EtcdPrefix, cfg.SelfID, n.Addr(), cfg.EtcdLeaseTTL)
	if err != nil {
		cli.Close()
		return nil, err
	}
	log.Info("registered with etcd", zap.Strings("endpoints", cfg.EtcdEndpoints), zap.Int64("lease", int64(leaseID)))

	err = registry.WatchPeers(ctx, cli, cfg.EtcdPrefix, log, func(peers map[string]string) {
		n.SetPeers(peers)
		log.Info("peers updated", zap.Int("count", len(peers)))
	})
	if err != nil {
		cancelKeepAlive()
		cli.Close()
		return nil, err
	}

	return func() {
		cancelKeepAlive()
		revokeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := cli.Revoke(revokeCtx, leaseID); err != nil {
			log.Warn("lease revoke failed", zap.Error(err))
		}
		cli.Close()
	}, nil
}
