// Command cache-node boots a cache manager.Manager from process
// configuration and runs until terminated, keeping its L1 coherent with
// peers over the cache channel. It serves no RPC surface of its own — a
// real deployment embeds manager.Manager in a service process; this
// command exists to exercise and demonstrate the wiring end to end.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/j2cache-go/j2cache/env"
	"github.com/j2cache-go/j2cache/l1"
	"github.com/j2cache-go/j2cache/l2"
	"github.com/j2cache-go/j2cache/manager"
	"github.com/j2cache-go/j2cache/resilience"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

func main() {
	cmd := newRootCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache-node",
		Short: "Run a j2cache node, coherent with peers over a shared channel",
		RunE:  runNode,
	}
	cmd.Flags().String("redis-addr", "", "redis address (env J2CACHE_REDIS_ADDR, default localhost:6379)")
	cmd.Flags().String("namespace", "", "L2 key namespace (env J2CACHE_NAMESPACE)")
	cmd.Flags().String("storage", "", "default L2 layout: generic or hash (env J2CACHE_STORAGE)")
	cmd.Flags().String("channel", "", "pub/sub channel name (env J2CACHE_CHANNEL)")
	cmd.Flags().String("l1-ttl", "", "default L1 region TTL, e.g. 5m (env J2CACHE_L1_TTL)")
	cmd.Flags().String("l1-size", "", "default L1 region max entries, 0=unbounded (env J2CACHE_L1_SIZE)")
	cmd.Flags().String("log-level", "", "log level (env AGENTUITY_LOG_LEVEL)")
	cmd.Flags().String("otlp-url", "", "otlp endpoint url")
	cmd.Flags().String("otlp-shared-secret", "", "otlp shared secret")
	cmd.Flags().Bool("no-telemetry", true, "disable OTLP telemetry export")
	return cmd
}

func runNode(cmd *cobra.Command, _ []string) error {
	ctx, log, shutdownTelemetry, err := env.NewTelemetry(cmd.Context(), cmd, "cache-node")
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer shutdownTelemetry()

	redisAddr := env.FlagOrEnv(cmd, "redis-addr", "J2CACHE_REDIS_ADDR", "localhost:6379")
	namespace := env.FlagOrEnv(cmd, "namespace", "J2CACHE_NAMESPACE", "")
	storage := env.FlagOrEnv(cmd, "storage", "J2CACHE_STORAGE", string(l2.LayoutGeneric))
	channel := env.FlagOrEnv(cmd, "channel", "J2CACHE_CHANNEL", "j2cache:channel")
	l1ttl := env.FlagOrEnv(cmd, "l1-ttl", "J2CACHE_L1_TTL", "0")
	l1size := env.FlagOrEnv(cmd, "l1-size", "J2CACHE_L1_SIZE", "0")

	ttl, err := time.ParseDuration(l1ttl)
	if err != nil {
		return fmt.Errorf("parsing l1-ttl %q: %w", l1ttl, err)
	}
	maxEntries, err := strconv.Atoi(l1size)
	if err != nil {
		return fmt.Errorf("parsing l1-size %q: %w", l1size, err)
	}

	client := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer client.Close()
	// The store may still be starting up alongside us (e.g. in a compose
	// or k8s rollout), so give it a few chances before giving up.
	if err := resilience.Retry(ctx, resilience.DefaultRetryConfig(), func() error {
		return client.Ping(ctx).Err()
	}); err != nil {
		return fmt.Errorf("connecting to redis at %s: %w", redisAddr, err)
	}

	mgr, err := manager.New(ctx, manager.Deps{
		Pool:        l2.NewStaticPool(client),
		Channel:     client,
		ChannelName: channel,
		Namespace:   namespace,
		Logger:      log,
	},
		manager.WithDefaultLayout(l2.Layout(storage)),
		manager.WithDefaultL1Config(l1.RegionConfig{MaxEntries: maxEntries, TTL: ttl}),
	)
	if err != nil {
		return fmt.Errorf("starting manager: %w", err)
	}

	log.Info("cache-node started: sender=%s namespace=%s storage=%s channel=%s", mgr.SenderID(), namespace, storage, channel)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info("cache-node shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return mgr.Shutdown(shutdownCtx)
}
