// Command cachectl is an operator tool for inspecting and mutating a
// running cache deployment from outside any node process: get/put/evict/
// clear all go through a manager.Manager built just for the invocation, so
// a put or evict here is published to every live node exactly as it would
// be from inside one.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/j2cache-go/j2cache/env"
	"github.com/j2cache-go/j2cache/l2"
	"github.com/j2cache-go/j2cache/manager"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "cachectl",
		Short: "Inspect and mutate a j2cache deployment from the outside",
	}
	root.PersistentFlags().String("redis-addr", "", "redis address (env J2CACHE_REDIS_ADDR, default localhost:6379)")
	root.PersistentFlags().String("namespace", "", "L2 key namespace (env J2CACHE_NAMESPACE)")
	root.PersistentFlags().String("storage", "", "default L2 layout: generic or hash (env J2CACHE_STORAGE)")
	root.PersistentFlags().String("channel", "", "pub/sub channel name (env J2CACHE_CHANNEL)")
	root.PersistentFlags().String("log-level", "", "log level (env AGENTUITY_LOG_LEVEL)")

	root.AddCommand(newGetCmd(), newPutCmd(), newEvictCmd(), newClearCmd(), newKeysCmd())
	return root
}

func dialManager(cmd *cobra.Command) (*manager.Manager, func(), error) {
	log := env.NewLogger(cmd)
	redisAddr := env.FlagOrEnv(cmd, "redis-addr", "J2CACHE_REDIS_ADDR", "localhost:6379")
	namespace := env.FlagOrEnv(cmd, "namespace", "J2CACHE_NAMESPACE", "")
	storage := env.FlagOrEnv(cmd, "storage", "J2CACHE_STORAGE", string(l2.LayoutGeneric))
	channel := env.FlagOrEnv(cmd, "channel", "J2CACHE_CHANNEL", "j2cache:channel")

	client := redis.NewClient(&redis.Options{Addr: redisAddr})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("connecting to redis at %s: %w", redisAddr, err)
	}

	mgr, err := manager.New(context.Background(), manager.Deps{
		Pool:        l2.NewStaticPool(client),
		Channel:     client,
		ChannelName: channel,
		Namespace:   namespace,
		Logger:      log,
	}, manager.WithDefaultLayout(l2.Layout(storage)))
	if err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("connecting to manager: %w", err)
	}

	cleanup := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = mgr.Shutdown(shutdownCtx)
		client.Close()
	}
	return mgr, cleanup, nil
}

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <region> <key>",
		Short: "Fetch a single key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, cleanup, err := dialManager(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			v, ok, err := mgr.Get(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			if !ok {
				fmt.Println("(miss)")
				return nil
			}
			fmt.Printf("%v\n", v)
			return nil
		},
	}
}

func newPutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "put <region> <key> <value>",
		Short: "Store a key, updating L2 first and broadcasting an invalidation",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, cleanup, err := dialManager(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			ttl, err := cmd.Flags().GetDuration("ttl")
			if err != nil {
				return err
			}
			return mgr.PutTTL(cmd.Context(), args[0], args[1], args[2], ttl)
		},
	}
	cmd.Flags().Duration("ttl", 0, "entry TTL, 0 uses the region default")
	return cmd
}

func newEvictCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "evict <region> <key> [key...]",
		Short: "Remove one or more keys and broadcast the invalidation",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, cleanup, err := dialManager(cmd)
			if err != nil {
				return err
			}
			defer cleanup()
			return mgr.Evict(cmd.Context(), args[0], args[1:]...)
		},
	}
}

func newClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear <region>",
		Short: "Empty a region everywhere",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, cleanup, err := dialManager(cmd)
			if err != nil {
				return err
			}
			defer cleanup()
			return mgr.Clear(cmd.Context(), args[0])
		},
	}
}

func newKeysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keys <region>",
		Short: "List the keys currently known for a region",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, cleanup, err := dialManager(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			keys, err := mgr.Keys(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for _, k := range keys {
				fmt.Println(k)
			}
			return nil
		},
	}
}
