package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/haileyok/findtofollow/bluesky"
	"github.com/haileyok/findtofollow/findtofollow"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"net/http"
	_ "net/http/pprof"
)

func main() {
	app := cli.App{
		Name:  "findtofollow",
		Usage: "suggest accounts to follow from the followers of another account",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "http-addr",
				EnvVars: []string{"FINDTOFOLLOW_HTTP_ADDR"},
				Value:   ":8080",
			},
			&cli.StringFlag{
				Name:    "pprof-addr",
				EnvVars: []string{"FINDTOFOLLOW_PPROF_ADDR"},
				Value:   ":10390",
			},
			&cli.StringFlag{
				Name:    "service-did",
				EnvVars: []string{"FINDTOFOLLOW_SERVICE_DID"},
			},
			&cli.StringFlag{
				Name:    "service-endpoint",
				EnvVars: []string{"FINDTOFOLLOW_SERVICE_ENDPOINT"},
			},
			&cli.StringFlag{
				Name:    "appview-host",
				EnvVars: []string{"FINDTOFOLLOW_APPVIEW_HOST"},
				Value:   bluesky.DefaultHost,
			},
			&cli.StringFlag{
				Name:    "plc-host",
				EnvVars: []string{"FINDTOFOLLOW_PLC_HOST"},
				Value:   "https://plc.directory",
			},
			&cli.Float64Flag{
				Name:    "api-rps",
				EnvVars: []string{"FINDTOFOLLOW_API_RPS"},
				Value:   10,
			},
			&cli.IntFlag{
				Name:    "max-follower-limit",
				EnvVars: []string{"FINDTOFOLLOW_MAX_FOLLOWER_LIMIT"},
				Value:   5_000,
			},
			&cli.StringFlag{
				Name:    "cache-backend",
				EnvVars: []string{"FINDTOFOLLOW_CACHE_BACKEND"},
				Value:   findtofollow.CacheBackendMemory,
				Usage:   "one of memory, clickhouse, redis",
			},
			&cli.StringFlag{
				Name:    "clickhouse-addr",
				EnvVars: []string{"FINDTOFOLLOW_CLICKHOUSE_ADDR"},
			},
			&cli.StringFlag{
				Name:    "clickhouse-database",
				EnvVars: []string{"FINDTOFOLLOW_CLICKHOUSE_DATABASE"},
				Value:   "default",
			},
			&cli.StringFlag{
				Name:    "clickhouse-user",
				EnvVars: []string{"FINDTOFOLLOW_CLICKHOUSE_USER"},
				Value:   "default",
			},
			&cli.StringFlag{
				Name:    "clickhouse-pass",
				EnvVars: []string{"FINDTOFOLLOW_CLICKHOUSE_PASS"},
			},
			&cli.StringFlag{
				Name:    "redis-addr",
				EnvVars: []string{"FINDTOFOLLOW_REDIS_ADDR"},
				Value:   "localhost:6379",
			},
			&cli.StringFlag{
				Name:    "redis-pass",
				EnvVars: []string{"FINDTOFOLLOW_REDIS_PASS"},
			},
			&cli.IntFlag{
				Name:    "redis-db",
				EnvVars: []string{"FINDTOFOLLOW_REDIS_DB"},
			},
			&cli.DurationFlag{
				Name:    "cache-ttl",
				EnvVars: []string{"FINDTOFOLLOW_CACHE_TTL"},
				Value:   7 * 24 * time.Hour,
			},
			&cli.IntFlag{
				Name:    "lru-size",
				EnvVars: []string{"FINDTOFOLLOW_LRU_SIZE"},
				Value:   50_000,
			},
			&cli.BoolFlag{
				Name:    "debug",
				EnvVars: []string{"FINDTOFOLLOW_DEBUG"},
			},
		},
		Before: func(cmd *cli.Context) error {
			if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}
			return nil
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		os.Exit(1)
	}
}

var run = func(cmd *cli.Context) error {
	ctx := cmd.Context
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	level := slog.LevelInfo
	if cmd.Bool("debug") {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))

	server, err := findtofollow.NewServer(ctx, findtofollow.ServerArgs{
		Logger:               logger,
		HttpAddr:             cmd.String("http-addr"),
		ServiceDid:           cmd.String("service-did"),
		ServiceEndpoint:      cmd.String("service-endpoint"),
		AppviewHost:          cmd.String("appview-host"),
		PLCHost:              cmd.String("plc-host"),
		APIRequestsPerSecond: cmd.Float64("api-rps"),
		MaxFollowerLimit:     cmd.Int("max-follower-limit"),
		CacheBackend:         cmd.String("cache-backend"),
		ClickhouseAddr:       cmd.String("clickhouse-addr"),
		ClickhouseDatabase:   cmd.String("clickhouse-database"),
		ClickhouseUser:       cmd.String("clickhouse-user"),
		ClickhousePass:       cmd.String("clickhouse-pass"),
		RedisAddr:            cmd.String("redis-addr"),
		RedisPass:            cmd.String("redis-pass"),
		RedisDB:              cmd.Int("redis-db"),
		CacheTTL:             cmd.Duration("cache-ttl"),
		LRUSize:              cmd.Int("lru-size"),
	})
	if err != nil {
		logger.Error("error creating server", "error", err)
		return err
	}

	go func() {
		exitSigs := make(chan os.Signal, 1)
		signal.Notify(exitSigs, syscall.SIGINT, syscall.SIGTERM)

		sig := <-exitSigs

		logger.Info("received os exit signal", "signal", sig)
		cancel()
	}()

	go func() {
		if err := http.ListenAndServe(cmd.String("pprof-addr"), nil); err != nil {
			logger.Error("error starting pprof", "error", err)
		}
	}()

	if err := server.Run(ctx); err != nil {
		logger.Error("error running server", "error", err)
	}

	return nil
}
