package findtofollow

import (
	"context"
	"crypto"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/bluesky-social/indigo/atproto/identity"
	"github.com/haileyok/findtofollow/bluesky"
	"github.com/haileyok/findtofollow/finder"
	"github.com/haileyok/findtofollow/internal/helpers"
	"github.com/haileyok/findtofollow/store"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	slogecho "github.com/samber/slog-echo"
	"golang.org/x/time/rate"
)

type Server struct {
	httpd     *http.Server
	echo      *echo.Echo
	logger    *slog.Logger
	args      *ServerArgs
	keyCache  *lru.Cache[string, crypto.PublicKey]
	directory identity.Directory
	resolver  Resolver
	finder    *finder.Finder
	closers   []io.Closer
}

type ServerArgs struct {
	Logger               *slog.Logger
	HttpAddr             string
	ServiceDid           string
	ServiceEndpoint      string
	AppviewHost          string
	PLCHost              string
	APIRequestsPerSecond float64
	MaxFollowerLimit     int
	CacheBackend         string
	ClickhouseAddr       string
	ClickhouseDatabase   string
	ClickhouseUser       string
	ClickhousePass       string
	RedisAddr            string
	RedisPass            string
	RedisDB              int
	CacheTTL             time.Duration
	LRUSize              int
}

// Resolver turns handles into DIDs.
type Resolver interface {
	ResolveDid(ctx context.Context, actor string) (string, error)
}

const (
	CacheBackendMemory     = "memory"
	CacheBackendClickhouse = "clickhouse"
	CacheBackendRedis      = "redis"
)

func NewServer(ctx context.Context, args ServerArgs) (*Server, error) {
	if args.Logger == nil {
		args.Logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}

	cache, closers, err := openCache(ctx, args)
	if err != nil {
		return nil, err
	}

	client := bluesky.NewClient(bluesky.ClientArgs{
		Host:              args.AppviewHost,
		RequestsPerSecond: args.APIRequestsPerSecond,
		Logger:            args.Logger,
	})

	s := newServer(args, client, client, cache)
	s.closers = closers

	plcHost := args.PLCHost
	if plcHost == "" {
		plcHost = "https://plc.directory"
	}
	baseDir := identity.BaseDirectory{
		PLCURL: plcHost,
		HTTPClient: http.Client{
			Timeout: time.Second * 5,
		},
		PLCLimiter:            rate.NewLimiter(rate.Limit(10), 1),
		TryAuthoritativeDNS:   false,
		SkipDNSDomainSuffixes: []string{".bsky.social", ".staging.bsky.dev"},
	}
	dir := identity.NewCacheDirectory(&baseDir, 100_000, time.Hour*48, time.Minute*15, time.Minute*15)
	s.directory = &dir

	return s, nil
}

func newServer(args ServerArgs, api finder.SocialAPI, resolver Resolver, cache finder.ProfileCache) *Server {
	if args.Logger == nil {
		args.Logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}
	if args.MaxFollowerLimit <= 0 {
		args.MaxFollowerLimit = 5_000
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.RemoveTrailingSlash())
	e.Use(slogecho.New(args.Logger))
	e.Use(middleware.Recover())

	httpd := &http.Server{
		Addr:    args.HttpAddr,
		Handler: e,
	}

	kc, _ := lru.New[string, crypto.PublicKey](100_000)

	s := &Server{
		echo:     e,
		httpd:    httpd,
		args:     &args,
		logger:   args.Logger,
		keyCache: kc,
		resolver: resolver,
		finder: finder.New(finder.Args{
			API:    api,
			Cache:  cache,
			Logger: args.Logger,
		}),
	}
	s.addRoutes()

	return s
}

func openCache(ctx context.Context, args ServerArgs) (finder.ProfileCache, []io.Closer, error) {
	var (
		backing finder.ProfileCache
		closers []io.Closer
	)

	switch args.CacheBackend {
	case "", CacheBackendMemory:
		backing = store.NewMemory()
	case CacheBackendClickhouse:
		ch, err := store.OpenClickHouse(ctx, store.ClickHouseArgs{
			Addr:     args.ClickhouseAddr,
			Database: args.ClickhouseDatabase,
			User:     args.ClickhouseUser,
			Pass:     args.ClickhousePass,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open clickhouse: %w", err)
		}
		backing = ch
		closers = append(closers, ch)
	case CacheBackendRedis:
		r, err := store.OpenRedis(ctx, store.RedisArgs{
			Addr: args.RedisAddr,
			Pass: args.RedisPass,
			DB:   args.RedisDB,
			TTL:  args.CacheTTL,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open redis: %w", err)
		}
		backing = r
		closers = append(closers, r)
	default:
		return nil, nil, fmt.Errorf("unknown cache backend %q", args.CacheBackend)
	}

	if args.LRUSize <= 0 || args.CacheBackend == "" || args.CacheBackend == CacheBackendMemory {
		return backing, closers, nil
	}

	return store.NewLRU(backing, args.LRUSize, args.CacheTTL), closers, nil
}

func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		if err := s.httpd.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("error starting http server", "error", err)
			cancel()
		}
	}()

	s.logger.Info("http server listening", "addr", s.args.HttpAddr)

	<-ctx.Done()

	s.logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := s.httpd.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("error shutting down http server", "error", err)
	}

	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			s.logger.Error("error closing cache", "error", err)
		}
	}

	return nil
}

func (s *Server) addRoutes() {
	s.echo.GET("/api/findToFollow", s.handleFindToFollow)
	s.echo.GET("/xrpc/app.findtofollow.getCandidates", s.handleGetCandidates, s.handleAuthMiddleware)
	s.echo.GET("/.well-known/did.json", s.handleWellKnown)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

func (s *Server) handleAuthMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(e echo.Context) error {
		auth := e.Request().Header.Get("authorization")
		pts := strings.Split(auth, " ")
		if auth == "" || len(pts) != 2 || pts[0] != "Bearer" {
			return helpers.InputError(e, "AuthRequired", "")
		}

		did, err := s.checkJwt(e.Request().Context(), pts[1], getCandidatesMethod)
		if err != nil {
			return helpers.InputError(e, "AuthRequired", err.Error())
		}

		e.Set("did", did)

		return next(e)
	}
}
