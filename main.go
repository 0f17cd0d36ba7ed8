package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"weekplan/api"
	"weekplan/blob"
	"weekplan/config"
	"weekplan/events"
	"weekplan/storage"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}
	logger := log.StandardLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tp := sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.AlwaysSample()))
	otel.SetTracerProvider(tp)
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			log.WithError(err).Warn("tracer shutdown")
		}
	}()

	base, closeStore, err := openBackend(ctx, cfg)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	defer closeStore()

	rc := redis.NewClient(redisOptions(cfg.RedisConnectionString))
	defer rc.Close()
	store := storage.NewCache(base, rc, cfg.TasksCacheTTL, cfg.SettingsCacheTTL)

	auth, err := newAuth(cfg)
	if err != nil {
		log.Fatalf("auth: %v", err)
	}

	deps := api.Deps{
		Store:         store,
		Auth:          auth,
		Idempotency:   api.NewRedisIdempotency(rc, cfg.IdempotencyTTL),
		Logger:        logger,
		MaxImageBytes: cfg.MaxImageBytes,
	}

	if cfg.EventsQueue != "" {
		if cfg.StorageConnectionString == "" {
			log.Fatal("EVENTS_QUEUE requires STORAGE_CONNECTION_STRING")
		}
		q, err := events.NewQueue(cfg.StorageConnectionString, cfg.EventsQueue)
		if err != nil {
			log.Fatalf("events queue: %v", err)
		}
		pub := events.NewPublisher(q, events.Options{
			Workers: cfg.EventsWorkers,
			Buffer:  cfg.EventsBuffer,
			Timeout: cfg.EventsTimeout,
			Handoff: events.DefaultOptions.Handoff,
		}, logger)
		defer pub.Close()
		deps.Events = pub
	}

	if cfg.StorageConnectionString != "" {
		images, err := blob.Open(cfg.StorageConnectionString, cfg.ImagesContainer, cfg.ImagesPublicURL, cfg.MaxImageBytes)
		if err != nil {
			log.Fatalf("images: %v", err)
		}
		deps.Images = images
	} else {
		log.Warn("STORAGE_CONNECTION_STRING not set, image uploads disabled")
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, "Idempotency-Key"},
	}))
	e.Use(echoprometheus.NewMiddleware("weekplan"))
	e.GET("/metrics", echoprometheus.NewHandler())

	api.Register(e, deps)

	go func() {
		if err := e.Start(cfg.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(sctx); err != nil {
		log.WithError(err).Error("server shutdown")
	}
}

func openBackend(ctx context.Context, cfg *config.Config) (storage.Backend, func(), error) {
	switch cfg.Backend {
	case config.BackendPostgres:
		pg, err := storage.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		return pg, func() { pg.Close() }, nil
	case config.BackendTables:
		t, err := storage.NewTables(cfg.StorageConnectionString, storage.TableNames{
			Tasks:     cfg.TasksTable,
			Notes:     cfg.NotesTable,
			Summaries: cfg.SummariesTable,
			Settings:  cfg.SettingsTable,
		})
		if err != nil {
			return nil, nil, err
		}
		return t, func() {}, nil
	}
	return nil, nil, fmt.Errorf("%w: %s", storage.ErrUnknownBackend, cfg.Backend)
}

// redisOptions accepts a redis:// URL or an Azure style
// "host:port,password=...,ssl=True" connection string.
func redisOptions(conn string) *redis.Options {
	opts, err := redis.ParseURL(conn)
	if err == nil {
		return opts
	}
	parts := strings.Split(conn, ",")
	opts = &redis.Options{Addr: parts[0]}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(kv[0]) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.ToLower(kv[1]) == "true" {
				opts.TLSConfig = &tls.Config{}
			}
		}
	}
	return opts
}

func newAuth(cfg *config.Config) (*api.Auth, error) {
	ac, err := api.AuthConfigFromEnv(os.Getenv)
	if err != nil {
		return nil, err
	}
	if ac.TestMode() {
		log.Warn("accepting HS256 tokens signed with a shared secret")
		return api.NewAuth(ac), nil
	}
	if cfg.Auth0Audience == "" || cfg.Auth0Domain == "" {
		return nil, errors.New("missing Auth0 config")
	}
	jwksURL := fmt.Sprintf("https://%s/.well-known/jwks.json", cfg.Auth0Domain)
	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{RefreshInterval: ac.KeyCacheTTL})
	if err != nil {
		return nil, fmt.Errorf("jwks: %w", err)
	}
	ac.JWKS = jwks
	ac.Audience = cfg.Auth0Audience
	ac.Issuer = "https://" + cfg.Auth0Domain + "/"
	return api.NewAuth(ac), nil
}
