package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"taskflow/ai"
	"taskflow/api"
	"taskflow/storage"
	"taskflow/store"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("could not load .env")
	}
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			log.WithError(err).Warn("tracer shutdown")
		}
	}()

	medium, closer, err := storage.Open(ctx, storage.BackendConfig{
		Backend:               os.Getenv("STORAGE_BACKEND"),
		RedisURL:              os.Getenv("REDIS_CONNECTION_STRING"),
		RedisPrefix:           os.Getenv("REDIS_PREFIX"),
		CacheTTL:              envDuration("CACHE_TTL", 5*time.Minute),
		SQLitePath:            envOr("SQLITE_PATH", "~/.taskflow/taskflow.db"),
		TableConnectionString: os.Getenv("STORAGE_CONNECTION_STRING"),
		TableName:             os.Getenv("KV_TABLE"),
	})
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	defer closer.Close()

	notificationsLimit := store.DefaultNotificationLimit
	if v := os.Getenv("NOTIFICATIONS_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			log.Fatalf("invalid NOTIFICATIONS_LIMIT: must be a positive integer")
		}
		notificationsLimit = n
	}
	loc := time.Local
	if tz := os.Getenv("TIMEZONE"); tz != "" {
		if loc, err = time.LoadLocation(tz); err != nil {
			log.Fatalf("invalid TIMEZONE: %v", err)
		}
	}
	now := func() time.Time { return time.Now().In(loc) }
	registry := store.NewRegistry(medium, notificationsLimit, store.WithClock(now))

	auth := newAuth()

	var deduper api.Deduper
	dedupTTL := envDuration("DEDUPER_TTL", 24*time.Hour)
	if conn := os.Getenv("REDIS_CONNECTION_STRING"); conn != "" {
		rc, err := storage.NewRedisClient(conn)
		if err != nil {
			log.Fatalf("deduper: %v", err)
		}
		defer rc.Close()
		deduper = api.NewRedisDeduper(rc, dedupTTL)
	} else {
		deduper = api.NewMemoryDeduper(dedupTTL)
	}

	models := ai.NewProvider(os.Getenv("GEMINI_API_KEY"), ai.GeminiConfig{
		TextModel:  os.Getenv("GEMINI_MODEL"),
		ImageModel: os.Getenv("GEMINI_IMAGE_MODEL"),
		TTSModel:   os.Getenv("GEMINI_TTS_MODEL"),
	})

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, echo.HeaderContentEncoding, api.IdempotencyHeader},
	}))

	api.Register(e, &api.Server{
		Workspaces: registry,
		Auth:       auth,
		Models:     models,
		Deduper:    deduper,
		Logger:     log.StandardLogger(),
		AITimeout:  envDuration("AI_TIMEOUT", api.DefaultAITimeout),
		Now:        now,
		Location:   loc,
	})

	listenAddr := envOr("LISTEN_ADDR", ":8080")
	go func() {
		if err := e.Start(listenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()
	log.WithField("addr", listenAddr).Info("taskflow listening")

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("shutdown")
	}
}

func newAuth() *api.Auth {
	if strings.EqualFold(os.Getenv("LOCAL_AUTH_MODE"), "hs256") {
		secret := os.Getenv("LOCAL_AUTH_SHARED_SECRET")
		if secret == "" {
			log.Fatal("LOCAL_AUTH_MODE=hs256 requires LOCAL_AUTH_SHARED_SECRET")
		}
		log.Warn("local HS256 auth enabled; do not use in production")
		return api.NewAuth(api.AuthConfig{SharedSecret: []byte(secret)})
	}

	audience := os.Getenv("AUTH0_AUDIENCE")
	domain := os.Getenv("AUTH0_DOMAIN")
	if audience == "" || domain == "" {
		log.Fatal("missing Auth0 config")
	}
	jwksURL := fmt.Sprintf("https://%s/.well-known/jwks.json", domain)
	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{RefreshInterval: time.Hour})
	if err != nil {
		log.Fatalf("jwks: %v", err)
	}
	return api.NewAuth(api.AuthConfig{JWKS: jwks, Audience: audience, Issuer: "https://" + domain + "/"})
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Fatalf("invalid %s: %q", key, v)
	}
	return d
}
