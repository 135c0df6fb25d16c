package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/hfm/hfm/internal/config"
	"github.com/hfm/hfm/internal/domain/facility"
	"github.com/hfm/hfm/internal/domain/vitals"
	"github.com/hfm/hfm/internal/platform/api"
	"github.com/hfm/hfm/internal/platform/auth"
	"github.com/hfm/hfm/internal/platform/db"
	"github.com/hfm/hfm/internal/platform/middleware"
	"github.com/hfm/hfm/internal/platform/telemetry"
)

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	return logger
}

// routeRegistrar is implemented by every domain handler.
type routeRegistrar interface {
	RegisterRoutes(v1 *echo.Group)
}

type routerDeps struct {
	Logger        zerolog.Logger
	Config        *config.Config
	Metrics       *telemetry.Metrics
	Authenticator *auth.Authenticator
	Health        echo.HandlerFunc
	Routes        []routeRegistrar
}

// newRouter builds the HTTP stack. Authentication runs last so that
// throttled and oversized requests never reach the user store.
func newRouter(d routerDeps) *echo.Echo {
	cfg := d.Config

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = api.ErrorHandler(d.Logger)

	e.Use(middleware.Recovery(d.Logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(d.Logger))
	if len(cfg.CORSOrigins) > 0 {
		e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
			AllowOrigins: cfg.CORSOrigins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAuthorization, middleware.RequestIDHeader},
		}))
	}
	e.Use(middleware.BodyLimit(cfg.BodyLimitBytes()))
	e.Use(middleware.SecurityHeaders(!cfg.IsDev()))
	if cfg.RequestTimeout > 0 {
		e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	}
	if cfg.RateLimitRPS > 0 {
		e.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimitRPS,
			BurstSize:         cfg.RateLimitBurst,
			Skipper:           middleware.OnlyPaths("/api/v1/auth/login", "/api/v1/auth/refresh"),
		}))
	}
	routes := routeSet{}
	e.Use(routes.authenticate(d.Authenticator.Middleware()))

	if d.Health != nil {
		e.GET("/health", d.Health)
	}
	e.GET("/metrics", d.Metrics.Handler())

	v1 := e.Group("/api/v1")
	for _, r := range d.Routes {
		r.RegisterRoutes(v1)
	}
	for _, r := range e.Routes() {
		routes[r.Method+" "+r.Path] = true
	}
	return e
}

// routeSet holds every registered "METHOD /path" pattern. It is filled
// before the server starts and only read afterwards.
type routeSet map[string]bool

// authenticate runs authn only for requests that matched a route, so an
// unknown path or method answers 404 or 405 rather than 401.
func (rs routeSet) authenticate(authn echo.MiddlewareFunc) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		protected := authn(next)
		return func(c echo.Context) error {
			if !rs[c.Request().Method+" "+c.Path()] {
				return next(c)
			}
			return protected(c)
		}
	}
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	for _, w := range cfg.Warnings() {
		logger.Warn().Msg(w)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, db.PoolConfig{
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	})
	if err != nil {
		return err
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	metrics := telemetry.NewMetrics()
	txm := db.NewTxManager(pool)
	users := facility.NewUserRepo(pool)
	orgs := facility.NewOrgRepo(pool)
	hasher := auth.NewBcryptHasher(cfg.BcryptCost)

	issuer, err := newTokenIssuer(cfg)
	if err != nil {
		return err
	}
	resolver := auth.NewResolver(users)

	var denylist auth.Denylist
	if cfg.RedisURL != "" {
		rd, err := auth.NewRedisDenylistFromURL(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rd.Close()
		denylist = rd
		logger.Info().Msg("token revocation backed by redis")
	} else {
		md := auth.NewMemoryDenylist(time.Minute)
		defer md.Close()
		denylist = md
	}

	var publisher vitals.AlertPublisher = vitals.NopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		publisher = vitals.NewKafkaAlertPublisher(cfg.KafkaBrokers, cfg.KafkaAlertTopic)
		logger.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaAlertTopic).Msg("publishing health alerts")
	}
	defer publisher.Close()

	sessions := auth.NewSessionService(users, auth.NewCredentialVerifier(hasher), issuer, resolver, denylist)
	vitalsSvc := vitals.NewService(vitals.ServiceConfig{
		Measurements: vitals.NewMeasurementRepo(pool),
		Alerts:       vitals.NewAlertRepo(pool),
		Users:        users,
		Tx:           txm,
		Publisher:    publisher,
		Metrics:      metrics,
		Logger:       logger,
	})

	e := newRouter(routerDeps{
		Logger:  logger,
		Config:  cfg,
		Metrics: metrics,
		Authenticator: auth.NewAuthenticator(auth.AuthenticatorConfig{
			Tokens:   issuer,
			Resolver: resolver,
			Denylist: denylist,
			Metrics:  metrics,
			Logger:   logger,
			Skipper:  auth.AuthSkipper,
		}),
		Health: db.HealthHandler(pool, logger),
		Routes: []routeRegistrar{
			auth.NewHandler(sessions, metrics, logger),
			facility.NewHandler(facility.NewService(users, orgs, txm, hasher), metrics),
			vitals.NewHandler(vitalsSvc, metrics),
		},
	})

	addr := ":" + cfg.Port
	go func() {
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
