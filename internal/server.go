package internal

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/IBM/pgxpoolprometheus"
	"github.com/getsentry/sentry-go"
	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/multierr"

	"github.com/2beens/jaeronautics/internal/auth"
	"github.com/2beens/jaeronautics/internal/config"
	"github.com/2beens/jaeronautics/internal/db"
	"github.com/2beens/jaeronautics/internal/members"
	"github.com/2beens/jaeronautics/internal/middleware"
	"github.com/2beens/jaeronautics/internal/render"
	"github.com/2beens/jaeronautics/internal/session"
	"github.com/2beens/jaeronautics/internal/telemetry/metrics"
	"github.com/2beens/jaeronautics/internal/telemetry/tracing"
	"github.com/2beens/jaeronautics/pkg"
)

const serviceName = "jaeronautics"

type Server struct {
	httpServer        *http.Server
	metricsHttpServer *http.Server
	versionInfo       string

	config      *config.Config
	dbPool      *pgxpool.Pool
	redisClient *redis.Client

	sessions    *session.Manager
	renderer    *render.Renderer
	gate        *auth.Gate
	membersRepo members.Repository

	// metrics
	metricsManager *metrics.Manager
	promRegistry   *prometheus.Registry
	otelShutdown   func()
}

type NewServerParams struct {
	Config      *config.Config
	Secrets     *config.Secrets
	VersionInfo string
}

func NewServer(
	ctx context.Context,
	params NewServerParams,
) (*Server, error) {
	cfg := params.Config
	secrets := params.Secrets
	if secrets == nil {
		secrets = &config.Secrets{}
	}

	dbPool, err := db.NewDBPool(ctx, db.NewDBPoolParams{
		DBHost:         cfg.DBHost,
		DBPort:         cfg.DBPort,
		DBUser:         cfg.DBUser,
		DBPassword:     secrets.DBPassword,
		DBName:         cfg.DBName,
		ConnectTimeout: cfg.DBConnectTimeout,
		TracingEnabled: cfg.TracingEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("new db pool: %w", err)
	}

	// the members page reports db failures per request, a failed ping is not fatal
	if err := dbPool.Ping(ctx); err != nil {
		log.Warnf("failed to ping db: %s", err)
	}

	pgxpoolCollector := pgxpoolprometheus.NewCollector(
		dbPool,
		map[string]string{"db_name": cfg.DBName},
	)
	promRegistry := metrics.SetupPrometheus(pgxpoolCollector)
	metricsManager := metrics.NewManager("jaeronautics", "main", promRegistry)
	metricsManager.GaugeLifeSignal.Set(0)

	var rdb *redis.Client
	if cfg.SessionStore == config.SessionStoreRedis {
		rdb = redis.NewClient(&redis.Options{
			Addr:     net.JoinHostPort(cfg.RedisHost, cfg.RedisPort),
			Password: secrets.RedisPassword,
			DB:       0, // use default DB
		})

		rdbStatus := rdb.Ping(ctx)
		if err := rdbStatus.Err(); err != nil {
			log.Errorf("--> failed to ping redis: %s", err)
		} else {
			log.Debugf("redis ping: %s", rdbStatus.Val())
		}
	}

	// use honeycomb distro to setup OpenTelemetry SDK
	otelShutdown, err := tracing.HoneycombSetup(cfg.TracingEnabled, serviceName, rdb)
	if err != nil {
		dbPool.Close()
		return nil, err
	}

	secretKey := []byte(secrets.SecretKey)
	if len(secretKey) == 0 {
		log.Errorln("session secret key not set, use SECRET_KEY env var; sessions will not survive a restart")
		secretKey, err = pkg.GenerateRandomBytes(32)
		if err != nil {
			dbPool.Close()
			return nil, fmt.Errorf("generate session secret key: %w", err)
		}
	}

	sessionStore, err := session.NewStore(session.StoreParams{
		Backend:      cfg.SessionStore,
		SecretKey:    secretKey,
		CookieSecure: cfg.SessionCookieSecure,
		TTL:          cfg.SessionTTL,
		RedisClient:  rdb,
	})
	if err != nil {
		dbPool.Close()
		return nil, fmt.Errorf("new session store: %w", err)
	}
	sessions := session.NewManager(sessionStore, cfg.SessionCookieName)

	renderer, err := render.New(sessions)
	if err != nil {
		dbPool.Close()
		return nil, fmt.Errorf("new renderer: %w", err)
	}

	if secrets.AdminUsername == "" || secrets.AdminPassword == "" {
		log.Errorln("admin username and password not set, use ADMIN_USERNAME and ADMIN_PASSWORD env vars; every login will be rejected")
	}

	return &Server{
		config:      cfg,
		dbPool:      dbPool,
		redisClient: rdb,
		versionInfo: params.VersionInfo,

		sessions: sessions,
		renderer: renderer,
		gate: auth.NewGate(&auth.Admin{
			Username: secrets.AdminUsername,
			Password: secrets.AdminPassword,
		}, sessions),
		membersRepo: members.NewRepo(dbPool),

		// telemetry
		metricsManager: metricsManager,
		promRegistry:   promRegistry,
		otelShutdown:   otelShutdown,
	}, nil
}

func (s *Server) routerSetup() *mux.Router {
	r := mux.NewRouter()
	r.Use(otelmux.Middleware("main-router"))

	authHandler := auth.NewHandler(s.gate, s.renderer, s.metricsManager)
	authHandler.SetupRoutes(r)

	membersHandler := members.NewHandler(
		members.NewReader(s.membersRepo, s.metricsManager),
		s.renderer,
		s.sessions,
	)
	r.Handle(
		auth.MembersPath,
		middleware.RequireSession(s.gate)(http.HandlerFunc(membersHandler.HandleList)),
	).Methods("GET").Name("members")

	// all the rest - unhandled paths
	r.NotFoundHandler = otelhttp.NewHandler(
		middleware.PanicRecovery(s.metricsManager, s.renderer.ServerError)(http.HandlerFunc(s.renderer.NotFound)),
		"not-found",
	)

	// metrics wrap recovery so that panics are counted as 500s
	r.Use(middleware.RequestMetrics(s.metricsManager))
	r.Use(middleware.PanicRecovery(s.metricsManager, s.renderer.ServerError))
	r.Use(middleware.LogRequest())
	r.Use(middleware.DrainAndCloseRequest())

	return r
}

func (s *Server) Serve() {
	ipAndPort := net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))
	s.httpServer = &http.Server{
		Handler:      s.routerSetup(),
		Addr:         ipAndPort,
		ReadTimeout:  s.config.RequestTimeout,
		WriteTimeout: s.config.RequestTimeout,
		IdleTimeout:  s.config.IdleTimeout,
		ConnState:    s.connStateMetrics,
	}

	metricsRouter := mux.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.HandlerFor(
		s.promRegistry,
		promhttp.HandlerOpts{Registry: s.promRegistry},
	))
	metricsAddr := net.JoinHostPort(s.config.PrometheusMetricsHost, s.config.PrometheusMetricsPort)
	s.metricsHttpServer = &http.Server{
		Addr:              metricsAddr,
		Handler:           metricsRouter,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Infof(" > server listening on: [%s], version: [%s]", ipAndPort, s.versionInfo)
		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("main service, listen and serve: %s", err)
		}
	}()

	go func() {
		log.Debugf(" > metrics listening on: [%s]", metricsAddr)
		err := s.metricsHttpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("metrics service, listen and serve: %s", err)
		}
	}()

	s.metricsManager.GaugeLifeSignal.Set(1)
}

// GracefulShutdown stops accepting requests, waits for in-flight ones, then
// closes the backing clients. All errors are collected.
func (s *Server) GracefulShutdown() error {
	log.Debug("graceful shutdown initiated ...")
	s.metricsManager.GaugeLifeSignal.Set(0)

	maxWaitDuration := time.Second * 15
	ctx, timeoutCancel := context.WithTimeout(context.Background(), maxWaitDuration)
	defer timeoutCancel()

	var shutdownErr error
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			shutdownErr = multierr.Append(shutdownErr, fmt.Errorf("shutdown http server: %w", err))
		}
		log.Warnln("server shut down")
	}

	if s.metricsHttpServer != nil {
		if err := s.metricsHttpServer.Shutdown(ctx); err != nil {
			shutdownErr = multierr.Append(shutdownErr, fmt.Errorf("shutdown metrics http server: %w", err))
		}
		log.Warnln("metrics server shut down")
	}

	if s.otelShutdown != nil {
		s.otelShutdown()
		log.Trace("otel shut down ...")
	}

	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			shutdownErr = multierr.Append(shutdownErr, fmt.Errorf("close redis client: %w", err))
		}
	}

	if s.dbPool != nil {
		log.Debugln("closing db pool ...")
		s.dbPool.Close() // blocking operation
		log.Debugln("db pool closed")
	}

	if ok := sentry.Flush(5 * time.Second); ok {
		log.Debugf("sentry flush ok: %t", ok)
	}

	return shutdownErr
}

func (s *Server) connStateMetrics(_ net.Conn, state http.ConnState) {
	switch state {
	case http.StateNew:
		s.metricsManager.GaugeRequests.Add(1)
	case http.StateClosed:
		s.metricsManager.GaugeRequests.Add(-1)
	default:
		// do nothing
	}
}
