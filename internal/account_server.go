package internal

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/2beens/workoutsync/internal/accountstore"
	"github.com/2beens/workoutsync/internal/config"
	"github.com/2beens/workoutsync/internal/db"
	"github.com/2beens/workoutsync/internal/middleware"
	"github.com/2beens/workoutsync/internal/telemetry/metrics"
	"github.com/2beens/workoutsync/internal/telemetry/tracing"

	"github.com/IBM/pgxpoolprometheus"
	"github.com/getsentry/sentry-go"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
)

// AccountServer serves the user documents the sync service mirrors.
type AccountServer struct {
	httpServer        *http.Server
	metricsHttpServer *http.Server

	config *config.Config
	dbPool *pgxpool.Pool
	repo   *accountstore.Repo

	metricsManager *metrics.Manager
	promRegistry   *prometheus.Registry
	otelShutdown   func()
}

type NewAccountServerParams struct {
	Config *config.Config
	// MigrateSchema creates the account document table when missing
	MigrateSchema bool
}

func NewAccountServer(ctx context.Context, params NewAccountServerParams) (*AccountServer, error) {
	cfg := params.Config

	otelShutdown, err := tracing.HoneycombSetup(cfg.HoneycombTracingEnabled, "workoutsync-account-service")
	if err != nil {
		return nil, err
	}

	dbPool, err := db.NewDBPool(ctx, db.NewDBPoolParams{
		DBHost:         cfg.PostgresHost,
		DBPort:         cfg.PostgresPort,
		DBName:         cfg.PostgresDBName,
		DBUser:         cfg.PostgresUser,
		DBPassword:     cfg.PostgresPassword,
		TracingEnabled: cfg.HoneycombTracingEnabled,
	})
	if err != nil {
		otelShutdown()
		return nil, fmt.Errorf("new db pool: %w", err)
	}

	repo := accountstore.NewRepo(dbPool)
	if params.MigrateSchema {
		if err := repo.EnsureSchema(ctx); err != nil {
			dbPool.Close()
			otelShutdown()
			return nil, err
		}
		log.Debugln("account store schema ensured")
	}

	pgxpoolCollector := pgxpoolprometheus.NewCollector(
		dbPool,
		map[string]string{"db_name": cfg.PostgresDBName},
	)
	promRegistry := metrics.SetupPrometheus(pgxpoolCollector)
	metricsManager := metrics.NewManager("workoutsync", "account", promRegistry)

	return &AccountServer{
		config:         cfg,
		dbPool:         dbPool,
		repo:           repo,
		metricsManager: metricsManager,
		promRegistry:   promRegistry,
		otelShutdown:   otelShutdown,
	}, nil
}

func (s *AccountServer) routerSetup() *mux.Router {
	r := mux.NewRouter()
	r.Use(otelmux.Middleware("account-router"))

	accountstore.NewHandler(s.repo).SetupRoutes(r)

	r.Use(middleware.PanicRecovery(s.metricsManager))
	r.Use(middleware.LogRequest())
	r.Use(middleware.RequestMetrics(s.metricsManager))

	return r
}

func (s *AccountServer) Serve(host string, port int) {
	ipAndPort := net.JoinHostPort(host, strconv.Itoa(port))
	s.httpServer = &http.Server{
		Handler:      s.routerSetup(),
		Addr:         ipAndPort,
		WriteTimeout: time.Minute,
		ReadTimeout:  time.Minute,
	}
	s.metricsHttpServer = newMetricsServer(s.promRegistry, net.JoinHostPort(host, strconv.Itoa(s.config.AccountMetricsPort)))

	go func() {
		log.Infof(" > account service listening on: [%s]", ipAndPort)
		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("account service, listen and serve: %s", err)
		}
	}()

	go func() {
		log.Debugf(" > account metrics listening on: [%s]", s.metricsHttpServer.Addr)
		err := s.metricsHttpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("account metrics service, listen and serve: %s", err)
		}
	}()

	s.metricsManager.GaugeLifeSignal.Set(1)
}

func (s *AccountServer) GracefulShutdown() {
	log.Debug("account service graceful shutdown initiated ...")
	s.metricsManager.GaugeLifeSignal.Set(0)

	ctx, timeoutCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer timeoutCancel()

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			log.Error(" >>> failed to gracefully shutdown account http server")
		}
	}
	if s.metricsHttpServer != nil {
		if err := s.metricsHttpServer.Shutdown(ctx); err != nil {
			log.Error(" >>> failed to gracefully shutdown account metrics http server")
		}
	}

	log.Debugln("closing db pool ...")
	s.dbPool.Close() // blocking operation
	log.Debugln("db pool closed")

	s.otelShutdown()

	if ok := sentry.Flush(5 * time.Second); ok {
		log.Debugf("sentry flush ok: %t", ok)
	}
}
