package internal

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/2beens/workoutsync/internal/account"
	"github.com/2beens/workoutsync/internal/config"
	"github.com/2beens/workoutsync/internal/localcache"
	"github.com/2beens/workoutsync/internal/middleware"
	"github.com/2beens/workoutsync/internal/outbox"
	"github.com/2beens/workoutsync/internal/progress"
	"github.com/2beens/workoutsync/internal/telemetry/metrics"
	"github.com/2beens/workoutsync/internal/telemetry/tracing"

	"github.com/getsentry/sentry-go"
	"github.com/go-redis/redis/extra/redisotel/v8"
	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redis_rate/v9"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
)

// Server is the device side sync API: presentation controllers call it to
// complete workouts and record statistics.
type Server struct {
	httpServer        *http.Server
	metricsHttpServer *http.Server

	config       *config.Config
	redisClient  *redis.Client
	store        localcache.Store
	synchronizer *progress.Synchronizer

	outbox       *outbox.Queue
	outboxCancel context.CancelFunc
	outboxDone   chan struct{}

	// telemetry
	metricsManager *metrics.Manager
	promRegistry   *prometheus.Registry
	otelShutdown   func()
}

type NewServerParams struct {
	Config *config.Config
	// NowFunc overrides the clock of the synchronizer, nil means time.Now
	NowFunc func() time.Time
}

func NewServer(ctx context.Context, params NewServerParams) (*Server, error) {
	cfg := params.Config

	// use honeycomb distro to setup OpenTelemetry SDK
	otelShutdown, err := tracing.HoneycombSetup(cfg.HoneycombTracingEnabled, "workoutsync-service")
	if err != nil {
		return nil, err
	}

	promRegistry := metrics.SetupPrometheus()
	metricsManager := metrics.NewManager("workoutsync", "sync", promRegistry)
	metricsManager.GaugeLifeSignal.Set(0)

	s := &Server{
		config:         cfg,
		metricsManager: metricsManager,
		promRegistry:   promRegistry,
		otelShutdown:   otelShutdown,
	}

	if s.needsRedis() {
		s.redisClient = newRedisClient(ctx, cfg)
	}

	s.store, err = newLocalStore(cfg, s.redisClient)
	if err != nil {
		s.closeRedis()
		return nil, fmt.Errorf("local cache: %w", err)
	}

	cards, err := progress.LoadCardRegistry(ctx, s.store)
	if err != nil {
		s.closeRedis()
		return nil, err
	}
	log.Debugf("card registry loaded with %d cards", cards.Len())

	syncParams := progress.SynchronizerParams{
		Store:              s.store,
		Cards:              cards,
		MetricsManager:     metricsManager,
		Location:           cfg.Location(),
		MaxConflictRetries: cfg.MaxConflictRetries,
		NowFunc:            params.NowFunc,
	}

	if cfg.AccountServiceURL == "" {
		log.Warnln("account service url not set, remote sync disabled")
	} else {
		accountClient := account.NewClient(cfg.AccountServiceURL, nil, cfg.AccountServiceTimeout)
		if cfg.OutboxEnabled {
			outboxParams := outbox.Params{
				Account:         accountClient,
				PushesPerMinute: cfg.OutboxPushesPerMinute,
				MaxRetries:      uint64(cfg.OutboxMaxRetries),
				InitialInterval: cfg.OutboxInitialInterval,
				MetricsManager:  metricsManager,
			}
			if s.redisClient != nil {
				outboxParams.RateLimiter = redis_rate.NewLimiter(s.redisClient)
			}
			s.outbox = outbox.NewQueue(outboxParams)
			syncParams.Remote = s.outbox
		} else {
			syncParams.Remote = accountClient
		}
	}

	s.synchronizer = progress.NewSynchronizer(syncParams)
	return s, nil
}

func (s *Server) needsRedis() bool {
	return s.config.LocalCacheBackend == "redis" ||
		s.config.RequestsPerMinute > 0 ||
		(s.config.OutboxEnabled && s.config.OutboxPushesPerMinute > 0)
}

func newRedisClient(ctx context.Context, cfg *config.Config) *redis.Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:     net.JoinHostPort(cfg.RedisHost, cfg.RedisPort),
		Password: cfg.RedisPassword,
		DB:       0, // use default DB
	})
	rdb.AddHook(redisotel.NewTracingHook())

	rdbStatus := rdb.Ping(ctx)
	if err := rdbStatus.Err(); err != nil {
		log.Errorf("--> failed to ping redis: %s", err)
	} else {
		log.Debugf("redis ping: %s", rdbStatus.Val())
	}
	return rdb
}

func newLocalStore(cfg *config.Config, rdb *redis.Client) (localcache.Store, error) {
	switch cfg.LocalCacheBackend {
	case "redis":
		return localcache.NewRedisStore(rdb, cfg.DeviceID), nil
	case "memory":
		log.Warnln("using in-memory local cache, documents are lost on restart")
		return localcache.NewMemoryStore(cfg.LocalCacheMemMB, cfg.DeviceID), nil
	case "disk":
		return localcache.NewDiskStore(cfg.LocalCacheDiskDir, cfg.DeviceID)
	default:
		return nil, fmt.Errorf("unknown local cache backend: %s", cfg.LocalCacheBackend)
	}
}

func (s *Server) routerSetup() *mux.Router {
	r := mux.NewRouter()
	r.Use(otelmux.Middleware("sync-router"))

	progress.NewHandler(s.synchronizer).SetupRoutes(r)

	r.Use(middleware.PanicRecovery(s.metricsManager))
	r.Use(middleware.LogRequest())
	r.Use(middleware.RequestMetrics(s.metricsManager))
	r.Use(middleware.Cors(s.config.AllowedOrigins))
	if s.config.RequestsPerMinute > 0 && s.redisClient != nil {
		r.Use(middleware.RateLimit(redis_rate.NewLimiter(s.redisClient), "sync-api", s.config.RequestsPerMinute))
	}

	return r
}

func (s *Server) Serve(host string, port int) {
	ipAndPort := net.JoinHostPort(host, strconv.Itoa(port))
	s.httpServer = &http.Server{
		Handler:      s.routerSetup(),
		Addr:         ipAndPort,
		WriteTimeout: time.Minute,
		ReadTimeout:  time.Minute,
	}
	s.metricsHttpServer = newMetricsServer(s.promRegistry, net.JoinHostPort(host, strconv.Itoa(s.config.MetricsPort)))

	if s.outbox != nil {
		var outboxCtx context.Context
		outboxCtx, s.outboxCancel = context.WithCancel(context.Background())
		s.outboxDone = make(chan struct{})
		go func() {
			defer close(s.outboxDone)
			s.outbox.Run(outboxCtx)
		}()
	}

	go func() {
		log.Infof(" > server listening on: [%s]", ipAndPort)
		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("sync service, listen and serve: %s", err)
		}
	}()

	go func() {
		log.Debugf(" > metrics listening on: [%s]", s.metricsHttpServer.Addr)
		err := s.metricsHttpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("metrics service, listen and serve: %s", err)
		}
	}()

	s.metricsManager.GaugeLifeSignal.Set(1)
}

func newMetricsServer(promRegistry *prometheus.Registry, addr string) *http.Server {
	metricsRouter := mux.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.InstrumentMetricHandler(
		promRegistry,
		promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}),
	))
	return &http.Server{
		Addr:              addr,
		Handler:           metricsRouter,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func (s *Server) closeRedis() {
	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			log.Errorf("failed to close redis client conn: %s", err)
		}
	}
}

func (s *Server) GracefulShutdown() {
	log.Debug("graceful shutdown initiated ...")
	s.metricsManager.GaugeLifeSignal.Set(0)

	maxWaitDuration := time.Second * 15
	ctx, timeoutCancel := context.WithTimeout(context.Background(), maxWaitDuration)
	defer timeoutCancel()

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			log.Error(" >>> failed to gracefully shutdown http server")
		}
		log.Warnln("server shut down")
	}

	if s.outbox != nil {
		if s.outboxCancel != nil {
			s.outboxCancel()
			<-s.outboxDone
		}
		// last chance for pending pushes, the local cache has them anyway
		if err := s.outbox.ProcessPending(ctx); err != nil {
			log.Errorf("outbox flush: %s", err)
		}
		log.Debugf("outbox flushed, %d jobs left", s.outbox.Len())
	}

	if s.metricsHttpServer != nil {
		if err := s.metricsHttpServer.Shutdown(ctx); err != nil {
			log.Error(" >>> failed to gracefully shutdown metrics http server")
		}
		log.Warnln("metrics server shut down")
	}

	s.closeRedis()

	s.otelShutdown()
	log.Trace("otel shut down ...")

	if ok := sentry.Flush(5 * time.Second); ok {
		log.Debugf("sentry flush ok: %t", ok)
	}
}
