//go:build integration_test || all_tests

package test

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/2beens/workoutsync/internal"
	"github.com/2beens/workoutsync/internal/accountstore"
	"github.com/2beens/workoutsync/internal/config"
	"github.com/2beens/workoutsync/internal/localcache"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/stretchr/testify/suite"
)

const (
	serverHost         = "127.0.0.1"
	serverPort         = 9100
	metricsPort        = 2112
	accountServerPort  = 9200
	accountMetricsPort = 2113
	testDeviceID       = "it-device"
	testUserAgent      = "WorkoutSync/it"
)

var (
	serverEndpoint        = fmt.Sprintf("http://%s:%d", serverHost, serverPort)
	accountServerEndpoint = fmt.Sprintf("http://%s:%d", serverHost, accountServerPort)

	// all ledger dates of the suite fall on this day
	testNow = time.Date(2024, time.January, 5, 18, 30, 0, 0, time.UTC)
)

// IntegrationTestSuite runs the sync service against a real account service,
// with redis as the local cache and postgres behind the account store.
type IntegrationTestSuite struct {
	suite.Suite

	DB            *sql.DB
	dockerPool    *dockertest.Pool
	redisClient   *redis.Client
	server        *internal.Server
	accountServer *internal.AccountServer
	httpClient    *http.Client
	userID        string
	teardown      []func()
}

func TestIntegrationTestSuite(t *testing.T) {
	suite.Run(t, new(IntegrationTestSuite))
}

// runs before all tests are executed
func (s *IntegrationTestSuite) SetupSuite() {
	ctx := context.Background()
	fmt.Println("setting up test suite...")

	s.teardown = make([]func(), 0)
	s.httpClient = &http.Client{Timeout: 5 * time.Second}
	s.userID = "it-user-1"

	// uses a sensible default on windows (tcp/http) and linux/osx (socket)
	var err error
	s.dockerPool, err = dockertest.NewPool("")
	if err != nil {
		log.Fatalf("could not create new dockertest pool: %s", err)
	}
	if err = s.dockerPool.Client.Ping(); err != nil {
		log.Fatalf("could not ping dockertest pool: %s", err)
	}
	fmt.Println("dockertest pool ping successful")

	redisPort, err := s.redisSetup(ctx)
	if err != nil {
		s.cleanup()
		log.Fatalf("failed to setup redis: %s", err)
	}
	fmt.Println("redis setup successful")

	pgPort, err := s.postgresSetup()
	if err != nil {
		s.cleanup()
		log.Fatalf("failed to setup postgres: %s", err)
	}
	fmt.Println("postgres setup successful")

	cfg := getTestConfig(redisPort, pgPort)

	s.accountServer, err = internal.NewAccountServer(ctx, internal.NewAccountServerParams{
		Config:        cfg,
		MigrateSchema: true,
	})
	if err != nil {
		s.cleanup()
		log.Fatalf("new account server: %s", err)
	}
	s.accountServer.Serve(cfg.Host, cfg.AccountServicePort)
	fmt.Println("account server started")

	if err := s.seedLocalCache(ctx); err != nil {
		s.cleanup()
		log.Fatalf("seed local cache: %s", err)
	}

	s.server, err = internal.NewServer(ctx, internal.NewServerParams{
		Config:  cfg,
		NowFunc: func() time.Time { return testNow },
	})
	if err != nil {
		s.cleanup()
		log.Fatalf("new server: %s", err)
	}
	s.server.Serve(cfg.Host, cfg.Port)
	fmt.Println("server started")

	if err := s.waitForListener(serverPort); err != nil {
		s.cleanup()
		log.Fatalf("sync server not reachable: %s", err)
	}
	if err := s.waitForListener(accountServerPort); err != nil {
		s.cleanup()
		log.Fatalf("account server not reachable: %s", err)
	}
}

func (s *IntegrationTestSuite) TearDownSuite() {
	s.cleanup()
}

func (s *IntegrationTestSuite) cleanup() {
	fmt.Println(" --> cleaning up test suite...")
	if s.server != nil {
		s.server.GracefulShutdown()
	}
	fmt.Println(" --> test suite server shut down")
	if s.accountServer != nil {
		s.accountServer.GracefulShutdown()
	}
	fmt.Println(" --> test suite account server shut down")
	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			fmt.Printf(" --> test suite redis close error: %s\n", err)
		}
	}
	if s.DB != nil {
		if err := s.DB.Close(); err != nil {
			fmt.Printf(" --> test suite db close error: %s\n", err)
		}
	}
	for _, teardown := range s.teardown {
		teardown()
	}
	fmt.Println(" --> test suite cleanup done")
}

func getTestConfig(redisPort, postgresPort string) *config.Config {
	return &config.Config{
		Environment:           "development",
		Host:                  serverHost,
		Port:                  serverPort,
		MetricsPort:           metricsPort,
		LogLevel:              "debug",
		LocalCacheBackend:     "redis",
		LocalCacheMemMB:       64,
		DeviceID:              testDeviceID,
		RedisHost:             "localhost",
		RedisPort:             redisPort,
		AccountServiceURL:     accountServerEndpoint,
		AccountServiceTimeout: 5 * time.Second,
		AccountServicePort:    accountServerPort,
		AccountMetricsPort:    accountMetricsPort,
		OutboxEnabled:         true,
		OutboxMaxRetries:      3,
		OutboxInitialInterval: 50 * time.Millisecond,
		OutboxPushesPerMinute: 600,
		Timezone:              "UTC",
		MaxConflictRetries:    3,
		PostgresHost:          "localhost",
		PostgresPort:          postgresPort,
		PostgresDBName:        "workoutsync",
		PostgresUser:          "postgres",
	}
}

func (s *IntegrationTestSuite) redisSetup(ctx context.Context) (string, error) {
	redisResource, err := s.dockerPool.RunWithOptions(&dockertest.RunOptions{
		Repository: "redis",
		Name:       "workoutsync-it-redis",
		Tag:        "6.2",
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
	})
	if err != nil {
		return "", fmt.Errorf("run redis: %w", err)
	}

	s.teardown = append(s.teardown, func() {
		if err := redisResource.Close(); err != nil {
			fmt.Printf("redis teardown: %s\n", err)
		}
	})

	redisPort := redisResource.GetPort("6379/tcp")
	s.redisClient = redis.NewClient(&redis.Options{
		Addr: net.JoinHostPort("localhost", redisPort),
	})
	if err := s.dockerPool.Retry(func() error {
		return s.redisClient.Ping(ctx).Err()
	}); err != nil {
		return "", fmt.Errorf("connect to redis: %w", err)
	}

	return redisPort, nil
}

func (s *IntegrationTestSuite) postgresSetup() (string, error) {
	pgResource, err := s.dockerPool.RunWithOptions(&dockertest.RunOptions{
		Repository: "postgres",
		Tag:        "16",
		Env: []string{
			"POSTGRES_USER=postgres",
			"POSTGRES_DB=workoutsync",
			"POSTGRES_HOST_AUTH_METHOD=trust",
		},
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{
			Name: "no",
		}
	})
	if err != nil {
		return "", fmt.Errorf("dockerpool run postgres: %w", err)
	}

	s.teardown = append(s.teardown, func() {
		if err := pgResource.Close(); err != nil {
			fmt.Printf("postgres teardown: %s\n", err)
		}
	})

	pgPort := pgResource.GetPort("5432/tcp")
	dsn := fmt.Sprintf("postgres://postgres@localhost:%s/workoutsync?sslmode=disable", pgPort)

	s.DB, err = sql.Open("postgres", dsn)
	if err != nil {
		return "", fmt.Errorf("open db: %w", err)
	}
	if err := s.dockerPool.Retry(s.DB.Ping); err != nil {
		return "", fmt.Errorf("connect to db: %w", err)
	}

	if _, err := s.DB.Exec(accountstore.Schema); err != nil {
		return "", fmt.Errorf("run schema script: %w", err)
	}

	return pgPort, nil
}

// seedLocalCache stores what a freshly onboarded device holds before the
// first workout is finished.
func (s *IntegrationTestSuite) seedLocalCache(ctx context.Context) error {
	store := localcache.NewRedisStore(s.redisClient, testDeviceID)
	docs := map[string]string{
		localcache.KeyWorkoutCards: `[
			[{"id":"w1","data":{"title":"Morning yoga","type":"yoga","duration":30,"calories":200},"completed":false},
			 {"id":"w2","data":{"title":"Core burner","type":"hiit","duration":15,"calories":150},"completed":false}],
			[{"id":"w3","data":{"title":"Long run","type":"cardio","duration":45,"calories":400},"completed":false}]
		]`,
		localcache.KeyWorkoutProgram: `[
			[{"_id":"w1","completed":false,"order":1},{"_id":"w2","completed":false}],
			[{"_id":"w3","completed":false},{"_id":"w1","completed":false}]
		]`,
		localcache.KeyUserSettings: `{
			"weekProgress":{"minutes":0,"workoutsCompleted":0,"calories":0},
			"caloriesBurned":0,"completedWorkouts":0,"progress":[],
			"goal":"lose weight","workoutLength":30
		}`,
		localcache.KeyWeekIndex: `0`,
		localcache.KeyIdentity:  fmt.Sprintf(`{"userID":%q}`, s.userID),
	}
	for key, doc := range docs {
		if _, err := store.Put(ctx, key, []byte(doc), localcache.AnyRevision); err != nil {
			return fmt.Errorf("put %s: %w", key, err)
		}
	}
	return nil
}

func (s *IntegrationTestSuite) waitForListener(port int) error {
	addr := net.JoinHostPort(serverHost, fmt.Sprintf("%d", port))
	return s.dockerPool.Retry(func() error {
		conn, err := net.DialTimeout("tcp", addr, time.Second)
		if err != nil {
			return err
		}
		return conn.Close()
	})
}
