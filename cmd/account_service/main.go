package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/2beens/workoutsync/internal"
	"github.com/2beens/workoutsync/internal/config"
	"github.com/2beens/workoutsync/internal/logging"

	log "github.com/sirupsen/logrus"
)

func main() {
	fmt.Println("starting account service ...")

	env := flag.String("env", "development", "environment [prod | production | dev | development]")
	configPath := flag.String("config", "./config.toml", "path for the TOML config file")
	migrate := flag.Bool("migrate", false, "create the account document table if missing")
	flag.Parse()

	cfg, err := config.Load(*env, *configPath)
	if err != nil {
		panic(err)
	}

	closeLogs := logging.Setup(logging.LoggerSetupParams{
		ServiceName:      "workoutsync-account-service",
		LogFileName:      cfg.LogsPath,
		LogToStdout:      cfg.LogToStdout,
		LogLevel:         cfg.LogLevel,
		LogFormatJSON:    cfg.LogFormatJSON,
		Environment:      cfg.Environment,
		SentryEnabled:    cfg.SentryEnabled,
		SentryDSN:        os.Getenv("SENTRY_DSN"),
		SentryServerName: "workoutsync-account-service",
	})
	defer closeLogs()

	log.Warnf("---->> account service running in [%s] environment", *env)
	if cfg.PostgresPassword == "" {
		log.Warnln("postgres password not set, use WORKOUTSYNC_POSTGRES_PASSWORD to set it")
	}

	chOsInterrupt := make(chan os.Signal, 1)
	signal.Notify(chOsInterrupt, os.Interrupt, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())

	server, err := internal.NewAccountServer(ctx, internal.NewAccountServerParams{
		Config:        cfg,
		MigrateSchema: *migrate,
	})
	if err != nil {
		log.Fatalf("new account server: %s", err)
	}

	server.Serve(cfg.Host, cfg.AccountServicePort)

	receivedSig := <-chOsInterrupt
	log.Warnf("signal [%s] received, shutting down ...", receivedSig)
	cancel()

	server.GracefulShutdown()
}
