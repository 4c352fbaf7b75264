// Package logging configures the package level logrus logger shared by the
// services: level, format, rotated log file and the sentry hook.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/2beens/workoutsync/pkg"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

type LoggerSetupParams struct {
	// ServiceName is attached to every entry as the "service" field
	ServiceName      string
	LogFileName      string
	LogToStdout      bool
	LogLevel         string
	LogFormatJSON    bool
	Environment      string
	SentryEnabled    bool
	SentryDSN        string
	SentryServerName string
}

// Setup configures the logrus standard logger. The returned func closes the
// log file, call it on shutdown.
func Setup(params LoggerSetupParams) func() {
	if params.LogFormatJSON {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	logrus.SetLevel(GetLevel(params.LogLevel))

	if params.ServiceName != "" {
		logrus.AddHook(&serviceHook{service: params.ServiceName})
	}
	if params.SentryEnabled {
		setupSentry(params)
	}

	output, closer := logOutput(params)
	logrus.SetOutput(output)
	return closer
}

func setupSentry(params LoggerSetupParams) {
	err := sentry.Init(sentry.ClientOptions{
		Environment:      params.Environment,
		Dsn:              params.SentryDSN,
		TracesSampleRate: 1.0,
		ServerName:       params.SentryServerName,
	})
	if err != nil {
		logrus.Errorf("sentry init: %s", err)
		return
	}
	logrus.AddHook(NewSentryHook([]logrus.Level{
		logrus.PanicLevel,
		logrus.FatalLevel,
		logrus.ErrorLevel,
	}))
	logrus.Infoln("sentry hook added")
}

func logOutput(params LoggerSetupParams) (io.Writer, func()) {
	if params.LogFileName == "" {
		return os.Stdout, func() {}
	}

	fileName := params.LogFileName
	if !strings.HasSuffix(fileName, ".log") {
		fileName += ".log"
	}
	rotated := &lumberjack.Logger{
		Filename:   fileName,
		MaxSize:    50, // megabytes
		MaxBackups: 5,
		LocalTime:  false, // false -> use UTC
		Compress:   true,
	}
	closer := func() {
		if err := rotated.Close(); err != nil {
			logrus.Errorf("close log file [%s]: %s", fileName, err)
		}
	}

	if params.LogToStdout {
		return pkg.NewCombinedWriter(os.Stdout, rotated), closer
	}
	return rotated, closer
}

// GetLevel parses a logrus level name, falling back to trace.
func GetLevel(level string) logrus.Level {
	parsed, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return logrus.TraceLevel
	}
	return parsed
}

type serviceHook struct {
	service string
}

func (h *serviceHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *serviceHook) Fire(entry *logrus.Entry) error {
	if _, ok := entry.Data["service"]; !ok {
		entry.Data["service"] = h.service
	}
	return nil
}
