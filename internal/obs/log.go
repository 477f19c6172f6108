package obs

import (
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	loggerOnce sync.Once
	logger     *logrus.Logger
)

// Logger returns the shared structured logger used across the service.
func Logger() *logrus.Logger {
	loggerOnce.Do(func() {
		logger = logrus.New()
		logger.SetOutput(os.Stdout)
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime: "ts",
			},
		})
		logger.SetLevel(logrus.InfoLevel)
	})
	return logger
}

// SetLevel applies a textual log level; unknown values fall back to info.
func SetLevel(level string) {
	lvl, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		Logger().WithField("level", level).Warn("unknown log level, using info")
		lvl = logrus.InfoLevel
	}
	Logger().SetLevel(lvl)
}

// LogRequest emits a structured log line with common HTTP fields.
func LogRequest(fields map[string]any) {
	entry := Logger().WithFields(logrus.Fields(fields))
	if status, ok := fields["status"].(int); ok && status >= 500 {
		entry.Error("http request")
		return
	}
	entry.Info("http request")
}
