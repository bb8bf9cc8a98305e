package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// Setup initializes the global logger.
// It outputs to stdout using a TextHandler, which is human-readable in
// journalctl. The level comes from LOG_LEVEL (debug, info, warn, error).
func Setup() {
	slog.SetDefault(New(os.Stdout, ParseLevel(os.Getenv("LOG_LEVEL"))))
}

// New builds a text logger writing to w.
func New(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// ParseLevel maps a level name to a slog.Level, defaulting to info.
func ParseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Fatal logs an error message and then exits the application.
// slog doesn't have a Fatal method by default.
func Fatal(msg string, args ...any) {
	slog.Error(msg, args...)
	os.Exit(1)
}

// CronLogger adapts slog to the cron.Logger interface
type CronLogger struct {
	Logger *slog.Logger
}

func (l *CronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.Logger.Info(msg, keysAndValues...)
}

func (l *CronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.Logger.Error(msg, append(keysAndValues, "error", err)...)
}

// Middleware logs one line per request once the handler returns. Streaming
// responses are logged when the viewer goes away.
func Middleware(l *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		attrs := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"remote", c.ClientIP(),
			"duration", time.Since(start),
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "error", c.Errors.String())
		}

		switch status := c.Writer.Status(); {
		case status >= 500:
			l.Error("HTTP request", attrs...)
		case status >= 400:
			l.Warn("HTTP request", attrs...)
		default:
			l.Info("HTTP request", attrs...)
		}
	}
}
