package logger

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// LogRequest records the outcome of one tRPC call.
func LogRequest(l Logger, procedure string, statusCode int, duration time.Duration) {
	fields := map[string]interface{}{
		"procedure":   procedure,
		"status_code": statusCode,
		"duration_ms": duration.Milliseconds(),
	}

	switch {
	case statusCode >= 200 && statusCode < 300:
		l.DebugWithFields("tRPC call completed", fields)
	case statusCode >= 500:
		l.ErrorWithFields("tRPC server error", fields)
	default:
		l.WarnWithFields("tRPC client error", fields)
	}
}

// LogPage records one page of a collection listing.
func LogPage(l Logger, collectionID int, page, received, accepted int, state string) {
	l.InfoWithFields("page fetched", map[string]interface{}{
		"collection_id": collectionID,
		"page":          page,
		"received":      received,
		"accepted":      accepted,
		"state":         state,
	})
}

// LogItemSkipped records an image dropped from the output.
func LogItemSkipped(l Logger, imageID int64, reason string, err error) {
	entry := l.WithFields(map[string]interface{}{
		"image_id": imageID,
		"reason":   reason,
	})
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Warn("image skipped")
}

// LogRateLimit records a wait imposed by the request limiter.
func LogRateLimit(l Logger, procedure string, waited time.Duration) {
	l.WithFields(map[string]interface{}{
		"procedure": procedure,
		"waited":    waited,
		"action":    "throttled",
	}).Debug("request throttled")
}

// LogComponentStart logs when a component starts
func LogComponentStart(l Logger, component string, settings map[string]interface{}) {
	entry := l.WithField("component", component)
	if len(settings) > 0 {
		entry = entry.WithFields(settings)
	}
	entry.Info("component started")
}

// LogComponentStop logs when a component stops
func LogComponentStop(l Logger, component string, reason string) {
	l.WithFields(map[string]interface{}{
		"component": component,
		"reason":    reason,
	}).Info("component stopped")
}

// LogMetrics logs run counters under a single line.
func LogMetrics(l Logger, operation string, metrics map[string]interface{}) {
	fields := map[string]interface{}{
		"operation": operation,
		"type":      "metrics",
	}
	for k, v := range metrics {
		fields[k] = v
	}
	l.InfoWithFields("run metrics", fields)
}

// NewNopLogger creates a logger that discards everything
func NewNopLogger() Logger {
	return &nopLogger{}
}

type nopLogger struct{}

func (n *nopLogger) Debug(msg string)                                          {}
func (n *nopLogger) Info(msg string)                                           {}
func (n *nopLogger) Warn(msg string)                                           {}
func (n *nopLogger) Error(msg string)                                          {}
func (n *nopLogger) Fatal(msg string)                                          {}
func (n *nopLogger) WithField(key string, value interface{}) Logger            { return n }
func (n *nopLogger) WithFields(fields map[string]interface{}) Logger           { return n }
func (n *nopLogger) WithError(err error) Logger                                { return n }
func (n *nopLogger) WithContext(ctx context.Context) Logger                    { return n }
func (n *nopLogger) DebugWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) InfoWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) WarnWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) ErrorWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) FatalWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) GetZerolog() *zerolog.Logger                               { return nil }
