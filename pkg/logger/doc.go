// Package logger provides the structured logging interface used across
// civharvest.
//
// It wraps zerolog behind a small Logger interface so packages can accept
// a logger without importing zerolog, and so tests can substitute a
// TestLogger and assert on emitted messages.
//
//	if err := logger.Initialize(&cfg.Logging); err != nil {
//	    return err
//	}
//	log := logger.GetLogger().WithField("collection_id", 42)
//	log.InfoWithFields("page fetched", map[string]interface{}{
//	    "received": 50,
//	})
//
// Console output goes to stderr with colored level labels. When a log file
// is configured every line is also appended to it as JSON.
package logger
