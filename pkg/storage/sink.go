package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"civharvest/pkg/logger"
	"civharvest/pkg/records"
)

// Output formats accepted by NewSink.
const (
	FormatJSON   = "json"
	FormatJSONL  = "jsonl"
	FormatSQLite = "sqlite"
	FormatNone   = "none"
)

// Sink receives finished records one at a time.
type Sink interface {
	Write(ctx context.Context, rec *records.MergedRecord) error
	Close() error
	// Location is where the records end up, for the run summary.
	Location() string
}

// RunRecorder is implemented by sinks that keep a run history.
type RunRecorder interface {
	FinishRun(ctx context.Context, run Run) error
}

// Index is implemented by sinks that can tell which images they already
// hold across runs.
type Index interface {
	Has(ctx context.Context, imageID int64) (bool, error)
}

// SinkOptions select and place a sink.
type SinkOptions struct {
	Format       string
	Directory    string
	SQLitePath   string
	CollectionID int64
	RunID        string
	Logger       logger.Logger
}

// NewSink opens the sink for opts.Format.
func NewSink(opts SinkOptions) (Sink, error) {
	log := opts.Logger
	if log == nil {
		log = logger.GetLogger()
	}

	switch strings.ToLower(opts.Format) {
	case "", FormatJSON:
		m, err := NewManager(opts.Directory)
		if err != nil {
			return nil, err
		}
		return &jsonSink{manager: m, collectionID: opts.CollectionID, logger: log}, nil

	case FormatJSONL:
		m, err := NewManager(opts.Directory)
		if err != nil {
			return nil, err
		}
		w, err := OpenJSONL(m.Path(opts.CollectionID, "jsonl"))
		if err != nil {
			return nil, err
		}
		return &jsonlSink{w: w, logger: log}, nil

	case FormatSQLite:
		path := opts.SQLitePath
		if path == "" {
			m, err := NewManager(opts.Directory)
			if err != nil {
				return nil, err
			}
			path = m.Path(opts.CollectionID, "db")
		}
		db, err := OpenDB(path)
		if err != nil {
			return nil, err
		}
		if err := db.StartRun(context.Background(), opts.RunID, opts.CollectionID, time.Now()); err != nil {
			db.Close()
			return nil, err
		}
		return &sqliteSink{db: db, path: path, runID: opts.RunID, collectionID: opts.CollectionID, logger: log}, nil

	case FormatNone:
		return discardSink{}, nil
	}
	return nil, fmt.Errorf("unknown output format %q (want json, jsonl, sqlite or none)", opts.Format)
}

// jsonSink buffers records and writes one array file on Close.
type jsonSink struct {
	manager      *Manager
	collectionID int64
	recs         []*records.MergedRecord
	logger       logger.Logger
}

func (s *jsonSink) Write(_ context.Context, rec *records.MergedRecord) error {
	s.recs = append(s.recs, rec)
	return nil
}

func (s *jsonSink) Close() error {
	path, err := s.manager.SaveJSON(s.collectionID, s.recs)
	if err != nil {
		return err
	}
	s.logger.InfoWithFields("records written", map[string]interface{}{
		"path":    path,
		"records": len(s.recs),
	})
	return nil
}

func (s *jsonSink) Location() string {
	return s.manager.Path(s.collectionID, "json")
}

type jsonlSink struct {
	w      *JSONLWriter
	logger logger.Logger
}

func (s *jsonlSink) Write(_ context.Context, rec *records.MergedRecord) error {
	added, err := s.w.Write(rec)
	if err != nil {
		return err
	}
	if !added {
		s.logger.WithField("image_id", rec.ImageID).Debug("record already in output, skipped")
	}
	return nil
}

func (s *jsonlSink) Close() error {
	if err := s.w.Close(); err != nil {
		return err
	}
	s.logger.InfoWithFields("records appended", map[string]interface{}{
		"path":    s.w.Path(),
		"records": s.w.Written(),
	})
	return nil
}

func (s *jsonlSink) Has(_ context.Context, imageID int64) (bool, error) {
	return s.w.Has(imageID), nil
}

func (s *jsonlSink) Location() string { return s.w.Path() }

type sqliteSink struct {
	db           *DB
	path         string
	runID        string
	collectionID int64
	counts       map[UpsertResult]int
	logger       logger.Logger
}

func (s *sqliteSink) Write(ctx context.Context, rec *records.MergedRecord) error {
	res, err := s.db.UpsertRecord(ctx, s.runID, s.collectionID, rec)
	if err != nil {
		return err
	}
	if s.counts == nil {
		s.counts = make(map[UpsertResult]int)
	}
	s.counts[res]++
	return nil
}

func (s *sqliteSink) Has(ctx context.Context, imageID int64) (bool, error) {
	return s.db.HasImage(ctx, imageID)
}

func (s *sqliteSink) FinishRun(ctx context.Context, run Run) error {
	if run.ID == "" {
		run.ID = s.runID
	}
	return s.db.FinishRun(ctx, run)
}

func (s *sqliteSink) Close() error {
	s.logger.InfoWithFields("records stored", map[string]interface{}{
		"path":      s.path,
		"inserted":  s.counts[Inserted],
		"updated":   s.counts[Updated],
		"unchanged": s.counts[Unchanged],
	})
	return s.db.Close()
}

func (s *sqliteSink) Location() string { return s.path }

type discardSink struct{}

func (discardSink) Write(context.Context, *records.MergedRecord) error { return nil }
func (discardSink) Close() error                                       { return nil }
func (discardSink) Location() string                                   { return "" }
