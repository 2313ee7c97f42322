// Package storage writes harvested records.
//
// Three outputs are supported behind the Sink interface:
//   - json: one indented array per collection, written atomically on Close
//   - jsonl: one record per line, appended as records arrive; image ids
//     already in the file are skipped so a resumed run does not duplicate
//   - sqlite: an images table keyed by image id with normalized tags and a
//     runs table; unchanged records are detected by their sha256
//
// Usage:
//
//	sink, err := storage.NewSink(storage.SinkOptions{
//	    Format:       "jsonl",
//	    Directory:    "./harvest",
//	    CollectionID: 11035255,
//	    RunID:        runID,
//	})
//	if err != nil {
//	    return err
//	}
//	defer sink.Close()
//
//	err = sink.Write(ctx, rec)
package storage
