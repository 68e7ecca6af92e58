package recorder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileResult is the outcome of importing one transcript file.
type FileResult struct {
	Path      string
	SessionID string
	Summary   *Summary
	Err       error
}

// BatchSummary aggregates a directory backfill.
type BatchSummary struct {
	Files   int
	Failed  int
	Results []FileResult
}

// ImportDir records every regular file in dir as one finished session each.
// Files are processed concurrently; a file that cannot be read or recorded is
// reported in its FileResult and does not stop the rest.
func (r *Recorder) ImportDir(ctx context.Context, dir string) (*BatchSummary, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read transcript directory: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	return r.ImportFiles(ctx, paths)
}

// ImportFiles records the given transcript files, one session per file, using
// the recorder's worker pool.
func (r *Recorder) ImportFiles(ctx context.Context, paths []string) (*BatchSummary, error) {
	workers := r.Workers
	if workers <= 0 {
		workers = 1
	}
	var pool WorkerPoolInterface
	if r.PoolFactory != nil {
		pool = r.PoolFactory(workers, workers*2)
	} else {
		pool = NewWorkerPool(workers, workers*2)
	}
	pool.Start(ctx)

	// Each job writes only its own slot. Slots are pre-marked canceled so a
	// job the workers never reached (context canceled mid-backfill) is not
	// mistaken for a success.
	results := make([]FileResult, len(paths))
	for i := range paths {
		results[i] = FileResult{Path: paths[i], Err: context.Canceled}
	}
	for i := range paths {
		i := i
		path := paths[i]
		job := func(ctx context.Context) error {
			results[i] = r.importFile(path)
			return nil
		}
		if err := pool.SubmitCtx(ctx, job); err != nil {
			for j := i; j < len(paths); j++ {
				results[j] = FileResult{Path: paths[j], Err: err}
			}
			break
		}
	}
	pool.Close()

	sum := &BatchSummary{Files: len(results), Results: results}
	for _, res := range results {
		if res.Err != nil {
			sum.Failed++
		}
	}
	return sum, nil
}

// importFile records one saved transcript file as a session. The file's
// modification time stands in for the session timestamps, since saved
// transcripts carry no other clock.
func (r *Recorder) importFile(path string) FileResult {
	res := FileResult{Path: path}

	info, err := os.Stat(path)
	if err != nil {
		res.Err = fmt.Errorf("stat transcript: %w", err)
		return res
	}
	text, err := os.ReadFile(path)
	if err != nil {
		res.Err = fmt.Errorf("read transcript: %w", err)
		return res
	}

	sessionID, err := r.Store.CreateSession(info.ModTime())
	if err != nil {
		res.Err = err
		return res
	}
	res.SessionID = sessionID

	meta := map[string]string{"source_file": filepath.Base(path)}
	summary, err := r.Record(sessionID, info.ModTime(), string(text), meta)
	if err != nil {
		res.Err = err
		return res
	}
	res.Summary = summary
	return res
}
