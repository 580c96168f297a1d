package parser

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/treewskyblue/Medvise/internal/models"
)

// LoadResult is the merged outcome of a directory ingestion
type LoadResult struct {
	Chunks   []models.Chunk
	Loaded   []string
	Failures map[string]error
}

// SupportedFiles lists the ingestible files directly inside dir in lexical
// order. Subdirectories are not descended into. A missing directory yields no files.
func SupportedFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		if !e.Type().IsRegular() || !models.IsSupported(e.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	return files, nil
}

// LoadAll ingests every supported file in dir. Files are processed
// independently; a failing file is recorded in Failures and skipped.
func (l *Loader) LoadAll(ctx context.Context, dir string) (LoadResult, error) {
	res := LoadResult{Failures: map[string]error{}}

	files, err := SupportedFiles(dir)
	if err != nil {
		return res, err
	}

	type fileResult struct {
		chunks []models.Chunk
		err    error
	}
	results := make([]fileResult, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.workers)
	for i, path := range files {
		g.Go(func() error {
			mediaType, err := models.MediaTypeFromPath(path)
			if err != nil {
				results[i].err = err
				return nil
			}
			results[i].chunks, results[i].err = l.LoadChunks(gctx, path, mediaType)
			return nil
		})
	}
	_ = g.Wait()

	for i, path := range files {
		name := filepath.Base(path)
		if r := results[i]; r.err != nil {
			l.log.Error().Err(r.err).Str("source", name).Msg("Skipping guideline that failed to load")
			res.Failures[name] = r.err
			continue
		}
		if len(results[i].chunks) == 0 {
			l.log.Warn().Str("source", name).Msg("Guideline produced no chunks")
			continue
		}
		res.Loaded = append(res.Loaded, name)
		res.Chunks = append(res.Chunks, results[i].chunks...)
	}

	l.log.Info().
		Str("dir", dir).
		Int("files", len(files)).
		Int("chunks", len(res.Chunks)).
		Int("failures", len(res.Failures)).
		Msg("Directory ingestion finished")
	return res, nil
}
