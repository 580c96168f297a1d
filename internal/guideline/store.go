package guideline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/treewskyblue/Medvise/internal/models"
	"github.com/treewskyblue/Medvise/internal/parser"
)

// Index is the write side of a vector index
type Index interface {
	Add(ctx context.Context, chunks []models.Chunk) error
	RebuildFrom(ctx context.Context, chunks []models.Chunk) error
	Count(ctx context.Context) int
}

// SourceDeleter is implemented by indexes that can drop one source's chunks
type SourceDeleter interface {
	DeleteSource(ctx context.Context, sourceID string) error
}

// Ingestor turns files into chunks
type Ingestor interface {
	LoadChunks(ctx context.Context, path string, mediaType models.MediaType) ([]models.Chunk, error)
	LoadAll(ctx context.Context, dir string) (parser.LoadResult, error)
}

var unsafeFilenameChars = regexp.MustCompile(`[^\p{L}\p{N}_\s.-]`)

// SanitizeFilename strips characters outside letters and digits of any script,
// '_', whitespace, '.' and '-'.
func SanitizeFilename(name string) string {
	return strings.TrimSpace(unsafeFilenameChars.ReplaceAllString(filepath.Base(name), ""))
}

type Options struct {
	Dir             string
	RebuildOnRemove bool
}

// Store keeps the guideline directory and the vector index in step
type Store struct {
	dir             string
	loader          Ingestor
	index           Index
	rebuildOnRemove bool

	// mu serializes mutations; reads go straight to the filesystem
	mu  sync.Mutex
	log zerolog.Logger
}

func NewStore(opts Options, loader Ingestor, index Index, log zerolog.Logger) (*Store, error) {
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create guideline dir: %w", err)
	}
	return &Store{
		dir:             opts.Dir,
		loader:          loader,
		index:           index,
		rebuildOnRemove: opts.RebuildOnRemove,
		log:             log,
	}, nil
}

func (s *Store) Dir() string { return s.dir }

// List reports the guideline files currently on disk, sorted by name
func (s *Store) List() ([]models.SourceDocument, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list guidelines: %w", err)
	}

	docs := make([]models.SourceDocument, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		mt, _ := models.MediaTypeFromPath(e.Name())
		docs = append(docs, models.SourceDocument{
			ID:        e.Name(),
			Path:      filepath.Join(s.dir, e.Name()),
			MediaType: mt,
			SizeBytes: info.Size(),
		})
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })

	s.log.Debug().Int("count", len(docs)).Msg("Listed guidelines")
	return docs, nil
}

// Path resolves a stored guideline by name
func (s *Store) Path(filename string) (string, error) {
	name := filepath.Base(filename)
	path := filepath.Join(s.dir, name)
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return "", fmt.Errorf("%w: %s", models.ErrNotFound, name)
	}
	return path, nil
}

// Add persists content under the sanitized filename and indexes it. A nil
// content means the file was already written into the guideline directory.
// When indexing fails the file stays on disk and the error wraps
// ErrStoreInconsistency; ReindexAll recovers from that state.
func (s *Store) Add(ctx context.Context, filename string, content io.Reader) (models.SourceDocument, error) {
	name := SanitizeFilename(filename)
	if name == "" || name == "." || name == ".." {
		return models.SourceDocument{}, fmt.Errorf("%w: filename %q", models.ErrInvalidInput, filename)
	}
	mt, err := models.MediaTypeFromPath(name)
	if err != nil {
		return models.SourceDocument{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, name)
	if content != nil {
		if err := writeFile(path, content); err != nil {
			return models.SourceDocument{}, err
		}
	}
	info, err := os.Stat(path)
	if err != nil {
		return models.SourceDocument{}, fmt.Errorf("%w: %s", models.ErrNotFound, name)
	}
	doc := models.SourceDocument{ID: name, Path: path, MediaType: mt, SizeBytes: info.Size()}

	log := s.log.With().Str("filename", name).Str("media_type", string(mt)).Logger()
	log.Info().Msg("Adding guideline")

	chunks, err := s.loader.LoadChunks(ctx, path, mt)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load guideline")
		return doc, fmt.Errorf("%w: %w", models.ErrStoreInconsistency, err)
	}
	if len(chunks) == 0 {
		log.Warn().Msg("Guideline produced no chunks")
		return doc, fmt.Errorf("%w: %w", models.ErrStoreInconsistency, models.ErrNoValidChunks)
	}

	// a re-upload replaces the chunks of the previous version
	if d, ok := s.index.(SourceDeleter); ok {
		if err := d.DeleteSource(ctx, name); err != nil {
			log.Warn().Err(err).Msg("Failed to drop previous chunks")
		}
	}
	if err := s.index.Add(ctx, chunks); err != nil {
		log.Error().Err(err).Msg("Failed to index guideline")
		return doc, fmt.Errorf("%w: %w", models.ErrStoreInconsistency, err)
	}

	log.Info().Int("chunks", len(chunks)).Msg("Guideline added")
	return doc, nil
}

// Remove deletes the file and its chunks. Indexes without selective delete
// are rebuilt from every remaining file.
func (s *Store) Remove(ctx context.Context, filename string) error {
	name := filepath.Base(filename)

	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, name)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		s.log.Warn().Str("filename", name).Msg("Guideline to delete does not exist")
		return fmt.Errorf("%w: %s", models.ErrNotFound, name)
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to delete guideline: %w", err)
	}

	if d, ok := s.index.(SourceDeleter); ok && !s.rebuildOnRemove {
		if err := d.DeleteSource(ctx, name); err != nil {
			return err
		}
	} else {
		if _, err := s.rebuild(ctx); err != nil {
			return err
		}
	}

	s.log.Info().Str("filename", name).Msg("Guideline deleted")
	return nil
}

// ReindexAll re-ingests every supported file and rebuilds the index from the
// result. Per-file failures are reported in the LoadResult, not as an error.
func (s *Store) ReindexAll(ctx context.Context) (parser.LoadResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rebuild(ctx)
}

func (s *Store) rebuild(ctx context.Context) (parser.LoadResult, error) {
	res, err := s.loader.LoadAll(ctx, s.dir)
	if err != nil {
		return res, err
	}
	if err := s.index.RebuildFrom(ctx, res.Chunks); err != nil {
		return res, err
	}
	s.log.Info().
		Int("files", len(res.Loaded)).
		Int("chunks", len(res.Chunks)).
		Int("failures", len(res.Failures)).
		Msg("Guideline index rebuilt")
	return res, nil
}

func writeFile(path string, content io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to save guideline: %w", err)
	}
	if _, err := io.Copy(f, content); err != nil {
		f.Close()
		return fmt.Errorf("failed to save guideline: %w", err)
	}
	return f.Close()
}
