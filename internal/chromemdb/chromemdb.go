package chromemdb

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/treewskyblue/Medvise/internal/embedding"
	"github.com/treewskyblue/Medvise/internal/models"
)

// metadata keys stored next to every chunk
const (
	metaSource  = "source"
	metaPath    = "path"
	metaPage    = "page"
	metaChunkID = "chunk_id"
)

// Index is the chromem-go backed vector collection. Writes are serialized and
// embeddings are computed before the write lock is taken, so readers never
// observe a half-written batch.
type Index struct {
	mu         sync.RWMutex
	db         *chromem.DB
	collection *chromem.Collection
	name       string
	embed      embedding.Func
	workers    int
	log        zerolog.Logger
}

// Options configures where and how the collection is persisted
type Options struct {
	Path       string // empty keeps the collection in memory
	Collection string
	Compress   bool
	Workers    int
}

// New opens (or creates) the persistent collection described by opts
func New(opts Options, embed embedding.Func, log zerolog.Logger) (*Index, error) {
	var (
		db  *chromem.DB
		err error
	)
	if opts.Path == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(opts.Path, opts.Compress)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to open database: %v", models.ErrPersistence, err)
		}
	}

	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}

	c, err := db.GetOrCreateCollection(opts.Collection, nil, chromem.EmbeddingFunc(embed))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create/get collection: %v", models.ErrPersistence, err)
	}

	log.Info().Str("collection", opts.Collection).Int("count", c.Count()).Msg("Vector collection ready")
	return &Index{
		db:         db,
		collection: c,
		name:       opts.Collection,
		embed:      embed,
		workers:    opts.Workers,
		log:        log,
	}, nil
}

// NewInMemory creates a non-persistent index
func NewInMemory(collection string, embed embedding.Func, log zerolog.Logger) (*Index, error) {
	return New(Options{Collection: collection}, embed, log)
}

// Add embeds the non-empty chunks and persists them as one batch
func (m *Index) Add(ctx context.Context, chunks []models.Chunk) error {
	docs, err := m.documents(ctx, chunks)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.collection.AddDocuments(ctx, docs, m.workers); err != nil {
		return fmt.Errorf("%w: failed to add documents: %v", models.ErrPersistence, err)
	}
	m.log.Debug().Int("chunks", len(docs)).Msg("Added chunks to collection")
	return nil
}

// Query returns up to k chunks ordered best-first. An empty collection yields no results.
func (m *Index) Query(ctx context.Context, text string, k int) ([]models.ScoredChunk, error) {
	if k <= 0 {
		return nil, nil
	}
	if m.Count(ctx) == 0 {
		return nil, nil
	}

	vec, err := m.embed(ctx, text)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	n := min(k, m.collection.Count())
	if n == 0 {
		return nil, nil
	}
	results, err := m.collection.QueryEmbedding(ctx, vec, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}

	scored := make([]models.ScoredChunk, 0, len(results))
	for _, r := range results {
		scored = append(scored, models.ScoredChunk{
			Chunk: toChunk(r),
			Score: r.Similarity,
		})
	}
	return scored, nil
}

// RebuildFrom discards the collection and repopulates it from chunks. Every
// embedding is computed first; the swap happens under the write lock.
func (m *Index) RebuildFrom(ctx context.Context, chunks []models.Chunk) error {
	docs, err := m.documents(ctx, chunks)
	if err != nil && !errors.Is(err, models.ErrNoValidChunks) {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.db.DeleteCollection(m.name); err != nil {
		return fmt.Errorf("%w: failed to drop collection: %v", models.ErrPersistence, err)
	}
	c, err := m.db.GetOrCreateCollection(m.name, nil, chromem.EmbeddingFunc(m.embed))
	if err != nil {
		return fmt.Errorf("%w: failed to create collection: %v", models.ErrPersistence, err)
	}
	m.collection = c

	if len(docs) > 0 {
		if err := c.AddDocuments(ctx, docs, m.workers); err != nil {
			return fmt.Errorf("%w: failed to add documents: %v", models.ErrPersistence, err)
		}
	}
	m.log.Info().Int("chunks", len(docs)).Msg("Rebuilt collection")
	return nil
}

// DeleteSource removes every chunk that came from sourceID
func (m *Index) DeleteSource(ctx context.Context, sourceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.collection.Delete(ctx, map[string]string{metaSource: sourceID}, nil); err != nil {
		return fmt.Errorf("%w: failed to delete %s: %v", models.ErrPersistence, sourceID, err)
	}
	return nil
}

func (m *Index) Count(_ context.Context) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.collection.Count()
}

// Export writes an (optionally encrypted) snapshot of the collection to filePath
func (m *Index) Export(filePath string, compress bool, encryptionKey string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	m.log.Debug().Str("collection", m.name).Str("file", filePath).Bool("compress", compress).Msg("Exporting collection")
	if err := m.db.ExportToFile(filePath, compress, encryptionKey, m.name); err != nil {
		return fmt.Errorf("failed to export database: %w", err)
	}
	return nil
}

// Import replaces the collection with the snapshot at filePath
func (m *Index) Import(filePath string, encryptionKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.db.ImportFromFile(filePath, encryptionKey, m.name); err != nil {
		return fmt.Errorf("failed to import database: %w", err)
	}
	c := m.db.GetCollection(m.name, chromem.EmbeddingFunc(m.embed))
	if c == nil {
		return fmt.Errorf("%w: snapshot has no collection %q", models.ErrNotFound, m.name)
	}
	m.collection = c
	return nil
}

// documents drops empty chunks and embeds the rest concurrently
func (m *Index) documents(ctx context.Context, chunks []models.Chunk) ([]chromem.Document, error) {
	valid := make([]models.Chunk, 0, len(chunks))
	for _, c := range chunks {
		if c.Text != "" {
			valid = append(valid, c)
		}
	}
	if len(valid) == 0 {
		return nil, models.ErrNoValidChunks
	}

	docs := make([]chromem.Document, len(valid))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers)
	for i, c := range valid {
		g.Go(func() error {
			vec := c.Vector
			if len(vec) == 0 {
				var err error
				vec, err = m.embed(gctx, c.Text)
				if err != nil {
					if errors.Is(err, models.ErrEmbedding) {
						return err
					}
					return fmt.Errorf("%w: %s: %v", models.ErrEmbedding, c.ChunkID, err)
				}
			}
			docs[i] = chromem.Document{
				ID:        c.ChunkID,
				Content:   c.Text,
				Metadata:  metadata(c),
				Embedding: vec,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return docs, nil
}

func metadata(c models.Chunk) map[string]string {
	md := map[string]string{
		metaSource:  c.SourceID,
		metaPath:    c.SourcePath,
		metaChunkID: c.ChunkID,
	}
	if c.PageNumber > 0 {
		md[metaPage] = strconv.Itoa(c.PageNumber)
	}
	return md
}

func toChunk(r chromem.Result) models.Chunk {
	page, _ := strconv.Atoi(r.Metadata[metaPage])
	return models.Chunk{
		ChunkID:    r.ID,
		SourceID:   r.Metadata[metaSource],
		SourcePath: r.Metadata[metaPath],
		PageNumber: page,
		Text:       r.Content,
		Vector:     r.Embedding,
	}
}
