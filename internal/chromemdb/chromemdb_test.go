package chromemdb

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/treewskyblue/Medvise/internal/embedding"
	"github.com/treewskyblue/Medvise/internal/models"
)

func testChunks(source string, texts ...string) []models.Chunk {
	chunks := make([]models.Chunk, 0, len(texts))
	for i, text := range texts {
		chunks = append(chunks, models.Chunk{
			ChunkID:    models.ChunkID(source, i+1),
			SourceID:   source,
			SourcePath: "/guidelines/" + source,
			PageNumber: i,
			Text:       text,
		})
	}
	return chunks
}

func newIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := NewInMemory("test", embedding.NewHashing(128).Embed, zerolog.Nop())
	require.NoError(t, err)
	return idx
}

func Test_Query_EmptyIndex(t *testing.T) {
	idx := newIndex(t)

	res, err := idx.Query(context.Background(), "glucose", 7)
	require.NoError(t, err)
	assert.Empty(t, res)
}

func Test_Add_Query_SelfSimilarity(t *testing.T) {
	idx := newIndex(t)
	ctx := context.Background()

	chunks := testChunks("nutrition.pdf",
		"Glucose infusion should start at 4 to 6 mg per kg per minute.",
		"Amino acids are advanced to 3.5 g per kg per day.",
		"Intravenous lipid emulsion starts at 1 g per kg per day.",
	)
	require.NoError(t, idx.Add(ctx, chunks))
	assert.Equal(t, 3, idx.Count(ctx))

	for _, c := range chunks {
		res, err := idx.Query(ctx, c.Text, 10)
		require.NoError(t, err)
		require.Len(t, res, 3)
		assert.Equal(t, c.ChunkID, res[0].Chunk.ChunkID)
		assert.Equal(t, c.Text, res[0].Chunk.Text)
		assert.Equal(t, "nutrition.pdf", res[0].Chunk.SourceID)
		assert.Equal(t, c.SourcePath, res[0].Chunk.SourcePath)
		assert.Equal(t, c.PageNumber, res[0].Chunk.PageNumber)
		assert.GreaterOrEqual(t, res[0].Score, res[1].Score)
		assert.GreaterOrEqual(t, res[1].Score, res[2].Score)
	}
}

func Test_Add_FiltersEmptyChunks(t *testing.T) {
	idx := newIndex(t)
	ctx := context.Background()

	err := idx.Add(ctx, testChunks("a.txt", "", ""))
	assert.ErrorIs(t, err, models.ErrNoValidChunks)

	require.NoError(t, idx.Add(ctx, testChunks("a.txt", "", "kept")))
	assert.Equal(t, 1, idx.Count(ctx))
}

func Test_Add_EmbeddingFailureKeepsCollection(t *testing.T) {
	ctx := context.Background()
	hashing := embedding.NewHashing(64)
	fail := false
	embed := func(ctx context.Context, text string) ([]float32, error) {
		if fail && strings.Contains(text, "broken") {
			return nil, errors.New("model unavailable")
		}
		return hashing.Embed(ctx, text)
	}

	idx, err := NewInMemory("test", embed, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, idx.Add(ctx, testChunks("a.txt", "first", "second")))

	fail = true
	err = idx.Add(ctx, testChunks("b.txt", "fine", "broken chunk"))
	assert.ErrorIs(t, err, models.ErrEmbedding)
	assert.Equal(t, 2, idx.Count(ctx))

	err = idx.RebuildFrom(ctx, testChunks("b.txt", "broken again"))
	assert.ErrorIs(t, err, models.ErrEmbedding)
	assert.Equal(t, 2, idx.Count(ctx))
}

func Test_RebuildFrom(t *testing.T) {
	idx := newIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx, testChunks("a.txt", "alpha one", "alpha two")))
	require.NoError(t, idx.Add(ctx, testChunks("b.txt", "beta one")))

	require.NoError(t, idx.RebuildFrom(ctx, testChunks("b.txt", "beta one")))
	assert.Equal(t, 1, idx.Count(ctx))

	res, err := idx.Query(ctx, "alpha one", 5)
	require.NoError(t, err)
	for _, r := range res {
		assert.NotEqual(t, "a.txt", r.Chunk.SourceID)
	}

	require.NoError(t, idx.RebuildFrom(ctx, nil))
	assert.Zero(t, idx.Count(ctx))
}

func Test_DeleteSource(t *testing.T) {
	idx := newIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx, testChunks("a.txt", "alpha one", "alpha two")))
	require.NoError(t, idx.Add(ctx, testChunks("b.txt", "beta one")))

	require.NoError(t, idx.DeleteSource(ctx, "a.txt"))
	assert.Equal(t, 1, idx.Count(ctx))

	res, err := idx.Query(ctx, "alpha", 5)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "b.txt", res[0].Chunk.SourceID)
}

func Test_Persistence(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "vector_db")
	embed := embedding.NewHashing(64).Embed
	ctx := context.Background()

	idx, err := New(Options{Path: dir, Collection: "guidelines"}, embed, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, idx.Add(ctx, testChunks("a.txt", "alpha one", "alpha two")))

	reopened, err := New(Options{Path: dir, Collection: "guidelines"}, embed, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 2, reopened.Count(ctx))
}

func Test_ConcurrentReadsDuringRebuild(t *testing.T) {
	idx := newIndex(t)
	ctx := context.Background()
	require.NoError(t, idx.Add(ctx, testChunks("a.txt", "alpha one", "alpha two", "alpha three")))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := idx.Query(ctx, "alpha", 3)
			assert.NoError(t, err)
			assert.True(t, len(res) == 3 || len(res) == 2, "observed a partial collection: %d", len(res))
		}()
	}
	require.NoError(t, idx.RebuildFrom(ctx, testChunks("b.txt", "beta one", "beta two")))
	wg.Wait()
}
