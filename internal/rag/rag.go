package rag

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/treewskyblue/Medvise/internal/models"
)

// Searcher is the query side of a vector index
type Searcher interface {
	Query(ctx context.Context, text string, k int) ([]models.ScoredChunk, error)
}

// Result is the ranked hit list and the context string assembled from it
type Result struct {
	Items   []models.ScoredChunk
	Context string
}

// Empty reports whether nothing relevant was found
func (r Result) Empty() bool { return len(r.Items) == 0 }

// References turns at most max hits into caller-facing provenance entries
func (r Result) References(max int) []models.Reference {
	n := min(max, len(r.Items))
	refs := make([]models.Reference, 0, n)
	for i := 0; i < n; i++ {
		c := r.Items[i].Chunk
		refs = append(refs, models.Reference{
			Index:    i + 1,
			Content:  c.Text,
			Source:   c.SourcePath,
			Filename: c.SourceID,
			Page:     c.PageNumber,
		})
	}
	return refs
}

type RAG struct {
	index Searcher
	log   zerolog.Logger
}

func NewRAG(index Searcher, log zerolog.Logger) *RAG {
	return &RAG{index: index, log: log}
}

// Retrieve returns up to k chunks for query and their combined context.
// An empty index gives an empty Result, not an error.
func (r *RAG) Retrieve(ctx context.Context, query string, k int) (Result, error) {
	hits, err := r.index.Query(ctx, query, k)
	if err != nil {
		return Result{}, fmt.Errorf("failed to retrieve context: %w", err)
	}
	if len(hits) == 0 {
		r.log.Warn().Str("query", query).Msg("No relevant guideline found")
		return Result{}, nil
	}

	var b strings.Builder
	for i, h := range hits {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(Header(h.Chunk))
		b.WriteString("\n")
		b.WriteString(h.Chunk.Text)
	}
	combined := b.String()

	r.log.Info().
		Int("chunks", len(hits)).
		Int("context_length", len([]rune(combined))).
		Msg("Retrieved guideline context")
	return Result{Items: hits, Context: combined}, nil
}

// Header is the provenance line written above each chunk in the context
func Header(c models.Chunk) string {
	name := c.SourceID
	if name == "" {
		name = filepath.Base(c.SourcePath)
	}
	if c.PageNumber > 0 {
		return fmt.Sprintf("[Source: %s (page %d)]", name, c.PageNumber)
	}
	return fmt.Sprintf("[Source: %s]", name)
}
