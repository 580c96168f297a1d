package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/uptrace/bun"

	"github.com/treewskyblue/Medvise/internal/embedding"
	"github.com/treewskyblue/Medvise/internal/models"
)

// PGIndex stores chunks in a pgvector table and ranks them by cosine distance.
// Rebuilds run in a single transaction, so readers see either the old or the new rows.
type PGIndex struct {
	db    *bun.DB
	table string
	embed embedding.Func
	log   zerolog.Logger
}

func NewPGIndex(db *bun.DB, table string, embed embedding.Func, log zerolog.Logger) *PGIndex {
	return &PGIndex{db: db, table: table, embed: embed, log: log}
}

func (p *PGIndex) Add(ctx context.Context, chunks []models.Chunk) error {
	rows, err := p.rows(ctx, chunks)
	if err != nil {
		return err
	}
	return p.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return p.insert(ctx, tx, rows)
	})
}

func (p *PGIndex) Query(ctx context.Context, text string, k int) ([]models.ScoredChunk, error) {
	if k <= 0 {
		return nil, nil
	}
	vec, err := p.embed(ctx, text)
	if err != nil {
		return nil, err
	}

	var rows []ChunkRow
	err = p.searchQuery(&rows, vec, k).Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}

	out := make([]models.ScoredChunk, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.ScoredChunk{
			Chunk: models.Chunk{
				ChunkID:    r.ID,
				SourceID:   r.Source,
				SourcePath: r.Path,
				PageNumber: r.Page,
				Text:       r.Content,
			},
			Score: r.Score,
		})
	}
	return out, nil
}

func (p *PGIndex) RebuildFrom(ctx context.Context, chunks []models.Chunk) error {
	var rows []ChunkRow
	if len(chunks) > 0 {
		var err error
		rows, err = p.rows(ctx, chunks)
		if err != nil && !errors.Is(err, models.ErrNoValidChunks) {
			return err
		}
	}

	err := p.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := p.deleteQuery(tx).Where("TRUE").Exec(ctx); err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return p.insert(ctx, tx, rows)
	})
	if err != nil {
		return fmt.Errorf("%w: rebuild failed: %v", models.ErrPersistence, err)
	}
	p.log.Info().Int("chunks", len(rows)).Msg("Rebuilt chunk table")
	return nil
}

func (p *PGIndex) DeleteSource(ctx context.Context, sourceID string) error {
	_, err := p.deleteQuery(p.db).Where("source = ?", sourceID).Exec(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to delete %s: %v", models.ErrPersistence, sourceID, err)
	}
	return nil
}

func (p *PGIndex) Count(ctx context.Context) int {
	n, err := p.db.NewSelect().
		Model((*ChunkRow)(nil)).
		ModelTableExpr("? AS gc", bun.Ident(p.table)).
		Count(ctx)
	if err != nil {
		p.log.Warn().Err(err).Msg("Failed to count chunks")
		return 0
	}
	return n
}

func (p *PGIndex) insert(ctx context.Context, tx bun.Tx, rows []ChunkRow) error {
	if _, err := p.insertQuery(tx, &rows).Exec(ctx); err != nil {
		return fmt.Errorf("%w: failed to insert chunks: %v", models.ErrPersistence, err)
	}
	return nil
}

// searchQuery ranks rows by cosine distance to vec, nearest first
func (p *PGIndex) searchQuery(dest *[]ChunkRow, vec []float32, k int) *bun.SelectQuery {
	return p.db.NewSelect().
		Model(dest).
		ModelTableExpr("? AS gc", bun.Ident(p.table)).
		Column("id", "source", "path", "page", "content").
		ColumnExpr("1 - (embedding <=> ?) AS score", Vector(vec)).
		OrderExpr("embedding <=> ?", Vector(vec)).
		Limit(k)
}

func (p *PGIndex) deleteQuery(db bun.IDB) *bun.DeleteQuery {
	return db.NewDelete().
		Model((*ChunkRow)(nil)).
		ModelTableExpr("? AS gc", bun.Ident(p.table))
}

func (p *PGIndex) insertQuery(db bun.IDB, rows *[]ChunkRow) *bun.InsertQuery {
	return db.NewInsert().
		Model(rows).
		ModelTableExpr("?", bun.Ident(p.table))
}

func (p *PGIndex) rows(ctx context.Context, chunks []models.Chunk) ([]ChunkRow, error) {
	rows := make([]ChunkRow, 0, len(chunks))
	for _, c := range chunks {
		if c.Text == "" {
			continue
		}
		vec := c.Vector
		if len(vec) == 0 {
			var err error
			vec, err = p.embed(ctx, c.Text)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %v", models.ErrEmbedding, c.ChunkID, err)
			}
		}
		rows = append(rows, ChunkRow{
			ID:        c.ChunkID,
			Source:    c.SourceID,
			Path:      c.SourcePath,
			Page:      c.PageNumber,
			Content:   c.Text,
			Embedding: vec,
		})
	}
	if len(rows) == 0 {
		return nil, models.ErrNoValidChunks
	}
	return rows, nil
}
