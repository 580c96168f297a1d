package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"github.com/treewskyblue/Medvise/internal/config"
)

// ChunkRow is one indexed chunk in the pgvector table
type ChunkRow struct {
	bun.BaseModel `bun:"table:guideline_chunks,alias:gc"`

	ID        string  `bun:"id,pk"`
	Source    string  `bun:"source,notnull"`
	Path      string  `bun:"path"`
	Page      int     `bun:"page,notnull,default:0"`
	Content   string  `bun:"content,notnull"`
	Embedding Vector  `bun:"embedding,notnull,type:vector"`
	Score     float32 `bun:"score,scanonly"`
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

// ConnectDB opens the database with either pgdriver or lib/pq
func ConnectDB(cfg config.DatabaseConfig) (*sql.DB, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("database url is required")
	}
	dsn := cfg.URL
	if !strings.Contains(dsn, "sslmode=") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "sslmode=disable"
	}

	switch cfg.Driver {
	case "pq":
		return sql.Open("postgres", dsn)
	case "pgdriver", "":
		opts := []pgdriver.Option{pgdriver.WithDSN(dsn)}
		if cfg.Password != "" {
			opts = append(opts, pgdriver.WithPassword(cfg.Password))
		}
		return sql.OpenDB(pgdriver.NewConnector(opts...)), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// InitDB enables pgvector and creates the chunk table
func InitDB(ctx context.Context, db *bun.DB, table string) error {
	if _, err := db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to enable pgvector: %w", err)
	}
	_, err := db.NewCreateTable().
		Model((*ChunkRow)(nil)).
		ModelTableExpr("?", bun.Ident(table)).
		IfNotExists().
		Exec(ctx)
	return err
}

// DropChunks drops the chunk table
func DropChunks(ctx context.Context, db *bun.DB, table string) error {
	_, err := db.NewDropTable().
		Model((*ChunkRow)(nil)).
		ModelTableExpr("?", bun.Ident(table)).
		IfExists().
		Exec(ctx)
	return err
}
