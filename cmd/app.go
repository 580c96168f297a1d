package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/treewskyblue/Medvise/internal/chromemdb"
	"github.com/treewskyblue/Medvise/internal/chunker"
	"github.com/treewskyblue/Medvise/internal/config"
	"github.com/treewskyblue/Medvise/internal/db"
	"github.com/treewskyblue/Medvise/internal/embedding"
	"github.com/treewskyblue/Medvise/internal/guideline"
	"github.com/treewskyblue/Medvise/internal/helper"
	"github.com/treewskyblue/Medvise/internal/llmservice"
	"github.com/treewskyblue/Medvise/internal/orchestrator"
	"github.com/treewskyblue/Medvise/internal/parser"
	"github.com/treewskyblue/Medvise/internal/prediction"
	"github.com/treewskyblue/Medvise/internal/rag"
)

type vectorIndex interface {
	guideline.Index
	rag.Searcher
}

// app holds every wired component; nothing is a package-level singleton
type app struct {
	cfg    *config.Config
	log    zerolog.Logger
	index  vectorIndex
	chrom  *chromemdb.Index // nil when the pgvector backend is used
	store  *guideline.Store
	rag    *rag.RAG
	closer func()
}

func newApp(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*app, error) {
	if err := helper.CreateFolder(cfg.Storage.GuidelinesDir, cfg.Storage.VectorDBDir); err != nil {
		return nil, err
	}

	embed, err := embedding.New(cfg.EmbedLLM, log)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, log: log, closer: func() {}}
	switch cfg.Vector.Backend {
	case "chromem":
		idx, err := chromemdb.New(chromemdb.Options{
			Path:       cfg.Storage.VectorDBDir,
			Collection: cfg.Storage.Collection,
			Compress:   cfg.Storage.Compress,
		}, embed, log.With().Str("component", "chromem").Logger())
		if err != nil {
			return nil, err
		}
		a.index, a.chrom = idx, idx
	case "pgvector":
		sqldb, err := db.ConnectDB(cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("error connecting to database: %w", err)
		}
		bunDB := db.NewDB(sqldb, cfg.Database.Debug)
		if err := db.InitDB(ctx, bunDB, cfg.Database.Table); err != nil {
			bunDB.Close()
			return nil, fmt.Errorf("error initializing database: %w", err)
		}
		a.index = db.NewPGIndex(bunDB, cfg.Database.Table, embed, log.With().Str("component", "pgvector").Logger())
		a.closer = func() { bunDB.Close() }
	default:
		return nil, fmt.Errorf("unknown vector backend %q", cfg.Vector.Backend)
	}

	strategies := []parser.PDFStrategy{&parser.TextLayerStrategy{}}
	if !cfg.OCR.Disabled {
		strategies = append(strategies, parser.NewOCRStrategy(parser.ExecRunner{}, cfg.OCR.Languages, cfg.OCR.DPI, log))
	}
	loader := parser.NewLoader(
		chunker.ForStrategy(cfg.RAG.Splitter, cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap),
		log.With().Str("component", "loader").Logger(),
		parser.WithPDFStrategies(strategies...),
	)

	a.store, err = guideline.NewStore(guideline.Options{
		Dir:             cfg.Storage.GuidelinesDir,
		RebuildOnRemove: cfg.RAG.RebuildOnRemove,
	}, loader, a.index, log.With().Str("component", "store").Logger())
	if err != nil {
		a.closer()
		return nil, err
	}
	a.rag = rag.NewRAG(a.index, log.With().Str("component", "rag").Logger())
	return a, nil
}

// orchestrator wires the chat side, which needs a chat model key
func (a *app) orchestrator() (*orchestrator.Orchestrator, error) {
	model, err := llmservice.NewModel(a.cfg.ChatLLM)
	if err != nil {
		return nil, err
	}
	extractor := llmservice.NewExtractor(model, a.cfg.ChatLLM.Timeout(), a.log.With().Str("component", "extractor").Logger())
	predictor := prediction.NewClient(a.cfg.Prediction, a.log.With().Str("component", "prediction").Logger())

	return orchestrator.New(a.rag, extractor, predictor, orchestrator.Options{
		TopK:          a.cfg.RAG.TopK,
		MaxReferences: a.cfg.RAG.MaxReferences,
	}, a.log.With().Str("component", "orchestrator").Logger()), nil
}

func (a *app) reindex(ctx context.Context) error {
	res, err := a.store.ReindexAll(ctx)
	if err != nil {
		return err
	}
	for name, ferr := range res.Failures {
		a.log.Warn().Err(ferr).Str("filename", name).Msg("Guideline not indexed")
	}
	return nil
}

func (a *app) Close() { a.closer() }
