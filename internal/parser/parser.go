package parser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/treewskyblue/Medvise/internal/chunker"
	"github.com/treewskyblue/Medvise/internal/models"
)

var (
	manyNewlines = regexp.MustCompile(`\n{3,}`)
	manySpaces   = regexp.MustCompile(`\s{2,}`)
)

// Normalize collapses newline and whitespace runs and trims the result
func Normalize(text string) string {
	text = manyNewlines.ReplaceAllString(text, "\n\n")
	text = manySpaces.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// Loader turns guideline files into text units and chunks
type Loader struct {
	chunker *chunker.Chunker
	pdf     []PDFStrategy
	workers int
	log     zerolog.Logger
}

type LoaderOption func(*Loader)

// WithPDFStrategies replaces the ordered list of PDF extraction strategies.
func WithPDFStrategies(strategies ...PDFStrategy) LoaderOption {
	return func(l *Loader) {
		l.pdf = strategies
	}
}

// WithWorkers bounds how many files LoadAll reads at once.
func WithWorkers(n int) LoaderOption {
	return func(l *Loader) {
		if n > 0 {
			l.workers = n
		}
	}
}

func NewLoader(c *chunker.Chunker, log zerolog.Logger, opts ...LoaderOption) *Loader {
	l := &Loader{
		chunker: c,
		pdf:     []PDFStrategy{&TextLayerStrategy{}},
		workers: 4,
		log:     log,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load extracts the text units of one file according to its media type
func (l *Loader) Load(ctx context.Context, path string, mediaType models.MediaType) ([]models.TextUnit, error) {
	sourceID := filepath.Base(path)

	switch mediaType {
	case models.MediaTypeText, models.MediaTypeMarkdown:
		return loadPlain(path, sourceID)
	case models.MediaTypePDF:
		return l.loadPDF(ctx, path, sourceID)
	case models.MediaTypeWord:
		return loadWord(path, sourceID)
	case models.MediaTypeSpreadsheet:
		return loadSpreadsheet(path, sourceID)
	default:
		return nil, fmt.Errorf("%w: %q", models.ErrUnsupportedMediaType, mediaType)
	}
}

// LoadChunks loads a file, normalizes every unit and splits it into chunks
func (l *Loader) LoadChunks(ctx context.Context, path string, mediaType models.MediaType) ([]models.Chunk, error) {
	units, err := l.Load(ctx, path, mediaType)
	if err != nil {
		return nil, err
	}
	return l.Chunk(path, units), nil
}

// Chunk splits units into chunks with ids stable across runs
func (l *Loader) Chunk(path string, units []models.TextUnit) []models.Chunk {
	var chunks []models.Chunk
	seq := 0
	for _, u := range units {
		for _, piece := range l.chunker.Split(Normalize(u.RawText)) {
			seq++
			chunks = append(chunks, models.Chunk{
				ChunkID:    models.ChunkID(u.SourceID, seq),
				SourceID:   u.SourceID,
				SourcePath: path,
				PageNumber: u.PageNumber,
				Text:       piece,
			})
		}
	}
	return chunks
}

func loadPlain(path, sourceID string) ([]models.TextUnit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", models.ErrUnreadable, sourceID, err)
	}

	text := strings.ToValidUTF8(string(data), "")
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	return []models.TextUnit{{SourceID: sourceID, RawText: text}}, nil
}
