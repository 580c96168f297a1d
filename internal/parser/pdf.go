package parser

import (
	"context"
	"errors"
	"fmt"

	"github.com/ledongthuc/pdf"

	"github.com/treewskyblue/Medvise/internal/models"
)

// PDFStrategy is one way of pulling per-page text out of a PDF.
// Strategies are tried in order until one yields at least one page.
type PDFStrategy interface {
	Name() string
	Extract(ctx context.Context, path, sourceID string) ([]models.TextUnit, error)
}

// TextLayerStrategy reads the embedded text layer page by page
type TextLayerStrategy struct{}

func (s *TextLayerStrategy) Name() string { return "text-layer" }

func (s *TextLayerStrategy) Extract(ctx context.Context, path, sourceID string) (units []models.TextUnit, err error) {
	// the pdf package panics on some malformed cross reference tables
	defer func() {
		if r := recover(); r != nil {
			units = nil
			err = fmt.Errorf("failed to parse pdf: %v", r)
		}
	}()

	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf: %w", err)
	}
	defer f.Close()

	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to read page %d: %w", i, err)
		}
		if Normalize(text) == "" {
			continue
		}
		units = append(units, models.TextUnit{
			SourceID:   sourceID,
			PageNumber: i,
			RawText:    text,
		})
	}
	return units, nil
}

func (l *Loader) loadPDF(ctx context.Context, path, sourceID string) ([]models.TextUnit, error) {
	var errs []error
	for _, s := range l.pdf {
		units, err := s.Extract(ctx, path, sourceID)
		if err != nil {
			l.log.Warn().Err(err).Str("source", sourceID).Str("strategy", s.Name()).Msg("PDF extraction failed")
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		if len(units) > 0 {
			l.log.Info().Str("source", sourceID).Str("strategy", s.Name()).Int("pages", len(units)).Msg("PDF text extracted")
			return units, nil
		}
		l.log.Info().Str("source", sourceID).Str("strategy", s.Name()).Msg("No text extracted, trying next strategy")
	}

	if len(errs) == 0 {
		return nil, fmt.Errorf("%w: %s: no extractable text", models.ErrUnreadable, sourceID)
	}
	return nil, fmt.Errorf("%w: %s: %v", models.ErrUnreadable, sourceID, errors.Join(errs...))
}
