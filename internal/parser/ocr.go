package parser

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/treewskyblue/Medvise/internal/models"
)

const defaultOCRCommandTimeout = 2 * time.Minute

// CommandRunner executes an external program and returns its stdout.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// OCRStrategy rasterizes every page with pdftoppm and reads it back with tesseract
type OCRStrategy struct {
	runner    CommandRunner
	languages string
	dpi       int
	timeout   time.Duration
	log       zerolog.Logger
}

func NewOCRStrategy(runner CommandRunner, languages string, dpi int, log zerolog.Logger) *OCRStrategy {
	if runner == nil {
		runner = ExecRunner{}
	}
	if dpi <= 0 {
		dpi = 300
	}
	return &OCRStrategy{
		runner:    runner,
		languages: languages,
		dpi:       dpi,
		timeout:   defaultOCRCommandTimeout,
		log:       log,
	}
}

func (s *OCRStrategy) Name() string { return "ocr" }

func (s *OCRStrategy) Extract(ctx context.Context, path, sourceID string) ([]models.TextUnit, error) {
	tmp, err := os.MkdirTemp("", "medvise-ocr-")
	if err != nil {
		return nil, fmt.Errorf("failed to create raster dir: %w", err)
	}
	defer os.RemoveAll(tmp)

	prefix := filepath.Join(tmp, "page")
	if err := s.run(ctx, "pdftoppm", "-r", strconv.Itoa(s.dpi), "-png", path, prefix); err != nil {
		return nil, fmt.Errorf("failed to rasterize pdf: %w", err)
	}

	images, err := rasterPages(prefix)
	if err != nil {
		return nil, err
	}
	if len(images) == 0 {
		return nil, fmt.Errorf("rasterizer produced no pages")
	}

	var units []models.TextUnit
	for _, img := range images {
		args := []string{img.path, "stdout"}
		if s.languages != "" {
			args = append(args, "-l", s.languages)
		}
		out, err := s.output(ctx, "tesseract", args...)
		if err != nil {
			s.log.Warn().Err(err).Str("source", sourceID).Int("page", img.page).Msg("OCR failed for page")
			continue
		}
		text := strings.TrimSpace(string(out))
		if text == "" {
			continue
		}
		units = append(units, models.TextUnit{
			SourceID:   sourceID,
			PageNumber: img.page,
			RawText:    text,
		})
	}
	return units, nil
}

func (s *OCRStrategy) run(ctx context.Context, name string, args ...string) error {
	_, err := s.output(ctx, name, args...)
	return err
}

func (s *OCRStrategy) output(ctx context.Context, name string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.runner.Run(ctx, name, args...)
}

type rasterPage struct {
	path string
	page int
}

// rasterPages lists prefix-N.png files ordered by page number
func rasterPages(prefix string) ([]rasterPage, error) {
	matches, err := filepath.Glob(prefix + "-*.png")
	if err != nil {
		return nil, fmt.Errorf("failed to list raster pages: %w", err)
	}

	pages := make([]rasterPage, 0, len(matches))
	for _, m := range matches {
		num := strings.TrimSuffix(strings.TrimPrefix(m, prefix+"-"), ".png")
		n, err := strconv.Atoi(num)
		if err != nil {
			continue
		}
		pages = append(pages, rasterPage{path: m, page: n})
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].page < pages[j].page })
	return pages, nil
}
