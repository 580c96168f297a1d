package models

import (
	"fmt"
	"path/filepath"
	"strings"
)

// MediaType is the declared kind of a guideline source file
type MediaType string

const (
	MediaTypeText        MediaType = "text"
	MediaTypeMarkdown    MediaType = "markdown"
	MediaTypePDF         MediaType = "pdf"
	MediaTypeWord        MediaType = "word"
	MediaTypeSpreadsheet MediaType = "spreadsheet"
)

var extensionMediaTypes = map[string]MediaType{
	".txt":      MediaTypeText,
	".md":       MediaTypeMarkdown,
	".markdown": MediaTypeMarkdown,
	".pdf":      MediaTypePDF,
	".docx":     MediaTypeWord,
	".doc":      MediaTypeWord,
	".odt":      MediaTypeWord,
	".xlsx":     MediaTypeSpreadsheet,
}

// MediaTypeFromPath maps a file extension to its media type
func MediaTypeFromPath(path string) (MediaType, error) {
	ext := strings.ToLower(filepath.Ext(path))
	mt, ok := extensionMediaTypes[ext]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedMediaType, ext)
	}
	return mt, nil
}

// IsSupported reports whether files with this path's extension can be ingested
func IsSupported(path string) bool {
	_, err := MediaTypeFromPath(path)
	return err == nil
}

// SourceDocument is a guideline file held in durable storage
type SourceDocument struct {
	ID        string    `json:"filename"`
	Path      string    `json:"path"`
	MediaType MediaType `json:"media_type"`
	SizeBytes int64     `json:"size"`
}

// TextUnit is one logical unit of a document before chunking (a PDF page, a whole text file)
type TextUnit struct {
	SourceID   string
	PageNumber int // 0 when the source is not paginated
	RawText    string
}

// Chunk is the atomic indexed unit
type Chunk struct {
	ChunkID    string
	SourceID   string
	SourcePath string
	PageNumber int
	Text       string
	Vector     []float32
}

// ChunkID derives a stable identifier from the source and the chunk sequence
func ChunkID(sourceID string, seq int) string {
	return fmt.Sprintf("%s#%d", sourceID, seq)
}

// ScoredChunk is a query hit, best-first ordered by the caller
type ScoredChunk struct {
	Chunk Chunk
	Score float32
}

// Reference is a provenance entry handed back to the caller
type Reference struct {
	Index    int    `json:"index"`
	Content  string `json:"content"`
	Source   string `json:"source"`
	Filename string `json:"filename"`
	Page     int    `json:"page,omitempty"`
}
