package parser

import (
	"fmt"
	"html"
	"path/filepath"
	"regexp"
	"strings"

	"code.sajari.com/docconv/v2"
	"github.com/nguyenthenguyen/docx"
	"github.com/xuri/excelize/v2"

	"github.com/treewskyblue/Medvise/internal/models"
)

var (
	docxParagraphEnd = regexp.MustCompile(`</w:p>|<w:br/>|<w:tab/>`)
	xmlTag           = regexp.MustCompile(`<[^>]+>`)
)

// loadWord flattens a word-processor document into one unit
func loadWord(path, sourceID string) ([]models.TextUnit, error) {
	var (
		text string
		err  error
	)
	if strings.ToLower(filepath.Ext(path)) == ".docx" {
		text, err = readDOCX(path)
	} else {
		text, err = readWithDocconv(path)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", models.ErrUnreadable, sourceID, err)
	}

	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	return []models.TextUnit{{SourceID: sourceID, RawText: text}}, nil
}

func readDOCX(path string) (string, error) {
	r, err := docx.ReadDocxFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read docx: %w", err)
	}
	defer r.Close()

	// GetContent returns the raw document.xml body
	content := r.Editable().GetContent()
	content = docxParagraphEnd.ReplaceAllStringFunc(content, func(tag string) string {
		if tag == "<w:tab/>" {
			return "\t"
		}
		return "\n"
	})
	content = xmlTag.ReplaceAllString(content, "")
	return html.UnescapeString(content), nil
}

func readWithDocconv(path string) (string, error) {
	res, err := docconv.ConvertPath(path)
	if err != nil {
		return "", fmt.Errorf("failed to read document: %w", err)
	}
	return res.Body, nil
}

// loadSpreadsheet yields one unit per non-empty sheet
func loadSpreadsheet(path, sourceID string) ([]models.TextUnit, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", models.ErrUnreadable, sourceID, err)
	}
	defer f.Close()

	var units []models.TextUnit
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			continue
		}

		var text strings.Builder
		text.WriteString(fmt.Sprintf("## Sheet: %s\n", sheet))
		cells := 0
		for _, row := range rows {
			for _, cell := range row {
				if cell != "" {
					cells++
				}
				text.WriteString(cell + "\t")
			}
			text.WriteString("\n")
		}
		if cells == 0 {
			continue
		}
		units = append(units, models.TextUnit{SourceID: sourceID, RawText: text.String()})
	}
	return units, nil
}
