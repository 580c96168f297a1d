package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/treewskyblue/Medvise/internal/llmservice"
	"github.com/treewskyblue/Medvise/internal/models"
	"github.com/treewskyblue/Medvise/internal/orchestrator"
)

type Asker interface {
	Ask(ctx context.Context, req orchestrator.Request) (orchestrator.Response, error)
}

type Guidelines interface {
	List() ([]models.SourceDocument, error)
	Add(ctx context.Context, filename string, content io.Reader) (models.SourceDocument, error)
	Remove(ctx context.Context, filename string) error
	Path(filename string) (string, error)
}

type Server struct {
	asker          Asker
	guidelines     Guidelines
	maxUploadBytes int64
	md             goldmark.Markdown
	log            zerolog.Logger
}

func NewServer(asker Asker, guidelines Guidelines, maxUploadBytes int64, log zerolog.Logger) *Server {
	return &Server{
		asker:          asker,
		guidelines:     guidelines,
		maxUploadBytes: maxUploadBytes,
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(html.WithHardWraps()),
		),
		log: log,
	}
}

// Handler routes the REST API
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("GET /api/guidelines", s.handleListGuidelines)
	mux.HandleFunc("POST /api/guidelines", s.handleUploadGuideline)
	mux.HandleFunc("GET /api/guidelines/{filename}", s.handleGetGuideline)
	mux.HandleFunc("DELETE /api/guidelines/{filename}", s.handleDeleteGuideline)
	return enableCORS(mux)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

type chatRequest struct {
	Message string            `json:"message"`
	History []llmservice.Turn `json:"history"`
}

type chatResponse struct {
	TurnID       string             `json:"turn_id,omitempty"`
	Response     string             `json:"response"`
	ResponseHTML string             `json:"response_html,omitempty"`
	Prediction   map[string]float64 `json:"prediction,omitempty"`
	References   []models.Reference `json:"references"`
	Error        string             `json:"error,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		respondWithError(w, "message is required", http.StatusBadRequest)
		return
	}

	// a turn runs to completion even if the client goes away
	resp, err := s.asker.Ask(context.WithoutCancel(r.Context()), orchestrator.Request{
		Message: req.Message,
		History: req.History,
	})

	out := chatResponse{
		TurnID:     resp.TurnID,
		Response:   resp.Answer,
		References: resp.References,
		Error:      resp.Error,
	}
	if out.References == nil {
		out.References = []models.Reference{}
	}
	if resp.Prediction != nil {
		out.Prediction = resp.Prediction.Rounded()
	}
	if rendered, rerr := s.render(resp.Answer); rerr == nil {
		out.ResponseHTML = rendered
	} else {
		s.log.Warn().Err(rerr).Msg("Failed to render answer")
	}

	status := http.StatusOK
	if err != nil || resp.Failed {
		status = http.StatusInternalServerError
	}
	respondWithJSON(w, status, out)
}

func (s *Server) render(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := s.md.Convert([]byte(markdown), &buf); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}

type guidelineView struct {
	Filename  string           `json:"filename"`
	Path      string           `json:"path"`
	Size      int64            `json:"size"`
	Extension string           `json:"extension"`
	MediaType models.MediaType `json:"media_type,omitempty"`
}

func (s *Server) handleListGuidelines(w http.ResponseWriter, r *http.Request) {
	docs, err := s.guidelines.List()
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to list guidelines")
		respondWithError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	views := make([]guidelineView, 0, len(docs))
	for _, d := range docs {
		views = append(views, guidelineView{
			Filename:  d.ID,
			Path:      d.Path,
			Size:      d.SizeBytes,
			Extension: strings.ToLower(filepath.Ext(d.ID)),
			MediaType: d.MediaType,
		})
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"guidelines": views})
}

func (s *Server) handleUploadGuideline(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondWithError(w, "file too large", http.StatusRequestEntityTooLarge)
			return
		}
		respondWithError(w, "no file uploaded", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondWithError(w, "no file uploaded", http.StatusBadRequest)
		return
	}
	defer file.Close()
	if header.Filename == "" {
		respondWithError(w, "no file selected", http.StatusBadRequest)
		return
	}

	doc, err := s.guidelines.Add(context.WithoutCancel(r.Context()), header.Filename, file)
	switch {
	case errors.Is(err, models.ErrInvalidInput), errors.Is(err, models.ErrUnsupportedMediaType):
		respondWithError(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		s.log.Error().Err(err).Str("filename", header.Filename).Msg("Guideline upload failed")
		respondWithError(w, "failed to process guideline: "+err.Error(), http.StatusInternalServerError)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{
		"message":  "Guideline uploaded successfully.",
		"filename": doc.ID,
	})
}

func (s *Server) handleGetGuideline(w http.ResponseWriter, r *http.Request) {
	path, err := s.guidelines.Path(r.PathValue("filename"))
	if err != nil {
		respondWithError(w, "guideline not found", http.StatusNotFound)
		return
	}
	http.ServeFile(w, r, path)
}

func (s *Server) handleDeleteGuideline(w http.ResponseWriter, r *http.Request) {
	name := filepath.Base(r.PathValue("filename"))
	err := s.guidelines.Remove(context.WithoutCancel(r.Context()), name)
	switch {
	case errors.Is(err, models.ErrNotFound):
		respondWithError(w, "guideline not found", http.StatusNotFound)
		return
	case err != nil:
		s.log.Error().Err(err).Str("filename", name).Msg("Guideline delete failed")
		respondWithError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Guideline '%s' deleted.", name),
	})
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func respondWithJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondWithError(w http.ResponseWriter, message string, status int) {
	respondWithJSON(w, status, map[string]string{"error": message})
}
