package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultChunkSize         = 1000
	defaultChunkOverlap      = 200
	defaultTopK              = 7
	defaultMaxReferences     = 3
	defaultPredictionURL     = "http://ml-backend:8000"
	defaultPredictionTimeout = 5 * time.Second
	defaultOCRLanguages      = "kor+eng"
	defaultLLMTimeout        = 60 * time.Second
)

type Config struct {
	Storage    StorageConfig    `yaml:"storage"`
	RAG        RAGConfig        `yaml:"rag"`
	Vector     VectorConfig     `yaml:"vector"`
	EmbedLLM   LLMConfig        `yaml:"embed_llm"`
	ChatLLM    LLMConfig        `yaml:"chat_llm"`
	Prediction PredictionConfig `yaml:"prediction"`
	Database   DatabaseConfig   `yaml:"database"`
	OCR        OCRConfig        `yaml:"ocr"`
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
}

// StorageConfig locates the guideline files and the persisted vector collection
type StorageConfig struct {
	GuidelinesDir string `yaml:"guidelines_dir"`
	VectorDBDir   string `yaml:"vector_db_dir"`
	Collection    string `yaml:"collection"`
	Compress      bool   `yaml:"compress"`
	Watch         bool   `yaml:"watch"`
	WatchDelayMs  int    `yaml:"watch_delay_ms"`
}

type RAGConfig struct {
	ChunkSize     int    `yaml:"chunk_size"`
	ChunkOverlap  int    `yaml:"chunk_overlap"`
	Splitter      string `yaml:"splitter"`
	TopK          int    `yaml:"top_k"`
	MaxReferences int    `yaml:"max_references"`
	// RebuildOnRemove forces a full rebuild even when the index supports selective delete.
	RebuildOnRemove bool `yaml:"rebuild_on_remove"`
}

type VectorConfig struct {
	Backend string `yaml:"backend"` // chromem or pgvector
}

type LLMConfig struct {
	Provider   string `yaml:"provider"` // openai, ollama or hashing
	BaseURL    string `yaml:"base_url"`
	Key        string `yaml:"key"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	TimeoutMs  int    `yaml:"timeout_ms"`
}

// Timeout bounds a single model call
func (l LLMConfig) Timeout() time.Duration {
	if l.TimeoutMs <= 0 {
		return defaultLLMTimeout
	}
	return time.Duration(l.TimeoutMs) * time.Millisecond
}

type PredictionConfig struct {
	BaseURL   string `yaml:"base_url"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

// Timeout returns the bounded request timeout for the prediction call
func (p PredictionConfig) Timeout() time.Duration {
	if p.TimeoutMs <= 0 {
		return defaultPredictionTimeout
	}
	return time.Duration(p.TimeoutMs) * time.Millisecond
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	Driver   string `yaml:"driver"` // pgdriver or pq
	Table    string `yaml:"table"`
	Debug    bool   `yaml:"debug"`
}

type OCRConfig struct {
	Disabled  bool   `yaml:"disabled"`
	Languages string `yaml:"languages"`
	DPI       int    `yaml:"dpi"`
}

type ServerConfig struct {
	Addr           string `yaml:"addr"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // console or json
}

// LoadConfig reads the YAML file at path; a missing file yields defaults.
// Values from .env and the process environment override the file.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("unable to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("unable to parse config file: %w", err)
		}
	}

	applyEnv(cfg)
	applyDefaults(cfg)
	return cfg, nil
}

// Default returns a configuration populated only with defaults
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		if cfg.ChatLLM.Key == "" {
			cfg.ChatLLM.Key = v
		}
		if cfg.EmbedLLM.Key == "" {
			cfg.EmbedLLM.Key = v
		}
	}
	if v := os.Getenv("ML_API_URL"); v != "" {
		cfg.Prediction.BaseURL = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Storage.GuidelinesDir == "" {
		cfg.Storage.GuidelinesDir = "./medical_guidelines"
	}
	if cfg.Storage.VectorDBDir == "" {
		cfg.Storage.VectorDBDir = "./data/vector_db"
	}
	if cfg.Storage.Collection == "" {
		cfg.Storage.Collection = "medical_guidelines"
	}
	if cfg.Storage.WatchDelayMs == 0 {
		cfg.Storage.WatchDelayMs = 500
	}

	if cfg.RAG.ChunkSize <= 0 {
		cfg.RAG.ChunkSize = defaultChunkSize
	}
	if cfg.RAG.ChunkOverlap == 0 {
		cfg.RAG.ChunkOverlap = defaultChunkOverlap
	}
	if cfg.RAG.ChunkOverlap < 0 || cfg.RAG.ChunkOverlap >= cfg.RAG.ChunkSize {
		cfg.RAG.ChunkOverlap = min(defaultChunkOverlap, cfg.RAG.ChunkSize/4)
	}
	if cfg.RAG.Splitter == "" {
		cfg.RAG.Splitter = "boundary"
	}
	if cfg.RAG.TopK <= 0 {
		cfg.RAG.TopK = defaultTopK
	}
	if cfg.RAG.MaxReferences <= 0 {
		cfg.RAG.MaxReferences = defaultMaxReferences
	}

	if cfg.Vector.Backend == "" {
		cfg.Vector.Backend = "chromem"
	}

	if cfg.EmbedLLM.Provider == "" {
		cfg.EmbedLLM.Provider = "ollama"
	}
	if cfg.EmbedLLM.Provider == "ollama" {
		if cfg.EmbedLLM.BaseURL == "" {
			cfg.EmbedLLM.BaseURL = "http://localhost:11434"
		}
		if cfg.EmbedLLM.Model == "" {
			cfg.EmbedLLM.Model = "nomic-embed-text"
		}
	}
	if cfg.EmbedLLM.Dimensions == 0 {
		cfg.EmbedLLM.Dimensions = 768
	}

	if cfg.ChatLLM.Provider == "" {
		cfg.ChatLLM.Provider = "openai"
	}
	if cfg.ChatLLM.Model == "" {
		cfg.ChatLLM.Model = "gpt-4.1-mini"
	}

	if cfg.Prediction.BaseURL == "" {
		cfg.Prediction.BaseURL = defaultPredictionURL
	}
	if cfg.Prediction.TimeoutMs <= 0 {
		cfg.Prediction.TimeoutMs = int(defaultPredictionTimeout / time.Millisecond)
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "pgdriver"
	}
	if cfg.Database.Table == "" {
		cfg.Database.Table = "guideline_chunks"
	}

	if cfg.OCR.Languages == "" {
		cfg.OCR.Languages = defaultOCRLanguages
	}
	if cfg.OCR.DPI == 0 {
		cfg.OCR.DPI = 300
	}

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":5000"
	}
	if cfg.Server.MaxUploadBytes == 0 {
		cfg.Server.MaxUploadBytes = 50 << 20
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
}
