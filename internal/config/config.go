// Package config provides YAML-based configuration for the OIP assistant.
// Configuration is loaded with a layered precedence: defaults → YAML file → env vars.
// Environment variables always win, so existing workflows are unaffected.
//
// File search order:
//  1. --config CLI flag (explicit path)
//  2. OIPA_CONFIG environment variable
//  3. ~/.oipa/config.yaml
//  4. ./oipa.yaml
//
// If no file is found the system runs entirely from env vars (backwards compatible).
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration structure.
// Field names use yaml tags that mirror the env var naming (lowercase, underscored).
type Config struct {
	// Completion configures the LLM completion gateway.
	Completion CompletionConfig `yaml:"completion"`

	// Embedding configures the embedding gateway for retrieval.
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Retrieval configures chunking and vector search.
	Retrieval RetrievalConfig `yaml:"retrieval"`

	// Qdrant configures the optional Qdrant vector store backend.
	Qdrant QdrantConfig `yaml:"qdrant"`

	// Tickets configures the ticket metrics database.
	Tickets TicketsConfig `yaml:"tickets"`

	// Sessions configures conversation session persistence.
	Sessions SessionsConfig `yaml:"sessions"`

	// Server configures the HTTP server.
	Server ServerConfig `yaml:"server"`

	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`
}

// CompletionConfig holds LLM completion gateway settings.
type CompletionConfig struct {
	// BaseURL is the OpenAI-compatible API base (e.g. https://openrouter.ai/api/v1).
	BaseURL string `yaml:"base_url"`
	// APIKey is the completion API key. Prefer env var OPENROUTER_API_KEY.
	APIKey string `yaml:"api_key"`
	// Model is the completion model name (e.g. "openai/gpt-4o-mini").
	Model string `yaml:"model"`
	// MaxTokens caps the tokens generated per answer.
	MaxTokens int `yaml:"max_tokens"`
	// Temperature controls response randomness (0.0–2.0).
	Temperature float32 `yaml:"temperature"`
}

// EmbeddingConfig holds embedding gateway settings.
type EmbeddingConfig struct {
	// Provider selects the embedding backend (openai, ollama).
	Provider string `yaml:"provider"`
	// Model is the embedding model name.
	Model string `yaml:"model"`
	// Dimensions overrides the embedding vector size.
	Dimensions int `yaml:"dimensions"`
	// APIKey is the embedding API key. Prefer env var EMBEDDING_API_KEY.
	APIKey string `yaml:"api_key"`
	// Endpoint is the embedding API endpoint.
	Endpoint string `yaml:"endpoint"`
}

// RetrievalConfig holds chunking and vector search settings.
type RetrievalConfig struct {
	// DocsDir is the directory scanned by `oipa ingest`.
	DocsDir string `yaml:"docs_dir"`
	// IndexDir is the directory holding the persisted flat index.
	IndexDir string `yaml:"index_dir"`
	// ChunkSize is the maximum chunk length in characters.
	ChunkSize int `yaml:"chunk_size"`
	// ChunkOverlap is the cross-chunk overlap in characters.
	ChunkOverlap int `yaml:"chunk_overlap"`
	// TopK is the default number of search results per query.
	TopK int `yaml:"top_k"`
	// Threshold is the minimum similarity score for a result to be used.
	Threshold float64 `yaml:"threshold"`
	// Backend selects the vector store: flat (default) or qdrant.
	Backend string `yaml:"backend"`
}

// QdrantConfig holds Qdrant vector store settings.
type QdrantConfig struct {
	// Host is the Qdrant server hostname.
	Host string `yaml:"host"`
	// Port is the Qdrant gRPC port.
	Port int `yaml:"port"`
	// Collection is the Qdrant collection name.
	Collection string `yaml:"collection"`
	// APIKey is the Qdrant API key. Prefer env var QDRANT_API_KEY.
	APIKey string `yaml:"api_key"`
	// TLS enables TLS for the Qdrant connection.
	TLS bool `yaml:"tls"`
}

// TicketsConfig holds ticket metrics database settings.
type TicketsConfig struct {
	// DBPath is the SQLite database path for the ticket store.
	DBPath string `yaml:"db_path"`
}

// SessionsConfig holds conversation session settings.
type SessionsConfig struct {
	// DBPath is the SQLite transcript database path. Set to "disabled" to
	// keep transcripts in process memory only.
	DBPath string `yaml:"db_path"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the bind address.
	Host string `yaml:"host"`
	// Port is the TCP port.
	Port int `yaml:"port"`
	// APIKey is the Bearer token for API authentication. Prefer env var OIPA_API_KEY.
	APIKey string `yaml:"api_key"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is the log output format: json, text.
	Format string `yaml:"format"`
}

// envMapping maps YAML config fields to their corresponding env var names.
// Only non-empty YAML values are applied; env vars always take precedence.
var envMapping = []struct {
	envKey string
	value  func(*Config) string
}{
	{"COMPLETION_BASE_URL", func(c *Config) string { return c.Completion.BaseURL }},
	{"OPENROUTER_API_KEY", func(c *Config) string { return c.Completion.APIKey }},
	{"COMPLETION_MODEL", func(c *Config) string { return c.Completion.Model }},
	{"COMPLETION_MAX_TOKENS", func(c *Config) string { return intStr(c.Completion.MaxTokens) }},
	{"COMPLETION_TEMPERATURE", func(c *Config) string { return float32Str(c.Completion.Temperature) }},
	{"EMBEDDING_PROVIDER", func(c *Config) string { return c.Embedding.Provider }},
	{"EMBEDDING_MODEL", func(c *Config) string { return c.Embedding.Model }},
	{"EMBEDDING_DIMENSIONS", func(c *Config) string { return intStr(c.Embedding.Dimensions) }},
	{"EMBEDDING_API_KEY", func(c *Config) string { return c.Embedding.APIKey }},
	{"EMBEDDING_ENDPOINT", func(c *Config) string { return c.Embedding.Endpoint }},
	{"OIPA_DOCS_DIR", func(c *Config) string { return c.Retrieval.DocsDir }},
	{"OIPA_INDEX_DIR", func(c *Config) string { return c.Retrieval.IndexDir }},
	{"CHUNK_SIZE", func(c *Config) string { return intStr(c.Retrieval.ChunkSize) }},
	{"CHUNK_OVERLAP", func(c *Config) string { return intStr(c.Retrieval.ChunkOverlap) }},
	{"RETRIEVAL_TOP_K", func(c *Config) string { return intStr(c.Retrieval.TopK) }},
	{"RETRIEVAL_THRESHOLD", func(c *Config) string { return float64Str(c.Retrieval.Threshold) }},
	{"VECTOR_BACKEND", func(c *Config) string { return c.Retrieval.Backend }},
	{"QDRANT_HOST", func(c *Config) string { return c.Qdrant.Host }},
	{"QDRANT_PORT", func(c *Config) string { return intStr(c.Qdrant.Port) }},
	{"QDRANT_COLLECTION", func(c *Config) string { return c.Qdrant.Collection }},
	{"QDRANT_API_KEY", func(c *Config) string { return c.Qdrant.APIKey }},
	{"QDRANT_TLS", func(c *Config) string { return boolStr(c.Qdrant.TLS) }},
	{"TICKETS_DB", func(c *Config) string { return c.Tickets.DBPath }},
	{"SESSION_DB", func(c *Config) string { return c.Sessions.DBPath }},
	{"OIPA_HOST", func(c *Config) string { return c.Server.Host }},
	{"OIPA_PORT", func(c *Config) string { return intStr(c.Server.Port) }},
	{"OIPA_API_KEY", func(c *Config) string { return c.Server.APIKey }},
	{"LOG_LEVEL", func(c *Config) string { return c.Logging.Level }},
	{"LOG_FORMAT", func(c *Config) string { return c.Logging.Format }},
}

// Load reads a YAML config file and applies non-empty values as environment
// variables. Existing env vars are never overwritten (env always wins).
// Returns the path that was loaded, or empty string if no file was found.
func Load(explicitPath string, log *slog.Logger) (string, error) {
	path := resolveConfigPath(explicitPath)
	if path == "" {
		log.Debug("config: no YAML config file found, using env vars only")
		return "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return "", fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	applied := 0
	for _, m := range envMapping {
		yamlVal := m.value(&cfg)
		if yamlVal == "" || yamlVal == "0" || yamlVal == "false" {
			continue
		}
		if os.Getenv(m.envKey) != "" {
			continue // env var already set — do not override
		}
		os.Setenv(m.envKey, yamlVal)
		applied++
	}

	log.Info("config: loaded YAML config",
		slog.String("path", path),
		slog.Int("keys_applied", applied),
	)

	return path, nil
}

// resolveConfigPath returns the first config file path that exists.
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit
		}
		return ""
	}

	if envPath := os.Getenv("OIPA_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	home, err := os.UserHomeDir()
	if err == nil {
		p := filepath.Join(home, ".oipa", "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	if _, err := os.Stat("oipa.yaml"); err == nil {
		return "oipa.yaml"
	}

	return ""
}

// intStr converts an int to string, returning "" for zero values.
func intStr(v int) string {
	if v == 0 {
		return ""
	}
	return fmt.Sprintf("%d", v)
}

// float32Str converts a float32 to string, returning "" for zero values.
func float32Str(v float32) string {
	if v == 0 {
		return ""
	}
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.4f", v), "0"), ".")
}

// float64Str converts a float64 to string, returning "" for zero values.
func float64Str(v float64) string {
	if v == 0 {
		return ""
	}
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.4f", v), "0"), ".")
}

// boolStr converts a bool to string, returning "" for false.
func boolStr(v bool) string {
	if !v {
		return ""
	}
	return "true"
}
