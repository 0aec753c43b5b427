// Package config loads process configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/kozaktomas/faceid/internal/liveness"
	"github.com/kozaktomas/faceid/internal/vecindex"
)

type Config struct {
	Server   ServerConfig
	Index    IndexConfig
	Capture  CaptureConfig
	Matching MatchingConfig
	Liveness LivenessConfig
	Database DatabaseConfig
	OpenAI   OpenAIConfig
	Gemini   GeminiConfig
}

type ServerConfig struct {
	Host    string // defaults to 0.0.0.0
	Port    int    // defaults to 8080
	Workers int    // index worker pool size, defaults to GOMAXPROCS
}

type IndexConfig struct {
	Backend         string  // flat, ivfpq, hnsw or external
	Dimension       int     // embedding dimension, defaults to 512
	Path            string  // base path for index persistence (optional)
	Clusters        int     // IVF coarse clusters
	Subvectors      int     // PQ subquantizers
	Bits            int     // bits per PQ code
	TrainMinSamples int     // training buffer minimum
	ProbeRatio      float64 // fraction of clusters probed
	ProbeLimit      int     // cap on probed clusters
	MaxNeighbors    int     // HNSW M parameter
	Endpoint        string  // external backend endpoint
}

type CaptureConfig struct {
	DetectorURL string // face detector/embedder service, defaults to http://localhost:8000
}

type MatchingConfig struct {
	SimilarityThreshold float64 // defaults to 0.5
	TopK                int     // defaults to 5
	QualityThreshold    float64 // defaults to 0.5
}

type LivenessConfig struct {
	Kind     string // noop, texture, openai or gemini
	Enabled  bool
	FailOpen bool
}

type DatabaseConfig struct {
	Driver       string // postgres, mysql or memory
	URL          string // connection URL or DSN
	MaxOpenConns int    // default 25
	MaxIdleConns int    // default 5
}

type OpenAIConfig struct {
	Token string
}

type GeminiConfig struct {
	APIKey string
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable and parses it as a positive float.
// Returns the default value if the env var is unset, empty, or invalid.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return defaultVal
	}
	return b
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host:    envString("FACEID_HOST", "0.0.0.0"),
			Port:    envInt("FACEID_PORT", 8080),
			Workers: envInt("FACEID_INDEX_WORKERS", 0),
		},
		Index: IndexConfig{
			Backend:         envString("FACEID_INDEX_BACKEND", "flat"),
			Dimension:       envInt("FACEID_EMBEDDING_DIM", 512),
			Path:            os.Getenv("FACEID_INDEX_PATH"),
			Clusters:        envInt("FACEID_IVF_CLUSTERS", 0),
			Subvectors:      envInt("FACEID_PQ_SUBVECTORS", 0),
			Bits:            envInt("FACEID_PQ_BITS", 0),
			TrainMinSamples: envInt("FACEID_IVF_TRAIN_MIN", 0),
			ProbeRatio:      envFloat("FACEID_IVF_PROBE_RATIO", 0),
			ProbeLimit:      envInt("FACEID_IVF_PROBE_LIMIT", 0),
			MaxNeighbors:    envInt("FACEID_HNSW_NEIGHBORS", 0),
			Endpoint:        os.Getenv("FACEID_INDEX_ENDPOINT"),
		},
		Capture: CaptureConfig{
			DetectorURL: envString("FACEID_DETECTOR_URL", "http://localhost:8000"),
		},
		Matching: MatchingConfig{
			SimilarityThreshold: envFloat("FACEID_SIMILARITY_THRESHOLD", 0.5),
			TopK:                envInt("FACEID_TOP_K", 5),
			QualityThreshold:    envFloat("FACEID_QUALITY_THRESHOLD", 0.5),
		},
		Liveness: LivenessConfig{
			Kind:     envString("FACEID_LIVENESS_KIND", "noop"),
			Enabled:  envBool("FACEID_LIVENESS_ENABLED", false),
			FailOpen: envBool("FACEID_LIVENESS_FAIL_OPEN", false),
		},
		Database: DatabaseConfig{
			Driver:       envString("FACEID_DB_DRIVER", "memory"),
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		OpenAI: OpenAIConfig{
			Token: os.Getenv("OPENAI_TOKEN"),
		},
		Gemini: GeminiConfig{
			APIKey: os.Getenv("GEMINI_API_KEY"),
		},
	}
}

// Validate rejects bad configuration at startup. Unknown selector values
// fail here instead of silently falling back to a default.
func (c *Config) Validate() error {
	if _, err := vecindex.ParseType(c.Index.Backend); err != nil {
		return fmt.Errorf("FACEID_INDEX_BACKEND: %w", err)
	}
	if _, err := liveness.ParseKind(c.Liveness.Kind); err != nil {
		return fmt.Errorf("FACEID_LIVENESS_KIND: %w", err)
	}
	if c.Index.Dimension <= 0 {
		return fmt.Errorf("FACEID_EMBEDDING_DIM must be positive, got %d", c.Index.Dimension)
	}
	if c.Matching.SimilarityThreshold <= 0 || c.Matching.SimilarityThreshold > 1 {
		return fmt.Errorf("FACEID_SIMILARITY_THRESHOLD must be in (0, 1], got %f", c.Matching.SimilarityThreshold)
	}
	if c.Matching.QualityThreshold <= 0 || c.Matching.QualityThreshold > 1 {
		return fmt.Errorf("FACEID_QUALITY_THRESHOLD must be in (0, 1], got %f", c.Matching.QualityThreshold)
	}
	switch c.Database.Driver {
	case "postgres", "mysql", "memory":
	default:
		return fmt.Errorf("FACEID_DB_DRIVER must be postgres, mysql or memory, got %q", c.Database.Driver)
	}
	if c.Database.Driver != "memory" && c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required for the %s driver", c.Database.Driver)
	}
	return nil
}

// IndexOptions translates the configuration into backend options.
func (c *Config) IndexOptions() vecindex.Options {
	return vecindex.Options{
		Dimension:       c.Index.Dimension,
		Clusters:        c.Index.Clusters,
		Subvectors:      c.Index.Subvectors,
		Bits:            c.Index.Bits,
		TrainMinSamples: c.Index.TrainMinSamples,
		ProbeRatio:      c.Index.ProbeRatio,
		ProbeLimit:      c.Index.ProbeLimit,
		MaxNeighbors:    c.Index.MaxNeighbors,
		Endpoint:        c.Index.Endpoint,
	}
}
