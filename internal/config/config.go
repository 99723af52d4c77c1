package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Corpus    CorpusConfig
	Chunking  ChunkingConfig
	Retrieval RetrievalConfig
	LLM       LLMConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type DatabaseConfig struct {
	URL            string
	MaxConns       int
	MinConns       int
	MigrationsPath string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type CorpusConfig struct {
	Root            string
	WatchDebounce   time.Duration
	ReindexInterval time.Duration
}

type ChunkingConfig struct {
	MaxChunkSize   int
	MinChunkSize   int
	SentenceSplit  bool
	PreserveURLs   bool
	PreserveEmails bool
}

type RetrievalConfig struct {
	MaxResults        int     // top-k candidates per search
	MinSimilarity     float64 // similarity floor applied after top-k
	MinResults        int     // below this the fallback path activates
	FallbackToAllDocs bool
	FallbackLimit     int
	EvidenceBudget    int // max tokens of context handed to generation
	EmbedTimeout      time.Duration
}

type LLMConfig struct {
	OpenAIKey       string
	AnthropicKey    string
	OllamaURL       string
	Provider        string
	EmbeddingModel  string
	GenerationModel string
}

func Load() (*Config, error) {
	port, err := getEnvInt("SERVER_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT: %w", err)
	}
	maxConns, err := getEnvInt("DB_MAX_CONNS", 20)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MAX_CONNS: %w", err)
	}
	minConns, err := getEnvInt("DB_MIN_CONNS", 5)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MIN_CONNS: %w", err)
	}
	redisDB, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	maxChunk, err := getEnvInt("MAX_CHUNK_SIZE", 200)
	if err != nil {
		return nil, fmt.Errorf("invalid MAX_CHUNK_SIZE: %w", err)
	}
	minChunk, err := getEnvInt("MIN_CHUNK_SIZE", 20)
	if err != nil {
		return nil, fmt.Errorf("invalid MIN_CHUNK_SIZE: %w", err)
	}
	maxResults, err := getEnvInt("MAX_RESULTS", 20)
	if err != nil {
		return nil, fmt.Errorf("invalid MAX_RESULTS: %w", err)
	}
	minResults, err := getEnvInt("MIN_RESULTS", 1)
	if err != nil {
		return nil, fmt.Errorf("invalid MIN_RESULTS: %w", err)
	}
	fallbackLimit, err := getEnvInt("FALLBACK_LIMIT", 50)
	if err != nil {
		return nil, fmt.Errorf("invalid FALLBACK_LIMIT: %w", err)
	}
	evidenceBudget, err := getEnvInt("EVIDENCE_BUDGET_TOKENS", 2048)
	if err != nil {
		return nil, fmt.Errorf("invalid EVIDENCE_BUDGET_TOKENS: %w", err)
	}
	minSimilarity, err := getEnvFloat("MIN_SIMILARITY_THRESHOLD", 0.15)
	if err != nil {
		return nil, fmt.Errorf("invalid MIN_SIMILARITY_THRESHOLD: %w", err)
	}
	watchDebounce, err := getEnvDuration("CORPUS_WATCH_DEBOUNCE", 2*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid CORPUS_WATCH_DEBOUNCE: %w", err)
	}
	reindexInterval, err := getEnvDuration("REINDEX_INTERVAL", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("invalid REINDEX_INTERVAL: %w", err)
	}
	embedTimeout, err := getEnvDuration("EMBED_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid EMBED_TIMEOUT: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: port,
		},
		Database: DatabaseConfig{
			URL:            getEnv("DATABASE_URL", ""),
			MaxConns:       maxConns,
			MinConns:       minConns,
			MigrationsPath: getEnv("MIGRATIONS_PATH", "migrations"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Corpus: CorpusConfig{
			Root:            getEnv("CORPUS_ROOT", "data"),
			WatchDebounce:   watchDebounce,
			ReindexInterval: reindexInterval,
		},
		Chunking: ChunkingConfig{
			MaxChunkSize:   maxChunk,
			MinChunkSize:   minChunk,
			SentenceSplit:  getEnvBool("SENTENCE_SPLIT", true),
			PreserveURLs:   getEnvBool("PRESERVE_URLS", true),
			PreserveEmails: getEnvBool("PRESERVE_EMAIL", true),
		},
		Retrieval: RetrievalConfig{
			MaxResults:        maxResults,
			MinSimilarity:     minSimilarity,
			MinResults:        minResults,
			FallbackToAllDocs: getEnvBool("FALLBACK_TO_ALL_DOCS", true),
			FallbackLimit:     fallbackLimit,
			EvidenceBudget:    evidenceBudget,
			EmbedTimeout:      embedTimeout,
		},
		LLM: LLMConfig{
			OpenAIKey:       getEnv("OPENAI_API_KEY", ""),
			AnthropicKey:    getEnv("ANTHROPIC_API_KEY", ""),
			OllamaURL:       getEnv("OLLAMA_URL", "http://localhost:11434"),
			Provider:        getEnv("LLM_PROVIDER", "ollama"),
			EmbeddingModel:  getEnv("EMBEDDING_MODEL", "nomic-embed-text"),
			GenerationModel: getEnv("GENERATION_MODEL", "llama3"),
		},
	}

	return cfg, nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Validate checks the settings every process needs. DATABASE_URL is only
// required by processes that share the index, so they check it themselves.
func (c *Config) Validate() error {
	var missing []string
	if c.Corpus.Root == "" {
		missing = append(missing, "CORPUS_ROOT")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required env vars: %s", strings.Join(missing, ", "))
	}
	if c.Chunking.MinChunkSize > c.Chunking.MaxChunkSize {
		return fmt.Errorf("MIN_CHUNK_SIZE (%d) exceeds MAX_CHUNK_SIZE (%d)",
			c.Chunking.MinChunkSize, c.Chunking.MaxChunkSize)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseFloat(v, 64)
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return time.ParseDuration(v)
}
