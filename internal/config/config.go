package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/imas/mcp-server/internal/indexing"
	"github.com/joho/godotenv"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Environment variables read by Load
const (
	EnvXMLPath        = "IMAS_DD_XML"
	EnvIndexDir       = "IMAS_INDEX_DIR"
	EnvIDS            = "IMAS_IDS"
	EnvBatchSize      = "IMAS_BATCH_SIZE"
	EnvBackend        = "IMAS_BACKEND"
	EnvRedisAddr      = "IMAS_REDIS_ADDR"
	EnvAPIKey         = "GEMINI_API_KEY"
	EnvEmbeddingModel = "IMAS_EMBEDDING_MODEL"
	EnvMetricsAddr    = "IMAS_METRICS_ADDR"
	EnvConfigFile     = "IMAS_CONFIG"
)

// Defaults
const (
	DefaultIndexDir            = "index"
	DefaultRedisAddr           = "localhost:6379"
	DefaultEmbeddingModel      = "gemini-embedding-001"
	DefaultEmbeddingDimensions = 768
	DefaultEmbeddingRPS        = 5.0
)

// ErrInvalid is returned for configuration values that cannot be used
var ErrInvalid = errors.New("invalid configuration")

// Config holds the settings shared by the MCP server and the indexer
type Config struct {
	// XMLPath is the Data Dictionary XML file. Empty means the bundled sample.
	XMLPath   string
	IndexDir  string
	IDS       indexing.IDSSet // nil selects every IDS
	BatchSize int
	Backend   indexing.IndexPrefix

	RedisAddr           string
	APIKey              string
	EmbeddingModel      string
	EmbeddingDimensions int
	EmbeddingRPS        float64

	// MetricsAddr enables the /metrics endpoint when non-empty
	MetricsAddr string
}

// fileConfig mirrors config.schema.json
type fileConfig struct {
	XMLPath             *string  `json:"xml_path"`
	IndexDir            *string  `json:"index_dir"`
	IDS                 []string `json:"ids"`
	BatchSize           *int     `json:"batch_size"`
	Backend             *string  `json:"backend"`
	RedisAddr           *string  `json:"redis_addr"`
	EmbeddingModel      *string  `json:"embedding_model"`
	EmbeddingDimensions *int     `json:"embedding_dimensions"`
	EmbeddingRPS        *float64 `json:"embedding_rps"`
	MetricsAddr         *string  `json:"metrics_addr"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		IndexDir:            DefaultIndexDir,
		BatchSize:           indexing.DefaultBatchSize,
		Backend:             indexing.PrefixLexicographic,
		RedisAddr:           DefaultRedisAddr,
		EmbeddingModel:      DefaultEmbeddingModel,
		EmbeddingDimensions: DefaultEmbeddingDimensions,
		EmbeddingRPS:        DefaultEmbeddingRPS,
	}
}

// Load builds the configuration from, in increasing priority: defaults, the JSON
// config file (-config or IMAS_CONFIG), environment variables (a .env file in the
// working directory is loaded first if present) and explicitly set flags.
// The index directory is created if it does not exist.
func Load(name string, args []string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	configFile := fs.String("config", os.Getenv(EnvConfigFile), "JSON configuration file")
	xmlPath := fs.String("xml", "", "Data Dictionary XML file (default: bundled sample)")
	indexDir := fs.String("dir", cfg.IndexDir, "index directory")
	ids := fs.String("ids", "", "comma-separated IDS names (default: all)")
	batchSize := fs.Int("batch", cfg.BatchSize, "documents per batch")
	backend := fs.String("backend", string(cfg.Backend), "index backend: lexicographic or semantic")
	redisAddr := fs.String("redis", cfg.RedisAddr, "Redis address for the semantic backend")
	metricsAddr := fs.String("metrics-addr", "", "address for the Prometheus /metrics endpoint")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *configFile != "" {
		if err := cfg.applyFile(*configFile); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "xml":
			cfg.XMLPath = *xmlPath
		case "dir":
			cfg.IndexDir = *indexDir
		case "ids":
			cfg.IDS = parseIDS(*ids)
		case "batch":
			cfg.BatchSize = *batchSize
		case "backend":
			cfg.Backend = indexing.IndexPrefix(*backend)
		case "redis":
			cfg.RedisAddr = *redisAddr
		case "metrics-addr":
			cfg.MetricsAddr = *metricsAddr
		}
	})
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.IndexDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}

	return cfg, nil
}

// Validate checks values that no source is allowed to break
func (c *Config) Validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("%w: batch size must be positive, got %d", ErrInvalid, c.BatchSize)
	}
	if !c.Backend.Valid() {
		return fmt.Errorf("%w: unknown backend %q", ErrInvalid, c.Backend)
	}
	if c.IndexDir == "" {
		return fmt.Errorf("%w: index directory is required", ErrInvalid)
	}
	if c.EmbeddingDimensions <= 0 {
		return fmt.Errorf("%w: embedding dimensions must be positive", ErrInvalid)
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := strings.TrimSpace(os.Getenv(EnvXMLPath)); v != "" {
		c.XMLPath = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvIndexDir)); v != "" {
		c.IndexDir = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvIDS)); v != "" {
		c.IDS = parseIDS(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvBatchSize)); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q: %w", ErrInvalid, EnvBatchSize, v, err)
		}
		c.BatchSize = n
	}
	if v := strings.TrimSpace(os.Getenv(EnvBackend)); v != "" {
		c.Backend = indexing.IndexPrefix(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvRedisAddr)); v != "" {
		c.RedisAddr = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvAPIKey)); v != "" {
		c.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvEmbeddingModel)); v != "" {
		c.EmbeddingModel = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvMetricsAddr)); v != "" {
		c.MetricsAddr = v
	}
	return nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := validateFile(data); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalid, path, err)
	}

	var fc fileConfig
	if err := json.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to decode config file: %w", err)
	}

	setString(&c.XMLPath, fc.XMLPath)
	setString(&c.IndexDir, fc.IndexDir)
	setString(&c.RedisAddr, fc.RedisAddr)
	setString(&c.EmbeddingModel, fc.EmbeddingModel)
	setString(&c.MetricsAddr, fc.MetricsAddr)
	if fc.IDS != nil {
		c.IDS = indexing.NewIDSSet(fc.IDS...)
	}
	if fc.BatchSize != nil {
		c.BatchSize = *fc.BatchSize
	}
	if fc.Backend != nil {
		c.Backend = indexing.IndexPrefix(*fc.Backend)
	}
	if fc.EmbeddingDimensions != nil {
		c.EmbeddingDimensions = *fc.EmbeddingDimensions
	}
	if fc.EmbeddingRPS != nil {
		c.EmbeddingRPS = *fc.EmbeddingRPS
	}
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

// parseIDS splits a comma-separated list. An empty list selects every IDS.
func parseIDS(raw string) indexing.IDSSet {
	var names []string
	for _, name := range strings.Split(raw, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return nil
	}
	return indexing.NewIDSSet(names...)
}

//go:embed config.schema.json
var configSchema []byte

const configSchemaURL = "https://imas.local/schema/config.json"

var compiledSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(configSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to parse config schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(configSchemaURL, doc); err != nil {
		return nil, fmt.Errorf("failed to add config schema: %w", err)
	}
	return compiler.Compile(configSchemaURL)
})

func validateFile(data []byte) error {
	sch, err := compiledSchema()
	if err != nil {
		return err
	}
	v, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to parse JSON: %w", err)
	}
	return sch.Validate(v)
}
