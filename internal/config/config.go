// Package config loads and validates pipeline configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Crawler  CrawlerConfig  `mapstructure:"crawler"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Decoder  DecoderConfig  `mapstructure:"decoder"`
	Encoder  EncoderConfig  `mapstructure:"encoder"`
	Encode   EncodeConfig   `mapstructure:"encode"`
	Index    IndexConfig    `mapstructure:"index"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	Email    EmailConfig    `mapstructure:"email"`
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// CrawlerConfig governs crawl scope and politeness.
type CrawlerConfig struct {
	StartURL                string        `mapstructure:"start_url"`
	AdditionalURLs          []string      `mapstructure:"additional_urls"`
	ExcludedURLs            []string      `mapstructure:"excluded_urls"`
	DomainSuffix            string        `mapstructure:"domain_suffix"`
	ExcludedLanguageSegment string        `mapstructure:"excluded_language_segment"`
	CanonicalLanguagePrefix string        `mapstructure:"canonical_language_prefix"`
	RestrictedBaseURL       string        `mapstructure:"restricted_base_url"`
	RestrictedAllowedURLs   []string      `mapstructure:"restricted_allowed_urls"`
	MaxDepth                int           `mapstructure:"max_depth"`
	MaxLinksPerPage         int           `mapstructure:"max_links_per_page"`
	ReaderBaseURL           string        `mapstructure:"reader_base_url"`
	FetchTimeout            time.Duration `mapstructure:"fetch_timeout"`
	MinDelay                time.Duration `mapstructure:"min_delay"`
	RandomDelay             time.Duration `mapstructure:"random_delay"`
}

// PipelineConfig governs chunking, refinement concurrency, and snapshots.
type PipelineConfig struct {
	DataDir         string      `mapstructure:"data_dir"`
	FileStart       string      `mapstructure:"file_start"`
	ChunkOverlap    int         `mapstructure:"chunk_overlap"`
	PageConcurrency int         `mapstructure:"page_concurrency"`
	DecoderRPS      float64     `mapstructure:"decoder_rps"`
	Reuse           ReuseConfig `mapstructure:"reuse"`
}

// ReuseConfig controls whether an existing snapshot replaces a fresh crawl.
type ReuseConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	AllowPastYear bool   `mapstructure:"allow_past_year"`
	Timestamp     string `mapstructure:"timestamp"`
}

// DecoderConfig points at the decoder LM service.
type DecoderConfig struct {
	Provider  string        `mapstructure:"provider"`
	URL       string        `mapstructure:"url"`
	ModelPath string        `mapstructure:"model_path"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// EncoderConfig points at the embedding services.
type EncoderConfig struct {
	Provider string        `mapstructure:"provider"`
	CPUURL   string        `mapstructure:"cpu_url"`
	GPUURL   string        `mapstructure:"gpu_url"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// EncodeConfig governs variant selection and batch dispatch. BatchSizes
// overrides BatchSize per encoder name; unlisted encoders use BatchSize.
type EncodeConfig struct {
	EmbeddingModel      string         `mapstructure:"embedding_model"`
	Variants            []string       `mapstructure:"variants"`
	BatchSize           int            `mapstructure:"batch_size"`
	BatchSizes          map[string]int `mapstructure:"batch_sizes"`
	Workers             int            `mapstructure:"workers"`
	RecreateCollections bool           `mapstructure:"recreate_collections"`
}

// IndexConfig selects and locates the vector store.
type IndexConfig struct {
	Provider   string `mapstructure:"provider"`
	QdrantHost string `mapstructure:"qdrant_host"`
	QdrantPort int    `mapstructure:"qdrant_port"`
}

// ArchiveConfig selects the snapshot archival backend.
type ArchiveConfig struct {
	Provider  string `mapstructure:"provider"`
	GCSBucket string `mapstructure:"gcs_bucket"`
}

// EmailConfig configures the reply agent. Password comes only from the
// MUIA_EMAIL_PASSWORD environment variable.
type EmailConfig struct {
	IMAPServer         string   `mapstructure:"imap_server"`
	IMAPPort           int      `mapstructure:"imap_port"`
	SMTPServer         string   `mapstructure:"smtp_server"`
	SMTPPort           int      `mapstructure:"smtp_port"`
	IMAPAddress        string   `mapstructure:"imap_address"`
	SMTPAddress        string   `mapstructure:"smtp_address"`
	Password           string   `mapstructure:"password"`
	MyName             string   `mapstructure:"my_name"`
	MyDescription      string   `mapstructure:"my_description"`
	MaxEmails          int      `mapstructure:"max_emails"`
	LastNDays          int      `mapstructure:"last_n_days"`
	SaveAsDraft        bool     `mapstructure:"save_as_draft"`
	DraftsFolder       string   `mapstructure:"drafts_folder"`
	SendToSelf         bool     `mapstructure:"send_to_self"`
	BlacklistedEmails  []string `mapstructure:"blacklisted_emails"`
	BlacklistedDomains []string `mapstructure:"blacklisted_domains"`
}

// ServerConfig controls the retrieval API server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load unmarshals the global viper state into a validated Config.
// pkg/config.InitConfig must have run first so defaults are in place.
func Load() (Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Crawler.StartURL == "" {
		return fmt.Errorf("crawler.start_url must be set")
	}
	if c.Crawler.MaxDepth < 0 {
		return fmt.Errorf("crawler.max_depth must be >= 0")
	}
	if c.Crawler.MaxLinksPerPage <= 0 {
		return fmt.Errorf("crawler.max_links_per_page must be > 0")
	}
	if !strings.HasSuffix(c.Crawler.ReaderBaseURL, "/") {
		return fmt.Errorf("crawler.reader_base_url must end with /")
	}
	if c.Pipeline.ChunkOverlap < 0 {
		return fmt.Errorf("pipeline.chunk_overlap must be >= 0")
	}
	if c.Pipeline.PageConcurrency <= 0 {
		return fmt.Errorf("pipeline.page_concurrency must be > 0")
	}
	if c.Pipeline.DecoderRPS <= 0 {
		return fmt.Errorf("pipeline.decoder_rps must be > 0")
	}
	if c.Pipeline.FileStart == "" {
		return fmt.Errorf("pipeline.file_start must be set")
	}
	if c.Encode.BatchSize <= 0 {
		return fmt.Errorf("encode.batch_size must be > 0")
	}
	for name, size := range c.Encode.BatchSizes {
		if size <= 0 {
			return fmt.Errorf("encode.batch_sizes.%s must be > 0", name)
		}
	}
	if c.Encode.Workers <= 0 {
		return fmt.Errorf("encode.workers must be > 0")
	}
	if c.Encode.EmbeddingModel == "" {
		return fmt.Errorf("encode.embedding_model must be set")
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	return nil
}
