// Package config is responsible for initializing the application's configuration.
// It uses the Viper library to read settings from a config file, environment
// variables, and command-line flags, providing a unified configuration system.
package config

import (
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/dia-upm/muia-rag/internal/logging"
)

// InitConfig initializes the application's configuration using Viper.
// It sets up default values, defines configuration search paths, and enables
// reading from environment variables. This function is designed to be called
// once at application startup.
func InitConfig() {
	viper.SetConfigName("config")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/etc/muia-rag/")
	viper.AddConfigPath("$HOME/.muia-rag")

	// Crawl scope and politeness.
	viper.SetDefault("crawler.start_url", "https://muia.dia.fi.upm.es/es/")
	viper.SetDefault("crawler.additional_urls", []string{})
	viper.SetDefault("crawler.excluded_urls", []string{})
	viper.SetDefault("crawler.domain_suffix", "upm.es")
	viper.SetDefault("crawler.excluded_language_segment", "/en/")
	viper.SetDefault("crawler.canonical_language_prefix", "/es")
	viper.SetDefault("crawler.restricted_base_url", "https://www.upm.es/gsfs/")
	viper.SetDefault("crawler.restricted_allowed_urls", []string{})
	viper.SetDefault("crawler.max_depth", 3)
	viper.SetDefault("crawler.max_links_per_page", 30)
	viper.SetDefault("crawler.reader_base_url", "https://r.jina.ai/")
	viper.SetDefault("crawler.fetch_timeout", "30s")
	viper.SetDefault("crawler.min_delay", "1s")
	viper.SetDefault("crawler.random_delay", "9s")

	// Pipeline: chunking, refinement, snapshots.
	viper.SetDefault("pipeline.data_dir", "data")
	viper.SetDefault("pipeline.file_start", "crawl_")
	viper.SetDefault("pipeline.chunk_overlap", 0)
	viper.SetDefault("pipeline.page_concurrency", 4)
	viper.SetDefault("pipeline.decoder_rps", 1.0)
	viper.SetDefault("pipeline.reuse.enabled", true)
	viper.SetDefault("pipeline.reuse.allow_past_year", false)
	viper.SetDefault("pipeline.reuse.timestamp", "")

	// Decoder service.
	viper.SetDefault("decoder.provider", "http")
	viper.SetDefault("decoder.url", "http://localhost:8100/v1/generate")
	viper.SetDefault("decoder.model_path", "Qwen/Qwen3-8B")
	viper.SetDefault("decoder.timeout", "300s")

	// Encoder services and encode dispatch.
	viper.SetDefault("encoder.provider", "http")
	viper.SetDefault("encoder.cpu_url", "http://localhost:8200/v1/embed")
	viper.SetDefault("encoder.gpu_url", "http://localhost:8201/v1/embed")
	viper.SetDefault("encoder.timeout", "120s")
	viper.SetDefault("encode.embedding_model", "bge_small")
	viper.SetDefault("encode.variants", []string{
		"lm_cleaned_text_subchunks",
		"lm_summary_subchunks",
		"lm_q_and_a_valid_chunks",
		"lm_q_and_a_for_q_only_valid_chunks",
	})
	viper.SetDefault("encode.batch_size", 32)
	viper.SetDefault("encode.batch_sizes", map[string]int{})
	viper.SetDefault("encode.workers", 8)
	viper.SetDefault("encode.recreate_collections", false)

	// Vector index.
	viper.SetDefault("index.provider", "qdrant")
	viper.SetDefault("index.qdrant_host", "localhost")
	viper.SetDefault("index.qdrant_port", 6334)

	// Snapshot archival.
	viper.SetDefault("archive.provider", "noop")
	viper.SetDefault("archive.gcs_bucket", "")

	// Email agent. The account password comes only from MUIA_EMAIL_PASSWORD.
	viper.SetDefault("email.imap_server", "")
	viper.SetDefault("email.imap_port", 993)
	viper.SetDefault("email.smtp_server", "")
	viper.SetDefault("email.smtp_port", 587)
	viper.SetDefault("email.imap_address", "")
	viper.SetDefault("email.smtp_address", "")
	viper.SetDefault("email.my_name", "")
	viper.SetDefault("email.my_description", "")
	viper.SetDefault("email.max_emails", 2)
	viper.SetDefault("email.last_n_days", 120)
	viper.SetDefault("email.save_as_draft", true)
	viper.SetDefault("email.drafts_folder", "Drafts")
	viper.SetDefault("email.send_to_self", true)
	viper.SetDefault("email.blacklisted_emails", []string{})
	viper.SetDefault("email.blacklisted_domains", []string{})

	viper.SetDefault("server.port", 8080)
	viper.SetDefault("logging.development", false)

	viper.SetEnvPrefix("MUIA") // e.g. MUIA_EMAIL_PASSWORD, MUIA_INDEX_QDRANT_HOST
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// No default on purpose: the password exists only in the environment.
	_ = viper.BindEnv("email.password")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			logging.L.Warn("Config file not found; using defaults and environment variables.")
		} else {
			logging.L.Error("Error reading config file", zap.Error(err))
		}
	} else {
		logging.L.Info("Using config file", zap.String("path", viper.ConfigFileUsed()))
	}
}
