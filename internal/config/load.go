package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Default values applied when the environment or config file leaves a
// setting unset. The stall and grace defaults are deliberately
// conservative: a crashed worker is retried, but not aggressively.
const (
	DefaultWorkerCount        = 4
	DefaultQueueSize          = 100
	DefaultStallAge           = 5 * time.Minute
	DefaultStallCheckInterval = time.Minute
	DefaultMaxStallRetries    = 2
	DefaultHeartbeatInterval  = 30 * time.Second
	DefaultTaskRetention      = 30 * 24 * time.Hour
	DefaultTaskGCInterval     = time.Hour

	DefaultSchedulerInterval = 30 * time.Second
	DefaultSchedulerBatch    = 50
	DefaultPublishingGrace   = 5 * time.Minute
	DefaultMaxPublishRetries = 2

	DefaultDailyCommentLimit   = 10
	DefaultGenerateRatePerHour = 10
	DefaultSocialTimeout       = 60 * time.Second
)

// Load reads configuration from environment variables (POSTFLOW_ prefix)
// and an optional config.yaml in the working directory. Environment
// variables take precedence over file values. The returned Config has
// defaults applied and has passed struct validation.
func Load() (*Config, error) {
	v := viper.New()

	// Required settings get empty defaults so viper knows the keys and
	// AutomaticEnv can fill them; validation rejects them if left empty.
	v.SetDefault("database.url", "")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("llm.gemini_api_key", "")
	v.SetDefault("social.base_url", "")
	v.SetDefault("social.api_key", "")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.generate_rate_per_hour", DefaultGenerateRatePerHour)

	v.SetDefault("llm.model_name", "gemini-2.0-flash")

	v.SetDefault("social.request_timeout", DefaultSocialTimeout)

	v.SetDefault("task.worker_count", DefaultWorkerCount)
	v.SetDefault("task.queue_size", DefaultQueueSize)
	v.SetDefault("task.stall_age", DefaultStallAge)
	v.SetDefault("task.stall_check_interval", DefaultStallCheckInterval)
	v.SetDefault("task.max_stall_retries", DefaultMaxStallRetries)
	v.SetDefault("task.heartbeat_interval", DefaultHeartbeatInterval)
	v.SetDefault("task.retention", DefaultTaskRetention)
	v.SetDefault("task.gc_interval", DefaultTaskGCInterval)

	v.SetDefault("content.min_schedule_lead", time.Duration(0))

	v.SetDefault("scheduler.interval", DefaultSchedulerInterval)
	v.SetDefault("scheduler.batch_size", DefaultSchedulerBatch)
	v.SetDefault("scheduler.publishing_grace", DefaultPublishingGrace)
	v.SetDefault("scheduler.max_publish_retries", DefaultMaxPublishRetries)

	v.SetDefault("engagement.daily_comment_limit", DefaultDailyCommentLimit)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; env vars may carry everything.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("POSTFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}
