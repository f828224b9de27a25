package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"     validate:"required"`
	Database   DatabaseConfig   `mapstructure:"database"   validate:"required"`
	Auth       AuthConfig       `mapstructure:"auth"       validate:"required"`
	LLM        LLMConfig        `mapstructure:"llm"        validate:"required"`
	Social     SocialConfig     `mapstructure:"social"     validate:"required"`
	Content    ContentConfig    `mapstructure:"content"`
	Task       TaskConfig       `mapstructure:"task"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Engagement EngagementConfig `mapstructure:"engagement"`
}

// ServerConfig contains all HTTP server related settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`

	// GenerateRatePerHour bounds how many generation requests a single
	// user may issue per hour at the HTTP layer. This is distinct from
	// the durable daily engagement budget.
	GenerateRatePerHour int `mapstructure:"generate_rate_per_hour" validate:"gte=0"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required"`
}

// AuthConfig contains token verification settings. Token issuance is
// handled by an external identity service; this API only verifies.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret" validate:"required,min=32"`
}

// LLMConfig contains draft generator settings.
type LLMConfig struct {
	GeminiAPIKey string `mapstructure:"gemini_api_key" validate:"required"`
	ModelName    string `mapstructure:"model_name"     validate:"required"`
}

// SocialConfig contains settings for the external posting collaborator.
type SocialConfig struct {
	BaseURL string `mapstructure:"base_url" validate:"required,url"`
	APIKey  string `mapstructure:"api_key"  validate:"required"`

	// RequestTimeout bounds a single publish or comment call.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// ContentConfig controls the content scheduling rules.
type ContentConfig struct {
	// MinScheduleLead is the minimum distance into the future a publish
	// time may be set. Zero allows any future time.
	MinScheduleLead time.Duration `mapstructure:"min_schedule_lead"`
}

// TaskConfig controls the background task executor.
type TaskConfig struct {
	WorkerCount        int           `mapstructure:"worker_count"         validate:"gte=0"`
	QueueSize          int           `mapstructure:"queue_size"           validate:"gte=0"`
	StallAge           time.Duration `mapstructure:"stall_age"`
	StallCheckInterval time.Duration `mapstructure:"stall_check_interval"`
	MaxStallRetries    int           `mapstructure:"max_stall_retries"    validate:"gte=0"`
	HeartbeatInterval  time.Duration `mapstructure:"heartbeat_interval"`

	// Retention is how long finished tasks remain queryable through the
	// notification feed before the retention sweep deletes them.
	Retention time.Duration `mapstructure:"retention"`

	// GCInterval is how often the retention sweep runs.
	GCInterval time.Duration `mapstructure:"gc_interval"`
}

// SchedulerConfig controls the publish scheduler.
type SchedulerConfig struct {
	Interval          time.Duration `mapstructure:"interval"`
	BatchSize         int           `mapstructure:"batch_size"          validate:"gte=0"`
	PublishingGrace   time.Duration `mapstructure:"publishing_grace"`
	MaxPublishRetries int           `mapstructure:"max_publish_retries" validate:"gte=0"`
}

// EngagementConfig controls the daily auto-engagement budget.
type EngagementConfig struct {
	DailyCommentLimit int `mapstructure:"daily_comment_limit" validate:"gte=0"`
}
