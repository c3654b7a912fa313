package config

// Config is the full daemon configuration, read from a YAML or JSON file.
// All durations are Go duration strings (e.g. "500ms", "10s", "5m").
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Mailer    MailerConfig    `json:"mailer"`
	Queue     QueueConfig     `json:"queue"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Inbound   InboundConfig   `json:"inbound,omitempty"`
}

type LoggingConfig struct {
	Level   string     `json:"level,omitempty"` // debug|info|warn|error
	Console bool       `json:"console"`
	File    FileConfig `json:"file,omitempty"`
}

type FileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// StorageConfig controls the persistence layer.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./digestus.db" }
type StorageConfig struct {
	Driver      string `json:"driver,omitempty"` // sqlite (default) | memory
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// MailerConfig configures the email transport client.
//
// APIKey falls back to the MANDRILL_API_KEY environment variable when empty,
// so secrets can stay out of the config file.
type MailerConfig struct {
	APIKey     string `json:"api_key,omitempty"`
	BaseURL    string `json:"base_url,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
	Timeout    string `json:"timeout,omitempty"`
}

// QueueConfig controls the send-job queue.
//
// Defaults (when fields are omitted/zero):
//   - workers: 4
//   - queue_size: 256
//   - retry_max: 5
//   - retry_delay: "300s"
type QueueConfig struct {
	Workers        int    `json:"workers,omitempty"`
	QueueSize      int    `json:"queue_size,omitempty"`
	DefaultTimeout string `json:"default_timeout,omitempty"`
	RetryMax       int    `json:"retry_max,omitempty"`
	RetryDelay     string `json:"retry_delay,omitempty"`
}

// SchedulerConfig controls the daily scheduling pass.
type SchedulerConfig struct {
	// BusinessTimezone is the fixed zone scheduling decisions are made in.
	// Teams carry their own timezone field but the scheduler does not use
	// it; this knob is process-wide on purpose.
	BusinessTimezone string `json:"business_timezone,omitempty"`

	// Tick is the cron spec for the scheduling pass, default "0 0 * * *".
	Tick string `json:"tick,omitempty"`

	// PublicDomain is the hostname rendered into email footers.
	PublicDomain string `json:"public_domain,omitempty"`
}

type InboundConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default ":8025"
}
