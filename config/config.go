// Package config loads sdzerobot configuration from TOML files and
// SDZEROBOT_* environment variables.
package config

// Config is the complete bot configuration
type Config struct {
	Wiki     WikiConfig     `mapstructure:"wiki" toml:"wiki"`
	Replica  ReplicaConfig  `mapstructure:"replica" toml:"replica"`
	Report   ReportConfig   `mapstructure:"report" toml:"report"`
	Server   ServerConfig   `mapstructure:"server" toml:"server"`
	Schedule ScheduleConfig `mapstructure:"schedule" toml:"schedule"`
	Stream   StreamConfig   `mapstructure:"stream" toml:"stream"`
	History  HistoryConfig  `mapstructure:"history" toml:"history"`
	Log      LogConfig      `mapstructure:"log" toml:"log"`
}

// WikiConfig configures the MediaWiki Action API client
type WikiConfig struct {
	APIURL          string  `mapstructure:"api_url" toml:"api_url"`
	Username        string  `mapstructure:"username" toml:"username"` // bot password user, e.g. "SDZeroBot@reports"
	Password        string  `mapstructure:"password" toml:"password,omitempty"`
	UserAgent       string  `mapstructure:"user_agent" toml:"user_agent"`
	MaxLagSeconds   int     `mapstructure:"maxlag_seconds" toml:"maxlag_seconds"`
	EditsPerMinute  float64 `mapstructure:"edits_per_minute" toml:"edits_per_minute"`
	TimeoutSeconds  int     `mapstructure:"timeout_seconds" toml:"timeout_seconds"`
	AllowPrivateIPs bool    `mapstructure:"allow_private_ips" toml:"allow_private_ips"` // only for local MediaWiki installs
}

// ReplicaConfig configures the connection to the wiki replica database
type ReplicaConfig struct {
	Host                    string `mapstructure:"host" toml:"host"`
	Port                    int    `mapstructure:"port" toml:"port"`
	Database                string `mapstructure:"database" toml:"database"`
	User                    string `mapstructure:"user" toml:"user,omitempty"`
	Password                string `mapstructure:"password" toml:"password,omitempty"`
	MyCnfPath               string `mapstructure:"mycnf_path" toml:"mycnf_path"` // Toolforge credentials file, used when user is empty
	StatementTimeoutSeconds int    `mapstructure:"statement_timeout_seconds" toml:"statement_timeout_seconds"`
	MaxOpenConns            int    `mapstructure:"max_open_conns" toml:"max_open_conns"`

	// Dev mode: connect through an SSH tunnel to login.toolforge.org
	DevMode       bool     `mapstructure:"dev_mode" toml:"dev_mode"`
	TunnelCommand []string `mapstructure:"tunnel_command" toml:"tunnel_command"`
	TunnelWaitMS  int      `mapstructure:"tunnel_wait_ms" toml:"tunnel_wait_ms"`
}

// ReportConfig holds report template names and output limits
type ReportConfig struct {
	Template           string `mapstructure:"template" toml:"template"`
	EndTemplate        string `mapstructure:"end_template" toml:"end_template"`
	DefaultMaxPages    int    `mapstructure:"default_max_pages" toml:"default_max_pages"`
	MaxPagesCap        int    `mapstructure:"max_pages_cap" toml:"max_pages_cap"`
	ExcerptBatchSize   int    `mapstructure:"excerpt_batch_size" toml:"excerpt_batch_size"`
	ReplagTTLHours     int    `mapstructure:"replag_ttl_hours" toml:"replag_ttl_hours"`
	ReplagNoticeMinute int    `mapstructure:"replag_notice_minutes" toml:"replag_notice_minutes"`
	Concurrency        int    `mapstructure:"concurrency" toml:"concurrency"`
	EditSummary        string `mapstructure:"edit_summary" toml:"edit_summary"`
}

// ServerConfig configures the web endpoint
type ServerConfig struct {
	Port           int      `mapstructure:"port" toml:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins" toml:"allowed_origins"`
}

// ScheduleConfig configures the periodic batch
type ScheduleConfig struct {
	IntervalMinutes int  `mapstructure:"interval_minutes" toml:"interval_minutes"`
	RunOnStart      bool `mapstructure:"run_on_start" toml:"run_on_start"`
}

// StreamConfig configures the EventStreams consumer
type StreamConfig struct {
	URL           string `mapstructure:"url" toml:"url"`
	Wiki          string `mapstructure:"wiki" toml:"wiki"` // e.g. "enwiki"
	QuietSeconds  int    `mapstructure:"quiet_seconds" toml:"quiet_seconds"`
	MaxBatchSize  int    `mapstructure:"max_batch_size" toml:"max_batch_size"`
	IncludeBots   bool   `mapstructure:"include_bots" toml:"include_bots"`
	NamespaceOnly []int  `mapstructure:"namespaces" toml:"namespaces"` // empty = all namespaces
}

// HistoryConfig configures the local run log
type HistoryConfig struct {
	Path string `mapstructure:"path" toml:"path"`
}

// LogConfig configures the logger
type LogConfig struct {
	JSON      bool `mapstructure:"json" toml:"json"`
	Verbosity int  `mapstructure:"verbosity" toml:"verbosity"`
}
