package config

import (
	"github.com/spf13/viper"
)

const (
	// DefaultDirPermissions for ~/.sdzerobot
	DefaultDirPermissions = 0750

	// DefaultStatementTimeout is the server-side limit applied to every report query
	DefaultStatementTimeout = 600

	DefaultServerPort = 8000
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Wiki
	v.SetDefault("wiki.api_url", "https://en.wikipedia.org/w/api.php")
	v.SetDefault("wiki.user_agent", "SDZeroBot database reports (https://en.wikipedia.org/wiki/User:SDZeroBot)")
	v.SetDefault("wiki.maxlag_seconds", 5)
	v.SetDefault("wiki.edits_per_minute", 30.0)
	v.SetDefault("wiki.timeout_seconds", 60)

	// Replica
	v.SetDefault("replica.host", "enwiki.analytics.db.svc.wikimedia.cloud")
	v.SetDefault("replica.port", 3306)
	v.SetDefault("replica.database", "enwiki_p")
	v.SetDefault("replica.mycnf_path", "~/replica.my.cnf")
	v.SetDefault("replica.statement_timeout_seconds", DefaultStatementTimeout)
	v.SetDefault("replica.max_open_conns", 2)
	v.SetDefault("replica.dev_mode", false)
	v.SetDefault("replica.tunnel_command", []string{
		"ssh", "-N", "-L", "4711:enwiki.analytics.db.svc.wikimedia.cloud:3306", "login.toolforge.org",
	})
	v.SetDefault("replica.tunnel_wait_ms", 4000)

	// Report
	v.SetDefault("report.template", "Database report")
	v.SetDefault("report.end_template", "Database report end")
	v.SetDefault("report.default_max_pages", 5)
	v.SetDefault("report.max_pages_cap", 20)
	v.SetDefault("report.excerpt_batch_size", 100) // API limit for prop=extracts
	v.SetDefault("report.replag_ttl_hours", 6)
	v.SetDefault("report.replag_notice_minutes", 30)
	v.SetDefault("report.concurrency", 1)
	v.SetDefault("report.edit_summary", "Updating database report")

	// Server
	v.SetDefault("server.port", DefaultServerPort)
	v.SetDefault("server.allowed_origins", []string{
		"http://localhost",
		"https://localhost",
		"http://127.0.0.1",
		"https://sdzerobot.toolforge.org",
	})

	// Schedule
	v.SetDefault("schedule.interval_minutes", 60)
	v.SetDefault("schedule.run_on_start", true)

	// Stream
	v.SetDefault("stream.url", "https://stream.wikimedia.org/v2/stream/recentchange")
	v.SetDefault("stream.wiki", "enwiki")
	v.SetDefault("stream.quiet_seconds", 5)
	v.SetDefault("stream.max_batch_size", 50)
	v.SetDefault("stream.include_bots", false)

	// History
	v.SetDefault("history.path", "~/.sdzerobot/history.db")

	// Log
	v.SetDefault("log.json", false)
	v.SetDefault("log.verbosity", 0)
}

// BindSensitiveEnvVars explicitly binds credentials to environment variables
// so they never need to be written into a config file
func BindSensitiveEnvVars(v *viper.Viper) {
	v.BindEnv("wiki.username", "SDZEROBOT_WIKI_USERNAME")
	v.BindEnv("wiki.password", "SDZEROBOT_WIKI_PASSWORD")
	v.BindEnv("replica.user", "SDZEROBOT_REPLICA_USER", "TOOL_REPLICA_USER")
	v.BindEnv("replica.password", "SDZEROBOT_REPLICA_PASSWORD", "TOOL_REPLICA_PASSWORD")
}
