package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load initializes the configuration from file and environment variables.
func Load(cfgFile string) {
	// explicit .env loading
	if err := godotenv.Load(); err != nil {
		// ignore if .env is missing
	}

	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("TN3270D")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv() // read in environment variables that match

	SetDefaults()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// SetDefaults registers every configuration default. Exposed separately so
// tests can reset viper and re-apply them.
func SetDefaults() {
	viper.SetDefault("listen_addr", "0.0.0.0:5001")
	viper.SetDefault("verbose", false)
	viper.SetDefault("log_file", "")

	// s3270 discovery; empty means probe the well-known locations.
	viper.SetDefault("s3270_path", "")

	// Session lifecycle
	viper.SetDefault("session_ttl_seconds", 1800)
	viper.SetDefault("sweep_interval_seconds", 300)

	// Channel / workflow timing
	viper.SetDefault("command_timeout_seconds", 10)
	viper.SetDefault("transfer_timeout_seconds", 300)
	viper.SetDefault("stabilize_poll_ms", 500)

	// Job output persistence
	viper.SetDefault("output_dir", "job_output")

	// Classifier rule tables; empty uses the embedded defaults.
	viper.SetDefault("rules_file", "")

	// Audit store
	viper.SetDefault("store.type", "sqlite")
	viper.SetDefault("store.dsn", "tn3270d.db")

	// Notification defaults
	slackEnabled := os.Getenv("SLACK_BOT_USER_TOKEN") != ""
	viper.SetDefault("notifications.slack.enabled", slackEnabled)
	viper.SetDefault("notifications.slack.channel", "#mainframe")
	viper.SetDefault("notifications.slack.events.on_submit", true)
	viper.SetDefault("notifications.slack.events.on_output_queue", true)
	viper.SetDefault("notifications.slack.events.on_failure", true)
}
