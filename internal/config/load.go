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
		// no .env file present; environment and defaults still apply
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("ISSUEBOT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// scheduler
	viper.SetDefault("max_concurrent", 1)

	// agent runner
	viper.SetDefault("agent_path", "claude")
	viper.SetDefault("agent_timeout_seconds", 1800)
	viper.SetDefault("agent_max_retries", 2)
	viper.SetDefault("agent_skip_permissions", false)

	// pipeline
	viper.SetDefault("branch_template", "issuebot/task-{issue_number}-{timestamp}")
	viper.SetDefault("commit_template", "AI: {issue_title}")

	// trigger policy
	viper.SetDefault("trigger_label", "ai-develop")
	viper.SetDefault("trigger_command", "/ai develop")

	// repository / hosting
	viper.SetDefault("repository.default_branch", "main")
	viper.SetDefault("repository.remote", "origin")
	viper.SetDefault("repository.path", ".")
	viper.SetDefault("github.owner", "")
	viper.SetDefault("github.repo", "")
	viper.SetDefault("github.token", "")

	// durable store
	viper.SetDefault("store.backend", "sqlite")
	viper.SetDefault("store.dsn", "issuebot.db")

	// webhook ingress
	viper.SetDefault("webhook.secret", "")
	viper.SetDefault("webhook.allowed_ips", []string{})
	viper.SetDefault("webhook.addr", ":8080")

	// notifications
	slackEnabled := os.Getenv("ISSUEBOT_SLACK_WEBHOOK_URL") != ""
	viper.SetDefault("notifications.slack.enabled", slackEnabled)
	viper.SetDefault("notifications.slack.webhook_url", "")

	// telemetry
	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_file", "")
	viper.SetDefault("metrics_port", 2112)

	// periodic maintenance
	viper.SetDefault("retention.enabled", false)
	viper.SetDefault("retention.cron", "0 0 * * *")
	viper.SetDefault("retention.max_age_days", 30)

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	} else if cfgFile == "" {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			if _, statErr := os.Stat("config.yaml"); os.IsNotExist(statErr) {
				if werr := viper.WriteConfigAs("config.yaml"); werr != nil {
					fmt.Fprintf(os.Stderr, "Warning: failed to create default config file: %v\n", werr)
				} else {
					fmt.Println("Created default configuration file: config.yaml")
				}
			}
		}
	}
}
