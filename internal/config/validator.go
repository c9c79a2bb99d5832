package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// ValidateConfig validates configuration values and returns an error if
// any are invalid. Call after Load.
func ValidateConfig() error {
	var errs []string

	if maxConcurrent := viper.GetInt("max_concurrent"); maxConcurrent <= 0 {
		errs = append(errs, fmt.Sprintf("max_concurrent must be positive, got: %d", maxConcurrent))
	}

	if viper.IsSet("agent_timeout_seconds") {
		if t := viper.GetInt("agent_timeout_seconds"); t <= 0 {
			errs = append(errs, fmt.Sprintf("agent_timeout_seconds must be positive, got: %d", t))
		}
	}

	if viper.IsSet("agent_max_retries") {
		if r := viper.GetInt("agent_max_retries"); r < 0 {
			errs = append(errs, fmt.Sprintf("agent_max_retries must be non-negative, got: %d", r))
		}
	}

	if agentPath := viper.GetString("agent_path"); agentPath == "" {
		errs = append(errs, "agent_path must be set")
	}

	if repoPath := viper.GetString("repository.path"); repoPath == "" {
		errs = append(errs, "repository.path must be set")
	}

	if backend := viper.GetString("store.backend"); backend != "" && backend != "sqlite" && backend != "postgres" {
		errs = append(errs, fmt.Sprintf("store.backend must be sqlite or postgres, got: %q", backend))
	}

	if metricsPort := viper.GetInt("metrics_port"); metricsPort != 0 && (metricsPort < 1 || metricsPort > 65535) {
		errs = append(errs, fmt.Sprintf("metrics_port must be between 1 and 65535, got: %d", metricsPort))
	}

	if len(errs) > 0 {
		msg := errs[0]
		for i := 1; i < len(errs); i++ {
			msg += "\n  " + errs[i]
		}
		return fmt.Errorf("configuration validation failed:\n  %s", msg)
	}

	return nil
}

// ValidateAndExit validates the configuration and exits with a non-zero
// code if validation fails.
func ValidateAndExit() {
	if err := ValidateConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
