// env.go - environment variable configuration and validation
package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// envBinding holds metadata for environment variable bindings (internal use)
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVar    string             // Environment variable name
	Validate  func(string) error // Optional validation function
}

// getEnvBindings returns the explicitly validated environment variables.
// Every other key is still reachable through AOI_<SECTION>_<KEY>.
func getEnvBindings() []envBinding {
	return []envBinding{
		{"debug", "AOI_DEBUG", validateEnvBool},
		{"main.datadir", "AOI_DATA_DIR", validateEnvPath},

		{"database.engine", "AOI_DATABASE_ENGINE", validateEnvEngine},
		{"database.dsn", "AOI_DATABASE_DSN", nil},
		{"database.batchsize", "AOI_DATABASE_BATCHSIZE", validateEnvBatchSize},

		{"kintone.enabled", "AOI_KINTONE_ENABLED", validateEnvBool},
		{"kintone.subdomain", "AOI_KINTONE_SUBDOMAIN", nil},
		{"kintone.appid", "AOI_KINTONE_APP_ID", validateEnvAppID},
		{"kintone.apitoken", "AOI_KINTONE_API_TOKEN", nil},

		{"server.listen", "AOI_SERVER_LISTEN", nil},
		{"telemetry.enabled", "AOI_TELEMETRY_ENABLED", validateEnvBool},
		{"telemetry.dsn", "AOI_TELEMETRY_DSN", nil},
	}
}

// bindEnvVars sets up environment variable bindings with validation (internal)
func bindEnvVars(v *viper.Viper) error {
	var warnings []string

	for _, binding := range getEnvBindings() {
		if err := v.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("Failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate != nil {
			if envValue := os.Getenv(binding.EnvVar); envValue != "" {
				if err := binding.Validate(envValue); err != nil {
					warnings = append(warnings, fmt.Sprintf("Invalid %s value '%s': %v", binding.EnvVar, envValue, err))
				}
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}
	return nil
}

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(strings.TrimSpace(value)); err != nil {
		return fmt.Errorf("invalid boolean value: %s", value)
	}
	return nil
}

func validateEnvEngine(value string) error {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "sqlite", "mysql", "postgres":
		return nil
	}
	return fmt.Errorf("unsupported database engine %q, want sqlite, mysql or postgres", value)
}

func validateEnvBatchSize(value string) error {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("invalid batch size: %w", err)
	}
	if n < 1 || n > 10000 {
		return fmt.Errorf("batch size must be between 1 and 10000, got %d", n)
	}
	return nil
}

func validateEnvAppID(value string) error {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("invalid app id: %w", err)
	}
	if n <= 0 {
		return fmt.Errorf("app id must be positive, got %d", n)
	}
	return nil
}

func validateEnvPath(value string) error {
	cleaned := filepath.Clean(value)
	for part := range strings.SplitSeq(cleaned, string(os.PathSeparator)) {
		if part == ".." {
			return fmt.Errorf("path traversal detected in cleaned path: %s", cleaned)
		}
	}
	return nil
}

// configureEnvironmentVariables sets up environment variable support for viper
func configureEnvironmentVariables(v *viper.Viper) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return bindEnvVars(v)
}
