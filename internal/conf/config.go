// config.go: settings for aoi-data-manager and functions to load and save them.
package conf

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/kent2980/aoi-data-manager/internal/errors"
	"github.com/kent2980/aoi-data-manager/internal/logger"
)

//go:embed config.yaml
var configFiles embed.FS

// EnvPrefix prefixes every environment override, e.g. AOI_DATABASE_ENGINE.
const EnvPrefix = "AOI"

// MainSettings contains general application settings.
type MainSettings struct {
	Name    string `yaml:"name"`
	DataDir string `yaml:"datadir" validate:"required"` // directory holding aoi_data.db and the CSV files
}

// DatabaseSettings selects and tunes the local store.
type DatabaseSettings struct {
	Engine        string        `yaml:"engine" validate:"oneof=sqlite mysql postgres"`
	FileName      string        `yaml:"filename"`                                    // SQLite file name inside the data directory
	DSN           string        `yaml:"dsn" validate:"required_unless=Engine sqlite"` // mysql and postgres only
	BatchSize     int           `yaml:"batchsize" validate:"gte=1,lte=10000"`
	SlowThreshold time.Duration `yaml:"slowthreshold"` // statements slower than this are logged as warnings
}

// KintoneSettings configures record upload to kintone.
type KintoneSettings struct {
	Enabled      bool          `yaml:"enabled" json:"-"`
	Subdomain    string        `yaml:"subdomain" json:"subdomain" validate:"required_if=Enabled true"`
	AppID        int           `yaml:"appid" json:"app_id" validate:"required_if=Enabled true,gte=0"`
	APIToken     string        `yaml:"apitoken" json:"api_token" validate:"required_if=Enabled true"`
	ImageField   string        `yaml:"imagefield" json:"image_field,omitempty"` // attachment field for board images, empty to skip
	Timeout      time.Duration `yaml:"timeout" json:"-"`
	RateLimit    float64       `yaml:"ratelimit" json:"-" validate:"gte=0"` // requests per second, 0 disables
	SettingsFile string        `yaml:"settingsfile" json:"-"`               // optional JSON file supplying subdomain, app id and token
}

// ExportSettings controls annotated image and report export.
type ExportSettings struct {
	OutputDir     string  `yaml:"outputdir"`
	ImageFormat   string  `yaml:"imageformat" validate:"oneof=PNG JPEG BMP"`
	MaxImageSize  string  `yaml:"maximagesize" validate:"omitempty,imagesize"` // WxH, empty keeps the original size
	Quality       int     `yaml:"quality" validate:"gte=1,lte=100"`
	TextAreaWidth int     `yaml:"textareawidth" validate:"gte=1"`
	FontFile      string  `yaml:"fontfile"` // TrueType or OpenType file, empty uses the built-in bitmap font
	FontSize      float64 `yaml:"fontsize" validate:"gt=0"`
}

// ImportSettings controls CSV reading.
type ImportSettings struct {
	Encoding string `yaml:"encoding" validate:"oneof=utf-8 shift_jis"`
}

// MetricsSettings controls the Prometheus textfile written after each command.
type MetricsSettings struct {
	Enabled      bool   `yaml:"enabled"`
	TextfilePath string `yaml:"textfilepath" validate:"required_if=Enabled true"`
}

// ServerSettings configures the read-only HTTP API started by the serve command.
type ServerSettings struct {
	Listen          string        `yaml:"listen" validate:"required"`
	ShutdownTimeout time.Duration `yaml:"shutdowntimeout"`
}

// TelemetrySettings controls error reporting to Sentry.
type TelemetrySettings struct {
	Enabled     bool   `yaml:"enabled"`
	DSN         string `yaml:"dsn" validate:"required_if=Enabled true"`
	Environment string `yaml:"environment"`
}

// NotifySettings lists shoutrrr service URLs told about finished merges and pushes.
type NotifySettings struct {
	URLs    []string      `yaml:"urls"`
	Timeout time.Duration `yaml:"timeout"`
}

// Settings contains all configuration options for aoi-data-manager.
type Settings struct {
	Debug     bool                 `yaml:"debug"`
	Main      MainSettings         `yaml:"main"`
	Logging   logger.LoggingConfig `yaml:"logging" mapstructure:"logging"`
	Database  DatabaseSettings     `yaml:"database"`
	Kintone   KintoneSettings      `yaml:"kintone"`
	Export    ExportSettings       `yaml:"export"`
	Import    ImportSettings       `yaml:"import"`
	Metrics   MetricsSettings      `yaml:"metrics"`
	Server    ServerSettings       `yaml:"server"`
	Telemetry TelemetrySettings    `yaml:"telemetry"`
	Notify    NotifySettings       `yaml:"notify"`

	// ConfigFile is the file the settings were read from, empty for defaults only.
	ConfigFile string `yaml:"-" mapstructure:"-"`
}

// settingsInstance is the current settings instance
var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads configPath (or config.yaml from the default locations when
// configPath is empty), applies AOI_ environment overrides, validates the
// result and makes it the current settings instance.
func Load(configPath string) (*Settings, error) {
	v, err := newViper(configPath)
	if err != nil {
		return nil, err
	}

	settings := &Settings{ConfigFile: v.ConfigFileUsed()}
	if err := v.Unmarshal(settings); err != nil {
		return nil, errors.New(fmt.Errorf("error unmarshaling config into struct: %w", err)).
			Category(errors.CategoryConfiguration).
			Context("config_file", settings.ConfigFile).
			Build()
	}

	settings.Main.DataDir = GetBasePath(settings.Main.DataDir)
	if settings.Export.OutputDir == "" {
		settings.Export.OutputDir = filepath.Join(settings.Main.DataDir, "export")
	}
	settings.Export.ImageFormat = strings.ToUpper(settings.Export.ImageFormat)
	settings.Import.Encoding = strings.ToLower(settings.Import.Encoding)

	if settings.Kintone.SettingsFile != "" {
		if err := settings.Kintone.mergeFile(settings.Kintone.SettingsFile); err != nil {
			return nil, err
		}
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, err
	}

	settingsMutex.Lock()
	settingsInstance = settings
	settingsMutex.Unlock()
	return settings, nil
}

// newViper builds a viper instance with defaults, env bindings and the config file.
func newViper(configPath string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	setDefaultConfig(v)

	if err := configureEnvironmentVariables(v); err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryConfiguration).
			Context("operation", "bind-environment").
			Build()
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.New(fmt.Errorf("error reading config file %s: %w", configPath, err)).
				Category(errors.CategoryConfiguration).
				FileContext(configPath).
				Build()
		}
		return v, nil
	}

	v.SetConfigName("config")
	paths, err := GetDefaultConfigPaths()
	if err != nil {
		return nil, err
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.New(fmt.Errorf("fatal error reading config file: %w", err)).
				Category(errors.CategoryConfiguration).
				Build()
		}
		// defaults and environment only
	}
	return v, nil
}

// GetSettings returns the current settings instance, nil before Load.
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// WriteDefaultConfig writes the embedded default config.yaml to path,
// refusing to overwrite an existing file.
func WriteDefaultConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return errors.Newf("config file already exists: %s", path).
			Category(errors.CategoryConflict).
			FileContext(path).
			Build()
	}

	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.FileError(fmt.Errorf("error creating directories for config file: %w", err), path)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.FileError(fmt.Errorf("error writing default config file: %w", err), path)
	}
	return nil
}

// SaveYAMLConfig writes settings to configPath through a temporary file
// and rename. Comments in an existing file are not preserved.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return errors.FileError(fmt.Errorf("error creating temporary file: %w", err), configPath)
	}
	tempFileName := tempFile.Name()
	defer os.Remove(tempFileName)

	if _, err := tempFile.Write(yamlData); err != nil {
		tempFile.Close()
		return errors.FileError(fmt.Errorf("error writing to temporary file: %w", err), configPath)
	}
	if err := tempFile.Close(); err != nil {
		return errors.FileError(fmt.Errorf("error closing temporary file: %w", err), configPath)
	}

	if err := os.Rename(tempFileName, configPath); err != nil {
		return errors.FileError(fmt.Errorf("error replacing config file: %w", err), configPath)
	}
	return nil
}
