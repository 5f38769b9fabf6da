// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// setDefaultConfig registers a default for every key so that environment
// overrides apply even when the config file omits the key.
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("debug", false)

	v.SetDefault("main.name", "aoi-data-manager")
	v.SetDefault("main.datadir", "data")

	v.SetDefault("logging.default_level", "info")
	v.SetDefault("logging.timezone", "Local")
	v.SetDefault("logging.console.enabled", true)
	v.SetDefault("logging.console.level", "info")
	v.SetDefault("logging.file_output.enabled", false)
	v.SetDefault("logging.file_output.path", "logs/aoi-data-manager.log")
	v.SetDefault("logging.file_output.level", "info")

	v.SetDefault("database.engine", "sqlite")
	v.SetDefault("database.filename", "aoi_data.db")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.batchsize", 500)
	v.SetDefault("database.slowthreshold", 200*time.Millisecond)

	v.SetDefault("kintone.enabled", false)
	v.SetDefault("kintone.subdomain", "")
	v.SetDefault("kintone.appid", 0)
	v.SetDefault("kintone.apitoken", "")
	v.SetDefault("kintone.imagefield", "")
	v.SetDefault("kintone.timeout", 30*time.Second)
	v.SetDefault("kintone.ratelimit", 5.0)
	v.SetDefault("kintone.settingsfile", "")

	v.SetDefault("export.outputdir", "")
	v.SetDefault("export.imageformat", "PNG")
	v.SetDefault("export.maximagesize", "")
	v.SetDefault("export.quality", 95)
	v.SetDefault("export.textareawidth", 300)
	v.SetDefault("export.fontfile", "")
	v.SetDefault("export.fontsize", 13.0)

	v.SetDefault("import.encoding", "utf-8")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.textfilepath", "")

	v.SetDefault("server.listen", "127.0.0.1:8080")
	v.SetDefault("server.shutdowntimeout", 10*time.Second)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.dsn", "")
	v.SetDefault("telemetry.environment", "production")

	v.SetDefault("notify.urls", []string{})
	v.SetDefault("notify.timeout", 10*time.Second)
}
