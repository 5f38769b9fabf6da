// Package runtime holds the state shared by CLI commands for one
// invocation: loaded settings, the central logger and the metrics registry.
package runtime

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kent2980/aoi-data-manager/internal/annotate"
	"github.com/kent2980/aoi-data-manager/internal/buildinfo"
	"github.com/kent2980/aoi-data-manager/internal/conf"
	"github.com/kent2980/aoi-data-manager/internal/datastore"
	"github.com/kent2980/aoi-data-manager/internal/errors"
	"github.com/kent2980/aoi-data-manager/internal/fileio"
	"github.com/kent2980/aoi-data-manager/internal/httpclient"
	"github.com/kent2980/aoi-data-manager/internal/kintone"
	"github.com/kent2980/aoi-data-manager/internal/logger"
	"github.com/kent2980/aoi-data-manager/internal/notify"
	"github.com/kent2980/aoi-data-manager/internal/observability/metrics"
	"github.com/kent2980/aoi-data-manager/internal/telemetry"
)

// Overrides are command line values that take precedence over config.yaml.
type Overrides struct {
	ConfigFile string
	DataDir    string
	Debug      bool
}

// Context is created once per process and initialized before a command runs.
type Context struct {
	Build    buildinfo.Info
	Settings *conf.Settings
	Registry *prometheus.Registry

	// Transport replaces the network transport of outbound HTTP clients.
	Transport http.RoundTripper

	central     *logger.CentralLogger
	metrics     *datastore.Metrics
	httpMetrics *metrics.HTTPClientMetrics
	telemetry   *telemetry.Reporter
	notifier    *notify.Notifier
}

// New returns an uninitialized Context.
func New(build buildinfo.Info) *Context {
	return &Context{Build: build}
}

// Init loads settings, applies overrides and sets up logging and metrics.
func (c *Context) Init(o Overrides) error {
	settings, err := conf.Load(o.ConfigFile)
	if err != nil {
		return err
	}
	if o.DataDir != "" {
		settings.Main.DataDir = o.DataDir
	}
	if o.Debug {
		settings.Debug = true
		settings.Logging.DefaultLevel = string(logger.LogLevelDebug)
		if settings.Logging.Console != nil {
			settings.Logging.Console.Level = string(logger.LogLevelDebug)
		}
	}
	c.Settings = settings

	central, err := logger.NewCentralLogger(&settings.Logging)
	if err != nil {
		return errors.New(err).
			Category(errors.CategoryConfiguration).
			Context("operation", "create-logger").
			Build()
	}
	c.central = central
	logger.SetGlobal(central)

	var sentryReporter errors.Reporter
	if t := settings.Telemetry; t.Enabled {
		c.telemetry, err = telemetry.New(telemetry.Config{
			DSN:         t.DSN,
			Environment: t.Environment,
			Release:     c.Build.Version,
			Logger:      central.Module("telemetry"),
		})
		if err != nil {
			return err
		}
		sentryReporter = c.telemetry
	}
	errors.SetReporter(errors.Reporters(logger.NewErrorReporter(central.Module("errors")), sentryReporter))

	c.notifier, err = notify.New(notify.Config{
		URLs:    settings.Notify.URLs,
		Timeout: settings.Notify.Timeout,
		Logger:  central.Module("notify"),
	})
	if err != nil {
		return err
	}

	c.Registry = prometheus.NewRegistry()
	c.metrics, err = metrics.NewDatastoreMetrics(c.Registry)
	if err != nil {
		return err
	}
	c.httpMetrics, err = metrics.NewHTTPClientMetrics(c.Registry)
	if err != nil {
		return err
	}

	c.Logger().Debug("initialized",
		logger.String("version", c.Build.Version),
		logger.String("config_file", settings.ConfigFile),
		logger.String("data_dir", settings.Main.DataDir))
	return nil
}

// Logger returns the application logger, or the global fallback before Init.
func (c *Context) Logger() logger.Logger {
	if c.central == nil {
		return logger.Global().Module("cli")
	}
	return c.central.Module("cli")
}

// StoreConfig describes the configured store located in dir. An empty dir
// means the configured data directory.
func (c *Context) StoreConfig(dir string) datastore.Config {
	s := c.Settings.Database
	if dir == "" {
		dir = c.Settings.Main.DataDir
	}
	cfg := datastore.Config{
		Dir:           dir,
		FileName:      s.FileName,
		Engine:        datastore.Engine(s.Engine),
		DSN:           s.DSN,
		Metrics:       c.metrics,
		BatchSize:     s.BatchSize,
		SlowThreshold: s.SlowThreshold,
	}
	if c.central != nil {
		cfg.Logger = c.central.Module("datastore")
	}
	return cfg
}

// OpenStore opens the configured store and makes sure the tables exist.
// The caller closes it.
func (c *Context) OpenStore() (*datastore.Store, error) {
	store, err := datastore.Open(c.StoreConfig(""))
	if err != nil {
		return nil, err
	}
	if err := store.CreateSchema(); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

// Metrics returns the datastore metrics collector.
func (c *Context) Metrics() *datastore.Metrics {
	return c.metrics
}

// Notify sends a status message when notification URLs are configured.
// Delivery failures are logged and never fail the command.
func (c *Context) Notify(title, message string) {
	if err := c.notifier.Send(title, message); err != nil {
		c.Logger().Warn("notification not delivered", logger.Error(err))
	}
}

// KintoneClient builds a client from the kintone settings.
func (c *Context) KintoneClient() (*kintone.Client, error) {
	k := c.Settings.Kintone
	if !k.Enabled {
		return nil, errors.Newf("kintone is disabled in configuration").
			Category(errors.CategoryConfiguration).
			Build()
	}
	cfg := kintone.Config{
		Subdomain:         k.Subdomain,
		AppID:             k.AppID,
		APIToken:          k.APIToken,
		Timeout:           k.Timeout,
		ImageField:        k.ImageField,
		RequestsPerSecond: k.RateLimit,
		Metrics:           c.httpMetrics,
	}
	if c.Transport != nil {
		cfg.HTTPClient = httpclient.New(&httpclient.Config{
			DefaultTimeout: k.Timeout,
			Transport:      c.Transport,
		})
	}
	if c.central != nil {
		cfg.Logger = c.central.Module("kintone")
	}
	return kintone.NewClient(cfg)
}

// ReadOptions returns the CSV decoding options from the import settings.
func (c *Context) ReadOptions() []fileio.Option {
	if c.Settings.Import.Encoding == "shift_jis" {
		return []fileio.Option{fileio.WithEncoding(fileio.ShiftJIS)}
	}
	return nil
}

// AnnotateOptions converts the export settings.
func (c *Context) AnnotateOptions() (annotate.Options, error) {
	e := c.Settings.Export
	opts := annotate.Options{
		OutputDir:     e.OutputDir,
		Format:        annotate.Format(e.ImageFormat),
		Quality:       e.Quality,
		TextAreaWidth: e.TextAreaWidth,
		FontFile:      e.FontFile,
		FontSize:      e.FontSize,
	}
	if e.MaxImageSize != "" {
		size, err := annotate.ParseSize(e.MaxImageSize)
		if err != nil {
			return opts, err
		}
		opts.MaxSize = size
	}
	return opts, nil
}

// Close writes the metrics textfile when enabled, flushes telemetry and
// closes the logger. It is safe to call when Init never ran.
func (c *Context) Close() error {
	var errs []error
	if c.Settings != nil && c.Settings.Metrics.Enabled && c.Registry != nil {
		if err := prometheus.WriteToTextfile(c.Settings.Metrics.TextfilePath, c.Registry); err != nil {
			errs = append(errs, errors.FileError(err, c.Settings.Metrics.TextfilePath))
		}
	}
	if c.telemetry != nil {
		c.telemetry.Close()
	}
	if c.central != nil {
		errors.SetReporter(nil)
		if err := c.central.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
