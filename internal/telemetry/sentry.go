// Package telemetry forwards categorized errors to Sentry.
//
// A Reporter is installed next to the logging reporter with
// errors.SetReporter(errors.Reporters(...)), so every EnhancedError built
// while the CLI runs becomes a Sentry event. User input errors are not sent.
package telemetry

import (
	"fmt"
	"regexp"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/kent2980/aoi-data-manager/internal/errors"
	"github.com/kent2980/aoi-data-manager/internal/logger"
)

// DefaultFlushTimeout bounds how long Close waits for queued events.
const DefaultFlushTimeout = 2 * time.Second

// Config configures a Reporter.
type Config struct {
	DSN         string
	Environment string
	Release     string

	// Transport replaces the HTTP transport, used by tests.
	Transport sentry.Transport
	Logger    logger.Logger
}

// Reporter implements errors.Reporter on a private Sentry hub.
type Reporter struct {
	hub *sentry.Hub
	log logger.Logger
}

// skipped categories describe bad input rather than faults worth tracking
var skipped = map[errors.ErrorCategory]bool{
	errors.CategoryValidation: true,
	errors.CategoryNotFound:   true,
}

// New creates a Reporter. The DSN is required.
func New(cfg Config) (*Reporter, error) {
	if cfg.DSN == "" {
		return nil, errors.Newf("sentry DSN is not set").
			Component("telemetry").
			Category(errors.CategoryConfiguration).
			Build()
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Global().Module("telemetry")
	}

	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		Release:          "aoi-data-manager@" + cfg.Release,
		SampleRate:       1.0,
		AttachStacktrace: false,
		Transport:        cfg.Transport,
		BeforeSend:       applyPrivacyFilters,
	})
	if err != nil {
		return nil, errors.New(fmt.Errorf("sentry initialization failed: %w", err)).
			Component("telemetry").
			Category(errors.CategoryConfiguration).
			Build()
	}

	return &Reporter{hub: sentry.NewHub(client, sentry.NewScope()), log: log}, nil
}

// ReportError sends ee to Sentry unless its category is skipped.
func (r *Reporter) ReportError(ee *errors.EnhancedError) {
	if ee == nil || skipped[ee.Category] {
		return
	}

	component := ee.GetComponent()
	category := ee.GetCategory()
	msg := ScrubMessage(ee.Error())

	r.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("component", component)
		scope.SetTag("category", category)
		if ctx := ee.GetContext(); len(ctx) > 0 {
			scope.SetContext("error", ctx)
		}
		scope.SetFingerprint([]string{category, component})

		event := sentry.NewEvent()
		event.Level = sentry.LevelError
		event.Message = msg
		event.Exception = []sentry.Exception{{
			Type:  fmt.Sprintf("%s: %s", component, category),
			Value: msg,
		}}
		r.hub.CaptureEvent(event)
	})

	r.log.Debug("error event sent",
		logger.String("component", component),
		logger.String("category", category))
}

// Flush waits up to timeout for buffered events.
func (r *Reporter) Flush(timeout time.Duration) bool {
	return r.hub.Flush(timeout)
}

// Close flushes pending events.
func (r *Reporter) Close() {
	if !r.Flush(DefaultFlushTimeout) {
		r.log.Warn("sentry flush timed out")
	}
}

func applyPrivacyFilters(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
	event.User = sentry.User{}
	event.ServerName = ""
	if event.Contexts != nil {
		delete(event.Contexts, "device")
		delete(event.Contexts, "os")
	}
	return event
}

var (
	urlCredentials = regexp.MustCompile(`://[^/\s:@]+:[^/\s@]+@`)
	dsnPassword    = regexp.MustCompile(`([^\s:/@]+):[^\s@/]+@tcp\(`)
	keyValueSecret = regexp.MustCompile(`(?i)(password|token|api_token)=[^\s&]+`)
)

// ScrubMessage removes credentials that driver and HTTP errors may echo.
func ScrubMessage(s string) string {
	s = urlCredentials.ReplaceAllString(s, "://***@")
	s = dsnPassword.ReplaceAllString(s, "$1:***@tcp(")
	return keyValueSecret.ReplaceAllString(s, "$1=***")
}
