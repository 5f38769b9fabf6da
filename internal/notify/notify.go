// Package notify sends short status messages through shoutrrr services
// (Slack, Teams, generic webhooks, e-mail) when a merge or push finishes.
package notify

import (
	"io"
	"log"
	"slices"
	"time"

	shoutrrr "github.com/nicholas-fedor/shoutrrr"
	router "github.com/nicholas-fedor/shoutrrr/pkg/router"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/kent2980/aoi-data-manager/internal/errors"
	"github.com/kent2980/aoi-data-manager/internal/logger"
	"github.com/kent2980/aoi-data-manager/internal/telemetry"
)

// Config lists the service URLs and the per-send timeout.
type Config struct {
	URLs    []string
	Timeout time.Duration
	Logger  logger.Logger
}

// Notifier delivers messages to every configured service. The zero value
// and a Notifier built without URLs are disabled and never fail.
type Notifier struct {
	sender *router.ServiceRouter
	log    logger.Logger
}

// New validates the URLs and builds the sender.
func New(cfg Config) (*Notifier, error) {
	l := cfg.Logger
	if l == nil {
		l = logger.Global().Module("notify")
	}
	n := &Notifier{log: l}
	if len(cfg.URLs) == 0 {
		return n, nil
	}

	sender, err := shoutrrr.CreateSender(slices.Clone(cfg.URLs)...)
	if err != nil {
		return nil, errors.Newf("invalid notification URL: %s", telemetry.ScrubMessage(err.Error())).
			Component("notify").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if cfg.Timeout > 0 {
		sender.Timeout = cfg.Timeout
	}
	sender.SetLogger(log.New(io.Discard, "", 0))
	n.sender = sender
	return n, nil
}

// Enabled reports whether any service is configured.
func (n *Notifier) Enabled() bool {
	return n != nil && n.sender != nil
}

// Send delivers message with title to every service and returns the first
// failure. Credentials in URLs never appear in the returned error.
func (n *Notifier) Send(title, message string) error {
	if !n.Enabled() {
		return nil
	}

	params := stypes.Params{}
	if title != "" {
		params.SetTitle(title)
	}
	for _, err := range n.sender.Send(message, &params) {
		if err == nil {
			continue
		}
		n.log.Warn("notification failed", logger.String("title", title), logger.Error(err))
		return errors.Newf("send notification: %s", telemetry.ScrubMessage(err.Error())).
			Component("notify").
			Category(errors.CategoryIntegration).
			Build()
	}
	n.log.Debug("notification sent", logger.String("title", title))
	return nil
}
