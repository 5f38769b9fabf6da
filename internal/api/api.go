// Package api serves read-only JSON views of the defect store over HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kent2980/aoi-data-manager/internal/buildinfo"
	"github.com/kent2980/aoi-data-manager/internal/datastore"
	"github.com/kent2980/aoi-data-manager/internal/logger"
)

// Controller owns the routes and their dependencies.
type Controller struct {
	Echo  *echo.Echo
	Group *echo.Group
	Store *datastore.Store
	Build buildinfo.Info

	gatherer  prometheus.Gatherer
	log       logger.Logger
	startTime time.Time
}

// Option configures a Controller.
type Option func(*Controller)

// WithGatherer exposes the registry on GET /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(c *Controller) {
		c.gatherer = g
	}
}

// WithLogger sets the logger used for request errors.
func WithLogger(l logger.Logger) Option {
	return func(c *Controller) {
		c.log = l
	}
}

// New registers the routes on e and returns the controller.
func New(e *echo.Echo, store *datastore.Store, build buildinfo.Info, opts ...Option) *Controller {
	c := &Controller{
		Echo:      e,
		Store:     store,
		Build:     build,
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logger.Global().Module("api")
	}
	c.initRoutes()
	return c
}

func (c *Controller) initRoutes() {
	c.Group = c.Echo.Group("/api/v1")

	c.Group.GET("/health", c.HealthCheck)
	c.Group.GET("/defects", c.ListDefects)
	c.Group.GET("/defects/:id", c.GetDefect)
	c.Group.GET("/defects/:id/repair", c.GetRepair)
	c.Group.GET("/repairs", c.ListRepairs)

	if c.gatherer != nil {
		c.Echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{
			ErrorHandling: promhttp.ContinueOnError,
		})))
	}
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// HandleError logs err and replies with an ErrorResponse.
func (c *Controller) HandleError(ctx echo.Context, err error, message string, code int) error {
	resp := ErrorResponse{Error: message, Message: message, Code: code}
	if err != nil {
		resp.Error = err.Error()
	}

	fields := []logger.Field{
		logger.String("path", ctx.Path()),
		logger.Int("status", code),
		logger.String("message", message),
	}
	if err != nil {
		fields = append(fields, logger.Error(err))
	}
	if code >= http.StatusInternalServerError {
		c.log.Error("request failed", fields...)
	} else {
		c.log.Debug("request rejected", fields...)
	}

	return ctx.JSON(code, resp)
}
