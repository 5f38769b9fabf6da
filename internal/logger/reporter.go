package logger

import (
	"github.com/kent2980/aoi-data-manager/internal/errors"
)

// ErrorReporter logs every categorized error built by the errors package.
// Install it with errors.SetReporter(logger.NewErrorReporter(log)).
type ErrorReporter struct {
	log Logger
}

// NewErrorReporter creates a reporter writing to log at WARN level.
func NewErrorReporter(log Logger) *ErrorReporter {
	return &ErrorReporter{log: log}
}

// ReportError implements errors.Reporter
func (r *ErrorReporter) ReportError(ee *errors.EnhancedError) {
	fields := []Field{
		String("component", ee.GetComponent()),
		String("category", ee.GetCategory()),
		Error(ee.Err),
	}
	for k, v := range ee.GetContext() {
		fields = append(fields, Any(k, v))
	}
	r.log.Warn("error recorded", fields...)
}
