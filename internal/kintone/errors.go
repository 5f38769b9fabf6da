package kintone

import (
	"fmt"

	"github.com/kent2980/aoi-data-manager/internal/errors"
)

// APIError is a non-2xx kintone response.
type APIError struct {
	StatusCode int
	Body       string
	Operation  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("kintone %s failed: status %d: %s", e.Operation, e.StatusCode, e.Body)
}

// ErrorCategory implements errors.CategorizedError
func (e *APIError) ErrorCategory() errors.ErrorCategory {
	return errors.CategoryHTTP
}

// ErrNotConfigured indicates missing subdomain, app id or token.
var ErrNotConfigured = errors.NewStd("kintone client is not configured")
