// Package errors - reporter integration (optional)
package errors

import (
	"sync"
	"sync/atomic"
)

// Reporter receives every EnhancedError built while it is registered.
// The logger package installs one so categorized failures reach the log.
type Reporter interface {
	ReportError(err *EnhancedError)
}

// ReporterFunc adapts a plain function to the Reporter interface
type ReporterFunc func(err *EnhancedError)

// ReportError calls f(err)
func (f ReporterFunc) ReportError(err *EnhancedError) {
	f(err)
}

var (
	reporterMu         sync.RWMutex
	reporter           Reporter
	hasActiveReporting atomic.Bool
)

// SetReporter installs the global reporter. Passing nil disables reporting
// and restores the fast build path.
func SetReporter(r Reporter) {
	reporterMu.Lock()
	defer reporterMu.Unlock()
	reporter = r
	hasActiveReporting.Store(r != nil)
}

// report forwards the error to the registered reporter
func report(ee *EnhancedError) {
	reporterMu.RLock()
	r := reporter
	reporterMu.RUnlock()
	if r != nil {
		r.ReportError(ee)
	}
}

// Reporters fans each error out to every non-nil reporter in order.
func Reporters(rs ...Reporter) Reporter {
	var active []Reporter
	for _, r := range rs {
		if r != nil {
			active = append(active, r)
		}
	}
	return ReporterFunc(func(ee *EnhancedError) {
		for _, r := range active {
			r.ReportError(ee)
		}
	})
}
