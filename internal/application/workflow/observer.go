package workflow

import (
	"time"

	domainwf "github.com/garyjia/kelurahan-portal/internal/domain/workflow"
)

// Logger is the minimal logging interface the engine needs
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// MetricsRecorder receives engine measurements
type MetricsRecorder interface {
	ObserveTransition(from, to domainwf.State, outcome string, elapsed time.Duration)
	ObserveDocument(outcome string, elapsed time.Duration)
	ObserveRetry(op string)
}

// Outcome labels
const (
	OutcomeSuccess = "success"
	OutcomeNoop    = "noop"
)

// OutcomeOf maps an engine error to a metrics label
func OutcomeOf(err error) string {
	if err == nil {
		return OutcomeSuccess
	}
	if kind := domainwf.KindOf(err); kind != "" {
		return string(kind)
	}
	return "ERROR"
}

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

type nopMetrics struct{}

func (nopMetrics) ObserveTransition(domainwf.State, domainwf.State, string, time.Duration) {}
func (nopMetrics) ObserveDocument(string, time.Duration)                                  {}
func (nopMetrics) ObserveRetry(string)                                                    {}
