package models

import (
	"context"
	"net/http"

	"github.com/cockroachdb/errors"
)

var (
	// ErrTransientNetwork marks failures worth retrying: timeouts, 5xx, 429 and 403
	ErrTransientNetwork = errors.New("transient network error")

	// ErrDataFormat marks a malformed adapter response; the record is skipped
	ErrDataFormat = errors.New("malformed court data")

	// ErrCrossReferenceAmbiguous is not a failure; the reference is resolved fail-closed
	ErrCrossReferenceAmbiguous = errors.New("ambiguous cross reference")

	// ErrAnalysisUnavailable disables the analysis step for the whole run
	ErrAnalysisUnavailable = errors.New("analysis service unavailable")

	// ErrFatalConfiguration aborts the run before discovery starts
	ErrFatalConfiguration = errors.New("fatal configuration error")
)

var (
	ErrCaseNotFound       = errors.New("case not found")
	ErrDocumentNotFound   = errors.New("document not found")
	ErrRunSummaryNotFound = errors.New("run summary not found")
)

// Error classes recorded on documents and in the run summary
const (
	ErrorClassTransient           = "transient_network"
	ErrorClassDataFormat          = "data_format"
	ErrorClassAnalysisUnavailable = "analysis_unavailable"
	ErrorClassFatalConfiguration  = "fatal_configuration"
	ErrorClassCanceled            = "canceled"
	ErrorClassPermanent           = "permanent"
)

// MarkTransient flags err as retryable
func MarkTransient(err error) error {
	if err == nil {
		return nil
	}
	return errors.Mark(err, ErrTransientNetwork)
}

// IsTransient reports whether err may succeed on retry
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransientNetwork)
}

// ClassifyHTTPStatus maps a response status to nil, a transient error or a permanent error
func ClassifyHTTPStatus(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusForbidden,
		code == http.StatusRequestTimeout,
		code == http.StatusTooManyRequests,
		code >= 500:
		return errors.Wrapf(ErrTransientNetwork, "upstream returned %d", code)
	default:
		return errors.Newf("upstream returned %d", code)
	}
}

// ErrorClass returns the stable class name of err
func ErrorClass(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTransientNetwork):
		return ErrorClassTransient
	case errors.Is(err, ErrDataFormat):
		return ErrorClassDataFormat
	case errors.Is(err, ErrAnalysisUnavailable):
		return ErrorClassAnalysisUnavailable
	case errors.Is(err, ErrFatalConfiguration):
		return ErrorClassFatalConfiguration
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ErrorClassCanceled
	default:
		return ErrorClassPermanent
	}
}
