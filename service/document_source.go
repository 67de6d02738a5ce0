package service

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"

	"coa-docket/models"
)

const (
	defaultDownloadTimeout = 2 * time.Minute
	maxDocumentSize        = 64 << 20
	courtUserAgent         = "coa-docket/1.0"
)

// DocumentSource downloads the bytes behind a document link
type DocumentSource interface {
	Download(ctx context.Context, url string) ([]byte, error)
}

// HTTPDocumentSource downloads documents from the court site over HTTP
type HTTPDocumentSource struct {
	client *http.Client
}

// NewHTTPDocumentSource creates a document source; a nil client gets a default with a timeout
func NewHTTPDocumentSource(client *http.Client) *HTTPDocumentSource {
	if client == nil {
		client = &http.Client{Timeout: defaultDownloadTimeout}
	}
	return &HTTPDocumentSource{client: client}
}

// Download fetches url. Network failures and retryable statuses come back
// marked transient.
func (s *HTTPDocumentSource) Download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create request for %s", url)
	}
	req.Header.Set("User-Agent", courtUserAgent)
	req.Header.Set("Accept", "application/pdf,*/*")

	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.Wrap(ctx.Err(), "download canceled")
		}
		return nil, models.MarkTransient(errors.Wrapf(err, "failed to download %s", url))
	}
	defer resp.Body.Close()

	if err := models.ClassifyHTTPStatus(resp.StatusCode); err != nil {
		return nil, errors.Wrapf(err, "failed to download %s", url)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
	if err != nil {
		return nil, models.MarkTransient(errors.Wrapf(err, "failed to read %s", url))
	}
	if len(data) == 0 {
		return nil, errors.Wrapf(models.ErrDataFormat, "empty document at %s", url)
	}
	return data, nil
}
