package service

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"

	"coa-docket/models"
	"coa-docket/repository"
	"coa-docket/storage"
	"coa-docket/utils"
)

// AnalysisRequest carries one downloaded brief to the analyzer
type AnalysisRequest struct {
	CaseID      string
	MediaID     string
	Description string
	Parties     []string
	MIMEType    string
	Document    []byte
}

// IssueAnalyzer extracts categorized legal issues from a brief
type IssueAnalyzer interface {
	AnalyzeDocument(ctx context.Context, req AnalysisRequest) ([]models.Issue, error)
}

// AnalysisDispatcher sends downloaded briefs to the optional analyzer
type AnalysisDispatcher struct {
	analyzer    IssueAnalyzer
	storage     storage.Storage
	retry       RetryPolicy
	concurrency int
}

// AnalysisDispatcherOption is a functional option for AnalysisDispatcher
type AnalysisDispatcherOption func(*AnalysisDispatcher)

// DispatcherWithAnalyzer sets the analyzer. Without one, analysis is skipped.
func DispatcherWithAnalyzer(analyzer IssueAnalyzer) AnalysisDispatcherOption {
	return func(d *AnalysisDispatcher) {
		d.analyzer = analyzer
	}
}

// DispatcherWithRetryPolicy sets the retry policy applied to each analysis call
func DispatcherWithRetryPolicy(policy RetryPolicy) AnalysisDispatcherOption {
	return func(d *AnalysisDispatcher) {
		d.retry = policy
	}
}

// DispatcherWithConcurrency sets how many analyses run at once
func DispatcherWithConcurrency(n int) AnalysisDispatcherOption {
	return func(d *AnalysisDispatcher) {
		if n > 0 {
			d.concurrency = n
		}
	}
}

// NewAnalysisDispatcher creates a new analysis dispatcher reading briefs from store
func NewAnalysisDispatcher(artifacts storage.Storage, opts ...AnalysisDispatcherOption) *AnalysisDispatcher {
	d := &AnalysisDispatcher{
		storage:     artifacts,
		retry:       DefaultRetryPolicy(),
		concurrency: defaultConcurrency,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Enabled reports whether an analyzer is configured
func (d *AnalysisDispatcher) Enabled() bool {
	return d != nil && d.analyzer != nil
}

// AnalysisResult counts analysis outcomes
type AnalysisResult struct {
	Skipped   bool
	Completed int
	Failed    int
}

// Analyze runs the analyzer over every downloaded document and stores the
// issues it finds. Without an analyzer the step is skipped and the store is
// left untouched. A failure on one document is recorded on that document
// only. If the analyzer reports itself unavailable mid-run, the remaining
// documents are skipped.
func (d *AnalysisDispatcher) Analyze(ctx context.Context, store *repository.CaseStore, docs []models.DocumentRecord) (*AnalysisResult, error) {
	logger := utils.LoggerFromContext(ctx)
	if !d.Enabled() {
		logger.InfoContext(ctx, "analysis service not configured, skipping analysis")
		return &AnalysisResult{Skipped: true}, nil
	}

	var (
		mu          sync.Mutex
		result      AnalysisResult
		unavailable atomic.Bool
	)

	g := errgroup.Group{}
	g.SetLimit(d.concurrency)
	for _, doc := range docs {
		if doc.DownloadStatus != models.DownloadStatusDownloaded || len(doc.Issues) > 0 {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if unavailable.Load() {
				return nil
			}
			err := d.analyzeOne(ctx, store, doc)
			if errors.Is(err, models.ErrAnalysisUnavailable) {
				if unavailable.CompareAndSwap(false, true) {
					logger.WarnContext(ctx, "analysis service unavailable, skipping remaining analyses", "error", err)
				}
				return nil
			}
			mu.Lock()
			if err != nil {
				result.Failed++
			} else {
				result.Completed++
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	result.Skipped = unavailable.Load() && result.Completed == 0 && result.Failed == 0
	if err := ctx.Err(); err != nil {
		return &result, errors.Wrap(err, "analysis interrupted")
	}
	return &result, nil
}

func (d *AnalysisDispatcher) analyzeOne(ctx context.Context, store *repository.CaseStore, doc models.DocumentRecord) error {
	logger := utils.LoggerFromContext(ctx).With("case_id", doc.CaseID, "media_id", doc.MediaID)

	issues, err := d.runAnalysis(ctx, store, doc)
	if errors.Is(err, models.ErrAnalysisUnavailable) {
		return err
	}

	updateErr := store.UpdateDocument(doc.CaseID, doc.MediaID, func(stored *models.DocumentRecord) {
		if err != nil {
			stored.AnalysisError = models.ErrorClass(err) + ": " + err.Error()
			return
		}
		stored.Issues = issues
		stored.AnalysisError = ""
	})
	if updateErr != nil {
		logger.WarnContext(ctx, "failed to record analysis outcome", "error", updateErr)
	}

	if err != nil {
		logger.WarnContext(ctx, "document analysis failed", "error", err)
		return err
	}
	logger.InfoContext(ctx, "document analyzed", "issues", len(issues))
	return nil
}

func (d *AnalysisDispatcher) runAnalysis(ctx context.Context, store *repository.CaseStore, doc models.DocumentRecord) ([]models.Issue, error) {
	data, err := d.readArtifact(ctx, doc.DownloadPath)
	if err != nil {
		return nil, err
	}

	req := AnalysisRequest{
		CaseID:      doc.CaseID,
		MediaID:     doc.MediaID,
		Description: doc.Description,
		MIMEType:    "application/pdf",
		Document:    data,
	}
	if rec, ok := store.Get(doc.CaseID); ok {
		req.Parties = rec.Parties
	}

	var issues []models.Issue
	_, err = d.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		issues, err = d.analyzer.AnalyzeDocument(ctx, req)
		return err
	}, nil)
	return issues, err
}

func (d *AnalysisDispatcher) readArtifact(ctx context.Context, path string) ([]byte, error) {
	if path == "" {
		return nil, errors.Wrap(models.ErrDataFormat, "document has no download path")
	}
	rc, err := d.storage.Download(ctx, path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read artifact %s", path)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read artifact %s", path)
	}
	return data, nil
}
