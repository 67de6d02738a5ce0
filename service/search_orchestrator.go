package service

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/hashicorp/go-set/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"coa-docket/models"
	"coa-docket/repository"
	"coa-docket/utils"
)

const (
	defaultConcurrency = 3
	defaultMaxPages    = 200
)

// CourtSearchAdapter abstracts the court case search site
type CourtSearchAdapter interface {
	Search(ctx context.Context, jurisdiction models.Jurisdiction, barNumber, pageToken string) (*models.SearchPage, error)
}

// SearchOrchestrator fans bar number searches out over jurisdictions and
// merges every active case it finds into the store
type SearchOrchestrator struct {
	adapter     CourtSearchAdapter
	retry       RetryPolicy
	limiter     *rate.Limiter
	concurrency int
	maxPages    int
}

// SearchOrchestratorOption is a functional option for SearchOrchestrator
type SearchOrchestratorOption func(*SearchOrchestrator)

// OrchestratorWithRetryPolicy sets the retry policy applied to each page fetch
func OrchestratorWithRetryPolicy(policy RetryPolicy) SearchOrchestratorOption {
	return func(o *SearchOrchestrator) {
		o.retry = policy
	}
}

// OrchestratorWithLimiter sets the limiter shared with other upstream callers
func OrchestratorWithLimiter(limiter *rate.Limiter) SearchOrchestratorOption {
	return func(o *SearchOrchestrator) {
		o.limiter = limiter
	}
}

// OrchestratorWithConcurrency sets how many jurisdictions are searched at once
func OrchestratorWithConcurrency(n int) SearchOrchestratorOption {
	return func(o *SearchOrchestrator) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// OrchestratorWithMaxPages caps the pages fetched per bar number and jurisdiction
func OrchestratorWithMaxPages(n int) SearchOrchestratorOption {
	return func(o *SearchOrchestrator) {
		if n > 0 {
			o.maxPages = n
		}
	}
}

// NewSearchOrchestrator creates a new search orchestrator
func NewSearchOrchestrator(adapter CourtSearchAdapter, opts ...SearchOrchestratorOption) *SearchOrchestrator {
	o := &SearchOrchestrator{
		adapter:     adapter,
		retry:       DefaultRetryPolicy(),
		concurrency: defaultConcurrency,
		maxPages:    defaultMaxPages,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// DiscoverRequest lists the searches to run
type DiscoverRequest struct {
	BarNumbers    []string
	Jurisdictions []models.Jurisdiction
}

// DiscoverResult reports what a discovery pass did
type DiscoverResult struct {
	RowsMerged       int
	CasesCreated     int
	RowsSkipped      int
	InactiveFiltered int
	Failures         []models.JurisdictionFailure
}

// FailedJurisdictions returns the sorted jurisdictions with at least one failed search
func (r DiscoverResult) FailedJurisdictions() []models.Jurisdiction {
	seen := set.New[models.Jurisdiction](len(r.Failures))
	for _, f := range r.Failures {
		seen.Insert(f.Jurisdiction)
	}
	out := seen.Slice()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (r *DiscoverResult) add(other DiscoverResult) {
	r.RowsMerged += other.RowsMerged
	r.CasesCreated += other.CasesCreated
	r.RowsSkipped += other.RowsSkipped
	r.InactiveFiltered += other.InactiveFiltered
	r.Failures = append(r.Failures, other.Failures...)
}

// Discover searches every jurisdiction for every bar number and merges active
// cases into store. A search that exhausts its retries is recorded as a
// failure and the pass continues. The returned error is non-nil only for an
// invalid request or when ctx ends first; the partial result is returned
// either way.
func (o *SearchOrchestrator) Discover(ctx context.Context, store *repository.CaseStore, req DiscoverRequest) (*DiscoverResult, error) {
	barNumbers := distinctNonEmpty(req.BarNumbers)
	if len(barNumbers) == 0 {
		return nil, errors.Wrap(models.ErrFatalConfiguration, "no bar numbers to search")
	}
	if len(req.Jurisdictions) == 0 {
		return nil, errors.Wrap(models.ErrFatalConfiguration, "no jurisdictions to search")
	}
	if o.adapter == nil {
		return nil, errors.Wrap(models.ErrFatalConfiguration, "no court search adapter configured")
	}

	var (
		mu     sync.Mutex
		result DiscoverResult
	)

	g := errgroup.Group{}
	g.SetLimit(o.concurrency)
	for _, j := range req.Jurisdictions {
		g.Go(func() error {
			r := o.discoverJurisdiction(ctx, store, j, barNumbers)
			mu.Lock()
			result.add(r)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	sort.SliceStable(result.Failures, func(i, k int) bool {
		if result.Failures[i].Jurisdiction != result.Failures[k].Jurisdiction {
			return result.Failures[i].Jurisdiction < result.Failures[k].Jurisdiction
		}
		return result.Failures[i].BarNumber < result.Failures[k].BarNumber
	})

	if err := ctx.Err(); err != nil {
		return &result, errors.Wrap(err, "discovery interrupted")
	}
	return &result, nil
}

// discoverJurisdiction pages through each bar number in turn. Pages within a
// jurisdiction are fetched sequentially.
func (o *SearchOrchestrator) discoverJurisdiction(
	ctx context.Context,
	store *repository.CaseStore,
	jurisdiction models.Jurisdiction,
	barNumbers []string,
) DiscoverResult {
	logger := utils.LoggerFromContext(ctx).With("jurisdiction", string(jurisdiction))
	var result DiscoverResult

	for _, bar := range barNumbers {
		if ctx.Err() != nil {
			return result
		}
		barLogger := logger.With("bar_number", bar)
		seenTokens := set.New[string](0)
		token := ""

		for page := 1; ; page++ {
			var searchPage *models.SearchPage
			retries, err := o.retry.Do(ctx, func(ctx context.Context) error {
				if err := waitLimiter(ctx, o.limiter); err != nil {
					return err
				}
				p, err := o.adapter.Search(ctx, jurisdiction, bar, token)
				if err != nil {
					return err
				}
				if p == nil {
					return errors.Wrap(models.ErrDataFormat, "adapter returned no page")
				}
				searchPage = p
				return nil
			}, func(attempt uint, err error) {
				barLogger.DebugContext(ctx, "search page attempt failed", "page", page, "attempt", attempt, "error", err)
			})
			if err != nil {
				if ctx.Err() != nil {
					return result
				}
				barLogger.WarnContext(ctx, "search failed, continuing with next search",
					"page", page, "retries", retries, "error", err)
				result.Failures = append(result.Failures, models.JurisdictionFailure{
					Jurisdiction: jurisdiction,
					BarNumber:    bar,
					PageToken:    token,
					ErrorClass:   models.ErrorClass(err),
					Error:        err.Error(),
				})
				break
			}

			for _, row := range searchPage.Rows {
				o.mergeRow(ctx, store, jurisdiction, bar, row, &result)
			}

			if searchPage.Exhausted() {
				break
			}
			next := searchPage.NextPageToken
			if next == token || seenTokens.Contains(next) {
				barLogger.WarnContext(ctx, "search returned a repeated page token, stopping", "page", page, "token", next)
				break
			}
			if page >= o.maxPages {
				barLogger.WarnContext(ctx, "search page limit reached, stopping", "pages", page)
				break
			}
			seenTokens.Insert(token)
			token = next
		}
	}
	return result
}

func (o *SearchOrchestrator) mergeRow(
	ctx context.Context,
	store *repository.CaseStore,
	jurisdiction models.Jurisdiction,
	barNumber string,
	row models.SearchRow,
	result *DiscoverResult,
) {
	logger := utils.LoggerFromContext(ctx)

	rec, err := CaseRecordFromRow(jurisdiction, barNumber, row)
	if err != nil {
		logger.WarnContext(ctx, "skipping malformed search row",
			"jurisdiction", string(jurisdiction), "bar_number", barNumber, "case_id", row.CaseID, "error", err)
		result.RowsSkipped++
		return
	}
	if rec.Status != models.CaseStatusActive {
		result.InactiveFiltered++
		return
	}

	created, err := store.Merge(rec)
	if err != nil {
		logger.WarnContext(ctx, "failed to merge case", "case_id", rec.CaseID, "error", err)
		result.RowsSkipped++
		return
	}
	result.RowsMerged++
	if created {
		result.CasesCreated++
	}
}

// CaseRecordFromRow converts one search row found under barNumber into a case
// record. Rows without a case number or a recognizable status are data format
// errors.
func CaseRecordFromRow(jurisdiction models.Jurisdiction, barNumber string, row models.SearchRow) (models.CaseRecord, error) {
	caseID := strings.TrimSpace(row.CaseID)
	if caseID == "" {
		return models.CaseRecord{}, errors.Wrap(models.ErrDataFormat, "row without case number")
	}

	status := models.CaseStatus(strings.ToLower(strings.TrimSpace(string(row.Status))))
	if status != models.CaseStatusActive && status != models.CaseStatusInactive {
		return models.CaseRecord{}, errors.Wrapf(models.ErrDataFormat, "case %s has unknown status %q", caseID, row.Status)
	}

	rec := models.CaseRecord{
		CaseID:        caseID,
		Jurisdiction:  jurisdiction,
		Status:        status,
		MandateIssued: row.MandateIssued,
		Parties:       row.Parties,
		Attorneys:     row.Attorneys,
		BarNumbers:    []string{barNumber},
	}

	for _, listing := range []struct {
		table models.SourceTable
		rows  []models.DocumentRow
	}{
		{models.SourceTableEvents, row.Events},
		{models.SourceTableBriefs, row.Briefs},
	} {
		for _, dr := range listing.rows {
			if isMandateEvent(dr.EventType) {
				rec.MandateIssued = true
			}
			doc, ok := documentFromRow(caseID, listing.table, dr)
			if ok {
				rec.Documents = append(rec.Documents, doc)
			}
		}
	}
	return rec, nil
}

// documentFromRow builds a document record; rows without any link are skipped
func documentFromRow(caseID string, table models.SourceTable, row models.DocumentRow) (models.DocumentRecord, bool) {
	link := models.ResolveDocumentURL(row.URL)
	mediaID := strings.TrimSpace(row.MediaID)
	if mediaID == "" {
		mediaID = models.MediaIDFromURL(link)
	}
	if mediaID == "" {
		mediaID = link
	}
	if mediaID == "" {
		return models.DocumentRecord{}, false
	}

	docType := strings.TrimSpace(row.DocType)
	if docType == "" {
		docType = models.DocTypeFromURL(link)
	}

	return models.DocumentRecord{
		CaseID:         caseID,
		MediaID:        mediaID,
		FilingDate:     strings.TrimSpace(row.Date),
		EventType:      strings.TrimSpace(row.EventType),
		Disposition:    strings.TrimSpace(row.Disposition),
		Description:    strings.TrimSpace(row.Description),
		DocType:        docType,
		URL:            link,
		SourceTable:    table,
		DownloadStatus: models.DownloadStatusPending,
	}, true
}

func isMandateEvent(eventType string) bool {
	return strings.Contains(strings.ToLower(eventType), "mandate issued")
}

func distinctNonEmpty(values []string) []string {
	seen := set.New[string](len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || seen.Contains(v) {
			continue
		}
		seen.Insert(v)
		out = append(out, v)
	}
	return out
}
