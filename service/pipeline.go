package service

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"coa-docket/models"
	"coa-docket/repository"
	"coa-docket/utils"
)

const persistTimeout = time.Minute

// ResultSaver persists a finished run, e.g. *repository.CaseRepository
type ResultSaver interface {
	SaveAll(ctx context.Context, records []models.CaseRecord) error
	SaveRunSummary(ctx context.Context, summary models.RunSummary) error
}

// Pipeline runs discovery, cross referencing, eligibility, download and analysis over one store
type Pipeline struct {
	store        *repository.CaseStore
	orchestrator *SearchOrchestrator
	resolver     *CrossReferenceResolver
	evaluator    EligibilityEvaluator
	fetcher      *DocumentFetcher
	dispatcher   *AnalysisDispatcher
	snapshots    *repository.SnapshotWriter
	saver        ResultSaver
	resumeDir    string
	runTimeout   time.Duration
}

// PipelineOption is a functional option for Pipeline
type PipelineOption func(*Pipeline)

// PipelineWithStore sets the case store; by default each pipeline gets an empty one
func PipelineWithStore(store *repository.CaseStore) PipelineOption {
	return func(p *Pipeline) {
		p.store = store
	}
}

// PipelineWithOrchestrator sets the search orchestrator
func PipelineWithOrchestrator(o *SearchOrchestrator) PipelineOption {
	return func(p *Pipeline) {
		p.orchestrator = o
	}
}

// PipelineWithResolver sets the cross reference resolver
func PipelineWithResolver(r *CrossReferenceResolver) PipelineOption {
	return func(p *Pipeline) {
		p.resolver = r
	}
}

// PipelineWithFetcher sets the document fetcher
func PipelineWithFetcher(f *DocumentFetcher) PipelineOption {
	return func(p *Pipeline) {
		p.fetcher = f
	}
}

// PipelineWithDispatcher sets the analysis dispatcher
func PipelineWithDispatcher(d *AnalysisDispatcher) PipelineOption {
	return func(p *Pipeline) {
		p.dispatcher = d
	}
}

// PipelineWithSnapshotWriter writes the output files at the end of each run
func PipelineWithSnapshotWriter(w *repository.SnapshotWriter) PipelineOption {
	return func(p *Pipeline) {
		p.snapshots = w
	}
}

// PipelineWithResultSaver also stores results in a database
func PipelineWithResultSaver(s ResultSaver) PipelineOption {
	return func(p *Pipeline) {
		p.saver = s
	}
}

// PipelineWithResumeDir loads a previous run's case details before discovery
func PipelineWithResumeDir(dir string) PipelineOption {
	return func(p *Pipeline) {
		p.resumeDir = dir
	}
}

// PipelineWithRunTimeout bounds the whole run
func PipelineWithRunTimeout(d time.Duration) PipelineOption {
	return func(p *Pipeline) {
		p.runTimeout = d
	}
}

// NewPipeline creates a new pipeline
func NewPipeline(opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		evaluator: NewEligibilityEvaluator(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.store == nil {
		p.store = repository.NewCaseStore()
	}
	if p.resolver == nil {
		p.resolver = NewCrossReferenceResolver()
	}
	if p.dispatcher == nil {
		p.dispatcher = &AnalysisDispatcher{}
	}
	return p
}

// Store returns the pipeline's case store
func (p *Pipeline) Store() *repository.CaseStore {
	return p.store
}

// RunRequest lists the bar numbers and jurisdictions to search
type RunRequest struct {
	BarNumbers    []string
	Jurisdictions []models.Jurisdiction
}

// Validate checks the request before any network call is made
func (r RunRequest) Validate() error {
	if len(distinctNonEmpty(r.BarNumbers)) == 0 {
		return errors.Wrap(models.ErrFatalConfiguration, "no bar numbers configured")
	}
	if len(r.Jurisdictions) == 0 {
		return errors.Wrap(models.ErrFatalConfiguration, "no jurisdictions configured")
	}
	for _, j := range r.Jurisdictions {
		if _, err := models.ParseJurisdiction(string(j)); err != nil {
			return err
		}
	}
	return nil
}

// Run executes one full pass and persists its results. Only a fatal
// configuration error aborts, and it does so before discovery. When the run
// timeout fires, the stages still pending are skipped and whatever the store
// holds is persisted with TimedOut set.
func (p *Pipeline) Run(ctx context.Context, req RunRequest) (*models.RunSummary, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if p.orchestrator == nil || p.fetcher == nil {
		return nil, errors.Wrap(models.ErrFatalConfiguration, "pipeline needs a search orchestrator and a document fetcher")
	}

	summary := &models.RunSummary{
		RunID:         uuid.New(),
		StartedAt:     time.Now().UTC(),
		BarNumbers:    distinctNonEmpty(req.BarNumbers),
		Jurisdictions: req.Jurisdictions,
	}
	logger := utils.LoggerFromContext(ctx).With("run_id", summary.RunID.String())
	ctx = utils.StoreLoggerInContext(ctx, logger)

	var previous []models.CaseRecord
	if p.resumeDir != "" {
		var err error
		if previous, err = repository.LoadSnapshot(p.resumeDir); err != nil {
			logger.WarnContext(ctx, "failed to load previous results, starting fresh", "error", err)
		}
	}

	runCtx, cancel := ctx, context.CancelFunc(func() {})
	if p.runTimeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, p.runTimeout)
	}
	defer cancel()

	stageErr := p.runStages(runCtx, req, summary, previous)
	if errors.Is(stageErr, models.ErrFatalConfiguration) {
		return nil, stageErr
	}
	if stageErr != nil && runCtx.Err() != nil {
		summary.TimedOut = true
		logger.WarnContext(ctx, "run stopped before completion, persisting partial results", "error", stageErr)
		stageErr = nil
	}

	p.countDocuments(summary)
	summary.CasesDiscovered = p.store.Len()
	summary.FinishedAt = time.Now().UTC()

	if err := p.persist(ctx, summary); err != nil {
		return summary, err
	}

	logger.InfoContext(ctx, "run finished",
		"cases", summary.CasesDiscovered,
		"failed_jurisdictions", len(summary.FailedJurisdictions),
		"documents_eligible", summary.DocumentsEligible,
		"documents_downloaded", summary.DocumentsDownloaded,
		"documents_failed", summary.DocumentsFailed,
		"analysis_skipped", summary.AnalysisSkipped,
		"analyses_failed", summary.AnalysesFailed,
		"timed_out", summary.TimedOut,
	)
	return summary, stageErr
}

// runStages runs discovery through analysis. Outcomes of a previous run are
// restored only onto cases rediscovered as active, so a case that has since
// closed drops out of the run.
func (p *Pipeline) runStages(ctx context.Context, req RunRequest, summary *models.RunSummary, previous []models.CaseRecord) error {
	discovered, err := p.orchestrator.Discover(ctx, p.store, DiscoverRequest{
		BarNumbers:    req.BarNumbers,
		Jurisdictions: req.Jurisdictions,
	})
	if len(previous) > 0 {
		n := p.store.Restore(previous)
		utils.LoggerFromContext(ctx).InfoContext(ctx, "resumed from previous results",
			"previous_cases", len(previous), "rediscovered", n)
	}
	if discovered != nil {
		summary.RowsSkipped = discovered.RowsSkipped
		summary.InactiveFiltered = discovered.InactiveFiltered
		summary.FailedJurisdictions = discovered.FailedJurisdictions()
		summary.JurisdictionErrors = discovered.Failures
	}
	if err != nil {
		return err
	}

	resolved, err := p.resolver.Resolve(ctx, p.store)
	if resolved != nil {
		summary.CrossReferencesLinked = resolved.Linked
		summary.CrossReferencesUnresolved = resolved.Unresolved
	}
	if err != nil {
		return err
	}

	eligible := p.evaluate()

	if _, err := p.fetcher.Fetch(ctx, p.store, eligible); err != nil {
		return err
	}

	analysis, err := p.dispatcher.Analyze(ctx, p.store, p.downloaded())
	if analysis != nil {
		summary.AnalysisSkipped = analysis.Skipped
		summary.AnalysesCompleted = analysis.Completed
		summary.AnalysesFailed = analysis.Failed
	}
	return err
}

// evaluate stores a verdict on every document and returns the eligible ones
func (p *Pipeline) evaluate() []models.DocumentRecord {
	var eligible []models.DocumentRecord
	for _, rec := range p.store.Snapshot() {
		for _, doc := range rec.Documents {
			verdict := p.evaluator.Evaluate(doc, rec, rec.CrossReference)
			_ = p.store.UpdateDocument(rec.CaseID, doc.MediaID, func(d *models.DocumentRecord) {
				v := verdict
				d.Eligibility = &v
			})
			if verdict.Eligible {
				doc.Eligibility = &verdict
				eligible = append(eligible, doc)
			}
		}
	}
	return eligible
}

func (p *Pipeline) downloaded() []models.DocumentRecord {
	var out []models.DocumentRecord
	for _, rec := range p.store.Snapshot() {
		for _, doc := range rec.Documents {
			if doc.Eligibility != nil && doc.Eligibility.Eligible && doc.DownloadStatus == models.DownloadStatusDownloaded {
				out = append(out, doc)
			}
		}
	}
	return out
}

func (p *Pipeline) countDocuments(summary *models.RunSummary) {
	summary.DocumentsEvaluated = 0
	summary.DocumentsEligible = 0
	summary.DocumentsDownloaded = 0
	summary.DocumentsFailed = 0
	for _, rec := range p.store.Snapshot() {
		for _, doc := range rec.Documents {
			if doc.Eligibility == nil {
				continue
			}
			summary.DocumentsEvaluated++
			if !doc.Eligibility.Eligible {
				continue
			}
			summary.DocumentsEligible++
			switch doc.DownloadStatus {
			case models.DownloadStatusDownloaded:
				summary.DocumentsDownloaded++
			case models.DownloadStatusFailed:
				summary.DocumentsFailed++
			}
		}
	}
}

// persist writes the outputs with a context detached from the run timeout so
// a timed-out run still saves its partial store
func (p *Pipeline) persist(ctx context.Context, summary *models.RunSummary) error {
	records := p.store.Snapshot()

	var errs error
	if p.snapshots != nil {
		if err := p.snapshots.Write(records, summary); err != nil {
			errs = errors.CombineErrors(errs, errors.Wrap(err, "failed to write output files"))
		}
	}

	if p.saver != nil {
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
		defer cancel()
		if err := p.saver.SaveAll(saveCtx, records); err != nil {
			errs = errors.CombineErrors(errs, errors.Wrap(err, "failed to save case records"))
		} else if err := p.saver.SaveRunSummary(saveCtx, *summary); err != nil {
			errs = errors.CombineErrors(errs, errors.Wrap(err, "failed to save run summary"))
		}
	}
	return errs
}
