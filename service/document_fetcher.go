package service

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"coa-docket/models"
	"coa-docket/repository"
	"coa-docket/storage"
	"coa-docket/utils"
)

// DocumentFetcher downloads eligible documents into artifact storage
type DocumentFetcher struct {
	source      DocumentSource
	storage     storage.Storage
	retry       RetryPolicy
	limiter     *rate.Limiter
	concurrency int
}

// DocumentFetcherOption is a functional option for DocumentFetcher
type DocumentFetcherOption func(*DocumentFetcher)

// FetcherWithRetryPolicy sets the retry policy applied to each download
func FetcherWithRetryPolicy(policy RetryPolicy) DocumentFetcherOption {
	return func(f *DocumentFetcher) {
		f.retry = policy
	}
}

// FetcherWithLimiter sets the limiter shared with other upstream callers
func FetcherWithLimiter(limiter *rate.Limiter) DocumentFetcherOption {
	return func(f *DocumentFetcher) {
		f.limiter = limiter
	}
}

// FetcherWithConcurrency sets how many documents are downloaded at once
func FetcherWithConcurrency(n int) DocumentFetcherOption {
	return func(f *DocumentFetcher) {
		if n > 0 {
			f.concurrency = n
		}
	}
}

// NewDocumentFetcher creates a new document fetcher
func NewDocumentFetcher(source DocumentSource, store storage.Storage, opts ...DocumentFetcherOption) *DocumentFetcher {
	f := &DocumentFetcher{
		source:      source,
		storage:     store,
		retry:       DefaultRetryPolicy(),
		concurrency: defaultConcurrency,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FetchResult counts download outcomes
type FetchResult struct {
	Downloaded int
	Failed     int
	Skipped    int
}

type fetchJob struct {
	doc models.DocumentRecord
	seq int
}

// Fetch downloads every document in eligible and records the outcome on the
// stored document. Artifacts are named by case ID and a per-case sequence
// number. Documents already downloaded keep their artifact and are skipped;
// new downloads are numbered in media ID order after the highest sequence the
// case already uses, so an artifact is never overwritten by another document.
func (f *DocumentFetcher) Fetch(ctx context.Context, store *repository.CaseStore, eligible []models.DocumentRecord) (*FetchResult, error) {
	if f.source == nil || f.storage == nil {
		return nil, errors.Wrap(models.ErrFatalConfiguration, "document fetcher needs a source and a storage")
	}

	var (
		mu     sync.Mutex
		result FetchResult
	)

	g := errgroup.Group{}
	g.SetLimit(f.concurrency)
	for _, job := range sequenceDocuments(store, eligible) {
		if job.doc.DownloadStatus == models.DownloadStatusDownloaded {
			mu.Lock()
			result.Skipped++
			mu.Unlock()
			continue
		}
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			ok := f.fetchOne(ctx, store, job)
			mu.Lock()
			if ok {
				result.Downloaded++
			} else {
				result.Failed++
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return &result, errors.Wrap(err, "document fetch interrupted")
	}
	return &result, nil
}

func (f *DocumentFetcher) fetchOne(ctx context.Context, store *repository.CaseStore, job fetchJob) bool {
	doc := job.doc
	logger := utils.LoggerFromContext(ctx).With("case_id", doc.CaseID, "media_id", doc.MediaID)

	var data []byte
	retries, err := f.retry.Do(ctx, func(ctx context.Context) error {
		if err := waitLimiter(ctx, f.limiter); err != nil {
			return err
		}
		var err error
		data, err = f.source.Download(ctx, doc.URL)
		return err
	}, func(attempt uint, err error) {
		logger.DebugContext(ctx, "download attempt failed", "attempt", attempt, "error", err)
	})

	var path string
	if err == nil {
		path, err = f.storage.Upload(ctx, storage.ArtifactPath(doc.CaseID, job.seq), bytes.NewReader(data))
	}

	updateErr := store.UpdateDocument(doc.CaseID, doc.MediaID, func(d *models.DocumentRecord) {
		d.RetryCount = retries
		if err != nil {
			d.DownloadStatus = models.DownloadStatusFailed
			d.DownloadPath = ""
			d.LastErrorClass = models.ErrorClass(err)
			d.LastError = err.Error()
			return
		}
		d.DownloadStatus = models.DownloadStatusDownloaded
		d.DownloadPath = path
		d.LastErrorClass = ""
		d.LastError = ""
	})
	if updateErr != nil {
		logger.WarnContext(ctx, "failed to record download outcome", "error", updateErr)
		if err == nil {
			if delErr := f.storage.Delete(ctx, path); delErr != nil {
				logger.WarnContext(ctx, "failed to remove unrecorded artifact", "path", path, "error", delErr)
			}
			return false
		}
	}

	if err != nil {
		logger.WarnContext(ctx, "document download failed", "retries", retries, "error_class", models.ErrorClass(err), "error", err)
		return false
	}
	logger.InfoContext(ctx, "document downloaded", "path", path, "retries", retries)
	return true
}

// sequenceDocuments numbers the documents of each case in media ID order,
// starting after the highest sequence already held by a downloaded document of
// the stored case. Documents already downloaded keep their own path.
func sequenceDocuments(store *repository.CaseStore, docs []models.DocumentRecord) []fetchJob {
	sorted := append([]models.DocumentRecord(nil), docs...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].CaseID != sorted[j].CaseID {
			return sorted[i].CaseID < sorted[j].CaseID
		}
		return sorted[i].MediaID < sorted[j].MediaID
	})

	jobs := make([]fetchJob, 0, len(sorted))
	seq := 0
	for i, d := range sorted {
		if i == 0 || d.CaseID != sorted[i-1].CaseID {
			seq = highestSequence(store, d.CaseID)
		}
		if d.DownloadStatus == models.DownloadStatusDownloaded {
			jobs = append(jobs, fetchJob{doc: d})
			continue
		}
		seq++
		jobs = append(jobs, fetchJob{doc: d, seq: seq})
	}
	return jobs
}

func highestSequence(store *repository.CaseStore, caseID string) int {
	rec, ok := store.Get(caseID)
	if !ok {
		return 0
	}
	highest := 0
	for _, d := range rec.Documents {
		if d.DownloadPath == "" {
			continue
		}
		if seq, ok := storage.ArtifactSequence(caseID, d.DownloadPath); ok && seq > highest {
			highest = seq
		}
	}
	return highest
}
