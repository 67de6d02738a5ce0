package repository

import (
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/hashicorp/go-set/v2"

	"coa-docket/models"
)

// CaseStore is the run's single shared mutable structure: case ID -> CaseRecord.
// Every mutation of a case happens under that case's own lock, so two
// goroutines merging the same case serialize while different cases proceed
// in parallel. Records handed out are deep copies.
type CaseStore struct {
	mu    sync.RWMutex
	cases map[string]*caseEntry
}

type caseEntry struct {
	mu  sync.Mutex
	rec models.CaseRecord
}

// NewCaseStore creates an empty store
func NewCaseStore() *CaseStore {
	return &CaseStore{cases: make(map[string]*caseEntry)}
}

func (s *CaseStore) entry(caseID string, create bool) (*caseEntry, bool) {
	s.mu.RLock()
	e, ok := s.cases[caseID]
	s.mu.RUnlock()
	if ok || !create {
		return e, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok = s.cases[caseID]; ok {
		return e, false
	}
	e = &caseEntry{}
	s.cases[caseID] = e
	return e, true
}

// Merge folds incoming into the stored record for the same case ID, creating it
// if needed. Merging is idempotent and order-independent. It reports whether
// the case was new.
func (s *CaseStore) Merge(incoming models.CaseRecord) (bool, error) {
	if incoming.CaseID == "" {
		return false, errors.Wrap(models.ErrDataFormat, "case record without case id")
	}

	e, created := s.entry(incoming.CaseID, true)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.rec.CaseID == "" {
		e.rec = models.CaseRecord{CaseID: incoming.CaseID}
	}
	mergeCase(&e.rec, incoming.Clone())
	return created, nil
}

// Get returns a copy of the case record
func (s *CaseStore) Get(caseID string) (models.CaseRecord, bool) {
	e, _ := s.entry(caseID, false)
	if e == nil {
		return models.CaseRecord{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rec.Clone(), true
}

// Update runs fn on the stored record inside the case's exclusive section
func (s *CaseStore) Update(caseID string, fn func(rec *models.CaseRecord) error) error {
	e, _ := s.entry(caseID, false)
	if e == nil {
		return errors.Wrapf(models.ErrCaseNotFound, "case %s", caseID)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(&e.rec)
}

// UpdateDocument runs fn on one document of a case inside the case's exclusive section
func (s *CaseStore) UpdateDocument(caseID, mediaID string, fn func(doc *models.DocumentRecord)) error {
	return s.Update(caseID, func(rec *models.CaseRecord) error {
		for i := range rec.Documents {
			if rec.Documents[i].MediaID == mediaID {
				fn(&rec.Documents[i])
				return nil
			}
		}
		return errors.Wrapf(models.ErrDocumentNotFound, "document %s of case %s", mediaID, caseID)
	})
}

// Restore carries the download and analysis outcomes of a previous run over
// to the documents of cases already in the store. Status, parties and cross
// references stay as discovered in this run; cases and documents that were not
// rediscovered are ignored. It returns the number of cases that matched.
func (s *CaseStore) Restore(previous []models.CaseRecord) int {
	restored := 0
	for _, prev := range previous {
		e, _ := s.entry(prev.CaseID, false)
		if e == nil {
			continue
		}

		e.mu.Lock()
		for _, pd := range prev.Documents {
			for i := range e.rec.Documents {
				if e.rec.Documents[i].MediaID == pd.MediaID {
					mergeOutcome(&e.rec.Documents[i], pd.Clone())
				}
			}
		}
		e.mu.Unlock()
		restored++
	}
	return restored
}

// Len returns the number of cases
func (s *CaseStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cases)
}

// IDs returns all case IDs in sorted order
func (s *CaseStore) IDs() []string {
	s.mu.RLock()
	ids := make([]string, 0, len(s.cases))
	for id := range s.cases {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Snapshot returns copies of every record, ordered by case ID
func (s *CaseStore) Snapshot() []models.CaseRecord {
	ids := s.IDs()
	out := make([]models.CaseRecord, 0, len(ids))
	for _, id := range ids {
		if rec, ok := s.Get(id); ok {
			out = append(out, rec)
		}
	}
	return out
}

// BarNumberIndex maps each bar number to the sorted IDs of cases found under it
func (s *CaseStore) BarNumberIndex() map[string][]string {
	return BarNumberIndexOf(s.Snapshot())
}

// BarNumberIndexOf builds the bar number -> case IDs mapping of records
func BarNumberIndexOf(records []models.CaseRecord) map[string][]string {
	index := make(map[string][]string)
	for _, rec := range records {
		for _, bar := range rec.BarNumbers {
			index[bar] = append(index[bar], rec.CaseID)
		}
	}
	for bar := range index {
		sort.Strings(index[bar])
	}
	return index
}

func mergeCase(dst *models.CaseRecord, src models.CaseRecord) {
	dst.Jurisdiction = models.Jurisdiction(preferString(string(dst.Jurisdiction), string(src.Jurisdiction)))
	if dst.Status == models.CaseStatusActive || src.Status == models.CaseStatusActive {
		dst.Status = models.CaseStatusActive
	} else {
		dst.Status = models.CaseStatus(preferString(string(dst.Status), string(src.Status)))
	}
	dst.MandateIssued = dst.MandateIssued || src.MandateIssued
	dst.Parties = unionSorted(dst.Parties, src.Parties)
	dst.BarNumbers = unionSorted(dst.BarNumbers, src.BarNumbers)
	dst.Attorneys = mergeAttorneys(dst.Attorneys, src.Attorneys)
	dst.Documents = mergeDocuments(dst.Documents, src.Documents)
	if src.CrossReference != nil {
		dst.CrossReference = src.CrossReference
	}
}

// preferString keeps whichever value is set; when both are, the smaller wins
// so the outcome does not depend on merge order.
func preferString(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	case b < a:
		return b
	default:
		return a
	}
}

func unionSorted(a, b []string) []string {
	s := set.New[string](len(a) + len(b))
	for _, v := range a {
		if v != "" {
			s.Insert(v)
		}
	}
	for _, v := range b {
		if v != "" {
			s.Insert(v)
		}
	}
	out := s.Slice()
	sort.Strings(out)
	return out
}

func mergeAttorneys(a, b []models.Attorney) []models.Attorney {
	s := set.From(a)
	s.InsertSlice(b)
	out := s.Slice()
	sort.Slice(out, func(i, j int) bool {
		if out[i].BarNumber != out[j].BarNumber {
			return out[i].BarNumber < out[j].BarNumber
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// mergeDocuments unions documents by media ID. The same document listed in
// both the events and briefs tables collapses to one record tagged as a brief.
func mergeDocuments(existing, incoming []models.DocumentRecord) []models.DocumentRecord {
	byID := make(map[string]models.DocumentRecord, len(existing)+len(incoming))
	for _, d := range existing {
		byID[d.MediaID] = d
	}
	for _, d := range incoming {
		if cur, ok := byID[d.MediaID]; ok {
			byID[d.MediaID] = mergeDocument(cur, d)
		} else {
			byID[d.MediaID] = d
		}
	}

	out := make([]models.DocumentRecord, 0, len(byID))
	for _, d := range byID {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MediaID < out[j].MediaID })
	return out
}

func mergeDocument(dst, src models.DocumentRecord) models.DocumentRecord {
	dst.FilingDate = preferString(dst.FilingDate, src.FilingDate)
	dst.EventType = preferString(dst.EventType, src.EventType)
	dst.Disposition = preferString(dst.Disposition, src.Disposition)
	dst.Description = preferString(dst.Description, src.Description)
	dst.DocType = preferString(dst.DocType, src.DocType)
	dst.URL = preferString(dst.URL, src.URL)
	if dst.SourceTable == models.SourceTableBriefs || src.SourceTable == models.SourceTableBriefs {
		dst.SourceTable = models.SourceTableBriefs
	} else {
		dst.SourceTable = models.SourceTable(preferString(string(dst.SourceTable), string(src.SourceTable)))
	}

	mergeOutcome(&dst, src)
	if dst.Eligibility == nil {
		dst.Eligibility = src.Eligibility
	}
	return dst
}

// mergeOutcome keeps the best download outcome and any analysis result
func mergeOutcome(dst *models.DocumentRecord, src models.DocumentRecord) {
	if downloadRank(src.DownloadStatus) > downloadRank(dst.DownloadStatus) {
		dst.DownloadStatus = src.DownloadStatus
		dst.DownloadPath = src.DownloadPath
		dst.RetryCount = src.RetryCount
		dst.LastErrorClass = src.LastErrorClass
		dst.LastError = src.LastError
	}
	if len(dst.Issues) == 0 && len(src.Issues) > 0 {
		dst.Issues = src.Issues
		dst.AnalysisError = ""
	}
}

func downloadRank(status models.DownloadStatus) int {
	switch status {
	case models.DownloadStatusDownloaded:
		return 3
	case models.DownloadStatusFailed:
		return 2
	case models.DownloadStatusPending:
		return 1
	default:
		return 0
	}
}
