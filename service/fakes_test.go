package service

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"coa-docket/models"
)

var fastRetry = RetryPolicy{
	MaxAttempts:  3,
	InitialDelay: time.Millisecond,
	MaxDelay:     5 * time.Millisecond,
}

func searchKey(j models.Jurisdiction, bar, token string) string {
	return string(j) + "|" + bar + "|" + token
}

// scriptedAdapter serves pages by (jurisdiction, bar number, token). Keys with
// a failure count fail transiently that many times first; failing
// jurisdictions always fail.
type scriptedAdapter struct {
	mu        sync.Mutex
	pages     map[string]models.SearchPage
	failures  map[string]int
	failing   map[models.Jurisdiction]error
	calls     map[string]int
	block     bool
}

func newScriptedAdapter() *scriptedAdapter {
	return &scriptedAdapter{
		pages:    make(map[string]models.SearchPage),
		failures: make(map[string]int),
		failing:  make(map[models.Jurisdiction]error),
		calls:    make(map[string]int),
	}
}

func (a *scriptedAdapter) addPage(j models.Jurisdiction, bar, token string, page models.SearchPage) {
	a.pages[searchKey(j, bar, token)] = page
}

func (a *scriptedAdapter) Search(ctx context.Context, j models.Jurisdiction, bar, token string) (*models.SearchPage, error) {
	if a.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	key := searchKey(j, bar, token)
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls[key]++

	if err, ok := a.failing[j]; ok {
		return nil, err
	}
	if a.failures[key] > 0 {
		a.failures[key]--
		return nil, models.MarkTransient(errors.New("connection reset by peer"))
	}
	page := a.pages[key]
	return &page, nil
}

func (a *scriptedAdapter) callCount(j models.Jurisdiction, bar, token string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls[searchKey(j, bar, token)]
}

// scriptedSource fails each URL with its scripted errors before serving its body
type scriptedSource struct {
	mu       sync.Mutex
	bodies   map[string][]byte
	failures map[string][]error
	calls    map[string]int
}

func newScriptedSource() *scriptedSource {
	return &scriptedSource{
		bodies:   make(map[string][]byte),
		failures: make(map[string][]error),
		calls:    make(map[string]int),
	}
}

func (s *scriptedSource) Download(ctx context.Context, url string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[url]++

	if errs := s.failures[url]; len(errs) > 0 {
		s.failures[url] = errs[1:]
		return nil, errs[0]
	}
	body, ok := s.bodies[url]
	if !ok {
		return nil, errors.Wrapf(models.ClassifyHTTPStatus(404), "no document at %s", url)
	}
	return body, nil
}

func (s *scriptedSource) callCount(url string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[url]
}

// stubAnalyzer returns one issue per document, or the error set for its media ID
type stubAnalyzer struct {
	mu     sync.Mutex
	errs   map[string]error
	calls  int
	issues []models.Issue
}

func (a *stubAnalyzer) AnalyzeDocument(ctx context.Context, req AnalysisRequest) ([]models.Issue, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	if err, ok := a.errs[req.MediaID]; ok {
		return nil, err
	}
	if a.issues != nil {
		return a.issues, nil
	}
	return []models.Issue{{Category: "Sufficiency of Evidence", Description: "brief for " + req.MediaID}}, nil
}

// stubLookup records how many times each party was looked up
type stubLookup struct {
	mu    sync.Mutex
	cases map[string][]models.CaseRecord
	err   error
	calls map[string]int
}

func (l *stubLookup) FindTrialCases(ctx context.Context, party string) ([]models.CaseRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.calls == nil {
		l.calls = make(map[string]int)
	}
	l.calls[party]++
	if l.err != nil {
		return nil, l.err
	}
	return l.cases[party], nil
}
