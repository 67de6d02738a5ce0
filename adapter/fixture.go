package adapter

import (
	"context"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"coa-docket/models"
	"coa-docket/service"
)

// Fixture is a recorded set of court search pages and trial-level cases
type Fixture struct {
	Pages      []FixturePage `yaml:"pages"`
	TrialCases []TrialCase   `yaml:"trial_cases"`
}

// FixturePage is one recorded search response. A non-zero FailWithStatus
// replays an upstream error instead of the page.
type FixturePage struct {
	Jurisdiction   models.Jurisdiction `yaml:"jurisdiction"`
	BarNumber      string              `yaml:"bar_number"`
	PageToken      string              `yaml:"page_token"`
	FailWithStatus int                 `yaml:"fail_with_status"`

	models.SearchPage `yaml:",inline"`
}

// TrialCase is a recorded trial-level case returned by party lookups
type TrialCase struct {
	models.SearchRow `yaml:",inline"`
	Court            string `yaml:"court"`
}

type pageKey struct {
	jurisdiction models.Jurisdiction
	barNumber    string
	pageToken    string
}

// FixtureAdapter replays recorded responses. It serves both as the court
// search adapter and as the trial case lookup.
type FixtureAdapter struct {
	pages      map[pageKey]FixturePage
	trialCases []TrialCase
}

var (
	_ service.CourtSearchAdapter = (*FixtureAdapter)(nil)
	_ service.TrialCaseLookup    = (*FixtureAdapter)(nil)
)

// NewFixtureAdapter indexes a fixture
func NewFixtureAdapter(f Fixture) *FixtureAdapter {
	a := &FixtureAdapter{
		pages:      make(map[pageKey]FixturePage, len(f.Pages)),
		trialCases: f.TrialCases,
	}
	for _, p := range f.Pages {
		key := pageKey{
			jurisdiction: models.Jurisdiction(strings.ToLower(string(p.Jurisdiction))),
			barNumber:    p.BarNumber,
			pageToken:    p.PageToken,
		}
		a.pages[key] = p
	}
	return a
}

// LoadFixture reads a YAML fixture file
func LoadFixture(path string) (*FixtureAdapter, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "failed to read fixture %s", path), models.ErrFatalConfiguration)
	}
	return ParseFixture(data)
}

// ParseFixture decodes YAML fixture content
func ParseFixture(data []byte) (*FixtureAdapter, error) {
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrapf(models.ErrFatalConfiguration, "invalid fixture: %v", err)
	}
	return NewFixtureAdapter(f), nil
}

// Search returns the recorded page. Searches with no recording return an empty, exhausted page.
func (a *FixtureAdapter) Search(ctx context.Context, jurisdiction models.Jurisdiction, barNumber, pageToken string) (*models.SearchPage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p, ok := a.pages[pageKey{jurisdiction: jurisdiction, barNumber: barNumber, pageToken: pageToken}]
	if !ok {
		return &models.SearchPage{}, nil
	}
	if p.FailWithStatus != 0 {
		if err := models.ClassifyHTTPStatus(p.FailWithStatus); err != nil {
			return nil, errors.Wrapf(err, "search %s for %s", jurisdiction, barNumber)
		}
	}

	page := p.SearchPage
	page.Rows = append([]models.SearchRow(nil), p.Rows...)
	return &page, nil
}

// FindTrialCases returns recorded trial-level cases listing partyName as a party
func (a *FixtureAdapter) FindTrialCases(ctx context.Context, partyName string) ([]models.CaseRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	want := service.NormalizePartyName(partyName)
	var out []models.CaseRecord
	for _, tc := range a.trialCases {
		if !hasParty(tc.Parties, want) {
			continue
		}
		rec, err := service.CaseRecordFromRow(models.Jurisdiction(tc.Court), "", tc.SearchRow)
		if err != nil {
			continue
		}
		rec.BarNumbers = nil
		out = append(out, rec)
	}
	return out, nil
}

func hasParty(parties []string, normalized string) bool {
	for _, p := range parties {
		if service.NormalizePartyName(p) == normalized {
			return true
		}
	}
	return false
}
