package service

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coa-docket/models"
	"coa-docket/repository"
)

func appellateCase(caseID string, parties []string, bars ...string) models.CaseRecord {
	return models.CaseRecord{
		CaseID:     caseID,
		Status:     models.CaseStatusActive,
		Parties:    parties,
		BarNumbers: bars,
	}
}

func trialCase(caseID string, status models.CaseStatus, parties []string, bars ...string) models.CaseRecord {
	rec := appellateCase(caseID, parties, bars...)
	rec.Status = status
	return rec
}

func storeWith(t *testing.T, records ...models.CaseRecord) *repository.CaseStore {
	t.Helper()
	store := repository.NewCaseStore()
	for _, rec := range records {
		_, err := store.Merge(rec)
		require.NoError(t, err)
	}
	return store
}

func xrefOf(t *testing.T, store *repository.CaseStore, caseID string) models.CrossReference {
	t.Helper()
	rec, ok := store.Get(caseID)
	require.True(t, ok)
	require.NotNil(t, rec.CrossReference)
	return *rec.CrossReference
}

func TestNormalizePartyName(t *testing.T) {
	assert.Equal(t, "john doe", NormalizePartyName("Appellant: John  Doe"))
	assert.Equal(t, "john doe", NormalizePartyName("APPELLANT - john doe."))
	assert.Equal(t, "john q doe jr", NormalizePartyName("Petitioner:John Q. Doe, Jr."))
	assert.Equal(t, "the state of texas", NormalizePartyName("Appellee: The State of Texas"))
}

func TestResolveLinksSingleTrialCase(t *testing.T) {
	store := storeWith(t,
		appellateCase("05-23-00123-CR", []string{"Appellant: John Doe", "Appellee: The State of Texas"}, barA),
		trialCase("PD-0100-23", models.CaseStatusActive, []string{"Petitioner: JOHN DOE", "The State of Texas"}, barB),
	)

	result, err := NewCrossReferenceResolver().Resolve(context.Background(), store)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Linked)
	assert.Equal(t, 1, result.NotApplicable)

	xref := xrefOf(t, store, "05-23-00123-CR")
	assert.Equal(t, models.CrossReferenceLinked, xref.Status)
	assert.Equal(t, "PD-0100-23", xref.TrialCaseID)
	assert.True(t, xref.TrialCaseOpen)
	assert.True(t, xref.HasConcurrentOpenCase())

	assert.Equal(t, models.CrossReferenceNotApplicable, xrefOf(t, store, "PD-0100-23").Status)
}

func TestResolveSharedStatePartyIsNotAMatch(t *testing.T) {
	store := storeWith(t,
		appellateCase("05-23-00123-CR", []string{"Appellant: John Doe", "Appellee: The State of Texas"}),
		trialCase("PD-0100-23", models.CaseStatusActive, []string{"Richard Roe", "The State of Texas"}),
	)

	result, err := NewCrossReferenceResolver().Resolve(context.Background(), store)
	require.NoError(t, err)
	assert.Equal(t, 1, result.NoneFound)
	assert.Equal(t, models.CrossReferenceNoneFound, xrefOf(t, store, "05-23-00123-CR").Status)
}

func TestResolveTieBreakOnSharedBarNumbers(t *testing.T) {
	parties := []string{"Appellant: John Doe"}
	store := storeWith(t,
		appellateCase("05-23-00123-CR", parties, barA, barB),
		trialCase("PD-0100-23", models.CaseStatusActive, parties, barA),
		trialCase("PD-0200-23", models.CaseStatusActive, parties, barA, barB),
	)

	_, err := NewCrossReferenceResolver().Resolve(context.Background(), store)
	require.NoError(t, err)

	xref := xrefOf(t, store, "05-23-00123-CR")
	assert.Equal(t, models.CrossReferenceLinked, xref.Status)
	assert.Equal(t, "PD-0200-23", xref.TrialCaseID)
}

func TestResolveTieLeavesReferenceUnresolved(t *testing.T) {
	parties := []string{"Appellant: John Doe"}
	store := storeWith(t,
		appellateCase("05-23-00123-CR", parties, barA),
		trialCase("PD-0100-23", models.CaseStatusActive, parties, barA),
		trialCase("PD-0200-23", models.CaseStatusActive, parties, barA),
	)

	result, err := NewCrossReferenceResolver().Resolve(context.Background(), store)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Unresolved)

	xref := xrefOf(t, store, "05-23-00123-CR")
	assert.Equal(t, models.CrossReferenceUnresolved, xref.Status)
	assert.Equal(t, []string{"PD-0100-23", "PD-0200-23"}, xref.Candidates)
	assert.True(t, xref.HasConcurrentOpenCase())
}

func TestResolveCopiesMandateFlag(t *testing.T) {
	rec := appellateCase("05-23-00123-CR", []string{"Appellant: John Doe"})
	rec.MandateIssued = true
	store := storeWith(t, rec)

	_, err := NewCrossReferenceResolver().Resolve(context.Background(), store)
	require.NoError(t, err)
	assert.True(t, xrefOf(t, store, "05-23-00123-CR").MandateIssued)
}

func TestResolveFallsBackToRemoteLookup(t *testing.T) {
	lookup := &stubLookup{cases: map[string][]models.CaseRecord{
		"john doe": {
			trialCase("PD-0100-23", models.CaseStatusInactive, []string{"John Doe"}),
			appellateCase("06-20-00001-CR", []string{"John Doe"}),
		},
	}}
	store := storeWith(t,
		appellateCase("05-23-00123-CR", []string{"Appellant: John Doe"}),
		appellateCase("05-23-00456-CR", []string{"Appellant: John Doe"}),
	)

	resolver := NewCrossReferenceResolver(
		ResolverWithLookup(lookup, 16, 0),
		ResolverWithRetryPolicy(fastRetry),
	)
	result, err := resolver.Resolve(context.Background(), store)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Linked)

	xref := xrefOf(t, store, "05-23-00123-CR")
	assert.Equal(t, "PD-0100-23", xref.TrialCaseID)
	assert.False(t, xref.TrialCaseOpen)
	assert.False(t, xref.HasConcurrentOpenCase())
	assert.Equal(t, 1, lookup.calls["john doe"], "second case is served from the cache")
}

func TestResolveLookupFailureFailsClosed(t *testing.T) {
	lookup := &stubLookup{err: errors.New("court site rejected query")}
	store := storeWith(t, appellateCase("05-23-00123-CR", []string{"Appellant: John Doe"}))

	resolver := NewCrossReferenceResolver(ResolverWithLookup(lookup, 0, 0), ResolverWithRetryPolicy(fastRetry))
	result, err := resolver.Resolve(context.Background(), store)
	require.NoError(t, err)
	assert.Equal(t, 1, result.LookupFailures)
	assert.Equal(t, models.CrossReferenceUnresolved, xrefOf(t, store, "05-23-00123-CR").Status)
}
