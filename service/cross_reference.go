package service

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/cockroachdb/errors"
	"github.com/hashicorp/go-set/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"

	"coa-docket/models"
	"coa-docket/repository"
	"coa-docket/utils"
)

const (
	defaultLookupCacheSize = 1024
	defaultLookupCacheTTL  = time.Hour
)

// TrialCaseLookup asks the originating court source for trial-level cases of a party
type TrialCaseLookup interface {
	FindTrialCases(ctx context.Context, partyName string) ([]models.CaseRecord, error)
}

// CrossReferenceResolver links appellate cases to the trial-level case of the same party
type CrossReferenceResolver struct {
	lookup  TrialCaseLookup
	cache   *expirable.LRU[string, []models.CaseRecord]
	retry   RetryPolicy
	limiter *rate.Limiter
}

// CrossReferenceResolverOption is a functional option for CrossReferenceResolver
type CrossReferenceResolverOption func(*CrossReferenceResolver)

// ResolverWithLookup sets the remote trial case source queried when the store has no candidate.
// Answers are cached per normalized party name for ttl.
func ResolverWithLookup(lookup TrialCaseLookup, cacheSize int, ttl time.Duration) CrossReferenceResolverOption {
	return func(r *CrossReferenceResolver) {
		if cacheSize <= 0 {
			cacheSize = defaultLookupCacheSize
		}
		if ttl <= 0 {
			ttl = defaultLookupCacheTTL
		}
		r.lookup = lookup
		r.cache = expirable.NewLRU[string, []models.CaseRecord](cacheSize, nil, ttl)
	}
}

// ResolverWithRetryPolicy sets the retry policy applied to remote lookups
func ResolverWithRetryPolicy(policy RetryPolicy) CrossReferenceResolverOption {
	return func(r *CrossReferenceResolver) {
		r.retry = policy
	}
}

// ResolverWithLimiter sets the limiter shared with other upstream callers
func ResolverWithLimiter(limiter *rate.Limiter) CrossReferenceResolverOption {
	return func(r *CrossReferenceResolver) {
		r.limiter = limiter
	}
}

// NewCrossReferenceResolver creates a new cross reference resolver
func NewCrossReferenceResolver(opts ...CrossReferenceResolverOption) *CrossReferenceResolver {
	r := &CrossReferenceResolver{retry: DefaultRetryPolicy()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ResolveResult counts the references attached by a resolve pass
type ResolveResult struct {
	Linked         int
	NoneFound      int
	Unresolved     int
	NotApplicable  int
	LookupFailures int
}

// Resolve attaches a CrossReference to every case in store. Appellate cases
// are matched against trial-level cases sharing a party, first in the store
// and then through the remote lookup. Ties on shared attorney bar numbers
// leave the reference unresolved.
func (r *CrossReferenceResolver) Resolve(ctx context.Context, store *repository.CaseStore) (*ResolveResult, error) {
	logger := utils.LoggerFromContext(ctx)
	records := store.Snapshot()

	trialByParty := make(map[string][]models.CaseRecord)
	for _, rec := range records {
		if rec.IsAppellate() {
			continue
		}
		for _, key := range partyKeys(rec.Parties) {
			trialByParty[key] = append(trialByParty[key], rec)
		}
	}

	result := &ResolveResult{}
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return result, errors.Wrap(err, "cross reference resolution interrupted")
		}

		var xref models.CrossReference
		if !rec.IsAppellate() {
			xref = models.CrossReference{
				AppellateCaseID: rec.CaseID,
				Status:          models.CrossReferenceNotApplicable,
			}
		} else {
			keys := partyKeys(rec.Parties)
			candidates := localCandidates(trialByParty, keys)
			lookupFailed := false
			if len(candidates) == 0 && r.lookup != nil {
				var err error
				candidates, err = r.remoteCandidates(ctx, keys)
				if err != nil {
					if ctx.Err() != nil {
						return result, errors.Wrap(ctx.Err(), "cross reference resolution interrupted")
					}
					logger.WarnContext(ctx, "trial case lookup failed", "case_id", rec.CaseID, "error", err)
					result.LookupFailures++
					lookupFailed = true
				}
			}
			xref = pickTrialCase(rec, candidates)
			if lookupFailed && xref.Status == models.CrossReferenceNoneFound {
				// Unknown is not the same as absent
				xref.Status = models.CrossReferenceUnresolved
			}
		}

		err := store.Update(rec.CaseID, func(stored *models.CaseRecord) error {
			xref.MandateIssued = stored.MandateIssued
			stored.CrossReference = &xref
			return nil
		})
		if err != nil {
			return result, err
		}

		switch xref.Status {
		case models.CrossReferenceLinked:
			result.Linked++
		case models.CrossReferenceNoneFound:
			result.NoneFound++
		case models.CrossReferenceUnresolved:
			result.Unresolved++
			logger.InfoContext(ctx, "cross reference unresolved",
				"case_id", rec.CaseID, "candidates", xref.Candidates, "reason", models.ErrCrossReferenceAmbiguous.Error())
		default:
			result.NotApplicable++
		}
	}
	return result, nil
}

func (r *CrossReferenceResolver) remoteCandidates(ctx context.Context, keys []string) ([]models.CaseRecord, error) {
	byID := make(map[string]models.CaseRecord)
	for _, key := range keys {
		found, ok := r.cache.Get(key)
		if !ok {
			_, err := r.retry.Do(ctx, func(ctx context.Context) error {
				if err := waitLimiter(ctx, r.limiter); err != nil {
					return err
				}
				var err error
				found, err = r.lookup.FindTrialCases(ctx, key)
				return err
			}, nil)
			if err != nil {
				return nil, errors.Wrapf(err, "failed to look up trial cases for %q", key)
			}
			r.cache.Add(key, found)
		}
		for _, c := range found {
			if c.CaseID != "" && !c.IsAppellate() {
				byID[c.CaseID] = c
			}
		}
	}
	return sortedCandidates(byID), nil
}

func localCandidates(trialByParty map[string][]models.CaseRecord, keys []string) []models.CaseRecord {
	byID := make(map[string]models.CaseRecord)
	for _, key := range keys {
		for _, c := range trialByParty[key] {
			byID[c.CaseID] = c
		}
	}
	return sortedCandidates(byID)
}

func sortedCandidates(byID map[string]models.CaseRecord) []models.CaseRecord {
	out := make([]models.CaseRecord, 0, len(byID))
	for _, c := range byID {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CaseID < out[j].CaseID })
	return out
}

// pickTrialCase chooses among trial-level candidates. With more than one, the
// candidate sharing the most attorney bar numbers with the appellate case
// wins; a tie at the top leaves the reference unresolved.
func pickTrialCase(appellate models.CaseRecord, candidates []models.CaseRecord) models.CrossReference {
	xref := models.CrossReference{AppellateCaseID: appellate.CaseID}

	switch len(candidates) {
	case 0:
		xref.Status = models.CrossReferenceNoneFound
		return xref
	case 1:
		return linkTo(xref, candidates[0])
	}

	bars := set.From(appellate.AttorneyBarNumbers())
	best, bestScore, tied := -1, -1, false
	for i, c := range candidates {
		score := bars.Intersect(set.From(c.AttorneyBarNumbers())).Size()
		switch {
		case score > bestScore:
			best, bestScore, tied = i, score, false
		case score == bestScore:
			tied = true
		}
	}
	if !tied {
		return linkTo(xref, candidates[best])
	}

	xref.Status = models.CrossReferenceUnresolved
	for _, c := range candidates {
		xref.Candidates = append(xref.Candidates, c.CaseID)
	}
	return xref
}

func linkTo(xref models.CrossReference, trial models.CaseRecord) models.CrossReference {
	xref.Status = models.CrossReferenceLinked
	xref.TrialCaseID = trial.CaseID
	xref.TrialCaseOpen = trial.Status == models.CaseStatusActive
	return xref
}

var partyRolePrefix = regexp.MustCompile(`(?i)^\s*(appellants?|appellees?|petitioners?|respondents?|relators?|defendants?)\s*[:\-]\s*`)

// NormalizePartyName reduces a party listing to a comparable identity: role
// prefix removed, lower case, punctuation and extra spaces collapsed.
func NormalizePartyName(name string) string {
	name = partyRolePrefix.ReplaceAllString(name, "")
	fields := strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return strings.Join(fields, " ")
}

// partyKeys returns the normalized non-state parties of a case
func partyKeys(parties []string) []string {
	keys := set.New[string](len(parties))
	for _, p := range parties {
		key := NormalizePartyName(p)
		if key == "" || isStateParty(key) {
			continue
		}
		keys.Insert(key)
	}
	out := keys.Slice()
	sort.Strings(out)
	return out
}

func isStateParty(key string) bool {
	switch key {
	case "state", "the state", "state of texas", "the state of texas":
		return true
	}
	return false
}
