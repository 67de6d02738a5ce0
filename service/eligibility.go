package service

import (
	"fmt"
	"strings"

	"coa-docket/models"
)

// Predicate names, in evaluation order
const (
	PredicateAppellateCase    = "appellate_case"
	PredicateNoConcurrentCase = "no_concurrent_open_trial_case"
	PredicateMandateNotIssued = "mandate_not_issued"
	PredicateIsBrief          = "is_brief"
)

// EligibilityInput is everything a predicate may look at
type EligibilityInput struct {
	Document       models.DocumentRecord
	Case           models.CaseRecord
	CrossReference *models.CrossReference
}

// EligibilityPredicate is one named condition a document must satisfy
type EligibilityPredicate struct {
	Name  string
	Check func(in EligibilityInput) (bool, string)
}

// EligibilityEvaluator applies its predicates in order and stops at the first failure.
// It has no side effects; equal inputs always give equal verdicts.
type EligibilityEvaluator struct {
	predicates []EligibilityPredicate
}

// NewEligibilityEvaluator returns the evaluator with the standard predicate order
func NewEligibilityEvaluator() EligibilityEvaluator {
	return EligibilityEvaluator{predicates: []EligibilityPredicate{
		{Name: PredicateAppellateCase, Check: checkAppellateCase},
		{Name: PredicateNoConcurrentCase, Check: checkNoConcurrentCase},
		{Name: PredicateMandateNotIssued, Check: checkMandateNotIssued},
		{Name: PredicateIsBrief, Check: checkIsBrief},
	}}
}

// Evaluate decides whether doc should be fetched
func (e EligibilityEvaluator) Evaluate(doc models.DocumentRecord, rec models.CaseRecord, xref *models.CrossReference) models.EligibilityVerdict {
	in := EligibilityInput{Document: doc, Case: rec, CrossReference: xref}
	verdict := models.EligibilityVerdict{
		Document: models.DocumentKey{CaseID: rec.CaseID, MediaID: doc.MediaID},
		Eligible: true,
		Reasons:  make([]string, 0, len(e.predicates)),
	}

	for _, p := range e.predicates {
		ok, detail := p.Check(in)
		if !ok {
			verdict.Eligible = false
			verdict.Reasons = append(verdict.Reasons, fmt.Sprintf("fail %s: %s", p.Name, detail))
			return verdict
		}
		verdict.Reasons = append(verdict.Reasons, fmt.Sprintf("pass %s: %s", p.Name, detail))
	}
	return verdict
}

func checkAppellateCase(in EligibilityInput) (bool, string) {
	if models.IsAppellateCaseID(in.Case.CaseID) {
		return true, fmt.Sprintf("%s is a court of appeals case", in.Case.CaseID)
	}
	return false, fmt.Sprintf("%s is a trial-level case", in.Case.CaseID)
}

func checkNoConcurrentCase(in EligibilityInput) (bool, string) {
	xref := in.CrossReference
	if xref == nil {
		return false, "cross reference not resolved"
	}
	switch xref.Status {
	case models.CrossReferenceUnresolved:
		return false, fmt.Sprintf("trial case ambiguous among %s", strings.Join(xref.Candidates, ", "))
	case models.CrossReferenceLinked:
		if xref.HasConcurrentOpenCase() {
			return false, fmt.Sprintf("trial case %s is still open", xref.TrialCaseID)
		}
		return true, fmt.Sprintf("trial case %s is closed", xref.TrialCaseID)
	default:
		return true, "no trial-level case found"
	}
}

func checkMandateNotIssued(in EligibilityInput) (bool, string) {
	issued := in.Case.MandateIssued
	if in.CrossReference != nil {
		issued = issued || in.CrossReference.MandateIssued
	}
	if issued {
		return false, "mandate issued"
	}
	return true, "mandate not issued"
}

func checkIsBrief(in EligibilityInput) (bool, string) {
	doc := in.Document
	docType := strings.ToLower(doc.DocType)
	eventType := strings.ToLower(doc.EventType)
	description := strings.ToLower(doc.Description)

	if strings.Contains(docType, "notice") || strings.Contains(eventType, "notice") || strings.Contains(description, "notice") {
		return false, "document is a notice"
	}
	if doc.SourceTable == models.SourceTableBriefs {
		return true, "listed in the briefs table"
	}
	if strings.Contains(docType, "brief") || strings.Contains(eventType, "brief") {
		return true, "document type is a brief"
	}
	return false, fmt.Sprintf("%s entry is not a brief", doc.SourceTable)
}
