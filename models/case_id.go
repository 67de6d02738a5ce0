package models

import (
	"regexp"
	"strings"
)

// appellate case numbers start with a two-digit court/year prefix, e.g. 01-23-00123-CR
var appellateCaseIDPattern = regexp.MustCompile(`^\d{2}-`)

// IsAppellateCaseID reports whether the identifier is in court of appeals (COA) format.
// Every other format is treated as a trial-level (PD) case.
func IsAppellateCaseID(caseID string) bool {
	return appellateCaseIDPattern.MatchString(strings.TrimSpace(caseID))
}
