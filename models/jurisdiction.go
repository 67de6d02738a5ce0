package models

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// Jurisdiction is the court code used by the case search site
type Jurisdiction string

const (
	JurisdictionSupremeCourt         Jurisdiction = "cossup"
	JurisdictionCourtCriminalAppeals Jurisdiction = "coscca"
)

// DefaultJurisdictions lists the fourteen courts of appeals followed by the two high courts
var DefaultJurisdictions = []Jurisdiction{
	"coa01", "coa02", "coa03", "coa04", "coa05", "coa06", "coa07",
	"coa08", "coa09", "coa10", "coa11", "coa12", "coa13", "coa14",
	JurisdictionSupremeCourt,
	JurisdictionCourtCriminalAppeals,
}

// ParseJurisdiction validates a court code
func ParseJurisdiction(code string) (Jurisdiction, error) {
	j := Jurisdiction(strings.ToLower(strings.TrimSpace(code)))
	for _, known := range DefaultJurisdictions {
		if j == known {
			return j, nil
		}
	}
	return "", errors.Wrapf(ErrFatalConfiguration, "unknown jurisdiction %q", code)
}
