package identity

import (
	"time"

	"github.com/google/uuid"
)

// LocalIdentity is a user of the product's own directory. Read-only here.
type LocalIdentity struct {
	ID     uuid.UUID
	Name   string
	Email  string
	Active bool
}

type MappingStatus string

const (
	StatusAutoMapped  MappingStatus = "auto_mapped"
	StatusNeedsReview MappingStatus = "needs_review"
	StatusRejected    MappingStatus = "rejected"
	StatusConfirmed   MappingStatus = "confirmed"
)

// IsActive reports whether the status binds the provider code to an identity.
func (s MappingStatus) IsActive() bool {
	return s == StatusAutoMapped || s == StatusConfirmed
}

// IsValid reports whether s is a known status.
func (s MappingStatus) IsValid() bool {
	switch s {
	case StatusAutoMapped, StatusNeedsReview, StatusRejected, StatusConfirmed:
		return true
	}
	return false
}

// Mapping associates a provider employee code with a local identity.
// At most one mapping per ProviderCode may be active.
type Mapping struct {
	ProviderCode    string
	LocalIdentityID uuid.UUID
	MatchScore      float64
	Status          MappingStatus
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Candidate is one scored local identity for a provider employee.
type Candidate struct {
	Identity LocalIdentity
	Score    float64
}

type Outcome string

const (
	OutcomeAutoMapped    Outcome = "auto_mapped"
	OutcomeAlreadyMapped Outcome = "already_mapped"
	OutcomeNeedsReview   Outcome = "needs_review"
	OutcomeUnmatched     Outcome = "unmatched"
)

// MatchResult is the resolver's verdict for one provider employee.
// Candidates are ranked best first.
type MatchResult struct {
	ProviderCode string
	ProviderName string
	Outcome      Outcome
	Candidates   []Candidate
}

// Top returns the best candidate, if any.
func (r MatchResult) Top() (Candidate, bool) {
	if len(r.Candidates) == 0 {
		return Candidate{}, false
	}
	return r.Candidates[0], true
}

// Resolution is the outcome of resolving a whole roster.
type Resolution struct {
	Results   []MatchResult
	Malformed []error
}

// Count returns how many results carry the given outcome.
func (r Resolution) Count(outcome Outcome) int {
	n := 0
	for _, res := range r.Results {
		if res.Outcome == outcome {
			n++
		}
	}
	return n
}

// MatchConfig tunes candidate selection.
type MatchConfig struct {
	MinMatchScore    float64
	AutoMapThreshold float64
	MaxCandidates    int
}

// DefaultMatchConfig mirrors the production defaults.
func DefaultMatchConfig() MatchConfig {
	return MatchConfig{
		MinMatchScore:    0.5,
		AutoMapThreshold: 0.8,
		MaxCandidates:    5,
	}
}
