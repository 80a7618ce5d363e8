package identity

import (
	"sort"

	"github.com/cmlabs-hris/attendance-sync/internal/domain/identity"
	"github.com/cmlabs-hris/attendance-sync/internal/domain/provider"
	"github.com/cmlabs-hris/attendance-sync/internal/pkg/similarity"
)

const (
	nameWeight  = 0.6
	emailWeight = 0.4
)

// Score is the composite match score of a provider employee against a local
// identity, in [0, 1].
func Score(emp provider.Employee, li identity.LocalIdentity) float64 {
	score := nameWeight * similarity.NameSimilarity(emp.Name, li.Name)
	if similarity.SameEmail(emp.Email, li.Email) {
		score += emailWeight
	}
	return min(max(score, 0), 1)
}

// Resolve matches every employee against identities. It performs no I/O.
// active maps provider codes to their current active mapping.
func Resolve(employees []provider.Employee, identities []identity.LocalIdentity, active map[string]identity.Mapping, cfg identity.MatchConfig) identity.Resolution {
	var res identity.Resolution
	seen := make(map[string]bool, len(employees))

	for _, emp := range employees {
		if emp.Code == "" {
			res.Malformed = append(res.Malformed, &provider.MalformedRecordError{
				Kind: "roster", Reason: provider.ErrMissingCode,
			})
			continue
		}
		if seen[emp.Code] {
			res.Malformed = append(res.Malformed, &provider.MalformedRecordError{
				Kind: "roster", Code: emp.Code, Reason: provider.ErrDuplicateCode,
			})
			continue
		}
		seen[emp.Code] = true

		result := identity.MatchResult{
			ProviderCode: emp.Code,
			ProviderName: emp.Name,
			Candidates:   rankCandidates(emp, identities, cfg),
		}

		current, mapped := active[emp.Code]
		top, ok := result.Top()
		switch {
		case !ok:
			result.Outcome = identity.OutcomeUnmatched
		case mapped && current.LocalIdentityID == top.Identity.ID:
			result.Outcome = identity.OutcomeAlreadyMapped
		case !mapped && top.Score >= cfg.AutoMapThreshold:
			result.Outcome = identity.OutcomeAutoMapped
		default:
			result.Outcome = identity.OutcomeNeedsReview
		}

		res.Results = append(res.Results, result)
	}

	return res
}

func rankCandidates(emp provider.Employee, identities []identity.LocalIdentity, cfg identity.MatchConfig) []identity.Candidate {
	var candidates []identity.Candidate
	for _, li := range identities {
		if score := Score(emp, li); score >= cfg.MinMatchScore {
			candidates = append(candidates, identity.Candidate{Identity: li, Score: score})
		}
	}

	// Stable so equal scores keep identity insertion order.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	if cfg.MaxCandidates > 0 && len(candidates) > cfg.MaxCandidates {
		candidates = candidates[:cfg.MaxCandidates]
	}
	return candidates
}
