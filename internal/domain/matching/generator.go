package matching

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/organlink/organlink/internal/domain/directory"
)

// Multiplicity decides how many proposals a recipient can receive per run.
type Multiplicity string

const (
	// AllPairs emits every compatible (donor, recipient, organ) combination.
	AllPairs Multiplicity = "all-pairs"
	// FirstMatch gives each recipient organ need the first compatible donor in
	// input order.
	FirstMatch Multiplicity = "first-match"
)

type Scoring string

const (
	// Heuristic: +50 blood group, +40 organ, +5 per side with contact details.
	Heuristic Scoring = "heuristic"
	// Random draws a uniform integer in [70, 100] per proposal.
	Random Scoring = "random"
)

type OrganRule string

const (
	// Exact requires case-insensitive equality of organ names.
	Exact OrganRule = "exact"
	// Overlap also accepts one organ name containing the other.
	Overlap OrganRule = "overlap"
)

const (
	scoreBlood   = 50
	scoreOrgan   = 40
	scoreContact = 5

	randomMin = 70
	randomMax = 100
)

// IntSource is satisfied by *rand.Rand from math/rand/v2.
type IntSource interface {
	IntN(n int) int
}

type Policy struct {
	Multiplicity Multiplicity
	Scoring      Scoring
	OrganRule    OrganRule
	// Rand feeds Random scoring; nil uses the global source.
	Rand IntSource
}

func DefaultPolicy() Policy {
	return Policy{Multiplicity: AllPairs, Scoring: Heuristic, OrganRule: Exact}
}

// ParsePolicy builds a Policy from configuration strings. Empty values take
// the defaults.
func ParsePolicy(multiplicity, scoring, organRule string) (Policy, error) {
	p := DefaultPolicy()
	switch Multiplicity(multiplicity) {
	case "":
	case AllPairs, FirstMatch:
		p.Multiplicity = Multiplicity(multiplicity)
	default:
		return p, fmt.Errorf("unknown match multiplicity %q", multiplicity)
	}
	switch Scoring(scoring) {
	case "":
	case Heuristic, Random:
		p.Scoring = Scoring(scoring)
	default:
		return p, fmt.Errorf("unknown match scoring %q", scoring)
	}
	switch OrganRule(organRule) {
	case "":
	case Exact, Overlap:
		p.OrganRule = OrganRule(organRule)
	default:
		return p, fmt.Errorf("unknown organ rule %q", organRule)
	}
	return p, nil
}

// MatchProposal is a compatible pairing that has not been persisted yet.
// BloodGroup and OrganType are taken from the recipient.
type MatchProposal struct {
	DonorID       uuid.UUID `json:"donorId"`
	RecipientID   uuid.UUID `json:"recipientId"`
	DonorName     string    `json:"donorName"`
	RecipientName string    `json:"recipientName"`
	BloodGroup    string    `json:"bloodGroup"`
	OrganType     string    `json:"organType"`
	Score         int       `json:"score"`
}

// Generate pairs donors with recipients under p. It never mutates its inputs
// and never pairs a record with itself. Records missing a role, blood group
// or organ are skipped. The result is never nil.
func Generate(donors, recipients []*directory.UserRecord, p Policy) []MatchProposal {
	out := []MatchProposal{}
	if len(donors) == 0 || len(recipients) == 0 {
		return out
	}

	for _, r := range recipients {
		if r == nil || !r.Matchable() {
			continue
		}
		for _, need := range r.OrganTypes {
			if strings.TrimSpace(need) == "" || utf8.RuneCountInString(need) > directory.MaxOrganLength {
				continue
			}
			for _, d := range donors {
				if d == nil || d.ID == r.ID || !d.Matchable() {
					continue
				}
				if !bloodCompatible(d.BloodGroup, r.BloodGroup) || !donorOffers(d, need, p.OrganRule) {
					continue
				}
				out = append(out, MatchProposal{
					DonorID:       d.ID,
					RecipientID:   r.ID,
					DonorName:     d.FullName,
					RecipientName: r.FullName,
					BloodGroup:    r.BloodGroup,
					OrganType:     need,
					Score:         score(d, r, p),
				})
				if p.Multiplicity == FirstMatch {
					break
				}
			}
		}
	}

	if p.Multiplicity != FirstMatch {
		sort.SliceStable(out, func(i, j int) bool {
			if out[i].Score != out[j].Score {
				return out[i].Score > out[j].Score
			}
			if c := strings.Compare(out[i].DonorID.String(), out[j].DonorID.String()); c != 0 {
				return c < 0
			}
			return out[i].RecipientID.String() < out[j].RecipientID.String()
		})
	}
	return out
}

// bloodCompatible is literal, case-insensitive equality of the two groups.
func bloodCompatible(donor, recipient string) bool {
	donor, recipient = strings.TrimSpace(donor), strings.TrimSpace(recipient)
	return donor != "" && strings.EqualFold(donor, recipient)
}

func donorOffers(d *directory.UserRecord, need string, rule OrganRule) bool {
	need = strings.ToLower(strings.TrimSpace(need))
	for _, o := range d.OrganTypes {
		o = strings.ToLower(strings.TrimSpace(o))
		if o == "" {
			continue
		}
		if o == need {
			return true
		}
		if rule == Overlap && (strings.Contains(o, need) || strings.Contains(need, o)) {
			return true
		}
	}
	return false
}

func score(d, r *directory.UserRecord, p Policy) int {
	if p.Scoring == Random {
		n := randomMax - randomMin + 1
		if p.Rand != nil {
			return randomMin + p.Rand.IntN(n)
		}
		return randomMin + rand.IntN(n)
	}
	s := scoreBlood + scoreOrgan
	if d.HasContact() {
		s += scoreContact
	}
	if r.HasContact() {
		s += scoreContact
	}
	return s
}

// OrganKey is the case-folded organ name used in the uniqueness key.
func OrganKey(organ string) string {
	return strings.ToLower(strings.TrimSpace(organ))
}
