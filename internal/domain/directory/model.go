package directory

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Roles a directory user can hold.
const (
	RoleDonor     = "donor"
	RoleRecipient = "recipient"
	RoleDoctor    = "doctor"
	RoleAdmin     = "admin"
)

var validRoles = map[string]bool{
	RoleDonor: true, RoleRecipient: true, RoleDoctor: true, RoleAdmin: true,
}

// BloodGroups lists the eight ABO/Rh groups in canonical (upper-case) form.
var BloodGroups = []string{"A+", "A-", "B+", "B-", "AB+", "AB-", "O+", "O-"}

func ValidRole(role string) bool { return validRoles[role] }

// NormalizeBloodGroup upper-cases and trims g. It reports false for anything
// that is not one of BloodGroups; the empty string normalizes to "" and true.
func NormalizeBloodGroup(g string) (string, bool) {
	g = strings.ToUpper(strings.TrimSpace(g))
	if g == "" {
		return "", true
	}
	for _, bg := range BloodGroups {
		if g == bg {
			return g, true
		}
	}
	return g, false
}

// MaxOrganLength bounds an organ name in characters. Match records store the
// name in a VARCHAR(64) column.
const MaxOrganLength = 64

// NormalizeOrgans trims entries, drops empties and removes case-insensitive
// duplicates while keeping the first spelling seen.
func NormalizeOrgans(organs []string) []string {
	out := make([]string, 0, len(organs))
	seen := make(map[string]bool, len(organs))
	for _, o := range organs {
		o = strings.TrimSpace(o)
		key := strings.ToLower(o)
		if o == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, o)
	}
	return out
}

// UserRecord is a directory entry. Donors list the organs they pledge,
// recipients the organs they need.
type UserRecord struct {
	ID            uuid.UUID  `json:"id"`
	Role          string     `json:"role"`
	FullName      string     `json:"fullName,omitempty"`
	Email         string     `json:"email,omitempty"`
	Phone         string     `json:"phone,omitempty"`
	BloodGroup    string     `json:"bloodGroup,omitempty"`
	OrganTypes    []string   `json:"organTypes"`
	Verified      bool       `json:"verified"`
	EmailVerified bool       `json:"emailVerified"`
	HospitalID    *uuid.UUID `json:"hospitalId,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// UnmarshalJSON accepts both the singular "organType" and the set
// "organTypes"; the two are merged into OrganTypes.
func (u *UserRecord) UnmarshalJSON(data []byte) error {
	type plain UserRecord
	aux := struct {
		*plain
		OrganType string `json:"organType"`
	}{plain: (*plain)(u)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.OrganType != "" {
		u.OrganTypes = append([]string{aux.OrganType}, u.OrganTypes...)
	}
	u.OrganTypes = NormalizeOrgans(u.OrganTypes)
	return nil
}

// PrimaryOrgan returns the first organ listed, or "".
func (u *UserRecord) PrimaryOrgan() string {
	if len(u.OrganTypes) == 0 {
		return ""
	}
	return u.OrganTypes[0]
}

// Matchable reports whether the record carries everything the match
// generator compares: a role, a blood group and at least one organ.
func (u *UserRecord) Matchable() bool {
	if u.Role == "" || strings.TrimSpace(u.BloodGroup) == "" {
		return false
	}
	for _, o := range u.OrganTypes {
		if strings.TrimSpace(o) != "" {
			return true
		}
	}
	return false
}

// HasContact reports whether the record has an email or phone number.
func (u *UserRecord) HasContact() bool {
	return strings.TrimSpace(u.Email) != "" || strings.TrimSpace(u.Phone) != ""
}

// Filter selects directory records. Empty fields match everything.
type Filter struct {
	Role       string
	BloodGroup string
	OrganType  string
	Verified   *bool
	// Query is a case-insensitive substring of name or email.
	Query string
}
