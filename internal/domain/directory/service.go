package directory

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/organlink/organlink/internal/platform/auth"
	"github.com/organlink/organlink/internal/platform/events"
)

var (
	ErrValidation = errors.New("invalid user record")
	ErrForbidden  = errors.New("not allowed to change this field")
)

// maxListing caps the unpaginated GET /users debug listing.
const maxListing = 1000

type Service struct {
	repo   Repository
	events events.Publisher
	logger zerolog.Logger
}

func NewService(repo Repository, pub events.Publisher, logger zerolog.Logger) *Service {
	if pub == nil {
		pub = events.Nop
	}
	return &Service{repo: repo, events: pub, logger: logger}
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// normalize validates u in place: role, blood group, email and organ list.
func normalize(u *UserRecord) error {
	u.Role = strings.ToLower(strings.TrimSpace(u.Role))
	if !ValidRole(u.Role) {
		return invalid("role must be one of donor, recipient, doctor, admin")
	}
	bg, ok := NormalizeBloodGroup(u.BloodGroup)
	if !ok {
		return invalid("unknown blood group %q", u.BloodGroup)
	}
	u.BloodGroup = bg
	u.Email = strings.TrimSpace(u.Email)
	if u.Email != "" {
		if _, err := mail.ParseAddress(u.Email); err != nil {
			return invalid("malformed email %q", u.Email)
		}
	}
	u.FullName = strings.TrimSpace(u.FullName)
	u.Phone = strings.TrimSpace(u.Phone)
	u.OrganTypes = NormalizeOrgans(u.OrganTypes)
	for _, o := range u.OrganTypes {
		if utf8.RuneCountInString(o) > MaxOrganLength {
			return invalid("organ name longer than %d characters", MaxOrganLength)
		}
	}
	return nil
}

func (s *Service) publish(ctx context.Context, eventType string, u *UserRecord) {
	if err := s.events.Publish(ctx, events.New(eventType, "users", u.ID.String(), u)); err != nil {
		s.logger.Warn().Err(err).Str("event_type", eventType).Msg("publish user event")
	}
}

func (s *Service) Create(ctx context.Context, u *UserRecord) error {
	if err := normalize(u); err != nil {
		return err
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return err
	}
	s.publish(ctx, events.UserCreated, u)
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*UserRecord, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) GetByEmail(ctx context.Context, email string) (*UserRecord, error) {
	return s.repo.GetByEmail(ctx, email)
}

func (s *Service) List(ctx context.Context, f Filter, limit, offset int) ([]*UserRecord, int, error) {
	if f.BloodGroup != "" {
		bg, ok := NormalizeBloodGroup(f.BloodGroup)
		if !ok {
			return nil, 0, invalid("unknown blood group %q", f.BloodGroup)
		}
		f.BloodGroup = bg
	}
	if f.Role != "" && !ValidRole(f.Role) {
		return nil, 0, invalid("unknown role %q", f.Role)
	}
	return s.repo.List(ctx, f, limit, offset)
}

// All returns up to maxListing records with no filtering.
func (s *Service) All(ctx context.Context) ([]*UserRecord, error) {
	users, _, err := s.repo.List(ctx, Filter{}, maxListing, 0)
	return users, err
}

// QueryByRole is the directory read the match generator depends on.
func (s *Service) QueryByRole(ctx context.Context, role string) ([]*UserRecord, error) {
	return s.repo.QueryByRole(ctx, role)
}

// Patch is a partial update. Nil fields are left unchanged.
type Patch struct {
	FullName   *string    `json:"fullName"`
	Email      *string    `json:"email"`
	Phone      *string    `json:"phone"`
	BloodGroup *string    `json:"bloodGroup"`
	OrganType  *string    `json:"organType"`
	OrganTypes *[]string  `json:"organTypes"`
	HospitalID *uuid.UUID `json:"hospitalId"`
	Role       *string    `json:"role"`
	Verified   *bool      `json:"verified"`
}

// Update applies p to the record id. Role and verification changes need
// privileged (admin) callers; everyone else gets ErrForbidden for them.
func (s *Service) Update(ctx context.Context, id uuid.UUID, p Patch, privileged bool) (*UserRecord, error) {
	if !privileged && (p.Role != nil || p.Verified != nil) {
		return nil, ErrForbidden
	}

	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if p.FullName != nil {
		u.FullName = *p.FullName
	}
	if p.Email != nil && !strings.EqualFold(*p.Email, u.Email) {
		u.Email = *p.Email
		u.EmailVerified = false
	}
	if p.Phone != nil {
		u.Phone = *p.Phone
	}
	if p.BloodGroup != nil {
		u.BloodGroup = *p.BloodGroup
	}
	switch {
	case p.OrganTypes != nil:
		u.OrganTypes = *p.OrganTypes
		if p.OrganType != nil {
			u.OrganTypes = append([]string{*p.OrganType}, u.OrganTypes...)
		}
	case p.OrganType != nil:
		u.OrganTypes = []string{*p.OrganType}
	}
	if p.HospitalID != nil {
		hid := *p.HospitalID
		u.HospitalID = &hid
		if hid == uuid.Nil {
			u.HospitalID = nil
		}
	}
	if p.Role != nil {
		u.Role = *p.Role
	}
	if p.Verified != nil {
		u.Verified = *p.Verified
	}

	if err := normalize(u); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, u); err != nil {
		return nil, err
	}
	s.publish(ctx, events.UserUpdated, u)
	return u, nil
}

// RolesFor resolves the current role of a token subject. Records that are
// gone, and subjects that are not user ids, yield auth.ErrUnknownSubject.
func (s *Service) RolesFor(ctx context.Context, subject string) ([]string, error) {
	id, err := uuid.Parse(subject)
	if err != nil {
		return nil, auth.ErrUnknownSubject
	}
	u, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, auth.ErrUnknownSubject
	}
	if err != nil {
		return nil, err
	}
	return []string{u.Role}, nil
}

// SetVerified marks a record as verified (or not) by a doctor or admin.
func (s *Service) SetVerified(ctx context.Context, id uuid.UUID, verified bool) (*UserRecord, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	u.Verified = verified
	if err := s.repo.Update(ctx, u); err != nil {
		return nil, err
	}
	s.publish(ctx, events.UserVerified, u)
	return u, nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.events.Publish(ctx, events.New(events.UserDeleted, "users", id.String(), nil)); err != nil {
		s.logger.Warn().Err(err).Msg("publish user event")
	}
	return nil
}
