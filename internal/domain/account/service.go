package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/organlink/organlink/internal/domain/directory"
	"github.com/organlink/organlink/internal/platform/auth"
	"github.com/organlink/organlink/internal/platform/notification"
)

var (
	ErrValidation         = errors.New("invalid signup")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// Users is the slice of the directory service accounts depend on.
type Users interface {
	Create(ctx context.Context, u *directory.UserRecord) error
	Get(ctx context.Context, id uuid.UUID) (*directory.UserRecord, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type Service struct {
	creds  CredentialRepository
	users  Users
	issuer *auth.Issuer
	notify *notification.Dispatcher
	logger zerolog.Logger
	params auth.PasswordParams
	now    func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

func NewService(creds CredentialRepository, users Users, issuer *auth.Issuer, notify *notification.Dispatcher, logger zerolog.Logger) *Service {
	return &Service{
		creds:  creds,
		users:  users,
		issuer: issuer,
		notify: notify,
		logger: logger,
		params: auth.DefaultPasswordParams,
		now:    time.Now,
	}
}

// SetPasswordParams overrides the Argon2id cost used for new hashes.
func (s *Service) SetPasswordParams(p auth.PasswordParams) {
	s.params = p
}

// Signup registers a donor or recipient. The directory record is created
// first; if storing the credential fails it is removed again.
func (s *Service) Signup(ctx context.Context, req SignupRequest) (*Session, error) {
	req.Email = strings.TrimSpace(req.Email)
	req.Role = strings.ToLower(strings.TrimSpace(req.Role))
	if req.Email == "" {
		return nil, fmt.Errorf("%w: email is required", ErrValidation)
	}
	if len(req.Password) < MinPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrValidation, MinPasswordLength)
	}
	if req.Role != directory.RoleDonor && req.Role != directory.RoleRecipient {
		return nil, fmt.Errorf("%w: role must be donor or recipient", ErrValidation)
	}
	if _, err := s.creds.GetByEmail(ctx, req.Email); err == nil {
		return nil, ErrDuplicateEmail
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	hash, err := auth.HashPassword(req.Password, s.params)
	if err != nil {
		return nil, err
	}

	organs := req.OrganTypes
	if req.OrganType != "" {
		organs = append([]string{req.OrganType}, organs...)
	}
	u := &directory.UserRecord{
		Role:       req.Role,
		FullName:   req.FullName,
		Email:      req.Email,
		Phone:      req.Phone,
		BloodGroup: req.BloodGroup,
		OrganTypes: organs,
	}
	if err := s.users.Create(ctx, u); err != nil {
		switch {
		case errors.Is(err, directory.ErrDuplicateEmail):
			return nil, ErrDuplicateEmail
		case errors.Is(err, directory.ErrValidation):
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		return nil, err
	}

	cred := &Credential{UserID: u.ID, Email: u.Email, PasswordHash: hash}
	if err := s.creds.Create(ctx, cred); err != nil {
		if derr := s.users.Delete(ctx, u.ID); derr != nil {
			s.logger.Error().Err(derr).Str("user_id", u.ID.String()).Msg("remove user after failed signup")
		}
		return nil, err
	}

	s.logger.Info().Str("user_id", u.ID.String()).Str("role", u.Role).Msg("account created")
	s.welcome(ctx, u)
	return s.session(u)
}

func (s *Service) welcome(ctx context.Context, u *directory.UserRecord) {
	if s.notify == nil {
		return
	}
	_, err := s.notify.Send(ctx, notification.TemplateWelcome, u.ID.String(), u.Email, map[string]string{
		"name": u.FullName,
		"role": u.Role,
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("user_id", u.ID.String()).Msg("welcome notification failed")
	}
}

// Login checks the password and issues a token. Unknown emails and wrong
// passwords both yield ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*Session, error) {
	cred, err := s.creds.GetByEmail(ctx, strings.TrimSpace(req.Email))
	if errors.Is(err, ErrNotFound) {
		// keep the miss as slow as a hit
		auth.VerifyPassword(req.Password, s.dummy())
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	ok, err := auth.VerifyPassword(req.Password, cred.PasswordHash)
	if err != nil || !ok {
		return nil, ErrInvalidCredentials
	}

	u, err := s.users.Get(ctx, cred.UserID)
	if errors.Is(err, directory.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := s.creds.TouchLogin(ctx, cred.UserID, s.now().UTC()); err != nil {
		s.logger.Warn().Err(err).Str("user_id", u.ID.String()).Msg("record last login")
	}
	return s.session(u)
}

// Current returns the directory record behind an authenticated caller.
func (s *Service) Current(ctx context.Context) (*Session, error) {
	roles := auth.RolesFromContext(ctx)
	id, err := uuid.Parse(auth.UserIDFromContext(ctx))
	if err != nil {
		return nil, ErrNotFound
	}
	u, err := s.users.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if roles == nil {
		roles = []string{}
	}
	return &Session{Roles: roles, User: u}, nil
}

func (s *Service) session(u *directory.UserRecord) (*Session, error) {
	roles := []string{u.Role}
	token, exp, err := s.issuer.Issue(u.ID.String(), roles)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, TokenType: "Bearer", ExpiresAt: &exp, Roles: roles, User: u}, nil
}

func (s *Service) dummy() string {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = auth.HashPassword(uuid.NewString(), s.params)
	})
	return s.dummyHash
}
