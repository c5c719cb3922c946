package account

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/organlink/organlink/internal/platform/events"
)

// CredentialSync keeps credentials in step with the directory. It sits on
// the change feed: an updated email moves the login with it and a deleted
// user loses their credential. Users without a credential (doctors, admins,
// seeded records) are ignored.
type CredentialSync struct {
	creds  CredentialRepository
	logger zerolog.Logger
}

func NewCredentialSync(creds CredentialRepository, logger zerolog.Logger) *CredentialSync {
	return &CredentialSync{creds: creds, logger: logger}
}

func (s *CredentialSync) Publish(ctx context.Context, event events.Event) error {
	if event.Resource != "users" {
		return nil
	}
	switch event.Type {
	case events.UserUpdated:
		return s.updated(ctx, event)
	case events.UserDeleted:
		id, err := uuid.Parse(event.ResourceID)
		if err != nil {
			return nil
		}
		return s.creds.Delete(ctx, id)
	}
	return nil
}

func (s *CredentialSync) updated(ctx context.Context, event events.Event) error {
	id, err := uuid.Parse(event.ResourceID)
	if err != nil {
		return nil
	}
	var u struct {
		Email string `json:"email"`
	}
	if err := json.Unmarshal(event.Data, &u); err != nil {
		return fmt.Errorf("decode user event: %w", err)
	}
	email := strings.TrimSpace(u.Email)
	if email == "" {
		s.logger.Warn().Str("user_id", id.String()).Msg("user email cleared, credential keeps its previous login")
		return nil
	}
	err = s.creds.UpdateEmail(ctx, id, email)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}
