package matching

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/organlink/organlink/internal/domain/directory"
	"github.com/organlink/organlink/internal/platform/events"
	"github.com/organlink/organlink/internal/platform/notification"
)

var ErrValidation = errors.New("invalid match request")

// Directory is the part of the user directory the generator reads.
type Directory interface {
	QueryByRole(ctx context.Context, role string) ([]*directory.UserRecord, error)
	Get(ctx context.Context, id uuid.UUID) (*directory.UserRecord, error)
}

type Service struct {
	store  Store
	dir    Directory
	policy Policy
	events events.Publisher
	notify *notification.Dispatcher
	logger zerolog.Logger
}

// NewService wires the generator to its stores. pub and notify may be nil.
func NewService(store Store, dir Directory, policy Policy, pub events.Publisher, notify *notification.Dispatcher, logger zerolog.Logger) *Service {
	if pub == nil {
		pub = events.Nop
	}
	return &Service{store: store, dir: dir, policy: policy, events: pub, notify: notify, logger: logger}
}

func (s *Service) Policy() Policy { return s.policy }

// RunResult summarises one generate-and-persist pass.
type RunResult struct {
	Trigger    string         `json:"trigger"`
	Proposals  int            `json:"proposals"`
	Created    int            `json:"created"`
	Updated    int            `json:"updated"`
	Matches    []*MatchRecord `json:"matches"`
	DurationMs int64          `json:"durationMs"`
}

// Run loads every donor and recipient, generates proposals and upserts them
// as one batch. trigger names the caller in logs.
func (s *Service) Run(ctx context.Context, trigger string) (*RunResult, error) {
	recipients, err := s.dir.QueryByRole(ctx, directory.RoleRecipient)
	if err != nil {
		return nil, fmt.Errorf("load recipients: %w", err)
	}
	return s.run(ctx, trigger, recipients)
}

// RunForRecipient generates proposals for a single recipient.
func (s *Service) RunForRecipient(ctx context.Context, trigger string, recipientID uuid.UUID) (*RunResult, error) {
	r, err := s.dir.Get(ctx, recipientID)
	if err != nil {
		return nil, fmt.Errorf("load recipient: %w", err)
	}
	if r.Role != directory.RoleRecipient {
		return nil, fmt.Errorf("%w: user %s is not a recipient", ErrValidation, recipientID)
	}
	return s.run(ctx, trigger, []*directory.UserRecord{r})
}

func (s *Service) run(ctx context.Context, trigger string, recipients []*directory.UserRecord) (*RunResult, error) {
	start := time.Now()
	donors, err := s.dir.QueryByRole(ctx, directory.RoleDonor)
	if err != nil {
		return nil, fmt.Errorf("load donors: %w", err)
	}

	proposals := Generate(donors, recipients, s.policy)
	written, err := s.store.UpsertAll(ctx, proposals)
	if err != nil {
		s.logger.Error().Err(err).Str("trigger", trigger).Int("proposals", len(proposals)).Msg("match run failed")
		return nil, fmt.Errorf("persist matches: %w", err)
	}

	res := &RunResult{
		Trigger:   trigger,
		Proposals: len(proposals),
		Matches:   make([]*MatchRecord, 0, len(written)),
	}
	for _, w := range written {
		res.Matches = append(res.Matches, w.Record)
		eventType := events.MatchUpdated
		if w.Created {
			res.Created++
			eventType = events.MatchCreated
		} else {
			res.Updated++
		}
		s.publish(ctx, eventType, w.Record)
	}
	res.DurationMs = time.Since(start).Milliseconds()

	s.logger.Info().
		Str("trigger", trigger).
		Str("multiplicity", string(s.policy.Multiplicity)).
		Str("scoring", string(s.policy.Scoring)).
		Str("organ_rule", string(s.policy.OrganRule)).
		Int("donors", len(donors)).
		Int("recipients", len(recipients)).
		Int("proposals", res.Proposals).
		Int("created", res.Created).
		Int("updated", res.Updated).
		Int64("duration_ms", res.DurationMs).
		Msg("match run complete")
	return res, nil
}

func (s *Service) publish(ctx context.Context, eventType string, m *MatchRecord) {
	if err := s.events.Publish(ctx, events.New(eventType, "matches", m.ID.String(), m)); err != nil {
		s.logger.Warn().Err(err).Str("event_type", eventType).Msg("publish match event")
	}
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*MatchRecord, error) {
	return s.store.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, f Filter, limit, offset int) ([]*MatchRecord, int, error) {
	return s.store.List(ctx, f, limit, offset)
}

// ForUser lists the matches where userID is the donor or the recipient.
func (s *Service) ForUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*MatchRecord, int, error) {
	return s.store.List(ctx, Filter{Participant: &userID}, limit, offset)
}

func (s *Service) Approve(ctx context.Context, id uuid.UUID, by string) (*MatchRecord, error) {
	return s.decide(ctx, id, StatusApproved, by)
}

func (s *Service) Reject(ctx context.Context, id uuid.UUID, by string) (*MatchRecord, error) {
	return s.decide(ctx, id, StatusRejected, by)
}

func (s *Service) decide(ctx context.Context, id uuid.UUID, to Status, by string) (*MatchRecord, error) {
	m, err := s.store.UpdateStatus(ctx, id, to, by)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("match_id", id.String()).Str("status", string(to)).Str("decided_by", by).Msg("match decided")
	s.publish(ctx, events.MatchDecided, m)
	s.notifyParties(ctx, m)
	return m, nil
}

// notifyParties tells donor and recipient about a decision. Delivery failures
// are logged only.
func (s *Service) notifyParties(ctx context.Context, m *MatchRecord) {
	if s.notify == nil {
		return
	}
	template := notification.TemplateMatchApproved
	if m.Status == StatusRejected {
		template = notification.TemplateMatchRejected
	}
	for _, uid := range []uuid.UUID{m.DonorID, m.RecipientID} {
		u, err := s.dir.Get(ctx, uid)
		if err != nil {
			s.logger.Warn().Err(err).Str("user_id", uid.String()).Msg("load match party for notification")
			continue
		}
		_, err = s.notify.Send(ctx, template, uid.String(), u.Email, map[string]string{
			"name":           u.FullName,
			"donor_name":     m.DonorName,
			"recipient_name": m.RecipientName,
			"organ_type":     m.OrganType,
			"blood_group":    m.BloodGroup,
			"score":          strconv.Itoa(m.Score),
			"match_id":       m.ID.String(),
		})
		if err != nil {
			s.logger.Warn().Err(err).Str("user_id", uid.String()).Msg("send match notification")
		}
	}
}

// UpdateTracking applies patch to the tracking fields and appends a timeline
// entry recording who made the change.
func (s *Service) UpdateTracking(ctx context.Context, id uuid.UUID, patch TrackingPatch, by string) (*MatchRecord, error) {
	if patch.empty() {
		return nil, fmt.Errorf("%w: tracking update has no fields", ErrValidation)
	}
	current, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	t := patch.apply(current.Tracking)
	entry := TimelineEntry{
		At:     time.Now().UTC(),
		Status: t.TrackingStatus,
		Note:   patch.Note,
		By:     by,
	}
	m, err := s.store.UpdateTracking(ctx, id, t, entry)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.MatchTracking, m)
	return m, nil
}
