package documents

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/organlink/organlink/internal/domain/directory"
	"github.com/organlink/organlink/internal/platform/blobstore"
	"github.com/organlink/organlink/internal/platform/events"
	"github.com/organlink/organlink/internal/platform/notification"
)

var ErrValidation = errors.New("invalid document")

// Owners looks up the directory record to notify after a review.
type Owners interface {
	Get(ctx context.Context, id uuid.UUID) (*directory.UserRecord, error)
}

type Service struct {
	repo   Repository
	blobs  blobstore.BlobStore
	owners Owners
	events events.Publisher
	notify *notification.Dispatcher
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(repo Repository, blobs blobstore.BlobStore, owners Owners, pub events.Publisher, notify *notification.Dispatcher, logger zerolog.Logger) *Service {
	if pub == nil {
		pub = events.Nop
	}
	return &Service{repo: repo, blobs: blobs, owners: owners, events: pub, notify: notify, logger: logger, now: time.Now}
}

// Upload stores content and records it as pending review for owner.
func (s *Service) Upload(ctx context.Context, owner uuid.UUID, kind, fileName, contentType string, content io.Reader) (*Document, error) {
	kind = strings.ToLower(strings.TrimSpace(kind))
	if kind == "" {
		kind = KindOther
	}
	if !ValidKind(kind) {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrValidation, kind)
	}
	fileName = filepath.Base(strings.TrimSpace(fileName))
	if fileName == "" || fileName == "." || fileName == string(filepath.Separator) {
		return nil, fmt.Errorf("%w: file name is required", ErrValidation)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	info, err := s.blobs.Put(ctx, content)
	if err != nil {
		if errors.Is(err, blobstore.ErrEmptyBlob) {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		return nil, err
	}

	d := &Document{
		OwnerID:     owner,
		Kind:        kind,
		FileName:    fileName,
		ContentType: contentType,
		Size:        info.Size,
		BlobID:      info.ID,
	}
	if err := s.repo.Create(ctx, d); err != nil {
		if derr := s.blobs.Delete(ctx, info.ID); derr != nil {
			s.logger.Warn().Err(derr).Str("blob_id", info.ID).Msg("orphaned blob after failed upload")
		}
		return nil, err
	}
	s.publish(ctx, events.DocumentUploaded, d)
	return d, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Document, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListMine(ctx context.Context, owner uuid.UUID, limit, offset int) ([]*Document, int, error) {
	return s.repo.ListByOwner(ctx, owner, limit, offset)
}

func (s *Service) ListByStatus(ctx context.Context, status string, limit, offset int) ([]*Document, int, error) {
	switch status {
	case "":
		status = StatusPending
	case StatusPending, StatusApproved, StatusRejected:
	default:
		return nil, 0, fmt.Errorf("%w: unknown status %q", ErrValidation, status)
	}
	return s.repo.ListByStatus(ctx, status, limit, offset)
}

// Open returns the document and a reader over its content. The caller
// closes the reader.
func (s *Service) Open(ctx context.Context, id uuid.UUID) (*Document, io.ReadCloser, error) {
	d, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.blobs.Open(ctx, d.BlobID)
	if errors.Is(err, blobstore.ErrBlobNotFound) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	return d, rc, nil
}

// Review approves or rejects a pending document and tells the owner.
func (s *Service) Review(ctx context.Context, id uuid.UUID, approve bool, reviewer *uuid.UUID, note string) (*Document, error) {
	status := StatusRejected
	if approve {
		status = StatusApproved
	}
	d, err := s.repo.Review(ctx, id, Review{
		Status:     status,
		ReviewerID: reviewer,
		Note:       strings.TrimSpace(note),
		At:         s.now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("document_id", d.ID.String()).Str("status", d.Status).Msg("document reviewed")
	s.publish(ctx, events.DocumentReviewed, d)
	s.notifyOwner(ctx, d)
	return d, nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	d, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.blobs.Delete(ctx, d.BlobID); err != nil && !errors.Is(err, blobstore.ErrBlobNotFound) {
		s.logger.Warn().Err(err).Str("blob_id", d.BlobID).Msg("delete blob")
	}
	return nil
}

func (s *Service) publish(ctx context.Context, eventType string, d *Document) {
	if err := s.events.Publish(ctx, events.New(eventType, "documents", d.ID.String(), d)); err != nil {
		s.logger.Warn().Err(err).Str("event_type", eventType).Msg("publish document event")
	}
}

func (s *Service) notifyOwner(ctx context.Context, d *Document) {
	if s.notify == nil || s.owners == nil {
		return
	}
	u, err := s.owners.Get(ctx, d.OwnerID)
	if err != nil {
		s.logger.Warn().Err(err).Str("owner_id", d.OwnerID.String()).Msg("document owner lookup")
		return
	}
	_, err = s.notify.Send(ctx, notification.TemplateDocumentReviewed, u.ID.String(), u.Email, map[string]string{
		"name":      u.FullName,
		"kind":      d.Kind,
		"file_name": d.FileName,
		"status":    d.Status,
		"note":      d.ReviewNote,
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("document_id", d.ID.String()).Msg("review notification failed")
	}
}
