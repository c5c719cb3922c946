package documents

import (
	"time"

	"github.com/google/uuid"
)

// Kinds of document a user can upload.
const (
	KindMedicalReport = "medical-report"
	KindIDProof       = "id-proof"
	KindConsentForm   = "consent-form"
	KindBloodTest     = "blood-test"
	KindOther         = "other"
)

var validKinds = map[string]bool{
	KindMedicalReport: true,
	KindIDProof:       true,
	KindConsentForm:   true,
	KindBloodTest:     true,
	KindOther:         true,
}

func ValidKind(k string) bool { return validKinds[k] }

// Review states. A document leaves StatusPending exactly once.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

type Document struct {
	ID          uuid.UUID  `json:"id"`
	OwnerID     uuid.UUID  `json:"ownerId"`
	Kind        string     `json:"kind"`
	FileName    string     `json:"fileName"`
	ContentType string     `json:"contentType"`
	Size        int64      `json:"size"`
	BlobID      string     `json:"-"`
	Status      string     `json:"status"`
	ReviewerID  *uuid.UUID `json:"reviewerId,omitempty"`
	ReviewNote  string     `json:"reviewNote,omitempty"`
	UploadedAt  time.Time  `json:"uploadedAt"`
	ReviewedAt  *time.Time `json:"reviewedAt,omitempty"`
}

// Review is the outcome a doctor records against a pending document.
type Review struct {
	Status     string
	ReviewerID *uuid.UUID
	Note       string
	At         time.Time
}
