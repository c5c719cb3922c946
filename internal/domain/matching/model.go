package matching

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending  Status = "Pending"
	StatusApproved Status = "Approved"
	StatusRejected Status = "Rejected"
)

// MatchRecord is a persisted proposal. BloodGroup and OrganType are copied
// from the recipient when the record is first written.
type MatchRecord struct {
	ID            uuid.UUID  `json:"id"`
	DonorID       uuid.UUID  `json:"donorId"`
	RecipientID   uuid.UUID  `json:"recipientId"`
	DonorName     string     `json:"donorName,omitempty"`
	RecipientName string     `json:"recipientName,omitempty"`
	BloodGroup    string     `json:"bloodGroup"`
	OrganType     string     `json:"organType"`
	Score         int        `json:"score"`
	Status        Status     `json:"status"`
	Tracking      Tracking   `json:"tracking"`
	DecidedBy     string     `json:"decidedBy,omitempty"`
	DecidedAt     *time.Time `json:"decidedAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// Involves reports whether userID is the donor or the recipient.
func (m *MatchRecord) Involves(userID uuid.UUID) bool {
	return m.DonorID == userID || m.RecipientID == userID
}

// Tracking holds free-form transplant progress. It is not validated against
// Status.
type Tracking struct {
	TrackingStatus string          `json:"trackingStatus,omitempty" bson:"tracking_status,omitempty"`
	Hospital       string          `json:"hospital,omitempty" bson:"hospital,omitempty"`
	ScheduledDate  string          `json:"scheduledDate,omitempty" bson:"scheduled_date,omitempty"`
	Surgeon        string          `json:"surgeon,omitempty" bson:"surgeon,omitempty"`
	Notes          string          `json:"notes,omitempty" bson:"notes,omitempty"`
	Timeline       []TimelineEntry `json:"timeline,omitempty" bson:"timeline,omitempty"`
}

type TimelineEntry struct {
	At     time.Time `json:"at" bson:"at"`
	Status string    `json:"status,omitempty" bson:"status,omitempty"`
	Note   string    `json:"note,omitempty" bson:"note,omitempty"`
	By     string    `json:"by,omitempty" bson:"by,omitempty"`
}

// TrackingPatch updates the tracking fields that are non-nil.
type TrackingPatch struct {
	TrackingStatus *string `json:"trackingStatus"`
	Hospital       *string `json:"hospital"`
	ScheduledDate  *string `json:"scheduledDate"`
	Surgeon        *string `json:"surgeon"`
	Notes          *string `json:"notes"`
	// Note is recorded on the timeline entry only.
	Note string `json:"note"`
}

func (p TrackingPatch) apply(t Tracking) Tracking {
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	set(&t.TrackingStatus, p.TrackingStatus)
	set(&t.Hospital, p.Hospital)
	set(&t.ScheduledDate, p.ScheduledDate)
	set(&t.Surgeon, p.Surgeon)
	set(&t.Notes, p.Notes)
	t.Timeline = nil
	return t
}

func (p TrackingPatch) empty() bool {
	return p.TrackingStatus == nil && p.Hospital == nil && p.ScheduledDate == nil &&
		p.Surgeon == nil && p.Notes == nil && p.Note == ""
}

// Filter narrows List. Participant matches either side of the pair.
type Filter struct {
	Status      Status
	OrganType   string
	BloodGroup  string
	DonorID     *uuid.UUID
	RecipientID *uuid.UUID
	Participant *uuid.UUID
}
