package hospital

import (
	"time"

	"github.com/google/uuid"
)

// Hospital is a transplant centre that doctors and departments belong to.
type Hospital struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	City      string    `json:"city,omitempty"`
	State     string    `json:"state,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Email     string    `json:"email,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Department struct {
	ID           uuid.UUID  `json:"id"`
	HospitalID   uuid.UUID  `json:"hospitalId"`
	Name         string     `json:"name"`
	HeadDoctorID *uuid.UUID `json:"headDoctorId,omitempty"`
	Active       bool       `json:"active"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// Filter narrows hospital listings. Query matches name or city.
type Filter struct {
	Query      string
	City       string
	ActiveOnly bool
}
