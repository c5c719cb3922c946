package account

import (
	"time"

	"github.com/google/uuid"

	"github.com/organlink/organlink/internal/domain/directory"
)

// MinPasswordLength is the shortest password Signup accepts.
const MinPasswordLength = 8

// Credential is the login secret for one directory user.
type Credential struct {
	UserID       uuid.UUID  `json:"userId"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	CreatedAt    time.Time  `json:"createdAt"`
	LastLogin    *time.Time `json:"lastLogin,omitempty"`
}

type SignupRequest struct {
	Email      string   `json:"email"`
	Password   string   `json:"password"`
	FullName   string   `json:"fullName"`
	Role       string   `json:"role"`
	Phone      string   `json:"phone,omitempty"`
	BloodGroup string   `json:"bloodGroup,omitempty"`
	OrganType  string   `json:"organType,omitempty"`
	OrganTypes []string `json:"organTypes,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Session is what signup and login hand back to the client.
type Session struct {
	Token     string                `json:"token,omitempty"`
	TokenType string                `json:"tokenType,omitempty"`
	ExpiresAt *time.Time            `json:"expiresAt,omitempty"`
	Roles     []string              `json:"roles"`
	User      *directory.UserRecord `json:"user"`
}
