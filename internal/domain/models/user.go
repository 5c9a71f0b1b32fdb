package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type User struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	Email          string         `gorm:"uniqueIndex;size:255;not null" json:"email"`
	PasswordHash   string         `gorm:"size:255" json:"-"`
	FirstName      string         `gorm:"size:100" json:"first_name"`
	LastName       string         `gorm:"size:100" json:"last_name"`
	Status         string         `gorm:"size:20;default:active;index" json:"status"`
	EmailVerified  bool           `gorm:"default:false" json:"email_verified"`
	IsSuperuser    bool           `gorm:"default:false" json:"is_superuser"`
	OrganizationID *uuid.UUID     `gorm:"type:uuid;index" json:"organization_id,omitempty"`
	Roles          StringArray    `gorm:"type:text[]" json:"roles,omitempty"`
	LastLoginAt    *time.Time     `json:"last_login_at,omitempty"`
	LoginCount     int            `gorm:"default:0" json:"login_count"`
	FailedLogins   int            `gorm:"default:0" json:"-"`
	LockedUntil    *time.Time     `json:"-"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`

	Sessions     []Session     `gorm:"foreignKey:UserID" json:"-"`
	APIKeys      []APIKey      `gorm:"foreignKey:UserID" json:"-"`
	Organization *Organization `gorm:"foreignKey:OrganizationID" json:"-"`
}

func (User) TableName() string {
	return "users"
}

// Organization scopes workflows, API keys, and users for multi-tenant
// authorization and org_id resolution (invariant 5).
type Organization struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Organization) TableName() string {
	return "organizations"
}

type Session struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	UserID      uuid.UUID  `gorm:"type:uuid;index;not null" json:"user_id"`
	TokenHash   string     `gorm:"size:255;uniqueIndex;not null" json:"-"`
	IPAddress   *string    `gorm:"size:45" json:"ip_address,omitempty"`
	UserAgent   *string    `gorm:"type:text" json:"user_agent,omitempty"`
	ExpiresAt   time.Time  `gorm:"not null" json:"expires_at"`
	LastUsedAt  time.Time  `gorm:"default:now()" json:"last_used_at"`
	CreatedAt   time.Time  `json:"created_at"`
	RevokedAt   *time.Time `json:"revoked_at,omitempty"`

	User User `gorm:"foreignKey:UserID" json:"-"`
}

func (Session) TableName() string {
	return "sessions"
}

// APIKey authenticates is_api_key callers (§4.1). Key validity is enforced
// at ingress (out of scope); the core only consults ID/OrganizationID.
type APIKey struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	UserID         *uuid.UUID `gorm:"type:uuid;index" json:"user_id,omitempty"`
	OrganizationID *uuid.UUID `gorm:"type:uuid;index" json:"organization_id,omitempty"`
	Name           string     `gorm:"size:100;not null" json:"name"`
	KeyPrefix      string     `gorm:"size:10;not null;index" json:"key_prefix"`
	KeyHash        string     `gorm:"size:255;not null" json:"-"`
	LastUsedAt     *time.Time `json:"last_used_at,omitempty"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	RevokedAt      *time.Time `json:"revoked_at,omitempty"`
}

func (APIKey) TableName() string {
	return "api_keys"
}

type PasswordResetToken struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	UserID    uuid.UUID  `gorm:"type:uuid;index;not null" json:"user_id"`
	Token     string     `gorm:"size:255;uniqueIndex;not null" json:"-"`
	ExpiresAt time.Time  `gorm:"not null" json:"expires_at"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`

	User User `gorm:"foreignKey:UserID" json:"-"`
}

func (PasswordResetToken) TableName() string {
	return "password_reset_tokens"
}

// CLISession identifies a standing CLI session as a trigger source and
// execution id scope (§1 coding-agent subsystem, §3 trigger_cli_session).
type CLISession struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	UserID         uuid.UUID  `gorm:"type:uuid;index;not null" json:"user_id"`
	OrganizationID *uuid.UUID `gorm:"type:uuid;index" json:"organization_id,omitempty"`
	LastActiveAt   time.Time  `gorm:"default:now()" json:"last_active_at"`
	CreatedAt      time.Time  `json:"created_at"`
	ClosedAt       *time.Time `json:"closed_at,omitempty"`

	User User `gorm:"foreignKey:UserID" json:"-"`
}

func (CLISession) TableName() string {
	return "cli_sessions"
}
