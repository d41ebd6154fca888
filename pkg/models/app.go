package models

import (
	"time"

	"github.com/google/uuid"
)

// App represents a registered application sending telemetry. Every event and
// issue belongs to an app; API keys are scoped to one.
type App struct {
	ID        uuid.UUID `db:"id"         json:"id"`
	Name      string    `db:"name"       json:"name"`
	Owners    []string  `db:"owners"     json:"owners"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// FirstOwner returns the app's first configured owner, or nil if none exists.
// New issues are auto-assigned to this owner.
func (a *App) FirstOwner() *string {
	if len(a.Owners) == 0 {
		return nil
	}
	owner := a.Owners[0]
	return &owner
}

// APIKey represents an authentication key for SDK and API access.
// Raw keys are shown once at creation; only the bcrypt hash is stored.
type APIKey struct {
	ID         uuid.UUID  `db:"id"           json:"id"`
	AppID      uuid.UUID  `db:"app_id"       json:"app_id"`
	Name       string     `db:"name"         json:"name"`
	KeyHash    string     `db:"key_hash"     json:"-"`
	KeyPrefix  string     `db:"key_prefix"   json:"key_prefix"`
	Scopes     []string   `db:"scopes"       json:"scopes"`
	LastUsedAt *time.Time `db:"last_used_at" json:"last_used_at,omitempty"`
	DeletedAt  *time.Time `db:"deleted_at"   json:"-"`
	CreatedAt  time.Time  `db:"created_at"   json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at"   json:"updated_at"`
}
