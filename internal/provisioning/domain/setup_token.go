package domain

import (
	"time"
)

// DefaultTokenTTL is the lifetime of a setup token
const DefaultTokenTTL = 24 * time.Hour

// SetupToken is a single-use invitation gating deferred provisioning
type SetupToken struct {
	ID                int64      `json:"id" db:"id"`
	Token             string     `json:"token" db:"token"`
	OrganisationID    int64      `json:"organisation_id" db:"organisation_id"`
	EmailDestinataire string     `json:"email_destinataire" db:"email_destinataire"`
	ExpiresAt         time.Time  `json:"expires_at" db:"expires_at"`
	Used              bool       `json:"used" db:"used"`
	UsedAt            *time.Time `json:"used_at,omitempty" db:"used_at"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
	GeneratedBy       *string    `json:"generated_by,omitempty" db:"generated_by"`
	Notes             *string    `json:"notes,omitempty" db:"notes"`
}

// IsExpired reports whether now is past expires_at
func (t *SetupToken) IsExpired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// Check returns the token error for t at now, or nil when t is usable.
// Expiry wins over use: a past expires_at always reports Expired.
func (t *SetupToken) Check(now time.Time) error {
	if t.IsExpired(now) {
		return ErrTokenExpired
	}
	if t.Used {
		return ErrTokenAlreadyUsed
	}
	return nil
}

// SetupTokenView is a token listed with its computed state
type SetupTokenView struct {
	SetupToken
	IsExpired bool `json:"is_expired"`
	IsUsed    bool `json:"is_used"`
}

// View computes the listing state at now
func (t SetupToken) View(now time.Time) SetupTokenView {
	return SetupTokenView{SetupToken: t, IsExpired: t.IsExpired(now), IsUsed: t.Used}
}

// IssuedToken is returned by issue and reissue
type IssuedToken struct {
	ID        int64     `json:"id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	SetupURL  string    `json:"setup_url,omitempty"`
}
