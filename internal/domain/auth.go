package domain

import "time"

// PasswordReset is a single-use grant to replace a user's secret.
type PasswordReset struct {
	ID        string
	UserID    string
	Token     string
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}

// Usable reports whether the reset can still be redeemed at now.
func (p *PasswordReset) Usable(now time.Time) bool {
	return p.UsedAt == nil && now.Before(p.ExpiresAt)
}

// Reconciliation tracks an identity account whose directory record may be
// missing after a partially failed registration.
type Reconciliation struct {
	ID         string
	ExternalID string
	Identifier string
	Stage      string
	Reason     string
	CreatedAt  time.Time
	ResolvedAt *time.Time
	Resolution string
}
