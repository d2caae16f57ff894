package events

import (
	"time"

	"github.com/saber-em-movimento/backend/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventUserRegistered       EventType = "user_registered"
	EventUserLoggedIn         EventType = "user_logged_in"
	EventRegistrationOrphaned EventType = "registration_orphaned"
	EventPasswordChanged      EventType = "password_changed"
)

// Event represents a domain event emitted by services. Payloads never carry
// secrets, hashes or tokens.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	UserID    string      `json:"user_id"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// UserRegisteredPayload payload.
type UserRegisteredPayload struct {
	Role       domain.Role `json:"role"`
	Identifier string      `json:"identifier"`
}

// UserLoggedInPayload payload.
type UserLoggedInPayload struct {
	Strategy string `json:"strategy"`
}

// RegistrationOrphanedPayload describes an identity account left without a
// directory record.
type RegistrationOrphanedPayload struct {
	ExternalID string `json:"external_id"`
	Identifier string `json:"identifier"`
	Stage      string `json:"stage"`
	Reason     string `json:"reason"`
}

// PasswordChangedPayload payload.
type PasswordChangedPayload struct {
	ViaReset bool `json:"via_reset"`
}
