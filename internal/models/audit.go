package models

import "time"

// Audit components identify which subsystem emitted an event.
const (
	AuditComponentCheckin = "checkin"
	AuditComponentSession = "session"
	AuditComponentToken   = "token"
	AuditComponentRoster  = "roster"
	AuditComponentAuth    = "auth"
)

// Audit actions describe what happened.
const (
	AuditActionPresenceAdded   = "PRESENCE_ADDED"
	AuditActionPresenceRemoved = "PRESENCE_REMOVED"
	AuditActionSessionStarted  = "SESSION_STARTED"
	AuditActionSessionEnded    = "SESSION_ENDED"
	AuditActionTokenIssued     = "TOKEN_ISSUED"
	AuditActionTokenRevoked    = "TOKEN_REVOKED"
	AuditActionLogin           = "LOGIN"
	AuditActionLogout          = "LOGOUT"
)

// AuditEvent is a structured record of a state-changing action.
type AuditEvent struct {
	ID         string    `db:"id" json:"id"`
	Component  string    `db:"component" json:"component"`
	Action     string    `db:"action" json:"action"`
	ActorID    *string   `db:"actor_id" json:"actor_id,omitempty"`
	TargetType string    `db:"target_type" json:"target_type"`
	TargetID   string    `db:"target_id" json:"target_id"`
	Detail     []byte    `db:"detail" json:"detail,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
