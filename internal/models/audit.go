package models

import "time"

// Audit actions recorded for mutating endpoints.
const (
	AuditActionActivityCreate   = "ACTIVITY_CREATE"
	AuditActionActivityUpdate   = "ACTIVITY_UPDATE"
	AuditActionActivityStatus   = "ACTIVITY_STATUS"
	AuditActionActivityDelete   = "ACTIVITY_DELETE"
	AuditActionEnrollmentAccept = "ENROLLMENT_ACCEPT"
	AuditActionEnrollmentReject = "ENROLLMENT_REJECT"
	AuditActionEnrollmentCancel = "ENROLLMENT_CANCEL"
	AuditActionSessionChange    = "SESSION_CHANGE"
	AuditActionManualCheckIn    = "ATTENDANCE_MANUAL"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	ActorID    *string   `db:"actor_id" json:"actor_id,omitempty"`
	ActorRole  *string   `db:"actor_role" json:"actor_role,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	Metadata   []byte    `db:"metadata" json:"metadata,omitempty"`
	RequestID  string    `db:"request_id" json:"request_id"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
