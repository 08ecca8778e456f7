package models

import "time"

type AuditOutcome string

const (
	AuditGranted AuditOutcome = "granted"
	AuditDenied  AuditOutcome = "denied"
)

type AuditEvent struct {
	ID         string
	RequestID  string
	UserID     string
	TenantID   string
	Method     string
	Route      string
	Required   string
	Actual     string
	Outcome    AuditOutcome
	// Reason is the error code of a refused operation.
	Reason     string
	OccurredAt time.Time
}
