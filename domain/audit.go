package domain

import "time"

// CleanupStatus is the lifecycle state of a cleanup audit record.
type CleanupStatus string

const (
	CleanupStatusPending   CleanupStatus = "pending"
	CleanupStatusCompleted CleanupStatus = "completed"
	CleanupStatusFailed    CleanupStatus = "failed"
)

// CleanupAudit is the compliance trail for one cleanup attempt. Created with
// status pending at the start of every attempt and moved exactly once to a
// terminal status. Never deleted. Only hashes of identifying data are stored.
type CleanupAudit struct {
	ID            string        `bson:"_id,omitempty"`
	EmailHash     string        `bson:"email_hash"`
	SourceHash    string        `bson:"source_hash"`
	CorrelationID string        `bson:"correlation_id"`
	Status        CleanupStatus `bson:"status"`
	ErrorCode     string        `bson:"error_code,omitempty"`
	CreatedAt     time.Time     `bson:"created_at"`
	UpdatedAt     time.Time     `bson:"updated_at"`
}
