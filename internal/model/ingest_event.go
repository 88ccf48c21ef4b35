package model

import "time"

type IngestEventKind string

const (
	EventDocumentIngested IngestEventKind = "document.ingested"
	EventDocumentDeleted  IngestEventKind = "document.deleted"
)

// IngestEvent is the audit record of a change to a user's chunk set.
type IngestEvent struct {
	ID         uint            `gorm:"primaryKey" json:"id"`
	DocumentID string          `gorm:"size:36;not null;index" json:"doc_id"`
	UserID     uint            `gorm:"not null;index" json:"user_id"`
	Kind       IngestEventKind `gorm:"size:32;not null" json:"kind"`
	ChunkCount int             `json:"chunk_count"`
	OccurredAt time.Time       `json:"occurred_at"`
	CreatedAt  time.Time       `json:"created_at"`
}
