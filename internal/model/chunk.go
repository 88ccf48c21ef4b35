package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Chunk is one retrievable passage of a document. Embedding holds the vector in the
// textual form produced by vectorcodec; it may be empty or unparsable.
type Chunk struct {
	ID         string            `gorm:"primaryKey;size:36" json:"chunk_id"`
	DocumentID string            `gorm:"size:36;not null;index" json:"doc_id"`
	UserID     uint              `gorm:"not null;index" json:"user_id"`
	Seq        int               `gorm:"not null" json:"seq"`
	Text       string            `gorm:"type:text;not null" json:"text"`
	Embedding  string            `gorm:"type:text" json:"-"`
	Metadata   datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt  time.Time         `gorm:"index" json:"created_at"`
}

// BeforeCreate assigns the chunk id when the caller did not.
func (c *Chunk) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}
