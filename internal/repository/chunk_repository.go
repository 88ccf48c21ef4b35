package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"contracts-rag/internal/model"
)

// ErrIntegrity is returned when a chunk does not reference an existing document owned
// by the same user.
var ErrIntegrity = errors.New("chunk does not reference a document owned by the user")

// ErrInvalidMetadata is returned when chunk metadata holds a non-scalar value.
var ErrInvalidMetadata = errors.New("chunk metadata values must be scalars")

const insertBatchSize = 100

// ChunkRepository owns the chunks table. Every read is scoped by user id.
type ChunkRepository struct {
	db *gorm.DB
}

func NewChunkRepository(db *gorm.DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

// Insert persists a single chunk after checking that its document belongs to its user.
func (r *ChunkRepository) Insert(ctx context.Context, chunk *model.Chunk) error {
	if err := validateMetadata(chunk.Metadata); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockOwnedDocument(tx, chunk.DocumentID, chunk.UserID); err != nil {
			return err
		}
		if err := tx.Create(chunk).Error; err != nil {
			return fmt.Errorf("create chunk failed: %w", err)
		}
		return nil
	})
}

// InsertBatch replaces the chunk set of a document with chunks in one transaction.
// The document row is locked for the duration, so concurrent batches for the same
// document apply one after the other and readers never see a partial set.
func (r *ChunkRepository) InsertBatch(ctx context.Context, docID string, userID uint, chunks []model.Chunk) error {
	for i := range chunks {
		if chunks[i].DocumentID != docID || chunks[i].UserID != userID {
			return fmt.Errorf("%w: chunk %d belongs to document %q of user %d", ErrIntegrity, i, chunks[i].DocumentID, chunks[i].UserID)
		}
		if err := validateMetadata(chunks[i].Metadata); err != nil {
			return fmt.Errorf("chunk %d: %w", i, err)
		}
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockOwnedDocument(tx, docID, userID); err != nil {
			return err
		}
		if err := tx.Where("document_id = ? AND user_id = ?", docID, userID).Delete(&model.Chunk{}).Error; err != nil {
			return fmt.Errorf("clear previous chunks failed: %w", err)
		}
		if len(chunks) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(chunks, insertBatchSize).Error; err != nil {
			return fmt.Errorf("create chunks batch failed: %w", err)
		}
		return nil
	})
}

// ListByUser returns every chunk the user owns in insertion order.
func (r *ChunkRepository) ListByUser(ctx context.Context, userID uint) ([]model.Chunk, error) {
	var chunks []model.Chunk
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC, document_id ASC, seq ASC").
		Find(&chunks).Error; err != nil {
		return nil, fmt.Errorf("list chunks by user failed: %w", err)
	}
	return chunks, nil
}

// ListByDocument returns the document's chunks, or none when the document is not the
// user's.
func (r *ChunkRepository) ListByDocument(ctx context.Context, docID string, userID uint) ([]model.Chunk, error) {
	var chunks []model.Chunk
	if err := r.db.WithContext(ctx).
		Where("document_id = ? AND user_id = ?", docID, userID).
		Order("seq ASC").
		Find(&chunks).Error; err != nil {
		return nil, fmt.Errorf("list chunks by document failed: %w", err)
	}
	return chunks, nil
}

// DeleteByDocument removes the document's chunks. Unknown or foreign documents are a
// no-op.
func (r *ChunkRepository) DeleteByDocument(ctx context.Context, docID string, userID uint) error {
	if err := r.db.WithContext(ctx).
		Where("document_id = ? AND user_id = ?", docID, userID).
		Delete(&model.Chunk{}).Error; err != nil {
		return fmt.Errorf("delete chunks by document failed: %w", err)
	}
	return nil
}

func lockOwnedDocument(tx *gorm.DB, docID string, userID uint) error {
	var doc model.Document
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id").
		Where("id = ? AND user_id = ?", docID, userID).
		Take(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: document %q", ErrIntegrity, docID)
	}
	if err != nil {
		return fmt.Errorf("lock document failed: %w", err)
	}
	return nil
}

func validateMetadata(md map[string]interface{}) error {
	for k, v := range md {
		switch v.(type) {
		case nil, string, bool,
			int, int8, int16, int32, int64,
			uint, uint8, uint16, uint32, uint64,
			float32, float64, json.Number:
		default:
			return fmt.Errorf("%w: key %q has %T", ErrInvalidMetadata, k, v)
		}
	}
	return nil
}
