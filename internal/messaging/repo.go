package messaging

import (
	"context"
	"errors"
	"time"

	"github.com/dpfarias/leadline-backend/pkg/db/models"
	"github.com/dpfarias/leadline-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository persists queued messages. Every terminal transition is a
// conditional update guarded by status = 'pending'; the rows-affected result
// is the serialization point between overlapping sweeps.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, msg *models.QueuedMessage) error
	FindActive(ctx context.Context, leadID uuid.UUID, messageType enums.MessageType) (*models.QueuedMessage, error)
	HasSent(ctx context.Context, leadID uuid.UUID, messageType enums.MessageType) (bool, error)
	CancelPending(ctx context.Context, leadID uuid.UUID, messageType enums.MessageType, reason string, now time.Time) (int64, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]models.QueuedMessage, error)
	MarkSent(ctx context.Context, id uuid.UUID, renderedText string, now time.Time) (bool, error)
	MarkCancelled(ctx context.Context, id uuid.UUID, reason string, now time.Time) (bool, error)
	MarkFailed(ctx context.Context, id uuid.UUID, reason string, now time.Time) (bool, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a queue repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) Create(ctx context.Context, msg *models.QueuedMessage) error {
	return r.db.WithContext(ctx).Create(msg).Error
}

// FindActive returns the single pending/sent row for (lead, type), or nil.
func (r *repositoryImpl) FindActive(ctx context.Context, leadID uuid.UUID, messageType enums.MessageType) (*models.QueuedMessage, error) {
	var msg models.QueuedMessage
	err := r.db.WithContext(ctx).
		Where("lead_id = ? AND message_type = ? AND status IN ?", leadID, messageType, enums.ActiveMessageStatuses).
		First(&msg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &msg, nil
}

func (r *repositoryImpl) HasSent(ctx context.Context, leadID uuid.UUID, messageType enums.MessageType) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.QueuedMessage{}).
		Where("lead_id = ? AND message_type = ? AND status = ?", leadID, messageType, enums.MessageStatusSent).
		Count(&count).Error
	return count > 0, err
}

// CancelPending bulk-cancels every pending row of the given type and reports
// how many were affected.
func (r *repositoryImpl) CancelPending(ctx context.Context, leadID uuid.UUID, messageType enums.MessageType, reason string, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.QueuedMessage{}).
		Where("lead_id = ? AND message_type = ? AND status = ?", leadID, messageType, enums.MessageStatusPending).
		Updates(map[string]any{
			"status":     enums.MessageStatusCancelled,
			"error":      reason,
			"updated_at": now,
		})
	return result.RowsAffected, result.Error
}

// ListDue returns pending rows whose send_after has passed, oldest first,
// with the owning lead preloaded for rendering.
func (r *repositoryImpl) ListDue(ctx context.Context, now time.Time, limit int) ([]models.QueuedMessage, error) {
	var messages []models.QueuedMessage
	err := r.db.WithContext(ctx).
		Preload("Lead").
		Where("status = ? AND send_after <= ?", enums.MessageStatusPending, now).
		Order("send_after ASC").
		Limit(limit).
		Find(&messages).Error
	return messages, err
}

func (r *repositoryImpl) MarkSent(ctx context.Context, id uuid.UUID, renderedText string, now time.Time) (bool, error) {
	return r.transition(ctx, id, map[string]any{
		"status":        enums.MessageStatusSent,
		"rendered_text": renderedText,
		"sent_at":       now,
		"updated_at":    now,
	})
}

func (r *repositoryImpl) MarkCancelled(ctx context.Context, id uuid.UUID, reason string, now time.Time) (bool, error) {
	return r.transition(ctx, id, map[string]any{
		"status":     enums.MessageStatusCancelled,
		"error":      reason,
		"updated_at": now,
	})
}

func (r *repositoryImpl) MarkFailed(ctx context.Context, id uuid.UUID, reason string, now time.Time) (bool, error) {
	return r.transition(ctx, id, map[string]any{
		"status":     enums.MessageStatusFailed,
		"error":      reason,
		"updated_at": now,
	})
}

// transition applies a terminal update only while the row is still pending.
// A zero rows-affected result means another sweep got there first.
func (r *repositoryImpl) transition(ctx context.Context, id uuid.UUID, updates map[string]any) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.QueuedMessage{}).
		Where("id = ? AND status = ?", id, enums.MessageStatusPending).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
