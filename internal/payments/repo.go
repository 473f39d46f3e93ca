package payments

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dpfarias/leadline-backend/pkg/db/models"
	"github.com/dpfarias/leadline-backend/pkg/enums"
)

// Repository persists transactions and meetings. Status updates are
// conditional on the current state so webhooks and the expiry sweep can race
// without clobbering each other.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateTransaction(ctx context.Context, tx *models.Transaction) error
	FindTransactionByCorrelationID(ctx context.Context, correlationID string) (*models.Transaction, error)
	HasAnyTransaction(ctx context.Context, leadID uuid.UUID) (bool, error)
	HasSucceededTransaction(ctx context.Context, leadID uuid.UUID) (bool, error)
	UpdateTransactionStatus(ctx context.Context, id uuid.UUID, from []enums.TransactionStatus, to enums.TransactionStatus, now time.Time) (bool, error)
	ListExpirablePix(ctx context.Context, cutoff time.Time, limit int) ([]models.Transaction, error)
	CreateMeeting(ctx context.Context, meeting *models.Meeting) error
	FindMeetingByTransaction(ctx context.Context, transactionID uuid.UUID) (*models.Meeting, error)
	FindMeetingByLead(ctx context.Context, leadID uuid.UUID) (*models.Meeting, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a payments repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) CreateTransaction(ctx context.Context, tx *models.Transaction) error {
	return r.db.WithContext(ctx).Create(tx).Error
}

func (r *repositoryImpl) FindTransactionByCorrelationID(ctx context.Context, correlationID string) (*models.Transaction, error) {
	var tx models.Transaction
	err := r.db.WithContext(ctx).
		Preload("Lead").
		Where("correlation_id = ?", correlationID).
		First(&tx).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &tx, nil
}

func (r *repositoryImpl) HasAnyTransaction(ctx context.Context, leadID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("lead_id = ?", leadID).
		Count(&count).Error
	return count > 0, err
}

func (r *repositoryImpl) HasSucceededTransaction(ctx context.Context, leadID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("lead_id = ? AND status = ?", leadID, enums.TransactionStatusSucceeded).
		Count(&count).Error
	return count > 0, err
}

// UpdateTransactionStatus moves a transaction to the target status only while
// it sits in one of the expected source states. Zero rows affected means a
// concurrent writer won.
func (r *repositoryImpl) UpdateTransactionStatus(ctx context.Context, id uuid.UUID, from []enums.TransactionStatus, to enums.TransactionStatus, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(map[string]any{
			"status":     to,
			"updated_at": now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ListExpirablePix returns PIX charges created before the cutoff that are
// still waiting on the payer, oldest first, leads preloaded for the nudge.
func (r *repositoryImpl) ListExpirablePix(ctx context.Context, cutoff time.Time, limit int) ([]models.Transaction, error) {
	var transactions []models.Transaction
	err := r.db.WithContext(ctx).
		Preload("Lead").
		Where("method = ? AND status IN ? AND created_at <= ?",
			enums.PaymentMethodPix, enums.PixExpirableStatuses, cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&transactions).Error
	return transactions, err
}

func (r *repositoryImpl) CreateMeeting(ctx context.Context, meeting *models.Meeting) error {
	return r.db.WithContext(ctx).Create(meeting).Error
}

func (r *repositoryImpl) FindMeetingByTransaction(ctx context.Context, transactionID uuid.UUID) (*models.Meeting, error) {
	var meeting models.Meeting
	err := r.db.WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		First(&meeting).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &meeting, nil
}

func (r *repositoryImpl) FindMeetingByLead(ctx context.Context, leadID uuid.UUID) (*models.Meeting, error) {
	var meeting models.Meeting
	err := r.db.WithContext(ctx).
		Where("lead_id = ?", leadID).
		Order("created_at DESC").
		First(&meeting).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &meeting, nil
}
