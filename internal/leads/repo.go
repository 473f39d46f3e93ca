package leads

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dpfarias/leadline-backend/pkg/db/models"
	"github.com/dpfarias/leadline-backend/pkg/enums"
)

// Repository persists leads.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, lead *models.Lead) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Lead, error)
	FindByPhone(ctx context.Context, phone string) (*models.Lead, error)
	FindByReferralCode(ctx context.Context, code string) (*models.Lead, error)
	UpdateStage(ctx context.Context, id uuid.UUID, stage enums.FunnelStage, now time.Time) error
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a lead repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) Create(ctx context.Context, lead *models.Lead) error {
	return r.db.WithContext(ctx).Create(lead).Error
}

func (r *repositoryImpl) FindByID(ctx context.Context, id uuid.UUID) (*models.Lead, error) {
	var lead models.Lead
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&lead).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &lead, nil
}

func (r *repositoryImpl) FindByPhone(ctx context.Context, phone string) (*models.Lead, error) {
	var lead models.Lead
	err := r.db.WithContext(ctx).Where("phone = ?", phone).First(&lead).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &lead, nil
}

func (r *repositoryImpl) FindByReferralCode(ctx context.Context, code string) (*models.Lead, error) {
	var lead models.Lead
	err := r.db.WithContext(ctx).Where("referral_code = ?", code).First(&lead).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &lead, nil
}

func (r *repositoryImpl) UpdateStage(ctx context.Context, id uuid.UUID, stage enums.FunnelStage, now time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Lead{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"stage":      stage,
			"updated_at": now,
		}).Error
}
