package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/dpfarias/leadline-backend/pkg/enums"
)

// Transaction is one payment attempt owned by a lead. Status is written only
// by provider webhooks and the PIX expiry sweep.
type Transaction struct {
	ID            uuid.UUID               `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	LeadID        uuid.UUID               `gorm:"type:uuid;not null;index"`
	Lead          *Lead                   `gorm:"foreignKey:LeadID"`
	AmountCents   int64                   `gorm:"type:bigint;not null"`
	Method        enums.PaymentMethod     `gorm:"type:text;not null"`
	Status        enums.TransactionStatus `gorm:"type:text;not null"`
	CorrelationID string                  `gorm:"type:text;uniqueIndex"`
	MeetingAt     *time.Time              `gorm:"type:timestamptz"`
	CreatedAt     time.Time               `gorm:"type:timestamptz;default:now();index"`
	UpdatedAt     time.Time               `gorm:"type:timestamptz;default:now()"`
}
