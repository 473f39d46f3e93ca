package models

import (
	"time"

	"github.com/google/uuid"
)

// Meeting is booked exactly once per paid transaction; the confirmation
// message reads its schedule.
type Meeting struct {
	ID            uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	TransactionID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex"`
	LeadID        uuid.UUID `gorm:"type:uuid;not null;index"`
	ScheduledAt   time.Time `gorm:"type:timestamptz;not null"`
	CreatedAt     time.Time `gorm:"type:timestamptz;default:now()"`
}
