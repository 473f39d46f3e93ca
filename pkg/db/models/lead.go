package models

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dpfarias/leadline-backend/pkg/enums"
)

// Lead is a prospective customer captured by the landing funnel.
type Lead struct {
	ID           uuid.UUID         `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Name         string            `gorm:"type:text;not null"`
	Phone        string            `gorm:"type:text;not null"`
	ReferralCode *string           `gorm:"type:text;uniqueIndex"`
	ReferredBy   *string           `gorm:"type:text"`
	Stage        enums.FunnelStage `gorm:"type:text;not null;default:'new'"`
	CreatedAt    time.Time         `gorm:"type:timestamptz;default:now()"`
	UpdatedAt    time.Time         `gorm:"type:timestamptz;default:now()"`
}

// FirstName returns the first whitespace-delimited token of the lead's name,
// used by the message templates.
func (l Lead) FirstName() string {
	fields := strings.Fields(l.Name)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
