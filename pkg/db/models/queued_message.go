package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/dpfarias/leadline-backend/pkg/enums"
)

// QueuedMessage is one scheduled WhatsApp send. Rows are never deleted; they
// stay as an audit trail of what was (or was not) delivered and why.
//
// Phone is a snapshot taken at enqueue time, not a join against the lead.
type QueuedMessage struct {
	ID           uuid.UUID           `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	LeadID       uuid.UUID           `gorm:"type:uuid;not null;index:idx_queued_messages_lead_type"`
	Lead         *Lead               `gorm:"foreignKey:LeadID"`
	MessageType  enums.MessageType   `gorm:"type:text;not null;index:idx_queued_messages_lead_type"`
	Status       enums.MessageStatus `gorm:"type:text;not null;default:'pending'"`
	Phone        string              `gorm:"type:text;not null"`
	SendAfter    time.Time           `gorm:"type:timestamptz;not null;index"`
	RenderedText *string             `gorm:"type:text"`
	SentAt       *time.Time          `gorm:"type:timestamptz"`
	Error        *string             `gorm:"type:text"`
	CreatedAt    time.Time           `gorm:"type:timestamptz;default:now()"`
	UpdatedAt    time.Time           `gorm:"type:timestamptz;default:now()"`
}
