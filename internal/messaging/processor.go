package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dpfarias/leadline-backend/pkg/db/models"
	"github.com/dpfarias/leadline-backend/pkg/enums"
	"github.com/dpfarias/leadline-backend/pkg/logger"
	"github.com/dpfarias/leadline-backend/pkg/metrics"
	"github.com/dpfarias/leadline-backend/pkg/whatsapp"
)

// TransactionReader is the slice of the payments store the processor needs to
// re-validate a due message against the lead's payment history.
type TransactionReader interface {
	HasAnyTransaction(ctx context.Context, leadID uuid.UUID) (bool, error)
	HasSucceededTransaction(ctx context.Context, leadID uuid.UUID) (bool, error)
}

// MeetingReader looks up the booked meeting for the confirmation template.
type MeetingReader interface {
	FindMeetingByLead(ctx context.Context, leadID uuid.UUID) (*models.Meeting, error)
}

// Summary reports one dispatch batch. Processed counts every row examined;
// the outcome counters partition it.
type Summary struct {
	Processed int `json:"processed"`
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
}

// Processor drains due messages: re-validates each against current state,
// renders, delivers, and records the terminal outcome. One bad message never
// aborts the batch.
type Processor struct {
	repo         Repository
	transactions TransactionReader
	meetings     MeetingReader
	sender       whatsapp.Sender
	templates    *Templates
	logger       *logger.Logger
	metrics      *metrics.QueueMetrics
}

// ProcessorParams wires the queue processor.
type ProcessorParams struct {
	Repo         Repository
	Transactions TransactionReader
	Meetings     MeetingReader
	Sender       whatsapp.Sender
	Templates    *Templates
	Logger       *logger.Logger
	Metrics      *metrics.QueueMetrics
}

// NewProcessor validates the wiring and returns the processor.
func NewProcessor(params ProcessorParams) (*Processor, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("messaging repository is required")
	}
	if params.Transactions == nil {
		return nil, fmt.Errorf("transaction reader is required")
	}
	if params.Meetings == nil {
		return nil, fmt.Errorf("meeting reader is required")
	}
	if params.Sender == nil {
		return nil, fmt.Errorf("whatsapp sender is required")
	}
	if params.Templates == nil {
		return nil, fmt.Errorf("templates are required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Processor{
		repo:         params.Repo,
		transactions: params.Transactions,
		meetings:     params.Meetings,
		sender:       params.Sender,
		templates:    params.Templates,
		logger:       params.Logger,
		metrics:      params.Metrics,
	}, nil
}

// ProcessDue dispatches up to limit due messages. Only the initial listing
// error is returned; per-message failures are recorded on the row and counted
// in the summary.
func (p *Processor) ProcessDue(ctx context.Context, now time.Time, limit int) (Summary, error) {
	var summary Summary

	due, err := p.repo.ListDue(ctx, now, limit)
	if err != nil {
		return summary, fmt.Errorf("listing due messages: %w", err)
	}

	for _, msg := range due {
		summary.Processed++
		msgCtx := p.logger.WithFields(ctx, map[string]any{
			"message_id":   msg.ID.String(),
			"lead_id":      msg.LeadID.String(),
			"message_type": msg.MessageType.String(),
		})
		outcome := p.processOne(msgCtx, msg, now)
		switch outcome {
		case enums.MessageStatusSent:
			summary.Sent++
		case enums.MessageStatusCancelled:
			summary.Cancelled++
		case enums.MessageStatusFailed:
			summary.Failed++
		default:
			// Lost the row to a concurrent sweep; nothing to count.
			summary.Processed--
		}
		if outcome != "" {
			p.metrics.IncOutcome(msg.MessageType.String(), outcome.String())
		}
	}

	return summary, nil
}

// processOne takes a single due row to a terminal state and returns the state
// reached, or "" when a concurrent sweep already claimed it.
func (p *Processor) processOne(ctx context.Context, msg models.QueuedMessage, now time.Time) enums.MessageStatus {
	cancelReason, err := p.shouldCancel(ctx, msg)
	if err != nil {
		p.logger.Error(ctx, "revalidating queued message", err)
		return p.markFailed(ctx, msg.ID, fmt.Sprintf("revalidation failed: %v", err), now)
	}
	if cancelReason != "" {
		claimed, err := p.repo.MarkCancelled(ctx, msg.ID, cancelReason, now)
		if err != nil {
			p.logger.Error(ctx, "cancelling queued message", err)
			return ""
		}
		if !claimed {
			return ""
		}
		p.logger.Info(p.logger.WithField(ctx, "reason", cancelReason), "cancelled queued message")
		return enums.MessageStatusCancelled
	}

	text, err := p.render(ctx, msg, now)
	if err != nil {
		p.logger.Error(ctx, "rendering queued message", err)
		return p.markFailed(ctx, msg.ID, fmt.Sprintf("render failed: %v", err), now)
	}

	result := p.sender.Send(ctx, msg.Phone, text)
	if !result.Delivered {
		p.logger.Warn(p.logger.WithField(ctx, "gateway_error", result.Error), "message delivery failed")
		return p.markFailed(ctx, msg.ID, result.Error, now)
	}

	claimed, err := p.repo.MarkSent(ctx, msg.ID, text, now)
	if err != nil {
		// Delivered but not recorded; the row stays pending and the unique
		// index keeps a second copy from being queued.
		p.logger.Error(ctx, "recording sent message", err)
		return ""
	}
	if !claimed {
		return ""
	}
	p.logger.Info(p.logger.WithField(ctx, "gateway_message_id", result.MessageID), "message sent")
	return enums.MessageStatusSent
}

// shouldCancel re-checks the business conditions at send time. The queue is a
// statement of intent; the world may have moved on since enqueue.
func (p *Processor) shouldCancel(ctx context.Context, msg models.QueuedMessage) (string, error) {
	switch msg.MessageType {
	case enums.MessageTypeWelcome:
		// Any payment attempt means the lead is already engaged.
		engaged, err := p.transactions.HasAnyTransaction(ctx, msg.LeadID)
		if err != nil {
			return "", fmt.Errorf("checking lead transactions: %w", err)
		}
		if engaged {
			return "lead started a payment", nil
		}
	case enums.MessageTypePaymentAbandoned:
		succeeded, err := p.transactions.HasSucceededTransaction(ctx, msg.LeadID)
		if err != nil {
			return "", fmt.Errorf("checking succeeded transactions: %w", err)
		}
		if succeeded {
			return "payment succeeded", nil
		}
	}

	// The unique index should make a sent sibling impossible, but a cheap
	// re-check here keeps a duplicate from ever reaching the gateway.
	alreadySent, err := p.repo.HasSent(ctx, msg.LeadID, msg.MessageType)
	if err != nil {
		return "", fmt.Errorf("checking sent siblings: %w", err)
	}
	if alreadySent {
		return "duplicate of an already sent message", nil
	}
	return "", nil
}

func (p *Processor) render(ctx context.Context, msg models.QueuedMessage, now time.Time) (string, error) {
	if msg.Lead == nil {
		return "", fmt.Errorf("lead %s not loaded", msg.LeadID)
	}
	switch msg.MessageType {
	case enums.MessageTypeWelcome:
		return p.templates.Welcome(*msg.Lead, now), nil
	case enums.MessageTypePaymentAbandoned:
		return p.templates.Abandoned(*msg.Lead, now), nil
	case enums.MessageTypePaymentConfirmed:
		meeting, err := p.meetings.FindMeetingByLead(ctx, msg.LeadID)
		if err != nil {
			return "", fmt.Errorf("loading meeting: %w", err)
		}
		if meeting == nil {
			return "", fmt.Errorf("no meeting booked for lead %s", msg.LeadID)
		}
		return p.templates.Confirmed(*msg.Lead, meeting.ScheduledAt, now)
	default:
		return "", fmt.Errorf("unknown message type %q", msg.MessageType)
	}
}

func (p *Processor) markFailed(ctx context.Context, id uuid.UUID, reason string, now time.Time) enums.MessageStatus {
	claimed, err := p.repo.MarkFailed(ctx, id, reason, now)
	if err != nil {
		p.logger.Error(ctx, "marking message failed", err)
		return ""
	}
	if !claimed {
		return ""
	}
	return enums.MessageStatusFailed
}
