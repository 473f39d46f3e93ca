package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dpfarias/leadline-backend/pkg/config"
	"github.com/dpfarias/leadline-backend/pkg/db"
	"github.com/dpfarias/leadline-backend/pkg/db/models"
	"github.com/dpfarias/leadline-backend/pkg/enums"
	"github.com/dpfarias/leadline-backend/pkg/logger"
)

// SucceededChecker answers whether a lead already paid. Owned by the payments
// package; the writer only needs this one question.
type SucceededChecker interface {
	HasSucceededTransaction(ctx context.Context, leadID uuid.UUID) (bool, error)
}

// Service is the queue writer. Enqueue operations decide at write time whether
// a message belongs in the queue; the processor re-validates at send time.
type Service interface {
	EnqueueWelcome(ctx context.Context, lead models.Lead, now time.Time) (*models.QueuedMessage, error)
	EnqueueAbandoned(ctx context.Context, lead models.Lead, now time.Time) (*models.QueuedMessage, error)
	EnqueueConfirmed(ctx context.Context, lead models.Lead, now time.Time) (*models.QueuedMessage, error)
	Cancel(ctx context.Context, leadID uuid.UUID, messageType enums.MessageType, reason string, now time.Time) (int64, error)
}

// ServiceParams wires the queue writer.
type ServiceParams struct {
	Repo      Repository
	Payments  SucceededChecker
	Logger    *logger.Logger
	Messaging config.MessagingConfig
}

type serviceImpl struct {
	repo         Repository
	payments     SucceededChecker
	logger       *logger.Logger
	welcomeDelay time.Duration
}

// NewService validates the wiring and returns the queue writer.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("messaging repository is required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payments checker is required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	welcomeDelay := params.Messaging.WelcomeDelay
	if welcomeDelay < 0 {
		return nil, fmt.Errorf("welcome delay must not be negative")
	}
	return &serviceImpl{
		repo:         params.Repo,
		payments:     params.Payments,
		logger:       params.Logger,
		welcomeDelay: welcomeDelay,
	}, nil
}

// EnqueueWelcome schedules the first-contact message after the configured
// delay. The delay is the window in which a quick payment suppresses the
// welcome entirely.
func (s *serviceImpl) EnqueueWelcome(ctx context.Context, lead models.Lead, now time.Time) (*models.QueuedMessage, error) {
	return s.enqueue(ctx, lead, enums.MessageTypeWelcome, now.Add(s.welcomeDelay), now)
}

// EnqueueAbandoned schedules the stalled-payment nudge for immediate dispatch.
// A lead in checkout no longer needs a welcome, so any pending one is
// cancelled here; a lead that already paid never gets nudged, even if an older
// charge expired afterwards.
func (s *serviceImpl) EnqueueAbandoned(ctx context.Context, lead models.Lead, now time.Time) (*models.QueuedMessage, error) {
	if err := s.cancelPending(ctx, lead.ID, enums.MessageTypeWelcome, "lead started a payment", now); err != nil {
		return nil, err
	}
	succeeded, err := s.payments.HasSucceededTransaction(ctx, lead.ID)
	if err != nil {
		return nil, fmt.Errorf("checking succeeded transactions: %w", err)
	}
	if succeeded {
		s.logger.Info(s.logger.WithLeadID(ctx, lead.ID.String()), "skipping abandoned message, lead already paid")
		return nil, nil
	}
	return s.enqueue(ctx, lead, enums.MessageTypePaymentAbandoned, now, now)
}

// EnqueueConfirmed schedules the payment confirmation for immediate dispatch.
// The payment supersedes both earlier messages, so any pending welcome and any
// pending abandoned nudge are cancelled first.
func (s *serviceImpl) EnqueueConfirmed(ctx context.Context, lead models.Lead, now time.Time) (*models.QueuedMessage, error) {
	if err := s.cancelPending(ctx, lead.ID, enums.MessageTypeWelcome, "payment succeeded", now); err != nil {
		return nil, err
	}
	if err := s.cancelPending(ctx, lead.ID, enums.MessageTypePaymentAbandoned, "payment succeeded", now); err != nil {
		return nil, err
	}
	return s.enqueue(ctx, lead, enums.MessageTypePaymentConfirmed, now, now)
}

func (s *serviceImpl) cancelPending(ctx context.Context, leadID uuid.UUID, messageType enums.MessageType, reason string, now time.Time) error {
	cancelled, err := s.repo.CancelPending(ctx, leadID, messageType, reason, now)
	if err != nil {
		return fmt.Errorf("cancelling %s messages: %w", messageType, err)
	}
	if cancelled > 0 {
		logCtx := s.logger.WithLeadID(ctx, leadID.String())
		logCtx = s.logger.WithField(logCtx, "message_type", messageType.String())
		s.logger.Info(logCtx, "cancelled pending messages: "+reason)
	}
	return nil
}

// Cancel bulk-cancels pending rows of one type for a lead.
func (s *serviceImpl) Cancel(ctx context.Context, leadID uuid.UUID, messageType enums.MessageType, reason string, now time.Time) (int64, error) {
	if !messageType.IsValid() {
		return 0, fmt.Errorf("invalid message type %q", messageType)
	}
	return s.repo.CancelPending(ctx, leadID, messageType, reason, now)
}

// enqueue inserts a row unless an active (pending or sent) sibling exists.
// A duplicate enqueue is a no-op, not an error: callers race with webhooks and
// sweeps, and the queue must stay at one live row per lead and type.
func (s *serviceImpl) enqueue(ctx context.Context, lead models.Lead, messageType enums.MessageType, sendAfter, now time.Time) (*models.QueuedMessage, error) {
	ctx = s.logger.WithLeadID(ctx, lead.ID.String())

	active, err := s.repo.FindActive(ctx, lead.ID, messageType)
	if err != nil {
		return nil, fmt.Errorf("checking active messages: %w", err)
	}
	if active != nil {
		s.logger.Info(s.logger.WithField(ctx, "message_type", messageType.String()),
			"skipping enqueue, active message already exists")
		return nil, nil
	}

	msg := &models.QueuedMessage{
		LeadID:      lead.ID,
		MessageType: messageType,
		Status:      enums.MessageStatusPending,
		Phone:       lead.Phone,
		SendAfter:   sendAfter,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(ctx, msg); err != nil {
		// The partial unique index closes the check-then-insert race; losing
		// that race means the other writer's row is the live one.
		if db.IsUniqueViolation(err, "idx_queued_messages_single_active") {
			s.logger.Info(s.logger.WithField(ctx, "message_type", messageType.String()),
				"skipping enqueue, concurrent writer created active message")
			return nil, nil
		}
		return nil, fmt.Errorf("creating queued message: %w", err)
	}
	return msg, nil
}
