package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dpfarias/leadline-backend/internal/messaging"
	apperrors "github.com/dpfarias/leadline-backend/pkg/errors"

	"github.com/dpfarias/leadline-backend/pkg/config"
	"github.com/dpfarias/leadline-backend/pkg/db/models"
	"github.com/dpfarias/leadline-backend/pkg/enums"
	"github.com/dpfarias/leadline-backend/pkg/logger"
	"github.com/dpfarias/leadline-backend/pkg/openpix"
)

// ChargeCreator is the provider surface the service depends on.
type ChargeCreator interface {
	CreateCharge(ctx context.Context, params openpix.ChargeParams) (*openpix.Charge, error)
}

// StageUpdater promotes a lead through the funnel. Owned by the leads package.
type StageUpdater interface {
	UpdateStage(ctx context.Context, leadID uuid.UUID, stage enums.FunnelStage) error
}

// MessageQueue is the slice of the messaging writer the payment flow drives.
// The writer owns the cancellation cascade; the payment flow only enqueues.
type MessageQueue interface {
	EnqueueAbandoned(ctx context.Context, lead models.Lead, now time.Time) (*models.QueuedMessage, error)
	EnqueueConfirmed(ctx context.Context, lead models.Lead, now time.Time) (*models.QueuedMessage, error)
}

// ChargeParams describe a new payment attempt for a lead.
type ChargeParams struct {
	Lead        models.Lead
	AmountCents int64
	Method      enums.PaymentMethod
	MeetingAt   *time.Time
}

// ChargeResult carries the persisted transaction plus the payable PIX code.
type ChargeResult struct {
	Transaction *models.Transaction
	BRCode      string
	QRCodeImage string
}

// SweepSummary reports one expiry sweep pass.
type SweepSummary struct {
	Checked int `json:"checked"`
	Expired int `json:"expired"`
	Queued  int `json:"queued"`
	Errors  int `json:"errors"`
}

// Service owns the payment lifecycle: charge creation, provider webhooks, and
// the PIX expiry sweep. Every status write goes through a conditional update.
type Service interface {
	CreateCharge(ctx context.Context, params ChargeParams, now time.Time) (*ChargeResult, error)
	HandleChargePaid(ctx context.Context, correlationID string, now time.Time) error
	HandleChargeExpired(ctx context.Context, correlationID string, now time.Time) error
	SweepExpiredPix(ctx context.Context, now time.Time, limit int) (SweepSummary, error)
	Repo() Repository
}

// ServiceParams wires the payments service.
type ServiceParams struct {
	Repo      Repository
	Provider  ChargeCreator
	Queue     MessageQueue
	Leads     StageUpdater
	Logger    *logger.Logger
	Messaging config.MessagingConfig
}

type serviceImpl struct {
	repo     Repository
	provider ChargeCreator
	queue    MessageQueue
	leads    StageUpdater
	logger   *logger.Logger
	pixGrace time.Duration
}

// statuses a webhook may move to a terminal state from.
var nonTerminalStatuses = []enums.TransactionStatus{
	enums.TransactionStatusRequiresPaymentMethod,
	enums.TransactionStatusRequiresConfirmation,
	enums.TransactionStatusProcessing,
	enums.TransactionStatusRequiresAction,
	enums.TransactionStatusRequiresCapture,
}

// NewService validates the wiring and returns the payments service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("payments repository is required")
	}
	if params.Provider == nil {
		return nil, fmt.Errorf("charge provider is required")
	}
	if params.Queue == nil {
		return nil, fmt.Errorf("message queue is required")
	}
	if params.Leads == nil {
		return nil, fmt.Errorf("stage updater is required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if params.Messaging.PixGrace <= 0 {
		return nil, fmt.Errorf("pix grace must be positive")
	}
	return &serviceImpl{
		repo:     params.Repo,
		provider: params.Provider,
		queue:    params.Queue,
		leads:    params.Leads,
		logger:   params.Logger,
		pixGrace: params.Messaging.PixGrace,
	}, nil
}

func (s *serviceImpl) Repo() Repository {
	return s.repo
}

// CreateCharge persists the transaction, registers the PIX charge with the
// provider, and queues the abandoned-payment nudge right away. The enqueue
// cascade also cancels any pending welcome, since the lead is now engaged with
// checkout; if the lead pays, the confirmation path cancels the nudge before
// it dispatches.
func (s *serviceImpl) CreateCharge(ctx context.Context, params ChargeParams, now time.Time) (*ChargeResult, error) {
	if params.AmountCents <= 0 {
		return nil, apperrors.New(apperrors.CodeValidation, "amount must be positive")
	}
	if !params.Method.IsValid() {
		return nil, apperrors.New(apperrors.CodeValidation, "invalid payment method")
	}

	ctx = s.logger.WithLeadID(ctx, params.Lead.ID.String())

	tx := &models.Transaction{
		LeadID:        params.Lead.ID,
		AmountCents:   params.AmountCents,
		Method:        params.Method,
		Status:        enums.TransactionStatusRequiresPaymentMethod,
		CorrelationID: uuid.NewString(),
		MeetingAt:     params.MeetingAt,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.CreateTransaction(ctx, tx); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, err, "creating transaction")
	}

	ctx = s.logger.WithTransactionID(ctx, tx.ID.String())

	result := &ChargeResult{Transaction: tx}
	if params.Method == enums.PaymentMethodPix {
		charge, err := s.provider.CreateCharge(ctx, openpix.ChargeParams{
			CorrelationID: tx.CorrelationID,
			ValueCents:    params.AmountCents,
			Comment:       "Consultoria",
		})
		if err != nil {
			// The transaction never became payable; close it so the sweep
			// and the queue never act on it.
			if _, cancelErr := s.repo.UpdateTransactionStatus(ctx, tx.ID, nonTerminalStatuses, enums.TransactionStatusCanceled, now); cancelErr != nil {
				s.logger.Error(ctx, "cancelling transaction after provider failure", cancelErr)
			}
			return nil, apperrors.Wrap(apperrors.CodeDependency, err, "creating provider charge")
		}
		result.BRCode = charge.BRCode
		result.QRCodeImage = charge.QRCodeImage
	}

	// The charge exists either way; a queue hiccup must not lose it.
	if msg, err := s.queue.EnqueueAbandoned(ctx, params.Lead, now); err != nil {
		s.logger.Error(ctx, "enqueueing abandoned message", err)
	} else if msg != nil {
		s.logger.Info(ctx, "abandoned nudge queued for checkout start")
	}

	s.logger.Info(ctx, "charge created")
	return result, nil
}

// HandleChargePaid processes the provider's payment confirmation. Replayed
// webhooks are no-ops: the status update, the meeting booking, and the
// confirmation enqueue are all idempotent.
func (s *serviceImpl) HandleChargePaid(ctx context.Context, correlationID string, now time.Time) error {
	tx, err := s.repo.FindTransactionByCorrelationID(ctx, correlationID)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, err, "loading transaction")
	}
	if tx == nil {
		return apperrors.New(apperrors.CodeNotFound, "transaction not found")
	}
	if tx.Lead == nil {
		return apperrors.New(apperrors.CodeInternal, "transaction lead not loaded")
	}

	ctx = s.logger.WithFields(ctx, map[string]any{
		"transaction_id": tx.ID.String(),
		"lead_id":        tx.LeadID.String(),
	})

	claimed, err := s.repo.UpdateTransactionStatus(ctx, tx.ID, nonTerminalStatuses, enums.TransactionStatusSucceeded, now)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, err, "marking transaction succeeded")
	}
	if !claimed && tx.Status != enums.TransactionStatusSucceeded {
		// Already canceled; the provider confirmed a charge the sweep
		// expired. Surface it, the money needs a human.
		s.logger.Warn(ctx, "paid webhook for a canceled transaction")
		return apperrors.New(apperrors.CodeStateConflict, "transaction already canceled")
	}

	if err := s.leads.UpdateStage(ctx, tx.LeadID, enums.FunnelStagePurchased); err != nil {
		s.logger.Error(ctx, "promoting lead to purchased", err)
	}

	if err := s.ensureMeeting(ctx, tx, now); err != nil {
		s.logger.Error(ctx, "booking meeting", err)
	}

	if _, err := s.queue.EnqueueConfirmed(ctx, *tx.Lead, now); err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, err, "enqueueing confirmation")
	}

	s.logger.Info(ctx, "charge paid")
	return nil
}

// HandleChargeExpired processes the provider's expiry notice. Only a charge
// still waiting on the payer can expire; anything else is a stale webhook.
func (s *serviceImpl) HandleChargeExpired(ctx context.Context, correlationID string, now time.Time) error {
	tx, err := s.repo.FindTransactionByCorrelationID(ctx, correlationID)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, err, "loading transaction")
	}
	if tx == nil {
		return apperrors.New(apperrors.CodeNotFound, "transaction not found")
	}
	if tx.Lead == nil {
		return apperrors.New(apperrors.CodeInternal, "transaction lead not loaded")
	}

	ctx = s.logger.WithFields(ctx, map[string]any{
		"transaction_id": tx.ID.String(),
		"lead_id":        tx.LeadID.String(),
	})

	claimed, err := s.repo.UpdateTransactionStatus(ctx, tx.ID, enums.PixExpirableStatuses, enums.TransactionStatusCanceled, now)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, err, "marking transaction canceled")
	}
	if !claimed {
		s.logger.Info(ctx, "expiry webhook ignored, transaction no longer expirable")
		return nil
	}

	if _, err := s.queue.EnqueueAbandoned(ctx, *tx.Lead, now); err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, err, "enqueueing abandoned nudge")
	}

	s.logger.Info(ctx, "charge expired")
	return nil
}

// SweepExpiredPix cancels PIX charges older than the grace window and queues
// the abandoned nudge for each. The enqueue is best effort: a failed nudge is
// counted, never rolled back, because the cancel already happened at the
// provider's side of the clock.
func (s *serviceImpl) SweepExpiredPix(ctx context.Context, now time.Time, limit int) (SweepSummary, error) {
	var summary SweepSummary

	cutoff := now.Add(-s.pixGrace)
	expirable, err := s.repo.ListExpirablePix(ctx, cutoff, limit)
	if err != nil {
		return summary, fmt.Errorf("listing expirable pix charges: %w", err)
	}

	for _, tx := range expirable {
		summary.Checked++
		txCtx := s.logger.WithFields(ctx, map[string]any{
			"transaction_id": tx.ID.String(),
			"lead_id":        tx.LeadID.String(),
		})

		// The query already filtered on the cutoff; re-check against the
		// loaded row in case the listing and this pass disagree on time.
		if now.Sub(tx.CreatedAt) < s.pixGrace {
			continue
		}

		claimed, err := s.repo.UpdateTransactionStatus(txCtx, tx.ID, enums.PixExpirableStatuses, enums.TransactionStatusCanceled, now)
		if err != nil {
			summary.Errors++
			s.logger.Error(txCtx, "expiring pix charge", err)
			continue
		}
		if !claimed {
			// A webhook beat the sweep; nothing left to do for this row.
			continue
		}
		summary.Expired++

		if tx.Lead == nil {
			summary.Errors++
			s.logger.Error(txCtx, "expired pix charge without loaded lead", nil)
			continue
		}
		msg, err := s.queue.EnqueueAbandoned(txCtx, *tx.Lead, now)
		if err != nil {
			summary.Errors++
			s.logger.Error(txCtx, "enqueueing abandoned nudge", err)
			continue
		}
		if msg != nil {
			summary.Queued++
		}
	}

	return summary, nil
}

// ensureMeeting books the meeting exactly once per paid transaction.
func (s *serviceImpl) ensureMeeting(ctx context.Context, tx *models.Transaction, now time.Time) error {
	existing, err := s.repo.FindMeetingByTransaction(ctx, tx.ID)
	if err != nil {
		return fmt.Errorf("checking existing meeting: %w", err)
	}
	if existing != nil {
		return nil
	}
	if tx.MeetingAt == nil {
		return fmt.Errorf("transaction %s has no meeting slot", tx.ID)
	}
	meeting := &models.Meeting{
		TransactionID: tx.ID,
		LeadID:        tx.LeadID,
		ScheduledAt:   *tx.MeetingAt,
		CreatedAt:     now,
	}
	if err := s.repo.CreateMeeting(ctx, meeting); err != nil {
		return fmt.Errorf("creating meeting: %w", err)
	}
	return nil
}

var _ messaging.TransactionReader = (Repository)(nil)
var _ messaging.MeetingReader = (Repository)(nil)
