package leads

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dpfarias/leadline-backend/pkg/db"
	"github.com/dpfarias/leadline-backend/pkg/db/models"
	"github.com/dpfarias/leadline-backend/pkg/enums"
	apperrors "github.com/dpfarias/leadline-backend/pkg/errors"
	"github.com/dpfarias/leadline-backend/pkg/logger"
)

const (
	referralCodeLength   = 8
	referralCodeAttempts = 3
)

// WelcomeEnqueuer schedules the first-contact message. Owned by the messaging
// package.
type WelcomeEnqueuer interface {
	EnqueueWelcome(ctx context.Context, lead models.Lead, now time.Time) (*models.QueuedMessage, error)
}

// RegisterParams capture one landing-page signup.
type RegisterParams struct {
	Name       string
	Phone      string
	ReferredBy string
}

// Service owns lead registration and funnel movement.
type Service interface {
	Register(ctx context.Context, params RegisterParams, now time.Time) (*models.Lead, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Lead, error)
	UpdateStage(ctx context.Context, leadID uuid.UUID, stage enums.FunnelStage) error
}

// ServiceParams wires the leads service.
type ServiceParams struct {
	Repo   Repository
	Queue  WelcomeEnqueuer
	Logger *logger.Logger
	Now    func() time.Time
}

type serviceImpl struct {
	repo   Repository
	queue  WelcomeEnqueuer
	logger *logger.Logger
	now    func() time.Time
}

// NewService validates the wiring and returns the leads service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("lead repository is required")
	}
	if params.Queue == nil {
		return nil, fmt.Errorf("welcome enqueuer is required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &serviceImpl{
		repo:   params.Repo,
		queue:  params.Queue,
		logger: params.Logger,
		now:    now,
	}, nil
}

// Register creates the lead and schedules the welcome message. Registering an
// already known phone returns the existing lead without queueing anything.
func (s *serviceImpl) Register(ctx context.Context, params RegisterParams, now time.Time) (*models.Lead, error) {
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return nil, apperrors.New(apperrors.CodeValidation, "name is required")
	}
	phone, err := NormalizePhone(params.Phone)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeValidation, err, "invalid phone")
	}

	existing, err := s.repo.FindByPhone(ctx, phone)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, err, "looking up lead")
	}
	if existing != nil {
		s.logger.Info(s.logger.WithLeadID(ctx, existing.ID.String()), "registration for known phone")
		return existing, nil
	}

	lead := &models.Lead{
		Name:      name,
		Phone:     phone,
		Stage:     enums.FunnelStageNew,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if code := strings.TrimSpace(params.ReferredBy); code != "" {
		referrer, err := s.repo.FindByReferralCode(ctx, code)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeInternal, err, "resolving referral code")
		}
		if referrer == nil {
			s.logger.Warn(s.logger.WithField(ctx, "referral_code", code), "unknown referral code ignored")
		} else {
			lead.ReferredBy = &code
		}
	}

	if err := s.createWithReferralCode(ctx, lead); err != nil {
		return nil, err
	}

	ctx = s.logger.WithLeadID(ctx, lead.ID.String())
	if _, err := s.queue.EnqueueWelcome(ctx, *lead, now); err != nil {
		// The lead is saved; a missed welcome is recoverable, a lost signup
		// is not.
		s.logger.Error(ctx, "enqueueing welcome message", err)
	}

	s.logger.Info(ctx, "lead registered")
	return lead, nil
}

func (s *serviceImpl) FindByID(ctx context.Context, id uuid.UUID) (*models.Lead, error) {
	lead, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, err, "looking up lead")
	}
	if lead == nil {
		return nil, apperrors.New(apperrors.CodeNotFound, "lead not found")
	}
	return lead, nil
}

func (s *serviceImpl) UpdateStage(ctx context.Context, leadID uuid.UUID, stage enums.FunnelStage) error {
	if !stage.IsValid() {
		return apperrors.New(apperrors.CodeValidation, "invalid funnel stage")
	}
	if err := s.repo.UpdateStage(ctx, leadID, stage, s.now()); err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, err, "updating funnel stage")
	}
	return nil
}

// createWithReferralCode inserts the lead, regenerating the referral code on
// the unlikely collision.
func (s *serviceImpl) createWithReferralCode(ctx context.Context, lead *models.Lead) error {
	for attempt := 0; attempt < referralCodeAttempts; attempt++ {
		code, err := newReferralCode()
		if err != nil {
			return apperrors.Wrap(apperrors.CodeInternal, err, "generating referral code")
		}
		lead.ReferralCode = &code
		err = s.repo.Create(ctx, lead)
		if err == nil {
			return nil
		}
		if !db.IsUniqueViolation(err, "idx_leads_referral_code") {
			return apperrors.Wrap(apperrors.CodeInternal, err, "creating lead")
		}
	}
	return apperrors.New(apperrors.CodeInternal, "could not allocate a referral code")
}

func newReferralCode() (string, error) {
	buf := make([]byte, referralCodeLength/2)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return strings.ToUpper(hex.EncodeToString(buf)), nil
}

// NormalizePhone reduces user input to digits and prefixes the Brazilian
// country code when the number is a bare area code plus subscriber number.
func NormalizePhone(raw string) (string, error) {
	var digits strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	phone := digits.String()
	switch {
	case len(phone) == 10 || len(phone) == 11:
		phone = "55" + phone
	case len(phone) == 12 || len(phone) == 13:
		if !strings.HasPrefix(phone, "55") {
			return "", fmt.Errorf("unsupported country code in %q", raw)
		}
	default:
		return "", fmt.Errorf("phone %q must have 10 or 11 digits", raw)
	}
	return phone, nil
}
