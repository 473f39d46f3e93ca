package messaging

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dpfarias/leadline-backend/pkg/config"
	"github.com/dpfarias/leadline-backend/pkg/db/models"
	"github.com/dpfarias/leadline-backend/pkg/enums"
	"github.com/dpfarias/leadline-backend/pkg/logger"
)

// fakeQueueRepo is an in-memory Repository used by the service and processor
// tests.
type fakeQueueRepo struct {
	messages  map[uuid.UUID]*models.QueuedMessage
	createErr error
	listErr   error
}

func newFakeQueueRepo() *fakeQueueRepo {
	return &fakeQueueRepo{messages: map[uuid.UUID]*models.QueuedMessage{}}
}

func (f *fakeQueueRepo) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeQueueRepo) Create(ctx context.Context, msg *models.QueuedMessage) error {
	if f.createErr != nil {
		return f.createErr
	}
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	copied := *msg
	f.messages[msg.ID] = &copied
	return nil
}

func (f *fakeQueueRepo) FindActive(ctx context.Context, leadID uuid.UUID, messageType enums.MessageType) (*models.QueuedMessage, error) {
	for _, msg := range f.messages {
		if msg.LeadID == leadID && msg.MessageType == messageType &&
			(msg.Status == enums.MessageStatusPending || msg.Status == enums.MessageStatusSent) {
			copied := *msg
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeQueueRepo) HasSent(ctx context.Context, leadID uuid.UUID, messageType enums.MessageType) (bool, error) {
	for _, msg := range f.messages {
		if msg.LeadID == leadID && msg.MessageType == messageType && msg.Status == enums.MessageStatusSent {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeQueueRepo) CancelPending(ctx context.Context, leadID uuid.UUID, messageType enums.MessageType, reason string, now time.Time) (int64, error) {
	var affected int64
	for _, msg := range f.messages {
		if msg.LeadID == leadID && msg.MessageType == messageType && msg.Status == enums.MessageStatusPending {
			msg.Status = enums.MessageStatusCancelled
			msg.Error = &reason
			affected++
		}
	}
	return affected, nil
}

func (f *fakeQueueRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]models.QueuedMessage, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var due []models.QueuedMessage
	for _, msg := range f.messages {
		if msg.Status == enums.MessageStatusPending && !msg.SendAfter.After(now) {
			due = append(due, *msg)
		}
		if len(due) == limit {
			break
		}
	}
	return due, nil
}

func (f *fakeQueueRepo) MarkSent(ctx context.Context, id uuid.UUID, renderedText string, now time.Time) (bool, error) {
	return f.transition(id, enums.MessageStatusSent, &renderedText, nil)
}

func (f *fakeQueueRepo) MarkCancelled(ctx context.Context, id uuid.UUID, reason string, now time.Time) (bool, error) {
	return f.transition(id, enums.MessageStatusCancelled, nil, &reason)
}

func (f *fakeQueueRepo) MarkFailed(ctx context.Context, id uuid.UUID, reason string, now time.Time) (bool, error) {
	return f.transition(id, enums.MessageStatusFailed, nil, &reason)
}

func (f *fakeQueueRepo) transition(id uuid.UUID, status enums.MessageStatus, text, reason *string) (bool, error) {
	msg, ok := f.messages[id]
	if !ok || msg.Status != enums.MessageStatusPending {
		return false, nil
	}
	msg.Status = status
	if text != nil {
		msg.RenderedText = text
	}
	if reason != nil {
		msg.Error = reason
	}
	return true, nil
}

type fakeSucceededChecker struct {
	succeeded bool
	err       error
}

func (f *fakeSucceededChecker) HasSucceededTransaction(ctx context.Context, leadID uuid.UUID) (bool, error) {
	return f.succeeded, f.err
}

func newTestService(t *testing.T, repo Repository, payments SucceededChecker) Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Repo:      repo,
		Payments:  payments,
		Logger:    logger.New(logger.Options{ServiceName: "test"}),
		Messaging: config.MessagingConfig{WelcomeDelay: 2 * time.Minute},
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func testLead() models.Lead {
	return models.Lead{
		ID:    uuid.New(),
		Name:  "Maria Souza",
		Phone: "5511999990000",
	}
}

func TestEnqueueWelcomeSchedulesAfterDelay(t *testing.T) {
	repo := newFakeQueueRepo()
	svc := newTestService(t, repo, &fakeSucceededChecker{})
	lead := testLead()
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

	msg, err := svc.EnqueueWelcome(context.Background(), lead, now)
	if err != nil {
		t.Fatalf("EnqueueWelcome: %v", err)
	}
	if msg == nil {
		t.Fatal("expected a queued message")
	}
	if want := now.Add(2 * time.Minute); !msg.SendAfter.Equal(want) {
		t.Fatalf("SendAfter = %s, want %s", msg.SendAfter, want)
	}
	if msg.Phone != lead.Phone {
		t.Fatalf("Phone = %q, want snapshot %q", msg.Phone, lead.Phone)
	}
	if msg.Status != enums.MessageStatusPending {
		t.Fatalf("Status = %s, want pending", msg.Status)
	}
}

func TestEnqueueSkipsWhenActiveSiblingExists(t *testing.T) {
	repo := newFakeQueueRepo()
	svc := newTestService(t, repo, &fakeSucceededChecker{})
	lead := testLead()
	now := time.Now().UTC()

	first, err := svc.EnqueueWelcome(context.Background(), lead, now)
	if err != nil || first == nil {
		t.Fatalf("first enqueue: msg=%v err=%v", first, err)
	}

	second, err := svc.EnqueueWelcome(context.Background(), lead, now)
	if err != nil {
		t.Fatalf("second enqueue: %v", err)
	}
	if second != nil {
		t.Fatal("expected duplicate enqueue to be a no-op")
	}
	if len(repo.messages) != 1 {
		t.Fatalf("expected 1 stored message, got %d", len(repo.messages))
	}
}

func TestEnqueueAbandonedSkipsPaidLead(t *testing.T) {
	repo := newFakeQueueRepo()
	svc := newTestService(t, repo, &fakeSucceededChecker{succeeded: true})
	lead := testLead()

	msg, err := svc.EnqueueAbandoned(context.Background(), lead, time.Now().UTC())
	if err != nil {
		t.Fatalf("EnqueueAbandoned: %v", err)
	}
	if msg != nil {
		t.Fatal("expected no message for a lead that already paid")
	}
	if len(repo.messages) != 0 {
		t.Fatalf("expected empty queue, got %d messages", len(repo.messages))
	}
}

func TestEnqueueAbandonedPropagatesCheckerError(t *testing.T) {
	repo := newFakeQueueRepo()
	svc := newTestService(t, repo, &fakeSucceededChecker{err: errors.New("db down")})

	if _, err := svc.EnqueueAbandoned(context.Background(), testLead(), time.Now().UTC()); err == nil {
		t.Fatal("expected error")
	}
}

func TestEnqueueAbandonedCancelsPendingWelcome(t *testing.T) {
	repo := newFakeQueueRepo()
	svc := newTestService(t, repo, &fakeSucceededChecker{})
	lead := testLead()
	now := time.Now().UTC()

	welcome, err := svc.EnqueueWelcome(context.Background(), lead, now)
	if err != nil || welcome == nil {
		t.Fatalf("EnqueueWelcome: msg=%v err=%v", welcome, err)
	}

	msg, err := svc.EnqueueAbandoned(context.Background(), lead, now)
	if err != nil {
		t.Fatalf("EnqueueAbandoned: %v", err)
	}
	if msg == nil {
		t.Fatal("expected abandoned message")
	}

	stored := repo.messages[welcome.ID]
	if stored.Status != enums.MessageStatusCancelled {
		t.Fatalf("welcome left in status %s, want cancelled", stored.Status)
	}
	if stored.Error == nil || *stored.Error != "lead started a payment" {
		t.Fatalf("cancellation reason = %v", stored.Error)
	}
}

func TestEnqueueConfirmedCancelsPendingWelcomeAndAbandoned(t *testing.T) {
	repo := newFakeQueueRepo()
	svc := newTestService(t, repo, &fakeSucceededChecker{})
	lead := testLead()
	now := time.Now().UTC()

	welcome, err := svc.EnqueueWelcome(context.Background(), lead, now)
	if err != nil || welcome == nil {
		t.Fatalf("EnqueueWelcome: msg=%v err=%v", welcome, err)
	}
	abandoned, err := svc.EnqueueAbandoned(context.Background(), lead, now)
	if err != nil || abandoned == nil {
		t.Fatalf("EnqueueAbandoned: msg=%v err=%v", abandoned, err)
	}

	msg, err := svc.EnqueueConfirmed(context.Background(), lead, now)
	if err != nil {
		t.Fatalf("EnqueueConfirmed: %v", err)
	}
	if msg == nil {
		t.Fatal("expected confirmation message")
	}

	if status := repo.messages[welcome.ID].Status; status != enums.MessageStatusCancelled {
		t.Fatalf("welcome left in status %s", status)
	}
	if status := repo.messages[abandoned.ID].Status; status != enums.MessageStatusCancelled {
		t.Fatalf("abandoned message left in status %s", status)
	}
}

func TestEnqueueTreatsUniqueViolationAsNoOp(t *testing.T) {
	repo := newFakeQueueRepo()
	repo.createErr = errors.New(`duplicate key value violates unique constraint "idx_queued_messages_single_active"`)
	svc := newTestService(t, repo, &fakeSucceededChecker{})

	msg, err := svc.EnqueueWelcome(context.Background(), testLead(), time.Now().UTC())
	if err != nil {
		t.Fatalf("expected unique violation to be swallowed, got %v", err)
	}
	if msg != nil {
		t.Fatal("expected nil message on lost insert race")
	}
}

func TestCancelRejectsUnknownType(t *testing.T) {
	svc := newTestService(t, newFakeQueueRepo(), &fakeSucceededChecker{})

	if _, err := svc.Cancel(context.Background(), uuid.New(), enums.MessageType("bogus"), "x", time.Now()); err == nil {
		t.Fatal("expected error for invalid message type")
	}
}
