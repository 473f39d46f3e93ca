package payments

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
	pkgerrors "github.com/dpfarias/leadline-backend/pkg/errors"
	"github.com/dpfarias/leadline-backend/pkg/logger"
	"github.com/dpfarias/leadline-backend/pkg/openpix"
)

type fakePaymentsRepo struct {
	transactions map[uuid.UUID]*models.Transaction
	meetings     map[uuid.UUID]*models.Meeting
	updateErr    error
	listErr      error
}

func newFakePaymentsRepo() *fakePaymentsRepo {
	return &fakePaymentsRepo{
		transactions: map[uuid.UUID]*models.Transaction{},
		meetings:     map[uuid.UUID]*models.Meeting{},
	}
}

func (f *fakePaymentsRepo) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakePaymentsRepo) CreateTransaction(ctx context.Context, tx *models.Transaction) error {
	if tx.ID == uuid.Nil {
		tx.ID = uuid.New()
	}
	copied := *tx
	f.transactions[tx.ID] = &copied
	return nil
}

func (f *fakePaymentsRepo) FindTransactionByCorrelationID(ctx context.Context, correlationID string) (*models.Transaction, error) {
	for _, tx := range f.transactions {
		if tx.CorrelationID == correlationID {
			copied := *tx
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakePaymentsRepo) HasAnyTransaction(ctx context.Context, leadID uuid.UUID) (bool, error) {
	for _, tx := range f.transactions {
		if tx.LeadID == leadID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakePaymentsRepo) HasSucceededTransaction(ctx context.Context, leadID uuid.UUID) (bool, error) {
	for _, tx := range f.transactions {
		if tx.LeadID == leadID && tx.Status == enums.TransactionStatusSucceeded {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakePaymentsRepo) UpdateTransactionStatus(ctx context.Context, id uuid.UUID, from []enums.TransactionStatus, to enums.TransactionStatus, now time.Time) (bool, error) {
	if f.updateErr != nil {
		return false, f.updateErr
	}
	tx, ok := f.transactions[id]
	if !ok {
		return false, nil
	}
	for _, status := range from {
		if tx.Status == status {
			tx.Status = to
			return true, nil
		}
	}
	return false, nil
}

func (f *fakePaymentsRepo) ListExpirablePix(ctx context.Context, cutoff time.Time, limit int) ([]models.Transaction, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []models.Transaction
	for _, tx := range f.transactions {
		if tx.Method == enums.PaymentMethodPix && tx.Status.PixExpirable() && !tx.CreatedAt.After(cutoff) {
			out = append(out, *tx)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakePaymentsRepo) CreateMeeting(ctx context.Context, meeting *models.Meeting) error {
	if meeting.ID == uuid.Nil {
		meeting.ID = uuid.New()
	}
	copied := *meeting
	f.meetings[meeting.ID] = &copied
	return nil
}

func (f *fakePaymentsRepo) FindMeetingByTransaction(ctx context.Context, transactionID uuid.UUID) (*models.Meeting, error) {
	for _, meeting := range f.meetings {
		if meeting.TransactionID == transactionID {
			copied := *meeting
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakePaymentsRepo) FindMeetingByLead(ctx context.Context, leadID uuid.UUID) (*models.Meeting, error) {
	for _, meeting := range f.meetings {
		if meeting.LeadID == leadID {
			copied := *meeting
			return &copied, nil
		}
	}
	return nil, nil
}

type fakeProvider struct {
	charge *openpix.Charge
	err    error
	calls  int
}

func (f *fakeProvider) CreateCharge(ctx context.Context, params openpix.ChargeParams) (*openpix.Charge, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	charge := *f.charge
	charge.CorrelationID = params.CorrelationID
	return &charge, nil
}

type fakeQueue struct {
	abandoned   int
	confirmed   int
	enqueueErr  error
	skipEnqueue bool
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{}
}

func (f *fakeQueue) EnqueueAbandoned(ctx context.Context, lead models.Lead, now time.Time) (*models.QueuedMessage, error) {
	if f.enqueueErr != nil {
		return nil, f.enqueueErr
	}
	if f.skipEnqueue {
		return nil, nil
	}
	f.abandoned++
	return &models.QueuedMessage{ID: uuid.New()}, nil
}

func (f *fakeQueue) EnqueueConfirmed(ctx context.Context, lead models.Lead, now time.Time) (*models.QueuedMessage, error) {
	if f.enqueueErr != nil {
		return nil, f.enqueueErr
	}
	f.confirmed++
	return &models.QueuedMessage{ID: uuid.New()}, nil
}

type fakeStageUpdater struct {
	stages map[uuid.UUID]enums.FunnelStage
}

func newFakeStageUpdater() *fakeStageUpdater {
	return &fakeStageUpdater{stages: map[uuid.UUID]enums.FunnelStage{}}
}

func (f *fakeStageUpdater) UpdateStage(ctx context.Context, leadID uuid.UUID, stage enums.FunnelStage) error {
	f.stages[leadID] = stage
	return nil
}

func newTestPaymentsService(t *testing.T, repo Repository, provider ChargeCreator, queue MessageQueue, stages StageUpdater) Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Repo:      repo,
		Provider:  provider,
		Queue:     queue,
		Leads:     stages,
		Logger:    logger.New(logger.Options{ServiceName: "test"}),
		Messaging: config.MessagingConfig{PixGrace: 16 * time.Minute},
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func paymentsTestLead() models.Lead {
	return models.Lead{ID: uuid.New(), Name: "Maria Souza", Phone: "5511999990000"}
}

func seedPixTransaction(repo *fakePaymentsRepo, lead models.Lead, status enums.TransactionStatus, createdAt time.Time) *models.Transaction {
	tx := &models.Transaction{
		ID:            uuid.New(),
		LeadID:        lead.ID,
		Lead:          &lead,
		AmountCents:   50000,
		Method:        enums.PaymentMethodPix,
		Status:        status,
		CorrelationID: uuid.NewString(),
		CreatedAt:     createdAt,
	}
	meetingAt := createdAt.Add(72 * time.Hour)
	tx.MeetingAt = &meetingAt
	repo.transactions[tx.ID] = tx
	return tx
}

func TestCreateChargeOpensPixCharge(t *testing.T) {
	repo := newFakePaymentsRepo()
	provider := &fakeProvider{charge: &openpix.Charge{BRCode: "000201brcode", QRCodeImage: "data:image/png;base64,abc"}}
	queue := newFakeQueue()
	svc := newTestPaymentsService(t, repo, provider, queue, newFakeStageUpdater())

	lead := paymentsTestLead()
	now := time.Now().UTC()

	result, err := svc.CreateCharge(context.Background(), ChargeParams{
		Lead:        lead,
		AmountCents: 50000,
		Method:      enums.PaymentMethodPix,
	}, now)
	if err != nil {
		t.Fatalf("CreateCharge: %v", err)
	}
	if result.BRCode == "" {
		t.Fatal("expected a payable BR code")
	}
	if result.Transaction.Status != enums.TransactionStatusRequiresPaymentMethod {
		t.Fatalf("status = %s, want requires_payment_method", result.Transaction.Status)
	}
	if provider.calls != 1 {
		t.Fatalf("provider calls = %d, want 1", provider.calls)
	}
	if queue.abandoned != 1 {
		t.Fatalf("abandoned enqueues = %d, want the nudge queued at charge creation", queue.abandoned)
	}
}

func TestCreateChargeCardQueuesNudgeWithoutProvider(t *testing.T) {
	repo := newFakePaymentsRepo()
	provider := &fakeProvider{charge: &openpix.Charge{}}
	queue := newFakeQueue()
	svc := newTestPaymentsService(t, repo, provider, queue, newFakeStageUpdater())

	result, err := svc.CreateCharge(context.Background(), ChargeParams{
		Lead:        paymentsTestLead(),
		AmountCents: 50000,
		Method:      enums.PaymentMethodCard,
	}, time.Now().UTC())
	if err != nil {
		t.Fatalf("CreateCharge: %v", err)
	}
	if result.BRCode != "" {
		t.Fatal("card charges carry no BR code")
	}
	if provider.calls != 0 {
		t.Fatalf("provider calls = %d, want 0 for card", provider.calls)
	}
	if queue.abandoned != 1 {
		t.Fatalf("abandoned enqueues = %d, want 1", queue.abandoned)
	}
}

func TestCreateChargeCancelsTransactionOnProviderFailure(t *testing.T) {
	repo := newFakePaymentsRepo()
	provider := &fakeProvider{err: errors.New("provider down")}
	queue := newFakeQueue()
	svc := newTestPaymentsService(t, repo, provider, queue, newFakeStageUpdater())

	_, err := svc.CreateCharge(context.Background(), ChargeParams{
		Lead:        paymentsTestLead(),
		AmountCents: 50000,
		Method:      enums.PaymentMethodPix,
	}, time.Now().UTC())
	if err == nil {
		t.Fatal("expected error")
	}
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeDependency {
		t.Fatalf("expected dependency error, got %v", err)
	}
	for _, tx := range repo.transactions {
		if tx.Status != enums.TransactionStatusCanceled {
			t.Fatalf("transaction left in status %s", tx.Status)
		}
	}
	if queue.abandoned != 0 {
		t.Fatal("no nudge for a charge that never became payable")
	}
}

func TestCreateChargeRejectsNonPositiveAmount(t *testing.T) {
	svc := newTestPaymentsService(t, newFakePaymentsRepo(), &fakeProvider{}, newFakeQueue(), newFakeStageUpdater())

	_, err := svc.CreateCharge(context.Background(), ChargeParams{
		Lead:        paymentsTestLead(),
		AmountCents: 0,
		Method:      enums.PaymentMethodPix,
	}, time.Now().UTC())
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestHandleChargePaidPromotesLeadAndBooksMeeting(t *testing.T) {
	repo := newFakePaymentsRepo()
	queue := newFakeQueue()
	stages := newFakeStageUpdater()
	svc := newTestPaymentsService(t, repo, &fakeProvider{}, queue, stages)

	lead := paymentsTestLead()
	now := time.Now().UTC()
	tx := seedPixTransaction(repo, lead, enums.TransactionStatusProcessing, now.Add(-5*time.Minute))

	if err := svc.HandleChargePaid(context.Background(), tx.CorrelationID, now); err != nil {
		t.Fatalf("HandleChargePaid: %v", err)
	}
	if repo.transactions[tx.ID].Status != enums.TransactionStatusSucceeded {
		t.Fatalf("status = %s, want succeeded", repo.transactions[tx.ID].Status)
	}
	if stages.stages[lead.ID] != enums.FunnelStagePurchased {
		t.Fatal("lead was not promoted to purchased")
	}
	if len(repo.meetings) != 1 {
		t.Fatalf("meetings = %d, want 1", len(repo.meetings))
	}
	if queue.confirmed != 1 {
		t.Fatalf("confirmed enqueues = %d, want 1", queue.confirmed)
	}

	// A replayed webhook books nothing new.
	if err := svc.HandleChargePaid(context.Background(), tx.CorrelationID, now.Add(time.Minute)); err != nil {
		t.Fatalf("replayed HandleChargePaid: %v", err)
	}
	if len(repo.meetings) != 1 {
		t.Fatalf("meetings after replay = %d, want 1", len(repo.meetings))
	}
}

func TestHandleChargePaidUnknownCorrelation(t *testing.T) {
	svc := newTestPaymentsService(t, newFakePaymentsRepo(), &fakeProvider{}, newFakeQueue(), newFakeStageUpdater())

	err := svc.HandleChargePaid(context.Background(), "missing", time.Now().UTC())
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestHandleChargeExpiredQueuesAbandonedNudge(t *testing.T) {
	repo := newFakePaymentsRepo()
	queue := newFakeQueue()
	svc := newTestPaymentsService(t, repo, &fakeProvider{}, queue, newFakeStageUpdater())

	lead := paymentsTestLead()
	now := time.Now().UTC()
	tx := seedPixTransaction(repo, lead, enums.TransactionStatusRequiresPaymentMethod, now.Add(-20*time.Minute))

	if err := svc.HandleChargeExpired(context.Background(), tx.CorrelationID, now); err != nil {
		t.Fatalf("HandleChargeExpired: %v", err)
	}
	if repo.transactions[tx.ID].Status != enums.TransactionStatusCanceled {
		t.Fatalf("status = %s, want canceled", repo.transactions[tx.ID].Status)
	}
	if queue.abandoned != 1 {
		t.Fatalf("abandoned enqueues = %d, want 1", queue.abandoned)
	}
}

func TestHandleChargeExpiredIgnoresSucceededCharge(t *testing.T) {
	repo := newFakePaymentsRepo()
	queue := newFakeQueue()
	svc := newTestPaymentsService(t, repo, &fakeProvider{}, queue, newFakeStageUpdater())

	lead := paymentsTestLead()
	now := time.Now().UTC()
	tx := seedPixTransaction(repo, lead, enums.TransactionStatusSucceeded, now.Add(-20*time.Minute))

	if err := svc.HandleChargeExpired(context.Background(), tx.CorrelationID, now); err != nil {
		t.Fatalf("HandleChargeExpired: %v", err)
	}
	if repo.transactions[tx.ID].Status != enums.TransactionStatusSucceeded {
		t.Fatal("succeeded charge must never be expired")
	}
	if queue.abandoned != 0 {
		t.Fatal("no nudge for a paid lead")
	}
}

func TestSweepExpiredPixCancelsAndQueues(t *testing.T) {
	repo := newFakePaymentsRepo()
	queue := newFakeQueue()
	svc := newTestPaymentsService(t, repo, &fakeProvider{}, queue, newFakeStageUpdater())

	now := time.Now().UTC()
	old := seedPixTransaction(repo, paymentsTestLead(), enums.TransactionStatusProcessing, now.Add(-30*time.Minute))
	fresh := seedPixTransaction(repo, paymentsTestLead(), enums.TransactionStatusProcessing, now.Add(-5*time.Minute))

	summary, err := svc.SweepExpiredPix(context.Background(), now, 50)
	if err != nil {
		t.Fatalf("SweepExpiredPix: %v", err)
	}
	if summary.Expired != 1 || summary.Queued != 1 {
		t.Fatalf("summary = %+v, want 1 expired 1 queued", summary)
	}
	if repo.transactions[old.ID].Status != enums.TransactionStatusCanceled {
		t.Fatal("stale charge was not canceled")
	}
	if repo.transactions[fresh.ID].Status != enums.TransactionStatusProcessing {
		t.Fatal("charge inside the grace window must survive")
	}
}

func TestSweepExpiredPixIsIdempotent(t *testing.T) {
	repo := newFakePaymentsRepo()
	queue := newFakeQueue()
	svc := newTestPaymentsService(t, repo, &fakeProvider{}, queue, newFakeStageUpdater())

	now := time.Now().UTC()
	seedPixTransaction(repo, paymentsTestLead(), enums.TransactionStatusProcessing, now.Add(-30*time.Minute))

	if _, err := svc.SweepExpiredPix(context.Background(), now, 50); err != nil {
		t.Fatalf("first sweep: %v", err)
	}
	second, err := svc.SweepExpiredPix(context.Background(), now.Add(time.Minute), 50)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if second.Expired != 0 || second.Queued != 0 {
		t.Fatalf("second sweep = %+v, want nothing to do", second)
	}
	if queue.abandoned != 1 {
		t.Fatalf("abandoned enqueues = %d, want exactly 1 across sweeps", queue.abandoned)
	}
}

func TestSweepExpiredPixCountsEnqueueFailures(t *testing.T) {
	repo := newFakePaymentsRepo()
	queue := newFakeQueue()
	queue.enqueueErr = errors.New("queue write failed")
	svc := newTestPaymentsService(t, repo, &fakeProvider{}, queue, newFakeStageUpdater())

	now := time.Now().UTC()
	tx := seedPixTransaction(repo, paymentsTestLead(), enums.TransactionStatusProcessing, now.Add(-30*time.Minute))

	summary, err := svc.SweepExpiredPix(context.Background(), now, 50)
	if err != nil {
		t.Fatalf("SweepExpiredPix: %v", err)
	}
	if summary.Expired != 1 || summary.Errors != 1 {
		t.Fatalf("summary = %+v, want the cancel kept and the failure counted", summary)
	}
	if repo.transactions[tx.ID].Status != enums.TransactionStatusCanceled {
		t.Fatal("cancel must not be rolled back on enqueue failure")
	}
}
