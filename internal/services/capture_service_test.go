package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/alejandrovsynergy-netizen/lissen-mvp/internal/models"
	"github.com/alejandrovsynergy-netizen/lissen-mvp/internal/processor"
	"github.com/alejandrovsynergy-netizen/lissen-mvp/internal/repository"
)

type stubCaptureStore struct {
	session   *models.CallSession
	getQueue  []*models.CallSession
	recordErr error
	recorded  []repository.CaptureOutcomeInput
}

func (s *stubCaptureStore) GetByID(_ context.Context, sessionID int64) (*models.CallSession, error) {
	if len(s.getQueue) > 0 {
		next := s.getQueue[0]
		s.getQueue = s.getQueue[1:]
		return next, nil
	}
	if s.session == nil || s.session.ID != sessionID {
		return nil, pgx.ErrNoRows
	}
	return s.session, nil
}

func (s *stubCaptureStore) RecordCaptureOutcome(_ context.Context, sessionID int64, input repository.CaptureOutcomeInput) (*models.CallSession, error) {
	s.recorded = append(s.recorded, input)
	if s.recordErr != nil {
		return nil, s.recordErr
	}
	updated := *s.session
	updated.Captured = true
	updated.AmountCapturedMinor = input.AmountCapturedMinor
	status := input.IntentStatus
	updated.IntentStatus = &status
	billed := input.BilledMinutes
	updated.BilledMinutes = &billed
	reason := input.EndedReason
	updated.EndedReason = &reason
	return &updated, nil
}

type stubCaptureProcessor struct {
	intents      []*processor.PaymentIntent
	getErr       error
	captureErr   error
	captureCalls int
	getCalls     int
	lastAmount   int64
}

func (p *stubCaptureProcessor) GetPaymentIntent(_ context.Context, _ string) (*processor.PaymentIntent, error) {
	p.getCalls++
	if p.getErr != nil {
		return nil, p.getErr
	}
	intent := p.intents[0]
	if len(p.intents) > 1 {
		p.intents = p.intents[1:]
	}
	return intent, nil
}

func (p *stubCaptureProcessor) CapturePaymentIntent(_ context.Context, id string, amountMinor int64) (*processor.PaymentIntent, error) {
	p.captureCalls++
	p.lastAmount = amountMinor
	if p.captureErr != nil {
		return nil, p.captureErr
	}
	return &processor.PaymentIntent{
		ID:             id,
		Status:         processor.IntentSucceeded,
		AmountReceived: amountMinor,
	}, nil
}

func completedSession() *models.CallSession {
	intentID := "pi_123"
	status := string(processor.IntentRequiresCapture)
	started := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	completed := started.Add(10 * time.Minute)
	billed := 10
	reason := models.EndedByCompanion
	return &models.CallSession{
		ID:              7,
		SpeakerID:       1,
		CompanionID:     2,
		PriceMinor:      10000,
		DurationMinutes: 20,
		Currency:        "usd",
		Status:          models.SessionCompleted,
		PaymentIntentID: &intentID,
		IntentStatus:    &status,
		HeldAmountMinor: 10000,
		StartedAt:       &started,
		CompletedAt:     &completed,
		EndedReason:     &reason,
		BilledMinutes:   &billed,
	}
}

func TestCaptureSessionProportional(t *testing.T) {
	store := &stubCaptureStore{session: completedSession()}
	proc := &stubCaptureProcessor{intents: []*processor.PaymentIntent{
		{ID: "pi_123", Status: processor.IntentRequiresCapture, Amount: 10000},
	}}
	svc := NewCaptureService(store, proc)

	result, err := svc.CaptureSession(context.Background(), 1, 7)
	if err != nil {
		t.Fatalf("CaptureSession: %v", err)
	}

	if result.AmountCapturedMinor != 5000 {
		t.Errorf("AmountCapturedMinor = %d, want 5000", result.AmountCapturedMinor)
	}
	if result.BilledMinutes != 10 {
		t.Errorf("BilledMinutes = %d, want 10", result.BilledMinutes)
	}
	if proc.lastAmount != 5000 {
		t.Errorf("captured amount sent to processor = %d, want 5000", proc.lastAmount)
	}
	if len(store.recorded) != 1 {
		t.Fatalf("expected one recorded outcome, got %d", len(store.recorded))
	}
	if store.recorded[0].IntentStatus != string(processor.IntentSucceeded) {
		t.Errorf("recorded intent status = %q", store.recorded[0].IntentStatus)
	}
}

func TestCaptureSessionReplayReturnsRecordedOutcome(t *testing.T) {
	session := completedSession()
	session.Captured = true
	session.AmountCapturedMinor = 5000
	settled := string(processor.IntentSucceeded)
	session.IntentStatus = &settled

	store := &stubCaptureStore{session: session}
	proc := &stubCaptureProcessor{}
	svc := NewCaptureService(store, proc)

	result, err := svc.CaptureSession(context.Background(), 1, 7)
	if err != nil {
		t.Fatalf("CaptureSession: %v", err)
	}

	if result.AmountCapturedMinor != 5000 {
		t.Errorf("AmountCapturedMinor = %d, want 5000", result.AmountCapturedMinor)
	}
	if proc.getCalls != 0 || proc.captureCalls != 0 {
		t.Errorf("processor touched on replay: get=%d capture=%d", proc.getCalls, proc.captureCalls)
	}
}

func TestCaptureSessionCanceledAuthorization(t *testing.T) {
	store := &stubCaptureStore{session: completedSession()}
	proc := &stubCaptureProcessor{intents: []*processor.PaymentIntent{
		{ID: "pi_123", Status: processor.IntentCanceled},
	}}
	svc := NewCaptureService(store, proc)

	_, err := svc.CaptureSession(context.Background(), 1, 7)
	if !errors.Is(err, ErrFailedPrecondition) {
		t.Fatalf("expected ErrFailedPrecondition, got %v", err)
	}
	if proc.captureCalls != 0 {
		t.Errorf("capture attempted against canceled authorization")
	}
	if len(store.recorded) != 0 {
		t.Errorf("outcome recorded for canceled authorization")
	}
}

func TestCaptureSessionAbsorbsAlreadyCaptured(t *testing.T) {
	store := &stubCaptureStore{session: completedSession()}
	proc := &stubCaptureProcessor{
		intents: []*processor.PaymentIntent{
			{ID: "pi_123", Status: processor.IntentRequiresCapture, Amount: 10000},
			{ID: "pi_123", Status: processor.IntentSucceeded, AmountReceived: 5000},
		},
		captureErr: &processor.APIError{
			StatusCode: 400,
			Type:       "invalid_request_error",
			Message:    "This PaymentIntent has already been captured.",
		},
	}
	svc := NewCaptureService(store, proc)

	result, err := svc.CaptureSession(context.Background(), 1, 7)
	if err != nil {
		t.Fatalf("CaptureSession: %v", err)
	}
	if result.AmountCapturedMinor != 5000 {
		t.Errorf("AmountCapturedMinor = %d, want the settled amount 5000", result.AmountCapturedMinor)
	}
	if len(store.recorded) != 1 {
		t.Fatalf("expected the settled outcome to be recorded")
	}
}

func TestCaptureSessionAlreadySucceededAtProcessor(t *testing.T) {
	store := &stubCaptureStore{session: completedSession()}
	proc := &stubCaptureProcessor{intents: []*processor.PaymentIntent{
		{ID: "pi_123", Status: processor.IntentSucceeded, AmountReceived: 5000},
	}}
	svc := NewCaptureService(store, proc)

	result, err := svc.CaptureSession(context.Background(), 1, 7)
	if err != nil {
		t.Fatalf("CaptureSession: %v", err)
	}
	if result.AmountCapturedMinor != 5000 {
		t.Errorf("AmountCapturedMinor = %d, want 5000", result.AmountCapturedMinor)
	}
	if proc.captureCalls != 0 {
		t.Errorf("capture attempted on an already settled intent")
	}
}

func TestCaptureSessionLosesWriteRace(t *testing.T) {
	session := completedSession()
	stored := *session
	stored.Captured = true
	stored.AmountCapturedMinor = 5000

	store := &stubCaptureStore{
		session:   session,
		getQueue:  []*models.CallSession{session, &stored},
		recordErr: pgx.ErrNoRows,
	}
	proc := &stubCaptureProcessor{intents: []*processor.PaymentIntent{
		{ID: "pi_123", Status: processor.IntentRequiresCapture, Amount: 10000},
	}}
	svc := NewCaptureService(store, proc)

	result, err := svc.CaptureSession(context.Background(), 1, 7)
	if err != nil {
		t.Fatalf("CaptureSession: %v", err)
	}
	if result.AmountCapturedMinor != 5000 {
		t.Errorf("AmountCapturedMinor = %d, want the winner's 5000", result.AmountCapturedMinor)
	}
}

func TestCaptureSessionGuards(t *testing.T) {
	t.Run("unknown session", func(t *testing.T) {
		svc := NewCaptureService(&stubCaptureStore{}, &stubCaptureProcessor{})
		if _, err := svc.CaptureSession(context.Background(), 1, 99); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("non participant", func(t *testing.T) {
		svc := NewCaptureService(&stubCaptureStore{session: completedSession()}, &stubCaptureProcessor{})
		if _, err := svc.CaptureSession(context.Background(), 42, 7); !errors.Is(err, ErrForbidden) {
			t.Errorf("expected ErrForbidden, got %v", err)
		}
	})

	t.Run("not completed", func(t *testing.T) {
		session := completedSession()
		session.Status = models.SessionActive
		svc := NewCaptureService(&stubCaptureStore{session: session}, &stubCaptureProcessor{})
		if _, err := svc.CaptureSession(context.Background(), 1, 7); !errors.Is(err, ErrFailedPrecondition) {
			t.Errorf("expected ErrFailedPrecondition, got %v", err)
		}
	})

	t.Run("no authorization", func(t *testing.T) {
		session := completedSession()
		session.PaymentIntentID = nil
		svc := NewCaptureService(&stubCaptureStore{session: session}, &stubCaptureProcessor{})
		if _, err := svc.CaptureSession(context.Background(), 1, 7); !errors.Is(err, ErrFailedPrecondition) {
			t.Errorf("expected ErrFailedPrecondition, got %v", err)
		}
	})
}
