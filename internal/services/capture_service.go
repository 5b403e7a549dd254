package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/alejandrovsynergy-netizen/lissen-mvp/internal/models"
	"github.com/alejandrovsynergy-netizen/lissen-mvp/internal/processor"
	"github.com/alejandrovsynergy-netizen/lissen-mvp/internal/repository"
)

type captureSessionStore interface {
	GetByID(ctx context.Context, sessionID int64) (*models.CallSession, error)
	RecordCaptureOutcome(ctx context.Context, sessionID int64, input repository.CaptureOutcomeInput) (*models.CallSession, error)
}

type captureProcessor interface {
	GetPaymentIntent(ctx context.Context, id string) (*processor.PaymentIntent, error)
	CapturePaymentIntent(ctx context.Context, id string, amountMinor int64) (*processor.PaymentIntent, error)
}

// CaptureService finalizes the held funds of a completed session exactly
// once, capturing the fraction of the hold that the billed minutes represent.
type CaptureService struct {
	sessions  captureSessionStore
	processor captureProcessor
}

func NewCaptureService(sessions captureSessionStore, proc captureProcessor) *CaptureService {
	return &CaptureService{sessions: sessions, processor: proc}
}

type CaptureResult struct {
	SessionID           int64              `json:"session_id"`
	AmountCapturedMinor int64              `json:"amount_captured_minor"`
	IntentStatus        string             `json:"intent_status"`
	BilledMinutes       int                `json:"billed_minutes"`
	EndedReason         models.EndedReason `json:"ended_reason"`
}

// CaptureSession runs the proportional capture for a completed session.
// Re-invocations and concurrent invocations converge on the first recorded
// outcome: the captured flag gates locally, and an "already captured"
// processor rejection is absorbed by re-reading the authorization.
func (s *CaptureService) CaptureSession(ctx context.Context, actorID, sessionID int64) (*CaptureResult, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if !session.IsParticipant(actorID) {
		return nil, ErrForbidden
	}
	if session.Captured {
		return recordedOutcome(session), nil
	}
	if session.Status != models.SessionCompleted {
		return nil, fmt.Errorf("%w: session is %s, not completed", ErrFailedPrecondition, session.Status)
	}
	if !session.HasAuthorization() {
		return nil, fmt.Errorf("%w: session has no authorization", ErrFailedPrecondition)
	}

	billed := ResolveBillableMinutes(
		session.BilledMinutes,
		session.StartedAt,
		session.CompletedAt,
		derefReason(session.EndedReason),
		session.DurationMinutes,
	)
	amount := ProportionalCaptureAmount(session.HeldAmountMinor, session.DurationMinutes, billed)

	intent, err := s.processor.GetPaymentIntent(ctx, *session.PaymentIntentID)
	if err != nil {
		return nil, wrapProcessorErr(err)
	}

	switch intent.Status {
	case processor.IntentSucceeded:
		// A concurrent caller (or an out-of-band settle) already captured;
		// record what the processor actually received, not our computation.
		return s.record(ctx, session, billed, intent.AmountReceived, intent.Status)
	case processor.IntentCanceled:
		return nil, fmt.Errorf("%w: authorization was canceled", ErrFailedPrecondition)
	case processor.IntentRequiresCapture:
		captured, err := s.processor.CapturePaymentIntent(ctx, *session.PaymentIntentID, amount)
		if err != nil {
			if processor.IsAlreadyCaptured(err) {
				settled, readErr := s.processor.GetPaymentIntent(ctx, *session.PaymentIntentID)
				if readErr != nil {
					return nil, wrapProcessorErr(readErr)
				}
				return s.record(ctx, session, billed, settled.AmountReceived, settled.Status)
			}
			return nil, wrapProcessorErr(err)
		}
		return s.record(ctx, session, billed, captured.AmountReceived, captured.Status)
	case processor.IntentRequiresPaymentMethod, processor.IntentRequiresConfirmation,
		processor.IntentRequiresAction, processor.IntentProcessing:
		return nil, fmt.Errorf("%w: authorization is in state %s", ErrFailedPrecondition, intent.Status)
	default:
		return nil, fmt.Errorf("%w: authorization is in state %s", ErrFailedPrecondition, intent.Status)
	}
}

func (s *CaptureService) record(ctx context.Context, session *models.CallSession, billed int, amountReceived int64, status processor.IntentStatus) (*CaptureResult, error) {
	updated, err := s.sessions.RecordCaptureOutcome(ctx, session.ID, repository.CaptureOutcomeInput{
		AmountCapturedMinor: amountReceived,
		IntentStatus:        string(status),
		BilledMinutes:       billed,
		EndedReason:         derefReason(session.EndedReason),
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Lost the write race: another caller recorded first. Return
			// their outcome verbatim.
			stored, readErr := s.sessions.GetByID(ctx, session.ID)
			if readErr != nil {
				return nil, readErr
			}
			return recordedOutcome(stored), nil
		}
		return nil, err
	}
	return recordedOutcome(updated), nil
}

func recordedOutcome(session *models.CallSession) *CaptureResult {
	result := &CaptureResult{
		SessionID:           session.ID,
		AmountCapturedMinor: session.AmountCapturedMinor,
		EndedReason:         derefReason(session.EndedReason),
	}
	if session.IntentStatus != nil {
		result.IntentStatus = *session.IntentStatus
	}
	if session.BilledMinutes != nil {
		result.BilledMinutes = *session.BilledMinutes
	}
	return result
}

func derefReason(reason *models.EndedReason) models.EndedReason {
	if reason == nil {
		return ""
	}
	return *reason
}

// wrapProcessorErr re-surfaces a typed processor rejection as a failed
// precondition carrying the processor's message; transport errors pass
// through untouched.
func wrapProcessorErr(err error) error {
	var apiErr *processor.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%w: %s", ErrFailedPrecondition, apiErr.Message)
	}
	return err
}
