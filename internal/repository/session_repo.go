package repository

import (
	"context"
	"fmt"

	"github.com/alejandrovsynergy-netizen/lissen-mvp/internal/models"
)

type CreateCallSessionInput struct {
	SpeakerID       int64
	CompanionID     int64
	OfferID         *int64
	PriceMinor      int64
	DurationMinutes int
	Currency        string
	HoldKey         string
	Status          models.SessionStatus
}

// HoldInput is the authorization outcome persisted on a session, written
// at most once via SetHoldIfAbsent.
type HoldInput struct {
	PaymentIntentID string
	IntentStatus    string
	HeldAmountMinor int64
}

// CaptureOutcomeInput is the capture result written exactly once via
// RecordCaptureOutcome.
type CaptureOutcomeInput struct {
	AmountCapturedMinor int64
	IntentStatus        string
	BilledMinutes       int
	EndedReason         models.EndedReason
}

type SessionListFilter struct {
	Status models.SessionStatus
}

type CallSessionRepository struct {
	db DBTX
}

func NewCallSessionRepository(db DBTX) *CallSessionRepository {
	return &CallSessionRepository{db: db}
}

const callSessionColumns = `
	id, speaker_id, companion_id, offer_id, price_minor, duration_min, currency, status,
	hold_key, payment_intent_id, intent_status, held_amount_minor, authorized_at,
	started_at, completed_at, ended_reason, billed_minutes,
	captured, amount_captured_minor, captured_at, created_at, updated_at`

func (r *CallSessionRepository) scanSession(row interface{ Scan(dest ...any) error }) (*models.CallSession, error) {
	var session models.CallSession
	err := row.Scan(
		&session.ID,
		&session.SpeakerID,
		&session.CompanionID,
		&session.OfferID,
		&session.PriceMinor,
		&session.DurationMinutes,
		&session.Currency,
		&session.Status,
		&session.HoldKey,
		&session.PaymentIntentID,
		&session.IntentStatus,
		&session.HeldAmountMinor,
		&session.AuthorizedAt,
		&session.StartedAt,
		&session.CompletedAt,
		&session.EndedReason,
		&session.BilledMinutes,
		&session.Captured,
		&session.AmountCapturedMinor,
		&session.CapturedAt,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *CallSessionRepository) Create(ctx context.Context, input CreateCallSessionInput) (*models.CallSession, error) {
	query := `
		INSERT INTO call_sessions (speaker_id, companion_id, offer_id, price_minor, duration_min, currency, hold_key, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING` + callSessionColumns
	return r.scanSession(r.db.QueryRow(
		ctx,
		query,
		input.SpeakerID,
		input.CompanionID,
		input.OfferID,
		input.PriceMinor,
		input.DurationMinutes,
		input.Currency,
		input.HoldKey,
		input.Status,
	))
}

func (r *CallSessionRepository) GetByID(ctx context.Context, sessionID int64) (*models.CallSession, error) {
	query := `SELECT` + callSessionColumns + `
		FROM call_sessions
		WHERE id = $1
	`
	return r.scanSession(r.db.QueryRow(ctx, query, sessionID))
}

func (r *CallSessionRepository) List(ctx context.Context, actorID int64, role string, filter SessionListFilter) ([]models.CallSession, error) {
	var participantColumn string
	switch role {
	case models.RoleSpeaker:
		participantColumn = "speaker_id"
	case models.RoleCompanion:
		participantColumn = "companion_id"
	default:
		return nil, fmt.Errorf("unknown role %q", role)
	}

	query := `SELECT` + callSessionColumns + `
		FROM call_sessions
		WHERE ` + participantColumn + ` = $1`
	args := []any{actorID}
	if filter.Status != "" {
		query += ` AND status = $2`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []models.CallSession
	for rows.Next() {
		session, err := r.scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *session)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}

// SetHoldIfAbsent persists the authorization on a session that has none yet
// and moves it to reserved. pgx.ErrNoRows signals the hold was already
// recorded by a concurrent call; callers re-read and return that one.
func (r *CallSessionRepository) SetHoldIfAbsent(ctx context.Context, sessionID int64, input HoldInput) (*models.CallSession, error) {
	query := `
		UPDATE call_sessions
		SET payment_intent_id = $2,
			intent_status = $3,
			held_amount_minor = $4,
			status = 'reserved',
			authorized_at = NOW(),
			updated_at = NOW()
		WHERE id = $1 AND payment_intent_id IS NULL AND status = 'pending'
		RETURNING` + callSessionColumns
	return r.scanSession(r.db.QueryRow(
		ctx,
		query,
		sessionID,
		input.PaymentIntentID,
		input.IntentStatus,
		input.HeldAmountMinor,
	))
}

func (r *CallSessionRepository) UpdateStatusIfCurrent(ctx context.Context, sessionID int64, currentStatus, nextStatus models.SessionStatus) (*models.CallSession, error) {
	query := `
		UPDATE call_sessions
		SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING` + callSessionColumns
	return r.scanSession(r.db.QueryRow(ctx, query, sessionID, currentStatus, nextStatus))
}

// StartIfReserved flips reserved -> active and stamps the call start.
func (r *CallSessionRepository) StartIfReserved(ctx context.Context, sessionID int64) (*models.CallSession, error) {
	query := `
		UPDATE call_sessions
		SET status = 'active', started_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'reserved'
		RETURNING` + callSessionColumns
	return r.scanSession(r.db.QueryRow(ctx, query, sessionID))
}

// CompleteIfActive flips active -> completed and writes the billing fields in
// the same statement, so a racing second complete loses the CAS and gets
// pgx.ErrNoRows.
func (r *CallSessionRepository) CompleteIfActive(ctx context.Context, sessionID int64, reason models.EndedReason, billedMinutes *int) (*models.CallSession, error) {
	query := `
		UPDATE call_sessions
		SET status = 'completed',
			completed_at = NOW(),
			ended_reason = $2,
			billed_minutes = $3,
			updated_at = NOW()
		WHERE id = $1 AND status = 'active'
		RETURNING` + callSessionColumns
	return r.scanSession(r.db.QueryRow(ctx, query, sessionID, reason, billedMinutes))
}

// RecordCaptureOutcome is the idempotency gate for the capture engine: the
// outcome row mutates only while captured is still false, in one atomic
// write. pgx.ErrNoRows means another caller captured first.
func (r *CallSessionRepository) RecordCaptureOutcome(ctx context.Context, sessionID int64, input CaptureOutcomeInput) (*models.CallSession, error) {
	query := `
		UPDATE call_sessions
		SET captured = TRUE,
			amount_captured_minor = $2,
			intent_status = $3,
			billed_minutes = $4,
			ended_reason = $5,
			captured_at = NOW(),
			updated_at = NOW()
		WHERE id = $1 AND captured = FALSE
		RETURNING` + callSessionColumns
	return r.scanSession(r.db.QueryRow(
		ctx,
		query,
		sessionID,
		input.AmountCapturedMinor,
		input.IntentStatus,
		input.BilledMinutes,
		input.EndedReason,
	))
}
