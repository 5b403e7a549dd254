package repository

import (
	"context"

	"github.com/alejandrovsynergy-netizen/lissen-mvp/internal/models"
)

type CreateOfferInput struct {
	CompanionID        int64
	AmountMinor        *int64
	RateMinorPerMinute *int64
	DurationMinutes    int
	Currency           string
	HoldKey            string
}

type OfferRepository struct {
	db DBTX
}

func NewOfferRepository(db DBTX) *OfferRepository {
	return &OfferRepository{db: db}
}

const offerColumns = `
	id, companion_id, amount_minor, rate_minor_per_minute, duration_min, currency, status,
	hold_key, speaker_id, payment_intent_id, intent_status, held_amount_minor, session_id,
	created_at, updated_at`

func (r *OfferRepository) scanOffer(row interface{ Scan(dest ...any) error }) (*models.Offer, error) {
	var offer models.Offer
	err := row.Scan(
		&offer.ID,
		&offer.CompanionID,
		&offer.AmountMinor,
		&offer.RateMinorPerMinute,
		&offer.DurationMinutes,
		&offer.Currency,
		&offer.Status,
		&offer.HoldKey,
		&offer.SpeakerID,
		&offer.PaymentIntentID,
		&offer.IntentStatus,
		&offer.HeldAmountMinor,
		&offer.SessionID,
		&offer.CreatedAt,
		&offer.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &offer, nil
}

func (r *OfferRepository) Create(ctx context.Context, input CreateOfferInput) (*models.Offer, error) {
	query := `
		INSERT INTO offers (companion_id, amount_minor, rate_minor_per_minute, duration_min, currency, hold_key)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING` + offerColumns
	return r.scanOffer(r.db.QueryRow(
		ctx,
		query,
		input.CompanionID,
		input.AmountMinor,
		input.RateMinorPerMinute,
		input.DurationMinutes,
		input.Currency,
		input.HoldKey,
	))
}

func (r *OfferRepository) GetByID(ctx context.Context, offerID int64) (*models.Offer, error) {
	query := `SELECT` + offerColumns + `
		FROM offers
		WHERE id = $1
	`
	return r.scanOffer(r.db.QueryRow(ctx, query, offerID))
}

func (r *OfferRepository) GetByIDForUpdate(ctx context.Context, offerID int64) (*models.Offer, error) {
	query := `SELECT` + offerColumns + `
		FROM offers
		WHERE id = $1
		FOR UPDATE
	`
	return r.scanOffer(r.db.QueryRow(ctx, query, offerID))
}

func (r *OfferRepository) ListOpen(ctx context.Context, limit int) ([]models.Offer, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	query := `SELECT` + offerColumns + `
		FROM offers
		WHERE status = 'pending_review'
		ORDER BY created_at DESC
		LIMIT $1
	`
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var offers []models.Offer
	for rows.Next() {
		offer, err := r.scanOffer(rows)
		if err != nil {
			return nil, err
		}
		offers = append(offers, *offer)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return offers, nil
}

// SetHoldIfAbsent records the authorization and the accepting speaker exactly
// once. An authorization is created at most once per offer; pgx.ErrNoRows
// means it already exists.
func (r *OfferRepository) SetHoldIfAbsent(ctx context.Context, offerID, speakerID int64, input HoldInput) (*models.Offer, error) {
	query := `
		UPDATE offers
		SET speaker_id = $2,
			payment_intent_id = $3,
			intent_status = $4,
			held_amount_minor = $5,
			updated_at = NOW()
		WHERE id = $1 AND payment_intent_id IS NULL AND status = 'pending_review'
		RETURNING` + offerColumns
	return r.scanOffer(r.db.QueryRow(
		ctx,
		query,
		offerID,
		speakerID,
		input.PaymentIntentID,
		input.IntentStatus,
		input.HeldAmountMinor,
	))
}

// MarkUsed consumes the offer and records the materialized session
// back-reference. Once used the offer's payment fields never change again.
func (r *OfferRepository) MarkUsed(ctx context.Context, offerID, sessionID int64) (*models.Offer, error) {
	query := `
		UPDATE offers
		SET status = 'used', session_id = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'pending_review'
		RETURNING` + offerColumns
	return r.scanOffer(r.db.QueryRow(ctx, query, offerID, sessionID))
}

func (r *OfferRepository) UpdateStatusIfCurrent(ctx context.Context, offerID int64, currentStatus, nextStatus models.OfferStatus) (*models.Offer, error) {
	query := `
		UPDATE offers
		SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING` + offerColumns
	return r.scanOffer(r.db.QueryRow(ctx, query, offerID, currentStatus, nextStatus))
}
