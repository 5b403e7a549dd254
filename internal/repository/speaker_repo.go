package repository

import (
	"context"

	"github.com/alejandrovsynergy-netizen/lissen-mvp/internal/models"
)

type SpeakerBillingRepository struct {
	db DBTX
}

func NewSpeakerBillingRepository(db DBTX) *SpeakerBillingRepository {
	return &SpeakerBillingRepository{db: db}
}

const speakerProfileColumns = `
	user_id, customer_id, default_payment_method_id, card_brand, card_last4, created_at, updated_at`

func (r *SpeakerBillingRepository) scanProfile(row interface{ Scan(dest ...any) error }) (*models.SpeakerBillingProfile, error) {
	var profile models.SpeakerBillingProfile
	err := row.Scan(
		&profile.UserID,
		&profile.CustomerID,
		&profile.DefaultPaymentMethodID,
		&profile.CardBrand,
		&profile.CardLast4,
		&profile.CreatedAt,
		&profile.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// Ensure creates the billing profile row on first touch and returns it.
// Safe to call concurrently; a racing insert is absorbed by ON CONFLICT.
func (r *SpeakerBillingRepository) Ensure(ctx context.Context, userID int64) (*models.SpeakerBillingProfile, error) {
	insert := `
		INSERT INTO speaker_billing_profiles (user_id)
		VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING
	`
	if _, err := r.db.Exec(ctx, insert, userID); err != nil {
		return nil, err
	}
	return r.GetByUserID(ctx, userID)
}

func (r *SpeakerBillingRepository) GetByUserID(ctx context.Context, userID int64) (*models.SpeakerBillingProfile, error) {
	query := `SELECT` + speakerProfileColumns + `
		FROM speaker_billing_profiles
		WHERE user_id = $1
	`
	return r.scanProfile(r.db.QueryRow(ctx, query, userID))
}

// SetCustomerIDIfAbsent assigns the processor customer exactly once. Returns
// pgx.ErrNoRows when another caller already assigned one; the caller should
// re-read and use the stored identifier.
func (r *SpeakerBillingRepository) SetCustomerIDIfAbsent(ctx context.Context, userID int64, customerID string) (*models.SpeakerBillingProfile, error) {
	query := `
		UPDATE speaker_billing_profiles
		SET customer_id = $2, updated_at = NOW()
		WHERE user_id = $1 AND customer_id IS NULL
		RETURNING` + speakerProfileColumns
	return r.scanProfile(r.db.QueryRow(ctx, query, userID, customerID))
}

func (r *SpeakerBillingRepository) SetDefaultInstrument(ctx context.Context, userID int64, paymentMethodID, brand, last4 string) (*models.SpeakerBillingProfile, error) {
	query := `
		UPDATE speaker_billing_profiles
		SET default_payment_method_id = $2, card_brand = $3, card_last4 = $4, updated_at = NOW()
		WHERE user_id = $1
		RETURNING` + speakerProfileColumns
	return r.scanProfile(r.db.QueryRow(ctx, query, userID, paymentMethodID, brand, last4))
}

func (r *SpeakerBillingRepository) ClearDefaultInstrument(ctx context.Context, userID int64) (*models.SpeakerBillingProfile, error) {
	query := `
		UPDATE speaker_billing_profiles
		SET default_payment_method_id = NULL, card_brand = NULL, card_last4 = NULL, updated_at = NOW()
		WHERE user_id = $1
		RETURNING` + speakerProfileColumns
	return r.scanProfile(r.db.QueryRow(ctx, query, userID))
}
