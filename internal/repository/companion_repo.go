package repository

import (
	"context"

	"github.com/alejandrovsynergy-netizen/lissen-mvp/internal/models"
)

type CompanionPayoutRepository struct {
	db DBTX
}

func NewCompanionPayoutRepository(db DBTX) *CompanionPayoutRepository {
	return &CompanionPayoutRepository{db: db}
}

const companionProfileColumns = `
	user_id, account_id, details_submitted, payouts_enabled, charges_enabled,
	status_refreshed_at, created_at, updated_at`

func (r *CompanionPayoutRepository) scanProfile(row interface{ Scan(dest ...any) error }) (*models.CompanionPayoutProfile, error) {
	var profile models.CompanionPayoutProfile
	err := row.Scan(
		&profile.UserID,
		&profile.AccountID,
		&profile.DetailsSubmitted,
		&profile.PayoutsEnabled,
		&profile.ChargesEnabled,
		&profile.StatusRefreshedAt,
		&profile.CreatedAt,
		&profile.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func (r *CompanionPayoutRepository) Ensure(ctx context.Context, userID int64) (*models.CompanionPayoutProfile, error) {
	insert := `
		INSERT INTO companion_payout_profiles (user_id)
		VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING
	`
	if _, err := r.db.Exec(ctx, insert, userID); err != nil {
		return nil, err
	}
	return r.GetByUserID(ctx, userID)
}

func (r *CompanionPayoutRepository) GetByUserID(ctx context.Context, userID int64) (*models.CompanionPayoutProfile, error) {
	query := `SELECT` + companionProfileColumns + `
		FROM companion_payout_profiles
		WHERE user_id = $1
	`
	return r.scanProfile(r.db.QueryRow(ctx, query, userID))
}

// SetAccountIDIfAbsent links the payout account exactly once; pgx.ErrNoRows
// means a concurrent call linked one first.
func (r *CompanionPayoutRepository) SetAccountIDIfAbsent(ctx context.Context, userID int64, accountID string) (*models.CompanionPayoutProfile, error) {
	query := `
		UPDATE companion_payout_profiles
		SET account_id = $2, updated_at = NOW()
		WHERE user_id = $1 AND account_id IS NULL
		RETURNING` + companionProfileColumns
	return r.scanProfile(r.db.QueryRow(ctx, query, userID, accountID))
}

func (r *CompanionPayoutRepository) UpdateReadinessFlags(ctx context.Context, userID int64, detailsSubmitted, payoutsEnabled, chargesEnabled bool) (*models.CompanionPayoutProfile, error) {
	query := `
		UPDATE companion_payout_profiles
		SET details_submitted = $2,
			payouts_enabled = $3,
			charges_enabled = $4,
			status_refreshed_at = NOW(),
			updated_at = NOW()
		WHERE user_id = $1
		RETURNING` + companionProfileColumns
	return r.scanProfile(r.db.QueryRow(ctx, query, userID, detailsSubmitted, payoutsEnabled, chargesEnabled))
}
