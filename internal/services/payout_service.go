package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/alejandrovsynergy-netizen/lissen-mvp/internal/models"
	"github.com/alejandrovsynergy-netizen/lissen-mvp/internal/processor"
)

type companionProfileStore interface {
	Ensure(ctx context.Context, userID int64) (*models.CompanionPayoutProfile, error)
	GetByUserID(ctx context.Context, userID int64) (*models.CompanionPayoutProfile, error)
	SetAccountIDIfAbsent(ctx context.Context, userID int64, accountID string) (*models.CompanionPayoutProfile, error)
	UpdateReadinessFlags(ctx context.Context, userID int64, detailsSubmitted, payoutsEnabled, chargesEnabled bool) (*models.CompanionPayoutProfile, error)
}

type payoutProcessor interface {
	CreateAccount(ctx context.Context, email string) (*processor.Account, error)
	GetAccount(ctx context.Context, id string) (*processor.Account, error)
	CreateAccountLink(ctx context.Context, accountID, refreshURL, returnURL string) (*processor.Link, error)
	CreateLoginLink(ctx context.Context, accountID string) (*processor.Link, error)
}

// PayoutService onboards a companion's payout-receiving account and reports
// its readiness. Readiness flags are only ever copied from the processor's
// answer, never derived locally.
type PayoutService struct {
	users             userReader
	companions        companionProfileStore
	processor         payoutProcessor
	defaultReturnURL  string
	defaultRefreshURL string
}

func NewPayoutService(users userReader, companions companionProfileStore, proc payoutProcessor, defaultReturnURL, defaultRefreshURL string) *PayoutService {
	return &PayoutService{
		users:             users,
		companions:        companions,
		processor:         proc,
		defaultReturnURL:  defaultReturnURL,
		defaultRefreshURL: defaultRefreshURL,
	}
}

// EnsurePayoutAccount creates the companion's payout account on first call
// and returns the existing identifier afterwards.
func (s *PayoutService) EnsurePayoutAccount(ctx context.Context, userID int64) (string, error) {
	profile, err := s.companions.Ensure(ctx, userID)
	if err != nil {
		return "", err
	}
	if profile.HasAccount() {
		return *profile.AccountID, nil
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}

	account, err := s.processor.CreateAccount(ctx, user.Email)
	if err != nil {
		return "", wrapProcessorErr(err)
	}

	if _, err := s.companions.SetAccountIDIfAbsent(ctx, userID, account.ID); err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return "", err
		}
		stored, readErr := s.companions.GetByUserID(ctx, userID)
		if readErr != nil {
			return "", readErr
		}
		if !stored.HasAccount() {
			return "", fmt.Errorf("%w: account creation raced and left no account", ErrFailedPrecondition)
		}
		return *stored.AccountID, nil
	}
	return account.ID, nil
}

// CreateOnboardingHandle ensures an account exists and issues a single-use
// onboarding redirect. Empty URLs fall back to the configured defaults.
func (s *PayoutService) CreateOnboardingHandle(ctx context.Context, userID int64, returnURL, refreshURL string) (*processor.Link, error) {
	accountID, err := s.EnsurePayoutAccount(ctx, userID)
	if err != nil {
		return nil, err
	}

	if returnURL == "" {
		returnURL = s.defaultReturnURL
	}
	if refreshURL == "" {
		refreshURL = s.defaultRefreshURL
	}

	link, err := s.processor.CreateAccountLink(ctx, accountID, refreshURL, returnURL)
	if err != nil {
		return nil, wrapProcessorErr(err)
	}
	return link, nil
}

// RefreshAccountStatus queries the processor for the account's current
// onboarding flags and persists them.
func (s *PayoutService) RefreshAccountStatus(ctx context.Context, userID int64) (*models.CompanionPayoutProfile, error) {
	profile, err := s.companions.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: no payout account linked", ErrFailedPrecondition)
		}
		return nil, err
	}
	if !profile.HasAccount() {
		return nil, fmt.Errorf("%w: no payout account linked", ErrFailedPrecondition)
	}

	account, err := s.processor.GetAccount(ctx, *profile.AccountID)
	if err != nil {
		return nil, wrapProcessorErr(err)
	}

	return s.companions.UpdateReadinessFlags(ctx, userID, account.DetailsSubmitted, account.PayoutsEnabled, account.ChargesEnabled)
}

// CreateDashboardLoginHandle issues a single-use login redirect for the
// companion's account dashboard.
func (s *PayoutService) CreateDashboardLoginHandle(ctx context.Context, userID int64) (*processor.Link, error) {
	profile, err := s.companions.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: no payout account linked", ErrFailedPrecondition)
		}
		return nil, err
	}
	if !profile.HasAccount() {
		return nil, fmt.Errorf("%w: no payout account linked", ErrFailedPrecondition)
	}

	link, err := s.processor.CreateLoginLink(ctx, *profile.AccountID)
	if err != nil {
		return nil, wrapProcessorErr(err)
	}
	return link, nil
}
