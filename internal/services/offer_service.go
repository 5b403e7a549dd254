package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/alejandrovsynergy-netizen/lissen-mvp/internal/models"
	"github.com/alejandrovsynergy-netizen/lissen-mvp/internal/repository"
)

// OfferService manages companions' published call proposals. The money side
// of an offer (authorization, consumption) belongs to the hold authorizer;
// this service only handles publication.
type OfferService struct {
	offers *repository.OfferRepository
}

func NewOfferService(offers *repository.OfferRepository) *OfferService {
	return &OfferService{offers: offers}
}

type CreateOfferInput struct {
	AmountMinor        *int64
	RateMinorPerMinute *int64
	DurationMinutes    int
	Currency           string
}

func (s *OfferService) CreateOffer(ctx context.Context, companionID int64, input CreateOfferInput) (*models.Offer, error) {
	if input.DurationMinutes <= 0 {
		return nil, ErrInvalidInput
	}
	hasFlat := input.AmountMinor != nil && *input.AmountMinor > 0
	hasRate := input.RateMinorPerMinute != nil && *input.RateMinorPerMinute > 0
	if !hasFlat && !hasRate {
		return nil, ErrInvalidInput
	}

	currency := strings.ToLower(strings.TrimSpace(input.Currency))
	if currency == "" {
		currency = "usd"
	}

	return s.offers.Create(ctx, repository.CreateOfferInput{
		CompanionID:        companionID,
		AmountMinor:        input.AmountMinor,
		RateMinorPerMinute: input.RateMinorPerMinute,
		DurationMinutes:    input.DurationMinutes,
		Currency:           currency,
		HoldKey:            uuid.NewString(),
	})
}

func (s *OfferService) ListOpenOffers(ctx context.Context, limit int) ([]models.Offer, error) {
	return s.offers.ListOpen(ctx, limit)
}

func (s *OfferService) GetOffer(ctx context.Context, offerID int64) (*models.Offer, error) {
	offer, err := s.offers.GetByID(ctx, offerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return offer, nil
}

func (s *OfferService) WithdrawOffer(ctx context.Context, companionID, offerID int64) (*models.Offer, error) {
	offer, err := s.GetOffer(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if offer.CompanionID != companionID {
		return nil, ErrForbidden
	}
	if offer.Status != models.OfferPendingReview {
		return nil, fmt.Errorf("%w: offer is %s", ErrInvalidStateTransition, offer.Status)
	}

	withdrawn, err := s.offers.UpdateStatusIfCurrent(ctx, offerID, models.OfferPendingReview, models.OfferWithdrawn)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: offer state changed", ErrInvalidStateTransition)
		}
		return nil, err
	}
	return withdrawn, nil
}
