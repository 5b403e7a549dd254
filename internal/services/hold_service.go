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

type holdSessionStore interface {
	GetByID(ctx context.Context, sessionID int64) (*models.CallSession, error)
	SetHoldIfAbsent(ctx context.Context, sessionID int64, input repository.HoldInput) (*models.CallSession, error)
}

type holdOfferStore interface {
	GetByID(ctx context.Context, offerID int64) (*models.Offer, error)
	SetHoldIfAbsent(ctx context.Context, offerID, speakerID int64, input repository.HoldInput) (*models.Offer, error)
}

type speakerProfileReader interface {
	GetByUserID(ctx context.Context, userID int64) (*models.SpeakerBillingProfile, error)
}

type holdProcessor interface {
	CreatePaymentIntent(ctx context.Context, input processor.CreatePaymentIntentInput) (*processor.PaymentIntent, error)
}

type offerMaterializer interface {
	MaterializeFromOffer(ctx context.Context, offer *models.Offer) (*models.CallSession, error)
}

// HoldService places manual-capture authorizations for the committed amount
// of a session or an offer. Authorization is idempotent per record: the
// record's hold key doubles as the processor idempotency key, and the local
// write is a conditional update that only lands while no authorization is
// recorded yet.
type HoldService struct {
	sessions  holdSessionStore
	offers    holdOfferStore
	speakers  speakerProfileReader
	calls     offerMaterializer
	processor holdProcessor
}

func NewHoldService(
	sessions holdSessionStore,
	offers holdOfferStore,
	speakers speakerProfileReader,
	calls offerMaterializer,
	proc holdProcessor,
) *HoldService {
	return &HoldService{
		sessions:  sessions,
		offers:    offers,
		speakers:  speakers,
		calls:     calls,
		processor: proc,
	}
}

type HoldResult struct {
	SessionID       int64  `json:"session_id,omitempty"`
	OfferID         int64  `json:"offer_id,omitempty"`
	PaymentIntentID string `json:"payment_intent_id"`
	IntentStatus    string `json:"intent_status"`
	HeldAmountMinor int64  `json:"held_amount_minor"`
	Currency        string `json:"currency"`
}

// AuthorizeSessionHold places a hold for a booked session's committed price.
// A session that already carries an authorization returns it unchanged.
func (s *HoldService) AuthorizeSessionHold(ctx context.Context, actorID, sessionID int64) (*HoldResult, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if session.SpeakerID != actorID {
		return nil, ErrForbidden
	}
	if session.HasAuthorization() {
		return sessionHoldResult(session), nil
	}
	if session.Status != models.SessionPending {
		return nil, fmt.Errorf("%w: session is %s, not awaiting authorization", ErrFailedPrecondition, session.Status)
	}
	if session.PriceMinor <= 0 {
		return nil, fmt.Errorf("%w: committed amount must be positive", ErrFailedPrecondition)
	}

	profile, err := s.instrumentFor(ctx, actorID)
	if err != nil {
		return nil, err
	}

	intent, err := s.processor.CreatePaymentIntent(ctx, processor.CreatePaymentIntentInput{
		AmountMinor:     session.PriceMinor,
		Currency:        session.Currency,
		CustomerID:      *profile.CustomerID,
		PaymentMethodID: *profile.DefaultPaymentMethodID,
		IdempotencyKey:  session.HoldKey,
		Description:     fmt.Sprintf("Lissen call session %d", session.ID),
	})
	if err != nil {
		// Authorization failure is terminal for this call; the speaker
		// retries after fixing their instrument.
		return nil, wrapProcessorErr(err)
	}

	updated, err := s.sessions.SetHoldIfAbsent(ctx, session.ID, repository.HoldInput{
		PaymentIntentID: intent.ID,
		IntentStatus:    string(intent.Status),
		HeldAmountMinor: intent.Amount,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// A concurrent call recorded the hold first. The processor
			// idempotency key made both creates land on the same intent, so
			// the stored hold is the same one.
			stored, readErr := s.sessions.GetByID(ctx, session.ID)
			if readErr != nil {
				return nil, readErr
			}
			return sessionHoldResult(stored), nil
		}
		return nil, err
	}
	return sessionHoldResult(updated), nil
}

// AuthorizeOfferHold accepts an open offer: it authorizes a hold for the
// offer's committed amount and materializes the reserved session. An offer
// that was already consumed returns its materialized outcome instead of
// erroring.
func (s *HoldService) AuthorizeOfferHold(ctx context.Context, actorID, offerID int64) (*HoldResult, error) {
	offer, err := s.offers.GetByID(ctx, offerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if offer.CompanionID == actorID {
		return nil, ErrForbidden
	}
	if offer.SpeakerID != nil && *offer.SpeakerID != actorID {
		return nil, ErrForbidden
	}
	if offer.SessionID != nil {
		return offerHoldResult(offer, *offer.SessionID), nil
	}

	if !offer.HasAuthorization() {
		if offer.Status != models.OfferPendingReview {
			return nil, fmt.Errorf("%w: offer is %s", ErrFailedPrecondition, offer.Status)
		}

		amount := offer.CommittedAmountMinor()
		if amount <= 0 {
			return nil, fmt.Errorf("%w: offer amount must be positive", ErrFailedPrecondition)
		}

		profile, err := s.instrumentFor(ctx, actorID)
		if err != nil {
			return nil, err
		}

		intent, err := s.processor.CreatePaymentIntent(ctx, processor.CreatePaymentIntentInput{
			AmountMinor:     amount,
			Currency:        offer.Currency,
			CustomerID:      *profile.CustomerID,
			PaymentMethodID: *profile.DefaultPaymentMethodID,
			IdempotencyKey:  offer.HoldKey,
			Description:     fmt.Sprintf("Lissen offer %d", offer.ID),
		})
		if err != nil {
			return nil, wrapProcessorErr(err)
		}

		offer, err = s.offers.SetHoldIfAbsent(ctx, offer.ID, actorID, repository.HoldInput{
			PaymentIntentID: intent.ID,
			IntentStatus:    string(intent.Status),
			HeldAmountMinor: intent.Amount,
		})
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				stored, readErr := s.offers.GetByID(ctx, offerID)
				if readErr != nil {
					return nil, readErr
				}
				if stored.SpeakerID == nil || *stored.SpeakerID != actorID {
					return nil, fmt.Errorf("%w: offer was accepted by another speaker", ErrFailedPrecondition)
				}
				offer = stored
			} else {
				return nil, err
			}
		}
	}

	// The hold exists but the session does not yet: either this call placed
	// it, or a previous call died between authorizing and materializing.
	// Materialization is idempotent, so both paths converge here.
	session, err := s.calls.MaterializeFromOffer(ctx, offer)
	if err != nil {
		return nil, err
	}
	return offerHoldResult(offer, session.ID), nil
}

func (s *HoldService) instrumentFor(ctx context.Context, actorID int64) (*models.SpeakerBillingProfile, error) {
	profile, err := s.speakers.GetByUserID(ctx, actorID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: no registered payment instrument", ErrFailedPrecondition)
		}
		return nil, err
	}
	if !profile.HasInstrument() {
		return nil, fmt.Errorf("%w: no registered payment instrument", ErrFailedPrecondition)
	}
	return profile, nil
}

func sessionHoldResult(session *models.CallSession) *HoldResult {
	result := &HoldResult{
		SessionID:       session.ID,
		HeldAmountMinor: session.HeldAmountMinor,
		Currency:        session.Currency,
	}
	if session.PaymentIntentID != nil {
		result.PaymentIntentID = *session.PaymentIntentID
	}
	if session.IntentStatus != nil {
		result.IntentStatus = *session.IntentStatus
	}
	return result
}

func offerHoldResult(offer *models.Offer, sessionID int64) *HoldResult {
	result := &HoldResult{
		OfferID:         offer.ID,
		SessionID:       sessionID,
		HeldAmountMinor: offer.HeldAmountMinor,
		Currency:        offer.Currency,
	}
	if offer.PaymentIntentID != nil {
		result.PaymentIntentID = *offer.PaymentIntentID
	}
	if offer.IntentStatus != nil {
		result.IntentStatus = *offer.IntentStatus
	}
	return result
}
