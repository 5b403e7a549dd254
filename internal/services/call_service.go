package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alejandrovsynergy-netizen/lissen-mvp/internal/models"
	"github.com/alejandrovsynergy-netizen/lissen-mvp/internal/repository"
)

// CallService owns the call-session lifecycle: booking, starting, completing
// with a termination reason, and materializing sessions from accepted offers.
// Completion is what arms the capture engine: it stamps the timestamps and
// the server-measured elapsed minutes the billing resolver reads.
type CallService struct {
	db       *pgxpool.Pool
	sessions *repository.CallSessionRepository
	offers   *repository.OfferRepository
	users    userReader
	now      func() time.Time
}

func NewCallService(
	db *pgxpool.Pool,
	sessions *repository.CallSessionRepository,
	offers *repository.OfferRepository,
	users userReader,
) *CallService {
	return &CallService{
		db:       db,
		sessions: sessions,
		offers:   offers,
		users:    users,
		now:      time.Now,
	}
}

type BookCallInput struct {
	CompanionID     int64
	PriceMinor      int64
	DurationMinutes int
	Currency        string
}

func (s *CallService) BookSession(ctx context.Context, speakerID int64, input BookCallInput) (*models.CallSession, error) {
	if input.CompanionID <= 0 || input.DurationMinutes <= 0 || input.PriceMinor <= 0 {
		return nil, ErrInvalidInput
	}
	if speakerID == input.CompanionID {
		return nil, ErrInvalidInput
	}

	companion, err := s.users.GetByID(ctx, input.CompanionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if companion.Role != models.RoleCompanion {
		return nil, ErrInvalidInput
	}

	currency := strings.ToLower(strings.TrimSpace(input.Currency))
	if currency == "" {
		currency = "usd"
	}

	return s.sessions.Create(ctx, repository.CreateCallSessionInput{
		SpeakerID:       speakerID,
		CompanionID:     input.CompanionID,
		PriceMinor:      input.PriceMinor,
		DurationMinutes: input.DurationMinutes,
		Currency:        currency,
		HoldKey:         uuid.NewString(),
		Status:          models.SessionPending,
	})
}

func (s *CallService) GetSession(ctx context.Context, actorID int64, sessionID int64) (*models.CallSession, error) {
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
	return session, nil
}

func (s *CallService) ListSessions(ctx context.Context, actorID int64, role string, filter repository.SessionListFilter) ([]models.CallSession, error) {
	return s.sessions.List(ctx, actorID, role, filter)
}

// StartSession begins the call. Requires the hold to be in place (reserved).
func (s *CallService) StartSession(ctx context.Context, actorID, sessionID int64) (*models.CallSession, error) {
	session, err := s.GetSession(ctx, actorID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status == models.SessionActive {
		return session, nil
	}
	if session.Status != models.SessionReserved {
		return nil, fmt.Errorf("%w: session is %s, not reserved", ErrInvalidStateTransition, session.Status)
	}

	started, err := s.sessions.StartIfReserved(ctx, sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Lost the start race to the other participant; both wanted the
			// same outcome.
			return s.GetSession(ctx, actorID, sessionID)
		}
		return nil, err
	}
	return started, nil
}

// CompleteSession ends an active call. The termination reason is derived
// from which participant hung up; the server measures elapsed minutes at
// this moment so the capture engine never depends on client clocks.
func (s *CallService) CompleteSession(ctx context.Context, actorID, sessionID int64) (*models.CallSession, error) {
	session, err := s.GetSession(ctx, actorID, sessionID)
	if err != nil {
		return nil, err
	}

	reason := models.EndedBySpeaker
	if actorID == session.CompanionID {
		reason = models.EndedByCompanion
	}
	return s.complete(ctx, session, reason)
}

// ExpireSession completes an active session with reason timeout. Invoked by
// the live-call watchdog when the committed duration runs out; a session the
// participants already completed is left untouched.
func (s *CallService) ExpireSession(ctx context.Context, sessionID int64) (*models.CallSession, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if session.Status != models.SessionActive {
		return session, nil
	}
	return s.complete(ctx, session, models.EndedByTimeout)
}

func (s *CallService) complete(ctx context.Context, session *models.CallSession, reason models.EndedReason) (*models.CallSession, error) {
	if session.Status != models.SessionActive {
		if session.Status == models.SessionCompleted {
			return session, nil
		}
		return nil, fmt.Errorf("%w: session is %s, not active", ErrInvalidStateTransition, session.Status)
	}

	var billedMinutes *int
	if session.StartedAt != nil {
		if ms := s.now().Sub(*session.StartedAt).Milliseconds(); ms > 0 {
			minutes := int((ms + 59999) / 60000)
			billedMinutes = &minutes
		}
	}

	completed, err := s.sessions.CompleteIfActive(ctx, session.ID, reason, billedMinutes)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Both participants hung up at once; whoever won the CAS decided
			// the reason. Return the stored completion.
			stored, readErr := s.sessions.GetByID(ctx, session.ID)
			if readErr != nil {
				return nil, readErr
			}
			if stored.Status == models.SessionCompleted {
				return stored, nil
			}
			return nil, fmt.Errorf("%w: session is %s, not active", ErrInvalidStateTransition, stored.Status)
		}
		return nil, err
	}
	return completed, nil
}

// CancelSession voids a session that never went live. The hold, if any, is
// left to lapse at the processor when the authorization window closes.
func (s *CallService) CancelSession(ctx context.Context, actorID, sessionID int64) (*models.CallSession, error) {
	session, err := s.GetSession(ctx, actorID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionPending && session.Status != models.SessionReserved {
		return nil, fmt.Errorf("%w: session is %s", ErrInvalidStateTransition, session.Status)
	}

	cancelled, err := s.sessions.UpdateStatusIfCurrent(ctx, sessionID, session.Status, models.SessionCancelled)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: session state changed", ErrInvalidStateTransition)
		}
		return nil, err
	}
	return cancelled, nil
}

// MaterializeFromOffer turns a held offer into its reserved session. The
// offer row is locked for the duration so the session is created and the
// offer consumed in one transaction; calling it again for a consumed offer
// returns the existing session.
func (s *CallService) MaterializeFromOffer(ctx context.Context, offer *models.Offer) (*models.CallSession, error) {
	if offer == nil || !offer.HasAuthorization() || offer.SpeakerID == nil {
		return nil, fmt.Errorf("%w: offer has no authorization", ErrFailedPrecondition)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txSessions := repository.NewCallSessionRepository(tx)
	txOffers := repository.NewOfferRepository(tx)

	locked, err := txOffers.GetByIDForUpdate(ctx, offer.ID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if locked.SessionID != nil {
		return s.sessions.GetByID(ctx, *locked.SessionID)
	}
	if locked.Status != models.OfferPendingReview {
		return nil, fmt.Errorf("%w: offer is %s", ErrFailedPrecondition, locked.Status)
	}

	session, err := txSessions.Create(ctx, repository.CreateCallSessionInput{
		SpeakerID:       *locked.SpeakerID,
		CompanionID:     locked.CompanionID,
		OfferID:         &locked.ID,
		PriceMinor:      locked.HeldAmountMinor,
		DurationMinutes: locked.DurationMinutes,
		Currency:        locked.Currency,
		HoldKey:         locked.HoldKey,
		Status:          models.SessionPending,
	})
	if err != nil {
		return nil, err
	}

	reserved, err := txSessions.SetHoldIfAbsent(ctx, session.ID, repository.HoldInput{
		PaymentIntentID: *locked.PaymentIntentID,
		IntentStatus:    derefString(locked.IntentStatus),
		HeldAmountMinor: locked.HeldAmountMinor,
	})
	if err != nil {
		return nil, err
	}

	if _, err := txOffers.MarkUsed(ctx, locked.ID, reserved.ID); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return reserved, nil
}

func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
