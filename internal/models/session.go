package models

import "time"

type SessionStatus string

const (
	SessionPending   SessionStatus = "pending"   // created, waiting for the hold
	SessionReserved  SessionStatus = "reserved"  // funds held, call not started
	SessionActive    SessionStatus = "active"    // call in progress
	SessionCompleted SessionStatus = "completed" // terminal, capture may run
	SessionCancelled SessionStatus = "cancelled" // terminal, never billed
)

// EndedReason records who or what terminated a completed session. It drives
// the billable-minutes policy: a companion hangup caps their compensation at
// a ten minute floor, while a speaker hangup or a timeout bills the full
// committed duration.
type EndedReason string

const (
	EndedBySpeaker   EndedReason = "by_speaker"
	EndedByCompanion EndedReason = "by_companion"
	EndedByTimeout   EndedReason = "timeout"
)

// ParseSessionStatus validates a client-supplied status string, such as the
// list filter query parameter.
func ParseSessionStatus(value string) (SessionStatus, bool) {
	switch SessionStatus(value) {
	case SessionPending, SessionReserved, SessionActive, SessionCompleted, SessionCancelled:
		return SessionStatus(value), true
	default:
		return "", false
	}
}

// CallSession is one billable engagement between a speaker and a companion.
//
// PriceMinor and DurationMinutes are committed at creation and define the
// hold ceiling and the proportional-billing denominator. Hold fields are set
// once by the hold authorizer, billing fields once on completion, capture
// fields exactly once by the capture engine.
type CallSession struct {
	ID              int64         `json:"id"`
	SpeakerID       int64         `json:"speaker_id"`
	CompanionID     int64         `json:"companion_id"`
	OfferID         *int64        `json:"offer_id,omitempty"`
	PriceMinor      int64         `json:"price_minor"`
	DurationMinutes int           `json:"duration_minutes"`
	Currency        string        `json:"currency"`
	Status          SessionStatus `json:"status"`

	// HoldKey is generated once at creation and sent to the processor as the
	// idempotency key for authorization, so a re-sent authorize call lands on
	// the same payment intent instead of opening a second hold.
	HoldKey         string     `json:"-"`
	PaymentIntentID *string    `json:"payment_intent_id,omitempty"`
	IntentStatus    *string    `json:"intent_status,omitempty"`
	HeldAmountMinor int64      `json:"held_amount_minor"`
	AuthorizedAt    *time.Time `json:"authorized_at,omitempty"`

	StartedAt     *time.Time   `json:"started_at,omitempty"`
	CompletedAt   *time.Time   `json:"completed_at,omitempty"`
	EndedReason   *EndedReason `json:"ended_reason,omitempty"`
	BilledMinutes *int         `json:"billed_minutes,omitempty"`

	Captured            bool       `json:"captured"`
	AmountCapturedMinor int64      `json:"amount_captured_minor"`
	CapturedAt          *time.Time `json:"captured_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s *CallSession) IsParticipant(userID int64) bool {
	return s != nil && (s.SpeakerID == userID || s.CompanionID == userID)
}

func (s *CallSession) HasAuthorization() bool {
	return s != nil && s.PaymentIntentID != nil && *s.PaymentIntentID != ""
}
