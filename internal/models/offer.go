package models

import "time"

type OfferStatus string

const (
	// OfferPendingReview is the only state that permits hold authorization.
	OfferPendingReview OfferStatus = "pending_review"
	// OfferUsed means a hold was authorized and a session materialized; the
	// offer's payment fields are immutable from here on.
	OfferUsed      OfferStatus = "used"
	OfferWithdrawn OfferStatus = "withdrawn"
)

// Offer is a companion's published call proposal awaiting a speaker.
// The committed amount is either flat (AmountMinor) or derived from
// duration times the per-minute rate. SessionID is a back-reference to the
// session materialized on acceptance, not an ownership link.
type Offer struct {
	ID                 int64       `json:"id"`
	CompanionID        int64       `json:"companion_id"`
	AmountMinor        *int64      `json:"amount_minor,omitempty"`
	RateMinorPerMinute *int64      `json:"rate_minor_per_minute,omitempty"`
	DurationMinutes    int         `json:"duration_minutes"`
	Currency           string      `json:"currency"`
	Status             OfferStatus `json:"status"`

	HoldKey         string  `json:"-"`
	SpeakerID       *int64  `json:"speaker_id,omitempty"`
	PaymentIntentID *string `json:"payment_intent_id,omitempty"`
	IntentStatus    *string `json:"intent_status,omitempty"`
	HeldAmountMinor int64   `json:"held_amount_minor"`
	SessionID       *int64  `json:"session_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CommittedAmountMinor resolves the offer price: the flat amount wins, else
// duration times the per-minute rate. Zero means the offer cannot be priced.
func (o *Offer) CommittedAmountMinor() int64 {
	if o == nil {
		return 0
	}
	if o.AmountMinor != nil && *o.AmountMinor > 0 {
		return *o.AmountMinor
	}
	if o.RateMinorPerMinute != nil && *o.RateMinorPerMinute > 0 && o.DurationMinutes > 0 {
		return *o.RateMinorPerMinute * int64(o.DurationMinutes)
	}
	return 0
}

func (o *Offer) HasAuthorization() bool {
	return o != nil && o.PaymentIntentID != nil && *o.PaymentIntentID != ""
}
