package models

import "time"

// SpeakerBillingProfile holds the speaker's link to the payment processor.
// Created lazily the first time a vault or hold call touches the speaker.
// CardBrand/CardLast4 are display metadata only, never used for charging.
type SpeakerBillingProfile struct {
	UserID                 int64      `json:"user_id"`
	CustomerID             *string    `json:"customer_id"`
	DefaultPaymentMethodID *string    `json:"default_payment_method_id"`
	CardBrand              *string    `json:"card_brand"`
	CardLast4              *string    `json:"card_last4"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at"`
}

func (p *SpeakerBillingProfile) HasInstrument() bool {
	return p != nil &&
		p.CustomerID != nil && *p.CustomerID != "" &&
		p.DefaultPaymentMethodID != nil && *p.DefaultPaymentMethodID != ""
}

// CompanionPayoutProfile tracks the companion's payout account and its
// readiness flags. Flags are only ever copied from an explicit processor
// status query, never inferred locally.
type CompanionPayoutProfile struct {
	UserID            int64      `json:"user_id"`
	AccountID         *string    `json:"account_id"`
	DetailsSubmitted  bool       `json:"details_submitted"`
	PayoutsEnabled    bool       `json:"payouts_enabled"`
	ChargesEnabled    bool       `json:"charges_enabled"`
	StatusRefreshedAt *time.Time `json:"status_refreshed_at"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

func (p *CompanionPayoutProfile) HasAccount() bool {
	return p != nil && p.AccountID != nil && *p.AccountID != ""
}
