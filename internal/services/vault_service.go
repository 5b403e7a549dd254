package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/alejandrovsynergy-netizen/lissen-mvp/internal/models"
	"github.com/alejandrovsynergy-netizen/lissen-mvp/internal/processor"
)

type userReader interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
}

type speakerProfileStore interface {
	Ensure(ctx context.Context, userID int64) (*models.SpeakerBillingProfile, error)
	GetByUserID(ctx context.Context, userID int64) (*models.SpeakerBillingProfile, error)
	SetCustomerIDIfAbsent(ctx context.Context, userID int64, customerID string) (*models.SpeakerBillingProfile, error)
	SetDefaultInstrument(ctx context.Context, userID int64, paymentMethodID, brand, last4 string) (*models.SpeakerBillingProfile, error)
	ClearDefaultInstrument(ctx context.Context, userID int64) (*models.SpeakerBillingProfile, error)
}

type vaultProcessor interface {
	CreateCustomer(ctx context.Context, email string) (*processor.Customer, error)
	CreateEphemeralKey(ctx context.Context, customerID string) (*processor.EphemeralKey, error)
	CreateSetupIntent(ctx context.Context, customerID string) (*processor.SetupIntent, error)
	GetSetupIntent(ctx context.Context, id string) (*processor.SetupIntent, error)
	GetPaymentMethod(ctx context.Context, id string) (*processor.PaymentMethod, error)
	DetachPaymentMethod(ctx context.Context, id string) error
}

// VaultService registers a speaker's reusable payment instrument with the
// processor and tracks the default instrument locally.
type VaultService struct {
	users     userReader
	speakers  speakerProfileStore
	processor vaultProcessor
}

func NewVaultService(users userReader, speakers speakerProfileStore, proc vaultProcessor) *VaultService {
	return &VaultService{users: users, speakers: speakers, processor: proc}
}

type InstrumentRegistration struct {
	CustomerID              string `json:"customer_id"`
	EphemeralKeySecret      string `json:"ephemeral_key_secret"`
	SetupIntentID           string `json:"setup_intent_id"`
	SetupIntentClientSecret string `json:"setup_intent_client_secret"`
}

type InstrumentSummary struct {
	PaymentMethodID string `json:"payment_method_id"`
	Brand           string `json:"brand"`
	Last4           string `json:"last4"`
}

// BeginInstrumentRegistration makes sure a processor customer exists for the
// speaker (creating one lazily on first call) and issues the short-lived
// client credential plus a setup handle for the mobile client to confirm.
func (s *VaultService) BeginInstrumentRegistration(ctx context.Context, userID int64) (*InstrumentRegistration, error) {
	profile, err := s.speakers.Ensure(ctx, userID)
	if err != nil {
		return nil, err
	}

	customerID := ""
	if profile.CustomerID != nil {
		customerID = *profile.CustomerID
	}
	if customerID == "" {
		user, err := s.users.GetByID(ctx, userID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, ErrNotFound
			}
			return nil, err
		}
		customer, err := s.processor.CreateCustomer(ctx, user.Email)
		if err != nil {
			return nil, wrapProcessorErr(err)
		}
		if _, err := s.speakers.SetCustomerIDIfAbsent(ctx, userID, customer.ID); err != nil {
			if !errors.Is(err, pgx.ErrNoRows) {
				return nil, err
			}
			// A concurrent registration assigned a customer first; use that
			// one and let the orphan created here be cleaned up by the
			// processor's dashboard tooling.
			stored, readErr := s.speakers.GetByUserID(ctx, userID)
			if readErr != nil {
				return nil, readErr
			}
			if stored.CustomerID == nil || *stored.CustomerID == "" {
				return nil, fmt.Errorf("%w: customer registration raced and left no customer", ErrFailedPrecondition)
			}
			customer.ID = *stored.CustomerID
		}
		customerID = customer.ID
	}

	key, err := s.processor.CreateEphemeralKey(ctx, customerID)
	if err != nil {
		return nil, wrapProcessorErr(err)
	}
	setupIntent, err := s.processor.CreateSetupIntent(ctx, customerID)
	if err != nil {
		return nil, wrapProcessorErr(err)
	}

	return &InstrumentRegistration{
		CustomerID:              customerID,
		EphemeralKeySecret:      key.Secret,
		SetupIntentID:           setupIntent.ID,
		SetupIntentClientSecret: setupIntent.ClientSecret,
	}, nil
}

// FinalizeInstrumentRegistration resolves a confirmed setup handle to its
// payment method and persists it as the speaker's default, with brand and
// last4 kept for display.
func (s *VaultService) FinalizeInstrumentRegistration(ctx context.Context, userID int64, setupIntentID string) (*InstrumentSummary, error) {
	setupIntentID = strings.TrimSpace(setupIntentID)
	if setupIntentID == "" || !strings.HasPrefix(setupIntentID, "seti_") {
		return nil, fmt.Errorf("%w: setup handle is missing or malformed", ErrInvalidInput)
	}

	profile, err := s.speakers.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: no customer record; begin registration first", ErrFailedPrecondition)
		}
		return nil, err
	}
	if profile.CustomerID == nil || *profile.CustomerID == "" {
		return nil, fmt.Errorf("%w: no customer record; begin registration first", ErrFailedPrecondition)
	}

	setupIntent, err := s.processor.GetSetupIntent(ctx, setupIntentID)
	if err != nil {
		return nil, wrapProcessorErr(err)
	}
	if setupIntent.PaymentMethodID == "" {
		return nil, fmt.Errorf("%w: setup handle has no attached instrument", ErrFailedPrecondition)
	}

	method, err := s.processor.GetPaymentMethod(ctx, setupIntent.PaymentMethodID)
	if err != nil {
		return nil, wrapProcessorErr(err)
	}

	if _, err := s.speakers.SetDefaultInstrument(ctx, userID, method.ID, method.Brand, method.Last4); err != nil {
		return nil, err
	}

	return &InstrumentSummary{
		PaymentMethodID: method.ID,
		Brand:           method.Brand,
		Last4:           method.Last4,
	}, nil
}

// RemoveDefaultInstrument detaches the default instrument at the processor
// and clears it locally. Already-empty state is a successful no-op.
func (s *VaultService) RemoveDefaultInstrument(ctx context.Context, userID int64) error {
	profile, err := s.speakers.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return err
	}
	if profile.DefaultPaymentMethodID == nil || *profile.DefaultPaymentMethodID == "" {
		return nil
	}

	if err := s.processor.DetachPaymentMethod(ctx, *profile.DefaultPaymentMethodID); err != nil {
		// An instrument that is already detached at the processor should not
		// block clearing the local record.
		var apiErr *processor.APIError
		if !errors.As(err, &apiErr) {
			return err
		}
	}

	_, err = s.speakers.ClearDefaultInstrument(ctx, userID)
	return err
}
