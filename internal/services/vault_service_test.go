package services

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"

	"github.com/alejandrovsynergy-netizen/lissen-mvp/internal/models"
	"github.com/alejandrovsynergy-netizen/lissen-mvp/internal/processor"
)

type stubUsers struct {
	users map[int64]*models.User
}

func (s *stubUsers) GetByID(_ context.Context, id int64) (*models.User, error) {
	user, ok := s.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return user, nil
}

type stubSpeakerStore struct {
	profile    *models.SpeakerBillingProfile
	cleared    bool
	defaultSet []string
}

func (s *stubSpeakerStore) Ensure(_ context.Context, userID int64) (*models.SpeakerBillingProfile, error) {
	if s.profile == nil {
		s.profile = &models.SpeakerBillingProfile{UserID: userID}
	}
	return s.profile, nil
}

func (s *stubSpeakerStore) GetByUserID(_ context.Context, _ int64) (*models.SpeakerBillingProfile, error) {
	if s.profile == nil {
		return nil, pgx.ErrNoRows
	}
	return s.profile, nil
}

func (s *stubSpeakerStore) SetCustomerIDIfAbsent(_ context.Context, _ int64, customerID string) (*models.SpeakerBillingProfile, error) {
	s.profile.CustomerID = &customerID
	return s.profile, nil
}

func (s *stubSpeakerStore) SetDefaultInstrument(_ context.Context, _ int64, paymentMethodID, brand, last4 string) (*models.SpeakerBillingProfile, error) {
	s.defaultSet = append(s.defaultSet, paymentMethodID)
	s.profile.DefaultPaymentMethodID = &paymentMethodID
	s.profile.CardBrand = &brand
	s.profile.CardLast4 = &last4
	return s.profile, nil
}

func (s *stubSpeakerStore) ClearDefaultInstrument(_ context.Context, _ int64) (*models.SpeakerBillingProfile, error) {
	s.cleared = true
	s.profile.DefaultPaymentMethodID = nil
	s.profile.CardBrand = nil
	s.profile.CardLast4 = nil
	return s.profile, nil
}

type stubVaultProcessor struct {
	setupIntent     *processor.SetupIntent
	method          *processor.PaymentMethod
	detachErr       error
	customersMade   int
	detached        []string
}

func (p *stubVaultProcessor) CreateCustomer(_ context.Context, email string) (*processor.Customer, error) {
	p.customersMade++
	return &processor.Customer{ID: "cus_new", Email: email}, nil
}

func (p *stubVaultProcessor) CreateEphemeralKey(_ context.Context, customerID string) (*processor.EphemeralKey, error) {
	return &processor.EphemeralKey{ID: "ek_1", Secret: "ek_secret_" + customerID}, nil
}

func (p *stubVaultProcessor) CreateSetupIntent(_ context.Context, customerID string) (*processor.SetupIntent, error) {
	return &processor.SetupIntent{ID: "seti_1", CustomerID: customerID, ClientSecret: "seti_secret"}, nil
}

func (p *stubVaultProcessor) GetSetupIntent(_ context.Context, id string) (*processor.SetupIntent, error) {
	if p.setupIntent == nil {
		return &processor.SetupIntent{ID: id}, nil
	}
	return p.setupIntent, nil
}

func (p *stubVaultProcessor) GetPaymentMethod(_ context.Context, id string) (*processor.PaymentMethod, error) {
	if p.method == nil {
		return &processor.PaymentMethod{ID: id}, nil
	}
	return p.method, nil
}

func (p *stubVaultProcessor) DetachPaymentMethod(_ context.Context, id string) error {
	p.detached = append(p.detached, id)
	return p.detachErr
}

func TestBeginInstrumentRegistrationCreatesCustomerOnce(t *testing.T) {
	users := &stubUsers{users: map[int64]*models.User{1: {ID: 1, Email: "s@example.com"}}}
	store := &stubSpeakerStore{}
	proc := &stubVaultProcessor{}
	svc := NewVaultService(users, store, proc)

	first, err := svc.BeginInstrumentRegistration(context.Background(), 1)
	if err != nil {
		t.Fatalf("BeginInstrumentRegistration: %v", err)
	}
	if first.CustomerID != "cus_new" {
		t.Errorf("CustomerID = %q", first.CustomerID)
	}
	if first.SetupIntentClientSecret == "" || first.EphemeralKeySecret == "" {
		t.Errorf("missing client material: %+v", first)
	}

	second, err := svc.BeginInstrumentRegistration(context.Background(), 1)
	if err != nil {
		t.Fatalf("second BeginInstrumentRegistration: %v", err)
	}
	if second.CustomerID != "cus_new" {
		t.Errorf("second CustomerID = %q, want the stored customer", second.CustomerID)
	}
	if proc.customersMade != 1 {
		t.Errorf("customers created = %d, want 1", proc.customersMade)
	}
}

func TestBeginInstrumentRegistrationCustomerRace(t *testing.T) {
	users := &stubUsers{users: map[int64]*models.User{1: {ID: 1, Email: "s@example.com"}}}
	winner := "cus_winner"
	store := &stubSpeakerStore{
		profile: &models.SpeakerBillingProfile{UserID: 1, CustomerID: &winner},
	}

	svc := NewVaultService(users, &raceSpeakerStore{inner: store}, &stubVaultProcessor{})

	result, err := svc.BeginInstrumentRegistration(context.Background(), 1)
	if err != nil {
		t.Fatalf("BeginInstrumentRegistration: %v", err)
	}
	if result.CustomerID != "cus_winner" {
		t.Errorf("CustomerID = %q, want the winner's customer", result.CustomerID)
	}
}

// raceSpeakerStore reports no customer to Ensure but the winner's profile on
// re-read, mimicking a concurrent registration landing between the two.
type raceSpeakerStore struct {
	inner *stubSpeakerStore
}

func (s *raceSpeakerStore) Ensure(_ context.Context, userID int64) (*models.SpeakerBillingProfile, error) {
	return &models.SpeakerBillingProfile{UserID: userID}, nil
}

func (s *raceSpeakerStore) GetByUserID(ctx context.Context, userID int64) (*models.SpeakerBillingProfile, error) {
	return s.inner.GetByUserID(ctx, userID)
}

func (s *raceSpeakerStore) SetCustomerIDIfAbsent(_ context.Context, _ int64, _ string) (*models.SpeakerBillingProfile, error) {
	return nil, pgx.ErrNoRows
}

func (s *raceSpeakerStore) SetDefaultInstrument(ctx context.Context, userID int64, id, brand, last4 string) (*models.SpeakerBillingProfile, error) {
	return s.inner.SetDefaultInstrument(ctx, userID, id, brand, last4)
}

func (s *raceSpeakerStore) ClearDefaultInstrument(ctx context.Context, userID int64) (*models.SpeakerBillingProfile, error) {
	return s.inner.ClearDefaultInstrument(ctx, userID)
}

func TestFinalizeInstrumentRegistration(t *testing.T) {
	customerID := "cus_1"
	store := &stubSpeakerStore{profile: &models.SpeakerBillingProfile{UserID: 1, CustomerID: &customerID}}
	proc := &stubVaultProcessor{
		setupIntent: &processor.SetupIntent{ID: "seti_1", Status: "succeeded", PaymentMethodID: "pm_9"},
		method:      &processor.PaymentMethod{ID: "pm_9", Brand: "visa", Last4: "4242"},
	}
	svc := NewVaultService(&stubUsers{}, store, proc)

	summary, err := svc.FinalizeInstrumentRegistration(context.Background(), 1, "seti_1")
	if err != nil {
		t.Fatalf("FinalizeInstrumentRegistration: %v", err)
	}
	if summary.PaymentMethodID != "pm_9" || summary.Brand != "visa" || summary.Last4 != "4242" {
		t.Errorf("summary = %+v", summary)
	}
	if len(store.defaultSet) != 1 || store.defaultSet[0] != "pm_9" {
		t.Errorf("default instrument writes = %v", store.defaultSet)
	}
}

func TestFinalizeInstrumentRegistrationValidation(t *testing.T) {
	customerID := "cus_1"
	store := &stubSpeakerStore{profile: &models.SpeakerBillingProfile{UserID: 1, CustomerID: &customerID}}

	t.Run("malformed handle", func(t *testing.T) {
		svc := NewVaultService(&stubUsers{}, store, &stubVaultProcessor{})
		if _, err := svc.FinalizeInstrumentRegistration(context.Background(), 1, "pi_wrong"); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("no customer yet", func(t *testing.T) {
		svc := NewVaultService(&stubUsers{}, &stubSpeakerStore{profile: &models.SpeakerBillingProfile{UserID: 1}}, &stubVaultProcessor{})
		if _, err := svc.FinalizeInstrumentRegistration(context.Background(), 1, "seti_1"); !errors.Is(err, ErrFailedPrecondition) {
			t.Errorf("expected ErrFailedPrecondition, got %v", err)
		}
	})

	t.Run("unconfirmed setup handle", func(t *testing.T) {
		proc := &stubVaultProcessor{setupIntent: &processor.SetupIntent{ID: "seti_1", Status: "requires_payment_method"}}
		svc := NewVaultService(&stubUsers{}, store, proc)
		if _, err := svc.FinalizeInstrumentRegistration(context.Background(), 1, "seti_1"); !errors.Is(err, ErrFailedPrecondition) {
			t.Errorf("expected ErrFailedPrecondition, got %v", err)
		}
	})
}

func TestRemoveDefaultInstrument(t *testing.T) {
	t.Run("detaches and clears", func(t *testing.T) {
		customerID := "cus_1"
		methodID := "pm_9"
		store := &stubSpeakerStore{profile: &models.SpeakerBillingProfile{
			UserID:                 1,
			CustomerID:             &customerID,
			DefaultPaymentMethodID: &methodID,
		}}
		proc := &stubVaultProcessor{}
		svc := NewVaultService(&stubUsers{}, store, proc)

		if err := svc.RemoveDefaultInstrument(context.Background(), 1); err != nil {
			t.Fatalf("RemoveDefaultInstrument: %v", err)
		}
		if !store.cleared {
			t.Errorf("local default not cleared")
		}
		if len(proc.detached) != 1 || proc.detached[0] != "pm_9" {
			t.Errorf("detached = %v", proc.detached)
		}
	})

	t.Run("no instrument is a no-op", func(t *testing.T) {
		store := &stubSpeakerStore{profile: &models.SpeakerBillingProfile{UserID: 1}}
		svc := NewVaultService(&stubUsers{}, store, &stubVaultProcessor{})
		if err := svc.RemoveDefaultInstrument(context.Background(), 1); err != nil {
			t.Fatalf("expected no-op, got %v", err)
		}
		if store.cleared {
			t.Errorf("clear issued with nothing to clear")
		}
	})

	t.Run("already detached at processor still clears", func(t *testing.T) {
		methodID := "pm_9"
		store := &stubSpeakerStore{profile: &models.SpeakerBillingProfile{
			UserID:                 1,
			DefaultPaymentMethodID: &methodID,
		}}
		proc := &stubVaultProcessor{detachErr: &processor.APIError{
			StatusCode: 400,
			Message:    "The payment method you provided is not attached to a customer.",
		}}
		svc := NewVaultService(&stubUsers{}, store, proc)

		if err := svc.RemoveDefaultInstrument(context.Background(), 1); err != nil {
			t.Fatalf("RemoveDefaultInstrument: %v", err)
		}
		if !store.cleared {
			t.Errorf("local default not cleared after benign processor rejection")
		}
	})
}
