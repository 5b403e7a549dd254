package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/alejandrovsynergy-netizen/lissen-mvp/internal/models"
	"github.com/alejandrovsynergy-netizen/lissen-mvp/internal/services"
)

type stubVault struct {
	registration *services.InstrumentRegistration
	summary      *services.InstrumentSummary
	err          error
	lastSetupID  string
	removed      int
}

func (s *stubVault) BeginInstrumentRegistration(_ context.Context, _ int64) (*services.InstrumentRegistration, error) {
	return s.registration, s.err
}

func (s *stubVault) FinalizeInstrumentRegistration(_ context.Context, _ int64, setupIntentID string) (*services.InstrumentSummary, error) {
	s.lastSetupID = setupIntentID
	return s.summary, s.err
}

func (s *stubVault) RemoveDefaultInstrument(_ context.Context, _ int64) error {
	s.removed++
	return s.err
}

func vaultTestApp(handler *VaultHandler) *fiber.App {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user_id", "1")
		c.Locals("role", models.RoleSpeaker)
		return c.Next()
	})
	vault := app.Group("/api/v1/vault")
	vault.Post("/instruments/begin", handler.BeginRegistration)
	vault.Post("/instruments/finalize", handler.FinalizeRegistration)
	vault.Delete("/instruments/default", handler.RemoveInstrument)
	return app
}

func TestBeginRegistrationReturnsClientMaterial(t *testing.T) {
	vault := &stubVault{registration: &services.InstrumentRegistration{
		CustomerID:              "cus_1",
		EphemeralKeySecret:      "ek_secret",
		SetupIntentID:           "seti_1",
		SetupIntentClientSecret: "seti_secret",
	}}
	app := vaultTestApp(&VaultHandler{vault: vault})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/vault/instruments/begin", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var payload services.InstrumentRegistration
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.CustomerID != "cus_1" || payload.SetupIntentClientSecret != "seti_secret" {
		t.Errorf("payload = %+v", payload)
	}
}

func TestFinalizeRegistrationPassesSetupHandle(t *testing.T) {
	vault := &stubVault{summary: &services.InstrumentSummary{PaymentMethodID: "pm_9", Brand: "visa", Last4: "4242"}}
	app := vaultTestApp(&VaultHandler{vault: vault})

	body := `{"setup_intent_id":"  seti_1  "}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/vault/instruments/finalize", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if vault.lastSetupID != "seti_1" {
		t.Errorf("setup id = %q, want trimmed seti_1", vault.lastSetupID)
	}
}

func TestFinalizeRegistrationMapsInvalidInput(t *testing.T) {
	vault := &stubVault{err: services.ErrInvalidInput}
	app := vaultTestApp(&VaultHandler{vault: vault})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/vault/instruments/finalize", strings.NewReader(`{"setup_intent_id":"nope"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestRemoveInstrument(t *testing.T) {
	vault := &stubVault{}
	app := vaultTestApp(&VaultHandler{vault: vault})

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/vault/instruments/default", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if vault.removed != 1 {
		t.Errorf("remove calls = %d, want 1", vault.removed)
	}
}
