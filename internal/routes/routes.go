package routes

import (
	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alejandrovsynergy-netizen/lissen-mvp/internal/config"
	"github.com/alejandrovsynergy-netizen/lissen-mvp/internal/handlers"
	"github.com/alejandrovsynergy-netizen/lissen-mvp/internal/middleware"
	"github.com/alejandrovsynergy-netizen/lissen-mvp/internal/processor"
	"github.com/alejandrovsynergy-netizen/lissen-mvp/internal/repository"
	"github.com/alejandrovsynergy-netizen/lissen-mvp/internal/services"
	callws "github.com/alejandrovsynergy-netizen/lissen-mvp/internal/websocket"
)

func RegisterRoutes(app *fiber.App, cfg *config.Config, db *pgxpool.Pool) {
	userRepo := repository.NewUserRepository(db)
	speakerRepo := repository.NewSpeakerBillingRepository(db)
	companionRepo := repository.NewCompanionPayoutRepository(db)
	sessionRepo := repository.NewCallSessionRepository(db)
	offerRepo := repository.NewOfferRepository(db)

	stripe := processor.NewStripeClient(cfg.StripeAPIBase, cfg.StripeSecretKey)

	callService := services.NewCallService(db, sessionRepo, offerRepo, userRepo)
	offerService := services.NewOfferService(offerRepo)
	vaultService := services.NewVaultService(userRepo, speakerRepo, stripe)
	payoutService := services.NewPayoutService(
		userRepo,
		companionRepo,
		stripe,
		cfg.PayoutReturnURL,
		cfg.PayoutRefreshURL,
	)
	holdService := services.NewHoldService(sessionRepo, offerRepo, speakerRepo, callService, stripe)
	captureService := services.NewCaptureService(sessionRepo, stripe)

	hub := callws.NewHub(callService)
	go hub.Run()

	authHandler := handlers.NewAuthHandler(db, userRepo, speakerRepo, companionRepo, cfg.JWTSecret)
	vaultHandler := handlers.NewVaultHandler(vaultService)
	sessionHandler := handlers.NewSessionHandler(callService, holdService, captureService, hub)
	offerHandler := handlers.NewOfferHandler(offerService, holdService)
	payoutHandler := handlers.NewPayoutHandler(payoutService)
	wsHandler := handlers.NewWSHandler(callService, hub, cfg.JWTSecret)

	api := app.Group("/api")

	auth := api.Group("/auth")
	auth.Post("/register", authHandler.Register)
	auth.Post("/login", authHandler.Login)
	auth.Get("/me", middleware.AuthRequired(cfg.JWTSecret), authHandler.Me)

	protected := api.Group("/v1", middleware.AuthRequired(cfg.JWTSecret))

	vault := protected.Group("/vault")
	vault.Post("/instruments/begin", vaultHandler.BeginRegistration)
	vault.Post("/instruments/finalize", vaultHandler.FinalizeRegistration)
	vault.Delete("/instruments/default", vaultHandler.RemoveInstrument)

	sessions := protected.Group("/sessions")
	sessions.Post("", sessionHandler.Create)
	sessions.Get("", sessionHandler.List)
	sessions.Get("/:id", sessionHandler.Get)
	sessions.Post("/:id/hold", sessionHandler.Hold)
	sessions.Post("/:id/start", sessionHandler.Start)
	sessions.Post("/:id/complete", sessionHandler.Complete)
	sessions.Post("/:id/capture", sessionHandler.Capture)
	sessions.Post("/:id/cancel", sessionHandler.Cancel)

	offers := protected.Group("/offers")
	offers.Post("", offerHandler.Create)
	offers.Get("", offerHandler.List)
	offers.Get("/:id", offerHandler.Get)
	offers.Post("/:id/accept", offerHandler.Accept)
	offers.Post("/:id/withdraw", offerHandler.Withdraw)

	payout := protected.Group("/payout")
	payout.Post("/onboarding", payoutHandler.BeginOnboarding)
	payout.Post("/refresh", payoutHandler.RefreshStatus)
	payout.Post("/dashboard-login", payoutHandler.DashboardLogin)

	api.Use("/v1/ws/sessions/:id", wsHandler.Upgrade)
	api.Get("/v1/ws/sessions/:id", websocket.New(wsHandler.HandleSession))
}
