package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"choraid-server/config"
	"choraid-server/database"
	"choraid-server/jobs"
	"choraid-server/middleware"
	"choraid-server/routes"
	"choraid-server/services"
	"choraid-server/telemetry"
	ws "choraid-server/websocket"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "choraid-server",
		Short:         "Choraid marketplace API server",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := database.Initialize(cfg.Database); err != nil {
				return err
			}
			return database.Close(database.DB)
		},
	})

	var adminEmail, adminName, adminPassword string
	seed := &cobra.Command{
		Use:   "seed",
		Short: "Insert the default categories and optionally an admin account",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := database.Initialize(cfg.Database); err != nil {
				return err
			}
			defer database.Close(database.DB)

			if _, err := database.SeedCategories(database.DB); err != nil {
				return err
			}
			if adminEmail == "" {
				return nil
			}
			auth := services.NewAuthService(database.DB, services.NewJWTService(database.DB, cfg.JWT))
			_, err = auth.EnsureAdmin(cmd.Context(), adminName, adminEmail, adminPassword)
			return err
		},
	}
	seed.Flags().StringVar(&adminEmail, "admin-email", "", "email of an admin account to create or promote")
	seed.Flags().StringVar(&adminName, "admin-name", "Administrator", "full name of the admin account")
	seed.Flags().StringVar(&adminPassword, "admin-password", os.Getenv("ADMIN_PASSWORD"), "password of the admin account")
	root.AddCommand(seed)

	return root
}

func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	gin.SetMode(cfg.Server.GinMode)

	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.Telemetry)
	if err != nil {
		log.Printf("⚠️ Tracing disabled: %v", err)
		shutdownTracer = func(context.Context) error { return nil }
	}

	if err := database.Initialize(cfg.Database); err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	db := database.GetDB()
	defer database.Close(db)

	var broker services.EventPublisher = services.NoopPublisher{}
	if cfg.RabbitMQ.URL != "" {
		rp, err := services.NewRabbitPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange)
		if err != nil {
			log.Printf("⚠️ RabbitMQ unavailable, events will not be published: %v", err)
		} else {
			broker = rp
			log.Printf("✅ Publishing events to exchange %s", cfg.RabbitMQ.Exchange)
		}
	}

	hub := ws.NewHub()
	events := ws.NewJobBroadcaster(hub, broker)
	defer events.Close()

	notifier := services.NewNotificationService(db, hub)
	opts := services.MarketplaceOptions{
		CommissionRate: cfg.Marketplace.CommissionRate,
		Currency:       cfg.Stripe.Currency,
		JobTTL:         cfg.Marketplace.JobTTL,
	}

	jwtService := services.NewJWTService(db, cfg.JWT)
	authService := services.NewAuthService(db, jwtService)

	var verifier services.IdentityVerifier
	if sv, err := services.NewSupabaseVerifier(cfg.Supabase.URL, cfg.Supabase.Key); err == nil {
		verifier = sv
		log.Println("✅ Supabase access tokens accepted")
	} else if !errors.Is(err, services.ErrDisabled) {
		return err
	}

	var uploader services.MediaUploader
	if cu, err := services.NewCloudinaryUploader(cfg.Cloudinary.URL, cfg.Cloudinary.Folder); err == nil {
		uploader = cu
	} else if !errors.Is(err, services.ErrDisabled) {
		return err
	} else {
		log.Println("⚠️ CLOUDINARY_URL not set, verification uploads disabled")
	}

	llm, err := services.NewLLM(cfg.LLM)
	if err != nil {
		return err
	}
	if llm == nil {
		log.Println("⚠️ No LLM configured, worker ranking uses the heuristic")
	} else {
		log.Printf("🤖 Using %s (%s) for ranking and tips", llm.Name(), cfg.LLM.Model)
	}
	matching, err := services.NewMatchingService(db, llm, cfg.LLM.MaxCandidates)
	if err != nil {
		return err
	}

	intents := services.NewStripeIntents(cfg.Stripe.SecretKey)
	if intents == nil {
		log.Println("⚠️ STRIPE_SECRET_KEY not set, payments disabled")
	}

	jobService := services.NewJobService(db, notifier, events, opts)
	limiter := middleware.NewRateLimiter()

	router := routes.NewRouter(routes.Deps{
		DB:            db,
		Auth:          authService,
		JWT:           jwtService,
		Verifier:      verifier,
		Jobs:          jobService,
		Applications:  services.NewApplicationService(db, notifier, events, opts),
		Bookings:      services.NewBookingService(db, notifier, events, opts),
		Payments:      services.NewPaymentService(db, notifier, events, intents, cfg.Stripe.WebhookSecret),
		Reviews:       services.NewReviewService(db, notifier, events),
		Workers:       services.NewWorkerService(db, uploader),
		Analytics:     services.NewWorkerAnalyticsService(db),
		Matching:      matching,
		Notifications: notifier,
		Admin:         services.NewAdminService(db, notifier),
		Hub:           hub,
		RateLimiter:   limiter,
		CORSOrigins:   cfg.Server.CORSOrigins,
	})

	go hub.Run(ctx)
	go limiter.RunCleanup(ctx, 10*time.Minute)

	runner := jobs.NewRunner(jobService, jwtService, cfg.Marketplace.ExpirationInterval, 24*time.Hour)
	runner.Start(ctx)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("🚀 Choraid server listening on :%s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Println("🛑 Shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("⚠️ HTTP shutdown: %v", err)
	}
	stop()
	runner.Wait()
	if err := shutdownTracer(shutdownCtx); err != nil {
		log.Printf("⚠️ Tracer shutdown: %v", err)
	}
	log.Println("✅ Server stopped")
	return nil
}
