package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/clinicops/scheduling-agent/internal/api/router"
	"github.com/clinicops/scheduling-agent/internal/appointment"
	appconfig "github.com/clinicops/scheduling-agent/internal/config"
	"github.com/clinicops/scheduling-agent/internal/conversation"
	"github.com/clinicops/scheduling-agent/internal/ledger"
	"github.com/clinicops/scheduling-agent/internal/notify"
	"github.com/clinicops/scheduling-agent/internal/observability/metrics"
	"github.com/clinicops/scheduling-agent/internal/patients"
	"github.com/clinicops/scheduling-agent/internal/reminder"
	"github.com/clinicops/scheduling-agent/internal/schedule"
	"github.com/clinicops/scheduling-agent/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting scheduling-agent API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()

	// Storage: Postgres when configured, in-memory for local development.
	var (
		slotStore schedule.Store
		directory patients.Directory
		apptLog   ledger.Ledger
		jobStore  reminder.JobStore
	)
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to create pgx pool", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		if err := pool.Ping(ctx); err != nil {
			logger.Error("failed to reach database", "error", err)
			os.Exit(1)
		}
		slotStore = schedule.NewPostgresStore(pool)
		directory = patients.NewPostgresDirectory(pool)
		apptLog = ledger.NewPostgresLedger(pool)
		jobStore = reminder.NewPostgresStore(pool)
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory stores")
		memSlots := schedule.NewMemoryStore()
		seedDevSlots(memSlots, cfg.LocalTimezone)
		slotStore = memSlots
		directory = patients.NewMemoryDirectory()
		apptLog = ledger.NewMemoryLedger()
		jobStore = reminder.NewMemoryStore()
	}

	// Sessions: Redis when configured, otherwise process-local.
	var sessions conversation.SessionStore
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Error("failed to reach redis", "error", err)
			os.Exit(1)
		}
		sessions = conversation.NewRedisSessionStore(client, cfg.SessionTTL)
	} else {
		logger.Warn("REDIS_ADDR not set, sessions are process-local")
		sessions = conversation.NewMemorySessionStore()
	}

	registry := prometheus.NewRegistry()
	bookingMetrics := metrics.NewBookingMetrics(registry)

	var smsSender notify.SMSSender
	if cfg.TwilioAccountSID != "" && cfg.TwilioAuthToken != "" {
		smsSender = notify.NewTwilioSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber, logger)
	} else {
		logger.Warn("Twilio not configured, SMS delivery is stubbed")
		smsSender = notify.NewStubSMSSender(logger)
	}

	var emailSender notify.EmailSender
	if sg := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.SendGridFromEmail,
		FromName:  cfg.SendGridFromName,
	}, logger); sg != nil {
		emailSender = sg
	} else {
		logger.Warn("SendGrid not configured, email delivery is stubbed")
		emailSender = notify.NewStubEmailSender(logger)
	}

	coordinator := schedule.NewCoordinator(slotStore, logger, bookingMetrics)

	scheduler := reminder.NewScheduler(jobStore, smsSender, cfg.ClinicName, cfg.LocalTimezone, bookingMetrics, logger)
	scheduler.Start()
	defer scheduler.Stop()
	if err := scheduler.Recover(ctx); err != nil {
		logger.Error("reminder recovery failed", "error", err)
	}

	machine := appointment.NewStateMachine(
		coordinator, apptLog, scheduler, smsSender, emailSender,
		cfg.ClinicName, cfg.IntakeFormPath, logger,
	)

	orchestrator := conversation.NewOrchestrator(
		sessions, directory, coordinator, machine, nil,
		conversation.Options{
			ClinicName:         cfg.ClinicName,
			DefaultCountryCode: cfg.DefaultCountryCode,
			CandidateLimit:     cfg.CandidateLimit,
			Timezone:           cfg.LocalTimezone,
		},
		bookingMetrics, logger,
	)
	conversationHandler := conversation.NewHandler(orchestrator, logger)

	r := router.New(&router.Config{
		Logger:              logger,
		ConversationHandler: conversationHandler,
		MetricsHandler:      promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// seedDevSlots fills the in-memory store with two weeks of weekday
// half-hour slots so a fresh checkout can book appointments without a
// database.
func seedDevSlots(store *schedule.MemoryStore, timezone string) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		loc = time.UTC
	}
	now := time.Now().In(loc)
	for day := 1; day <= 14; day++ {
		date := now.AddDate(0, 0, day)
		if date.Weekday() == time.Saturday || date.Weekday() == time.Sunday {
			continue
		}
		for hour := 9; hour < 17; hour++ {
			for _, minute := range []int{0, 30} {
				store.Seed(schedule.Slot{
					Provider:  "dr-asha-rao",
					Start:     time.Date(date.Year(), date.Month(), date.Day(), hour, minute, 0, 0, loc),
					Available: true,
				})
			}
		}
	}
}
