// The reminder worker rebuilds and dispatches reminder jobs independently
// of the API process. On start it re-registers reminders for every upcoming
// confirmed appointment, recovers jobs persisted before the last shutdown,
// then waits with armed timers until terminated.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	appconfig "github.com/clinicops/scheduling-agent/internal/config"
	"github.com/clinicops/scheduling-agent/internal/ledger"
	"github.com/clinicops/scheduling-agent/internal/notify"
	"github.com/clinicops/scheduling-agent/internal/patients"
	"github.com/clinicops/scheduling-agent/internal/reminder"
	"github.com/clinicops/scheduling-agent/internal/schedule"
	"github.com/clinicops/scheduling-agent/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting reminder worker", "env", cfg.Env)

	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}

	ctx := context.Background()
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

	jobStore := reminder.NewPostgresStore(pool)
	directory := patients.NewPostgresDirectory(pool)
	apptLog := ledger.NewPostgresLedger(pool)

	var smsSender notify.SMSSender
	if cfg.TwilioAccountSID != "" && cfg.TwilioAuthToken != "" {
		smsSender = notify.NewTwilioSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber, logger)
	} else {
		logger.Warn("Twilio not configured, SMS delivery is stubbed")
		smsSender = notify.NewStubSMSSender(logger)
	}

	scheduler := reminder.NewScheduler(jobStore, smsSender, cfg.ClinicName, cfg.LocalTimezone, nil, logger)
	scheduler.Start()
	defer scheduler.Stop()

	if err := rebuildFromLedger(ctx, apptLog, directory, scheduler, logger); err != nil {
		logger.Error("ledger rebuild failed", "error", err)
	}
	if err := scheduler.Recover(ctx); err != nil {
		logger.Error("reminder recovery failed", "error", err)
	}

	logger.Info("reminder worker ready")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("reminder worker stopped")
}

// rebuildFromLedger re-registers reminders for upcoming appointments. The
// job key is deterministic and sent jobs are never resurrected, so replaying
// the whole ledger is safe.
func rebuildFromLedger(
	ctx context.Context,
	apptLog ledger.Ledger,
	directory patients.Directory,
	scheduler *reminder.Scheduler,
	logger *logging.Logger,
) error {
	entries, err := apptLog.ListUpcoming(ctx, time.Now())
	if err != nil {
		return err
	}
	for _, e := range entries {
		patient, err := directory.Get(ctx, e.PatientID)
		if err != nil {
			logger.Warn("skipping ledger entry without patient record",
				"patient_id", e.PatientID, "error", err)
			continue
		}
		booking := reminder.Booking{
			PatientID:   e.PatientID,
			PatientName: e.FirstName + " " + e.LastName,
			Phone:       patient.Phone,
			Provider:    e.Provider,
			Start:       e.Start,
			NewPatient:  e.Duration == string(schedule.DurationExtended),
		}
		if err := scheduler.Schedule(ctx, booking); err != nil {
			logger.Warn("failed to reschedule reminders",
				"patient_id", e.PatientID, "start", e.Start, "error", err)
		}
	}
	logger.Info("ledger rebuild complete", "appointments", len(entries))
	return nil
}
