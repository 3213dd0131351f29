package appointment

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/clinicops/scheduling-agent/internal/ledger"
	"github.com/clinicops/scheduling-agent/internal/notify"
	"github.com/clinicops/scheduling-agent/internal/patients"
	"github.com/clinicops/scheduling-agent/internal/reminder"
	"github.com/clinicops/scheduling-agent/internal/schedule"
	"github.com/clinicops/scheduling-agent/pkg/logging"
)

var machineTracer = otel.Tracer("clinicops.internal.appointment")

// SlotReserver books slots atomically. Satisfied by schedule.Coordinator.
type SlotReserver interface {
	Reserve(ctx context.Context, provider string, start time.Time, patientID int, d schedule.Duration) (schedule.ReserveResult, error)
}

// ReminderPlanner registers deferred reminders for a confirmed booking.
type ReminderPlanner interface {
	Schedule(ctx context.Context, b reminder.Booking) error
}

// FinalizeReport says which confirmation side effects actually went out.
// Delivery failures are informational; the booking stands either way.
type FinalizeReport struct {
	Start     time.Time
	SMSSent   bool
	EmailSent bool
}

// StateMachine drives a draft from proposed to confirmed or conflicted.
type StateMachine struct {
	reserver       SlotReserver
	ledger         ledger.Ledger
	reminders      ReminderPlanner
	sms            notify.SMSSender
	email          notify.EmailSender
	clinicName     string
	intakeFormPath string
	logger         *logging.Logger
}

// NewStateMachine wires the confirmation flow. Reserver and ledger are
// required; senders and the reminder planner may be nil when a channel is
// not configured.
func NewStateMachine(
	reserver SlotReserver,
	lg ledger.Ledger,
	reminders ReminderPlanner,
	sms notify.SMSSender,
	email notify.EmailSender,
	clinicName string,
	intakeFormPath string,
	logger *logging.Logger,
) *StateMachine {
	if reserver == nil {
		panic("appointment: reserver required")
	}
	if lg == nil {
		panic("appointment: ledger required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &StateMachine{
		reserver:       reserver,
		ledger:         lg,
		reminders:      reminders,
		sms:            sms,
		email:          email,
		clinicName:     clinicName,
		intakeFormPath: intakeFormPath,
		logger:         logger,
	}
}

// ResolveSelection maps a patient's reply onto one of the presented
// candidates. Resolution order: option index, then a normalized time
// token matched exactly, then the same-hour fallback for on-the-hour
// requests. Anything else is a ValidationError.
func ResolveSelection(utterance string, candidates []time.Time) (time.Time, error) {
	if len(candidates) == 0 {
		return time.Time{}, &ValidationError{Reason: "no candidates to choose from"}
	}

	if idx, ok := ExtractOptionIndex(utterance, len(candidates)); ok {
		return candidates[idx-1], nil
	}

	token := strings.TrimSpace(utterance)
	normalized, err := NormalizeTimeToken(token)
	if err != nil {
		scanned, ok := ExtractTimeToken(utterance)
		if !ok {
			return time.Time{}, &ValidationError{Reason: fmt.Sprintf("could not read a selection from %q", utterance)}
		}
		normalized, err = NormalizeTimeToken(scanned)
		if err != nil {
			return time.Time{}, err
		}
	}

	for _, c := range candidates {
		if c.Format("15:04") == normalized {
			return c, nil
		}
	}

	// On-the-hour requests fall back to the same hour: :00 first, then
	// :30, then the earliest remaining minute.
	if strings.HasSuffix(normalized, ":00") {
		hour := normalized[:2]
		var sameHour []time.Time
		for _, c := range candidates {
			if c.Format("15") == hour {
				sameHour = append(sameHour, c)
			}
		}
		if len(sameHour) > 0 {
			for _, c := range sameHour {
				if c.Minute() == 30 {
					return c, nil
				}
			}
			best := sameHour[0]
			for _, c := range sameHour[1:] {
				if c.Minute() < best.Minute() {
					best = c
				}
			}
			return best, nil
		}
	}

	return time.Time{}, &ValidationError{Reason: fmt.Sprintf("%s is not among the offered times", normalized)}
}

// Confirm resolves the patient's selection, reserves the slots, and runs
// the confirmation side effects exactly once. On a lost race the draft
// moves to conflicted with its candidates cleared and ErrConflict is
// returned; the caller re-queries availability.
func (m *StateMachine) Confirm(ctx context.Context, appt *Appointment, patient *patients.Patient, utterance string) (*FinalizeReport, error) {
	if appt.Status != StatusProposed {
		return nil, &ValidationError{Reason: fmt.Sprintf("draft is %s, not awaiting a selection", appt.Status)}
	}

	start, err := ResolveSelection(utterance, appt.Candidates)
	if err != nil {
		return nil, err
	}

	ctx, span := machineTracer.Start(ctx, "appointment.confirm")
	defer span.End()
	span.SetAttributes(
		attribute.Int("clinicops.patient_id", appt.PatientID),
		attribute.String("clinicops.provider", appt.Provider),
	)

	result, err := m.reserver.Reserve(ctx, appt.Provider, start, appt.PatientID, appt.Duration)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	switch result.Outcome {
	case schedule.OutcomeReserved:
	case schedule.OutcomeConflict, schedule.OutcomeNotFound:
		appt.Status = StatusConflicted
		appt.Candidates = nil
		return nil, ErrConflict
	default:
		return nil, fmt.Errorf("appointment: unexpected reserve outcome %q", result.Outcome)
	}

	appt.Start = result.Slots[0].Start
	appt.Status = StatusConfirmed
	appt.Candidates = nil

	report := &FinalizeReport{Start: appt.Start}
	if appt.Finalized {
		return report, nil
	}
	appt.Finalized = true
	m.finalize(ctx, appt, patient, report)
	return report, nil
}

// finalize runs the post-reservation side effects. The ledger write is the
// only one allowed to fail the confirmation; delivery problems are logged
// and reported, never propagated.
func (m *StateMachine) finalize(ctx context.Context, appt *Appointment, patient *patients.Patient, report *FinalizeReport) {
	if _, err := m.ledger.Append(ctx, ledger.Entry{
		PatientID: appt.PatientID,
		FirstName: patient.FirstName,
		LastName:  patient.LastName,
		Provider:  appt.Provider,
		Start:     appt.Start,
		Duration:  string(appt.Duration),
	}); err != nil {
		m.logger.Error("ledger append failed", "error", err, "patient_id", appt.PatientID)
	}

	when := appt.Start.Format("Monday, 2 January 2006 at 15:04")
	body := fmt.Sprintf("Hi %s, your appointment with %s at %s is confirmed for %s. Reply here if anything changes.",
		patient.FirstName, providerDisplayName(appt.Provider), m.clinicName, when)

	if m.sms != nil && patient.Phone != "" {
		if _, err := m.sms.SendSMS(ctx, patient.Phone, body); err != nil {
			m.logger.Error("confirmation sms failed", "error", err, "patient_id", appt.PatientID)
		} else {
			report.SMSSent = true
		}
	}

	if m.email != nil && patient.Email != "" {
		msg := notify.EmailMessage{
			To:      patient.Email,
			ToName:  patient.FullName(),
			Subject: fmt.Sprintf("Appointment confirmed - %s", when),
			Body:    body,
		}
		if att := m.loadIntakeForm(appt); att != nil {
			msg.Attachment = att
			msg.Body += "\n\nPlease fill in the attached intake form before your visit."
		}
		if err := m.email.Send(ctx, msg); err != nil {
			m.logger.Error("confirmation email failed", "error", err, "patient_id", appt.PatientID)
		} else {
			report.EmailSent = true
		}
	}

	if m.reminders != nil {
		err := m.reminders.Schedule(ctx, reminder.Booking{
			PatientID:   appt.PatientID,
			PatientName: patient.FullName(),
			Phone:       patient.Phone,
			Provider:    appt.Provider,
			Start:       appt.Start,
			NewPatient:  appt.Duration == schedule.DurationExtended,
		})
		if err != nil {
			m.logger.Error("reminder scheduling failed", "error", err, "patient_id", appt.PatientID)
		}
	}
}

// loadIntakeForm reads the configured intake form for extended (new
// patient) visits. Missing file just means no attachment.
func (m *StateMachine) loadIntakeForm(appt *Appointment) *notify.Attachment {
	if m.intakeFormPath == "" || appt.Duration != schedule.DurationExtended {
		return nil
	}
	data, err := os.ReadFile(m.intakeFormPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			m.logger.Warn("intake form unreadable", "path", m.intakeFormPath, "error", err)
		}
		return nil
	}
	return &notify.Attachment{
		Filename:    filepath.Base(m.intakeFormPath),
		ContentType: "application/pdf",
		Data:        data,
	}
}

func providerDisplayName(provider string) string {
	name := strings.ReplaceAll(provider, "-", " ")
	words := strings.Fields(name)
	for i, w := range words {
		if w == "dr" {
			words[i] = "Dr."
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
