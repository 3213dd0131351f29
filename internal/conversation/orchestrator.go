package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/clinicops/scheduling-agent/internal/appointment"
	"github.com/clinicops/scheduling-agent/internal/notify"
	"github.com/clinicops/scheduling-agent/internal/patients"
	"github.com/clinicops/scheduling-agent/internal/schedule"
	"github.com/clinicops/scheduling-agent/pkg/logging"
)

// TurnObserver receives per-turn metrics.
type TurnObserver interface {
	ObserveTurn(stage, status string, elapsed time.Duration)
}

type noopObserver struct{}

func (noopObserver) ObserveTurn(string, string, time.Duration) {}

// SlotQuerier lists bookable candidates. Satisfied by schedule.Coordinator.
type SlotQuerier interface {
	Query(ctx context.Context, provider string, from, to time.Time, d schedule.Duration, limit int) ([]schedule.Slot, error)
}

// Orchestrator walks one session at a time through greeting, intake,
// lookup, scheduling, and confirmation. Every stage is re-entrant: a
// replayed turn re-reads its flags instead of redoing its work.
type Orchestrator struct {
	sessions  SessionStore
	directory patients.Directory
	querier   SlotQuerier
	machine   *appointment.StateMachine
	parser    UtteranceParser

	clinicName         string
	defaultCountryCode string
	candidateLimit     int
	loc                *time.Location
	logger             *logging.Logger
	observer           TurnObserver

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Options carries the knobs the orchestrator reads from configuration.
type Options struct {
	ClinicName         string
	DefaultCountryCode string
	CandidateLimit     int
	Timezone           string
}

// NewOrchestrator wires the conversation flow.
func NewOrchestrator(
	sessions SessionStore,
	directory patients.Directory,
	querier SlotQuerier,
	machine *appointment.StateMachine,
	parser UtteranceParser,
	opts Options,
	observer TurnObserver,
	logger *logging.Logger,
) *Orchestrator {
	if sessions == nil {
		panic("conversation: session store required")
	}
	if directory == nil {
		panic("conversation: patient directory required")
	}
	if querier == nil {
		panic("conversation: slot querier required")
	}
	if machine == nil {
		panic("conversation: state machine required")
	}
	if parser == nil {
		parser = NewRegexParser()
	}
	if observer == nil {
		observer = noopObserver{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	if opts.CandidateLimit <= 0 {
		opts.CandidateLimit = 5
	}
	loc, err := time.LoadLocation(opts.Timezone)
	if err != nil {
		logger.Warn("unknown timezone, using UTC", "timezone", opts.Timezone)
		loc = time.UTC
	}
	return &Orchestrator{
		sessions:           sessions,
		directory:          directory,
		querier:            querier,
		machine:            machine,
		parser:             parser,
		clinicName:         opts.ClinicName,
		defaultCountryCode: opts.DefaultCountryCode,
		candidateLimit:     opts.CandidateLimit,
		loc:                loc,
		logger:             logger,
		observer:           observer,
		locks:              make(map[string]*sync.Mutex),
	}
}

func (o *Orchestrator) sessionLock(sessionID string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	lock, ok := o.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		o.locks[sessionID] = lock
	}
	return lock
}

// HandleTurn processes one inbound patient message and returns the
// assistant replies produced by this turn, in order.
func (o *Orchestrator) HandleTurn(ctx context.Context, sessionID, inbound string) ([]string, error) {
	started := time.Now()
	lock := o.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	state, err := o.sessions.Load(ctx, sessionID)
	if errors.Is(err, ErrSessionNotFound) {
		state = NewState(sessionID)
	} else if err != nil {
		return nil, err
	}

	inbound = strings.TrimSpace(inbound)
	if inbound != "" {
		state.append(RolePatient, inbound)
	}
	stageAtEntry := string(state.Stage)

	o.run(ctx, state, inbound)

	outbound := state.drainOutbound()
	if err := o.sessions.Save(ctx, state); err != nil {
		return nil, err
	}
	o.observer.ObserveTurn(stageAtEntry, string(state.Stage), time.Since(started))
	return outbound, nil
}

// run advances the state machine until a stage needs patient input. The
// inbound message is consumed by exactly one stage.
func (o *Orchestrator) run(ctx context.Context, state *State, inbound string) {
	input := inbound
	for range [8]int{} {
		var proceed, consumed bool
		switch state.Stage {
		case StageGreeting:
			proceed = o.stageGreeting(state)
		case StageIntake:
			proceed, consumed = o.stageIntake(state, input)
		case StageLookup:
			proceed = o.stageLookup(ctx, state)
		case StageSchedule:
			proceed, consumed = o.stageSchedule(ctx, state, input)
		case StageConfirm:
			proceed, consumed = o.stageConfirm(ctx, state, input)
		case StageDone:
			o.stageDone(state, input)
		default:
			o.logger.Error("unknown stage", "stage", state.Stage, "session_id", state.SessionID)
			return
		}
		if consumed {
			input = ""
		}
		if !proceed {
			return
		}
	}
}

// stageGreeting greets exactly once and hands the same message to intake,
// so a first turn that already carries identity details is not wasted.
func (o *Orchestrator) stageGreeting(state *State) bool {
	if !state.Greeted {
		state.append(RoleAssistant, fmt.Sprintf(
			"Hello, welcome to %s. I can help you book an appointment. Could you share your full name, date of birth (YYYY-MM-DD), and phone number?",
			o.clinicName))
		state.Greeted = true
	}
	state.Stage = StageIntake
	return true
}

func (o *Orchestrator) stageIntake(state *State, input string) (proceed, consumed bool) {
	if input != "" {
		o.mergeIdentity(state, input)
		consumed = true
	}

	missing := o.missingIntakeFields(state)
	if len(missing) == 0 {
		state.IntakeDone = true
		state.Stage = StageLookup
		return true, consumed
	}
	if input != "" {
		state.append(RoleAssistant, fmt.Sprintf(
			"Thanks. I still need your %s to find your record.", strings.Join(missing, " and ")))
	}
	return false, consumed
}

// mergeIdentity folds parsed fields into the draft, sanitizing contact
// points at this one boundary.
func (o *Orchestrator) mergeIdentity(state *State, input string) {
	id := o.parser.ParseIdentity(input)
	if state.Draft.FirstName == "" && id.FirstName != "" {
		state.Draft.FirstName = id.FirstName
		state.Draft.LastName = id.LastName
	}
	if state.Draft.DOB == "" && id.HasDOB {
		state.Draft.DOB = id.DOB.Format("2006-01-02")
	}
	if state.Draft.Phone == "" && id.Phone != "" {
		phone, err := notify.SanitizePhone(id.Phone, o.defaultCountryCode)
		if err != nil {
			state.append(RoleAssistant, "That phone number doesn't look right. Could you send it again, ideally with the country code?")
		} else {
			state.Draft.Phone = phone
		}
	}
	if state.Draft.Email == "" && id.Email != "" {
		email, err := notify.SanitizeEmail(id.Email)
		if err != nil {
			state.append(RoleAssistant, "That email address doesn't look right. Could you check it?")
		} else {
			state.Draft.Email = email
		}
	}
}

func (o *Orchestrator) missingIntakeFields(state *State) []string {
	var missing []string
	if state.Draft.FirstName == "" || state.Draft.LastName == "" {
		missing = append(missing, "full name")
	}
	if state.Draft.DOB == "" {
		missing = append(missing, "date of birth (YYYY-MM-DD)")
	}
	if state.Draft.Phone == "" {
		missing = append(missing, "phone number")
	}
	return missing
}

// stageLookup resolves the draft against the directory: a miss registers
// a new patient rather than failing the conversation.
func (o *Orchestrator) stageLookup(ctx context.Context, state *State) bool {
	if state.PatientID != 0 {
		state.Stage = StageSchedule
		return true
	}

	dob, err := time.Parse("2006-01-02", state.Draft.DOB)
	if err != nil {
		state.Draft.DOB = ""
		state.IntakeDone = false
		state.Stage = StageIntake
		state.append(RoleAssistant, "I couldn't read that date of birth. Could you send it as YYYY-MM-DD?")
		return false
	}

	found, err := o.directory.Find(ctx, state.Draft.FirstName, state.Draft.LastName, dob)
	switch {
	case err == nil:
		state.PatientID = found.ID
		existing := false
		state.NewPatient = &existing
		if state.Draft.Phone != "" && state.Draft.Phone != found.Phone {
			if err := o.directory.UpdateContact(ctx, found.ID, state.Draft.Phone, pickEmail(state.Draft.Email, found.Email)); err != nil {
				o.logger.Error("contact update failed", "error", err, "patient_id", found.ID)
			}
		}
		state.append(RoleAssistant, fmt.Sprintf("Welcome back, %s. Which doctor would you like to see, and on what date? (e.g. Dr. Asha Rao on 2031-03-10)", found.FirstName))
	case errors.Is(err, patients.ErrPatientNotFound):
		created, createErr := o.directory.Create(ctx, &patients.CreatePatientRequest{
			FirstName: state.Draft.FirstName,
			LastName:  state.Draft.LastName,
			DOB:       dob,
			Phone:     state.Draft.Phone,
			Email:     state.Draft.Email,
		})
		if createErr != nil {
			o.logger.Error("patient create failed", "error", createErr, "session_id", state.SessionID)
			state.append(RoleAssistant, "Something went wrong on our side. Please try again in a moment.")
			return false
		}
		state.PatientID = created.ID
		isNew := true
		state.NewPatient = &isNew
		state.append(RoleAssistant, fmt.Sprintf(
			"I've registered you as a new patient, %s. Your first visit is a 60-minute appointment. Which doctor would you like to see, and on what date? (e.g. Dr. Asha Rao on 2031-03-10)",
			created.FirstName))
	default:
		o.logger.Error("patient lookup failed", "error", err, "session_id", state.SessionID)
		state.append(RoleAssistant, "Something went wrong on our side. Please try again in a moment.")
		return false
	}

	state.Stage = StageSchedule
	return false
}

func pickEmail(draft, existing string) string {
	if draft != "" {
		return draft
	}
	return existing
}

func (o *Orchestrator) visitDuration(state *State) schedule.Duration {
	isNew := state.NewPatient != nil && *state.NewPatient
	return schedule.DurationForPatient(isNew)
}

// stageSchedule collects provider and date, then proposes candidates.
func (o *Orchestrator) stageSchedule(ctx context.Context, state *State, input string) (proceed, consumed bool) {
	if state.Provider == "" || state.VisitDate == "" {
		if input == "" {
			return false, false
		}
		consumed = true
		req, ok := o.parser.ParseScheduleRequest(input)
		if !ok {
			state.append(RoleAssistant, "Which doctor would you like to see, and on what date? (e.g. Dr. Asha Rao on 2031-03-10)")
			return false, consumed
		}
		state.Provider = req.Provider
		state.VisitDate = req.Date.Format("2006-01-02")
	}

	date, err := time.ParseInLocation("2006-01-02", state.VisitDate, o.loc)
	if err != nil {
		state.Provider = ""
		state.VisitDate = ""
		state.append(RoleAssistant, "I couldn't read that date. Could you send it as YYYY-MM-DD?")
		return false, consumed
	}

	duration := o.visitDuration(state)
	candidates, err := o.querier.Query(ctx, state.Provider, date, date.AddDate(0, 0, 1), duration, o.candidateLimit)
	if err != nil {
		o.logger.Error("availability query failed", "error", err, "session_id", state.SessionID)
		state.append(RoleAssistant, "Something went wrong on our side. Please try again in a moment.")
		return false, consumed
	}
	if len(candidates) == 0 {
		state.append(RoleAssistant, fmt.Sprintf(
			"%s has no open %d-minute slots on %s. Would another date work?",
			providerTitle(state.Provider), duration.Minutes(), state.VisitDate))
		state.Provider = ""
		state.VisitDate = ""
		return false, consumed
	}

	starts := make([]time.Time, 0, len(candidates))
	for _, c := range candidates {
		starts = append(starts, c.Start)
	}
	state.Appointment = appointment.Propose(state.PatientID, state.Provider, duration, starts)
	state.append(RoleAssistant, formatCandidates(providerTitle(state.Provider), state.VisitDate, starts, o.loc))
	state.Stage = StageConfirm
	return false, consumed
}

// stageConfirm resolves the selection and books it.
func (o *Orchestrator) stageConfirm(ctx context.Context, state *State, input string) (proceed, consumed bool) {
	if input == "" {
		return false, false
	}
	consumed = true

	if state.Appointment == nil || state.Appointment.Status != appointment.StatusProposed {
		state.Stage = StageSchedule
		return true, consumed
	}

	patient, err := o.directory.Get(ctx, state.PatientID)
	if err != nil {
		o.logger.Error("patient fetch failed", "error", err, "session_id", state.SessionID)
		state.append(RoleAssistant, "Something went wrong on our side. Please try again in a moment.")
		return false, consumed
	}

	report, err := o.machine.Confirm(ctx, state.Appointment, patient, input)
	var verr *appointment.ValidationError
	switch {
	case errors.As(err, &verr):
		state.append(RoleAssistant, fmt.Sprintf(
			"Sorry, I couldn't match that to one of the offered times.\n%s",
			formatCandidates(providerTitle(state.Provider), state.VisitDate, state.Appointment.Candidates, o.loc)))
		return false, consumed
	case errors.Is(err, appointment.ErrConflict):
		state.append(RoleAssistant, "I'm sorry, that time was just taken. Let me check what's still open.")
		state.Appointment = nil
		// Conflict re-enters scheduling with a fresh query.
		state.Stage = StageSchedule
		return true, consumed
	case err != nil:
		o.logger.Error("confirmation failed", "error", err, "session_id", state.SessionID)
		state.append(RoleAssistant, "Something went wrong on our side. Please try again in a moment.")
		return false, consumed
	}

	local := report.Start.In(o.loc)
	msg := fmt.Sprintf("You're all set. Your appointment with %s is confirmed for %s at %s.",
		providerTitle(state.Provider), local.Format("Monday, 2 January 2006"), local.Format("15:04"))
	if state.NewPatient != nil && *state.NewPatient {
		msg += " Since it's your first visit, please arrive 10 minutes early."
	}
	msg += " We'll text you a reminder the day before and again a few hours ahead."
	state.append(RoleAssistant, msg)
	state.Stage = StageDone
	return false, consumed
}

func (o *Orchestrator) stageDone(state *State, input string) {
	if input == "" || state.Appointment == nil {
		return
	}
	local := state.Appointment.Start.In(o.loc)
	state.append(RoleAssistant, fmt.Sprintf("You're all booked for %s at %s. See you then!",
		local.Format("Monday, 2 January 2006"), local.Format("15:04")))
}

func formatCandidates(provider, date string, starts []time.Time, loc *time.Location) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Here are the available times with %s on %s:\n", provider, date)
	for i, s := range starts {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, s.In(loc).Format("15:04"))
	}
	sb.WriteString("Reply with the number of your preferred time.")
	return sb.String()
}

func providerTitle(provider string) string {
	words := strings.Split(provider, "-")
	for i, w := range words {
		if w == "" {
			continue
		}
		if w == "dr" {
			words[i] = "Dr."
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
