package conversation

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicops/scheduling-agent/internal/appointment"
	"github.com/clinicops/scheduling-agent/internal/ledger"
	"github.com/clinicops/scheduling-agent/internal/notify"
	"github.com/clinicops/scheduling-agent/internal/patients"
	"github.com/clinicops/scheduling-agent/internal/reminder"
	"github.com/clinicops/scheduling-agent/internal/schedule"
)

type fixture struct {
	orch      *Orchestrator
	slots     *schedule.MemoryStore
	coord     *schedule.Coordinator
	directory *patients.MemoryDirectory
	ledger    *ledger.MemoryLedger
	jobs      *reminder.MemoryStore
	sms       *notify.StubSMSSender
	email     *notify.StubEmailSender
}

func visitDay(hour, minute int) time.Time {
	return time.Date(2031, time.March, 10, hour, minute, 0, 0, time.UTC)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	slots := schedule.NewMemoryStore()
	coord := schedule.NewCoordinator(slots, nil, nil)
	directory := patients.NewMemoryDirectory()
	lg := ledger.NewMemoryLedger()
	jobs := reminder.NewMemoryStore()
	sms := notify.NewStubSMSSender(nil)
	email := notify.NewStubEmailSender(nil)
	sched := reminder.NewScheduler(jobs, sms, "MediCare Allergy & Wellness Center", "UTC", nil, nil)
	sched.Start()
	t.Cleanup(sched.Stop)
	machine := appointment.NewStateMachine(coord, lg, sched, sms, email, "MediCare Allergy & Wellness Center", "", nil)

	orch := NewOrchestrator(
		NewMemorySessionStore(), directory, coord, machine, NewRegexParser(),
		Options{
			ClinicName:         "MediCare Allergy & Wellness Center",
			DefaultCountryCode: "+91",
			CandidateLimit:     5,
			Timezone:           "UTC",
		}, nil, nil)

	return &fixture{
		orch: orch, slots: slots, coord: coord, directory: directory,
		ledger: lg, jobs: jobs, sms: sms, email: email,
	}
}

func (f *fixture) seedMorning(provider string) {
	for _, hm := range [][2]int{{9, 0}, {9, 30}, {10, 0}, {10, 30}, {11, 0}, {11, 30}} {
		f.slots.Seed(schedule.Slot{Provider: provider, Start: visitDay(hm[0], hm[1]), Available: true})
	}
}

func TestFullBookingFlowForNewPatient(t *testing.T) {
	f := newFixture(t)
	f.seedMorning("dr-asha-rao")
	ctx := context.Background()

	replies, err := f.orch.HandleTurn(ctx, "s-1", "")
	require.NoError(t, err)
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0], "welcome to MediCare Allergy & Wellness Center")

	replies, err = f.orch.HandleTurn(ctx, "s-1", "Priya Sharma, 1990-06-15, 98765 43210, priya@example.com")
	require.NoError(t, err)
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0], "registered you as a new patient")
	assert.Contains(t, replies[0], "60-minute")

	replies, err = f.orch.HandleTurn(ctx, "s-1", "I'd like to see Dr. Asha Rao on 2031-03-10")
	require.NoError(t, err)
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0], "1. 09:00")
	assert.Contains(t, replies[0], "5. 11:00")
	assert.NotContains(t, replies[0], "6.", "candidates are capped at five")

	replies, err = f.orch.HandleTurn(ctx, "s-1", "2")
	require.NoError(t, err)
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0], "confirmed for Monday, 10 March 2031 at 09:30")
	assert.Contains(t, replies[0], "arrive 10 minutes early")

	// Exactly one confirmation SMS and one email went out.
	require.Len(t, f.sms.Messages(), 1)
	assert.Equal(t, "+919876543210", f.sms.Messages()[0].To)
	require.Len(t, f.email.Messages(), 1)
	assert.Equal(t, "priya@example.com", f.email.Messages()[0].To)

	// Both reminder jobs registered at the right offsets.
	start := visitDay(9, 30)
	pending, err := f.jobs.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, start.Add(-24*time.Hour), pending[0].FireAt)
	assert.Equal(t, start.Add(-3*time.Hour), pending[1].FireAt)

	// One ledger row for the export.
	entries := f.ledger.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "Priya", entries[0].FirstName)
	assert.Equal(t, start, entries[0].Start)

	// A 60-minute visit holds both half-hour blocks.
	var taken int
	for _, s := range f.slots.Snapshot("dr-asha-rao") {
		if !s.Available {
			taken++
		}
	}
	assert.Equal(t, 2, taken)

	// The conversation is finished; further messages just restate it.
	replies, err = f.orch.HandleTurn(ctx, "s-1", "thanks!")
	require.NoError(t, err)
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0], "all booked")
}

func TestReturningPatientGetsStandardVisit(t *testing.T) {
	f := newFixture(t)
	f.seedMorning("dr-asha-rao")
	ctx := context.Background()
	dob := time.Date(1990, time.June, 15, 0, 0, 0, 0, time.UTC)
	_, err := f.directory.Create(ctx, &patients.CreatePatientRequest{
		FirstName: "Priya", LastName: "Sharma", DOB: dob, Phone: "+919876543210",
	})
	require.NoError(t, err)

	_, err = f.orch.HandleTurn(ctx, "s-2", "")
	require.NoError(t, err)
	replies, err := f.orch.HandleTurn(ctx, "s-2", "Priya Sharma, 1990-06-15, 98765 43210")
	require.NoError(t, err)
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0], "Welcome back, Priya")

	replies, err = f.orch.HandleTurn(ctx, "s-2", "Dr. Asha Rao on 2031-03-10")
	require.NoError(t, err)
	require.Len(t, replies, 1)
	// All six half-hour starts qualify for a standard visit; capped at 5.
	assert.Contains(t, replies[0], "5. 11:00")

	_, err = f.orch.HandleTurn(ctx, "s-2", "option 1")
	require.NoError(t, err)

	var taken int
	for _, s := range f.slots.Snapshot("dr-asha-rao") {
		if !s.Available {
			taken++
		}
	}
	assert.Equal(t, 1, taken, "a returning patient books a single block")
}

func TestIntakeRepromptsForMissingFields(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.orch.HandleTurn(ctx, "s-3", "")
	require.NoError(t, err)

	replies, err := f.orch.HandleTurn(ctx, "s-3", "Priya Sharma")
	require.NoError(t, err)
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0], "date of birth")
	assert.Contains(t, replies[0], "phone number")
	assert.NotContains(t, replies[0], "full name")

	replies, err = f.orch.HandleTurn(ctx, "s-3", "1990-06-15 and 98765 43210")
	require.NoError(t, err)
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0], "registered you as a new patient")
}

func TestGreetingIsNotRepeated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.orch.HandleTurn(ctx, "s-4", "")
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := f.orch.HandleTurn(ctx, "s-4", "hello?")
	require.NoError(t, err)
	for _, msg := range second {
		assert.NotContains(t, msg, "welcome to", "greeting must not repeat")
	}
}

func TestUnmatchedSelectionRepromptsWithCandidatesIntact(t *testing.T) {
	f := newFixture(t)
	f.seedMorning("dr-asha-rao")
	ctx := context.Background()

	_, err := f.orch.HandleTurn(ctx, "s-5", "")
	require.NoError(t, err)
	_, err = f.orch.HandleTurn(ctx, "s-5", "Priya Sharma, 1990-06-15, 98765 43210")
	require.NoError(t, err)
	_, err = f.orch.HandleTurn(ctx, "s-5", "Dr. Asha Rao on 2031-03-10")
	require.NoError(t, err)

	replies, err := f.orch.HandleTurn(ctx, "s-5", "whenever works")
	require.NoError(t, err)
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0], "couldn't match")
	assert.Contains(t, replies[0], "1. 09:00")

	// The draft survived; a valid pick still works.
	replies, err = f.orch.HandleTurn(ctx, "s-5", "1")
	require.NoError(t, err)
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0], "confirmed")
}

func TestConflictReentersSchedulingWithFreshCandidates(t *testing.T) {
	f := newFixture(t)
	f.seedMorning("dr-asha-rao")
	ctx := context.Background()

	_, err := f.orch.HandleTurn(ctx, "s-6", "")
	require.NoError(t, err)
	_, err = f.orch.HandleTurn(ctx, "s-6", "Priya Sharma, 1990-06-15, 98765 43210")
	require.NoError(t, err)
	_, err = f.orch.HandleTurn(ctx, "s-6", "Dr. Asha Rao on 2031-03-10")
	require.NoError(t, err)

	// Someone else grabs 09:00 and 09:30 before the reply lands.
	_, err = f.slots.Reserve(ctx, "dr-asha-rao", []time.Time{visitDay(9, 0), visitDay(9, 30)}, 99)
	require.NoError(t, err)

	replies, err := f.orch.HandleTurn(ctx, "s-6", "1")
	require.NoError(t, err)
	require.Len(t, replies, 2)
	assert.Contains(t, replies[0], "just taken")
	assert.Contains(t, replies[1], "available times")
	assert.NotContains(t, replies[1], "09:00", "taken slot must not be offered again")

	assert.Empty(t, f.sms.Messages(), "no confirmation may go out on a conflict")
	assert.Empty(t, f.ledger.All())

	// Picking from the fresh list completes the booking.
	replies, err = f.orch.HandleTurn(ctx, "s-6", "1")
	require.NoError(t, err)
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0], "confirmed for Monday, 10 March 2031 at 10:00")
}

func TestNoAvailabilityAsksForAnotherDate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.orch.HandleTurn(ctx, "s-7", "")
	require.NoError(t, err)
	_, err = f.orch.HandleTurn(ctx, "s-7", "Priya Sharma, 1990-06-15, 98765 43210")
	require.NoError(t, err)

	replies, err := f.orch.HandleTurn(ctx, "s-7", "Dr. Asha Rao on 2031-03-10")
	require.NoError(t, err)
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0], "no open")
	assert.Contains(t, replies[0], "another date")
}

func TestMessageLogIsAppendOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.orch.HandleTurn(ctx, "s-8", "")
	require.NoError(t, err)
	state, err := f.orch.sessions.Load(ctx, "s-8")
	require.NoError(t, err)
	logged := make([]Message, len(state.Messages))
	copy(logged, state.Messages)

	_, err = f.orch.HandleTurn(ctx, "s-8", "Priya Sharma, 1990-06-15, 98765 43210")
	require.NoError(t, err)
	after, err := f.orch.sessions.Load(ctx, "s-8")
	require.NoError(t, err)

	require.Greater(t, len(after.Messages), len(logged))
	for i, m := range logged {
		assert.Equal(t, m.Role, after.Messages[i].Role)
		assert.Equal(t, m.Body, after.Messages[i].Body)
	}
	sawPatientMsg := false
	for _, m := range after.Messages {
		if m.Role == RolePatient && strings.Contains(m.Body, "Priya Sharma") {
			sawPatientMsg = true
		}
	}
	assert.True(t, sawPatientMsg)
}
