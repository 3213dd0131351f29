package reminder

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var apptStart = time.Date(2026, time.March, 10, 14, 0, 0, 0, time.UTC)

func testBooking() Booking {
	return Booking{
		PatientID:   7,
		PatientName: "Priya Sharma",
		Phone:       "+919876543210",
		Provider:    "Dr. Asha Rao",
		Start:       apptStart,
		NewPatient:  true,
	}
}

func newTestScheduler(t *testing.T, now time.Time) (*Scheduler, *MemoryStore, *stubSMS) {
	t.Helper()
	store := NewMemoryStore()
	sms := &stubSMS{}
	s := NewScheduler(store, sms, "MediCare Allergy & Wellness Center", "UTC", nil, nil)
	s.nowFn = func() time.Time { return now }
	s.Start()
	t.Cleanup(s.Stop)
	return s, store, sms
}

type stubSMS struct {
	sent []string
	to   []string
	fail bool
}

func (s *stubSMS) SendSMS(ctx context.Context, to, body string) (string, error) {
	if s.fail {
		return "", context.DeadlineExceeded
	}
	s.to = append(s.to, to)
	s.sent = append(s.sent, body)
	return "sid", nil
}

func TestScheduleRegistersBothOffsets(t *testing.T) {
	s, store, sms := newTestScheduler(t, apptStart.Add(-48*time.Hour))

	require.NoError(t, s.Schedule(context.Background(), testBooking()))

	pending, err := store.ListPending(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, KindOffsetDay, pending[0].Kind)
	assert.Equal(t, apptStart.Add(-24*time.Hour), pending[0].FireAt)
	assert.Equal(t, KindOffsetHours3, pending[1].Kind)
	assert.Equal(t, apptStart.Add(-3*time.Hour), pending[1].FireAt)
	assert.Empty(t, sms.sent, "nothing may go out before the fire time")
}

func TestScheduleTwiceReplacesInsteadOfDuplicating(t *testing.T) {
	s, store, _ := newTestScheduler(t, apptStart.Add(-48*time.Hour))
	ctx := context.Background()

	require.NoError(t, s.Schedule(ctx, testBooking()))
	updated := testBooking()
	updated.Phone = "+919999999999"
	require.NoError(t, s.Schedule(ctx, updated))

	pending, err := store.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	for _, j := range pending {
		assert.Equal(t, "+919999999999", j.Phone)
	}
}

func TestScheduleInsideThreeHourWindowSendsImmediately(t *testing.T) {
	s, store, sms := newTestScheduler(t, apptStart.Add(-90*time.Minute))

	require.NoError(t, s.Schedule(context.Background(), testBooking()))

	require.Len(t, sms.sent, 1)
	assert.Contains(t, sms.sent[0], "today at 14:00")
	assert.Contains(t, sms.sent[0], "intake form")

	job, ok, _ := store.Find(context.Background(), JobKey(7, apptStart, KindImmediate))
	require.True(t, ok)
	assert.Equal(t, StatusSent, job.Status)

	_, dayExists, _ := store.Find(context.Background(), JobKey(7, apptStart, KindOffsetDay))
	assert.False(t, dayExists, "day reminder is skipped once its window passed")
}

func TestScheduleDayReminderBodyOmitsIntakePromptForReturning(t *testing.T) {
	s, _, sms := newTestScheduler(t, apptStart.Add(-90*time.Minute))
	b := testBooking()
	b.NewPatient = false

	require.NoError(t, s.Schedule(context.Background(), b))
	require.Len(t, sms.sent, 1)
	assert.NotContains(t, sms.sent[0], "intake form")
}

func TestTimerFires(t *testing.T) {
	store := NewMemoryStore()
	sms := &stubSMS{}
	s := NewScheduler(store, sms, "MediCare Allergy & Wellness Center", "UTC", nil, nil)
	s.Start()
	defer s.Stop()

	job := Job{
		Key:       JobKey(7, apptStart, KindOffsetHours3),
		Kind:      KindOffsetHours3,
		PatientID: 7,
		Phone:     "+919876543210",
		Body:      "test reminder",
		Start:     apptStart,
		FireAt:    time.Now().Add(20 * time.Millisecond),
	}
	require.NoError(t, s.register(context.Background(), job))

	assert.Eventually(t, func() bool {
		j, ok, _ := store.Find(context.Background(), job.Key)
		return ok && j.Status == StatusSent
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"test reminder"}, sms.sent)
}

func TestDeliveryFailureMarksJobFailed(t *testing.T) {
	s, store, sms := newTestScheduler(t, apptStart.Add(-time.Hour))
	sms.fail = true

	require.NoError(t, s.Schedule(context.Background(), testBooking()))

	job, ok, _ := store.Find(context.Background(), JobKey(7, apptStart, KindImmediate))
	require.True(t, ok)
	assert.Equal(t, StatusFailed, job.Status)
}

func TestRecover(t *testing.T) {
	now := apptStart.Add(-time.Hour)
	store := NewMemoryStore()
	sms := &stubSMS{}
	s := NewScheduler(store, sms, "MediCare Allergy & Wellness Center", "UTC", nil, nil)
	s.nowFn = func() time.Time { return now }
	s.Start()
	defer s.Stop()
	ctx := context.Background()

	// Missed while down: fire time passed, appointment still ahead.
	require.NoError(t, store.Upsert(ctx, Job{
		Key: JobKey(7, apptStart, KindOffsetHours3), Kind: KindOffsetHours3,
		PatientID: 7, Phone: "+919876543210", Body: "missed reminder",
		Start: apptStart, FireAt: apptStart.Add(-3 * time.Hour),
	}))
	// Stale: the appointment itself already started.
	pastStart := now.Add(-10 * time.Minute)
	require.NoError(t, store.Upsert(ctx, Job{
		Key: JobKey(8, pastStart, KindOffsetHours3), Kind: KindOffsetHours3,
		PatientID: 8, Phone: "+919876543211", Body: "stale reminder",
		Start: pastStart, FireAt: pastStart.Add(-3 * time.Hour),
	}))
	// Future: should just be re-armed, not sent.
	require.NoError(t, store.Upsert(ctx, Job{
		Key: JobKey(9, apptStart.Add(72*time.Hour), KindOffsetDay), Kind: KindOffsetDay,
		PatientID: 9, Phone: "+919876543212", Body: "future reminder",
		Start: apptStart.Add(72 * time.Hour), FireAt: apptStart.Add(48 * time.Hour),
	}))

	require.NoError(t, s.Recover(ctx))

	assert.Equal(t, []string{"missed reminder"}, sms.sent)
	stale, _, _ := store.Find(ctx, JobKey(8, pastStart, KindOffsetHours3))
	assert.Equal(t, StatusFailed, stale.Status)
	future, _, _ := store.Find(ctx, JobKey(9, apptStart.Add(72*time.Hour), KindOffsetDay))
	assert.Equal(t, StatusPending, future.Status)
}

func TestScheduleTwiceInsideWindowSendsOnce(t *testing.T) {
	s, store, sms := newTestScheduler(t, apptStart.Add(-90*time.Minute))
	ctx := context.Background()

	require.NoError(t, s.Schedule(ctx, testBooking()))
	require.NoError(t, s.Schedule(ctx, testBooking()))

	require.Len(t, sms.sent, 1, "replaying a booking must not repeat the reminder")
	job, ok, err := store.Find(ctx, JobKey(7, apptStart, KindImmediate))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, StatusSent, job.Status)
}

func TestScheduleSkipsImmediateAfterHourReminderWentOut(t *testing.T) {
	s, store, sms := newTestScheduler(t, apptStart.Add(-90*time.Minute))
	ctx := context.Background()
	hoursKey := JobKey(7, apptStart, KindOffsetHours3)
	require.NoError(t, store.Upsert(ctx, Job{
		Key: hoursKey, Kind: KindOffsetHours3, PatientID: 7,
		Phone: "+919876543210", Body: "short-notice reminder",
		Start: apptStart, FireAt: apptStart.Add(-3 * time.Hour),
	}))
	require.NoError(t, store.MarkSent(ctx, hoursKey))

	require.NoError(t, s.Schedule(ctx, testBooking()))

	assert.Empty(t, sms.sent, "the short-notice reminder already went out")
	_, ok, err := store.Find(ctx, JobKey(7, apptStart, KindImmediate))
	require.NoError(t, err)
	assert.False(t, ok, "no immediate job may be created on top of a sent one")
}

func TestScheduleSupersedesPendingHourJobBeforeRecovery(t *testing.T) {
	// A restart replays the booking while its offset_3h job is still
	// pending. The immediate send must retire that job, otherwise
	// recovery delivers the same reminder a second time.
	s, store, sms := newTestScheduler(t, apptStart.Add(-90*time.Minute))
	ctx := context.Background()
	hoursKey := JobKey(7, apptStart, KindOffsetHours3)
	require.NoError(t, store.Upsert(ctx, Job{
		Key: hoursKey, Kind: KindOffsetHours3, PatientID: 7,
		Phone: "+919876543210", Body: "short-notice reminder",
		Start: apptStart, FireAt: apptStart.Add(-3 * time.Hour),
	}))

	require.NoError(t, s.Schedule(ctx, testBooking()))
	require.NoError(t, s.Recover(ctx))

	require.Len(t, sms.sent, 1)
	assert.Contains(t, sms.sent[0], "today at 14:00")
	hours, ok, err := store.Find(ctx, hoursKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEqual(t, StatusPending, hours.Status)
}

func TestDeliverClaimsJobExactlyOnce(t *testing.T) {
	s, store, sms := newTestScheduler(t, apptStart.Add(-time.Hour))
	ctx := context.Background()
	job := Job{
		Key: JobKey(7, apptStart, KindOffsetHours3), Kind: KindOffsetHours3,
		PatientID: 7, Phone: "+919876543210", Body: "short-notice reminder",
		Start: apptStart, FireAt: apptStart.Add(-3 * time.Hour),
	}
	require.NoError(t, store.Upsert(ctx, job))

	s.deliver(job)
	s.deliver(job)

	assert.Equal(t, []string{"short-notice reminder"}, sms.sent)
}

func TestMemoryStoreClaimIsSingleWinner(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	key := JobKey(7, apptStart, KindOffsetHours3)
	require.NoError(t, store.Upsert(ctx, Job{Key: key, Kind: KindOffsetHours3, Start: apptStart, FireAt: apptStart.Add(-3 * time.Hour)}))

	first, err := store.Claim(ctx, key)
	require.NoError(t, err)
	second, err := store.Claim(ctx, key)
	require.NoError(t, err)
	assert.True(t, first)
	assert.False(t, second)

	missing, err := store.Claim(ctx, "no-such-key")
	require.NoError(t, err)
	assert.False(t, missing)
}

func TestMemoryStoreUpsertDoesNotResurrectSentJob(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	key := JobKey(7, apptStart, KindOffsetDay)

	require.NoError(t, store.Upsert(ctx, Job{Key: key, Kind: KindOffsetDay, Start: apptStart, FireAt: apptStart.Add(-24 * time.Hour)}))
	require.NoError(t, store.MarkSent(ctx, key))
	require.NoError(t, store.Upsert(ctx, Job{Key: key, Kind: KindOffsetDay, Start: apptStart, FireAt: apptStart.Add(-24 * time.Hour)}))

	job, ok, _ := store.Find(ctx, key)
	require.True(t, ok)
	assert.Equal(t, StatusSent, job.Status)
}

func TestJobKeyIsDeterministic(t *testing.T) {
	a := JobKey(7, apptStart, KindOffsetDay)
	b := JobKey(7, apptStart.In(time.FixedZone("IST", 5*3600+1800)), KindOffsetDay)
	assert.Equal(t, a, b, "key must not depend on the zone the start arrived in")
	assert.Equal(t, "7_20260310T1400_offset_day", a)
}
