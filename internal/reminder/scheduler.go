package reminder

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/clinicops/scheduling-agent/internal/notify"
	"github.com/clinicops/scheduling-agent/pkg/logging"
)

// Recorder receives the outcome of every reminder delivery.
type Recorder interface {
	RecordReminder(kind Kind, status JobStatus)
}

type noopRecorder struct{}

func (noopRecorder) RecordReminder(Kind, JobStatus) {}

// Scheduler arms in-process timers for reminder jobs and delivers them
// over SMS. All bookings share one scheduler instance; Stop drains
// in-flight deliveries. Delivery failures are logged and recorded, they
// never touch the booking that spawned them.
type Scheduler struct {
	store      JobStore
	sms        notify.SMSSender
	clinicName string
	loc        *time.Location
	logger     *logging.Logger
	recorder   Recorder
	nowFn      func() time.Time

	mu      sync.Mutex
	timers  map[string]*time.Timer
	running bool
	wg      sync.WaitGroup
}

// NewScheduler wires a scheduler. The timezone names the clinic's local
// zone for message formatting; unknown zones fall back to UTC.
func NewScheduler(store JobStore, sms notify.SMSSender, clinicName, timezone string, recorder Recorder, logger *logging.Logger) *Scheduler {
	if store == nil {
		panic("reminder: job store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if recorder == nil {
		recorder = noopRecorder{}
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		logger.Warn("unknown timezone, using UTC", "timezone", timezone)
		loc = time.UTC
	}
	return &Scheduler{
		store:      store,
		sms:        sms,
		clinicName: clinicName,
		loc:        loc,
		logger:     logger,
		recorder:   recorder,
		nowFn:      time.Now,
		timers:     make(map[string]*time.Timer),
	}
}

// Start makes the scheduler accept jobs and arm timers.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = true
}

// Stop cancels armed timers and waits for in-flight deliveries. Pending
// jobs stay in the store and come back through Recover.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.running = false
	for key, t := range s.timers {
		t.Stop()
		delete(s.timers, key)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// Schedule registers the 24-hour and 3-hour reminders for a booking.
// Calling it again for the same booking replaces the pending jobs rather
// than duplicating them. A booking inside the 3-hour window gets one
// immediate reminder; one past the 24-hour mark simply skips that kind.
func (s *Scheduler) Schedule(ctx context.Context, b Booking) error {
	now := s.nowFn()

	dayJob := s.buildJob(b, KindOffsetDay, b.Start.Add(-24*time.Hour))
	if dayJob.FireAt.After(now) {
		if err := s.register(ctx, dayJob); err != nil {
			return err
		}
	} else {
		s.logger.Info("day reminder window already passed, skipping",
			"patient_id", b.PatientID, "start", b.Start)
	}

	hoursFireAt := b.Start.Add(-3 * time.Hour)
	if hoursFireAt.After(now) {
		return s.register(ctx, s.buildJob(b, KindOffsetHours3, hoursFireAt))
	}

	// Inside the 3-hour window: remind right away, best effort. The
	// short-notice reminder may already be out, either as offset_3h before
	// the window closed or from an earlier replay of the same booking.
	hoursKey := JobKey(b.PatientID, b.Start, KindOffsetHours3)
	for _, key := range []string{hoursKey, JobKey(b.PatientID, b.Start, KindImmediate)} {
		job, ok, err := s.store.Find(ctx, key)
		if err != nil {
			return err
		}
		if ok && job.Status == StatusSent {
			s.logger.Info("short-notice reminder already sent, skipping",
				"patient_id", b.PatientID, "start", b.Start, "key", key)
			return nil
		}
	}

	// A pending offset_3h job covers the same reminder; retire it so
	// recovery cannot deliver it on top of the immediate send.
	if claimed, err := s.store.Claim(ctx, hoursKey); err != nil {
		return err
	} else if claimed {
		if err := s.store.MarkFailed(ctx, hoursKey, "superseded by immediate reminder"); err != nil {
			s.logger.Error("mark failed errored", "error", err, "key", hoursKey)
		}
	}

	immediate := s.buildJob(b, KindImmediate, now)
	if err := s.store.Upsert(ctx, immediate); err != nil {
		return err
	}
	s.deliver(immediate)
	return nil
}

func (s *Scheduler) buildJob(b Booking, kind Kind, fireAt time.Time) Job {
	return Job{
		Key:       JobKey(b.PatientID, b.Start, kind),
		Kind:      kind,
		PatientID: b.PatientID,
		Phone:     b.Phone,
		Body:      s.messageBody(b, kind),
		Start:     b.Start,
		FireAt:    fireAt,
	}
}

func (s *Scheduler) messageBody(b Booking, kind Kind) string {
	local := b.Start.In(s.loc)
	provider := b.Provider
	switch kind {
	case KindOffsetDay:
		return fmt.Sprintf("Hi %s, a reminder from %s: your appointment with %s is tomorrow at %s.",
			b.PatientName, s.clinicName, provider, local.Format("15:04"))
	default:
		body := fmt.Sprintf("Hi %s, your appointment with %s at %s is today at %s.",
			b.PatientName, provider, s.clinicName, local.Format("15:04"))
		if b.NewPatient {
			body += " Please bring your completed intake form."
		}
		return body
	}
}

// register persists the job and arms its timer, replacing any timer
// already armed under the same key.
func (s *Scheduler) register(ctx context.Context, job Job) error {
	if err := s.store.Upsert(ctx, job); err != nil {
		return err
	}
	s.arm(job)
	return nil
}

func (s *Scheduler) arm(job Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	if existing, ok := s.timers[job.Key]; ok {
		existing.Stop()
	}
	delay := job.FireAt.Sub(s.nowFn())
	if delay < 0 {
		delay = 0
	}
	s.timers[job.Key] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, job.Key)
		s.mu.Unlock()
		s.deliver(job)
	})
}

// deliver claims one reminder, sends it, and records the outcome. The
// claim makes delivery at most once even when a timer, a replay, and
// recovery all race for the same job.
func (s *Scheduler) deliver(job Job) {
	s.wg.Add(1)
	defer s.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	claimed, err := s.store.Claim(ctx, job.Key)
	if err != nil {
		s.logger.Error("claim errored", "error", err, "key", job.Key)
		return
	}
	if !claimed {
		s.logger.Info("reminder already handled, skipping", "key", job.Key)
		return
	}

	if s.sms == nil || job.Phone == "" {
		s.logger.Warn("reminder has no deliverable channel", "key", job.Key)
		if err := s.store.MarkFailed(ctx, job.Key, "no sms channel"); err != nil {
			s.logger.Error("mark failed errored", "error", err, "key", job.Key)
		}
		s.recorder.RecordReminder(job.Kind, StatusFailed)
		return
	}

	if _, err := s.sms.SendSMS(ctx, job.Phone, job.Body); err != nil {
		s.logger.Error("reminder delivery failed", "error", err, "key", job.Key)
		if markErr := s.store.MarkFailed(ctx, job.Key, err.Error()); markErr != nil {
			s.logger.Error("mark failed errored", "error", markErr, "key", job.Key)
		}
		s.recorder.RecordReminder(job.Kind, StatusFailed)
		return
	}

	if err := s.store.MarkSent(ctx, job.Key); err != nil {
		s.logger.Error("mark sent errored", "error", err, "key", job.Key)
	}
	s.recorder.RecordReminder(job.Kind, StatusSent)
	s.logger.Info("reminder sent", "key", job.Key, "kind", job.Kind)
}

// Recover re-arms pending jobs after a restart. Jobs whose fire time
// passed while the process was down go out immediately, unless the
// appointment itself already started.
func (s *Scheduler) Recover(ctx context.Context) error {
	pending, err := s.store.ListPending(ctx)
	if err != nil {
		return fmt.Errorf("reminder: recover: %w", err)
	}
	now := s.nowFn()
	for _, job := range pending {
		switch {
		case !job.Start.After(now):
			if err := s.store.MarkFailed(ctx, job.Key, "appointment already started"); err != nil {
				s.logger.Error("mark failed errored", "error", err, "key", job.Key)
			}
		case job.FireAt.After(now):
			s.arm(job)
		default:
			s.deliver(job)
		}
	}
	s.logger.Info("reminder recovery complete", "pending", len(pending))
	return nil
}
