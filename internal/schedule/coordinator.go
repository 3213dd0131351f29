package schedule

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/clinicops/scheduling-agent/pkg/logging"
)

var scheduleTracer = otel.Tracer("clinicops.internal.schedule")

// OutcomeRecorder receives the result of every reserve attempt.
type OutcomeRecorder interface {
	RecordReservation(outcome Outcome)
}

type noopRecorder struct{}

func (noopRecorder) RecordReservation(Outcome) {}

// Coordinator serializes reservations per provider and answers candidate
// queries. All writes for a given provider pass through one critical
// section, so a contested slot set has exactly one winner.
type Coordinator struct {
	store    Store
	logger   *logging.Logger
	recorder OutcomeRecorder

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewCoordinator wires a coordinator over the given store.
func NewCoordinator(store Store, logger *logging.Logger, recorder OutcomeRecorder) *Coordinator {
	if store == nil {
		panic("schedule: store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if recorder == nil {
		recorder = noopRecorder{}
	}
	return &Coordinator{
		store:    store,
		logger:   logger,
		recorder: recorder,
		locks:    make(map[string]*sync.Mutex),
	}
}

func (c *Coordinator) providerLock(provider string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	lock, ok := c.locks[provider]
	if !ok {
		lock = &sync.Mutex{}
		c.locks[provider] = lock
	}
	return lock
}

// Query returns up to limit bookable start slots for the provider within
// [from, to), earliest first. An extended visit is bookable at a start only
// when the immediately following block is also free.
func (c *Coordinator) Query(ctx context.Context, provider string, from, to time.Time, d Duration, limit int) ([]Slot, error) {
	if limit <= 0 {
		return nil, nil
	}

	available, err := c.store.ListAvailable(ctx, provider, from, to)
	if err != nil {
		return nil, fmt.Errorf("schedule: query: %w", err)
	}
	if d == DurationStandard {
		if len(available) > limit {
			available = available[:limit]
		}
		return available, nil
	}

	free := make(map[int64]bool, len(available))
	for _, slot := range available {
		free[slot.Start.UTC().Unix()] = true
	}
	candidates := make([]Slot, 0, limit)
	for _, slot := range available {
		if !free[slot.Start.Add(SlotInterval).UTC().Unix()] {
			continue
		}
		candidates = append(candidates, slot)
		if len(candidates) == limit {
			break
		}
	}
	return candidates, nil
}

// Reserve books the visit starting at start, flipping one or two blocks
// atomically. The tagged result distinguishes a won reservation from a
// conflict and from unknown slots; the error return carries only
// persistence failures.
func (c *Coordinator) Reserve(ctx context.Context, provider string, start time.Time, patientID int, d Duration) (ReserveResult, error) {
	ctx, span := scheduleTracer.Start(ctx, "schedule.reserve")
	defer span.End()
	span.SetAttributes(
		attribute.String("clinicops.provider", provider),
		attribute.Int("clinicops.patient_id", patientID),
		attribute.String("clinicops.duration", string(d)),
	)

	lock := c.providerLock(provider)
	lock.Lock()
	defer lock.Unlock()

	slots, err := c.store.Reserve(ctx, provider, blockStarts(start, d), patientID)
	switch {
	case err == nil:
		c.recorder.RecordReservation(OutcomeReserved)
		c.logger.Info("slots reserved",
			"provider", provider, "start", start, "patient_id", patientID, "blocks", len(slots))
		return ReserveResult{Outcome: OutcomeReserved, Slots: slots}, nil
	case errors.Is(err, ErrSlotConflict):
		c.recorder.RecordReservation(OutcomeConflict)
		c.logger.Info("reservation conflict", "provider", provider, "start", start)
		return ReserveResult{Outcome: OutcomeConflict}, nil
	case errors.Is(err, ErrSlotNotFound):
		c.recorder.RecordReservation(OutcomeNotFound)
		return ReserveResult{Outcome: OutcomeNotFound}, nil
	default:
		span.RecordError(err)
		return ReserveResult{}, fmt.Errorf("schedule: reserve: %w", err)
	}
}
