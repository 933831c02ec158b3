package service

import (
	"context"
	"fmt"
	"log"

	"github.com/opencamp/slot-reservation/internal/ledger"
	"github.com/opencamp/slot-reservation/internal/metrics"
	"github.com/opencamp/slot-reservation/internal/model"
	"github.com/opencamp/slot-reservation/internal/queue"
	"github.com/opencamp/slot-reservation/internal/repository"
)

// ReservationService owns the synchronous reservation flows: the intake
// fast path (token gate, eligibility, ledger decrement, PENDING insert,
// job enqueue) and the cancellation transaction.  The intake never waits
// on the durable confirmation: the caller gets "PENDING" as soon as the
// job is enqueued, and the worker settles the outcome.
type ReservationService struct {
	slots        SlotCatalog
	events       EventCatalog
	users        UserDirectory
	reservations ReservationStore
	txRunner     repository.CapacityTxRunner
	ledger       Ledger
	tokens       TokenGate
	jobs         JobPublisher
	eligibility  *Eligibility
}

// NewReservationService wires the intake and cancellation flows.
func NewReservationService(
	slots SlotCatalog,
	events EventCatalog,
	users UserDirectory,
	reservations ReservationStore,
	txRunner repository.CapacityTxRunner,
	led Ledger,
	tokens TokenGate,
	jobs JobPublisher,
	eligibility *Eligibility,
) *ReservationService {
	return &ReservationService{
		slots:        slots,
		events:       events,
		users:        users,
		reservations: reservations,
		txRunner:     txRunner,
		ledger:       led,
		tokens:       tokens,
		jobs:         jobs,
		eligibility:  eligibility,
	}
}

// Reserve is the intake fast path.  On success the returned reservation
// is PENDING and a confirmation job is on the queue; the authoritative
// capacity decision happens asynchronously in the worker.  The ledger
// decrement is only a throttle: it sheds load before the database, and
// any Redis failure during it fails closed as "not admitted".
func (s *ReservationService) Reserve(ctx context.Context, userID, slotID uint64) (*model.Reservation, error) {
	slot, err := s.slots.GetByID(ctx, slotID)
	if err != nil {
		return nil, err
	}
	event, err := s.events.GetByID(ctx, slot.EventID)
	if err != nil {
		return nil, err
	}
	if err := s.eligibility.IsEligibleForTrack(ctx, userID, event.Track, event.OrganizationID); err != nil {
		metrics.AdmissionOutcomes.WithLabelValues("ineligible").Inc()
		return nil, err
	}

	ok, err := s.tokens.HasValidToken(ctx, event.ID, userID)
	if err != nil {
		return nil, fmt.Errorf("token check: %w", err)
	}
	if !ok {
		return nil, ErrAdmissionRequired
	}

	var groupNumber *uint32
	if event.ParticipationMode == model.ModeTeam {
		u, err := s.users.GetByID(ctx, userID)
		if err != nil {
			return nil, err
		}
		if u.GroupNumber == nil {
			return nil, ErrGroupRequired
		}
		groupNumber = u.GroupNumber
	}

	cap, err := s.slots.CapacityByID(ctx, slotID)
	if err != nil {
		return nil, err
	}

	// Ledger pre-check. A Redis failure here must not silently bypass
	// the capacity gate, so it is surfaced instead of shrugged off.
	admitted, err := s.ledger.Decrement(ctx, slotID)
	if err != nil {
		metrics.AdmissionOutcomes.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("capacity pre-check unavailable: %w", err)
	}
	if !admitted {
		metrics.AdmissionOutcomes.WithLabelValues("slot_full").Inc()
		return nil, ErrSlotFull
	}

	res := &model.Reservation{
		UserID:      userID,
		SlotID:      slotID,
		GroupNumber: groupNumber,
		Status:      model.StatusPending,
	}
	if err := s.reservations.Create(ctx, res); err != nil {
		s.compensate(ctx, slotID, cap.MaxCapacity)
		metrics.AdmissionOutcomes.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("create pending reservation: %w", err)
	}

	job := queue.ConfirmReservationJob{
		ReservationID:           res.ID,
		UserID:                  userID,
		SlotID:                  slotID,
		EventID:                 event.ID,
		MaxCapacity:             cap.MaxCapacity,
		GroupNumber:             groupNumber,
		StockAlreadyDecremented: true,
	}
	if err := s.jobs.PublishConfirmReservation(ctx, job); err != nil {
		// Without a job the reservation would be stuck PENDING forever;
		// roll the intake back entirely.
		if serr := s.reservations.SetStatus(ctx, res.ID, model.StatusCancelled); serr != nil {
			log.Printf("intake: reservation=%d cancel after publish failure: %v", res.ID, serr)
		}
		s.compensate(ctx, slotID, cap.MaxCapacity)
		metrics.AdmissionOutcomes.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("enqueue confirmation: %w", err)
	}

	// One admission buys one reservation attempt.
	if err := s.tokens.InvalidateToken(ctx, event.ID, userID); err != nil {
		log.Printf("intake: reservation=%d token invalidation: %v", res.ID, err)
	}
	metrics.AdmissionOutcomes.WithLabelValues("admitted").Inc()
	return res, nil
}

// compensate returns the ledger unit claimed by a failed intake.
func (s *ReservationService) compensate(ctx context.Context, slotID uint64, maxCapacity int64) {
	if _, err := s.ledger.Increment(ctx, slotID, maxCapacity, ledger.ReasonFailureRecovery); err != nil {
		// A lost compensation only leaves the throttle pessimistic; the
		// startup resync reconverges it.
		log.Printf("intake: slot=%d compensation failed: %v", slotID, err)
	}
}

// Cancel durably releases a CONFIRMED reservation under the optimistic
// lock and then returns the unit to the ledger.  The ledger increment
// happens outside the transaction since the two stores are not
// transactional with each other.
//
// Only CONFIRMED reservations are accepted: current_count is bumped
// solely by the confirmation worker, so a PENDING reservation holds no
// durable seat yet and decrementing for it would let the count drift
// below the number of confirmed reservations.  PENDING rows are settled
// by the worker alone.
func (s *ReservationService) Cancel(ctx context.Context, userID, reservationID uint64) (*model.Reservation, error) {
	res, err := s.reservations.GetByID(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if res.UserID != userID {
		return nil, ErrUnauthorized
	}
	switch res.Status {
	case model.StatusCancelled:
		return nil, ErrAlreadyCancelled
	case model.StatusPending:
		return nil, ErrReservationPending
	}

	var maxCapacity int64
	err = s.txRunner.WithinTx(ctx, func(tx repository.CapacityTx) error {
		cap, err := tx.SlotCapacity(ctx, res.SlotID)
		if err != nil {
			return err
		}
		maxCapacity = cap.MaxCapacity
		applied, err := tx.DecrementCount(ctx, res.SlotID, cap.Version)
		if err != nil {
			return err
		}
		if !applied {
			metrics.LockConflicts.WithLabelValues("cancel").Inc()
			return ErrOptimisticLockConflict
		}
		return tx.SetReservationStatus(ctx, res.ID, model.StatusCancelled)
	})
	if err != nil {
		return nil, err
	}

	if _, err := s.ledger.Increment(ctx, res.SlotID, maxCapacity, ledger.ReasonCancellation); err != nil {
		log.Printf("cancel: reservation=%d ledger increment: %v", res.ID, err)
	}
	res.Status = model.StatusCancelled
	return res, nil
}

// ListMine returns the caller's reservations.
func (s *ReservationService) ListMine(ctx context.Context, userID uint64) ([]model.Reservation, error) {
	return s.reservations.ListByUser(ctx, userID)
}
