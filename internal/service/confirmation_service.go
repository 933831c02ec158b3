package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/opencamp/slot-reservation/internal/ledger"
	"github.com/opencamp/slot-reservation/internal/metrics"
	"github.com/opencamp/slot-reservation/internal/model"
	"github.com/opencamp/slot-reservation/internal/queue"
	"github.com/opencamp/slot-reservation/internal/repository"
)

// ConfirmResult is the tagged outcome of processing one confirmation
// job.  Exactly one of Confirmed/Skipped is set, or Reason carries the
// terminal rejection.  Infrastructure failures are reported separately
// as an error and leave the reservation PENDING for redelivery.
type ConfirmResult struct {
	Confirmed bool
	Skipped   bool  // reservation already terminal; job acknowledged as a no-op
	Reason    error // terminal rejection (slot full, duplicate, lock conflict, slot missing)
}

// ConfirmationService is the single source of truth for "is this
// reservation real".  Each job runs the durable optimistic-lock
// transaction: duplicate check, conditional count increment, status
// flip.  Any terminal rejection cancels the reservation and compensates
// the ledger when the intake had decremented it.
type ConfirmationService struct {
	reservations ReservationStore
	txRunner     repository.CapacityTxRunner
	ledger       Ledger
}

// NewConfirmationService wires the worker-side processor.
func NewConfirmationService(reservations ReservationStore, txRunner repository.CapacityTxRunner, led Ledger) *ConfirmationService {
	return &ConfirmationService{reservations: reservations, txRunner: txRunner, ledger: led}
}

// ProcessConfirmJob adapts Process to the queue consumer contract: a nil
// return acknowledges the delivery, an error requeues it.
func (s *ConfirmationService) ProcessConfirmJob(ctx context.Context, job queue.ConfirmReservationJob) error {
	result, err := s.Process(ctx, job)
	if err != nil {
		return err
	}
	switch {
	case result.Confirmed:
		log.Printf("confirm: reservation=%d slot=%d confirmed", job.ReservationID, job.SlotID)
	case result.Skipped:
		log.Printf("confirm: reservation=%d already terminal, skipped", job.ReservationID)
	default:
		log.Printf("confirm: reservation=%d rejected: %v", job.ReservationID, result.Reason)
	}
	return nil
}

// Process runs the confirmation state machine for one job.
//
// The step order is deliberate: the reservation's current status is read
// first so that a redelivered job (broker retry after a transient
// failure) is idempotent: a reservation that already left PENDING is
// never reprocessed and never compensated a second time.
func (s *ConfirmationService) Process(ctx context.Context, job queue.ConfirmReservationJob) (ConfirmResult, error) {
	res, err := s.reservations.GetByID(ctx, job.ReservationID)
	if errors.Is(err, repository.ErrReservationNotFound) {
		// Nothing to settle; acknowledge rather than spin on a row that
		// will never appear.
		metrics.ConfirmOutcomes.WithLabelValues("skipped_terminal").Inc()
		return ConfirmResult{Skipped: true, Reason: err}, nil
	}
	if err != nil {
		return ConfirmResult{}, fmt.Errorf("load reservation %d: %w", job.ReservationID, err)
	}
	if res.Status != model.StatusPending {
		metrics.ConfirmOutcomes.WithLabelValues("skipped_terminal").Inc()
		return ConfirmResult{Skipped: true}, nil
	}

	txErr := s.txRunner.WithinTx(ctx, func(tx repository.CapacityTx) error {
		cap, err := tx.SlotCapacity(ctx, job.SlotID)
		if errors.Is(err, repository.ErrSlotNotFound) {
			return repository.ErrSlotNotFound
		}
		if err != nil {
			return err
		}

		if job.GroupNumber != nil {
			taken, err := tx.HasOtherActiveByGroup(ctx, job.SlotID, *job.GroupNumber, job.ReservationID)
			if err != nil {
				return err
			}
			if taken {
				return ErrTeamAlreadyReserved
			}
		} else {
			taken, err := tx.HasOtherActiveByUser(ctx, job.SlotID, job.UserID, job.ReservationID)
			if err != nil {
				return err
			}
			if taken {
				return ErrDuplicateReservation
			}
		}

		applied, err := tx.IncrementCount(ctx, job.SlotID, cap.Version)
		if err != nil {
			return err
		}
		if !applied {
			// Zero rows affected: either the slot filled up or a
			// concurrent writer bumped the version. Re-read to tell the
			// two apart.
			current, err := tx.SlotCapacity(ctx, job.SlotID)
			if err != nil {
				return err
			}
			if current.CurrentCount >= current.MaxCapacity {
				return ErrSlotFull
			}
			return ErrOptimisticLockConflict
		}
		return tx.SetReservationStatus(ctx, job.ReservationID, model.StatusConfirmed)
	})

	if txErr == nil {
		metrics.ConfirmOutcomes.WithLabelValues("confirmed").Inc()
		return ConfirmResult{Confirmed: true}, nil
	}
	if !terminalReason(txErr) {
		return ConfirmResult{}, txErr
	}

	// Terminal rejection: mark CANCELLED regardless of the aborted
	// transaction, then compensate the ledger if the intake decremented
	// it. The cancel must stick before we acknowledge, so an error here
	// is transient and requeues the job (still PENDING, still safe).
	if err := s.reservations.SetStatus(ctx, job.ReservationID, model.StatusCancelled); err != nil {
		return ConfirmResult{}, fmt.Errorf("cancel reservation %d: %w", job.ReservationID, err)
	}
	if job.StockAlreadyDecremented {
		if _, err := s.ledger.Increment(ctx, job.SlotID, job.MaxCapacity, ledger.ReasonFailureRecovery); err != nil {
			// A lost compensation leaves the throttle pessimistic (never
			// overselling); the startup resync reconverges it.
			log.Printf("confirm: reservation=%d compensation failed: %v", job.ReservationID, err)
		}
	}
	metrics.ConfirmOutcomes.WithLabelValues(reasonLabel(txErr)).Inc()
	if errors.Is(txErr, ErrOptimisticLockConflict) {
		metrics.LockConflicts.WithLabelValues("confirm").Inc()
	}
	return ConfirmResult{Reason: txErr}, nil
}

// terminalReason reports whether the transaction error is a logical
// rejection (handled by cancel+compensate) rather than an infrastructure
// failure (handled by redelivery).
func terminalReason(err error) bool {
	return errors.Is(err, ErrSlotFull) ||
		errors.Is(err, ErrOptimisticLockConflict) ||
		errors.Is(err, ErrDuplicateReservation) ||
		errors.Is(err, ErrTeamAlreadyReserved) ||
		errors.Is(err, repository.ErrSlotNotFound)
}

func reasonLabel(err error) string {
	switch {
	case errors.Is(err, ErrSlotFull):
		return "slot_full"
	case errors.Is(err, ErrOptimisticLockConflict):
		return "lock_conflict"
	case errors.Is(err, ErrDuplicateReservation):
		return "duplicate"
	case errors.Is(err, ErrTeamAlreadyReserved):
		return "team_duplicate"
	case errors.Is(err, repository.ErrSlotNotFound):
		return "slot_missing"
	default:
		return "other"
	}
}
