package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/opencamp/slot-reservation/internal/ledger"
	"github.com/opencamp/slot-reservation/internal/model"
	"github.com/opencamp/slot-reservation/internal/queue"
	"github.com/opencamp/slot-reservation/internal/repository"
)

type confirmFixture struct {
	reservations *mockReservations
	runner       *fakeTxRunner
	ledger       *mockLedger
	svc          *ConfirmationService
}

func newConfirmFixture(tx *fakeCapacityTx) *confirmFixture {
	f := &confirmFixture{
		reservations: &mockReservations{},
		runner:       &fakeTxRunner{tx: tx},
		ledger:       &mockLedger{},
	}
	f.svc = NewConfirmationService(f.reservations, f.runner, f.ledger)
	return f
}

func confirmJob() queue.ConfirmReservationJob {
	return queue.ConfirmReservationJob{
		ReservationID:           77,
		UserID:                  testUserID,
		SlotID:                  testSlotID,
		EventID:                 testEventID,
		MaxCapacity:             50,
		StockAlreadyDecremented: true,
	}
}

func pendingReservation() *model.Reservation {
	return &model.Reservation{ID: 77, UserID: testUserID, SlotID: testSlotID, Status: model.StatusPending}
}

func TestProcessConfirmsPendingReservation(t *testing.T) {
	f := newConfirmFixture(&fakeCapacityTx{
		caps:        []*model.SlotCapacity{{SlotID: testSlotID, MaxCapacity: 50, CurrentCount: 10, Version: 3}},
		incrApplied: true,
	})
	f.reservations.On("GetByID", mock.Anything, uint64(77)).Return(pendingReservation(), nil)

	result, err := f.svc.Process(context.Background(), confirmJob())
	require.NoError(t, err)
	assert.True(t, result.Confirmed)
	assert.Equal(t, uint64(3), f.runner.tx.incrVersion)
	assert.Equal(t, []string{model.StatusConfirmed}, f.runner.tx.statusSet)
	assert.True(t, f.runner.tx.userChecked, "individual jobs check per-user duplicates")
	assert.False(t, f.runner.tx.groupChecked)
	f.ledger.AssertNotCalled(t, "Increment", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessIsIdempotentOnRedelivery(t *testing.T) {
	f := newConfirmFixture(&fakeCapacityTx{})
	done := pendingReservation()
	done.Status = model.StatusConfirmed
	f.reservations.On("GetByID", mock.Anything, uint64(77)).Return(done, nil)

	result, err := f.svc.Process(context.Background(), confirmJob())
	require.NoError(t, err)
	assert.True(t, result.Skipped)
	assert.Zero(t, f.runner.calls, "a settled reservation must never be reprocessed")
	f.ledger.AssertNotCalled(t, "Increment", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessAcksMissingReservation(t *testing.T) {
	f := newConfirmFixture(&fakeCapacityTx{})
	f.reservations.On("GetByID", mock.Anything, uint64(77)).Return(nil, repository.ErrReservationNotFound)

	result, err := f.svc.Process(context.Background(), confirmJob())
	require.NoError(t, err)
	assert.True(t, result.Skipped)
}

func TestProcessDuplicateUserCancelsAndCompensates(t *testing.T) {
	f := newConfirmFixture(&fakeCapacityTx{
		caps:      []*model.SlotCapacity{{SlotID: testSlotID, MaxCapacity: 50, CurrentCount: 10, Version: 3}},
		userTaken: true,
	})
	f.reservations.On("GetByID", mock.Anything, uint64(77)).Return(pendingReservation(), nil)
	f.reservations.On("SetStatus", mock.Anything, uint64(77), model.StatusCancelled).Return(nil)
	f.ledger.On("Increment", mock.Anything, testSlotID, int64(50), ledger.ReasonFailureRecovery).
		Return(int64(41), nil)

	result, err := f.svc.Process(context.Background(), confirmJob())
	require.NoError(t, err)
	require.ErrorIs(t, result.Reason, ErrDuplicateReservation)
	f.reservations.AssertExpectations(t)
	f.ledger.AssertExpectations(t)
}

func TestProcessTeamDuplicate(t *testing.T) {
	group := uint32(4)
	f := newConfirmFixture(&fakeCapacityTx{
		caps:       []*model.SlotCapacity{{SlotID: testSlotID, MaxCapacity: 50, CurrentCount: 10, Version: 3}},
		groupTaken: true,
	})
	job := confirmJob()
	job.GroupNumber = &group
	f.reservations.On("GetByID", mock.Anything, uint64(77)).Return(pendingReservation(), nil)
	f.reservations.On("SetStatus", mock.Anything, uint64(77), model.StatusCancelled).Return(nil)
	f.ledger.On("Increment", mock.Anything, testSlotID, int64(50), ledger.ReasonFailureRecovery).
		Return(int64(41), nil)

	result, err := f.svc.Process(context.Background(), job)
	require.NoError(t, err)
	require.ErrorIs(t, result.Reason, ErrTeamAlreadyReserved)
	assert.True(t, f.runner.tx.groupChecked)
	assert.False(t, f.runner.tx.userChecked, "team jobs are keyed by group, not user")
}

func TestProcessDistinguishesSlotFullFromLockConflict(t *testing.T) {
	cases := []struct {
		name   string
		reread *model.SlotCapacity
		want   error
	}{
		{
			name:   "slot filled up",
			reread: &model.SlotCapacity{SlotID: testSlotID, MaxCapacity: 50, CurrentCount: 50, Version: 9},
			want:   ErrSlotFull,
		},
		{
			name:   "version bumped by concurrent writer",
			reread: &model.SlotCapacity{SlotID: testSlotID, MaxCapacity: 50, CurrentCount: 11, Version: 4},
			want:   ErrOptimisticLockConflict,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newConfirmFixture(&fakeCapacityTx{
				caps: []*model.SlotCapacity{
					{SlotID: testSlotID, MaxCapacity: 50, CurrentCount: 10, Version: 3},
					tc.reread,
				},
				incrApplied: false,
			})
			f.reservations.On("GetByID", mock.Anything, uint64(77)).Return(pendingReservation(), nil)
			f.reservations.On("SetStatus", mock.Anything, uint64(77), model.StatusCancelled).Return(nil)
			f.ledger.On("Increment", mock.Anything, testSlotID, int64(50), ledger.ReasonFailureRecovery).
				Return(int64(41), nil)

			result, err := f.svc.Process(context.Background(), confirmJob())
			require.NoError(t, err)
			require.ErrorIs(t, result.Reason, tc.want)
		})
	}
}

func TestProcessInfraErrorRequeues(t *testing.T) {
	f := newConfirmFixture(&fakeCapacityTx{
		capErrs: []error{errors.New("connection reset")},
	})
	f.reservations.On("GetByID", mock.Anything, uint64(77)).Return(pendingReservation(), nil)

	_, err := f.svc.Process(context.Background(), confirmJob())
	require.Error(t, err)
	f.reservations.AssertNotCalled(t, "SetStatus", mock.Anything, mock.Anything, mock.Anything)
	f.ledger.AssertNotCalled(t, "Increment", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessCancelFailureRequeues(t *testing.T) {
	f := newConfirmFixture(&fakeCapacityTx{
		caps: []*model.SlotCapacity{
			{SlotID: testSlotID, MaxCapacity: 50, CurrentCount: 50, Version: 3},
			{SlotID: testSlotID, MaxCapacity: 50, CurrentCount: 50, Version: 3},
		},
		incrApplied: false,
	})
	f.reservations.On("GetByID", mock.Anything, uint64(77)).Return(pendingReservation(), nil)
	f.reservations.On("SetStatus", mock.Anything, uint64(77), model.StatusCancelled).
		Return(errors.New("db gone"))

	_, err := f.svc.Process(context.Background(), confirmJob())
	require.Error(t, err, "the cancel must stick before the job is acknowledged")
	f.ledger.AssertNotCalled(t, "Increment", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessSkipsCompensationWhenStockNotDecremented(t *testing.T) {
	f := newConfirmFixture(&fakeCapacityTx{
		caps:      []*model.SlotCapacity{{SlotID: testSlotID, MaxCapacity: 50, CurrentCount: 10, Version: 3}},
		userTaken: true,
	})
	job := confirmJob()
	job.StockAlreadyDecremented = false
	f.reservations.On("GetByID", mock.Anything, uint64(77)).Return(pendingReservation(), nil)
	f.reservations.On("SetStatus", mock.Anything, uint64(77), model.StatusCancelled).Return(nil)

	result, err := f.svc.Process(context.Background(), job)
	require.NoError(t, err)
	require.ErrorIs(t, result.Reason, ErrDuplicateReservation)
	f.ledger.AssertNotCalled(t, "Increment", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessSurvivesCompensationFailure(t *testing.T) {
	f := newConfirmFixture(&fakeCapacityTx{
		caps:      []*model.SlotCapacity{{SlotID: testSlotID, MaxCapacity: 50, CurrentCount: 10, Version: 3}},
		userTaken: true,
	})
	f.reservations.On("GetByID", mock.Anything, uint64(77)).Return(pendingReservation(), nil)
	f.reservations.On("SetStatus", mock.Anything, uint64(77), model.StatusCancelled).Return(nil)
	f.ledger.On("Increment", mock.Anything, testSlotID, int64(50), ledger.ReasonFailureRecovery).
		Return(int64(0), errors.New("redis down"))

	// A lost compensation only leaves the throttle pessimistic; the job
	// is still settled and acknowledged.
	result, err := f.svc.Process(context.Background(), confirmJob())
	require.NoError(t, err)
	require.ErrorIs(t, result.Reason, ErrDuplicateReservation)
}

func TestProcessConfirmJobAcksTerminalOutcomes(t *testing.T) {
	f := newConfirmFixture(&fakeCapacityTx{
		caps:        []*model.SlotCapacity{{SlotID: testSlotID, MaxCapacity: 50, CurrentCount: 10, Version: 3}},
		incrApplied: true,
	})
	f.reservations.On("GetByID", mock.Anything, uint64(77)).Return(pendingReservation(), nil)

	require.NoError(t, f.svc.ProcessConfirmJob(context.Background(), confirmJob()))
}
