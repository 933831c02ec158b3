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
)

type reserveFixture struct {
	slots        *mockSlots
	events       *mockEvents
	users        *mockUsers
	reservations *mockReservations
	runner       *fakeTxRunner
	ledger       *mockLedger
	tokens       *mockTokens
	jobs         *mockJobs
	svc          *ReservationService
}

func newReserveFixture() *reserveFixture {
	f := &reserveFixture{
		slots:        &mockSlots{},
		events:       &mockEvents{},
		users:        &mockUsers{},
		reservations: &mockReservations{},
		runner:       &fakeTxRunner{tx: &fakeCapacityTx{}},
		ledger:       &mockLedger{},
		tokens:       &mockTokens{},
		jobs:         &mockJobs{},
	}
	f.svc = NewReservationService(
		f.slots, f.events, f.users, f.reservations, f.runner,
		f.ledger, f.tokens, f.jobs,
		NewEligibility(f.users, f.events),
	)
	return f
}

const (
	testUserID  uint64 = 7
	testSlotID  uint64 = 3
	testEventID uint64 = 1
)

func (f *reserveFixture) givenOpenEvent(mode string) {
	f.slots.On("GetByID", mock.Anything, testSlotID).
		Return(&model.Slot{ID: testSlotID, EventID: testEventID}, nil)
	f.events.On("GetByID", mock.Anything, testEventID).
		Return(&model.Event{ID: testEventID, ParticipationMode: mode, OrganizationID: 10}, nil)
}

func (f *reserveFixture) givenUser(group *uint32) {
	f.users.On("GetByID", mock.Anything, testUserID).
		Return(&model.User{ID: testUserID, OrganizationID: 10, GroupNumber: group}, nil)
}

func TestReserveHappyPath(t *testing.T) {
	f := newReserveFixture()
	f.givenOpenEvent(model.ModeIndividual)
	f.givenUser(nil)
	f.tokens.On("HasValidToken", mock.Anything, testEventID, testUserID).Return(true, nil)
	f.slots.On("CapacityByID", mock.Anything, testSlotID).
		Return(&model.SlotCapacity{SlotID: testSlotID, MaxCapacity: 50}, nil)
	f.ledger.On("Decrement", mock.Anything, testSlotID).Return(true, nil)
	f.reservations.On("Create", mock.Anything, mock.AnythingOfType("*model.Reservation")).
		Run(func(args mock.Arguments) {
			args.Get(1).(*model.Reservation).ID = 77
		}).Return(nil)
	f.jobs.On("PublishConfirmReservation", mock.Anything, mock.MatchedBy(func(j queue.ConfirmReservationJob) bool {
		return j.ReservationID == 77 && j.SlotID == testSlotID && j.EventID == testEventID &&
			j.MaxCapacity == 50 && j.GroupNumber == nil && j.StockAlreadyDecremented
	})).Return(nil)
	f.tokens.On("InvalidateToken", mock.Anything, testEventID, testUserID).Return(nil)

	res, err := f.svc.Reserve(context.Background(), testUserID, testSlotID)
	require.NoError(t, err)
	assert.Equal(t, uint64(77), res.ID)
	assert.Equal(t, model.StatusPending, res.Status)
	f.jobs.AssertExpectations(t)
	f.tokens.AssertExpectations(t)
}

func TestReserveWithoutToken(t *testing.T) {
	f := newReserveFixture()
	f.givenOpenEvent(model.ModeIndividual)
	f.givenUser(nil)
	f.tokens.On("HasValidToken", mock.Anything, testEventID, testUserID).Return(false, nil)

	_, err := f.svc.Reserve(context.Background(), testUserID, testSlotID)
	require.ErrorIs(t, err, ErrAdmissionRequired)
	f.ledger.AssertNotCalled(t, "Decrement", mock.Anything, mock.Anything)
	f.reservations.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestReserveIneligibleUser(t *testing.T) {
	f := newReserveFixture()
	f.givenOpenEvent(model.ModeIndividual)
	f.users.On("GetByID", mock.Anything, testUserID).
		Return(&model.User{ID: testUserID, OrganizationID: 99}, nil)

	_, err := f.svc.Reserve(context.Background(), testUserID, testSlotID)
	require.ErrorIs(t, err, ErrTrackIneligible)
	f.tokens.AssertNotCalled(t, "HasValidToken", mock.Anything, mock.Anything, mock.Anything)
}

func TestReserveSlotFullAtLedger(t *testing.T) {
	f := newReserveFixture()
	f.givenOpenEvent(model.ModeIndividual)
	f.givenUser(nil)
	f.tokens.On("HasValidToken", mock.Anything, testEventID, testUserID).Return(true, nil)
	f.slots.On("CapacityByID", mock.Anything, testSlotID).
		Return(&model.SlotCapacity{SlotID: testSlotID, MaxCapacity: 50}, nil)
	f.ledger.On("Decrement", mock.Anything, testSlotID).Return(false, nil)

	_, err := f.svc.Reserve(context.Background(), testUserID, testSlotID)
	require.ErrorIs(t, err, ErrSlotFull)
	f.reservations.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestReserveLedgerErrorFailsClosed(t *testing.T) {
	f := newReserveFixture()
	f.givenOpenEvent(model.ModeIndividual)
	f.givenUser(nil)
	f.tokens.On("HasValidToken", mock.Anything, testEventID, testUserID).Return(true, nil)
	f.slots.On("CapacityByID", mock.Anything, testSlotID).
		Return(&model.SlotCapacity{SlotID: testSlotID, MaxCapacity: 50}, nil)
	f.ledger.On("Decrement", mock.Anything, testSlotID).Return(false, errors.New("redis down"))

	_, err := f.svc.Reserve(context.Background(), testUserID, testSlotID)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSlotFull)
	f.reservations.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestReserveTeamModeRequiresGroup(t *testing.T) {
	f := newReserveFixture()
	f.givenOpenEvent(model.ModeTeam)
	f.givenUser(nil)
	f.tokens.On("HasValidToken", mock.Anything, testEventID, testUserID).Return(true, nil)

	_, err := f.svc.Reserve(context.Background(), testUserID, testSlotID)
	require.ErrorIs(t, err, ErrGroupRequired)
}

func TestReserveTeamModeCarriesGroupNumber(t *testing.T) {
	f := newReserveFixture()
	group := uint32(4)
	f.givenOpenEvent(model.ModeTeam)
	f.givenUser(&group)
	f.tokens.On("HasValidToken", mock.Anything, testEventID, testUserID).Return(true, nil)
	f.slots.On("CapacityByID", mock.Anything, testSlotID).
		Return(&model.SlotCapacity{SlotID: testSlotID, MaxCapacity: 20}, nil)
	f.ledger.On("Decrement", mock.Anything, testSlotID).Return(true, nil)
	f.reservations.On("Create", mock.Anything, mock.AnythingOfType("*model.Reservation")).Return(nil)
	f.jobs.On("PublishConfirmReservation", mock.Anything, mock.MatchedBy(func(j queue.ConfirmReservationJob) bool {
		return j.GroupNumber != nil && *j.GroupNumber == group
	})).Return(nil)
	f.tokens.On("InvalidateToken", mock.Anything, testEventID, testUserID).Return(nil)

	res, err := f.svc.Reserve(context.Background(), testUserID, testSlotID)
	require.NoError(t, err)
	require.NotNil(t, res.GroupNumber)
	assert.Equal(t, group, *res.GroupNumber)
	f.jobs.AssertExpectations(t)
}

func TestReserveCreateFailureCompensatesLedger(t *testing.T) {
	f := newReserveFixture()
	f.givenOpenEvent(model.ModeIndividual)
	f.givenUser(nil)
	f.tokens.On("HasValidToken", mock.Anything, testEventID, testUserID).Return(true, nil)
	f.slots.On("CapacityByID", mock.Anything, testSlotID).
		Return(&model.SlotCapacity{SlotID: testSlotID, MaxCapacity: 50}, nil)
	f.ledger.On("Decrement", mock.Anything, testSlotID).Return(true, nil)
	f.reservations.On("Create", mock.Anything, mock.Anything).Return(errors.New("deadlock"))
	f.ledger.On("Increment", mock.Anything, testSlotID, int64(50), ledger.ReasonFailureRecovery).
		Return(int64(50), nil)

	_, err := f.svc.Reserve(context.Background(), testUserID, testSlotID)
	require.Error(t, err)
	f.ledger.AssertExpectations(t)
	f.jobs.AssertNotCalled(t, "PublishConfirmReservation", mock.Anything, mock.Anything)
}

func TestReservePublishFailureRollsBackIntake(t *testing.T) {
	f := newReserveFixture()
	f.givenOpenEvent(model.ModeIndividual)
	f.givenUser(nil)
	f.tokens.On("HasValidToken", mock.Anything, testEventID, testUserID).Return(true, nil)
	f.slots.On("CapacityByID", mock.Anything, testSlotID).
		Return(&model.SlotCapacity{SlotID: testSlotID, MaxCapacity: 50}, nil)
	f.ledger.On("Decrement", mock.Anything, testSlotID).Return(true, nil)
	f.reservations.On("Create", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			args.Get(1).(*model.Reservation).ID = 88
		}).Return(nil)
	f.jobs.On("PublishConfirmReservation", mock.Anything, mock.Anything).Return(errors.New("broker gone"))
	f.reservations.On("SetStatus", mock.Anything, uint64(88), model.StatusCancelled).Return(nil)
	f.ledger.On("Increment", mock.Anything, testSlotID, int64(50), ledger.ReasonFailureRecovery).
		Return(int64(50), nil)

	_, err := f.svc.Reserve(context.Background(), testUserID, testSlotID)
	require.Error(t, err)
	f.reservations.AssertExpectations(t)
	f.ledger.AssertExpectations(t)
	f.tokens.AssertNotCalled(t, "InvalidateToken", mock.Anything, mock.Anything, mock.Anything)
}

func TestCancelHappyPath(t *testing.T) {
	f := newReserveFixture()
	f.runner.tx = &fakeCapacityTx{
		caps:        []*model.SlotCapacity{{SlotID: testSlotID, MaxCapacity: 50, CurrentCount: 10, Version: 5}},
		decrApplied: true,
	}
	f.reservations.On("GetByID", mock.Anything, uint64(77)).
		Return(&model.Reservation{ID: 77, UserID: testUserID, SlotID: testSlotID, Status: model.StatusConfirmed}, nil)
	f.ledger.On("Increment", mock.Anything, testSlotID, int64(50), ledger.ReasonCancellation).
		Return(int64(41), nil)

	res, err := f.svc.Cancel(context.Background(), testUserID, 77)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, res.Status)
	assert.Equal(t, uint64(5), f.runner.tx.decrVersion, "decrement must be guarded by the loaded version")
	assert.Equal(t, []string{model.StatusCancelled}, f.runner.tx.statusSet)
	f.ledger.AssertExpectations(t)
}

func TestCancelNotOwner(t *testing.T) {
	f := newReserveFixture()
	f.reservations.On("GetByID", mock.Anything, uint64(77)).
		Return(&model.Reservation{ID: 77, UserID: 999, SlotID: testSlotID, Status: model.StatusConfirmed}, nil)

	_, err := f.svc.Cancel(context.Background(), testUserID, 77)
	require.ErrorIs(t, err, ErrUnauthorized)
	assert.Zero(t, f.runner.calls)
}

func TestCancelPendingRejected(t *testing.T) {
	f := newReserveFixture()
	f.runner.tx = &fakeCapacityTx{
		caps:        []*model.SlotCapacity{{SlotID: testSlotID, MaxCapacity: 2, CurrentCount: 1, Version: 5}},
		decrApplied: true,
	}
	f.reservations.On("GetByID", mock.Anything, uint64(77)).
		Return(&model.Reservation{ID: 77, UserID: testUserID, SlotID: testSlotID, Status: model.StatusPending}, nil)

	// A PENDING reservation holds no durable seat yet; releasing one
	// would drop current_count below the confirmed population and let
	// later confirmations oversell the slot.
	_, err := f.svc.Cancel(context.Background(), testUserID, 77)
	require.ErrorIs(t, err, ErrReservationPending)
	assert.Zero(t, f.runner.calls, "capacity row must stay untouched")
	f.ledger.AssertNotCalled(t, "Increment", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.reservations.AssertNotCalled(t, "SetStatus", mock.Anything, mock.Anything, mock.Anything)
}

func TestCancelAlreadyCancelled(t *testing.T) {
	f := newReserveFixture()
	f.reservations.On("GetByID", mock.Anything, uint64(77)).
		Return(&model.Reservation{ID: 77, UserID: testUserID, SlotID: testSlotID, Status: model.StatusCancelled}, nil)

	_, err := f.svc.Cancel(context.Background(), testUserID, 77)
	require.ErrorIs(t, err, ErrAlreadyCancelled)
}

func TestCancelLockConflict(t *testing.T) {
	f := newReserveFixture()
	f.runner.tx = &fakeCapacityTx{
		caps:        []*model.SlotCapacity{{SlotID: testSlotID, MaxCapacity: 50, CurrentCount: 10, Version: 5}},
		decrApplied: false,
	}
	f.reservations.On("GetByID", mock.Anything, uint64(77)).
		Return(&model.Reservation{ID: 77, UserID: testUserID, SlotID: testSlotID, Status: model.StatusConfirmed}, nil)

	_, err := f.svc.Cancel(context.Background(), testUserID, 77)
	require.ErrorIs(t, err, ErrOptimisticLockConflict)
	assert.Empty(t, f.runner.tx.statusSet, "status must not flip inside an aborted transaction")
	f.ledger.AssertNotCalled(t, "Increment", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
