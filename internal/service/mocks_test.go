package service

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/opencamp/slot-reservation/internal/model"
	"github.com/opencamp/slot-reservation/internal/queue"
	"github.com/opencamp/slot-reservation/internal/repository"
)

type mockLedger struct{ mock.Mock }

func (m *mockLedger) Decrement(ctx context.Context, slotID uint64) (bool, error) {
	args := m.Called(ctx, slotID)
	return args.Bool(0), args.Error(1)
}

func (m *mockLedger) Increment(ctx context.Context, slotID uint64, maxCapacity int64, reason string) (int64, error) {
	args := m.Called(ctx, slotID, maxCapacity, reason)
	return args.Get(0).(int64), args.Error(1)
}

type mockTokens struct{ mock.Mock }

func (m *mockTokens) HasValidToken(ctx context.Context, eventID, userID uint64) (bool, error) {
	args := m.Called(ctx, eventID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *mockTokens) InvalidateToken(ctx context.Context, eventID, userID uint64) error {
	return m.Called(ctx, eventID, userID).Error(0)
}

type mockJobs struct{ mock.Mock }

func (m *mockJobs) PublishConfirmReservation(ctx context.Context, job queue.ConfirmReservationJob) error {
	return m.Called(ctx, job).Error(0)
}

type mockReservations struct{ mock.Mock }

func (m *mockReservations) Create(ctx context.Context, res *model.Reservation) error {
	return m.Called(ctx, res).Error(0)
}

func (m *mockReservations) GetByID(ctx context.Context, id uint64) (*model.Reservation, error) {
	args := m.Called(ctx, id)
	if r := args.Get(0); r != nil {
		return r.(*model.Reservation), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockReservations) SetStatus(ctx context.Context, id uint64, status string) error {
	return m.Called(ctx, id, status).Error(0)
}

func (m *mockReservations) ListByUser(ctx context.Context, userID uint64) ([]model.Reservation, error) {
	args := m.Called(ctx, userID)
	if r := args.Get(0); r != nil {
		return r.([]model.Reservation), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockSlots struct{ mock.Mock }

func (m *mockSlots) GetByID(ctx context.Context, id uint64) (*model.Slot, error) {
	args := m.Called(ctx, id)
	if s := args.Get(0); s != nil {
		return s.(*model.Slot), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockSlots) CapacityByID(ctx context.Context, slotID uint64) (*model.SlotCapacity, error) {
	args := m.Called(ctx, slotID)
	if c := args.Get(0); c != nil {
		return c.(*model.SlotCapacity), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockEvents struct{ mock.Mock }

func (m *mockEvents) GetByID(ctx context.Context, id uint64) (*model.Event, error) {
	args := m.Called(ctx, id)
	if e := args.Get(0); e != nil {
		return e.(*model.Event), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockUsers struct{ mock.Mock }

func (m *mockUsers) GetByID(ctx context.Context, id uint64) (*model.User, error) {
	args := m.Called(ctx, id)
	if u := args.Get(0); u != nil {
		return u.(*model.User), args.Error(1)
	}
	return nil, args.Error(1)
}

// fakeCapacityTx scripts the transactional surface for a WithinTx call.
// Successive SlotCapacity calls consume caps/capErrs in order, which is
// how the increment-failed re-read is exercised.
type fakeCapacityTx struct {
	caps    []*model.SlotCapacity
	capErrs []error

	userTaken  bool
	groupTaken bool
	dupErr     error

	incrApplied bool
	incrErr     error
	decrApplied bool
	decrErr     error
	statusErr   error

	capCalls     int
	userChecked  bool
	groupChecked bool
	incrVersion  uint64
	decrVersion  uint64
	statusSet    []string
}

func (f *fakeCapacityTx) SlotCapacity(ctx context.Context, slotID uint64) (*model.SlotCapacity, error) {
	i := f.capCalls
	f.capCalls++
	if i < len(f.capErrs) && f.capErrs[i] != nil {
		return nil, f.capErrs[i]
	}
	if i >= len(f.caps) {
		i = len(f.caps) - 1
	}
	return f.caps[i], nil
}

func (f *fakeCapacityTx) HasOtherActiveByUser(ctx context.Context, slotID, userID, excludeID uint64) (bool, error) {
	f.userChecked = true
	return f.userTaken, f.dupErr
}

func (f *fakeCapacityTx) HasOtherActiveByGroup(ctx context.Context, slotID uint64, groupNumber uint32, excludeID uint64) (bool, error) {
	f.groupChecked = true
	return f.groupTaken, f.dupErr
}

func (f *fakeCapacityTx) IncrementCount(ctx context.Context, slotID, version uint64) (bool, error) {
	f.incrVersion = version
	return f.incrApplied, f.incrErr
}

func (f *fakeCapacityTx) DecrementCount(ctx context.Context, slotID, version uint64) (bool, error) {
	f.decrVersion = version
	return f.decrApplied, f.decrErr
}

func (f *fakeCapacityTx) SetReservationStatus(ctx context.Context, reservationID uint64, status string) error {
	if f.statusErr != nil {
		return f.statusErr
	}
	f.statusSet = append(f.statusSet, status)
	return nil
}

type fakeTxRunner struct {
	tx        *fakeCapacityTx
	beginErr  error
	commitErr error
	calls     int
}

func (r *fakeTxRunner) WithinTx(ctx context.Context, fn func(tx repository.CapacityTx) error) error {
	r.calls++
	if r.beginErr != nil {
		return r.beginErr
	}
	if err := fn(r.tx); err != nil {
		return err
	}
	return r.commitErr
}
