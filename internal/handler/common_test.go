package handler

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencamp/slot-reservation/internal/repository"
	"github.com/opencamp/slot-reservation/internal/service"
	"github.com/opencamp/slot-reservation/internal/waitingroom"
)

func TestWriteDomainError(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{repository.ErrSlotNotFound, http.StatusNotFound},
		{repository.ErrReservationNotFound, http.StatusNotFound},
		{service.ErrSlotFull, http.StatusConflict},
		{service.ErrDuplicateReservation, http.StatusConflict},
		{service.ErrTeamAlreadyReserved, http.StatusConflict},
		{service.ErrOptimisticLockConflict, http.StatusConflict},
		{service.ErrAlreadyCancelled, http.StatusConflict},
		{service.ErrReservationPending, http.StatusConflict},
		{service.ErrUnauthorized, http.StatusForbidden},
		{service.ErrTrackIneligible, http.StatusForbidden},
		{service.ErrAdmissionRequired, http.StatusForbidden},
		{service.ErrGroupRequired, http.StatusBadRequest},
		{waitingroom.ErrTokenIssuanceExhausted, http.StatusServiceUnavailable},
		{errors.New("sql: driver bad connection"), http.StatusInternalServerError},
	}
	e := echo.New()
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
			require.NoError(t, writeDomainError(c, tc.err))
			assert.Equal(t, tc.code, rec.Code)
		})
	}
}

func TestWriteDomainErrorHidesInternals(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	require.NoError(t, writeDomainError(c, errors.New("dial tcp 10.0.0.3:3306: timeout")))
	assert.NotContains(t, rec.Body.String(), "10.0.0.3")
}

func TestGetUserIDRepresentations(t *testing.T) {
	e := echo.New()
	for _, v := range []any{uint64(7), int(7), int64(7), float64(7), "7"} {
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
		c.Set("user_id", v)
		id, err := getUserID(c)
		require.NoError(t, err)
		assert.Equal(t, uint64(7), id)
	}

	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	_, err := getUserID(c)
	assert.Error(t, err)
}
