package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/opencamp/slot-reservation/internal/model"
	"github.com/opencamp/slot-reservation/internal/repository"
	"github.com/opencamp/slot-reservation/internal/service"
	"github.com/opencamp/slot-reservation/internal/waitingroom"
)

// getUserID extracts the authenticated user ID stored in the context by
// the JWT middleware.  JWT numeric claims decode as float64, so several
// representations are tolerated.
func getUserID(c echo.Context) (uint64, error) {
	v := c.Get("user_id")
	switch t := v.(type) {
	case uint64:
		return t, nil
	case int:
		return uint64(t), nil
	case int64:
		return uint64(t), nil
	case float64:
		return uint64(t), nil
	case string:
		if n, err := strconv.ParseUint(t, 10, 64); err == nil {
			return n, nil
		}
	}
	return 0, errors.New("invalid user_id in context")
}

// pathID parses a positive uint64 path parameter.
func pathID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	return id, err == nil && id != 0
}

// writeDomainError translates the typed domain failures into stable HTTP
// responses.  Infrastructure errors fall through to a plain 500 (or 503
// for the transient token-issuance case) so no raw internals leak.
func writeDomainError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, repository.ErrSlotNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "slot not found"})
	case errors.Is(err, repository.ErrEventNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "event not found"})
	case errors.Is(err, repository.ErrReservationNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "reservation not found"})
	case errors.Is(err, repository.ErrUserNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
	case errors.Is(err, service.ErrSlotFull):
		return c.JSON(http.StatusConflict, echo.Map{"error": "slot full"})
	case errors.Is(err, service.ErrDuplicateReservation):
		return c.JSON(http.StatusConflict, echo.Map{"error": "you already reserved this slot"})
	case errors.Is(err, service.ErrTeamAlreadyReserved):
		return c.JSON(http.StatusConflict, echo.Map{"error": "your team already reserved this slot"})
	case errors.Is(err, service.ErrOptimisticLockConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": "concurrent update, please retry"})
	case errors.Is(err, service.ErrAlreadyCancelled):
		return c.JSON(http.StatusConflict, echo.Map{"error": "reservation already cancelled"})
	case errors.Is(err, service.ErrReservationPending):
		return c.JSON(http.StatusConflict, echo.Map{"error": "reservation not confirmed yet, retry shortly"})
	case errors.Is(err, service.ErrUnauthorized):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "not your reservation"})
	case errors.Is(err, service.ErrTrackIneligible):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "not eligible for this event's track"})
	case errors.Is(err, service.ErrAdmissionRequired):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "admission token required"})
	case errors.Is(err, service.ErrGroupRequired):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "group number required for team events"})
	case errors.Is(err, waitingroom.ErrTokenIssuanceExhausted):
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "admission busy, retry shortly"})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
}

// reservationJSON is the wire shape of a reservation.
type reservationJSON struct {
	ID          uint64  `json:"id"`
	UserID      uint64  `json:"user_id"`
	SlotID      uint64  `json:"slot_id"`
	GroupNumber *uint32 `json:"group_number,omitempty"`
	Status      string  `json:"status"`
	ReservedAt  string  `json:"reserved_at"`
}

func toReservationJSON(r model.Reservation) reservationJSON {
	return reservationJSON{
		ID:          r.ID,
		UserID:      r.UserID,
		SlotID:      r.SlotID,
		GroupNumber: r.GroupNumber,
		Status:      r.Status,
		ReservedAt:  r.ReservedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
}
