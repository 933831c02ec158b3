package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/opencamp/slot-reservation/internal/service"
)

// ReservationHandler exposes the reservation intake, cancellation and
// listing endpoints.  Intake returns 202 immediately: the authoritative
// confirm/reject decision happens asynchronously in the worker and shows
// up on a later listing.
type ReservationHandler struct {
	Svc *service.ReservationService
}

// NewReservationHandler constructs a ReservationHandler.
func NewReservationHandler(svc *service.ReservationService) *ReservationHandler {
	if svc == nil {
		panic("nil service passed to NewReservationHandler")
	}
	return &ReservationHandler{Svc: svc}
}

// Create handles POST /v1/reservations.  Requires a live admission
// token; the body carries the slot to reserve.
func (h *ReservationHandler) Create(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body struct {
		SlotID uint64 `json:"slot_id"`
	}
	if err := c.Bind(&body); err != nil || body.SlotID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "slot_id is required"})
	}

	res, err := h.Svc.Reserve(c.Request().Context(), userID, body.SlotID)
	if err != nil {
		return writeDomainError(c, err)
	}
	return c.JSON(http.StatusAccepted, echo.Map{
		"status":         res.Status,
		"reservation_id": res.ID,
		"message":        "reservation accepted, confirmation in progress",
	})
}

// Cancel handles DELETE /v1/reservations/:id.
func (h *ReservationHandler) Cancel(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
	}

	res, err := h.Svc.Cancel(c.Request().Context(), userID, id)
	if err != nil {
		return writeDomainError(c, err)
	}
	return c.JSON(http.StatusOK, toReservationJSON(*res))
}

// ListMine handles GET /v1/reservations and returns the caller's
// reservations, newest first.
func (h *ReservationHandler) ListMine(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	list, err := h.Svc.ListMine(c.Request().Context(), userID)
	if err != nil {
		return writeDomainError(c, err)
	}
	out := make([]reservationJSON, 0, len(list))
	for _, r := range list {
		out = append(out, toReservationJSON(r))
	}
	return c.JSON(http.StatusOK, echo.Map{"reservations": out})
}
