package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/opencamp/slot-reservation/internal/ledger"
	"github.com/opencamp/slot-reservation/internal/repository"
)

// BrowseHandler exposes unauthenticated availability browsing.  The
// remaining count is read from the Redis ledger for cheapness and falls
// back to the durable capacity row on a miss; either way it is a hint,
// not a promise.
type BrowseHandler struct {
	Events *repository.EventRepo
	Slots  *repository.SlotRepo
	Ledger *ledger.Client
}

// NewBrowseHandler constructs a BrowseHandler.
func NewBrowseHandler(events *repository.EventRepo, slots *repository.SlotRepo, led *ledger.Client) *BrowseHandler {
	if events == nil || slots == nil || led == nil {
		panic("nil dependency passed to NewBrowseHandler")
	}
	return &BrowseHandler{Events: events, Slots: slots, Ledger: led}
}

// ListEventSlots handles GET /v1/events/:id/slots.
func (h *BrowseHandler) ListEventSlots(c echo.Context) error {
	eventID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event id"})
	}
	ctx := c.Request().Context()
	ev, err := h.Events.GetByID(ctx, eventID)
	if err != nil {
		return writeDomainError(c, err)
	}
	slots, caps, err := h.Slots.ListByEvent(ctx, eventID)
	if err != nil {
		return writeDomainError(c, err)
	}

	type slotJSON struct {
		ID          uint64 `json:"id"`
		Title       string `json:"title"`
		StartsAt    string `json:"starts_at"`
		EndsAt      string `json:"ends_at"`
		MaxCapacity int64  `json:"max_capacity"`
		Remaining   int64  `json:"remaining"`
	}
	out := make([]slotJSON, 0, len(slots))
	for i, s := range slots {
		remaining := caps[i].Remaining()
		if n, ok, err := h.Ledger.Remaining(ctx, s.ID); err == nil && ok {
			remaining = n
		}
		out = append(out, slotJSON{
			ID:          s.ID,
			Title:       s.Title,
			StartsAt:    s.StartsAt.UTC().Format(time.RFC3339),
			EndsAt:      s.EndsAt.UTC().Format(time.RFC3339),
			MaxCapacity: caps[i].MaxCapacity,
			Remaining:   remaining,
		})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"event_id":           ev.ID,
		"title":              ev.Title,
		"track":              ev.Track,
		"participation_mode": ev.ParticipationMode,
		"slots":              out,
	})
}
