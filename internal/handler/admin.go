package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/opencamp/slot-reservation/internal/ledger"
	"github.com/opencamp/slot-reservation/internal/model"
	"github.com/opencamp/slot-reservation/internal/repository"
)

// AdminHandler exposes organizer CRUD for events and slots.  Slot
// creation also seeds the Redis stock counter so the admission fast
// path works from the first request.
type AdminHandler struct {
	Events *repository.EventRepo
	Slots  *repository.SlotRepo
	Ledger *ledger.Client
}

// NewAdminHandler constructs an AdminHandler.  All dependencies must be
// non-nil.
func NewAdminHandler(events *repository.EventRepo, slots *repository.SlotRepo, led *ledger.Client) *AdminHandler {
	if events == nil || slots == nil || led == nil {
		panic("nil dependency passed to NewAdminHandler")
	}
	return &AdminHandler{Events: events, Slots: slots, Ledger: led}
}

// CreateEvent handles POST /v1/admin/events.
func (h *AdminHandler) CreateEvent(c echo.Context) error {
	var body struct {
		Title             string `json:"title"`
		Track             string `json:"track"`
		ParticipationMode string `json:"participation_mode"`
		OrganizationID    uint64 `json:"organization_id"`
	}
	if err := c.Bind(&body); err != nil || body.Title == "" || body.OrganizationID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "title and organization_id are required"})
	}
	if body.ParticipationMode == "" {
		body.ParticipationMode = model.ModeIndividual
	}
	if body.ParticipationMode != model.ModeIndividual && body.ParticipationMode != model.ModeTeam {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "participation_mode must be INDIVIDUAL or TEAM"})
	}

	ev := &model.Event{
		Title:             body.Title,
		Track:             body.Track,
		ParticipationMode: body.ParticipationMode,
		OrganizationID:    body.OrganizationID,
	}
	if err := h.Events.Create(c.Request().Context(), ev); err != nil {
		return writeDomainError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"id": ev.ID})
}

// CreateSlot handles POST /v1/admin/slots.  The slot row, its capacity
// row and the Redis stock counter are all created here.
func (h *AdminHandler) CreateSlot(c echo.Context) error {
	var body struct {
		EventID     uint64 `json:"event_id"`
		Title       string `json:"title"`
		StartsAt    string `json:"starts_at"`
		EndsAt      string `json:"ends_at"`
		MaxCapacity int64  `json:"max_capacity"`
	}
	if err := c.Bind(&body); err != nil || body.EventID == 0 || body.MaxCapacity <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "event_id and a positive max_capacity are required"})
	}
	startsAt, err := time.Parse(time.RFC3339, body.StartsAt)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "starts_at must be RFC3339"})
	}
	endsAt, err := time.Parse(time.RFC3339, body.EndsAt)
	if err != nil || !endsAt.After(startsAt) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "ends_at must be RFC3339 and after starts_at"})
	}

	ctx := c.Request().Context()
	if _, err := h.Events.GetByID(ctx, body.EventID); err != nil {
		return writeDomainError(c, err)
	}

	slot := &model.Slot{
		EventID:  body.EventID,
		Title:    body.Title,
		StartsAt: startsAt.UTC(),
		EndsAt:   endsAt.UTC(),
	}
	if err := h.Slots.CreateWithCapacity(ctx, slot, body.MaxCapacity); err != nil {
		return writeDomainError(c, err)
	}
	remaining, err := h.Ledger.Init(ctx, slot.ID, body.MaxCapacity, 0)
	if err != nil {
		// The durable rows exist; the counter will be fixed by the next
		// startup resync. Report but do not fail the creation.
		c.Logger().Warnf("slot %d created but ledger init failed: %v", slot.ID, err)
		remaining = body.MaxCapacity
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"id":        slot.ID,
		"remaining": remaining,
	})
}
