package handler

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/opencamp/slot-reservation/internal/waitingroom"
)

// QueueHandler exposes the waiting-room endpoints.  Admission is
// pull-based: clients poll Status and a token appears once they reach
// the admission window; the poll itself is the heartbeat.
type QueueHandler struct {
	Room *waitingroom.Room
}

// NewQueueHandler constructs a QueueHandler.
func NewQueueHandler(room *waitingroom.Room) *QueueHandler {
	if room == nil {
		panic("nil room passed to NewQueueHandler")
	}
	return &QueueHandler{Room: room}
}

// Enter handles POST /v1/queue/:eventId/enter.  A camper joins (or
// rejoins) the event's waiting room.  Re-entry with a new session (page
// reload, reconnect) keeps the original position; only the session
// pointer is replaced.
func (h *QueueHandler) Enter(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	eventID, ok := pathID(c, "eventId")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event id"})
	}
	var body struct {
		SessionID string `json:"session_id"`
	}
	// Body is optional; a fresh session id is minted when absent.
	_ = c.Bind(&body)
	sessionID := body.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	res, err := h.Room.Enter(c.Request().Context(), eventID, userID, sessionID)
	if err != nil {
		return writeDomainError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"position":      res.Position,
		"is_new":        res.IsNew,
		"session_id":    sessionID,
		"total_waiting": res.TotalWaiting,
	})
}

// Status handles GET /v1/queue/:eventId/status.  Returns the caller's
// position, or the admission token once their rank falls inside the
// window.  Position is null when not applicable.
func (h *QueueHandler) Status(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	eventID, ok := pathID(c, "eventId")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event id"})
	}

	st, err := h.Room.Status(c.Request().Context(), eventID, userID)
	if err != nil {
		return writeDomainError(c, err)
	}

	var position any
	if st.InQueue && !st.HasToken {
		position = st.Position
	}
	var expiresAt any
	if st.TokenExpiresAt != nil {
		expiresAt = st.TokenExpiresAt.UTC().Format(time.RFC3339)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"position":         position,
		"total_waiting":    st.TotalWaiting,
		"has_token":        st.HasToken,
		"in_queue":         st.InQueue,
		"token_expires_at": expiresAt,
	})
}
