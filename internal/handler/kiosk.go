package handler

import (
    "net/http" // HTTP status codes
    "time"     // RFC3339 formatting of session deadlines

    "github.com/labstack/echo/v4" // Echo web framework

    "github.com/lokkit/kiosk-server/internal/session"
)

// KioskHandler serves the card scan and selection endpoints driven by the
// kiosk touch UI.  All session lifecycle decisions live in the session
// manager; the handler only binds requests and relays outcomes.
type KioskHandler struct {
    Sessions *session.Manager
}

// NewKioskHandler constructs a KioskHandler.  The manager must be non-nil.
func NewKioskHandler(sessions *session.Manager) *KioskHandler {
    if sessions == nil {
        panic("nil session manager passed to NewKioskHandler")
    }
    return &KioskHandler{Sessions: sessions}
}

// HandleCard handles POST /api/rfid/handle-card.  The body carries the
// scanned card and the kiosk it was scanned at.  A card that already owns
// a locker here gets the return flow (the locker opens and is freed); any
// other card gets a new session with the current candidate lockers.
func (h *KioskHandler) HandleCard(c echo.Context) error {
    var body struct {
        CardID  string `json:"card_id"`
        KioskID string `json:"kiosk_id"`
    }
    if err := c.Bind(&body); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    if body.CardID == "" || body.KioskID == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "card_id and kiosk_id are required"})
    }

    res, err := h.Sessions.HandleCard(c.Request().Context(), body.KioskID, body.CardID)
    if err != nil {
        return writeOutcome(c, err)
    }
    if res.Released != nil {
        return c.JSON(http.StatusOK, echo.Map{
            "flow":   "return",
            "locker": viewOf(*res.Released),
        })
    }
    return c.JSON(http.StatusCreated, echo.Map{
        "flow":       "session",
        "session_id": res.Session.ID,
        "candidates": res.Session.Candidates,
        "expires_at": res.Session.ExpiresAt.Format(time.RFC3339),
    })
}

// SelectLocker handles POST /api/lockers/select.  The locker must be one
// of the session's candidates and kiosk_id, when sent, must match the
// session's kiosk; the composite reserve-and-open transition runs and the
// session ends whatever the outcome.
func (h *KioskHandler) SelectLocker(c echo.Context) error {
    var body struct {
        LockerID  uint64 `json:"locker_id"`
        KioskID   string `json:"kiosk_id"`
        SessionID string `json:"session_id"`
    }
    if err := c.Bind(&body); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    if body.LockerID == 0 || body.SessionID == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "locker_id and session_id are required"})
    }

    locker, err := h.Sessions.Select(c.Request().Context(), body.KioskID, body.SessionID, body.LockerID)
    if err != nil {
        return writeOutcome(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"locker": viewOf(locker)})
}

// CancelSession handles POST /api/session/cancel.  Staff actions and
// client disconnects land here; a selection already past its claim is not
// aborted, matching the rule that in-flight actuation runs to completion.
func (h *KioskHandler) CancelSession(c echo.Context) error {
    var body struct {
        KioskID string `json:"kiosk_id"`
        Reason  string `json:"reason"`
    }
    if err := c.Bind(&body); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    if body.KioskID == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "kiosk_id is required"})
    }
    if body.Reason == "" {
        body.Reason = "client_request"
    }
    if err := h.Sessions.Cancel(body.KioskID, body.Reason); err != nil {
        return writeOutcome(c, err)
    }
    return c.NoContent(http.StatusNoContent)
}

// SessionStatus handles GET /api/session/status.  Kiosk UIs call it after
// a reload to resume a live session instead of forcing a re-scan.
func (h *KioskHandler) SessionStatus(c echo.Context) error {
    kioskID := c.QueryParam("kiosk_id")
    if kioskID == "" {
        kioskID = c.QueryParam("kioskId")
    }
    if kioskID == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "kiosk_id is required"})
    }
    sess, ok := h.Sessions.Status(kioskID)
    if !ok {
        return c.JSON(http.StatusOK, echo.Map{"active": false})
    }
    return c.JSON(http.StatusOK, echo.Map{
        "active":     true,
        "session_id": sess.ID,
        "candidates": sess.Candidates,
        "expires_at": sess.ExpiresAt.Format(time.RFC3339),
    })
}
