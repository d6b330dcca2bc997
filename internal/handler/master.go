package handler

import (
    "context"  // context is threaded through the engine transitions
    "net/http" // HTTP status codes
    "time"     // token expiry formatting

    "github.com/labstack/echo/v4" // Echo web framework

    "github.com/lokkit/kiosk-server/internal/engine"
    "github.com/lokkit/kiosk-server/internal/model"
    "github.com/lokkit/kiosk-server/internal/repository"
    "github.com/lokkit/kiosk-server/internal/utils"
)

// MasterHandler serves the staff endpoints: master open, block, unblock
// and operator reset.  All of them bypass sessions but still go through
// the state machine, so the transition graph and CAS guarantees hold for
// staff exactly as for kiosks.
type MasterHandler struct {
    Engine       *engine.StateMachine
    Store        repository.LockerStore
    JWTSecret    string
    StaffKeyHash string
    StaffTTLMin  int
}

// NewMasterHandler constructs a MasterHandler.  Engine and store must be
// non-nil.
func NewMasterHandler(sm *engine.StateMachine, store repository.LockerStore, jwtSecret, staffKeyHash string, staffTTLMin int) *MasterHandler {
    if sm == nil || store == nil {
        panic("nil dependency passed to NewMasterHandler")
    }
    return &MasterHandler{
        Engine:       sm,
        Store:        store,
        JWTSecret:    jwtSecret,
        StaffKeyHash: staffKeyHash,
        StaffTTLMin:  staffTTLMin,
    }
}

// StaffLogin handles POST /api/staff/login.  The presented master key is
// checked against the configured bcrypt hash; a matching key yields a
// short-lived staff JWT for the protected endpoints.
func (h *MasterHandler) StaffLogin(c echo.Context) error {
    var body struct {
        MasterKey string `json:"master_key"`
        Operator  string `json:"operator"`
    }
    if err := c.Bind(&body); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    if body.MasterKey == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "master_key is required"})
    }
    if !utils.VerifyMasterKey(h.StaffKeyHash, body.MasterKey) {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid master key"})
    }
    operator := body.Operator
    if operator == "" {
        operator = "staff"
    }
    tok, err := utils.NewStaffToken(h.JWTSecret, operator, h.StaffTTLMin)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to issue token"})
    }
    return c.JSON(http.StatusOK, echo.Map{
        "token":      tok.Token,
        "expires_at": tok.Exp.Format(time.RFC3339),
    })
}

// MasterOpen handles POST /api/master/open-locker, the operator override.
// The door pulses through the usual claim path and the prior occupancy is
// restored afterwards, so opening an owned locker does not evict its
// owner.
func (h *MasterHandler) MasterOpen(c echo.Context) error {
    body, ok := h.bindTarget(c)
    if !ok {
        return nil
    }
    locker, err := h.Engine.MasterOpen(c.Request().Context(), body.KioskID, body.LockerID)
    if err != nil {
        return writeOutcome(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"locker": viewOf(locker)})
}

// Block handles POST /api/locker/block.
func (h *MasterHandler) Block(c echo.Context) error {
    return h.adminTransition(c, h.Engine.Block)
}

// Unblock handles POST /api/locker/unblock.
func (h *MasterHandler) Unblock(c echo.Context) error {
    return h.adminTransition(c, h.Engine.Unblock)
}

// Reset handles POST /api/locker/reset.  Only lockers parked in ERROR can
// be reset, and only after an operator verified the hardware; the engine
// enforces the first part.
func (h *MasterHandler) Reset(c echo.Context) error {
    return h.adminTransition(c, h.Engine.Reset)
}

type lockerTarget struct {
    LockerID uint64 `json:"locker_id"`
    KioskID  string `json:"kiosk_id"`
}

// bindTarget binds and validates the common staff request body.  It writes
// the 400 response itself and reports false when the body is unusable.
func (h *MasterHandler) bindTarget(c echo.Context) (lockerTarget, bool) {
    var body lockerTarget
    if err := c.Bind(&body); err != nil {
        _ = c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
        return body, false
    }
    if body.LockerID == 0 || body.KioskID == "" {
        _ = c.JSON(http.StatusBadRequest, echo.Map{"error": "locker_id and kiosk_id are required"})
        return body, false
    }
    return body, true
}

// adminTransition runs a no-hardware staff transition against the current
// record version.  Losing the CAS to a concurrent actor surfaces as a 409
// like everywhere else; staff simply retry against fresh state.
func (h *MasterHandler) adminTransition(c echo.Context, op func(ctx context.Context, kioskID string, lockerID, expectedVersion uint64) (model.Locker, error)) error {
    body, ok := h.bindTarget(c)
    if !ok {
        return nil
    }
    ctx := c.Request().Context()
    current, err := h.Store.Get(ctx, body.KioskID, body.LockerID)
    if err != nil {
        return writeOutcome(c, err)
    }
    locker, err := op(ctx, body.KioskID, body.LockerID, current.Version)
    if err != nil {
        return writeOutcome(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"locker": viewOf(locker)})
}
