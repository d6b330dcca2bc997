package handler // handler defines http handlers

import (
    "errors"   // errors provides Is comparisons against sentinel outcomes
    "net/http" // HTTP status codes
    "time"     // timestamp fields on locker views

    "github.com/labstack/echo/v4" // echo defines request context types

    "github.com/lokkit/kiosk-server/internal/engine"
    "github.com/lokkit/kiosk-server/internal/hardware"
    "github.com/lokkit/kiosk-server/internal/model"
    "github.com/lokkit/kiosk-server/internal/repository"
    "github.com/lokkit/kiosk-server/internal/session"
)

// lockerView is the JSON shape returned for locker records.  Owner fields
// are omitted when absent so a FREE locker never carries stale owner data
// to a client.
type lockerView struct {
    KioskID     string             `json:"kiosk_id"`
    LockerID    uint64             `json:"locker_id"`
    Status      model.LockerStatus `json:"status"`
    OwnerType   model.OwnerType    `json:"owner_type,omitempty"`
    OwnerKey    string             `json:"owner_key,omitempty"`
    ReservedAt  *time.Time         `json:"reserved_at,omitempty"`
    OwnedAt     *time.Time         `json:"owned_at,omitempty"`
    Version     uint64             `json:"version"`
    IsVIP       bool               `json:"is_vip"`
    DisplayName string             `json:"display_name,omitempty"`
    UpdatedAt   time.Time          `json:"updated_at"`
}

func viewOf(l model.Locker) lockerView {
    return lockerView{
        KioskID:     l.KioskID,
        LockerID:    l.LockerID,
        Status:      l.Status,
        OwnerType:   l.OwnerType,
        OwnerKey:    l.OwnerKey,
        ReservedAt:  l.ReservedAt,
        OwnedAt:     l.OwnedAt,
        Version:     l.Version,
        IsVIP:       l.IsVIP,
        DisplayName: l.DisplayName,
        UpdatedAt:   l.UpdatedAt,
    }
}

func viewsOf(lockers []model.Locker) []lockerView {
    views := make([]lockerView, 0, len(lockers))
    for _, l := range lockers {
        views = append(views, viewOf(l))
    }
    return views
}

// writeOutcome maps the error taxonomy onto HTTP responses.  Transient
// conditions (conflict, hardware timeout) tell the client a retry can
// help; hardware offline is a maintenance condition and says so.
func writeOutcome(c echo.Context, err error) error {
    switch {
    case errors.Is(err, repository.ErrLockerNotFound):
        return c.JSON(http.StatusNotFound, echo.Map{"error": "locker not found"})
    case errors.Is(err, repository.ErrVersionConflict):
        return c.JSON(http.StatusConflict, echo.Map{"error": "locker unavailable, choose another", "retryable": true})
    case errors.Is(err, engine.ErrInvalidTransition):
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid transition"})
    case errors.Is(err, hardware.ErrOffline):
        return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "hardware offline, staff notified"})
    case errors.Is(err, hardware.ErrTimeout):
        return c.JSON(http.StatusBadGateway, echo.Map{"error": "hardware did not respond", "retryable": true})
    case errors.Is(err, session.ErrSessionExpired):
        return c.JSON(http.StatusGone, echo.Map{"error": "session expired, scan again"})
    case errors.Is(err, session.ErrSessionInvalid):
        return c.JSON(http.StatusNotFound, echo.Map{"error": "session not found"})
    case errors.Is(err, session.ErrNotCandidate):
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "locker not offered in this session"})
    case errors.Is(err, session.ErrNoFreeLockers):
        return c.JSON(http.StatusConflict, echo.Map{"error": "no free lockers"})
    default:
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
    }
}
