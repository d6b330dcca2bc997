package handler

import (
    "context"       // context for cache operations detached from requests
    "encoding/json" // snapshot cache serialisation
    "net/http"      // HTTP status codes
    "time"          // cache TTL

    "github.com/labstack/echo/v4"   // Echo web framework
    "github.com/redis/go-redis/v9"  // snapshot cache backend

    "github.com/lokkit/kiosk-server/internal/model"
    "github.com/lokkit/kiosk-server/internal/repository"
    "github.com/lokkit/kiosk-server/internal/session"
)

// LockerHandler serves occupancy reads and the direct release endpoint.
// Snapshot reads go through a short-lived Redis cache because the polling
// reconciliation fallback in the UIs hits /api/lockers/all on a fixed
// interval from every connected panel.
type LockerHandler struct {
    Store    repository.LockerStore
    Sessions *session.Manager
    Cache    *OccupancyCache
}

// NewLockerHandler constructs a LockerHandler.  Cache may be nil when no
// Redis is available; reads then always hit the store.
func NewLockerHandler(store repository.LockerStore, sessions *session.Manager, cache *OccupancyCache) *LockerHandler {
    if store == nil || sessions == nil {
        panic("nil dependency passed to NewLockerHandler")
    }
    return &LockerHandler{Store: store, Sessions: sessions, Cache: cache}
}

// Available handles GET /api/lockers/available.  It returns the lockers a
// new session would offer right now.  The list is advisory; the CAS on
// selection is what actually guarantees exclusivity.
func (h *LockerHandler) Available(c echo.Context) error {
    kioskID := c.QueryParam("kioskId")
    if kioskID == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "kioskId is required"})
    }
    free, err := h.Store.ListByStatus(c.Request().Context(), kioskID, model.StatusFree)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
    }
    return c.JSON(http.StatusOK, echo.Map{"lockers": viewsOf(free)})
}

// All handles GET /api/lockers/all.  It returns the full occupancy
// snapshot for a kiosk, served from the Redis cache when fresh.
func (h *LockerHandler) All(c echo.Context) error {
    kioskID := c.QueryParam("kioskId")
    if kioskID == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "kioskId is required"})
    }
    ctx := c.Request().Context()
    if views, ok := h.Cache.Get(ctx, kioskID); ok {
        return c.JSON(http.StatusOK, echo.Map{"lockers": views})
    }
    lockers, err := h.Store.List(ctx, kioskID)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
    }
    views := viewsOf(lockers)
    h.Cache.Set(ctx, kioskID, views)
    return c.JSON(http.StatusOK, echo.Map{"lockers": views})
}

// Release handles POST /api/locker/release, the direct return flow for a
// card that already owns a locker.  It is the same path HandleCard takes
// for an owning card, exposed separately for UIs that resolve ownership
// up front.
func (h *LockerHandler) Release(c echo.Context) error {
    var body struct {
        CardID  string `json:"cardId"`
        KioskID string `json:"kioskId"`
    }
    if err := c.Bind(&body); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    if body.CardID == "" || body.KioskID == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "cardId and kioskId are required"})
    }
    res, err := h.Sessions.HandleCard(c.Request().Context(), body.KioskID, body.CardID)
    if err != nil {
        return writeOutcome(c, err)
    }
    if res.Released == nil {
        // The card owns nothing here; a session was opened, which is not
        // what this endpoint is for.  Drop it and tell the client.
        _ = h.Sessions.Cancel(body.KioskID, "release_without_ownership")
        return c.JSON(http.StatusNotFound, echo.Map{"error": "card owns no locker at this kiosk"})
    }
    return c.JSON(http.StatusOK, echo.Map{"locker": viewOf(*res.Released)})
}

// OccupancyCache is the short-TTL Redis cache in front of the occupancy
// snapshot.  It also satisfies the engine's Publisher interface: every
// committed transition invalidates the kiosk's cached snapshot so polling
// clients never observe state older than one transition.
type OccupancyCache struct {
    rdb *redis.Client
    ttl time.Duration
}

// NewOccupancyCache builds the cache.  rdb may be nil; all operations
// then degrade to no-ops.
func NewOccupancyCache(rdb *redis.Client, ttl time.Duration) *OccupancyCache {
    if ttl <= 0 {
        ttl = 2 * time.Second
    }
    return &OccupancyCache{rdb: rdb, ttl: ttl}
}

func (oc *OccupancyCache) key(kioskID string) string { return "occupancy:" + kioskID }

// Get returns the cached snapshot and whether it was present.
func (oc *OccupancyCache) Get(ctx context.Context, kioskID string) ([]lockerView, bool) {
    if oc == nil || oc.rdb == nil {
        return nil, false
    }
    raw, err := oc.rdb.Get(ctx, oc.key(kioskID)).Bytes()
    if err != nil {
        return nil, false
    }
    var views []lockerView
    if err := json.Unmarshal(raw, &views); err != nil {
        return nil, false
    }
    return views, true
}

// Set stores the snapshot with the cache TTL.  Failures are ignored; the
// cache is an optimisation, not a source of truth.
func (oc *OccupancyCache) Set(ctx context.Context, kioskID string, views []lockerView) {
    if oc == nil || oc.rdb == nil {
        return
    }
    raw, err := json.Marshal(views)
    if err != nil {
        return
    }
    oc.rdb.Set(ctx, oc.key(kioskID), raw, oc.ttl)
}

// Publish invalidates the kiosk's snapshot.  It runs on the engine's
// publish path, so it must not block on request contexts.
func (oc *OccupancyCache) Publish(ev model.StateUpdateEvent) {
    if oc == nil || oc.rdb == nil {
        return
    }
    ctx, cancel := context.WithTimeout(context.Background(), time.Second)
    defer cancel()
    oc.rdb.Del(ctx, oc.key(ev.KioskID))
}
