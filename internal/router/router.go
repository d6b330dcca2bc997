package router // package router defines how HTTP routes are registered for the API

import (
    "github.com/labstack/echo/v4" // import the Echo web framework to handle routing

    "github.com/lokkit/kiosk-server/internal/broadcast"  // WebSocket state stream handler
    "github.com/lokkit/kiosk-server/internal/handler"    // import the handlers that implement business logic
    "github.com/lokkit/kiosk-server/internal/middleware" // import middleware for staff authentication and rate limiting
)

// RegisterRoutes registers routes that do not require authentication on
// the provided Echo instance.  Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo) {
    // Load balancers and the fleet monitor hit this to verify the
    // process is up.
    e.GET("/healthz", handler.Health)
}

// RegisterKiosk registers the endpoints driven by the kiosk touch UI and
// the admin panel's occupancy views.  rateLimit protects the scan and
// selection endpoints from runaway clients; pass echo's no-op middleware
// when the limiter is disabled.
func RegisterKiosk(e *echo.Echo, k *handler.KioskHandler, l *handler.LockerHandler, rateLimit echo.MiddlewareFunc) {
    api := e.Group("/api", rateLimit)

    // Occupancy reads.  Available backs the candidate list shown before a
    // scan; All is the snapshot used by the polling reconciliation
    // fallback in every UI.
    api.GET("/lockers/available", l.Available)
    api.GET("/lockers/all", l.All)

    // The scan-to-assignment flow.  handle-card is the single entry point
    // for a scanned card; select picks a candidate within the session.
    api.POST("/rfid/handle-card", k.HandleCard)
    api.POST("/lockers/select", k.SelectLocker)

    // Direct release for UIs that resolve ownership before calling.
    api.POST("/locker/release", l.Release)

    // Session lifecycle support for the kiosk UI.
    api.POST("/session/cancel", k.CancelSession)
    api.GET("/session/status", k.SessionStatus)
}

// RegisterStaff registers the staff login endpoint and the protected
// master operations.  The protected group applies StaffAuth with the
// provided secret followed by a role check, so only tokens issued by
// StaffLogin reach the handlers.
func RegisterStaff(e *echo.Echo, m *handler.MasterHandler, jwtSecret string) {
    e.POST("/api/staff/login", m.StaffLogin)

    staff := e.Group("/api")
    staff.Use(middleware.StaffAuth(jwtSecret))
    staff.Use(middleware.RequireRole("staff"))
    // Operator override: opens the door but keeps the occupancy record.
    staff.POST("/master/open-locker", m.MasterOpen)
    // Service management of individual lockers.
    staff.POST("/locker/block", m.Block)
    staff.POST("/locker/unblock", m.Unblock)
    staff.POST("/locker/reset", m.Reset)
}

// RegisterStream registers the WebSocket state stream.  Subscribers get a
// connection_status envelope on connect, state_update envelopes for every
// committed transition and heartbeats on an independent cadence.
func RegisterStream(e *echo.Echo, ws *broadcast.WSHandler) {
    e.GET("/ws", ws.Serve)
}
