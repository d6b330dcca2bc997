package main // Entry point package

import (
    "context"
    "log"      // Logging library
    "time"

    "github.com/joho/godotenv"    // .env loading for local development
    "github.com/labstack/echo/v4" // Echo web framework

    "github.com/lokkit/kiosk-server/internal/broadcast"
    "github.com/lokkit/kiosk-server/internal/config" // Internal config loader
    "github.com/lokkit/kiosk-server/internal/database"
    "github.com/lokkit/kiosk-server/internal/engine"
    "github.com/lokkit/kiosk-server/internal/handler"
    "github.com/lokkit/kiosk-server/internal/hardware"
    "github.com/lokkit/kiosk-server/internal/middleware"
    "github.com/lokkit/kiosk-server/internal/queue"
    "github.com/lokkit/kiosk-server/internal/repository"
    "github.com/lokkit/kiosk-server/internal/router" // Internal router setup
    "github.com/lokkit/kiosk-server/internal/session"
    queue_publisher "github.com/lokkit/kiosk-server/internal/service"
)

func main() {
    _ = godotenv.Load() // .env is optional; real deployments set the environment directly
    cfg := config.Load()
    hwCfg := config.LoadHardwareConfig()

    db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
    if err != nil {
        log.Fatalf("database: %v", err)
    }
    repo := repository.NewLockerRepo(db)

    ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
    if err := repo.EnsureSchema(ctx); err != nil {
        log.Fatalf("schema: %v", err)
    }
    if err := repo.EnsureLockers(ctx, cfg.KioskID, cfg.LockerCount); err != nil {
        log.Fatalf("provision lockers: %v", err)
    }
    cancel()

    // The bus may legitimately be absent (no SERIAL_PORT) or broken; the
    // engine keeps running and reports hardware offline per command.
    exec := hardware.NewExecutor(hwCfg)
    bus, err := hardware.OpenBus(hwCfg)
    if err != nil {
        log.Printf("hardware: %v; continuing with bus offline", err)
    }
    if bus != nil {
        exec.RegisterKiosk(cfg.KioskID, bus)
    } else {
        exec.RegisterKiosk(cfg.KioskID, nil)
    }

    rdb := config.NewRedisClient() // may be nil; limiter and cache degrade gracefully
    if rdb == nil {
        log.Printf("redis unavailable; rate limiting and snapshot cache disabled")
    }

    hub := broadcast.NewHub()
    cache := handler.NewOccupancyCache(rdb, 2*time.Second)
    publisher := queue_publisher.NewEventPublisher(cfg.AMQPURL, cfg.KioskID)
    sm := engine.New(repo, exec, broadcast.Fanout{hub, publisher, cache})
    sessions := session.NewManager(repo, sm, cfg.SessionWindow)

    // Fleet-wide event intake: audits every accepted event and re-injects
    // transitions committed by other processes into the local hub.
    go func() {
        if err := queue.StartConsumer(cfg.AMQPURL, cfg.KioskID, hub); err != nil {
            log.Printf("locker-consumer: %v", err)
        }
    }()

    e := echo.New()
    router.RegisterRoutes(e) // health check

    rateLimit := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, cfg.KioskID)
    kioskHandler := handler.NewKioskHandler(sessions)
    lockerHandler := handler.NewLockerHandler(repo, sessions, cache)
    masterHandler := handler.NewMasterHandler(sm, repo, cfg.JWTSecret, cfg.StaffKeyHash, cfg.StaffTTLMin)

    router.RegisterKiosk(e, kioskHandler, lockerHandler, rateLimit)
    router.RegisterStaff(e, masterHandler, cfg.JWTSecret)
    router.RegisterStream(e, broadcast.NewWSHandler(hub, cfg.HeartbeatInterval))

    addr := ":" + cfg.Port
    log.Printf("listening on %s (env=%s kiosk=%s lockers=%d)", addr, cfg.Env, cfg.KioskID, cfg.LockerCount)

    if err := e.Start(addr); err != nil { // Start HTTP server
        log.Fatal(err)
    }
}
