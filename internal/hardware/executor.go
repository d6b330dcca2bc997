package hardware

import (
    "context"
    "errors"
    "fmt"
    "log"
    "time"

    "github.com/lokkit/kiosk-server/internal/config"
    "github.com/lokkit/kiosk-server/internal/model"
)

// Executor serialises relay commands onto kiosk buses.  Each registered
// kiosk gets one worker goroutine draining a FIFO queue, so exactly one
// command is in flight per bus at any time while different kiosks proceed
// fully in parallel.  Every submitted command resolves to an explicit
// outcome; nothing is dropped silently.
type Executor struct {
    cfg    config.HardwareConfig
    queues map[string]*kioskQueue
}

type kioskQueue struct {
    bus  Bus
    jobs chan job
}

type job struct {
    ctx   context.Context
    cmd   *model.HardwareCommand
    reply chan error
}

// NewExecutor returns an Executor with no kiosks registered.  Kiosks are
// registered once during startup, before any traffic; the executor is not
// safe for concurrent registration.
func NewExecutor(cfg config.HardwareConfig) *Executor {
    if cfg.MaxRetries < 0 {
        cfg.MaxRetries = 0
    }
    return &Executor{cfg: cfg, queues: make(map[string]*kioskQueue)}
}

// RegisterKiosk attaches a bus to a kiosk id and starts its command
// worker.  A nil bus is allowed and makes every command for that kiosk
// fail fast with ErrOffline, which lets a hardware-less deployment keep
// the rest of the engine running.
func (e *Executor) RegisterKiosk(kioskID string, bus Bus) {
    q := &kioskQueue{bus: bus, jobs: make(chan job, 16)}
    e.queues[kioskID] = q
    go e.drain(kioskID, q)
}

// Execute submits a command for its kiosk and blocks until the terminal
// outcome is known.  Cancelling the context abandons a command that is
// still queued, but once a command starts it always runs to completion so
// physical and logical state cannot diverge mid-pulse.
func (e *Executor) Execute(ctx context.Context, cmd *model.HardwareCommand) error {
    q, ok := e.queues[cmd.KioskID]
    if !ok {
        return fmt.Errorf("kiosk %s: %w", cmd.KioskID, ErrOffline)
    }
    jb := job{ctx: ctx, cmd: cmd, reply: make(chan error, 1)}
    select {
    case q.jobs <- jb:
    case <-ctx.Done():
        return ctx.Err()
    }
    return <-jb.reply
}

// drain is the per-kiosk worker.  It enforces the idle gap between
// consecutive commands required by the relay firmware.
func (e *Executor) drain(kioskID string, q *kioskQueue) {
    for jb := range q.jobs {
        if err := jb.ctx.Err(); err != nil {
            // The caller gave up while the command was still queued; it
            // never touched the bus, so skipping is safe.
            jb.reply <- err
            continue
        }
        jb.reply <- e.run(kioskID, q.bus, jb.cmd)
        if e.cfg.CommandInterval > 0 {
            time.Sleep(e.cfg.CommandInterval)
        }
    }
}

// run performs the pulse with retries and reports a terminal outcome.
func (e *Executor) run(kioskID string, bus Bus, cmd *model.HardwareCommand) error {
    if bus == nil || !bus.Ready() {
        // Offline is not a failed pulse: it consumes no retries and
        // nothing will change until an operator intervenes.
        return fmt.Errorf("kiosk %s: %w", kioskID, ErrOffline)
    }
    pulse := cmd.PulseMs
    if pulse <= 0 {
        pulse = e.cfg.PulseDuration
    }
    var lastErr error
    for attempt := 1; attempt <= e.cfg.MaxRetries+1; attempt++ {
        cmd.Attempts = attempt
        err := e.pulseOnce(bus, cmd.RelayChannel, pulse)
        if err == nil {
            return nil
        }
        if errors.Is(err, ErrOffline) {
            return err
        }
        lastErr = err
        log.Printf("executor: kiosk=%s locker=%d attempt=%d pulse failed: %v",
            kioskID, cmd.LockerID, attempt, err)
    }
    return fmt.Errorf("%w: locker %d after %d attempts: %v",
        ErrTimeout, cmd.LockerID, cmd.Attempts, lastErr)
}

// pulseOnce energises the relay, holds it for the pulse duration and
// releases it.  A failed OFF frame fails the whole attempt; the retry then
// re-drives both frames, which the relay boards tolerate.
func (e *Executor) pulseOnce(bus Bus, channel uint16, pulse time.Duration) error {
    if err := bus.WriteCoil(channel, true); err != nil {
        return err
    }
    time.Sleep(pulse)
    return bus.WriteCoil(channel, false)
}
