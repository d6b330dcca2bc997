package hardware

import (
    "errors"
    "fmt"
    "sync"

    "go.bug.st/serial"

    "github.com/lokkit/kiosk-server/internal/config"
)

// ErrOffline is reported when the serial bus is unreachable (port never
// opened or since closed).  It is a distinct, non-retryable condition: a
// command failing this way consumes no retries and the locker involved is
// parked in ERROR until an operator reset.
var ErrOffline = errors.New("hardware offline")

// ErrTimeout is reported when a pulse went unacknowledged after the
// configured number of retries.  Unlike ErrOffline it is worth retrying at
// the user level once the transient condition clears.
var ErrTimeout = errors.New("hardware timeout")

// Bus abstracts one kiosk's serial link to its relay board.  The bus is a
// shared, non-reentrant resource: callers must not interleave coil writes,
// which the executor guarantees by serialising commands per kiosk.
type Bus interface {
    // WriteCoil sets a single relay channel on or off and waits for the
    // board's acknowledgement.  A transport-level failure (no response,
    // corrupted echo) is returned as an ordinary error; an unreachable bus
    // is returned as ErrOffline.
    WriteCoil(coil uint16, on bool) error

    // Ready reports whether the bus can accept commands at all.
    Ready() bool

    // Close releases the underlying port.
    Close() error
}

// ModbusBus is the production Bus over a real serial port.  All access is
// funnelled through a mutex so a pulse's ON and OFF frames can never be
// interleaved with another command's traffic.
type ModbusBus struct {
    mu     sync.Mutex
    port   serial.Port
    unitID byte
    cfg    config.HardwareConfig
}

// OpenBus opens the configured serial port and returns a ready ModbusBus.
// An empty SerialPort means the deployment has no hardware attached; a nil
// bus is returned with no error and the executor will report ErrOffline
// for every command.
func OpenBus(cfg config.HardwareConfig) (*ModbusBus, error) {
    if cfg.SerialPort == "" {
        return nil, nil
    }
    mode := &serial.Mode{
        BaudRate: cfg.BaudRate,
        DataBits: 8,
        Parity:   parityFrom(cfg.Parity),
        StopBits: serial.OneStopBit,
    }
    port, err := serial.Open(cfg.SerialPort, mode)
    if err != nil {
        return nil, fmt.Errorf("open serial port %s: %w", cfg.SerialPort, err)
    }
    if err := port.SetReadTimeout(cfg.ReadTimeout); err != nil {
        _ = port.Close()
        return nil, fmt.Errorf("set read timeout: %w", err)
    }
    return &ModbusBus{port: port, unitID: cfg.UnitID, cfg: cfg}, nil
}

func parityFrom(s string) serial.Parity {
    switch s {
    case "E", "e":
        return serial.EvenParity
    case "O", "o":
        return serial.OddParity
    default:
        return serial.NoParity
    }
}

// WriteCoil sends one write-single-coil frame and reads back the echo.
func (b *ModbusBus) WriteCoil(coil uint16, on bool) error {
    b.mu.Lock()
    defer b.mu.Unlock()
    if b.port == nil {
        return ErrOffline
    }
    frame := writeCoilFrame(b.unitID, coil, on)
    if err := b.port.ResetInputBuffer(); err != nil {
        return fmt.Errorf("reset input buffer: %w", err)
    }
    if _, err := b.port.Write(frame); err != nil {
        return fmt.Errorf("write coil frame: %w", err)
    }
    // The board echoes the 8-byte request.  SetReadTimeout bounds each
    // Read; a short read within the deadline is a transport failure.
    echo := make([]byte, len(frame))
    read := 0
    for read < len(echo) {
        n, err := b.port.Read(echo[read:])
        if err != nil {
            return fmt.Errorf("read coil echo: %w", err)
        }
        if n == 0 {
            return fmt.Errorf("read coil echo: timed out after %d of %d bytes", read, len(echo))
        }
        read += n
    }
    return verifyEcho(frame, echo)
}

// Ready reports whether the port is open.
func (b *ModbusBus) Ready() bool {
    b.mu.Lock()
    defer b.mu.Unlock()
    return b.port != nil
}

// Close shuts the port; subsequent commands fail with ErrOffline.
func (b *ModbusBus) Close() error {
    b.mu.Lock()
    defer b.mu.Unlock()
    if b.port == nil {
        return nil
    }
    err := b.port.Close()
    b.port = nil
    return err
}
