package model

import "time"

// HardwareCommand describes one relay pulse to be executed on a kiosk's
// serial bus.  Commands are ephemeral: they exist only between the state
// machine deciding a transition needs physical actuation and the executor
// reporting a terminal outcome.
type HardwareCommand struct {
    KioskID      string        // kiosk whose bus will carry the pulse
    LockerID     uint64        // locker being actuated, for logging
    RelayChannel uint16        // coil address on the relay board
    PulseMs      time.Duration // how long the relay stays energised; 0 uses the bus default
    Attempts     int           // populated by the executor with the total attempts made
}
