package config

// This file defines the configuration for the relay hardware attached to a
// kiosk.  Each kiosk owns exactly one serial bus; the executor serialises
// all pulses through it.  Values come from environment variables so the
// same binary can drive different relay boards per deployment.

import "time"

// HardwareConfig holds the serial bus and pulse timing parameters consumed
// by the hardware executor.
type HardwareConfig struct {
    SerialPort      string        // device path, e.g. /dev/ttyUSB0; empty disables the bus
    BaudRate        int           // bus speed, 9600 for the stock relay boards
    Parity          string        // "N", "E" or "O"
    UnitID          byte          // Modbus slave address of the relay board
    PulseDuration   time.Duration // how long a relay stays energised per open
    CommandInterval time.Duration // idle gap enforced between consecutive commands
    ReadTimeout     time.Duration // deadline for reading the echo frame
    MaxRetries      int           // transport-failure retries per command
}

// LoadHardwareConfig reads hardware settings from the environment.  All
// values have defaults matching the stock 16-channel relay board, so a dev
// machine without hardware only needs to leave SERIAL_PORT unset.
func LoadHardwareConfig() HardwareConfig {
    return HardwareConfig{
        SerialPort:      getenv("SERIAL_PORT", ""),
        BaudRate:        atoi(getenv("SERIAL_BAUD", "9600")),
        Parity:          getenv("SERIAL_PARITY", "N"),
        UnitID:          byte(atoi(getenv("RELAY_UNIT_ID", "1"))),
        PulseDuration:   time.Duration(atoi(getenv("RELAY_PULSE_MS", "500"))) * time.Millisecond,
        CommandInterval: time.Duration(atoi(getenv("RELAY_COMMAND_INTERVAL_MS", "150"))) * time.Millisecond,
        ReadTimeout:     time.Duration(atoi(getenv("SERIAL_READ_TIMEOUT_MS", "300"))) * time.Millisecond,
        MaxRetries:      atoi(getenv("RELAY_MAX_RETRIES", "2")),
    }
}
