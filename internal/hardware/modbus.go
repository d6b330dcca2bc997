// Package hardware drives the relay boards that physically open lockers.
// The boards speak Modbus RTU over a shared serial bus: a relay pulse is a
// write-single-coil ON frame, a hold for the configured pulse duration,
// then a write-single-coil OFF frame.  This file contains the frame
// encoding; the bus and the per-kiosk command executor live alongside it.
package hardware

import (
    "bytes"
    "encoding/binary"
    "errors"
)

// Modbus RTU function code for write single coil.
const fnWriteCoil = 0x05

// writeCoilFrame builds a write-single-coil request for the given slave
// unit and coil address.  The coil value is 0xFF00 for ON and 0x0000 for
// OFF as required by the protocol.  The CRC is appended little-endian.
func writeCoilFrame(unitID byte, coil uint16, on bool) []byte {
    frame := make([]byte, 8)
    frame[0] = unitID
    frame[1] = fnWriteCoil
    binary.BigEndian.PutUint16(frame[2:4], coil)
    if on {
        binary.BigEndian.PutUint16(frame[4:6], 0xFF00)
    }
    binary.LittleEndian.PutUint16(frame[6:8], crc16(frame[:6]))
    return frame
}

// crc16 computes the Modbus RTU checksum (polynomial 0xA001) over data.
func crc16(data []byte) uint16 {
    crc := uint16(0xFFFF)
    for _, b := range data {
        crc ^= uint16(b)
        for i := 0; i < 8; i++ {
            if crc&0x0001 != 0 {
                crc = (crc >> 1) ^ 0xA001
            } else {
                crc >>= 1
            }
        }
    }
    return crc
}

// errBadEcho indicates the board's response did not echo the request, which
// counts as a transport failure and is retried like a missing response.
var errBadEcho = errors.New("relay response does not echo request")

// verifyEcho checks the board's response against the request frame.  A
// write-single-coil slave echoes the request verbatim; anything shorter or
// different means the frame was corrupted on the wire.
func verifyEcho(request, response []byte) error {
    if !bytes.Equal(request, response) {
        return errBadEcho
    }
    return nil
}
