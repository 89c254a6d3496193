package tcs34725

import (
	"encoding/binary"
	"fmt"
)

// Bus is a connection to the sensor's fixed address on a two-wire bus. A Tx
// writes w and then, if r is non-empty, reads len(r) bytes into r.
//
// *periph.io/x/conn/v3/i2c.Dev implements Bus.
type Bus interface {
	Tx(w, r []byte) error
}

// TransportError reports a failed bus transaction. Err is the transport's
// error as returned, it is never retried here.
type TransportError struct {
	Op  string
	Reg byte
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("tcs34725: %s register 0x%02x: %v", e.Op, e.Reg, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// The register helpers below issue exactly one transaction each and must be
// called with d.mu held.

func (d *TCS34725) read8(reg byte) (byte, error) {
	var r [1]byte
	if err := d.bus.Tx([]byte{TCS34725_COMMAND_BIT | reg}, r[:]); err != nil {
		return 0, &TransportError{Op: "read", Reg: reg, Err: err}
	}
	return r[0], nil
}

// The chip hands back the two data bytes high byte first.
func (d *TCS34725) read16(reg byte) (uint16, error) {
	var r [2]byte
	if err := d.bus.Tx([]byte{TCS34725_COMMAND_BIT | reg}, r[:]); err != nil {
		return 0, &TransportError{Op: "read", Reg: reg, Err: err}
	}
	return binary.BigEndian.Uint16(r[:]), nil
}

func (d *TCS34725) write8(reg, value byte) error {
	if err := d.bus.Tx([]byte{TCS34725_COMMAND_BIT | reg, value}, nil); err != nil {
		return &TransportError{Op: "write", Reg: reg, Err: err}
	}
	return nil
}

// command sends a special function byte with no payload.
func (d *TCS34725) command(cmd byte) error {
	if err := d.bus.Tx([]byte{TCS34725_COMMAND_BIT | cmd}, nil); err != nil {
		return &TransportError{Op: "command", Reg: cmd, Err: err}
	}
	return nil
}

func (d *TCS34725) readEnable() (byte, error) {
	return d.read8(TCS34725_REGISTER_ENABLE)
}

// writeEnable sets or clears mask in the ENABLE register, reading the current
// value from the chip first so no other bit is touched.
func (d *TCS34725) writeEnable(mask byte, set bool) error {
	cur, err := d.readEnable()
	if err != nil {
		return err
	}
	next := cur &^ mask
	if set {
		next |= mask
	}
	if err := d.write8(TCS34725_REGISTER_ENABLE, next); err != nil {
		return err
	}
	d.enable = next
	return nil
}
