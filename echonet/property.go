package echonet

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// Smart meter property codes used by the decoders below.
const (
	EPCCoefficient     byte = 0xD3
	EPCEnergyUnit      byte = 0xE1
	EPCInstantPower    byte = 0xE7
	EPCInstantCurrent  byte = 0xE8
	EPCFixedTimeNormal byte = 0xEA
)

// singlePhase marks the absent T phase of a single-phase two-wire meter.
const singlePhase uint16 = 0x7FFE

// InstantPower decodes property E7 as signed watts.
func InstantPower(p Property) (int32, error) {
	if len(p.EDT) != 4 {
		return 0, fmt.Errorf("%w: instant power is %d bytes", ErrPropertyData, len(p.EDT))
	}
	return int32(binary.BigEndian.Uint32(p.EDT)), nil
}

// Current is an instantaneous current reading in amperes.
type Current struct {
	R float64
	T float64
	// SinglePhase is set when the meter reports no T phase.
	SinglePhase bool
}

// InstantCurrent decodes property E8: R and T phases in units of 0.1 A.
func InstantCurrent(p Property) (Current, error) {
	if len(p.EDT) != 4 {
		return Current{}, fmt.Errorf("%w: instant current is %d bytes", ErrPropertyData, len(p.EDT))
	}
	r := binary.BigEndian.Uint16(p.EDT[0:2])
	t := binary.BigEndian.Uint16(p.EDT[2:4])
	c := Current{R: float64(int16(r)) / 10}
	if t == singlePhase {
		c.SinglePhase = true
	} else {
		c.T = float64(int16(t)) / 10
	}
	return c, nil
}

// EnergyUnit decodes property E1 into the kWh multiplier of cumulative readings.
func EnergyUnit(p Property) (float64, error) {
	if len(p.EDT) != 1 {
		return 0, fmt.Errorf("%w: energy unit is %d bytes", ErrPropertyData, len(p.EDT))
	}
	var exp int
	switch u := p.EDT[0]; {
	case u <= 0x04:
		exp = -int(u)
	case u >= 0x0A && u <= 0x0D:
		exp = int(u - 0x09)
	default:
		return 0, fmt.Errorf("%w: energy unit %02X", ErrPropertyData, u)
	}
	return math.Pow10(exp), nil
}

// Coefficient decodes property D3. A meter without the property uses 1.
func Coefficient(p Property) (uint32, error) {
	if len(p.EDT) != 4 {
		return 0, fmt.Errorf("%w: coefficient is %d bytes", ErrPropertyData, len(p.EDT))
	}
	return binary.BigEndian.Uint32(p.EDT), nil
}

// ParseDateTime decodes the 7-byte YYYY MM DD hh mm ss stamp that
// accompanies fixed-time readings, interpreted in loc.
func ParseDateTime(b []byte, loc *time.Location) (time.Time, error) {
	if len(b) < 7 {
		return time.Time{}, fmt.Errorf("%w: date-time is %d bytes", ErrPropertyData, len(b))
	}
	year := int(binary.BigEndian.Uint16(b[0:2]))
	return time.Date(year, time.Month(b[2]), int(b[3]), int(b[4]), int(b[5]), int(b[6]), 0, loc), nil
}

// FixedTimeEnergy decodes property EA/EB: a date-time followed by a
// 4-byte cumulative reading in the meter's unit.
func FixedTimeEnergy(p Property, loc *time.Location) (time.Time, uint32, error) {
	if len(p.EDT) != 11 {
		return time.Time{}, 0, fmt.Errorf("%w: fixed-time energy is %d bytes", ErrPropertyData, len(p.EDT))
	}
	at, err := ParseDateTime(p.EDT[0:7], loc)
	if err != nil {
		return time.Time{}, 0, err
	}
	return at, binary.BigEndian.Uint32(p.EDT[7:11]), nil
}
