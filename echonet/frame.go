package echonet

import (
	"encoding/binary"
	"fmt"
)

// Frame layout constants.
const (
	// EHD is the two-byte header of every ECHONET Lite frame (EHD1=0x10, EHD2=0x81).
	EHD uint16 = 0x1081
	// HeaderLen is EHD(2) + TID(2) + SEOJ(3) + DEOJ(3) + ESV(1) + OPC(1).
	HeaderLen = 12

	// MaxProperties is the largest property count OPC can carry.
	MaxProperties = 255
	// MaxPropertyData is the largest property payload PDC can describe.
	MaxPropertyData = 255
)

// Well-known UDP/TCP port for ECHONET Lite.
const Port uint16 = 3610

// ServiceCode is the ESV byte.
type ServiceCode byte

const (
	SetI      ServiceCode = 0x60
	SetC      ServiceCode = 0x61
	Get       ServiceCode = 0x62
	InfReq    ServiceCode = 0x63
	SetGet    ServiceCode = 0x6E
	SetRes    ServiceCode = 0x71
	GetRes    ServiceCode = 0x72
	Inf       ServiceCode = 0x73
	InfC      ServiceCode = 0x74
	InfCRes   ServiceCode = 0x7A
	SetGetRes ServiceCode = 0x7E
	SetISNA   ServiceCode = 0x50
	SetCSNA   ServiceCode = 0x51
	GetSNA    ServiceCode = 0x52
	InfSNA    ServiceCode = 0x53
	SetGetSNA ServiceCode = 0x5E
)

// Object is an ECHONET object specifier: class group, class and instance.
type Object [3]byte

var (
	// Controller is the source object used for requests (controller class, instance 1).
	Controller = Object{0x05, 0xFF, 0x01}
	// LowVoltageSmartMeter is the low-voltage smart electric energy meter, instance 1.
	LowVoltageSmartMeter = Object{0x02, 0x88, 0x01}
)

func (o Object) String() string {
	return fmt.Sprintf("%02X%02X%02X", o[0], o[1], o[2])
}

// Property is one {EPC, PDC, EDT} element. PDC is always len(EDT).
type Property struct {
	EPC byte
	EDT []byte
}

// Frame is a decoded ECHONET Lite frame. OPC is always len(Properties).
type Frame struct {
	TID        uint16
	SEOJ       Object
	DEOJ       Object
	ESV        ServiceCode
	Properties []Property
}

// Encode serializes the frame. It fails only when a count or a length
// does not fit in its one-byte field.
func (f Frame) Encode() ([]byte, error) {
	if len(f.Properties) > MaxProperties {
		return nil, fmt.Errorf("%w: %d properties", ErrTooLarge, len(f.Properties))
	}

	size := HeaderLen
	for _, p := range f.Properties {
		if len(p.EDT) > MaxPropertyData {
			return nil, fmt.Errorf("%w: property %02X carries %d bytes", ErrTooLarge, p.EPC, len(p.EDT))
		}
		size += 2 + len(p.EDT)
	}

	b := make([]byte, 0, size)
	b = binary.BigEndian.AppendUint16(b, EHD)
	b = binary.BigEndian.AppendUint16(b, f.TID)
	b = append(b, f.SEOJ[:]...)
	b = append(b, f.DEOJ[:]...)
	b = append(b, byte(f.ESV), byte(len(f.Properties)))
	for _, p := range f.Properties {
		b = append(b, p.EPC, byte(len(p.EDT)))
		b = append(b, p.EDT...)
	}
	return b, nil
}

// Decode parses an encoded frame. Any structural inconsistency is
// reported as ErrMalformed; Decode never reads past the end of data.
// Property data in the result is copied out of data.
func Decode(data []byte) (Frame, error) {
	if len(data) < HeaderLen {
		return Frame{}, fmt.Errorf("%w: %d bytes is shorter than the header", ErrMalformed, len(data))
	}
	if ehd := binary.BigEndian.Uint16(data[0:2]); ehd != EHD {
		return Frame{}, fmt.Errorf("%w: header %04X", ErrMalformed, ehd)
	}

	f := Frame{
		TID: binary.BigEndian.Uint16(data[2:4]),
		ESV: ServiceCode(data[10]),
	}
	copy(f.SEOJ[:], data[4:7])
	copy(f.DEOJ[:], data[7:10])
	opc := int(data[11])
	if opc > 0 {
		f.Properties = make([]Property, 0, opc)
	}

	idx := HeaderLen
	for i := 0; i < opc; i++ {
		if idx+2 > len(data) {
			return Frame{}, fmt.Errorf("%w: property %d of %d truncated", ErrMalformed, i+1, opc)
		}
		epc, pdc := data[idx], int(data[idx+1])
		idx += 2
		if idx+pdc > len(data) {
			return Frame{}, fmt.Errorf("%w: property %02X declares %d bytes, %d remain", ErrMalformed, epc, pdc, len(data)-idx)
		}
		edt := make([]byte, pdc)
		copy(edt, data[idx:idx+pdc])
		f.Properties = append(f.Properties, Property{EPC: epc, EDT: edt})
		idx += pdc
	}

	if idx != len(data) {
		return Frame{}, fmt.Errorf("%w: %d trailing bytes", ErrMalformed, len(data)-idx)
	}
	return f, nil
}

// RewriteTID returns a copy of an encoded frame with only bytes [2:4]
// replaced by tid. The property list is not traversed.
func RewriteTID(frame []byte, tid uint16) ([]byte, error) {
	if len(frame) < HeaderLen {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the header", ErrMalformed, len(frame))
	}
	out := make([]byte, len(frame))
	copy(out, frame)
	binary.BigEndian.PutUint16(out[2:4], tid)
	return out, nil
}

// Property returns the first property with the given code.
func (f Frame) Property(epc byte) (Property, bool) {
	for _, p := range f.Properties {
		if p.EPC == epc {
			return p, true
		}
	}
	return Property{}, false
}

// IsResponseTo reports whether f answers req: objects swapped and same TID.
func (f Frame) IsResponseTo(req Frame) bool {
	return f.TID == req.TID && f.SEOJ == req.DEOJ && f.DEOJ == req.SEOJ
}
