package skstack

import (
	"encoding/hex"
	"fmt"
)

const (
	// Terminal Control
	CRLF = "\r\n"

	// Line-leading keywords
	KeyOK        = "OK"
	KeyFail      = "FAIL"
	KeyEvent     = "EVENT"
	KeyDatagram  = "ERXUDP"
	KeyStream    = "ERXTCP"
	KeyTCPState  = "ETCP"
	KeyRegister  = "ESREG"
	KeyPanDesc   = "EPANDESC"
	KeyEnergyDet = "EEDSCAN"

	// Active scan field labels, in the order the module emits them
	FieldChannel     = "Channel"
	FieldChannelPage = "Channel Page"
	FieldPanID       = "Pan ID"
	FieldAddr        = "Addr"
	FieldLQI         = "LQI"
	FieldPairID      = "PairID"
)

// ScanFieldOrder is the fixed order of the fields of one PAN descriptor.
var ScanFieldOrder = []string{
	FieldChannel,
	FieldChannelPage,
	FieldPanID,
	FieldAddr,
	FieldLQI,
	FieldPairID,
}

// Tags used to correlate events. Waits match on tag prefix, so
// TagEvent matches every event notice while EventTag(0x25) only
// matches a successful handshake.
const (
	TagOK          = KeyOK
	TagFail        = KeyFail
	TagEvent       = KeyEvent
	TagDatagram    = KeyDatagram
	TagStream      = KeyStream
	TagStreamState = KeyTCPState
	TagRegister    = KeyRegister
	TagPanDesc     = KeyPanDesc
	TagEnergyDet   = KeyEnergyDet
	TagScanField   = "SCANFIELD"
	TagUnknown     = "UNKNOWN"
)

// Event notification codes.
const (
	EventNSReceived       uint8 = 0x01
	EventNAReceived       uint8 = 0x02
	EventEchoRequest      uint8 = 0x05
	EventEnergyScanDone   uint8 = 0x1F
	EventBeacon           uint8 = 0x20
	EventUDPSent          uint8 = 0x21
	EventActiveScanDone   uint8 = 0x22
	EventPANAFailed       uint8 = 0x24
	EventPANASucceeded    uint8 = 0x25
	EventTerminateRequest uint8 = 0x26
	EventTerminated       uint8 = 0x27
	EventTerminateTimeout uint8 = 0x28
	EventSessionExpired   uint8 = 0x29
	EventTransmitLimited  uint8 = 0x32
	EventTransmitReleased uint8 = 0x33
)

// TCP state codes carried by ETCP lines.
const (
	StreamOpened   uint8 = 1
	StreamClosed   uint8 = 3
	StreamPortUsed uint8 = 4
	StreamSent     uint8 = 5
)

// EventTag returns the correlation tag of the event notice with the given code.
func EventTag(code uint8) string {
	return fmt.Sprintf("%s %02X", KeyEvent, code)
}

// Event is a parsed line received from the module. The set of
// implementations is closed; switch on the concrete type.
type Event interface {
	Tag() string
	event()
}

// Ack is the generic command acknowledgment.
type Ack struct {
	Tokens []string
}

// Fail is the module's rejection of a command, e.g. "FAIL ER04".
type Fail struct {
	Code string
}

// EventNotice is an asynchronous "EVENT" line.
type EventNotice struct {
	Code   uint8
	Sender string
	// Param is empty when the line carries no parameter.
	Param string
}

// InboundDatagram is an "ERXUDP" line.
type InboundDatagram struct {
	Sender     string
	Dest       string
	RemotePort uint16
	LocalPort  uint16
	SenderLLA  string
	Secured    uint8
	Length     uint16
	PayloadHex string
}

// InboundStream is an "ERXTCP" line.
type InboundStream struct {
	Sender     string
	RemotePort uint16
	LocalPort  uint16
	Length     uint16
	PayloadHex string
}

// StreamState is an "ETCP" line. Peer and ports are set for StreamOpened only.
type StreamState struct {
	Status     uint8
	Handle     uint8
	Peer       string
	RemotePort uint16
	LocalPort  uint16
}

// ScanField is one "Label:value" line of an active scan PAN descriptor.
type ScanField struct {
	Name  string
	Value string
}

// RegisterEcho is an "ESREG" line answering a register read.
type RegisterEcho struct {
	Register string
	Value    string
}

// PanDescriptor marks the start of a PAN descriptor during active scan.
type PanDescriptor struct{}

// EnergyDetectDone is the "EEDSCAN" marker. Fields holds whatever follows
// the marker on its own line; the BP35 modules print the channel/LQI pairs
// on the next line instead, which parses as Unknown.
type EnergyDetectDone struct {
	Fields []string
}

// Unknown is any line that matches no known shape.
type Unknown struct {
	Tokens []string
}

func (Ack) Tag() string              { return TagOK }
func (Fail) Tag() string             { return TagFail }
func (e EventNotice) Tag() string    { return EventTag(e.Code) }
func (InboundDatagram) Tag() string  { return TagDatagram }
func (InboundStream) Tag() string    { return TagStream }
func (StreamState) Tag() string      { return TagStreamState }
func (ScanField) Tag() string        { return TagScanField }
func (RegisterEcho) Tag() string     { return TagRegister }
func (PanDescriptor) Tag() string    { return TagPanDesc }
func (EnergyDetectDone) Tag() string { return TagEnergyDet }
func (Unknown) Tag() string          { return TagUnknown }

func (Ack) event()              {}
func (Fail) event()             {}
func (EventNotice) event()      {}
func (InboundDatagram) event()  {}
func (InboundStream) event()    {}
func (StreamState) event()      {}
func (ScanField) event()        {}
func (RegisterEcho) event()     {}
func (PanDescriptor) event()    {}
func (EnergyDetectDone) event() {}
func (Unknown) event()          {}

// Payload decodes the hex-encoded datagram body.
func (d InboundDatagram) Payload() ([]byte, error) {
	return hex.DecodeString(d.PayloadHex)
}

// Payload decodes the hex-encoded stream segment.
func (s InboundStream) Payload() ([]byte, error) {
	return hex.DecodeString(s.PayloadHex)
}
