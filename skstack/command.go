package skstack

import (
	"fmt"
	"net/netip"
	"strings"
)

// Registers
const (
	RegChannel       = "S02"
	RegPANID         = "S03"
	RegPairingID     = "S0A"
	RegAcceptBeacon  = "S15"
	RegTransmitLimit = "SFB"
	RegEchoBack      = "SFE"
)

// ScanMode selects the kind of SKSCAN.
type ScanMode uint8

const (
	ScanEnergyDetect ScanMode = 0
	ScanActiveIE     ScanMode = 2
	ScanActive       ScanMode = 3
)

// AllChannels is the channel mask covering every channel the module supports.
const AllChannels uint32 = 0xFFFFFFFF

// Option bits for WOPT.
const (
	// OptHexOutput makes ERXUDP/ERXTCP carry the payload as ASCII hex.
	OptHexOutput byte = 0x01
)

// The functions below build command lines without the trailing CRLF;
// SendTo and Send return the complete wire bytes because their payload
// follows the command on the same write with no terminator.

func SetRegister(reg, value string) string {
	return fmt.Sprintf("SKSREG %s %s", reg, value)
}

func GetRegister(reg string) string {
	return "SKSREG " + reg
}

func SetPassword(password string) string {
	return fmt.Sprintf("SKSETPWD %X %s", len(password), password)
}

func SetRouteBID(id string) string {
	return "SKSETRBID " + id
}

func Join(addr string) string {
	return "SKJOIN " + addr
}

func Rejoin() string {
	return "SKREJOIN"
}

func Terminate() string {
	return "SKTERM"
}

// LinkLocal asks the module for the IPv6 link-local address of a MAC address.
func LinkLocal(mac string) string {
	return "SKLL64 " + mac
}

func Connect(addr string, remotePort, localPort uint16) string {
	return fmt.Sprintf("SKCONNECT %s %04X %04X", addr, remotePort, localPort)
}

func Close(handle uint8) string {
	return fmt.Sprintf("SKCLOSE %X", handle)
}

func Scan(mode ScanMode, channelMask uint32, duration uint8) string {
	return fmt.Sprintf("SKSCAN %X %08X %X", uint8(mode), channelMask, duration)
}

func SetOption(opt byte) string {
	return fmt.Sprintf("WOPT %02X", opt)
}

// SendTo builds a datagram transmission: the length-prefixed command
// immediately followed by the raw payload.
func SendTo(handle uint8, addr string, port uint16, secured bool, payload []byte) []byte {
	sec := 0
	if secured {
		sec = 1
	}
	head := fmt.Sprintf("SKSENDTO %X %s %04X %X %04X ", handle, addr, port, sec, len(payload))
	return append([]byte(head), payload...)
}

// Send builds a stream transmission on an open TCP handle.
func Send(handle uint8, payload []byte) []byte {
	head := fmt.Sprintf("SKSEND %X %04X ", handle, len(payload))
	return append([]byte(head), payload...)
}

// FormatAddr prints an IPv6 address in the fully expanded upper-case form
// the module expects, e.g. FE80:0000:0000:0000:021D:1290:1234:5678.
func FormatAddr(addr netip.Addr) string {
	b := addr.As16()
	var sb strings.Builder
	for i := 0; i < 16; i += 2 {
		if i > 0 {
			sb.WriteByte(':')
		}
		fmt.Fprintf(&sb, "%02X%02X", b[i], b[i+1])
	}
	return sb.String()
}
