package skstack

import (
	"bufio"
	"bytes"
	"strconv"
	"strings"
)

// Splitter tokenizes module output into lines. It uses the signature of
// bufio.SplitFunc so it can be used with bufio.Scanner as well as with the
// timeout-aware wisun.LineReader.
//
// Lines end with CRLF; a bare LF is tolerated. When atEOF is true any
// remaining data is returned as the final token.
func Splitter(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}

	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		return i + 1, bytes.TrimSuffix(data[0:i], []byte{'\r'}), nil
	}

	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

var _ bufio.SplitFunc = Splitter

// Parse maps one received line to an Event. It never fails: lines that do
// not match a known shape, including known keywords with missing or
// malformed sub-fields, yield Unknown.
func Parse(line string) Event {
	trimmed := strings.TrimSpace(line)

	// Scan field labels carry a colon and may contain a space ("Pan ID"),
	// so they are recognized before whitespace tokenizing.
	if name, value, ok := strings.Cut(trimmed, ":"); ok && isScanField(name) {
		return ScanField{Name: name, Value: strings.TrimSpace(value)}
	}

	cols := strings.Fields(trimmed)
	if len(cols) == 0 {
		return Unknown{}
	}

	var ev Event
	switch cols[0] {
	case KeyOK:
		ev = Ack{Tokens: cols[1:]}
	case KeyFail:
		if len(cols) > 1 {
			ev = Fail{Code: cols[1]}
		} else {
			ev = Fail{}
		}
	case KeyEvent:
		ev = parseEventNotice(cols)
	case KeyDatagram:
		ev = parseDatagram(cols)
	case KeyStream:
		ev = parseStream(cols)
	case KeyTCPState:
		ev = parseStreamState(cols)
	case KeyRegister:
		ev = parseRegister(cols)
	case KeyPanDesc:
		ev = PanDescriptor{}
	case KeyEnergyDet:
		done := EnergyDetectDone{}
		if len(cols) > 1 {
			done.Fields = cols[1:]
		}
		ev = done
	}
	if ev == nil {
		return Unknown{Tokens: cols}
	}
	return ev
}

func isScanField(name string) bool {
	for _, f := range ScanFieldOrder {
		if name == f {
			return true
		}
	}
	return false
}

// EVENT <code> <sender> [param]
func parseEventNotice(cols []string) Event {
	if len(cols) < 3 {
		return nil
	}
	code, ok := hex8(cols[1])
	if !ok {
		return nil
	}
	ev := EventNotice{Code: code, Sender: cols[2]}
	if len(cols) > 3 {
		ev.Param = cols[3]
	}
	return ev
}

// ERXUDP <sender> <dest> <rport> <lport> <senderlla> <secured> <datalen> <data>
func parseDatagram(cols []string) Event {
	if len(cols) < 9 {
		return nil
	}
	rport, ok1 := hex16(cols[3])
	lport, ok2 := hex16(cols[4])
	secured, ok3 := hex8(cols[6])
	length, ok4 := hex16(cols[7])
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return nil
	}
	return InboundDatagram{
		Sender:     cols[1],
		Dest:       cols[2],
		RemotePort: rport,
		LocalPort:  lport,
		SenderLLA:  cols[5],
		Secured:    secured,
		Length:     length,
		PayloadHex: cols[8],
	}
}

// ERXTCP <sender> <rport> <lport> <datalen> <data>
func parseStream(cols []string) Event {
	if len(cols) < 6 {
		return nil
	}
	rport, ok1 := hex16(cols[2])
	lport, ok2 := hex16(cols[3])
	length, ok3 := hex16(cols[4])
	if !ok1 || !ok2 || !ok3 {
		return nil
	}
	return InboundStream{
		Sender:     cols[1],
		RemotePort: rport,
		LocalPort:  lport,
		Length:     length,
		PayloadHex: cols[5],
	}
}

// ETCP <status> <handle> [<peer> <rport> <lport>]
func parseStreamState(cols []string) Event {
	if len(cols) < 3 {
		return nil
	}
	status, ok1 := hex8(cols[1])
	handle, ok2 := hex8(cols[2])
	if !ok1 || !ok2 {
		return nil
	}
	ev := StreamState{Status: status, Handle: handle}
	if status == StreamOpened {
		if len(cols) < 6 {
			return nil
		}
		rport, ok1 := hex16(cols[4])
		lport, ok2 := hex16(cols[5])
		if !ok1 || !ok2 {
			return nil
		}
		ev.Peer = cols[3]
		ev.RemotePort = rport
		ev.LocalPort = lport
	}
	return ev
}

// ESREG <value> or ESREG <register> <value>
func parseRegister(cols []string) Event {
	switch len(cols) {
	case 2:
		return RegisterEcho{Value: cols[1]}
	case 3:
		return RegisterEcho{Register: cols[1], Value: cols[2]}
	}
	return nil
}

func hex8(s string) (uint8, bool) {
	v, err := strconv.ParseUint(s, 16, 8)
	return uint8(v), err == nil
}

func hex16(s string) (uint16, bool) {
	v, err := strconv.ParseUint(s, 16, 16)
	return uint16(v), err == nil
}
