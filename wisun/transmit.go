package wisun

import (
	"context"
	"fmt"
	"net/netip"

	"i4.energy/across/semgw/skstack"
)

// DatagramHandle is the UDP handle bound to port 3610 on a factory-set module.
const DatagramHandle uint8 = 1

// SendDatagram transmits payload to addr:port and waits for the module's
// transmit status. On failure it checks the transmit limit flag so the
// caller can tell ErrTransmitLimited from a transient ErrTransmitFailed.
func (m *Module) SendDatagram(ctx context.Context, handle uint8, addr netip.Addr, port uint16, secured bool, payload []byte) error {
	spec := WaitSpec{Expect(skstack.EventTag(skstack.EventUDPSent)), Expect(skstack.TagOK)}
	wire := skstack.SendTo(handle, skstack.FormatAddr(addr), port, secured, payload)

	events, err := m.IssueCommand(ctx, wire, spec, false, m.config.commandTimeout)
	if err != nil {
		return fmt.Errorf("send datagram to %s: %w", addr, err)
	}

	status, _ := events[0].(skstack.EventNotice)
	if status.Param == "00" {
		return nil
	}

	limited, err := m.TransmitLimited(ctx)
	if err != nil {
		m.logger.Warn("could not read transmit limit", "error", err)
	}
	if limited {
		return fmt.Errorf("send datagram to %s: %w", addr, ErrTransmitLimited)
	}
	return fmt.Errorf("send datagram to %s: %w: status %s", addr, ErrTransmitFailed, status.Param)
}

// TransmitLimited reports whether the module is currently refusing to
// transmit because of its duty-cycle limit.
func (m *Module) TransmitLimited(ctx context.Context) (bool, error) {
	v, err := m.GetRegister(ctx, skstack.RegTransmitLimit)
	if err != nil {
		return false, err
	}
	return v == "1" || v == "01", nil
}

// OpenStream opens a TCP connection and returns its handle.
func (m *Module) OpenStream(ctx context.Context, addr netip.Addr, remotePort, localPort uint16) (uint8, error) {
	line := skstack.Connect(skstack.FormatAddr(addr), remotePort, localPort)
	events, err := m.command(ctx, line, WaitSpec{Expect(skstack.TagStreamState)})
	if err != nil {
		return 0, fmt.Errorf("open stream to %s: %w", addr, err)
	}
	st, _ := events[0].(skstack.StreamState)
	if st.Status != skstack.StreamOpened {
		return 0, fmt.Errorf("open stream to %s: %w: state %d", addr, ErrCommandFailed, st.Status)
	}
	return st.Handle, nil
}

// SendStream writes payload on an open TCP handle and waits for the
// send-complete state.
func (m *Module) SendStream(ctx context.Context, handle uint8, payload []byte) error {
	spec := WaitSpec{Expect(skstack.TagStreamState)}
	events, err := m.IssueCommand(ctx, skstack.Send(handle, payload), spec, false, m.config.commandTimeout)
	if err != nil {
		return fmt.Errorf("send on stream %d: %w", handle, err)
	}
	st, _ := events[0].(skstack.StreamState)
	if st.Status != skstack.StreamSent {
		return fmt.Errorf("send on stream %d: %w: state %d", handle, ErrTransmitFailed, st.Status)
	}
	return nil
}

// CloseStream closes a TCP handle and waits until the module reports it
// closed. State changes of other handles are skipped.
func (m *Module) CloseStream(ctx context.Context, handle uint8) error {
	spec := WaitSpec{Expect(skstack.TagStreamState)}
	wire := []byte(skstack.Close(handle) + skstack.CRLF)
	for {
		events, err := m.IssueCommand(ctx, wire, spec, false, m.config.commandTimeout)
		if err != nil {
			return fmt.Errorf("close stream %d: %w", handle, err)
		}
		if st, _ := events[0].(skstack.StreamState); st.Handle == handle && st.Status == skstack.StreamClosed {
			return nil
		}
		// Keep waiting without writing again.
		wire = nil
	}
}
