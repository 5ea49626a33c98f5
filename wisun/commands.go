package wisun

import (
	"context"
	"fmt"
	"net/netip"

	"i4.energy/across/semgw/skstack"
)

var (
	waitOK       = WaitSpec{Expect(skstack.TagOK)}
	waitRegister = WaitSpec{Expect(skstack.TagRegister), Expect(skstack.TagOK)}
)

// Init prepares the module for the correlator: local echo off so command
// lines are not read back, and hex output on so datagram payloads arrive
// as text.
func (m *Module) Init(ctx context.Context) error {
	if err := m.SetEchoBack(ctx, false); err != nil {
		return fmt.Errorf("disable echo: %w", err)
	}
	if err := m.SetHexOutput(ctx); err != nil {
		return fmt.Errorf("enable hex output: %w", err)
	}
	return nil
}

func (m *Module) SetRegister(ctx context.Context, reg, value string) error {
	if _, err := m.command(ctx, skstack.SetRegister(reg, value), waitOK); err != nil {
		return fmt.Errorf("set register %s: %w", reg, err)
	}
	return nil
}

// GetRegister reads a virtual register and returns its value as printed
// by the module.
func (m *Module) GetRegister(ctx context.Context, reg string) (string, error) {
	events, err := m.command(ctx, skstack.GetRegister(reg), waitRegister)
	if err != nil {
		return "", fmt.Errorf("get register %s: %w", reg, err)
	}
	echo, ok := events[0].(skstack.RegisterEcho)
	if !ok {
		return "", fmt.Errorf("get register %s: unexpected %s", reg, events[0].Tag())
	}
	return echo.Value, nil
}

func (m *Module) SetEchoBack(ctx context.Context, on bool) error {
	return m.SetRegister(ctx, skstack.RegEchoBack, flag(on))
}

// SetHexOutput makes the module print received payloads as ASCII hex.
func (m *Module) SetHexOutput(ctx context.Context) error {
	if _, err := m.command(ctx, skstack.SetOption(skstack.OptHexOutput), waitOK); err != nil {
		return fmt.Errorf("set output option: %w", err)
	}
	return nil
}

func (m *Module) SetChannel(ctx context.Context, channel uint8) error {
	return m.SetRegister(ctx, skstack.RegChannel, fmt.Sprintf("%02X", channel))
}

func (m *Module) SetPANID(ctx context.Context, pan uint16) error {
	return m.SetRegister(ctx, skstack.RegPANID, fmt.Sprintf("%04X", pan))
}

func (m *Module) SetAcceptBeacon(ctx context.Context, on bool) error {
	return m.SetRegister(ctx, skstack.RegAcceptBeacon, flag(on))
}

// SetPassword stores the Route-B password, 1 to 32 characters.
func (m *Module) SetPassword(ctx context.Context, password string) error {
	if len(password) == 0 || len(password) > 32 {
		return fmt.Errorf("%w: password must be 1 to 32 characters, got %d", ErrBadArgument, len(password))
	}
	if _, err := m.command(ctx, skstack.SetPassword(password), waitOK); err != nil {
		return fmt.Errorf("set password: %w", err)
	}
	return nil
}

// SetRouteBID stores the 32-character Route-B authentication id.
func (m *Module) SetRouteBID(ctx context.Context, id string) error {
	if len(id) != 32 {
		return fmt.Errorf("%w: route B id must be 32 characters, got %d", ErrBadArgument, len(id))
	}
	if _, err := m.command(ctx, skstack.SetRouteBID(id), waitOK); err != nil {
		return fmt.Errorf("set route B id: %w", err)
	}
	return nil
}

// ResolveLinkLocal asks the module for the IPv6 link-local address derived
// from a 64-bit MAC address. The module answers with a bare address line,
// so echo must be off.
func (m *Module) ResolveLinkLocal(ctx context.Context, mac string) (netip.Addr, error) {
	events, err := m.command(ctx, skstack.LinkLocal(mac), WaitSpec{Expect(skstack.TagUnknown)})
	if err != nil {
		return netip.Addr{}, fmt.Errorf("resolve link-local address of %s: %w", mac, err)
	}
	u, _ := events[0].(skstack.Unknown)
	if len(u.Tokens) != 1 {
		return netip.Addr{}, fmt.Errorf("resolve link-local address of %s: unexpected reply %q", mac, u.Tokens)
	}
	addr, err := netip.ParseAddr(u.Tokens[0])
	if err != nil {
		return netip.Addr{}, fmt.Errorf("resolve link-local address of %s: %w", mac, err)
	}
	return addr, nil
}

// Join starts the secured session handshake with addr.
//
// It returns once the module reports success and at least one handshake
// datagram has been seen, since the module signals success before the
// meter is reachable at the application layer. Failure is returned, not
// retried.
func (m *Module) Join(ctx context.Context, addr netip.Addr) error {
	if err := m.establish(ctx, skstack.Join(skstack.FormatAddr(addr))); err != nil {
		return fmt.Errorf("join %s: %w", addr, err)
	}
	return nil
}

// Rejoin renews the current secured session.
func (m *Module) Rejoin(ctx context.Context) error {
	if err := m.establish(ctx, skstack.Rejoin()); err != nil {
		return fmt.Errorf("rejoin: %w", err)
	}
	return nil
}

func (m *Module) establish(ctx context.Context, line string) error {
	ctx, cancel := context.WithTimeout(ctx, m.config.joinTimeout)
	defer cancel()

	m.drainHandshake()

	spec := WaitSpec{
		Expect(skstack.TagOK),
		Expect(skstack.EventTag(skstack.EventPANAFailed), skstack.EventTag(skstack.EventPANASucceeded)),
	}
	events, err := m.IssueCommand(ctx, []byte(line+skstack.CRLF), spec, false, 0)
	if err != nil {
		return err
	}
	if n, ok := events[1].(skstack.EventNotice); !ok || n.Code != skstack.EventPANASucceeded {
		return ErrJoinFailed
	}

	select {
	case dg := <-m.handshake:
		m.logger.Debug("handshake traffic observed", "sender", dg.Sender)
		return nil
	case <-m.failed:
		return m.failErr
	case <-ctx.Done():
		return fmt.Errorf("no handshake traffic: %w", contextError(ctx.Err()))
	}
}

// Terminate ends the secured session.
func (m *Module) Terminate(ctx context.Context) error {
	spec := WaitSpec{
		Expect(skstack.TagOK),
		Expect(skstack.EventTag(skstack.EventTerminated), skstack.EventTag(skstack.EventTerminateTimeout)),
	}
	ctx, cancel := context.WithTimeout(ctx, m.config.joinTimeout)
	defer cancel()

	events, err := m.IssueCommand(ctx, []byte(skstack.Terminate()+skstack.CRLF), spec, false, 0)
	if err != nil {
		return fmt.Errorf("terminate session: %w", err)
	}
	if n, ok := events[1].(skstack.EventNotice); !ok || n.Code != skstack.EventTerminated {
		return fmt.Errorf("terminate session: %w: peer did not answer", ErrTimeout)
	}
	return nil
}

func flag(on bool) string {
	if on {
		return "1"
	}
	return "0"
}
