package meter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"time"

	"i4.energy/across/semgw/echonet"
	"i4.energy/across/semgw/skstack"
	"i4.energy/across/semgw/wisun"
)

// Radio is the part of *wisun.Module the meter drives.
type Radio interface {
	Init(ctx context.Context) error
	SetPassword(ctx context.Context, password string) error
	SetRouteBID(ctx context.Context, id string) error
	ActiveScan(ctx context.Context, duration uint8) ([]wisun.PeerCandidate, error)
	SetChannel(ctx context.Context, channel uint8) error
	SetPANID(ctx context.Context, pan uint16) error
	ResolveLinkLocal(ctx context.Context, mac string) (netip.Addr, error)
	Join(ctx context.Context, addr netip.Addr) error
	Rejoin(ctx context.Context) error
	SendDatagram(ctx context.Context, handle uint8, addr netip.Addr, port uint16, secured bool, payload []byte) error
	Next(ctx context.Context) (skstack.Event, error)
}

var _ Radio = (*wisun.Module)(nil)

// Meter reads a low-voltage smart meter over a Wi-SUN Route-B session.
// It is not safe for concurrent use; Run owns it once started.
type Meter struct {
	radio  Radio
	config Config
	logger *slog.Logger

	tids    echonet.TIDCounter
	power   request
	current request
	energy  request

	addr      netip.Addr
	connected bool
	now       func() time.Time
}

func New(radio Radio, config Config) (*Meter, error) {
	config.setDefaults()

	m := &Meter{
		radio:  radio,
		config: config,
		logger: config.Logger,
		now:    time.Now,
	}
	power, err := echonet.BuildGetRequest("instant_power")
	if err != nil {
		return nil, fmt.Errorf("build instant power request: %w", err)
	}
	registry := echonet.SmartMeterRegistry()
	current, err := registry.BuildGetRequest(echonet.LowVoltageSmartMeter, "instant_current")
	if err != nil {
		return nil, fmt.Errorf("build instant current request: %w", err)
	}
	energy, err := registry.BuildGetRequest(echonet.LowVoltageSmartMeter,
		"coefficient", "cumulative_energy_unit", "fixed_time_energy_normal")
	if err != nil {
		return nil, fmt.Errorf("build energy request: %w", err)
	}

	if m.power, err = newRequest("instant power", power); err != nil {
		return nil, err
	}
	if m.current, err = newRequest("instant current", current); err != nil {
		return nil, err
	}
	if m.energy, err = newRequest("energy", energy); err != nil {
		return nil, err
	}
	return m, nil
}

// Addr returns the meter's link-local address once connected.
func (m *Meter) Addr() netip.Addr {
	return m.addr
}

// Connect resets the module, finds the meter by active scan and
// establishes the secured session, within the scan and join budgets.
func (m *Meter) Connect(ctx context.Context) error {
	m.connected = false

	if err := m.config.Resetter.Reset(ctx); err != nil {
		return fmt.Errorf("reset module: %w", err)
	}
	if err := m.radio.Init(ctx); err != nil {
		return err
	}
	if err := m.radio.SetPassword(ctx, m.config.Password); err != nil {
		return err
	}
	if err := m.radio.SetRouteBID(ctx, m.config.RouteBID); err != nil {
		return err
	}

	peer, err := m.scan(ctx)
	if err != nil {
		return err
	}
	m.logger.Info("found smart meter",
		"channel", fmt.Sprintf("0x%02X", peer.Channel),
		"addr", peer.Addr,
		"lqi", peer.LQI,
		"pan", fmt.Sprintf("0x%04X", peer.PanID))

	if err := m.radio.SetChannel(ctx, peer.Channel); err != nil {
		return err
	}
	addr, err := m.radio.ResolveLinkLocal(ctx, peer.Addr)
	if err != nil {
		return err
	}
	if err := m.radio.SetPANID(ctx, peer.PanID); err != nil {
		return err
	}

	var joinErr error
	for i := 1; i <= m.config.JoinAttempts; i++ {
		m.logger.Info("joining", "attempt", i, "of", m.config.JoinAttempts, "addr", addr)
		joinErr = m.radio.Join(ctx, addr)
		if joinErr == nil {
			m.addr, m.connected = addr, true
			m.logger.Info("secured session established", "addr", addr)
			return nil
		}
		if ctx.Err() != nil {
			return joinErr
		}
		m.logger.Warn("join failed", "attempt", i, "error", joinErr)
	}
	return fmt.Errorf("join %s after %d attempts: %w", addr, m.config.JoinAttempts, joinErr)
}

func (m *Meter) scan(ctx context.Context) (wisun.PeerCandidate, error) {
	for i := 1; i <= m.config.ScanAttempts; i++ {
		m.logger.Info("active scan", "attempt", i, "of", m.config.ScanAttempts, "duration", m.config.ScanDuration)
		peers, err := m.radio.ActiveScan(ctx, m.config.ScanDuration)
		if errors.Is(err, wisun.ErrCancelled) {
			return wisun.PeerCandidate{}, err
		}
		if err != nil {
			m.logger.Warn("active scan failed", "attempt", i, "error", err)
			continue
		}
		if len(peers) > 0 {
			return peers[0], nil
		}
	}
	return wisun.PeerCandidate{}, ErrNoMeter
}

// request is a prebuilt Get request. Only the TID changes between
// transmissions.
type request struct {
	name  string
	wire  []byte
	frame echonet.Frame
}

func newRequest(name string, wire []byte) (request, error) {
	frame, err := echonet.Decode(wire)
	if err != nil {
		return request{}, fmt.Errorf("build %s request: %w", name, err)
	}
	return request{name: name, wire: wire, frame: frame}, nil
}

// ReadInstantPower requests property E7 and waits for the matching reply.
//
// Each transmission uses a fresh transaction id; replies carrying another
// id are stale and skipped, as are property notifications and malformed
// datagrams. If the meter ends the session meanwhile the Meter is marked
// disconnected and ErrNotConnected is returned.
func (m *Meter) ReadInstantPower(ctx context.Context) (Reading, error) {
	f, err := m.exchange(ctx, m.power)
	if err != nil {
		return Reading{}, err
	}
	p, ok := f.Property(echonet.EPCInstantPower)
	if !ok {
		return Reading{}, fmt.Errorf("reply %d: %w: no instant power", f.TID, echonet.ErrPropertyData)
	}
	watts, err := echonet.InstantPower(p)
	if err != nil {
		return Reading{}, fmt.Errorf("reply %d: %w", f.TID, err)
	}
	m.config.Indicator.Blink()
	return Reading{Time: m.now(), Watts: watts, TID: f.TID}, nil
}

// ReadInstantCurrent requests property E8.
func (m *Meter) ReadInstantCurrent(ctx context.Context) (echonet.Current, error) {
	f, err := m.exchange(ctx, m.current)
	if err != nil {
		return echonet.Current{}, err
	}
	p, ok := f.Property(echonet.EPCInstantCurrent)
	if !ok {
		return echonet.Current{}, fmt.Errorf("reply %d: %w: no instant current", f.TID, echonet.ErrPropertyData)
	}
	return echonet.InstantCurrent(p)
}

// Energy is the cumulative energy the meter recorded at its last
// fixed-time boundary.
type Energy struct {
	Time time.Time `json:"time"`
	KWh  float64   `json:"kwh"`
}

// ReadFixedTimeEnergy requests the coefficient, the energy unit and the
// fixed-time cumulative reading in one frame. A meter that rejects only
// the coefficient is read with a coefficient of 1.
func (m *Meter) ReadFixedTimeEnergy(ctx context.Context) (Energy, error) {
	f, err := m.exchange(ctx, m.energy)
	rejected := errors.Is(err, ErrRejected)
	if err != nil && !rejected {
		return Energy{}, err
	}
	property := func(epc byte) (echonet.Property, bool) {
		p, ok := f.Property(epc)
		return p, ok && len(p.EDT) > 0
	}

	coefficient := uint32(1)
	if p, ok := property(echonet.EPCCoefficient); ok {
		if coefficient, err = echonet.Coefficient(p); err != nil {
			return Energy{}, err
		}
	}
	unitProp, ok := property(echonet.EPCEnergyUnit)
	valueProp, ok2 := property(echonet.EPCFixedTimeNormal)
	if !ok || !ok2 {
		if rejected {
			return Energy{}, fmt.Errorf("energy request %d: %w", f.TID, ErrRejected)
		}
		return Energy{}, fmt.Errorf("reply %d: %w: incomplete energy reading", f.TID, echonet.ErrPropertyData)
	}
	unit, err := echonet.EnergyUnit(unitProp)
	if err != nil {
		return Energy{}, err
	}
	at, value, err := echonet.FixedTimeEnergy(valueProp, m.config.Location)
	if err != nil {
		return Energy{}, err
	}
	return Energy{Time: at, KWh: float64(value) * float64(coefficient) * unit}, nil
}

// exchange sends req and returns the meter's answer to it. A Get_SNA
// answer is returned together with ErrRejected.
func (m *Meter) exchange(ctx context.Context, req request) (echonet.Frame, error) {
	if !m.connected {
		return echonet.Frame{}, ErrNotConnected
	}

	tid, err := m.send(ctx, req.wire)
	if err != nil {
		return echonet.Frame{}, err
	}
	want := req.frame
	want.TID = tid

	ctx, cancel := context.WithTimeout(ctx, m.config.ReplyTimeout)
	defer cancel()

	for {
		ev, err := m.radio.Next(ctx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return echonet.Frame{}, fmt.Errorf("await %s reply to %d: %w", req.name, tid, wisun.ErrTimeout)
			}
			return echonet.Frame{}, fmt.Errorf("await %s reply to %d: %w", req.name, tid, err)
		}

		switch ev := ev.(type) {
		case skstack.InboundDatagram:
			f, ok := m.answer(ev, want)
			if !ok {
				continue
			}
			if f.ESV == echonet.GetSNA {
				return f, fmt.Errorf("%s request %d: %w", req.name, tid, ErrRejected)
			}
			return f, nil
		case skstack.EventNotice:
			if ev.Code == skstack.EventSessionExpired || ev.Code == skstack.EventTerminateRequest {
				m.connected = false
				return echonet.Frame{}, fmt.Errorf("%w: session ended by event %02X", ErrNotConnected, ev.Code)
			}
		default:
			m.logger.Debug("ignoring notification", "tag", ev.Tag())
		}
	}
}

// send transmits the request, retrying transient failures with a new
// transaction id each time, and returns the id of the last transmission.
func (m *Meter) send(ctx context.Context, wire []byte) (uint16, error) {
	var err error
	for i := 1; i <= m.config.SendAttempts; i++ {
		tid := m.tids.Next()
		frame, ferr := echonet.RewriteTID(wire, tid)
		if ferr != nil {
			return 0, ferr
		}
		err = m.radio.SendDatagram(ctx, wisun.DatagramHandle, m.addr, echonet.Port, true, frame)
		if err == nil {
			return tid, nil
		}
		if errors.Is(err, wisun.ErrTransmitLimited) || ctx.Err() != nil {
			return 0, err
		}
		m.logger.Warn("send failed", "attempt", i, "tid", tid, "error", err)
	}
	return 0, err
}

// answer decodes dg and reports whether it is a Get_Res or Get_SNA
// answering want.
func (m *Meter) answer(dg skstack.InboundDatagram, want echonet.Frame) (echonet.Frame, bool) {
	if dg.LocalPort != echonet.Port {
		m.logger.Debug("ignoring datagram", "port", dg.LocalPort)
		return echonet.Frame{}, false
	}
	payload, err := dg.Payload()
	if err != nil {
		m.logger.Warn("discarding datagram with bad hex payload", "error", err)
		return echonet.Frame{}, false
	}
	f, err := echonet.Decode(payload)
	if err != nil {
		m.logger.Warn("discarding datagram", "error", err)
		return echonet.Frame{}, false
	}

	switch {
	case f.ESV == echonet.Inf:
		m.logger.Info("property notification", "tid", f.TID, "properties", len(f.Properties))
		return echonet.Frame{}, false
	case f.TID != want.TID:
		m.logger.Warn("discarding reply", "error", ErrTIDMismatch, "want", want.TID, "got", f.TID)
		return echonet.Frame{}, false
	case !f.IsResponseTo(want):
		m.logger.Warn("discarding reply from another object", "seoj", f.SEOJ, "deoj", f.DEOJ, "tid", f.TID)
		return echonet.Frame{}, false
	case f.ESV != echonet.GetRes && f.ESV != echonet.GetSNA:
		m.logger.Warn("discarding reply", "esv", fmt.Sprintf("0x%02X", byte(f.ESV)), "tid", f.TID)
		return echonet.Frame{}, false
	}
	return f, true
}

// Renew refreshes the secured session before the meter expires it.
func (m *Meter) Renew(ctx context.Context) error {
	if err := m.radio.Rejoin(ctx); err != nil {
		m.connected = false
		return err
	}
	m.connected = true
	return nil
}

// restore brings the session back: a rejoin first, a full Connect if
// that fails.
func (m *Meter) restore(ctx context.Context) error {
	if !m.addr.IsValid() {
		return m.Connect(ctx)
	}
	err := m.Renew(ctx)
	if err == nil {
		return nil
	}
	m.logger.Warn("rejoin failed, reconnecting", "error", err)
	return m.Connect(ctx)
}

// Run connects if needed, then polls instantaneous power every
// PollInterval and hands each reading to sink, renewing the session every
// RenewInterval and logging the fixed-time energy after each renewal. It
// returns when ctx is done or the session cannot be restored.
func (m *Meter) Run(ctx context.Context, sink Sink) error {
	if !m.connected {
		if err := m.Connect(ctx); err != nil {
			return err
		}
	}

	poll := time.NewTicker(m.config.PollInterval)
	defer poll.Stop()
	renew := time.NewTicker(m.config.RenewInterval)
	defer renew.Stop()

	m.poll(ctx, sink)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-poll.C:
		case <-renew.C:
			m.logger.Info("renewing session")
			if err := m.Renew(ctx); err != nil {
				m.logger.Warn("session renewal failed", "error", err)
			}
			if m.connected {
				m.logEnergy(ctx)
				continue
			}
		}

		if !m.connected {
			if err := m.restore(ctx); err != nil {
				return fmt.Errorf("restore session: %w", err)
			}
		}
		m.poll(ctx, sink)
	}
}

func (m *Meter) poll(ctx context.Context, sink Sink) {
	r, err := m.ReadInstantPower(ctx)
	if err != nil {
		m.logger.Warn("reading failed", "error", err)
		return
	}
	m.logger.Info("instant power", "tid", r.TID, "watts", r.Watts)
	if err := sink.Record(ctx, r); err != nil {
		m.logger.Warn("could not record reading", "error", err)
	}
}

func (m *Meter) logEnergy(ctx context.Context) {
	e, err := m.ReadFixedTimeEnergy(ctx)
	if err != nil {
		m.logger.Warn("energy reading failed", "error", err)
		return
	}
	m.logger.Info("fixed-time energy", "at", e.Time, "kwh", e.KWh)
}
