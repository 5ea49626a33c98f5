package wisun

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"i4.energy/across/semgw/skstack"
)

// PeerCandidate is a PAN coordinator found by an active scan.
type PeerCandidate struct {
	Channel     uint8
	ChannelPage uint8
	PanID       uint16
	// Addr is the 64-bit MAC address as 16 hex digits.
	Addr   string
	LQI    uint8
	PairID string
}

// ChannelEnergy is one channel/LQI pair of an energy detect scan.
type ChannelEnergy struct {
	Channel uint8
	LQI     uint8
}

// scanBudget is an upper bound for a scan over every channel with the
// given duration code. The module spends 9.6 ms * (2^duration + 1) per
// channel.
func scanBudget(duration uint8) time.Duration {
	const channels = 28
	per := time.Duration(1<<duration+1) * 9600 * time.Microsecond
	return channels*per + 10*time.Second
}

// EnergyDetectScan measures every channel and returns the one with the
// lowest LQI, which the module uses to signal the least congested channel.
//
// The channel/LQI pairs are the first unrecognized line after the EEDSCAN
// marker. Lines queued before the scan are left alone, and notifications
// arriving during it stay queued.
func (m *Module) EnergyDetectScan(ctx context.Context, duration uint8) (uint8, []ChannelEnergy, error) {
	spec := WaitSpec{
		Expect(skstack.TagOK),
		Expect(skstack.TagEnergyDet),
		Expect(skstack.TagUnknown),
	}
	events, err := m.IssueCommand(ctx,
		[]byte(skstack.Scan(skstack.ScanEnergyDetect, skstack.AllChannels, duration)+skstack.CRLF),
		spec, false, scanBudget(duration))
	if err != nil {
		return 0, nil, fmt.Errorf("energy detect scan: %w", err)
	}
	u, _ := events[2].(skstack.Unknown)
	fields := u.Tokens

	pairs, err := parseEnergyPairs(fields)
	if err != nil {
		return 0, nil, fmt.Errorf("energy detect scan: %w", err)
	}
	best := pairs[0]
	for _, p := range pairs[1:] {
		if p.LQI < best.LQI {
			best = p
		}
	}
	return best.Channel, pairs, nil
}

func parseEnergyPairs(fields []string) ([]ChannelEnergy, error) {
	if len(fields) == 0 || len(fields)%2 != 0 {
		return nil, fmt.Errorf("odd or empty channel list %q", fields)
	}
	pairs := make([]ChannelEnergy, 0, len(fields)/2)
	for i := 0; i < len(fields); i += 2 {
		ch, err := strconv.ParseUint(fields[i], 16, 8)
		if err != nil {
			return nil, fmt.Errorf("channel %q: %w", fields[i], err)
		}
		lqi, err := strconv.ParseUint(fields[i+1], 16, 8)
		if err != nil {
			return nil, fmt.Errorf("LQI %q: %w", fields[i+1], err)
		}
		pairs = append(pairs, ChannelEnergy{Channel: uint8(ch), LQI: uint8(lqi)})
	}
	return pairs, nil
}

// ActiveScan collects PAN coordinators until the module reports the end
// of the scan. An empty result means nothing answered; a cancelled ctx
// yields ErrCancelled instead.
//
// Candidates are only reported when all their fields arrived in the order
// the module prints them; incomplete descriptors are dropped.
func (m *Module) ActiveScan(ctx context.Context, duration uint8) ([]PeerCandidate, error) {
	ctx, cancel := context.WithTimeout(ctx, scanBudget(duration))
	defer cancel()

	// Only the IE variant reports the PairID of each coordinator.
	line := skstack.Scan(skstack.ScanActiveIE, skstack.AllChannels, duration) + skstack.CRLF
	if _, err := m.IssueCommand(ctx, []byte(line), nil, false, 0); err != nil {
		return nil, fmt.Errorf("active scan: %w", err)
	}

	var (
		candidates []PeerCandidate
		asm        assembler
	)
	for {
		ev, err := m.Next(ctx)
		if err != nil {
			return nil, fmt.Errorf("active scan: %w", contextError(err))
		}

		switch ev := ev.(type) {
		case skstack.PanDescriptor:
			asm.reset()
		case skstack.ScanField:
			c, done, err := asm.add(ev)
			if err != nil {
				m.logger.Warn("discarding PAN descriptor", "error", err)
				continue
			}
			if done {
				m.logger.Debug("found PAN", "channel", c.Channel, "pan", c.PanID, "addr", c.Addr, "lqi", c.LQI)
				candidates = append(candidates, c)
			}
		case skstack.Fail:
			return nil, fmt.Errorf("active scan: %w: %s", ErrCommandFailed, ev.Code)
		case skstack.EventNotice:
			if ev.Code == skstack.EventActiveScanDone {
				return candidates, nil
			}
		}
	}
}

var errFieldOrder = errors.New("field out of order")

// assembler builds a PeerCandidate from consecutive scan fields.
type assembler struct {
	next int // index into skstack.ScanFieldOrder; -1 when discarding
	c    PeerCandidate
}

func (a *assembler) reset() {
	*a = assembler{}
}

// add consumes one field. It returns the finished candidate and true when
// f was the last field of a complete descriptor.
func (a *assembler) add(f skstack.ScanField) (PeerCandidate, bool, error) {
	// A channel line always opens a descriptor, even without EPANDESC.
	if f.Name == skstack.FieldChannel {
		a.reset()
	}
	if a.next < 0 {
		return PeerCandidate{}, false, nil
	}
	if f.Name != skstack.ScanFieldOrder[a.next] {
		want := skstack.ScanFieldOrder[a.next]
		a.next = -1
		return PeerCandidate{}, false, fmt.Errorf("%w: got %q, want %q", errFieldOrder, f.Name, want)
	}

	var err error
	switch f.Name {
	case skstack.FieldChannel:
		a.c.Channel, err = hexField[uint8](f, 8)
	case skstack.FieldChannelPage:
		a.c.ChannelPage, err = hexField[uint8](f, 8)
	case skstack.FieldPanID:
		a.c.PanID, err = hexField[uint16](f, 16)
	case skstack.FieldAddr:
		a.c.Addr = f.Value
	case skstack.FieldLQI:
		a.c.LQI, err = hexField[uint8](f, 8)
	case skstack.FieldPairID:
		a.c.PairID = f.Value
	}
	if err != nil {
		a.next = -1
		return PeerCandidate{}, false, err
	}

	a.next++
	if a.next < len(skstack.ScanFieldOrder) {
		return PeerCandidate{}, false, nil
	}
	c := a.c
	a.next = -1
	return c, true, nil
}

func hexField[T uint8 | uint16](f skstack.ScanField, bits int) (T, error) {
	v, err := strconv.ParseUint(f.Value, 16, bits)
	if err != nil {
		return 0, fmt.Errorf("%s %q: %w", f.Name, f.Value, err)
	}
	return T(v), nil
}
