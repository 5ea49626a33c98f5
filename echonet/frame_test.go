package echonet_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"i4.energy/across/semgw/echonet"
)

var instantPowerGet = []byte{0x10, 0x81, 0x00, 0x01, 0x05, 0xFF, 0x01, 0x02, 0x88, 0x01, 0x62, 0x01, 0xE7, 0x00}

func TestDecodeGetRequest(t *testing.T) {
	f, err := echonet.Decode(instantPowerGet)
	require.NoError(t, err)

	assert.Equal(t, uint16(1), f.TID)
	assert.Equal(t, echonet.Controller, f.SEOJ)
	assert.Equal(t, echonet.LowVoltageSmartMeter, f.DEOJ)
	assert.Equal(t, echonet.Get, f.ESV)
	require.Len(t, f.Properties, 1)
	assert.Equal(t, byte(0xE7), f.Properties[0].EPC)
	assert.Empty(t, f.Properties[0].EDT)

	out, err := f.Encode()
	require.NoError(t, err)
	assert.Equal(t, instantPowerGet, out)
}

func TestEncodeDecode(t *testing.T) {
	f := echonet.Frame{
		TID:  0xBEEF,
		SEOJ: echonet.LowVoltageSmartMeter,
		DEOJ: echonet.Controller,
		ESV:  echonet.GetRes,
		Properties: []echonet.Property{
			{EPC: 0xE7, EDT: []byte{0x00, 0x00, 0x01, 0xF4}},
			{EPC: 0xE8, EDT: []byte{0x00, 0x1E, 0x7F, 0xFE}},
		},
	}
	b, err := f.Encode()
	require.NoError(t, err)
	assert.Len(t, b, echonet.HeaderLen+6+6)

	got, err := echonet.Decode(b)
	require.NoError(t, err)
	assert.Equal(t, f, got)
}

func TestEncodeTooLarge(t *testing.T) {
	f := echonet.Frame{Properties: []echonet.Property{{EPC: 0xE7, EDT: make([]byte, 256)}}}
	_, err := f.Encode()
	assert.ErrorIs(t, err, echonet.ErrTooLarge)

	f = echonet.Frame{Properties: make([]echonet.Property, 256)}
	_, err = f.Encode()
	assert.ErrorIs(t, err, echonet.ErrTooLarge)
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"short header", instantPowerGet[:11]},
		{"bad header", append([]byte{0x10, 0x82}, instantPowerGet[2:]...)},
		{"missing property", instantPowerGet[:12]},
		{"pdc past end", []byte{0x10, 0x81, 0x00, 0x01, 0x05, 0xFF, 0x01, 0x02, 0x88, 0x01, 0x62, 0x01, 0xE7, 0x04, 0x00}},
		{"trailing bytes", append(append([]byte{}, instantPowerGet...), 0x00)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := echonet.Decode(tt.data)
			assert.ErrorIs(t, err, echonet.ErrMalformed)
		})
	}
}

func TestDecodeCopiesPropertyData(t *testing.T) {
	b := []byte{0x10, 0x81, 0x00, 0x02, 0x02, 0x88, 0x01, 0x05, 0xFF, 0x01, 0x72, 0x01, 0xE7, 0x01, 0x2A}
	f, err := echonet.Decode(b)
	require.NoError(t, err)
	b[14] = 0x00
	assert.Equal(t, []byte{0x2A}, f.Properties[0].EDT)
}

func TestRewriteTID(t *testing.T) {
	out, err := echonet.RewriteTID(instantPowerGet, 0x1234)
	require.NoError(t, err)

	assert.Equal(t, []byte{0x12, 0x34}, out[2:4])
	assert.Equal(t, instantPowerGet[:2], out[:2])
	assert.Equal(t, instantPowerGet[4:], out[4:])
	assert.Equal(t, byte(0x01), instantPowerGet[3], "input must not be modified")

	_, err = echonet.RewriteTID(instantPowerGet[:5], 1)
	assert.ErrorIs(t, err, echonet.ErrMalformed)
}

func TestIsResponseTo(t *testing.T) {
	req, err := echonet.Decode(instantPowerGet)
	require.NoError(t, err)

	res := echonet.Frame{TID: 1, SEOJ: req.DEOJ, DEOJ: req.SEOJ, ESV: echonet.GetRes}
	assert.True(t, res.IsResponseTo(req))

	res.TID = 2
	assert.False(t, res.IsResponseTo(req))
}

func TestBuildGetRequest(t *testing.T) {
	b, err := echonet.BuildGetRequest("instant_power")
	require.NoError(t, err)
	want, _ := echonet.RewriteTID(instantPowerGet, 0)
	assert.Equal(t, want, b)

	_, err = echonet.BuildGetRequest("no_such_property")
	assert.ErrorIs(t, err, echonet.ErrUnknownProperty)

	r := echonet.SmartMeterRegistry()
	b, err = r.BuildGetRequest(echonet.LowVoltageSmartMeter, "operation_status", "instant_current")
	require.NoError(t, err)
	f, err := echonet.Decode(b)
	require.NoError(t, err)
	require.Len(t, f.Properties, 2)
	assert.Equal(t, byte(0x80), f.Properties[0].EPC)
	assert.Equal(t, byte(0xE8), f.Properties[1].EPC)
}

func TestRegistryOverride(t *testing.T) {
	r := echonet.NewRegistry(map[string]byte{"location": 0x01, "extra": 0xF0})
	epc, ok := r.Lookup("location")
	assert.True(t, ok)
	assert.Equal(t, byte(0x01), epc)
	epc, ok = r.Lookup("extra")
	assert.True(t, ok)
	assert.Equal(t, byte(0xF0), epc)
	_, ok = r.Lookup("instant_power")
	assert.False(t, ok)
}

func TestTIDCounterWraps(t *testing.T) {
	var c echonet.TIDCounter
	assert.Equal(t, uint16(1), c.Next())
	for i := 0; i < 0xFFFD; i++ {
		c.Next()
	}
	assert.Equal(t, uint16(0xFFFF), c.Next())
	assert.Equal(t, uint16(0), c.Next())
	assert.Equal(t, uint16(1), c.Next())
}

func TestPropertyDecoders(t *testing.T) {
	w, err := echonet.InstantPower(echonet.Property{EPC: 0xE7, EDT: []byte{0xFF, 0xFF, 0xFF, 0x9C}})
	require.NoError(t, err)
	assert.Equal(t, int32(-100), w)

	_, err = echonet.InstantPower(echonet.Property{EPC: 0xE7, EDT: []byte{0x01}})
	assert.ErrorIs(t, err, echonet.ErrPropertyData)

	c, err := echonet.InstantCurrent(echonet.Property{EPC: 0xE8, EDT: []byte{0x00, 0x1E, 0x7F, 0xFE}})
	require.NoError(t, err)
	assert.InDelta(t, 3.0, c.R, 1e-9)
	assert.True(t, c.SinglePhase)

	c, err = echonet.InstantCurrent(echonet.Property{EPC: 0xE8, EDT: []byte{0x00, 0x0A, 0x00, 0x14}})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, c.R, 1e-9)
	assert.InDelta(t, 2.0, c.T, 1e-9)
	assert.False(t, c.SinglePhase)

	units := map[byte]float64{0x00: 1, 0x01: 0.1, 0x04: 0.0001, 0x0A: 10, 0x0D: 10000}
	for raw, want := range units {
		got, err := echonet.EnergyUnit(echonet.Property{EPC: 0xE1, EDT: []byte{raw}})
		require.NoError(t, err)
		assert.InDelta(t, want, got, 1e-12)
	}
	_, err = echonet.EnergyUnit(echonet.Property{EPC: 0xE1, EDT: []byte{0x05}})
	assert.ErrorIs(t, err, echonet.ErrPropertyData)

	k, err := echonet.Coefficient(echonet.Property{EPC: 0xD3, EDT: []byte{0x00, 0x00, 0x00, 0x0A}})
	require.NoError(t, err)
	assert.Equal(t, uint32(10), k)
}

func TestFixedTimeEnergy(t *testing.T) {
	edt := []byte{0x07, 0xEA, 0x0A, 0x0F, 0x0D, 0x1E, 0x00, 0x00, 0x00, 0x30, 0x39}
	at, v, err := echonet.FixedTimeEnergy(echonet.Property{EPC: 0xEA, EDT: edt}, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, time.October, 15, 13, 30, 0, 0, time.UTC), at)
	assert.Equal(t, uint32(12345), v)

	_, _, err = echonet.FixedTimeEnergy(echonet.Property{EPC: 0xEA, EDT: edt[:7]}, time.UTC)
	assert.ErrorIs(t, err, echonet.ErrPropertyData)
}
