package echonet

import "fmt"

// Registry maps property mnemonics to property codes.
type Registry struct {
	props map[string]byte
}

// Base properties shared by every device object (device object super class).
var baseProperties = map[string]byte{
	"operation_status":  0x80,
	"location":          0x81,
	"version":           0x82,
	"identification":    0x83,
	"fault_status":      0x88,
	"manufacturer_code": 0x8A,
	"facility_code":     0x8B,
	"product_code":      0x8C,
	"production_number": 0x8D,
	"production_date":   0x8E,
	"current_time":      0x97,
	"current_date":      0x98,
	"status_change_map": 0x9D,
	"set_property_map":  0x9E,
	"get_property_map":  0x9F,
}

// Low-voltage smart electric energy meter class (0x0288) properties.
var smartMeterProperties = map[string]byte{
	"coefficient":                     0xD3,
	"effective_digits":                0xD7,
	"cumulative_energy_normal":        0xE0,
	"cumulative_energy_unit":          0xE1,
	"cumulative_energy_history_1":     0xE2,
	"cumulative_energy_reverse":       0xE3,
	"cumulative_energy_reverse_hist1": 0xE4,
	"history_collection_day_1":        0xE5,
	"instant_power":                   0xE7,
	"instant_current":                 0xE8,
	"fixed_time_energy_normal":        0xEA,
	"fixed_time_energy_reverse":       0xEB,
	"cumulative_energy_history_2":     0xEC,
	"history_collection_day_2":        0xED,
}

// NewRegistry builds a registry holding the base properties plus the
// given class-specific extension. Extension entries override base entries
// with the same mnemonic.
func NewRegistry(extension map[string]byte) *Registry {
	r := &Registry{props: make(map[string]byte, len(baseProperties)+len(extension))}
	for k, v := range baseProperties {
		r.props[k] = v
	}
	for k, v := range extension {
		r.props[k] = v
	}
	return r
}

// SmartMeterRegistry returns the registry for a low-voltage smart meter.
func SmartMeterRegistry() *Registry {
	return NewRegistry(smartMeterProperties)
}

// Lookup returns the property code registered under name.
func (r *Registry) Lookup(name string) (byte, bool) {
	epc, ok := r.props[name]
	return epc, ok
}

// BuildGetRequest encodes a Get frame (TID 0) from the controller to dest
// requesting the named properties with zero-length data.
func (r *Registry) BuildGetRequest(dest Object, names ...string) ([]byte, error) {
	f := Frame{
		SEOJ: Controller,
		DEOJ: dest,
		ESV:  Get,
	}
	for _, name := range names {
		epc, ok := r.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownProperty, name)
		}
		f.Properties = append(f.Properties, Property{EPC: epc})
	}
	return f.Encode()
}

// BuildGetRequest encodes a Get frame for one smart meter property.
func BuildGetRequest(name string) ([]byte, error) {
	return SmartMeterRegistry().BuildGetRequest(LowVoltageSmartMeter, name)
}
