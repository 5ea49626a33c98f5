package echonet

import "errors"

var (
	// ErrMalformed is returned when a buffer is not a well-formed
	// ECHONET Lite frame: too short, wrong header, a property running
	// past the end, or bytes left over after the last property.
	//
	// Receivers discard the datagram and continue.
	ErrMalformed = errors.New("malformed ECHONET Lite frame")

	// ErrTooLarge is returned when a frame cannot be encoded because a
	// count or length does not fit in its one-byte field.
	ErrTooLarge = errors.New("ECHONET Lite frame field too large")

	// ErrUnknownProperty is returned when a property mnemonic is not in
	// the registry.
	ErrUnknownProperty = errors.New("unknown property")

	// ErrPropertyData is returned when a property value has an
	// unexpected length for its code.
	ErrPropertyData = errors.New("unexpected property data")
)
