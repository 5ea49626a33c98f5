package meter

import "errors"

var (
	// ErrNoMeter is returned by Connect when no active scan found a PAN.
	ErrNoMeter = errors.New("no smart meter found")

	// ErrNotConnected is returned when a reading is requested without a
	// secured session, or after the meter ended the session.
	ErrNotConnected = errors.New("not connected to smart meter")

	// ErrTIDMismatch marks a reply whose transaction id is not the one of
	// the outstanding request. Such replies are logged and discarded.
	ErrTIDMismatch = errors.New("transaction id mismatch")

	// ErrRejected is returned when the meter answers a request with
	// Get_SNA: it has replied and will not send the property.
	ErrRejected = errors.New("meter rejected request")
)
