package store

import "errors"

var (
	ErrNoReadings = errors.New("no readings")
	ErrClosed     = errors.New("store is closed")
)
