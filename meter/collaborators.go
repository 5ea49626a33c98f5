package meter

import (
	"context"
	"errors"
	"time"
)

// Reading is one instantaneous power sample.
type Reading struct {
	Time  time.Time `json:"time"`
	Watts int32     `json:"power"`
	TID   uint16    `json:"tid"`
}

// Sink receives every reading. Sink errors are logged, never fatal.
type Sink interface {
	Record(ctx context.Context, r Reading) error
}

// Sinks fans a reading out to several sinks.
type Sinks []Sink

func (s Sinks) Record(ctx context.Context, r Reading) error {
	var errs []error
	for _, sink := range s {
		if err := sink.Record(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Resetter pulses the radio module's reset line.
type Resetter interface {
	Reset(ctx context.Context) error
}

// Indicator signals activity, e.g. by blinking an LED once per reading.
type Indicator interface {
	Blink()
}

type NopResetter struct{}

func (NopResetter) Reset(context.Context) error { return nil }

type NopIndicator struct{}

func (NopIndicator) Blink() {}
