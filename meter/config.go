package meter

import (
	"log/slog"
	"time"
)

// Config holds the Route-B credentials and the retry and timing policy.
type Config struct {
	RouteBID string
	Password string

	// ScanDuration is the SKSCAN duration code.
	ScanDuration uint8
	ScanAttempts int
	JoinAttempts int
	// SendAttempts bounds retransmissions of one request, each with a
	// fresh transaction id.
	SendAttempts int
	// ReplyTimeout bounds the wait for the meter's answer.
	ReplyTimeout  time.Duration
	PollInterval  time.Duration
	RenewInterval time.Duration
	// Location interprets the meter's fixed-time stamps. Defaults to
	// time.Local.
	Location *time.Location

	Logger    *slog.Logger
	Resetter  Resetter
	Indicator Indicator
}

func (c *Config) setDefaults() {
	if c.ScanDuration == 0 {
		c.ScanDuration = 6
	}
	if c.ScanAttempts == 0 {
		c.ScanAttempts = 10
	}
	if c.JoinAttempts == 0 {
		c.JoinAttempts = 10
	}
	if c.SendAttempts == 0 {
		c.SendAttempts = 3
	}
	if c.ReplyTimeout == 0 {
		c.ReplyTimeout = 20 * time.Second
	}
	if c.PollInterval == 0 {
		c.PollInterval = time.Minute
	}
	if c.RenewInterval == 0 {
		c.RenewInterval = 12 * time.Hour
	}
	if c.Location == nil {
		c.Location = time.Local
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Resetter == nil {
		c.Resetter = NopResetter{}
	}
	if c.Indicator == nil {
		c.Indicator = NopIndicator{}
	}
}
