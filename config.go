package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds the application configuration
type Config struct {
	// BindAddress is the address the server listens on (e.g. "0.0.0.0:8080")
	BindAddress string `toml:"bind_address"`
	// SerialPort is the path to the Wi-SUN module's serial port (e.g. "/dev/ttyUSB0")
	SerialPort string `toml:"serial_port"`
	// BaudRate is the baud rate for serial communication with the module (e.g. 115200)
	BaudRate int `toml:"baud_rate"`
	// IdleTimeout is the serial read timeout after which the reader reports an idle line
	IdleTimeout time.Duration `toml:"idle_timeout"`
	// LogLevel sets the logging level (e.g. "debug", "info", "warn", "error")
	LogLevel string `toml:"log_level"`
	// RouteBID is the 32 character Route-B authentication id
	RouteBID string `toml:"routeb_id"`
	// RouteBPassword is the Route-B password
	RouteBPassword string `toml:"routeb_password"`
	// ScanDuration is the active scan duration code
	ScanDuration int `toml:"scan_duration"`
	// PollInterval is the time between instantaneous power requests
	PollInterval time.Duration `toml:"poll_interval"`
	// RenewInterval is the time between session renewals
	RenewInterval time.Duration `toml:"renew_interval"`
	// DBPath is the SQLite database file readings are stored in
	DBPath string `toml:"db_path"`
}

// Validate reports missing or out of range settings
func (c *Config) Validate() error {
	if c.RouteBID == "" || c.RouteBPassword == "" {
		return errors.New("route-B id and password are required")
	}
	if c.ScanDuration < 1 || c.ScanDuration > 14 {
		return fmt.Errorf("scan duration %d out of range 1..14", c.ScanDuration)
	}
	if c.PollInterval <= 0 || c.RenewInterval <= 0 {
		return errors.New("poll and renew intervals must be positive")
	}
	return nil
}

// ConfigOption is a function that modifies a Config
type ConfigOption func(*Config) error

// LoadConfig creates a new config by applying the given options in order
func LoadConfig(opts ...ConfigOption) (*Config, error) {
	config := &Config{}

	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, err
		}
	}

	return config, nil
}

// WithDefaults applies default configuration values
func WithDefaults() ConfigOption {
	return func(c *Config) error {
		c.BindAddress = "0.0.0.0:8080"
		c.SerialPort = "/dev/ttyUSB0"
		c.BaudRate = 115200
		c.IdleTimeout = time.Second
		c.LogLevel = "info"
		c.ScanDuration = 6
		c.PollInterval = time.Minute
		c.RenewInterval = 12 * time.Hour
		c.DBPath = "semgw.db"
		return nil
	}
}

// WithFile overlays the settings found in a TOML file. An empty path is
// ignored.
func WithFile(path string) ConfigOption {
	return func(c *Config) error {
		if path == "" {
			return nil
		}
		md, err := toml.DecodeFile(path, c)
		if err != nil {
			return fmt.Errorf("read config file %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return fmt.Errorf("config file %s: unknown keys %s", path, strings.Join(keys, ", "))
		}
		return nil
	}
}

// WithEnv loads configuration from environment variables
func WithEnv() ConfigOption {
	return func(c *Config) error {
		for name, set := range c.setters() {
			if v := os.Getenv(strings.ToUpper(strings.ReplaceAll(name, "-", "_"))); v != "" {
				if err := set(v); err != nil {
					return fmt.Errorf("environment %s: %w", name, err)
				}
			}
		}
		return nil
	}
}

// WithFlags loads configuration from command-line flags
func WithFlags(fSet *flag.FlagSet) ConfigOption {
	return func(c *Config) error {
		setters := c.setters()
		var err error
		fSet.Visit(func(f *flag.Flag) {
			set, ok := setters[f.Name]
			if !ok || err != nil {
				return
			}
			if serr := set(f.Value.String()); serr != nil {
				err = fmt.Errorf("flag -%s: %w", f.Name, serr)
			}
		})
		return err
	}
}

// setters maps flag names to the field they set. Environment variables
// use the upper-case name with underscores, e.g. SERIAL_PORT.
func (c *Config) setters() map[string]func(string) error {
	str := func(p *string) func(string) error {
		return func(v string) error { *p = v; return nil }
	}
	num := func(p *int) func(string) error {
		return func(v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return err
			}
			*p = n
			return nil
		}
	}
	dur := func(p *time.Duration) func(string) error {
		return func(v string) error {
			d, err := time.ParseDuration(v)
			if err != nil {
				return err
			}
			*p = d
			return nil
		}
	}

	return map[string]func(string) error{
		"bind-address":    str(&c.BindAddress),
		"serial-port":     str(&c.SerialPort),
		"baud-rate":       num(&c.BaudRate),
		"idle-timeout":    dur(&c.IdleTimeout),
		"log-level":       str(&c.LogLevel),
		"routeb-id":       str(&c.RouteBID),
		"routeb-password": str(&c.RouteBPassword),
		"scan-duration":   num(&c.ScanDuration),
		"poll-interval":   dur(&c.PollInterval),
		"renew-interval":  dur(&c.RenewInterval),
		"db-path":         str(&c.DBPath),
	}
}
