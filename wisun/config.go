package wisun

import (
	"log/slog"
	"time"
)

// Config holds the settings of a Module. Build one with NewConfigBuilder.
type Config struct {
	dialer         Dialer
	logger         *slog.Logger
	commandTimeout time.Duration
	joinTimeout    time.Duration
	queueWarnLen   int
}

func (c *Config) validate() error {
	if c.dialer == nil {
		return ErrNoDialer
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.commandTimeout == 0 {
		c.commandTimeout = 5 * time.Second
	}
	if c.joinTimeout == 0 {
		c.joinTimeout = 20 * time.Second
	}
	if c.queueWarnLen == 0 {
		c.queueWarnLen = 256
	}
}

// ConfigBuilder assembles a Config.
type ConfigBuilder struct {
	config Config
}

func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{}
}

// WithDialer sets how the transport to the module is opened. Required.
func (b *ConfigBuilder) WithDialer(d Dialer) *ConfigBuilder {
	b.config.dialer = d
	return b
}

func (b *ConfigBuilder) WithLogger(l *slog.Logger) *ConfigBuilder {
	b.config.logger = l
	return b
}

// WithCommandTimeout bounds commands that the module always answers,
// such as register writes. A negative value disables the bound.
func (b *ConfigBuilder) WithCommandTimeout(d time.Duration) *ConfigBuilder {
	b.config.commandTimeout = d
	return b
}

// WithJoinTimeout bounds the secured session handshake, including the
// wait for the first handshake datagram.
func (b *ConfigBuilder) WithJoinTimeout(d time.Duration) *ConfigBuilder {
	b.config.joinTimeout = d
	return b
}

// WithQueueWarnLen sets the notification queue length above which the
// loop logs a warning once per doubling.
func (b *ConfigBuilder) WithQueueWarnLen(n int) *ConfigBuilder {
	b.config.queueWarnLen = n
	return b
}

func (b *ConfigBuilder) Build() (Config, error) {
	c := b.config
	if err := c.validate(); err != nil {
		return Config{}, err
	}
	c.setDefaults()
	return c, nil
}
