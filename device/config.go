package device

import (
	"time"
)

type Config struct {
	dialer            Dialer
	queryTimeout      time.Duration
	unsolicitedBuffer int
}

func (c *Config) validate() error {
	if c.dialer == nil {
		return ErrNoDialer
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.queryTimeout == 0 {
		c.queryTimeout = time.Second
	}
	if c.unsolicitedBuffer == 0 {
		c.unsolicitedBuffer = 16
	}
}

// ConfigBuilder assembles a validated Config for New.
type ConfigBuilder struct {
	config Config
}

func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{}
}

// WithDialer sets the Dialer used to open the sensor transport. Required.
func (b *ConfigBuilder) WithDialer(d Dialer) *ConfigBuilder {
	b.config.dialer = d
	return b
}

// WithQueryTimeout sets the fallback reply timeout used when a query is
// issued without an explicit one. Defaults to one second.
func (b *ConfigBuilder) WithQueryTimeout(d time.Duration) *ConfigBuilder {
	b.config.queryTimeout = d
	return b
}

// WithUnsolicitedBuffer sets the capacity of the channel carrying reply
// lines that arrive with no query outstanding (continuous mode output).
// Defaults to 16; lines are dropped when the buffer is full.
func (b *ConfigBuilder) WithUnsolicitedBuffer(n int) *ConfigBuilder {
	b.config.unsolicitedBuffer = n
	return b
}

func (b *ConfigBuilder) Build() (Config, error) {
	config := b.config
	config.setDefaults()
	if err := config.validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}
