package modem

import (
	"time"

	"go.uber.org/zap"

	"i4.energy/across/cellat/capability"
	"i4.energy/across/cellat/ipc"
	"i4.energy/across/cellat/uart"
)

// DefaultVariant is used when a Config names neither a variant nor a
// capability.
const DefaultVariant = "bg96"

func (c *Config) validate() error {
	if c.Dialer == nil {
		return ErrNoDialer
	}
	return nil
}

type Config struct {
	Dialer uart.Dialer
	// Variant names a registered capability. Capability, when set, wins.
	Variant    string
	Capability capability.Capability
	// DeviceID is the physical identity reported in logs and metrics.
	DeviceID string
	SimPIN   string

	// ATTimeout is the step timeout used when the variant sets none.
	ATTimeout   time.Duration
	InitTimeout time.Duration

	RingCapacity   int
	PauseThreshold int
	URCBuffer      int
	TxRetries      int

	Logger *zap.Logger
	// URCHandler, when set, is called from the loop for every forwarded
	// unsolicited result. It must not block.
	URCHandler func(capability.URC)
}

func (c *Config) setDefaults() {
	if c.Variant == "" && c.Capability == nil {
		c.Variant = DefaultVariant
	}
	if c.DeviceID == "" {
		c.DeviceID = "modem0"
	}
	if c.ATTimeout == 0 {
		c.ATTimeout = 5 * time.Second
	}
	if c.InitTimeout == 0 {
		c.InitTimeout = 30 * time.Second
	}
	if c.RingCapacity == 0 {
		c.RingCapacity = ipc.DefaultCapacity
	}
	if c.PauseThreshold == 0 {
		c.PauseThreshold = ipc.DefaultPauseThreshold
	}
	if c.URCBuffer == 0 {
		c.URCBuffer = 100
	}
	if c.TxRetries == 0 {
		c.TxRetries = 3
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

// ConfigBuilder assembles a Config step by step.
type ConfigBuilder struct {
	config Config
}

func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{}
}

func (b *ConfigBuilder) WithDialer(d uart.Dialer) *ConfigBuilder {
	b.config.Dialer = d
	return b
}

func (b *ConfigBuilder) WithVariant(name string) *ConfigBuilder {
	b.config.Variant = name
	return b
}

func (b *ConfigBuilder) WithCapability(c capability.Capability) *ConfigBuilder {
	b.config.Capability = c
	return b
}

func (b *ConfigBuilder) WithDeviceID(id string) *ConfigBuilder {
	b.config.DeviceID = id
	return b
}

func (b *ConfigBuilder) WithSimPIN(pin string) *ConfigBuilder {
	b.config.SimPIN = pin
	return b
}

func (b *ConfigBuilder) WithATTimeout(d time.Duration) *ConfigBuilder {
	b.config.ATTimeout = d
	return b
}

func (b *ConfigBuilder) WithInitTimeout(d time.Duration) *ConfigBuilder {
	b.config.InitTimeout = d
	return b
}

// WithRing sizes the receive channel.
func (b *ConfigBuilder) WithRing(capacity, pauseThreshold int) *ConfigBuilder {
	b.config.RingCapacity = capacity
	b.config.PauseThreshold = pauseThreshold
	return b
}

func (b *ConfigBuilder) WithURCBuffer(n int) *ConfigBuilder {
	b.config.URCBuffer = n
	return b
}

func (b *ConfigBuilder) WithTxRetries(n int) *ConfigBuilder {
	b.config.TxRetries = n
	return b
}

func (b *ConfigBuilder) WithLogger(l *zap.Logger) *ConfigBuilder {
	b.config.Logger = l
	return b
}

func (b *ConfigBuilder) WithURCHandler(fn func(capability.URC)) *ConfigBuilder {
	b.config.URCHandler = fn
	return b
}

// Build validates the configuration and fills in defaults.
func (b *ConfigBuilder) Build() (Config, error) {
	c := b.config
	if err := c.validate(); err != nil {
		return Config{}, err
	}
	c.setDefaults()
	return c, nil
}
