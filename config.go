package main

import (
	"os"
	"strconv"
	"time"

	"github.com/jessevdk/go-flags"
)

// Config holds the application configuration
type Config struct {
	// BindAddress is the address the server listens on (e.g. "0.0.0.0:8080")
	BindAddress string
	// SerialPort is the path to the modem's serial port (e.g. "/dev/ttyUSB0")
	SerialPort string
	// BaudRate is the baud rate for serial communication with the modem (e.g. 115200)
	BaudRate int
	// LogLevel sets the logging level (e.g. "debug", "info", "warn", "error")
	LogLevel string
	// SimPIN is the SIM card PIN code
	SimPIN string
	// Variant names the modem capability (e.g. "bg96")
	Variant string
	// DeviceID labels the modem in logs and metrics
	DeviceID string
	// ATTimeout is the default step timeout
	ATTimeout time.Duration
	// APIToken, when set, is required as a bearer token on every API call
	APIToken string
}

// Options are the command-line flags.
type Options struct {
	SerialPort  string        `long:"serial-port" description:"Serial port to connect to the modem"`
	BaudRate    int           `long:"baud-rate" description:"Baud rate for serial communication"`
	BindAddress string        `long:"bind-address" description:"Bind address for the HTTP server"`
	LogLevel    string        `long:"log-level" description:"Log level (debug, info, warn, error)"`
	SimPIN      string        `long:"sim-pin" description:"SIM card PIN code (if required)"`
	Variant     string        `long:"variant" description:"Modem variant"`
	DeviceID    string        `long:"device-id" description:"Modem identity in logs and metrics"`
	ATTimeout   time.Duration `long:"at-timeout" description:"Default AT command timeout"`
	APIToken    string        `long:"api-token" description:"Bearer token required by the HTTP API"`
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
		c.LogLevel = "info"
		c.Variant = "bg96"
		c.DeviceID = "modem0"
		c.ATTimeout = 5 * time.Second
		return nil
	}
}

// WithEnv loads configuration from environment variables
func WithEnv() ConfigOption {
	return func(c *Config) error {
		if addr := os.Getenv("BIND_ADDRESS"); addr != "" {
			c.BindAddress = addr
		}

		if serial := os.Getenv("SERIAL_PORT"); serial != "" {
			c.SerialPort = serial
		}

		if baud := os.Getenv("BAUD_RATE"); baud != "" {
			if b, err := strconv.Atoi(baud); err == nil {
				c.BaudRate = b
			}
		}

		if level := os.Getenv("LOG_LEVEL"); level != "" {
			c.LogLevel = level
		}

		if simPIN := os.Getenv("SIM_PIN"); simPIN != "" {
			c.SimPIN = simPIN
		}

		if variant := os.Getenv("MODEM_VARIANT"); variant != "" {
			c.Variant = variant
		}

		if id := os.Getenv("DEVICE_ID"); id != "" {
			c.DeviceID = id
		}

		if timeout := os.Getenv("AT_TIMEOUT"); timeout != "" {
			if d, err := time.ParseDuration(timeout); err == nil {
				c.ATTimeout = d
			}
		}

		if token := os.Getenv("API_TOKEN"); token != "" {
			c.APIToken = token
		}

		return nil
	}
}

// WithFlags applies the command-line flags that were given explicitly
func WithFlags(p *flags.Parser, o *Options) ConfigOption {
	return func(c *Config) error {
		set := func(name string) bool {
			opt := p.FindOptionByLongName(name)
			return opt != nil && opt.IsSet()
		}

		if set("bind-address") {
			c.BindAddress = o.BindAddress
		}
		if set("serial-port") {
			c.SerialPort = o.SerialPort
		}
		if set("baud-rate") {
			c.BaudRate = o.BaudRate
		}
		if set("log-level") {
			c.LogLevel = o.LogLevel
		}
		if set("sim-pin") {
			c.SimPIN = o.SimPIN
		}
		if set("variant") {
			c.Variant = o.Variant
		}
		if set("device-id") {
			c.DeviceID = o.DeviceID
		}
		if set("at-timeout") {
			c.ATTimeout = o.ATTimeout
		}
		if set("api-token") {
			c.APIToken = o.APIToken
		}
		return nil
	}
}
