package main

import (
	"flag"
	"os"
	"strconv"
)

// Config holds the application configuration
type Config struct {
	// SensorPort is the path to the EZO circuit's serial port (e.g. "/dev/ttyUSB0")
	SensorPort string
	// SensorBaud is the baud rate for the sensor link (EZO factory default 9600)
	SensorBaud int
	// OperatorPort is the path to the operator terminal's serial port;
	// empty selects stdin/stdout
	OperatorPort string
	// OperatorBaud is the baud rate for the operator link
	OperatorBaud int
	// LogLevel sets the logging level (e.g. "debug", "info", "warn", "error")
	LogLevel string
	// LogFormat selects the log handler ("json" or "console")
	LogFormat string
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
		c.SensorPort = "/dev/ttyUSB0"
		c.SensorBaud = 9600
		c.OperatorPort = ""
		c.OperatorBaud = 115200
		c.LogLevel = "info"
		c.LogFormat = "json"
		return nil
	}
}

// WithEnv loads configuration from environment variables
func WithEnv() ConfigOption {
	return func(c *Config) error {
		if port := os.Getenv("SENSOR_PORT"); port != "" {
			c.SensorPort = port
		}

		if baud := os.Getenv("SENSOR_BAUD"); baud != "" {
			if b, err := strconv.Atoi(baud); err == nil {
				c.SensorBaud = b
			}
		}

		if port := os.Getenv("OPERATOR_PORT"); port != "" {
			c.OperatorPort = port
		}

		if baud := os.Getenv("OPERATOR_BAUD"); baud != "" {
			if b, err := strconv.Atoi(baud); err == nil {
				c.OperatorBaud = b
			}
		}

		if level := os.Getenv("LOG_LEVEL"); level != "" {
			c.LogLevel = level
		}

		if format := os.Getenv("LOG_FORMAT"); format != "" {
			c.LogFormat = format
		}

		return nil
	}
}

// WithFlags loads configuration from command-line flags
func WithFlags(fSet *flag.FlagSet) ConfigOption {
	return func(c *Config) error {
		fSet.Visit(func(f *flag.Flag) {
			switch f.Name {
			case "sensor-port":
				c.SensorPort = f.Value.String()
			case "sensor-baud":
				if b, err := strconv.Atoi(f.Value.String()); err == nil {
					c.SensorBaud = b
				}
			case "operator-port":
				c.OperatorPort = f.Value.String()
			case "operator-baud":
				if b, err := strconv.Atoi(f.Value.String()); err == nil {
					c.OperatorBaud = b
				}
			case "log-level":
				c.LogLevel = f.Value.String()
			case "log-format":
				c.LogFormat = f.Value.String()
			}
		})
		return nil
	}
}
