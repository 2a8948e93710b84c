// ezobridge interprets the line protocol of an Atlas Scientific EZO EC
// conductivity circuit and exposes a human-typed command language over a
// second serial link (or stdin/stdout): calibration, output configuration,
// temperature compensation, and periodic sampling with derived TDS/salinity
// estimates.
package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	consoleslog "github.com/phsym/console-slog"
	"go.bug.st/serial"

	"github.com/hydrolab/ezobridge/console"
	"github.com/hydrolab/ezobridge/device"
)

func main() {
	flag.String("sensor-port", "/dev/ttyUSB0", "Serial port of the EZO EC circuit")
	flag.Int("sensor-baud", 9600, "Baud rate for the sensor link")
	flag.String("operator-port", "", "Serial port for the operator terminal (empty: stdin/stdout)")
	flag.Int("operator-baud", 115200, "Baud rate for the operator link")
	flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.String("log-format", "json", "Log format (json, console)")
	flag.Parse()

	config, err := LoadConfig(WithDefaults(), WithEnv(), WithFlags(flag.CommandLine))
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := newLogger(config)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deviceConfig, err := device.NewConfigBuilder().
		WithDialer(device.SerialDialer{
			PortName: config.SensorPort,
			Mode: &serial.Mode{
				BaudRate: config.SensorBaud,
				DataBits: 8,
				Parity:   serial.NoParity,
				StopBits: serial.OneStopBit,
			},
		}).
		Build()
	if err != nil {
		logger.Error("Failed to create device config", "error", err)
		os.Exit(1)
	}

	d, err := device.New(ctx, deviceConfig)
	if err != nil {
		logger.Error("Failed to connect to the EZO circuit", "error", err)
		os.Exit(1)
	}

	opIn, opOut, opClose, err := openOperator(ctx, config)
	if err != nil {
		logger.Error("Failed to open operator channel", "error", err)
		d.Close()
		os.Exit(1)
	}
	if opClose != nil {
		defer opClose()
	}

	logger.Info("Starting EZO EC bridge",
		"sensor_port", config.SensorPort,
		"sensor_baud", config.SensorBaud,
		"operator_port", config.OperatorPort,
	)

	go func() {
		if err := d.Loop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Device loop stopped", "error", err)
			stop()
		}
	}()

	sess := console.New(d, opIn, opOut, logger.With("component", "console"))
	if err := sess.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Console session failed", "error", err)
	}

	logger.Info("Closing sensor connection")
	if err := d.Close(); err != nil {
		logger.Error("Failed to close device", "error", err)
	}
}

func newLogger(config *Config) *slog.Logger {
	logLevel := slog.LevelInfo
	switch config.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}

	var handler slog.Handler
	if config.LogFormat == "console" {
		handler = consoleslog.NewHandler(os.Stderr, &consoleslog.HandlerOptions{Level: logLevel})
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})
	}
	return slog.New(handler)
}

// openOperator opens the operator channel: a second serial port when one is
// configured, stdin/stdout otherwise.
func openOperator(ctx context.Context, config *Config) (io.Reader, io.Writer, func() error, error) {
	if config.OperatorPort == "" {
		return os.Stdin, os.Stdout, nil, nil
	}

	dialer := device.SerialDialer{
		PortName: config.OperatorPort,
		Mode: &serial.Mode{
			BaudRate: config.OperatorBaud,
			DataBits: 8,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		},
	}
	port, err := dialer.Dial(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	return port, port, port.Close, nil
}
