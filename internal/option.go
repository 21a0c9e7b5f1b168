package internal

import (
	"io"

	"github.com/starford/screenflowr/internal/device"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config    *Config
	logOutput io.Writer
	provider  device.Provider
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithLogOutput redirects the JSON logger. The MCP command logs to stderr
// because stdout carries the protocol.
func WithLogOutput(w io.Writer) Option {
	return func(a *application) {
		a.logOutput = w
	}
}

// WithDeviceProvider replaces the configured capture provider.
func WithDeviceProvider(p device.Provider) Option {
	return func(a *application) {
		a.provider = p
	}
}
