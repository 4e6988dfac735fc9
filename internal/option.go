package internal

import (
	"io"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config  *Config
	version string
	// logOutput receives the JSON log stream. Defaults to stdout for the
	// HTTP server and stderr for the MCP server, whose stdout is the protocol.
	logOutput io.Writer
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithVersion sets the version reported by the MCP server.
func WithVersion(v string) Option {
	return func(a *application) {
		a.version = v
	}
}

// WithLogOutput overrides where logs are written.
func WithLogOutput(w io.Writer) Option {
	return func(a *application) {
		a.logOutput = w
	}
}
