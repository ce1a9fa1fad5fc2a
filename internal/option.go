package internal

import (
	"io"

	"github.com/starford/lendr/internal/loan"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config    *Config
	clock     loan.Clock
	logOutput io.Writer
	token     string
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithClock replaces the wall clock used to decide today's date.
func WithClock(c loan.Clock) Option {
	return func(a *application) {
		a.clock = c
	}
}

// WithLogOutput sets where structured logs are written.
func WithLogOutput(w io.Writer) Option {
	return func(a *application) {
		a.logOutput = w
	}
}

// WithLibraryToken sets the token the library client uses when a request
// carries none of its own. It takes precedence over library.token and
// applies in every auth mode.
func WithLibraryToken(token string) Option {
	return func(a *application) {
		a.token = token
	}
}
