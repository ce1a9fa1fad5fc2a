package internal

import (
	"fmt"
	"log/slog"
	"net/url"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/lendr/internal/api"
	"github.com/starford/lendr/internal/loan"
)

// Auth modes.
const (
	AuthModeStatic  = api.AuthModeStatic
	AuthModeForward = api.AuthModeForward
)

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	Library   LibraryConfig     `yaml:"library"`
	Loan      LoanConfig        `yaml:"loan"`
	Auth      AuthConfig        `yaml:"auth"`
	RateLimit RateLimitConfig   `yaml:"rate_limit"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Library.Validate(); err != nil {
		return fmt.Errorf("library: %w", err)
	}
	if err := c.Loan.Validate(); err != nil {
		return fmt.Errorf("loan: %w", err)
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	return c.RateLimit.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// LibraryConfig points at the remote library API.
type LibraryConfig struct {
	BaseURL string        `yaml:"base_url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

// Validate validates the library configuration.
func (c *LibraryConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.BaseURL, validation.Required, validation.By(httpURL)),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
	)
}

func httpURL(value any) error {
	s, _ := value.(string)
	u, err := url.Parse(s)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("must be an http or https URL")
	}
	return nil
}

// LoanConfig holds the loan policy and the time zone that decides which
// calendar day "today" is. PolicyFile, when set, overrides the inline policy
// and is watched for changes while serving.
type LoanConfig struct {
	loan.Policy `yaml:",inline"`
	Timezone    string `yaml:"timezone"`
	PolicyFile  string `yaml:"policy_file"`
}

// Validate validates the loan configuration.
func (c *LoanConfig) Validate() error {
	if err := c.Policy.Validate(); err != nil {
		return err
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Timezone, validation.By(func(any) error {
			_, err := c.Location()
			return err
		})),
	)
}

// Location resolves Timezone. Empty means UTC.
func (c *LoanConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Timezone)
}

// AuthConfig holds gateway authentication configuration.
//
// Mode controls which token reaches the library API:
//   - "static" (default): the gateway calls the library with library.token.
//     When Token is set, gateway clients must present it as a Bearer token.
//   - "forward": each gateway request must carry a Bearer token, which is
//     passed on to the library API.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeStatic
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeStatic, AuthModeForward)),
	)
}

// Forwarding returns true when member tokens are passed through.
func (c *AuthConfig) Forwarding() bool {
	return c.Mode == AuthModeForward
}

// RateLimitConfig holds the per-IP gateway rate limit, formatted as
// "<limit>-<period>" with period S, M, H or D. Empty disables limiting.
type RateLimitConfig struct {
	Rate string `yaml:"rate"`
}

// Validate validates the rate limit configuration.
func (c *RateLimitConfig) Validate() error {
	if c.Rate == "" {
		return nil
	}
	if _, err := api.NewRateLimiter(c.Rate); err != nil {
		return fmt.Errorf("rate_limit: %w", err)
	}
	return nil
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Library: LibraryConfig{
			BaseURL: "http://localhost:8000/api",
			Timeout: 10 * time.Second,
		},
		Loan: LoanConfig{
			Policy: loan.DefaultPolicy(),
		},
		Auth: AuthConfig{
			Mode: AuthModeStatic,
		},
		RateLimit: RateLimitConfig{
			Rate: "120-M",
		},
	}
}
