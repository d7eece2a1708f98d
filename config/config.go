package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	credentials "github.com/goliatone/go-credentials"
)

// Prefix is prepended to every environment variable name.
const Prefix = "CREDENTIALS_"

// Config is the runtime configuration of the credential service.
type Config struct {
	Environment          string        `env:"ENV" envDefault:"development"`
	Host                 string        `env:"HOST" envDefault:"0.0.0.0"`
	Port                 int           `env:"PORT" envDefault:"8080"`
	DatabaseDSN          string        `env:"DATABASE_DSN" envDefault:"file:credentials.db?cache=shared"`
	LogLevel             string        `env:"LOG_LEVEL" envDefault:"info"`
	Issuer               string        `env:"ISSUER" envDefault:"go-credentials"`
	UserSigningKey       string        `env:"USER_SIGNING_KEY"`
	AdminSigningKey      string        `env:"ADMIN_SIGNING_KEY"`
	AdminRegistrationKey string        `env:"ADMIN_REGISTRATION_KEY"`
	TokenExpiration      time.Duration `env:"TOKEN_TTL" envDefault:"1h"`
	EmailVerificationTTL time.Duration `env:"EMAIL_VERIFICATION_TTL" envDefault:"24h"`
	PasswordResetTTL     time.Duration `env:"PASSWORD_RESET_TTL" envDefault:"1h"`
	TwoFactorOTPTTL      time.Duration `env:"TWO_FACTOR_OTP_TTL" envDefault:"5m"`
	LoginOTPTTL          time.Duration `env:"LOGIN_OTP_TTL" envDefault:"5m"`
	AuthorizationCodeTTL time.Duration `env:"AUTHORIZATION_CODE_TTL" envDefault:"60s"`
	CookieName           string        `env:"COOKIE_NAME" envDefault:"token"`
	ContextKey           string        `env:"CONTEXT_KEY" envDefault:"user"`
	APIVersion           string        `env:"API_VERSION" envDefault:"1"`
	HashWorkers          int           `env:"HASH_WORKERS" envDefault:"4"`
	ClientsJSON          string        `env:"CLIENTS"`

	Clients []Client `env:"-"`
}

// Client is a relying party seeded at startup.
type Client struct {
	ID           string   `json:"client_id"`
	Secret       string   `json:"client_secret"`
	Name         string   `json:"client_name,omitempty"`
	Description  string   `json:"description,omitempty"`
	LogoURL      string   `json:"logo_url,omitempty"`
	RedirectURIs []string `json:"redirect_uris"`
}

var _ credentials.Config = (*Config)(nil)

// Load parses the configuration from the process environment.
func Load() (*Config, error) {
	return LoadWithOptions(env.Options{})
}

// LoadFromMap parses the configuration from values, used by tests.
func LoadFromMap(values map[string]string) (*Config, error) {
	return LoadWithOptions(env.Options{Environment: values})
}

// LoadWithOptions parses the configuration with custom env options. The
// prefix is always applied.
func LoadWithOptions(opts env.Options) (*Config, error) {
	opts.Prefix = Prefix

	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if cfg.ClientsJSON != "" {
		if err := json.Unmarshal([]byte(cfg.ClientsJSON), &cfg.Clients); err != nil {
			return nil, fmt.Errorf("parse %sCLIENTS: %w", Prefix, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that have no safe default.
func (c *Config) Validate() error {
	if c.UserSigningKey == "" || c.AdminSigningKey == "" {
		return fmt.Errorf("config: %sUSER_SIGNING_KEY and %sADMIN_SIGNING_KEY are required", Prefix, Prefix)
	}
	if c.UserSigningKey == c.AdminSigningKey {
		return fmt.Errorf("config: user and admin signing keys must differ")
	}
	if c.TokenExpiration <= 0 {
		return fmt.Errorf("config: token ttl must be positive")
	}
	return nil
}

func (c *Config) GetSigningKey(kind credentials.PrincipalKind) string {
	switch kind {
	case credentials.KindAdmin:
		return c.AdminSigningKey
	case credentials.KindUser:
		return c.UserSigningKey
	}
	return ""
}

func (c *Config) GetIssuer() string {
	return c.Issuer
}

func (c *Config) GetTokenExpiration() time.Duration {
	return c.TokenExpiration
}

func (c *Config) GetSecretTTL(op credentials.OperationKind) time.Duration {
	switch op {
	case credentials.OpEmailVerification:
		return c.EmailVerificationTTL
	case credentials.OpPasswordReset:
		return c.PasswordResetTTL
	case credentials.OpTwoFactorOTP:
		return c.TwoFactorOTPTTL
	case credentials.OpLoginOTP:
		return c.LoginOTPTTL
	}
	return 0
}

func (c *Config) GetAuthorizationCodeTTL() time.Duration {
	return c.AuthorizationCodeTTL
}

func (c *Config) GetCookieName() string {
	return c.CookieName
}

func (c *Config) GetContextKey() string {
	return c.ContextKey
}

func (c *Config) GetAPIVersion() string {
	return c.APIVersion
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

func (c *Config) GetAdminRegistrationKey() string {
	return c.AdminRegistrationKey
}

// Address returns the listen address.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
