package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Version information - set by GoReleaser during build
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// GetVersionInfo returns a formatted version string
func GetVersionInfo() string {
	return fmt.Sprintf("authlab version %s, commit %s, built at %s", version, commit, date)
}

// EnvPrefix is prepended to every environment override, e.g. AUTHLAB_SERVER_PORT.
const EnvPrefix = "AUTHLAB"

// SupportedProviders lists the provider ids the registry knows about.
var SupportedProviders = []string{"discord", "github", "google"}

type Config struct {
	BaseURL    string                    `mapstructure:"base_url"`
	Server     ServerConfig              `mapstructure:"server"`
	Logging    LoggingConfig             `mapstructure:"logging"`
	HTTP       HTTPConfig                `mapstructure:"http"`
	Providers  map[string]ProviderConfig `mapstructure:"providers"`
	Store      StoreConfig               `mapstructure:"store"`
	Session    SessionConfig             `mapstructure:"session"`
	Inactivity InactivityConfig          `mapstructure:"inactivity"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Host            string        `mapstructure:"host"`
	AllowOrigins    []string      `mapstructure:"allow_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LoggingConfig struct {
	Level             string `mapstructure:"level"`
	Format            string `mapstructure:"format"`
	Color             bool   `mapstructure:"color"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
	OutputPath        string `mapstructure:"output_path"`
	AppendToFile      bool   `mapstructure:"append_to_file"`
	DisableConsole    bool   `mapstructure:"disable_console"`
}

// HTTPConfig controls outbound calls to providers and collaborators.
type HTTPConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// ProviderConfig carries credentials and optional endpoint overrides for one provider.
// Empty URLs fall back to the provider's well-known endpoints.
type ProviderConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	AuthURL      string `mapstructure:"auth_url"`
	TokenURL     string `mapstructure:"token_url"`
	UserInfoURL  string `mapstructure:"user_info_url"`
	EmailsURL    string `mapstructure:"emails_url"`
}

// StoreConfig points at the users/tokens persistence collaborator.
type StoreConfig struct {
	BaseURL  string        `mapstructure:"base_url"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Embedded bool          `mapstructure:"embedded"`
}

type SessionConfig struct {
	ProfilePath     string        `mapstructure:"profile_path"`
	ActiveDuration  time.Duration `mapstructure:"active_duration"`
	TokenServiceURL string        `mapstructure:"token_service_url"`
	VerifyInterval  time.Duration `mapstructure:"verify_interval"`
}

type InactivityConfig struct {
	Timeout     time.Duration `mapstructure:"timeout"`
	WarningLead time.Duration `mapstructure:"warning_lead"`
	Countdown   time.Duration `mapstructure:"countdown"`
}

// HasCredentials reports whether both halves of the client credentials are present.
func (p ProviderConfig) HasCredentials() bool {
	return p.ClientID != "" && p.ClientSecret != ""
}

// RedirectURL is the callback every provider redirects back to.
func (c *Config) RedirectURL() string {
	return strings.TrimSuffix(c.BaseURL, "/") + "/callback"
}

// ListenAddr is the address the HTTP surface binds to.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// InitFlags initializes command line flags (without parsing)
func InitFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "Path to a config file")
	fs.String("log-level", "", "Log level (debug|info|warn|error)")
	fs.String("token-service-url", "", "Base URL of the token service used by the session layer")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("base_url", "http://localhost:3000")

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allow_origins", []string{"*"})
	v.SetDefault("server.shutdown_timeout", 5*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.color", true)
	v.SetDefault("logging.disable_stacktrace", true)
	v.SetDefault("logging.output_path", "")
	v.SetDefault("logging.append_to_file", false)
	v.SetDefault("logging.disable_console", false)

	v.SetDefault("http.timeout", 30*time.Second)

	v.SetDefault("store.base_url", "http://localhost:4000")
	v.SetDefault("store.timeout", 10*time.Second)
	v.SetDefault("store.embedded", false)

	v.SetDefault("session.profile_path", ".authlab/profile.yaml")
	v.SetDefault("session.active_duration", 10*time.Minute)
	v.SetDefault("session.token_service_url", "http://localhost:8080")
	v.SetDefault("session.verify_interval", 30*time.Second)

	v.SetDefault("inactivity.timeout", 5*time.Minute)
	v.SetDefault("inactivity.warning_lead", time.Minute)
	v.SetDefault("inactivity.countdown", time.Minute)

	for _, id := range SupportedProviders {
		for _, field := range []string{"client_id", "client_secret", "auth_url", "token_url", "user_info_url", "emails_url"} {
			v.SetDefault(fmt.Sprintf("providers.%s.%s", id, field), "")
		}
	}
}

// bindLegacyEnv keeps the environment names the original deployment used working.
func bindLegacyEnv(v *viper.Viper) error {
	bindings := map[string][]string{
		"base_url":                       {"AUTHLAB_BASE_URL", "NEXT_PUBLIC_BASE_URL"},
		"providers.discord.client_id":     {"AUTHLAB_PROVIDERS_DISCORD_CLIENT_ID", "DISCORD_CLIENT_ID", "NEXT_PUBLIC_DISCORD_CLIENT_ID"},
		"providers.discord.client_secret": {"AUTHLAB_PROVIDERS_DISCORD_CLIENT_SECRET", "DISCORD_CLIENT_SECRET"},
		"providers.github.client_id":      {"AUTHLAB_PROVIDERS_GITHUB_CLIENT_ID", "GITHUB_CLIENT_ID", "NEXT_PUBLIC_GITHUB_CLIENT_ID"},
		"providers.github.client_secret":  {"AUTHLAB_PROVIDERS_GITHUB_CLIENT_SECRET", "GITHUB_CLIENT_SECRET"},
		"providers.google.client_id":      {"AUTHLAB_PROVIDERS_GOOGLE_CLIENT_ID", "GOOGLE_CLIENT_ID", "NEXT_PUBLIC_GOOGLE_CLIENT_ID"},
		"providers.google.client_secret":  {"AUTHLAB_PROVIDERS_GOOGLE_CLIENT_SECRET", "GOOGLE_CLIENT_SECRET"},
	}
	for key, envs := range bindings {
		args := append([]string{key}, envs...)
		if err := v.BindEnv(args...); err != nil {
			return err
		}
	}
	return nil
}

// Load reads configuration from defaults, an optional config file, the environment and
// the given flag set, in increasing order of precedence. A missing config file is not an error.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	if err := bindLegacyEnv(v); err != nil {
		return nil, err
	}

	configFile := ""
	if fs != nil {
		configFile, _ = fs.GetString("config")
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/authlab")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if fs != nil {
		if level, _ := fs.GetString("log-level"); level != "" {
			cfg.Logging.Level = level
		}
		if url, _ := fs.GetString("token-service-url"); url != "" {
			cfg.Session.TokenServiceURL = url
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would make the system misbehave. Missing provider
// credentials are deliberately not an error: those providers fail at exchange time.
func (c *Config) Validate() error {
	var result *multierror.Error

	if c.BaseURL == "" {
		result = multierror.Append(result, errors.New("base_url is required"))
	} else if !strings.HasPrefix(c.BaseURL, "http://") && !strings.HasPrefix(c.BaseURL, "https://") {
		result = multierror.Append(result, fmt.Errorf("base_url %q must start with http:// or https://", c.BaseURL))
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		result = multierror.Append(result, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Session.ActiveDuration <= 0 {
		result = multierror.Append(result, errors.New("session.active_duration must be positive"))
	}
	if c.Inactivity.Timeout <= c.Inactivity.WarningLead {
		result = multierror.Append(result, fmt.Errorf("inactivity.timeout (%s) must exceed inactivity.warning_lead (%s)",
			c.Inactivity.Timeout, c.Inactivity.WarningLead))
	}
	if c.Inactivity.Countdown < time.Second {
		result = multierror.Append(result, errors.New("inactivity.countdown must be at least one second"))
	}
	for id := range c.Providers {
		if !isSupported(id) {
			result = multierror.Append(result, fmt.Errorf("providers.%s is not a supported provider", id))
		}
	}

	return result.ErrorOrNil()
}

// MissingCredentials returns the supported providers that have no usable client credentials.
func (c *Config) MissingCredentials() []string {
	var missing []string
	for _, id := range SupportedProviders {
		if !c.Providers[id].HasCredentials() {
			missing = append(missing, id)
		}
	}
	return missing
}

func isSupported(id string) bool {
	for _, s := range SupportedProviders {
		if s == id {
			return true
		}
	}
	return false
}
