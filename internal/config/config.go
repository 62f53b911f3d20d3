// Package config loads the process configuration once at startup.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"mailcal/internal/mailbox"
	"mailcal/internal/router"
	"mailcal/internal/sanitize"
)

// ErrMissingCredential is returned when a required secret or username is absent.
var ErrMissingCredential = errors.New("missing required credential")

// Auth modes for the IMAP login.
const (
	AuthPassword = "password"
	AuthOAuth    = "oauth"
)

// IMAPConfig holds the mailbox connection settings.
type IMAPConfig struct {
	Host               string
	Port               string
	Security           mailbox.Security
	Folder             string
	Username           string
	Password           string
	Auth               string
	MarkRead           bool
	InsecureSkipVerify bool
}

// CalDAVConfig holds the destination store settings.
type CalDAVConfig struct {
	BaseURL            string
	Password           string
	Calendar           string
	Timeout            time.Duration
	InsecureSkipVerify bool
}

// OAuthConfig holds the client used for IMAP OAUTHBEARER login.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	TokenFile    string
}

// LogConfig controls the slog handler.
type LogConfig struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Config is the immutable process configuration.
type Config struct {
	IMAP           IMAPConfig
	CalDAV         CalDAVConfig
	OAuth          OAuthConfig
	Routes         router.RoutingTable
	DefaultChannel string
	Limits         sanitize.Limits
	Log            LogConfig
	MetricsAddr    string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("imap_host", "localhost")
	v.SetDefault("imap_port", "143")
	v.SetDefault("imap_security", "")
	v.SetDefault("imap_use_ssl", false)
	v.SetDefault("imap_folder", "INBOX")
	v.SetDefault("imap_username", "")
	v.SetDefault("imap_password", "")
	v.SetDefault("imap_auth", AuthPassword)
	v.SetDefault("imap_mark_read", false)
	v.SetDefault("imap_insecure_skip_verify", false)
	v.SetDefault("smtp_user", "")
	v.SetDefault("stalwart_admin_password", "")

	v.SetDefault("caldav_base_url", "https://localhost/cdav/")
	v.SetDefault("caldav_password", "")
	v.SetDefault("caldav_calendar", "default")
	v.SetDefault("caldav_timeout", "30s")
	v.SetDefault("caldav_insecure_skip_verify", false)

	v.SetDefault("email_channel_mapping", "admin@example.com:admin")
	v.SetDefault("default_channel", "admin")

	v.SetDefault("max_summary_length", sanitize.MaxSummaryLength)
	v.SetDefault("max_description_length", sanitize.MaxDescriptionLength)
	v.SetDefault("max_location_length", sanitize.MaxLocationLength)

	v.SetDefault("oauth_client_id", "")
	v.SetDefault("oauth_client_secret", "")
	v.SetDefault("oauth_token_file", "token-imap.json")

	v.SetDefault("log_level", "info")
	v.SetDefault("log_file", "")
	v.SetDefault("log_max_size_mb", 100)
	v.SetDefault("log_max_backups", 3)
	v.SetDefault("log_max_age_days", 28)

	v.SetDefault("metrics_addr", "")
}

// Load reads the configuration from the environment. Call godotenv.Load
// beforehand to pick up a .env file.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)
	return FromViper(v)
}

// LoadOAuth reads only the OAuth client settings. The auth command uses it
// before any mailbox credentials exist.
func LoadOAuth() OAuthConfig {
	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)
	return OAuthConfig{
		ClientID:     v.GetString("oauth_client_id"),
		ClientSecret: v.GetString("oauth_client_secret"),
		TokenFile:    v.GetString("oauth_token_file"),
	}
}

// FromViper builds and validates a Config. Missing credentials fail here,
// before anything talks to the network.
func FromViper(v *viper.Viper) (*Config, error) {
	security, err := parseSecurity(v.GetString("imap_security"), v.GetBool("imap_use_ssl"))
	if err != nil {
		return nil, err
	}

	timeout, err := time.ParseDuration(v.GetString("caldav_timeout"))
	if err != nil {
		return nil, fmt.Errorf("invalid CALDAV_TIMEOUT: %w", err)
	}

	routes, err := router.ParseTable(v.GetString("email_channel_mapping"))
	if err != nil {
		return nil, fmt.Errorf("invalid EMAIL_CHANNEL_MAPPING: %w", err)
	}

	cfg := &Config{
		IMAP: IMAPConfig{
			Host:               v.GetString("imap_host"),
			Port:               v.GetString("imap_port"),
			Security:           security,
			Folder:             v.GetString("imap_folder"),
			Username:           firstNonEmpty(v.GetString("imap_username"), v.GetString("smtp_user")),
			Password:           firstNonEmpty(v.GetString("imap_password"), v.GetString("stalwart_admin_password")),
			Auth:               strings.ToLower(v.GetString("imap_auth")),
			MarkRead:           v.GetBool("imap_mark_read"),
			InsecureSkipVerify: v.GetBool("imap_insecure_skip_verify"),
		},
		CalDAV: CalDAVConfig{
			BaseURL:            v.GetString("caldav_base_url"),
			Password:           firstNonEmpty(v.GetString("caldav_password"), v.GetString("stalwart_admin_password")),
			Calendar:           v.GetString("caldav_calendar"),
			Timeout:            timeout,
			InsecureSkipVerify: v.GetBool("caldav_insecure_skip_verify"),
		},
		OAuth: OAuthConfig{
			ClientID:     v.GetString("oauth_client_id"),
			ClientSecret: v.GetString("oauth_client_secret"),
			TokenFile:    v.GetString("oauth_token_file"),
		},
		Routes:         routes,
		DefaultChannel: strings.TrimSpace(v.GetString("default_channel")),
		Limits: sanitize.Limits{
			Summary:     v.GetInt("max_summary_length"),
			Description: v.GetInt("max_description_length"),
			Location:    v.GetInt("max_location_length"),
		},
		Log: LogConfig{
			Level:      v.GetString("log_level"),
			File:       v.GetString("log_file"),
			MaxSizeMB:  v.GetInt("log_max_size_mb"),
			MaxBackups: v.GetInt("log_max_backups"),
			MaxAgeDays: v.GetInt("log_max_age_days"),
		},
		MetricsAddr: v.GetString("metrics_addr"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.IMAP.Username == "" {
		return fmt.Errorf("%w: IMAP_USERNAME (or SMTP_USER) environment variable is required", ErrMissingCredential)
	}
	switch c.IMAP.Auth {
	case AuthPassword:
		if c.IMAP.Password == "" {
			return fmt.Errorf("%w: IMAP_PASSWORD (or STALWART_ADMIN_PASSWORD) environment variable is required", ErrMissingCredential)
		}
	case AuthOAuth:
		if c.OAuth.TokenFile == "" {
			return fmt.Errorf("%w: OAUTH_TOKEN_FILE is required when IMAP_AUTH=oauth", ErrMissingCredential)
		}
	default:
		return fmt.Errorf("invalid IMAP_AUTH %q: expected %s or %s", c.IMAP.Auth, AuthPassword, AuthOAuth)
	}
	if c.CalDAV.Password == "" {
		return fmt.Errorf("%w: CALDAV_PASSWORD (or STALWART_ADMIN_PASSWORD) environment variable is required", ErrMissingCredential)
	}
	if c.DefaultChannel == "" {
		return fmt.Errorf("DEFAULT_CHANNEL must not be empty")
	}
	if c.Limits.Summary <= 0 || c.Limits.Description <= 0 || c.Limits.Location <= 0 {
		return fmt.Errorf("field length limits must be positive")
	}
	return nil
}

func parseSecurity(mode string, legacySSL bool) (mailbox.Security, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "":
		if legacySSL {
			return mailbox.SecurityTLS, nil
		}
		return mailbox.SecurityStartTLS, nil
	case "starttls":
		return mailbox.SecurityStartTLS, nil
	case "tls", "ssl":
		return mailbox.SecurityTLS, nil
	case "none", "plain":
		return mailbox.SecurityNone, nil
	default:
		return "", fmt.Errorf("invalid IMAP_SECURITY %q: expected starttls, tls or none", mode)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
