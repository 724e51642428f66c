package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all agenda service configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Agenda   AgendaConfig   `yaml:"agenda"`
	Explorer ExplorerConfig `yaml:"explorer"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port           string   `yaml:"port"`
	StaticDir      string   `yaml:"static_dir"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	ReadTimeout    string   `yaml:"read_timeout"`
	WriteTimeout   string   `yaml:"write_timeout"`
	IdleTimeout    string   `yaml:"idle_timeout"`
}

// DatabaseConfig selects the table store.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite3, sqlite, postgres
	DSN    string `yaml:"dsn"`
}

// AuthConfig configures JWT issuing and magic-link mail delivery.
type AuthConfig struct {
	JWTSecret string     `yaml:"jwt_secret"`
	TokenTTL  string     `yaml:"token_ttl"`
	SMTP      SMTPConfig `yaml:"smtp"`
	// DevLinks returns the magic link in the login response. Local
	// development only: anyone can then sign in as any address.
	DevLinks  bool       `yaml:"dev_links"`
}

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

// AgendaConfig configures aggregation.
type AgendaConfig struct {
	// GeneralOwnerID owns organization-wide deadlines shown to every other user.
	GeneralOwnerID string            `yaml:"general_owner_id"`
	Timezone       string            `yaml:"timezone"`
	Colors         map[string]string `yaml:"colors"`
	Retries        int               `yaml:"retries"`
	Debug          bool              `yaml:"debug"`
}

// ExplorerConfig configures table discovery and paginated reads.
type ExplorerConfig struct {
	// Admins are the user ids (emails) allowed to use the explorer. Empty
	// disables it for everyone.
	Admins      []string `yaml:"admins"`
	CacheTTL    string   `yaml:"cache_ttl"`
	KnownTables []string `yaml:"known_tables"`
	Strategies  []string `yaml:"strategies"`
	PageSize    int      `yaml:"page_size"`
	MaxPageSize int      `yaml:"max_page_size"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

const defaultJWTSecret = "your-default-secret-key-change-in-production"

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           "3001",
			StaticDir:      "./public",
			AllowedOrigins: []string{"*"},
			ReadTimeout:    "15s",
			WriteTimeout:   "15s",
			IdleTimeout:    "60s",
		},
		Database: DatabaseConfig{
			Driver: "sqlite3",
			DSN:    "./agenda.db",
		},
		Auth: AuthConfig{
			JWTSecret: defaultJWTSecret,
			TokenTTL:  "168h",
		},
		Agenda: AgendaConfig{
			GeneralOwnerID: "generale",
			Timezone:       "Local",
			Retries:        2,
		},
		Explorer: ExplorerConfig{
			CacheTTL: "5m",
			KnownTables: []string{
				"appuntamenti", "attivita", "progetti", "scadenze", "todolist",
				"configurazione", "clienti", "note", "pagine", "users", "profiles",
			},
			Strategies:  []string{"catalog", "procedure", "known"},
			PageSize:    25,
			MaxPageSize: 500,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads a YAML config file. A missing file yields the defaults.
// Environment variables override file values in both cases.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Port = v
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		c.Server.AllowedOrigins = strings.Split(v, ",")
	}
	if v := os.Getenv("DATABASE_DRIVER"); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("GENERAL_OWNER_ID"); v != "" {
		c.Agenda.GeneralOwnerID = v
	}
	if v := os.Getenv("AGENDA_TIMEZONE"); v != "" {
		c.Agenda.Timezone = v
	}
	if v, err := strconv.ParseBool(os.Getenv("AGENDA_DEBUG")); err == nil {
		c.Agenda.Debug = v
	}
	if v, err := strconv.ParseBool(os.Getenv("AUTH_DEV_LINKS")); err == nil {
		c.Auth.DevLinks = v
	}
	if v := os.Getenv("EXPLORER_ADMINS"); v != "" {
		c.Explorer.Admins = nil
		for _, admin := range strings.Split(v, ",") {
			if admin = strings.TrimSpace(admin); admin != "" {
				c.Explorer.Admins = append(c.Explorer.Admins, admin)
			}
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}

	smtp := &c.Auth.SMTP
	for env, dst := range map[string]*string{
		"SMTP_HOST":     &smtp.Host,
		"SMTP_PORT":     &smtp.Port,
		"SMTP_USERNAME": &smtp.Username,
		"SMTP_PASSWORD": &smtp.Password,
		"SMTP_FROM":     &smtp.From,
	} {
		if v := os.Getenv(env); v != "" {
			*dst = v
		}
	}
}

// Validate checks values that would otherwise fail late at request time.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port not configured")
	}
	if c.Agenda.GeneralOwnerID == "" {
		return fmt.Errorf("agenda.general_owner_id must not be empty")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	for _, d := range []string{c.Server.ReadTimeout, c.Server.WriteTimeout, c.Server.IdleTimeout, c.Auth.TokenTTL, c.Explorer.CacheTTL} {
		if d == "" {
			continue
		}
		if _, err := time.ParseDuration(d); err != nil {
			return fmt.Errorf("invalid duration %q: %w", d, err)
		}
	}
	switch c.Database.Driver {
	case "sqlite3", "sqlite", "postgres", "pgx":
	default:
		return fmt.Errorf("invalid database driver: %s (valid: sqlite3, sqlite, postgres)", c.Database.Driver)
	}
	for _, s := range c.Explorer.Strategies {
		switch s {
		case "catalog", "procedure", "known":
		default:
			return fmt.Errorf("invalid explorer strategy: %s (valid: catalog, procedure, known)", s)
		}
	}
	return nil
}

// InsecureSecret reports whether the JWT secret is still the built-in default.
func (c *Config) InsecureSecret() bool {
	return c.Auth.JWTSecret == defaultJWTSecret
}

// Location resolves the agenda time zone; calendar days are computed in it.
func (c *Config) Location() (*time.Location, error) {
	switch c.Agenda.Timezone {
	case "", "Local":
		return time.Local, nil
	case "UTC":
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Agenda.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Agenda.Timezone, err)
	}
	return loc, nil
}

// Duration parses value, falling back to def when empty or malformed.
func Duration(value string, def time.Duration) time.Duration {
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return d
}
