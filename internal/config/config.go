// Package config assembles the run configuration: store and mail
// settings from the environment (optionally a .env file), portal and
// browser tuning from an optional YAML file. The result is one
// immutable value built at startup and passed down explicitly.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Defaults for the CMP portal. Overridable via the YAML file so a
// markup change does not require a rebuild.
const (
	DefaultBaseURL = "https://aplicaciones.cmp.org.pe/conoce_a_tu_medico/"
	DefaultSiteKey = "6LcYiNwrAAAAAB2vkiot46ogkFJj0MRakLVZTQRa"
)

// Config is the full run configuration.
type Config struct {
	Portal  PortalConfig  `yaml:"portal"`
	Browser BrowserConfig `yaml:"browser"`
	DB      DBConfig      `yaml:"-"`
	Mail    MailConfig    `yaml:"-"`
}

// PortalConfig describes the lookup portal.
type PortalConfig struct {
	BaseURL       string   `yaml:"base_url"`
	SiteKey       string   `yaml:"site_key"`
	NavTimeout    Duration `yaml:"nav_timeout"`
	ChallengeWait Duration `yaml:"challenge_wait"`
}

// BrowserConfig controls the Chrome lifecycle.
type BrowserConfig struct {
	Remote          string   `yaml:"remote"`
	UserAgent       string   `yaml:"user_agent"`
	MemoryLimit     int64    `yaml:"memory_limit"`
	RecycleInterval Duration `yaml:"recycle_interval"`
	XvfbDisplay     string   `yaml:"xvfb_display"`
}

// DBConfig is the relational store connection, from the environment.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
}

// DSN renders the Postgres connection string.
func (d DBConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   "/" + d.Name,
	}
	return u.String()
}

// MailConfig is the digest transport, from the environment.
type MailConfig struct {
	Host        string
	Port        int
	Username    string
	Password    string
	FromAddress string
	FromName    string
	To          string
	UseSSL      bool
}

// Complete reports whether enough is configured to attempt delivery.
func (m MailConfig) Complete() bool {
	return m.Username != "" && m.Password != "" && m.To != ""
}

// FromEnv reads store and mail settings and applies portal defaults.
func FromEnv() Config {
	return Config{
		Portal: PortalConfig{
			BaseURL: DefaultBaseURL,
			SiteKey: DefaultSiteKey,
		},
		DB: DBConfig{
			Host:     envStr("DB_HOST", "localhost"),
			Port:     envInt("DB_PORT", 5432),
			User:     envStr("DB_USER", "postgres"),
			Password: envStr("DB_PASSWORD", ""),
			Name:     envStr("DB_NAME", "doctors"),
		},
		Mail: MailConfig{
			Host:        envStr("MAIL_HOST", "smtp.gmail.com"),
			Port:        envInt("MAIL_PORT", 465),
			Username:    envStr("MAIL_USERNAME", ""),
			Password:    envStr("MAIL_PASSWORD", ""),
			FromAddress: envStr("MAIL_FROM_ADDRESS", os.Getenv("MAIL_USERNAME")),
			FromName:    envStr("MAIL_FROM_NAME", "regscan"),
			To:          envStr("MAIL_TO", os.Getenv("MAIL_FROM_ADDRESS")),
			UseSSL:      envStr("MAIL_ENCRYPTION", "ssl") == "ssl",
		},
	}
}

// MergeFile overlays tuning values from a YAML file onto cfg. Only
// portal and browser fields may appear in the file.
func MergeFile(cfg Config, path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}

	var file Config
	if err := yaml.Unmarshal(data, &file); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if file.Portal.BaseURL != "" {
		cfg.Portal.BaseURL = file.Portal.BaseURL
	}
	if file.Portal.SiteKey != "" {
		cfg.Portal.SiteKey = file.Portal.SiteKey
	}
	if file.Portal.NavTimeout > 0 {
		cfg.Portal.NavTimeout = file.Portal.NavTimeout
	}
	if file.Portal.ChallengeWait > 0 {
		cfg.Portal.ChallengeWait = file.Portal.ChallengeWait
	}
	cfg.Browser = file.Browser

	return cfg, nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
