package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	FHIRBaseURL           string        `mapstructure:"FHIR_BASE_URL"`
	CapabilityURL         string        `mapstructure:"CAPABILITY_URL"`
	CapabilityName        string        `mapstructure:"CAPABILITY_NAME"`
	PreloadedDir          string        `mapstructure:"PRELOADED_DIR"`
	FieldMapFile          string        `mapstructure:"FIELD_MAP_FILE"`
	Debug                 bool          `mapstructure:"DEBUG"`
	HTTPTimeout           time.Duration `mapstructure:"HTTP_TIMEOUT"`
	AllowUnfilteredSearch bool          `mapstructure:"ALLOW_UNFILTERED_SEARCH"`
	ExpandBinaries        bool          `mapstructure:"EXPAND_BINARIES"`
	ExpandMedications     bool          `mapstructure:"EXPAND_MEDICATIONS"`
	Port                  string        `mapstructure:"PORT"`
	OutputDir             string        `mapstructure:"OUTPUT_DIR"`
	FHIRHeaders           string        `mapstructure:"FHIR_HEADERS"`
}

var keys = []string{
	"FHIR_BASE_URL",
	"CAPABILITY_URL",
	"CAPABILITY_NAME",
	"PRELOADED_DIR",
	"FIELD_MAP_FILE",
	"DEBUG",
	"HTTP_TIMEOUT",
	"ALLOW_UNFILTERED_SEARCH",
	"EXPAND_BINARIES",
	"EXPAND_MEDICATIONS",
	"PORT",
	"OUTPUT_DIR",
	"FHIR_HEADERS",
}

// Load reads .env when present and then the environment. Environment values win.
func Load() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PRELOADED_DIR", "config/capabilitystatements")
	v.SetDefault("HTTP_TIMEOUT", "60s")
	v.SetDefault("EXPAND_BINARIES", true)
	v.SetDefault("EXPAND_MEDICATIONS", true)
	v.SetDefault("PORT", "8080")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

// Validate checks the settings every command needs.
func (c *Config) Validate() error {
	if c.FHIRBaseURL == "" {
		return fmt.Errorf("FHIR_BASE_URL is required")
	}
	if !strings.HasPrefix(c.FHIRBaseURL, "http://") && !strings.HasPrefix(c.FHIRBaseURL, "https://") {
		return fmt.Errorf("FHIR_BASE_URL must be an http(s) URL, got %q", c.FHIRBaseURL)
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive, got %s", c.HTTPTimeout)
	}
	if _, err := ParseHeaders(c.FHIRHeaders); err != nil {
		return fmt.Errorf("FHIR_HEADERS: %w", err)
	}
	return nil
}

// Headers returns the configured pass-through headers.
func (c *Config) Headers() map[string]string {
	headers, err := ParseHeaders(c.FHIRHeaders)
	if err != nil {
		return make(map[string]string)
	}
	return headers
}

// ParseHeaders parses "Name=value,Other=value". Values may not contain commas.
func ParseHeaders(raw string) (map[string]string, error) {
	headers := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		if err := AddHeader(headers, pair); err != nil {
			return nil, err
		}
	}
	return headers, nil
}

// AddHeader parses one "Name=value" pair into headers.
func AddHeader(headers map[string]string, pair string) error {
	name, value, found := strings.Cut(pair, "=")
	name = strings.TrimSpace(name)
	if !found || name == "" {
		return fmt.Errorf("header %q is not in Name=value form", pair)
	}
	headers[name] = strings.TrimSpace(value)
	return nil
}
