// Package config handles application configuration loading.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/FulgerX2007/csv-scatter-reports/pkg/model"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	Server   ServerConfig         `yaml:"server"`
	Store    StoreConfig          `yaml:"store"`
	Sessions SessionsConfig       `yaml:"sessions"`
	Renderer model.RendererConfig `yaml:"renderer"`
	Report   ReportConfig         `yaml:"report"`
	SMTP     model.SMTPConfig     `yaml:"smtp"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Addr           string   `yaml:"addr"`
	MaxUploadMB    int      `yaml:"max_upload_mb"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// StoreConfig holds SQLite settings.
type StoreConfig struct {
	DBPath string `yaml:"db_path"`
}

// SessionsConfig holds session lifecycle settings.
type SessionsConfig struct {
	TTL           time.Duration `yaml:"ttl"`
	SweepCron     string        `yaml:"sweep_cron"`
	SweepTimezone string        `yaml:"sweep_timezone"`
	CacheSize     int           `yaml:"cache_size"`
}

// ReportConfig holds PDF report settings.
type ReportConfig struct {
	Title    string `yaml:"title"`
	Filename string `yaml:"filename"`
}

// MinDPI is the lowest raster resolution accepted for embedded charts.
const MinDPI = 300

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:           ":8501",
			MaxUploadMB:    50,
			AllowedOrigins: []string{"http://localhost:8501", "http://127.0.0.1:8501"},
		},
		Store: StoreConfig{
			DBPath: "csvreport.db",
		},
		Sessions: SessionsConfig{
			TTL:           2 * time.Hour,
			SweepCron:     "* * * * *",
			SweepTimezone: "UTC",
			CacheSize:     64,
		},
		Renderer: model.RendererConfig{
			Backend:           model.BackendNative,
			DPI:               MinDPI,
			WidthIn:           10,
			HeightIn:          6,
			TimeoutMS:         30000,
			ViewportWidth:     1000,
			ViewportHeight:    600,
			DeviceScaleFactor: 3.125,
			VegaScriptBase:    "https://cdn.jsdelivr.net/npm",
		},
		Report: ReportConfig{
			Title:    "Data Report",
			Filename: "reporte.pdf",
		},
		SMTP: model.SMTPConfig{
			Port:          587,
			UseTLS:        true,
			MaxRecipients: 50,
		},
	}
}

// Load loads configuration from a file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.ApplyDefaults()

	return cfg, nil
}

// LoadOrDefault loads config from path, or returns default if not found.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}

	return Load(path)
}

// ApplyDefaults fills zero values left by a partial config file.
func (c *Config) ApplyDefaults() {
	def := Default()
	if c.Server.Addr == "" {
		c.Server.Addr = def.Server.Addr
	}
	if c.Server.MaxUploadMB == 0 {
		c.Server.MaxUploadMB = def.Server.MaxUploadMB
	}
	if c.Store.DBPath == "" {
		c.Store.DBPath = def.Store.DBPath
	}
	if c.Sessions.TTL == 0 {
		c.Sessions.TTL = def.Sessions.TTL
	}
	if c.Sessions.SweepCron == "" {
		c.Sessions.SweepCron = def.Sessions.SweepCron
	}
	if c.Sessions.SweepTimezone == "" {
		c.Sessions.SweepTimezone = def.Sessions.SweepTimezone
	}
	if c.Sessions.CacheSize == 0 {
		c.Sessions.CacheSize = def.Sessions.CacheSize
	}
	if c.Renderer.Backend == "" {
		c.Renderer.Backend = def.Renderer.Backend
	}
	if c.Renderer.DPI == 0 {
		c.Renderer.DPI = def.Renderer.DPI
	}
	if c.Renderer.WidthIn == 0 {
		c.Renderer.WidthIn = def.Renderer.WidthIn
	}
	if c.Renderer.HeightIn == 0 {
		c.Renderer.HeightIn = def.Renderer.HeightIn
	}
	if c.Renderer.VegaScriptBase == "" {
		c.Renderer.VegaScriptBase = def.Renderer.VegaScriptBase
	}
	if c.Report.Title == "" {
		c.Report.Title = def.Report.Title
	}
	if c.Report.Filename == "" {
		c.Report.Filename = def.Report.Filename
	}
}

// ApplyEnv overrides settings from the environment.
func (c *Config) ApplyEnv() {
	if addr := os.Getenv("CSVREPORT_ADDR"); addr != "" {
		c.Server.Addr = addr
	} else if port := os.Getenv("PORT"); port != "" {
		c.Server.Addr = ":" + port
	}
	if dbPath := os.Getenv("CSVREPORT_DB"); dbPath != "" {
		c.Store.DBPath = dbPath
	}
}

// Validate checks the configuration for values the application cannot run with.
func (c *Config) Validate() error {
	switch c.Renderer.Backend {
	case model.BackendNative, model.BackendChromium, model.BackendPlaywright:
	default:
		return fmt.Errorf("unknown renderer backend '%s' (must be native, chromium or playwright)", c.Renderer.Backend)
	}

	if c.Renderer.DPI < MinDPI {
		return fmt.Errorf("renderer dpi must be at least %d, got %d", MinDPI, c.Renderer.DPI)
	}

	if c.Renderer.WidthIn <= 0 || c.Renderer.HeightIn <= 0 {
		return fmt.Errorf("renderer size must be positive, got %.1fx%.1f in", c.Renderer.WidthIn, c.Renderer.HeightIn)
	}

	if c.Sessions.TTL <= 0 {
		return fmt.Errorf("sessions ttl must be positive, got %s", c.Sessions.TTL)
	}

	if err := model.ValidateCronExpression(c.Sessions.SweepCron); err != nil {
		return fmt.Errorf("sessions sweep_cron: %w", err)
	}

	if _, err := time.LoadLocation(c.Sessions.SweepTimezone); err != nil {
		return fmt.Errorf("sessions sweep_timezone: %w", err)
	}

	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("server max_upload_mb must be positive, got %d", c.Server.MaxUploadMB)
	}

	return nil
}

// MaxUploadBytes returns the upload limit in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.Server.MaxUploadMB) << 20
}
