package model

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// NoColor is the color selection meaning "all points share one color"
const NoColor = "(none)"

// Selection maps the chart axes and color dimension to dataset columns
type Selection struct {
	X     string `json:"x"`
	Y     string `json:"y"`
	Color string `json:"color"`
}

// HasColor reports whether a color column is selected
func (s Selection) HasColor() bool {
	return s.Color != "" && s.Color != NoColor
}

// Session is the per-user state: the uploaded file and the current selection
type Session struct {
	ID         string    `json:"id"`
	FileName   string    `json:"file_name"`
	Source     []byte    `json:"-"`
	Selection  Selection `json:"selection"`
	CreatedAt  time.Time `json:"created_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

// Run statuses
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// ReportRun records one report generation. The PDF itself is never stored.
type ReportRun struct {
	ID            int64      `json:"id"`
	SessionID     string     `json:"session_id"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
	Status        string     `json:"status"`
	Selection     Selection  `json:"selection"`
	Renderer      string     `json:"renderer"`
	ChartFallback bool       `json:"chart_fallback"`
	Pages         int        `json:"pages"`
	Bytes         int64      `json:"bytes"`
	Checksum      string     `json:"checksum,omitempty"`
	ErrorText     string     `json:"error_text,omitempty"`
	EmailedTo     Recipients `json:"emailed_to"`
}

// Recipients holds email recipient information
type Recipients struct {
	To  []string `json:"to"`
	CC  []string `json:"cc,omitempty"`
	BCC []string `json:"bcc,omitempty"`
}

// All returns every recipient address
func (r Recipients) All() []string {
	all := make([]string, 0, len(r.To)+len(r.CC)+len(r.BCC))
	all = append(all, r.To...)
	all = append(all, r.CC...)
	all = append(all, r.BCC...)
	return all
}

// Scan implements sql.Scanner for Selection
func (s *Selection) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	bytes, ok := toBytes(value)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, s)
}

// Value implements driver.Valuer for Selection
func (s Selection) Value() (driver.Value, error) {
	return json.Marshal(s)
}

// Scan implements sql.Scanner for Recipients
func (r *Recipients) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	bytes, ok := toBytes(value)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, r)
}

// Value implements driver.Valuer for Recipients
func (r Recipients) Value() (driver.Value, error) {
	return json.Marshal(r)
}

// toBytes accepts both BLOB and TEXT column values
func toBytes(value interface{}) ([]byte, bool) {
	switch v := value.(type) {
	case []byte:
		return v, true
	case string:
		return []byte(v), true
	}
	return nil, false
}

// Renderer backends
const (
	BackendNative     = "native"
	BackendChromium   = "chromium"
	BackendPlaywright = "playwright"
)

// RendererConfig holds chart rasterization configuration
type RendererConfig struct {
	Backend  string  `json:"backend" yaml:"backend"` // "native" (default), "chromium" or "playwright"
	DPI      int     `json:"dpi" yaml:"dpi"`
	WidthIn  float64 `json:"width_in" yaml:"width_in"`
	HeightIn float64 `json:"height_in" yaml:"height_in"`

	// Browser backends
	TimeoutMS         int     `json:"timeout_ms" yaml:"timeout_ms"`
	ViewportWidth     int     `json:"viewport_width" yaml:"viewport_width"`
	ViewportHeight    int     `json:"viewport_height" yaml:"viewport_height"`
	DeviceScaleFactor float64 `json:"device_scale_factor" yaml:"device_scale_factor"` // 300/96 gives >= 300 DPI screenshots
	ChromiumPath      string  `json:"chromium_path" yaml:"chromium_path"`             // auto-detect if empty
	VegaScriptBase    string  `json:"vega_script_base" yaml:"vega_script_base"`
}

// SMTPConfig holds SMTP configuration
type SMTPConfig struct {
	Host           string   `json:"host" yaml:"host"`
	Port           int      `json:"port" yaml:"port"`
	Username       string   `json:"username" yaml:"username"`
	Password       string   `json:"-" yaml:"password"`
	From           string   `json:"from" yaml:"from"`
	UseTLS         bool     `json:"use_tls" yaml:"use_tls"`
	SkipTLSVerify  bool     `json:"skip_tls_verify" yaml:"skip_tls_verify"`
	AllowedDomains []string `json:"allowed_domains,omitempty" yaml:"allowed_domains"` // If empty, all domains are allowed
	MaxRecipients  int      `json:"max_recipients" yaml:"max_recipients"`
}

// Enabled reports whether reports can be emailed
func (s SMTPConfig) Enabled() bool {
	return s.Host != "" && s.From != ""
}
