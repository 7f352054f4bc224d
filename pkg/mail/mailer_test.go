package mail

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/FulgerX2007/csv-scatter-reports/pkg/model"
	"gopkg.in/gomail.v2"
)

type fakeDialer struct {
	sent []*gomail.Message
	err  error
}

func (f *fakeDialer) DialAndSend(m ...*gomail.Message) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, m...)
	return nil
}

func (f *fakeDialer) Dial() (gomail.SendCloser, error) {
	return nil, f.err
}

func newTestMailer(cfg model.SMTPConfig) (*Mailer, *fakeDialer) {
	fd := &fakeDialer{}
	return &Mailer{config: cfg, dialer: fd}, fd
}

var testConfig = model.SMTPConfig{
	Host:           "smtp.example.com",
	Port:           587,
	From:           "reports@example.com",
	UseTLS:         true,
	AllowedDomains: []string{"example.com"},
	MaxRecipients:  3,
}

func TestSendReport(t *testing.T) {
	m, fd := newTestMailer(testConfig)

	pdf := []byte("%PDF-1.3 test")
	recipients := model.Recipients{To: []string{"a@example.com"}, CC: []string{"b@example.com"}}
	if err := m.SendReport(context.Background(), recipients, "Report", "See attached", pdf, "reporte.pdf"); err != nil {
		t.Fatalf("SendReport failed: %v", err)
	}

	if len(fd.sent) != 1 {
		t.Fatalf("expected 1 message, got %d", len(fd.sent))
	}
	msg := fd.sent[0]
	if got := msg.GetHeader("To"); len(got) != 1 || got[0] != "a@example.com" {
		t.Errorf("unexpected To header %v", got)
	}
	if got := msg.GetHeader("Cc"); len(got) != 1 || got[0] != "b@example.com" {
		t.Errorf("unexpected Cc header %v", got)
	}

	var buf bytes.Buffer
	if _, err := msg.WriteTo(&buf); err != nil {
		t.Fatalf("failed to write message: %v", err)
	}
	raw := buf.String()
	if !strings.Contains(raw, `filename="reporte.pdf"`) {
		t.Errorf("message should attach reporte.pdf")
	}
	if !strings.Contains(raw, "application/pdf") {
		t.Errorf("attachment should be application/pdf")
	}
}

func TestSendReportErrors(t *testing.T) {
	tests := []struct {
		name          string
		config        model.SMTPConfig
		recipients    model.Recipients
		sendErr       error
		wantErr       error
		errorContains string
	}{
		{
			name:       "disabled",
			config:     model.SMTPConfig{},
			recipients: model.Recipients{To: []string{"a@example.com"}},
			wantErr:    ErrMailDisabled,
		},
		{
			name:          "no recipients",
			config:        testConfig,
			errorContains: "at least one recipient",
		},
		{
			name:          "too many recipients",
			config:        testConfig,
			recipients:    model.Recipients{To: []string{"a@example.com", "b@example.com"}, BCC: []string{"c@example.com", "d@example.com"}},
			errorContains: "too many recipients",
		},
		{
			name:          "domain not allowed",
			config:        testConfig,
			recipients:    model.Recipients{To: []string{"a@other.org"}},
			errorContains: "other.org",
		},
		{
			name:          "invalid address",
			config:        testConfig,
			recipients:    model.Recipients{To: []string{"not-an-address"}},
			errorContains: "invalid email address",
		},
		{
			name:          "smtp failure",
			config:        testConfig,
			recipients:    model.Recipients{To: []string{"a@example.com"}},
			sendErr:       errors.New("connection refused"),
			errorContains: "connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, fd := newTestMailer(tt.config)
			fd.err = tt.sendErr

			err := m.SendReport(context.Background(), tt.recipients, "s", "b", []byte("%PDF-"), "reporte.pdf")
			if err == nil {
				t.Fatalf("expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
			if tt.errorContains != "" && !strings.Contains(err.Error(), tt.errorContains) {
				t.Errorf("expected error containing %q, got %v", tt.errorContains, err)
			}
			if len(fd.sent) != 0 {
				t.Errorf("nothing should be sent on error")
			}
		})
	}
}

func TestTestConnection(t *testing.T) {
	m, fd := newTestMailer(testConfig)
	fd.err = errors.New("dial tcp: timeout")
	if err := m.TestConnection(); err == nil || !strings.Contains(err.Error(), "failed to connect") {
		t.Errorf("expected connection error, got %v", err)
	}

	disabled, _ := newTestMailer(model.SMTPConfig{})
	if err := disabled.TestConnection(); !errors.Is(err, ErrMailDisabled) {
		t.Errorf("expected ErrMailDisabled, got %v", err)
	}
}

func TestNewDialerTLS(t *testing.T) {
	tests := []struct {
		name       string
		config     model.SMTPConfig
		wantSSL    bool
		wantVerify bool
	}{
		{"tls with verification", model.SMTPConfig{Host: "smtp.example.com", Port: 587, UseTLS: true}, false, true},
		{"tls skipping verification", model.SMTPConfig{Host: "smtp.example.com", Port: 587, UseTLS: true, SkipTLSVerify: true}, false, false},
		{"implicit tls port", model.SMTPConfig{Host: "smtp.example.com", Port: 465, UseTLS: true}, true, true},
		{"plain smtp still verifies starttls", model.SMTPConfig{Host: "localhost", Port: 25}, false, true},
		{"plain smtp on 465 is not implicit tls", model.SMTPConfig{Host: "localhost", Port: 465}, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newDialer(tt.config)
			if d.TLSConfig == nil {
				t.Fatalf("expected a TLS config")
			}
			if d.TLSConfig.ServerName != tt.config.Host {
				t.Errorf("expected server name %s, got %s", tt.config.Host, d.TLSConfig.ServerName)
			}
			if verify := !d.TLSConfig.InsecureSkipVerify; verify != tt.wantVerify {
				t.Errorf("expected certificate verification %v, got %v", tt.wantVerify, verify)
			}
			if d.SSL != tt.wantSSL {
				t.Errorf("expected SSL %v, got %v", tt.wantSSL, d.SSL)
			}
		})
	}
}

func TestInterpolateTemplate(t *testing.T) {
	vars := map[string]string{"file.name": "iris.csv", "selection.x": "sepal_length"}

	tests := []struct {
		tmpl, want string
	}{
		{"Report for {{file.name}}", "Report for iris.csv"},
		{"{{selection.x}} / {{selection.x}}", "sepal_length / sepal_length"},
		{"{{unknown}} stays", "{{unknown}} stays"},
		{"no placeholders", "no placeholders"},
	}
	for _, tt := range tests {
		if got := InterpolateTemplate(tt.tmpl, vars); got != tt.want {
			t.Errorf("InterpolateTemplate(%q) = %q, want %q", tt.tmpl, got, tt.want)
		}
	}
}
