package mail

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/FulgerX2007/csv-scatter-reports/pkg/model"
	"gopkg.in/gomail.v2"
)

// ErrMailDisabled is returned when no SMTP server is configured
var ErrMailDisabled = errors.New("email delivery is not configured")

const (
	DefaultSubject = "Data report: {{file.name}}"
	DefaultBody    = "Attached is the report for {{file.name}} ({{selection.y}} vs {{selection.x}}), generated {{report.generated_at}}."
)

// dialer sends messages; *gomail.Dialer satisfies it
type dialer interface {
	DialAndSend(m ...*gomail.Message) error
	Dial() (gomail.SendCloser, error)
}

// Mailer delivers reports over SMTP
type Mailer struct {
	config model.SMTPConfig
	dialer dialer
}

// NewMailer creates a mailer for the given SMTP settings
func NewMailer(config model.SMTPConfig) *Mailer {
	return &Mailer{config: config, dialer: newDialer(config)}
}

// newDialer builds the gomail dialer. Certificates are verified unless
// skip_tls_verify is set, including for opportunistic STARTTLS on plain ports.
func newDialer(config model.SMTPConfig) *gomail.Dialer {
	d := gomail.NewDialer(config.Host, config.Port, config.Username, config.Password)
	d.TLSConfig = &tls.Config{
		InsecureSkipVerify: config.SkipTLSVerify,
		ServerName:         config.Host,
	}
	if !config.UseTLS {
		d.SSL = false
	}
	return d
}

// Enabled reports whether the mailer can send
func (m *Mailer) Enabled() bool {
	return m.config.Enabled()
}

// Validate checks recipients against the configured limits and domain whitelist
func (m *Mailer) Validate(recipients model.Recipients) error {
	all := recipients.All()
	if len(recipients.To) == 0 {
		return fmt.Errorf("at least one recipient is required")
	}
	if m.config.MaxRecipients > 0 && len(all) > m.config.MaxRecipients {
		return fmt.Errorf("too many recipients: %d (max %d)", len(all), m.config.MaxRecipients)
	}
	for _, addr := range all {
		if !strings.Contains(addr, "@") {
			return fmt.Errorf("invalid email address '%s'", addr)
		}
	}
	return model.ValidateRecipientDomains(recipients, m.config.AllowedDomains)
}

// SendReport emails a PDF report as an attachment
func (m *Mailer) SendReport(ctx context.Context, recipients model.Recipients, subject, body string, pdf []byte, filename string) error {
	if !m.Enabled() {
		return ErrMailDisabled
	}
	if err := m.Validate(recipients); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.config.From)
	msg.SetHeader("To", recipients.To...)
	if len(recipients.CC) > 0 {
		msg.SetHeader("Cc", recipients.CC...)
	}
	if len(recipients.BCC) > 0 {
		msg.SetHeader("Bcc", recipients.BCC...)
	}
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)
	msg.Attach(filename,
		gomail.SetCopyFunc(func(w io.Writer) error {
			_, err := w.Write(pdf)
			return err
		}),
		gomail.SetHeader(map[string][]string{"Content-Type": {"application/pdf"}}),
	)

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	log.Printf("[MAIL] Sent %s (%d bytes) to %d recipient(s)", filename, len(pdf), len(recipients.All()))
	return nil
}

// TestConnection dials the SMTP server and closes the connection
func (m *Mailer) TestConnection() error {
	if !m.Enabled() {
		return ErrMailDisabled
	}
	closer, err := m.dialer.Dial()
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	return closer.Close()
}

// InterpolateTemplate replaces {{key}} placeholders with values from vars.
// Unknown placeholders are left as they are.
func InterpolateTemplate(tmpl string, vars map[string]string) string {
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{{"+k+"}}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}
