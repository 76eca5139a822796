// Package notification delivers the setup invitation and welcome e-mails
package notification

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"html/template"
	"time"

	"github.com/shipnology/shipnology-backend/pkg/config"
	"github.com/shipnology/shipnology-backend/pkg/i18n"
	"github.com/shipnology/shipnology-backend/pkg/logger"
	"gopkg.in/gomail.v2"
)

// ErrMailerDisabled is returned when no SMTP relay is configured
var ErrMailerDisabled = stderrors.New("smtp delivery is not configured")

// Mailer sends the provisioning e-mails
type Mailer interface {
	SendSetupInvitation(ctx context.Context, msg InvitationEmail) error
	SendWelcome(ctx context.Context, msg WelcomeEmail) error
}

// InvitationEmail carries a setup link to the organisation contact
type InvitationEmail struct {
	To           string
	Organisation string
	SetupURL     string
	ExpiresAt    time.Time
}

// WelcomeEmail greets the supervisor once the tenant is provisioned
type WelcomeEmail struct {
	To           string
	Prenom       string
	Username     string
	Organisation string
	LoginURL     string
}

// dialer is satisfied by *gomail.Dialer
type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPMailer renders HTML e-mails and sends them through an SMTP relay
type SMTPMailer struct {
	dialer   dialer
	from     string
	fromName string
	logger   *logger.Logger
}

// NewSMTPMailer creates a mailer from the SMTP configuration
func NewSMTPMailer(cfg config.SMTPConfig, log *logger.Logger) (*SMTPMailer, error) {
	if !cfg.Enabled() {
		return nil, ErrMailerDisabled
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("smtp from address is required")
	}
	port := cfg.Port
	if port == 0 {
		port = 587
	}

	return newSMTPMailer(gomail.NewDialer(cfg.Host, port, cfg.Username, cfg.Password), cfg.From, cfg.FromName, log), nil
}

func newSMTPMailer(d dialer, from, fromName string, log *logger.Logger) *SMTPMailer {
	return &SMTPMailer{
		dialer:   d,
		from:     from,
		fromName: fromName,
		logger:   log.WithComponent("mailer"),
	}
}

// SendSetupInvitation sends the setup link
func (m *SMTPMailer) SendSetupInvitation(ctx context.Context, msg InvitationEmail) error {
	l := i18n.LocalizerFromContext(ctx)
	params := map[string]string{
		"organisation": msg.Organisation,
		"expires_at":   msg.ExpiresAt.UTC().Format("2006-01-02 15:04 MST"),
	}

	body, err := render(emailTemplate, emailView{
		Title:    l.T("emails.setup_subject", params),
		Lines:    []string{l.T("emails.setup_intro", params)},
		CTALabel: l.T("emails.setup_cta"),
		CTAURL:   msg.SetupURL,
		Footer:   l.T("emails.setup_expiry", params),
	})
	if err != nil {
		return err
	}

	return m.send(ctx, msg.To, l.T("emails.setup_subject", params), body)
}

// SendWelcome sends the post-setup greeting
func (m *SMTPMailer) SendWelcome(ctx context.Context, msg WelcomeEmail) error {
	l := i18n.LocalizerFromContext(ctx)
	params := map[string]string{
		"organisation": msg.Organisation,
		"prenom":       msg.Prenom,
		"username":     msg.Username,
	}

	body, err := render(emailTemplate, emailView{
		Title:    l.T("emails.welcome_subject", params),
		Lines:    []string{l.T("emails.welcome_intro", params), l.T("emails.welcome_username", params)},
		CTALabel: l.T("emails.welcome_cta"),
		CTAURL:   msg.LoginURL,
	})
	if err != nil {
		return err
	}

	return m.send(ctx, msg.To, l.T("emails.welcome_subject", params), body)
}

func (m *SMTPMailer) send(ctx context.Context, to, subject, html string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", m.from, m.fromName)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", html)

	if err := m.dialer.DialAndSend(msg); err != nil {
		m.logger.Warn().Err(err).Str("to", to).Msg("email delivery failed")
		return fmt.Errorf("failed to send email to %s: %w", to, err)
	}

	m.logger.Info().Str("to", to).Str("subject", subject).Msg("email sent")
	return nil
}

// DisabledMailer logs and refuses every e-mail
type DisabledMailer struct {
	logger *logger.Logger
}

// NewDisabledMailer is used when SMTP is not configured
func NewDisabledMailer(log *logger.Logger) *DisabledMailer {
	return &DisabledMailer{logger: log.WithComponent("mailer")}
}

// SendSetupInvitation implements Mailer
func (m *DisabledMailer) SendSetupInvitation(_ context.Context, msg InvitationEmail) error {
	m.logger.Warn().Str("to", msg.To).Str("setup_url", msg.SetupURL).Msg("smtp disabled, setup invitation not sent")
	return ErrMailerDisabled
}

// SendWelcome implements Mailer
func (m *DisabledMailer) SendWelcome(_ context.Context, msg WelcomeEmail) error {
	m.logger.Warn().Str("to", msg.To).Msg("smtp disabled, welcome email not sent")
	return ErrMailerDisabled
}

type emailView struct {
	Title    string
	Lines    []string
	CTALabel string
	CTAURL   string
	Footer   string
}

var emailTemplate = template.Must(template.New("email").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #1f2933;">
  <h2>{{.Title}}</h2>
  {{range .Lines}}<p>{{.}}</p>
  {{end}}{{if .CTAURL}}<p><a href="{{.CTAURL}}" style="background:#0b5cad;color:#fff;padding:10px 18px;text-decoration:none;border-radius:4px;">{{.CTALabel}}</a></p>
  <p style="font-size:12px;">{{.CTAURL}}</p>{{end}}
  {{if .Footer}}<p style="font-size:12px;color:#6b7280;">{{.Footer}}</p>{{end}}
</body>
</html>`))

func render(tmpl *template.Template, view emailView) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, view); err != nil {
		return "", fmt.Errorf("failed to render email: %w", err)
	}
	return buf.String(), nil
}
