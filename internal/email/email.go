// Package email renders and delivers the transactional emails the auth
// flows depend on: account confirmation and password reset.
package email

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"time"

	"github.com/wneessen/go-mail"
	"github.com/tahamediouni1/RebiiProject/internal/config"
)

//go:embed templates/*.html
var templateFS embed.FS

// Service sends templated emails over SMTP.
type Service struct {
	client      *mail.Client
	from        string
	appName     string
	frontendURL string
	apiBaseURL  string
	templates   *template.Template
}

// NewService creates the email service and parses the embedded templates.
func NewService(cfg config.SMTPConfig, app config.AppConfig) (*Service, error) {
	templates, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse email templates: %w", err)
	}

	client, err := mail.NewClient(cfg.Host,
		mail.WithPort(cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(cfg.Username),
		mail.WithPassword(cfg.Password),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create smtp client: %w", err)
	}

	return &Service{
		client:      client,
		from:        cfg.Username,
		appName:     app.Name,
		frontendURL: app.FrontendURL,
		apiBaseURL:  app.APIBaseURL,
		templates:   templates,
	}, nil
}

func (s *Service) render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("failed to render template %s: %w", name, err)
	}
	return buf.String(), nil
}

func (s *Service) send(ctx context.Context, to, subject, html string) error {
	msg := mail.NewMsg()
	if err := msg.FromFormat(s.appName, s.from); err != nil {
		return fmt.Errorf("invalid sender address: %w", err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("invalid recipient address: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextHTML, html)

	if err := s.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

// SendConfirmationEmail delivers the account confirmation link.
func (s *Service) SendConfirmationEmail(ctx context.Context, to, token string) error {
	html, err := s.render("confirmation_email.html", map[string]any{
		"ConfirmationLink": fmt.Sprintf("%s/api/v1/auth/confirm-email/%s", s.apiBaseURL, token),
		"Year":             time.Now().Year(),
	})
	if err != nil {
		return err
	}
	return s.send(ctx, to, fmt.Sprintf("Confirm Your %s Account", s.appName), html)
}

// SendPasswordResetEmail delivers the password reset link.
func (s *Service) SendPasswordResetEmail(ctx context.Context, to, token string) error {
	html, err := s.render("password_reset.html", map[string]any{
		"Token":       token,
		"FrontendUrl": s.frontendURL,
		"Year":        time.Now().Year(),
	})
	if err != nil {
		return err
	}
	return s.send(ctx, to, fmt.Sprintf("Password Reset Request for %s", s.appName), html)
}
