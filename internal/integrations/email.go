package integrations

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

// SMTPSettings is the outgoing mail server used by the email integration.
type SMTPSettings struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

// EmailIntegration sends a plain-text email.
//
// Config: to (comma separated), subject, body, from (overrides the default sender).
type EmailIntegration struct {
	Settings SMTPSettings
	// sendMail defaults to smtp.SendMail.
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func (e *EmailIntegration) Type() string             { return TypeEmail }
func (e *EmailIntegration) RequiredFields() []string { return []string{"to", "subject"} }

func (e *EmailIntegration) Execute(ctx context.Context, config, _ map[string]any) (map[string]any, error) {
	if e.Settings.Host == "" {
		return nil, fmt.Errorf("smtp host is not configured")
	}
	var to []string
	for _, addr := range strings.Split(stringField(config, "to"), ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			to = append(to, addr)
		}
	}
	if len(to) == 0 {
		return nil, fmt.Errorf("email requires at least one recipient")
	}
	from := stringField(config, "from")
	if from == "" {
		from = e.Settings.From
	}
	if from == "" {
		from = e.Settings.Username
	}
	if from == "" {
		return nil, fmt.Errorf("email sender is not configured")
	}

	subject := stringField(config, "subject")
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n%s",
		from, strings.Join(to, ", "), subject, stringField(config, "body"))

	port := e.Settings.Port
	if port == 0 {
		port = 587
	}
	addr := fmt.Sprintf("%s:%d", e.Settings.Host, port)

	var auth smtp.Auth
	if e.Settings.Password != "" {
		auth = smtp.PlainAuth("", e.Settings.Username, e.Settings.Password, e.Settings.Host)
	}

	send := e.sendMail
	if send == nil {
		send = smtp.SendMail
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := send(addr, auth, from, to, []byte(msg)); err != nil {
		return nil, fmt.Errorf("smtp send: %w", err)
	}
	return map[string]any{
		"sent":    true,
		"to":      strings.Join(to, ","),
		"subject": subject,
	}, nil
}
