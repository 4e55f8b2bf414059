package sender

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"msghub/internal/domain/entity"
)

// EmailSender delivers messages over SMTP with plain auth.
type EmailSender struct {
	host     string
	port     string
	username string
	password string
	from     string

	// send is swappable so tests do not need a live SMTP server.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewEmailSender builds an EmailSender from channel configuration. Required
// fields: smtp_host, smtp_port, username, password. The from address
// defaults to the username.
func NewEmailSender(cfg *entity.ChannelConfig) (*EmailSender, error) {
	host := cfg.String("smtp_host")
	if host == "" {
		return nil, missingConfig(entity.ChannelEmail, "smtp_host")
	}
	port := cfg.String("smtp_port")
	if port == "" {
		return nil, missingConfig(entity.ChannelEmail, "smtp_port")
	}
	username := cfg.String("username")
	if username == "" {
		return nil, missingConfig(entity.ChannelEmail, "username")
	}
	password := cfg.String("password")
	if password == "" {
		return nil, missingConfig(entity.ChannelEmail, "password")
	}
	from := cfg.String("from")
	if from == "" {
		from = username
	}
	return &EmailSender{
		host:     host,
		port:     port,
		username: username,
		password: password,
		from:     from,
		send:     smtp.SendMail,
	}, nil
}

// Channel implements Sender.
func (s *EmailSender) Channel() entity.ChannelType { return entity.ChannelEmail }

// Send implements Sender.
func (s *EmailSender) Send(ctx context.Context, msg *Message) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", s.from)
	fmt.Fprintf(&b, "To: %s\r\n", msg.Recipient)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.Content)

	addr := s.host + ":" + s.port
	auth := smtp.PlainAuth("", s.username, s.password, s.host)
	if err := s.send(addr, auth, s.from, []string{msg.Recipient}, []byte(b.String())); err != nil {
		return nil, fmt.Errorf("email: send via %s: %w", addr, err)
	}
	return &Result{Detail: map[string]any{"smtp_host": s.host}}, nil
}
