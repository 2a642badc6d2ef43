package services

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strings"

	"go.uber.org/zap"

	"familyportal-backend/shared/config"
)

var ErrSMTPNotConfigured = errors.New("SMTP configuration is incomplete")

// EmailMessage is one outgoing HTML email
type EmailMessage struct {
	To      string
	ToName  string
	Subject string
	HTML    string
}

// EmailSender delivers a single email
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// EmailService sends emails over SMTP
type EmailService struct {
	config *config.Config
	log    *zap.Logger
}

// NewEmailService creates a new email service
func NewEmailService(cfg *config.Config, log *zap.Logger) *EmailService {
	return &EmailService{config: cfg, log: log}
}

// Send delivers msg immediately. The context bounds the dial only; net/smtp
// has no per-command deadlines.
func (es *EmailService) Send(ctx context.Context, msg EmailMessage) error {
	if msg.To == "" {
		return fmt.Errorf("recipient cannot be empty")
	}
	if msg.Subject == "" {
		return fmt.Errorf("subject cannot be empty")
	}

	host := es.config.SMTPHost
	port := es.config.SMTPPort
	if host == "" || es.config.SMTPUsername == "" || es.config.SMTPPassword == "" {
		return ErrSMTPNotConfigured
	}

	auth := smtp.PlainAuth("", es.config.SMTPUsername, es.config.SMTPPassword, host)
	addr := net.JoinHostPort(host, port)
	body := []byte(es.buildEmailMessage(msg))

	var err error
	// Port 465 uses implicit TLS, other ports go through STARTTLS when offered
	if port == "465" || es.config.SMTPUseTLS {
		err = es.sendWithTLS(ctx, addr, host, auth, msg.To, body)
	} else {
		err = es.sendPlain(ctx, addr, host, auth, msg.To, body)
	}
	if err != nil {
		return fmt.Errorf("smtp send to %s: %w", msg.To, err)
	}

	es.log.Debug("email sent", zap.String("to", msg.To), zap.String("subject", msg.Subject))
	return nil
}

func (es *EmailService) sendPlain(ctx context.Context, addr, host string, auth smtp.Auth, to string, msg []byte) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}

	client, err := smtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return err
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: host}); err != nil {
			return err
		}
	}
	return deliver(client, auth, es.config.EmailFrom, to, msg)
}

func (es *EmailService) sendWithTLS(ctx context.Context, addr, host string, auth smtp.Auth, to string, msg []byte) error {
	dialer := &tls.Dialer{Config: &tls.Config{ServerName: host}}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}

	client, err := smtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return err
	}
	defer client.Close()

	return deliver(client, auth, es.config.EmailFrom, to, msg)
}

func deliver(client *smtp.Client, auth smtp.Auth, from, to string, msg []byte) error {
	if ok, _ := client.Extension("AUTH"); ok {
		if err := client.Auth(auth); err != nil {
			return err
		}
	}
	if err := client.Mail(from); err != nil {
		return err
	}
	if err := client.Rcpt(to); err != nil {
		return err
	}

	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return client.Quit()
}

// buildEmailMessage builds the raw RFC 5322 message
func (es *EmailService) buildEmailMessage(msg EmailMessage) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("From: %s <%s>\r\n", mime.QEncoding.Encode("utf-8", es.config.EmailFromName), es.config.EmailFrom))
	if msg.ToName != "" {
		b.WriteString(fmt.Sprintf("To: %s <%s>\r\n", mime.QEncoding.Encode("utf-8", msg.ToName), msg.To))
	} else {
		b.WriteString(fmt.Sprintf("To: %s\r\n", msg.To))
	}
	b.WriteString(fmt.Sprintf("Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject)))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.HTML)

	return b.String()
}
