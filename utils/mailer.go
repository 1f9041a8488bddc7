package utils

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/folio/portfolio/config"
)

// ErrMailNotConfigured is returned when no relay credentials were supplied.
var ErrMailNotConfigured = errors.New("smtp not configured")

// Mail is one outgoing HTML message.
type Mail struct {
	To       string
	ReplyTo  string
	Subject  string
	HTMLBody string
}

// Mailer delivers mail through an SMTP relay.
type Mailer struct {
	host     string
	port     int
	username string
	password string
	from     string
	startTLS bool
}

// NewMailer creates a Mailer from the SMTP section of cfg.
func NewMailer(cfg config.AppConfig) *Mailer {
	return &Mailer{
		host:     cfg.SMTPHost,
		port:     cfg.SMTPPort,
		username: cfg.SMTPUsername,
		password: cfg.SMTPPassword,
		from:     cfg.SMTPFrom,
		startTLS: cfg.SMTPTLS,
	}
}

// Send delivers m, blocking until the relay accepts or rejects it.
func (m *Mailer) Send(ctx context.Context, mail Mail) error {
	if m.host == "" || m.from == "" || m.username == "" || m.password == "" {
		return ErrMailNotConfigured
	}
	if mail.To == "" {
		return errors.New("mail recipient is empty")
	}
	addr := net.JoinHostPort(m.host, strconv.Itoa(m.port))
	msg := composeMessage(m.from, mail, time.Now())

	d := net.Dialer{Timeout: 5 * time.Second}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	// ensure we don't hang forever
	deadline := time.Now().Add(15 * time.Second)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	c, err := smtp.NewClient(conn, m.host)
	if err != nil {
		_ = conn.Close()
		return err
	}
	defer c.Close()

	if m.startTLS {
		ok, _ := c.Extension("STARTTLS")
		if !ok {
			return errors.New("smtp server does not support STARTTLS")
		}
		if err := c.StartTLS(&tls.Config{ServerName: m.host}); err != nil {
			return err
		}
	}
	if err := c.Auth(smtp.PlainAuth("", m.username, m.password, m.host)); err != nil {
		return fmt.Errorf("smtp auth: %w", err)
	}
	if err := c.Mail(m.from); err != nil {
		return err
	}
	if err := c.Rcpt(mail.To); err != nil {
		return err
	}
	wc, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := wc.Write(msg); err != nil {
		_ = wc.Close()
		return err
	}
	if err := wc.Close(); err != nil {
		return err
	}
	return c.Quit()
}

// composeMessage renders headers and body in a fixed order.
func composeMessage(from string, mail Mail, now time.Time) []byte {
	var b strings.Builder
	writeHeader := func(k, v string) {
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(headerSafe(v))
		b.WriteString("\r\n")
	}
	writeHeader("From", from)
	writeHeader("To", mail.To)
	if mail.ReplyTo != "" {
		writeHeader("Reply-To", mail.ReplyTo)
	}
	writeHeader("Subject", mime.BEncoding.Encode("UTF-8", headerSafe(mail.Subject)))
	writeHeader("Date", now.Format(time.RFC1123Z))
	writeHeader("MIME-Version", "1.0")
	writeHeader("Content-Type", "text/html; charset=UTF-8")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(strings.ReplaceAll(mail.HTMLBody, "\r\n", "\n"), "\n", "\r\n"))
	return []byte(b.String())
}

// headerSafe folds CR/LF so user input cannot inject extra headers.
func headerSafe(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}
