package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strings"
	"time"
)

const smtpDialTimeout = 10 * time.Second

// EmailChannel delivers via SMTP with STARTTLS.
type EmailChannel struct {
	host     string
	port     string
	user     string
	password string
	to       string
}

// NewEmailChannel constructs the channel.
func NewEmailChannel(host, port, user, password, to string) *EmailChannel {
	return &EmailChannel{host: host, port: port, user: user, password: password, to: to}
}

func (e *EmailChannel) Name() string { return "email" }

// Send delivers msg as a UTF-8 plain-text mail. The whole SMTP conversation
// runs over a ctx-bounded connection: the dial observes ctx, the ctx
// deadline doubles as the conn deadline and cancellation closes the conn, so
// a stalled server cannot block past the caller's timeout.
func (e *EmailChannel) Send(ctx context.Context, msg Message) error {
	addr := e.host + ":" + e.port

	conn, err := (&net.Dialer{Timeout: smtpDialTimeout}).DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("smtp dial %s: %w", addr, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	// NewClient blocks on the server greeting; the conn deadline bounds it.
	c, err := smtp.NewClient(conn, e.host)
	if err != nil {
		return fmt.Errorf("smtp greeting: %w", err)
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: e.host}); err != nil {
			return fmt.Errorf("smtp starttls: %w", err)
		}
	}

	if e.user != "" && e.password != "" {
		if ok, _ := c.Extension("AUTH"); ok {
			auth := smtp.PlainAuth("", e.user, e.password, e.host)
			if err := c.Auth(auth); err != nil {
				return fmt.Errorf("smtp auth: %w", err)
			}
		}
	}

	if err := c.Mail(e.user); err != nil {
		return fmt.Errorf("smtp MAIL FROM: %w", err)
	}
	if err := c.Rcpt(e.to); err != nil {
		return fmt.Errorf("smtp RCPT TO: %w", err)
	}

	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA: %w", err)
	}
	if _, err := w.Write([]byte(e.buildMail(msg))); err != nil {
		w.Close()
		return fmt.Errorf("smtp write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp close body: %w", err)
	}

	return c.Quit()
}

// buildMail renders the RFC 5322 message with a RFC 2047 encoded subject.
func (e *EmailChannel) buildMail(msg Message) string {
	subject := mime.QEncoding.Encode("UTF-8", msg.Subject)

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", e.user)
	fmt.Fprintf(&b, "To: %s\r\n", e.to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.Body)
	return b.String()
}
