package providers

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/CyberwizD/notification-delivery-service/internal/domain"
)

// EmailProvider sends notifications over SMTP/SMTPS. It is built directly
// on net/smtp and crypto/tls rather than a third-party mail package: see
// DESIGN.md for why gomail.v2 (the pack's only SMTP-sending example)
// cannot pass a pre-rendered multipart/mixed body through with its
// original boundary, which the MIME aggregation method requires.
type EmailProvider struct {
	host          string
	port          int
	user          string
	password      string
	useSSL        bool
	defaultSender string
	timeout       time.Duration
	logger        *slog.Logger
}

// NewEmailProvider configures an EmailProvider from the service's SMTP
// settings.
func NewEmailProvider(host string, port int, user, password string, useSSL bool, defaultSender string, timeout time.Duration, logger *slog.Logger) *EmailProvider {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &EmailProvider{
		host:          host,
		port:          port,
		user:          user,
		password:      password,
		useSSL:        useSSL,
		defaultSender: defaultSender,
		timeout:       timeout,
		logger:        logger,
	}
}

func (p *EmailProvider) Name() string { return "email" }

// Send dials the configured SMTP server and delivers a single message.
// Transport selection follows §4.3: SSL-on-connect for use_ssl && port
// 465, STARTTLS upgrade for use_ssl && port 587 (or any other non-465 TLS
// port), plaintext otherwise.
func (p *EmailProvider) Send(ctx context.Context, sub domain.Subscription, subject, body, contentType, sender string) (Result, error) {
	if sub.EmailAddress == "" {
		return Result{Outcome: PermanentFailure, Detail: "subscription has no email_address"}, fmt.Errorf("email: no address configured")
	}
	if sender == "" {
		sender = p.defaultSender
	}

	client, err := p.dial(ctx)
	if err != nil {
		return Result{Outcome: TransientFailure, Detail: err.Error()}, err
	}
	defer client.Close()

	if p.user != "" {
		auth := smtp.PlainAuth("", p.user, p.password, p.host)
		if err := client.Auth(auth); err != nil {
			return Result{Outcome: TransientFailure, Detail: "auth failed: " + err.Error()}, err
		}
	}

	if err := client.Mail(sender); err != nil {
		return classifySMTPErr(err)
	}
	if err := client.Rcpt(sub.EmailAddress); err != nil {
		return classifySMTPErr(err)
	}

	w, err := client.Data()
	if err != nil {
		return classifySMTPErr(err)
	}
	message := buildMessage(sender, sub.EmailAddress, subject, body, contentType)
	if _, err := w.Write([]byte(message)); err != nil {
		return Result{Outcome: TransientFailure, Detail: err.Error()}, err
	}
	if err := w.Close(); err != nil {
		return classifySMTPErr(err)
	}

	_ = client.Quit()
	return Result{Outcome: Delivered}, nil
}

func (p *EmailProvider) dial(ctx context.Context) (*smtp.Client, error) {
	addr := net.JoinHostPort(p.host, strconv.Itoa(p.port))
	dialer := net.Dialer{Timeout: p.timeout}

	sslOnConnect := p.useSSL && p.port == 465

	if sslOnConnect {
		conn, err := tls.DialWithDialer(&dialer, "tcp", addr, &tls.Config{ServerName: p.host})
		if err != nil {
			return nil, fmt.Errorf("email: ssl dial: %w", err)
		}
		client, err := smtp.NewClient(conn, p.host)
		if err != nil {
			return nil, fmt.Errorf("email: smtp handshake: %w", err)
		}
		return client, nil
	}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("email: dial: %w", err)
	}
	client, err := smtp.NewClient(conn, p.host)
	if err != nil {
		return nil, fmt.Errorf("email: smtp handshake: %w", err)
	}

	startTLS := p.useSSL && p.port != 465
	if startTLS {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(&tls.Config{ServerName: p.host}); err != nil {
				client.Close()
				return nil, fmt.Errorf("email: starttls: %w", err)
			}
		} else {
			p.logger.Warn("smtp server does not advertise STARTTLS, continuing in plaintext", slog.String("host", p.host))
		}
	}
	return client, nil
}

func classifySMTPErr(err error) (Result, error) {
	msg := err.Error()
	if len(msg) >= 3 {
		switch msg[0] {
		case '4':
			return Result{Outcome: TransientFailure, Detail: msg}, err
		case '5':
			return Result{Outcome: PermanentFailure, Detail: msg}, err
		}
	}
	return Result{Outcome: TransientFailure, Detail: msg}, err
}

func buildMessage(from, to, subject, body, contentType string) string {
	if contentType == "" {
		contentType = "text/plain; charset=utf-8"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	fmt.Fprintf(&b, "Message-ID: <%d.%s@notification-delivery-service>\r\n", time.Now().UnixNano(), sanitizeMessageID(to))
	fmt.Fprintf(&b, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&b, "Content-Type: %s\r\n", contentType)
	b.WriteString("\r\n")
	b.WriteString(body)
	return b.String()
}

func sanitizeMessageID(addr string) string {
	replacer := strings.NewReplacer("@", ".", " ", "", "<", "", ">", "")
	return replacer.Replace(addr)
}
