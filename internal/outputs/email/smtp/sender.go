package smtp

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strings"

	mail "github.com/wneessen/go-mail"

	"github.com/bakkerme/wanderlust-ai/internal/config"
	"github.com/bakkerme/wanderlust-ai/internal/outputs/email"
)

type TLSMode string

const (
	TLSModeAuto     TLSMode = "auto"
	TLSModeDisabled TLSMode = "disabled"
	TLSModeStartTLS TLSMode = "starttls"
	TLSModeImplicit TLSMode = "implicit"
)

type Sender struct {
	cfg  config.SMTPEnvConfig
	mode TLSMode
}

// New validates cfg. The TLS mode defaults by port: implicit on 465, STARTTLS otherwise.
func New(cfg config.SMTPEnvConfig) (*Sender, error) {
	cfg.Host = strings.TrimSpace(cfg.Host)
	if cfg.Host == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if cfg.Port <= 0 {
		return nil, fmt.Errorf("smtp port must be positive")
	}
	mode, err := ParseTLSMode(cfg.TLSMode)
	if err != nil {
		return nil, err
	}
	if mode == TLSModeAuto {
		mode = TLSModeStartTLS
		if cfg.Port == 465 {
			mode = TLSModeImplicit
		}
	}
	return &Sender{cfg: cfg, mode: mode}, nil
}

func (s *Sender) Mode() TLSMode { return s.mode }

func (s *Sender) Send(ctx context.Context, message email.Message) error {
	msg, err := s.build(message)
	if err != nil {
		return err
	}
	err = s.dialAndSend(ctx, msg, s.cfg.User != "")
	// Local sinks such as mailpit reject AUTH; retry those without credentials.
	if err != nil && s.cfg.User != "" && authUnsupported(err) && isLocalHost(s.cfg.Host) {
		return s.dialAndSend(ctx, msg, false)
	}
	return err
}

func (s *Sender) build(message email.Message) (*mail.Msg, error) {
	from := firstNonEmpty(message.From, s.cfg.From, s.cfg.User)
	if from == "" {
		return nil, fmt.Errorf("sender address is required (set SMTP_FROM)")
	}
	m := mail.NewMsg()
	if err := m.From(from); err != nil {
		return nil, fmt.Errorf("invalid from address %q: %w", from, err)
	}
	if err := m.EnvelopeFrom(from); err != nil {
		return nil, fmt.Errorf("invalid envelope from address %q: %w", from, err)
	}
	if err := m.ToFromString(message.To); err != nil {
		return nil, fmt.Errorf("invalid recipient %q: %w", message.To, err)
	}
	m.Subject(message.Subject)
	m.SetBodyString(mail.TypeTextHTML, message.HTML)
	return m, nil
}

func (s *Sender) dialAndSend(ctx context.Context, msg *mail.Msg, auth bool) error {
	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
		mail.WithTLSConfig(&tls.Config{
			ServerName:         s.cfg.Host,
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: s.cfg.InsecureSkipVerify,
		}),
	}
	switch s.mode {
	case TLSModeDisabled:
		opts = append(opts, mail.WithTLSPortPolicy(mail.NoTLS))
	case TLSModeImplicit:
		opts = append(opts, mail.WithSSL())
	default:
		opts = append(opts, mail.WithTLSPortPolicy(mail.TLSMandatory))
	}
	if auth {
		opts = append(opts,
			mail.WithUsername(s.cfg.User),
			mail.WithPassword(s.cfg.Password),
			mail.WithSMTPAuth(mail.SMTPAuthAutoDiscover),
		)
	}

	client, err := mail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("create smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}

// ParseTLSMode accepts the documented modes and a few common aliases.
func ParseTLSMode(raw string) (TLSMode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "auto":
		return TLSModeAuto, nil
	case "disabled", "off", "none":
		return TLSModeDisabled, nil
	case "starttls", "start_tls":
		return TLSModeStartTLS, nil
	case "implicit", "ssl", "smtps":
		return TLSModeImplicit, nil
	default:
		return "", fmt.Errorf("invalid SMTP_TLS_MODE %q (expected auto, disabled, starttls or implicit)", raw)
	}
}

func authUnsupported(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "server does not support SMTP AUTH") ||
		strings.Contains(msg, "not able to detect a supported authentication mechanism")
}

func isLocalHost(host string) bool {
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "localhost" || host == "mailpit" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
