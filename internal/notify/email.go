package notify

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"
)

// EmailConfig holds SMTP settings.
type EmailConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
	// OnlyNoteworthy suppresses mail for runs that changed and failed nothing.
	OnlyNoteworthy bool
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailNotifier mails run summaries over SMTP.
type EmailNotifier struct {
	cfg  EmailConfig
	send sendFunc
}

// NewEmailNotifier creates an EmailNotifier.
func NewEmailNotifier(cfg EmailConfig) *EmailNotifier {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &EmailNotifier{cfg: cfg, send: smtp.SendMail}
}

func (e *EmailNotifier) Name() string { return "email" }

func (e *EmailNotifier) Enabled() bool {
	return e.cfg.Enabled && e.cfg.Host != "" && e.cfg.From != "" && len(e.cfg.To) > 0
}

func (e *EmailNotifier) addr() string {
	return net.JoinHostPort(e.cfg.Host, strconv.Itoa(e.cfg.Port))
}

// Notify sends one message per event.
func (e *EmailNotifier) Notify(ctx context.Context, event RunEvent) *NotifyResult {
	start := time.Now()
	result := &NotifyResult{Service: e.Name()}

	if e.cfg.OnlyNoteworthy && !event.Noteworthy() {
		result.Success = true
		return result
	}

	var auth smtp.Auth
	if e.cfg.Username != "" && e.cfg.Password != "" {
		auth = smtp.PlainAuth("", e.cfg.Username, e.cfg.Password, e.cfg.Host)
	}

	msg := e.message(event)
	errCh := make(chan error, 1)
	go func() { errCh <- e.send(e.addr(), auth, e.cfg.From, e.cfg.To, msg) }()

	select {
	case err := <-errCh:
		result.Error = err
	case <-ctx.Done():
		result.Error = ctx.Err()
	}
	result.Success = result.Error == nil
	result.Duration = time.Since(start)
	return result
}

func (e *EmailNotifier) message(event RunEvent) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", e.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(e.cfg.To, ", "))
	fmt.Fprintf(&b, "Subject: [embress] %s\r\n", FormatEventSummary(event))
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n\r\n")
	body := FormatEventBody(event, 25)
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return []byte(b.String())
}

// Ping dials the SMTP server.
func (e *EmailNotifier) Ping(ctx context.Context) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", e.addr())
	if err != nil {
		return fmt.Errorf("smtp %s unreachable: %w", e.addr(), err)
	}
	return conn.Close()
}
