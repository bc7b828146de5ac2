package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/smtp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/OldStager01/cloud-vm-monitor/internal/logger"
	"github.com/OldStager01/cloud-vm-monitor/pkg/models"
)

// Notifier delivers one alert to its owner over a single channel.
type Notifier interface {
	Channel() models.NotificationChannel
	Notify(ctx context.Context, user *models.User, alert *models.Alert) error
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type WebhookConfig struct {
	URL     string
	Headers map[string]string
	Timeout time.Duration
}

// BuildNotifiers resolves configured channel names. Unknown names and
// channels missing their settings are errors.
func BuildNotifiers(names []string, smtpCfg SMTPConfig, webhookCfg WebhookConfig) ([]Notifier, error) {
	var out []Notifier
	for _, name := range names {
		switch models.NotificationChannel(strings.ToLower(strings.TrimSpace(name))) {
		case models.ChannelEmail:
			if smtpCfg.Host == "" || smtpCfg.From == "" {
				return nil, fmt.Errorf("email notifier requires smtp host and from address")
			}
			out = append(out, NewEmailNotifier(smtpCfg))
		case models.ChannelWebhook:
			if webhookCfg.URL == "" {
				return nil, fmt.Errorf("webhook notifier requires a url")
			}
			out = append(out, NewWebhookNotifier(webhookCfg))
		case models.ChannelLog:
			out = append(out, LogNotifier{})
		default:
			return nil, fmt.Errorf("unknown notifier: %s", name)
		}
	}
	return out, nil
}

type LogNotifier struct{}

func (LogNotifier) Channel() models.NotificationChannel { return models.ChannelLog }

func (LogNotifier) Notify(ctx context.Context, user *models.User, alert *models.Alert) error {
	logger.WithFields(map[string]interface{}{
		"user_id":    user.ID,
		"vm_id":      alert.VMID,
		"alert_id":   alert.ID,
		"alert_type": alert.AlertType,
		"severity":   alert.Severity,
	}).Warn(alert.Title)
	return nil
}

// SendFunc matches smtp.SendMail.
type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type EmailNotifier struct {
	config SMTPConfig
	send   SendFunc
}

func NewEmailNotifier(cfg SMTPConfig) *EmailNotifier {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &EmailNotifier{config: cfg, send: smtp.SendMail}
}

// WithSendFunc replaces the SMTP transport, for tests.
func (n *EmailNotifier) WithSendFunc(send SendFunc) *EmailNotifier {
	n.send = send
	return n
}

func (n *EmailNotifier) Channel() models.NotificationChannel { return models.ChannelEmail }

func (n *EmailNotifier) Notify(ctx context.Context, user *models.User, alert *models.Alert) error {
	if user.Email == "" {
		return fmt.Errorf("user %s has no email address", user.ID)
	}

	var auth smtp.Auth
	if n.config.Username != "" {
		auth = smtp.PlainAuth("", n.config.Username, n.config.Password, n.config.Host)
	}
	addr := net.JoinHostPort(n.config.Host, strconv.Itoa(n.config.Port))
	msg := n.compose(user, alert)

	done := make(chan error, 1)
	go func() {
		done <- n.send(addr, auth, n.config.From, []string{user.Email}, msg)
	}()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp send failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (n *EmailNotifier) compose(user *models.User, alert *models.Alert) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", n.config.From)
	fmt.Fprintf(&b, "To: %s\r\n", user.Email)
	fmt.Fprintf(&b, "Subject: %s\r\n", Subject(alert))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(Body(alert))
	return []byte(b.String())
}

func Subject(alert *models.Alert) string {
	return fmt.Sprintf("[%s] %s", strings.ToUpper(string(alert.Severity)), alert.Title)
}

// Body renders the plain-text notification body. Metadata keys are sorted.
func Body(alert *models.Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", alert.Title)
	fmt.Fprintf(&b, "Severity: %s\n", alert.Severity)
	fmt.Fprintf(&b, "Type: %s\n", alert.AlertType)
	fmt.Fprintf(&b, "Time: %s\n\n", alert.CreatedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "%s\n", alert.Message)

	if len(alert.Metadata) > 0 {
		keys := make([]string, 0, len(alert.Metadata))
		for k := range alert.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		b.WriteString("\nDetails:\n")
		for _, k := range keys {
			raw, err := json.Marshal(alert.Metadata[k])
			if err != nil {
				raw = []byte(fmt.Sprint(alert.Metadata[k]))
			}
			fmt.Fprintf(&b, "  %s: %s\n", k, raw)
		}
	}
	return b.String()
}

type WebhookNotifier struct {
	config WebhookConfig
	client *http.Client
}

func NewWebhookNotifier(cfg WebhookConfig) *WebhookNotifier {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &WebhookNotifier{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

func (n *WebhookNotifier) Channel() models.NotificationChannel { return models.ChannelWebhook }

type webhookPayload struct {
	UserID string        `json:"user_id"`
	Email  string        `json:"email,omitempty"`
	Alert  *models.Alert `json:"alert"`
}

func (n *WebhookNotifier) Notify(ctx context.Context, user *models.User, alert *models.Alert) error {
	body, err := json.Marshal(webhookPayload{UserID: user.ID, Email: user.Email, Alert: alert})
	if err != nil {
		return fmt.Errorf("failed to encode webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.config.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range n.config.Headers {
		req.Header.Set(k, v)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
