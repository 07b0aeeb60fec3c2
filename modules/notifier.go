package modules

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/slack-go/slack"

	apperrors "coinpulse/pkg/errors"
)

// ErrNoRecipient means the channel needs a recipient and none is registered.
var ErrNoRecipient = errors.New("no recipient registered")

// Notifier delivers a rendered report over one channel.
type Notifier interface {
	Name() string
	Deliver(ctx context.Context, recipient, text string) error
}

// Recipients holds the chat id registered for webhook delivery. Invocations
// read it once and pass the value to delivery explicitly.
type Recipients struct {
	clock     clockwork.Clock
	mu        sync.RWMutex
	id        string
	updatedAt time.Time
}

func NewRecipients(initial string, clock clockwork.Clock) *Recipients {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	r := &Recipients{clock: clock}
	if initial != "" {
		r.Set(initial)
	}
	return r
}

func (r *Recipients) Set(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.id = strings.TrimSpace(id)
	r.updatedAt = r.clock.Now()
}

// Get returns the registered recipient, or "" when none is set.
func (r *Recipients) Get() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.id
}

func (r *Recipients) UpdatedAt() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.updatedAt
}

// WebhookNotifier posts {"chat_id", "text"} to a Telegram-style bot webhook.
type WebhookNotifier struct {
	url        string
	httpClient *http.Client
}

func NewWebhookNotifier(url string, httpClient *http.Client) *WebhookNotifier {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &WebhookNotifier{url: url, httpClient: httpClient}
}

func (n *WebhookNotifier) Name() string { return "webhook" }

type webhookMessage struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

func (n *WebhookNotifier) Deliver(ctx context.Context, recipient, text string) error {
	if recipient == "" {
		return ErrNoRecipient
	}

	body, err := json.Marshal(webhookMessage{ChatID: recipient, Text: text})
	if err != nil {
		return apperrors.InternalError("encode webhook message", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return apperrors.DeliveryError("build webhook request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return apperrors.DeliveryError("webhook request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apperrors.DeliveryError("webhook rejected message", newStatusError("webhook", resp))
	}
	return nil
}

// SlackNotifier posts to a Slack incoming webhook. The recipient is implied by
// the webhook URL.
type SlackNotifier struct {
	url        string
	httpClient *http.Client
}

func NewSlackNotifier(url string, httpClient *http.Client) *SlackNotifier {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &SlackNotifier{url: url, httpClient: httpClient}
}

func (n *SlackNotifier) Name() string { return "slack" }

func (n *SlackNotifier) Deliver(ctx context.Context, _ string, text string) error {
	msg := &slack.WebhookMessage{Text: toSlackMarkdown(text)}
	if err := slack.PostWebhookCustomHTTPContext(ctx, n.url, n.httpClient, msg); err != nil {
		return apperrors.DeliveryError("slack webhook failed", err)
	}
	return nil
}

// toSlackMarkdown rewrites Telegram-style bullet lines for mrkdwn.
func toSlackMarkdown(text string) string {
	return strings.ReplaceAll(text, "\n- ", "\n• ")
}
