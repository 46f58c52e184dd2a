// Package notify posts watch-folder outcomes to a webhook.
package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
)

// Outcome is the terminal state of a watched file.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Event describes one processed file.
type Event struct {
	Outcome    Outcome    `json:"outcome"`
	FileName   string     `json:"file_name"`
	ArchivedAs string     `json:"archived_as,omitempty"`
	BatchID    *uuid.UUID `json:"batch_id,omitempty"`
	TableName  string     `json:"table_name,omitempty"`
	Rows       int64      `json:"rows"`
	Status     string     `json:"status,omitempty"`
	Error      string     `json:"error,omitempty"`
	ErrorType  string     `json:"error_type,omitempty"`
	ObjectKey  string     `json:"object_key,omitempty"`
	At         time.Time  `json:"at"`
}

// Notifier delivers events.
type Notifier interface {
	Notify(ctx context.Context, e Event) error
}

// Nop drops every event.
type Nop struct{}

// Notify does nothing.
func (Nop) Notify(context.Context, Event) error { return nil }

// Config holds webhook settings.
type Config struct {
	URL        string
	Timeout    time.Duration
	RetryCount int
	OnSuccess  bool
	OnFailure  bool
}

// Webhook posts events as JSON, retrying transport errors and 5xx replies.
type Webhook struct {
	client    *resty.Client
	url       string
	onSuccess bool
	onFailure bool
}

// NewWebhook returns a webhook notifier for cfg.
func NewWebhook(cfg Config) *Webhook {
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", "stageload-notify").
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		})

	return &Webhook{
		client:    client,
		url:       cfg.URL,
		onSuccess: cfg.OnSuccess,
		onFailure: cfg.OnFailure,
	}
}

// Notify posts e unless its outcome is filtered out.
func (w *Webhook) Notify(ctx context.Context, e Event) error {
	if !w.wants(e.Outcome) {
		return nil
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}

	resp, err := w.client.R().
		SetContext(ctx).
		SetBody(e).
		Post(w.url)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode())
	}
	return nil
}

func (w *Webhook) wants(o Outcome) bool {
	switch o {
	case OutcomeSuccess:
		return w.onSuccess
	case OutcomeFailure:
		return w.onFailure
	}
	return false
}
