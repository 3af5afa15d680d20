// Package alerting delivers fire-and-forget notifications for breaker and
// recovery events. Implementations must never block the caller and never
// return errors: alerting failures must not affect breaker or job state.
package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Event kinds emitted by the core
const (
	KindBreakerOpened = "breaker_opened"
	KindBreakerClosed = "breaker_closed"
	KindJobsResumed   = "jobs_resumed"
)

// Event describes one alertable occurrence
type Event struct {
	Kind   string                 `json:"kind"`
	Reason string                 `json:"reason,omitempty"`
	At     time.Time              `json:"at"`
	Fields map[string]interface{} `json:"fields,omitempty"`
}

// Alerter receives events. Notify must not block and must not fail loudly.
type Alerter interface {
	Notify(ctx context.Context, event Event)
}

// LogAlerter writes alerts to the structured log
type LogAlerter struct {
	log *zap.SugaredLogger
}

// NewLogAlerter creates an alerter backed by the given logger
func NewLogAlerter(log *zap.SugaredLogger) *LogAlerter {
	return &LogAlerter{log: log}
}

func (a *LogAlerter) Notify(ctx context.Context, event Event) {
	a.log.Warnw("ALERT "+event.Kind,
		"reason", event.Reason,
		"at", event.At,
		"fields", event.Fields)
}

// WebhookAlerter POSTs events as JSON to a webhook URL. Delivery happens on
// a goroutine so the caller never waits on the network; repeated alerts are
// throttled with a rate limiter to avoid flooding the receiver when an open
// breaker keeps refreshing.
type WebhookAlerter struct {
	url     string
	client  *http.Client
	limiter *rate.Limiter
	log     *zap.SugaredLogger
}

// NewWebhookAlerter creates a webhook alerter allowing alertsPerMinute
// deliveries (burst of 1).
func NewWebhookAlerter(url string, alertsPerMinute float64, log *zap.SugaredLogger) *WebhookAlerter {
	return &WebhookAlerter{
		url:     url,
		client:  &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(alertsPerMinute/60), 1),
		log:     log,
	}
}

func (a *WebhookAlerter) Notify(ctx context.Context, event Event) {
	if !a.limiter.Allow() {
		a.log.Debugw("Alert throttled", "kind", event.Kind)
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		a.log.Warnw("Failed to encode alert", "kind", event.Kind, "error", err)
		return
	}

	// Detach from the caller's context: the triggering request finishing
	// must not cancel delivery.
	go func() {
		req, err := http.NewRequest(http.MethodPost, a.url, bytes.NewReader(payload))
		if err != nil {
			a.log.Warnw("Failed to build alert request", "kind", event.Kind, "error", err)
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := a.client.Do(req)
		if err != nil {
			a.log.Warnw("Failed to deliver alert", "kind", event.Kind, "error", err)
			return
		}
		resp.Body.Close()
	}()
}

// Multi fans an event out to several alerters
type Multi []Alerter

func (m Multi) Notify(ctx context.Context, event Event) {
	for _, a := range m {
		a.Notify(ctx, event)
	}
}
