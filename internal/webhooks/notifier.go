// Package webhooks delivers planning events to external HTTP endpoints.
package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fleetroute/internal/events"
	"fleetroute/internal/metrics"
)

type delivery struct {
	url       string
	eventType string
	body      []byte
}

// Notifier is an events.Sink that POSTs every event to each configured URL,
// retrying with exponential backoff. Deliveries are queued in memory; when
// the queue is full new deliveries are dropped.
type Notifier struct {
	URLs        []string
	Secret      string
	MaxAttempts int
	HTTP        *http.Client
	Log         *zap.Logger

	backoff func(attempt int) time.Duration
	queue   chan delivery
	wg      sync.WaitGroup
}

func NewNotifier(urls []string, secret string, maxAttempts int, log *zap.Logger) *Notifier {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Notifier{
		URLs:        urls,
		Secret:      secret,
		MaxAttempts: maxAttempts,
		HTTP:        &http.Client{Timeout: 5 * time.Second},
		Log:         log,
		backoff:     nextBackoff,
		queue:       make(chan delivery, 256),
	}
}

func (n *Notifier) Notify(evt events.Event) {
	body, err := json.Marshal(map[string]any{
		"id":    uuid.NewString(),
		"type":  evt.Type,
		"event": evt,
	})
	if err != nil {
		n.Log.Error("webhook payload", zap.Error(err))
		return
	}
	for _, u := range n.URLs {
		select {
		case n.queue <- delivery{url: u, eventType: evt.Type, body: body}:
		default:
			metrics.WebhookDeliveries.WithLabelValues("dropped").Inc()
			n.Log.Warn("webhook queue full, dropping delivery", zap.String("url", u), zap.String("type", evt.Type))
		}
	}
}

// Start runs workers until ctx is done. Wait blocks until they exit.
func (n *Notifier) Start(ctx context.Context, workers int) {
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case d := <-n.queue:
					n.process(ctx, d)
				}
			}
		}()
	}
}

func (n *Notifier) Wait() { n.wg.Wait() }

func (n *Notifier) process(ctx context.Context, d delivery) {
	log := n.Log.With(zap.String("url", d.url), zap.String("type", d.eventType))
	for attempt := 0; attempt < n.MaxAttempts; attempt++ {
		if attempt > 0 {
			t := time.NewTimer(n.backoff(attempt - 1))
			select {
			case <-ctx.Done():
				t.Stop()
				return
			case <-t.C:
			}
		}
		start := time.Now()
		err := n.send(ctx, d)
		if err == nil {
			metrics.WebhookDeliveries.WithLabelValues("delivered").Inc()
			log.Debug("webhook delivered", zap.Int("attempt", attempt+1), zap.Duration("took", time.Since(start)))
			return
		}
		log.Info("webhook attempt failed", zap.Int("attempt", attempt+1), zap.Error(err))
	}
	metrics.WebhookDeliveries.WithLabelValues("failed").Inc()
	log.Warn("webhook delivery abandoned", zap.Int("attempts", n.MaxAttempts))
}

func (n *Notifier) send(ctx context.Context, d delivery) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(d.body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(EventTypeHeader, d.eventType)
	if n.Secret != "" {
		req.Header.Set(SignatureHeader, SignHMAC(n.Secret, d.body))
	}
	resp, err := n.HTTP.Do(req)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

func nextBackoff(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts > 10 {
		attempts = 10
	}
	base := time.Second * time.Duration(1<<attempts)
	if base > time.Hour {
		base = time.Hour
	}
	return base
}
