// Package alerting sends best-effort notifications when a message is
// blocked by moderation.
package alerting

import (
	"context"
	"sync"
	"time"

	"mentorchat/backend/internal/models"
	"mentorchat/backend/internal/store"
	"mentorchat/backend/pkg/logger"
)

// Alert describes one blocked message
type Alert struct {
	LogID            uint
	SenderID         uint
	RecipientID      *uint
	RecipientAddress string
	Content          string
	Reason           string
	Method           models.ModerationMethod
	Timestamp        time.Time
}

// Notifier delivers a blocked-content alert to operators.
type Notifier interface {
	SendBlockedContentAlert(ctx context.Context, alert Alert) error
}

// LogNotifier writes alerts to the log. It is used when no alert transport
// is configured.
type LogNotifier struct {
	log *logger.Logger
}

// NewLogNotifier creates a log-only notifier
func NewLogNotifier(log *logger.Logger) *LogNotifier {
	return &LogNotifier{log: log.WithComponent("alerting")}
}

// SendBlockedContentAlert implements Notifier
func (n *LogNotifier) SendBlockedContentAlert(_ context.Context, alert Alert) error {
	n.log.Warn("blocked content",
		"moderation_log_id", alert.LogID,
		"sender_id", alert.SenderID,
		"recipient_address", alert.RecipientAddress,
		"method", string(alert.Method),
		"reason", alert.Reason,
	)
	return nil
}

// Dispatcher sends alerts in the background, bounded by a timeout, and
// flags the audit record once a notification succeeds.
type Dispatcher struct {
	notifier Notifier
	audit    store.AuditLog
	timeout  time.Duration
	log      *logger.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher creates an alert dispatcher
func NewDispatcher(notifier Notifier, audit store.AuditLog, timeout time.Duration, log *logger.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{
		notifier: notifier,
		audit:    audit,
		timeout:  timeout,
		log:      log.WithComponent("alerting"),
	}
}

// Dispatch sends alert without blocking the caller. After Close the alert
// is dropped; the audit record keeps alert_sent false.
func (d *Dispatcher) Dispatch(alert Alert) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.log.Warn("dispatcher closed, alert dropped", "moderation_log_id", alert.LogID)
		return
	}
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		d.send(alert)
	}()
}

func (d *Dispatcher) send(alert Alert) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if err := d.notifier.SendBlockedContentAlert(ctx, alert); err != nil {
		d.log.Warn("blocked-content alert failed",
			"moderation_log_id", alert.LogID,
			"error", err.Error(),
		)
		return
	}

	if alert.LogID == 0 {
		return
	}
	if err := d.audit.MarkAlertSent(ctx, alert.LogID); err != nil {
		d.log.Warn("could not flag alert as sent",
			"moderation_log_id", alert.LogID,
			"error", err.Error(),
		)
	}
}

// Wait blocks until in-flight alerts finish
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Close stops accepting alerts and waits for in-flight ones.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.wg.Wait()
}
