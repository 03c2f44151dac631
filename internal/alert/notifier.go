// Package alert delivers operational alerts to the operator chat.
// Delivery is asynchronous and lossy under pressure: alerting must
// never block or fail the session work that raised the alert.
package alert

import (
	"fmt"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/nitpack/tgfilebotter2/internal/metrics"
	"github.com/nitpack/tgfilebotter2/internal/telegram"
)

// Alert categories.
const (
	CategoryRegistration = "registration"
	CategoryHealth       = "health"
	CategorySession      = "session"
	CategoryForward      = "forward"
)

// Notifier accepts alerts for delivery. Implementations must not block.
type Notifier interface {
	Notify(category, text string)
}

// Nop discards all alerts. Used when no operator chat is configured.
type Nop struct{}

func (Nop) Notify(string, string) {}

type notification struct {
	category string
	text     string
}

// TelegramNotifier queues alerts and sends them to a fixed chat from a
// worker goroutine. When the queue is full, alerts are dropped and the
// drop is logged.
type TelegramNotifier struct {
	api     telegram.API
	chatID  int64
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu      sync.RWMutex
	stopped bool
	queue   chan notification
	wg      sync.WaitGroup
}

const queueSize = 64

func NewTelegramNotifier(api telegram.API, chatID int64, logger *zap.Logger, m *metrics.Metrics) *TelegramNotifier {
	return &TelegramNotifier{
		api:     api,
		chatID:  chatID,
		logger:  logger,
		metrics: m,
		queue:   make(chan notification, queueSize),
	}
}

// Start launches the delivery worker.
func (n *TelegramNotifier) Start() {
	n.wg.Add(1)
	go n.run()
}

// Stop drains the queue and waits for the worker to finish.
func (n *TelegramNotifier) Stop() {
	n.mu.Lock()
	if n.stopped {
		n.mu.Unlock()
		return
	}
	n.stopped = true
	close(n.queue)
	n.mu.Unlock()
	n.wg.Wait()
}

func (n *TelegramNotifier) Notify(category, text string) {
	n.metrics.AlertsTotal.WithLabelValues(category).Inc()

	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.stopped {
		n.logger.Warn("alert dropped, notifier stopped",
			zap.String("category", category),
			zap.String("text", text))
		return
	}
	select {
	case n.queue <- notification{category: category, text: text}:
	default:
		n.logger.Warn("alert dropped, queue full",
			zap.String("category", category),
			zap.String("text", text))
	}
}

func (n *TelegramNotifier) run() {
	defer n.wg.Done()
	for note := range n.queue {
		msg := tgbotapi.NewMessage(n.chatID, fmt.Sprintf("⚠️ [%s] %s", note.category, note.text))
		if _, err := n.api.Send(msg); err != nil {
			n.logger.Error("failed to deliver alert",
				zap.String("category", note.category),
				zap.Error(err))
		}
	}
}
