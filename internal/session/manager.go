package session

import (
	"context"
	"fmt"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/nitpack/tgfilebotter2/internal/alert"
	"github.com/nitpack/tgfilebotter2/internal/metrics"
	"github.com/nitpack/tgfilebotter2/internal/models"
	"github.com/nitpack/tgfilebotter2/internal/nav"
	"github.com/nitpack/tgfilebotter2/internal/storage"
	"github.com/nitpack/tgfilebotter2/internal/telegram"
)

// Manager is the session facade: it verifies credentials, owns the
// registry, and runs the supervisor. All lifecycle operations go
// through it.
type Manager struct {
	registry *Registry
	store    storage.Storage
	connect  telegram.Connector
	renderer *nav.Renderer
	logger   *zap.Logger
	alerts   alert.Notifier
	metrics  *metrics.Metrics
	opts     Options

	mu        sync.Mutex
	supCancel context.CancelFunc
	supDone   chan struct{}
}

func NewManager(store storage.Storage, connect telegram.Connector, logger *zap.Logger, alerts alert.Notifier, m *metrics.Metrics, opts Options) *Manager {
	return &Manager{
		registry: NewRegistry(),
		store:    store,
		connect:  connect,
		renderer: nav.NewRenderer(logger, alerts, m),
		logger:   logger,
		alerts:   alerts,
		metrics:  m,
		opts:     opts.withDefaults(),
	}
}

// Add verifies the bot's token with one identity call, registers a
// runtime for it, and only then starts polling. A rejected token leaves
// the registry untouched, so it never holds a session for an
// unreachable bot.
func (m *Manager) Add(ctx context.Context, bot *models.Bot) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	api, err := m.connect(bot.Token)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}

	rt := newRuntime(bot, api, runtimeDeps{
		store:    m.store,
		renderer: m.renderer,
		logger:   m.logger,
		metrics:  m.metrics,
		opts:     m.opts,
		onFatal:  m.handleFatal,
	})
	if err := m.registry.Add(rt); err != nil {
		return "", err
	}
	rt.start()
	m.metrics.ActiveSessions.Set(float64(m.registry.Count()))
	m.logger.Info("bot session started",
		zap.String("bot_id", bot.ID),
		zap.String("status", string(bot.Status)))
	return bot.ID, nil
}

// LoadAll starts a session for every persisted bot except banned ones,
// then starts the supervisor. Individual failures are reported and
// skipped; one dead token must not keep the rest of the fleet down.
func (m *Manager) LoadAll(ctx context.Context) error {
	bots, err := m.store.ListBots(ctx)
	if err != nil {
		return fmt.Errorf("list bots: %w", err)
	}

	started := 0
	for _, bot := range bots {
		if bot.Status == models.StatusBanned {
			continue
		}
		if _, err := m.Add(ctx, bot); err != nil {
			m.logger.Warn("failed to start bot session",
				zap.String("bot_id", bot.ID),
				zap.Error(err))
			m.alerts.Notify(alert.CategoryRegistration,
				fmt.Sprintf("failed to start bot %s: %v", bot.ID, err))
			continue
		}
		started++
	}
	m.logger.Info("bot sessions loaded",
		zap.Int("started", started),
		zap.Int("persisted", len(bots)))

	m.startSupervisor()
	return nil
}

func (m *Manager) startSupervisor() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.supCancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	sup := newSupervisor(m)
	go func() {
		defer close(done)
		sup.Run(ctx)
	}()
	m.supCancel = cancel
	m.supDone = done
}

// Stop shuts down the session for id, if one is live.
func (m *Manager) Stop(id string) {
	rt, ok := m.registry.Get(id)
	if !ok {
		return
	}
	m.stopAndRemove(rt)
	m.logger.Info("bot session stopped", zap.String("bot_id", id))
}

// StopAll cancels the supervisor, then stops every session. A session
// stuck in a hung platform call is logged and abandoned; by the time
// StopAll returns the registry is empty regardless.
func (m *Manager) StopAll() {
	m.mu.Lock()
	if m.supCancel != nil {
		m.supCancel()
		<-m.supDone
		m.supCancel = nil
		m.supDone = nil
	}
	m.mu.Unlock()

	for _, rt := range m.registry.Snapshot() {
		m.stopAndRemove(rt)
	}
	m.logger.Info("all bot sessions stopped")
}

func (m *Manager) stopAndRemove(rt *Runtime) {
	if err := rt.Stop(); err != nil {
		m.logger.Warn("session stop did not complete cleanly",
			zap.String("bot_id", rt.id),
			zap.Error(err))
	}
	m.registry.Remove(rt.id)
	m.metrics.ActiveSessions.Set(float64(m.registry.Count()))
}

// handleFatal runs when a runtime exceeds its poll failure budget and
// exits on its own.
func (m *Manager) handleFatal(rt *Runtime, reason string) {
	m.registry.Remove(rt.id)
	m.metrics.ActiveSessions.Set(float64(m.registry.Count()))
	m.alerts.Notify(alert.CategorySession,
		fmt.Sprintf("bot %s stopped after repeated poll failures: %s", rt.id, reason))
}

// Reissue restarts the session for id from its persisted record,
// picking up tree and status changes. A bot that is now banned is left
// stopped.
func (m *Manager) Reissue(ctx context.Context, id string) error {
	m.Stop(id)

	bot, err := m.store.GetBot(ctx, id)
	if err != nil {
		return err
	}
	if bot.Status == models.StatusBanned {
		return nil
	}
	_, err = m.Add(ctx, bot)
	return err
}

// SendAdminMessage delivers text to chatID through the bot's own
// session.
func (m *Manager) SendAdminMessage(id string, chatID int64, text string) error {
	rt, ok := m.registry.Get(id)
	if !ok {
		return ErrNotFound
	}
	if _, err := rt.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		return fmt.Errorf("send message via bot %s: %w", id, err)
	}
	return nil
}

// ActiveCount reports the number of live sessions.
func (m *Manager) ActiveCount() int {
	return m.registry.Count()
}

// Get returns the live runtime for id, if any.
func (m *Manager) Get(id string) (*Runtime, bool) {
	return m.registry.Get(id)
}

// Runtimes returns a snapshot of all live runtimes.
func (m *Manager) Runtimes() []*Runtime {
	return m.registry.Snapshot()
}
