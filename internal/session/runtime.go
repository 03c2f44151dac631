package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/nitpack/tgfilebotter2/internal/metrics"
	"github.com/nitpack/tgfilebotter2/internal/models"
	"github.com/nitpack/tgfilebotter2/internal/nav"
	"github.com/nitpack/tgfilebotter2/internal/storage"
	"github.com/nitpack/tgfilebotter2/internal/telegram"
)

// Options tunes the session layer. Zero values fall back to defaults.
type Options struct {
	// OperatorID is the user allowed to open pending bots. Zero means
	// nobody can.
	OperatorID int64
	// PollTimeout is the long-poll wait in seconds.
	PollTimeout int
	// PollRetryDelay is the pause after a failed poll.
	PollRetryDelay time.Duration
	// MaxPollErrors is how many raw poll failures a session tolerates
	// before it stops itself.
	MaxPollErrors int
	// HealthInterval is the supervisor sweep period.
	HealthInterval time.Duration
	// HealthThreshold is how many recorded health failures trigger a
	// restart.
	HealthThreshold int
	// StopTimeout bounds how long a stop waits for the loop to exit.
	StopTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.PollTimeout == 0 {
		o.PollTimeout = 60
	}
	if o.PollRetryDelay == 0 {
		o.PollRetryDelay = 3 * time.Second
	}
	if o.MaxPollErrors == 0 {
		o.MaxPollErrors = 10
	}
	if o.HealthInterval == 0 {
		o.HealthInterval = 3 * time.Minute
	}
	if o.HealthThreshold == 0 {
		o.HealthThreshold = 3
	}
	if o.StopTimeout == 0 {
		o.StopTimeout = 3 * time.Second
	}
	return o
}

// ErrorCategory labels entries in a runtime's error log.
type ErrorCategory string

const (
	CategoryPoll   ErrorCategory = "poll"
	CategoryHealth ErrorCategory = "health"
)

// ErrorEntry is one recorded failure of a live session.
type ErrorEntry struct {
	At       time.Time
	Category ErrorCategory
	Message  string
}

// maxErrorLog bounds the per-session error log; older entries fall off.
const maxErrorLog = 50

const registerKeyword = "register"

const (
	textWelcome      = "Welcome! Use the buttons below to browse the files."
	textDisconnected = "This bot is currently disconnected. Please try again later."
	textInvalidInput = "I didn't understand that. Use /start to open the menu."
	textRegistered   = "You are now registered as the owner of this bot."
)

// Runtime is one live bot session: a polling loop plus the event
// handlers behind it. Events of one runtime are handled serially; a
// failing event never takes the loop down with it.
type Runtime struct {
	id        string
	token     string
	channelID int64
	status    models.BotStatus
	tree      *models.Folder

	api      telegram.API
	store    storage.Storage
	renderer *nav.Renderer
	logger   *zap.Logger
	metrics  *metrics.Metrics
	opts     Options

	// onFatal fires when the poll failure threshold is exceeded, after
	// the loop has decided to exit.
	onFatal func(rt *Runtime, reason string)

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu         sync.Mutex
	ownerID    int64
	errLog     []ErrorEntry
	pollFails  int
	lastHealth time.Time
}

type runtimeDeps struct {
	store    storage.Storage
	renderer *nav.Renderer
	logger   *zap.Logger
	metrics  *metrics.Metrics
	opts     Options
	onFatal  func(rt *Runtime, reason string)
}

func newRuntime(bot *models.Bot, api telegram.API, deps runtimeDeps) *Runtime {
	tree := bot.Tree
	if tree == nil {
		tree = &models.Folder{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Runtime{
		id:        bot.ID,
		token:     bot.Token,
		channelID: bot.ChannelID,
		status:    bot.Status,
		tree:      tree,
		ownerID:   bot.OwnerID,
		api:       api,
		store:     deps.store,
		renderer:  deps.renderer,
		logger:    deps.logger.With(zap.String("bot_id", bot.ID)),
		metrics:   deps.metrics,
		opts:      deps.opts,
		onFatal:   deps.onFatal,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

func (r *Runtime) start() {
	go r.loop()
}

// Stop cancels the loop and waits up to StopTimeout for it to exit. A
// loop stuck in a hung platform call is abandoned with an error; the
// caller removes the registry entry either way.
func (r *Runtime) Stop() error {
	r.cancel()
	select {
	case <-r.done:
		return nil
	case <-time.After(r.opts.StopTimeout):
		return fmt.Errorf("session %s did not stop within %s", r.id, r.opts.StopTimeout)
	}
}

func (r *Runtime) ID() string               { return r.id }
func (r *Runtime) Status() models.BotStatus { return r.status }

func (r *Runtime) OwnerID() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ownerID
}

// Errors returns a copy of the error log, oldest first.
func (r *Runtime) Errors() []ErrorEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ErrorEntry, len(r.errLog))
	copy(out, r.errLog)
	return out
}

// LastHealth is the time of the last passed health check, zero if none
// passed yet.
func (r *Runtime) LastHealth() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastHealth
}

type pollResult struct {
	updates []tgbotapi.Update
	err     error
}

// loop is the session's single event pump. Polling happens in a child
// goroutine so that cancellation is not stuck behind a long poll; the
// child's result channel is buffered, letting an abandoned poll finish
// and get collected.
func (r *Runtime) loop() {
	defer close(r.done)

	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = r.opts.PollTimeout

	for {
		results := make(chan pollResult, 1)
		go func(c tgbotapi.UpdateConfig) {
			updates, err := r.api.GetUpdates(c)
			results <- pollResult{updates: updates, err: err}
		}(cfg)

		select {
		case <-r.ctx.Done():
			return
		case res := <-results:
			if res.err != nil {
				if r.ctx.Err() != nil {
					return
				}
				n := r.recordPollFailure(res.err)
				r.logger.Warn("update poll failed",
					zap.Int("failures", n),
					zap.Error(res.err))
				if n > r.opts.MaxPollErrors {
					r.logger.Error("poll failure threshold exceeded, stopping session",
						zap.Int("failures", n))
					if r.onFatal != nil {
						r.onFatal(r, res.err.Error())
					}
					return
				}
				select {
				case <-r.ctx.Done():
					return
				case <-time.After(r.opts.PollRetryDelay):
				}
				continue
			}
			for _, update := range res.updates {
				if update.UpdateID >= cfg.Offset {
					cfg.Offset = update.UpdateID + 1
				}
				r.handleUpdate(update)
			}
		}
	}
}

// handleUpdate dispatches one event behind a recover barrier, so a
// panicking handler costs one error log entry instead of the session.
func (r *Runtime) handleUpdate(update tgbotapi.Update) {
	defer func() {
		if rec := recover(); rec != nil {
			r.recordError(CategoryPoll, fmt.Sprintf("handler panic: %v", rec))
			r.logger.Error("recovered from handler panic", zap.Any("panic", rec))
		}
	}()

	switch {
	case update.CallbackQuery != nil:
		r.handleCallback(update.CallbackQuery)
	case update.Message != nil:
		r.handleMessage(update.Message)
	}
}

func (r *Runtime) handleMessage(msg *tgbotapi.Message) {
	if msg.From == nil || msg.Chat == nil {
		return
	}
	if msg.IsCommand() {
		if msg.Command() == "start" {
			r.metrics.EventsTotal.WithLabelValues("start").Inc()
			r.handleStart(msg)
		}
		return
	}
	r.metrics.EventsTotal.WithLabelValues("text").Inc()
	r.handleText(msg)
}

func (r *Runtime) handleStart(msg *tgbotapi.Message) {
	switch r.status {
	case models.StatusPending:
		// Stay silent for everyone but the operator, so pending bots
		// are indistinguishable from dead ones.
		if msg.From.ID != r.opts.OperatorID {
			return
		}
	case models.StatusDisconnected:
		r.send(msg.Chat.ID, textDisconnected)
		return
	case models.StatusBanned:
		return
	}

	r.send(msg.Chat.ID, textWelcome)
	if err := r.renderer.Render(r.api, msg.Chat.ID, r.channelID, r.tree, nil, 0); err != nil {
		r.logger.Warn("failed to render root menu",
			zap.Int64("chat_id", msg.Chat.ID),
			zap.Error(err))
	}
}

func (r *Runtime) handleText(msg *tgbotapi.Message) {
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}
	if strings.EqualFold(text, registerKeyword) && r.OwnerID() == 0 {
		r.bindOwner(msg.From.ID, msg.Chat.ID)
		return
	}
	r.send(msg.Chat.ID, textInvalidInput)
}

// bindOwner records the first user to claim the bot. The check and the
// write are under one lock, and events arrive serially anyway, so the
// first registrant wins.
func (r *Runtime) bindOwner(userID, chatID int64) {
	r.mu.Lock()
	if r.ownerID != 0 {
		r.mu.Unlock()
		r.send(chatID, textInvalidInput)
		return
	}
	r.ownerID = userID
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.store.SetBotOwner(ctx, r.id, userID); err != nil {
		r.logger.Error("failed to persist bot owner",
			zap.Int64("owner_id", userID),
			zap.Error(err))
	}
	r.send(chatID, textRegistered)
}

func (r *Runtime) handleCallback(query *tgbotapi.CallbackQuery) {
	r.metrics.EventsTotal.WithLabelValues("callback").Inc()

	// Acknowledge first: even a payload we cannot parse must clear the
	// client's loading state.
	if _, err := r.api.Request(tgbotapi.NewCallback(query.ID, "")); err != nil {
		r.logger.Debug("failed to answer callback", zap.Error(err))
	}
	if query.Message == nil || query.Message.Chat == nil {
		return
	}

	cb, err := nav.Decode(query.Data)
	if err != nil {
		r.logger.Debug("dropping malformed callback payload",
			zap.String("data", query.Data))
		return
	}

	chatID := query.Message.Chat.ID
	page := 0
	path := cb.Path
	switch cb.Action {
	case nav.ActionMain:
		path = nil
	case nav.ActionPage:
		page = cb.Page
	}
	if err := r.renderer.Render(r.api, chatID, r.channelID, r.tree, path, page); err != nil {
		r.logger.Warn("failed to render folder",
			zap.Int64("chat_id", chatID),
			zap.Strings("path", path),
			zap.Error(err))
	}
}

func (r *Runtime) send(chatID int64, text string) {
	if _, err := r.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		r.logger.Warn("failed to send message",
			zap.Int64("chat_id", chatID),
			zap.Error(err))
	}
}

func (r *Runtime) recordError(category ErrorCategory, message string) {
	r.metrics.SessionErrors.WithLabelValues(string(category)).Inc()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errLog = append(r.errLog, ErrorEntry{At: time.Now(), Category: category, Message: message})
	if len(r.errLog) > maxErrorLog {
		r.errLog = r.errLog[len(r.errLog)-maxErrorLog:]
	}
}

// recordPollFailure counts a raw transport failure of the poll stream
// itself. Single-event failures land in the error log but do not move
// this counter.
func (r *Runtime) recordPollFailure(err error) int {
	r.recordError(CategoryPoll, err.Error())
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pollFails++
	return r.pollFails
}

func (r *Runtime) recordHealthFailure(err error) int {
	r.recordError(CategoryHealth, err.Error())
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.errLog {
		if e.Category == CategoryHealth {
			n++
		}
	}
	return n
}

// markHealthy clears the error state after a passed health check.
func (r *Runtime) markHealthy() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errLog = nil
	r.pollFails = 0
	r.lastHealth = time.Now()
}
