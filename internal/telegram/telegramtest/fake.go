// Package telegramtest provides a scripted telegram.API implementation
// for tests: pushed update batches, recorded outbound traffic, and
// injectable failures.
package telegramtest

import (
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Fake is a scripted telegram.API. All methods are safe for concurrent
// use; zero-value behavior is a healthy bot with no pending updates.
type Fake struct {
	mu         sync.Mutex
	user       tgbotapi.User
	getMeErr   error
	getMeCalls int
	pollErr    error
	sendErr    error
	forwardErr error
	panicSend  bool
	blockSend  chan struct{}
	sent       []tgbotapi.Chattable
	requests   []tgbotapi.Chattable

	updates chan []tgbotapi.Update
}

func NewFake() *Fake {
	return &Fake{
		user:    tgbotapi.User{ID: 1, IsBot: true, UserName: "fake_bot"},
		updates: make(chan []tgbotapi.Update, 16),
	}
}

// Push queues one batch of updates for the next poll.
func (f *Fake) Push(updates ...tgbotapi.Update) {
	f.updates <- updates
}

// SetGetMeErr makes subsequent health checks fail with err (nil restores).
func (f *Fake) SetGetMeErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getMeErr = err
}

// SetPollErr makes subsequent GetUpdates calls fail with err (nil restores).
func (f *Fake) SetPollErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pollErr = err
}

// SetSendErr makes every Send fail with err.
func (f *Fake) SetSendErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendErr = err
}

// SetForwardErr makes only forward sends fail with err; plain messages
// still go through.
func (f *Fake) SetForwardErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forwardErr = err
}

// PanicOnSend makes every Send panic, for handler isolation tests.
func (f *Fake) PanicOnSend() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.panicSend = true
}

// BlockSends makes every Send block until the returned release func is
// called, simulating a hung connection.
func (f *Fake) BlockSends() (release func()) {
	ch := make(chan struct{})
	f.mu.Lock()
	f.blockSend = ch
	f.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

func (f *Fake) GetMe() (tgbotapi.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getMeCalls++
	if f.getMeErr != nil {
		return tgbotapi.User{}, f.getMeErr
	}
	return f.user, nil
}

// GetMeCalls reports how many health checks the fake has served.
func (f *Fake) GetMeCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.getMeCalls
}

func (f *Fake) GetUpdates(tgbotapi.UpdateConfig) ([]tgbotapi.Update, error) {
	f.mu.Lock()
	err := f.pollErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	select {
	case batch := <-f.updates:
		return batch, nil
	case <-time.After(5 * time.Millisecond):
		return nil, nil
	}
}

func (f *Fake) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	block := f.blockSend
	f.mu.Unlock()
	if block != nil {
		<-block
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panicSend {
		panic("telegramtest: send exploded")
	}
	if f.sendErr != nil {
		return tgbotapi.Message{}, f.sendErr
	}
	if _, isForward := c.(tgbotapi.ForwardConfig); isForward && f.forwardErr != nil {
		return tgbotapi.Message{}, f.forwardErr
	}
	f.sent = append(f.sent, c)
	return tgbotapi.Message{MessageID: len(f.sent)}, nil
}

func (f *Fake) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

// Sent returns a snapshot of everything passed to Send, in order.
func (f *Fake) Sent() []tgbotapi.Chattable {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]tgbotapi.Chattable, len(f.sent))
	copy(out, f.sent)
	return out
}

// Messages returns the plain text messages sent so far.
func (f *Fake) Messages() []tgbotapi.MessageConfig {
	var out []tgbotapi.MessageConfig
	for _, c := range f.Sent() {
		if m, ok := c.(tgbotapi.MessageConfig); ok {
			out = append(out, m)
		}
	}
	return out
}

// Forwards returns the forwards sent so far.
func (f *Fake) Forwards() []tgbotapi.ForwardConfig {
	var out []tgbotapi.ForwardConfig
	for _, c := range f.Sent() {
		if fw, ok := c.(tgbotapi.ForwardConfig); ok {
			out = append(out, fw)
		}
	}
	return out
}

// Requests returns a snapshot of everything passed to Request.
func (f *Fake) Requests() []tgbotapi.Chattable {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]tgbotapi.Chattable, len(f.requests))
	copy(out, f.requests)
	return out
}
