package telegram

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// API is the slice of the Bot API surface the service depends on.
// *tgbotapi.BotAPI satisfies it; tests substitute scripted fakes.
type API interface {
	GetMe() (tgbotapi.User, error)
	GetUpdates(config tgbotapi.UpdateConfig) ([]tgbotapi.Update, error)
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Connector opens an API connection for a bot token. Connecting must
// verify the credential with one identity call so that a dead token is
// rejected before any session is registered for it.
type Connector func(token string) (API, error)

// Connect dials the real Bot API. tgbotapi.NewBotAPI performs a getMe
// round trip, which is exactly the liveness check registration needs.
func Connect(token string) (API, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return bot, nil
}
