package storage

import (
	"context"
	"errors"

	"github.com/nitpack/tgfilebotter2/internal/models"
)

var (
	// ErrBotNotFound is returned when no bot matches the given id or token.
	ErrBotNotFound = errors.New("storage: bot not found")
	// ErrDuplicateToken is returned when a bot with the same token already exists.
	ErrDuplicateToken = errors.New("storage: bot token already registered")
)

// Storage persists bot identity records. The session layer reads
// records at startup and on supervisor restarts; the admin API is the
// only writer apart from owner registration.
type Storage interface {
	CreateBot(ctx context.Context, bot *models.Bot) error
	GetBot(ctx context.Context, id string) (*models.Bot, error)
	GetBotByToken(ctx context.Context, token string) (*models.Bot, error)
	ListBots(ctx context.Context) ([]*models.Bot, error)
	UpdateBotStatus(ctx context.Context, id string, status models.BotStatus) error
	UpdateBotTree(ctx context.Context, id string, tree *models.Folder) error
	// SetBotOwner binds an owner to a bot that has none yet. Once an
	// owner is set, later calls are no-ops.
	SetBotOwner(ctx context.Context, id string, ownerID int64) error
	DeleteBot(ctx context.Context, id string) error
	Close() error
}
