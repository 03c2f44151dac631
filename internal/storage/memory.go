package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nitpack/tgfilebotter2/internal/models"
)

// MemoryStorage keeps bot records in process memory. It backs local
// development and tests; production uses PostgresStorage.
type MemoryStorage struct {
	mu      sync.RWMutex
	bots    map[string]*models.Bot
	byToken map[string]string
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		bots:    make(map[string]*models.Bot),
		byToken: make(map[string]string),
	}
}

func (s *MemoryStorage) CreateBot(ctx context.Context, bot *models.Bot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byToken[bot.Token]; exists {
		return ErrDuplicateToken
	}
	if _, exists := s.bots[bot.ID]; exists {
		return ErrDuplicateToken
	}

	now := time.Now()
	bot.CreatedAt = now
	bot.UpdatedAt = now

	stored := *bot
	s.bots[bot.ID] = &stored
	s.byToken[bot.Token] = bot.ID
	return nil
}

func (s *MemoryStorage) GetBot(ctx context.Context, id string) (*models.Bot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bot, exists := s.bots[id]
	if !exists {
		return nil, ErrBotNotFound
	}
	copied := *bot
	return &copied, nil
}

func (s *MemoryStorage) GetBotByToken(ctx context.Context, token string) (*models.Bot, error) {
	s.mu.RLock()
	id, exists := s.byToken[token]
	s.mu.RUnlock()
	if !exists {
		return nil, ErrBotNotFound
	}
	return s.GetBot(ctx, id)
}

func (s *MemoryStorage) ListBots(ctx context.Context) ([]*models.Bot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bots := make([]*models.Bot, 0, len(s.bots))
	for _, bot := range s.bots {
		copied := *bot
		bots = append(bots, &copied)
	}
	sort.Slice(bots, func(i, j int) bool {
		if bots[i].CreatedAt.Equal(bots[j].CreatedAt) {
			return bots[i].ID < bots[j].ID
		}
		return bots[i].CreatedAt.Before(bots[j].CreatedAt)
	})
	return bots, nil
}

func (s *MemoryStorage) UpdateBotStatus(ctx context.Context, id string, status models.BotStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bot, exists := s.bots[id]
	if !exists {
		return ErrBotNotFound
	}
	bot.Status = status
	bot.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStorage) UpdateBotTree(ctx context.Context, id string, tree *models.Folder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bot, exists := s.bots[id]
	if !exists {
		return ErrBotNotFound
	}
	bot.Tree = tree
	bot.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStorage) SetBotOwner(ctx context.Context, id string, ownerID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bot, exists := s.bots[id]
	if !exists {
		return ErrBotNotFound
	}
	if bot.OwnerID != 0 {
		return nil
	}
	bot.OwnerID = ownerID
	bot.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStorage) DeleteBot(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bot, exists := s.bots[id]
	if !exists {
		return ErrBotNotFound
	}
	delete(s.byToken, bot.Token)
	delete(s.bots, id)
	return nil
}

func (s *MemoryStorage) Close() error {
	return nil
}
