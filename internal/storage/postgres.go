package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	retry "github.com/avast/retry-go/v5"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/nitpack/tgfilebotter2/internal/models"
)

//go:embed migrations.sql
var migrations embed.FS

type DatabaseConfig struct {
	Host        string
	Port        int
	User        string
	Password    string
	DBName      string
	SSLMode     string
	UseInMemory bool
}

type PostgresStorage struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresStorage opens the database, waits for it to become
// reachable, and applies the schema. The retry loop covers the usual
// case of the database container starting alongside the service.
func NewPostgresStorage(ctx context.Context, config DatabaseConfig, logger *zap.Logger) (*PostgresStorage, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.DBName, config.SSLMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	r := retry.New(
		retry.Context(ctx),
		retry.Attempts(5),
		retry.DelayType(func(n uint, err error, config retry.DelayContext) time.Duration {
			logger.Warn("database not reachable yet, retrying",
				zap.Uint("attempt", n+1),
				zap.Error(err))
			return retry.BackOffDelay(n, err, config)
		}),
	)
	if err := r.Do(func() error { return db.PingContext(ctx) }); err != nil {
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}

	storage := &PostgresStorage{db: db, logger: logger}

	if err := storage.initializeSchema(ctx); err != nil {
		return nil, fmt.Errorf("error initializing database schema: %w", err)
	}

	return storage, nil
}

func (s *PostgresStorage) initializeSchema(ctx context.Context) error {
	migrationSQL, err := migrations.ReadFile("migrations.sql")
	if err != nil {
		return fmt.Errorf("error reading migrations file: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, string(migrationSQL)); err != nil {
		return fmt.Errorf("error executing migrations: %w", err)
	}

	return nil
}

func (s *PostgresStorage) CreateBot(ctx context.Context, bot *models.Bot) error {
	tree, err := marshalTree(bot.Tree)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO bots (id, token, channel_id, owner_id, status, tree)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`

	err = s.db.QueryRowContext(
		ctx,
		query,
		bot.ID,
		bot.Token,
		bot.ChannelID,
		nullOwner(bot.OwnerID),
		string(bot.Status),
		tree,
	).Scan(&bot.CreatedAt, &bot.UpdatedAt)

	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicateToken
		}
		return fmt.Errorf("error creating bot: %w", err)
	}

	return nil
}

const botColumns = `id, token, channel_id, owner_id, status, tree, created_at, updated_at`

func (s *PostgresStorage) GetBot(ctx context.Context, id string) (*models.Bot, error) {
	query := `SELECT ` + botColumns + ` FROM bots WHERE id = $1`
	return scanBot(s.db.QueryRowContext(ctx, query, id))
}

func (s *PostgresStorage) GetBotByToken(ctx context.Context, token string) (*models.Bot, error) {
	query := `SELECT ` + botColumns + ` FROM bots WHERE token = $1`
	return scanBot(s.db.QueryRowContext(ctx, query, token))
}

func (s *PostgresStorage) ListBots(ctx context.Context) ([]*models.Bot, error) {
	query := `SELECT ` + botColumns + ` FROM bots ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error querying bots: %w", err)
	}
	defer rows.Close()

	var bots []*models.Bot
	for rows.Next() {
		bot, err := scanBot(rows)
		if err != nil {
			return nil, err
		}
		bots = append(bots, bot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bots: %w", err)
	}

	return bots, nil
}

func (s *PostgresStorage) UpdateBotStatus(ctx context.Context, id string, status models.BotStatus) error {
	query := `
		UPDATE bots
		SET status = $1, updated_at = NOW()
		WHERE id = $2`

	return s.execExpectingBot(ctx, query, string(status), id)
}

func (s *PostgresStorage) UpdateBotTree(ctx context.Context, id string, tree *models.Folder) error {
	data, err := marshalTree(tree)
	if err != nil {
		return err
	}

	query := `
		UPDATE bots
		SET tree = $1, updated_at = NOW()
		WHERE id = $2`

	return s.execExpectingBot(ctx, query, data, id)
}

func (s *PostgresStorage) SetBotOwner(ctx context.Context, id string, ownerID int64) error {
	query := `
		UPDATE bots
		SET owner_id = $1, updated_at = NOW()
		WHERE id = $2 AND owner_id IS NULL`

	result, err := s.db.ExecContext(ctx, query, ownerID, id)
	if err != nil {
		return fmt.Errorf("error setting bot owner: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		// Either the bot is gone or the owner is already bound; only
		// the former is an error.
		if _, err := s.GetBot(ctx, id); err != nil {
			return err
		}
	}

	return nil
}

func (s *PostgresStorage) DeleteBot(ctx context.Context, id string) error {
	return s.execExpectingBot(ctx, `DELETE FROM bots WHERE id = $1`, id)
}

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}

func (s *PostgresStorage) execExpectingBot(ctx context.Context, query string, args ...interface{}) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("error updating bot: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrBotNotFound
	}

	return nil
}

// nullOwner maps the zero owner id to NULL, so the first-claim update
// in SetBotOwner can match unclaimed rows with owner_id IS NULL.
func nullOwner(ownerID int64) sql.NullInt64 {
	return sql.NullInt64{Int64: ownerID, Valid: ownerID != 0}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBot(row rowScanner) (*models.Bot, error) {
	bot := &models.Bot{}
	var (
		owner sql.NullInt64
		tree  []byte
	)

	err := row.Scan(
		&bot.ID,
		&bot.Token,
		&bot.ChannelID,
		&owner,
		&bot.Status,
		&tree,
		&bot.CreatedAt,
		&bot.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBotNotFound
		}
		return nil, fmt.Errorf("error scanning bot: %w", err)
	}

	if owner.Valid {
		bot.OwnerID = owner.Int64
	}
	if len(tree) > 0 {
		bot.Tree = &models.Folder{}
		if err := json.Unmarshal(tree, bot.Tree); err != nil {
			return nil, fmt.Errorf("error decoding bot tree: %w", err)
		}
	}

	return bot, nil
}

func marshalTree(tree *models.Folder) ([]byte, error) {
	if tree == nil {
		tree = &models.Folder{}
	}
	data, err := json.Marshal(tree)
	if err != nil {
		return nil, fmt.Errorf("error encoding bot tree: %w", err)
	}
	return data, nil
}
