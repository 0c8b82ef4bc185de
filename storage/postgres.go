package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const createUsersSQL = `
    CREATE TABLE IF NOT EXISTS users (
        telegram_id    BIGINT PRIMARY KEY,
        location       JSONB,
        weather_metric TEXT NOT NULL DEFAULT 'celsius',
        created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
    )
`

type PostgresStorage struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

// NewPostgresStorage connects a pgx pool and makes sure the users table exists.
func NewPostgresStorage(databaseURL string, log *slog.Logger) (*PostgresStorage, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, createUsersSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating users table: %w", err)
	}

	return &PostgresStorage{pool: pool, log: log}, nil
}

func (p *PostgresStorage) GetOrCreate(ctx context.Context, chatID int64) (*User, error) {
	const q = `
        INSERT INTO users (telegram_id) VALUES ($1)
        ON CONFLICT (telegram_id) DO UPDATE SET telegram_id = EXCLUDED.telegram_id
        RETURNING telegram_id, location, weather_metric, created_at
    `
	var (
		user    User
		rawLoc  []byte
		rawUnit string
	)
	err := p.pool.QueryRow(ctx, q, chatID).Scan(&user.ChatID, &rawLoc, &rawUnit, &user.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("upserting user: %w", err)
	}
	user.Unit = Unit(rawUnit)
	if len(rawLoc) > 0 {
		var loc Location
		if err := json.Unmarshal(rawLoc, &loc); err != nil {
			return nil, fmt.Errorf("decoding location: %w", err)
		}
		user.Location = &loc
	}
	return &user, nil
}

func (p *PostgresStorage) SavedLocation(ctx context.Context, chatID int64) (*Location, error) {
	const q = `SELECT location FROM users WHERE telegram_id = $1`

	var raw []byte
	err := p.pool.QueryRow(ctx, q, chatID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("selecting location: %w", err)
	}
	if len(raw) == 0 {
		return nil, nil
	}
	var loc Location
	if err := json.Unmarshal(raw, &loc); err != nil {
		return nil, fmt.Errorf("decoding location: %w", err)
	}
	return &loc, nil
}

func (p *PostgresStorage) SetSavedLocation(ctx context.Context, chatID int64, loc Location) error {
	raw, err := json.Marshal(loc)
	if err != nil {
		return fmt.Errorf("encoding location: %w", err)
	}
	const q = `
        INSERT INTO users (telegram_id, location) VALUES ($1, $2)
        ON CONFLICT (telegram_id) DO UPDATE SET location = EXCLUDED.location
    `
	if _, err := p.pool.Exec(ctx, q, chatID, raw); err != nil {
		return fmt.Errorf("saving location: %w", err)
	}
	return nil
}

func (p *PostgresStorage) Unit(ctx context.Context, chatID int64) (Unit, error) {
	const q = `SELECT weather_metric FROM users WHERE telegram_id = $1`

	var raw string
	err := p.pool.QueryRow(ctx, q, chatID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return UnitCelsius, nil
	}
	if err != nil {
		return "", fmt.Errorf("selecting unit: %w", err)
	}
	return Unit(raw), nil
}

func (p *PostgresStorage) ToggleUnit(ctx context.Context, chatID int64) (Unit, error) {
	const q = `
        INSERT INTO users (telegram_id, weather_metric) VALUES ($1, 'fahrenheit')
        ON CONFLICT (telegram_id) DO UPDATE SET weather_metric =
            CASE WHEN users.weather_metric = 'celsius' THEN 'fahrenheit' ELSE 'celsius' END
        RETURNING weather_metric
    `
	var raw string
	if err := p.pool.QueryRow(ctx, q, chatID).Scan(&raw); err != nil {
		return "", fmt.Errorf("toggling unit: %w", err)
	}
	return Unit(raw), nil
}

func (p *PostgresStorage) Close() error {
	p.pool.Close()
	return nil
}
