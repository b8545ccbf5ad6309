package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/Rat-cell/lockerhub/internal/config"
)

func NewDb(ctx context.Context, cfg config.DBConfig) (*Database, error) {
	pool, err := pgxpool.Connect(ctx, generateDsn(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return NewDatabase(pool), nil
}

func generateDsn(cfg config.DBConfig) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name)
}
