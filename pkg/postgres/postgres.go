package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Config struct {
	URL             string `split_words:"true" required:"true"`
	MaxConns        int32  `split_words:"true" default:"10"`
	MinConns        int32  `split_words:"true" default:"1"`
	ConnMaxLifetime int    `split_words:"true" default:"3600"`
	ConnectTimeout  int    `split_words:"true" default:"5"`
}

// New builds a pgx pool from the URL, applies pool limits and verifies the
// connection with a ping before handing the pool back.
func (c *Config) New(ctx context.Context) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(c.URL)
	if err != nil {
		return nil, err
	}

	if c.MaxConns > 0 {
		cfg.MaxConns = c.MaxConns
	}
	if c.MinConns > 0 {
		cfg.MinConns = c.MinConns
	}
	cfg.MaxConnLifetime = time.Duration(c.ConnMaxLifetime) * time.Second
	cfg.ConnConfig.ConnectTimeout = time.Duration(c.ConnectTimeout) * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return pool, nil
}
