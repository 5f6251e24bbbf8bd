package repository

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"adminpanel/api/internal/config"
	"adminpanel/api/internal/session"
)

// NewSessionStore returns the session backend named by cfg.Store. Policies
// always come from postgres regardless of the session backend.
func NewSessionStore(cfg config.SessionConfig, pool *pgxpool.Pool, client redis.UniversalClient) (session.Store, error) {
	switch cfg.Store {
	case "", "postgres":
		if pool == nil {
			return nil, errors.New("postgres session store needs a database pool")
		}
		return NewSessionRepository(pool), nil
	case "redis":
		if client == nil {
			return nil, errors.New("redis session store needs a redis client")
		}
		return NewRedisSessionStore(client, cfg.RedisPrefix), nil
	default:
		return nil, fmt.Errorf("unknown session store %q", cfg.Store)
	}
}
