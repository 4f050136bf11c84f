// Package directory reads the task-board tables the main API owns: users,
// boards and board membership. The notifier only ever reads them, through
// the narrow lookups the pipeline needs.
package directory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mondaylite/notifier/internal/cache"
	"github.com/mondaylite/notifier/internal/eligibility"
)

var ErrNotFound = errors.New("directory: not found")

const lookupTTL = time.Minute

const boardMembersSQL = `
SELECT bm.user_id, u.last_seen_at
FROM boardmembers bm
JOIN users u ON u.id = bm.user_id
WHERE bm.board_id = $1
ORDER BY bm.user_id
`

const boardSQL = `
SELECT id, name FROM boards WHERE id = $1
`

const userSQL = `
SELECT id, first_name, last_name, email FROM users WHERE id = $1
`

type Board struct {
	ID   string
	Name string
}

type User struct {
	ID        string
	FirstName string
	LastName  string
	Email     string
}

// Directory is the pgx-backed implementation of the pipeline's relational
// collaborators. Board and user lookups go through a short-lived cache;
// membership is always read fresh because suppression depends on current
// last-seen timestamps.
type Directory struct {
	pool  *pgxpool.Pool
	cache cache.Cacher
}

func New(pool *pgxpool.Pool, cacher cache.Cacher) *Directory {
	return &Directory{pool: pool, cache: cacher}
}

// BoardMembers implements eligibility.MemberSource.
func (d *Directory) BoardMembers(ctx context.Context, boardID string) ([]eligibility.Member, error) {
	rows, err := d.pool.Query(ctx, boardMembersSQL, boardID)
	if err != nil {
		return nil, fmt.Errorf("board members %s: %w", boardID, err)
	}
	defer rows.Close()

	var members []eligibility.Member
	for rows.Next() {
		var m eligibility.Member
		if err := rows.Scan(&m.UserID, &m.LastSeenAt); err != nil {
			return nil, fmt.Errorf("board members %s: %w", boardID, err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("board members %s: %w", boardID, err)
	}
	return members, nil
}

func (d *Directory) Board(ctx context.Context, boardID string) (Board, error) {
	return cache.Fetch(ctx, d.cache, cache.KeyBoard(boardID), lookupTTL, func() (Board, error) {
		var b Board
		err := d.pool.QueryRow(ctx, boardSQL, boardID).Scan(&b.ID, &b.Name)
		if errors.Is(err, pgx.ErrNoRows) {
			return Board{}, fmt.Errorf("board %s: %w", boardID, ErrNotFound)
		}
		if err != nil {
			return Board{}, fmt.Errorf("board %s: %w", boardID, err)
		}
		return b, nil
	})
}

func (d *Directory) User(ctx context.Context, userID string) (User, error) {
	return cache.Fetch(ctx, d.cache, cache.KeyUser(userID), lookupTTL, func() (User, error) {
		var u User
		err := d.pool.QueryRow(ctx, userSQL, userID).Scan(&u.ID, &u.FirstName, &u.LastName, &u.Email)
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, fmt.Errorf("user %s: %w", userID, ErrNotFound)
		}
		if err != nil {
			return User{}, fmt.Errorf("user %s: %w", userID, err)
		}
		return u, nil
	})
}

// NewPool opens the Postgres pool used by the directory and the notification
// store.
func NewPool(ctx context.Context, dataSource string, maxConns int, maxLifetime time.Duration) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dataSource)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = int32(maxConns)
	}
	if maxLifetime > 0 {
		cfg.MaxConnLifetime = maxLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return pool, nil
}
