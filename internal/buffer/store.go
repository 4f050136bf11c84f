package buffer

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store is a thin client over redis for the activity buffer: per-group event
// lists plus the notif:due sorted set the worker polls.
//
// Multi-key mutations (append + due registration, due removal + list delete)
// go through one MULTI/EXEC pipeline so a group is never observable with data
// but no due entry. The reverse (due entry, no data) is tolerated: the worker
// treats it as an empty drain.
type Store struct {
	client *redis.Client
}

func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

// NewClient dials redis for the buffer store.
func NewClient(ctx context.Context, addr, password string, poolSize, minIdle int, maxIdleTime, maxLifetime time.Duration) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:            addr,
		Password:        password,
		DialTimeout:     5 * time.Second,
		ReadTimeout:     3 * time.Second,
		WriteTimeout:    3 * time.Second,
		PoolSize:        poolSize,
		MinIdleConns:    minIdle,
		ConnMaxIdleTime: maxIdleTime,
		ConnMaxLifetime: maxLifetime,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// Append buffers the serialized events for every group in one atomic batch.
// The due timestamp is registered with NX semantics: it is set when the group
// is first created and never pushed out by later activity, so a burst of
// edits cannot postpone the digest indefinitely.
func (s *Store) Append(ctx context.Context, groups []GroupKey, payloads []string, dueAt time.Time) error {
	if len(groups) == 0 || len(payloads) == 0 {
		return nil
	}
	members := make([]interface{}, len(payloads))
	for i, p := range payloads {
		members[i] = p
	}
	dueMs := float64(dueAt.UnixMilli())

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, g := range groups {
			gk := g.String()
			pipe.RPush(ctx, gk, members...)
			pipe.ZAddNX(ctx, dueIndexKey, redis.Z{Score: dueMs, Member: gk})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("buffer append: %w", err)
	}
	return nil
}

// Due returns the keys of every group whose due timestamp is at or before
// now, oldest first.
func (s *Store) Due(ctx context.Context, now time.Time) ([]string, error) {
	keys, err := s.client.ZRangeByScore(ctx, dueIndexKey, &redis.ZRangeBy{
		Min: "0",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("due scan: %w", err)
	}
	return keys, nil
}

// Events reads the full buffered list for a group. An empty result is
// legitimate: a previous drain may have deleted the list already.
func (s *Store) Events(ctx context.Context, groupKey string) ([]string, error) {
	raw, err := s.client.LRange(ctx, groupKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read group %s: %w", groupKey, err)
	}
	return raw, nil
}

// Remove drops a group: due entry and event list go together in one batch.
func (s *Store) Remove(ctx context.Context, groupKey string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, dueIndexKey, groupKey)
		pipe.Del(ctx, groupKey)
		return nil
	})
	if err != nil {
		return fmt.Errorf("remove group %s: %w", groupKey, err)
	}
	return nil
}

// PendingGroups counts the groups currently registered in the due index.
func (s *Store) PendingGroups(ctx context.Context) (int64, error) {
	n, err := s.client.ZCard(ctx, dueIndexKey).Result()
	if err != nil {
		return 0, fmt.Errorf("pending groups: %w", err)
	}
	return n, nil
}

// ReadyGroups counts the groups already past their due timestamp.
func (s *Store) ReadyGroups(ctx context.Context, now time.Time) (int64, error) {
	n, err := s.client.ZCount(ctx, dueIndexKey, "0", strconv.FormatInt(now.UnixMilli(), 10)).Result()
	if err != nil {
		return 0, fmt.Errorf("ready groups: %w", err)
	}
	return n, nil
}

// ReconcileStats reports what a reconcile pass changed.
type ReconcileStats struct {
	DroppedDueEntries int
	ReindexedGroups   int
}

// Reconcile repairs drift between the due index and the group lists: due
// entries whose list is gone are dropped, and lists that lost their due
// entry are re-registered window from now so they eventually drain.
func (s *Store) Reconcile(ctx context.Context, now time.Time, window time.Duration) (ReconcileStats, error) {
	var stats ReconcileStats

	members, err := s.client.ZRange(ctx, dueIndexKey, 0, -1).Result()
	if err != nil {
		return stats, fmt.Errorf("reconcile: due index read: %w", err)
	}
	indexed := make(map[string]struct{}, len(members))
	for _, m := range members {
		indexed[m] = struct{}{}
		exists, err := s.client.Exists(ctx, m).Result()
		if err != nil {
			return stats, fmt.Errorf("reconcile: exists %s: %w", m, err)
		}
		if exists == 0 {
			if err := s.client.ZRem(ctx, dueIndexKey, m).Err(); err != nil {
				return stats, fmt.Errorf("reconcile: zrem %s: %w", m, err)
			}
			stats.DroppedDueEntries++
		}
	}

	dueMs := float64(now.Add(window).UnixMilli())
	iter := s.client.Scan(ctx, 0, groupKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		if key == dueIndexKey {
			continue
		}
		if _, ok := indexed[key]; ok {
			continue
		}
		if _, err := ParseGroupKey(key); err != nil {
			continue
		}
		if err := s.client.ZAddNX(ctx, dueIndexKey, redis.Z{Score: dueMs, Member: key}).Err(); err != nil {
			return stats, fmt.Errorf("reconcile: reindex %s: %w", key, err)
		}
		stats.ReindexedGroups++
	}
	if err := iter.Err(); err != nil {
		return stats, fmt.Errorf("reconcile: scan: %w", err)
	}

	return stats, nil
}
