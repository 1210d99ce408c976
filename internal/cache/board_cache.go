package cache

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	dom "taskboard/internal/domain"

	"github.com/redis/go-redis/v9"
)

const (
	keyTasks      = "board:tasks:"      // board:tasks:<userID>
	keyOverdue    = "board:overdue:"    // board:overdue:<userID>
	keySearch     = "board:search:"     // board:search:<userID>:<query>
	keyCategories = "board:categories:" // board:categories:<userID>
)

// BoardCache caches per-user task and category lists in Redis. Every write
// in the service layer invalidates the owning user's keys, so a cached list
// is never older than the last mutation.
type BoardCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewBoardCache returns a new BoardCache.
func NewBoardCache(rdb *redis.Client, ttl time.Duration) *BoardCache {
	return &BoardCache{rdb: rdb, ttl: ttl}
}

func uid(userID int64) string { return strconv.FormatInt(userID, 10) }

func (c *BoardCache) getTasks(ctx context.Context, key string) ([]dom.Task, error) {
	b, err := c.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var list []dom.Task
	if err := json.Unmarshal(b, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (c *BoardCache) setTasks(ctx context.Context, key string, list []dom.Task) error {
	b, err := json.Marshal(list)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, b, c.ttl).Err()
}

// GetTasks returns the cached board or nil on miss.
func (c *BoardCache) GetTasks(ctx context.Context, userID int64) ([]dom.Task, error) {
	return c.getTasks(ctx, keyTasks+uid(userID))
}

// SetTasks stores the user's board.
func (c *BoardCache) SetTasks(ctx context.Context, userID int64, list []dom.Task) error {
	return c.setTasks(ctx, keyTasks+uid(userID), list)
}

// GetSearch returns the cached search result for query q, or nil on miss.
func (c *BoardCache) GetSearch(ctx context.Context, userID int64, q string) ([]dom.Task, error) {
	return c.getTasks(ctx, keySearch+uid(userID)+":"+normalizeQuery(q))
}

// SetSearch stores a search result.
func (c *BoardCache) SetSearch(ctx context.Context, userID int64, q string, list []dom.Task) error {
	return c.setTasks(ctx, keySearch+uid(userID)+":"+normalizeQuery(q), list)
}

// GetOverdue returns the cached overdue list or nil on miss.
func (c *BoardCache) GetOverdue(ctx context.Context, userID int64) ([]dom.Task, error) {
	return c.getTasks(ctx, keyOverdue+uid(userID))
}

// SetOverdue stores the overdue list.
func (c *BoardCache) SetOverdue(ctx context.Context, userID int64, list []dom.Task) error {
	return c.setTasks(ctx, keyOverdue+uid(userID), list)
}

// GetCategories returns the cached category list or nil on miss.
func (c *BoardCache) GetCategories(ctx context.Context, userID int64) ([]dom.Category, error) {
	b, err := c.rdb.Get(ctx, keyCategories+uid(userID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var list []dom.Category
	if err := json.Unmarshal(b, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// SetCategories stores the category list.
func (c *BoardCache) SetCategories(ctx context.Context, userID int64, list []dom.Category) error {
	b, err := json.Marshal(list)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, keyCategories+uid(userID), b, c.ttl).Err()
}

// InvalidateTasks removes the user's board, overdue and search keys.
func (c *BoardCache) InvalidateTasks(ctx context.Context, userID int64) error {
	u := uid(userID)
	if err := c.rdb.Del(ctx, keyTasks+u, keyOverdue+u).Err(); err != nil {
		return err
	}
	iter := c.rdb.Scan(ctx, 0, keySearch+u+":*", 100).Iterator()
	for iter.Next(ctx) {
		if err := c.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

// InvalidateCategories removes the user's category list.
func (c *BoardCache) InvalidateCategories(ctx context.Context, userID int64) error {
	return c.rdb.Del(ctx, keyCategories+uid(userID)).Err()
}

func normalizeQuery(q string) string {
	return strings.TrimSpace(strings.ToLower(q))
}
