package storage

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"weekplan/domain"
	"weekplan/week"
)

// Cache wraps a Backend with Redis-backed caching for reads. Only task ranges
// covering exactly one week are cached; writes evict the weeks they touch.
type Cache struct {
	base        Backend
	redis       *redis.Client
	tasksTTL    time.Duration
	settingsTTL time.Duration
}

// NewCache creates a caching wrapper. tasksTTL applies to task lists, notes
// and summaries; settingsTTL to week settings.
func NewCache(base Backend, client *redis.Client, tasksTTL, settingsTTL time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if tasksTTL < 0 {
		tasksTTL = 0
	}
	if settingsTTL < 0 {
		settingsTTL = 0
	}
	return &Cache{base: base, redis: client, tasksTTL: tasksTTL, settingsTTL: settingsTTL}
}

func tasksCacheKey(userID, weekID string) string    { return userID + ":tasks:" + weekID }
func noteCacheKey(userID, weekID string) string     { return userID + ":note:" + weekID }
func summaryCacheKey(userID, weekID string) string  { return userID + ":summary:" + weekID }
func settingsCacheKey(userID, weekID string) string { return userID + ":settings:" + weekID }

// weekOfRange returns the week id when start..end is exactly one week.
func weekOfRange(start, end string) (string, bool) {
	w, err := week.OfDate(start)
	if err != nil || w.StartDate() != start || w.EndDate() != end {
		return "", false
	}
	return w.ID, true
}

func (c *Cache) load(ctx context.Context, key string, dst any) bool {
	if c.redis == nil {
		return false
	}
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, key).Err()
		}
		return false
	}
	if err := sonic.Unmarshal(data, dst); err != nil {
		_ = c.redis.Del(ctx, key).Err()
		return false
	}
	return true
}

func (c *Cache) store(ctx context.Context, key string, v any, ttl time.Duration) {
	if c.redis == nil || ttl == 0 {
		return
	}
	data, err := sonic.Marshal(v)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, key, data, ttl).Err(); err != nil {
		log.WithError(err).WithField("key", key).Debug("cache store failed")
	}
}

func (c *Cache) evict(ctx context.Context, keys ...string) {
	if c.redis == nil || len(keys) == 0 {
		return
	}
	if err := c.redis.Del(ctx, keys...).Err(); err != nil {
		log.WithError(err).Warn("cache eviction failed")
	}
}

// evictTaskWeeks drops the cached lists of the weeks holding the given dates.
func (c *Cache) evictTaskWeeks(ctx context.Context, userID string, dates ...string) {
	keys := make([]string, 0, len(dates))
	seen := make(map[string]bool, len(dates))
	for _, d := range dates {
		w, err := week.OfDate(d)
		if err != nil || seen[w.ID] {
			continue
		}
		seen[w.ID] = true
		keys = append(keys, tasksCacheKey(userID, w.ID))
	}
	c.evict(ctx, keys...)
}

func (c *Cache) TasksInRange(ctx context.Context, userID, startDate, endDate string) ([]domain.Task, error) {
	weekID, cacheable := weekOfRange(startDate, endDate)
	if cacheable {
		var tasks []domain.Task
		if c.load(ctx, tasksCacheKey(userID, weekID), &tasks) {
			return tasks, nil
		}
	}
	tasks, err := c.base.TasksInRange(ctx, userID, startDate, endDate)
	if err != nil {
		return nil, err
	}
	if cacheable {
		c.store(ctx, tasksCacheKey(userID, weekID), tasks, c.tasksTTL)
	}
	return tasks, nil
}

func (c *Cache) CreateTask(ctx context.Context, userID string, n domain.NewTask) (domain.Task, error) {
	t, err := c.base.CreateTask(ctx, userID, n)
	if err != nil {
		return domain.Task{}, err
	}
	c.evictTaskWeeks(ctx, userID, t.Date)
	return t, nil
}

// UpdateTask evicts both the source and destination week of a move.
func (c *Cache) UpdateTask(ctx context.Context, userID string, id int64, p domain.TaskPatch) (TaskChange, error) {
	ch, err := c.base.UpdateTask(ctx, userID, id, p)
	if err != nil {
		return TaskChange{}, err
	}
	c.evictTaskWeeks(ctx, userID, ch.Before.Date, ch.After.Date)
	return ch, nil
}

func (c *Cache) DeleteTask(ctx context.Context, userID string, id int64) (domain.Task, error) {
	t, err := c.base.DeleteTask(ctx, userID, id)
	if err != nil {
		return domain.Task{}, err
	}
	c.evictTaskWeeks(ctx, userID, t.Date)
	return t, nil
}

func (c *Cache) Note(ctx context.Context, userID, weekID string) (*domain.Note, error) {
	var n *domain.Note
	if c.load(ctx, noteCacheKey(userID, weekID), &n) {
		return n, nil
	}
	n, err := c.base.Note(ctx, userID, weekID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, noteCacheKey(userID, weekID), n, c.tasksTTL)
	return n, nil
}

func (c *Cache) UpsertNote(ctx context.Context, userID, weekID, content string) (domain.Note, error) {
	n, err := c.base.UpsertNote(ctx, userID, weekID, content)
	if err != nil {
		return domain.Note{}, err
	}
	c.evict(ctx, noteCacheKey(userID, weekID))
	return n, nil
}

func (c *Cache) Summary(ctx context.Context, userID, weekID string) (*domain.WeeklySummary, error) {
	var s *domain.WeeklySummary
	if c.load(ctx, summaryCacheKey(userID, weekID), &s) {
		return s, nil
	}
	s, err := c.base.Summary(ctx, userID, weekID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, summaryCacheKey(userID, weekID), s, c.tasksTTL)
	return s, nil
}

func (c *Cache) UpsertSummary(ctx context.Context, userID, weekID string, p domain.SummaryPatch) (domain.WeeklySummary, error) {
	s, err := c.base.UpsertSummary(ctx, userID, weekID, p)
	if err != nil {
		return domain.WeeklySummary{}, err
	}
	c.evict(ctx, summaryCacheKey(userID, weekID))
	return s, nil
}

func (c *Cache) WeekSettings(ctx context.Context, userID, weekID string) (*domain.WeekSettings, error) {
	var s *domain.WeekSettings
	if c.load(ctx, settingsCacheKey(userID, weekID), &s) {
		return s, nil
	}
	s, err := c.base.WeekSettings(ctx, userID, weekID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, settingsCacheKey(userID, weekID), s, c.settingsTTL)
	return s, nil
}

func (c *Cache) UpdateWeekSettings(ctx context.Context, userID, weekID string, p domain.SettingsPatch) (domain.WeekSettings, error) {
	s, err := c.base.UpdateWeekSettings(ctx, userID, weekID, p)
	if err != nil {
		return domain.WeekSettings{}, err
	}
	c.evict(ctx, settingsCacheKey(userID, weekID))
	return s, nil
}
