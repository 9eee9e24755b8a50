package services

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"studyforge/internal/models"
)

const redisGlobalUsageKey = "studyforge:usage:global"

func redisUserUsageKey(userID string) string {
	return "studyforge:usage:user:" + userID
}

func redisUserLastUsedKey(userID string) string {
	return "studyforge:usage:user:" + userID + ":last"
}

// RedisUsageStore keeps counters in sorted sets. Counts are ZINCRBY scores;
// per-user last-used stamps live in a hash next to the user's set.
type RedisUsageStore struct {
	client *redis.Client
}

// NewRedisUsageStore creates a usage store on Redis
func NewRedisUsageStore(rs *RedisService) *RedisUsageStore {
	return &RedisUsageStore{client: rs.Client()}
}

func (s *RedisUsageStore) Track(ctx context.Context, userID, featureID string) error {
	now := time.Now().UnixMilli()
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZIncrBy(ctx, redisUserUsageKey(userID), 1, featureID)
		pipe.HSet(ctx, redisUserLastUsedKey(userID), featureID, now)
		pipe.ZIncrBy(ctx, redisGlobalUsageKey, 1, featureID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to increment usage: %w", err)
	}
	return nil
}

func (s *RedisUsageStore) TopUser(ctx context.Context, userID string, n int) ([]models.UsageCount, error) {
	if n <= 0 {
		return []models.UsageCount{}, nil
	}
	counts, err := s.top(ctx, redisUserUsageKey(userID), int64(n)-1)
	if err != nil || len(counts) == 0 {
		return counts, err
	}

	fields := make([]string, len(counts))
	for i, c := range counts {
		fields[i] = c.FeatureID
	}
	stamps, err := s.client.HMGet(ctx, redisUserLastUsedKey(userID), fields...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read last used: %w", err)
	}
	for i, raw := range stamps {
		str, ok := raw.(string)
		if !ok {
			continue
		}
		if ms, err := strconv.ParseInt(str, 10, 64); err == nil {
			t := time.UnixMilli(ms).UTC()
			counts[i].LastUsed = &t
		}
	}
	return counts, nil
}

func (s *RedisUsageStore) TopGlobal(ctx context.Context, n int) ([]models.UsageCount, error) {
	if n <= 0 {
		return []models.UsageCount{}, nil
	}
	return s.top(ctx, redisGlobalUsageKey, int64(n)-1)
}

func (s *RedisUsageStore) AllGlobal(ctx context.Context) ([]models.UsageCount, error) {
	return s.top(ctx, redisGlobalUsageKey, -1)
}

func (s *RedisUsageStore) top(ctx context.Context, key string, stop int64) ([]models.UsageCount, error) {
	entries, err := s.client.ZRevRangeWithScores(ctx, key, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to query usage: %w", err)
	}

	counts := make([]models.UsageCount, 0, len(entries))
	for _, z := range entries {
		member, _ := z.Member.(string)
		counts = append(counts, models.UsageCount{FeatureID: member, Count: int64(z.Score)})
	}
	return counts, nil
}

func (s *RedisUsageStore) Stats(ctx context.Context) (*models.AdminStats, error) {
	all, err := s.AllGlobal(ctx)
	if err != nil {
		return nil, err
	}

	stats := &models.AdminStats{UniqueToolsCount: len(all)}
	for _, c := range all {
		stats.TotalInvocations += c.Count
	}
	return stats, nil
}
