// Package jobs keeps deferred work in redis, one sorted set per job name
// scored by the unix time the job becomes due.
package jobs

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/DomeLiquid/payin/core"
	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
)

const DefaultPrefix = "payin:jobs"

type RedisScheduler struct {
	rds    *redis.Client
	prefix string
}

var _ core.JobScheduler = (*RedisScheduler)(nil)

func NewRedisScheduler(rds *redis.Client, prefix string) *RedisScheduler {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &RedisScheduler{rds: rds, prefix: prefix}
}

func (s *RedisScheduler) queueKey(name string) string { return s.prefix + ":" + name }

func (s *RedisScheduler) dataKey(name string) string { return s.prefix + ":" + name + ":data" }

// Schedule enqueues the job. A job with the same key replaces the earlier one.
func (s *RedisScheduler) Schedule(ctx context.Context, job *core.Job) error {
	if job.Name == "" || job.Key == "" {
		return errors.New("job needs a name and a key")
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return errors.Wrap(err, "marshal job")
	}

	pipe := s.rds.TxPipeline()
	defer pipe.Close()

	pipe.ZAdd(ctx, s.queueKey(job.Name), &redis.Z{Score: float64(job.RunAt), Member: job.Key})
	pipe.HSet(ctx, s.dataKey(job.Name), job.Key, payload)
	if _, err := pipe.Exec(ctx); err != nil {
		pipe.Discard()
		return errors.Wrapf(err, "schedule %s", job.Key)
	}
	return nil
}

// Due claims up to limit jobs of name whose run time has passed. A claimed job
// is removed, so concurrent callers never see the same job twice.
func (s *RedisScheduler) Due(ctx context.Context, name string, now time.Time, limit int) ([]*core.Job, error) {
	keys, err := s.rds.ZRangeByScore(ctx, s.queueKey(name), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.Unix(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "range %s", name)
	}

	jobs := make([]*core.Job, 0, len(keys))
	for _, key := range keys {
		removed, err := s.rds.ZRem(ctx, s.queueKey(name), key).Result()
		if err != nil {
			return jobs, errors.Wrapf(err, "claim %s", key)
		}
		if removed == 0 {
			continue
		}

		payload, err := s.rds.HGet(ctx, s.dataKey(name), key).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return jobs, errors.Wrapf(err, "load %s", key)
		}
		s.rds.HDel(ctx, s.dataKey(name), key)

		var job core.Job
		if err := json.Unmarshal(payload, &job); err != nil {
			return jobs, errors.Wrapf(err, "unmarshal %s", key)
		}
		jobs = append(jobs, &job)
	}
	return jobs, nil
}

// Pending reports how many jobs of name are queued, due or not.
func (s *RedisScheduler) Pending(ctx context.Context, name string) (int64, error) {
	return s.rds.ZCard(ctx, s.queueKey(name)).Result()
}
