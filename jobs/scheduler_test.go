package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/DomeLiquid/payin/core"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScheduler(t *testing.T) *RedisScheduler {
	t.Helper()
	mr := miniredis.RunT(t)
	rds := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rds.Close() })
	return NewRedisScheduler(rds, "")
}

func TestDue(t *testing.T) {
	ctx := context.Background()
	s := newTestScheduler(t)
	now := time.Unix(1_700_000_000, 0)

	early := core.NewItemJob(core.JobTimestampItem, uuid.Must(uuid.NewV4()), now.Add(-time.Minute))
	late := core.NewItemJob(core.JobTimestampItem, uuid.Must(uuid.NewV4()), now.Add(time.Minute))
	boost := core.NewItemJob(core.JobExpireBoost, uuid.Must(uuid.NewV4()), now.Add(-time.Hour))
	for _, job := range []*core.Job{early, late, boost} {
		require.NoError(t, s.Schedule(ctx, job))
	}

	due, err := s.Due(ctx, core.JobTimestampItem, now, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, early.Key, due[0].Key)
	assert.Equal(t, early.Data["itemId"], due[0].Data["itemId"])

	again, err := s.Due(ctx, core.JobTimestampItem, now, 10)
	require.NoError(t, err)
	assert.Empty(t, again, "claimed jobs are gone")

	pending, err := s.Pending(ctx, core.JobTimestampItem)
	require.NoError(t, err)
	assert.EqualValues(t, 1, pending)

	due, err = s.Due(ctx, core.JobTimestampItem, now.Add(2*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, late.Key, due[0].Key)
}

func TestScheduleReplacesSameKey(t *testing.T) {
	ctx := context.Background()
	s := newTestScheduler(t)
	now := time.Unix(1_700_000_000, 0)
	userId := uuid.Must(uuid.NewV4())

	for i, runAt := range []time.Time{now.Add(-time.Minute), now.Add(time.Hour)} {
		require.NoError(t, s.Schedule(ctx, &core.Job{
			Name:  core.JobAutoWithdraw,
			Key:   core.JobAutoWithdraw + ":" + userId.String(),
			Data:  map[string]string{"userId": userId.String(), "n": string(rune('0' + i))},
			RunAt: runAt.Unix(),
		}))
	}

	due, err := s.Due(ctx, core.JobAutoWithdraw, now, 10)
	require.NoError(t, err)
	assert.Empty(t, due)

	due, err = s.Due(ctx, core.JobAutoWithdraw, now.Add(2*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "1", due[0].Data["n"])
}

func TestScheduleRejectsAnonymousJobs(t *testing.T) {
	s := newTestScheduler(t)
	assert.Error(t, s.Schedule(context.Background(), &core.Job{Name: core.JobExpireBoost}))
}
