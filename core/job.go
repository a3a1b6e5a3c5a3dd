package core

import (
	"context"
	"time"

	"github.com/gofrs/uuid"
)

type (
	// JobScheduler is a fire-and-forget sink for deferred work. Correctness never
	// depends on a job running.
	JobScheduler interface {
		Schedule(ctx context.Context, job *Job) error
	}

	Job struct {
		Name  string            `json:"name"`
		Key   string            `json:"key"`
		Data  map[string]string `json:"data,omitempty"`
		RunAt int64             `json:"runAt"`
	}
)

const (
	JobTimestampItem = "timestampItem"
	JobExpireBoost   = "expireBoost"
	JobAutoWithdraw  = "autoWithdraw"
)

func NewItemJob(name string, itemId uuid.UUID, runAt time.Time) *Job {
	return &Job{
		Name:  name,
		Key:   name + ":" + itemId.String(),
		Data:  map[string]string{"itemId": itemId.String()},
		RunAt: runAt.Unix(),
	}
}
