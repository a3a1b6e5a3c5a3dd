package payin

import (
	"context"
	"time"

	"github.com/DomeLiquid/payin/core"
	"github.com/gofrs/uuid"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"
)

// DueJobs drains deferred jobs whose run time has passed.
type DueJobs interface {
	Due(ctx context.Context, name string, now time.Time, limit int) ([]*core.Job, error)
}

type PollerConfig struct {
	Interval    time.Duration
	Grace       time.Duration
	Concurrency int
	BatchSize   int
}

// Poller drives PayIns stuck in a pending state toward a terminal one, and runs
// the auto withdrawals queued by settlement.
type Poller struct {
	engine    *Engine
	jobs      DueJobs
	cfg       PollerConfig
	inProcess *atomic.Bool
}

func NewPoller(engine *Engine, jobs DueJobs, cfg PollerConfig) *Poller {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Poller{
		engine:    engine,
		jobs:      jobs,
		cfg:       cfg,
		inProcess: atomic.NewBool(false),
	}
}

// Run polls until ctx is done. A sweep that outlives the interval is not overlapped.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if !p.inProcess.CompareAndSwap(false, true) {
				continue
			}
			go func() {
				defer p.inProcess.Store(false)
				if _, err := p.Sweep(ctx); err != nil {
					p.engine.log.Warn().Err(err).Msg("poller sweep")
				}
			}()
		}
	}
}

// Sweep attempts every stale PayIn once and returns how many it touched.
func (p *Poller) Sweep(ctx context.Context) (int, error) {
	now := p.engine.clk.Now()
	ids, err := p.engine.store.ListStalePayIns(ctx, now.Add(-p.cfg.Grace).Unix(), p.cfg.BatchSize)
	if err != nil {
		return 0, errors.Wrap(err, "list stale payins")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			p.attempt(gctx, id)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return len(ids), err
	}

	if err := p.runAutoWithdrawals(ctx, now); err != nil {
		return len(ids), err
	}
	return len(ids), nil
}

func (p *Poller) attempt(ctx context.Context, id uuid.UUID) {
	payIn, err := p.engine.Attempt(ctx, id)
	if err != nil {
		p.engine.log.Warn().Err(err).Str("payInId", id.String()).Msg("attempt payin")
		return
	}
	core.WithPayIn(p.engine.log.Debug(), payIn).Msg("attempted payin")
}

func (p *Poller) runAutoWithdrawals(ctx context.Context, now time.Time) error {
	if p.jobs == nil {
		return nil
	}
	jobs, err := p.jobs.Due(ctx, core.JobAutoWithdraw, now, p.cfg.BatchSize)
	if err != nil {
		return errors.Wrap(err, "due auto withdrawals")
	}

	for _, job := range jobs {
		userId, err := uuid.FromString(job.Data["userId"])
		if err != nil {
			p.engine.log.Warn().Err(err).Str("job", job.Key).Msg("bad auto withdraw job")
			continue
		}
		payer, err := p.engine.store.GetUserById(ctx, userId)
		if err != nil {
			p.engine.log.Warn().Err(err).Str("job", job.Key).Msg("auto withdraw payer")
			continue
		}
		payIn, err := p.engine.Submit(ctx, core.PayInTypeAutoWithdrawal, nil, payer)
		if err != nil {
			p.engine.log.Info().Err(err).Str("userId", userId.String()).Msg("auto withdraw skipped")
			continue
		}
		core.WithPayIn(p.engine.log.Info(), payIn).Msg("auto withdraw submitted")
	}
	return nil
}
