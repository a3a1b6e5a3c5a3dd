package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/DomeLiquid/payin/api"
	"github.com/DomeLiquid/payin/metrics"
	"github.com/DomeLiquid/payin/payin"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

var cmdServe = &cli.Command{
	Name:  "serve",
	Usage: "Serve the PayIn API and run the settlement poller",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "migrate",
			Usage: "migrate the database before serving",
		},
		&cli.BoolFlag{
			Name:  "no-poller",
			Usage: "serve the API only",
		},
	},
	Action: func(cctx *cli.Context) error {
		ctx, stop := signal.NotifyContext(cctx.Context, syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		d, err := setup(cctx)
		if err != nil {
			return err
		}
		defer d.Close()

		if cctx.Bool("migrate") {
			if err := migrate(ctx, d.db); err != nil {
				return err
			}
		}
		if err := metrics.Register(); err != nil {
			return errors.Wrap(err, "register metrics views")
		}

		srv := &http.Server{
			Addr:         d.cfg.Server.Addr,
			Handler:      api.NewRouter(d.engine, d.store, d.log),
			ReadTimeout:  d.cfg.Server.ReadTimeout,
			WriteTimeout: d.cfg.Server.WriteTimeout,
		}

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			d.log.Info().Str("addr", srv.Addr).Msg("api listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
		if !cctx.Bool("no-poller") {
			poller := payin.NewPoller(d.engine, d.scheduler, d.cfg.PollerConfig())
			g.Go(func() error {
				err := poller.Run(ctx)
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			})
		}

		err = g.Wait()
		d.log.Info().Err(err).Msg("payind stopped")
		return err
	},
}
