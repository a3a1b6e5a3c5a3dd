package main

import (
	"github.com/DomeLiquid/payin/payin"
	"github.com/urfave/cli/v2"
)

var cmdPoll = &cli.Command{
	Name:  "poll",
	Usage: "Run one settlement sweep and exit",
	Action: func(cctx *cli.Context) error {
		d, err := setup(cctx)
		if err != nil {
			return err
		}
		defer d.Close()

		poller := payin.NewPoller(d.engine, d.scheduler, d.cfg.PollerConfig())
		n, err := poller.Sweep(cctx.Context)
		if err != nil {
			return err
		}
		d.log.Info().Int("attempted", n).Msg("sweep done")
		return nil
	},
}
