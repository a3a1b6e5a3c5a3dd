package main

import (
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
)

var cmdDescribe = &cli.Command{
	Name:      "describe",
	Usage:     "Print the audit line of a PayIn",
	ArgsUsage: "<payin id>",
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() != 1 {
			return errors.New("expected one payin id")
		}
		id, err := uuid.FromString(cctx.Args().First())
		if err != nil {
			return errors.Wrap(err, "payin id")
		}

		d, err := setup(cctx)
		if err != nil {
			return err
		}
		defer d.Close()

		text, err := d.engine.Describe(cctx.Context, id)
		if err != nil {
			return err
		}
		fmt.Fprintln(cctx.App.Writer, text)
		return nil
	},
}
