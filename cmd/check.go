package cmd

import (
	"fmt"

	"github.com/ohler55/ojg/oj"
	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check <node-id>",
	Short: "Decide whether the principal may access a node",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		eng, _, db, err := newEngine(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()

		p, err := principal()
		if err != nil {
			return err
		}
		d, err := eng.CheckAccess(ctx, args[0], p)
		if err != nil {
			return err
		}
		fmt.Println(oj.JSON(d, 2))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
