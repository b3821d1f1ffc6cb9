package cmd

import (
	"fmt"

	"github.com/ohler55/ojg/oj"
	"github.com/spf13/cobra"
)

var treeCmd = &cobra.Command{
	Use:   "tree [folder-id]",
	Short: "Print the access-filtered tree for a principal",
	Long: `Print the tree a principal is allowed to see, as JSON.
With no folder id, prints the forest of pinned scopes.`,
	Args: cobra.MaximumNArgs(1),
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
		folderID := ""
		if len(args) == 1 {
			folderID = args[0]
		}

		tree, err := eng.BuildTree(ctx, folderID, p)
		if err != nil {
			return err
		}
		fmt.Println(oj.JSON(tree, 2))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(treeCmd)
}
