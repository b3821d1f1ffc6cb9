package cmd

import (
	"fmt"

	"github.com/gravitational/trace"
	"github.com/ohler55/ojg/oj"
	"github.com/spf13/cobra"

	"github.com/inkform/inkform/api"
	"github.com/inkform/inkform/internal/scopes"
)

var (
	scopeAccess string
	scopeDepth  int64
	scopePinned bool
	scopeFolder bool
)

var scopeCmd = &cobra.Command{
	Use:   "scope",
	Short: "Administer access scopes",
}

var scopeSetCmd = &cobra.Command{
	Use:   "set <node-id>",
	Short: "Create or update the scope bound to a node",
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
		level, err := api.ParseAccessLevel(scopeAccess)
		if err != nil {
			return err
		}
		depth := api.InfiniteDepth
		if scopeDepth >= 0 {
			depth = api.Depth(scopeDepth)
		}
		s := &scopes.Scope{
			NodeID:       args[0],
			IsFolder:     scopeFolder,
			IsPinned:     scopePinned,
			Restrictions: scopes.Restrictions{AccessLevel: level, MaxDepth: depth},
			CreatedBy:    p.ID,
			UpdatedBy:    p.ID,
		}

		saved, err := eng.CreateScope(ctx, s)
		if trace.IsAlreadyExists(err) {
			saved, err = eng.UpdateScope(ctx, s)
		}
		if err != nil {
			return err
		}
		fmt.Println(oj.JSON(saved, 2))
		return nil
	},
}

var scopeRmCmd = &cobra.Command{
	Use:   "rm <node-id>",
	Short: "Delete the scope bound to a node",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		eng, _, db, err := newEngine(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()
		return eng.DeleteScope(ctx, args[0])
	},
}

var scopeLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List every scope",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		eng, _, db, err := newEngine(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()

		all, err := eng.ListScopes(ctx)
		if err != nil {
			return err
		}
		fmt.Println(oj.JSON(all, 2))
		return nil
	},
}

func init() {
	scopeSetCmd.Flags().StringVar(&scopeAccess, "access", "authenticated", "Access level: any, authenticated, email_verified, admin")
	scopeSetCmd.Flags().Int64Var(&scopeDepth, "depth", -1, "Max depth below the node, -1 for unlimited")
	scopeSetCmd.Flags().BoolVar(&scopePinned, "pinned", false, "Show this scope in the global tree view")
	scopeSetCmd.Flags().BoolVar(&scopeFolder, "folder", true, "The node is a folder")
	scopeCmd.AddCommand(scopeSetCmd, scopeRmCmd, scopeLsCmd)
	rootCmd.AddCommand(scopeCmd)
}
