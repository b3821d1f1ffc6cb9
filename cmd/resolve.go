package cmd

import (
	"fmt"
	"strings"

	"github.com/gravitational/trace"
	"github.com/ohler55/ojg/oj"
	"github.com/spf13/cobra"

	"github.com/inkform/inkform/internal/vars"
)

var (
	resolveNames  []string
	resolveValues []string
	resolveBypass bool
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <document-id>",
	Short: "Resolve template variables for a document",
	Long: `Resolve the effective value of each named template variable for a
document, applying constant, caller and saved-value precedence. Caller
values are given as name=json, e.g. --set company_name='"Acme"'.`,
	Args: cobra.ExactArgs(1),
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
		caller, err := parseSetFlags(resolveValues)
		if err != nil {
			return err
		}

		out, err := eng.ResolveVariables(ctx, args[0], resolveNames, caller, p, resolveBypass)
		if ve, ok := vars.AsValidationError(err); ok {
			fmt.Println(oj.JSON(map[string]any{"errors": ve.Errors}, 2))
			return trace.Wrap(err)
		}
		if err != nil {
			return err
		}
		fmt.Println(oj.JSON(out, 2))
		return nil
	},
}

func parseSetFlags(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := map[string]any{}
	for _, pair := range pairs {
		name, raw, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, trace.BadParameter("--set needs name=json, got %q", pair)
		}
		value, err := oj.ParseString(raw)
		if err != nil {
			// Bare words are taken as strings for convenience.
			value = raw
		}
		out[name] = value
	}
	return out, nil
}

func init() {
	resolveCmd.Flags().StringSliceVar(&resolveNames, "name", nil, "Template variable name (repeatable)")
	resolveCmd.Flags().StringArrayVar(&resolveValues, "set", nil, "Caller value as name=json (repeatable)")
	resolveCmd.Flags().BoolVar(&resolveBypass, "bypass-validation", false, "Echo caller values verbatim (trusted flows only)")
	rootCmd.AddCommand(resolveCmd)
}
