package cmd

import (
	"fmt"
	"os"

	"github.com/gravitational/trace"
	"github.com/ohler55/ojg/oj"
	"github.com/spf13/cobra"

	"github.com/inkform/inkform/internal/chain"
	"github.com/inkform/inkform/internal/vars"
)

var (
	varName      string
	varScope     string
	varConstant  string
	varSchema    string
	varRequired  bool
	varAllowSave bool
	varOrder     int
)

var variableCmd = &cobra.Command{
	Use:     "variable",
	Aliases: []string{"var"},
	Short:   "Administer template variables",
}

var variableSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Create or update a variable by (name, scope)",
	Args:  cobra.NoArgs,
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
		v := &vars.Variable{
			Name:      varName,
			Scope:     varScope,
			Required:  varRequired,
			AllowSave: varAllowSave,
			Order:     varOrder,
			CreatedBy: p.ID,
			UpdatedBy: p.ID,
		}
		if varConstant != "" {
			if v.Value, err = oj.ParseString(varConstant); err != nil {
				return trace.BadParameter("--constant is not valid JSON: %v", err)
			}
		}
		if varSchema != "" {
			parsed, err := oj.ParseString(varSchema)
			if err != nil {
				return trace.BadParameter("--schema is not valid JSON: %v", err)
			}
			obj, ok := parsed.(map[string]any)
			if !ok {
				return trace.BadParameter("--schema must be a JSON object")
			}
			v.Schema = obj
		}

		saved, err := eng.CreateVariable(ctx, v)
		if trace.IsAlreadyExists(err) {
			existing, findErr := eng.ListScopeVariables(ctx, v.Scope)
			if findErr != nil {
				return findErr
			}
			for _, e := range existing {
				if e.Name == v.Name {
					v.ID = e.ID
					break
				}
			}
			saved, err = eng.UpdateVariable(ctx, v)
		}
		if err != nil {
			return err
		}
		fmt.Println(oj.JSON(saved, 2))
		return nil
	},
}

var variableRmCmd = &cobra.Command{
	Use:   "rm <variable-id>",
	Short: "Delete a variable and its saved values",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		eng, _, db, err := newEngine(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()
		return eng.DeleteVariable(ctx, args[0])
	},
}

var variableLsCmd = &cobra.Command{
	Use:   "ls [scope]",
	Short: "List a scope's variables in form order (global scope by default)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		eng, _, db, err := newEngine(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()

		scope := chain.Global
		if len(args) == 1 {
			scope = args[0]
		}
		list, err := eng.ListScopeVariables(ctx, scope)
		if err != nil {
			return err
		}
		fmt.Println(oj.JSON(list, 2))
		return nil
	},
}

var variableOverridesCmd = &cobra.Command{
	Use:   "overrides <variable-id>",
	Short: "List the variables a variable shadows, most specific first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		eng, _, db, err := newEngine(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()

		shadowed, err := eng.ListOverrides(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Println(oj.JSON(shadowed, 2))
		return nil
	},
}

var variableReplaceSchemaCmd = &cobra.Command{
	Use:   "replace-schema <scope> <schema-file>",
	Short: "Reconcile a scope's variables against a JSON schema file",
	Args:  cobra.ExactArgs(2),
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
		raw, err := os.ReadFile(args[1])
		if err != nil {
			return trace.Wrap(err, "read schema file")
		}
		parsed, err := oj.Parse(raw)
		if err != nil {
			return trace.BadParameter("schema file is not valid JSON: %v", err)
		}
		obj, ok := parsed.(map[string]any)
		if !ok {
			return trace.BadParameter("schema file must hold a JSON object")
		}

		counts, err := eng.ReplaceSchema(ctx, args[0], obj, p)
		if err != nil {
			return err
		}
		fmt.Println(oj.JSON(counts, 2))
		return nil
	},
}

var variableSaveCmd = &cobra.Command{
	Use:   "save <variable-id> <json-value>",
	Short: "Store the principal's personal value for a variable",
	Args:  cobra.ExactArgs(2),
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
		value, err := oj.ParseString(args[1])
		if err != nil {
			value = args[1]
		}
		return eng.SaveValue(ctx, p, args[0], value)
	},
}

var variableForgetCmd = &cobra.Command{
	Use:   "forget <variable-id>",
	Short: "Remove the principal's saved value for a variable",
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
		return eng.ForgetValue(ctx, p, args[0])
	},
}

func init() {
	variableSetCmd.Flags().StringVar(&varName, "name", "", "Variable name")
	variableSetCmd.Flags().StringVar(&varScope, "scope", chain.Global, "Scope node id, empty for global")
	variableSetCmd.Flags().StringVar(&varConstant, "constant", "", "Constant JSON value")
	variableSetCmd.Flags().StringVar(&varSchema, "schema", "", "JSON validation schema")
	variableSetCmd.Flags().BoolVar(&varRequired, "required", false, "Resolution fails when no value is produced")
	variableSetCmd.Flags().BoolVar(&varAllowSave, "allow-save", false, "Principals may store a personal fallback")
	variableSetCmd.Flags().IntVar(&varOrder, "order", 0, "Form presentation order")
	_ = variableSetCmd.MarkFlagRequired("name")
	variableCmd.AddCommand(variableSetCmd, variableRmCmd, variableLsCmd,
		variableOverridesCmd, variableReplaceSchemaCmd, variableSaveCmd, variableForgetCmd)
	rootCmd.AddCommand(variableCmd)
}
