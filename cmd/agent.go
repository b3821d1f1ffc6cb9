package cmd

import (
	"context"
	"strings"

	"github.com/gravitational/trace"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/ohler55/ojg/oj"
	"github.com/spf13/cobra"

	"github.com/inkform/inkform/internal/engine"
	"github.com/inkform/inkform/internal/vars"
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Serve the engine as an MCP stdio server",
	Long: `Expose tree building, access checks and variable resolution as MCP
tools over stdio, for LLM agents preparing document generation. The
principal flags fix the identity every tool call runs as.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		eng, _, db, err := newEngine(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()

		if _, err := principal(); err != nil {
			return err
		}
		return mcpserver.ServeStdio(newAgentServer(eng))
	},
}

func newAgentServer(eng *engine.Engine) *mcpserver.MCPServer {
	s := mcpserver.NewMCPServer("inkform", "1.0.0")

	s.AddTool(mcp.NewTool("tree",
		mcp.WithDescription("Return the access-filtered folder tree as JSON. Without folder_id, returns the pinned forest."),
		mcp.WithString("folder_id", mcp.Description("Folder node id to root the tree at")),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		p, err := principal()
		if err != nil {
			return nil, trace.Wrap(err)
		}
		tree, err := eng.BuildTree(ctx, req.GetString("folder_id", ""), p)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(oj.JSON(tree, 2)), nil
	})

	s.AddTool(mcp.NewTool("check_access",
		mcp.WithDescription("Decide whether the principal may access a node."),
		mcp.WithString("node_id", mcp.Description("Node id to check"), mcp.Required()),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		nodeID, err := req.RequireString("node_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		p, err := principal()
		if err != nil {
			return nil, trace.Wrap(err)
		}
		d, err := eng.CheckAccess(ctx, nodeID, p)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(oj.JSON(d, 2)), nil
	})

	s.AddTool(mcp.NewTool("resolve_variables",
		mcp.WithDescription("Resolve the effective template variables for a document. Validation failures are reported per variable."),
		mcp.WithString("node_id", mcp.Description("Document node id"), mcp.Required()),
		mcp.WithString("names", mcp.Description("Comma-separated template variable names"), mcp.Required()),
		mcp.WithString("values", mcp.Description("Caller-supplied values as a JSON object")),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		nodeID, err := req.RequireString("node_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		rawNames, err := req.RequireString("names")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		var names []string
		for _, n := range strings.Split(rawNames, ",") {
			if n = strings.TrimSpace(n); n != "" {
				names = append(names, n)
			}
		}

		var caller map[string]any
		if raw := req.GetString("values", ""); raw != "" {
			parsed, err := oj.ParseString(raw)
			if err != nil {
				return mcp.NewToolResultError("values is not valid JSON: " + err.Error()), nil
			}
			obj, ok := parsed.(map[string]any)
			if !ok {
				return mcp.NewToolResultError("values must be a JSON object"), nil
			}
			caller = obj
		}

		p, err := principal()
		if err != nil {
			return nil, trace.Wrap(err)
		}
		out, err := eng.ResolveVariables(ctx, nodeID, names, caller, p, false)
		if ve, ok := vars.AsValidationError(err); ok {
			return mcp.NewToolResultText(oj.JSON(map[string]any{"errors": ve.Errors}, 2)), nil
		}
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(oj.JSON(out, 2)), nil
	})

	return s
}

func init() {
	rootCmd.AddCommand(agentCmd)
}
