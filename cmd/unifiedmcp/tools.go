package main

import (
	"context"

	"github.com/spf13/cobra"

	"UnifiedMCP-Client/sdk/go/unifiedmcp"
)

func newToolsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "tools",
		Aliases: []string{"tool"},
		Short:   "List and execute server tools",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List available tools",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.call(cmd, func(ctx context.Context, c *unifiedmcp.Client) (any, error) {
					return c.ListTools(ctx)
				})
			},
		},
		&cobra.Command{
			Use:   "exec <name> [parameters-json]",
			Short: "Execute a tool",
			Args:  cobra.RangeArgs(1, 2),
			RunE: func(cmd *cobra.Command, args []string) error {
				var params unifiedmcp.Object
				if len(args) == 2 {
					var err error
					if params, err = parseObject(args[1]); err != nil {
						return err
					}
				}
				return a.call(cmd, func(ctx context.Context, c *unifiedmcp.Client) (any, error) {
					return c.ExecuteTool(ctx, args[0], params)
				})
			},
		},
	)
	return cmd
}
