package main

import (
	"context"

	"github.com/spf13/cobra"

	"UnifiedMCP-Client/sdk/go/unifiedmcp"
)

func newAgentsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "agents",
		Aliases: []string{"agent"},
		Short:   "Manage agents",
	}

	var filter string
	list := &cobra.Command{
		Use:   "list",
		Short: "List agents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := parseObject(filter)
			if err != nil {
				return err
			}
			return a.call(cmd, func(ctx context.Context, c *unifiedmcp.Client) (any, error) {
				return c.ListAgents(ctx, f)
			})
		},
	}
	list.Flags().StringVar(&filter, "filter", "", "JSON filter passed to the server")

	cmd.AddCommand(
		list,
		&cobra.Command{
			Use:   "get <agent-id>",
			Short: "Show an agent",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.call(cmd, func(ctx context.Context, c *unifiedmcp.Client) (any, error) {
					return c.GetAgent(ctx, args[0])
				})
			},
		},
		&cobra.Command{
			Use:   "create <config-json>",
			Short: "Create an agent from a JSON configuration",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := parseObject(args[0])
				if err != nil {
					return err
				}
				return a.call(cmd, func(ctx context.Context, c *unifiedmcp.Client) (any, error) {
					return c.CreateAgent(ctx, cfg)
				})
			},
		},
		&cobra.Command{
			Use:   "update <agent-id> <config-json>",
			Short: "Update an agent",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := parseObject(args[1])
				if err != nil {
					return err
				}
				return a.call(cmd, func(ctx context.Context, c *unifiedmcp.Client) (any, error) {
					return c.UpdateAgent(ctx, args[0], cfg)
				})
			},
		},
		&cobra.Command{
			Use:   "delete <agent-id>",
			Short: "Delete an agent",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.call(cmd, func(ctx context.Context, c *unifiedmcp.Client) (any, error) {
					ok, err := c.DeleteAgent(ctx, args[0])
					return map[string]bool{"success": ok}, err
				})
			},
		},
		&cobra.Command{
			Use:   "run <agent-id> <task>",
			Short: "Ask an agent to perform a task",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.call(cmd, func(ctx context.Context, c *unifiedmcp.Client) (any, error) {
					return c.RunAgent(ctx, args[0], args[1])
				})
			},
		},
	)
	return cmd
}
