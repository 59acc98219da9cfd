package main

import (
	"context"

	"github.com/spf13/cobra"

	"UnifiedMCP-Client/sdk/go/unifiedmcp"
)

func newTasksCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "tasks",
		Aliases: []string{"task"},
		Short:   "Manage tasks and their dependencies",
	}

	var filter string
	list := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := parseObject(filter)
			if err != nil {
				return err
			}
			return a.call(cmd, func(ctx context.Context, c *unifiedmcp.Client) (any, error) {
				return c.ListTasks(ctx, f)
			})
		},
	}
	list.Flags().StringVar(&filter, "filter", "", "JSON filter passed to the server")

	var (
		description string
		dependsOn   []string
	)
	create := &cobra.Command{
		Use:   "create <title>",
		Short: "Create a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.call(cmd, func(ctx context.Context, c *unifiedmcp.Client) (any, error) {
				return c.CreateTask(ctx, args[0], description, dependsOn)
			})
		},
	}
	create.Flags().StringVarP(&description, "description", "d", "", "task description")
	create.Flags().StringSliceVar(&dependsOn, "depends-on", nil, "ids of tasks this task depends on")

	cmd.AddCommand(
		list,
		create,
		&cobra.Command{
			Use:   "get <task-id>",
			Short: "Show a task",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.call(cmd, func(ctx context.Context, c *unifiedmcp.Client) (any, error) {
					return c.GetTask(ctx, args[0])
				})
			},
		},
		&cobra.Command{
			Use:   "update <task-id> <updates-json>",
			Short: "Update a task",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				updates, err := parseObject(args[1])
				if err != nil {
					return err
				}
				return a.call(cmd, func(ctx context.Context, c *unifiedmcp.Client) (any, error) {
					return c.UpdateTask(ctx, args[0], updates)
				})
			},
		},
		&cobra.Command{
			Use:   "delete <task-id>",
			Short: "Delete a task",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.call(cmd, func(ctx context.Context, c *unifiedmcp.Client) (any, error) {
					ok, err := c.DeleteTask(ctx, args[0])
					return map[string]bool{"success": ok}, err
				})
			},
		},
		&cobra.Command{
			Use:   "next",
			Short: "Show the next available task",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.call(cmd, func(ctx context.Context, c *unifiedmcp.Client) (any, error) {
					return c.GetNextTask(ctx)
				})
			},
		},
		&cobra.Command{
			Use:   "depend <task-id> <depends-on-task-id>",
			Short: "Make a task depend on another task",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.call(cmd, func(ctx context.Context, c *unifiedmcp.Client) (any, error) {
					return c.AddDependency(ctx, args[0], args[1])
				})
			},
		},
		&cobra.Command{
			Use:   "undepend <task-id> <depends-on-task-id>",
			Short: "Remove a task dependency",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.call(cmd, func(ctx context.Context, c *unifiedmcp.Client) (any, error) {
					return c.RemoveDependency(ctx, args[0], args[1])
				})
			},
		},
	)
	return cmd
}
