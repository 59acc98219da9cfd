package main

import (
	"github.com/spf13/cobra"

	"UnifiedMCP-Client/internal/relay"
)

func newEventsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Inspect the MySQL push event journal",
	}

	var (
		name  string
		limit int
	)
	recent := &cobra.Command{
		Use:   "recent",
		Short: "Show the most recently journaled push events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			journal, err := relay.NewMySQLSink(cmd.Context(), a.cfg.Relay.MySQL)
			if err != nil {
				return err
			}
			defer journal.Close()

			events, err := journal.Recent(cmd.Context(), name, limit)
			if err != nil {
				return err
			}
			if events == nil {
				events = []relay.Event{}
			}
			return a.print(events)
		},
	}
	recent.Flags().StringVar(&name, "name", "", "only show events with this name")
	recent.Flags().IntVarP(&limit, "limit", "n", 50, "maximum number of events")

	cmd.AddCommand(recent)
	return cmd
}
