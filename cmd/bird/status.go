package main

import (
	"context"

	"github.com/spf13/cobra"
)

func statusCommand() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the player's retained state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(app)
			state, err := app.client.GetPlayerState(ctx, app.node)
			cancel()
			if err != nil {
				return err
			}

			if app.json {
				if err := printJSON(state); err != nil {
					return err
				}
			} else if err := printState(state); err != nil {
				return err
			}

			if !watch {
				return nil
			}
			return watchStatus(cmd, app)
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "keep printing state updates")

	return cmd
}

func watchStatus(cmd *cobra.Command, app *app) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	states, errs := app.client.WatchPlayer(ctx, app.node)
	for {
		select {
		case state, ok := <-states:
			if !ok {
				return nil
			}
			if app.json {
				if err := printJSON(state); err != nil {
					return err
				}
				continue
			}
			if err := printState(state); err != nil {
				return err
			}
		case err := <-errs:
			if err != nil {
				return err
			}
		}
	}
}

func nodesCommand() *cobra.Command {
	var kind string

	cmd := &cobra.Command{
		Use:   "nodes",
		Short: "List nodes announced on the broker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(app)
			defer cancel()

			nodes, err := app.client.ListPresence(ctx)
			if err != nil {
				return err
			}
			if kind != "" {
				filtered := nodes[:0]
				for _, node := range nodes {
					if node.Kind == kind {
						filtered = append(filtered, node)
					}
				}
				nodes = filtered
			}

			if app.json {
				return printJSON(nodes)
			}
			return printNodes(nodes)
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "", "filter by node kind")

	return cmd
}
