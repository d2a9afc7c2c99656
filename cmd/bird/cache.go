package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/vjiki/music-ios-bird/internal/ctl"
	"github.com/vjiki/music-ios-bird/pkg/bird"
)

func cacheCommand() *cobra.Command {
	var node string

	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the media cache",
	}
	cmd.PersistentFlags().StringVar(&node, "cache-node", "cache", "cache manager node id")

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Show cache usage per class",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(app)
			defer cancel()

			reply, err := app.client.Send(ctx, node, "cache.stats", struct{}{})
			if err != nil {
				return err
			}
			var body bird.CacheStatsReply
			if err := json.Unmarshal(reply.Body, &body); err != nil {
				return ctl.WrapError(ctl.ExitRuntime, "invalid stats reply", err)
			}
			if app.json {
				return printJSON(body)
			}
			return printCacheStats(body)
		},
	}

	list := &cobra.Command{
		Use:   "ls <class>",
		Short: "List cached assets of a class",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(app)
			defer cancel()

			reply, err := app.client.Send(ctx, node, "cache.list", bird.CacheListBody{Class: args[0]})
			if err != nil {
				return err
			}
			var body bird.CacheListReply
			if err := json.Unmarshal(reply.Body, &body); err != nil {
				return ctl.WrapError(ctl.ExitRuntime, "invalid list reply", err)
			}
			if app.json {
				return printJSON(body)
			}
			return printCacheItems(body)
		},
	}

	clear := &cobra.Command{
		Use:   "clear [class]",
		Short: "Clear one class, or everything with no argument",
		Args:  cobra.RangeArgs(0, 1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(app)
			defer cancel()

			class := ""
			if len(args) == 1 {
				class = args[0]
			}
			_, err := app.client.Send(ctx, node, "cache.clear", bird.CacheClearBody{Class: class})
			return err
		},
	}

	remove := &cobra.Command{
		Use:   "rm <class> <url>",
		Short: "Remove a single cached asset",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(app)
			defer cancel()

			_, err := app.client.Send(ctx, node, "cache.remove", bird.CacheRemoveBody{Class: args[0], URL: args[1]})
			return err
		},
	}

	cmd.AddCommand(stats)
	cmd.AddCommand(list)
	cmd.AddCommand(clear)
	cmd.AddCommand(remove)

	return cmd
}
