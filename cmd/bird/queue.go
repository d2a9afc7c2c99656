package main

import (
	"encoding/json"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/vjiki/music-ios-bird/internal/ctl"
	"github.com/vjiki/music-ios-bird/pkg/bird"
)

func queueCommand() *cobra.Command {
	var from int64
	var count int64

	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Show the play queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(app)
			defer cancel()

			reply, err := app.client.Send(ctx, app.node, "queue.get", bird.QueueGetBody{From: from, Count: count})
			if err != nil {
				return err
			}

			var body bird.QueueGetReply
			if err := json.Unmarshal(reply.Body, &body); err != nil {
				return ctl.WrapError(ctl.ExitRuntime, "invalid queue reply", err)
			}
			if app.json {
				return printJSON(body)
			}
			return printQueue(body, from)
		},
	}

	cmd.Flags().Int64Var(&from, "from", 0, "first index to show")
	cmd.Flags().Int64Var(&count, "count", 50, "number of entries to show")

	return cmd
}

func jumpCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "jump <index>",
		Short: "Jump to a queue index and play it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)

			index, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return ctl.WrapError(ctl.ExitUsage, "index must be an integer", err)
			}

			ctx, cancel := withTimeout(app)
			defer cancel()
			_, err = app.client.Send(ctx, app.node, "queue.jump", bird.QueueJumpBody{Index: index})
			return err
		},
	}
}

func shuffleCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "shuffle <on|off>",
		Short: "Enable or disable shuffle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)

			shuffle, err := parseOnOff(args[0])
			if err != nil {
				return err
			}

			ctx, cancel := withTimeout(app)
			defer cancel()
			_, err = app.client.Send(ctx, app.node, "queue.setShuffle", bird.QueueSetShuffleBody{Shuffle: shuffle})
			return err
		},
	}
}

func repeatCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "repeat [off|all|one]",
		Short: "Set the repeat mode, or cycle it with no argument",
		Args:  cobra.RangeArgs(0, 1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)

			mode := ""
			if len(args) == 1 {
				mode = args[0]
			}

			ctx, cancel := withTimeout(app)
			defer cancel()
			_, err := app.client.Send(ctx, app.node, "queue.setRepeat", bird.QueueSetRepeatBody{Mode: mode})
			return err
		},
	}
}
