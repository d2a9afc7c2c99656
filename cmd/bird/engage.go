package main

import (
	"github.com/spf13/cobra"
)

func likeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "like",
		Short: "Like the current track",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(app)
			defer cancel()
			_, err := app.client.Send(ctx, app.node, "engage.like", struct{}{})
			return err
		},
	}
}

func dislikeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "dislike",
		Short: "Dislike the current track",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(app)
			defer cancel()
			_, err := app.client.Send(ctx, app.node, "engage.dislike", struct{}{})
			return err
		},
	}
}

func loadMoreCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "load-more",
		Short: "Fetch the next page of library tracks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(app)
			defer cancel()
			_, err := app.client.Send(ctx, app.node, "library.loadMore", struct{}{})
			return err
		},
	}
}
