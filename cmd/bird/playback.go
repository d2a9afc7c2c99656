package main

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/vjiki/music-ios-bird/internal/ctl"
	"github.com/vjiki/music-ios-bird/pkg/bird"
)

func playCommand() *cobra.Command {
	var (
		index  int64
		url    string
		id     string
		title  string
		artist string
	)

	cmd := &cobra.Command{
		Use:   "play",
		Short: "Start or resume playback",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(app)
			defer cancel()

			body := bird.PlaybackPlayBody{}
			switch {
			case url != "":
				trackID := id
				if trackID == "" {
					trackID = url
				}
				body.Track = &bird.Track{
					ID:       trackID,
					Title:    title,
					Artist:   artist,
					AudioURL: url,
				}
			case cmd.Flags().Changed("index"):
				body.Index = &index
			}

			_, err := app.client.Send(ctx, app.node, "playback.play", body)
			return err
		},
	}

	cmd.Flags().Int64Var(&index, "index", 0, "queue index to jump to")
	cmd.Flags().StringVar(&url, "url", "", "audio URL to play")
	cmd.Flags().StringVar(&id, "id", "", "track id for --url")
	cmd.Flags().StringVar(&title, "title", "", "track title for --url")
	cmd.Flags().StringVar(&artist, "artist", "", "track artist for --url")

	return cmd
}

func pauseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "pause",
		Short: "Pause playback",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(app)
			defer cancel()
			_, err := app.client.Send(ctx, app.node, "playback.pause", struct{}{})
			return err
		},
	}
}

func toggleCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "toggle",
		Short: "Toggle play/pause",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(app)
			defer cancel()
			_, err := app.client.Send(ctx, app.node, "playback.toggle", struct{}{})
			return err
		},
	}
}

func nextCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "next",
		Short: "Skip to the next track",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(app)
			defer cancel()
			_, err := app.client.Send(ctx, app.node, "playback.next", struct{}{})
			return err
		},
	}
}

func prevCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "prev",
		Short: "Return to the previous track",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(app)
			defer cancel()
			_, err := app.client.Send(ctx, app.node, "playback.prev", struct{}{})
			return err
		},
	}
}

func seekCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "seek <ms>",
		Short: "Seek to a position in milliseconds",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)

			position, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return ctl.WrapError(ctl.ExitUsage, "position must be an integer", err)
			}

			ctx, cancel := withTimeout(app)
			defer cancel()
			_, err = app.client.Send(ctx, app.node, "playback.seek", bird.PlaybackSeekBody{PositionMS: position})
			return err
		},
	}
}
