package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vjiki/music-ios-bird/internal/ctl"
	"github.com/vjiki/music-ios-bird/pkg/bird"
)

func volumeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "volume <0..100>",
		Short: "Set playback volume as a percentage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)

			percent, err := strconv.ParseFloat(strings.TrimSuffix(args[0], "%"), 64)
			if err != nil {
				return ctl.WrapError(ctl.ExitUsage, "volume must be a number", err)
			}
			if percent < 0 || percent > 100 {
				return ctl.WrapError(ctl.ExitUsage, "volume must be between 0 and 100", nil)
			}

			ctx, cancel := withTimeout(app)
			defer cancel()
			_, err = app.client.Send(ctx, app.node, "playback.setVolume", bird.PlaybackSetVolumeBody{Volume: percent / 100})
			return err
		},
	}
}

func muteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "mute <on|off>",
		Short: "Mute or unmute playback",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)

			mute, err := parseOnOff(args[0])
			if err != nil {
				return err
			}

			ctx, cancel := withTimeout(app)
			defer cancel()
			_, err = app.client.Send(ctx, app.node, "playback.setMute", bird.PlaybackSetMuteBody{Mute: mute})
			return err
		},
	}
}

func parseOnOff(arg string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(arg)) {
	case "on", "true", "1":
		return true, nil
	case "off", "false", "0":
		return false, nil
	default:
		return false, ctl.WrapError(ctl.ExitUsage, fmt.Sprintf("want on or off, got %q", arg), nil)
	}
}
