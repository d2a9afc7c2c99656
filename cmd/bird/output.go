package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/pterm/pterm"

	"github.com/vjiki/music-ios-bird/pkg/bird"
)

func printJSON(v any) error {
	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(os.Stdout, string(payload))
	return err
}

func printNodes(nodes []bird.Presence) error {
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].NodeID < nodes[j].NodeID })
	rows := pterm.TableData{{"NODE_ID", "KIND", "NAME"}}
	for _, node := range nodes {
		rows = append(rows, []string{node.NodeID, node.Kind, node.Name})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
}

func printState(state bird.PlayerState) error {
	item := "(nothing)"
	if state.Track != nil {
		item = state.Track.Title
		if state.Track.Artist != "" {
			item = fmt.Sprintf("%s - %s", state.Track.Artist, state.Track.Title)
		}
	}

	volume := fmt.Sprintf("vol %d%%", int(state.Volume*100+0.5))
	if state.Mute {
		volume = "muted"
	}
	line := fmt.Sprintf("[%s] %s  %s  %s", state.Status, item, formatPosition(state.PositionMS, state.DurationMS), volume)
	pterm.DefaultBasicText.Println(line)

	if state.Track != nil {
		social := fmt.Sprintf("%d likes / %d dislikes", state.Track.LikesCount, state.Track.DislikesCount)
		if state.Track.IsLiked {
			social += "  (liked)"
		}
		if state.Track.IsDisliked {
			social += "  (disliked)"
		}
		pterm.DefaultBasicText.Println(social)
	}
	if state.Queue != nil {
		mode := state.RepeatMode
		if state.Shuffle {
			mode += " shuffle"
		}
		pterm.DefaultBasicText.Println(fmt.Sprintf("queue %d/%d  repeat %s", state.Queue.Index+1, state.Queue.Length, mode))
	}
	if state.Library != nil && state.Library.IsLoading {
		pterm.DefaultBasicText.Println("library loading...")
	}
	return nil
}

func printQueue(reply bird.QueueGetReply, from int64) error {
	rows := pterm.TableData{{"", "INDEX", "TITLE", "ARTIST", "LEN", "LIKES"}}
	for i, track := range reply.Tracks {
		index := from + int64(i)
		marker := ""
		if index == reply.Index {
			marker = ">"
		}
		rows = append(rows, []string{
			marker,
			fmt.Sprintf("%d", index),
			track.Title,
			track.Artist,
			formatMS(track.DurationMS),
			fmt.Sprintf("%d", track.LikesCount),
		})
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(rows).Render(); err != nil {
		return err
	}
	pterm.DefaultBasicText.Println(fmt.Sprintf("%d tracks, cursor %d", reply.Length, reply.Index))
	return nil
}

func printCacheStats(stats bird.CacheStatsReply) error {
	rows := pterm.TableData{{"CLASS", "BYTES"}}
	classes := make([]string, 0, len(stats.PerClassBytes))
	for class := range stats.PerClassBytes {
		classes = append(classes, class)
	}
	sort.Strings(classes)
	for _, class := range classes {
		rows = append(rows, []string{class, fmt.Sprintf("%d", stats.PerClassBytes[class])})
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(rows).Render(); err != nil {
		return err
	}
	line := fmt.Sprintf("total %d bytes", stats.TotalBytes)
	if stats.MaxBytes > 0 {
		line = fmt.Sprintf("total %d of %d bytes", stats.TotalBytes, stats.MaxBytes)
	}
	pterm.DefaultBasicText.Println(line)
	return nil
}

func printCacheItems(reply bird.CacheListReply) error {
	rows := pterm.TableData{{"TITLE", "ARTIST", "URL"}}
	for _, item := range reply.Items {
		rows = append(rows, []string{item.Title, item.Artist, item.URL})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
}

func formatPosition(pos, dur int64) string {
	if pos == 0 && dur == 0 {
		return ""
	}
	return fmt.Sprintf("%s / %s", formatMS(pos), formatMS(dur))
}

func formatMS(ms int64) string {
	if ms <= 0 {
		return "0:00"
	}
	secs := ms / 1000
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}
