package bird

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// BaseTopic is the default MQTT topic prefix for the protocol.
const BaseTopic = "bird/v1"

// CommandEnvelope is the common command envelope sent to a node.
type CommandEnvelope struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	TS      int64           `json:"ts"`
	From    string          `json:"from"`
	ReplyTo string          `json:"replyTo,omitempty"`
	Body    json.RawMessage `json:"body"`
}

// ReplyEnvelope is the response envelope for commands.
type ReplyEnvelope struct {
	ID   string          `json:"id"`
	Type string          `json:"type"`
	OK   bool            `json:"ok"`
	TS   int64           `json:"ts"`
	Body json.RawMessage `json:"body,omitempty"`
	Err  *ReplyError     `json:"err,omitempty"`
}

// ReplyError describes an error response.
type ReplyError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Presence describes a node presence payload.
type Presence struct {
	NodeID string         `json:"nodeId"`
	Kind   string         `json:"kind"`
	Name   string         `json:"name"`
	Caps   map[string]any `json:"caps,omitempty"`
	TS     int64          `json:"ts"`
}

// Track is a playable item with its social counters. Counters are
// snapshots of backend state at fetch time; they are merged, not
// overwritten, when the same track arrives from a fresher source.
type Track struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Artist        string `json:"artist,omitempty"`
	AudioURL      string `json:"audioUrl"`
	CoverURL      string `json:"coverUrl,omitempty"`
	DurationMS    int64  `json:"durationMs,omitempty"`
	LikesCount    int64  `json:"likesCount"`
	DislikesCount int64  `json:"dislikesCount"`
	IsLiked       bool   `json:"isLiked"`
	IsDisliked    bool   `json:"isDisliked"`
}

// HasDefaultCounters reports whether the track carries only zero-value
// social state, meaning a library copy with real counters wins a merge.
func (t Track) HasDefaultCounters() bool {
	return t.LikesCount == 0 && t.DislikesCount == 0 && !t.IsLiked && !t.IsDisliked
}

// PlayerState is the retained now-playing snapshot published to the
// external surface on every meaningful state change.
type PlayerState struct {
	Track        *Track        `json:"track,omitempty"`
	Status       string        `json:"status"`
	PositionMS   int64         `json:"positionMs"`
	DurationMS   int64         `json:"durationMs"`
	Shuffle      bool          `json:"shuffle"`
	RepeatMode   string        `json:"repeatMode"`
	Volume       float64       `json:"volume"`
	Mute         bool          `json:"mute"`
	Queue        *QueueState   `json:"queue,omitempty"`
	Library      *LibraryState `json:"library,omitempty"`
	StateVersion int64         `json:"stateVersion,omitempty"`
	TS           int64         `json:"ts"`
}

// QueueState summarizes the play queue.
type QueueState struct {
	Length int64 `json:"length"`
	Index  int64 `json:"index"`
}

// LibraryState carries pagination flags for the track listing.
type LibraryState struct {
	Total     int64 `json:"total"`
	HasMore   bool  `json:"hasMore"`
	IsLoading bool  `json:"isLoading"`
}

// NewCommand builds a command envelope with a JSON body.
func NewCommand(cmdType string, body any) (CommandEnvelope, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return CommandEnvelope{}, fmt.Errorf("marshal body: %w", err)
	}

	return CommandEnvelope{
		Type: cmdType,
		Body: payload,
	}, nil
}

// ValidateCommandEnvelope validates required envelope fields.
func ValidateCommandEnvelope(cmd CommandEnvelope) error {
	if strings.TrimSpace(cmd.ID) == "" {
		return errors.New("id is required")
	}
	if strings.TrimSpace(cmd.Type) == "" {
		return errors.New("type is required")
	}
	if cmd.TS <= 0 {
		return errors.New("ts must be a positive unix timestamp")
	}
	if strings.TrimSpace(cmd.From) == "" {
		return errors.New("from is required")
	}
	if len(cmd.Body) == 0 {
		return errors.New("body is required")
	}
	return nil
}

// TopicPresence builds the presence topic for a node.
func TopicPresence(topicBase, nodeID string) string {
	return fmt.Sprintf("%s/node/%s/presence", topicBase, nodeID)
}

// TopicState builds the retained state topic for a node.
func TopicState(topicBase, nodeID string) string {
	return fmt.Sprintf("%s/node/%s/state", topicBase, nodeID)
}

// TopicCommands builds the command topic for a node.
func TopicCommands(topicBase, nodeID string) string {
	return fmt.Sprintf("%s/node/%s/cmd", topicBase, nodeID)
}

// TopicReply builds the reply topic for a controller instance.
func TopicReply(topicBase, controllerID string) string {
	return fmt.Sprintf("%s/reply/%s", topicBase, controllerID)
}
