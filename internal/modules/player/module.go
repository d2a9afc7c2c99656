// Package player exposes the playback orchestrator over the bird
// command surface.
package player

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/vjiki/music-ios-bird/internal/adapters/mqttclient"
	"github.com/vjiki/music-ios-bird/internal/library"
	"github.com/vjiki/music-ios-bird/internal/mediacache"
	"github.com/vjiki/music-ios-bird/internal/orchestrator"
	"github.com/vjiki/music-ios-bird/internal/playback"
	"github.com/vjiki/music-ios-bird/internal/playqueue"
	"github.com/vjiki/music-ios-bird/pkg/bird"
)

type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
	Subscribe(topic string, qos byte, handler paho.MessageHandler) error
	Unsubscribe(topic string) error
}

// Config configures the player module.
type Config struct {
	NodeID    string
	TopicBase string
	Name      string
	Tick      time.Duration
	Looping   bool
	PageSize  int
	Volume    float64
}

// Deps are the collaborators the player composes into its
// orchestrator.
type Deps struct {
	Driver     playback.Driver
	Fetcher    *mediacache.Fetcher
	Source     library.TrackSource
	Engagement library.EngagementSink
	Identity   *library.Identity
}

// Module is the playback node: it owns an orchestrator, answers
// commands, and keeps the retained state topic current.
type Module struct {
	log      *zap.Logger
	client   mqttClient
	orch     *orchestrator.Orchestrator
	config   Config
	cmdTopic string
}

// NewModule creates a player module.
func NewModule(log *zap.Logger, client *mqttclient.Client, deps Deps, cfg Config) (*Module, error) {
	if strings.TrimSpace(cfg.NodeID) == "" {
		return nil, errors.New("node_id required")
	}
	if strings.TrimSpace(cfg.TopicBase) == "" {
		cfg.TopicBase = bird.BaseTopic
	}
	if strings.TrimSpace(cfg.Name) == "" {
		cfg.Name = "Bird Player"
	}
	if deps.Driver == nil {
		return nil, errors.New("driver required")
	}

	m := &Module{
		log:      log,
		config:   cfg,
		cmdTopic: bird.TopicCommands(cfg.TopicBase, cfg.NodeID),
	}
	if client != nil {
		m.client = client
	}
	m.orch = orchestrator.New(log, deps.Driver, deps.Fetcher, deps.Source, deps.Engagement, deps.Identity, m.publishState, orchestrator.Options{
		Tick:     cfg.Tick,
		Looping:  cfg.Looping,
		PageSize: cfg.PageSize,
	})
	return m, nil
}

// Run starts the player module.
func (m *Module) Run(ctx context.Context) error {
	if err := m.publishPresence(); err != nil {
		return err
	}
	if m.config.Volume > 0 {
		m.orch.SetVolume(m.config.Volume)
	} else {
		m.publishState(m.orch.Snapshot())
	}

	handler := func(_ paho.Client, msg paho.Message) {
		m.handleMessage(msg)
	}
	if err := m.client.Subscribe(m.cmdTopic, 1, handler); err != nil {
		return err
	}
	defer m.client.Unsubscribe(m.cmdTopic)

	<-ctx.Done()
	m.orch.Stop()
	return nil
}

func (m *Module) publishPresence() error {
	presence := bird.Presence{
		NodeID: m.config.NodeID,
		Kind:   "player",
		Name:   m.config.Name,
		Caps: map[string]any{
			"seek":    true,
			"volume":  true,
			"shuffle": true,
			"repeat":  true,
			"engage":  true,
		},
		TS: time.Now().Unix(),
	}
	payload, err := json.Marshal(presence)
	if err != nil {
		return err
	}
	return m.client.Publish(bird.TopicPresence(m.config.TopicBase, m.config.NodeID), 1, true, payload)
}

func (m *Module) publishState(state bird.PlayerState) {
	if m.client == nil {
		return
	}
	payload, err := json.Marshal(state)
	if err != nil {
		return
	}
	_ = m.client.Publish(bird.TopicState(m.config.TopicBase, m.config.NodeID), 1, true, payload)
}

func (m *Module) handleMessage(msg paho.Message) {
	var cmd bird.CommandEnvelope
	if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
		m.log.Warn("invalid command", zap.Error(err))
		return
	}

	if cmd.Type == "library.loadMore" {
		// Network bound, keep it off the dispatch path.
		go m.publishReply(cmd.ReplyTo, m.dispatch(cmd))
		return
	}
	m.publishReply(cmd.ReplyTo, m.dispatch(cmd))
}

func (m *Module) publishReply(replyTo string, reply bird.ReplyEnvelope) {
	if replyTo == "" {
		return
	}
	payload, err := json.Marshal(reply)
	if err != nil {
		return
	}
	_ = m.client.Publish(replyTo, 1, false, payload)
}

func (m *Module) dispatch(cmd bird.CommandEnvelope) bird.ReplyEnvelope {
	if err := bird.ValidateCommandEnvelope(cmd); err != nil {
		return errorReply(cmd, "INVALID", err.Error())
	}

	reply := bird.ReplyEnvelope{ID: cmd.ID, Type: "ack", OK: true, TS: time.Now().Unix()}

	switch cmd.Type {
	case "playback.play":
		var body bird.PlaybackPlayBody
		if err := json.Unmarshal(cmd.Body, &body); err != nil {
			return errorReply(cmd, "INVALID", "invalid body")
		}
		switch {
		case body.Track != nil:
			m.orch.PlayTrack(*body.Track, body.Tracks)
		case body.Index != nil:
			if !m.orch.PlayIndex(int(*body.Index)) {
				return errorReply(cmd, "INVALID", "index out of range")
			}
		default:
			m.orch.Play()
		}
		return reply
	case "playback.toggle":
		m.orch.TogglePlayPause()
		return reply
	case "playback.pause":
		m.orch.Pause()
		return reply
	case "playback.next":
		m.orch.Advance(false)
		return reply
	case "playback.prev":
		m.orch.Previous()
		return reply
	case "playback.seek":
		var body bird.PlaybackSeekBody
		if err := json.Unmarshal(cmd.Body, &body); err != nil {
			return errorReply(cmd, "INVALID", "invalid body")
		}
		m.orch.Seek(body.PositionMS)
		return reply
	case "playback.setVolume":
		var body bird.PlaybackSetVolumeBody
		if err := json.Unmarshal(cmd.Body, &body); err != nil {
			return errorReply(cmd, "INVALID", "invalid body")
		}
		if body.Volume < 0 || body.Volume > 1 {
			return errorReply(cmd, "INVALID", "volume must be within 0..1")
		}
		m.orch.SetVolume(body.Volume)
		return reply
	case "playback.setMute":
		var body bird.PlaybackSetMuteBody
		if err := json.Unmarshal(cmd.Body, &body); err != nil {
			return errorReply(cmd, "INVALID", "invalid body")
		}
		m.orch.SetMute(body.Mute)
		return reply
	case "queue.setShuffle":
		var body bird.QueueSetShuffleBody
		if err := json.Unmarshal(cmd.Body, &body); err != nil {
			return errorReply(cmd, "INVALID", "invalid body")
		}
		m.orch.SetShuffle(body.Shuffle)
		return reply
	case "queue.setRepeat":
		var body bird.QueueSetRepeatBody
		if err := json.Unmarshal(cmd.Body, &body); err != nil {
			return errorReply(cmd, "INVALID", "invalid body")
		}
		if body.Mode == "" {
			m.orch.CycleRepeat()
			return reply
		}
		mode, ok := playqueue.ParseRepeatMode(body.Mode)
		if !ok {
			return errorReply(cmd, "INVALID", "mode must be off, all or one")
		}
		m.orch.SetRepeat(mode)
		return reply
	case "queue.jump":
		var body bird.QueueJumpBody
		if err := json.Unmarshal(cmd.Body, &body); err != nil {
			return errorReply(cmd, "INVALID", "invalid body")
		}
		if !m.orch.PlayIndex(int(body.Index)) {
			return errorReply(cmd, "INVALID", "index out of range")
		}
		return reply
	case "queue.get":
		var body bird.QueueGetBody
		if err := json.Unmarshal(cmd.Body, &body); err != nil {
			return errorReply(cmd, "INVALID", "invalid body")
		}
		snapshot := m.orch.Queue().Snapshot(body.From, body.Count)
		payload, err := json.Marshal(snapshot)
		if err != nil {
			return errorReply(cmd, "INVALID", "encode queue")
		}
		reply.Body = payload
		return reply
	case "engage.like":
		m.orch.Like()
		return reply
	case "engage.dislike":
		m.orch.Dislike()
		return reply
	case "library.loadMore":
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		m.orch.LoadMore(ctx)
		return reply
	default:
		return errorReply(cmd, "UNSUPPORTED", "unknown command type")
	}
}

func errorReply(cmd bird.CommandEnvelope, code string, message string) bird.ReplyEnvelope {
	return bird.ReplyEnvelope{
		ID:   cmd.ID,
		Type: "error",
		OK:   false,
		TS:   time.Now().Unix(),
		Err:  &bird.ReplyError{Code: code, Message: message},
	}
}
