// Package cachemgr exposes the media cache management surface over
// the bird command topics, for settings-style UIs.
package cachemgr

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/vjiki/music-ios-bird/internal/adapters/mqttclient"
	"github.com/vjiki/music-ios-bird/internal/mediacache"
	"github.com/vjiki/music-ios-bird/pkg/bird"
)

type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
	Subscribe(topic string, qos byte, handler paho.MessageHandler) error
	Unsubscribe(topic string) error
}

// Config configures the cache manager module.
type Config struct {
	NodeID    string
	TopicBase string
	Name      string
	// MaxBytes is the advisory cache budget reported by stats. It is
	// never enforced here.
	MaxBytes int64
}

// Module answers cache.* commands against a media cache.
type Module struct {
	log      *zap.Logger
	client   mqttClient
	cache    *mediacache.Cache
	config   Config
	cmdTopic string
}

// NewModule creates a cache manager module.
func NewModule(log *zap.Logger, client *mqttclient.Client, cache *mediacache.Cache, cfg Config) (*Module, error) {
	if strings.TrimSpace(cfg.NodeID) == "" {
		return nil, errors.New("node_id required")
	}
	if strings.TrimSpace(cfg.TopicBase) == "" {
		cfg.TopicBase = bird.BaseTopic
	}
	if strings.TrimSpace(cfg.Name) == "" {
		cfg.Name = "Bird Cache"
	}
	if cache == nil {
		return nil, errors.New("cache required")
	}

	m := &Module{
		log:      log,
		cache:    cache,
		config:   cfg,
		cmdTopic: bird.TopicCommands(cfg.TopicBase, cfg.NodeID),
	}
	if client != nil {
		m.client = client
	}
	return m, nil
}

// Run starts the cache manager module.
func (m *Module) Run(ctx context.Context) error {
	if err := m.publishPresence(); err != nil {
		return err
	}

	handler := func(_ paho.Client, msg paho.Message) {
		m.handleMessage(msg)
	}
	if err := m.client.Subscribe(m.cmdTopic, 1, handler); err != nil {
		return err
	}
	defer m.client.Unsubscribe(m.cmdTopic)

	<-ctx.Done()
	return nil
}

func (m *Module) publishPresence() error {
	presence := bird.Presence{
		NodeID: m.config.NodeID,
		Kind:   "cache",
		Name:   m.config.Name,
		TS:     time.Now().Unix(),
	}
	payload, err := json.Marshal(presence)
	if err != nil {
		return err
	}
	return m.client.Publish(bird.TopicPresence(m.config.TopicBase, m.config.NodeID), 1, true, payload)
}

func (m *Module) handleMessage(msg paho.Message) {
	var cmd bird.CommandEnvelope
	if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
		m.log.Warn("invalid command", zap.Error(err))
		return
	}

	reply := m.dispatch(cmd)
	if cmd.ReplyTo == "" {
		return
	}
	payload, err := json.Marshal(reply)
	if err != nil {
		return
	}
	_ = m.client.Publish(cmd.ReplyTo, 1, false, payload)
}

func (m *Module) dispatch(cmd bird.CommandEnvelope) bird.ReplyEnvelope {
	if err := bird.ValidateCommandEnvelope(cmd); err != nil {
		return errorReply(cmd, "INVALID", err.Error())
	}

	reply := bird.ReplyEnvelope{ID: cmd.ID, Type: "ack", OK: true, TS: time.Now().Unix()}

	switch cmd.Type {
	case "cache.stats":
		return m.handleStats(cmd, reply)
	case "cache.list":
		return m.handleList(cmd, reply)
	case "cache.clear":
		return m.handleClear(cmd, reply)
	case "cache.remove":
		return m.handleRemove(cmd, reply)
	default:
		return errorReply(cmd, "UNSUPPORTED", "unknown command type")
	}
}

func (m *Module) handleStats(cmd bird.CommandEnvelope, reply bird.ReplyEnvelope) bird.ReplyEnvelope {
	stats := bird.CacheStatsReply{
		PerClassBytes: make(map[string]int64, len(mediacache.Classes)),
		MaxBytes:      m.config.MaxBytes,
	}
	for _, class := range mediacache.Classes {
		size := m.cache.Size(class)
		stats.PerClassBytes[string(class)] = size
		stats.TotalBytes += size
	}

	payload, err := json.Marshal(stats)
	if err != nil {
		return errorReply(cmd, "INVALID", "encode stats")
	}
	reply.Body = payload
	return reply
}

func (m *Module) handleList(cmd bird.CommandEnvelope, reply bird.ReplyEnvelope) bird.ReplyEnvelope {
	var body bird.CacheListBody
	if err := json.Unmarshal(cmd.Body, &body); err != nil {
		return errorReply(cmd, "INVALID", "invalid body")
	}
	class, err := mediacache.ParseClass(body.Class)
	if err != nil {
		return errorReply(cmd, "INVALID", err.Error())
	}

	entries := m.cache.List(class)
	out := bird.CacheListReply{Items: make([]bird.CacheItem, 0, len(entries))}
	for _, meta := range entries {
		out.Items = append(out.Items, bird.CacheItem{
			URL:      meta.URL,
			Title:    meta.Title,
			Artist:   meta.Artist,
			CoverURL: meta.CoverURL,
		})
	}

	payload, err := json.Marshal(out)
	if err != nil {
		return errorReply(cmd, "INVALID", "encode listing")
	}
	reply.Body = payload
	return reply
}

func (m *Module) handleClear(cmd bird.CommandEnvelope, reply bird.ReplyEnvelope) bird.ReplyEnvelope {
	var body bird.CacheClearBody
	if err := json.Unmarshal(cmd.Body, &body); err != nil {
		return errorReply(cmd, "INVALID", "invalid body")
	}

	if body.Class == "" {
		if err := m.cache.Clear(); err != nil {
			return errorReply(cmd, "INVALID", err.Error())
		}
		return reply
	}
	class, err := mediacache.ParseClass(body.Class)
	if err != nil {
		return errorReply(cmd, "INVALID", err.Error())
	}
	if err := m.cache.Clear(class); err != nil {
		return errorReply(cmd, "INVALID", err.Error())
	}
	return reply
}

func (m *Module) handleRemove(cmd bird.CommandEnvelope, reply bird.ReplyEnvelope) bird.ReplyEnvelope {
	var body bird.CacheRemoveBody
	if err := json.Unmarshal(cmd.Body, &body); err != nil {
		return errorReply(cmd, "INVALID", "invalid body")
	}
	class, err := mediacache.ParseClass(body.Class)
	if err != nil {
		return errorReply(cmd, "INVALID", err.Error())
	}
	if body.URL == "" {
		return errorReply(cmd, "INVALID", "url required")
	}
	if !m.cache.Has(class, body.URL) {
		return errorReply(cmd, "NOT_FOUND", "asset not cached")
	}
	if err := m.cache.Remove(class, body.URL); err != nil {
		return errorReply(cmd, "INVALID", err.Error())
	}
	return reply
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
