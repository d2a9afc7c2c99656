// Package ctl is the controller side of the protocol: it publishes
// commands, correlates replies, and reads retained node state.
package ctl

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/vjiki/music-ios-bird/pkg/bird"
)

// Options configures the controller client.
type Options struct {
	BrokerURL string
	ClientID  string
	Identity  string
	Username  string
	Password  string
	TLSCA     string
	TLSCert   string
	TLSKey    string
	TopicBase string
	Timeout   time.Duration
}

// Client talks to daemon nodes over MQTT.
type Client struct {
	client     paho.Client
	replyTopic string
	topicBase  string
	identity   string
	timeout    time.Duration

	mu            sync.Mutex
	replyHandlers map[string]chan bird.ReplyEnvelope
}

// NewClient creates and connects a controller client.
func NewClient(opts Options) (*Client, error) {
	if opts.TopicBase == "" {
		opts.TopicBase = bird.BaseTopic
	}
	if opts.Timeout == 0 {
		opts.Timeout = 2 * time.Second
	}
	if opts.ClientID == "" {
		opts.ClientID = fmt.Sprintf("bird-%d", time.Now().UnixNano())
	}

	c := &Client{
		replyTopic:    bird.TopicReply(opts.TopicBase, opts.ClientID),
		topicBase:     opts.TopicBase,
		identity:      opts.Identity,
		timeout:       opts.Timeout,
		replyHandlers: map[string]chan bird.ReplyEnvelope{},
	}

	clientOpts := paho.NewClientOptions().AddBroker(opts.BrokerURL)
	clientOpts.SetClientID(opts.ClientID)
	clientOpts.SetConnectTimeout(opts.Timeout)
	clientOpts.SetAutoReconnect(true)
	clientOpts.SetOnConnectHandler(func(client paho.Client) {
		token := client.Subscribe(c.replyTopic, 1, c.handleReply)
		token.Wait()
	})

	if opts.Username != "" {
		clientOpts.SetUsername(opts.Username)
		clientOpts.SetPassword(opts.Password)
	}

	tlsConfig, err := buildTLSConfig(opts.TLSCA, opts.TLSCert, opts.TLSKey)
	if err != nil {
		return nil, err
	}
	if tlsConfig != nil {
		clientOpts.SetTLSConfig(tlsConfig)
	}

	c.client = paho.NewClient(clientOpts)
	if token := c.client.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	if token := c.client.Subscribe(c.replyTopic, 1, c.handleReply); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}

	return c, nil
}

// Disconnect closes the broker connection.
func (c *Client) Disconnect() {
	c.client.Disconnect(250)
}

// Send builds a command envelope, publishes it to a node, and waits
// for the correlated reply. A reply carrying an error becomes a
// CLIError with the matching exit code.
func (c *Client) Send(ctx context.Context, nodeID string, cmdType string, body any) (bird.ReplyEnvelope, error) {
	cmd, err := bird.NewCommand(cmdType, body)
	if err != nil {
		return bird.ReplyEnvelope{}, err
	}
	cmd.ID = uuid.NewString()
	cmd.TS = time.Now().Unix()
	cmd.From = c.identity
	cmd.ReplyTo = c.replyTopic

	req, err := json.Marshal(cmd)
	if err != nil {
		return bird.ReplyEnvelope{}, fmt.Errorf("marshal command: %w", err)
	}

	replyCh := make(chan bird.ReplyEnvelope, 1)
	c.mu.Lock()
	c.replyHandlers[cmd.ID] = replyCh
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.replyHandlers, cmd.ID)
		c.mu.Unlock()
	}()

	topic := bird.TopicCommands(c.topicBase, nodeID)
	if token := c.client.Publish(topic, 1, false, req); token.Wait() && token.Error() != nil {
		return bird.ReplyEnvelope{}, token.Error()
	}

	select {
	case <-ctx.Done():
		return bird.ReplyEnvelope{}, ctx.Err()
	case reply := <-replyCh:
		if reply.Err != nil {
			return reply, ErrorForReplyCode(reply.Err.Code, reply.Err.Message)
		}
		return reply, nil
	case <-time.After(c.timeout):
		return bird.ReplyEnvelope{}, errors.New("timeout waiting for reply")
	}
}

// ListPresence collects retained presence messages.
func (c *Client) ListPresence(ctx context.Context) ([]bird.Presence, error) {
	collect := make(map[string]bird.Presence)
	var collectMu sync.Mutex

	handler := func(_ paho.Client, msg paho.Message) {
		var presence bird.Presence
		if err := json.Unmarshal(msg.Payload(), &presence); err != nil {
			return
		}
		collectMu.Lock()
		collect[presence.NodeID] = presence
		collectMu.Unlock()
	}

	topic := fmt.Sprintf("%s/node/+/presence", c.topicBase)
	if token := c.client.Subscribe(topic, 1, handler); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	defer func() {
		token := c.client.Unsubscribe(topic)
		token.Wait()
	}()

	wait := time.NewTimer(250 * time.Millisecond)
	select {
	case <-ctx.Done():
		wait.Stop()
	case <-wait.C:
	}

	collectMu.Lock()
	defer collectMu.Unlock()
	out := make([]bird.Presence, 0, len(collect))
	for _, presence := range collect {
		out = append(out, presence)
	}
	return out, nil
}

// GetPlayerState returns the retained state of a player node.
func (c *Client) GetPlayerState(ctx context.Context, nodeID string) (bird.PlayerState, error) {
	stateCh := make(chan bird.PlayerState, 1)
	handler := func(_ paho.Client, msg paho.Message) {
		var state bird.PlayerState
		if err := json.Unmarshal(msg.Payload(), &state); err != nil {
			return
		}
		select {
		case stateCh <- state:
		default:
		}
	}

	topic := bird.TopicState(c.topicBase, nodeID)
	if token := c.client.Subscribe(topic, 1, handler); token.Wait() && token.Error() != nil {
		return bird.PlayerState{}, token.Error()
	}
	defer func() {
		token := c.client.Unsubscribe(topic)
		token.Wait()
	}()

	select {
	case <-ctx.Done():
		return bird.PlayerState{}, ctx.Err()
	case state := <-stateCh:
		return state, nil
	case <-time.After(c.timeout):
		return bird.PlayerState{}, errors.New("timeout waiting for state")
	}
}

// WatchPlayer streams retained state updates for a player node until
// the context ends.
func (c *Client) WatchPlayer(ctx context.Context, nodeID string) (<-chan bird.PlayerState, <-chan error) {
	stateCh := make(chan bird.PlayerState, 8)
	errCh := make(chan error, 1)

	handler := func(_ paho.Client, msg paho.Message) {
		var state bird.PlayerState
		if err := json.Unmarshal(msg.Payload(), &state); err != nil {
			return
		}
		select {
		case stateCh <- state:
		default:
		}
	}

	topic := bird.TopicState(c.topicBase, nodeID)
	if token := c.client.Subscribe(topic, 1, handler); token.Wait() && token.Error() != nil {
		errCh <- token.Error()
		return stateCh, errCh
	}

	go func() {
		<-ctx.Done()
		c.client.Unsubscribe(topic)
		close(stateCh)
		close(errCh)
	}()

	return stateCh, errCh
}

func (c *Client) handleReply(_ paho.Client, msg paho.Message) {
	var reply bird.ReplyEnvelope
	if err := json.Unmarshal(msg.Payload(), &reply); err != nil {
		return
	}

	c.mu.Lock()
	ch, ok := c.replyHandlers[reply.ID]
	c.mu.Unlock()
	if !ok {
		return
	}

	select {
	case ch <- reply:
	default:
	}
}

func buildTLSConfig(caPath, certPath, keyPath string) (*tls.Config, error) {
	if caPath == "" && certPath == "" && keyPath == "" {
		return nil, nil
	}

	config := &tls.Config{}
	if caPath != "" {
		pem, err := os.ReadFile(caPath)
		if err != nil {
			return nil, err
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, errors.New("failed to parse CA bundle")
		}
		config.RootCAs = pool
	}

	if certPath != "" || keyPath != "" {
		if certPath == "" || keyPath == "" {
			return nil, errors.New("both tls cert and key are required")
		}
		cert, err := tls.LoadX509KeyPair(certPath, keyPath)
		if err != nil {
			return nil, err
		}
		config.Certificates = []tls.Certificate{cert}
	}

	return config, nil
}
