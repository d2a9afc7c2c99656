package player

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/vjiki/music-ios-bird/pkg/bird"
)

type fakeMQTTClient struct {
	mu        sync.Mutex
	subs      map[string]paho.MessageHandler
	published map[string][][]byte
	onPublish func(topic string, payload []byte)
}

func (f *fakeMQTTClient) Publish(topic string, qos byte, retained bool, payload []byte) error {
	f.mu.Lock()
	if f.published == nil {
		f.published = make(map[string][][]byte)
	}
	f.published[topic] = append(f.published[topic], payload)
	cb := f.onPublish
	f.mu.Unlock()
	if cb != nil {
		cb(topic, payload)
	}
	return nil
}

func (f *fakeMQTTClient) Subscribe(topic string, qos byte, handler paho.MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subs == nil {
		f.subs = make(map[string]paho.MessageHandler)
	}
	f.subs[topic] = handler
	return nil
}

func (f *fakeMQTTClient) Unsubscribe(topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.subs, topic)
	return nil
}

func (f *fakeMQTTClient) emit(topic string, payload []byte) {
	f.mu.Lock()
	handler := f.subs[topic]
	f.mu.Unlock()
	if handler != nil {
		handler(nil, fakeMessage{topic: topic, payload: payload})
	}
}

func (f *fakeMQTTClient) lastPublished(topic string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := f.published[topic]
	if len(msgs) == 0 {
		return nil, false
	}
	return msgs[len(msgs)-1], true
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 0 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 0 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

type stubDriver struct{}

func (d stubDriver) Play(url string, positionMS int64) error { return nil }
func (d stubDriver) Pause() error                            { return nil }
func (d stubDriver) Resume() error                           { return nil }
func (d stubDriver) Stop() error                             { return nil }
func (d stubDriver) Seek(positionMS int64) error             { return nil }
func (d stubDriver) SetVolume(volume float64) error          { return nil }
func (d stubDriver) SetMute(mute bool) error                 { return nil }
func (d stubDriver) Position() (int64, int64, bool)          { return 0, 0, false }

func newTestModule(t *testing.T) (*Module, *fakeMQTTClient) {
	t.Helper()
	client := &fakeMQTTClient{}
	m, err := NewModule(zap.NewNop(), nil, Deps{Driver: stubDriver{}}, Config{
		NodeID:    "bird:player:test",
		TopicBase: bird.BaseTopic,
		Name:      "Test Player",
		Tick:      time.Hour,
	})
	if err != nil {
		t.Fatalf("new module: %v", err)
	}
	m.client = client
	return m, client
}

func command(t *testing.T, cmdType string, body any) bird.CommandEnvelope {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	return bird.CommandEnvelope{
		ID:   "cmd-1",
		Type: cmdType,
		TS:   time.Now().Unix(),
		From: "tester",
		Body: payload,
	}
}

func testTracks() []bird.Track {
	return []bird.Track{
		{ID: "a", Title: "A", AudioURL: "http://cdn/a.mp3"},
		{ID: "b", Title: "B", AudioURL: "http://cdn/b.mp3"},
		{ID: "c", Title: "C", AudioURL: "http://cdn/c.mp3"},
	}
}

func retainedState(t *testing.T, client *fakeMQTTClient) bird.PlayerState {
	t.Helper()
	payload, ok := client.lastPublished(bird.TopicState(bird.BaseTopic, "bird:player:test"))
	if !ok {
		t.Fatal("no state published")
	}
	var state bird.PlayerState
	if err := json.Unmarshal(payload, &state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	return state
}

func TestPlayCommandStartsTrack(t *testing.T) {
	m, client := newTestModule(t)
	tracks := testTracks()

	reply := m.dispatch(command(t, "playback.play", bird.PlaybackPlayBody{
		Track:  &tracks[1],
		Tracks: tracks,
	}))

	if !reply.OK {
		t.Fatalf("reply not OK: %+v", reply.Err)
	}
	state := retainedState(t, client)
	if state.Track == nil || state.Track.ID != "b" {
		t.Fatalf("retained state track = %+v", state.Track)
	}
	if state.Queue == nil || state.Queue.Length != 3 {
		t.Fatalf("retained queue = %+v", state.Queue)
	}
}

func TestPlayIndexOutOfRange(t *testing.T) {
	m, _ := newTestModule(t)
	tracks := testTracks()
	m.dispatch(command(t, "playback.play", bird.PlaybackPlayBody{Track: &tracks[0], Tracks: tracks}))

	idx := int64(99)
	reply := m.dispatch(command(t, "playback.play", bird.PlaybackPlayBody{Index: &idx}))

	if reply.OK || reply.Err == nil || reply.Err.Code != "INVALID" {
		t.Fatalf("reply = %+v", reply)
	}
}

func TestInvalidEnvelopeRejected(t *testing.T) {
	m, _ := newTestModule(t)
	cmd := command(t, "playback.toggle", struct{}{})
	cmd.ID = ""

	reply := m.dispatch(cmd)

	if reply.OK || reply.Err == nil || reply.Err.Code != "INVALID" {
		t.Fatalf("reply = %+v", reply)
	}
}

func TestUnknownCommandUnsupported(t *testing.T) {
	m, _ := newTestModule(t)

	reply := m.dispatch(command(t, "zone.join", struct{}{}))

	if reply.OK || reply.Err == nil || reply.Err.Code != "UNSUPPORTED" {
		t.Fatalf("reply = %+v", reply)
	}
}

func TestVolumeOutOfRangeRejected(t *testing.T) {
	m, _ := newTestModule(t)

	reply := m.dispatch(command(t, "playback.setVolume", bird.PlaybackSetVolumeBody{Volume: 1.5}))

	if reply.OK || reply.Err == nil || reply.Err.Code != "INVALID" {
		t.Fatalf("reply = %+v", reply)
	}
}

func TestSetRepeatInvalidMode(t *testing.T) {
	m, _ := newTestModule(t)

	reply := m.dispatch(command(t, "queue.setRepeat", bird.QueueSetRepeatBody{Mode: "bogus"}))

	if reply.OK || reply.Err == nil || reply.Err.Code != "INVALID" {
		t.Fatalf("reply = %+v", reply)
	}
}

func TestQueueGetReturnsWindow(t *testing.T) {
	m, _ := newTestModule(t)
	tracks := testTracks()
	m.dispatch(command(t, "playback.play", bird.PlaybackPlayBody{Track: &tracks[0], Tracks: tracks}))

	reply := m.dispatch(command(t, "queue.get", bird.QueueGetBody{From: 0, Count: 2}))

	if !reply.OK {
		t.Fatalf("reply not OK: %+v", reply.Err)
	}
	var snapshot bird.QueueGetReply
	if err := json.Unmarshal(reply.Body, &snapshot); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snapshot.Length != 3 || len(snapshot.Tracks) != 2 {
		t.Fatalf("snapshot = %+v", snapshot)
	}
}

func TestLikeUpdatesRetainedState(t *testing.T) {
	m, client := newTestModule(t)
	tracks := testTracks()
	m.dispatch(command(t, "playback.play", bird.PlaybackPlayBody{Track: &tracks[0], Tracks: tracks}))

	reply := m.dispatch(command(t, "engage.like", struct{}{}))

	if !reply.OK {
		t.Fatalf("reply not OK: %+v", reply.Err)
	}
	state := retainedState(t, client)
	if state.Track == nil || !state.Track.IsLiked || state.Track.LikesCount != 1 {
		t.Fatalf("retained track after like = %+v", state.Track)
	}
}

func TestRunSubscribesAndReplies(t *testing.T) {
	m, client := newTestModule(t)

	done := make(chan struct{})
	replyCh := make(chan bird.ReplyEnvelope, 1)
	client.onPublish = func(topic string, payload []byte) {
		if topic != "bird/v1/reply/tester" {
			return
		}
		var reply bird.ReplyEnvelope
		if err := json.Unmarshal(payload, &reply); err != nil {
			return
		}
		select {
		case replyCh <- reply:
		default:
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		_ = m.Run(ctx)
		close(done)
	}()
	waitForSubscription(t, client, m.cmdTopic)

	cmd := command(t, "playback.toggle", struct{}{})
	cmd.ReplyTo = "bird/v1/reply/tester"
	payload, _ := json.Marshal(cmd)
	client.emit(m.cmdTopic, payload)

	select {
	case reply := <-replyCh:
		if !reply.OK {
			t.Fatalf("reply = %+v", reply)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reply")
	}

	if _, ok := client.lastPublished(bird.TopicPresence(bird.BaseTopic, "bird:player:test")); !ok {
		t.Fatal("presence never published")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("module did not stop")
	}
}

func waitForSubscription(t *testing.T, client *fakeMQTTClient, topic string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		client.mu.Lock()
		_, ok := client.subs[topic]
		client.mu.Unlock()
		if ok {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for subscription to %s", topic)
		case <-time.After(5 * time.Millisecond):
		}
	}
}
