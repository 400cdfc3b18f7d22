package executor

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clawinfra/tenx/internal/config"
	"github.com/clawinfra/tenx/internal/tools"
	"github.com/clawinfra/tenx/internal/types"
)

type mockToken struct {
	err     error
	timeout bool
}

func (m *mockToken) Wait() bool                     { return true }
func (m *mockToken) WaitTimeout(time.Duration) bool { return !m.timeout }
func (m *mockToken) Error() error                   { return m.err }
func (m *mockToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type mockMessage struct {
	topic   string
	payload []byte
}

func (m *mockMessage) Duplicate() bool   { return false }
func (m *mockMessage) Qos() byte         { return 1 }
func (m *mockMessage) Retained() bool    { return false }
func (m *mockMessage) Topic() string     { return m.topic }
func (m *mockMessage) MessageID() uint16 { return 0 }
func (m *mockMessage) Payload() []byte   { return m.payload }
func (m *mockMessage) Ack()              {}

// mockBroker answers every published command through the subscribed
// results handler using respond.
type mockBroker struct {
	mu          sync.Mutex
	connected   bool
	connectErr  error
	handler     mqtt.MessageHandler
	subscribed  string
	published   []string
	respond     func(req Request) (topic string, resp any, ok bool)
	publishFail error
}

func (b *mockBroker) Connect() mqtt.Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.connectErr != nil {
		return &mockToken{err: b.connectErr}
	}
	b.connected = true
	return &mockToken{}
}

func (b *mockBroker) Disconnect(uint) {
	b.mu.Lock()
	b.connected = false
	b.mu.Unlock()
}

func (b *mockBroker) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

func (b *mockBroker) Subscribe(topic string, _ byte, cb mqtt.MessageHandler) mqtt.Token {
	b.mu.Lock()
	b.subscribed, b.handler = topic, cb
	b.mu.Unlock()
	return &mockToken{}
}

func (b *mockBroker) Publish(topic string, _ byte, _ bool, payload interface{}) mqtt.Token {
	b.mu.Lock()
	b.published = append(b.published, topic)
	handler, respond, fail := b.handler, b.respond, b.publishFail
	b.mu.Unlock()
	if fail != nil {
		return &mockToken{err: fail}
	}

	var req Request
	if err := json.Unmarshal(payload.([]byte), &req); err != nil {
		return &mockToken{err: err}
	}
	if respond != nil {
		if replyTopic, resp, ok := respond(req); ok {
			data, _ := json.Marshal(resp)
			go handler(nil, &mockMessage{topic: replyTopic, payload: data})
		}
	}
	return &mockToken{}
}

func startMQTT(t *testing.T, b *mockBroker, timeout time.Duration) *MQTT {
	t.Helper()
	m := NewMQTTWithClient(config.MQTTConfig{Broker: "tcp://broker:1883", TopicPrefix: "test/tools"}, timeout, testLogger(),
		func(*mqtt.ClientOptions) MQTTClient { return b })
	require.NoError(t, m.Start(context.Background()))
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestMQTTRoundTrip(t *testing.T) {
	b := &mockBroker{respond: func(req Request) (string, any, bool) {
		return "test/tools/results/" + req.ID, Response{
			Success:  true,
			Output:   "created " + req.Args.String("title"),
			Artifact: &types.Artifact{ID: "a", Kind: types.ArtifactReminder, Title: req.Args.String("title")},
		}, true
	}}
	m := startMQTT(t, b, time.Second)
	assert.Equal(t, "test/tools/results/+", b.subscribed)

	exec := m.Execute(context.Background(), reminderCall())
	require.True(t, exec.Result.Success, exec.Result.Error)
	assert.Equal(t, "created Call Bob", exec.Result.Output)
	require.NotNil(t, exec.Artifact)
	assert.Equal(t, "Call Bob", exec.Artifact.Title)
	assert.Equal(t, []string{"test/tools/commands"}, b.published)
}

func TestMQTTConcurrentCallsAreMatchedByRequestID(t *testing.T) {
	b := &mockBroker{respond: func(req Request) (string, any, bool) {
		return "test/tools/results/ignored", map[string]any{
			"request_id": req.ID,
			"success":    true,
			"output":     req.Name,
		}, true
	}}
	m := startMQTT(t, b, time.Second)

	names := []string{"create_reminder", "create_or_update_task", "append_to_weekly_journal", "read_journal"}
	outputs := make([]string, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outputs[i] = m.Execute(context.Background(), tools.Call{Name: name}).Result.Output
		}()
	}
	wg.Wait()
	assert.Equal(t, names, outputs)
}

func TestMQTTTimeoutAndCancel(t *testing.T) {
	b := &mockBroker{}
	m := startMQTT(t, b, 20*time.Millisecond)

	exec := m.Execute(context.Background(), reminderCall())
	assert.False(t, exec.Result.Success)
	assert.Contains(t, exec.Result.Error, "no result after")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m = startMQTT(t, &mockBroker{}, time.Minute)
	exec = m.Execute(ctx, reminderCall())
	assert.Contains(t, exec.Result.Error, "cancelled")
}

func TestMQTTFailures(t *testing.T) {
	m := NewMQTTWithClient(config.MQTTConfig{}, time.Second, testLogger(),
		func(*mqtt.ClientOptions) MQTTClient { return &mockBroker{connectErr: errors.New("refused")} })
	assert.ErrorContains(t, m.Start(context.Background()), "refused")
	assert.Contains(t, m.Execute(context.Background(), reminderCall()).Result.Error, "not connected")

	b := &mockBroker{publishFail: errors.New("queue full")}
	m = startMQTT(t, b, time.Second)
	assert.Contains(t, m.Execute(context.Background(), reminderCall()).Result.Error, "queue full")

	b = &mockBroker{respond: func(req Request) (string, any, bool) {
		return "test/tools/results/" + req.ID, Response{Success: false, Error: "no such list"}, true
	}}
	m = startMQTT(t, b, time.Second)
	exec := m.Execute(context.Background(), reminderCall())
	assert.False(t, exec.Result.Success)
	assert.Equal(t, "no such list", exec.Result.Error)
}

func TestMQTTIgnoresUnknownAndMalformedResults(t *testing.T) {
	b := &mockBroker{}
	m := startMQTT(t, b, time.Second)

	assert.NotPanics(t, func() {
		b.handler(nil, &mockMessage{topic: "test/tools/results/nobody", payload: []byte(`{"success":true}`)})
		b.handler(nil, &mockMessage{topic: "test/tools/results/x", payload: []byte(`not json`)})
	})
	assert.Empty(t, m.pending)
}
