package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/clawinfra/tenx/internal/config"
	"github.com/clawinfra/tenx/internal/tools"
)

var errNotConnected = errors.New("mqtt not connected")

// MQTT publishes calls to <prefix>/commands and waits for the matching
// response on <prefix>/results/<request id>.
type MQTT struct {
	cfg     config.MQTTConfig
	timeout time.Duration
	logger  *slog.Logger

	clientFactory func(opts *mqtt.ClientOptions) MQTTClient
	client        MQTTClient

	mu      sync.Mutex
	pending map[string]chan Response
}

// NewMQTT creates an MQTT executor. Start must be called before use.
func NewMQTT(cfg config.MQTTConfig, timeout time.Duration, logger *slog.Logger) *MQTT {
	return NewMQTTWithClient(cfg, timeout, logger, func(opts *mqtt.ClientOptions) MQTTClient {
		return &pahoClient{client: mqtt.NewClient(opts)}
	})
}

// NewMQTTWithClient creates an MQTT executor with a custom client factory.
func NewMQTTWithClient(cfg config.MQTTConfig, timeout time.Duration, logger *slog.Logger, factory func(*mqtt.ClientOptions) MQTTClient) *MQTT {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "tenx/tools"
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "tenx"
	}
	return &MQTT{
		cfg:           cfg,
		timeout:       timeout,
		logger:        logger.With("component", "mqtt_executor"),
		clientFactory: factory,
		pending:       make(map[string]chan Response),
	}
}

func (m *MQTT) commandsTopic() string { return m.cfg.TopicPrefix + "/commands" }
func (m *MQTT) resultsTopic() string  { return m.cfg.TopicPrefix + "/results/+" }

// Start connects to the broker and subscribes to results.
func (m *MQTT) Start(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(m.cfg.Broker)
	opts.SetClientID(fmt.Sprintf("%s-%d", m.cfg.ClientID, time.Now().Unix()))
	if m.cfg.Username != "" {
		opts.SetUsername(m.cfg.Username)
		opts.SetPassword(m.cfg.Password)
	}
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		m.logger.Warn("mqtt connection lost", "error", err)
	})
	opts.SetOnConnectHandler(func(mqtt.Client) {
		if err := m.subscribe(); err != nil {
			m.logger.Error("failed to resubscribe", "error", err)
		}
	})

	m.client = m.clientFactory(opts)

	m.logger.Info("connecting to mqtt broker", "broker", m.cfg.Broker)
	token := m.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connect to mqtt: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.subscribe()
}

func (m *MQTT) subscribe() error {
	topic := m.resultsTopic()
	token := m.client.Subscribe(topic, 1, m.handleResult)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("subscribe timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe to %s: %w", topic, err)
	}
	m.logger.Info("subscribed", "topic", topic)
	return nil
}

func (m *MQTT) Execute(ctx context.Context, call tools.Call) tools.Execution {
	if m.client == nil || !m.client.IsConnected() {
		return failed(call, "%v", errNotConnected)
	}

	id := uuid.New().String()
	payload, err := json.Marshal(Request{ID: id, Name: call.Name, Args: call.Args})
	if err != nil {
		return failed(call, "encode arguments: %v", err)
	}

	ch := make(chan Response, 1)
	m.mu.Lock()
	m.pending[id] = ch
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.pending, id)
		m.mu.Unlock()
	}()

	token := m.client.Publish(m.commandsTopic(), 1, false, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return failed(call, "publish timeout")
	}
	if err := token.Error(); err != nil {
		return failed(call, "publish: %v", err)
	}
	m.logger.Debug("tool call published", "tool", call.Name, "request_id", id)

	timer := time.NewTimer(m.timeout)
	defer timer.Stop()
	select {
	case resp := <-ch:
		return resp.execution(call)
	case <-timer.C:
		m.logger.Warn("tool result timed out", "tool", call.Name, "request_id", id, "timeout", m.timeout)
		return failed(call, "no result after %s", m.timeout)
	case <-ctx.Done():
		return failed(call, "cancelled: %v", ctx.Err())
	}
}

// handleResult routes a result message to the waiting call.
func (m *MQTT) handleResult(_ mqtt.Client, msg mqtt.Message) {
	var resp Response
	if err := json.Unmarshal(msg.Payload(), &resp); err != nil {
		m.logger.Error("failed to parse tool result", "topic", msg.Topic(), "error", err)
		return
	}
	if resp.RequestID == "" {
		resp.RequestID = msg.Topic()[strings.LastIndex(msg.Topic(), "/")+1:]
	}

	m.mu.Lock()
	ch, ok := m.pending[resp.RequestID]
	m.mu.Unlock()
	if !ok {
		m.logger.Warn("dropping result for unknown request", "request_id", resp.RequestID)
		return
	}
	select {
	case ch <- resp:
	default:
		m.logger.Warn("duplicate result dropped", "request_id", resp.RequestID)
	}
}

// Close disconnects from the broker.
func (m *MQTT) Close() error {
	if m.client != nil && m.client.IsConnected() {
		m.client.Disconnect(250)
	}
	return nil
}
