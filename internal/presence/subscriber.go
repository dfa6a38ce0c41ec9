package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// Reconnect backoff bounds. The delay doubles per failed attempt and resets
// to the floor after a successful connection.
const (
	reconnectMin = 5 * time.Second
	reconnectMax = 2 * time.Minute
)

// Config holds the broker connection settings for the subscriber.
type Config struct {
	BrokerURL string `mapstructure:"broker_url"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	ClientID  string `mapstructure:"client_id"`
	BaseTopic string `mapstructure:"base_topic"`
}

// Subscriber is the long-lived background task feeding the presence cache.
// One instance per process, constructed explicitly and handed to the drivers
// that need it.
type Subscriber struct {
	cfg       Config
	cache     *Cache
	logger    *zap.Logger
	client    mqtt.Client
	connected atomic.Bool
}

// NewSubscriber creates a subscriber bound to the given cache.
func NewSubscriber(cfg Config, cache *Cache, logger *zap.Logger) *Subscriber {
	if cfg.BaseTopic == "" {
		cfg.BaseTopic = "zigbee2mqtt"
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "fleetpulse-agent"
	}
	return &Subscriber{cfg: cfg, cache: cache, logger: logger}
}

// Cache returns the cache this subscriber writes to.
func (s *Subscriber) Cache() *Cache { return s.cache }

// Connected reports whether the broker connection is currently up.
func (s *Subscriber) Connected() bool { return s.connected.Load() }

// State implements the presence source contract used by the zigbee driver.
func (s *Subscriber) State(name string) (DeviceState, bool) {
	return s.cache.Get(name)
}

// Run connects to the broker and keeps the subscription alive until ctx is
// cancelled. Connection failures never propagate; the probe side degrades to
// unknown while the broker is unreachable.
func (s *Subscriber) Run(ctx context.Context) {
	if s.cfg.BrokerURL == "" {
		s.logger.Info("presence subscriber disabled, no broker configured")
		<-ctx.Done()
		return
	}

	delay := reconnectMin
	for {
		err := s.connect(ctx)
		if err == nil {
			delay = reconnectMin
			// Paho reconnects transparently; block until shutdown.
			<-ctx.Done()
			s.disconnect()
			return
		}

		s.logger.Warn("broker connect failed, backing off",
			zap.String("broker", s.cfg.BrokerURL),
			zap.Duration("retry_in", delay),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay *= 2
		if delay > reconnectMax {
			delay = reconnectMax
		}
	}
}

// clientOptions builds the paho options for one connection attempt. Auto
// reconnect after the first success follows the same backoff bounds as the
// pre-connect loop; paho's own default ceiling is 10 minutes.
func (s *Subscriber) clientOptions() *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(s.cfg.BrokerURL)
	opts.SetClientID(s.cfg.ClientID)
	if s.cfg.Username != "" {
		opts.SetUsername(s.cfg.Username)
		opts.SetPassword(s.cfg.Password)
	}
	opts.SetKeepAlive(60 * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetryInterval(reconnectMin)
	opts.SetMaxReconnectInterval(reconnectMax)
	return opts
}

func (s *Subscriber) connect(ctx context.Context) error {
	opts := s.clientOptions()

	topic := s.cfg.BaseTopic + "/+"
	opts.OnConnect = func(c mqtt.Client) {
		s.connected.Store(true)
		s.logger.Info("broker connected", zap.String("broker", s.cfg.BrokerURL))
		if token := c.Subscribe(topic, 0, s.handleMessage); token.Wait() && token.Error() != nil {
			s.logger.Warn("subscribe failed", zap.String("topic", topic), zap.Error(token.Error()))
		}
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		s.connected.Store(false)
		s.logger.Warn("broker connection lost", zap.Error(err))
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		client.Disconnect(0)
		return fmt.Errorf("connect %s: timeout", s.cfg.BrokerURL)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connect %s: %w", s.cfg.BrokerURL, err)
	}
	s.client = client
	// OnConnect fires on a paho goroutine; mark the state here so a publish
	// immediately after a successful connect does not race it.
	s.connected.Store(true)
	return nil
}

// Connect performs a single connection attempt without the retry loop. One-
// shot callers like the actuate subcommand use it; Run is the long-lived
// entry point.
func (s *Subscriber) Connect(ctx context.Context) error {
	if s.cfg.BrokerURL == "" {
		return fmt.Errorf("no broker configured")
	}
	return s.connect(ctx)
}

// Close tears down the broker connection.
func (s *Subscriber) Close() {
	s.disconnect()
}

func (s *Subscriber) disconnect() {
	s.connected.Store(false)
	if s.client != nil {
		s.client.Disconnect(250)
	}
}

// handleMessage is the single cache writer. Topic layout is
// <base>/<friendly_name>; bridge meta topics and non-JSON payloads are
// ignored.
func (s *Subscriber) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	name := strings.TrimPrefix(msg.Topic(), s.cfg.BaseTopic+"/")
	if name == "" || strings.Contains(name, "/") || name == "bridge" {
		return
	}

	var fields map[string]any
	if err := json.Unmarshal(msg.Payload(), &fields); err != nil {
		s.logger.Debug("ignoring non-JSON presence payload", zap.String("device", name))
		return
	}

	lastSeen := parseLastSeen(fields["last_seen"])
	s.cache.Put(name, lastSeen, fields)
}

// PublishAction sends an actuation payload to a device's set topic, e.g.
// {"state":"ON"}. Not part of the monitoring contract; no retry, the caller
// owns any retry policy.
func (s *Subscriber) PublishAction(name string, payload map[string]any) error {
	if s.client == nil || !s.connected.Load() {
		return fmt.Errorf("publish %s: broker not connected", name)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("publish %s: %w", name, err)
	}
	token := s.client.Publish(s.cfg.BaseTopic+"/"+name+"/set", 0, false, raw)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish %s: timeout", name)
	}
	return token.Error()
}

// parseLastSeen accepts the Zigbee2MQTT last_seen variants: RFC3339-ish
// strings and epoch milliseconds. A zero time means the payload carried no
// usable last_seen.
func parseLastSeen(v any) time.Time {
	switch t := v.(type) {
	case string:
		for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05-07:00", "2006-01-02 15:04:05"} {
			if ts, err := time.Parse(layout, t); err == nil {
				return ts
			}
		}
	case float64:
		return time.UnixMilli(int64(t))
	}
	return time.Time{}
}
