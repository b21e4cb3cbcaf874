package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	mqtt "github.com/soypat/natiu-mqtt"
)

const mqttBufSize = 1024

// MQTTConfig configures the MQTT publisher.
type MQTTConfig struct {
	// Broker is a host:port TCP address.
	Broker   string
	ClientID string
	Timeout  time.Duration
}

// MQTTPublisher publishes events to an MQTT broker at QoS0, the way the
// collection-point display firmware consumes them. Every publish runs in
// its own short session (connect, publish, disconnect), so a connection the
// broker dropped while idle is never written to.
type MQTTPublisher struct {
	cfg   MQTTConfig
	flags mqtt.PacketFlags

	mu     sync.Mutex
	nextID uint16
}

// NewMQTTPublisher validates cfg; no connection is made until the first
// publish.
func NewMQTTPublisher(cfg MQTTConfig) (*MQTTPublisher, error) {
	if cfg.Broker == "" {
		return nil, errors.New("mqtt broker address is required")
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "wastenet"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	flags, err := mqtt.NewPublishFlags(mqtt.QoS0, false, false)
	if err != nil {
		return nil, err
	}
	return &MQTTPublisher{cfg: cfg, flags: flags}, nil
}

// Name implements Publisher.
func (p *MQTTPublisher) Name() string { return "mqtt" }

// connect dials the broker and waits for CONNACK. The deadline stays set
// on the returned conn for the rest of the session.
func (p *MQTTPublisher) connect(ctx context.Context, deadline time.Time) (net.Conn, *mqtt.Client, error) {
	dialer := net.Dialer{Deadline: deadline}
	conn, err := dialer.DialContext(ctx, "tcp", p.cfg.Broker)
	if err != nil {
		return nil, nil, fmt.Errorf("dial mqtt broker: %w", err)
	}

	client := mqtt.NewClient(mqtt.ClientConfig{
		Decoder: mqtt.DecoderNoAlloc{UserBuffer: make([]byte, mqttBufSize)},
		OnPub: func(_ mqtt.Header, _ mqtt.VariablesPublish, r io.Reader) error {
			_, err := io.Copy(io.Discard, r)
			return err
		},
	})

	var varconn mqtt.VariablesConnect
	varconn.SetDefaultMQTT([]byte(p.cfg.ClientID))
	// The session ends right after the publish; no PINGREQ is ever due.
	varconn.KeepAlive = 0

	_ = conn.SetDeadline(deadline)
	if err := client.StartConnect(conn, &varconn); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("mqtt connect: %w", err)
	}
	for !client.IsConnected() {
		if time.Now().After(deadline) {
			conn.Close()
			return nil, nil, errors.New("mqtt connect timeout")
		}
		if err := client.HandleNext(); err != nil {
			conn.Close()
			return nil, nil, fmt.Errorf("mqtt connack: %w", err)
		}
	}
	return conn, client, nil
}

// Publish implements Publisher.
func (p *MQTTPublisher) Publish(ctx context.Context, topic string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	deadline := time.Now().Add(p.cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	conn, client, err := p.connect(ctx, deadline)
	if err != nil {
		return err
	}
	defer conn.Close()

	p.nextID++
	if p.nextID == 0 {
		p.nextID = 1
	}
	vp := mqtt.VariablesPublish{TopicName: []byte(topic), PacketIdentifier: p.nextID}
	if err := client.PublishPayload(p.flags, vp, payload); err != nil {
		client.Disconnect(err)
		return fmt.Errorf("mqtt publish: %w", err)
	}
	client.Disconnect(errors.New("publish done"))
	return nil
}

// Close implements Publisher. Sessions never outlive Publish, so there is
// nothing to release.
func (p *MQTTPublisher) Close() error { return nil }

// TopicFor builds an MQTT topic for a bin: prefix/<binId>/status.
func TopicFor(prefix string) func(string) string {
	if prefix == "" {
		prefix = "wastenet/bins"
	}
	r := strings.NewReplacer("/", "_", "+", "_", "#", "_")
	return func(binID string) string {
		return prefix + "/" + r.Replace(binID) + "/status"
	}
}
