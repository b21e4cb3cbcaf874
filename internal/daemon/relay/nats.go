package relay

import (
	"context"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NATSConfig configures the NATS publisher.
type NATSConfig struct {
	URL string
	// JetStream publishes through JetStream and waits for the stream ack.
	JetStream bool
}

// NATSPublisher publishes events on NATS subjects.
type NATSPublisher struct {
	conn *nats.Conn
	js   jetstream.JetStream
}

// NewNATSPublisher connects to the NATS server at cfg.URL.
func NewNATSPublisher(cfg NATSConfig) (*NATSPublisher, error) {
	url := cfg.URL
	if url == "" {
		url = nats.DefaultURL
	}
	conn, err := nats.Connect(url, nats.Name("wastenet"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	p := &NATSPublisher{conn: conn}
	if cfg.JetStream {
		js, err := jetstream.New(conn)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to create JetStream context: %w", err)
		}
		p.js = js
	}
	return p, nil
}

// Name implements Publisher.
func (p *NATSPublisher) Name() string { return "nats" }

// Publish implements Publisher.
func (p *NATSPublisher) Publish(ctx context.Context, subject string, payload []byte) error {
	if p.js != nil {
		if _, err := p.js.Publish(ctx, subject, payload); err != nil {
			return fmt.Errorf("failed to publish event: %w", err)
		}
		return nil
	}
	if err := p.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	if err := p.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("failed to flush event: %w", err)
	}
	return nil
}

// Close implements Publisher.
func (p *NATSPublisher) Close() error {
	if p.conn != nil {
		p.conn.Close()
	}
	return nil
}

// SubjectFor builds a NATS subject for a bin: prefix.<binId>.status.
// Dots and wildcards in ids are replaced so they stay a single token.
func SubjectFor(prefix string) func(string) string {
	if prefix == "" {
		prefix = "wastenet.bins"
	}
	r := strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_")
	return func(binID string) string {
		return prefix + "." + r.Replace(binID) + ".status"
	}
}
