package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
)

const (
	// DefaultStream is the JetStream stream holding helper events.
	DefaultStream = "CPUPOWER_HELPER"
	// DefaultSubjectPrefix prefixes every published subject.
	DefaultSubjectPrefix = "cpupower.helper"
)

// StreamConfig describes the JetStream stream events are stored in.
type StreamConfig struct {
	Name     string
	Subjects []string
}

// NATSConfig configures a NATSPublisher.
type NATSConfig struct {
	URL           string
	Name          string
	SubjectPrefix string
	Stream        StreamConfig
}

// NATSPublisher publishes events to a JetStream stream.
type NATSPublisher struct {
	conn   *nats.Conn
	js     nats.JetStreamContext
	prefix string
}

// NewNATSPublisher connects to NATS and ensures the stream exists.
func NewNATSPublisher(cfg NATSConfig) (*NATSPublisher, error) {
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		return nil, fmt.Errorf("nats url is required")
	}
	prefix := strings.TrimSuffix(strings.TrimSpace(cfg.SubjectPrefix), ".")
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	stream := cfg.Stream
	if strings.TrimSpace(stream.Name) == "" {
		stream.Name = DefaultStream
	}
	if len(stream.Subjects) == 0 {
		stream.Subjects = []string{prefix + ".>"}
	}

	opts := []nats.Option{}
	if cfg.Name != "" {
		opts = append(opts, nats.Name(cfg.Name))
	}
	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("creating jetstream context: %w", err)
	}
	if err := ensureStream(js, stream); err != nil {
		conn.Close()
		return nil, err
	}

	return &NATSPublisher{conn: conn, js: js, prefix: prefix}, nil
}

func ensureStream(js nats.JetStreamContext, stream StreamConfig) error {
	_, err := js.StreamInfo(stream.Name)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("looking up stream %s: %w", stream.Name, err)
	}
	if _, err := js.AddStream(&nats.StreamConfig{Name: stream.Name, Subjects: stream.Subjects}); err != nil {
		return fmt.Errorf("creating stream %s: %w", stream.Name, err)
	}
	return nil
}

// Subject returns the subject an event is published on.
func (p *NATSPublisher) Subject(event Event) string {
	subject := p.prefix + ".mutation"
	if event.Subject != "" {
		subject += "." + event.Subject
	}
	return subject
}

// Publish implements Publisher. The event id doubles as the JetStream
// message id so retried publishes are deduplicated.
func (p *NATSPublisher) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	if _, err := p.js.Publish(p.Subject(event), data, nats.Context(ctx), nats.MsgId(event.ID)); err != nil {
		return fmt.Errorf("publishing event %s: %w", event.ID, err)
	}
	return nil
}

// Close drains the connection.
func (p *NATSPublisher) Close() error {
	if p == nil || p.conn == nil {
		return nil
	}
	return p.conn.Drain()
}
