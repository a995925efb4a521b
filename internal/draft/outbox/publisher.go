package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/botsports/empire/internal/draft/events"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// JetStreamPublisherConfig holds configuration for the JetStream publisher.
type JetStreamPublisherConfig struct {
	URL           string
	StreamName    string
	SubjectPrefix string // e.g. "draft.events"
	MaxReconnects int
}

// DefaultJetStreamPublisherConfig returns default publisher configuration.
func DefaultJetStreamPublisherConfig() JetStreamPublisherConfig {
	return JetStreamPublisherConfig{
		URL:           nats.DefaultURL,
		StreamName:    "DRAFT_EVENTS",
		SubjectPrefix: "draft.events",
		MaxReconnects: -1,
	}
}

// JetStreamPublisher publishes outbox events to a NATS JetStream stream.
// The outbox event ID doubles as the message ID, so redelivery of an
// already-published row is deduplicated by the stream.
type JetStreamPublisher struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	config JetStreamPublisherConfig
	logger *slog.Logger
}

// NewJetStreamPublisher connects to NATS and ensures the target stream
// exists.
func NewJetStreamPublisher(config JetStreamPublisherConfig, logger *slog.Logger) (*JetStreamPublisher, error) {
	nc, err := nats.Connect(config.URL,
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Error("NATS disconnected", slog.String("error", errString(err)))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", slog.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	ctx := context.Background()
	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     config.StreamName,
		Subjects: []string{config.SubjectPrefix + ".>"},
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream %s: %w", config.StreamName, err)
	}

	return &JetStreamPublisher{
		nc:     nc,
		js:     js,
		config: config,
		logger: logger,
	}, nil
}

// Publish sends one outbox event to the stream.
func (p *JetStreamPublisher) Publish(ctx context.Context, event Event) error {
	subject := fmt.Sprintf("%s.%s", p.config.SubjectPrefix, event.EventType)

	data, err := json.Marshal(event.Envelope())
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	_, err = p.js.Publish(ctx, subject, data, jetstream.WithMsgID(event.ID.String()))
	if err != nil {
		return fmt.Errorf("publish to %s: %w", subject, err)
	}

	p.logger.Debug("published event",
		slog.String("subject", subject),
		slog.String("event_id", event.ID.String()))
	return nil
}

// Close shuts down the NATS connection.
func (p *JetStreamPublisher) Close() {
	if p.nc != nil {
		p.nc.Close()
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// Broadcaster is the slice of the hub the in-process publisher needs.
type Broadcaster interface {
	Publish(evt events.Envelope)
}

// HubPublisher delivers outbox events straight to the in-process broadcast
// hub. Used in single-node deployments where no message broker runs.
type HubPublisher struct {
	hub Broadcaster
}

// NewHubPublisher creates an in-process publisher.
func NewHubPublisher(hub Broadcaster) *HubPublisher {
	return &HubPublisher{hub: hub}
}

// Publish hands the event envelope to the hub.
func (p *HubPublisher) Publish(ctx context.Context, event Event) error {
	p.hub.Publish(event.Envelope())
	return nil
}
