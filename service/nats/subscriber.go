package nats

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// SubscribeOptions configures Subscribe.
type SubscribeOptions struct {
	// Durable names a consumer that survives restarts. Empty uses an
	// ephemeral consumer that replays the stream from the start.
	Durable string
}

// Subscribe delivers record events for stream to handle until ctx is done.
// Events that fail to decode are acknowledged and skipped.
func Subscribe(ctx context.Context, natsURL, stream string, opts SubscribeOptions, handle func(*RecordEvent)) error {
	nc, err := nats.Connect(natsURL, nats.Name("mintsales-subscriber"))
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	defer nc.Close()

	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	cfg := jetstream.ConsumerConfig{
		FilterSubject: Subject(stream),
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	}
	if opts.Durable != "" {
		cfg.Durable = opts.Durable
		cfg.Name = opts.Durable
	}

	cons, err := js.CreateOrUpdateConsumer(ctx, StreamName, cfg)
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	cc, err := cons.Consume(func(msg jetstream.Msg) {
		var event RecordEvent
		if err := json.Unmarshal(msg.Data(), &event); err == nil {
			handle(&event)
		}
		_ = msg.Ack()
	})
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}
	defer cc.Stop()

	<-ctx.Done()
	return nil
}
