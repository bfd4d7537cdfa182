package interfaces

import "github.com/necko-moe/necko3-core/internal/events"

// EventPublisher fans settlement and lifecycle events out to interested
// consumers (NATS JetStream, the ops websocket hub). Publishing is
// best-effort: delivery guarantees toward merchants live in the webhook
// queue, not here.
type EventPublisher interface {
	Publish(event events.GatewayEvent) error
	Close()
}
