package gateway

import (
	"context"
	"log"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

// PubSubRouter feeds the Redis pattern subscription into the Broadcaster.
type PubSubRouter struct {
	hub *Hub
}

func NewPubSubRouter(hub *Hub) *PubSubRouter {
	return &PubSubRouter{hub: hub}
}

// Run blocks until ctx is done or Redis closes the subscription.
func (r *PubSubRouter) Run(ctx context.Context, patterns ...string) {
	ps := r.hub.sub.PSubscribe(ctx, patterns...)
	defer ps.Close()

	// Wait for the subscribe confirmation so startup failures are logged here.
	if _, err := ps.Receive(ctx); err != nil {
		log.Printf("[gateway] psubscribe %v: %v", patterns, err)
		return
	}
	log.Printf("[gateway] relaying %v", patterns)

	msgs := ps.Channel(goredis.WithChannelSize(512), goredis.WithChannelHealthCheckInterval(30*time.Second))
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-msgs:
			if !ok {
				log.Println("[gateway] subscription closed")
				return
			}
			r.hub.Broadcaster.Broadcast(m.Channel, []byte(m.Payload))
		}
	}
}
