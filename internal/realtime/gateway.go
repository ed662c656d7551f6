package realtime

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"bizpulse/internal/constants"
	"bizpulse/internal/logger"
)

// Gateway relays administrative-alerts.* pub/sub messages into the hub.
type Gateway struct {
	client redis.UniversalClient
	hub    *Hub
	logger logger.Logger
}

func NewGateway(client redis.UniversalClient, hub *Hub, log logger.Logger) *Gateway {
	return &Gateway{client: client, hub: hub, logger: log}
}

// Run blocks until ctx is done.
func (g *Gateway) Run(ctx context.Context) error {
	sub := g.client.PSubscribe(ctx, constants.BroadcastChannelPattern)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", constants.BroadcastChannelPattern, err)
	}
	g.logger.Infow("Realtime gateway subscribed", "pattern", constants.BroadcastChannelPattern)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			g.hub.Publish(ctx, msg.Channel, []byte(msg.Payload))
		}
	}
}
