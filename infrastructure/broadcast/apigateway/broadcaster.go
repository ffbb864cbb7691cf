// Package apigateway fans room messages out through the API Gateway
// management API, for deployments where clients hold API Gateway WebSocket
// connections instead of sockets on this process. Connection ids double as
// client ids.
package apigateway

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/apigatewaymanagementapi"
	apigwtypes "github.com/aws/aws-sdk-go-v2/service/apigatewaymanagementapi/types"
	"go.uber.org/zap"
)

// Broadcaster implements ports.Broadcaster over PostToConnection. Stale
// connections answer with GoneException and are pruned rather than treated
// as delivery failures.
type Broadcaster struct {
	client *apigatewaymanagementapi.Client
	logger *zap.Logger

	mu    sync.RWMutex
	rooms map[string]map[string]struct{}
}

// NewBroadcaster creates a broadcaster against a management API endpoint
func NewBroadcaster(cfg aws.Config, endpoint string, logger *zap.Logger) *Broadcaster {
	client := apigatewaymanagementapi.NewFromConfig(cfg, func(o *apigatewaymanagementapi.Options) {
		o.BaseEndpoint = aws.String(endpoint)
	})
	return &Broadcaster{
		client: client,
		logger: logger,
		rooms:  make(map[string]map[string]struct{}),
	}
}

// Register adds a connection to a room's fan-out set
func (b *Broadcaster) Register(room, connectionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.rooms[room] == nil {
		b.rooms[room] = make(map[string]struct{})
	}
	b.rooms[room][connectionID] = struct{}{}
}

// Unregister removes a connection from a room's fan-out set
func (b *Broadcaster) Unregister(room, connectionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if conns, ok := b.rooms[room]; ok {
		delete(conns, connectionID)
		if len(conns) == 0 {
			delete(b.rooms, room)
		}
	}
}

// SendTo delivers a frame to one connection
func (b *Broadcaster) SendTo(ctx context.Context, clientID string, data []byte) error {
	_, err := b.client.PostToConnection(ctx, &apigatewaymanagementapi.PostToConnectionInput{
		ConnectionId: aws.String(clientID),
		Data:         data,
	})
	if err != nil {
		var gone *apigwtypes.GoneException
		if errors.As(err, &gone) {
			b.prune(clientID)
			return nil
		}
		return fmt.Errorf("failed to post to connection %s: %w", clientID, err)
	}
	return nil
}

// Broadcast delivers a frame to every room member except one. Gone
// connections are pruned; other per-connection failures are logged and do
// not stop the fan-out.
func (b *Broadcaster) Broadcast(ctx context.Context, room string, excludeClientID string, data []byte) error {
	b.mu.RLock()
	targets := make([]string, 0, len(b.rooms[room]))
	for connectionID := range b.rooms[room] {
		if connectionID == excludeClientID {
			continue
		}
		targets = append(targets, connectionID)
	}
	b.mu.RUnlock()

	var failed int
	for _, connectionID := range targets {
		if err := b.SendTo(ctx, connectionID, data); err != nil {
			failed++
			b.logger.Warn("Broadcast delivery failed",
				zap.String("room", room),
				zap.String("connectionID", connectionID),
				zap.Error(err),
			)
		}
	}
	if failed > 0 {
		return fmt.Errorf("broadcast to %s: %d of %d deliveries failed", room, failed, len(targets))
	}
	return nil
}

// prune drops a gone connection from every room
func (b *Broadcaster) prune(connectionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for room, conns := range b.rooms {
		if _, ok := conns[connectionID]; ok {
			delete(conns, connectionID)
			if len(conns) == 0 {
				delete(b.rooms, room)
			}
			b.logger.Debug("Pruned gone connection",
				zap.String("room", room),
				zap.String("connectionID", connectionID),
			)
		}
	}
}
