//go:build wireinject
// +build wireinject

package di

import (
	"context"
	"net/http"

	"github.com/google/wire"
	"go.uber.org/zap"

	"mindmesh/application/ports"
	"mindmesh/infrastructure/config"
	"mindmesh/interfaces/ws"
	"mindmesh/pkg/auth"
	"mindmesh/pkg/observability"
)

// Container holds all application dependencies
type Container struct {
	Config    *config.Config
	Logger    *zap.Logger
	Metrics   *observability.Collector
	Repo      ports.DocumentRepository
	Publisher ports.EventPublisher
	Issuer    *auth.TokenIssuer
	Hub       *ws.Hub
	Handler   http.Handler
}

// SuperSet is the main provider set containing all providers
var SuperSet = wire.NewSet(
	ProvideLogger,
	ProvideAWSConfig,
	ProvideDynamoDBClient,
	ProvideEventBridgeClient,
	ProvideDocumentRepository,
	ProvideEventPublisher,
	ProvideBroadcaster,
	ProvideMetrics,
	ProvideTokenIssuer,
	ProvideHub,
	ProvideHandler,
	wire.Struct(new(Container), "*"),
)

// InitializeContainer creates a fully wired container
func InitializeContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	wire.Build(SuperSet)
	return nil, nil // Wire will replace this
}
