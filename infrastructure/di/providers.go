package di

import (
	"context"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awseventbridge "github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"go.uber.org/zap"

	"mindmesh/application/ports"
	"mindmesh/infrastructure/broadcast/apigateway"
	"mindmesh/infrastructure/config"
	"mindmesh/infrastructure/events/eventbridge"
	"mindmesh/infrastructure/persistence/dynamodb"
	"mindmesh/infrastructure/persistence/memory"
	"mindmesh/interfaces/http/rest"
	"mindmesh/interfaces/ws"
	"mindmesh/pkg/auth"
	"mindmesh/pkg/observability"
)

// ProvideLogger creates a new logger instance
func ProvideLogger(cfg *config.Config) (*zap.Logger, error) {
	return observability.NewLogger(cfg.Environment, cfg.LogLevel)
}

// ProvideAWSConfig creates AWS configuration
func ProvideAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	return awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.AWSRegion),
	)
}

// ProvideDynamoDBClient creates a DynamoDB client
func ProvideDynamoDBClient(awsCfg aws.Config) *awsdynamodb.Client {
	return awsdynamodb.NewFromConfig(awsCfg)
}

// ProvideEventBridgeClient creates an EventBridge client
func ProvideEventBridgeClient(awsCfg aws.Config) *awseventbridge.Client {
	return awseventbridge.NewFromConfig(awsCfg)
}

// ProvideDocumentRepository creates the document repository. Development
// runs against the in-memory store so the authority works without AWS
// credentials.
func ProvideDocumentRepository(client *awsdynamodb.Client, cfg *config.Config, logger *zap.Logger) ports.DocumentRepository {
	if cfg.IsDevelopment() {
		return memory.NewDocumentRepository()
	}
	return dynamodb.NewDocumentRepository(client, cfg.DynamoDBTable, logger)
}

// ProvideEventPublisher creates the audit event publisher. Without a
// configured bus, audit events are discarded.
func ProvideEventPublisher(client *awseventbridge.Client, cfg *config.Config, logger *zap.Logger) ports.EventPublisher {
	if cfg.EventBusName == "" {
		return eventbridge.NopPublisher{}
	}
	return eventbridge.NewPublisher(client, cfg.EventBusName, logger)
}

// ProvideBroadcaster creates the gateway mirror broadcaster. Without a
// configured management endpoint there is nothing to mirror to and the hub
// fans out in-process only.
func ProvideBroadcaster(awsCfg aws.Config, cfg *config.Config, logger *zap.Logger) ports.Broadcaster {
	if cfg.WebSocketEndpoint == "" {
		return nil
	}
	return apigateway.NewBroadcaster(awsCfg, cfg.WebSocketEndpoint, logger)
}

// ProvideMetrics creates the Prometheus collector
func ProvideMetrics() *observability.Collector {
	return observability.NewCollector("mindmesh")
}

// ProvideTokenIssuer creates the join-token issuer
func ProvideTokenIssuer(cfg *config.Config) (*auth.TokenIssuer, error) {
	secret := cfg.JWTSecret
	if secret == "" && cfg.IsDevelopment() {
		secret = "development-secret-change-in-production"
	}
	return auth.NewTokenIssuer(secret, cfg.JWTIssuer, cfg.JoinTokenTTL)
}

// ProvideHub creates the room hub
func ProvideHub(issuer *auth.TokenIssuer, publisher ports.EventPublisher, metrics *observability.Collector, mirror ports.Broadcaster, cfg *config.Config, logger *zap.Logger) *ws.Hub {
	return ws.NewHub(issuer, publisher, metrics, mirror, cfg.AutosaveDefault, logger)
}

// ProvideHandler creates the root HTTP handler
func ProvideHandler(
	cfg *config.Config,
	repo ports.DocumentRepository,
	publisher ports.EventPublisher,
	issuer *auth.TokenIssuer,
	hub *ws.Hub,
	metrics *observability.Collector,
	logger *zap.Logger,
) http.Handler {
	return rest.NewRouter(cfg, repo, publisher, issuer, hub, hub, metrics, logger).Setup()
}
