// Package dynamodb persists documents in a single-table DynamoDB layout:
// the owner partition holds one item per document, and GSI1 provides direct
// lookup by document id without knowing the owner.
package dynamodb

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"mindmesh/application/ports"
	"mindmesh/domain/core/entities"
	"mindmesh/domain/core/valueobjects"
	pkgerrors "mindmesh/pkg/errors"
)

const gsi1Name = "GSI1"

// DocumentRepository implements ports.DocumentRepository on DynamoDB. Writes
// pass through a circuit breaker so a struggling table sheds autosave load
// instead of piling up in-flight saves.
type DocumentRepository struct {
	client    *dynamodb.Client
	tableName string
	breaker   *gobreaker.CircuitBreaker
	logger    *zap.Logger
}

// NewDocumentRepository creates a DynamoDB-backed document repository
func NewDocumentRepository(client *dynamodb.Client, tableName string, logger *zap.Logger) *DocumentRepository {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "dynamodb-document-save",
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Document save breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &DocumentRepository{
		client:    client,
		tableName: tableName,
		breaker:   breaker,
		logger:    logger,
	}
}

// documentItem is the DynamoDB item shape for a document. Node and edge
// collections are stored as JSON text so the persisted form stays byte-equal
// with the wire form.
type documentItem struct {
	PK         string `dynamodbav:"PK"`
	SK         string `dynamodbav:"SK"`
	GSI1PK     string `dynamodbav:"GSI1PK"`
	GSI1SK     string `dynamodbav:"GSI1SK"`
	EntityType string `dynamodbav:"EntityType"`
	DocumentID string `dynamodbav:"DocumentID"`
	OwnerID    string `dynamodbav:"OwnerID"`
	Title      string `dynamodbav:"Title"`
	Nodes      string `dynamodbav:"Nodes"`
	Edges      string `dynamodbav:"Edges"`
	Viewport   string `dynamodbav:"Viewport,omitempty"`
	UpdatedAt  string `dynamodbav:"UpdatedAt"`
}

func ownerPK(ownerID string) string   { return fmt.Sprintf("USER#%s", ownerID) }
func documentSK(id string) string     { return fmt.Sprintf("DOC#%s", id) }
func documentGSI1PK(id string) string { return fmt.Sprintf("DOCID#%s", id) }

// GetByID retrieves a document by its id via GSI1
func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*ports.DocumentRecord, error) {
	keyCond := expression.Key("GSI1PK").Equal(expression.Value(documentGSI1PK(id))).
		And(expression.Key("GSI1SK").Equal(expression.Value("METADATA")))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build document query: %w", err)
	}

	result, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		IndexName:                 aws.String(gsi1Name),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		Limit:                     aws.Int32(1),
	})
	if err != nil {
		return nil, pkgerrors.NewPersistenceFailureError(id, err)
	}
	if len(result.Items) == 0 {
		return nil, pkgerrors.NewNotFoundError("document " + id)
	}

	var item documentItem
	if err := attributevalue.UnmarshalMap(result.Items[0], &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal document: %w", err)
	}
	return itemToRecord(&item)
}

// Save persists a document, returning the stored record with its timestamp
func (r *DocumentRepository) Save(ctx context.Context, record *ports.DocumentRecord) (*ports.DocumentRecord, error) {
	item, err := recordToItem(record)
	if err != nil {
		return nil, err
	}
	item.UpdatedAt = time.Now().UTC().Format(time.RFC3339Nano)

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal document: %w", err)
	}

	if _, err := r.breaker.Execute(func() (interface{}, error) {
		return r.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName: aws.String(r.tableName),
			Item:      av,
		})
	}); err != nil {
		r.logger.Error("Failed to save document",
			zap.String("documentID", record.ID),
			zap.Error(err),
		)
		return nil, pkgerrors.NewPersistenceFailureError(record.ID, err)
	}

	r.logger.Debug("Document saved",
		zap.String("documentID", record.ID),
		zap.Int("nodes", len(record.Nodes)),
		zap.Int("edges", len(record.Edges)),
	)

	stored := *record
	stored.UpdatedAt, _ = time.Parse(time.RFC3339Nano, item.UpdatedAt)
	return &stored, nil
}

// Delete removes a document. The owner key is resolved through GSI1 first.
func (r *DocumentRepository) Delete(ctx context.Context, id string) error {
	record, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if _, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: ownerPK(record.OwnerID)},
			"SK": &types.AttributeValueMemberS{Value: documentSK(id)},
		},
	}); err != nil {
		return pkgerrors.NewPersistenceFailureError(id, err)
	}

	r.logger.Info("Document deleted",
		zap.String("documentID", id),
		zap.String("ownerID", record.OwnerID),
	)
	return nil
}

// ListByOwner retrieves every document in an owner's partition
func (r *DocumentRepository) ListByOwner(ctx context.Context, ownerID string) ([]*ports.DocumentRecord, error) {
	keyCond := expression.Key("PK").Equal(expression.Value(ownerPK(ownerID))).
		And(expression.Key("SK").BeginsWith("DOC#"))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build owner query: %w", err)
	}

	records := make([]*ports.DocumentRecord, 0)
	var startKey map[string]types.AttributeValue
	for {
		result, err := r.client.Query(ctx, &dynamodb.QueryInput{
			TableName:                 aws.String(r.tableName),
			KeyConditionExpression:    expr.KeyCondition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			ExclusiveStartKey:         startKey,
		})
		if err != nil {
			return nil, pkgerrors.NewPersistenceFailureError(ownerID, err)
		}

		for _, raw := range result.Items {
			var item documentItem
			if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
				r.logger.Warn("Skipping unreadable document item", zap.Error(err))
				continue
			}
			record, err := itemToRecord(&item)
			if err != nil {
				r.logger.Warn("Skipping corrupt document item",
					zap.String("documentID", item.DocumentID),
					zap.Error(err),
				)
				continue
			}
			records = append(records, record)
		}

		if result.LastEvaluatedKey == nil {
			break
		}
		startKey = result.LastEvaluatedKey
	}

	return records, nil
}

func recordToItem(record *ports.DocumentRecord) (*documentItem, error) {
	nodes, err := json.Marshal(record.Nodes)
	if err != nil {
		return nil, fmt.Errorf("failed to encode nodes: %w", err)
	}
	edges, err := json.Marshal(record.Edges)
	if err != nil {
		return nil, fmt.Errorf("failed to encode edges: %w", err)
	}

	item := &documentItem{
		PK:         ownerPK(record.OwnerID),
		SK:         documentSK(record.ID),
		GSI1PK:     documentGSI1PK(record.ID),
		GSI1SK:     "METADATA",
		EntityType: "DOCUMENT",
		DocumentID: record.ID,
		OwnerID:    record.OwnerID,
		Title:      record.Title,
		Nodes:      string(nodes),
		Edges:      string(edges),
	}
	if record.Viewport != nil {
		viewport, err := json.Marshal(record.Viewport)
		if err != nil {
			return nil, fmt.Errorf("failed to encode viewport: %w", err)
		}
		item.Viewport = string(viewport)
	}
	return item, nil
}

func itemToRecord(item *documentItem) (*ports.DocumentRecord, error) {
	record := &ports.DocumentRecord{
		ID:      item.DocumentID,
		OwnerID: item.OwnerID,
		Title:   item.Title,
	}
	if item.Nodes != "" {
		if err := json.Unmarshal([]byte(item.Nodes), &record.Nodes); err != nil {
			return nil, fmt.Errorf("failed to decode nodes: %w", err)
		}
	}
	if item.Edges != "" {
		if err := json.Unmarshal([]byte(item.Edges), &record.Edges); err != nil {
			return nil, fmt.Errorf("failed to decode edges: %w", err)
		}
	}
	if item.Viewport != "" {
		var viewport valueobjects.Viewport
		if err := json.Unmarshal([]byte(item.Viewport), &viewport); err != nil {
			return nil, fmt.Errorf("failed to decode viewport: %w", err)
		}
		record.Viewport = &viewport
	}
	if item.UpdatedAt != "" {
		record.UpdatedAt, _ = time.Parse(time.RFC3339Nano, item.UpdatedAt)
	}
	if record.Nodes == nil {
		record.Nodes = []entities.NodeState{}
	}
	if record.Edges == nil {
		record.Edges = []entities.EdgeState{}
	}
	return record, nil
}
