package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mindmesh/application/ports"
	"mindmesh/domain/core/entities"
	"mindmesh/domain/core/valueobjects"
	pkgerrors "mindmesh/pkg/errors"
)

func testRecord(id, owner string) *ports.DocumentRecord {
	node := entities.NewNode(valueobjects.Position{X: 1, Y: 2}, "rectangle")
	return &ports.DocumentRecord{
		ID:      id,
		OwnerID: owner,
		Title:   "Test Map",
		Nodes:   []entities.NodeState{node.State()},
		Edges:   []entities.EdgeState{},
	}
}

func TestRepositorySaveAndGet(t *testing.T) {
	repo := NewDocumentRepository()
	ctx := context.Background()

	stored, err := repo.Save(ctx, testRecord("doc-1", "u-1"))
	require.NoError(t, err)
	assert.False(t, stored.UpdatedAt.IsZero())

	got, err := repo.GetByID(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "Test Map", got.Title)
	require.Len(t, got.Nodes, 1)
}

func TestRepositoryGetMissing(t *testing.T) {
	repo := NewDocumentRepository()
	_, err := repo.GetByID(context.Background(), "nope")
	assert.True(t, pkgerrors.IsType(err, pkgerrors.ErrorTypeNotFound))
}

func TestRepositoryCopiesRecords(t *testing.T) {
	repo := NewDocumentRepository()
	ctx := context.Background()

	record := testRecord("doc-1", "u-1")
	_, err := repo.Save(ctx, record)
	require.NoError(t, err)

	// Mutating the caller's record must not leak into storage
	record.Title = "Mutated"
	record.Nodes[0].Data["label"] = "Mutated"

	got, err := repo.GetByID(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "Test Map", got.Title)
	assert.NotEqual(t, "Mutated", got.Nodes[0].Data["label"])

	// And mutating a fetched copy must not change a later fetch
	got.Title = "Also Mutated"
	again, err := repo.GetByID(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "Test Map", again.Title)
}

func TestRepositoryDelete(t *testing.T) {
	repo := NewDocumentRepository()
	ctx := context.Background()

	_, err := repo.Save(ctx, testRecord("doc-1", "u-1"))
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, "doc-1"))
	_, err = repo.GetByID(ctx, "doc-1")
	assert.Error(t, err)

	err = repo.Delete(ctx, "doc-1")
	assert.True(t, pkgerrors.IsType(err, pkgerrors.ErrorTypeNotFound))
}

func TestRepositoryListByOwner(t *testing.T) {
	repo := NewDocumentRepository()
	ctx := context.Background()

	for _, record := range []*ports.DocumentRecord{
		testRecord("doc-b", "u-1"),
		testRecord("doc-a", "u-1"),
		testRecord("doc-c", "u-2"),
	} {
		_, err := repo.Save(ctx, record)
		require.NoError(t, err)
	}

	records, err := repo.ListByOwner(ctx, "u-1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "doc-a", records[0].ID)
	assert.Equal(t, "doc-b", records[1].ID)

	empty, err := repo.ListByOwner(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, empty)
}
