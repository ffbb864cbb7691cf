// Package memory provides an in-process document repository, used in
// development mode and by tests.
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"mindmesh/application/ports"
	pkgerrors "mindmesh/pkg/errors"
)

// DocumentRepository implements ports.DocumentRepository with a mutex-guarded
// map. Records are deep-copied on the way in and out so callers can't alias
// stored state.
type DocumentRepository struct {
	mu        sync.RWMutex
	documents map[string]*ports.DocumentRecord
}

// NewDocumentRepository creates an empty in-memory repository
func NewDocumentRepository() *DocumentRepository {
	return &DocumentRepository{
		documents: make(map[string]*ports.DocumentRecord),
	}
}

// GetByID retrieves a document by id
func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*ports.DocumentRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.documents[id]
	if !ok {
		return nil, pkgerrors.NewNotFoundError("document " + id)
	}
	return copyRecord(record)
}

// Save stores a copy of the record and stamps it
func (r *DocumentRepository) Save(ctx context.Context, record *ports.DocumentRecord) (*ports.DocumentRecord, error) {
	stored, err := copyRecord(record)
	if err != nil {
		return nil, err
	}
	stored.UpdatedAt = time.Now().UTC()

	r.mu.Lock()
	r.documents[stored.ID] = stored
	r.mu.Unlock()

	return copyRecord(stored)
}

// Delete removes a document
func (r *DocumentRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.documents[id]; !ok {
		return pkgerrors.NewNotFoundError("document " + id)
	}
	delete(r.documents, id)
	return nil
}

// ListByOwner retrieves all documents owned by a user, sorted by id
func (r *DocumentRepository) ListByOwner(ctx context.Context, ownerID string) ([]*ports.DocumentRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	records := make([]*ports.DocumentRecord, 0)
	for _, record := range r.documents {
		if record.OwnerID != ownerID {
			continue
		}
		copied, err := copyRecord(record)
		if err != nil {
			return nil, err
		}
		records = append(records, copied)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	return records, nil
}

// copyRecord deep-copies via JSON; record shapes are wire types already
func copyRecord(record *ports.DocumentRecord) (*ports.DocumentRecord, error) {
	raw, err := json.Marshal(record)
	if err != nil {
		return nil, err
	}
	copied := &ports.DocumentRecord{}
	if err := json.Unmarshal(raw, copied); err != nil {
		return nil, err
	}
	return copied, nil
}
