package broadcast

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Repository defines the interface for durable broadcast status storage.
type Repository interface {
	// Register inserts a broadcast or refreshes its title and stream URL.
	// A newly registered broadcast starts as SCHEDULED; the status of an existing one is kept.
	Register(ctx context.Context, record *Record) (*Record, error)

	// SetStatus writes status for a broadcast id. Idempotent by id: writing the
	// current status again only refreshes updated_at. Unknown ids are created.
	SetStatus(ctx context.Context, id string, status Status, at time.Time) (*Record, error)

	// Get retrieves a broadcast by id.
	Get(ctx context.Context, id string) (*Record, error)

	// ListByStatus returns all broadcasts in any of the given statuses, ordered by id.
	ListByStatus(ctx context.Context, statuses ...Status) ([]*Record, error)
}

// InMemoryRepository is an in-memory implementation of Repository.
// Thread-safe via RWMutex.
type InMemoryRepository struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewInMemoryRepository creates a new in-memory broadcast repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		records: make(map[string]*Record),
	}
}

// Register inserts a broadcast or refreshes its title and stream URL.
func (r *InMemoryRepository) Register(ctx context.Context, record *Record) (*Record, error) {
	if record.ID == "" {
		return nil, ErrMissingID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	existing, ok := r.records[record.ID]
	if !ok {
		existing = &Record{
			ID:     record.ID,
			Status: StatusScheduled,
		}
		r.records[record.ID] = existing
	}
	existing.Title = record.Title
	existing.StreamURL = record.StreamURL
	existing.UpdatedAt = now

	return copyRecord(existing), nil
}

// SetStatus writes status for a broadcast id.
func (r *InMemoryRepository) SetStatus(ctx context.Context, id string, status Status, at time.Time) (*Record, error) {
	if id == "" {
		return nil, ErrMissingID
	}
	if !status.Writable() {
		return nil, ErrInvalidStatus
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.records[id]
	if !ok {
		existing = &Record{ID: id, Status: StatusScheduled}
		r.records[id] = existing
	}
	existing.applyStatus(status, at.UTC())

	return copyRecord(existing), nil
}

// Get retrieves a broadcast by id.
func (r *InMemoryRepository) Get(ctx context.Context, id string) (*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.records[id]
	if !ok {
		return nil, ErrBroadcastNotFound
	}
	return copyRecord(record), nil
}

// ListByStatus returns all broadcasts in any of the given statuses.
func (r *InMemoryRepository) ListByStatus(ctx context.Context, statuses ...Status) ([]*Record, error) {
	want := make(map[Status]bool, len(statuses))
	for _, s := range statuses {
		want[s] = true
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Record
	for _, record := range r.records {
		if want[record.Status] {
			out = append(out, copyRecord(record))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
