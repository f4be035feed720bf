package statesync

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/onnwee/studiocast/internal/feed"
	"github.com/onnwee/studiocast/internal/tracing"
)

// Bus delivers liveness facts to local subscribers and writes them through
// to the durable broadcast status.
//
// Delivery is serialized: comparing a fact to the last known one, recording
// it, and notifying subscribers happen under one lock, so concurrent
// identical facts collapse into a single notification and every subscriber
// sees facts in the same order. The durable write happens afterwards, outside
// that lock, and never rolls back local state when it fails.
type Bus struct {
	writer  StatusWriter
	logger  *slog.Logger
	metrics *Metrics

	mu          sync.Mutex
	subscribers []Subscriber
	known       map[string]Fact
	pending     map[string]Fact

	writeLocksMu sync.Mutex
	writeLocks   map[string]*sync.Mutex
}

// NewBus creates a bus. writer may be nil, in which case no durable write
// is attempted (for clients that only mirror the feed).
func NewBus(writer StatusWriter, logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		writer:     writer,
		logger:     logger,
		known:      make(map[string]Fact),
		pending:    make(map[string]Fact),
		writeLocks: make(map[string]*sync.Mutex),
	}
}

// SetMetrics attaches Prometheus metrics.
func (b *Bus) SetMetrics(m *Metrics) {
	b.metrics = m
}

// Subscribe adds a subscriber. Subscribers are notified in the order they
// were added.
func (b *Bus) Subscribe(s Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = append(b.subscribers, s)
}

// Publish delivers a locally originated fact and writes it through to the
// durable status. It returns false if the fact did not change the
// broadcast's known liveness.
func (b *Bus) Publish(ctx context.Context, fact Fact) bool {
	if !b.deliver(ctx, fact) {
		return false
	}
	if b.writer != nil {
		b.persist(ctx, fact)
	}
	return true
}

// PublishRemote delivers a fact that arrived from the feed. The feed only
// carries the results of durable writes, so no write is issued.
func (b *Bus) PublishRemote(ctx context.Context, fact Fact) bool {
	return b.deliver(ctx, fact)
}

// Apply converts a feed event to a fact and publishes it as remote.
func (b *Bus) Apply(ctx context.Context, ev feed.Event) bool {
	return b.PublishRemote(ctx, FactFromEvent(ev))
}

func (b *Bus) deliver(ctx context.Context, fact Fact) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if prev, ok := b.known[fact.BroadcastID]; ok && prev.Live == fact.Live {
		if b.metrics != nil {
			b.metrics.IncFacts(outcomeDuplicate)
		}
		return false
	}
	b.known[fact.BroadcastID] = fact

	for _, s := range b.subscribers {
		s.OnFact(ctx, fact)
	}

	if b.metrics != nil {
		b.metrics.IncFacts(outcomeDelivered)
	}
	b.logger.InfoContext(ctx, "broadcast fact delivered",
		"broadcast_id", fact.BroadcastID,
		"live", fact.Live,
		"fact_id", fact.ID,
	)
	return true
}

// persist writes fact through unless a newer fact has superseded it.
// Writes for the same broadcast are serialized so they land in delivery order.
func (b *Bus) persist(ctx context.Context, fact Fact) bool {
	lock := b.writeLock(fact.BroadcastID)
	lock.Lock()
	defer lock.Unlock()

	if !b.isCurrent(fact) {
		b.dropPending(fact)
		return false
	}

	ctx, endSpan := tracing.StartSpan(ctx, "statesync.persist")
	_, err := b.writer.SetBroadcastStatus(ctx, fact.BroadcastID, fact.Status())
	endSpan(err)

	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		b.pending[fact.BroadcastID] = fact
		if b.metrics != nil {
			b.metrics.IncWriteFailures()
			b.metrics.SetPending(len(b.pending))
		}
		b.logger.WarnContext(ctx, "durable broadcast status write failed, queued for reconciliation",
			"error", err,
			"broadcast_id", fact.BroadcastID,
			"status", string(fact.Status()),
		)
		return false
	}

	delete(b.pending, fact.BroadcastID)
	if b.metrics != nil {
		b.metrics.SetPending(len(b.pending))
	}
	return true
}

// Reconcile retries durable writes that previously failed, skipping facts
// that have since been superseded. It returns the number of writes that
// succeeded.
func (b *Bus) Reconcile(ctx context.Context) int {
	if b.writer == nil {
		return 0
	}

	b.mu.Lock()
	queued := make([]Fact, 0, len(b.pending))
	for _, f := range b.pending {
		queued = append(queued, f)
	}
	b.mu.Unlock()

	sort.Slice(queued, func(i, j int) bool { return queued[i].BroadcastID < queued[j].BroadcastID })

	reconciled := 0
	for _, f := range queued {
		if ctx.Err() != nil {
			break
		}
		if b.persist(ctx, f) {
			reconciled++
		}
	}

	if reconciled > 0 {
		if b.metrics != nil {
			b.metrics.AddReconciled(reconciled)
		}
		b.logger.InfoContext(ctx, "reconciled broadcast status writes", "count", reconciled)
	}
	return reconciled
}

// IsLive reports the last known liveness of a broadcast.
func (b *Bus) IsLive(broadcastID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.known[broadcastID].Live
}

// Last returns the last delivered fact for a broadcast.
func (b *Bus) Last(broadcastID string) (Fact, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	f, ok := b.known[broadcastID]
	return f, ok
}

// Snapshot returns the last delivered fact for every known broadcast,
// ordered by broadcast id.
func (b *Bus) Snapshot() []Fact {
	b.mu.Lock()
	defer b.mu.Unlock()

	facts := make([]Fact, 0, len(b.known))
	for _, f := range b.known {
		facts = append(facts, f)
	}
	sort.Slice(facts, func(i, j int) bool { return facts[i].BroadcastID < facts[j].BroadcastID })
	return facts
}

// PendingCount returns the number of durable writes awaiting reconciliation.
func (b *Bus) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

func (b *Bus) isCurrent(fact Fact) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.known[fact.BroadcastID].ID == fact.ID
}

func (b *Bus) dropPending(fact Fact) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if p, ok := b.pending[fact.BroadcastID]; ok && p.ID == fact.ID {
		delete(b.pending, fact.BroadcastID)
		if b.metrics != nil {
			b.metrics.SetPending(len(b.pending))
		}
	}
}

func (b *Bus) writeLock(broadcastID string) *sync.Mutex {
	b.writeLocksMu.Lock()
	defer b.writeLocksMu.Unlock()
	lock, ok := b.writeLocks[broadcastID]
	if !ok {
		lock = &sync.Mutex{}
		b.writeLocks[broadcastID] = lock
	}
	return lock
}
