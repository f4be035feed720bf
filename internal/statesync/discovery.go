package statesync

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultDiscoveryKey is the Redis hash holding live broadcast listings.
const DefaultDiscoveryKey = "studiocast:live"

// hashClient is the subset of the Redis client used by DiscoveryCache.
type hashClient interface {
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	HDel(ctx context.Context, key string, fields ...string) *redis.IntCmd
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
}

// Listing is a discoverable live broadcast.
type Listing struct {
	BroadcastID string    `json:"broadcast_id"`
	Title       string    `json:"title"`
	StreamURL   string    `json:"stream_url,omitempty"`
	StartedAt   time.Time `json:"started_at"`
}

// DiscoveryCache keeps a Redis index of live broadcasts for discovery pages.
// OnFact only records the latest fact per broadcast; a background writer
// applies them to Redis so fact delivery never waits on the network. Cache
// failures are logged.
type DiscoveryCache struct {
	client  hashClient
	key     string
	timeout time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	pending map[string]Fact

	// writeMu serializes batches so a later fact for a broadcast is never
	// overtaken by an earlier one.
	writeMu sync.Mutex

	wake      chan struct{}
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewDiscoveryCache creates a cache on the given Redis client and starts its
// writer. An empty key uses DefaultDiscoveryKey. Call Close to stop the writer.
func NewDiscoveryCache(client *redis.Client, key string, logger *slog.Logger) *DiscoveryCache {
	return newDiscoveryCache(client, key, logger)
}

func newDiscoveryCache(client hashClient, key string, logger *slog.Logger) *DiscoveryCache {
	if key == "" {
		key = DefaultDiscoveryKey
	}
	if logger == nil {
		logger = slog.Default()
	}
	d := &DiscoveryCache{
		client:  client,
		key:     key,
		timeout: 2 * time.Second,
		logger:  logger,
		pending: make(map[string]Fact),
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go d.run()
	return d
}

// OnFact implements Subscriber.
func (d *DiscoveryCache) OnFact(ctx context.Context, fact Fact) {
	d.mu.Lock()
	d.pending[fact.BroadcastID] = fact
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Close stops the writer after applying every recorded fact.
func (d *DiscoveryCache) Close() {
	d.closeOnce.Do(func() {
		close(d.stop)
		<-d.done
		d.flush()
	})
}

func (d *DiscoveryCache) run() {
	defer close(d.done)
	for {
		select {
		case <-d.stop:
			return
		case <-d.wake:
			d.flush()
		}
	}
}

// flush writes every pending fact to Redis.
func (d *DiscoveryCache) flush() {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	d.mu.Lock()
	batch := d.pending
	d.pending = make(map[string]Fact)
	d.mu.Unlock()

	for _, fact := range batch {
		d.write(fact)
	}
}

func (d *DiscoveryCache) write(fact Fact) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if !fact.Live {
		if err := d.client.HDel(ctx, d.key, fact.BroadcastID).Err(); err != nil {
			d.logger.Warn("failed to remove broadcast from discovery cache",
				"error", err,
				"broadcast_id", fact.BroadcastID,
			)
		}
		return
	}

	data, err := json.Marshal(Listing{
		BroadcastID: fact.BroadcastID,
		Title:       fact.Title,
		StreamURL:   fact.StreamURL,
		StartedAt:   fact.At,
	})
	if err != nil {
		d.logger.Error("failed to encode discovery listing", "error", err)
		return
	}
	if err := d.client.HSet(ctx, d.key, fact.BroadcastID, string(data)).Err(); err != nil {
		d.logger.Warn("failed to add broadcast to discovery cache",
			"error", err,
			"broadcast_id", fact.BroadcastID,
		)
	}
}

// List returns every cached live broadcast, ordered by broadcast id.
func (d *DiscoveryCache) List(ctx context.Context) ([]Listing, error) {
	entries, err := d.client.HGetAll(ctx, d.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read discovery cache: %w", err)
	}

	listings := make([]Listing, 0, len(entries))
	for id, raw := range entries {
		var l Listing
		if err := json.Unmarshal([]byte(raw), &l); err != nil {
			d.logger.WarnContext(ctx, "skipping corrupt discovery listing", "error", err, "broadcast_id", id)
			continue
		}
		listings = append(listings, l)
	}
	sort.Slice(listings, func(i, j int) bool { return listings[i].BroadcastID < listings[j].BroadcastID })
	return listings, nil
}
