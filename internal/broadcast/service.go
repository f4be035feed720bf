package broadcast

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/onnwee/studiocast/internal/tracing"
)

// Announcer echoes a written record to every connected client.
type Announcer interface {
	Announce(ctx context.Context, record *Record) error
}

// StatusService performs the durable status write and echoes the result.
type StatusService struct {
	repo      Repository
	announcer Announcer
	logger    *slog.Logger
	now       func() time.Time
}

// NewStatusService creates a new StatusService.
// announcer may be nil, in which case writes are not echoed.
func NewStatusService(repo Repository, announcer Announcer, logger *slog.Logger) *StatusService {
	if logger == nil {
		logger = slog.Default()
	}
	return &StatusService{
		repo:      repo,
		announcer: announcer,
		logger:    logger,
		now:       time.Now,
	}
}

// Register records a broadcast's title and stream URL ahead of any status write,
// so that echoed events carry them.
func (s *StatusService) Register(ctx context.Context, id, title, streamURL string) (*Record, error) {
	return s.repo.Register(ctx, &Record{ID: id, Title: title, StreamURL: streamURL})
}

// SetBroadcastStatus writes status for id and announces the updated record.
// The write is idempotent by broadcast id. An announce failure is logged and
// does not fail the write, since the record is already durable.
func (s *StatusService) SetBroadcastStatus(ctx context.Context, id string, status Status) (record *Record, err error) {
	ctx, endSpan := tracing.StartSpan(ctx, "broadcast.set_status")
	defer func() { endSpan(err) }()

	if !status.Writable() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidStatus, status)
	}

	record, err = s.repo.SetStatus(ctx, id, status, s.now())
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "broadcast status written",
		"broadcast_id", id,
		"status", string(status),
	)

	if s.announcer != nil {
		if annErr := s.announcer.Announce(ctx, record); annErr != nil {
			s.logger.WarnContext(ctx, "failed to announce broadcast status",
				"error", annErr,
				"broadcast_id", id,
			)
		}
	}

	return record, nil
}

// Get retrieves the durable record for a broadcast.
func (s *StatusService) Get(ctx context.Context, id string) (*Record, error) {
	return s.repo.Get(ctx, id)
}

// LiveBroadcasts returns every broadcast currently recorded as LIVE.
func (s *StatusService) LiveBroadcasts(ctx context.Context) ([]*Record, error) {
	return s.repo.ListByStatus(ctx, StatusLive)
}
