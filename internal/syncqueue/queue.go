// Package syncqueue pushes locally captured observations to the remote
// registry when connectivity allows. The record store's sync status is the
// queue: every record still marked pending is an entry, so the queue
// survives restarts for free and never diverges from the records it
// describes.
package syncqueue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mdobak/go-xerrors"

	"fieldlog/pkg/domain"
)

// DefaultMaxAttempts is the retry ceiling before an entry is parked in the
// error state for manual attention.
const DefaultMaxAttempts = 5

// DefaultBackoffBase is the delay after the first failed attempt; it
// doubles per attempt.
const DefaultBackoffBase = 30 * time.Second

// RemoteRecord is the remote registry's view of one observation, as
// returned by the changes feed.
type RemoteRecord struct {
	ServerID  string    `json:"serverId"`
	LocalID   string    `json:"localId"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Client is the remote registry transport.
type Client interface {
	CreateRecord(ctx context.Context, obs domain.Observation) (serverID string, err error)
	UpdateRecord(ctx context.Context, serverID string, obs domain.Observation) error
	DeleteRecord(ctx context.Context, serverID string) error
	ChangesSince(ctx context.Context, cursor string) (records []RemoteRecord, next string, err error)
}

// Records is the slice of the record store the queue drives.
type Records interface {
	Pending() []domain.Observation
	Get(id string) (domain.Observation, bool)
	MarkSynced(id, serverID string) error
	MarkSyncError(id string) error
	Attempts(id string) int
	IncrementAttempts(id string) (int, error)
	Tombstones() []string
	RemoveTombstone(serverID string) error
	SyncCursor() string
	SetSyncCursor(cursor string) error
}

// DrainResult summarizes one drain pass.
type DrainResult struct {
	// Skipped is true when another drain already held the queue; nothing
	// was attempted.
	Skipped   bool
	Confirmed int
	Retried   int
	Failed    int
	Deleted   int
}

// Queue drains pending work against the remote registry. A single drain
// runs at a time; a connectivity signal arriving mid-drain is satisfied by
// the drain already in flight.
type Queue struct {
	records Records
	client  Client
	log     *slog.Logger

	draining    atomic.Bool
	maxAttempts int
	backoffBase time.Duration
	nowFn       func() time.Time

	mu      sync.Mutex
	nextTry map[string]time.Time
}

// New wires a queue over the record store and a remote transport. A nil
// logger discards.
func New(records Records, client Client, log *slog.Logger) *Queue {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Queue{
		records:     records,
		client:      client,
		log:         log,
		maxAttempts: DefaultMaxAttempts,
		backoffBase: DefaultBackoffBase,
		nowFn:       time.Now,
		nextTry:     make(map[string]time.Time),
	}
}

// Drain pushes every due pending entry to the remote registry, oldest
// first, then pulls the remote changes feed to pick up identifiers
// assigned out of band. Entries are processed sequentially so ordering
// guarantees hold. A drain already in flight makes this call a no-op with
// Skipped set.
func (q *Queue) Drain(ctx context.Context) (DrainResult, error) {
	if !q.draining.CompareAndSwap(false, true) {
		return DrainResult{Skipped: true}, nil
	}
	defer q.draining.Store(false)
	drainsTotal.Inc()

	var res DrainResult

	// Deletions of already-registered records go first so the remote never
	// resurrects a record the user removed.
	for _, serverID := range q.records.Tombstones() {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := q.client.DeleteRecord(ctx, serverID); err != nil {
			if isRetryable(err) {
				q.log.Warn("remote delete deferred", "serverId", serverID, "error", xerrors.New(err))
				res.Retried++
				retriesTotal.Inc()
				continue
			}
			// The remote no longer knows the record; the tombstone has
			// done its job either way.
			q.log.Warn("remote delete rejected, dropping tombstone", "serverId", serverID, "error", xerrors.New(err))
		}
		if err := q.records.RemoveTombstone(serverID); err != nil {
			return res, err
		}
		res.Deleted++
	}

	for _, obs := range q.records.Pending() {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if !q.due(obs.ID) {
			continue
		}
		if err := q.push(ctx, obs); err != nil {
			if !isRetryable(err) {
				q.fail(obs.ID, err)
				res.Failed++
				continue
			}
			attempts, ierr := q.records.IncrementAttempts(obs.ID)
			if ierr != nil {
				return res, ierr
			}
			if attempts >= q.maxAttempts {
				q.fail(obs.ID, err)
				res.Failed++
				continue
			}
			q.scheduleRetry(obs.ID, attempts)
			q.log.Warn("sync attempt failed", "id", obs.ID, "attempt", attempts, "error", xerrors.New(err))
			res.Retried++
			retriesTotal.Inc()
			continue
		}
		q.clearBackoff(obs.ID)
		res.Confirmed++
		confirmedTotal.Inc()
	}

	if err := q.pullChanges(ctx); err != nil {
		q.log.Warn("changes pull failed", "error", xerrors.New(err))
	}
	return res, nil
}

// Run drains the queue once per connectivity signal until the context
// ends. The original trigger is the platform's online event; in this
// process any watcher that detects regained connectivity sends on the
// channel. Signals arriving mid-drain coalesce into the drain in flight.
func (q *Queue) Run(ctx context.Context, online <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-online:
			if !ok {
				return nil
			}
			res, err := q.Drain(ctx)
			if err != nil {
				q.log.Warn("drain aborted", "error", xerrors.New(err))
				continue
			}
			if !res.Skipped {
				q.log.Info("drain finished",
					"confirmed", res.Confirmed,
					"retried", res.Retried,
					"failed", res.Failed,
					"deleted", res.Deleted)
			}
		}
	}
}

// push sends one record and records its confirmation. Records without a
// server identifier are creations; the rest are updates.
func (q *Queue) push(ctx context.Context, obs domain.Observation) error {
	if obs.ServerID == nil {
		serverID, err := q.client.CreateRecord(ctx, obs)
		if err != nil {
			return err
		}
		return q.records.MarkSynced(obs.ID, serverID)
	}
	if err := q.client.UpdateRecord(ctx, *obs.ServerID, obs); err != nil {
		return err
	}
	return q.records.MarkSynced(obs.ID, *obs.ServerID)
}

// pullChanges applies newly assigned server identifiers from the remote
// changes feed and advances the cursor.
func (q *Queue) pullChanges(ctx context.Context) error {
	changes, next, err := q.client.ChangesSince(ctx, q.records.SyncCursor())
	if err != nil {
		return err
	}
	for _, rc := range changes {
		local, ok := q.records.Get(rc.LocalID)
		if !ok || local.ServerID != nil || local.SyncStatus != domain.SyncPending {
			continue
		}
		if err := q.records.MarkSynced(local.ID, rc.ServerID); err != nil {
			q.log.Warn("applying remote identifier failed", "id", local.ID, "error", xerrors.New(err))
			continue
		}
		confirmedTotal.Inc()
	}
	if next != "" && next != q.records.SyncCursor() {
		return q.records.SetSyncCursor(next)
	}
	return nil
}

func (q *Queue) fail(id string, cause error) {
	q.clearBackoff(id)
	failedTotal.Inc()
	q.log.Error("record parked in sync error state", "id", id, "error", xerrors.New(cause))
	if err := q.records.MarkSyncError(id); err != nil {
		q.log.Error("marking sync error failed", "id", id, "error", xerrors.New(err))
	}
}

func (q *Queue) due(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	at, ok := q.nextTry[id]
	return !ok || !q.nowFn().Before(at)
}

func (q *Queue) scheduleRetry(id string, attempts int) {
	delay := q.backoffBase
	for i := 1; i < attempts; i++ {
		delay *= 2
	}
	q.mu.Lock()
	q.nextTry[id] = q.nowFn().Add(delay)
	q.mu.Unlock()
}

func (q *Queue) clearBackoff(id string) {
	q.mu.Lock()
	delete(q.nextTry, id)
	q.mu.Unlock()
}

// isRetryable reports whether a push failure is worth another attempt.
// Network unavailability and server-side failures are transient; anything
// the remote rejected outright is not.
func isRetryable(err error) bool {
	if errors.Is(err, domain.ErrNetworkUnavailable) {
		return true
	}
	var remote *domain.RemoteError
	if errors.As(err, &remote) {
		return remote.Retryable()
	}
	return false
}
