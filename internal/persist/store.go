// Package persist snapshots room state to Postgres so rooms survive a
// process restart. Message bodies are never persisted; only room identity,
// lifecycle state and broadcast counters are written, on a flush ticker.
package persist

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cueroom/realtime/internal/broadcast"
	"github.com/cueroom/realtime/internal/room"
)

const schema = `
CREATE TABLE IF NOT EXISTS rooms (
	id                    TEXT PRIMARY KEY,
	room_type             TEXT NOT NULL,
	state                 TEXT NOT NULL,
	members               JSONB NOT NULL DEFAULT '[]',
	max_members           INT NOT NULL DEFAULT 0,
	total_broadcasts      BIGINT NOT NULL DEFAULT 0,
	successful_broadcasts BIGINT NOT NULL DEFAULT 0,
	failed_broadcasts     BIGINT NOT NULL DEFAULT 0,
	created_at            TIMESTAMPTZ NOT NULL,
	updated_at            TIMESTAMPTZ NOT NULL
)`

const upsertRoom = `
INSERT INTO rooms (id, room_type, state, members, max_members,
	total_broadcasts, successful_broadcasts, failed_broadcasts,
	created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
ON CONFLICT (id) DO UPDATE SET
	state = EXCLUDED.state,
	members = EXCLUDED.members,
	total_broadcasts = EXCLUDED.total_broadcasts,
	successful_broadcasts = EXCLUDED.successful_broadcasts,
	failed_broadcasts = EXCLUDED.failed_broadcasts,
	updated_at = now()`

// Store writes periodic room snapshots and serves crash recovery.
type Store struct {
	db          *pgxpool.Pool
	registry    *room.Registry
	broadcaster *broadcast.Broadcaster
	logger      *slog.Logger

	flushInterval time.Duration
	flushTicker   *time.Ticker

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	destroyed []string // room ids pending row deletion
}

// NewStore creates a snapshot store over the given pool.
func NewStore(db *pgxpool.Pool, registry *room.Registry, broadcaster *broadcast.Broadcaster, flushInterval time.Duration, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		db:            db,
		registry:      registry,
		broadcaster:   broadcaster,
		logger:        logger,
		flushInterval: flushInterval,
	}
}

// EnsureSchema creates the rooms table if missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Recover reloads every room not yet CLOSED into the registry. Member
// sets are not restored: connections do not survive a restart, so members
// rejoin through admission. Returns the number of rooms restored.
func (s *Store) Recover(ctx context.Context) (int, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, room_type, state, max_members, created_at FROM rooms WHERE state != $1`,
		string(room.StateClosed))
	if err != nil {
		return 0, fmt.Errorf("query rooms: %w", err)
	}
	defer rows.Close()

	restored := 0
	for rows.Next() {
		var (
			r          room.Room
			typ, state string
		)
		if err := rows.Scan(&r.ID, &typ, &state, &r.MaxMembers, &r.CreatedAt); err != nil {
			return restored, fmt.Errorf("scan room: %w", err)
		}
		r.Type = room.Type(typ)
		r.State = room.State(state)

		if err := s.registry.Restore(r); err != nil {
			s.logger.Warn("skipping unrecoverable room", "room_id", r.ID, "error", err)
			continue
		}
		restored++
	}
	if err := rows.Err(); err != nil {
		return restored, err
	}

	s.logger.Info("rooms recovered from snapshot store", "count", restored)
	return restored, nil
}

// Start begins the periodic snapshot flush.
func (s *Store) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.flushTicker = time.NewTicker(s.flushInterval)

	s.wg.Add(1)
	go s.flushLoop()

	s.logger.Info("snapshot store started", "flush_interval", s.flushInterval)
	return nil
}

// Stop shuts the store down after a final flush.
func (s *Store) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.flushTicker != nil {
		s.flushTicker.Stop()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("snapshot store stop timed out")
	}

	s.flush(context.Background())
	s.logger.Info("snapshot store stopped")
	return nil
}

// RoomDestroyed queues row deletion for a destroyed room. Registered as a
// registry lifecycle observer.
func (s *Store) RoomDestroyed(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.destroyed = append(s.destroyed, roomID)
}

func (s *Store) flushLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.flushTicker.C:
			s.flush(s.ctx)
		}
	}
}

// flush upserts a snapshot of every live room and applies pending
// deletions in one batch round trip.
func (s *Store) flush(ctx context.Context) {
	s.mu.Lock()
	destroyed := s.destroyed
	s.destroyed = nil
	s.mu.Unlock()

	rooms := s.registry.ListRooms()
	if len(rooms) == 0 && len(destroyed) == 0 {
		return
	}

	batch := &pgx.Batch{}
	for _, r := range rooms {
		members, err := json.Marshal(r.Members)
		if err != nil {
			s.logger.Error("marshal members", "room_id", r.ID, "error", err)
			continue
		}

		stats, err := s.broadcaster.Stats(r.ID)
		if err != nil {
			// Room destroyed between snapshot and stats read.
			continue
		}

		batch.Queue(upsertRoom,
			r.ID, string(r.Type), string(r.State), members, r.MaxMembers,
			stats.TotalBroadcasts, stats.SuccessfulBroadcasts, stats.FailedBroadcasts,
			r.CreatedAt,
		)
	}
	for _, id := range destroyed {
		batch.Queue(`DELETE FROM rooms WHERE id = $1`, id)
	}

	if batch.Len() == 0 {
		return
	}

	start := time.Now()
	if err := s.db.SendBatch(ctx, batch).Close(); err != nil {
		s.logger.Error("snapshot flush failed", "error", err, "rooms", len(rooms))
		return
	}

	s.logger.Debug("snapshot flush",
		"rooms", len(rooms),
		"deleted", len(destroyed),
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
