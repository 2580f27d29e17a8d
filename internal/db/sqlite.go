package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/bwise1/voteledger/internal/db/migrations"
	"github.com/bwise1/voteledger/internal/ledger"
	"github.com/bwise1/voteledger/internal/model"
)

var _ ledger.Store = (*SQLiteStore)(nil)

// SQLiteStore is the single-node ledger store used for development and tests.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens the database at path and applies pragmas. With autoMigrate
// it also brings the schema up to date.
func OpenSQLite(path string, autoMigrate bool) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// one connection: SQLite has a single writer and every pragma below is per connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}
	if autoMigrate {
		if err := migrations.MigrateUp(db, migrations.DriverSQLite); err != nil {
			db.Close()
			return nil, err
		}
	}
	return &SQLiteStore{db: db}, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) AppendVote(ctx context.Context, ev model.VoteEvent) (model.VoteEvent, error) {
	// one statement, so the support check cannot interleave with another insert
	res, err := s.db.ExecContext(ctx, `
        INSERT INTO vote_events (id, actor_id, entity_id, kind, effect, day, grant_seq, created_at)
        SELECT ?1, ?2, ?3, ?4, ?5, ?6, ?7, ?8
        WHERE ?5 >= 0 OR (
            SELECT COALESCE(SUM(effect), 0) FROM vote_events WHERE actor_id = ?2 AND entity_id = ?3
        ) + ?5 >= 0
    `, ev.ID, ev.ActorID, ev.EntityID, string(ev.Kind), ev.Effect, ev.Day, ev.GrantSeq, ev.CreatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return model.VoteEvent{}, ledger.ErrConflict
		}
		return model.VoteEvent{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.VoteEvent{}, err
	}
	if n == 0 {
		return model.VoteEvent{}, ledger.ErrNothingToRetract
	}
	return ev, nil
}

func (s *SQLiteStore) AppendGrant(ctx context.Context, g model.ShareRewardGrant) (model.ShareRewardGrant, error) {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO share_reward_grants (id, actor_id, category, day, seq, token, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)
    `, g.ID, g.ActorID, string(g.Category), g.Day, g.Seq, g.Token, g.CreatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return model.ShareRewardGrant{}, ledger.ErrConflict
		}
		return model.ShareRewardGrant{}, err
	}
	return g, nil
}

func (s *SQLiteStore) CountGrants(ctx context.Context, actorID uuid.UUID, category model.VoteKind, day string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM share_reward_grants WHERE actor_id = ? AND category = ? AND day = ?`,
		actorID, string(category), day).Scan(&n)
	return n, err
}

func (s *SQLiteStore) UnconsumedGrants(ctx context.Context, actorID uuid.UUID, category model.VoteKind, day string) ([]model.ShareRewardGrant, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT g.id, g.actor_id, g.category, g.day, g.seq, g.token, g.created_at
        FROM share_reward_grants g
        WHERE g.actor_id = ? AND g.category = ? AND g.day = ?
          AND NOT EXISTS (
              SELECT 1 FROM vote_events v
              WHERE v.actor_id = g.actor_id AND v.kind = g.category
                AND v.day = g.day AND v.grant_seq = g.seq
          )
        ORDER BY g.seq
    `, actorID, string(category), day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var grants []model.ShareRewardGrant
	for rows.Next() {
		var g model.ShareRewardGrant
		if err := rows.Scan(&g.ID, &g.ActorID, &g.Category, &g.Day, &g.Seq, &g.Token, &g.CreatedAt); err != nil {
			return nil, err
		}
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

func (s *SQLiteStore) HasVoted(ctx context.Context, actorID, entityID uuid.UUID, kind model.VoteKind, day string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
        SELECT EXISTS (
            SELECT 1 FROM vote_events
            WHERE actor_id = ? AND entity_id = ? AND kind = ? AND day = ? AND grant_seq = 0
        )
    `, actorID, entityID, string(kind), day).Scan(&exists)
	return exists, err
}

func (s *SQLiteStore) NetEffect(ctx context.Context, actorID, entityID uuid.UUID) (int, error) {
	var net int
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(effect), 0) FROM vote_events WHERE actor_id = ? AND entity_id = ?`,
		actorID, entityID).Scan(&net)
	return net, err
}

func (s *SQLiteStore) ApplyVote(ctx context.Context, eventID uuid.UUID) (applied bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	var (
		entityID uuid.UUID
		effect   int
	)
	err = tx.QueryRowContext(ctx, `
        UPDATE vote_events SET applied_at = ?
        WHERE id = ? AND applied_at IS NULL
        RETURNING entity_id, effect
    `, now, eventID).Scan(&entityID, &effect)
	if errors.Is(err, sql.ErrNoRows) {
		var exists bool
		if err = tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM vote_events WHERE id = ?)`, eventID).Scan(&exists); err != nil {
			return false, err
		}
		if !exists {
			err = ledger.ErrNotFound
			return false, err
		}
		return false, tx.Commit()
	}
	if err != nil {
		return false, err
	}

	res, err := tx.ExecContext(ctx, `
        UPDATE entities
        SET vote_count = vote_count + ?1,
            trend = CASE WHEN ?1 > 0 THEN 'up' WHEN ?1 < 0 THEN 'down' ELSE trend END,
            last_event_id = ?2,
            updated_at = ?3
        WHERE id = ?4
    `, effect, eventID, now, entityID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		err = fmt.Errorf("entity %s: %w", entityID, ledger.ErrNotFound)
		return false, err
	}

	if err = tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

func (s *SQLiteStore) UnappliedVotes(ctx context.Context, limit int) ([]model.VoteEvent, error) {
	return s.queryVotes(ctx,
		`SELECT `+voteColumns+` FROM vote_events WHERE applied_at IS NULL ORDER BY created_at LIMIT ?`, limit)
}

func (s *SQLiteStore) ListVotes(ctx context.Context, entityID uuid.UUID, limit, offset int) ([]model.VoteEvent, error) {
	return s.queryVotes(ctx,
		`SELECT `+voteColumns+` FROM vote_events WHERE entity_id = ? ORDER BY created_at DESC, id LIMIT ? OFFSET ?`,
		entityID, limit, offset)
}

func (s *SQLiteStore) queryVotes(ctx context.Context, query string, args ...any) ([]model.VoteEvent, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	votes := []model.VoteEvent{}
	for rows.Next() {
		var (
			ev        model.VoteEvent
			appliedAt sql.NullTime
		)
		if err := rows.Scan(&ev.ID, &ev.ActorID, &ev.EntityID, &ev.Kind, &ev.Effect,
			&ev.Day, &ev.GrantSeq, &ev.CreatedAt, &appliedAt); err != nil {
			return nil, err
		}
		if appliedAt.Valid {
			t := appliedAt.Time
			ev.AppliedAt = &t
		}
		votes = append(votes, ev)
	}
	return votes, rows.Err()
}

func (s *SQLiteStore) SumEffects(ctx context.Context, entityID uuid.UUID) (int64, int64, error) {
	var applied, pending int64
	err := s.db.QueryRowContext(ctx, `
        SELECT
            COALESCE(SUM(CASE WHEN applied_at IS NOT NULL THEN effect ELSE 0 END), 0),
            COALESCE(SUM(CASE WHEN applied_at IS NULL THEN effect ELSE 0 END), 0)
        FROM vote_events WHERE entity_id = ?
    `, entityID).Scan(&applied, &pending)
	return applied, pending, err
}

func (s *SQLiteStore) CreateEntity(ctx context.Context, e model.Entity) (model.Entity, error) {
	if e.Trend == "" {
		e.Trend = model.TrendStable
	}
	e.CreatedAt = e.CreatedAt.UTC()
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO entities (id, name, owner_id, base_count, vote_count, trend, created_at, updated_at)
        VALUES (?1, ?2, ?3, ?4, ?4, ?5, ?6, ?6)
    `, e.ID, e.Name, e.OwnerID, e.BaseCount, string(e.Trend), e.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return model.Entity{}, ledger.ErrConflict
		}
		return model.Entity{}, err
	}
	e.VoteCount = e.BaseCount
	e.UpdatedAt = e.CreatedAt
	return e, nil
}

func (s *SQLiteStore) GetEntity(ctx context.Context, id uuid.UUID) (model.Entity, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+entityColumns+` FROM entities WHERE id = ?`, id)
	e, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Entity{}, fmt.Errorf("entity %s: %w", id, ledger.ErrNotFound)
	}
	return e, err
}

func (s *SQLiteStore) ListEntities(ctx context.Context, limit, offset int) ([]model.Entity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+entityColumns+` FROM entities ORDER BY vote_count DESC, created_at LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entities := []model.Entity{}
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	return entities, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntity(row rowScanner) (model.Entity, error) {
	var e model.Entity
	err := row.Scan(&e.ID, &e.Name, &e.OwnerID, &e.BaseCount,
		&e.VoteCount, &e.Trend, &e.LastEventID, &e.CreatedAt, &e.UpdatedAt)
	return e, err
}
