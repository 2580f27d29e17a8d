package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/bwise1/voteledger/internal/ledger"
	"github.com/bwise1/voteledger/internal/model"
)

var _ ledger.Store = (*DB)(nil)

const (
	voteColumns   = `id, actor_id, entity_id, kind, effect, day, grant_seq, created_at, applied_at`
	entityColumns = `id, name, owner_id, base_count, vote_count, trend, last_event_id, created_at, updated_at`
)

const insertVoteQuery = `
    INSERT INTO vote_events (id, actor_id, entity_id, kind, effect, day, grant_seq, created_at)
    VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`

func (db *DB) AppendVote(ctx context.Context, ev model.VoteEvent) (model.VoteEvent, error) {
	var err error
	if ev.Effect < 0 {
		err = db.appendRetraction(ctx, ev)
	} else {
		_, err = db.pool.Exec(ctx, insertVoteQuery,
			ev.ID, ev.ActorID, ev.EntityID, string(ev.Kind), ev.Effect, ev.Day, ev.GrantSeq, ev.CreatedAt)
	}
	if err != nil {
		if isUniqueViolation(err) {
			return model.VoteEvent{}, ledger.ErrConflict
		}
		return model.VoteEvent{}, err
	}
	return ev, nil
}

// appendRetraction serializes negative events per (actor, entity) with a
// transaction-scoped advisory lock, then checks support and inserts.
func (db *DB) appendRetraction(ctx context.Context, ev model.VoteEvent) error {
	return db.RunInTx(ctx, func(tx pgx.Tx) error {
		lockKey := ev.ActorID.String() + ":" + ev.EntityID.String()
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, lockKey); err != nil {
			return fmt.Errorf("locking actor support: %w", err)
		}

		var net int
		err := tx.QueryRow(ctx,
			`SELECT COALESCE(SUM(effect), 0) FROM vote_events WHERE actor_id = $1 AND entity_id = $2`,
			ev.ActorID, ev.EntityID).Scan(&net)
		if err != nil {
			return err
		}
		if net+ev.Effect < 0 {
			return ledger.ErrNothingToRetract
		}

		_, err = tx.Exec(ctx, insertVoteQuery,
			ev.ID, ev.ActorID, ev.EntityID, string(ev.Kind), ev.Effect, ev.Day, ev.GrantSeq, ev.CreatedAt)
		return err
	})
}

func (db *DB) AppendGrant(ctx context.Context, g model.ShareRewardGrant) (model.ShareRewardGrant, error) {
	query := `
        INSERT INTO share_reward_grants (id, actor_id, category, day, seq, token, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
    `
	_, err := db.pool.Exec(ctx, query,
		g.ID, g.ActorID, string(g.Category), g.Day, g.Seq, g.Token, g.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return model.ShareRewardGrant{}, ledger.ErrConflict
		}
		return model.ShareRewardGrant{}, err
	}
	return g, nil
}

func (db *DB) CountGrants(ctx context.Context, actorID uuid.UUID, category model.VoteKind, day string) (int, error) {
	query := `SELECT COUNT(*) FROM share_reward_grants WHERE actor_id = $1 AND category = $2 AND day = $3`
	var n int
	err := db.pool.QueryRow(ctx, query, actorID, string(category), day).Scan(&n)
	return n, err
}

func (db *DB) UnconsumedGrants(ctx context.Context, actorID uuid.UUID, category model.VoteKind, day string) ([]model.ShareRewardGrant, error) {
	query := `
        SELECT g.id, g.actor_id, g.category, g.day, g.seq, g.token, g.created_at
        FROM share_reward_grants g
        WHERE g.actor_id = $1 AND g.category = $2 AND g.day = $3
          AND NOT EXISTS (
              SELECT 1 FROM vote_events v
              WHERE v.actor_id = g.actor_id AND v.kind = g.category
                AND v.day = g.day AND v.grant_seq = g.seq
          )
        ORDER BY g.seq
    `
	rows, err := db.pool.Query(ctx, query, actorID, string(category), day)
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

func (db *DB) HasVoted(ctx context.Context, actorID, entityID uuid.UUID, kind model.VoteKind, day string) (bool, error) {
	query := `
        SELECT EXISTS (
            SELECT 1 FROM vote_events
            WHERE actor_id = $1 AND entity_id = $2 AND kind = $3 AND day = $4 AND grant_seq = 0
        )
    `
	var exists bool
	err := db.pool.QueryRow(ctx, query, actorID, entityID, string(kind), day).Scan(&exists)
	return exists, err
}

func (db *DB) NetEffect(ctx context.Context, actorID, entityID uuid.UUID) (int, error) {
	query := `SELECT COALESCE(SUM(effect), 0) FROM vote_events WHERE actor_id = $1 AND entity_id = $2`
	var net int
	err := db.pool.QueryRow(ctx, query, actorID, entityID).Scan(&net)
	return net, err
}

func (db *DB) ApplyVote(ctx context.Context, eventID uuid.UUID) (bool, error) {
	applied := false
	err := db.RunInTx(ctx, func(tx pgx.Tx) error {
		var (
			entityID uuid.UUID
			effect   int
		)
		err := tx.QueryRow(ctx, `
            UPDATE vote_events SET applied_at = NOW()
            WHERE id = $1 AND applied_at IS NULL
            RETURNING entity_id, effect
        `, eventID).Scan(&entityID, &effect)
		if errors.Is(err, pgx.ErrNoRows) {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM vote_events WHERE id = $1)`, eventID).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return ledger.ErrNotFound
			}
			return nil
		}
		if err != nil {
			return err
		}

		tag, err := tx.Exec(ctx, `
            UPDATE entities
            SET vote_count = vote_count + $1,
                trend = CASE WHEN $1 > 0 THEN 'up' WHEN $1 < 0 THEN 'down' ELSE trend END,
                last_event_id = $2,
                updated_at = NOW()
            WHERE id = $3
        `, int64(effect), eventID, entityID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("entity %s: %w", entityID, ledger.ErrNotFound)
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

func (db *DB) UnappliedVotes(ctx context.Context, limit int) ([]model.VoteEvent, error) {
	query := `SELECT ` + voteColumns + ` FROM vote_events WHERE applied_at IS NULL ORDER BY created_at LIMIT $1`
	return db.queryVotes(ctx, query, limit)
}

func (db *DB) ListVotes(ctx context.Context, entityID uuid.UUID, limit, offset int) ([]model.VoteEvent, error) {
	query := `SELECT ` + voteColumns + ` FROM vote_events WHERE entity_id = $1 ORDER BY created_at DESC, id LIMIT $2 OFFSET $3`
	return db.queryVotes(ctx, query, entityID, limit, offset)
}

func (db *DB) queryVotes(ctx context.Context, query string, args ...any) ([]model.VoteEvent, error) {
	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	votes := []model.VoteEvent{}
	for rows.Next() {
		var ev model.VoteEvent
		if err := rows.Scan(&ev.ID, &ev.ActorID, &ev.EntityID, &ev.Kind, &ev.Effect,
			&ev.Day, &ev.GrantSeq, &ev.CreatedAt, &ev.AppliedAt); err != nil {
			return nil, err
		}
		votes = append(votes, ev)
	}
	return votes, rows.Err()
}

func (db *DB) SumEffects(ctx context.Context, entityID uuid.UUID) (int64, int64, error) {
	query := `
        SELECT
            COALESCE(SUM(effect) FILTER (WHERE applied_at IS NOT NULL), 0),
            COALESCE(SUM(effect) FILTER (WHERE applied_at IS NULL), 0)
        FROM vote_events WHERE entity_id = $1
    `
	var applied, pending int64
	err := db.pool.QueryRow(ctx, query, entityID).Scan(&applied, &pending)
	return applied, pending, err
}

func (db *DB) CreateEntity(ctx context.Context, e model.Entity) (model.Entity, error) {
	query := `
        INSERT INTO entities (id, name, owner_id, base_count, vote_count, trend, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $4, $5, $6, $6)
    `
	if e.Trend == "" {
		e.Trend = model.TrendStable
	}
	_, err := db.pool.Exec(ctx, query, e.ID, e.Name, e.OwnerID, e.BaseCount, string(e.Trend), e.CreatedAt)
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

func (db *DB) GetEntity(ctx context.Context, id uuid.UUID) (model.Entity, error) {
	query := `SELECT ` + entityColumns + ` FROM entities WHERE id = $1`
	var e model.Entity
	err := db.pool.QueryRow(ctx, query, id).Scan(&e.ID, &e.Name, &e.OwnerID, &e.BaseCount,
		&e.VoteCount, &e.Trend, &e.LastEventID, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Entity{}, fmt.Errorf("entity %s: %w", id, ledger.ErrNotFound)
	}
	return e, err
}

func (db *DB) ListEntities(ctx context.Context, limit, offset int) ([]model.Entity, error) {
	query := `SELECT ` + entityColumns + ` FROM entities ORDER BY vote_count DESC, created_at LIMIT $1 OFFSET $2`
	rows, err := db.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entities := []model.Entity{}
	for rows.Next() {
		var e model.Entity
		if err := rows.Scan(&e.ID, &e.Name, &e.OwnerID, &e.BaseCount,
			&e.VoteCount, &e.Trend, &e.LastEventID, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	return entities, rows.Err()
}
