package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/wizwac/internal/history"
)

// MatchRepository persists finished games. It implements history.Store.
type MatchRepository struct {
	db *pgxpool.Pool
}

// NewMatchRepository creates a MatchRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewMatchRepository(db *pgxpool.Pool) *MatchRepository {
	return &MatchRepository{db: db}
}

// Save inserts one match result. A zero FinishedAt is stored as the insert time.
//
// Precondition: m.RoomCode is a 4-letter code and len(m.Board) is 9.
// Postcondition: Returns nil once the row is committed.
func (r *MatchRepository) Save(ctx context.Context, m history.MatchResult) error {
	var finishedAt any
	if !m.FinishedAt.IsZero() {
		finishedAt = m.FinishedAt
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO match_results
		   (room_code, player_a, player_b, winner, winner_name, board, moves, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8::timestamptz, NOW()))`,
		m.RoomCode, m.PlayerA, m.PlayerB, m.Winner, m.WinnerName, m.Board, m.Moves, finishedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting match result: %w", err)
	}
	return nil
}

// Recent returns up to limit results, newest first.
//
// Precondition: limit must be > 0.
// Postcondition: Returns an empty slice when no matches are stored.
func (r *MatchRepository) Recent(ctx context.Context, limit int) ([]history.MatchResult, error) {
	rows, err := r.db.Query(ctx,
		`SELECT room_code, player_a, player_b, winner, winner_name, board, moves, finished_at
		 FROM match_results
		 ORDER BY finished_at DESC, id DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying match results: %w", err)
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (history.MatchResult, error) {
		var m history.MatchResult
		err := row.Scan(&m.RoomCode, &m.PlayerA, &m.PlayerB, &m.Winner, &m.WinnerName, &m.Board, &m.Moves, &m.FinishedAt)
		return m, err
	})
	if err != nil {
		return nil, fmt.Errorf("scanning match results: %w", err)
	}
	return out, nil
}
