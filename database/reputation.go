package database

import (
	"database/sql"
	"errors"
	"fmt"
)

// recalculateReputation re-derives a user's reputation from scratch inside
// the caller's transaction:
//
//	reputation = sum of comment experience
//	           + sum of photo experience
//	           + count of reactions the user gave
//	           + sum over authored items of (rating*2 - flags*10)
//
// Full recompute instead of an incremental delta keeps the model trivially
// idempotent at the cost of O(contributions) per call, which is acceptable
// at this system's scale. The user row is locked first so concurrent
// recomputes for the same user serialize instead of overwriting each other.
func recalculateReputation(tx *sql.Tx, userID string) error {
	var current float64
	err := tx.QueryRow(`SELECT reputation FROM users WHERE id = ? FOR UPDATE`, userID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to lock user %s: %w", userID, err)
	}

	var reputation float64
	err = tx.QueryRow(`SELECT
		(SELECT COALESCE(SUM(experience), 0) FROM comments WHERE author_id = ?) +
		(SELECT COALESCE(SUM(experience), 0) FROM photos WHERE author_id = ?) +
		(SELECT COUNT(*) FROM reactions WHERE author_id = ?) +
		(SELECT COALESCE(SUM(rating * 2 - flags * 10), 0) FROM items WHERE author_id = ?)`,
		userID, userID, userID, userID).Scan(&reputation)
	if err != nil {
		return fmt.Errorf("failed to derive reputation for user %s: %w", userID, err)
	}

	if _, err := tx.Exec(`UPDATE users SET reputation = ? WHERE id = ?`, reputation, userID); err != nil {
		return fmt.Errorf("failed to store reputation for user %s: %w", userID, err)
	}
	return nil
}
