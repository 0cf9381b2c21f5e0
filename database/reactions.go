package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"hermes/models"
	"hermes/scoring"

	"github.com/apex/log"
)

// ReactionOp is one of the five ledger operations a user can perform on a
// reactable. The vote axis (upvote/downvote/unvote) and the flag axis
// (flag/unflag) are independent: a user can hold one vote and one flag on
// the same reactable at the same time.
type ReactionOp string

const (
	OpUpvote   ReactionOp = "upvote"
	OpDownvote ReactionOp = "downvote"
	OpUnvote   ReactionOp = "unvote"
	OpFlag     ReactionOp = "flag"
	OpUnflag   ReactionOp = "unflag"
)

// ReactionsService owns the reactions ledger. Each operation runs in one
// transaction: ledger write, counter recount, score recompute, reputation
// recompute for the reactable's author and for the acting user.
type ReactionsService struct {
	db *sql.DB
}

func NewReactionsService(db *sql.DB) *ReactionsService {
	return &ReactionsService{db: db}
}

// ReactToComment applies op to a comment on behalf of actorID and returns
// the comment with refreshed counters and experience.
func (s *ReactionsService) ReactToComment(ctx context.Context, commentID int64, actorID string, op ReactionOp) (*models.Comment, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := apply(tx, models.KindComment, commentID, actorID, op); err != nil {
		return nil, err
	}

	comment, err := scanComment(tx.QueryRow(`SELECT `+commentColumns+` FROM comments WHERE id = ?`, commentID))
	if err != nil {
		return nil, fmt.Errorf("failed to read back comment %d: %w", commentID, err)
	}
	return comment, tx.Commit()
}

// ReactToPhoto applies op to a photo on behalf of actorID and returns the
// photo with refreshed counters and experience.
func (s *ReactionsService) ReactToPhoto(ctx context.Context, photoID int64, actorID string, op ReactionOp) (*models.Photo, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := apply(tx, models.KindPhoto, photoID, actorID, op); err != nil {
		return nil, err
	}

	photo, err := scanPhoto(tx.QueryRow(`SELECT `+photoColumns+` FROM photos WHERE id = ?`, photoID))
	if err != nil {
		return nil, fmt.Errorf("failed to read back photo %d: %w", photoID, err)
	}
	return photo, tx.Commit()
}

func reactableTable(kind models.ReactableKind) string {
	if kind == models.KindPhoto {
		return "photos"
	}
	return "comments"
}

// apply is the shared ledger routine for both reactable kinds. The comment
// and photo score paths were identical in every revision of the rules, so
// there is a single implementation instead of per-kind overrides.
func apply(tx *sql.Tx, kind models.ReactableKind, id int64, actorID string, op ReactionOp) error {
	table := reactableTable(kind)

	// Lock the reactable row for the whole operation so concurrent
	// reactions on it serialize.
	var authorID string
	var experience float64
	err := tx.QueryRow(`SELECT author_id, experience FROM `+table+` WHERE id = ? FOR UPDATE`, id).
		Scan(&authorID, &experience)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %d: %w", kind, id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to lock %s %d: %w", kind, id, err)
	}

	if err := mutateLedger(tx, kind, id, actorID, op); err != nil {
		return err
	}

	// Counters are always a recount of the ledger, never hand-maintained.
	upvotes, downvotes, flags, err := recountReactions(tx, kind, id)
	if err != nil {
		return err
	}

	score := scoring.Score(upvotes, downvotes, flags)
	delta := score - experience
	log.Infof("%s %d after %s by %s: up=%d down=%d flags=%d score=%f (delta %f for %s)",
		kind, id, op, actorID, upvotes, downvotes, flags, score, delta, authorID)

	if _, err := tx.Exec(`UPDATE `+table+` SET upvotes = ?, downvotes = ?, flags = ?, experience = ? WHERE id = ?`,
		upvotes, downvotes, flags, score, id); err != nil {
		return fmt.Errorf("failed to store counters for %s %d: %w", kind, id, err)
	}

	// Apply the experience delta to the author right away; the full
	// recompute below re-derives the same total from the updated rows.
	if _, err := tx.Exec(`UPDATE users SET reputation = reputation + ? WHERE id = ?`, delta, authorID); err != nil {
		return fmt.Errorf("failed to apply score delta to user %s: %w", authorID, err)
	}

	if err := recalculateReputation(tx, authorID); err != nil {
		return err
	}
	if actorID != authorID {
		if err := recalculateReputation(tx, actorID); err != nil {
			return err
		}
	}
	return nil
}

// mutateLedger performs the reaction state transition. Vote operations only
// ever touch the single non-flag row per (actor, reactable); flag
// operations only touch the flag row. All five are idempotent.
func mutateLedger(tx *sql.Tx, kind models.ReactableKind, id int64, actorID string, op ReactionOp) error {
	switch op {
	case OpUpvote, OpDownvote:
		target := models.ReactionUpvote
		if op == OpDownvote {
			target = models.ReactionDownvote
		}
		var reactionID int64
		err := tx.QueryRow(`SELECT id FROM reactions
			WHERE reactable_kind = ? AND reactable_id = ? AND author_id = ? AND reaction != 'flag'
			FOR UPDATE`, kind, id, actorID).Scan(&reactionID)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			if _, err := tx.Exec(`INSERT INTO reactions (reactable_kind, reactable_id, author_id, reaction)
				VALUES (?, ?, ?, ?)`, kind, id, actorID, target); err != nil {
				return fmt.Errorf("failed to insert %s reaction: %w", target, err)
			}
		case err != nil:
			return fmt.Errorf("failed to look up vote reaction: %w", err)
		default:
			if _, err := tx.Exec(`UPDATE reactions SET reaction = ? WHERE id = ?`, target, reactionID); err != nil {
				return fmt.Errorf("failed to retarget reaction %d: %w", reactionID, err)
			}
		}

	case OpUnvote:
		if _, err := tx.Exec(`DELETE FROM reactions
			WHERE reactable_kind = ? AND reactable_id = ? AND author_id = ? AND reaction != 'flag'`,
			kind, id, actorID); err != nil {
			return fmt.Errorf("failed to remove vote reaction: %w", err)
		}

	case OpFlag:
		var reactionID int64
		err := tx.QueryRow(`SELECT id FROM reactions
			WHERE reactable_kind = ? AND reactable_id = ? AND author_id = ? AND reaction = 'flag'
			FOR UPDATE`, kind, id, actorID).Scan(&reactionID)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			if _, err := tx.Exec(`INSERT INTO reactions (reactable_kind, reactable_id, author_id, reaction)
				VALUES (?, ?, ?, 'flag')`, kind, id, actorID); err != nil {
				return fmt.Errorf("failed to insert flag reaction: %w", err)
			}
		case err != nil:
			return fmt.Errorf("failed to look up flag reaction: %w", err)
		}
		// Already flagged: nothing to do.

	case OpUnflag:
		if _, err := tx.Exec(`DELETE FROM reactions
			WHERE reactable_kind = ? AND reactable_id = ? AND author_id = ? AND reaction = 'flag'`,
			kind, id, actorID); err != nil {
			return fmt.Errorf("failed to remove flag reaction: %w", err)
		}

	default:
		return fmt.Errorf("unknown reaction operation %q", op)
	}
	return nil
}

// recountReactions derives the counters from the current ledger rows.
func recountReactions(tx *sql.Tx, kind models.ReactableKind, id int64) (upvotes, downvotes, flags int64, err error) {
	err = tx.QueryRow(`SELECT
		COALESCE(SUM(reaction = 'upvote'), 0),
		COALESCE(SUM(reaction = 'downvote'), 0),
		COALESCE(SUM(reaction = 'flag'), 0)
		FROM reactions WHERE reactable_kind = ? AND reactable_id = ?`, kind, id).
		Scan(&upvotes, &downvotes, &flags)
	if err != nil {
		err = fmt.Errorf("failed to recount reactions for %s %d: %w", kind, id, err)
	}
	return
}
