package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"hermes/models"

	"github.com/apex/log"
	"github.com/shopspring/decimal"
)

// ItemsService owns the items, ratings, comments and photos tables. Every
// mutating call runs in a single transaction covering the write, the
// derived-value recompute and the reputation recompute.
type ItemsService struct {
	db *sql.DB

	// Authors at or above this reputation get their items auto-verified.
	autoVerifyReputation float64
}

func NewItemsService(db *sql.DB, autoVerifyReputation float64) *ItemsService {
	return &ItemsService{
		db:                   db,
		autoVerifyReputation: autoVerifyReputation,
	}
}

const itemColumns = `seq, title, description, author_id, latitude, longitude, rating, flags, status, created_at`

func scanItem(row *sql.Row) (*models.Item, error) {
	item := &models.Item{}
	err := row.Scan(&item.Seq, &item.Title, &item.Description, &item.AuthorId,
		&item.Latitude, &item.Longitude, &item.Rating, &item.Flags, &item.Status, &item.CreatedAt)
	if err != nil {
		return nil, err
	}
	return item, nil
}

// CreateItem creates an item, or returns the author's existing item at the
// same coordinates untouched. Create is an upsert-by-identity, not a strict
// create: the (author, latitude, longitude) tuple identifies the item.
func (s *ItemsService) CreateItem(ctx context.Context, authorID string, req *models.CreateItemRequest) (*models.Item, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	existing, err := scanItem(tx.QueryRow(`SELECT `+itemColumns+`
		FROM items
		WHERE author_id = ? AND latitude = ? AND longitude = ?`,
		authorID, req.Latitude, req.Longitude))
	if err == nil {
		log.Infof("Item at %f,%f already exists for user %s, returning seq %d",
			req.Latitude, req.Longitude, authorID, existing.Seq)
		return existing, tx.Commit()
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to look up existing item: %w", err)
	}

	var reputation float64
	err = tx.QueryRow(`SELECT reputation FROM users WHERE id = ?`, authorID).Scan(&reputation)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("author %s: %w", authorID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read author reputation: %w", err)
	}

	status := models.StatusUnverified
	if reputation >= s.autoVerifyReputation {
		status = models.StatusVerified
	}

	result, err := tx.Exec(`INSERT
		INTO items (title, description, author_id, latitude, longitude, status)
		VALUES (?, ?, ?, ?, ?, ?)`,
		req.Title, req.Description, authorID, req.Latitude, req.Longitude, status)
	if err != nil {
		return nil, fmt.Errorf("failed to insert item: %w", err)
	}
	seq, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get new item seq: %w", err)
	}
	log.Infof("Inserted item %d at %f,%f for user %s with status %s",
		seq, req.Latitude, req.Longitude, authorID, status)

	if err := recalculateReputation(tx, authorID); err != nil {
		return nil, err
	}

	item, err := scanItem(tx.QueryRow(`SELECT `+itemColumns+` FROM items WHERE seq = ?`, seq))
	if err != nil {
		return nil, fmt.Errorf("failed to read back item %d: %w", seq, err)
	}
	return item, tx.Commit()
}

// SearchBoundingBox returns all items inside the box. Range validation
// happens at the handler layer before any query runs.
func (s *ItemsService) SearchBoundingBox(ctx context.Context, req *models.BoundingBoxRequest) ([]models.Item, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+itemColumns+`
		FROM items
		WHERE latitude BETWEEN ? AND ? AND longitude BETWEEN ? AND ?`,
		req.MinLatitude, req.MaxLatitude, req.MinLongitude, req.MaxLongitude)
	if err != nil {
		return nil, fmt.Errorf("failed to query items in box: %w", err)
	}
	defer rows.Close()

	items := []models.Item{}
	for rows.Next() {
		item := models.Item{}
		if err := rows.Scan(&item.Seq, &item.Title, &item.Description, &item.AuthorId,
			&item.Latitude, &item.Longitude, &item.Rating, &item.Flags, &item.Status, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan item row: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// UpdateItem lets the item's author change title and description. Anybody
// else gets ErrForbidden.
func (s *ItemsService) UpdateItem(ctx context.Context, callerID string, req *models.UpdateItemRequest) (*models.Item, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var authorID string
	err = tx.QueryRow(`SELECT author_id FROM items WHERE seq = ? FOR UPDATE`, req.Seq).Scan(&authorID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("item %d: %w", req.Seq, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock item %d: %w", req.Seq, err)
	}
	if authorID != callerID {
		log.Warnf("User %s tried to update item %d owned by %s", callerID, req.Seq, authorID)
		return nil, fmt.Errorf("item %d belongs to another user: %w", req.Seq, ErrForbidden)
	}

	if _, err := tx.Exec(`UPDATE items SET title = ?, description = ? WHERE seq = ?`,
		req.Title, req.Description, req.Seq); err != nil {
		return nil, fmt.Errorf("failed to update item %d: %w", req.Seq, err)
	}

	if err := recalculateReputation(tx, authorID); err != nil {
		return nil, err
	}

	item, err := scanItem(tx.QueryRow(`SELECT `+itemColumns+` FROM items WHERE seq = ?`, req.Seq))
	if err != nil {
		return nil, fmt.Errorf("failed to read back item %d: %w", req.Seq, err)
	}
	return item, tx.Commit()
}

// AddRating upserts the caller's rating row for the item and recomputes the
// item rating as the arithmetic mean of all its rating rows.
func (s *ItemsService) AddRating(ctx context.Context, callerID string, req *models.AddRatingRequest) (*models.Item, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var seq int64
	err = tx.QueryRow(`SELECT seq FROM items WHERE seq = ? FOR UPDATE`, req.Seq).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("item %d: %w", req.Seq, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock item %d: %w", req.Seq, err)
	}

	if _, err := tx.Exec(`INSERT INTO ratings (item_seq, author_id, rating) VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE rating = ?`,
		req.Seq, callerID, req.Rating, req.Rating); err != nil {
		return nil, fmt.Errorf("failed to upsert rating: %w", err)
	}

	mean, err := ratingMean(tx, req.Seq)
	if err != nil {
		return nil, err
	}
	if _, err := tx.Exec(`UPDATE items SET rating = ? WHERE seq = ?`, mean, req.Seq); err != nil {
		return nil, fmt.Errorf("failed to store item rating: %w", err)
	}
	log.Infof("Item %d rating recomputed to %f after rating by user %s", req.Seq, mean, callerID)

	if err := recalculateReputation(tx, callerID); err != nil {
		return nil, err
	}

	item, err := scanItem(tx.QueryRow(`SELECT `+itemColumns+` FROM items WHERE seq = ?`, req.Seq))
	if err != nil {
		return nil, fmt.Errorf("failed to read back item %d: %w", req.Seq, err)
	}
	return item, tx.Commit()
}

// ratingMean computes the arithmetic mean of all rating rows for an item.
// decimal keeps repeated recomputation from drifting.
func ratingMean(tx *sql.Tx, itemSeq int64) (float64, error) {
	rows, err := tx.Query(`SELECT rating FROM ratings WHERE item_seq = ?`, itemSeq)
	if err != nil {
		return 0, fmt.Errorf("failed to read ratings for item %d: %w", itemSeq, err)
	}
	defer rows.Close()

	sum := decimal.Zero
	count := int64(0)
	for rows.Next() {
		var rating float64
		if err := rows.Scan(&rating); err != nil {
			return 0, fmt.Errorf("failed to scan rating row: %w", err)
		}
		sum = sum.Add(decimal.NewFromFloat(rating))
		count++
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}
	if count == 0 {
		return 0, nil
	}
	return sum.Div(decimal.NewFromInt(count)).InexactFloat64(), nil
}

const commentColumns = `id, item_seq, author_id, description, upvotes, downvotes, flags, experience, created_at`

func scanComment(row *sql.Row) (*models.Comment, error) {
	comment := &models.Comment{}
	err := row.Scan(&comment.Id, &comment.ItemSeq, &comment.AuthorId, &comment.Description,
		&comment.Upvotes, &comment.Downvotes, &comment.Flags, &comment.Experience, &comment.CreatedAt)
	if err != nil {
		return nil, err
	}
	return comment, nil
}

// AddComment upserts the caller's comment on an item. A user has at most
// one comment per item; re-commenting replaces the text but keeps the
// reaction counters and experience.
func (s *ItemsService) AddComment(ctx context.Context, callerID string, req *models.AddCommentRequest) (*models.Comment, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := itemExists(tx, req.Seq); err != nil {
		return nil, err
	}

	var commentID int64
	err = tx.QueryRow(`SELECT id FROM comments WHERE item_seq = ? AND author_id = ? FOR UPDATE`,
		req.Seq, callerID).Scan(&commentID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		result, err := tx.Exec(`INSERT INTO comments (item_seq, author_id, description) VALUES (?, ?, ?)`,
			req.Seq, callerID, req.Description)
		if err != nil {
			return nil, fmt.Errorf("failed to insert comment: %w", err)
		}
		if commentID, err = result.LastInsertId(); err != nil {
			return nil, fmt.Errorf("failed to get new comment id: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to look up comment: %w", err)
	default:
		if _, err := tx.Exec(`UPDATE comments SET description = ? WHERE id = ?`,
			req.Description, commentID); err != nil {
			return nil, fmt.Errorf("failed to update comment %d: %w", commentID, err)
		}
	}

	if err := recalculateReputation(tx, callerID); err != nil {
		return nil, err
	}

	comment, err := scanComment(tx.QueryRow(`SELECT `+commentColumns+` FROM comments WHERE id = ?`, commentID))
	if err != nil {
		return nil, fmt.Errorf("failed to read back comment %d: %w", commentID, err)
	}
	return comment, tx.Commit()
}

const photoColumns = `id, item_seq, author_id, picture, upvotes, downvotes, flags, experience, created_at`

func scanPhoto(row *sql.Row) (*models.Photo, error) {
	photo := &models.Photo{}
	err := row.Scan(&photo.Id, &photo.ItemSeq, &photo.AuthorId, &photo.Picture,
		&photo.Upvotes, &photo.Downvotes, &photo.Flags, &photo.Experience, &photo.CreatedAt)
	if err != nil {
		return nil, err
	}
	return photo, nil
}

// AddPhoto upserts the caller's photo on an item, same identity rule as
// comments.
func (s *ItemsService) AddPhoto(ctx context.Context, callerID string, req *models.AddPhotoRequest) (*models.Photo, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := itemExists(tx, req.Seq); err != nil {
		return nil, err
	}

	var photoID int64
	err = tx.QueryRow(`SELECT id FROM photos WHERE item_seq = ? AND author_id = ? FOR UPDATE`,
		req.Seq, callerID).Scan(&photoID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		result, err := tx.Exec(`INSERT INTO photos (item_seq, author_id, picture) VALUES (?, ?, ?)`,
			req.Seq, callerID, req.Picture)
		if err != nil {
			return nil, fmt.Errorf("failed to insert photo: %w", err)
		}
		if photoID, err = result.LastInsertId(); err != nil {
			return nil, fmt.Errorf("failed to get new photo id: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to look up photo: %w", err)
	default:
		if _, err := tx.Exec(`UPDATE photos SET picture = ? WHERE id = ?`,
			req.Picture, photoID); err != nil {
			return nil, fmt.Errorf("failed to update photo %d: %w", photoID, err)
		}
	}

	if err := recalculateReputation(tx, callerID); err != nil {
		return nil, err
	}

	photo, err := scanPhoto(tx.QueryRow(`SELECT `+photoColumns+` FROM photos WHERE id = ?`, photoID))
	if err != nil {
		return nil, fmt.Errorf("failed to read back photo %d: %w", photoID, err)
	}
	return photo, tx.Commit()
}

func itemExists(tx *sql.Tx, seq int64) error {
	var found int64
	err := tx.QueryRow(`SELECT seq FROM items WHERE seq = ?`, seq).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("item %d: %w", seq, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to check item %d: %w", seq, err)
	}
	return nil
}

// GetComments lists all comments on an item.
func (s *ItemsService) GetComments(ctx context.Context, itemSeq int64) ([]models.Comment, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+commentColumns+` FROM comments WHERE item_seq = ?`, itemSeq)
	if err != nil {
		return nil, fmt.Errorf("failed to query comments for item %d: %w", itemSeq, err)
	}
	defer rows.Close()

	comments := []models.Comment{}
	for rows.Next() {
		comment := models.Comment{}
		if err := rows.Scan(&comment.Id, &comment.ItemSeq, &comment.AuthorId, &comment.Description,
			&comment.Upvotes, &comment.Downvotes, &comment.Flags, &comment.Experience, &comment.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan comment row: %w", err)
		}
		comments = append(comments, comment)
	}
	return comments, rows.Err()
}

// GetPhotos lists all photos on an item.
func (s *ItemsService) GetPhotos(ctx context.Context, itemSeq int64) ([]models.Photo, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+photoColumns+` FROM photos WHERE item_seq = ?`, itemSeq)
	if err != nil {
		return nil, fmt.Errorf("failed to query photos for item %d: %w", itemSeq, err)
	}
	defer rows.Close()

	photos := []models.Photo{}
	for rows.Next() {
		photo := models.Photo{}
		if err := rows.Scan(&photo.Id, &photo.ItemSeq, &photo.AuthorId, &photo.Picture,
			&photo.Upvotes, &photo.Downvotes, &photo.Flags, &photo.Experience, &photo.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan photo row: %w", err)
		}
		photos = append(photos, photo)
	}
	return photos, rows.Err()
}

// GetUserComment returns the caller's own comment on an item, or nil when
// there is none.
func (s *ItemsService) GetUserComment(ctx context.Context, itemSeq int64, userID string) (*models.Comment, error) {
	comment, err := scanComment(s.db.QueryRowContext(ctx,
		`SELECT `+commentColumns+` FROM comments WHERE item_seq = ? AND author_id = ?`, itemSeq, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read user comment: %w", err)
	}
	return comment, nil
}

// UpdateOrCreateUser upserts the profile row created alongside external
// registration. Reputation is left alone; only the recompute touches it.
func (s *ItemsService) UpdateOrCreateUser(ctx context.Context, args *models.UserArgs) (*models.UserProfile, error) {
	log.Infof("Trying to create or update user %s / %s", args.Id, args.Avatar)
	if _, err := s.db.ExecContext(ctx, `INSERT INTO users (id, avatar) VALUES (?, ?)
		ON DUPLICATE KEY UPDATE avatar = ?`,
		args.Id, args.Avatar, args.Avatar); err != nil {
		return nil, fmt.Errorf("failed to upsert user %s: %w", args.Id, err)
	}

	user := &models.UserProfile{}
	err := s.db.QueryRowContext(ctx, `SELECT id, avatar, reputation, created_at FROM users WHERE id = ?`,
		args.Id).Scan(&user.Id, &user.Avatar, &user.Reputation, &user.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to read back user %s: %w", args.Id, err)
	}
	return user, nil
}

// GetStats returns the user's reputation together with contribution counts.
func (s *ItemsService) GetStats(ctx context.Context, userID string) (*models.StatsResponse, error) {
	stats := &models.StatsResponse{Id: userID}
	err := s.db.QueryRowContext(ctx, `SELECT
		u.reputation,
		(SELECT COUNT(*) FROM items WHERE author_id = u.id),
		(SELECT COUNT(*) FROM comments WHERE author_id = u.id),
		(SELECT COUNT(*) FROM photos WHERE author_id = u.id),
		(SELECT COUNT(*) FROM reactions WHERE author_id = u.id)
		FROM users u WHERE u.id = ?`, userID).
		Scan(&stats.Reputation, &stats.Items, &stats.Comments, &stats.Photos, &stats.Reactions)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read stats for user %s: %w", userID, err)
	}
	return stats, nil
}

// TopReputation returns the reputation leaderboard. When the caller is not
// in the top list their own record is appended with its real place.
func (s *ItemsService) TopReputation(ctx context.Context, callerID string, topCount int) (*models.TopReputationResponse, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, avatar, reputation
		FROM users
		ORDER BY reputation DESC, id
		LIMIT ?`, topCount)
	if err != nil {
		return nil, fmt.Errorf("failed to query top reputations: %w", err)
	}
	defer rows.Close()

	ret := &models.TopReputationResponse{
		Records: []models.TopReputationRecord{},
	}
	place := 1
	hasYou := false
	for rows.Next() {
		var id, avatar string
		var reputation float64
		if err := rows.Scan(&id, &avatar, &reputation); err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard row: %w", err)
		}
		ret.Records = append(ret.Records, models.TopReputationRecord{
			Place:      place,
			Avatar:     avatar,
			Reputation: reputation,
			IsYou:      id == callerID,
		})
		place++
		if id == callerID {
			hasYou = true
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// The list contains the caller, no need to fetch their own record.
	if hasYou || callerID == "" {
		return ret, nil
	}

	var avatar string
	var reputation float64
	err = s.db.QueryRowContext(ctx, `SELECT avatar, reputation FROM users WHERE id = ?`, callerID).
		Scan(&avatar, &reputation)
	if errors.Is(err, sql.ErrNoRows) {
		return ret, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read caller record: %w", err)
	}

	var better int
	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE reputation > ?`, reputation).
		Scan(&better)
	if err != nil {
		return nil, fmt.Errorf("failed to rank caller: %w", err)
	}
	you := models.TopReputationRecord{
		Place:      better + 1,
		Avatar:     avatar,
		Reputation: reputation,
		IsYou:      true,
	}
	if better < topCount {
		you.Place = topCount + 1
	}
	ret.Records = append(ret.Records, you)
	return ret, nil
}

// GetItemLocations returns the raw item coordinates inside a viewport for
// map aggregation.
func (s *ItemsService) GetItemLocations(ctx context.Context, vp *models.ViewPort) ([]models.Point, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT latitude, longitude
		FROM items
		WHERE latitude > ? AND longitude > ?
			AND latitude <= ? AND longitude <= ?`,
		vp.LatMin, vp.LonMin, vp.LatMax, vp.LonMax)
	if err != nil {
		return nil, fmt.Errorf("failed to query item locations: %w", err)
	}
	defer rows.Close()

	points := []models.Point{}
	for rows.Next() {
		point := models.Point{}
		if err := rows.Scan(&point.Lat, &point.Lon); err != nil {
			return nil, fmt.Errorf("failed to scan location row: %w", err)
		}
		points = append(points, point)
	}
	return points, rows.Err()
}
