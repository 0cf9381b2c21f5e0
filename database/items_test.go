package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"hermes/models"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

func itemRow(seq int64, title, description, authorID string, lat, lon, rating float64, flags int64, status string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"seq", "title", "description", "author_id", "latitude", "longitude", "rating", "flags", "status", "created_at",
	}).AddRow(seq, title, description, authorID, lat, lon, rating, flags, status, time.Now())
}

func TestCreateItemReturnsExistingAtSameLocation(t *testing.T) {
	it(func() {
		s := NewItemsService(db, 100.0)

		mock.ExpectBegin()
		mock.ExpectQuery("FROM items WHERE author_id = ").
			WithArgs("alice", 48.2, 16.3).
			WillReturnRows(itemRow(7, "Fountain", "old text", "alice", 48.2, 16.3, 4.0, 0, "verified"))
		mock.ExpectCommit()

		item, err := s.CreateItem(context.Background(), "alice", &models.CreateItemRequest{
			Title:     "Fountain",
			Latitude:  48.2,
			Longitude: 16.3,
		})
		if err != nil {
			t.Fatalf("CreateItem returned error: %v", err)
		}
		if item.Seq != 7 {
			t.Errorf("Expected existing seq 7, got %d", item.Seq)
		}
		if item.Description != "old text" {
			t.Errorf("Existing item should be returned untouched, got %q", item.Description)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("Unmet expectations: %v", err)
		}
	})
}

func TestCreateItemUnverifiedForLowReputation(t *testing.T) {
	it(func() {
		s := NewItemsService(db, 100.0)

		mock.ExpectBegin()
		mock.ExpectQuery("FROM items WHERE author_id = ").
			WithArgs("alice", 48.2, 16.3).
			WillReturnRows(sqlmock.NewRows([]string{"seq"}))
		mock.ExpectQuery("SELECT reputation FROM users WHERE id = ").
			WithArgs("alice").
			WillReturnRows(sqlmock.NewRows([]string{"reputation"}).AddRow(5.0))
		mock.ExpectExec("INSERT INTO items").
			WithArgs("Fountain", "broken", "alice", 48.2, 16.3, "unverified").
			WillReturnResult(sqlmock.NewResult(7, 1))
		expectUserRecalc("alice", 5.0)
		mock.ExpectQuery("FROM items WHERE seq = ").
			WithArgs(7).
			WillReturnRows(itemRow(7, "Fountain", "broken", "alice", 48.2, 16.3, 0, 0, "unverified"))
		mock.ExpectCommit()

		item, err := s.CreateItem(context.Background(), "alice", &models.CreateItemRequest{
			Title:       "Fountain",
			Description: "broken",
			Latitude:    48.2,
			Longitude:   16.3,
		})
		if err != nil {
			t.Fatalf("CreateItem returned error: %v", err)
		}
		if item.Status != models.StatusUnverified {
			t.Errorf("Expected status unverified, got %s", item.Status)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("Unmet expectations: %v", err)
		}
	})
}

func TestCreateItemAutoVerifiedForHighReputation(t *testing.T) {
	it(func() {
		s := NewItemsService(db, 100.0)

		mock.ExpectBegin()
		mock.ExpectQuery("FROM items WHERE author_id = ").
			WithArgs("alice", 48.2, 16.3).
			WillReturnRows(sqlmock.NewRows([]string{"seq"}))
		mock.ExpectQuery("SELECT reputation FROM users WHERE id = ").
			WithArgs("alice").
			WillReturnRows(sqlmock.NewRows([]string{"reputation"}).AddRow(250.0))
		mock.ExpectExec("INSERT INTO items").
			WithArgs("Fountain", "broken", "alice", 48.2, 16.3, "verified").
			WillReturnResult(sqlmock.NewResult(8, 1))
		expectUserRecalc("alice", 250.0)
		mock.ExpectQuery("FROM items WHERE seq = ").
			WithArgs(8).
			WillReturnRows(itemRow(8, "Fountain", "broken", "alice", 48.2, 16.3, 0, 0, "verified"))
		mock.ExpectCommit()

		item, err := s.CreateItem(context.Background(), "alice", &models.CreateItemRequest{
			Title:       "Fountain",
			Description: "broken",
			Latitude:    48.2,
			Longitude:   16.3,
		})
		if err != nil {
			t.Fatalf("CreateItem returned error: %v", err)
		}
		if item.Status != models.StatusVerified {
			t.Errorf("Expected status verified, got %s", item.Status)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("Unmet expectations: %v", err)
		}
	})
}

func TestCreateItemUnverifiedRowReturnsErrNoRows(t *testing.T) {
	it(func() {
		s := NewItemsService(db, 100.0)

		mock.ExpectBegin()
		mock.ExpectQuery("FROM items WHERE author_id = ").
			WithArgs("ghost", 1.0, 2.0).
			WillReturnRows(sqlmock.NewRows([]string{"seq"}))
		mock.ExpectQuery("SELECT reputation FROM users WHERE id = ").
			WithArgs("ghost").
			WillReturnRows(sqlmock.NewRows([]string{"reputation"}))
		mock.ExpectRollback()

		_, err := s.CreateItem(context.Background(), "ghost", &models.CreateItemRequest{
			Title:     "Nothing",
			Latitude:  1.0,
			Longitude: 2.0,
		})
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound for unknown author, got %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("Unmet expectations: %v", err)
		}
	})
}

func TestUpdateItemByNonAuthorIsForbidden(t *testing.T) {
	it(func() {
		s := NewItemsService(db, 100.0)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT author_id FROM items WHERE seq = ").
			WithArgs(7).
			WillReturnRows(sqlmock.NewRows([]string{"author_id"}).AddRow("alice"))
		mock.ExpectRollback()

		_, err := s.UpdateItem(context.Background(), "mallory", &models.UpdateItemRequest{
			Seq:   7,
			Title: "Hijacked",
		})
		if !errors.Is(err, ErrForbidden) {
			t.Errorf("Expected ErrForbidden, got %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("Unmet expectations: %v", err)
		}
	})
}

func TestAddRatingRecomputesMean(t *testing.T) {
	it(func() {
		s := NewItemsService(db, 100.0)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT seq FROM items WHERE seq = ").
			WithArgs(7).
			WillReturnRows(sqlmock.NewRows([]string{"seq"}).AddRow(7))
		mock.ExpectExec("INSERT INTO ratings").
			WithArgs(7, "dave", 5.0, 5.0).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectQuery("SELECT rating FROM ratings WHERE item_seq = ").
			WithArgs(7).
			WillReturnRows(sqlmock.NewRows([]string{"rating"}).AddRow(4.0).AddRow(5.0))
		mock.ExpectExec("UPDATE items SET rating = ").
			WithArgs(4.5, 7).
			WillReturnResult(sqlmock.NewResult(0, 1))
		expectUserRecalc("dave", 2.0)
		mock.ExpectQuery("FROM items WHERE seq = ").
			WithArgs(7).
			WillReturnRows(itemRow(7, "Fountain", "broken", "alice", 48.2, 16.3, 4.5, 0, "verified"))
		mock.ExpectCommit()

		item, err := s.AddRating(context.Background(), "dave", &models.AddRatingRequest{
			Seq:    7,
			Rating: 5.0,
		})
		if err != nil {
			t.Fatalf("AddRating returned error: %v", err)
		}
		if item.Rating != 4.5 {
			t.Errorf("Expected mean rating 4.5, got %f", item.Rating)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("Unmet expectations: %v", err)
		}
	})
}

func TestAddCommentReplacesExistingText(t *testing.T) {
	it(func() {
		s := NewItemsService(db, 100.0)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT seq FROM items WHERE seq = ").
			WithArgs(7).
			WillReturnRows(sqlmock.NewRows([]string{"seq"}).AddRow(7))
		mock.ExpectQuery("SELECT id FROM comments WHERE item_seq = ").
			WithArgs(7, "bob").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(9))
		mock.ExpectExec("UPDATE comments SET description = ").
			WithArgs("second thoughts", 9).
			WillReturnResult(sqlmock.NewResult(0, 1))
		expectUserRecalc("bob", 11.0)
		mock.ExpectQuery("SELECT id, item_seq, author_id, description, upvotes, downvotes, flags, experience, created_at FROM comments WHERE id = ").
			WithArgs(9).
			WillReturnRows(commentRow(9, 7, "bob", "second thoughts", 1, 0, 0, 11.0))
		mock.ExpectCommit()

		comment, err := s.AddComment(context.Background(), "bob", &models.AddCommentRequest{
			Seq:         7,
			Description: "second thoughts",
		})
		if err != nil {
			t.Fatalf("AddComment returned error: %v", err)
		}
		if comment.Description != "second thoughts" {
			t.Errorf("Expected replaced text, got %q", comment.Description)
		}
		// Replacing the text keeps the reaction state.
		if comment.Upvotes != 1 || comment.Experience != 11.0 {
			t.Errorf("Reaction state should survive a re-comment: %+v", comment.Reactable)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("Unmet expectations: %v", err)
		}
	})
}

func TestAddCommentOnMissingItemIsNotFound(t *testing.T) {
	it(func() {
		s := NewItemsService(db, 100.0)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT seq FROM items WHERE seq = ").
			WithArgs(404).
			WillReturnRows(sqlmock.NewRows([]string{"seq"}))
		mock.ExpectRollback()

		_, err := s.AddComment(context.Background(), "bob", &models.AddCommentRequest{
			Seq:         404,
			Description: "into the void",
		})
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("Unmet expectations: %v", err)
		}
	})
}

func TestSearchBoundingBox(t *testing.T) {
	it(func() {
		s := NewItemsService(db, 100.0)

		rows := sqlmock.NewRows([]string{
			"seq", "title", "description", "author_id", "latitude", "longitude", "rating", "flags", "status", "created_at",
		}).
			AddRow(1, "A", "", "alice", 48.1, 16.1, 0.0, 0, "verified", time.Now()).
			AddRow(2, "B", "", "bob", 48.2, 16.2, 3.0, 1, "unverified", time.Now())
		mock.ExpectQuery("WHERE latitude BETWEEN ").
			WithArgs(48.0, 49.0, 16.0, 17.0).
			WillReturnRows(rows)

		items, err := s.SearchBoundingBox(context.Background(), &models.BoundingBoxRequest{
			MinLatitude:  48.0,
			MaxLatitude:  49.0,
			MinLongitude: 16.0,
			MaxLongitude: 17.0,
		})
		if err != nil {
			t.Fatalf("SearchBoundingBox returned error: %v", err)
		}
		if len(items) != 2 {
			t.Errorf("Expected 2 items, got %d", len(items))
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("Unmet expectations: %v", err)
		}
	})
}

func TestGetUserCommentMissingIsNotAnError(t *testing.T) {
	it(func() {
		s := NewItemsService(db, 100.0)

		mock.ExpectQuery("FROM comments WHERE item_seq = ").
			WithArgs(7, "bob").
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		comment, err := s.GetUserComment(context.Background(), 7, "bob")
		if err != nil {
			t.Fatalf("GetUserComment returned error: %v", err)
		}
		if comment != nil {
			t.Errorf("Expected nil comment, got %+v", comment)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("Unmet expectations: %v", err)
		}
	})
}

func TestGetStats(t *testing.T) {
	it(func() {
		s := NewItemsService(db, 100.0)

		mock.ExpectQuery("FROM users u WHERE u.id = ").
			WithArgs("alice").
			WillReturnRows(sqlmock.NewRows([]string{"reputation", "items", "comments", "photos", "reactions"}).
				AddRow(42.0, 3, 5, 2, 11))

		stats, err := s.GetStats(context.Background(), "alice")
		if err != nil {
			t.Fatalf("GetStats returned error: %v", err)
		}
		if stats.Reputation != 42.0 || stats.Items != 3 || stats.Comments != 5 || stats.Photos != 2 || stats.Reactions != 11 {
			t.Errorf("Unexpected stats: %+v", stats)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("Unmet expectations: %v", err)
		}
	})
}

func TestTopReputationAppendsCallerRecord(t *testing.T) {
	it(func() {
		s := NewItemsService(db, 100.0)

		mock.ExpectQuery("FROM users ORDER BY reputation DESC").
			WithArgs(3).
			WillReturnRows(sqlmock.NewRows([]string{"id", "avatar", "reputation"}).
				AddRow("alice", "Alice", 90.0).
				AddRow("bob", "Bob", 80.0).
				AddRow("carol", "Carol", 70.0))
		mock.ExpectQuery("SELECT avatar, reputation FROM users WHERE id = ").
			WithArgs("dave").
			WillReturnRows(sqlmock.NewRows([]string{"avatar", "reputation"}).AddRow("Dave", 10.0))
		mock.ExpectQuery("FROM users WHERE reputation > ").
			WithArgs(10.0).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(10))

		resp, err := s.TopReputation(context.Background(), "dave", 3)
		if err != nil {
			t.Fatalf("TopReputation returned error: %v", err)
		}
		if len(resp.Records) != 4 {
			t.Fatalf("Expected 4 records, got %d", len(resp.Records))
		}
		you := resp.Records[3]
		if !you.IsYou || you.Place != 11 || you.Avatar != "Dave" {
			t.Errorf("Unexpected caller record: %+v", you)
		}
		for i, rec := range resp.Records[:3] {
			if rec.IsYou {
				t.Errorf("Record %d should not be the caller: %+v", i, rec)
			}
			if rec.Place != i+1 {
				t.Errorf("Expected place %d, got %d", i+1, rec.Place)
			}
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("Unmet expectations: %v", err)
		}
	})
}

func TestTopReputationCallerInList(t *testing.T) {
	it(func() {
		s := NewItemsService(db, 100.0)

		mock.ExpectQuery("FROM users ORDER BY reputation DESC").
			WithArgs(2).
			WillReturnRows(sqlmock.NewRows([]string{"id", "avatar", "reputation"}).
				AddRow("alice", "Alice", 90.0).
				AddRow("bob", "Bob", 80.0))

		resp, err := s.TopReputation(context.Background(), "bob", 2)
		if err != nil {
			t.Fatalf("TopReputation returned error: %v", err)
		}
		if len(resp.Records) != 2 {
			t.Fatalf("Expected 2 records, got %d", len(resp.Records))
		}
		if !resp.Records[1].IsYou {
			t.Errorf("Second record should be the caller: %+v", resp.Records[1])
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("Unmet expectations: %v", err)
		}
	})
}

func TestUpdateOrCreateUser(t *testing.T) {
	it(func() {
		s := NewItemsService(db, 100.0)

		mock.ExpectExec("INSERT INTO users").
			WithArgs("alice", "Alice", "Alice").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery("SELECT id, avatar, reputation, created_at FROM users WHERE id = ").
			WithArgs("alice").
			WillReturnRows(sqlmock.NewRows([]string{"id", "avatar", "reputation", "created_at"}).
				AddRow("alice", "Alice", 42.0, time.Now()))

		user, err := s.UpdateOrCreateUser(context.Background(), &models.UserArgs{Id: "alice", Avatar: "Alice"})
		if err != nil {
			t.Fatalf("UpdateOrCreateUser returned error: %v", err)
		}
		if user.Reputation != 42.0 {
			t.Errorf("Upsert must not touch reputation, got %f", user.Reputation)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("Unmet expectations: %v", err)
		}
	})
}

func TestGetItemLocations(t *testing.T) {
	it(func() {
		s := NewItemsService(db, 100.0)

		mock.ExpectQuery("SELECT latitude, longitude FROM items WHERE latitude > ").
			WithArgs(48.0, 16.0, 49.0, 17.0).
			WillReturnRows(sqlmock.NewRows([]string{"latitude", "longitude"}).
				AddRow(48.1, 16.1).
				AddRow(48.9, 16.9))

		points, err := s.GetItemLocations(context.Background(), &models.ViewPort{
			LatMin: 48.0, LonMin: 16.0, LatMax: 49.0, LonMax: 17.0,
		})
		if err != nil {
			t.Fatalf("GetItemLocations returned error: %v", err)
		}
		if len(points) != 2 {
			t.Errorf("Expected 2 points, got %d", len(points))
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("Unmet expectations: %v", err)
		}
	})
}
