package database

import (
	"database/sql"
	"fmt"

	"github.com/apex/log"
)

// InitSchema creates the necessary database tables if they don't exist
func InitSchema(db *sql.DB) error {
	log.Info("Initializing hermes database schema...")

	usersTableSQL := `
	CREATE TABLE IF NOT EXISTS users(
		id VARCHAR(64) NOT NULL,
		avatar VARCHAR(255) NOT NULL DEFAULT '',
		reputation DOUBLE NOT NULL DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (id)
	)`

	if _, err := db.Exec(usersTableSQL); err != nil {
		return fmt.Errorf("failed to create users table: %w", err)
	}
	log.Info("Users table created/verified")

	itemsTableSQL := `
	CREATE TABLE IF NOT EXISTS items(
		seq INT NOT NULL AUTO_INCREMENT,
		title VARCHAR(256) NOT NULL,
		description TEXT,
		author_id VARCHAR(64) NOT NULL,
		latitude DOUBLE NOT NULL,
		longitude DOUBLE NOT NULL,
		rating DOUBLE NOT NULL DEFAULT 0,
		flags INT NOT NULL DEFAULT 0,
		status ENUM('verified', 'unverified', 'deleted', 'removed') NOT NULL DEFAULT 'unverified',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (seq),
		UNIQUE KEY author_location_key (author_id, latitude, longitude),
		INDEX latitude_index (latitude),
		INDEX longitude_index (longitude)
	)`

	if _, err := db.Exec(itemsTableSQL); err != nil {
		return fmt.Errorf("failed to create items table: %w", err)
	}
	log.Info("Items table created/verified")

	ratingsTableSQL := `
	CREATE TABLE IF NOT EXISTS ratings(
		item_seq INT NOT NULL,
		author_id VARCHAR(64) NOT NULL,
		rating DOUBLE NOT NULL DEFAULT 0,
		UNIQUE KEY item_author_key (item_seq, author_id),
		INDEX item_seq_index (item_seq)
	)`

	if _, err := db.Exec(ratingsTableSQL); err != nil {
		return fmt.Errorf("failed to create ratings table: %w", err)
	}
	log.Info("Ratings table created/verified")

	commentsTableSQL := `
	CREATE TABLE IF NOT EXISTS comments(
		id INT NOT NULL AUTO_INCREMENT,
		item_seq INT NOT NULL,
		author_id VARCHAR(64) NOT NULL,
		description TEXT NOT NULL,
		upvotes INT NOT NULL DEFAULT 0,
		downvotes INT NOT NULL DEFAULT 0,
		flags INT NOT NULL DEFAULT 0,
		experience DOUBLE NOT NULL DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (id),
		UNIQUE KEY item_author_key (item_seq, author_id),
		INDEX author_id_index (author_id)
	)`

	if _, err := db.Exec(commentsTableSQL); err != nil {
		return fmt.Errorf("failed to create comments table: %w", err)
	}
	log.Info("Comments table created/verified")

	photosTableSQL := `
	CREATE TABLE IF NOT EXISTS photos(
		id INT NOT NULL AUTO_INCREMENT,
		item_seq INT NOT NULL,
		author_id VARCHAR(64) NOT NULL,
		picture LONGBLOB,
		upvotes INT NOT NULL DEFAULT 0,
		downvotes INT NOT NULL DEFAULT 0,
		flags INT NOT NULL DEFAULT 0,
		experience DOUBLE NOT NULL DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (id),
		UNIQUE KEY item_author_key (item_seq, author_id),
		INDEX author_id_index (author_id)
	)`

	if _, err := db.Exec(photosTableSQL); err != nil {
		return fmt.Errorf("failed to create photos table: %w", err)
	}
	log.Info("Photos table created/verified")

	reactionsTableSQL := `
	CREATE TABLE IF NOT EXISTS reactions(
		id INT NOT NULL AUTO_INCREMENT,
		reactable_kind ENUM('comment', 'photo') NOT NULL,
		reactable_id INT NOT NULL,
		author_id VARCHAR(64) NOT NULL,
		reaction ENUM('upvote', 'downvote', 'flag') NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (id),
		INDEX reactable_index (reactable_kind, reactable_id, author_id),
		INDEX author_id_index (author_id)
	)`

	if _, err := db.Exec(reactionsTableSQL); err != nil {
		return fmt.Errorf("failed to create reactions table: %w", err)
	}
	log.Info("Reactions table created/verified")

	addFKConstraints(db)

	log.Info("Hermes database schema initialization completed")
	return nil
}

// addFKConstraints adds foreign key constraints for referential integrity.
// Items own their ratings, comments and photos, so those cascade.
func addFKConstraints(db *sql.DB) {
	constraints := []struct {
		name string
		ddl  string
	}{
		{
			name: "fk_items_author_id",
			ddl: `ALTER TABLE items
				ADD CONSTRAINT fk_items_author_id
				FOREIGN KEY (author_id) REFERENCES users(id)`,
		},
		{
			name: "fk_ratings_item_seq",
			ddl: `ALTER TABLE ratings
				ADD CONSTRAINT fk_ratings_item_seq
				FOREIGN KEY (item_seq) REFERENCES items(seq) ON DELETE CASCADE`,
		},
		{
			name: "fk_comments_item_seq",
			ddl: `ALTER TABLE comments
				ADD CONSTRAINT fk_comments_item_seq
				FOREIGN KEY (item_seq) REFERENCES items(seq) ON DELETE CASCADE`,
		},
		{
			name: "fk_photos_item_seq",
			ddl: `ALTER TABLE photos
				ADD CONSTRAINT fk_photos_item_seq
				FOREIGN KEY (item_seq) REFERENCES items(seq) ON DELETE CASCADE`,
		},
	}

	for _, constraint := range constraints {
		var count int
		err := db.QueryRow(`
			SELECT COUNT(*)
			FROM information_schema.TABLE_CONSTRAINTS
			WHERE CONSTRAINT_SCHEMA = DATABASE()
			AND CONSTRAINT_NAME = ?
		`, constraint.name).Scan(&count)

		if err != nil {
			log.Warnf("Could not check for existing constraint %s: %v", constraint.name, err)
			continue
		}

		if count == 0 {
			if _, err := db.Exec(constraint.ddl); err != nil {
				log.Warnf("Could not add constraint %s: %v", constraint.name, err)
			} else {
				log.Infof("Added constraint %s", constraint.name)
			}
		}
	}
}
