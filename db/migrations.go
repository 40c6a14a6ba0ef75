package db

import (
	"database/sql"

	"github.com/rs/zerolog/log"
)

const (
	sqlCreateAccountsTable = `CREATE TABLE IF NOT EXISTS accounts(
		id TEXT NOT NULL PRIMARY KEY,
		username TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		public_key_pem TEXT NOT NULL,
		private_key_pem TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	// One table for local and remote identities. Local rows carry the
	// account_id link; fetch paths must never overwrite rows where it is
	// set.
	sqlCreateActorsTable = `CREATE TABLE IF NOT EXISTS actors(
		id TEXT NOT NULL PRIMARY KEY,
		uri TEXT UNIQUE NOT NULL,
		username TEXT NOT NULL,
		domain TEXT NOT NULL,
		display_name TEXT DEFAULT '',
		summary TEXT DEFAULT '',
		avatar_url TEXT DEFAULT '',
		inbox_uri TEXT NOT NULL,
		shared_inbox_uri TEXT DEFAULT '',
		actor_type TEXT DEFAULT 'Person',
		public_key_pem TEXT NOT NULL,
		followers_count INTEGER DEFAULT 0,
		following_count INTEGER DEFAULT 0,
		counts_refreshed_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		account_id TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(username, domain)
	)`

	sqlCreateActorsIndices = `
		CREATE INDEX IF NOT EXISTS idx_actors_uri ON actors(uri);
		CREATE INDEX IF NOT EXISTS idx_actors_domain ON actors(domain);
		CREATE INDEX IF NOT EXISTS idx_actors_account_id ON actors(account_id);
	`

	sqlCreatePostsTable = `CREATE TABLE IF NOT EXISTS posts(
		id TEXT NOT NULL PRIMARY KEY,
		public_id TEXT UNIQUE NOT NULL,
		uri TEXT UNIQUE NOT NULL,
		actor_id TEXT NOT NULL,
		content TEXT DEFAULT '',
		sensitive INTEGER DEFAULT 0,
		content_warning TEXT DEFAULT '',
		in_reply_to_id TEXT,
		quote_of_id TEXT,
		audience TEXT DEFAULT '[]',
		tags TEXT DEFAULT '[]',
		mentions TEXT DEFAULT '[]',
		attachments TEXT DEFAULT '[]',
		link_preview TEXT,
		video_embed TEXT,
		likes_count INTEGER DEFAULT 0,
		boosts_count INTEGER DEFAULT 0,
		replies_count INTEGER DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		edited_at TIMESTAMP
	)`

	sqlCreatePostsIndices = `
		CREATE INDEX IF NOT EXISTS idx_posts_uri ON posts(uri);
		CREATE INDEX IF NOT EXISTS idx_posts_public_id ON posts(public_id);
		CREATE INDEX IF NOT EXISTS idx_posts_actor_id ON posts(actor_id);
		CREATE INDEX IF NOT EXISTS idx_posts_in_reply_to_id ON posts(in_reply_to_id);
		CREATE INDEX IF NOT EXISTS idx_posts_created_at ON posts(created_at DESC);
	`

	sqlCreateFollowsTable = `CREATE TABLE IF NOT EXISTS follows(
		id TEXT NOT NULL PRIMARY KEY,
		actor_id TEXT NOT NULL,
		target_actor_id TEXT NOT NULL,
		uri TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(actor_id, target_actor_id)
	)`

	sqlCreateFollowsIndices = `
		CREATE INDEX IF NOT EXISTS idx_follows_actor_id ON follows(actor_id);
		CREATE INDEX IF NOT EXISTS idx_follows_target_actor_id ON follows(target_actor_id);
		CREATE INDEX IF NOT EXISTS idx_follows_uri ON follows(uri);
	`

	sqlCreateLikesTable = `CREATE TABLE IF NOT EXISTS likes(
		id TEXT NOT NULL PRIMARY KEY,
		actor_id TEXT NOT NULL,
		post_id TEXT NOT NULL,
		uri TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(actor_id, post_id)
	)`

	sqlCreateLikesIndices = `
		CREATE INDEX IF NOT EXISTS idx_likes_post_id ON likes(post_id);
		CREATE INDEX IF NOT EXISTS idx_likes_uri ON likes(uri);
	`

	sqlCreateBoostsTable = `CREATE TABLE IF NOT EXISTS boosts(
		id TEXT NOT NULL PRIMARY KEY,
		actor_id TEXT NOT NULL,
		post_id TEXT NOT NULL,
		uri TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(actor_id, post_id)
	)`

	sqlCreateBoostsIndices = `
		CREATE INDEX IF NOT EXISTS idx_boosts_post_id ON boosts(post_id);
		CREATE INDEX IF NOT EXISTS idx_boosts_uri ON boosts(uri);
	`

	// Deduplication ledger: every activity URI ever processed, inbound or
	// outbound.
	sqlCreateActivitiesTable = `CREATE TABLE IF NOT EXISTS activities(
		id TEXT NOT NULL PRIMARY KEY,
		activity_uri TEXT UNIQUE NOT NULL,
		activity_type TEXT NOT NULL,
		actor_uri TEXT NOT NULL,
		object_uri TEXT DEFAULT '',
		object_type TEXT DEFAULT '',
		raw_json TEXT NOT NULL,
		direction TEXT NOT NULL DEFAULT 'in',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreateActivitiesIndices = `
		CREATE INDEX IF NOT EXISTS idx_activities_uri ON activities(activity_uri);
		CREATE INDEX IF NOT EXISTS idx_activities_type ON activities(activity_type);
		CREATE INDEX IF NOT EXISTS idx_activities_created_at ON activities(created_at DESC);
	`

	sqlCreateNotificationsTable = `CREATE TABLE IF NOT EXISTS notifications(
		id TEXT NOT NULL PRIMARY KEY,
		kind TEXT NOT NULL,
		actor_id TEXT NOT NULL,
		recipient_actor_id TEXT NOT NULL,
		post_id TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreateNotificationsIndices = `
		CREATE INDEX IF NOT EXISTS idx_notifications_recipient ON notifications(recipient_actor_id, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_notifications_post_id ON notifications(post_id);
	`

	sqlCreateMediaCleanupTable = `CREATE TABLE IF NOT EXISTS media_cleanup(
		id TEXT NOT NULL PRIMARY KEY,
		path TEXT NOT NULL,
		enqueued_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`
)

// Migrate executes all database migrations.
func (db *DB) Migrate() error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		tables := []struct {
			sql  string
			name string
		}{
			{sqlCreateAccountsTable, "accounts"},
			{sqlCreateActorsTable, "actors"},
			{sqlCreatePostsTable, "posts"},
			{sqlCreateFollowsTable, "follows"},
			{sqlCreateLikesTable, "likes"},
			{sqlCreateBoostsTable, "boosts"},
			{sqlCreateActivitiesTable, "activities"},
			{sqlCreateNotificationsTable, "notifications"},
			{sqlCreateMediaCleanupTable, "media_cleanup"},
		}
		for _, t := range tables {
			if err := db.createTableIfNotExists(tx, t.sql, t.name); err != nil {
				return err
			}
		}

		indices := []string{
			sqlCreateActorsIndices,
			sqlCreatePostsIndices,
			sqlCreateFollowsIndices,
			sqlCreateLikesIndices,
			sqlCreateBoostsIndices,
			sqlCreateActivitiesIndices,
			sqlCreateNotificationsIndices,
		}
		for _, idx := range indices {
			if _, err := tx.Exec(idx); err != nil {
				log.Warn().Err(err).Msg("Failed to create indices")
			}
		}

		return nil
	})
}

func (db *DB) createTableIfNotExists(tx *sql.Tx, createSQL string, tableName string) error {
	_, err := tx.Exec(createSQL)
	if err != nil {
		log.Error().Err(err).Msgf("Error creating table %s", tableName)
		return err
	}
	return nil
}
