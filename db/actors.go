package db

import (
	"database/sql"
	"strings"
	"time"

	"github.com/anancus/anancus/domain"
	"github.com/google/uuid"
)

const (
	sqlInsertActor = `INSERT INTO actors(id, uri, username, domain, display_name, summary, avatar_url, inbox_uri, shared_inbox_uri, actor_type, public_key_pem, followers_count, following_count, counts_refreshed_at, account_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	// Refreshes a cached remote actor in place. The account_id guard keeps
	// fetched documents from ever clobbering a local identity.
	sqlUpsertActor = `INSERT INTO actors(id, uri, username, domain, display_name, summary, avatar_url, inbox_uri, shared_inbox_uri, actor_type, public_key_pem, followers_count, following_count, counts_refreshed_at, account_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, ?, ?)
		ON CONFLICT(uri) DO UPDATE SET
			username = excluded.username,
			domain = excluded.domain,
			display_name = excluded.display_name,
			summary = excluded.summary,
			avatar_url = excluded.avatar_url,
			inbox_uri = excluded.inbox_uri,
			shared_inbox_uri = excluded.shared_inbox_uri,
			actor_type = excluded.actor_type,
			public_key_pem = excluded.public_key_pem,
			updated_at = excluded.updated_at
		WHERE actors.account_id IS NULL`

	sqlUpdateActorCounts = `UPDATE actors SET followers_count = ?, following_count = ?, counts_refreshed_at = ? WHERE id = ?`

	sqlUpdateActorProfile = `UPDATE actors SET display_name = ?, summary = ?, avatar_url = ?, updated_at = ? WHERE id = ? AND account_id IS NOT NULL`

	actorColumns = `id, uri, username, domain, display_name, summary, avatar_url, inbox_uri, shared_inbox_uri, actor_type, public_key_pem, followers_count, following_count, counts_refreshed_at, account_id, created_at, updated_at`
)

const (
	sqlSelectActorByURI       = `SELECT ` + actorColumns + ` FROM actors WHERE uri = ?`
	sqlSelectActorById        = `SELECT ` + actorColumns + ` FROM actors WHERE id = ?`
	sqlSelectActorByHandle    = `SELECT ` + actorColumns + ` FROM actors WHERE lower(username) = lower(?) AND lower(domain) = lower(?)`
	sqlSelectActorByAccountId = `SELECT ` + actorColumns + ` FROM actors WHERE account_id = ?`

	sqlSelectFollowerActors = `SELECT ` + actorColumns + ` FROM actors
		WHERE id IN (SELECT actor_id FROM follows WHERE target_actor_id = ? AND status = 'accepted')`

	sqlCountFollowers = `SELECT COUNT(*) FROM follows WHERE target_actor_id = ? AND status = 'accepted'`
	sqlCountFollowing = `SELECT COUNT(*) FROM follows WHERE actor_id = ? AND status = 'accepted'`
)

// UpsertActor inserts or refreshes a remote actor keyed by URI. Rows linked
// to a local account are left untouched.
func (db *DB) UpsertActor(actor *domain.Actor) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlUpsertActor,
			actor.Id.String(),
			actor.URI,
			actor.Username,
			actor.Domain,
			actor.DisplayName,
			actor.Summary,
			actor.AvatarURL,
			actor.InboxURI,
			actor.SharedInboxURI,
			actor.ActorType,
			actor.PublicKeyPem,
			actor.FollowersCount,
			actor.FollowingCount,
			actor.CountsRefreshedAt,
			actor.CreatedAt,
			actor.UpdatedAt,
		)
		return err
	})
}

func (db *DB) UpdateActorCounts(id uuid.UUID, followers, following int64) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlUpdateActorCounts, followers, following, time.Now(), id.String())
		return err
	})
}

// UpdateActorProfile updates the editable profile fields of a local actor.
func (db *DB) UpdateActorProfile(id uuid.UUID, displayName, summary, avatarURL string) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlUpdateActorProfile, displayName, summary, avatarURL, time.Now(), id.String())
		return err
	})
}

func (db *DB) ReadActorByURI(uri string) (error, *domain.Actor) {
	return scanActor(db.db.QueryRow(sqlSelectActorByURI, uri))
}

func (db *DB) ReadActorById(id uuid.UUID) (error, *domain.Actor) {
	return scanActor(db.db.QueryRow(sqlSelectActorById, id.String()))
}

func (db *DB) ReadActorByHandle(username, domainName string) (error, *domain.Actor) {
	return scanActor(db.db.QueryRow(sqlSelectActorByHandle, username, domainName))
}

func (db *DB) ReadActorByAccountId(accountId uuid.UUID) (error, *domain.Actor) {
	return scanActor(db.db.QueryRow(sqlSelectActorByAccountId, accountId.String()))
}

// ReadFollowerActors returns the actors with an accepted follow toward the
// given actor.
func (db *DB) ReadFollowerActors(targetActorId uuid.UUID) (error, *[]domain.Actor) {
	rows, err := db.db.Query(sqlSelectFollowerActors, targetActorId.String())
	if err != nil {
		return err, nil
	}
	defer rows.Close()

	var actors []domain.Actor
	for rows.Next() {
		err, actor := scanActorRows(rows)
		if err != nil {
			return err, &actors
		}
		actors = append(actors, *actor)
	}
	if err = rows.Err(); err != nil {
		return err, &actors
	}
	return nil, &actors
}

func (db *DB) CountFollowers(actorId uuid.UUID) (error, int64) {
	var n int64
	err := db.db.QueryRow(sqlCountFollowers, actorId.String()).Scan(&n)
	return err, n
}

func (db *DB) CountFollowing(actorId uuid.UUID) (error, int64) {
	var n int64
	err := db.db.QueryRow(sqlCountFollowing, actorId.String()).Scan(&n)
	return err, n
}

// DeleteActorCascade removes a remote actor with everything hanging off it:
// their posts (media queued for cleanup), engagement edges in both
// directions with counter adjustments, follows and notifications. Replies
// and quotes by other authors are detached, not deleted. Local actors are
// never removed by this path.
func (db *DB) DeleteActorCascade(actorId uuid.UUID) error {
	id := actorId.String()
	return db.wrapTransaction(func(tx *sql.Tx) error {
		var accountId sql.NullString
		err := tx.QueryRow(`SELECT account_id FROM actors WHERE id = ?`, id).Scan(&accountId)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return err
		}
		if accountId.Valid {
			return nil
		}

		// queue local media of the actor's posts
		rows, err := tx.Query(`SELECT attachments FROM posts WHERE actor_id = ?`, id)
		if err != nil {
			return err
		}
		var paths []string
		for rows.Next() {
			var attachments string
			if err := rows.Scan(&attachments); err != nil {
				rows.Close()
				return err
			}
			for _, p := range unmarshalStrings(attachments) {
				if !strings.HasPrefix(p, "http") {
					paths = append(paths, p)
				}
			}
		}
		rows.Close()
		for _, p := range paths {
			if _, err := tx.Exec(sqlInsertMediaCleanup, uuid.New().String(), p, time.Now()); err != nil {
				return err
			}
		}

		// detach other authors' replies and quotes
		if _, err := tx.Exec(`UPDATE posts SET in_reply_to_id = NULL WHERE in_reply_to_id IN (SELECT id FROM posts WHERE actor_id = ?) AND actor_id != ?`, id, id); err != nil {
			return err
		}
		if _, err := tx.Exec(`UPDATE posts SET quote_of_id = NULL WHERE quote_of_id IN (SELECT id FROM posts WHERE actor_id = ?) AND actor_id != ?`, id, id); err != nil {
			return err
		}

		// edges on the actor's posts
		if _, err := tx.Exec(`DELETE FROM likes WHERE post_id IN (SELECT id FROM posts WHERE actor_id = ?)`, id); err != nil {
			return err
		}
		if _, err := tx.Exec(`DELETE FROM boosts WHERE post_id IN (SELECT id FROM posts WHERE actor_id = ?)`, id); err != nil {
			return err
		}
		if _, err := tx.Exec(`DELETE FROM notifications WHERE post_id IN (SELECT id FROM posts WHERE actor_id = ?)`, id); err != nil {
			return err
		}

		// edges by the actor on other posts, with counters kept honest
		if _, err := tx.Exec(`UPDATE posts SET likes_count = max(likes_count - 1, 0) WHERE id IN (SELECT post_id FROM likes WHERE actor_id = ?)`, id); err != nil {
			return err
		}
		if _, err := tx.Exec(`DELETE FROM likes WHERE actor_id = ?`, id); err != nil {
			return err
		}
		if _, err := tx.Exec(`UPDATE posts SET boosts_count = max(boosts_count - 1, 0) WHERE id IN (SELECT post_id FROM boosts WHERE actor_id = ?)`, id); err != nil {
			return err
		}
		if _, err := tx.Exec(`DELETE FROM boosts WHERE actor_id = ?`, id); err != nil {
			return err
		}

		if _, err := tx.Exec(`DELETE FROM posts WHERE actor_id = ?`, id); err != nil {
			return err
		}
		if _, err := tx.Exec(`DELETE FROM follows WHERE actor_id = ? OR target_actor_id = ?`, id, id); err != nil {
			return err
		}
		if _, err := tx.Exec(`DELETE FROM notifications WHERE actor_id = ? OR recipient_actor_id = ?`, id, id); err != nil {
			return err
		}

		_, err = tx.Exec(`DELETE FROM actors WHERE id = ? AND account_id IS NULL`, id)
		return err
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanActor(row *sql.Row) (error, *domain.Actor) {
	err, actor := scanActorFrom(row)
	if err == sql.ErrNoRows {
		return err, nil
	}
	if err != nil {
		return err, nil
	}
	return nil, actor
}

func scanActorRows(rows *sql.Rows) (error, *domain.Actor) {
	return scanActorFrom(rows)
}

func scanActorFrom(r rowScanner) (error, *domain.Actor) {
	var actor domain.Actor
	var idStr string
	var accountId sql.NullString
	err := r.Scan(
		&idStr,
		&actor.URI,
		&actor.Username,
		&actor.Domain,
		&actor.DisplayName,
		&actor.Summary,
		&actor.AvatarURL,
		&actor.InboxURI,
		&actor.SharedInboxURI,
		&actor.ActorType,
		&actor.PublicKeyPem,
		&actor.FollowersCount,
		&actor.FollowingCount,
		&actor.CountsRefreshedAt,
		&accountId,
		&actor.CreatedAt,
		&actor.UpdatedAt,
	)
	if err != nil {
		return err, nil
	}
	actor.Id, _ = uuid.Parse(idStr)
	actor.AccountId = parseNullUUID(accountId)
	return nil, &actor
}
