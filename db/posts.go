package db

import (
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/anancus/anancus/domain"
	"github.com/google/uuid"
)

const (
	postColumns = `id, public_id, uri, actor_id, content, sensitive, content_warning, in_reply_to_id, quote_of_id, audience, tags, mentions, attachments, link_preview, video_embed, likes_count, boosts_count, replies_count, created_at, edited_at`

	sqlInsertPost = `INSERT INTO posts(` + postColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	sqlSelectPostByURI      = `SELECT ` + postColumns + ` FROM posts WHERE uri = ?`
	sqlSelectPostById       = `SELECT ` + postColumns + ` FROM posts WHERE id = ?`
	sqlSelectPostByPublicId = `SELECT ` + postColumns + ` FROM posts WHERE public_id = ?`

	sqlSelectHomeTimeline = `SELECT ` + postColumns + ` FROM posts
		WHERE actor_id = ? OR actor_id IN (SELECT target_actor_id FROM follows WHERE actor_id = ? AND status = 'accepted')
		ORDER BY created_at DESC LIMIT ? OFFSET ?`

	sqlIncrementReplies = `UPDATE posts SET replies_count = replies_count + 1 WHERE id = ?`
	sqlDecrementReplies = `UPDATE posts SET replies_count = max(replies_count - 1, 0) WHERE id = ?`

	sqlUpdatePostQuote    = `UPDATE posts SET quote_of_id = ? WHERE id = ?`
	sqlUpdatePostContent  = `UPDATE posts SET content = ?, content_warning = ?, sensitive = ?, tags = ?, edited_at = ? WHERE id = ?`
	sqlUpdatePostAudience = `UPDATE posts SET audience = ? WHERE id = ?`

	// Everything below the root post, root included.
	sqlSelectPostTree = `WITH RECURSIVE descendants(did) AS (
			SELECT id FROM posts WHERE id = ?
			UNION ALL
			SELECT p.id FROM posts p JOIN descendants d ON p.in_reply_to_id = d.did
		)
		SELECT ` + postColumns + ` FROM posts WHERE id IN (SELECT did FROM descendants)`

	sqlSelectPostThread = sqlSelectPostTree + ` ORDER BY created_at ASC`
)

// CreatePost inserts the post and bumps the parent's reply counter in the
// same transaction.
func (db *DB) CreatePost(post *domain.Post) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertPost, postArgs(post)...)
		if err != nil {
			return err
		}
		if post.InReplyToId != nil {
			if _, err := tx.Exec(sqlIncrementReplies, post.InReplyToId.String()); err != nil {
				return err
			}
		}
		return nil
	})
}

// UpdatePostQuote resolves a quote reference after the fact, once the
// quoted object could be fetched.
func (db *DB) UpdatePostQuote(postId, quoteOfId uuid.UUID) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlUpdatePostQuote, quoteOfId.String(), postId.String())
		return err
	})
}

// UpdatePostContent applies an edit to content and warning fields, marking
// the edit time.
func (db *DB) UpdatePostContent(postId uuid.UUID, content, contentWarning string, sensitive bool, tags []string) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlUpdatePostContent, content, contentWarning, sensitive, marshalStrings(tags), time.Now(), postId.String())
		return err
	})
}

// UpdatePostAudience rewrites the addressed recipient list, used when a
// post is submitted to a community after the fact.
func (db *DB) UpdatePostAudience(postId uuid.UUID, audience []string) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlUpdatePostAudience, marshalStrings(audience), postId.String())
		return err
	})
}

func (db *DB) ReadPostByURI(uri string) (error, *domain.Post) {
	return scanPost(db.db.QueryRow(sqlSelectPostByURI, uri))
}

func (db *DB) ReadPostById(id uuid.UUID) (error, *domain.Post) {
	return scanPost(db.db.QueryRow(sqlSelectPostById, id.String()))
}

func (db *DB) ReadPostByPublicId(publicId string) (error, *domain.Post) {
	return scanPost(db.db.QueryRow(sqlSelectPostByPublicId, publicId))
}

func (db *DB) ReadHomeTimeline(actorId uuid.UUID, limit, offset int) (error, *[]domain.Post) {
	return db.queryPosts(sqlSelectHomeTimeline, actorId.String(), actorId.String(), limit, offset)
}

// ReadPostThread returns the post and every descendant reply, oldest first.
func (db *DB) ReadPostThread(rootId uuid.UUID) (error, *[]domain.Post) {
	return db.queryPosts(sqlSelectPostThread, rootId.String())
}

// ReadPublicPostsByUsername returns a local user's public posts, newest
// first.
func (db *DB) ReadPublicPostsByUsername(username string, limit, offset int) (error, *[]domain.Post) {
	query := `SELECT ` + prefixedPostColumns("p") + ` FROM posts p
		JOIN actors a ON a.id = p.actor_id
		WHERE a.account_id IS NOT NULL AND lower(a.username) = lower(?)
			AND (p.audience LIKE '%as:Public%' OR p.audience LIKE '%activitystreams#Public%')
		ORDER BY p.created_at DESC LIMIT ? OFFSET ?`
	return db.queryPosts(query, username, limit, offset)
}

// CountPublicPostsByUsername counts a local user's public posts, for the
// outbox collection header.
func (db *DB) CountPublicPostsByUsername(username string) (error, int64) {
	query := `SELECT COUNT(*) FROM posts p
		JOIN actors a ON a.id = p.actor_id
		WHERE a.account_id IS NOT NULL AND lower(a.username) = lower(?)
			AND (p.audience LIKE '%as:Public%' OR p.audience LIKE '%activitystreams#Public%')`
	var n int64
	err := db.db.QueryRow(query, username).Scan(&n)
	return err, n
}

// ReadRecentLocalPosts returns the instance-wide public feed.
func (db *DB) ReadRecentLocalPosts(limit, offset int) (error, *[]domain.Post) {
	query := `SELECT ` + prefixedPostColumns("p") + ` FROM posts p
		JOIN actors a ON a.id = p.actor_id
		WHERE a.account_id IS NOT NULL
			AND (p.audience LIKE '%as:Public%' OR p.audience LIKE '%activitystreams#Public%')
		ORDER BY p.created_at DESC LIMIT ? OFFSET ?`
	return db.queryPosts(query, limit, offset)
}

// DeletePostCascade deletes the post and its whole reply tree in a single
// transaction: engagement edges and notifications of every deleted post go
// with it, local media paths are queued for cleanup, quotes of deleted
// posts are detached and the parent's reply counter is adjusted. Returns
// the deleted posts so callers can tombstone each.
func (db *DB) DeletePostCascade(rootId uuid.UUID) (error, *[]domain.Post) {
	var deleted []domain.Post

	err := db.wrapTransaction(func(tx *sql.Tx) error {
		deleted = deleted[:0]

		rows, err := tx.Query(sqlSelectPostTree, rootId.String())
		if err != nil {
			return err
		}
		for rows.Next() {
			err, post := scanPostFrom(rows)
			if err != nil {
				rows.Close()
				return err
			}
			deleted = append(deleted, *post)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		if len(deleted) == 0 {
			return sql.ErrNoRows
		}

		for _, p := range deleted {
			if p.Id == rootId && p.InReplyToId != nil {
				if _, err := tx.Exec(sqlDecrementReplies, p.InReplyToId.String()); err != nil {
					return err
				}
			}
			for _, att := range p.Attachments {
				if strings.HasPrefix(att, "http") {
					continue
				}
				if _, err := tx.Exec(sqlInsertMediaCleanup, uuid.New().String(), att, time.Now()); err != nil {
					return err
				}
			}
		}

		for _, p := range deleted {
			id := p.Id.String()
			if _, err := tx.Exec(`UPDATE posts SET quote_of_id = NULL WHERE quote_of_id = ?`, id); err != nil {
				return err
			}
			if _, err := tx.Exec(`DELETE FROM likes WHERE post_id = ?`, id); err != nil {
				return err
			}
			if _, err := tx.Exec(`DELETE FROM boosts WHERE post_id = ?`, id); err != nil {
				return err
			}
			if _, err := tx.Exec(`DELETE FROM notifications WHERE post_id = ?`, id); err != nil {
				return err
			}
			if _, err := tx.Exec(`DELETE FROM posts WHERE id = ?`, id); err != nil {
				return err
			}
		}
		return nil
	})

	if err != nil {
		return err, nil
	}
	return nil, &deleted
}

func (db *DB) queryPosts(query string, args ...any) (error, *[]domain.Post) {
	rows, err := db.db.Query(query, args...)
	if err != nil {
		return err, nil
	}
	defer rows.Close()

	var posts []domain.Post
	for rows.Next() {
		err, post := scanPostFrom(rows)
		if err != nil {
			return err, &posts
		}
		posts = append(posts, *post)
	}
	if err = rows.Err(); err != nil {
		return err, &posts
	}
	return nil, &posts
}

func postArgs(post *domain.Post) []any {
	return []any{
		post.Id.String(),
		post.PublicId,
		post.URI,
		post.ActorId.String(),
		post.Content,
		post.Sensitive,
		post.ContentWarning,
		nullUUIDString(post.InReplyToId),
		nullUUIDString(post.QuoteOfId),
		marshalStrings(post.Audience),
		marshalStrings(post.Tags),
		marshalStrings(post.Mentions),
		marshalStrings(post.Attachments),
		marshalPreview(post.LinkPreview),
		marshalEmbed(post.VideoEmbed),
		post.LikesCount,
		post.BoostsCount,
		post.RepliesCount,
		post.CreatedAt,
		nullTime(post.EditedAt),
	}
}

func scanPost(row *sql.Row) (error, *domain.Post) {
	err, post := scanPostFrom(row)
	if err == sql.ErrNoRows {
		return err, nil
	}
	if err != nil {
		return err, nil
	}
	return nil, post
}

func scanPostFrom(r rowScanner) (error, *domain.Post) {
	var post domain.Post
	var idStr, actorIdStr string
	var inReplyTo, quoteOf, preview, embed sql.NullString
	var audience, tags, mentions, attachments string
	var editedAt sql.NullTime

	err := r.Scan(
		&idStr,
		&post.PublicId,
		&post.URI,
		&actorIdStr,
		&post.Content,
		&post.Sensitive,
		&post.ContentWarning,
		&inReplyTo,
		&quoteOf,
		&audience,
		&tags,
		&mentions,
		&attachments,
		&preview,
		&embed,
		&post.LikesCount,
		&post.BoostsCount,
		&post.RepliesCount,
		&post.CreatedAt,
		&editedAt,
	)
	if err != nil {
		return err, nil
	}

	post.Id, _ = uuid.Parse(idStr)
	post.ActorId, _ = uuid.Parse(actorIdStr)
	post.InReplyToId = parseNullUUID(inReplyTo)
	post.QuoteOfId = parseNullUUID(quoteOf)
	post.Audience = unmarshalStrings(audience)
	post.Tags = unmarshalStrings(tags)
	post.Mentions = unmarshalStrings(mentions)
	post.Attachments = unmarshalStrings(attachments)
	if preview.Valid && preview.String != "" {
		var lp domain.LinkPreview
		if json.Unmarshal([]byte(preview.String), &lp) == nil {
			post.LinkPreview = &lp
		}
	}
	if embed.Valid && embed.String != "" {
		var ve domain.VideoEmbed
		if json.Unmarshal([]byte(embed.String), &ve) == nil {
			post.VideoEmbed = &ve
		}
	}
	if editedAt.Valid {
		t := editedAt.Time
		post.EditedAt = &t
	}
	return nil, &post
}

func marshalPreview(p *domain.LinkPreview) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return marshalJSON(p)
}

func marshalEmbed(v *domain.VideoEmbed) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return marshalJSON(v)
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func prefixedPostColumns(alias string) string {
	cols := strings.Split(postColumns, ", ")
	for i, c := range cols {
		cols[i] = alias + "." + c
	}
	return strings.Join(cols, ", ")
}
