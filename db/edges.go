package db

import (
	"database/sql"
	"time"

	"github.com/anancus/anancus/domain"
	"github.com/google/uuid"
)

const (
	sqlInsertFollow = `INSERT INTO follows(id, actor_id, target_actor_id, uri, status, created_at) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(actor_id, target_actor_id) DO NOTHING`

	sqlSelectFollowByURI  = `SELECT id, actor_id, target_actor_id, uri, status, created_at FROM follows WHERE uri = ?`
	sqlSelectFollowByPair = `SELECT id, actor_id, target_actor_id, uri, status, created_at FROM follows WHERE actor_id = ? AND target_actor_id = ?`

	sqlAcceptFollowByURI = `UPDATE follows SET status = 'accepted' WHERE uri = ?`
	sqlDeleteFollowByURI = `DELETE FROM follows WHERE uri = ?`

	sqlInsertLike  = `INSERT INTO likes(id, actor_id, post_id, uri, created_at) VALUES (?, ?, ?, ?, ?) ON CONFLICT(actor_id, post_id) DO NOTHING`
	sqlInsertBoost = `INSERT INTO boosts(id, actor_id, post_id, uri, created_at) VALUES (?, ?, ?, ?, ?) ON CONFLICT(actor_id, post_id) DO NOTHING`

	sqlSelectLikeByPair  = `SELECT id, actor_id, post_id, uri, created_at FROM likes WHERE actor_id = ? AND post_id = ?`
	sqlSelectBoostByPair = `SELECT id, actor_id, post_id, uri, created_at FROM boosts WHERE actor_id = ? AND post_id = ?`

	sqlIncrementLikes  = `UPDATE posts SET likes_count = likes_count + 1 WHERE id = ?`
	sqlDecrementLikes  = `UPDATE posts SET likes_count = max(likes_count - 1, 0) WHERE id = ?`
	sqlIncrementBoosts = `UPDATE posts SET boosts_count = boosts_count + 1 WHERE id = ?`
	sqlDecrementBoosts = `UPDATE posts SET boosts_count = max(boosts_count - 1, 0) WHERE id = ?`
)

// CreateFollow inserts a follow edge. A second insert for the same pair is
// a no-op; the bool reports whether the edge is new.
func (db *DB) CreateFollow(follow *domain.Follow) (error, bool) {
	inserted := false
	err := db.wrapTransaction(func(tx *sql.Tx) error {
		res, err := tx.Exec(sqlInsertFollow,
			follow.Id.String(),
			follow.ActorId.String(),
			follow.TargetActorId.String(),
			follow.URI,
			follow.Status,
			follow.CreatedAt,
		)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		inserted = n > 0
		return nil
	})
	return err, inserted
}

func (db *DB) ReadFollowByURI(uri string) (error, *domain.Follow) {
	return scanFollow(db.db.QueryRow(sqlSelectFollowByURI, uri))
}

func (db *DB) ReadFollowByPair(actorId, targetActorId uuid.UUID) (error, *domain.Follow) {
	return scanFollow(db.db.QueryRow(sqlSelectFollowByPair, actorId.String(), targetActorId.String()))
}

func (db *DB) AcceptFollowByURI(uri string) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlAcceptFollowByURI, uri)
		return err
	})
}

func (db *DB) DeleteFollowByURI(uri string) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlDeleteFollowByURI, uri)
		return err
	})
}

// CreateLike inserts a like edge and bumps the post's counter in the same
// transaction. A duplicate pair changes nothing, the counter included.
func (db *DB) CreateLike(like *domain.Like) (error, bool) {
	return db.createEdge(sqlInsertLike, sqlIncrementLikes, like.Id, like.ActorId, like.PostId, like.URI, like.CreatedAt)
}

// CreateBoost behaves like CreateLike for boost edges.
func (db *DB) CreateBoost(boost *domain.Boost) (error, bool) {
	return db.createEdge(sqlInsertBoost, sqlIncrementBoosts, boost.Id, boost.ActorId, boost.PostId, boost.URI, boost.CreatedAt)
}

func (db *DB) ReadLikeByPair(actorId, postId uuid.UUID) (error, *domain.Like) {
	row := db.db.QueryRow(sqlSelectLikeByPair, actorId.String(), postId.String())
	var like domain.Like
	var idStr, actorIdStr, postIdStr string
	err := row.Scan(&idStr, &actorIdStr, &postIdStr, &like.URI, &like.CreatedAt)
	if err == sql.ErrNoRows {
		return err, nil
	}
	if err != nil {
		return err, nil
	}
	like.Id, _ = uuid.Parse(idStr)
	like.ActorId, _ = uuid.Parse(actorIdStr)
	like.PostId, _ = uuid.Parse(postIdStr)
	return nil, &like
}

func (db *DB) ReadBoostByPair(actorId, postId uuid.UUID) (error, *domain.Boost) {
	row := db.db.QueryRow(sqlSelectBoostByPair, actorId.String(), postId.String())
	var boost domain.Boost
	var idStr, actorIdStr, postIdStr string
	err := row.Scan(&idStr, &actorIdStr, &postIdStr, &boost.URI, &boost.CreatedAt)
	if err == sql.ErrNoRows {
		return err, nil
	}
	if err != nil {
		return err, nil
	}
	boost.Id, _ = uuid.Parse(idStr)
	boost.ActorId, _ = uuid.Parse(actorIdStr)
	boost.PostId, _ = uuid.Parse(postIdStr)
	return nil, &boost
}

// DeleteLikeByURI removes the edge matching an Undo and floors the counter
// at zero. Returns the affected post id, or nil for unknown URIs, which
// are a no-op.
func (db *DB) DeleteLikeByURI(uri string) (error, *uuid.UUID) {
	return db.deleteEdgeByURI("likes", sqlDecrementLikes, uri)
}

func (db *DB) DeleteBoostByURI(uri string) (error, *uuid.UUID) {
	return db.deleteEdgeByURI("boosts", sqlDecrementBoosts, uri)
}

func (db *DB) createEdge(insertSQL, incrementSQL string, id, actorId, postId uuid.UUID, uri string, createdAt time.Time) (error, bool) {
	inserted := false
	err := db.wrapTransaction(func(tx *sql.Tx) error {
		res, err := tx.Exec(insertSQL, id.String(), actorId.String(), postId.String(), uri, createdAt)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		if _, err := tx.Exec(incrementSQL, postId.String()); err != nil {
			return err
		}
		inserted = true
		return nil
	})
	return err, inserted
}

func (db *DB) deleteEdgeByURI(table, decrementSQL, uri string) (error, *uuid.UUID) {
	var postId *uuid.UUID
	err := db.wrapTransaction(func(tx *sql.Tx) error {
		postId = nil
		var postIdStr string
		err := tx.QueryRow(`SELECT post_id FROM `+table+` WHERE uri = ?`, uri).Scan(&postIdStr)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return err
		}
		if _, err := tx.Exec(`DELETE FROM `+table+` WHERE uri = ?`, uri); err != nil {
			return err
		}
		if _, err := tx.Exec(decrementSQL, postIdStr); err != nil {
			return err
		}
		if parsed, err := uuid.Parse(postIdStr); err == nil {
			postId = &parsed
		}
		return nil
	})
	return err, postId
}

func scanFollow(row *sql.Row) (error, *domain.Follow) {
	var follow domain.Follow
	var idStr, actorIdStr, targetIdStr string
	err := row.Scan(
		&idStr,
		&actorIdStr,
		&targetIdStr,
		&follow.URI,
		&follow.Status,
		&follow.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return err, nil
	}
	if err != nil {
		return err, nil
	}
	follow.Id, _ = uuid.Parse(idStr)
	follow.ActorId, _ = uuid.Parse(actorIdStr)
	follow.TargetActorId, _ = uuid.Parse(targetIdStr)
	return nil, &follow
}
