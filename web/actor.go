package web

import (
	"net/http"

	"github.com/anancus/anancus/activitypub"
	"github.com/gin-gonic/gin"
)

const apContentType = activitypub.ContentType + "; charset=utf-8"

// handleActor serves the public document of a local user, signing key
// included. Remote actors are never served from here; their home server
// is authoritative.
func (s *Server) handleActor(c *gin.Context) {
	acc, actor, err := s.localActor(c.Param("username"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	c.Header("Content-Type", apContentType)
	c.JSON(http.StatusOK, s.engine.ActorDoc(actor, acc))
}

// handlePost serves a local post as its wire object. Cached remote posts
// carry a local public id too, but their object URI points home, so they
// 404 here.
func (s *Server) handlePost(c *gin.Context) {
	err, post := s.store.ReadPostByPublicId(c.Param("publicId"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Post not found"})
		return
	}
	err, author := s.store.ReadActorById(post.ActorId)
	if err != nil || !author.IsLocal() {
		c.JSON(http.StatusNotFound, gin.H{"error": "Post not found"})
		return
	}

	note := s.engine.NoteDoc(post, author)
	note.Context = activitypub.DocumentContext()
	c.Header("Content-Type", apContentType)
	c.JSON(http.StatusOK, note)
}

// handleFollowers serves the followers collection header. Only the count
// goes out; follower lists are not enumerated.
func (s *Server) handleFollowers(c *gin.Context) {
	username := c.Param("username")
	_, actor, err := s.localActor(username)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	err, total := s.store.CountFollowers(actor.Id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Count failed"})
		return
	}

	c.Header("Content-Type", apContentType)
	c.JSON(http.StatusOK, activitypub.CollectionDoc(s.engine.FollowersURI(username), total))
}

// handleFollowing serves the following collection header.
func (s *Server) handleFollowing(c *gin.Context) {
	username := c.Param("username")
	_, actor, err := s.localActor(username)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	err, total := s.store.CountFollowing(actor.Id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Count failed"})
		return
	}

	c.Header("Content-Type", apContentType)
	c.JSON(http.StatusOK, activitypub.CollectionDoc(s.engine.FollowingURI(username), total))
}
