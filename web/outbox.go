package web

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/anancus/anancus/domain"
	"github.com/gin-gonic/gin"
)

const outboxPageSize = 20

// handleOutbox serves a user's outbox of public posts. Without a page
// parameter only the collection header goes out; pages carry the posts
// wrapped in their Create activities, newest first.
func (s *Server) handleOutbox(c *gin.Context) {
	username := c.Param("username")
	_, actor, err := s.localActor(username)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	outboxURI := s.engine.OutboxURI(username)
	c.Header("Content-Type", apContentType)

	page := ParsePageParam(c.Query("page"))
	if page == 0 {
		err, total := s.store.CountPublicPostsByUsername(username)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Count failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"@context":   "https://www.w3.org/ns/activitystreams",
			"id":         outboxURI,
			"type":       "OrderedCollection",
			"totalItems": total,
			"first":      fmt.Sprintf("%s?page=1", outboxURI),
		})
		return
	}

	// Fetch one extra row to know whether a next page exists.
	offset := (page - 1) * outboxPageSize
	err, posts := s.store.ReadPublicPostsByUsername(username, outboxPageSize+1, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Lookup failed"})
		return
	}

	hasMore := false
	pagePosts := []domain.Post{}
	if posts != nil {
		pagePosts = *posts
		if len(pagePosts) > outboxPageSize {
			hasMore = true
			pagePosts = pagePosts[:outboxPageSize]
		}
	}

	items := make([]any, 0, len(pagePosts))
	for _, post := range pagePosts {
		items = append(items, s.createActivity(&post, actor))
	}

	doc := gin.H{
		"@context":     "https://www.w3.org/ns/activitystreams",
		"id":           fmt.Sprintf("%s?page=%d", outboxURI, page),
		"type":         "OrderedCollectionPage",
		"partOf":       outboxURI,
		"orderedItems": items,
	}
	if hasMore {
		doc["next"] = fmt.Sprintf("%s?page=%d", outboxURI, page+1)
	}
	if page > 1 {
		doc["prev"] = fmt.Sprintf("%s?page=%d", outboxURI, page-1)
	}
	c.JSON(http.StatusOK, doc)
}

// createActivity wraps a note in the Create that carried it, for outbox
// pages.
func (s *Server) createActivity(post *domain.Post, actor *domain.Actor) gin.H {
	note := s.engine.NoteDoc(post, actor)
	return gin.H{
		"id":        post.URI + "/activity",
		"type":      "Create",
		"actor":     actor.URI,
		"published": post.CreatedAt.UTC().Format(time.RFC3339),
		"to":        note.To,
		"cc":        note.Cc,
		"object":    note,
	}
}

// ParsePageParam extracts the page parameter from a query string. Absent
// or unusable values mean the collection header.
func ParsePageParam(pageStr string) int {
	if pageStr == "" {
		return 0
	}
	page, err := strconv.Atoi(pageStr)
	if err != nil || page < 0 {
		return 0
	}
	return page
}
