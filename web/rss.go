package web

import (
	"fmt"
	"net/http"
	"time"

	"github.com/anancus/anancus/content"
	"github.com/anancus/anancus/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/feeds"
	"github.com/rs/zerolog/log"
)

const feedSize = 20

// handleFeed serves the instance-wide feed of public local posts.
func (s *Server) handleFeed(c *gin.Context) {
	err, posts := s.store.ReadRecentLocalPosts(feedSize, 0)
	if err != nil {
		log.Warn().Err(err).Msg("Feed: could not read posts")
		c.String(http.StatusInternalServerError, "")
		return
	}
	s.renderFeed(c, fmt.Sprintf("%s - all posts", s.conf.Conf.SslDomain), s.baseURL()+"/feed", posts)
}

// handleUserFeed serves one local user's public posts.
func (s *Server) handleUserFeed(c *gin.Context) {
	username := c.Param("username")
	if err, _ := s.store.ReadAccByUsername(username); err != nil {
		c.String(http.StatusNotFound, "")
		return
	}

	err, posts := s.store.ReadPublicPostsByUsername(username, feedSize, 0)
	if err != nil {
		log.Warn().Err(err).Msgf("Feed: could not read posts of %s", username)
		c.String(http.StatusInternalServerError, "")
		return
	}
	s.renderFeed(c, fmt.Sprintf("%s - posts by %s", s.conf.Conf.SslDomain, username),
		fmt.Sprintf("%s/feed/%s", s.baseURL(), username), posts)
}

func (s *Server) renderFeed(c *gin.Context, title, link string, posts *[]domain.Post) {
	feed := &feeds.Feed{
		Title:       title,
		Link:        &feeds.Link{Href: link},
		Description: fmt.Sprintf("public posts on %s", s.conf.Conf.SslDomain),
		Created:     time.Now(),
	}

	if posts != nil {
		for _, post := range *posts {
			author := ""
			if err, actor := s.store.ReadActorById(post.ActorId); err == nil {
				author = actor.Handle()
			}
			feed.Items = append(feed.Items, &feeds.Item{
				Id:          post.URI,
				Title:       post.CreatedAt.Format("2006-01-02 15:04"),
				Link:        &feeds.Link{Href: post.URI},
				Description: content.TextContent(post.Content),
				Author:      &feeds.Author{Name: author},
				Created:     post.CreatedAt,
			})
		}
	}

	rss, err := feed.ToRss()
	if err != nil {
		log.Warn().Err(err).Msg("Feed: render failed")
		c.String(http.StatusInternalServerError, "")
		return
	}
	c.Header("Content-Type", "application/xml; charset=utf-8")
	c.String(http.StatusOK, rss)
}
