package web

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/anancus/anancus/activitypub"
	"github.com/gin-gonic/gin"
)

// WebFingerDoc is the JRD document served for acct: lookups.
type WebFingerDoc struct {
	Subject string          `json:"subject"`
	Links   []WebFingerLink `json:"links"`
}

type WebFingerLink struct {
	Rel  string `json:"rel"`
	Type string `json:"type"`
	Href string `json:"href"`
}

// handleWebfinger resolves acct: resources for local users. A resource
// naming a foreign domain is not ours to answer.
func (s *Server) handleWebfinger(c *gin.Context) {
	resource := c.Query("resource")
	if !strings.HasPrefix(resource, "acct:") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unsupported resource"})
		return
	}

	handle := strings.TrimPrefix(resource, "acct:")
	username, host, hasHost := strings.Cut(handle, "@")
	if hasHost && !strings.EqualFold(host, s.conf.Conf.SslDomain) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown domain"})
		return
	}

	err, acc := s.store.ReadAccByUsername(username)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown account"})
		return
	}

	c.Header("Content-Type", "application/jrd+json; charset=utf-8")
	c.JSON(http.StatusOK, WebFingerDoc{
		Subject: fmt.Sprintf("acct:%s@%s", acc.Username, s.conf.Conf.SslDomain),
		Links: []WebFingerLink{{
			Rel:  "self",
			Type: activitypub.ContentType,
			Href: s.engine.ActorURI(acc.Username),
		}},
	})
}
