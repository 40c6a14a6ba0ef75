package web

import (
	"database/sql"
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/anancus/anancus/activitypub"
	"github.com/anancus/anancus/domain"
	"github.com/anancus/anancus/util"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

var usernameRe = regexp.MustCompile(`^[a-zA-Z0-9_]{1,30}$`)

type registerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type composeRequest struct {
	Content        string   `json:"content"`
	ReplyTo        string   `json:"reply_to"`
	QuoteOf        string   `json:"quote_of"`
	Community      string   `json:"community"`
	Sensitive      bool     `json:"sensitive"`
	ContentWarning string   `json:"content_warning"`
	Attachments    []string `json:"attachments"`
}

type editRequest struct {
	Content        string `json:"content"`
	Sensitive      bool   `json:"sensitive"`
	ContentWarning string `json:"content_warning"`
}

type profileRequest struct {
	DisplayName string `json:"display_name"`
	Summary     string `json:"summary"`
	AvatarURL   string `json:"avatar_url"`
}

type targetRequest struct {
	Target string `json:"target"`
}

type submitRequest struct {
	Community string `json:"community"`
}

// postView is the JSON shape of a post in API responses. Reply and quote
// references surface as public ids, not internal ones.
type postView struct {
	PublicId       string    `json:"public_id"`
	URI            string    `json:"uri"`
	Author         string    `json:"author"`
	Content        string    `json:"content"`
	Sensitive      bool      `json:"sensitive,omitempty"`
	ContentWarning string    `json:"content_warning,omitempty"`
	InReplyTo      string    `json:"in_reply_to,omitempty"`
	QuoteOf        string    `json:"quote_of,omitempty"`
	Tags           []string  `json:"tags,omitempty"`
	Attachments    []string  `json:"attachments,omitempty"`
	LikesCount     int64     `json:"likes_count"`
	BoostsCount    int64     `json:"boosts_count"`
	RepliesCount   int64     `json:"replies_count"`
	CreatedAt      time.Time `json:"created_at"`
}

type notificationView struct {
	Kind      string    `json:"kind"`
	Actor     string    `json:"actor"`
	Post      string    `json:"post,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// handleRegister creates a local account with its actor row and signing
// keypair in one transaction. Closed instances refuse.
func (s *Server) handleRegister(c *gin.Context) {
	if s.conf.Conf.Closed {
		c.JSON(http.StatusForbidden, gin.H{"error": "Registration is closed"})
		return
	}

	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if !usernameRe.MatchString(req.Username) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Username must be 1-30 characters of a-z, A-Z, 0-9 or _"})
		return
	}
	if len(req.Password) < 8 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Password must be at least 8 characters"})
		return
	}
	if err, _ := s.store.ReadAccByUsername(req.Username); err == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Username is taken"})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not hash password"})
		return
	}

	keys := util.GeneratePemKeypair()
	now := time.Now()
	acc := &domain.Account{
		Id:            uuid.New(),
		Username:      req.Username,
		PasswordHash:  string(hash),
		PublicKeyPem:  keys.Public,
		PrivateKeyPem: keys.Private,
		CreatedAt:     now,
	}
	accId := acc.Id
	actor := &domain.Actor{
		Id:                uuid.New(),
		URI:               s.engine.ActorURI(req.Username),
		Username:          req.Username,
		Domain:            s.conf.Conf.SslDomain,
		InboxURI:          s.engine.InboxURI(req.Username),
		SharedInboxURI:    s.engine.SharedInboxURI(),
		ActorType:         domain.ActorTypePerson,
		PublicKeyPem:      keys.Public,
		CountsRefreshedAt: now,
		AccountId:         &accId,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.store.CreateAccountWithActor(acc, actor); err != nil {
		log.Error().Err(err).Msgf("Could not create account %s", req.Username)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not create account"})
		return
	}

	log.Info().Msgf("Registered account %s", acc.Username)
	c.JSON(http.StatusCreated, gin.H{"username": acc.Username, "actor": actor.URI})
}

// handleCompose creates a post and federates it.
func (s *Server) handleCompose(c *gin.Context) {
	var req composeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	post, err := s.engine.ComposePost(&domain.SavePost{
		AccountId:      currentAccount(c).Id,
		Content:        req.Content,
		ReplyToId:      req.ReplyTo,
		QuoteOf:        req.QuoteOf,
		Community:      req.Community,
		Sensitive:      req.Sensitive,
		ContentWarning: req.ContentWarning,
		Attachments:    req.Attachments,
	})
	if err != nil {
		apiError(c, err)
		return
	}
	c.JSON(http.StatusCreated, s.postView(post))
}

// handleEditPost rewrites a post's content in place.
func (s *Server) handleEditPost(c *gin.Context) {
	var req editRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	post, err := s.engine.EditPost(currentAccount(c), c.Param("publicId"), req.Content, req.ContentWarning, req.Sensitive)
	if err != nil {
		apiError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.postView(post))
}

func (s *Server) handleDeletePost(c *gin.Context) {
	if err := s.engine.DeletePost(currentAccount(c), c.Param("publicId")); err != nil {
		apiError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// handleUpdateProfile changes the caller's display name, bio and avatar.
func (s *Server) handleUpdateProfile(c *gin.Context) {
	var req profileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	actor, err := s.engine.UpdateProfile(currentAccount(c), req.DisplayName, req.Summary, req.AvatarURL)
	if err != nil {
		apiError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"handle":       actor.Handle(),
		"display_name": actor.DisplayName,
		"summary":      actor.Summary,
		"avatar_url":   actor.AvatarURL,
	})
}

// handleThread returns a post with every descendant reply, oldest first.
func (s *Server) handleThread(c *gin.Context) {
	err, post := s.store.ReadPostByPublicId(c.Param("publicId"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Post not found"})
		return
	}
	err, thread := s.store.ReadPostThread(post.Id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Lookup failed"})
		return
	}
	c.JSON(http.StatusOK, s.postViews(thread))
}

func (s *Server) handleLike(c *gin.Context) {
	if err := s.engine.LikePost(currentAccount(c), c.Param("publicId")); err != nil {
		apiError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleUnlike(c *gin.Context) {
	if err := s.engine.UnlikePost(currentAccount(c), c.Param("publicId")); err != nil {
		apiError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleBoost(c *gin.Context) {
	if err := s.engine.BoostPost(currentAccount(c), c.Param("publicId")); err != nil {
		apiError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleUnboost(c *gin.Context) {
	if err := s.engine.UnboostPost(currentAccount(c), c.Param("publicId")); err != nil {
		apiError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// handleSubmit relays an existing post to a community. The relay is
// synchronous; the community's verdict decides the response.
func (s *Server) handleSubmit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Community == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Community is required"})
		return
	}
	if err := s.engine.SubmitToCommunity(currentAccount(c), c.Param("publicId"), req.Community); err != nil {
		apiError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleFollow(c *gin.Context) {
	var req targetRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Target == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Target is required"})
		return
	}
	if err := s.engine.FollowActor(currentAccount(c), req.Target); err != nil {
		apiError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleUnfollow(c *gin.Context) {
	var req targetRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Target == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Target is required"})
		return
	}
	if err := s.engine.UnfollowActor(currentAccount(c), req.Target); err != nil {
		apiError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// handleHomeTimeline returns the caller's posts and those of everyone
// they follow, newest first.
func (s *Server) handleHomeTimeline(c *gin.Context) {
	err, actor := s.store.ReadActorByAccountId(currentAccount(c).Id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Actor lookup failed"})
		return
	}
	limit, offset := parseLimitOffset(c)
	err, posts := s.store.ReadHomeTimeline(actor.Id, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Lookup failed"})
		return
	}
	c.JSON(http.StatusOK, s.postViews(posts))
}

// handleLocalTimeline returns the instance-wide feed of public local
// posts.
func (s *Server) handleLocalTimeline(c *gin.Context) {
	limit, offset := parseLimitOffset(c)
	err, posts := s.store.ReadRecentLocalPosts(limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Lookup failed"})
		return
	}
	c.JSON(http.StatusOK, s.postViews(posts))
}

func (s *Server) handleNotifications(c *gin.Context) {
	err, actor := s.store.ReadActorByAccountId(currentAccount(c).Id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Actor lookup failed"})
		return
	}
	limit, _ := parseLimitOffset(c)
	err, notifications := s.store.ReadNotificationsByRecipient(actor.Id, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Lookup failed"})
		return
	}

	views := make([]notificationView, 0, len(*notifications))
	for _, n := range *notifications {
		v := notificationView{Kind: n.Kind, CreatedAt: n.CreatedAt}
		if err, who := s.store.ReadActorById(n.ActorId); err == nil {
			v.Actor = who.Handle()
		}
		if n.PostId != nil {
			if err, post := s.store.ReadPostById(*n.PostId); err == nil {
				v.Post = post.PublicId
			}
		}
		views = append(views, v)
	}
	c.JSON(http.StatusOK, views)
}

func (s *Server) postView(post *domain.Post) postView {
	v := postView{
		PublicId:       post.PublicId,
		URI:            post.URI,
		Content:        post.Content,
		Sensitive:      post.Sensitive,
		ContentWarning: post.ContentWarning,
		Tags:           post.Tags,
		Attachments:    post.Attachments,
		LikesCount:     post.LikesCount,
		BoostsCount:    post.BoostsCount,
		RepliesCount:   post.RepliesCount,
		CreatedAt:      post.CreatedAt,
	}
	if err, author := s.store.ReadActorById(post.ActorId); err == nil {
		v.Author = author.Handle()
	}
	if post.InReplyToId != nil {
		if err, parent := s.store.ReadPostById(*post.InReplyToId); err == nil {
			v.InReplyTo = parent.PublicId
		}
	}
	if post.QuoteOfId != nil {
		if err, quoted := s.store.ReadPostById(*post.QuoteOfId); err == nil {
			v.QuoteOf = quoted.PublicId
		}
	}
	return v
}

func (s *Server) postViews(posts *[]domain.Post) []postView {
	if posts == nil {
		return []postView{}
	}
	views := make([]postView, 0, len(*posts))
	for i := range *posts {
		views = append(views, s.postView(&(*posts)[i]))
	}
	return views
}

// apiError maps engine failures onto statuses: a community rejection is
// the remote's verdict (502), a missing row is 404, the rest is on the
// caller.
func apiError(c *gin.Context, err error) {
	var relayErr *activitypub.RelayError
	switch {
	case errors.As(err, &relayErr):
		c.JSON(http.StatusBadGateway, gin.H{"error": relayErr.Error()})
	case errors.Is(err, sql.ErrNoRows):
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	}
}

// parseLimitOffset reads pagination from the query string, clamped to
// sane bounds.
func parseLimitOffset(c *gin.Context) (int, int) {
	limit := 20
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 {
		limit = v
	}
	if limit > 40 {
		limit = 40
	}
	offset := 0
	if v, err := strconv.Atoi(c.Query("offset")); err == nil && v > 0 {
		offset = v
	}
	return limit, offset
}
