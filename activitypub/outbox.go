package activitypub

import (
	"encoding/json"
	"fmt"
	"html"
	"net/url"
	"strings"
	"time"

	"github.com/anancus/anancus/content"
	"github.com/anancus/anancus/domain"
	"github.com/anancus/anancus/util"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// ComposePost creates a local post and federates it. The post commits
// before any delivery starts, so a dead remote can never fail the compose.
func (e *Engine) ComposePost(in *domain.SavePost) (*domain.Post, error) {
	err, account := e.store.ReadAccById(in.AccountId)
	if err != nil {
		return nil, fmt.Errorf("account not found: %w", err)
	}
	err, actor := e.store.ReadActorByAccountId(account.Id)
	if err != nil {
		return nil, fmt.Errorf("actor of %s not found: %w", account.Username, err)
	}

	sanitized := content.Sanitize(in.Content)
	text := content.TextContent(sanitized)
	if strings.TrimSpace(text) == "" && len(in.Attachments) == 0 {
		return nil, fmt.Errorf("post needs content or attachments")
	}

	var parent *domain.Post
	var parentAuthor *domain.Actor
	if in.ReplyToId != "" {
		err, parent = e.store.ReadPostByPublicId(in.ReplyToId)
		if err != nil {
			return nil, fmt.Errorf("reply parent %s not found", in.ReplyToId)
		}
		if err, pa := e.store.ReadActorById(parent.ActorId); err == nil {
			parentAuthor = pa
		}
	}

	quoted, quoteHref, err := e.resolveQuote(in.QuoteOf)
	if err != nil {
		return nil, err
	}
	if quoteHref != "" {
		sanitized += quoteInlineSpan(quoteHref)
	}

	communityURI := ""
	if in.Community != "" {
		if !e.conf.Conf.WithAp {
			return nil, fmt.Errorf("federation is disabled")
		}
		community, err := e.ResolveActor(in.Community)
		if err != nil {
			return nil, fmt.Errorf("community %s: %w", in.Community, err)
		}
		if !community.IsGroup() {
			return nil, fmt.Errorf("%s is not a community", community.Handle())
		}
		communityURI = community.URI
	} else if parent != nil {
		communityURI = e.inheritedCommunity(parent)
	}

	var mentionURIs []string
	var mentionActors []*domain.Actor
	for _, m := range content.ExtractMentions(text) {
		mentioned, err := e.ResolveActor(m.Handle())
		if err != nil {
			log.Debug().Err(err).Msgf("Outbox: mention %s not resolvable", m.Handle())
			continue
		}
		mentionURIs = append(mentionURIs, mentioned.URI)
		mentionActors = append(mentionActors, mentioned)
	}

	var preview *domain.LinkPreview
	var embed *domain.VideoEmbed
	if first := content.FirstURL(text); first != "" {
		embed = content.DetectVideoEmbed(first)
		if embed == nil && len(in.Attachments) == 0 {
			preview = content.FetchLinkPreview(e.client, first)
		}
	}

	to := []string{domain.PublicAudience}
	cc := []string{e.FollowersURI(account.Username)}
	if parentAuthor != nil {
		cc = append(cc, parentAuthor.URI)
	}
	cc = append(cc, mentionURIs...)
	if communityURI != "" {
		cc = append(cc, communityURI)
	}
	cc = lo.Filter(lo.Uniq(cc), func(uri string, _ int) bool { return uri != actor.URI })

	publicId := util.RandomString(16)
	post := &domain.Post{
		Id:             uuid.New(),
		PublicId:       publicId,
		URI:            e.PostURI(publicId),
		ActorId:        actor.Id,
		Content:        sanitized,
		Sensitive:      in.Sensitive || in.ContentWarning != "",
		ContentWarning: content.TruncateRunes(in.ContentWarning, domain.MaxContentWarningLen),
		Audience:       lo.Uniq(append(append([]string{}, to...), cc...)),
		Tags:           content.ExtractHashtags(text),
		Mentions:       mentionURIs,
		Attachments:    in.Attachments,
		LinkPreview:    preview,
		VideoEmbed:     embed,
		CreatedAt:      time.Now(),
	}
	if parent != nil {
		post.InReplyToId = &parent.Id
	}
	if quoted != nil {
		post.QuoteOfId = &quoted.Id
	}

	if err := e.store.CreatePost(post); err != nil {
		return nil, fmt.Errorf("failed to store post: %w", err)
	}
	e.notifyMentions(post)

	doc := &Document{
		Context:   apContext,
		ID:        e.newActivityURI(),
		Type:      "Create",
		Actor:     actor.URI,
		Published: post.CreatedAt.UTC().Format(time.RFC3339),
		To:        to,
		Cc:        cc,
		Object:    e.NoteDoc(post, actor),
	}
	e.recordOutbound(doc, post.URI, "Note")

	recipients := []Recipient{FollowersRecipient(actor)}
	if parentAuthor != nil && !parentAuthor.IsLocal() {
		recipients = append(recipients, ActorRecipient(parentAuthor))
	}
	for _, m := range mentionActors {
		if !m.IsLocal() {
			recipients = append(recipients, ActorRecipient(m))
		}
	}
	e.Deliver(doc, account, recipients)

	if communityURI != "" && e.conf.Conf.WithAp {
		if err := e.RelayToCommunity(doc, account, communityURI); err != nil {
			log.Warn().Err(err).Msgf("Outbox: community relay for %s failed", post.URI)
		}
	}
	return post, nil
}

// resolveQuote turns the compose quote reference into a stored post where
// possible. A remote URL that cannot be fetched still yields a href for
// the inline fallback; an unknown local public id is the caller's error.
func (e *Engine) resolveQuote(ref string) (*domain.Post, string, error) {
	if ref == "" {
		return nil, "", nil
	}
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		if quoted := e.FetchAndStorePost(ref); quoted != nil {
			return quoted, quoted.URI, nil
		}
		return nil, ref, nil
	}
	err, quoted := e.store.ReadPostByPublicId(ref)
	if err != nil {
		return nil, "", fmt.Errorf("quoted post %s not found", ref)
	}
	return quoted, quoted.URI, nil
}

// quoteInlineSpan is the conventional inline fallback every quote carries,
// so servers without quote support still show the reference.
func quoteInlineSpan(href string) string {
	escaped := html.EscapeString(href)
	return fmt.Sprintf(`<span class="quote-inline"><br>RE: <a href="%s">%s</a></span>`, escaped, escaped)
}

// inheritedCommunity finds a Group actor in the parent's audience, so a
// reply inside a community thread reaches the community too.
func (e *Engine) inheritedCommunity(parent *domain.Post) string {
	for _, uri := range parent.Audience {
		if uri == domain.PublicAudience || uri == domain.PublicAudienceExpanded {
			continue
		}
		if err, a := e.store.ReadActorByURI(uri); err == nil && a.IsGroup() {
			return a.URI
		}
	}
	return ""
}

// FollowActor follows a target by handle or URI. A local target accepts
// immediately; a remote target gets a Follow and stays pending until its
// Accept arrives.
func (e *Engine) FollowActor(account *domain.Account, targetRef string) error {
	err, actor := e.store.ReadActorByAccountId(account.Id)
	if err != nil {
		return fmt.Errorf("actor of %s not found: %w", account.Username, err)
	}
	target, err := e.ResolveActor(targetRef)
	if err != nil {
		return fmt.Errorf("%s not resolvable: %w", targetRef, err)
	}
	if target.Id == actor.Id {
		return fmt.Errorf("cannot follow yourself")
	}
	if !target.IsLocal() && !e.conf.Conf.WithAp {
		return fmt.Errorf("federation is disabled")
	}

	followURI := e.newActivityURI()
	status := domain.FollowPending
	if target.IsLocal() {
		status = domain.FollowAccepted
	}
	err, inserted := e.store.CreateFollow(&domain.Follow{
		Id:            uuid.New(),
		ActorId:       actor.Id,
		TargetActorId: target.Id,
		URI:           followURI,
		Status:        status,
		CreatedAt:     time.Now(),
	})
	if err != nil {
		return err
	}
	if !inserted {
		return nil
	}

	if target.IsLocal() {
		return e.store.CreateNotification(&domain.Notification{
			Id:               uuid.New(),
			Kind:             domain.NotificationFollow,
			ActorId:          actor.Id,
			RecipientActorId: target.Id,
			CreatedAt:        time.Now(),
		})
	}

	doc := &Document{
		Context: apContext,
		ID:      followURI,
		Type:    "Follow",
		Actor:   actor.URI,
		Object:  target.URI,
	}
	e.recordOutbound(doc, target.URI, "")
	e.Deliver(doc, account, []Recipient{ActorRecipient(target)})
	go e.FetchFeaturedPosts(target.URI)
	return nil
}

// UnfollowActor removes a follow edge and sends the Undo to a remote
// target. The target comes from the store only; there is nothing to
// unfollow about an actor this instance never saw.
func (e *Engine) UnfollowActor(account *domain.Account, targetRef string) error {
	err, actor := e.store.ReadActorByAccountId(account.Id)
	if err != nil {
		return fmt.Errorf("actor of %s not found: %w", account.Username, err)
	}
	target, err := e.cachedActor(targetRef)
	if err != nil {
		return err
	}
	err, follow := e.store.ReadFollowByPair(actor.Id, target.Id)
	if err != nil {
		return fmt.Errorf("not following %s", target.Handle())
	}
	if err := e.store.DeleteFollowNotification(actor.Id, target.Id); err != nil {
		return err
	}
	if err := e.store.DeleteFollowByURI(follow.URI); err != nil {
		return err
	}
	if target.IsLocal() {
		return nil
	}

	doc := undoDocument(e.newActivityURI(), actor.URI, &Document{
		ID:     follow.URI,
		Type:   "Follow",
		Actor:  actor.URI,
		Object: target.URI,
	})
	e.recordOutbound(doc, follow.URI, "Follow")
	e.Deliver(doc, account, []Recipient{ActorRecipient(target)})
	return nil
}

// LikePost records a like on a stored post and tells a remote author. The
// activity URI doubles as the edge URI so a later undo can match it.
func (e *Engine) LikePost(account *domain.Account, publicId string) error {
	actor, post, err := e.actorAndPost(account, publicId)
	if err != nil {
		return err
	}
	likeURI := e.newActivityURI()
	err, inserted := e.store.CreateLike(&domain.Like{
		Id:        uuid.New(),
		ActorId:   actor.Id,
		PostId:    post.Id,
		URI:       likeURI,
		CreatedAt: time.Now(),
	})
	if err != nil {
		return err
	}
	if !inserted {
		return nil
	}
	if err := e.notifyPostAction(domain.NotificationLike, actor, post); err != nil {
		return err
	}

	author := e.remoteAuthor(post)
	if author == nil {
		return nil
	}
	doc := &Document{
		Context: apContext,
		ID:      likeURI,
		Type:    "Like",
		Actor:   actor.URI,
		Object:  post.URI,
	}
	e.recordOutbound(doc, post.URI, "")
	e.Deliver(doc, account, []Recipient{ActorRecipient(author)})
	return nil
}

// UnlikePost removes a like edge with its notification and sends the Undo
// to a remote author. Unliking a post that was never liked is a no-op.
func (e *Engine) UnlikePost(account *domain.Account, publicId string) error {
	actor, post, err := e.actorAndPost(account, publicId)
	if err != nil {
		return err
	}
	err, like := e.store.ReadLikeByPair(actor.Id, post.Id)
	if err != nil {
		return nil
	}
	if err, _ := e.store.DeleteLikeByURI(like.URI); err != nil {
		return err
	}
	if err := e.store.DeleteNotificationForPost(domain.NotificationLike, actor.Id, post.Id); err != nil {
		return err
	}

	author := e.remoteAuthor(post)
	if author == nil {
		return nil
	}
	doc := undoDocument(e.newActivityURI(), actor.URI, &Document{
		ID:     like.URI,
		Type:   "Like",
		Actor:  actor.URI,
		Object: post.URI,
	})
	e.recordOutbound(doc, like.URI, "Like")
	e.Deliver(doc, account, []Recipient{ActorRecipient(author)})
	return nil
}

// BoostPost announces a post to the booster's followers and its author.
func (e *Engine) BoostPost(account *domain.Account, publicId string) error {
	actor, post, err := e.actorAndPost(account, publicId)
	if err != nil {
		return err
	}
	err, author := e.store.ReadActorById(post.ActorId)
	if err != nil {
		return fmt.Errorf("author of %s not found: %w", post.URI, err)
	}
	boostURI := e.newActivityURI()
	err, inserted := e.store.CreateBoost(&domain.Boost{
		Id:        uuid.New(),
		ActorId:   actor.Id,
		PostId:    post.Id,
		URI:       boostURI,
		CreatedAt: time.Now(),
	})
	if err != nil {
		return err
	}
	if !inserted {
		return nil
	}
	if err := e.notifyPostAction(domain.NotificationBoost, actor, post); err != nil {
		return err
	}

	doc := &Document{
		Context:   apContext,
		ID:        boostURI,
		Type:      "Announce",
		Actor:     actor.URI,
		Published: time.Now().UTC().Format(time.RFC3339),
		To:        []string{domain.PublicAudience},
		Cc:        []string{e.FollowersURI(account.Username), author.URI},
		Object:    post.URI,
	}
	e.recordOutbound(doc, post.URI, "")

	recipients := []Recipient{FollowersRecipient(actor)}
	if !author.IsLocal() {
		recipients = append(recipients, ActorRecipient(author))
	}
	e.Deliver(doc, account, recipients)
	return nil
}

// UnboostPost removes a boost edge with its notification and sends the
// Undo wherever the boost went.
func (e *Engine) UnboostPost(account *domain.Account, publicId string) error {
	actor, post, err := e.actorAndPost(account, publicId)
	if err != nil {
		return err
	}
	err, boost := e.store.ReadBoostByPair(actor.Id, post.Id)
	if err != nil {
		return nil
	}
	if err, _ := e.store.DeleteBoostByURI(boost.URI); err != nil {
		return err
	}
	if err := e.store.DeleteNotificationForPost(domain.NotificationBoost, actor.Id, post.Id); err != nil {
		return err
	}

	doc := undoDocument(e.newActivityURI(), actor.URI, &Document{
		ID:     boost.URI,
		Type:   "Announce",
		Actor:  actor.URI,
		Object: post.URI,
	})
	e.recordOutbound(doc, boost.URI, "Announce")

	recipients := []Recipient{FollowersRecipient(actor)}
	if author := e.remoteAuthor(post); author != nil {
		recipients = append(recipients, ActorRecipient(author))
	}
	e.Deliver(doc, account, recipients)
	return nil
}

// DeletePost removes a post tree and federates one Tombstone per removed
// local post, each signed by its own author and routed by that post's
// stored audience.
func (e *Engine) DeletePost(account *domain.Account, publicId string) error {
	actor, post, err := e.actorAndPost(account, publicId)
	if err != nil {
		return err
	}
	if post.ActorId != actor.Id {
		return fmt.Errorf("only the author can delete a post")
	}
	err, deleted := e.store.DeletePostCascade(post.Id)
	if err != nil {
		return err
	}
	for _, p := range *deleted {
		e.federatePostDelete(&p)
	}
	return nil
}

func (e *Engine) federatePostDelete(post *domain.Post) {
	err, author := e.store.ReadActorById(post.ActorId)
	if err != nil || !author.IsLocal() {
		return
	}
	err, account := e.store.ReadAccById(*author.AccountId)
	if err != nil {
		return
	}
	to, cc := splitAudience(post.Audience)
	doc := &Document{
		Context: apContext,
		ID:      e.newActivityURI(),
		Type:    "Delete",
		Actor:   author.URI,
		To:      to,
		Cc:      cc,
		Object:  &Tombstone{ID: post.URI, Type: "Tombstone", FormerType: "Note"},
	}
	e.recordOutbound(doc, post.URI, "Tombstone")
	e.Deliver(doc, account, e.audienceRecipients(author, post.Audience))
}

// EditPost rewrites the content of the author's own post. Served
// documents pick the edit up immediately; remote copies keep the old
// text until their server re-fetches the object.
func (e *Engine) EditPost(account *domain.Account, publicId, rawContent, contentWarning string, sensitive bool) (*domain.Post, error) {
	actor, post, err := e.actorAndPost(account, publicId)
	if err != nil {
		return nil, err
	}
	if post.ActorId != actor.Id {
		return nil, fmt.Errorf("only the author can edit a post")
	}

	sanitized := content.Sanitize(rawContent)
	text := content.TextContent(sanitized)
	if strings.TrimSpace(text) == "" && len(post.Attachments) == 0 {
		return nil, fmt.Errorf("post needs content or attachments")
	}
	// A quote keeps its inline fallback through edits.
	if post.QuoteOfId != nil {
		if err, quoted := e.store.ReadPostById(*post.QuoteOfId); err == nil {
			sanitized += quoteInlineSpan(quoted.URI)
		}
	}

	warning := content.TruncateRunes(contentWarning, domain.MaxContentWarningLen)
	err = e.store.UpdatePostContent(post.Id, sanitized, warning, sensitive || warning != "", content.ExtractHashtags(text))
	if err != nil {
		return nil, err
	}
	err, updated := e.store.ReadPostById(post.Id)
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// UpdateProfile changes the editable fields of the account's actor. The
// served actor document reflects the change right away; remote servers
// see it when their cached copy of the actor expires.
func (e *Engine) UpdateProfile(account *domain.Account, displayName, summary, avatarURL string) (*domain.Actor, error) {
	err, actor := e.store.ReadActorByAccountId(account.Id)
	if err != nil {
		return nil, fmt.Errorf("actor of %s not found: %w", account.Username, err)
	}
	if avatarURL != "" {
		parsed, err := url.Parse(avatarURL)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
			return nil, fmt.Errorf("avatar must be an http(s) URL")
		}
	}

	displayName = content.TruncateRunes(displayName, domain.MaxDisplayNameLen)
	summary = content.TruncateRunes(content.Sanitize(summary), domain.MaxSummaryLen)
	if err := e.store.UpdateActorProfile(actor.Id, displayName, summary, avatarURL); err != nil {
		return nil, err
	}
	actor.DisplayName = displayName
	actor.Summary = summary
	actor.AvatarURL = avatarURL
	return actor, nil
}

// SubmitToCommunity relays an existing post to a community and records the
// community in the post's audience on success. Unlike the compose-time
// relay this one reports a rejection to the caller.
func (e *Engine) SubmitToCommunity(account *domain.Account, publicId, communityRef string) error {
	if !e.conf.Conf.WithAp {
		return fmt.Errorf("federation is disabled")
	}
	actor, post, err := e.actorAndPost(account, publicId)
	if err != nil {
		return err
	}
	if post.ActorId != actor.Id {
		return fmt.Errorf("only the author can submit a post")
	}
	community, err := e.ResolveActor(communityRef)
	if err != nil {
		return &RelayError{Community: communityRef, Err: err}
	}
	if !community.IsGroup() {
		return &RelayError{Community: communityRef, Err: fmt.Errorf("%s is not a community", community.Handle())}
	}

	audience := lo.Uniq(append(append([]string{}, post.Audience...), community.URI))
	post.Audience = audience
	to, cc := splitAudience(audience)
	doc := &Document{
		Context:   apContext,
		ID:        e.newActivityURI(),
		Type:      "Create",
		Actor:     actor.URI,
		Published: post.CreatedAt.UTC().Format(time.RFC3339),
		To:        to,
		Cc:        cc,
		Object:    e.NoteDoc(post, actor),
	}
	e.recordOutbound(doc, post.URI, "Note")
	if err := e.RelayToCommunity(doc, account, community.URI); err != nil {
		return err
	}
	return e.store.UpdatePostAudience(post.Id, audience)
}

// undoDocument wraps a reconstructed activity in an Undo.
func undoDocument(id, actorURI string, inner *Document) *Document {
	return &Document{
		Context: apContext,
		ID:      id,
		Type:    "Undo",
		Actor:   actorURI,
		Object:  inner,
	}
}

// splitAudience rebuilds the to/cc split from a stored flat audience list:
// public stays in to, everything else lands in cc.
func splitAudience(audience []string) (to, cc []string) {
	for _, uri := range audience {
		if uri == domain.PublicAudience || uri == domain.PublicAudienceExpanded {
			to = append(to, domain.PublicAudience)
			continue
		}
		cc = append(cc, uri)
	}
	return lo.Uniq(to), lo.Uniq(cc)
}

// audienceRecipients maps a stored audience list onto delivery targets.
// The author's own followers URI expands symbolically; anything else must
// be a known remote actor.
func (e *Engine) audienceRecipients(author *domain.Actor, audience []string) []Recipient {
	var recipients []Recipient
	for _, uri := range audience {
		if uri == domain.PublicAudience || uri == domain.PublicAudienceExpanded {
			continue
		}
		if uri == e.FollowersURI(author.Username) {
			recipients = append(recipients, FollowersRecipient(author))
			continue
		}
		err, target := e.store.ReadActorByURI(uri)
		if err != nil || target.IsLocal() {
			continue
		}
		recipients = append(recipients, ActorRecipient(target))
	}
	return recipients
}

func (e *Engine) actorAndPost(account *domain.Account, publicId string) (*domain.Actor, *domain.Post, error) {
	err, actor := e.store.ReadActorByAccountId(account.Id)
	if err != nil {
		return nil, nil, fmt.Errorf("actor of %s not found: %w", account.Username, err)
	}
	err, post := e.store.ReadPostByPublicId(publicId)
	if err != nil {
		return nil, nil, fmt.Errorf("post %s not found", publicId)
	}
	return actor, post, nil
}

// remoteAuthor returns the post author when it lives on another server,
// nil otherwise.
func (e *Engine) remoteAuthor(post *domain.Post) *domain.Actor {
	err, author := e.store.ReadActorById(post.ActorId)
	if err != nil || author.IsLocal() {
		return nil
	}
	return author
}

// recordOutbound writes a locally minted activity into the ledger. The
// URI is fresh, so the write is audit, not dedup; failures only log.
func (e *Engine) recordOutbound(doc *Document, objectURI, objectType string) {
	raw, err := json.Marshal(doc)
	if err != nil {
		log.Warn().Err(err).Msgf("Outbox: %s not serializable", doc.ID)
		return
	}
	err, _ = e.store.RecordActivityIfNew(&domain.Activity{
		Id:           uuid.New(),
		ActivityURI:  doc.ID,
		ActivityType: doc.Type,
		ActorURI:     doc.Actor,
		ObjectURI:    objectURI,
		ObjectType:   objectType,
		RawJSON:      string(raw),
		Direction:    domain.DirectionOut,
		CreatedAt:    time.Now(),
	})
	if err != nil {
		log.Warn().Err(err).Msgf("Outbox: could not record %s", doc.ID)
	}
}
