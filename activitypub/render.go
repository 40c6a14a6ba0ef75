package activitypub

import (
	"strings"
	"time"

	"github.com/anancus/anancus/domain"
)

// NoteDoc renders a stored post as its wire object. Context stays
// empty; standalone consumers add it before writing the document out.
func (e *Engine) NoteDoc(post *domain.Post, author *domain.Actor) *Note {
	to, cc := splitAudience(post.Audience)
	note := &Note{
		ID:           post.URI,
		Type:         "Note",
		AttributedTo: uriRef(author.URI),
		Content:      post.Content,
		Summary:      post.ContentWarning,
		Sensitive:    post.Sensitive,
		Published:    post.CreatedAt.UTC().Format(time.RFC3339),
		URL:          post.URI,
		To:           stringList(to),
		Cc:           stringList(cc),
	}
	if post.EditedAt != nil {
		note.Updated = post.EditedAt.UTC().Format(time.RFC3339)
	}
	if post.InReplyToId != nil {
		if err, parent := e.store.ReadPostById(*post.InReplyToId); err == nil {
			note.InReplyTo = uriRef(parent.URI)
		}
	}
	if post.QuoteOfId != nil {
		if err, quoted := e.store.ReadPostById(*post.QuoteOfId); err == nil {
			note.QuoteURL = quoted.URI
			note.QuoteURI = quoted.URI
		}
	}
	for _, tag := range post.Tags {
		note.Tag = append(note.Tag, TagObject{
			Type: "Hashtag",
			Name: "#" + tag,
			Href: e.baseURL() + "/tags/" + tag,
		})
	}
	for _, mention := range post.Mentions {
		t := TagObject{Type: "Mention", Href: mention}
		if err, m := e.store.ReadActorByURI(mention); err == nil {
			t.Name = m.Handle()
		}
		note.Tag = append(note.Tag, t)
	}
	for _, a := range post.Attachments {
		note.Attachment = append(note.Attachment, AttachmentObject{
			Type: "Document",
			URL:  e.mediaURL(a),
		})
	}
	return note
}

// ActorDoc renders a local actor's public document, key included.
func (e *Engine) ActorDoc(actor *domain.Actor, account *domain.Account) *ActorDocument {
	doc := &ActorDocument{
		Context:           apContext,
		ID:                actor.URI,
		Type:              actor.ActorType,
		PreferredUsername: actor.Username,
		Name:              actor.DisplayName,
		Summary:           actor.Summary,
		Inbox:             e.InboxURI(actor.Username),
		Outbox:            e.OutboxURI(actor.Username),
		Followers:         e.FollowersURI(actor.Username),
		Following:         e.FollowingURI(actor.Username),
		Endpoints:         &ActorEndpoints{SharedInbox: e.SharedInboxURI()},
		PublicKey: PublicKeyObject{
			ID:           actor.URI + "#main-key",
			Owner:        actor.URI,
			PublicKeyPem: account.PublicKeyPem,
		},
	}
	if actor.AvatarURL != "" {
		doc.Icon = &ImageObject{Type: "Image", URL: actor.AvatarURL}
	}
	return doc
}

// CollectionDoc renders an OrderedCollection header carrying only a count.
func CollectionDoc(id string, total int64) *Collection {
	return &Collection{
		Context:    apContext,
		ID:         id,
		Type:       "OrderedCollection",
		TotalItems: total,
	}
}

// mediaURL makes a stored attachment reference fetchable: absolute URLs
// pass through, local media paths get the public media prefix.
func (e *Engine) mediaURL(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return e.baseURL() + "/media/" + strings.TrimPrefix(path, "/")
}
