package activitypub

import (
	"encoding/json"
	"fmt"
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

// FetchAndStorePost dereferences an object URI once and stores it as a
// post. Returns nil on any failure; callers fall back gracefully (a reply
// becomes a root post, a quote stays inline, a featured item is skipped).
// Never retries and never recurses into further unknown objects.
func (e *Engine) FetchAndStorePost(uri string) *domain.Post {
	if e.IsLocalURI(uri) {
		err, post := e.store.ReadPostByURI(uri)
		if err != nil {
			return nil
		}
		return post
	}

	if err, existing := e.store.ReadPostByURI(uri); err == nil {
		return existing
	}

	var note Note
	if err := e.getJSON(uri, &note); err != nil {
		log.Debug().Err(err).Msgf("Fetcher: could not fetch %s", uri)
		return nil
	}
	if note.ID == "" {
		note.ID = uri
	}
	if !sameHost(uri, note.ID) {
		log.Warn().Msgf("Fetcher: %s declares an id on another host, dropping", uri)
		return nil
	}

	post, _, err := e.storeRemoteNote(&note, false)
	if err != nil {
		log.Debug().Err(err).Msgf("Fetcher: could not store %s", uri)
		return nil
	}
	return post
}

// storeRemoteNote persists a fetched or delivered note. With fetchParent
// set, an unknown reply parent or quote target is dereferenced once;
// objects stored through that dereference never fetch further.
func (e *Engine) storeRemoteNote(note *Note, fetchParent bool) (*domain.Post, bool, error) {
	if note.ID == "" {
		return nil, false, fmt.Errorf("note without id")
	}
	if note.Type != "Note" && note.Type != "Article" {
		return nil, false, fmt.Errorf("unsupported object type %q", note.Type)
	}
	if len(note.Content) > content.MaxRemoteContentBytes {
		return nil, false, fmt.Errorf("note %s exceeds the content size cap", note.ID)
	}
	authorURI := string(note.AttributedTo)
	if authorURI == "" {
		return nil, false, fmt.Errorf("note %s without attributedTo", note.ID)
	}
	if !sameHost(note.ID, authorURI) {
		return nil, false, fmt.Errorf("note %s attributed across hosts", note.ID)
	}

	if err, existing := e.store.ReadPostByURI(note.ID); err == nil {
		return existing, false, nil
	}

	author, err := e.ResolveActor(authorURI)
	if err != nil {
		return nil, false, fmt.Errorf("author of %s: %w", note.ID, err)
	}

	sanitized := content.Sanitize(note.Content)

	post := &domain.Post{
		Id:             uuid.New(),
		PublicId:       util.RandomString(16),
		URI:            note.ID,
		ActorId:        author.Id,
		Content:        sanitized,
		Sensitive:      note.Sensitive || note.Summary != "",
		ContentWarning: content.TruncateRunes(note.Summary, domain.MaxContentWarningLen),
		Audience:       lo.Uniq(append([]string(note.To), note.Cc...)),
		Tags:           noteHashtags(note, sanitized),
		Mentions:       noteMentions(note),
		Attachments:    noteAttachments(note),
		CreatedAt:      parsePublished(note.Published),
	}

	if parentURI := string(note.InReplyTo); parentURI != "" {
		if parent := e.lookupObject(parentURI, fetchParent); parent != nil {
			post.InReplyToId = &parent.Id
		}
	}
	if quoteURI := note.QuoteOf(); quoteURI != "" {
		if quoted := e.lookupObject(quoteURI, fetchParent); quoted != nil {
			post.QuoteOfId = &quoted.Id
		}
	}

	if err := e.store.CreatePost(post); err != nil {
		return nil, false, fmt.Errorf("failed to store post %s: %w", post.URI, err)
	}
	return post, true, nil
}

// lookupObject finds a referenced object locally, optionally dereferencing
// it once when unknown.
func (e *Engine) lookupObject(uri string, fetch bool) *domain.Post {
	if err, post := e.store.ReadPostByURI(uri); err == nil {
		return post
	}
	if !fetch {
		return nil
	}
	return e.FetchAndStorePost(uri)
}

// FetchFeaturedPosts pulls an actor's pinned collection, storing at most
// featuredLimit items; anything unfetchable or malformed is skipped.
// Best-effort, meant to run off the request path after a local user
// starts following the actor.
func (e *Engine) FetchFeaturedPosts(actorURI string) {
	doc, err := e.fetchActorDocument(actorURI)
	if err != nil {
		log.Debug().Err(err).Msgf("Fetcher: featured lookup of %s failed", actorURI)
		return
	}
	if doc.Featured == "" {
		return
	}

	var coll Collection
	if err := e.getJSON(doc.Featured, &coll); err != nil {
		log.Debug().Err(err).Msgf("Fetcher: featured collection of %s failed", actorURI)
		return
	}

	items := coll.OrderedItems
	if len(items) == 0 {
		items = coll.Items
	}
	if len(items) > featuredLimit {
		items = items[:featuredLimit]
	}

	stored := 0
	for _, raw := range items {
		var note Note
		if err := json.Unmarshal(raw, &note); err == nil && note.ID != "" && note.Type != "" {
			if !sameHost(actorURI, note.ID) {
				continue
			}
			if _, created, err := e.storeRemoteNote(&note, false); err == nil && created {
				stored++
			}
			continue
		}

		var ref uriRef
		if json.Unmarshal(raw, &ref) != nil || ref == "" || !sameHost(actorURI, string(ref)) {
			continue
		}
		if post := e.FetchAndStorePost(string(ref)); post != nil {
			stored++
		}
	}
	if stored > 0 {
		log.Info().Msgf("Fetcher: stored %d featured posts of %s", stored, actorURI)
	}
}

func noteHashtags(note *Note, sanitized string) []string {
	var tags []string
	for _, t := range note.Tag {
		if t.Type != "Hashtag" {
			continue
		}
		name := strings.ToLower(strings.TrimPrefix(t.Name, "#"))
		if name != "" {
			tags = append(tags, name)
		}
	}
	if len(tags) == 0 {
		return content.ExtractHashtags(content.TextContent(sanitized))
	}
	return lo.Uniq(tags)
}

func noteMentions(note *Note) []string {
	var mentions []string
	for _, t := range note.Tag {
		if t.Type == "Mention" && t.Href != "" {
			mentions = append(mentions, t.Href)
		}
	}
	return lo.Uniq(mentions)
}

func noteAttachments(note *Note) []string {
	var urls []string
	for _, a := range note.Attachment {
		if strings.HasPrefix(a.URL, "http://") || strings.HasPrefix(a.URL, "https://") {
			urls = append(urls, a.URL)
		}
	}
	return urls
}

func parsePublished(published string) time.Time {
	if ts, err := time.Parse(time.RFC3339, published); err == nil {
		return ts
	}
	return time.Now()
}

func sameHost(a, b string) bool {
	ua, err := url.Parse(a)
	if err != nil {
		return false
	}
	ub, err := url.Parse(b)
	if err != nil {
		return false
	}
	return ua.Host != "" && strings.EqualFold(ua.Host, ub.Host)
}
