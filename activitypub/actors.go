package activitypub

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/anancus/anancus/content"
	"github.com/anancus/anancus/domain"
	"github.com/anancus/anancus/util"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ResolveActor turns an actor reference into a stored actor row. The
// reference is either a URI or a handle ("user", "user@host",
// "@user@host"); handles for other hosts go through webfinger first.
// Local references only ever hit the store. Remote documents are cached
// for 24h; follower counts are refreshed from the collections when older
// than 6h. A remote actor whose inbox fails the address guard is not
// resolvable and nothing about it is persisted.
func (e *Engine) ResolveActor(ref string) (*domain.Actor, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("empty actor reference")
	}

	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return e.resolveURI(ref)
	}

	username, domainName, err := splitHandle(ref)
	if err != nil {
		return nil, err
	}
	if domainName == "" || strings.EqualFold(domainName, e.conf.Conf.SslDomain) {
		err, actor := e.store.ReadActorByHandle(username, e.conf.Conf.SslDomain)
		if err != nil {
			return nil, fmt.Errorf("unknown local user %q: %w", username, err)
		}
		return actor, nil
	}

	if err, cached := e.store.ReadActorByHandle(username, domainName); err == nil {
		return e.refreshIfStale(cached), nil
	}

	uri, err := e.webfinger(username, domainName)
	if err != nil {
		return nil, fmt.Errorf("webfinger %s@%s: %w", username, domainName, err)
	}
	return e.resolveURI(uri)
}

func (e *Engine) resolveURI(uri string) (*domain.Actor, error) {
	if e.IsLocalURI(uri) {
		err, actor := e.store.ReadActorByURI(uri)
		if err != nil {
			return nil, fmt.Errorf("unknown local actor %s: %w", uri, err)
		}
		return actor, nil
	}

	if err, cached := e.store.ReadActorByURI(uri); err == nil {
		return e.refreshIfStale(cached), nil
	}
	return e.fetchAndStoreActor(uri)
}

// cachedActor resolves a reference against the store only. Used where a
// network fetch makes no sense, like unfollowing an actor we must
// already know.
func (e *Engine) cachedActor(ref string) (*domain.Actor, error) {
	ref = strings.TrimSpace(ref)
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		err, actor := e.store.ReadActorByURI(ref)
		if err != nil {
			return nil, fmt.Errorf("unknown actor %s", ref)
		}
		return actor, nil
	}

	username, domainName, err := splitHandle(ref)
	if err != nil {
		return nil, err
	}
	if domainName == "" {
		domainName = e.conf.Conf.SslDomain
	}
	err, actor := e.store.ReadActorByHandle(username, domainName)
	if err != nil {
		return nil, fmt.Errorf("unknown actor %s@%s", username, domainName)
	}
	return actor, nil
}

// refreshIfStale returns the cached actor, re-fetching its document after
// the cache TTL and its counts after the counts interval. A failed
// re-fetch keeps the cached row; stale beats unavailable.
func (e *Engine) refreshIfStale(cached *domain.Actor) *domain.Actor {
	if time.Since(cached.UpdatedAt) < actorCacheTTL {
		if time.Since(cached.CountsRefreshedAt) > countsRefreshAfter {
			e.refreshActorCounts(cached)
		}
		return cached
	}

	refreshed, err := e.fetchAndStoreActor(cached.URI)
	if err != nil {
		log.Warn().Err(err).Msgf("Resolver: refresh of %s failed, keeping cached actor", cached.URI)
		return cached
	}
	return refreshed
}

func (e *Engine) fetchAndStoreActor(uri string) (*domain.Actor, error) {
	doc, err := e.fetchActorDocument(uri)
	if err != nil {
		return nil, err
	}

	actor, err := e.actorFromDocument(doc)
	if err != nil {
		return nil, err
	}

	if err := e.store.UpsertActor(actor); err != nil {
		return nil, fmt.Errorf("failed to store actor %s: %w", actor.URI, err)
	}
	err, stored := e.store.ReadActorByURI(actor.URI)
	if err != nil {
		return nil, fmt.Errorf("failed to read back actor %s: %w", actor.URI, err)
	}

	e.refreshCountsFromDocument(stored, doc)
	return stored, nil
}

func (e *Engine) fetchActorDocument(uri string) (*ActorDocument, error) {
	var doc ActorDocument
	if err := e.getJSON(uri, &doc); err != nil {
		return nil, err
	}

	// The document must describe an actor of the host it was fetched from.
	requested, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("invalid actor URI %q: %w", uri, err)
	}
	declared, err := url.Parse(doc.ID)
	if err != nil || declared.Host == "" {
		return nil, fmt.Errorf("actor document at %s has invalid id %q", uri, doc.ID)
	}
	if !strings.EqualFold(requested.Host, declared.Host) {
		return nil, fmt.Errorf("actor document host mismatch: fetched %s, declares %s", requested.Host, declared.Host)
	}
	return &doc, nil
}

// actorFromDocument applies the trust guard to a fetched document. An
// unreachable inbox rejects the whole actor; an unreachable shared inbox
// or avatar is dropped while the actor persists.
func (e *Engine) actorFromDocument(doc *ActorDocument) (*domain.Actor, error) {
	if doc.ID == "" || doc.Inbox == "" || doc.PublicKey.PublicKeyPem == "" {
		return nil, fmt.Errorf("actor document missing required fields")
	}
	if e.blockedURL(doc.Inbox) {
		return nil, fmt.Errorf("actor %s declares a blocked inbox", doc.ID)
	}

	parsed, _ := url.Parse(doc.ID)

	username := doc.PreferredUsername
	if username == "" {
		username = usernameFromURI(doc.ID)
	}
	if username == "" {
		return nil, fmt.Errorf("actor %s has no username", doc.ID)
	}

	sharedInbox := ""
	if doc.Endpoints != nil {
		sharedInbox = doc.Endpoints.SharedInbox
	}
	if sharedInbox != "" && e.blockedURL(sharedInbox) {
		log.Debug().Msgf("Resolver: dropping blocked shared inbox of %s", doc.ID)
		sharedInbox = ""
	}

	avatar := ""
	if doc.Icon != nil {
		avatar = doc.Icon.URL
	}
	if avatar != "" && e.blockedURL(avatar) {
		log.Debug().Msgf("Resolver: dropping blocked avatar of %s", doc.ID)
		avatar = ""
	}

	actorType := domain.ActorTypePerson
	if doc.Type == domain.ActorTypeGroup {
		actorType = domain.ActorTypeGroup
	}

	now := time.Now()
	return &domain.Actor{
		Id:                uuid.New(),
		URI:               doc.ID,
		Username:          username,
		Domain:            parsed.Host,
		DisplayName:       content.TruncateRunes(doc.Name, domain.MaxDisplayNameLen),
		Summary:           content.TruncateRunes(content.Sanitize(doc.Summary), domain.MaxSummaryLen),
		AvatarURL:         avatar,
		InboxURI:          doc.Inbox,
		SharedInboxURI:    sharedInbox,
		ActorType:         actorType,
		PublicKeyPem:      doc.PublicKey.PublicKeyPem,
		CountsRefreshedAt: now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// refreshActorCounts re-fetches the actor document to learn the collection
// URIs, then the collections themselves. Failures keep the stored counts;
// the refresh timestamp moves forward either way so a dead host is not
// hammered on every resolution.
func (e *Engine) refreshActorCounts(actor *domain.Actor) {
	doc, err := e.fetchActorDocument(actor.URI)
	if err != nil {
		log.Debug().Err(err).Msgf("Resolver: counts refresh of %s failed", actor.URI)
		if err := e.store.UpdateActorCounts(actor.Id, actor.FollowersCount, actor.FollowingCount); err != nil {
			log.Error().Err(err).Msgf("Resolver: failed to touch counts of %s", actor.URI)
		}
		return
	}
	e.refreshCountsFromDocument(actor, doc)
}

func (e *Engine) refreshCountsFromDocument(actor *domain.Actor, doc *ActorDocument) {
	followers := actor.FollowersCount
	if doc.Followers != "" {
		if n, err := e.fetchCollectionCount(doc.Followers); err == nil {
			followers = n
		}
	}
	following := actor.FollowingCount
	if doc.Following != "" {
		if n, err := e.fetchCollectionCount(doc.Following); err == nil {
			following = n
		}
	}

	if err := e.store.UpdateActorCounts(actor.Id, followers, following); err != nil {
		log.Error().Err(err).Msgf("Resolver: failed to update counts of %s", actor.URI)
		return
	}
	actor.FollowersCount = followers
	actor.FollowingCount = following
	actor.CountsRefreshedAt = time.Now()
}

func (e *Engine) fetchCollectionCount(uri string) (int64, error) {
	var coll Collection
	if err := e.getJSON(uri, &coll); err != nil {
		return 0, err
	}
	return coll.TotalItems, nil
}

type webfingerResponse struct {
	Subject string `json:"subject"`
	Links   []struct {
		Rel  string `json:"rel"`
		Type string `json:"type"`
		Href string `json:"href"`
	} `json:"links"`
}

func (e *Engine) webfinger(username, host string) (string, error) {
	resource := fmt.Sprintf("acct:%s@%s", username, host)
	wfURL := fmt.Sprintf("https://%s/.well-known/webfinger?resource=%s", host, url.QueryEscape(resource))

	var wf webfingerResponse
	if err := e.getJSON(wfURL, &wf); err != nil {
		return "", err
	}
	return apLinkFromWebfinger(&wf)
}

// apLinkFromWebfinger picks the self link carrying the actor document.
func apLinkFromWebfinger(wf *webfingerResponse) (string, error) {
	for _, link := range wf.Links {
		if link.Rel == "self" && strings.Contains(link.Type, "activity+json") && link.Href != "" {
			return link.Href, nil
		}
	}
	return "", fmt.Errorf("no ActivityPub self link in webfinger response")
}

// getJSON performs a guarded fetch of an untrusted URL. Responses over
// the remote-content byte cap are rejected, not truncated.
func (e *Engine) getJSON(rawURL string, v any) error {
	if e.blockedURL(rawURL) {
		return fmt.Errorf("blocked address: %s", rawURL)
	}

	req, err := http.NewRequest(http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", ContentType)
	req.Header.Set("User-Agent", util.UserAgent())

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, rawURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, content.MaxRemoteContentBytes+1))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if len(body) > content.MaxRemoteContentBytes {
		return fmt.Errorf("response from %s exceeds %d bytes", rawURL, content.MaxRemoteContentBytes)
	}

	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("failed to parse response from %s: %w", rawURL, err)
	}
	return nil
}

// splitHandle parses "user", "user@host" and "@user@host" forms.
func splitHandle(ref string) (string, string, error) {
	parts := strings.Split(strings.TrimPrefix(ref, "@"), "@")
	switch len(parts) {
	case 1:
		if parts[0] == "" {
			return "", "", fmt.Errorf("invalid handle %q", ref)
		}
		return parts[0], "", nil
	case 2:
		if parts[0] == "" || parts[1] == "" {
			return "", "", fmt.Errorf("invalid handle %q", ref)
		}
		return parts[0], parts[1], nil
	default:
		return "", "", fmt.Errorf("invalid handle %q", ref)
	}
}

// usernameFromURI falls back to the last path segment when a document
// omits preferredUsername.
func usernameFromURI(uri string) string {
	parts := strings.Split(strings.TrimRight(uri, "/"), "/")
	if len(parts) == 0 {
		return ""
	}
	return strings.TrimPrefix(parts[len(parts)-1], "@")
}
