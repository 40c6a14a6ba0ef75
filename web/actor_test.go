package web

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/anancus/anancus/activitypub"
	"github.com/anancus/anancus/domain"
	"github.com/anancus/anancus/util"
	"github.com/google/uuid"
)

// seedRemoteActor stores a cached remote actor row directly.
func seedRemoteActor(t *testing.T, srv *Server, username, host string) *domain.Actor {
	t.Helper()
	now := time.Now()
	actor := &domain.Actor{
		Id:                uuid.New(),
		URI:               "https://" + host + "/users/" + username,
		Username:          username,
		Domain:            host,
		InboxURI:          "https://" + host + "/users/" + username + "/inbox",
		ActorType:         domain.ActorTypePerson,
		PublicKeyPem:      "unused",
		CountsRefreshedAt: now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := srv.store.UpsertActor(actor); err != nil {
		t.Fatalf("Failed to store remote actor: %v", err)
	}
	return actor
}

func TestActorDocument(t *testing.T) {
	srv, router := newTestServer(t)
	_, actor := newWebAccount(t, srv, "alice", "password1")

	w := doRequest(router, "GET", "/users/alice", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, activitypub.ContentType) {
		t.Errorf("Expected ActivityPub content type, got %q", ct)
	}

	var doc map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &doc); err != nil {
		t.Fatalf("Failed to decode actor document: %v", err)
	}

	if doc["@context"] == nil {
		t.Error("Actor document should carry @context")
	}
	if doc["id"] != actor.URI {
		t.Errorf("Expected id %s, got %v", actor.URI, doc["id"])
	}
	if doc["type"] != "Person" {
		t.Errorf("Expected type Person, got %v", doc["type"])
	}
	if doc["preferredUsername"] != "alice" {
		t.Errorf("Expected preferredUsername alice, got %v", doc["preferredUsername"])
	}
	if doc["inbox"] != actor.URI+"/inbox" {
		t.Errorf("Expected inbox %s/inbox, got %v", actor.URI, doc["inbox"])
	}
	if doc["outbox"] != actor.URI+"/outbox" {
		t.Errorf("Expected outbox %s/outbox, got %v", actor.URI, doc["outbox"])
	}
	if doc["followers"] != actor.URI+"/followers" {
		t.Errorf("Expected followers collection, got %v", doc["followers"])
	}

	endpoints, ok := doc["endpoints"].(map[string]any)
	if !ok {
		t.Fatal("Actor document should carry endpoints")
	}
	if endpoints["sharedInbox"] != "https://"+testDomain+"/inbox" {
		t.Errorf("Expected shared inbox, got %v", endpoints["sharedInbox"])
	}

	key, ok := doc["publicKey"].(map[string]any)
	if !ok {
		t.Fatal("Actor document should carry publicKey")
	}
	if key["id"] != actor.URI+"#main-key" {
		t.Errorf("Expected key id %s#main-key, got %v", actor.URI, key["id"])
	}
	if key["owner"] != actor.URI {
		t.Errorf("Expected key owner %s, got %v", actor.URI, key["owner"])
	}
	pem, _ := key["publicKeyPem"].(string)
	if !strings.Contains(pem, "BEGIN PUBLIC KEY") {
		t.Error("Expected a PEM encoded public key")
	}
}

func TestActorUnknownUser(t *testing.T) {
	_, router := newTestServer(t)

	w := doRequest(router, "GET", "/users/ghost", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestPostDocument(t *testing.T) {
	srv, router := newTestServer(t)
	acc, actor := newWebAccount(t, srv, "alice", "password1")

	post, err := srv.engine.ComposePost(&domain.SavePost{AccountId: acc.Id, Content: "hello federation"})
	if err != nil {
		t.Fatalf("Failed to compose post: %v", err)
	}

	w := doRequest(router, "GET", "/posts/"+post.PublicId, nil)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, activitypub.ContentType) {
		t.Errorf("Expected ActivityPub content type, got %q", ct)
	}

	var doc map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &doc); err != nil {
		t.Fatalf("Failed to decode note: %v", err)
	}

	if doc["@context"] == nil {
		t.Error("A note served on its own should carry @context")
	}
	if doc["id"] != post.URI {
		t.Errorf("Expected id %s, got %v", post.URI, doc["id"])
	}
	if doc["type"] != "Note" {
		t.Errorf("Expected type Note, got %v", doc["type"])
	}
	if doc["attributedTo"] != actor.URI {
		t.Errorf("Expected attributedTo %s, got %v", actor.URI, doc["attributedTo"])
	}
	if body, _ := doc["content"].(string); !strings.Contains(body, "hello federation") {
		t.Errorf("Expected note content, got %v", doc["content"])
	}

	to, _ := doc["to"].([]any)
	found := false
	for _, addr := range to {
		if addr == domain.PublicAudience {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected public addressing, got %v", doc["to"])
	}
}

func TestPostUnknownId(t *testing.T) {
	_, router := newTestServer(t)

	w := doRequest(router, "GET", "/posts/doesnotexist", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestRemotePostNotServed(t *testing.T) {
	srv, router := newTestServer(t)
	remote := seedRemoteActor(t, srv, "bob", "elsewhere.example")

	post := &domain.Post{
		Id:        uuid.New(),
		PublicId:  util.RandomString(16),
		URI:       "https://elsewhere.example/notes/1",
		ActorId:   remote.Id,
		Content:   "from away",
		Audience:  []string{domain.PublicAudience},
		CreatedAt: time.Now(),
	}
	if err := srv.store.CreatePost(post); err != nil {
		t.Fatalf("Failed to store post: %v", err)
	}

	// The cached copy has a local public id, but its object lives on the
	// remote server.
	w := doRequest(router, "GET", "/posts/"+post.PublicId, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for a remote post, got %d", w.Code)
	}
}

func TestFollowersCollection(t *testing.T) {
	srv, router := newTestServer(t)
	_, alice := newWebAccount(t, srv, "alice", "password1")
	remote := seedRemoteActor(t, srv, "bob", "elsewhere.example")

	follow := &domain.Follow{
		Id:            uuid.New(),
		ActorId:       remote.Id,
		TargetActorId: alice.Id,
		URI:           "https://elsewhere.example/follows/1",
		Status:        domain.FollowAccepted,
		CreatedAt:     time.Now(),
	}
	if err, _ := srv.store.CreateFollow(follow); err != nil {
		t.Fatalf("Failed to store follow: %v", err)
	}

	w := doRequest(router, "GET", "/users/alice/followers", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var doc map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &doc); err != nil {
		t.Fatalf("Failed to decode collection: %v", err)
	}
	if doc["type"] != "OrderedCollection" {
		t.Errorf("Expected OrderedCollection, got %v", doc["type"])
	}
	if doc["id"] != alice.URI+"/followers" {
		t.Errorf("Expected collection id %s/followers, got %v", alice.URI, doc["id"])
	}
	if doc["totalItems"] != float64(1) {
		t.Errorf("Expected totalItems 1, got %v", doc["totalItems"])
	}

	// The reverse collection stays empty
	w = doRequest(router, "GET", "/users/alice/following", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	doc = map[string]any{}
	if err := json.Unmarshal(w.Body.Bytes(), &doc); err != nil {
		t.Fatalf("Failed to decode collection: %v", err)
	}
	if doc["totalItems"] != float64(0) {
		t.Errorf("Expected totalItems 0, got %v", doc["totalItems"])
	}
}

func TestFollowersUnknownUser(t *testing.T) {
	_, router := newTestServer(t)

	w := doRequest(router, "GET", "/users/ghost/followers", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}
