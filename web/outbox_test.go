package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/anancus/anancus/domain"
	"github.com/anancus/anancus/util"
	"github.com/google/uuid"
)

// seedPublicPosts stores public posts for a local actor with strictly
// increasing timestamps, so page order is deterministic.
func seedPublicPosts(t *testing.T, srv *Server, actor *domain.Actor, count int) []*domain.Post {
	t.Helper()
	base := time.Now().Add(-time.Duration(count) * time.Minute)
	posts := make([]*domain.Post, 0, count)
	for i := 0; i < count; i++ {
		publicId := util.RandomString(16)
		post := &domain.Post{
			Id:        uuid.New(),
			PublicId:  publicId,
			URI:       srv.engine.PostURI(publicId),
			ActorId:   actor.Id,
			Content:   fmt.Sprintf("post number %d", i),
			Audience:  []string{domain.PublicAudience, srv.engine.FollowersURI(actor.Username)},
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := srv.store.CreatePost(post); err != nil {
			t.Fatalf("Failed to store post %d: %v", i, err)
		}
		posts = append(posts, post)
	}
	return posts
}

func TestOutboxCollectionHeader(t *testing.T) {
	srv, router := newTestServer(t)
	_, actor := newWebAccount(t, srv, "alice", "password1")
	seedPublicPosts(t, srv, actor, 3)

	w := doRequest(router, "GET", "/users/alice/outbox", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var doc map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &doc); err != nil {
		t.Fatalf("Failed to decode outbox: %v", err)
	}

	if doc["type"] != "OrderedCollection" {
		t.Errorf("Expected OrderedCollection, got %v", doc["type"])
	}
	if doc["totalItems"] != float64(3) {
		t.Errorf("Expected totalItems 3, got %v", doc["totalItems"])
	}
	outboxURI := actor.URI + "/outbox"
	if doc["id"] != outboxURI {
		t.Errorf("Expected id %s, got %v", outboxURI, doc["id"])
	}
	if doc["first"] != outboxURI+"?page=1" {
		t.Errorf("Expected first page link, got %v", doc["first"])
	}
	if _, present := doc["orderedItems"]; present {
		t.Error("The collection header should not carry items")
	}
}

func TestOutboxPage(t *testing.T) {
	srv, router := newTestServer(t)
	_, actor := newWebAccount(t, srv, "alice", "password1")
	posts := seedPublicPosts(t, srv, actor, 3)

	w := doRequest(router, "GET", "/users/alice/outbox?page=1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var doc map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &doc); err != nil {
		t.Fatalf("Failed to decode outbox page: %v", err)
	}

	if doc["type"] != "OrderedCollectionPage" {
		t.Errorf("Expected OrderedCollectionPage, got %v", doc["type"])
	}
	if doc["partOf"] != actor.URI+"/outbox" {
		t.Errorf("Expected partOf link, got %v", doc["partOf"])
	}
	if _, present := doc["next"]; present {
		t.Error("A single page should not link to a next one")
	}

	items, ok := doc["orderedItems"].([]any)
	if !ok {
		t.Fatal("Expected orderedItems on the page")
	}
	if len(items) != 3 {
		t.Fatalf("Expected 3 items, got %d", len(items))
	}

	// Newest first
	first, ok := items[0].(map[string]any)
	if !ok {
		t.Fatal("Expected activity objects as items")
	}
	if first["type"] != "Create" {
		t.Errorf("Expected Create activities, got %v", first["type"])
	}
	if first["actor"] != actor.URI {
		t.Errorf("Expected actor %s, got %v", actor.URI, first["actor"])
	}
	note, ok := first["object"].(map[string]any)
	if !ok {
		t.Fatal("Expected an embedded note object")
	}
	newest := posts[len(posts)-1]
	if note["id"] != newest.URI {
		t.Errorf("Expected newest post %s first, got %v", newest.URI, note["id"])
	}
}

func TestOutboxPagination(t *testing.T) {
	srv, router := newTestServer(t)
	_, actor := newWebAccount(t, srv, "alice", "password1")
	seedPublicPosts(t, srv, actor, outboxPageSize+1)

	w := doRequest(router, "GET", "/users/alice/outbox?page=1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var doc map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &doc); err != nil {
		t.Fatalf("Failed to decode page 1: %v", err)
	}

	items, _ := doc["orderedItems"].([]any)
	if len(items) != outboxPageSize {
		t.Errorf("Expected a full page of %d items, got %d", outboxPageSize, len(items))
	}
	outboxURI := actor.URI + "/outbox"
	if doc["next"] != outboxURI+"?page=2" {
		t.Errorf("Expected next page link, got %v", doc["next"])
	}
	if _, present := doc["prev"]; present {
		t.Error("Page 1 should not link to a previous page")
	}

	w = doRequest(router, "GET", "/users/alice/outbox?page=2", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	doc = map[string]any{}
	if err := json.Unmarshal(w.Body.Bytes(), &doc); err != nil {
		t.Fatalf("Failed to decode page 2: %v", err)
	}

	items, _ = doc["orderedItems"].([]any)
	if len(items) != 1 {
		t.Errorf("Expected the leftover item on page 2, got %d", len(items))
	}
	if doc["prev"] != outboxURI+"?page=1" {
		t.Errorf("Expected prev page link, got %v", doc["prev"])
	}
	if _, present := doc["next"]; present {
		t.Error("The last page should not link to a next one")
	}
}

func TestOutboxSkipsNonPublicPosts(t *testing.T) {
	srv, router := newTestServer(t)
	_, actor := newWebAccount(t, srv, "alice", "password1")

	publicId := util.RandomString(16)
	post := &domain.Post{
		Id:        uuid.New(),
		PublicId:  publicId,
		URI:       srv.engine.PostURI(publicId),
		ActorId:   actor.Id,
		Content:   "followers only",
		Audience:  []string{srv.engine.FollowersURI("alice")},
		CreatedAt: time.Now(),
	}
	if err := srv.store.CreatePost(post); err != nil {
		t.Fatalf("Failed to store post: %v", err)
	}

	w := doRequest(router, "GET", "/users/alice/outbox", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var doc map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &doc); err != nil {
		t.Fatalf("Failed to decode outbox: %v", err)
	}
	if doc["totalItems"] != float64(0) {
		t.Errorf("Expected no public items, got %v", doc["totalItems"])
	}
}

func TestOutboxUnknownUser(t *testing.T) {
	_, router := newTestServer(t)

	w := doRequest(router, "GET", "/users/ghost/outbox", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestParsePageParam(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected int
	}{
		{"empty string", "", 0},
		{"valid page 1", "1", 1},
		{"valid page 5", "5", 5},
		{"invalid string", "abc", 0},
		{"negative number", "-1", 0},
		{"zero", "0", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ParsePageParam(tt.input)
			if result != tt.expected {
				t.Errorf("ParsePageParam(%q) = %d, want %d", tt.input, result, tt.expected)
			}
		})
	}
}
