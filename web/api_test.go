package web

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
)

func TestRegisterAndAuthenticate(t *testing.T) {
	_, router := newTestServer(t)

	body, _ := json.Marshal(map[string]string{"username": "charlie", "password": "longenough1"})
	w := doRequest(router, "POST", "/api/register", body, asJSON)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp["username"] != "charlie" {
		t.Errorf("Expected username charlie, got %s", resp["username"])
	}
	if resp["actor"] != "https://"+testDomain+"/users/charlie" {
		t.Errorf("Unexpected actor URI %s", resp["actor"])
	}

	// The fresh credentials work against the API
	w = doRequest(router, "GET", "/api/timeline/home", nil, asUser("charlie", "longenough1"))
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200 with fresh credentials, got %d", w.Code)
	}
}

func TestRegisterValidation(t *testing.T) {
	srv, router := newTestServer(t)
	newWebAccount(t, srv, "alice", "password1")

	tests := []struct {
		name     string
		username string
		password string
		expected int
	}{
		{"short password", "dave", "short", http.StatusBadRequest},
		{"bad username", "no spaces", "longenough1", http.StatusBadRequest},
		{"empty username", "", "longenough1", http.StatusBadRequest},
		{"taken username", "alice", "longenough1", http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, _ := json.Marshal(map[string]string{"username": tt.username, "password": tt.password})
			w := doRequest(router, "POST", "/api/register", body, asJSON)
			if w.Code != tt.expected {
				t.Errorf("Expected status %d, got %d", tt.expected, w.Code)
			}
		})
	}
}

func TestRegisterClosedInstance(t *testing.T) {
	srv, router := newTestServer(t)
	srv.conf.Conf.Closed = true

	body, _ := json.Marshal(map[string]string{"username": "dave", "password": "longenough1"})
	w := doRequest(router, "POST", "/api/register", body, asJSON)
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected status 403 on a closed instance, got %d", w.Code)
	}
}

func TestComposeAndTimelines(t *testing.T) {
	srv, router := newTestServer(t)
	newWebAccount(t, srv, "alice", "password1")

	body, _ := json.Marshal(map[string]any{"content": "my first post"})
	w := doRequest(router, "POST", "/api/posts", body, asJSON, asUser("alice", "password1"))
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	var view postView
	if err := json.Unmarshal(w.Body.Bytes(), &view); err != nil {
		t.Fatalf("Failed to decode post: %v", err)
	}
	if view.PublicId == "" {
		t.Error("Expected a public id")
	}
	if view.Author != "@alice@"+testDomain {
		t.Errorf("Expected author @alice@%s, got %s", testDomain, view.Author)
	}
	if view.URI != srv.engine.PostURI(view.PublicId) {
		t.Errorf("Unexpected post URI %s", view.URI)
	}

	w = doRequest(router, "GET", "/api/timeline/local", nil, asUser("alice", "password1"))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var local []postView
	if err := json.Unmarshal(w.Body.Bytes(), &local); err != nil {
		t.Fatalf("Failed to decode timeline: %v", err)
	}
	if len(local) != 1 || local[0].PublicId != view.PublicId {
		t.Errorf("Expected the post on the local timeline, got %+v", local)
	}

	w = doRequest(router, "GET", "/api/timeline/home", nil, asUser("alice", "password1"))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var home []postView
	if err := json.Unmarshal(w.Body.Bytes(), &home); err != nil {
		t.Fatalf("Failed to decode timeline: %v", err)
	}
	if len(home) != 1 {
		t.Errorf("Expected own post on the home timeline, got %d posts", len(home))
	}
}

func TestComposeRejectsEmpty(t *testing.T) {
	srv, router := newTestServer(t)
	newWebAccount(t, srv, "alice", "password1")

	body, _ := json.Marshal(map[string]any{"content": "   "})
	w := doRequest(router, "POST", "/api/posts", body, asJSON, asUser("alice", "password1"))
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for an empty post, got %d", w.Code)
	}
}

func TestReplyAndThread(t *testing.T) {
	srv, router := newTestServer(t)
	newWebAccount(t, srv, "alice", "password1")
	newWebAccount(t, srv, "bob", "password2")

	body, _ := json.Marshal(map[string]any{"content": "thread root"})
	w := doRequest(router, "POST", "/api/posts", body, asJSON, asUser("alice", "password1"))
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d", w.Code)
	}
	var root postView
	json.Unmarshal(w.Body.Bytes(), &root)

	body, _ = json.Marshal(map[string]any{"content": "first reply", "reply_to": root.PublicId})
	w = doRequest(router, "POST", "/api/posts", body, asJSON, asUser("bob", "password2"))
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201 for the reply, got %d: %s", w.Code, w.Body.String())
	}
	var reply postView
	json.Unmarshal(w.Body.Bytes(), &reply)
	if reply.InReplyTo != root.PublicId {
		t.Errorf("Expected in_reply_to %s, got %s", root.PublicId, reply.InReplyTo)
	}

	w = doRequest(router, "GET", "/api/posts/"+root.PublicId+"/thread", nil, asUser("alice", "password1"))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var thread []postView
	if err := json.Unmarshal(w.Body.Bytes(), &thread); err != nil {
		t.Fatalf("Failed to decode thread: %v", err)
	}
	if len(thread) != 2 {
		t.Fatalf("Expected 2 posts in the thread, got %d", len(thread))
	}
	if thread[0].PublicId != root.PublicId {
		t.Errorf("Expected the root first, got %s", thread[0].PublicId)
	}
	if thread[1].PublicId != reply.PublicId {
		t.Errorf("Expected the reply second, got %s", thread[1].PublicId)
	}
	if thread[0].RepliesCount != 1 {
		t.Errorf("Expected replies_count 1 on the root, got %d", thread[0].RepliesCount)
	}

	// A reply to a post nobody stored is the caller's mistake
	body, _ = json.Marshal(map[string]any{"content": "orphan", "reply_to": "doesnotexist"})
	w = doRequest(router, "POST", "/api/posts", body, asJSON, asUser("bob", "password2"))
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for an unknown parent, got %d", w.Code)
	}
}

func TestLikeNotificationAndUndo(t *testing.T) {
	srv, router := newTestServer(t)
	newWebAccount(t, srv, "alice", "password1")
	newWebAccount(t, srv, "bob", "password2")

	body, _ := json.Marshal(map[string]any{"content": "like me"})
	w := doRequest(router, "POST", "/api/posts", body, asJSON, asUser("alice", "password1"))
	var post postView
	json.Unmarshal(w.Body.Bytes(), &post)

	w = doRequest(router, "POST", "/api/posts/"+post.PublicId+"/like", nil, asUser("bob", "password2"))
	if w.Code != http.StatusNoContent {
		t.Fatalf("Expected status 204, got %d: %s", w.Code, w.Body.String())
	}

	w = doRequest(router, "GET", "/api/posts/"+post.PublicId+"/thread", nil, asUser("bob", "password2"))
	var thread []postView
	json.Unmarshal(w.Body.Bytes(), &thread)
	if len(thread) != 1 || thread[0].LikesCount != 1 {
		t.Errorf("Expected likes_count 1, got %+v", thread)
	}

	w = doRequest(router, "GET", "/api/notifications", nil, asUser("alice", "password1"))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var notifications []notificationView
	if err := json.Unmarshal(w.Body.Bytes(), &notifications); err != nil {
		t.Fatalf("Failed to decode notifications: %v", err)
	}
	if len(notifications) != 1 {
		t.Fatalf("Expected 1 notification, got %d", len(notifications))
	}
	if notifications[0].Kind != "like" {
		t.Errorf("Expected a like notification, got %s", notifications[0].Kind)
	}
	if notifications[0].Actor != "@bob@"+testDomain {
		t.Errorf("Expected actor @bob@%s, got %s", testDomain, notifications[0].Actor)
	}
	if notifications[0].Post != post.PublicId {
		t.Errorf("Expected post %s, got %s", post.PublicId, notifications[0].Post)
	}

	// The undo takes the count and the notification with it
	w = doRequest(router, "DELETE", "/api/posts/"+post.PublicId+"/like", nil, asUser("bob", "password2"))
	if w.Code != http.StatusNoContent {
		t.Fatalf("Expected status 204, got %d", w.Code)
	}

	w = doRequest(router, "GET", "/api/posts/"+post.PublicId+"/thread", nil, asUser("bob", "password2"))
	thread = nil
	json.Unmarshal(w.Body.Bytes(), &thread)
	if len(thread) != 1 || thread[0].LikesCount != 0 {
		t.Errorf("Expected likes_count back at 0, got %+v", thread)
	}

	w = doRequest(router, "GET", "/api/notifications", nil, asUser("alice", "password1"))
	notifications = nil
	json.Unmarshal(w.Body.Bytes(), &notifications)
	if len(notifications) != 0 {
		t.Errorf("Expected the notification withdrawn, got %d", len(notifications))
	}
}

func TestBoostCounts(t *testing.T) {
	srv, router := newTestServer(t)
	newWebAccount(t, srv, "alice", "password1")
	newWebAccount(t, srv, "bob", "password2")

	body, _ := json.Marshal(map[string]any{"content": "boost me"})
	w := doRequest(router, "POST", "/api/posts", body, asJSON, asUser("alice", "password1"))
	var post postView
	json.Unmarshal(w.Body.Bytes(), &post)

	w = doRequest(router, "POST", "/api/posts/"+post.PublicId+"/boost", nil, asUser("bob", "password2"))
	if w.Code != http.StatusNoContent {
		t.Fatalf("Expected status 204, got %d: %s", w.Code, w.Body.String())
	}

	// A second boost by the same actor changes nothing
	w = doRequest(router, "POST", "/api/posts/"+post.PublicId+"/boost", nil, asUser("bob", "password2"))
	if w.Code != http.StatusNoContent {
		t.Fatalf("Expected status 204 on repeat, got %d", w.Code)
	}

	w = doRequest(router, "GET", "/api/posts/"+post.PublicId+"/thread", nil, asUser("bob", "password2"))
	var thread []postView
	json.Unmarshal(w.Body.Bytes(), &thread)
	if len(thread) != 1 || thread[0].BoostsCount != 1 {
		t.Errorf("Expected boosts_count 1, got %+v", thread)
	}

	w = doRequest(router, "DELETE", "/api/posts/"+post.PublicId+"/boost", nil, asUser("bob", "password2"))
	if w.Code != http.StatusNoContent {
		t.Fatalf("Expected status 204, got %d", w.Code)
	}

	w = doRequest(router, "GET", "/api/posts/"+post.PublicId+"/thread", nil, asUser("bob", "password2"))
	thread = nil
	json.Unmarshal(w.Body.Bytes(), &thread)
	if len(thread) != 1 || thread[0].BoostsCount != 0 {
		t.Errorf("Expected boosts_count back at 0, got %+v", thread)
	}
}

func TestFollowLocalUser(t *testing.T) {
	srv, router := newTestServer(t)
	newWebAccount(t, srv, "alice", "password1")
	newWebAccount(t, srv, "bob", "password2")

	body, _ := json.Marshal(map[string]string{"target": "alice"})
	w := doRequest(router, "POST", "/api/follow", body, asJSON, asUser("bob", "password2"))
	if w.Code != http.StatusNoContent {
		t.Fatalf("Expected status 204, got %d: %s", w.Code, w.Body.String())
	}

	w = doRequest(router, "GET", "/api/notifications", nil, asUser("alice", "password1"))
	var notifications []notificationView
	json.Unmarshal(w.Body.Bytes(), &notifications)
	if len(notifications) != 1 || notifications[0].Kind != "follow" {
		t.Fatalf("Expected a follow notification, got %+v", notifications)
	}

	// Alice's posts now reach bob's home timeline
	body, _ = json.Marshal(map[string]any{"content": "for my followers"})
	w = doRequest(router, "POST", "/api/posts", body, asJSON, asUser("alice", "password1"))
	var post postView
	json.Unmarshal(w.Body.Bytes(), &post)

	w = doRequest(router, "GET", "/api/timeline/home", nil, asUser("bob", "password2"))
	var home []postView
	json.Unmarshal(w.Body.Bytes(), &home)
	if len(home) != 1 || home[0].PublicId != post.PublicId {
		t.Errorf("Expected the followed user's post on the home timeline, got %+v", home)
	}

	body, _ = json.Marshal(map[string]string{"target": "alice"})
	w = doRequest(router, "POST", "/api/unfollow", body, asJSON, asUser("bob", "password2"))
	if w.Code != http.StatusNoContent {
		t.Fatalf("Expected status 204 on unfollow, got %d: %s", w.Code, w.Body.String())
	}

	w = doRequest(router, "GET", "/api/timeline/home", nil, asUser("bob", "password2"))
	home = nil
	json.Unmarshal(w.Body.Bytes(), &home)
	if len(home) != 0 {
		t.Errorf("Expected an empty home timeline after unfollow, got %d posts", len(home))
	}

	// Unfollowing again has nothing to remove
	w = doRequest(router, "POST", "/api/unfollow", body, asJSON, asUser("bob", "password2"))
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 when not following, got %d", w.Code)
	}
}

func TestFollowUnknownLocalUser(t *testing.T) {
	srv, router := newTestServer(t)
	newWebAccount(t, srv, "bob", "password2")

	body, _ := json.Marshal(map[string]string{"target": "ghost"})
	w := doRequest(router, "POST", "/api/follow", body, asJSON, asUser("bob", "password2"))
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for an unknown local user, got %d: %s", w.Code, w.Body.String())
	}

	body, _ = json.Marshal(map[string]string{"target": ""})
	w = doRequest(router, "POST", "/api/follow", body, asJSON, asUser("bob", "password2"))
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for an empty target, got %d", w.Code)
	}
}

func TestDeleteOwnPost(t *testing.T) {
	srv, router := newTestServer(t)
	newWebAccount(t, srv, "alice", "password1")
	newWebAccount(t, srv, "bob", "password2")

	body, _ := json.Marshal(map[string]any{"content": "soon gone"})
	w := doRequest(router, "POST", "/api/posts", body, asJSON, asUser("alice", "password1"))
	var post postView
	json.Unmarshal(w.Body.Bytes(), &post)

	// Only the author may delete
	w = doRequest(router, "DELETE", "/api/posts/"+post.PublicId, nil, asUser("bob", "password2"))
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for a foreign delete, got %d", w.Code)
	}

	w = doRequest(router, "DELETE", "/api/posts/"+post.PublicId, nil, asUser("alice", "password1"))
	if w.Code != http.StatusNoContent {
		t.Fatalf("Expected status 204, got %d: %s", w.Code, w.Body.String())
	}

	w = doRequest(router, "GET", "/posts/"+post.PublicId, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected the deleted post gone, got %d", w.Code)
	}

	w = doRequest(router, "DELETE", "/api/posts/"+post.PublicId, nil, asUser("alice", "password1"))
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for an unknown post, got %d", w.Code)
	}
}

func TestEditOwnPost(t *testing.T) {
	srv, router := newTestServer(t)
	newWebAccount(t, srv, "alice", "password1")
	newWebAccount(t, srv, "bob", "password2")

	body, _ := json.Marshal(map[string]any{"content": "first draft"})
	w := doRequest(router, "POST", "/api/posts", body, asJSON, asUser("alice", "password1"))
	var post postView
	json.Unmarshal(w.Body.Bytes(), &post)

	// Only the author may edit
	edit, _ := json.Marshal(map[string]any{"content": "hijacked"})
	w = doRequest(router, "PUT", "/api/posts/"+post.PublicId, edit, asJSON, asUser("bob", "password2"))
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for a foreign edit, got %d", w.Code)
	}

	edit, _ = json.Marshal(map[string]any{"content": "final version", "content_warning": "rewritten"})
	w = doRequest(router, "PUT", "/api/posts/"+post.PublicId, edit, asJSON, asUser("alice", "password1"))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var edited postView
	if err := json.Unmarshal(w.Body.Bytes(), &edited); err != nil {
		t.Fatalf("Failed to decode edited post: %v", err)
	}
	if edited.Content == post.Content || edited.ContentWarning != "rewritten" || !edited.Sensitive {
		t.Errorf("Expected the edit applied, got %+v", edited)
	}

	// The served document carries the new content and the edit time
	w = doRequest(router, "GET", "/posts/"+post.PublicId, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var doc map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &doc); err != nil {
		t.Fatalf("Failed to decode document: %v", err)
	}
	if content, _ := doc["content"].(string); !strings.Contains(content, "final version") {
		t.Errorf("Expected the edited content served, got %q", doc["content"])
	}
	if doc["updated"] == nil {
		t.Error("Expected an updated timestamp on the document")
	}
}

func TestUpdateProfile(t *testing.T) {
	srv, router := newTestServer(t)
	newWebAccount(t, srv, "alice", "password1")

	body, _ := json.Marshal(map[string]string{
		"display_name": "Alice of the Meadow",
		"summary":      "<p>botanist</p>",
		"avatar_url":   "https://cdn.example/alice.png",
	})
	w := doRequest(router, "PUT", "/api/profile", body, asJSON, asUser("alice", "password1"))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	w = doRequest(router, "GET", "/users/alice", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var doc map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &doc); err != nil {
		t.Fatalf("Failed to decode actor document: %v", err)
	}
	if doc["name"] != "Alice of the Meadow" {
		t.Errorf("Expected the display name served, got %v", doc["name"])
	}
	if summary, _ := doc["summary"].(string); !strings.Contains(summary, "botanist") {
		t.Errorf("Expected the summary served, got %v", doc["summary"])
	}
	icon, _ := doc["icon"].(map[string]any)
	if icon == nil || icon["url"] != "https://cdn.example/alice.png" {
		t.Errorf("Expected the avatar served, got %v", doc["icon"])
	}

	bad, _ := json.Marshal(map[string]string{"avatar_url": "javascript:alert(1)"})
	w = doRequest(router, "PUT", "/api/profile", bad, asJSON, asUser("alice", "password1"))
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for a bad avatar URL, got %d", w.Code)
	}
}

func TestSubmitRequiresCommunity(t *testing.T) {
	srv, router := newTestServer(t)
	newWebAccount(t, srv, "alice", "password1")

	body, _ := json.Marshal(map[string]any{"content": "for the community"})
	w := doRequest(router, "POST", "/api/posts", body, asJSON, asUser("alice", "password1"))
	var post postView
	json.Unmarshal(w.Body.Bytes(), &post)

	w = doRequest(router, "POST", "/api/posts/"+post.PublicId+"/submit", []byte("{}"), asJSON, asUser("alice", "password1"))
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 without a community, got %d", w.Code)
	}
}

func TestApiRequiresAuth(t *testing.T) {
	_, router := newTestServer(t)

	paths := []struct {
		method string
		path   string
	}{
		{"POST", "/api/posts"},
		{"GET", "/api/timeline/home"},
		{"GET", "/api/timeline/local"},
		{"GET", "/api/notifications"},
		{"POST", "/api/follow"},
	}

	for _, p := range paths {
		w := doRequest(router, p.method, p.path, []byte("{}"), asJSON)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("Expected status 401 for %s %s, got %d", p.method, p.path, w.Code)
		}
	}
}

func TestTimelineLimit(t *testing.T) {
	srv, router := newTestServer(t)
	_, actor := newWebAccount(t, srv, "alice", "password1")
	seedPublicPosts(t, srv, actor, 5)

	w := doRequest(router, "GET", "/api/timeline/local?limit=2", nil, asUser("alice", "password1"))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var posts []postView
	json.Unmarshal(w.Body.Bytes(), &posts)
	if len(posts) != 2 {
		t.Errorf("Expected 2 posts with limit=2, got %d", len(posts))
	}

	w = doRequest(router, "GET", "/api/timeline/local?limit=2&offset=4", nil, asUser("alice", "password1"))
	posts = nil
	json.Unmarshal(w.Body.Bytes(), &posts)
	if len(posts) != 1 {
		t.Errorf("Expected the leftover post at offset 4, got %d", len(posts))
	}
}
