package activitypub

import (
	"bytes"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/anancus/anancus/domain"
)

func TestRelayToCommunity(t *testing.T) {
	e := newTestEngine(t)
	acc, alice := newTestAccount(t, e, "alice")
	group := newRemoteGroup(t, "meadow")

	doc := &Document{
		Context: apContext,
		ID:      "https://local.example/activities/relay-1",
		Type:    "Create",
		Actor:   alice.URI,
		To:      []string{domain.PublicAudience},
		Cc:      []string{group.URI()},
	}
	if err := e.RelayToCommunity(doc, acc, group.URI()); err != nil {
		t.Fatalf("RelayToCommunity failed: %v", err)
	}

	bodies := group.inboxBodies()
	if len(bodies) != 1 {
		t.Fatalf("Expected 1 relay delivery, got %d", len(bodies))
	}

	// The compact public spelling must be expanded on the wire
	if bytes.Contains(bodies[0], []byte(`"`+domain.PublicAudience+`"`)) {
		t.Error("Relayed body still carries the compact public audience")
	}
	if !bytes.Contains(bodies[0], []byte(domain.PublicAudienceExpanded)) {
		t.Error("Relayed body must carry the expanded public audience")
	}
	if !bytes.Contains(bodies[0], []byte(group.URI())) {
		t.Error("Relayed body must keep the community in cc")
	}
}

func TestRelayToNonGroup(t *testing.T) {
	e := newTestEngine(t)
	acc, alice := newTestAccount(t, e, "alice")
	peer := newRemotePeer(t, "bob")

	doc := &Document{Context: apContext, ID: "https://local.example/activities/relay-2", Type: "Create", Actor: alice.URI}
	err := e.RelayToCommunity(doc, acc, peer.URI())
	if err == nil {
		t.Fatal("Expected relaying to a Person to fail")
	}

	var relayErr *RelayError
	if !errors.As(err, &relayErr) {
		t.Fatalf("Expected a RelayError, got %T", err)
	}
	if relayErr.Community != peer.URI() {
		t.Errorf("Expected community %s in the error, got %s", peer.URI(), relayErr.Community)
	}
	if n := len(peer.inboxBodies()); n != 0 {
		t.Errorf("Expected nothing delivered, got %d", n)
	}
}

func TestRelayRejectedByCommunity(t *testing.T) {
	e := newTestEngine(t)
	acc, alice := newTestAccount(t, e, "alice")
	group := newRemoteGroup(t, "meadow")
	group.inboxStatus = http.StatusForbidden

	doc := &Document{Context: apContext, ID: "https://local.example/activities/relay-3", Type: "Create", Actor: alice.URI}
	err := e.RelayToCommunity(doc, acc, group.URI())
	if err == nil {
		t.Fatal("Expected the rejection to surface")
	}

	var relayErr *RelayError
	if !errors.As(err, &relayErr) {
		t.Fatalf("Expected a RelayError, got %T", err)
	}
	if relayErr.StatusCode != http.StatusForbidden {
		t.Errorf("Expected status 403 in the error, got %d", relayErr.StatusCode)
	}
	if !strings.Contains(relayErr.Error(), "403") {
		t.Errorf("Expected the status in the message, got %q", relayErr.Error())
	}
}

func TestRelayToUnknownCommunity(t *testing.T) {
	e := newTestEngine(t)
	acc, alice := newTestAccount(t, e, "alice")
	peer := newRemotePeer(t, "bob")

	doc := &Document{Context: apContext, ID: "https://local.example/activities/relay-4", Type: "Create", Actor: alice.URI}
	err := e.RelayToCommunity(doc, acc, peer.server.URL+"/users/missing")
	if err == nil {
		t.Fatal("Expected an unresolvable community to fail")
	}
	var relayErr *RelayError
	if !errors.As(err, &relayErr) {
		t.Fatalf("Expected a RelayError, got %T", err)
	}
}

func TestRelayErrorMessage(t *testing.T) {
	withErr := &RelayError{Community: "https://r.example/c/plants", Err: errors.New("boom")}
	if !strings.Contains(withErr.Error(), "boom") {
		t.Errorf("Expected the cause in the message, got %q", withErr.Error())
	}
	if !errors.Is(withErr, withErr.Err) {
		t.Error("Expected Unwrap to expose the cause")
	}

	withStatus := &RelayError{Community: "https://r.example/c/plants", StatusCode: 502}
	if !strings.Contains(withStatus.Error(), "502") {
		t.Errorf("Expected the status in the message, got %q", withStatus.Error())
	}
}
