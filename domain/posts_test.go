package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestPostIsPublic(t *testing.T) {
	tests := []struct {
		name     string
		audience []string
		want     bool
	}{
		{"compact public", []string{PublicAudience}, true},
		{"expanded public", []string{PublicAudienceExpanded}, true},
		{"public in cc position", []string{"https://example.com/users/a/followers", PublicAudience}, true},
		{"followers only", []string{"https://example.com/users/a/followers"}, false},
		{"empty audience", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Post{Audience: tt.audience}
			if got := p.IsPublic(); got != tt.want {
				t.Errorf("IsPublic() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPostToString(t *testing.T) {
	id := uuid.New()
	p := &Post{
		Id:        id,
		PublicId:  "a1b2c3d4e5f60708",
		URI:       "https://example.com/posts/a1b2c3d4e5f60708",
		CreatedAt: time.Now(),
	}

	result := p.ToString()

	if !strings.Contains(result, id.String()) {
		t.Errorf("ToString() should contain ID, got: %s", result)
	}
	if !strings.Contains(result, "a1b2c3d4e5f60708") {
		t.Errorf("ToString() should contain public id, got: %s", result)
	}
}

func TestFollowIsAccepted(t *testing.T) {
	pending := Follow{Status: FollowPending}
	if pending.IsAccepted() {
		t.Error("Pending follow should not be accepted")
	}

	accepted := Follow{Status: FollowAccepted}
	if !accepted.IsAccepted() {
		t.Error("Accepted follow should be accepted")
	}
}

func TestPostWithNilEditedAt(t *testing.T) {
	p := Post{
		Id:        uuid.New(),
		PublicId:  "deadbeef00112233",
		CreatedAt: time.Now(),
		EditedAt:  nil,
	}

	if p.EditedAt != nil {
		t.Error("Expected EditedAt to be nil")
	}
}
