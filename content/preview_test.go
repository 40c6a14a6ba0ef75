package content

import (
	"strings"
	"testing"
)

func TestParseLinkPreview(t *testing.T) {
	page := `<html><head>
		<title>Fallback Title</title>
		<meta property="og:title" content="An Article">
		<meta property="og:description" content="Something worth reading">
		<meta property="og:image" content="https://cdn.example.com/cover.png">
	</head><body></body></html>`

	p := ParseLinkPreview(strings.NewReader(page), "https://example.com/article")
	if p == nil {
		t.Fatal("Expected a preview, got nil")
	}
	if p.Title != "An Article" {
		t.Errorf("Expected og:title, got %q", p.Title)
	}
	if p.Description != "Something worth reading" {
		t.Errorf("Expected og:description, got %q", p.Description)
	}
	if p.ImageURL != "https://cdn.example.com/cover.png" {
		t.Errorf("Expected og:image, got %q", p.ImageURL)
	}
	if p.URL != "https://example.com/article" {
		t.Errorf("Expected page URL, got %q", p.URL)
	}
}

func TestParseLinkPreviewTitleFallback(t *testing.T) {
	page := `<html><head><title>Only A Title</title></head><body></body></html>`

	p := ParseLinkPreview(strings.NewReader(page), "https://example.com/")
	if p == nil {
		t.Fatal("Expected a preview, got nil")
	}
	if p.Title != "Only A Title" {
		t.Errorf("Expected title fallback, got %q", p.Title)
	}
}

func TestParseLinkPreviewNoTitle(t *testing.T) {
	page := `<html><head></head><body><p>nothing here</p></body></html>`

	if p := ParseLinkPreview(strings.NewReader(page), "https://example.com/"); p != nil {
		t.Errorf("Expected nil preview for page without title, got %+v", p)
	}
}

func TestParseLinkPreviewDropsPrivateImage(t *testing.T) {
	page := `<html><head>
		<meta property="og:title" content="Sneaky">
		<meta property="og:image" content="http://127.0.0.1/internal.png">
	</head></html>`

	p := ParseLinkPreview(strings.NewReader(page), "https://example.com/")
	if p == nil {
		t.Fatal("Expected a preview, got nil")
	}
	if p.ImageURL != "" {
		t.Errorf("Private image URL should be dropped, got %q", p.ImageURL)
	}
}

func TestDetectVideoEmbed(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		provider string
		embedURL string
	}{
		{
			name:     "youtube watch",
			url:      "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
			provider: "youtube",
			embedURL: "https://www.youtube-nocookie.com/embed/dQw4w9WgXcQ",
		},
		{
			name:     "youtube short link",
			url:      "https://youtu.be/dQw4w9WgXcQ",
			provider: "youtube",
			embedURL: "https://www.youtube-nocookie.com/embed/dQw4w9WgXcQ",
		},
		{
			name:     "vimeo",
			url:      "https://vimeo.com/123456",
			provider: "vimeo",
			embedURL: "https://player.vimeo.com/video/123456",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := DetectVideoEmbed(tt.url)
			if v == nil {
				t.Fatalf("Expected an embed for %s, got nil", tt.url)
			}
			if v.Provider != tt.provider {
				t.Errorf("Expected provider %s, got %s", tt.provider, v.Provider)
			}
			if v.EmbedURL != tt.embedURL {
				t.Errorf("Expected embed URL %s, got %s", tt.embedURL, v.EmbedURL)
			}
		})
	}
}

func TestDetectVideoEmbedRejectsOthers(t *testing.T) {
	urls := []string{
		"https://example.com/watch?v=abc",
		"https://www.youtube.com/playlist?list=xyz",
		"https://vimeo.com/about",
		"not a url",
	}

	for _, u := range urls {
		if v := DetectVideoEmbed(u); v != nil {
			t.Errorf("Expected nil embed for %s, got %+v", u, v)
		}
	}
}
