package content

import (
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/anancus/anancus/domain"
	"github.com/anancus/anancus/util"
	"golang.org/x/net/html"
)

// Preview pages are read up to this cap; Open Graph tags sit in the head,
// anything past that is body we do not need.
const maxPreviewBytes = 256 * 1024

var (
	youtubeWatchRe = regexp.MustCompile(`^(?:www\.)?(?:youtube\.com)$`)
	vimeoIdRe      = regexp.MustCompile(`^/(\d+)$`)
)

// FetchLinkPreview fetches a page once and builds its preview card. The
// address guard runs first and every failure yields nil.
func FetchLinkPreview(client *http.Client, rawURL string) *domain.LinkPreview {
	if IsPrivateAddress(rawURL) {
		return nil
	}
	req, err := http.NewRequest(http.MethodGet, rawURL, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("Accept", "text/html")
	req.Header.Set("User-Agent", util.UserAgent())

	resp, err := client.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil
	}
	return ParseLinkPreview(io.LimitReader(resp.Body, maxPreviewBytes), rawURL)
}

// ParseLinkPreview reads an HTML document and builds a preview card from
// its Open Graph tags, falling back to <title>. Returns nil when the page
// offers no usable title.
func ParseLinkPreview(r io.Reader, pageURL string) *domain.LinkPreview {
	doc, err := html.Parse(r)
	if err != nil {
		return nil
	}

	meta := map[string]string{}
	var title string

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "meta":
				var prop, content string
				for _, a := range n.Attr {
					switch strings.ToLower(a.Key) {
					case "property", "name":
						prop = strings.ToLower(a.Val)
					case "content":
						content = a.Val
					}
				}
				if content != "" {
					if _, seen := meta[prop]; !seen {
						meta[prop] = content
					}
				}
			case "title":
				if title == "" && n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
					title = n.FirstChild.Data
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	p := &domain.LinkPreview{
		URL:         pageURL,
		Title:       strings.TrimSpace(meta["og:title"]),
		Description: strings.TrimSpace(meta["og:description"]),
		ImageURL:    strings.TrimSpace(meta["og:image"]),
	}

	if u := strings.TrimSpace(meta["og:url"]); u != "" {
		p.URL = u
	}
	if p.Title == "" {
		p.Title = strings.TrimSpace(title)
	}
	if p.Title == "" {
		return nil
	}

	// A preview image pointing into private space is dropped, the card
	// itself survives.
	if p.ImageURL != "" && IsPrivateAddress(p.ImageURL) {
		p.ImageURL = ""
	}

	p.Title = TruncateRunes(p.Title, domain.MaxDisplayNameLen)
	p.Description = TruncateRunes(p.Description, 500)

	return p
}

// DetectVideoEmbed maps URLs of known video hosts to their player URLs.
// Returns nil for everything else.
func DetectVideoEmbed(rawURL string) *domain.VideoEmbed {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}

	host := strings.ToLower(u.Hostname())

	switch {
	case youtubeWatchRe.MatchString(host):
		id := u.Query().Get("v")
		if u.Path != "/watch" || id == "" {
			return nil
		}
		return &domain.VideoEmbed{
			Provider: "youtube",
			EmbedURL: "https://www.youtube-nocookie.com/embed/" + url.PathEscape(id),
		}
	case host == "youtu.be":
		id := strings.TrimPrefix(u.Path, "/")
		if id == "" || strings.Contains(id, "/") {
			return nil
		}
		return &domain.VideoEmbed{
			Provider: "youtube",
			EmbedURL: "https://www.youtube-nocookie.com/embed/" + url.PathEscape(id),
		}
	case host == "vimeo.com" || host == "www.vimeo.com":
		m := vimeoIdRe.FindStringSubmatch(u.Path)
		if m == nil {
			return nil
		}
		return &domain.VideoEmbed{
			Provider: "vimeo",
			EmbedURL: "https://player.vimeo.com/video/" + m[1],
		}
	}

	return nil
}
