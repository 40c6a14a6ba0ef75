package content

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/samber/lo"
)

// Extraction runs on the output of TextContent, so entities are already
// decoded. The prefix classes keep URL fragments ("/#section") and entity
// remnants ("&#39;") from reading as tags or mentions.
var (
	hashtagRe  = regexp.MustCompile(`(?:^|[^/\w&])#([\pL\pN_]+)`)
	mentionRe  = regexp.MustCompile(`(?:^|[^\w@])@([a-zA-Z0-9_]+)(?:@([a-zA-Z0-9.-]*[a-zA-Z0-9]))?`)
	firstURLRe = regexp.MustCompile(`https?://[^\s<>"']+`)
)

// Mention is a parsed @user or @user@domain reference. Domain is empty when
// the mention names a local user.
type Mention struct {
	Username string
	Domain   string
}

func (m Mention) Handle() string {
	if m.Domain == "" {
		return "@" + m.Username
	}
	return "@" + m.Username + "@" + m.Domain
}

// ExtractHashtags returns the lowercased, deduplicated hashtags of text.
// Purely numeric candidates are discarded; they are almost always leftover
// character references, never real tags.
func ExtractHashtags(text string) []string {
	matches := hashtagRe.FindAllStringSubmatch(text, -1)

	var tags []string
	for _, m := range matches {
		tag := m[1]
		if allDigits(tag) {
			continue
		}
		tags = append(tags, strings.ToLower(tag))
	}
	if len(tags) == 0 {
		return nil
	}
	return lo.Uniq(tags)
}

// ExtractMentions returns the deduplicated @user and @user@domain mentions
// of text.
func ExtractMentions(text string) []Mention {
	matches := mentionRe.FindAllStringSubmatch(text, -1)

	var mentions []Mention
	for _, m := range matches {
		mentions = append(mentions, Mention{
			Username: m[1],
			Domain:   strings.ToLower(m[2]),
		})
	}
	if len(mentions) == 0 {
		return nil
	}
	return lo.UniqBy(mentions, Mention.Handle)
}

// FirstURL returns the first http(s) URL in text, with trailing punctuation
// trimmed, or empty when there is none.
func FirstURL(text string) string {
	u := firstURLRe.FindString(text)
	return strings.TrimRight(u, ".,;:!?)")
}

func allDigits(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
