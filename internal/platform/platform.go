// Package platform defines the fixed set of upstream platforms and the
// per-platform lookup tables shared by search, sanitization and
// normalization.
//
// DESIGN: per-platform behavior (URL shapes, result-bag keys, username
// extraction) is table-driven so adding a platform is additive.
package platform

import (
	"regexp"
	"strings"
)

// Platform identifies one of the provider's supported platforms.
type Platform string

const (
	Instagram Platform = "instagram"
	TikTok    Platform = "tiktok"
	YouTube   Platform = "youtube"
)

// All returns the supported platforms in a stable order.
func All() []Platform {
	return []Platform{Instagram, TikTok, YouTube}
}

// Parse returns the platform for s, or false when s is not supported.
func Parse(s string) (Platform, bool) {
	switch Platform(strings.ToLower(strings.TrimSpace(s))) {
	case Instagram:
		return Instagram, true
	case TikTok:
		return TikTok, true
	case YouTube:
		return YouTube, true
	}
	return "", false
}

func (p Platform) String() string { return string(p) }

// ResultBagKeys are the field names under which the upstream nests search
// hits, depending on endpoint and platform generation.
var ResultBagKeys = []string{
	"results", "items", "influencers", "directs", "lookalikes", "users", "channels",
}

// handlePathForms maps each platform to its canonical handle-path template.
var handlePathForms = map[Platform]string{
	Instagram: "instagram.com/%s",
	TikTok:    "tiktok.com/@%s",
	YouTube:   "youtube.com/@%s",
}

// HandlePath returns the canonical handle-path form of handle on p,
// e.g. "youtube.com/@somecreator". Used for URL-based match scoring.
func HandlePath(p Platform, handle string) string {
	form, ok := handlePathForms[p]
	if !ok {
		return handle
	}
	handle = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(handle)), "@")
	return strings.Replace(form, "%s", handle, 1)
}

var usernamePatterns = map[Platform]*regexp.Regexp{
	Instagram: regexp.MustCompile(`instagram\.com/([A-Za-z0-9._]+)`),
	TikTok:    regexp.MustCompile(`tiktok\.com/@([A-Za-z0-9._]+)`),
	YouTube:   regexp.MustCompile(`youtube\.com/(?:@|c/|channel/|user/)([A-Za-z0-9._\-]+)`),
}

// UsernameFromURL derives a username from a profile URL using the platform's
// URL pattern. Returns "" when the URL does not match.
func UsernameFromURL(p Platform, rawURL string) string {
	re, ok := usernamePatterns[p]
	if !ok || rawURL == "" {
		return ""
	}
	m := re.FindStringSubmatch(rawURL)
	if len(m) < 2 {
		return ""
	}
	return strings.ToLower(m[1])
}
