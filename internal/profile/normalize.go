// Normalization of the upstream's inconsistent response shapes.
//
// DESIGN: the upstream nests the real profile under different keys depending
// on endpoint and platform generation (sometimes profile.profile, sometimes
// flat). Every field falls back nested-first independently; a single payload
// can mix both nestings. Missing fields normalize to absent, never to zero
// or empty-string placeholders.
package profile

import (
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/creatorlens/creator-gateway/internal/platform"
)

// nestPrefixes are probed in order for every report field.
var nestPrefixes = []string{"profile.profile.", "profile.", ""}

// Normalize maps a raw report payload into a CanonicalProfile. It is a pure
// function: the same payload always yields identical canonical output.
func Normalize(p platform.Platform, raw []byte) *CanonicalProfile {
	root := gjson.ParseBytes(raw)

	prof := &CanonicalProfile{
		Provider:       p,
		ExternalUserID: idStr(root, "userId", "userID", "id"),
		Username:       str(root, "username", "handle"),
		DisplayName:    str(root, "fullname", "fullName", "name"),
		Handle:         str(root, "handle", "username"),
		ProfileURL:     str(root, "url", "profileUrl", "channelUrl"),
		PictureURL:     str(root, "picture", "pictureUrl", "avatar"),

		FollowerCount:    num(root, "followers", "followersCount", "subscribers"),
		EngagementCount:  num(root, "engagements", "avgEngagements"),
		EngagementRate:   num(root, "engagementRate", "engagement_rate"),
		AverageViewCount: num(root, "avgViews", "averageViews"),

		IsVerified: flag(root, "isVerified", "verified"),
		IsPrivate:  flag(root, "isPrivate", "private"),

		City:     str(root, "city", "geo.city"),
		State:    str(root, "state", "geo.state"),
		Country:  str(root, "country", "geo.country"),
		Language: str(root, "language.name", "language"),
		AgeGroup: str(root, "ageGroup", "age_group"),
		Gender:   str(root, "gender"),

		ContentStats:   rawSection(root, "statsByContentType", "stats"),
		RecentPosts:    rawSection(root, "recentPosts"),
		PopularPosts:   rawSection(root, "popularPosts"),
		SponsoredPosts: rawSection(root, "sponsoredPosts"),
		Audience:       rawSection(root, "audience"),
	}

	if len(raw) > 0 {
		prof.ProviderRaw = append([]byte(nil), raw...)
	}
	if prof.Username == "" {
		prof.Username = platform.UsernameFromURL(p, prof.ProfileURL)
	}
	return prof
}

// candidateAliases lists the field aliasing conventions seen across the
// three platforms' search payloads.
var candidateAliases = struct {
	id, username, display, followers, er, engagements, views, picture, url, verified, private []string
}{
	id:          []string{"userId", "id", "channelId", "pk"},
	username:    []string{"username", "handle", "slug", "customUrl", "vanityUrl"},
	display:     []string{"fullname", "fullName", "name", "title", "displayName"},
	followers:   []string{"followers", "followersCount", "subscribers", "subscriberCount", "fans"},
	er:          []string{"engagementRate", "engagement_rate", "er"},
	engagements: []string{"engagements", "avgEngagements", "likes"},
	views:       []string{"avgViews", "averageViews", "views"},
	picture:     []string{"picture", "pictureUrl", "avatar", "avatarUrl", "thumbnail"},
	url:         []string{"url", "channelUrl", "profileUrl", "link"},
	verified:    []string{"isVerified", "verified"},
	private:     []string{"isPrivate", "private"},
}

// NormalizeCandidate maps one raw search hit into a SearchCandidate. Hits
// arrive either flat or nested under "profile".
func NormalizeCandidate(p platform.Platform, item gjson.Result) SearchCandidate {
	if nested := item.Get("profile"); nested.IsObject() {
		item = nested
	}

	c := SearchCandidate{
		Provider:       p,
		ExternalUserID: firstID(item, candidateAliases.id...),
		Username:       strings.TrimPrefix(firstString(item, candidateAliases.username...), "@"),
		DisplayName:    firstString(item, candidateAliases.display...),
		PictureURL:     firstString(item, candidateAliases.picture...),
		ProfileURL:     firstString(item, candidateAliases.url...),
	}

	if v := firstNumber(item, candidateAliases.followers...); v != nil {
		c.FollowerCount = *v
	}
	if v := firstNumber(item, candidateAliases.er...); v != nil {
		c.EngagementRate = *v
	}
	c.EngagementCount = firstNumber(item, candidateAliases.engagements...)
	c.AverageViewCount = firstNumber(item, candidateAliases.views...)

	if v := firstFlag(item, candidateAliases.verified...); v != nil {
		c.IsVerified = *v
	}
	if v := firstFlag(item, candidateAliases.private...); v != nil {
		c.IsPrivate = *v
	}

	// Last resort: derive the username from the platform's URL pattern.
	if c.Username == "" {
		c.Username = platform.UsernameFromURL(p, c.ProfileURL)
	}
	return c
}

// str probes every nesting prefix for each alias and returns the first
// non-empty string.
func str(root gjson.Result, aliases ...string) string {
	for _, alias := range aliases {
		for _, prefix := range nestPrefixes {
			v := root.Get(prefix + alias)
			if v.Type == gjson.String && v.Str != "" {
				return v.Str
			}
		}
	}
	return ""
}

// idStr probes like str but also accepts numeric identifiers, which some
// platform generations emit unquoted.
func idStr(root gjson.Result, aliases ...string) string {
	for _, alias := range aliases {
		for _, prefix := range nestPrefixes {
			v := root.Get(prefix + alias)
			switch v.Type {
			case gjson.String:
				if v.Str != "" {
					return v.Str
				}
			case gjson.Number:
				return strconv.FormatInt(v.Int(), 10)
			}
		}
	}
	return ""
}

// num probes like str but yields a parsed number, absent on failure.
func num(root gjson.Result, aliases ...string) *float64 {
	for _, alias := range aliases {
		for _, prefix := range nestPrefixes {
			if v := parseNumber(root.Get(prefix + alias)); v != nil {
				return v
			}
		}
	}
	return nil
}

// flag probes like str but yields a bool.
func flag(root gjson.Result, aliases ...string) *bool {
	for _, alias := range aliases {
		for _, prefix := range nestPrefixes {
			v := root.Get(prefix + alias)
			if v.Type == gjson.True || v.Type == gjson.False {
				b := v.Bool()
				return &b
			}
		}
	}
	return nil
}

// rawSection returns the raw JSON of the first present section.
func rawSection(root gjson.Result, aliases ...string) []byte {
	for _, alias := range aliases {
		for _, prefix := range nestPrefixes {
			v := root.Get(prefix + alias)
			if v.Exists() {
				return []byte(v.Raw)
			}
		}
	}
	return nil
}

func firstString(item gjson.Result, aliases ...string) string {
	for _, alias := range aliases {
		v := item.Get(alias)
		if v.Type == gjson.String && v.Str != "" {
			return v.Str
		}
	}
	return ""
}

func firstID(item gjson.Result, aliases ...string) string {
	for _, alias := range aliases {
		v := item.Get(alias)
		switch v.Type {
		case gjson.String:
			if v.Str != "" {
				return v.Str
			}
		case gjson.Number:
			return strconv.FormatInt(v.Int(), 10)
		}
	}
	return ""
}

func firstNumber(item gjson.Result, aliases ...string) *float64 {
	for _, alias := range aliases {
		if v := parseNumber(item.Get(alias)); v != nil {
			return v
		}
	}
	return nil
}

func firstFlag(item gjson.Result, aliases ...string) *bool {
	for _, alias := range aliases {
		v := item.Get(alias)
		if v.Type == gjson.True || v.Type == gjson.False {
			b := v.Bool()
			return &b
		}
	}
	return nil
}

// parseNumber coerces a JSON value to a number, yielding absent rather than
// NaN when the value is missing or unparseable. Plain numeric strings are
// accepted since some platform generations quote their counts; humanized
// forms like "3.1k" are not.
func parseNumber(v gjson.Result) *float64 {
	switch v.Type {
	case gjson.Number:
		f := v.Num
		return &f
	case gjson.String:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
		if err != nil {
			return nil
		}
		return &f
	default:
		return nil
	}
}
