// Package profile holds the canonical creator model and the normalization
// of the upstream's divergent response shapes into it.
//
// FILES:
//   - types.go:     CanonicalProfile and SearchCandidate
//   - normalize.go: report and search-hit normalization
package profile

import (
	"encoding/json"

	"github.com/creatorlens/creator-gateway/internal/platform"
)

// CanonicalProfile is the normalized representation of one creator on one
// platform. Missing upstream fields stay absent (nil pointers, empty
// strings) so merges never overwrite known values with false defaults.
type CanonicalProfile struct {
	Provider platform.Platform `json:"provider"`
	// ExternalUserID is the provider's stable identifier. May be absent on
	// legacy records.
	ExternalUserID string `json:"externalUserId,omitempty"`
	// LinkedEntityID ties the record to an internal creator account.
	// Absence means pure cache, unlinked.
	LinkedEntityID string `json:"linkedEntityId,omitempty"`

	Username    string `json:"username,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	Handle      string `json:"handle,omitempty"`
	ProfileURL  string `json:"profileUrl,omitempty"`
	PictureURL  string `json:"pictureUrl,omitempty"`

	FollowerCount    *float64 `json:"followerCount,omitempty"`
	EngagementCount  *float64 `json:"engagementCount,omitempty"`
	EngagementRate   *float64 `json:"engagementRate,omitempty"`
	AverageViewCount *float64 `json:"averageViewCount,omitempty"`

	IsVerified *bool `json:"isVerified,omitempty"`
	IsPrivate  *bool `json:"isPrivate,omitempty"`

	City     string `json:"city,omitempty"`
	State    string `json:"state,omitempty"`
	Country  string `json:"country,omitempty"`
	Language string `json:"language,omitempty"`
	AgeGroup string `json:"ageGroup,omitempty"`
	Gender   string `json:"gender,omitempty"`

	ContentStats   json.RawMessage `json:"contentStats,omitempty"`
	RecentPosts    json.RawMessage `json:"recentPosts,omitempty"`
	PopularPosts   json.RawMessage `json:"popularPosts,omitempty"`
	SponsoredPosts json.RawMessage `json:"sponsoredPosts,omitempty"`
	Audience       json.RawMessage `json:"audience,omitempty"`

	// ProviderRaw preserves the untouched upstream payload for
	// forward-compatibility and audit.
	ProviderRaw json.RawMessage `json:"providerRaw,omitempty"`
}

// SearchCandidate is a lightweight normalized search hit. Constructed per
// request, never persisted.
type SearchCandidate struct {
	Provider       platform.Platform `json:"provider"`
	ExternalUserID string            `json:"externalUserId,omitempty"`
	Username       string            `json:"username,omitempty"`
	DisplayName    string            `json:"displayName,omitempty"`

	FollowerCount    float64  `json:"followerCount"`
	EngagementRate   float64  `json:"engagementRate"`
	EngagementCount  *float64 `json:"engagementCount,omitempty"`
	AverageViewCount *float64 `json:"averageViewCount,omitempty"`

	PictureURL string `json:"pictureUrl,omitempty"`
	ProfileURL string `json:"profileUrl,omitempty"`

	IsVerified bool `json:"isVerified"`
	IsPrivate  bool `json:"isPrivate"`
}

// Merge overlays src onto dst field by field, last write wins, except for
// identity and link fields which are preserved once set. Returns dst.
func Merge(dst, src *CanonicalProfile) *CanonicalProfile {
	if src == nil {
		return dst
	}
	// Identity/link fields: keep whichever is already correct rather than
	// blindly overwriting with potentially-absent new values.
	if dst.ExternalUserID == "" {
		dst.ExternalUserID = src.ExternalUserID
	}
	if dst.LinkedEntityID == "" {
		dst.LinkedEntityID = src.LinkedEntityID
	}
	if src.Provider != "" {
		dst.Provider = src.Provider
	}

	setString(&dst.Username, src.Username)
	setString(&dst.DisplayName, src.DisplayName)
	setString(&dst.Handle, src.Handle)
	setString(&dst.ProfileURL, src.ProfileURL)
	setString(&dst.PictureURL, src.PictureURL)
	setString(&dst.City, src.City)
	setString(&dst.State, src.State)
	setString(&dst.Country, src.Country)
	setString(&dst.Language, src.Language)
	setString(&dst.AgeGroup, src.AgeGroup)
	setString(&dst.Gender, src.Gender)

	setFloat(&dst.FollowerCount, src.FollowerCount)
	setFloat(&dst.EngagementCount, src.EngagementCount)
	setFloat(&dst.EngagementRate, src.EngagementRate)
	setFloat(&dst.AverageViewCount, src.AverageViewCount)

	setBool(&dst.IsVerified, src.IsVerified)
	setBool(&dst.IsPrivate, src.IsPrivate)

	setRaw(&dst.ContentStats, src.ContentStats)
	setRaw(&dst.RecentPosts, src.RecentPosts)
	setRaw(&dst.PopularPosts, src.PopularPosts)
	setRaw(&dst.SponsoredPosts, src.SponsoredPosts)
	setRaw(&dst.Audience, src.Audience)
	setRaw(&dst.ProviderRaw, src.ProviderRaw)

	return dst
}

func setString(dst *string, src string) {
	if src != "" {
		*dst = src
	}
}

func setFloat(dst **float64, src *float64) {
	if src != nil {
		*dst = src
	}
}

func setBool(dst **bool, src *bool) {
	if src != nil {
		*dst = src
	}
}

func setRaw(dst *json.RawMessage, src json.RawMessage) {
	if len(src) > 0 {
		*dst = src
	}
}
