// Package search merges, scores and deduplicates candidates coming from one
// or more platform searches.
//
// DESIGN: scoring and the tie-break chain are pure functions over candidate
// pairs so the ranking is deterministic and order-independent. Deduplication
// is idempotent: running it on its own output yields the same set.
package search

import (
	"sort"
	"strings"

	"github.com/creatorlens/creator-gateway/internal/platform"
	"github.com/creatorlens/creator-gateway/internal/profile"
)

// Match scores for ScoreForQuery, strongest first.
const (
	scoreExactUsername    = 100
	scoreURLHandle        = 95
	scoreExactDisplayName = 90
	scoreUsernamePrefix   = 70
	scoreDisplayPrefix    = 60
	scoreUsernameSubstr   = 45
	scoreDisplaySubstr    = 35
	scoreFloor            = 10
)

// Scored pairs a candidate with its query score.
type Scored struct {
	Candidate profile.SearchCandidate `json:"candidate"`
	Score     int                     `json:"score"`
}

// ScoreForQuery scores a candidate against the query tokens, taking the
// maximum across tokens.
func ScoreForQuery(c profile.SearchCandidate, tokens []string) int {
	best := 0
	for _, token := range tokens {
		if s := scoreToken(c, token); s > best {
			best = s
		}
	}
	if best == 0 {
		best = scoreFloor
	}
	return best
}

func scoreToken(c profile.SearchCandidate, token string) int {
	token = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(token, "@")))
	if token == "" {
		return 0
	}
	username := strings.ToLower(c.Username)
	display := strings.ToLower(c.DisplayName)
	url := strings.ToLower(c.ProfileURL)

	switch {
	case username == token:
		return scoreExactUsername
	case url != "" && strings.Contains(url, platform.HandlePath(c.Provider, token)):
		return scoreURLHandle
	case display == token:
		return scoreExactDisplayName
	case username != "" && strings.HasPrefix(username, token):
		return scoreUsernamePrefix
	case display != "" && strings.HasPrefix(display, token):
		return scoreDisplayPrefix
	case username != "" && strings.Contains(username, token):
		return scoreUsernameSubstr
	case display != "" && strings.Contains(display, token):
		return scoreDisplaySubstr
	default:
		return scoreFloor
	}
}

// DedupeSearchItems collapses near-duplicate raw hits before scoring,
// grouping by (platform, externalUserId-or-username-or-url) and keeping the
// better of each pair.
func DedupeSearchItems(items []profile.SearchCandidate) []profile.SearchCandidate {
	byKey := make(map[string]profile.SearchCandidate, len(items))
	order := make([]string, 0, len(items))

	for _, item := range items {
		key := itemKey(item)
		existing, seen := byKey[key]
		if !seen {
			byKey[key] = item
			order = append(order, key)
			continue
		}
		byKey[key] = BetterSearchResult(existing, item)
	}

	out := make([]profile.SearchCandidate, 0, len(order))
	for _, key := range order {
		out = append(out, byKey[key])
	}
	return out
}

func itemKey(c profile.SearchCandidate) string {
	id := c.ExternalUserID
	if id == "" {
		id = strings.ToLower(c.Username)
	}
	if id == "" {
		id = strings.ToLower(c.ProfileURL)
	}
	return string(c.Provider) + "\x00" + id
}

// BetterSearchResult picks the better of two candidates for the same
// identity using a fixed tie-break chain: verified beats unverified, a
// resolved username beats none, then follower count, engagement rate,
// engagement count, profile URL presence, picture presence. On a full tie
// the first argument (first seen) wins, so the chain is total and the
// winner does not depend on argument order.
func BetterSearchResult(first, second profile.SearchCandidate) profile.SearchCandidate {
	if first.IsVerified != second.IsVerified {
		return pickIf(first.IsVerified, first, second)
	}
	if (first.Username != "") != (second.Username != "") {
		return pickIf(first.Username != "", first, second)
	}
	if first.FollowerCount != second.FollowerCount {
		return pickIf(first.FollowerCount > second.FollowerCount, first, second)
	}
	if first.EngagementRate != second.EngagementRate {
		return pickIf(first.EngagementRate > second.EngagementRate, first, second)
	}
	if ec1, ec2 := deref(first.EngagementCount), deref(second.EngagementCount); ec1 != ec2 {
		return pickIf(ec1 > ec2, first, second)
	}
	if (first.ProfileURL != "") != (second.ProfileURL != "") {
		return pickIf(first.ProfileURL != "", first, second)
	}
	if (first.PictureURL != "") != (second.PictureURL != "") {
		return pickIf(first.PictureURL != "", first, second)
	}
	return first
}

func pickIf(cond bool, a, b profile.SearchCandidate) profile.SearchCandidate {
	if cond {
		return a
	}
	return b
}

func deref(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}

// DedupeByBest groups scored candidates by (platform, lowercased username)
// and keeps the highest-scored candidate of each group.
func DedupeByBest(scored []Scored) []Scored {
	byKey := make(map[string]Scored, len(scored))
	order := make([]string, 0, len(scored))

	for _, s := range scored {
		name := strings.ToLower(s.Candidate.Username)
		if name == "" {
			name = strings.ToLower(s.Candidate.ProfileURL)
		}
		key := string(s.Candidate.Provider) + "\x00" + name

		existing, seen := byKey[key]
		if !seen || s.Score > existing.Score {
			if !seen {
				order = append(order, key)
			}
			byKey[key] = s
		}
	}

	out := make([]Scored, 0, len(order))
	for _, key := range order {
		out = append(out, byKey[key])
	}
	return out
}

// Rank orders scored candidates: score descending, verified first, follower
// count descending, then username ascending as the stable tie-break.
func Rank(scored []Scored) {
	sort.SliceStable(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Candidate.IsVerified != b.Candidate.IsVerified {
			return a.Candidate.IsVerified
		}
		if a.Candidate.FollowerCount != b.Candidate.FollowerCount {
			return a.Candidate.FollowerCount > b.Candidate.FollowerCount
		}
		return strings.ToLower(a.Candidate.Username) < strings.ToLower(b.Candidate.Username)
	})
}

// ExactOnly retains candidates whose username exactly equals a query token
// or whose URL contains the canonical handle form of a token.
func ExactOnly(scored []Scored, tokens []string) []Scored {
	out := scored[:0:0]
	for _, s := range scored {
		if matchesExact(s.Candidate, tokens) {
			out = append(out, s)
		}
	}
	return out
}

func matchesExact(c profile.SearchCandidate, tokens []string) bool {
	username := strings.ToLower(c.Username)
	url := strings.ToLower(c.ProfileURL)
	for _, token := range tokens {
		token = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(token, "@")))
		if token == "" {
			continue
		}
		if username == token {
			return true
		}
		if url != "" && strings.Contains(url, platform.HandlePath(c.Provider, token)) {
			return true
		}
	}
	return false
}

// Aggregate merges per-platform candidate lists into one ranked, deduped
// result set.
func Aggregate(byPlatform map[platform.Platform][]profile.SearchCandidate, tokens []string, exactOnly bool) []Scored {
	var merged []profile.SearchCandidate
	for _, p := range platform.All() {
		merged = append(merged, byPlatform[p]...)
	}
	merged = DedupeSearchItems(merged)

	scored := make([]Scored, 0, len(merged))
	for _, c := range merged {
		scored = append(scored, Scored{Candidate: c, Score: ScoreForQuery(c, tokens)})
	}

	scored = DedupeByBest(scored)
	if exactOnly {
		scored = ExactOnly(scored, tokens)
	}
	Rank(scored)
	return scored
}
