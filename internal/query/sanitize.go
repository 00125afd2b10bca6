// Package query repairs per-platform search filter payloads so the upstream
// accepts them and returns non-empty results.
//
// DESIGN: rules are table-driven over the fixed platform set. YouTube has
// the strictest upstream validation and gets the full correction pass; other
// platforms only receive pagination and sort defaults. All rewriting is done
// surgically on the raw JSON body with sjson so unknown caller fields
// survive untouched.
package query

import (
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/creatorlens/creator-gateway/internal/config"
	"github.com/creatorlens/creator-gateway/internal/platform"
)

// allowedAgeBounds are the only age-bracket bounds the upstream accepts for
// its audience ageRange filter.
var allowedAgeBounds = map[int64]bool{18: true, 25: true, 35: true, 45: true, 65: true}

// unsupportedOperators are composite filter operator paths the strict
// platform rejects outright.
var unsupportedOperators = []string{
	"filter.influencer.textTags",
	"filter.influencer.audienceRelevance",
	"filter.audience.audienceTypes",
}

// relaxedStrips are the influencer-side filters dropped on the one-shot
// relaxed retry, together with the whole audience block.
var relaxedStrips = []string{
	"filter.influencer.growthRate",
	"filter.influencer.views",
	"filter.influencer.engagements",
	"filter.influencer.lastposted",
}

type rules func(body []byte, relaxed bool) []byte

var platformRules = map[platform.Platform]rules{
	platform.YouTube:   sanitizeYouTube,
	platform.Instagram: passthrough,
	platform.TikTok:    passthrough,
}

// Sanitize corrects a raw search body for the given platform. With
// relaxed=true it additionally loosens the filters; callers use that as a
// one-shot retry after an empty first result set.
func Sanitize(p platform.Platform, body []byte, relaxed bool) []byte {
	if len(body) == 0 {
		body = []byte(`{}`)
	}
	fix, ok := platformRules[p]
	if !ok {
		fix = passthrough
	}
	return applyDefaults(fix(body, relaxed))
}

func passthrough(body []byte, _ bool) []byte { return body }

func sanitizeYouTube(body []byte, relaxed bool) []byte {
	if relaxed {
		return relaxYouTube(body)
	}

	// Floor "days since last post": the upstream rejects anything under 30.
	if v := gjson.GetBytes(body, "filter.influencer.lastposted"); v.Exists() && v.Int() < config.MinLastPostedDays {
		body = setBytes(body, "filter.influencer.lastposted", config.MinLastPostedDays)
	}

	body = fixAudienceAge(body)

	for _, path := range unsupportedOperators {
		if gjson.GetBytes(body, path).Exists() {
			body = deleteBytes(body, path)
		}
	}
	return body
}

// fixAudienceAge enforces the upstream's two constraints on audience age
// filtering: the explicit range form wins when both shapes are present, and
// range bounds outside the allowed set drop the bracket rather than erroring.
func fixAudienceAge(body []byte) []byte {
	ageRange := gjson.GetBytes(body, "filter.audience.ageRange")
	ageList := gjson.GetBytes(body, "filter.audience.age")

	if ageRange.Exists() && ageList.Exists() {
		body = deleteBytes(body, "filter.audience.age")
	}

	if ageRange.Exists() {
		left := ageRange.Get("min")
		right := ageRange.Get("max")
		valid := left.Exists() && allowedAgeBounds[left.Int()] &&
			(!right.Exists() || allowedAgeBounds[right.Int()])
		if !valid {
			log.Debug().
				Int64("min", left.Int()).
				Int64("max", right.Int()).
				Msg("dropping out-of-range audience age bracket")
			body = deleteBytes(body, "filter.audience.ageRange")
		}
	}
	return body
}

// relaxYouTube trades filter precision for returning something at all:
// the audience block and the tight influencer-side filters are removed and
// the sort is forced to the neutral "most followers first".
func relaxYouTube(body []byte) []byte {
	body = deleteBytes(body, "filter.audience")
	for _, path := range relaxedStrips {
		body = deleteBytes(body, path)
	}
	body = setBytes(body, "sort.field", config.DefaultSortField)
	body = setBytes(body, "sort.direction", config.DefaultSortDirection)
	return body
}

// applyDefaults sets pagination start and sort when the caller omitted them.
func applyDefaults(body []byte) []byte {
	if !gjson.GetBytes(body, "page").Exists() {
		body = setBytes(body, "page", 0)
	}
	if !gjson.GetBytes(body, "sort.field").Exists() {
		body = setBytes(body, "sort.field", config.DefaultSortField)
		body = setBytes(body, "sort.direction", config.DefaultSortDirection)
	}
	return body
}

// setBytes and deleteBytes wrap sjson; rewrite failures keep the original
// body since a partially corrected filter is still better than none.
func setBytes(body []byte, path string, value any) []byte {
	out, err := sjson.SetBytes(body, path, value)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("filter rewrite failed")
		return body
	}
	return out
}

func deleteBytes(body []byte, path string) []byte {
	out, err := sjson.DeleteBytes(body, path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("filter strip failed")
		return body
	}
	return out
}
