// Package gateway orchestrates creator lookups, discovery search and
// profile reports against the upstream analytics provider.
//
// DESIGN: Request flow per operation:
//   - quota check (collaborator) before any upstream call
//   - optional cache short-circuit (reports only)
//   - query sanitization (search only), then the provider client
//   - normalization into the canonical model
//   - best-effort cache upsert; write failures never fail the request
//
// FILES:
//   - gateway.go: façade operations (LookupUsers, Search, Report)
//   - handler.go: HTTP surface and error→status mapping
//   - errors.go:  gateway-level error kinds
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/creatorlens/creator-gateway/internal/cache"
	"github.com/creatorlens/creator-gateway/internal/config"
	"github.com/creatorlens/creator-gateway/internal/platform"
	"github.com/creatorlens/creator-gateway/internal/profile"
	"github.com/creatorlens/creator-gateway/internal/provider"
	"github.com/creatorlens/creator-gateway/internal/query"
	"github.com/creatorlens/creator-gateway/internal/quota"
	"github.com/creatorlens/creator-gateway/internal/search"
)

// Caller issues one upstream provider request. Satisfied by
// provider.Client; tests substitute fakes.
type Caller interface {
	Call(ctx context.Context, method, path string, q url.Values, body any) ([]byte, error)
}

// Store is the cache repository contract the gateway depends on.
type Store interface {
	Find(ctx context.Context, p platform.Platform, externalID, requestedID, linkedEntityID string) (*profile.CanonicalProfile, error)
	Upsert(ctx context.Context, prof *profile.CanonicalProfile, opts cache.UpsertOpts) (*profile.CanonicalProfile, error)
	Ping(ctx context.Context) error
}

// Gateway is the façade over the provider client, cache and quota service.
type Gateway struct {
	client  Caller
	store   Store
	quota   quota.Service
	allowed map[platform.Platform]bool
}

// New creates a Gateway.
func New(client Caller, store Store, quotaSvc quota.Service, allowed map[platform.Platform]bool) *Gateway {
	return &Gateway{
		client:  client,
		store:   store,
		quota:   quotaSvc,
		allowed: allowed,
	}
}

func (g *Gateway) checkPlatform(p platform.Platform) error {
	if !g.allowed[p] {
		return &ValidationError{Message: fmt.Sprintf("platform %q is not enabled", p)}
	}
	return nil
}

// LookupUsers performs the lightweight handle search on one platform.
func (g *Gateway) LookupUsers(ctx context.Context, accountID string, p platform.Platform, q string, limit int) ([]profile.SearchCandidate, error) {
	if err := g.checkPlatform(p); err != nil {
		return nil, err
	}
	if strings.TrimSpace(q) == "" {
		return nil, &ValidationError{Message: "query is required"}
	}
	if limit <= 0 || limit > config.MaxLookupLimit {
		limit = config.MaxLookupLimit
	}
	if _, err := g.quota.Ensure(ctx, accountID, quota.FeatureLookup, 1); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("query", q)
	params.Set("limit", strconv.Itoa(limit))

	raw, err := g.client.Call(ctx, http.MethodGet, "/"+p.String()+"/users", params, nil)
	if err != nil {
		return nil, err
	}

	candidates := extractCandidates(p, raw)
	if len(candidates) == 0 {
		return nil, &NotFoundError{Message: fmt.Sprintf("no users found for %q on %s", q, p)}
	}
	return candidates, nil
}

// Sort mirrors the upstream's sort object.
type Sort struct {
	Field     string `json:"field"`
	Direction string `json:"direction"`
}

// SearchRequest is a filter-based discovery request across platforms.
type SearchRequest struct {
	Platforms []platform.Platform `json:"platforms"`
	// Tokens are the query terms used for scoring and exact filtering.
	Tokens []string `json:"tokens"`
	// Filter is forwarded to the upstream after per-platform correction.
	Filter json.RawMessage `json:"filter,omitempty"`
	Page   int             `json:"page"`
	Sort   *Sort           `json:"sort,omitempty"`
	Exact  bool            `json:"exact"`
	Limit  int             `json:"limit"`
}

// SearchResult is one ranked search hit.
type SearchResult = search.Scored

// Search runs the filter search on each requested platform, then merges,
// dedupes and ranks the hits. An empty YouTube result set triggers exactly
// one relaxed retry with loosened filters; other platforms never retry.
func (g *Gateway) Search(ctx context.Context, accountID string, req SearchRequest) ([]SearchResult, error) {
	if len(req.Platforms) == 0 {
		return nil, &ValidationError{Message: "at least one platform is required"}
	}
	for _, p := range req.Platforms {
		if err := g.checkPlatform(p); err != nil {
			return nil, err
		}
	}
	if _, err := g.quota.Ensure(ctx, accountID, quota.FeatureSearch, len(req.Platforms)); err != nil {
		return nil, err
	}

	byPlatform := make(map[platform.Platform][]profile.SearchCandidate, len(req.Platforms))
	for _, p := range req.Platforms {
		candidates, err := g.searchPlatform(ctx, p, req)
		if err != nil {
			return nil, err
		}
		byPlatform[p] = candidates
	}

	ranked := search.Aggregate(byPlatform, req.Tokens, req.Exact)

	limit := req.Limit
	if limit <= 0 {
		limit = config.DefaultResultLimit
	}
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}

func (g *Gateway) searchPlatform(ctx context.Context, p platform.Platform, req SearchRequest) ([]profile.SearchCandidate, error) {
	body, err := buildSearchBody(req)
	if err != nil {
		return nil, err
	}

	sanitized := query.Sanitize(p, body, false)
	raw, err := g.client.Call(ctx, http.MethodPost, "/"+p.String()+"/search", nil, json.RawMessage(sanitized))
	if err != nil {
		return nil, err
	}
	candidates := extractCandidates(p, raw)

	// One-shot relaxed retry: only YouTube's validation is strict enough
	// that a plausible filter combination comes back empty.
	if len(candidates) == 0 && p == platform.YouTube {
		log.Info().Str("platform", p.String()).Msg("empty result set, retrying with relaxed filters")
		relaxed := query.Sanitize(p, body, true)
		raw, err = g.client.Call(ctx, http.MethodPost, "/"+p.String()+"/search", nil, json.RawMessage(relaxed))
		if err != nil {
			return nil, err
		}
		candidates = extractCandidates(p, raw)
	}
	return candidates, nil
}

func buildSearchBody(req SearchRequest) ([]byte, error) {
	payload := map[string]any{
		"page": req.Page,
	}
	if req.Sort != nil {
		payload["sort"] = req.Sort
	}
	if len(req.Filter) > 0 {
		payload["filter"] = req.Filter
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("building search body: %w", err)
	}
	return body, nil
}

// extractCandidates pulls search hits out of whichever result-bag field the
// upstream used and normalizes each.
func extractCandidates(p platform.Platform, raw []byte) []profile.SearchCandidate {
	if raw == nil {
		return nil
	}
	root := gjson.ParseBytes(raw)
	for _, key := range platform.ResultBagKeys {
		bag := root.Get(key)
		if !bag.IsArray() {
			continue
		}
		items := bag.Array()
		out := make([]profile.SearchCandidate, 0, len(items))
		for _, item := range items {
			out = append(out, profile.NormalizeCandidate(p, item))
		}
		return out
	}
	return nil
}

// ReportOptions tune a Report call.
type ReportOptions struct {
	// ForceRefresh bypasses the cache short-circuit and overwrites the
	// cached record's mutable fields.
	ForceRefresh bool
	// CalculationMethod is "median" (default) or "average".
	CalculationMethod string
	// LinkedEntityID ties the fetched profile to an internal creator
	// account.
	LinkedEntityID string
}

// Report returns the full profile report for one creator, serving from the
// cache when possible. Cache failures are absorbed: a lookup failure
// proceeds to a live fetch and a write failure still returns the fresh data.
func (g *Gateway) Report(ctx context.Context, accountID string, p platform.Platform, externalID string, opts ReportOptions) (*profile.CanonicalProfile, error) {
	if err := g.checkPlatform(p); err != nil {
		return nil, err
	}
	if strings.TrimSpace(externalID) == "" {
		return nil, &ValidationError{Message: "creator id is required"}
	}
	calc := opts.CalculationMethod
	if calc == "" {
		calc = "median"
	}
	if calc != "median" && calc != "average" {
		return nil, &ValidationError{Message: "calculationMethod must be median or average"}
	}

	if _, err := g.quota.Ensure(ctx, accountID, quota.FeatureReport, 1); err != nil {
		return nil, err
	}

	if !opts.ForceRefresh {
		cached, err := g.store.Find(ctx, p, externalID, "", opts.LinkedEntityID)
		if err != nil {
			log.Warn().Err(err).Str("platform", p.String()).Msg("cache lookup failed, fetching live")
		} else if cached != nil {
			return cached, nil
		}
	}

	params := url.Values{}
	params.Set("calculationMethod", calc)

	raw, err := g.client.Call(ctx, http.MethodGet, "/"+p.String()+"/profile/"+url.PathEscape(externalID)+"/report", params, nil)
	if err != nil {
		return nil, mapReportError(err, p, externalID)
	}

	prof := profile.Normalize(p, raw)
	if opts.LinkedEntityID != "" {
		prof.LinkedEntityID = opts.LinkedEntityID
	}

	if prof.ExternalUserID == "" {
		// Upstream omitted the stable identifier entirely; without it no
		// cache key invariant holds, so the fetch is returned uncached.
		log.Warn().
			Str("platform", p.String()).
			Str("requested_id", externalID).
			Msg("report has no resolvable external id, skipping cache")
		return prof, nil
	}

	stored, err := g.store.Upsert(ctx, prof, cache.UpsertOpts{RequestedID: externalID})
	if err != nil {
		log.Warn().Err(err).
			Str("platform", p.String()).
			Str("external_id", prof.ExternalUserID).
			Msg("cache write failed, returning fresh data")
		return prof, nil
	}
	return stored, nil
}

// mapReportError turns an upstream 404 into the gateway's NotFound.
func mapReportError(err error, p platform.Platform, externalID string) error {
	var rej *provider.RejectedError
	if errors.As(err, &rej) && rej.Status == http.StatusNotFound {
		return &NotFoundError{Message: fmt.Sprintf("no report for %s on %s", externalID, p)}
	}
	return err
}
