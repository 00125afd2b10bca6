package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/creatorlens/creator-gateway/internal/config"
	"github.com/creatorlens/creator-gateway/internal/platform"
	"github.com/creatorlens/creator-gateway/internal/provider"
	"github.com/creatorlens/creator-gateway/internal/quota"
)

// Header names understood by the HTTP surface.
const (
	HeaderRequestID = "X-Request-ID"
	HeaderAccountID = "X-Account-ID"
)

// Routes registers the gateway's endpoints on mux.
func (g *Gateway) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", g.handleHealth)
	mux.HandleFunc("GET /v1/{platform}/users", g.handleLookup)
	mux.HandleFunc("POST /v1/search", g.handleSearch)
	mux.HandleFunc("GET /v1/{platform}/report/{id}", g.handleReport)
}

// handleHealth reports gateway health, pinging the cache store.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]any{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	}
	status := http.StatusOK
	if err := g.store.Ping(r.Context()); err != nil {
		health["status"] = "degraded"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, health)
}

func (g *Gateway) handleLookup(w http.ResponseWriter, r *http.Request) {
	requestID := getRequestID(r)
	p, ok := platform.Parse(r.PathValue("platform"))
	if !ok {
		g.writeError(w, requestID, &ValidationError{Message: "unsupported platform"})
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, _ = strconv.Atoi(v)
	}

	start := time.Now()
	candidates, err := g.LookupUsers(r.Context(), accountID(r), p, r.URL.Query().Get("query"), limit)
	if err != nil {
		g.writeError(w, requestID, err)
		return
	}

	log.Info().
		Str("request_id", requestID).
		Str("platform", p.String()).
		Int("results", len(candidates)).
		Dur("elapsed", time.Since(start)).
		Msg("lookup complete")
	writeJSON(w, http.StatusOK, map[string]any{"users": candidates})
}

func (g *Gateway) handleSearch(w http.ResponseWriter, r *http.Request) {
	requestID := getRequestID(r)
	r.Body = http.MaxBytesReader(w, r.Body, config.MaxRequestBodySize)

	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.writeError(w, requestID, &ValidationError{Message: "invalid request body"})
		return
	}

	start := time.Now()
	results, err := g.Search(r.Context(), accountID(r), req)
	if err != nil {
		g.writeError(w, requestID, err)
		return
	}

	log.Info().
		Str("request_id", requestID).
		Int("platforms", len(req.Platforms)).
		Int("results", len(results)).
		Dur("elapsed", time.Since(start)).
		Msg("search complete")
	writeJSON(w, http.StatusOK, map[string]any{"results": results, "total": len(results)})
}

func (g *Gateway) handleReport(w http.ResponseWriter, r *http.Request) {
	requestID := getRequestID(r)
	p, ok := platform.Parse(r.PathValue("platform"))
	if !ok {
		g.writeError(w, requestID, &ValidationError{Message: "unsupported platform"})
		return
	}

	q := r.URL.Query()
	opts := ReportOptions{
		ForceRefresh:      q.Get("forceRefresh") == "true",
		CalculationMethod: q.Get("calculationMethod"),
		LinkedEntityID:    q.Get("linkedEntityId"),
	}

	start := time.Now()
	prof, err := g.Report(r.Context(), accountID(r), p, r.PathValue("id"), opts)
	if err != nil {
		g.writeError(w, requestID, err)
		return
	}

	log.Info().
		Str("request_id", requestID).
		Str("platform", p.String()).
		Str("external_id", prof.ExternalUserID).
		Bool("force_refresh", opts.ForceRefresh).
		Dur("elapsed", time.Since(start)).
		Msg("report complete")
	writeJSON(w, http.StatusOK, prof)
}

// writeError maps an error to its HTTP status and JSON body. This is the
// only place error kinds turn into statuses.
func (g *Gateway) writeError(w http.ResponseWriter, requestID string, err error) {
	var (
		validation *ValidationError
		notFound   *NotFoundError
		exceeded   *quota.ExceededError
		rejected   *provider.RejectedError
		unavail    *provider.UnavailableError
		exhausted  *provider.CredentialExhaustedError
	)

	switch {
	case errors.As(err, &validation):
		writeErrorJSON(w, http.StatusBadRequest, "invalid_request", validation.Message, nil)
	case errors.As(err, &exceeded):
		writeErrorJSON(w, http.StatusTooManyRequests, "limit_reached", "plan limit reached", map[string]any{
			"limit":     exceeded.Limit,
			"used":      exceeded.Used,
			"requested": exceeded.Requested,
			"remaining": exceeded.Remaining,
		})
	case errors.As(err, &notFound):
		writeErrorJSON(w, http.StatusNotFound, "not_found", notFound.Message, nil)
	case errors.As(err, &exhausted):
		writeErrorJSON(w, http.StatusBadGateway, "upstream_auth_failed", exhausted.Error(), nil)
	case errors.As(err, &rejected):
		writeErrorJSON(w, rejected.Status, "upstream_rejected", rejected.Message, nil)
	case errors.As(err, &unavail):
		writeErrorJSON(w, provider.FallbackStatus, "upstream_unavailable", "upstream service unavailable", nil)
	default:
		log.Error().Err(err).Str("request_id", requestID).Msg("unhandled gateway error")
		writeErrorJSON(w, http.StatusInternalServerError, "internal_error", "internal error", nil)
	}
}

func writeErrorJSON(w http.ResponseWriter, status int, kind, message string, usage map[string]any) {
	body := map[string]any{
		"error": map[string]any{"type": kind, "message": message},
	}
	if usage != nil {
		body["usage"] = usage
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func getRequestID(r *http.Request) string {
	if id := r.Header.Get(HeaderRequestID); id != "" {
		return id
	}
	return uuid.New().String()
}

func accountID(r *http.Request) string {
	if id := r.Header.Get(HeaderAccountID); id != "" {
		return id
	}
	return "anonymous"
}
