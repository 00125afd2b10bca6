// Package config - defaults.go centralizes magic numbers and default values.
//
// DESIGN: All default values that appear in multiple places should be defined
// here. This makes configuration more maintainable and auditable.
package config

import "time"

// =============================================================================
// SERVER DEFAULTS
// =============================================================================

// DefaultServerPort is the HTTP listen port.
const DefaultServerPort = 8086

// DefaultServerReadTimeout for the HTTP server.
const DefaultServerReadTimeout = 30 * time.Second

// DefaultServerWriteTimeout for the HTTP server. Report payloads can be
// large, so this is generous.
const DefaultServerWriteTimeout = 2 * time.Minute

// =============================================================================
// UPSTREAM PROVIDER DEFAULTS
// =============================================================================

// DefaultProviderBaseURL is the production analytics provider base URL.
const DefaultProviderBaseURL = "https://api.discovery-provider.example.com/v1"

// DefaultProviderTimeout bounds a single upstream HTTP call. Report
// generation upstream can take tens of seconds.
const DefaultProviderTimeout = 60 * time.Second

// MaxResponseSize is the maximum allowed upstream response body (20MB).
// Full reports with audience breakdowns run to a few MB.
const MaxResponseSize = 20 * 1024 * 1024

// MaxRequestBodySize is the maximum allowed caller request body (1MB).
const MaxRequestBodySize = 1 * 1024 * 1024

// =============================================================================
// SEARCH AND SANITIZATION DEFAULTS
// =============================================================================

// DefaultResultLimit is the number of ranked candidates returned when the
// caller does not specify one.
const DefaultResultLimit = 20

// MaxLookupLimit caps the lightweight handle-search page size.
const MaxLookupLimit = 50

// MinLastPostedDays is the floor the upstream enforces for the
// "days since last post" filter on its strictest platform.
const MinLastPostedDays = 30

// DefaultSortField and DefaultSortDirection are applied when the caller
// omits a sort. "Most followers first" is the upstream's neutral order.
const (
	DefaultSortField     = "followers"
	DefaultSortDirection = "desc"
)

// =============================================================================
// CACHE DEFAULTS
// =============================================================================

// DefaultCachePath is the SQLite database file for the profile cache.
const DefaultCachePath = "creator-cache.db"

// DefaultBusyTimeout is how long SQLite waits on a locked database before
// failing. Concurrent report fetches write the same table.
const DefaultBusyTimeout = 5 * time.Second

// =============================================================================
// QUOTA DEFAULTS
// =============================================================================

// Default per-account quota limits. Real deployments configure these from
// the billing plan; the defaults keep a dev instance usable.
const (
	DefaultLookupLimit = 500
	DefaultSearchLimit = 250
	DefaultReportLimit = 100
)
