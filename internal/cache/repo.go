// Package cache persists canonical profiles in SQLite, keyed by provider
// identity and tolerant of concurrent writers.
//
// DESIGN: exactly one record may exist per (provider, externalUserId) and
// per (provider, linkedEntityId); both constraints live as partial UNIQUE
// indexes so a record can satisfy either or both. Two concurrent fetches for
// the same identity can race past the not-found check simultaneously, so a
// uniqueness violation on insert is an expected outcome: we re-read once,
// merge into the now-visible row and persist. A second conflict after an
// authoritative re-read indicates a broken invariant and is surfaced.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/creatorlens/creator-gateway/internal/config"
	"github.com/creatorlens/creator-gateway/internal/platform"
	"github.com/creatorlens/creator-gateway/internal/profile"
)

const schema = `
CREATE TABLE IF NOT EXISTS creator_profiles (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	provider         TEXT NOT NULL,
	external_user_id TEXT,
	linked_entity_id TEXT,
	payload          TEXT NOT NULL,
	created_at       TIMESTAMP NOT NULL,
	updated_at       TIMESTAMP NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS ux_profiles_provider_external
	ON creator_profiles(provider, external_user_id)
	WHERE external_user_id IS NOT NULL;
CREATE UNIQUE INDEX IF NOT EXISTS ux_profiles_provider_entity
	ON creator_profiles(provider, linked_entity_id)
	WHERE linked_entity_id IS NOT NULL;
`

// Repo is the SQLite-backed profile cache.
type Repo struct {
	db *sql.DB
}

// Open opens (and migrates) the cache database at path.
func Open(path string) (*Repo, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening cache db: %w", err)
	}
	busyMs := config.DefaultBusyTimeout.Milliseconds()
	for _, pragma := range []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", busyMs),
		"PRAGMA journal_mode = WAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("configuring cache db: %w", err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrating cache db: %w", err)
	}
	return &Repo{db: db}, nil
}

// Close closes the underlying database.
func (r *Repo) Close() error { return r.db.Close() }

// Ping verifies the store is reachable, for health checks.
func (r *Repo) Ping(ctx context.Context) error { return r.db.PingContext(ctx) }

// UpsertOpts carries the caller-side identifiers that feed the fallback
// lookup during an upsert.
type UpsertOpts struct {
	// RequestedID is the identifier the caller originally used (e.g. a
	// handle later resolved to a numeric id). Records created before the
	// identity was fully known are still discoverable through it.
	RequestedID string
}

// lookupStrategy is one step of the ordered multi-key fallback. Strategies
// are an explicit list, tried in sequence, so each is testable on its own.
type lookupStrategy struct {
	name   string
	column string
	value  string
}

func strategies(provider platform.Platform, externalID, requestedID, linkedEntityID string) []lookupStrategy {
	var out []lookupStrategy
	if externalID != "" {
		out = append(out, lookupStrategy{"canonical-id", "external_user_id", externalID})
	}
	if requestedID != "" && requestedID != externalID {
		out = append(out, lookupStrategy{"requested-id", "external_user_id", requestedID})
	}
	if linkedEntityID != "" {
		out = append(out, lookupStrategy{"linked-entity", "linked_entity_id", linkedEntityID})
	}
	return out
}

// Find retrieves a cached profile using the fallback order: canonical
// external id, then the caller's original identifier, then the internal
// entity link. Returns nil (no error) when nothing matches.
func (r *Repo) Find(ctx context.Context, provider platform.Platform, externalID, requestedID, linkedEntityID string) (*profile.CanonicalProfile, error) {
	row, err := r.findRow(ctx, provider, externalID, requestedID, linkedEntityID)
	if err != nil || row == nil {
		return nil, err
	}
	return row.profile()
}

type storedRow struct {
	id             int64
	provider       string
	externalUserID sql.NullString
	linkedEntityID sql.NullString
	payload        []byte
}

func (s *storedRow) profile() (*profile.CanonicalProfile, error) {
	var p profile.CanonicalProfile
	if err := json.Unmarshal(s.payload, &p); err != nil {
		return nil, fmt.Errorf("decoding cached profile %d: %w", s.id, err)
	}
	// Identity columns are authoritative over the serialized payload.
	if s.externalUserID.Valid {
		p.ExternalUserID = s.externalUserID.String
	}
	if s.linkedEntityID.Valid {
		p.LinkedEntityID = s.linkedEntityID.String
	}
	p.Provider = platform.Platform(s.provider)
	return &p, nil
}

func (r *Repo) findRow(ctx context.Context, provider platform.Platform, externalID, requestedID, linkedEntityID string) (*storedRow, error) {
	for _, strat := range strategies(provider, externalID, requestedID, linkedEntityID) {
		query := fmt.Sprintf(
			`SELECT id, provider, external_user_id, linked_entity_id, payload
			 FROM creator_profiles WHERE provider = ? AND %s = ?`, strat.column)

		var row storedRow
		err := r.db.QueryRowContext(ctx, query, string(provider), strat.value).Scan(
			&row.id, &row.provider, &row.externalUserID, &row.linkedEntityID, &row.payload)
		switch {
		case err == nil:
			log.Debug().Str("strategy", strat.name).Str("provider", string(provider)).Msg("cache hit")
			return &row, nil
		case errors.Is(err, sql.ErrNoRows):
			continue
		default:
			return nil, fmt.Errorf("cache lookup (%s): %w", strat.name, err)
		}
	}
	return nil, nil
}

// Upsert merges p into an existing record located via the fallback order, or
// inserts a new one. On a uniqueness-constraint race it re-reads once and
// merges into the winner's row; that path must never surface to a caller.
func (r *Repo) Upsert(ctx context.Context, p *profile.CanonicalProfile, opts UpsertOpts) (*profile.CanonicalProfile, error) {
	existing, err := r.findRow(ctx, p.Provider, p.ExternalUserID, opts.RequestedID, p.LinkedEntityID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return r.mergeInto(ctx, existing, p)
	}

	if err := r.insert(ctx, p); err == nil {
		return p, nil
	} else if !isUniqueViolation(err) {
		return nil, err
	}

	// Lost the insert race: the other writer's row is visible now.
	existing, err = r.findRow(ctx, p.Provider, p.ExternalUserID, opts.RequestedID, p.LinkedEntityID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("cache upsert: conflict on insert but no row visible for %s/%s", p.Provider, p.ExternalUserID)
	}
	return r.mergeInto(ctx, existing, p)
}

func (r *Repo) insert(ctx context.Context, p *profile.CanonicalProfile) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding profile: %w", err)
	}
	now := time.Now().UTC()
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO creator_profiles (provider, external_user_id, linked_entity_id, payload, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		string(p.Provider), nullable(p.ExternalUserID), nullable(p.LinkedEntityID), payload, now, now)
	return err
}

func (r *Repo) mergeInto(ctx context.Context, row *storedRow, fresh *profile.CanonicalProfile) (*profile.CanonicalProfile, error) {
	current, err := row.profile()
	if err != nil {
		return nil, err
	}

	// A record must never be re-linked to a different internal entity.
	if current.LinkedEntityID != "" && fresh.LinkedEntityID != "" &&
		current.LinkedEntityID != fresh.LinkedEntityID {
		log.Warn().
			Str("provider", string(current.Provider)).
			Str("existing_entity", current.LinkedEntityID).
			Str("new_entity", fresh.LinkedEntityID).
			Msg("refusing to relink cached profile to a different entity")
		fresh = cloneWithoutLink(fresh)
	}

	merged := profile.Merge(current, fresh)
	payload, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("encoding merged profile: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`UPDATE creator_profiles
		 SET external_user_id = ?, linked_entity_id = ?, payload = ?, updated_at = ?
		 WHERE id = ?`,
		nullable(merged.ExternalUserID), nullable(merged.LinkedEntityID), payload, time.Now().UTC(), row.id)
	if err != nil {
		return nil, fmt.Errorf("updating cached profile %d: %w", row.id, err)
	}
	return merged, nil
}

func cloneWithoutLink(p *profile.CanonicalProfile) *profile.CanonicalProfile {
	c := *p
	c.LinkedEntityID = ""
	return &c
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// isUniqueViolation reports whether err is SQLite's unique-constraint error.
// The race between concurrent inserts is control flow here, not a crash.
func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}
	return false
}
