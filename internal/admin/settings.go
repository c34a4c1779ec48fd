// Package admin provides a tiny key/value settings store used by the
// Supervisor for fleet-wide toggles that are not part of any single
// scraper's config (spec §9 notes the scraper record owns per-tenant
// config; this is the smaller global complement).
package admin

import (
	"context"
	"database/sql"
	"strings"
)

// Get returns the value for a key or empty string if not set.
func Get(ctx context.Context, db *sql.DB, key string) (string, error) {
	var v string
	err := db.QueryRowContext(ctx, `SELECT value FROM service_settings WHERE key = $1`, key).Scan(&v)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", err
	}
	return v, nil
}

// Set sets the value for a key.
func Set(ctx context.Context, db *sql.DB, key, value string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO service_settings (key, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()
	`, key, strings.TrimSpace(value))
	return err
}

// GetBool reads a boolean with default if missing.
func GetBool(ctx context.Context, db *sql.DB, key string, def bool) (bool, error) {
	v, err := Get(ctx, db, key)
	if err != nil {
		return def, err
	}
	if v == "" {
		return def, nil
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	default:
		return def, nil
	}
}
