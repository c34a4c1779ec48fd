package store

import (
	"context"
	"database/sql"

	"github.com/onnwee/reddit-fleet/internal/admin"
)

// FleetPausedKey is the service_settings key the Supervisor checks before
// spawning or auto-restarting any worker (spec §9's global complement to
// per-scraper config).
const FleetPausedKey = "fleet_paused"

// settingsDB reports whether this Store's underlying DBTX can back
// internal/admin, which is written against *sql.DB directly.
func (s *Store) settingsDB() (*sql.DB, bool) {
	db, ok := s.db.(*sql.DB)
	return db, ok
}

// FleetPaused reports the fleet-wide pause toggle (spec §9). A Store built
// over a *sql.Tx rather than a *sql.DB reports false rather than failing,
// since settings are a best-effort fleet-wide check, not a per-transaction
// concern.
func (s *Store) FleetPaused(ctx context.Context) (bool, error) {
	db, ok := s.settingsDB()
	if !ok {
		return false, nil
	}
	return admin.GetBool(ctx, db, FleetPausedKey, false)
}

// SetFleetPaused flips the fleet-wide pause toggle (used by an operator-facing
// admin control, not by any automated path).
func (s *Store) SetFleetPaused(ctx context.Context, paused bool) error {
	db, ok := s.settingsDB()
	if !ok {
		return errNoTxSupport
	}
	value := "false"
	if paused {
		value = "true"
	}
	return admin.Set(ctx, db, FleetPausedKey, value)
}
