package store

import (
	"context"
	"time"
)

// Account is a reusable named credential set (spec §3 Account record).
// Credentials are stored already sealed by internal/credentials; the store
// never sees plaintext secrets.
type Account struct {
	AccountName string
	Credentials []byte
}

// UpsertAccount creates or replaces a named credential set.
func (s *Store) UpsertAccount(ctx context.Context, a Account) (err error) {
	defer func(start time.Time) { observe("upsert_account", start, err) }(time.Now())
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO accounts (account_name, credentials)
		VALUES ($1, $2)
		ON CONFLICT (account_name) DO UPDATE SET credentials = EXCLUDED.credentials
	`, a.AccountName, a.Credentials)
	return err
}

// LoadAccount resolves a named credential set for the Supervisor's Start
// operation (spec §4.H).
func (s *Store) LoadAccount(ctx context.Context, accountName string) (a Account, err error) {
	defer func(start time.Time) { observe("load_account", start, err) }(time.Now())
	a.AccountName = accountName
	err = s.db.QueryRowContext(ctx, `SELECT credentials FROM accounts WHERE account_name = $1`, accountName).Scan(&a.Credentials)
	return a, err
}

// ScrapersUsingAccount returns the derived index of which scrapers use a
// given account (spec §3: "derived index of which scrapers use it").
func (s *Store) ScrapersUsingAccount(ctx context.Context, accountName string) (ids []string, err error) {
	defer func(start time.Time) { observe("scrapers_using_account", start, err) }(time.Now())
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM scrapers WHERE account_name = $1`, accountName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err = rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
