package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/lib/pq"
)

// ScraperStatus enumerates the scraper state machine (spec §4.L).
type ScraperStatus string

const (
	StatusConfigured ScraperStatus = "configured"
	StatusStarting   ScraperStatus = "starting"
	StatusRunning    ScraperStatus = "running"
	StatusStopped    ScraperStatus = "stopped"
	StatusFailed     ScraperStatus = "failed"
)

// ScraperConfig holds the per-scraper tunables named in spec §6
// Configuration. It lives inside the scraper record's JSONB config column,
// never as process-global state (spec §9 redesign note).
type ScraperConfig struct {
	PostsLimit          int            `json:"posts_limit"`
	SortLimits          map[string]int `json:"sort_limits"`
	SortingMethods      []string       `json:"sorting_methods"`
	IntervalSeconds     int            `json:"interval_seconds"`
	RotationDelaySecs   int            `json:"rotation_delay_seconds"`
	CommentBatch        int            `json:"comment_batch"`
	MaxCommentDepth     int            `json:"max_comment_depth"`
	MoreCommentsLimit   int            `json:"more_comments_limit"`
	MaxRetries          int            `json:"max_retries"`
	RetryBackoffFactor  float64        `json:"retry_backoff_factor"`
	TopTimeFilter       string         `json:"top_time_filter"`
	InitialTopTimeFilter string        `json:"initial_top_time_filter"`
	VerifyBeforeMarking bool           `json:"verify_before_marking"`
	AutoRestart         bool           `json:"auto_restart"`
}

// DefaultScraperConfig returns the defaults named throughout §4.
func DefaultScraperConfig() ScraperConfig {
	return ScraperConfig{
		PostsLimit:           100,
		SortLimits:           map[string]int{"new": 100, "top": 100, "rising": 25},
		SortingMethods:       []string{"new", "top", "rising"},
		IntervalSeconds:      300,
		RotationDelaySecs:    2,
		CommentBatch:         25,
		MaxCommentDepth:      3,
		MoreCommentsLimit:    0,
		MaxRetries:           3,
		RetryBackoffFactor:   2,
		TopTimeFilter:        "day",
		InitialTopTimeFilter: "month",
		VerifyBeforeMarking:  true,
		AutoRestart:          true,
	}
}

// ScraperMetrics is the rolling-stats shape persisted in the scraper record
// (spec §4.L) so the control plane can display without querying raw rows.
type ScraperMetrics struct {
	PostsPerHour      float64   `json:"posts_per_hour"`
	CommentsPerHour   float64   `json:"comments_per_hour"`
	AvgCycleDuration  float64   `json:"avg_cycle_duration_seconds"`
	LastCycleAt       time.Time `json:"last_cycle_at"`
	TotalCycles       int64     `json:"total_cycles"`
}

// ScraperRecord is the durable per-scraper record (spec §3).
type ScraperRecord struct {
	ID            string
	ScraperType   string // "posts" or "comments"
	Subreddits    []string
	PendingScrape []string
	Config        ScraperConfig
	Credentials   []byte // sealed opaque blob, see internal/credentials
	AccountName   string
	Status        ScraperStatus
	AutoRestart   bool
	RestartCount  int
	LastError     string
	ContainerID   string
	ContainerName string
	Metrics       ScraperMetrics
	LastUpdated   time.Time
}

// CreateScraper inserts a new scraper record. The primary subreddit (the
// scraper's own id) must already be present in subreddits — callers enforce
// this invariant before calling (spec §3 invariant).
func (s *Store) CreateScraper(ctx context.Context, r ScraperRecord) (err error) {
	defer func(start time.Time) { observe("create_scraper", start, err) }(time.Now())
	cfgJSON, err := json.Marshal(r.Config)
	if err != nil {
		return err
	}
	metricsJSON, err := json.Marshal(r.Metrics)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO scrapers (id, scraper_type, subreddits, pending_scrape, config, credentials, account_name, status, auto_restart, restart_count, metrics, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 0, $10, now())
	`, r.ID, r.ScraperType, pq.Array(r.Subreddits), pq.Array(r.PendingScrape), cfgJSON, r.Credentials, nullIfEmpty(r.AccountName), string(r.Status), r.AutoRestart, metricsJSON)
	return err
}

func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// LoadScraper is the `load(scraper_id) → ScraperRecord` operation (spec
// §4.D). Every operation against a scraper record starts here; the worker
// reloads at the start of every subreddit iteration so queue mutations
// apply within one rotation step.
func (s *Store) LoadScraper(ctx context.Context, id string) (r ScraperRecord, err error) {
	defer func(start time.Time) { observe("load_scraper", start, err) }(time.Now())

	var (
		cfgJSON, metricsJSON []byte
		accountName          sql.NullString
		lastError            sql.NullString
		containerID          sql.NullString
		containerName        sql.NullString
		status                string
	)
	err = s.db.QueryRowContext(ctx, `
		SELECT id, scraper_type, subreddits, pending_scrape, config, credentials, account_name,
		       status, auto_restart, restart_count, last_error, container_id, container_name, metrics, last_updated
		FROM scrapers WHERE id = $1
	`, id).Scan(
		&r.ID, &r.ScraperType, pq.Array(&r.Subreddits), pq.Array(&r.PendingScrape), &cfgJSON, &r.Credentials,
		&accountName, &status, &r.AutoRestart, &r.RestartCount, &lastError, &containerID, &containerName, &metricsJSON, &r.LastUpdated,
	)
	if err != nil {
		return r, err
	}
	r.Status = ScraperStatus(status)
	r.AccountName = accountName.String
	r.LastError = lastError.String
	r.ContainerID = containerID.String
	r.ContainerName = containerName.String
	if len(cfgJSON) > 0 {
		if jerr := json.Unmarshal(cfgJSON, &r.Config); jerr != nil {
			return r, jerr
		}
	}
	if len(metricsJSON) > 0 {
		if jerr := json.Unmarshal(metricsJSON, &r.Metrics); jerr != nil {
			return r, jerr
		}
	}
	return r, nil
}

// UpdateSubreddits replaces the subreddit list and recomputes
// pending_scrape diffs (spec §4.D): added subreddits join pending_scrape,
// removed ones are purged from it. This is the single atomic compare-and-set
// the Queue Mutation API's add/remove/replace operations all reduce to.
func (s *Store) UpdateSubreddits(ctx context.Context, scraperID string, newList []string) (err error) {
	defer func(start time.Time) { observe("update_subreddits", start, err) }(time.Now())

	tx, err := beginTx(ctx, s.db)
	if err != nil {
		return err
	}
	defer rollbackOnErr(tx, &err)

	var oldList []string
	if err = tx.QueryRowContext(ctx, `SELECT subreddits FROM scrapers WHERE id = $1 FOR UPDATE`, scraperID).Scan(pq.Array(&oldList)); err != nil {
		return err
	}

	oldSet := toSet(oldList)
	newSet := toSet(newList)
	added := diff(newSet, oldSet)
	removed := diff(oldSet, newSet)

	var pending []string
	if err = tx.QueryRowContext(ctx, `SELECT pending_scrape FROM scrapers WHERE id = $1`, scraperID).Scan(pq.Array(&pending)); err != nil {
		return err
	}
	pendingSet := toSet(pending)
	for _, a := range added {
		pendingSet[a] = struct{}{}
	}
	for _, r := range removed {
		delete(pendingSet, r)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE scrapers SET subreddits = $2, pending_scrape = $3, last_updated = now() WHERE id = $1
	`, scraperID, pq.Array(newList), pq.Array(setToSlice(pendingSet)))
	if err != nil {
		return err
	}
	return tx.Commit()
}

// MarkScraped removes a subreddit from pending_scrape (spec §4.D). Only the
// worker calls this, and it only ever removes — it never touches subreddits
// itself, so it commutes with the Queue Mutation API's writes (spec §5
// ordering guarantees).
func (s *Store) MarkScraped(ctx context.Context, scraperID, subreddit string) (err error) {
	defer func(start time.Time) { observe("mark_scraped", start, err) }(time.Now())
	_, err = s.db.ExecContext(ctx, `
		UPDATE scrapers SET pending_scrape = array_remove(pending_scrape, $2), last_updated = now()
		WHERE id = $1
	`, scraperID, subreddit)
	return err
}

// SetStatus updates status and, for failures, last_error (spec §4.D).
func (s *Store) SetStatus(ctx context.Context, scraperID string, status ScraperStatus, lastError string) (err error) {
	defer func(start time.Time) { observe("set_status", start, err) }(time.Now())
	_, err = s.db.ExecContext(ctx, `
		UPDATE scrapers SET status = $2, last_error = $3, last_updated = now() WHERE id = $1
	`, scraperID, string(status), nullIfEmpty(lastError))
	return err
}

// RecordCycle folds one cycle's counters into the scraper's rolling metrics
// (spec §4.D, §4.L) using a simple exponential moving average so recent
// cycles dominate without needing a separate windowing job.
func (s *Store) RecordCycle(ctx context.Context, scraperID string, postsDelta, commentsDelta int, duration time.Duration) (err error) {
	defer func(start time.Time) { observe("record_cycle", start, err) }(time.Now())

	tx, err := beginTx(ctx, s.db)
	if err != nil {
		return err
	}
	defer rollbackOnErr(tx, &err)

	var metricsJSON []byte
	if err = tx.QueryRowContext(ctx, `SELECT metrics FROM scrapers WHERE id = $1 FOR UPDATE`, scraperID).Scan(&metricsJSON); err != nil {
		return err
	}
	var m ScraperMetrics
	if len(metricsJSON) > 0 {
		if err = json.Unmarshal(metricsJSON, &m); err != nil {
			return err
		}
	}

	const alpha = 0.3
	postsPerHour := float64(postsDelta) * (3600 / duration.Seconds())
	commentsPerHour := float64(commentsDelta) * (3600 / duration.Seconds())
	if m.TotalCycles == 0 {
		m.PostsPerHour = postsPerHour
		m.CommentsPerHour = commentsPerHour
		m.AvgCycleDuration = duration.Seconds()
	} else {
		m.PostsPerHour = alpha*postsPerHour + (1-alpha)*m.PostsPerHour
		m.CommentsPerHour = alpha*commentsPerHour + (1-alpha)*m.CommentsPerHour
		m.AvgCycleDuration = alpha*duration.Seconds() + (1-alpha)*m.AvgCycleDuration
	}
	m.LastCycleAt = time.Now()
	m.TotalCycles++

	updated, err := json.Marshal(m)
	if err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `UPDATE scrapers SET metrics = $2, last_updated = now() WHERE id = $1`, scraperID, updated); err != nil {
		return err
	}
	return tx.Commit()
}

// SetContainerInfo is the Supervisor's exclusive write path for
// container_id/container_name (spec §4.H: "sole writer").
func (s *Store) SetContainerInfo(ctx context.Context, scraperID, containerID, containerName string) (err error) {
	defer func(start time.Time) { observe("set_container_info", start, err) }(time.Now())
	_, err = s.db.ExecContext(ctx, `
		UPDATE scrapers SET container_id = $2, container_name = $3, last_updated = now() WHERE id = $1
	`, scraperID, containerID, containerName)
	return err
}

// IncrementRestartCount is used by the Supervisor's auto-restart path.
func (s *Store) IncrementRestartCount(ctx context.Context, scraperID string) (err error) {
	defer func(start time.Time) { observe("increment_restart_count", start, err) }(time.Now())
	_, err = s.db.ExecContext(ctx, `
		UPDATE scrapers SET restart_count = restart_count + 1, last_updated = now() WHERE id = $1
	`, scraperID)
	return err
}

// DeleteScraper removes a scraper record (terminal state, spec §4.L).
func (s *Store) DeleteScraper(ctx context.Context, scraperID string) (err error) {
	defer func(start time.Time) { observe("delete_scraper", start, err) }(time.Now())
	_, err = s.db.ExecContext(ctx, `DELETE FROM scrapers WHERE id = $1`, scraperID)
	return err
}

// ListScrapers returns every scraper record, for GET /scrapers.
func (s *Store) ListScrapers(ctx context.Context) (records []ScraperRecord, err error) {
	defer func(start time.Time) { observe("list_scrapers", start, err) }(time.Now())
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM scrapers ORDER BY id`)
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err = rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return nil, err
	}

	for _, id := range ids {
		r, lerr := s.LoadScraper(ctx, id)
		if lerr != nil {
			err = lerr
			return nil, err
		}
		records = append(records, r)
	}
	return records, nil
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, i := range items {
		set[i] = struct{}{}
	}
	return set
}

func setToSlice(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}

// diff returns elements present in a but not in b.
func diff(a, b map[string]struct{}) []string {
	var out []string
	for k := range a {
		if _, ok := b[k]; !ok {
			out = append(out, k)
		}
	}
	return out
}
