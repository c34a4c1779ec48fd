package store

// Schema is the DDL for the logical collections named in the external
// interfaces (posts, comments, subreddit_metadata, scrapers, accounts,
// errors, usage) plus the service_settings table used by internal/admin.
// It is applied once at process startup; there is no migration tool here,
// matching the teacher's habit of keeping schema next to the adapter that
// uses it rather than behind a generated client.
const Schema = `
CREATE TABLE IF NOT EXISTS subreddit_metadata (
	subreddit_name     TEXT PRIMARY KEY,
	title              TEXT,
	description        TEXT,
	subscribers        INTEGER,
	embedding_status   TEXT NOT NULL DEFAULT 'pending',
	last_updated       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS posts (
	post_id                    TEXT PRIMARY KEY,
	subreddit                  TEXT NOT NULL,
	title                      TEXT NOT NULL DEFAULT '',
	url                        TEXT NOT NULL DEFAULT '',
	selftext                   TEXT NOT NULL DEFAULT '',
	author                     TEXT NOT NULL DEFAULT '',
	score                      INTEGER NOT NULL DEFAULT 0,
	num_comments               INTEGER NOT NULL DEFAULT 0,
	created_at                 TIMESTAMPTZ NOT NULL,
	comments_scraped           BOOLEAN NOT NULL DEFAULT false,
	initial_comments_scraped   BOOLEAN NOT NULL DEFAULT false,
	last_comment_fetch_time    TIMESTAMPTZ,
	comments_scraped_at        TIMESTAMPTZ,
	updated_at                 TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_posts_subreddit ON posts (subreddit);
CREATE INDEX IF NOT EXISTS idx_posts_priority ON posts (initial_comments_scraped, num_comments DESC, created_at DESC);

CREATE TABLE IF NOT EXISTS comments (
	comment_id   TEXT PRIMARY KEY,
	post_id      TEXT NOT NULL REFERENCES posts (post_id),
	parent_id    TEXT,
	parent_type  TEXT NOT NULL DEFAULT 'post',
	depth        INTEGER NOT NULL DEFAULT 0,
	author       TEXT NOT NULL DEFAULT '',
	body         TEXT NOT NULL DEFAULT '',
	score        INTEGER NOT NULL DEFAULT 0,
	created_at   TIMESTAMPTZ NOT NULL,
	inserted_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_comments_post_id ON comments (post_id);
CREATE INDEX IF NOT EXISTS idx_comments_parent_id ON comments (parent_id);

CREATE TABLE IF NOT EXISTS accounts (
	account_name   TEXT PRIMARY KEY,
	credentials    BYTEA NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS scrapers (
	id                TEXT PRIMARY KEY,
	scraper_type      TEXT NOT NULL,
	subreddits        TEXT[] NOT NULL DEFAULT '{}',
	pending_scrape    TEXT[] NOT NULL DEFAULT '{}',
	config            JSONB NOT NULL DEFAULT '{}',
	credentials       BYTEA,
	account_name      TEXT REFERENCES accounts (account_name),
	status            TEXT NOT NULL DEFAULT 'configured',
	auto_restart      BOOLEAN NOT NULL DEFAULT true,
	restart_count     INTEGER NOT NULL DEFAULT 0,
	last_error        TEXT,
	container_id      TEXT,
	container_name    TEXT,
	metrics           JSONB NOT NULL DEFAULT '{}',
	last_updated      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS errors (
	id            BIGSERIAL PRIMARY KEY,
	subreddit     TEXT NOT NULL,
	post_id       TEXT,
	error_type    TEXT NOT NULL,
	error_message TEXT NOT NULL DEFAULT '',
	retry_count   INTEGER NOT NULL DEFAULT 0,
	resolved      BOOLEAN NOT NULL DEFAULT false,
	details       JSONB,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_errors_resolved ON errors (resolved);

CREATE TABLE IF NOT EXISTS usage (
	id                     BIGSERIAL PRIMARY KEY,
	subreddit              TEXT NOT NULL,
	scraper_type           TEXT NOT NULL,
	ts                     TIMESTAMPTZ NOT NULL DEFAULT now(),
	actual_http_requests   INTEGER NOT NULL,
	estimated_cost_usd     DOUBLE PRECISION NOT NULL,
	cycle_duration_seconds DOUBLE PRECISION NOT NULL,
	rate_limit_remaining   INTEGER
);
CREATE INDEX IF NOT EXISTS idx_usage_ts ON usage (ts);
CREATE INDEX IF NOT EXISTS idx_usage_subreddit_type ON usage (subreddit, scraper_type);

CREATE TABLE IF NOT EXISTS service_settings (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`
