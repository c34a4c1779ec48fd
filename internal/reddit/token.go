// Package reddit is the OAuth client for the Reddit listing and comment-tree
// APIs (spec §4.B, §6). Unlike the teacher's crawler package, which kept a
// single package-level tokenManager and rate limiter shared by every crawl
// goroutine, every type here is constructed explicitly and owned by one
// worker (spec §9): two scrapers never share a TokenManager, an Oracle, or
// a Client.
package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/onnwee/reddit-fleet/internal/httpx"
	"github.com/onnwee/reddit-fleet/internal/logger"
)

// TokenManager holds the OAuth client-credentials lifecycle for one app.
// It refreshes proactively (60s safety buffer) rather than lazily on 401,
// mirroring the teacher's tokenManager but scoped per instance instead of
// a package global.
type TokenManager struct {
	mu     sync.RWMutex
	client *http.Client
	ua     string

	clientID     string
	clientSecret string
	username     string
	password     string

	accessToken string
	expiry      time.Time
}

// NewTokenManager builds a token manager for one OAuth app. username/password
// are optional; when absent, client_credentials grant is used instead of
// the password grant (script-app vs read-only app, per Reddit's OAuth modes).
func NewTokenManager(client *http.Client, userAgent, clientID, clientSecret, username, password string) *TokenManager {
	return &TokenManager{
		client:       client,
		ua:           userAgent,
		clientID:     clientID,
		clientSecret: clientSecret,
		username:     username,
		password:     password,
	}
}

// AccessToken returns a valid bearer token, refreshing if the cached one is
// within 60s of expiry.
func (tm *TokenManager) AccessToken(ctx context.Context) (string, error) {
	tm.mu.RLock()
	if tm.accessToken != "" && time.Now().Add(60*time.Second).Before(tm.expiry) {
		tok := tm.accessToken
		tm.mu.RUnlock()
		return tok, nil
	}
	tm.mu.RUnlock()

	tm.mu.Lock()
	defer tm.mu.Unlock()
	if tm.accessToken != "" && time.Now().Add(60*time.Second).Before(tm.expiry) {
		return tm.accessToken, nil
	}
	return tm.refreshLocked(ctx)
}

func (tm *TokenManager) refreshLocked(ctx context.Context) (string, error) {
	if tm.clientID == "" || tm.clientSecret == "" {
		return "", fmt.Errorf("reddit: OAuth app credentials not configured")
	}

	form := url.Values{}
	if tm.username != "" && tm.password != "" {
		form.Set("grant_type", "password")
		form.Set("username", tm.username)
		form.Set("password", tm.password)
	} else {
		form.Set("grant_type", "client_credentials")
	}
	body := form.Encode()

	build := func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://www.reddit.com/api/v1/access_token", strings.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.SetBasicAuth(tm.clientID, tm.clientSecret)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("User-Agent", tm.ua)
		return req, nil
	}

	resp, err := httpx.DoWithRetryFactory(tm.client, build, nil)
	if err != nil {
		return "", fmt.Errorf("reddit: token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("reddit: token request status %s", resp.Status)
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", fmt.Errorf("reddit: decode token response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return "", fmt.Errorf("reddit: empty access token in response")
	}

	expiry := time.Duration(tokenResp.ExpiresIn) * time.Second
	if expiry > 120*time.Second {
		expiry -= 60 * time.Second
	} else {
		expiry /= 2
	}

	tm.accessToken = tokenResp.AccessToken
	tm.expiry = time.Now().Add(expiry)
	logger.Info("reddit: obtained access token", "expires_in", expiry.String())
	return tm.accessToken, nil
}
