package redditapi

import (
	"io"
	"net/http"
	"strings"
	"testing"
)

func resp(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestClassifyErrorRateLimited(t *testing.T) {
	e := ClassifyError(resp(http.StatusTooManyRequests, ""))
	if e.Type != ErrorRateLimited || !e.Retryable {
		t.Fatalf("expected retryable ErrorRateLimited, got %+v", e)
	}
}

func TestClassifyErrorPrivateSubreddit(t *testing.T) {
	e := ClassifyError(resp(http.StatusNotFound, `{"reason":"private"}`))
	if e.Type != ErrorPrivateSubreddit {
		t.Fatalf("expected ErrorPrivateSubreddit, got %+v", e)
	}
	if IsRetryable(e) {
		t.Fatalf("private subreddit should not be retryable")
	}
	if !IsPermanent(e) {
		t.Fatalf("private subreddit should be permanent")
	}
}

func TestClassifyErrorBannedSubreddit(t *testing.T) {
	e := ClassifyError(resp(http.StatusNotFound, `{"reason":"banned"}`))
	if e.Type != ErrorBannedSubreddit {
		t.Fatalf("expected ErrorBannedSubreddit, got %+v", e)
	}
}

func TestClassifyErrorQuarantined(t *testing.T) {
	e := ClassifyError(resp(http.StatusForbidden, "this subreddit is quarantined"))
	if e.Type != ErrorQuarantined {
		t.Fatalf("expected ErrorQuarantined, got %+v", e)
	}
}

func TestClassifyErrorUnauthorizedRetryable(t *testing.T) {
	e := ClassifyError(resp(http.StatusUnauthorized, ""))
	if e.Type != ErrorUnauthorized || !e.Retryable {
		t.Fatalf("expected retryable ErrorUnauthorized, got %+v", e)
	}
}

func TestClassifyErrorServerError(t *testing.T) {
	e := ClassifyError(resp(http.StatusBadGateway, ""))
	if e.Type != ErrorServerError || !e.Retryable {
		t.Fatalf("expected retryable ErrorServerError, got %+v", e)
	}
}

func TestClassifyErrorNilResponse(t *testing.T) {
	e := ClassifyError(nil)
	if e.Type != ErrorUnknown || e.Retryable {
		t.Fatalf("expected non-retryable ErrorUnknown for nil response, got %+v", e)
	}
}

func TestIsPermanentNil(t *testing.T) {
	if IsPermanent(nil) {
		t.Fatalf("nil error should not be permanent")
	}
}
