package fetch

import (
	"context"
	"errors"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/refharvest/refharvest/internal/testutil"
	"github.com/refharvest/refharvest/pkg/config"
)

// testRecorder counts fetcher accounting calls.
type testRecorder struct {
	total     int
	succeeded int
	failed    int
	pages     int
}

func (r *testRecorder) RequestStarted()   { r.total++ }
func (r *testRecorder) RequestSucceeded() { r.succeeded++ }
func (r *testRecorder) RequestFailed()    { r.failed++ }
func (r *testRecorder) PageFetched()      { r.pages++ }

func testConfig(baseURL string) *config.Config {
	return &config.Config{
		BaseURL:     baseURL,
		Endpoint:    "/v3/reference/tickers",
		Params:      map[string]string{"active": "true", "limit": "100"},
		Retry:       config.RetryConfig{Tries: 3, BackoffSeconds: 0.01},
		APIKeyParam: "apiKey",
		APIKey:      "test-key",
	}
}

func newTestFetcher(cfg *config.Config, recorder *testRecorder) *Fetcher {
	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	f := NewFetcher(cfg, recorder, logger)
	f.sleepFn = func(time.Duration) {}
	return f
}

func TestFetchPage_Success(t *testing.T) {
	mock := testutil.NewMockRefAPI()
	defer mock.Close()

	mock.Push(testutil.NewPageResponse(testutil.Tickers(2, "A"), ""))

	recorder := &testRecorder{}
	f := newTestFetcher(testConfig(mock.URL()), recorder)

	payload := f.FetchPage(context.Background())
	if payload == nil {
		t.Fatal("FetchPage() = nil, want payload")
	}
	if len(payload.Results) != 2 {
		t.Errorf("Results = %d, want 2", len(payload.Results))
	}
	if recorder.total != 1 || recorder.succeeded != 1 || recorder.failed != 0 || recorder.pages != 1 {
		t.Errorf("counters = %+v, want total=1 succeeded=1 failed=0 pages=1", recorder)
	}
}

func TestFetchPage_CredentialAttached(t *testing.T) {
	mock := testutil.NewMockRefAPI()
	defer mock.Close()

	recorder := &testRecorder{}
	f := newTestFetcher(testConfig(mock.URL()), recorder)
	f.FetchPage(context.Background())

	req := mock.LastRequest()
	if req == nil {
		t.Fatal("no request recorded")
	}
	q := req.Query()
	if q.Get("apiKey") != "test-key" {
		t.Errorf("apiKey = %q, want test-key", q.Get("apiKey"))
	}
	if q.Get("active") != "true" || q.Get("limit") != "100" {
		t.Errorf("query = %v, want configured params", q)
	}
}

func TestFetchPage_RateLimitThenSuccess(t *testing.T) {
	mock := testutil.NewMockRefAPI()
	defer mock.Close()

	mock.Push(
		testutil.NewRateLimitResponse(),
		testutil.NewRateLimitResponse(),
		testutil.NewPageResponse(testutil.Tickers(3, "B"), ""),
	)

	recorder := &testRecorder{}
	f := newTestFetcher(testConfig(mock.URL()), recorder)

	payload := f.FetchPage(context.Background())
	if payload == nil {
		t.Fatal("FetchPage() = nil, want payload from the third attempt")
	}
	if len(payload.Results) != 3 {
		t.Errorf("Results = %d, want 3 (third response body)", len(payload.Results))
	}
	if recorder.succeeded != 1 {
		t.Errorf("succeeded = %d, want 1", recorder.succeeded)
	}
	if recorder.failed != 2 {
		t.Errorf("failed = %d, want 2 (one per 429 attempt)", recorder.failed)
	}
	if recorder.pages != 1 {
		t.Errorf("pages = %d, want 1", recorder.pages)
	}
	if recorder.total != 1 {
		t.Errorf("total = %d, want 1 (one per FetchPage call)", recorder.total)
	}
}

func TestFetchPage_LinearBackoff(t *testing.T) {
	mock := testutil.NewMockRefAPI()
	defer mock.Close()

	mock.Push(
		testutil.NewRateLimitResponse(),
		testutil.NewRateLimitResponse(),
		testutil.NewPageResponse(nil, ""),
	)

	cfg := testConfig(mock.URL())
	cfg.Retry.BackoffSeconds = 1.5

	recorder := &testRecorder{}
	f := newTestFetcher(cfg, recorder)

	var slept []time.Duration
	f.sleepFn = func(d time.Duration) { slept = append(slept, d) }

	f.FetchPage(context.Background())

	want := []time.Duration{1500 * time.Millisecond, 3 * time.Second}
	if len(slept) != len(want) {
		t.Fatalf("recorded %d backoff sleeps, want %d", len(slept), len(want))
	}
	for i, w := range want {
		if slept[i] != w {
			t.Errorf("backoff %d = %v, want %v (backoff x attempt)", i+1, slept[i], w)
		}
	}
}

func TestFetchPage_Exhaustion(t *testing.T) {
	tests := []struct {
		name       string
		script     []testutil.MockResponse
		wantFailed int
	}{
		{
			name: "all 429",
			script: []testutil.MockResponse{
				testutil.NewRateLimitResponse(),
				testutil.NewRateLimitResponse(),
				testutil.NewRateLimitResponse(),
			},
			wantFailed: 3,
		},
		{
			name: "all server errors",
			script: []testutil.MockResponse{
				testutil.NewServerErrorResponse(),
				testutil.NewServerErrorResponse(),
				testutil.NewServerErrorResponse(),
			},
			wantFailed: 3,
		},
		{
			name: "client errors retried the same way",
			script: []testutil.MockResponse{
				testutil.NewNotFoundResponse(),
				testutil.NewNotFoundResponse(),
				testutil.NewNotFoundResponse(),
			},
			wantFailed: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := testutil.NewMockRefAPI()
			defer mock.Close()
			mock.Push(tt.script...)

			recorder := &testRecorder{}
			f := newTestFetcher(testConfig(mock.URL()), recorder)

			if payload := f.FetchPage(context.Background()); payload != nil {
				t.Error("FetchPage() after exhaustion should return nil, not an error or payload")
			}
			if recorder.failed != tt.wantFailed {
				t.Errorf("failed = %d, want %d", recorder.failed, tt.wantFailed)
			}
			if recorder.succeeded != 0 || recorder.pages != 0 {
				t.Errorf("succeeded=%d pages=%d, want 0 and 0", recorder.succeeded, recorder.pages)
			}
		})
	}
}

func TestFetchPage_NetworkError(t *testing.T) {
	mock := testutil.NewMockRefAPI()
	baseURL := mock.URL()
	mock.Close() // connection refused from here on

	recorder := &testRecorder{}
	f := newTestFetcher(testConfig(baseURL), recorder)

	if payload := f.FetchPage(context.Background()); payload != nil {
		t.Error("FetchPage() against a dead server should return nil")
	}
	if recorder.failed != 3 {
		t.Errorf("failed = %d, want 3 (one per attempt)", recorder.failed)
	}
}

func TestFetchPage_ContinuationCursor(t *testing.T) {
	mock := testutil.NewMockRefAPI()
	defer mock.Close()

	cursorURL := mock.URL() + "/v3/reference/tickers?cursor=YWZ0ZXI9QjA"
	mock.Push(
		testutil.NewPageResponse(testutil.Tickers(2, "A"), cursorURL),
		testutil.NewPageResponse(testutil.Tickers(2, "B"), ""),
	)

	recorder := &testRecorder{}
	f := newTestFetcher(testConfig(mock.URL()), recorder)

	first := f.FetchPage(context.Background())
	if first == nil || first.NextURL != cursorURL {
		t.Fatalf("first page NextURL = %v, want %q", first, cursorURL)
	}

	second := f.FetchPage(context.Background())
	if second == nil {
		t.Fatal("second FetchPage() = nil, want payload")
	}

	req := mock.LastRequest()
	q := req.Query()
	if q.Get("cursor") != "YWZ0ZXI9QjA" {
		t.Errorf("cursor = %q, want the server-supplied token used verbatim", q.Get("cursor"))
	}
	if q.Get("apiKey") != "test-key" {
		t.Errorf("apiKey = %q, want credential reattached to cursor URL", q.Get("apiKey"))
	}
	if q.Get("active") != "" {
		t.Errorf("active = %q, want base params NOT reattached to cursor URL", q.Get("active"))
	}
}

func TestFetchPage_CursorClearedWhenExhausted(t *testing.T) {
	mock := testutil.NewMockRefAPI()
	defer mock.Close()

	cursorURL := mock.URL() + "/v3/reference/tickers?cursor=next"
	mock.Push(
		testutil.NewPageResponse(testutil.Tickers(1, "A"), cursorURL),
		testutil.NewPageResponse(testutil.Tickers(1, "B"), ""), // pagination exhausted
	)

	recorder := &testRecorder{}
	f := newTestFetcher(testConfig(mock.URL()), recorder)

	f.FetchPage(context.Background())
	f.FetchPage(context.Background())
	// Third call restarts from the base query.
	f.FetchPage(context.Background())

	req := mock.LastRequest()
	if req.Query().Get("cursor") != "" {
		t.Errorf("third request still carries a cursor: %v", req)
	}
	if req.Query().Get("active") != "true" {
		t.Errorf("third request missing base params: %v", req)
	}
}

func TestFetchPage_HeaderSnapshot(t *testing.T) {
	mock := testutil.NewMockRefAPI()
	defer mock.Close()

	mock.Push(testutil.NewPageResponse(nil, ""))

	recorder := &testRecorder{}
	f := newTestFetcher(testConfig(mock.URL()), recorder)

	if f.LastHeaders() != nil || f.LastStatus() != 0 {
		t.Error("snapshot should be empty before any response")
	}

	f.FetchPage(context.Background())

	if f.LastStatus() != http.StatusOK {
		t.Errorf("LastStatus() = %d, want 200", f.LastStatus())
	}
	if got := f.LastHeaders().Get("X-RateLimit-Remaining"); got != "50" {
		t.Errorf("LastHeaders() X-RateLimit-Remaining = %q, want 50", got)
	}
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorClass
	}{
		{429, ErrorClassRateLimit},
		{404, ErrorClassClient},
		{400, ErrorClassClient},
		{500, ErrorClassServer},
		{503, ErrorClassServer},
		{200, ErrorClass("")},
	}
	for _, tt := range tests {
		if got := classifyStatus(tt.status); got != tt.want {
			t.Errorf("classifyStatus(%d) = %q, want %q", tt.status, got, tt.want)
		}
	}
}

func TestAPIError(t *testing.T) {
	inner := errors.New("connection reset")
	err := &APIError{StatusCode: 0, Class: ErrorClassNetwork, Message: "request failed", Err: inner}

	if !errors.Is(err, inner) {
		t.Error("errors.Is should unwrap to the inner error")
	}
	if err.Error() == "" {
		t.Error("Error() should describe the failure")
	}

	plain := &APIError{StatusCode: 500, Class: ErrorClassServer, Message: "500 Internal Server Error"}
	if plain.Error() == "" {
		t.Error("Error() without inner error should still describe the failure")
	}
}
