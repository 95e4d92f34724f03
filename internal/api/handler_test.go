package api_test

import (
	"bytes"
	"context"
	"errors"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/miyazaki-CS/bidding-system/internal/api"
	"github.com/miyazaki-CS/bidding-system/internal/model"
	"github.com/miyazaki-CS/bidding-system/internal/store"
)

type fakeTrigger struct {
	mu       sync.Mutex
	running  bool
	runs     int
	testMode bool
}

func (f *fakeTrigger) Run(_ context.Context, testMode bool) (model.RunSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs++
	f.testMode = testMode
	return model.RunSummary{RunID: "r-1", Stage: "DONE"}, nil
}

func (f *fakeTrigger) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

type fakeExporter struct {
	rows []store.PostingRow
	err  error
}

func (f *fakeExporter) ExportPostings(context.Context, int) ([]store.PostingRow, error) {
	return f.rows, f.err
}

func newServer(trigger *fakeTrigger, exporter *fakeExporter) *httptest.Server {
	mux := http.NewServeMux()
	api.NewHandler(trigger, exporter).RegisterRoutes(mux)
	return httptest.NewServer(mux)
}

// ── /runs ──────────────────────────────────────────────────────────────────

func TestHandleRuns_Accepted(t *testing.T) {
	trigger := &fakeTrigger{}
	server := newServer(trigger, &fakeExporter{})
	defer server.Close()

	resp, err := http.Post(server.URL+"/runs?test=true", "", nil)
	if err != nil {
		t.Fatalf("POST /runs: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("status = %d, want 202", resp.StatusCode)
	}

	// The run is spawned asynchronously.
	deadline := time.Now().Add(time.Second)
	for {
		trigger.mu.Lock()
		runs, testMode := trigger.runs, trigger.testMode
		trigger.mu.Unlock()
		if runs == 1 {
			if !testMode {
				t.Error("?test=true must propagate to the trigger")
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("trigger was never invoked")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHandleRuns_ConflictWhenInFlight(t *testing.T) {
	trigger := &fakeTrigger{running: true}
	server := newServer(trigger, &fakeExporter{})
	defer server.Close()

	resp, err := http.Post(server.URL+"/runs", "", nil)
	if err != nil {
		t.Fatalf("POST /runs: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want 409", resp.StatusCode)
	}
}

func TestHandleRuns_GetNotAllowed(t *testing.T) {
	server := newServer(&fakeTrigger{}, &fakeExporter{})
	defer server.Close()

	resp, err := http.Get(server.URL + "/runs")
	if err != nil {
		t.Fatalf("GET /runs: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", resp.StatusCode)
	}
}

// ── /export.csv ────────────────────────────────────────────────────────────

func TestHandleExport_CSV(t *testing.T) {
	budget := int64(5_000_000)
	deadline := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	exporter := &fakeExporter{rows: []store.PostingRow{
		{
			ScoredPosting: model.ScoredPosting{
				Posting: model.Posting{
					SourceID:     "government_api",
					ExternalID:   "A-123",
					Title:        "コールセンター業務委託",
					Organization: "○○市",
					Region:       "東京都",
					BudgetAmount: &budget,
					PublishedAt:  time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
					DeadlineAt:   &deadline,
					SourceURL:    "https://example.com/bid/1",
				},
				DedupKey:        "government_api:A-123",
				Score:           95,
				MatchedKeywords: []string{"コールセンター", "電話受付"},
				Tier:            model.TierHigh,
			},
			CreatedAt: time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC),
		},
	}}

	server := newServer(&fakeTrigger{}, exporter)
	defer server.Close()

	resp, err := http.Get(server.URL + "/export.csv")
	if err != nil {
		t.Fatalf("GET /export.csv: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("Content-Type = %q, want text/csv", ct)
	}

	buf := make([]byte, 4096)
	n, _ := resp.Body.Read(buf)
	body := string(buf[:n])

	if !strings.Contains(body, "dedup_key,source_id") {
		t.Error("CSV must start with the header row")
	}
	if !strings.Contains(body, "コールセンター業務委託") {
		t.Error("CSV must contain the posting title")
	}
	if !strings.Contains(body, "95,HIGH") {
		t.Error("CSV must contain score and tier")
	}
	if !strings.Contains(body, "コールセンター;電話受付") {
		t.Error("CSV must join matched keywords with ;")
	}
}

// brokenWriter refuses every body write, as a closed client connection does.
type brokenWriter struct {
	header http.Header
}

func (b *brokenWriter) Header() http.Header       { return b.header }
func (b *brokenWriter) WriteHeader(int)           {}
func (b *brokenWriter) Write([]byte) (int, error) { return 0, errors.New("client went away") }

func TestHandleExport_MidStreamWriteFailureIsLogged(t *testing.T) {
	exporter := &fakeExporter{rows: []store.PostingRow{{
		ScoredPosting: model.ScoredPosting{
			Posting:  model.Posting{SourceID: "government_api", Title: "データ入力業務"},
			DedupKey: "government_api:B-1",
			Score:    60,
			Tier:     model.TierMedium,
		},
		CreatedAt: time.Now(),
	}}}
	mux := http.NewServeMux()
	api.NewHandler(&fakeTrigger{}, exporter).RegisterRoutes(mux)

	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	req := httptest.NewRequest(http.MethodGet, "/export.csv", nil)
	mux.ServeHTTP(&brokenWriter{header: http.Header{}}, req)

	if !strings.Contains(buf.String(), "CSV export aborted mid-stream") {
		t.Errorf("a failed response write must be logged, got:\n%s", buf.String())
	}
}

func TestHandleExport_InvalidLimit(t *testing.T) {
	server := newServer(&fakeTrigger{}, &fakeExporter{})
	defer server.Close()

	resp, err := http.Get(server.URL + "/export.csv?limit=zero")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestHandleExport_StoreError(t *testing.T) {
	server := newServer(&fakeTrigger{}, &fakeExporter{err: errors.New("boom")})
	defer server.Close()

	resp, err := http.Get(server.URL + "/export.csv")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
}
