// Package api exposes the service's HTTP surface: manual run trigger and
// the read-only dashboard export.
package api

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/miyazaki-CS/bidding-system/internal/model"
	"github.com/miyazaki-CS/bidding-system/internal/store"
)

// Trigger starts collection runs and reports in-flight state.
type Trigger interface {
	Run(ctx context.Context, testMode bool) (model.RunSummary, error)
	Running() bool
}

// Exporter is the read-only projection of the persistence store.
type Exporter interface {
	ExportPostings(ctx context.Context, limit int) ([]store.PostingRow, error)
}

// Handler serves the run-trigger and export endpoints.
type Handler struct {
	trigger  Trigger
	exporter Exporter
}

// NewHandler constructs a Handler.
func NewHandler(trigger Trigger, exporter Exporter) *Handler {
	return &Handler{trigger: trigger, exporter: exporter}
}

// RegisterRoutes attaches all endpoints to mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/runs", h.handleRuns)
	mux.HandleFunc("/export.csv", h.handleExport)
}

// handleRuns starts a manual collection run. ?test=true short-circuits
// notification dispatch while still exercising collection and scoring.
func (h *Handler) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if h.trigger.Running() {
		writeJSON(w, http.StatusConflict, map[string]string{
			"error": "a collection run is already in flight",
		})
		return
	}

	testMode := r.URL.Query().Get("test") == "true"

	// The run outlives the request; progress lands in logs and the store.
	go func() {
		summary, err := h.trigger.Run(context.Background(), testMode)
		if err != nil {
			log.Printf("[api] Manual run error: %v", err)
			return
		}
		log.Printf("[api] Manual run %s ended in %s", summary.RunID, summary.Stage)
	}()

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":   "accepted",
		"testMode": testMode,
	})
}

// handleExport streams every stored posting as CSV for external dashboard
// rendering.
func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 1 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = v
	}

	rows, err := h.exporter.ExportPostings(r.Context(), limit)
	if err != nil {
		log.Printf("[api] Export error: %v", err)
		http.Error(w, "export failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="postings.csv"`)

	cw := csv.NewWriter(w)

	cw.Write([]string{
		"dedup_key", "source_id", "external_id", "title", "organization",
		"region", "budget_amount", "published_at", "deadline_at",
		"score", "tier", "matched_keywords", "source_url", "created_at",
	})

	for _, row := range rows {
		budget := ""
		if row.BudgetAmount != nil {
			budget = strconv.FormatInt(*row.BudgetAmount, 10)
		}
		published := ""
		if !row.PublishedAt.IsZero() {
			published = row.PublishedAt.Format("2006-01-02")
		}
		deadline := ""
		if row.DeadlineAt != nil {
			deadline = row.DeadlineAt.Format("2006-01-02")
		}

		cw.Write([]string{
			row.DedupKey, row.SourceID, row.ExternalID, row.Title, row.Organization,
			row.Region, budget, published, deadline,
			strconv.Itoa(row.Score), string(row.Tier),
			strings.Join(row.MatchedKeywords, ";"), row.SourceURL,
			row.CreatedAt.Format("2006-01-02 15:04:05"),
		})
	}

	cw.Flush()
	// The status line is long gone, so a mid-stream failure can only be
	// surfaced in the logs; the client sees a truncated file.
	if err := cw.Error(); err != nil {
		log.Printf("[api] CSV export aborted mid-stream: %v", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
